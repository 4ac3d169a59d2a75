package archive

import (
	"context"
	"errors"
	"time"

	"github.com/Mindburn-Labs/coffeechain/pkg/util/resiliency"
)

// GuardedStore fails fast while a remote backend keeps erroring, so a down
// bucket costs one timeout per reset window instead of one per report.
type GuardedStore struct {
	next    Store
	breaker *resiliency.CircuitBreaker
}

// Guard wraps next with a breaker that opens after five consecutive failures
// and tries again after thirty seconds.
func Guard(next Store, name string) *GuardedStore {
	return &GuardedStore{next: next, breaker: resiliency.NewCircuitBreaker(name, 5, 30*time.Second)}
}

func (g *GuardedStore) Put(ctx context.Context, data []byte) (hash string, err error) {
	err = g.breaker.Execute(func() error {
		hash, err = g.next.Put(ctx, data)
		return err
	})
	return hash, err
}

func (g *GuardedStore) Get(ctx context.Context, hash string) ([]byte, error) {
	var data []byte
	err := g.call(func() error {
		var err error
		data, err = g.next.Get(ctx, hash)
		return err
	})
	return data, err
}

func (g *GuardedStore) Exists(ctx context.Context, hash string) (bool, error) {
	var ok bool
	err := g.call(func() error {
		var err error
		ok, err = g.next.Exists(ctx, hash)
		return err
	})
	return ok, err
}

func (g *GuardedStore) Delete(ctx context.Context, hash string) error {
	return g.call(func() error { return g.next.Delete(ctx, hash) })
}

// call runs fn through the breaker. A missing object is an answer, not an
// outage, so it does not count as a failure.
func (g *GuardedStore) call(fn func() error) error {
	var notFound bool
	err := g.breaker.Execute(func() error {
		err := fn()
		if errors.Is(err, ErrNotFound) {
			notFound = true
			return nil
		}
		return err
	})
	if notFound {
		return ErrNotFound
	}
	return err
}
