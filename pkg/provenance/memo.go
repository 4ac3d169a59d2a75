package provenance

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/Mindburn-Labs/coffeechain/pkg/domain"
)

// Source is the part of the ledger the resolver reads.
type Source interface {
	InputsOf(ctx context.Context, productID string) ([]string, error)
	Product(ctx context.Context, productID string) (domain.Product, error)
}

// Memo is a request-scoped Source that fetches each product at most once.
// Concurrent lookups of the same id share one backend call. Errors are not
// memoized; the request aborts on the first one anyway.
type Memo struct {
	src   Source
	group singleflight.Group

	mu       sync.RWMutex
	inputs   map[string][]string
	products map[string]domain.Product
}

// NewMemo wraps src for the lifetime of one request.
func NewMemo(src Source) *Memo {
	if m, ok := src.(*Memo); ok {
		return m
	}
	return &Memo{
		src:      src,
		inputs:   make(map[string][]string),
		products: make(map[string]domain.Product),
	}
}

func (m *Memo) InputsOf(ctx context.Context, productID string) ([]string, error) {
	m.mu.RLock()
	in, ok := m.inputs[productID]
	m.mu.RUnlock()
	if ok {
		return in, nil
	}

	v, err, _ := m.group.Do("inputs:"+productID, func() (any, error) {
		in, err := m.src.InputsOf(ctx, productID)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.inputs[productID] = in
		m.mu.Unlock()
		return in, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

func (m *Memo) Product(ctx context.Context, productID string) (domain.Product, error) {
	m.mu.RLock()
	p, ok := m.products[productID]
	m.mu.RUnlock()
	if ok {
		return p, nil
	}

	v, err, _ := m.group.Do("product:"+productID, func() (any, error) {
		p, err := m.src.Product(ctx, productID)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.products[productID] = p
		m.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	return v.(domain.Product), nil
}
