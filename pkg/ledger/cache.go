package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Mindburn-Labs/coffeechain/pkg/domain"
)

// CachedReader is a Redis read-through cache in front of a Reader. Only the
// lookups whose answers never change once recorded are cached: product
// inputs, products, genesis events, and actor profiles. Shipments, sales and
// credentials gain confirmations over time and always go to the backend.
//
// Cache failures are logged and fall through to the backend.
type CachedReader struct {
	Reader
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedReader wraps next with a cache stored under keys "coffeechain:*".
func NewCachedReader(next Reader, client *redis.Client, ttl time.Duration) *CachedReader {
	return &CachedReader{
		Reader: next,
		client: client,
		prefix: "coffeechain:",
		ttl:    ttl,
		logger: slog.Default().With("component", "ledger-cache"),
	}
}

// NewRedisClient creates a client for addr.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func (c *CachedReader) InputsOf(ctx context.Context, productID string) ([]string, error) {
	return readThrough(ctx, c, "inputs:"+productID, func() ([]string, error) {
		return c.Reader.InputsOf(ctx, productID)
	})
}

func (c *CachedReader) Product(ctx context.Context, productID string) (domain.Product, error) {
	return readThrough(ctx, c, "product:"+productID, func() (domain.Product, error) {
		return c.Reader.Product(ctx, productID)
	})
}

func (c *CachedReader) Genesis(ctx context.Context, productID string) (domain.Genesis, error) {
	return readThrough(ctx, c, "genesis:"+productID, func() (domain.Genesis, error) {
		return c.Reader.Genesis(ctx, productID)
	})
}

func (c *CachedReader) Actor(ctx context.Context, actorID string) (domain.Actor, error) {
	return readThrough(ctx, c, "actor:"+actorID, func() (domain.Actor, error) {
		return c.Reader.Actor(ctx, actorID)
	})
}

// Invalidate drops every cached key. Used after a schema reset.
func (c *CachedReader) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func readThrough[T any](ctx context.Context, c *CachedReader, key string, load func() (T, error)) (T, error) {
	key = c.prefix + key

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var v T
		if uerr := json.Unmarshal(raw, &v); uerr == nil {
			return v, nil
		}
		c.logger.WarnContext(ctx, "dropping undecodable cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "cache read failed", "key", key, "error", err)
	}

	v, err := load()
	if err != nil {
		return v, err
	}
	if raw, merr := json.Marshal(v); merr == nil {
		if serr := c.client.Set(ctx, key, raw, c.ttl).Err(); serr != nil {
			c.logger.WarnContext(ctx, "cache write failed", "key", key, "error", serr)
		}
	}
	return v, nil
}
