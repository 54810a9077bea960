package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const idempotencyPrefix = "webhook:dispatched:"

// IdempotencyGuard remembers dispatched event keys so a replayed dispatch can be
// acknowledged without running provider side effects twice.
type IdempotencyGuard struct {
	cache *PGCache
	ttl   time.Duration
}

func NewIdempotencyGuard(cache *PGCache, ttl time.Duration) *IdempotencyGuard {
	return &IdempotencyGuard{cache: cache, ttl: ttl}
}

func (g *IdempotencyGuard) Seen(ctx context.Context, key string) (bool, error) {
	return g.cache.Exists(ctx, idempotencyPrefix+key)
}

func (g *IdempotencyGuard) Remember(ctx context.Context, key string) error {
	stamp := []byte(g.cache.now().UTC().Format(time.RFC3339Nano))
	return g.cache.Set(ctx, idempotencyPrefix+key, stamp, g.ttl)
}

// DispatchedAt returns when key was remembered. ok is false for unknown or expired keys.
func (g *IdempotencyGuard) DispatchedAt(ctx context.Context, key string) (at time.Time, ok bool, err error) {
	raw, err := g.cache.Get(ctx, idempotencyPrefix+key)
	if errors.Is(err, ErrCacheMiss) || errors.Is(err, ErrCacheExpired) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	at, err = time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse dispatch stamp: %w", err)
	}
	return at, true, nil
}

// Purge drops expired keys. The worker calls it on every tick.
func (g *IdempotencyGuard) Purge(ctx context.Context) (int64, error) {
	return g.cache.CleanupExpired(ctx)
}
