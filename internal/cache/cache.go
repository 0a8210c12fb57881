package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent.
var ErrMiss = errors.New("cache: miss")

// Cache is the read-side cache used for per-user conversation lists.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Close() error
}

// Noop satisfies Cache when no redis instance is configured; every read is a
// miss and writes are discarded.
type Noop struct{}

func (Noop) Get(ctx context.Context, key string) (string, error) { return "", ErrMiss }

func (Noop) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return nil
}

func (Noop) Del(ctx context.Context, keys ...string) error { return nil }

func (Noop) Close() error { return nil }
