package cache

import (
	"context"
	"time"
)

// Store is the small key/value surface shared by the token cache, the hot
// refresh guard and the distributed run gate.
type Store interface {
	// GetToken returns the cached value for key, or "" when absent or expired.
	GetToken(ctx context.Context, key string) (string, error)
	SetToken(ctx context.Context, key, value string, ttl time.Duration) error
	DeleteToken(ctx context.Context, key string) error

	// TryAcquire sets key to owner only if key is absent (SETNX with TTL).
	// It returns true when the caller now holds the key.
	TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)

	// Release deletes key only if it is still held by owner.
	Release(ctx context.Context, key, owner string) (bool, error)

	// Extend resets the TTL of key only if it is still held by owner.
	Extend(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)

	Close() error
}
