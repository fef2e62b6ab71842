// Package session keeps short-lived per-visitor documents keyed by an opaque string.
package session

import (
	"context"
	"errors"
)

var ErrConflict = errors.New("session: concurrent update conflict")

// UpdateFunc receives the current document (nil when absent) and returns the next one.
// Returning nil deletes the key.
type UpdateFunc func(current []byte) ([]byte, error)

type Store interface {
	// Load returns nil, nil when the key is absent or expired.
	Load(ctx context.Context, key string) ([]byte, error)
	// Update applies fn atomically with respect to other updates of the same key.
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}
