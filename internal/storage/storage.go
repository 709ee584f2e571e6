package storage

import (
	"context"
	"errors"
)

var (
	ErrNotFound   = errors.New("storage slot not found")
	ErrInvalidKey = errors.New("storage key must not be empty")
)

// Storage is a durable key/value slot store with best-effort semantics.
// Callers decide what a failure means; implementations never retry.
type Storage interface {
	// Get returns ErrNotFound when the slot is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Remove deletes the slot. Removing an absent slot is not an error.
	Remove(ctx context.Context, key string) error
	Close() error
}

// Watcher is implemented by backends that can report slot changes made by
// other processes. The channel is closed when ctx is done.
type Watcher interface {
	Watch(ctx context.Context, key string) (<-chan struct{}, error)
}

func checkKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	return nil
}
