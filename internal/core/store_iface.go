package core

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("blob not found")

// BlobStore keeps captured media by storage key. Put and Delete on the same
// key are serialized by implementations.
type BlobStore interface {
	Put(ctx context.Context, key string, blob []byte) error
	// Get returns ErrNotFound for unknown keys.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete is a no-op for unknown keys.
	Delete(ctx context.Context, key string) error
}
