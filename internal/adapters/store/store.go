// Package store implements the local media store: a key to blob map used
// for attachment payloads until the attachment expires.
package store

import (
	"context"
	"fmt"

	"github.com/dkeye/parley/internal/config"
	"github.com/dkeye/parley/internal/core"
)

// Store is a core.BlobStore that owns resources.
type Store interface {
	core.BlobStore
	Close() error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*S3Store)(nil)
)

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite", "":
		return OpenSQLite(ctx, cfg.DSN)
	case "s3":
		return OpenS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
