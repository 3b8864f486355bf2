package reservebase

import "context"

// Backend defines the interface for the underlying document engine.
// Reservebase ships three implementations: Redis (production), S3
// (object-store variant), and local filesystem (tests and tooling).
//
// Contract:
//   - Get returns ErrNotFound for missing keys, whatever the engine's
//     native error shape is.
//   - PutIfAbsent returns ErrAlreadyExists when the key is taken.
//   - Put is create-or-replace.
//   - Delete returns ErrNotFound when there was nothing to delete.
//
// No retries happen at this layer; retry/backoff belongs to the
// connection lifecycle (see Connector).
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	PutIfAbsent(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// List returns all keys with the given prefix. The query engine uses
	// this to scan documents of one type (keys are type-prefixed).
	List(ctx context.Context, prefix string) ([]string, error)

	// Health check
	Ping(ctx context.Context) error

	// Resource cleanup
	Close() error
}
