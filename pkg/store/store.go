package store

import (
	"context"
	"errors"
)

// ErrUnreachable means the store did not recover within the retry policy
// the caller applied around a write (spec.md §7 "StoreUnreachable").
var ErrUnreachable = errors.New("store: unreachable")

// Query, Update and Fields are BSON-shaped filter/update/projection
// documents. They are declared as map[string]any rather than bson.M at
// this layer so the interface stays importable by packages (cu, scheduler)
// that should not need to pull in the mongo driver directly; the mongo
// backed implementation converts them to bson.M at the boundary.
type Query map[string]any
type Update map[string]any
type Fields map[string]any

// Cursor streams documents from a Find call, mirroring the find().stream()
// idiom the original agent relies on for the supervisor's polling loop
// (spec.md §6).
type Cursor interface {
	Next(ctx context.Context) bool
	Decode(v any) error
	Err() error
	Close(ctx context.Context) error
}

// BulkOp is an ordered bulk-write builder: a sequence of
// find(query).update(update) pairs flushed together with Execute, used by
// the updater to batch lifecycle writes (spec.md §6, §4.8).
type BulkOp interface {
	Find(q Query) BulkOp
	Update(u Update) BulkOp
	Execute(ctx context.Context) (modified int, err error)
}

// Store is the coordination-store client surface the core agent depends
// on. Everything else about the store (connection pooling, retries,
// TLS, credentials) lives behind the concrete implementation.
type Store interface {
	// FindAndModify performs an atomic read-modify-write, returning the
	// fields selected by fields after applying update (spec.md §6).
	FindAndModify(ctx context.Context, collection string, q Query, u Update, fields Fields) (map[string]any, error)

	// Find returns a cursor over documents matching q.
	Find(ctx context.Context, collection string, q Query) (Cursor, error)

	// Update applies u to every document matching q.
	Update(ctx context.Context, collection string, q Query, u Update) error

	// Bulk starts an ordered bulk-write builder against collection.
	Bulk(collection string) BulkOp

	// Close releases any underlying connection.
	Close(ctx context.Context) error
}

// CollectionName joins a session id with one of the Collection* suffixes,
// matching the original naming convention "<session_id>.<suffix>".
func CollectionName(sessionID, suffix string) string {
	return sessionID + "." + suffix
}
