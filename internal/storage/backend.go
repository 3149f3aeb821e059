// Package storage persists the prompt library through an opaque key/value Backend.
package storage

import "context"

// Keys under which the library is stored.
const (
	KeyPrompts     = "promptkeep.prompts"
	KeyCategories  = "promptkeep.categories"
	KeyTheme       = "promptkeep.theme"
	KeyPendingUndo = "promptkeep.pendingUndo"
)

// Backend is a durable key/value byte store.
type Backend interface {
	// Get returns found=false (and no error) when key does not exist.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// SetMany writes all entries or none.
	SetMany(ctx context.Context, entries map[string][]byte) error

	Remove(ctx context.Context, key string) error

	Close() error
}
