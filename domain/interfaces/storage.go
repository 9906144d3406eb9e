package interfaces

import (
	"context"

	"selfheal/domain/entities"
)

// LocatorStore is the durable mapping from locator name to selector
type LocatorStore interface {
	// Get returns the selector stored under name
	Get(ctx context.Context, name string) (string, bool, error)

	// Put inserts or overwrites the selector stored under name
	Put(ctx context.Context, name string, selector string) error

	// List returns every stored locator
	List(ctx context.Context) (map[string]string, error)
}

// ScriptStore is the append-only collection of saved scripts
type ScriptStore interface {
	// Save assigns id and creation time and appends the script
	Save(ctx context.Context, name string, code string) (entities.Script, error)

	// List returns all scripts, most recently created first
	List(ctx context.Context) ([]entities.Script, error)
}

// Storage bundles both stores of one backend
type Storage interface {
	Locators() LocatorStore
	Scripts() ScriptStore
	Close() error
}
