// Package adapter defines the resource abstractions shared by the database
// and storage adapters.
package adapter

import "context"

// ResourceConnection represents a generic connection to any resource (e.g., database, storage).
type ResourceConnection interface {
	// Close closes the resource connection.
	Close() error
	// Type returns the type of the resource (e.g., "mysql", "gcs").
	Type() string
	// Name returns the connection name (e.g., "metadata", "source").
	Name() string
}

// ResourceConnectionResolver resolves a named connection, re-establishing it when needed.
type ResourceConnectionResolver interface {
	ResolveConnection(ctx context.Context, name string) (ResourceConnection, error)
}
