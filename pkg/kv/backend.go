package kv

import "context"

// Row is a raw record as stored in the table. Field order matches the column
// order of every statement built by Queries.
type Row struct {
	Key       string
	Value     string
	CreatedAt int64
	UpdatedAt int64
	ExpiresAt int64
}

// Backend is the storage port a Store depends on. Implementations execute
// the statements built by Queries with ? placeholders, rebinding them for
// their dialect when needed. Each call is expected to be atomic on its own;
// the store never asks for transactions or locks.
type Backend interface {
	// First executes a query returning at most one row. It returns nil, nil
	// when there is no row.
	First(ctx context.Context, query string, args ...any) (*Row, error)

	// All executes a query returning zero or more rows.
	All(ctx context.Context, query string, args ...any) ([]Row, error)

	// Run executes a mutating statement.
	Run(ctx context.Context, query string, args ...any) error
}

// Database is a Backend that owns its connection and can create the table
// layout a Store expects.
type Database interface {
	Backend

	// Migrate creates table and its indexes if they do not exist.
	Migrate(ctx context.Context, table string) error

	// Ping checks that the database is reachable.
	Ping(ctx context.Context) error

	Close() error
}
