// Package database is the generic connection primitive the CDC session
// layer is built on. It knows nothing about MySQL semantics: it executes
// SQL, streams result rows to a caller-supplied handler and manages the
// lifetime of the underlying pool. All MySQL-specific behaviour lives in
// the database/mysql subpackage.
package database

import "context"

// Conn is the minimal contract the session layer needs from a database
// connection. Implementations must be safe for concurrent use.
type Conn interface {
	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error

	// Query executes sql and streams the result set to handle. The result
	// set is closed when handle returns, on all paths including a handler
	// error. Rows are never materialized up front.
	Query(ctx context.Context, sql string, handle func(Rows) error) error

	// QueryRow executes a SQL statement that returns at most one row.
	QueryRow(ctx context.Context, sql string, args ...any) Row

	// Close releases all resources held by the connection.
	Close() error
}

// Rows is an abstraction over a streamed database result set.
type Rows interface {
	// Next advances to the next row.
	// Returns false when no more rows exist or on error.
	Next() bool

	// Scan copies the current row's columns into the provided destinations.
	Scan(dest ...any) error

	// Columns returns the column names of the result set.
	Columns() ([]string, error)

	// Err returns any error encountered during iteration.
	Err() error
}

// Row is an abstraction over a single database row.
type Row interface {
	Scan(dest ...any) error
}
