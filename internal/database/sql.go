package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/datakite/mysqlcdc/internal/errs"
)

// SQLConn implements Conn on top of database/sql.
// It is safe for concurrent use by multiple goroutines.
type SQLConn struct {
	db *sql.DB
}

// Open opens a database/sql pool for the named driver, applies the pool
// settings and validates the connection with a bounded Ping.
func Open(ctx context.Context, driverName, dsn string, cfg *PoolConfig) (*SQLConn, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}

	if cfg == nil {
		cfg = DefaultPoolConfig()
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	c := &SQLConn{db: db}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	if err := c.Ping(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return c, nil
}

// Wrap adapts an already-open *sql.DB into a Conn. Used by tests and by
// callers that manage pool settings themselves.
func Wrap(db *sql.DB) *SQLConn {
	return &SQLConn{db: db}
}

func (c *SQLConn) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

func (c *SQLConn) Close() error {
	return c.db.Close()
}

// Query executes sql and hands the streamed result set to handle. The
// rows are closed before Query returns, whether handle succeeds, fails
// or panics.
func (c *SQLConn) Query(ctx context.Context, query string, handle func(Rows) error) error {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return mapError(err, "query failed")
	}
	defer rows.Close()

	if err := handle(&sqlRows{rows: rows}); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return mapError(err, "error iterating rows")
	}
	return nil
}

func (c *SQLConn) QueryRow(ctx context.Context, query string, args ...any) Row {
	return &sqlRow{row: c.db.QueryRowContext(ctx, query, args...)}
}

// --- sql.DB type wrappers ---

type sqlRows struct {
	rows *sql.Rows
}

func (r *sqlRows) Next() bool                 { return r.rows.Next() }
func (r *sqlRows) Scan(dest ...any) error     { return r.rows.Scan(dest...) }
func (r *sqlRows) Columns() ([]string, error) { return r.rows.Columns() }
func (r *sqlRows) Err() error                 { return r.rows.Err() }

type sqlRow struct {
	row *sql.Row
}

func (r *sqlRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if err != nil {
		return mapError(err, "scan failed")
	}
	return nil
}

// --- error mapping ---

// mapError translates database/sql errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}
