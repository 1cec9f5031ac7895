// Package dbexec abstracts read-only query execution so storage inspection can
// run against a live handle or a test double.
package dbexec

import (
	"context"
	"database/sql"
	"time"
)

// Rows is the subset of *sql.Rows the inspector reads.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// QueryExecutor runs read-only queries. Nothing in this repository writes to
// the database, so there is no Exec.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
}

// Option configures a StandardExecutor.
type Option func(*StandardExecutor)

// WithQueryTimeout bounds every query, including reading its rows.
// Zero or negative disables the bound.
func WithQueryTimeout(d time.Duration) Option {
	return func(e *StandardExecutor) {
		e.timeout = d
	}
}

// StandardExecutor runs queries against a database handle.
type StandardExecutor struct {
	db      *sql.DB
	timeout time.Duration
}

// NewStandardExecutor creates an executor for db.
func NewStandardExecutor(db *sql.DB, opts ...Option) *StandardExecutor {
	e := &StandardExecutor{db: db}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *StandardExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	if e.timeout <= 0 {
		return e.db.QueryContext(ctx, query, args...)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		cancel()
		return nil, err
	}
	return &cancelRows{Rows: rows, cancel: cancel}, nil
}

// cancelRows releases the query timeout once the caller is done with the rows.
type cancelRows struct {
	*sql.Rows
	cancel context.CancelFunc
}

func (r *cancelRows) Close() error {
	err := r.Rows.Close()
	r.cancel()
	return err
}
