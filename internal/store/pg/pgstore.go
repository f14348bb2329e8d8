// Package pg implements the account store on PostgreSQL.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Store wraps a pooled database handle.
type Store struct {
	db *sql.DB
}

// NewStore constructs a Store over an existing handle (used by tests).
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Open connects to PostgreSQL and waits for connectivity with a fixed
// attempt count and fixed backoff. This is the only retry loop in the
// system; everything after startup fails fast.
func Open(ctx context.Context, dsn string, attempts int, backoff time.Duration) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if attempts < 1 {
		attempts = 1
	}
	var pingErr error
	for i := 0; i < attempts; i++ {
		if pingErr = db.PingContext(ctx); pingErr == nil {
			return &Store{db: db}, nil
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	_ = db.Close()
	return nil, fmt.Errorf("database unreachable after %d attempts: %w", attempts, pingErr)
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle for readiness probes and the migration runner.
func (s *Store) DB() *sql.DB { return s.db }

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
