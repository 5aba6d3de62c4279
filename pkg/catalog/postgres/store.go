// Package postgres implements the catalog on PostgreSQL using pgx.
//
// Every mutating method is a single statement in its own transaction that
// re-states the eligibility condition it acts on, so candidate lists
// computed earlier in a phase can never cause an unsafe change.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marmos91/blobgc/internal/logger"
	"github.com/marmos91/blobgc/pkg/catalog"
)

// Store is the PostgreSQL implementation of catalog.Store.
type Store struct {
	pool *pgxpool.Pool

	mu     sync.RWMutex
	closed bool
}

var _ catalog.Store = (*Store)(nil)

// New connects to the catalog.
func New(ctx context.Context, cfg *Config) (*Store, error) {
	pool, err := createConnectionPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool. The store takes ownership of it.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return catalog.ErrClosed
	}
	return nil
}

// withTx runs fn in a transaction, committing if it returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }() // No-op if committed

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// queryIDs runs a query returning a single BIGINT column.
func (s *Store) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// Now implements catalog.Store.
func (s *Store) Now(ctx context.Context) (time.Time, error) {
	if err := s.checkOpen(); err != nil {
		return time.Time{}, err
	}
	var now time.Time
	if err := s.pool.QueryRow(ctx, `SELECT clock_timestamp()`).Scan(&now); err != nil {
		return time.Time{}, wrap("now", err)
	}
	return now, nil
}

// AcquireRunLock implements catalog.Store with a session level advisory
// lock held on a dedicated pool connection until release.
func (s *Store) AcquireRunLock(ctx context.Context, key int64) (func(), error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, wrap("acquire run lock connection", err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&ok); err != nil {
		conn.Release()
		return nil, wrap("acquire run lock", err)
	}
	if !ok {
		conn.Release()
		return nil, catalog.ErrLocked
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Use a fresh context: release runs on shutdown paths whose
			// context is already canceled.
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, key); err != nil {
				// The lock dies with the session; drop the connection.
				logger.Warn("failed to release run lock", logger.Err(err))
				_ = conn.Conn().Close(ctx)
			}
			conn.Release()
		})
	}, nil
}

// HealthCheck implements catalog.Store.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("catalog health check failed: %w", classify(err))
	}

	// The collector cannot run against a catalog without its tables.
	var present int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name IN ($1, $2)`,
		catalog.ContentTable, catalog.AliasTable,
	).Scan(&present)
	if err != nil {
		return wrap("catalog health check", err)
	}
	if present != 2 {
		return errors.New("catalog health check failed: blob_content or blob_alias is missing (run 'blobgc migrate')")
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.pool.Close()
	return nil
}
