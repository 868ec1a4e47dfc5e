// Package database owns the SQL connection pool, the schema lifecycle, and the
// rules for which executor (pool, request transaction, or bound test session)
// a store should run its statements on.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "github.com/lib/pq"               // registers the "postgres" driver

	"busybeaver/internal/platform/config"
	"busybeaver/pkg/platform/sentinel"
	txcontext "busybeaver/pkg/platform/tx"
)

var schemaNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// DB is the application's database handle.
type DB struct {
	pool   *sql.DB
	driver string
	schema string

	mu    sync.RWMutex
	bound *sql.Tx
}

// Open creates the connection pool and verifies connectivity. A non-empty
// schema becomes the connection search_path, so every table the app touches
// lives in that schema.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}
	if cfg.Schema != "" && !schemaNamePattern.MatchString(cfg.Schema) {
		return nil, fmt.Errorf("invalid schema name %q", cfg.Schema)
	}

	dsn, err := withSearchPath(cfg.URL, cfg.Schema)
	if err != nil {
		return nil, err
	}

	pool, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if cfg.MaxConns > 0 {
		pool.SetMaxOpenConns(cfg.MaxConns)
		pool.SetMaxIdleConns(cfg.MaxConns)
	}

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{pool: pool, driver: driver, schema: cfg.Schema}, nil
}

// Wrap adapts an existing pool. The schema is only used by CreateAll/DropAll.
func Wrap(pool *sql.DB, schema string) *DB {
	return &DB{pool: pool, driver: "postgres", schema: schema}
}

func withSearchPath(dsn, schema string) (string, error) {
	if schema == "" {
		return dsn, nil
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse database URL: %w", err)
		}
		q := u.Query()
		q.Set("search_path", schema)
		u.RawQuery = q.Encode()
		return u.String(), nil
	}
	return dsn + " search_path=" + schema, nil
}

// SQL returns the underlying pool.
func (d *DB) SQL() *sql.DB {
	return d.pool
}

// Schema returns the configured schema, empty meaning the server default.
func (d *DB) Schema() string {
	return d.schema
}

// Ping checks connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.pool.PingContext(ctx)
}

// Close releases the pool.
func (d *DB) Close() error {
	return d.pool.Close()
}

// Executor picks where a statement runs: the transaction carried on ctx,
// else the bound session transaction, else the pool.
func (d *DB) Executor(ctx context.Context) txcontext.Executor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.bound != nil {
		return d.bound
	}
	return d.pool
}

// Bind routes every executor lookup without an explicit transaction to tx
// until the returned unbind func is called. Only one transaction may be bound.
func (d *DB) Bind(tx *sql.Tx) (func(), error) {
	if tx == nil {
		return nil, fmt.Errorf("bind: transaction is nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bound != nil {
		return nil, fmt.Errorf("bind session: %w: another session is already bound", sentinel.ErrConflict)
	}
	d.bound = tx
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.bound == tx {
			d.bound = nil
		}
	}, nil
}

// Bound reports whether a session transaction is currently bound.
func (d *DB) Bound() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.bound != nil
}

// RunInTx runs fn inside a transaction that commits when fn returns nil.
// When ctx already carries a transaction, or a session is bound, fn joins it
// and nothing is committed here.
func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}
	d.mu.RLock()
	bound := d.bound
	d.mu.RUnlock()
	if bound != nil {
		return fn(txcontext.WithTx(ctx, bound))
	}

	tx, err := d.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Session is a transaction on a dedicated connection whose work is discarded
// on Close. The test fixtures use it to isolate each test.
type Session struct {
	conn   *sql.Conn
	tx     *sql.Tx
	unbind func()
}

// NewSession checks out a connection, begins a transaction on it, and binds
// the transaction to d.
func (d *DB) NewSession(ctx context.Context) (*Session, error) {
	conn, err := d.pool.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("checkout connection: %w", err)
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("begin session transaction: %w", err)
	}
	unbind, err := d.Bind(tx)
	if err != nil {
		_ = tx.Rollback()
		conn.Close()
		return nil, err
	}
	return &Session{conn: conn, tx: tx, unbind: unbind}, nil
}

// Tx returns the session transaction.
func (s *Session) Tx() *sql.Tx {
	return s.tx
}

// Context returns ctx carrying the session transaction.
func (s *Session) Context(ctx context.Context) context.Context {
	return txcontext.WithTx(ctx, s.tx)
}

// Close rolls the transaction back, returns the connection to the pool, and
// unbinds the session. Safe to call more than once.
func (s *Session) Close() error {
	if s.unbind != nil {
		s.unbind()
		s.unbind = nil
	}
	var errs []error
	if s.tx != nil {
		if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			errs = append(errs, fmt.Errorf("rollback session: %w", err))
		}
		s.tx = nil
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			errs = append(errs, fmt.Errorf("close session connection: %w", err))
		}
		s.conn = nil
	}
	return errors.Join(errs...)
}
