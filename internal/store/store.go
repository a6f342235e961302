// Package store is the durable relational backing store every projection
// falls through to on a cache miss: one Postgres-backed repository per
// entity, fronted by a Transactor so the rotation engine's multi-statement
// writes commit atomically.
package store

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // migration driver for postgres
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DBTX is the minimal pgx surface a repository needs — satisfied by both a
// bare pool and an open transaction, so repositories never know which one
// they are holding.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Transactor gives access to either the pool or the currently open
// transaction, mirroring the teacher's own split so a repository method can
// run standalone or as part of a larger unit of work without change.
type Transactor struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

// NewTransactor wraps an already-connected pool.
func NewTransactor(pool *pgxpool.Pool) *Transactor {
	return &Transactor{pool: pool}
}

// Begin starts a new transaction. Only one may be open at a time.
func (t *Transactor) Begin(ctx context.Context) error {
	if t.tx != nil {
		return errors.New("store: a transaction is already open")
	}
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	t.tx = tx
	return nil
}

// Commit commits the open transaction.
func (t *Transactor) Commit(ctx context.Context) error {
	if t.tx == nil {
		return errors.New("store: no transaction is open")
	}
	err := t.tx.Commit(ctx)
	t.tx = nil
	if err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Rollback aborts the open transaction.
func (t *Transactor) Rollback(ctx context.Context) error {
	if t.tx == nil {
		return errors.New("store: no transaction is open")
	}
	err := t.tx.Rollback(ctx)
	t.tx = nil
	if err != nil {
		return fmt.Errorf("rolling back transaction: %w", err)
	}
	return nil
}

// DBTX returns the open transaction if one exists, the pool otherwise.
func (t *Transactor) DBTX() DBTX {
	if t.tx != nil {
		return t.tx
	}
	return t.pool
}

// Close closes every connection in the pool.
func (t *Transactor) Close() { t.pool.Close() }

// Open connects to postgresURI, applies any pending migrations, and returns
// the pool ready for use by NewTransactor and the repositories.
func Open(ctx context.Context, postgresURI string, log zerolog.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.Connect(ctx, postgresURI)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := migrateUp(postgresURI, log); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func migrateUp(postgresURI string, log zerolog.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("opening embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, postgresURI)
	if err != nil {
		return fmt.Errorf("creating migration runner: %w", err)
	}
	defer func() {
		if _, err := m.Close(); err != nil {
			log.Error().Err(err).Msg("closing migration runner")
		}
	}()

	version, dirty, err := m.Version()
	log.Info().Uint("dbVersion", version).Bool("dirty", dirty).Err(err).Msg("database migration state")

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}
