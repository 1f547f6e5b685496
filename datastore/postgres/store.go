// Package postgres implements datastore.Store on top of pgx/v5 and goqu.
//
// All the exported methods of Store live in their own per-concern files,
// matching the teacher's layout: publisher.go, namespace.go, membership.go,
// version.go, resolve.go, yank.go, list.go.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/remind101/migrate"

	"github.com/ipfsreg/registry/datastore"
	"github.com/ipfsreg/registry/datastore/postgres/migrations"
)

var _ datastore.Store = (*Store)(nil)

// InitPostgresStore initializes a datastore.Store given a pgxpool.Pool,
// optionally running the embedded schema migrations first.
func InitPostgresStore(_ context.Context, pool *pgxpool.Pool, doMigration bool) (datastore.Store, error) {
	if doMigration {
		db := stdlib.OpenDB(*pool.Config().ConnConfig)
		defer db.Close()

		migrator := migrate.NewPostgresMigrator(db)
		migrator.Table = migrations.MigrationTable
		if err := migrator.Exec(migrate.Up, migrations.RegistryMigrations...); err != nil {
			return nil, fmt.Errorf("failed to perform migrations: %w", err)
		}
	}

	return NewStore(pool), nil
}

// Store implements datastore.Store. The other exported methods live in
// their own files alongside this one.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an already-connected pool without running migrations.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close(_ context.Context) error {
	s.pool.Close()
	return nil
}
