// Package postgres provides a test [pgxpool.Pool] connected to a scratch
// registry database, migrated and ready for datastore/postgres tests.
package postgres

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/remind101/migrate"

	"github.com/ipfsreg/registry/datastore/postgres/migrations"
	"github.com/ipfsreg/registry/test/integration"
)

// MinVersion is the minimum needed PostgreSQL version, in the integer format
// reported by "server_version_num".
const MinVersion uint64 = 150000

// EnvDSN names the environment variable holding the scratch database's
// connection string. TestRegistryDB calls integration.Skip(t) first, so
// without REGISTRY_INTEGRATION set a missing DSN only skips the test.
const EnvDSN = `REGISTRY_TEST_DSN`

// TestRegistryDB returns a [pgxpool.Pool] connected to EnvDSN, migrated with
// the registry schema. If any errors are encountered, the test is failed and
// exited.
func TestRegistryDB(ctx context.Context, t testing.TB) *pgxpool.Pool {
	t.Helper()
	integration.Skip(t)

	dsn := os.Getenv(EnvDSN)
	if dsn == "" {
		t.Fatalf("%s not set; REGISTRY_INTEGRATION is set, so point it at an ephemeral database", EnvDSN)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	checkVersion(ctx, t, pool)

	cfg := pool.Config()
	mdb := stdlib.OpenDB(*cfg.ConnConfig)
	defer mdb.Close()

	migrator := migrate.NewPostgresMigrator(mdb)
	migrator.Table = migrations.MigrationTable
	if err := migrator.Exec(migrate.Up, migrations.RegistryMigrations...); err != nil {
		t.Fatalf("failed to perform migrations: %v", err)
	}

	t.Cleanup(pool.Close)
	return pool
}

func checkVersion(ctx context.Context, t testing.TB, pool *pgxpool.Pool) {
	t.Helper()
	var vs string
	if err := pool.QueryRow(ctx, `SELECT current_setting('server_version_num');`).Scan(&vs); err != nil {
		t.Fatal(err)
	}
	v, err := strconv.ParseUint(vs, 10, 64)
	if err != nil {
		t.Fatal(err)
	}
	if v < MinVersion {
		t.Fatalf("PostgreSQL version too old: %d < %d", v, MinVersion)
	}
}
