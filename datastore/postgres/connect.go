package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/quay/zlog"

	"github.com/ipfsreg/registry/pkg/poolstats"
)

// Connect initializes a pgxpool.Pool from connString and registers a
// poolstats collector under applicationName.
func Connect(ctx context.Context, connString string, applicationName string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ConnString: %w", err)
	}
	cfg.MaxConns = 30
	const appnameKey = `application_name`
	params := cfg.ConnConfig.RuntimeParams
	if _, ok := params[appnameKey]; !ok {
		params[appnameKey] = applicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create ConnPool: %w", err)
	}

	if err := prometheus.Register(poolstats.NewCollector(pool, applicationName)); err != nil {
		zlog.Info(ctx).Msg("pool metrics already registered")
	}

	return pool, nil
}
