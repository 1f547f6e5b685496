// registryd runs the HTTP surface named in spec §6: it wires the
// config-loaded metadata store, storage layers, publish pipeline, and
// identifier resolver into api/http's handlers, in the same shape
// cmd/libindexhttp wires libindex.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quay/zlog"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	apihttp "github.com/ipfsreg/registry/api/http"
	"github.com/ipfsreg/registry/config"
	"github.com/ipfsreg/registry/datastore/postgres"
	"github.com/ipfsreg/registry/pipeline"
	"github.com/ipfsreg/registry/resolver"
	"github.com/ipfsreg/registry/storage"
	"github.com/ipfsreg/registry/storage/fslayer"
	"github.com/ipfsreg/registry/storage/ipfslayer"
	"github.com/ipfsreg/registry/storage/mirror"
	"github.com/ipfsreg/registry/storage/s3layer"
)

var (
	configPath string
	listenAddr string
	migrate    bool
)

var rootCmd = &cobra.Command{
	Use:   "registryd",
	Short: "registryd serves the signed, content-addressed package registry API",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "registry.toml", "path to the TOML configuration file")
	rootCmd.Flags().StringVar(&listenAddr, "listen", "0.0.0.0:8080", "HTTP listen address")
	rootCmd.Flags().BoolVar(&migrate, "migrate", true, "run embedded schema migrations on startup")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, NoColor: true}).
		With().Timestamp().Caller().Logger()
	zlog.Set(&log)

	conf, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("registryd: %w", err)
	}

	pool, err := postgres.Connect(ctx, conf.Database.URL, "registryd")
	if err != nil {
		return fmt.Errorf("registryd: connect to database: %w", err)
	}
	defer pool.Close()

	store, err := postgres.InitPostgresStore(ctx, pool, migrate)
	if err != nil {
		return fmt.Errorf("registryd: init store: %w", err)
	}
	defer store.Close(ctx)

	layers, err := buildLayers(ctx, conf.Storage.Layers)
	if err != nil {
		return fmt.Errorf("registryd: build storage layers: %w", err)
	}
	mir := mirror.New(layers...)

	allow, err := conf.AllowAddresses()
	if err != nil {
		return fmt.Errorf("registryd: %w", err)
	}
	deny, err := conf.DenyAddresses()
	if err != nil {
		return fmt.Errorf("registryd: %w", err)
	}

	pl, err := pipeline.New(&pipeline.Options{
		Store:       store,
		Mirror:      mir,
		ArchiveKind: conf.ArchiveKind(),
		BodyLimit:   conf.Registry.BodyLimit,
		Allow:       allow,
		Deny:        deny,
	})
	if err != nil {
		return fmt.Errorf("registryd: init pipeline: %w", err)
	}

	res, err := resolver.New(store, mir)
	if err != nil {
		return fmt.Errorf("registryd: init resolver: %w", err)
	}

	mux := apihttp.NewMux(&apihttp.API{
		Store:     store,
		Pipeline:  pl,
		Resolver:  res,
		Archive:   conf.ArchiveKind(),
		BodyLimit: conf.Registry.BodyLimit,
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			zlog.Warn(r.Context()).Err(err).Msg("health check failed")
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:        listenAddr,
		Handler:     mux,
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	zlog.Info(ctx).Str("addr", listenAddr).Msg("starting http server")
	return srv.ListenAndServe()
}

// buildLayers constructs one storage.Layer per config.StorageLayer entry, in
// the order given: mirror.New preserves order for the sequential write fan
// out and first-success read (spec §4.C5).
func buildLayers(ctx context.Context, entries []config.StorageLayer) ([]storage.Layer, error) {
	layers := make([]storage.Layer, 0, len(entries))
	for i, e := range entries {
		kind, err := e.Kind()
		if err != nil {
			return nil, err
		}
		switch kind {
		case "ipfs":
			layers = append(layers, ipfslayer.New(http.DefaultClient, e.URL))
		case "s3":
			l, err := s3layer.New(ctx, s3layer.Config{Region: e.Region, Profile: e.Profile, Bucket: e.Bucket})
			if err != nil {
				return nil, fmt.Errorf("storage.layers[%d]: %w", i, err)
			}
			layers = append(layers, l)
		case "fs":
			l, err := fslayer.New(e.Directory)
			if err != nil {
				return nil, fmt.Errorf("storage.layers[%d]: %w", i, err)
			}
			layers = append(layers, l)
		}
	}
	return layers, nil
}
