// Command segmentd runs a segment manager behind an HTTP admin surface.
//
// Configuration is read from a YAML file (-config, VECSEG_CONFIG, ./config.yaml
// or /etc/vecseg/config.yaml) and overridden by VECSEG_* environment
// variables. See package config for the full list.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/vecseg"
	"github.com/hupe1980/vecseg/config"
	"github.com/hupe1980/vecseg/directory"
	"github.com/hupe1980/vecseg/internal/admin"
	"github.com/hupe1980/vecseg/observability"
	"github.com/hupe1980/vecseg/sysdb"
	"github.com/hupe1980/vecseg/sysdb/memory"
	"github.com/hupe1980/vecseg/sysdb/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("segmentd failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, closeDB, err := newSysDB(ctx, cfg.SysDB, logger.Logger)
	if err != nil {
		return err
	}
	defer closeDB()

	opts := []vecseg.Option{
		vecseg.WithLogger(logger),
		vecseg.WithMemoryLimit(cfg.MemoryLimitBytes),
		vecseg.WithMaxFileHandles(cfg.MaxFileHandles),
		vecseg.WithScanConcurrency(cfg.ScanConcurrency),
	}
	if cfg.Persistence.Enabled {
		opts = append(opts, vecseg.WithPersistDirectory(cfg.Persistence.Directory))
	}

	extra := map[string]http.Handler{}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		collector, err := observability.NewCollector(reg)
		if err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
		opts = append(opts, vecseg.WithMetricsCollector(collector))
		extra["GET "+cfg.Metrics.Path] = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	manager, err := newManager(cfg, db, opts)
	if err != nil {
		return err
	}
	if err := manager.Start(); err != nil {
		return fmt.Errorf("starting segment manager: %w", err)
	}
	defer func() {
		if err := manager.Stop(); err != nil {
			logger.Error("stopping segment manager", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      admin.New(manager, db, logger.Logger, extra).Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("segmentd starting",
			"port", cfg.Server.Port,
			"topology", cfg.Topology,
			"sysdb", cfg.SysDB.Type,
			"persisted", cfg.Persistence.Enabled,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func newLogger(cfg config.LogConfig) (*vecseg.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	if cfg.Format == "json" {
		return vecseg.NewJSONLogger(level), nil
	}
	return vecseg.NewTextLogger(level), nil
}

func newSysDB(ctx context.Context, cfg config.SysDBConfig, logger *slog.Logger) (sysdb.SysDB, func(), error) {
	switch cfg.Type {
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
			MigrateOnStart:  cfg.Postgres.MigrateOnStart,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting sysdb: %w", err)
		}
		return store, store.Close, nil
	default:
		return memory.New(), func() {}, nil
	}
}

func newManager(cfg *config.Config, db sysdb.SysDB, opts []vecseg.Option) (vecseg.SegmentManager, error) {
	if cfg.Topology != "distributed" {
		return vecseg.NewLocalManager(db, opts...)
	}

	var dir directory.SegmentDirectory
	switch cfg.Directory.Type {
	case "rendezvous":
		dir = directory.NewRendezvous(cfg.Directory.Members...)
	default:
		dir = directory.NewStatic(cfg.Directory.Endpoint)
	}
	return vecseg.NewDistributedManager(db, dir, opts...)
}
