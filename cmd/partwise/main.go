package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/streamflix/partwise/internal/aggregate"
	corecfg "github.com/streamflix/partwise/internal/core/config"
	"github.com/streamflix/partwise/internal/core/plan"
	"github.com/streamflix/partwise/internal/core/storage/postgres"
	"github.com/streamflix/partwise/internal/ingestion"
	"github.com/streamflix/partwise/internal/migrations"
	"github.com/streamflix/partwise/internal/provision"
	"github.com/streamflix/partwise/internal/query"
	"github.com/streamflix/partwise/internal/scheduler"
	"github.com/streamflix/partwise/internal/server"
)

func main() {
	configPath := flag.String("config", "partwise.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config",
		"base_table", cfg.Partitioning.BaseTable,
		"granularity", cfg.Scheme.Granularity,
		"modulus", cfg.Partitioning.Modulus,
		"buckets", cfg.Partitioning.Buckets,
		"index_templates", len(cfg.Scheme.IndexTemplates))

	// 2. Initialize Storage (PostgreSQL)
	dbAdapter, err := postgres.NewAdapter(
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
	)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer dbAdapter.Close()

	// 2.1. Run Database Migrations
	if err := migrations.RunMigrations(dbAdapter.DB(), cfg.Database.AutoMigrate); err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	// 3. Initialize Partition Provisioner
	partitionAdapter := postgres.NewPartitionAdapter(dbAdapter.DB(), cfg.Database.Schema)
	provisioner, err := provision.New(partitionAdapter, partitionAdapter, partitionAdapter, provision.Options{
		BaseTable:        cfg.Partitioning.BaseTable,
		HashColumn:       cfg.Partitioning.HashColumn,
		Granularity:      cfg.Scheme.Granularity,
		Modulus:          cfg.Partitioning.Modulus,
		Buckets:          cfg.Scheme.Buckets,
		IndexTemplates:   cfg.Scheme.IndexTemplates,
		OperationTimeout: cfg.Scheme.OperationTimeout,
	})
	if err != nil {
		slog.Error("Failed to initialize provisioner", "error", err)
		os.Exit(1)
	}

	// 4. Initialize Aggregate Maintainer
	aggregateAdapter := postgres.NewAggregateAdapter(dbAdapter.DB())
	maintainer := aggregate.NewMaintainer(aggregateAdapter, cfg.Aggregate.WindowDays, cfg.Scheme.OperationTimeout)

	// 5. Initialize API services
	ingestionSvc := ingestion.NewService(dbAdapter, cfg.Server.MaxBodySizeMB)
	querySvc := query.NewService(
		aggregateAdapter,
		dbAdapter,
		partitionAdapter,
		provisioner,
		cfg.Partitioning.BaseTable,
		cfg.Provisioning.MaxParallel,
	)

	// 6. Initialize Server
	currentPartition := func() string {
		desc, err := plan.TimePartition(cfg.Partitioning.BaseTable, time.Now().UTC(), cfg.Scheme.Granularity)
		if err != nil {
			return ""
		}
		return desc.Name
	}
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), dbAdapter.DB(), cfg.Server.Mode, partitionAdapter, currentPartition)
	ingestionSvc.RegisterRoutes(srv.Engine)
	querySvc.RegisterRoutes(srv.Engine)

	// 7. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Provisioning.Enabled {
		interval, _ := time.ParseDuration(cfg.Provisioning.Interval) // validated at load
		job := &scheduler.ProvisionJob{
			Interval:      interval,
			HorizonMonths: cfg.Provisioning.HorizonMonths,
			MaxParallel:   cfg.Provisioning.MaxParallel,
			Provisioner:   provisioner,
		}
		go func() {
			if err := job.Start(ctx); err != nil {
				slog.Error("Provisioning job stopped with error", "error", err)
			}
		}()
	} else {
		slog.Info("Provisioning scheduler disabled by config")
	}

	if cfg.Aggregate.Enabled {
		interval, _ := time.ParseDuration(cfg.Aggregate.RefreshInterval) // validated at load
		job := &scheduler.RefreshJob{
			Interval:   interval,
			Maintainer: maintainer,
		}
		go func() {
			if err := job.Start(ctx); err != nil {
				slog.Error("Refresh job stopped with error", "error", err)
			}
		}()
	} else {
		slog.Info("Aggregate refresh disabled by config")
	}

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
