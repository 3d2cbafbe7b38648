// Package main is the entry point for the iris-triage service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"iris-triage/internal/api"
	"iris-triage/internal/config"
	"iris-triage/internal/custody"
	ierrors "iris-triage/internal/errors"
	"iris-triage/internal/kafka"
	"iris-triage/internal/logging"
	"iris-triage/internal/rules"
	"iris-triage/internal/scan"
	"iris-triage/internal/storage"
	"iris-triage/internal/storage/s3"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	if os.Getenv("IRIS_ENV") == "production" {
		ierrors.SetProductionMode(true)
	}

	slog.Info("configuration loaded",
		"http_port", cfg.Server.HTTPPort,
		"rules_dir", cfg.Rules.Dir,
		"scan_workers", cfg.Scanner.Workers,
		"auth_enabled", cfg.Auth.Enabled,
		"storage_enabled", cfg.Storage.Enabled,
		"kafka_enabled", cfg.Kafka.Enabled,
	)

	// Load the rule catalog, seeding the starter set on first run
	store := rules.NewStore(cfg.Rules.Dir, logger)
	if seeded, err := rules.SeedDefaults(store); err != nil {
		slog.Error("failed to seed default rules", "error", err)
		os.Exit(1)
	} else if seeded > 0 {
		slog.Info("seeded default rules", "rules", seeded)
	}

	catalog, warnings := store.LoadAll()
	for _, warning := range warnings {
		slog.Warn("rule load warning", "error", warning)
	}
	if cfg.Rules.FailOnError && len(warnings) > 0 {
		slog.Error("rule catalog has errors and fail_on_error is set",
			"warnings", len(warnings))
		os.Exit(1)
	}
	slog.Info("rule catalog ready", "rules", len(catalog.Rules), "version", catalog.Version)

	engine := scan.NewEngine(scan.EngineConfig{
		MaxReadBytes: cfg.Scanner.MaxReadBytes,
		WorkDir:      cfg.Scanner.WorkDir,
		Workers:      cfg.Scanner.Workers,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := api.Options{
		MaxRuleBytes: cfg.Rules.MaxFileSize,
		Logger:       logger,
	}

	// Initialize ClickHouse finding storage if enabled
	var chClient *storage.ClickHouseClient
	var batchWriter *storage.BatchWriter

	if cfg.Storage.Enabled {
		slog.Info("initializing ClickHouse storage",
			"hosts", cfg.Storage.ClickHouse.Hosts,
			"database", cfg.Storage.ClickHouse.Database,
		)

		chClient, err = storage.NewClickHouseClient(storage.ClickHouseConfig{
			Hosts:           cfg.Storage.ClickHouse.Hosts,
			Database:        cfg.Storage.ClickHouse.Database,
			Username:        cfg.Storage.ClickHouse.Username,
			Password:        cfg.Storage.ClickHouse.Password,
			MaxOpenConns:    cfg.Storage.ClickHouse.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.ClickHouse.MaxIdleConns,
			ConnMaxLifetime: cfg.Storage.ClickHouse.ConnMaxLifetime,
			TLSEnabled:      cfg.Storage.ClickHouse.TLSEnabled,
			DialTimeout:     cfg.Storage.ClickHouse.DialTimeout,
		})
		if err != nil {
			slog.Error("failed to connect to ClickHouse", "error", err)
			os.Exit(1)
		}

		slog.Info("running database migrations")
		migrator := storage.NewMigrator(chClient)
		if err := migrator.Run(ctx); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}

		batchWriter = storage.NewBatchWriter(chClient, storage.BatchWriterConfig{
			BatchSize:     cfg.Storage.BatchWriter.BatchSize,
			FlushInterval: cfg.Storage.BatchWriter.FlushInterval,
			MaxRetries:    cfg.Storage.BatchWriter.MaxRetries,
			RetryDelay:    cfg.Storage.BatchWriter.RetryDelay,
		})
		opts.Sink = batchWriter
		opts.Findings = storage.NewFindingStore(chClient)
		opts.Quarantine = storage.NewQuarantineWriter(chClient)

		retention := storage.NewRetentionManager(chClient, storage.RetentionConfig{
			FindingsTTL:    cfg.Storage.Retention.FindingsTTL,
			AssessmentsTTL: cfg.Storage.Retention.AssessmentsTTL,
			QuarantineTTL:  cfg.Storage.Retention.QuarantineTTL,
		})
		if err := retention.ApplyTTLs(ctx); err != nil {
			slog.Warn("failed to apply retention policies", "error", err)
		}

		slog.Info("storage initialized successfully")
	}

	// Initialize the Kafka finding publisher if enabled
	var producer *kafka.Producer

	if cfg.Kafka.Enabled {
		kcfg := kafka.DefaultConfig()
		kcfg.Brokers = cfg.Kafka.Brokers
		kcfg.Topic = cfg.Kafka.Topic

		admin, err := kafka.NewAdmin(kcfg, logger)
		if err != nil {
			slog.Error("failed to create kafka admin", "error", err)
			os.Exit(1)
		}
		if err := admin.EnsureTopic(ctx, kafka.TopicConfig{
			Name:              kcfg.Topic,
			Partitions:        kcfg.Partitions,
			ReplicationFactor: kcfg.ReplicationFactor,
			RetentionMs:       kcfg.RetentionMs,
		}); err != nil {
			slog.Error("failed to ensure kafka topic", "topic", kcfg.Topic, "error", err)
			os.Exit(1)
		}

		producer, err = kafka.NewProducer(kcfg, logger)
		if err != nil {
			slog.Error("failed to create kafka producer", "error", err)
			os.Exit(1)
		}
		opts.Publisher = kafka.NewFindingPublisher(producer, logger)

		slog.Info("kafka publisher ready", "brokers", kcfg.Brokers, "topic", kcfg.Topic)
	}

	// Initialize the S3 report archive if enabled
	var archiver *s3.Archiver
	if cfg.Archive.Enabled {
		scfg := s3.DefaultConfig()
		scfg.Bucket = cfg.Archive.Bucket
		scfg.Region = cfg.Archive.Region
		scfg.Prefix = cfg.Archive.KeyPrefix
		scfg.Endpoint = cfg.Archive.Endpoint

		s3Client, err := s3.NewClient(ctx, scfg, logger)
		if err != nil {
			slog.Error("failed to create archive client", "error", err)
			os.Exit(1)
		}
		archiver = s3.NewArchiver(s3Client, s3.DefaultArchiverConfig(), logger)
		opts.Archiver = archiver

		slog.Info("report archive ready", "bucket", scfg.Bucket, "prefix", scfg.Prefix)
	}

	// Open the chain-of-custody ledger if enabled
	var ledger *custody.Ledger

	if cfg.Custody.Enabled {
		ledger, err = custody.Open(cfg.Custody.Path)
		if err != nil {
			slog.Error("failed to open custody ledger", "path", cfg.Custody.Path, "error", err)
			os.Exit(1)
		}
		opts.Ledger = ledger

		slog.Info("custody ledger ready", "path", cfg.Custody.Path)
	}

	srv := api.NewServer(store, engine, opts)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      api.NewRouter(srv, cfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("starting triage server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	cancel()

	if producer != nil {
		if err := producer.Close(); err != nil {
			slog.Error("kafka producer close error", "error", err)
		}
	}
	if batchWriter != nil {
		if err := batchWriter.Close(); err != nil {
			slog.Error("batch writer close error", "error", err)
		}
	}
	if chClient != nil {
		if err := chClient.Close(); err != nil {
			slog.Error("clickhouse close error", "error", err)
		}
	}
	if ledger != nil {
		if err := ledger.Close(); err != nil {
			slog.Error("custody ledger close error", "error", err)
		}
	}

	if batchWriter != nil {
		metrics := batchWriter.Metrics()
		slog.Info("storage metrics",
			"findings_written", metrics.Written,
			"findings_failed", metrics.Failed,
			"batches", metrics.Batches,
		)
	}
	if archiver != nil {
		metrics := archiver.GetMetrics()
		slog.Info("archive metrics",
			"reports_archived", metrics.ReportsArchived,
			"bytes_archived", metrics.BytesArchived,
			"errors", metrics.Errors,
		)
	}

	slog.Info("shutdown complete")
}
