// splitledger-worker runs the sync engine standalone, prompted by AMQP
// change messages published by the main service, with periodic cycles as a
// safety net for missed deliveries.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"

	"splitledger/internal/amqp"
	"splitledger/internal/config"
	applog "splitledger/internal/log"
	"splitledger/internal/remote"
	"splitledger/internal/remote/google"
	"splitledger/internal/remote/memory"
	"splitledger/internal/storage"
	syncpkg "splitledger/internal/sync"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{
		Component: applog.ComponentWorker,
		Handler: tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel(),
			TimeFormat: time.TimeOnly,
		}),
	})
	applog.SetDefault(logger)

	logger.Info("Starting splitledger-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := storage.Open(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to open ledger store", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	remoteStore, err := buildRemoteStore(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize remote store", "error", err, "backend", cfg.RemoteBackend)
		os.Exit(1)
	}
	logger.Info("Remote store initialized", "backend", cfg.RemoteBackend)

	engine := syncpkg.NewEngine(repo, remoteStore, syncpkg.Config{
		Interval:     cfg.SyncInterval,
		CycleTimeout: cfg.SyncTimeout,
		MaxBackoff:   cfg.SyncMaxBackoff,
	})

	unsubscribe := engine.Subscribe(func(ev syncpkg.Event) {
		switch ev.Phase {
		case syncpkg.PhaseCompleted:
			if ev.Type == syncpkg.EventImport && ev.Summary.Total() > 0 {
				logger.Info("Import cycle applied changes",
					"created", ev.Summary.Created,
					"updated", ev.Summary.Updated,
					"deleted", ev.Summary.Deleted)
			}
			if ev.Type == syncpkg.EventExport && ev.Records > 0 {
				logger.Info("Export cycle pushed records", "records", ev.Records)
			}
		case syncpkg.PhaseFailed:
			logger.Warn("Sync stage failed", "stage", string(ev.Type), "error", ev.Err)
		}
	})
	defer unsubscribe()

	if err := engine.Start(ctx); err != nil {
		logger.Error("Failed to start sync engine", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer client.Close()

		g.Go(func() error {
			err := client.ConsumeChanges(gctx, func(msg *amqp.ChangeMessage) error {
				logger.Debug("Change message received",
					"kind", msg.Kind, "id", msg.ID, "version", msg.Version)
				engine.Trigger()
				return nil
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		logger.Info("AMQP consumer started", "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - running on periodic sync only")
	}

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := engine.Stop(shutdownCtx); err != nil {
			logger.Error("Sync engine shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}

func buildRemoteStore(ctx context.Context, cfg *config.Config) (remote.Store, error) {
	if cfg.RemoteBackend == "sheets" {
		return google.New(ctx, google.Options{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			CredentialsJSON: cfg.GoogleCredentialsJSON,
			CredentialsFile: cfg.GoogleCredentialsFile,
		})
	}
	return memory.NewStore(), nil
}

func logLevel() slog.Level {
	if os.Getenv("LOG_LEVEL") == "debug" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
