package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/unicorn-labs/unicorn-go/internal/dispatch"
	"github.com/unicorn-labs/unicorn-go/internal/platform/env"
	"github.com/unicorn-labs/unicorn-go/internal/platform/httpserver"
	"github.com/unicorn-labs/unicorn-go/internal/platform/objectstore"
	"github.com/unicorn-labs/unicorn-go/internal/platform/postgres"
	"github.com/unicorn-labs/unicorn-go/internal/platform/queue"
	"github.com/unicorn-labs/unicorn-go/internal/platform/workflow"
	pgrepo "github.com/unicorn-labs/unicorn-go/internal/repo/postgres"
	"github.com/unicorn-labs/unicorn-go/internal/repo/projection"
	"github.com/unicorn-labs/unicorn-go/internal/service/propagator"
	"github.com/unicorn-labs/unicorn-go/internal/service/tokens"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("PROPERTIES_HTTP_ADDR", ":8081")
	shutdownTimeout, err := env.Duration("PROPERTIES_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	queueCfg, err := queue.ConfigFromEnv("PROPERTIES_QUEUE")
	if err != nil {
		logger.Error("invalid queue config", "error", err)
		os.Exit(2)
	}
	workflowCfg, err := workflow.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid workflow config", "error", err)
		os.Exit(2)
	}
	projectionCfg, err := projection.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid projection config", "error", err)
		os.Exit(2)
	}
	archiveEnabled, err := env.Bool("UNICORN_DLQ_ARCHIVE_ENABLED", false)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()
	if dbCfg.AutoMigrate {
		if err := pgrepo.RunMigrations(ctx, db); err != nil {
			logger.Error("migrations failed", "error", err)
			os.Exit(1)
		}
	}

	projectionDB, err := projection.Open(ctx, projectionCfg)
	if err != nil {
		logger.Error("projection database unavailable", "error", err)
		os.Exit(1)
	}
	projections := projection.NewStore(projectionDB)

	messages := queue.NewStore(db)
	engine, err := workflow.New(workflowCfg, messages)
	if err != nil {
		logger.Error("invalid workflow config", "error", err)
		os.Exit(2)
	}
	registry := tokens.New(pgrepo.NewContractStore(db), engine, logger.With("component", "token_registry"))
	prop := propagator.New(projections, registry, logger.With("component", "status_propagator"))

	consumer := queue.NewConsumer(logger, messages, queue.QueueContractStatusChanged, dispatch.StatusChanged(prop), queueCfg)
	if archiveEnabled {
		storeCfg, err := objectstore.ConfigFromEnv()
		if err != nil {
			logger.Error("invalid object store config", "error", err)
			os.Exit(2)
		}
		client, err := objectstore.NewMinIOClient(storeCfg)
		if err != nil {
			logger.Error("object store unavailable", "error", err)
			os.Exit(1)
		}
		if err := objectstore.CheckBucket(ctx, client, storeCfg); err != nil {
			logger.Error("object store unavailable", "error", err)
			os.Exit(1)
		}
		archive, err := objectstore.NewDeadLetterArchive(client, storeCfg.BucketDeadLetters)
		if err != nil {
			logger.Error("invalid object store config", "error", err)
			os.Exit(2)
		}
		consumer.WithArchive(archive)
	}

	router := chi.NewRouter()
	router.Get("/healthz", httpserver.Healthz("properties"))
	router.Get("/readyz", httpserver.ReadyzWithChecks(
		"properties",
		httpserver.ReadinessCheck{
			Name: "postgres",
			Check: func(ctx context.Context) error {
				checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
				defer cancel()
				return db.PingContext(checkCtx)
			},
		},
		httpserver.ReadinessCheck{
			Name: "projection",
			Check: func(ctx context.Context) error {
				checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
				defer cancel()
				return projections.Ping(checkCtx)
			},
		},
	))
	newPropertiesAPI(logger, registry, projections).register(router)

	cfg := httpserver.Config{
		Service:         "properties",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Run(gctx) })
	g.Go(func() error {
		err := httpserver.Run(gctx, logger, cfg, httpserver.Wrap(logger, router))
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
