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
	"github.com/unicorn-labs/unicorn-go/internal/platform/scheduler"
	pgrepo "github.com/unicorn-labs/unicorn-go/internal/repo/postgres"
	"github.com/unicorn-labs/unicorn-go/internal/service/lifecycle"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("CONTRACTS_HTTP_ADDR", ":8080")
	shutdownTimeout, err := env.Duration("CONTRACTS_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	policyRaw, err := env.OneOf("CONTRACTS_DUPLICATE_CREATE", string(lifecycle.PolicyConflict), string(lifecycle.PolicyConflict), string(lifecycle.PolicyAccept))
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	policy, err := lifecycle.ParseDuplicatePolicy(policyRaw)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	routes, err := loadRoutes()
	if err != nil {
		logger.Error("invalid routes", "error", err)
		os.Exit(2)
	}
	queueCfg, err := queue.ConfigFromEnv("CONTRACTS_QUEUE")
	if err != nil {
		logger.Error("invalid queue config", "error", err)
		os.Exit(2)
	}
	purgeSchedule := env.String("UNICORN_DLQ_PURGE_SCHEDULE", "@every 1h")
	retention, err := env.Duration("UNICORN_DLQ_RETENTION", 7*24*time.Hour)
	if err != nil {
		logger.Error("invalid env", "error", err)
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

	contracts := pgrepo.NewContractStore(db)
	messages := queue.NewStore(db)

	svc := lifecycle.New(contracts,
		lifecycle.WithLogger(logger.With("component", "lifecycle")),
		lifecycle.WithDuplicatePolicy(policy),
	)
	consumer := queue.NewConsumer(
		logger,
		messages,
		queue.QueueContractRequests,
		dispatch.New(svc, routes, logger.With("component", "dispatcher")),
		queueCfg,
	)

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
		if err := objectstore.EnsureBucket(ctx, client, storeCfg); err != nil {
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

	jobs := scheduler.New(logger)
	if err := jobs.Add(purgeSchedule, "dead_letter_purge", scheduler.PurgeDeadLetters(logger, messages, retention, nil)); err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	router := chi.NewRouter()
	router.Get("/healthz", httpserver.Healthz("contracts"))
	router.Get("/readyz", httpserver.ReadyzWithChecks(
		"contracts",
		httpserver.ReadinessCheck{
			Name: "postgres",
			Check: func(ctx context.Context) error {
				checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
				defer cancel()
				return db.PingContext(checkCtx)
			},
		},
	))
	newContractsAPI(logger, messages, contracts).register(router)

	cfg := httpserver.Config{
		Service:         "contracts",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Run(gctx) })
	g.Go(func() error { return jobs.Run(gctx) })
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

func loadRoutes() (dispatch.Routes, error) {
	routes := dispatch.DefaultRoutes()
	if path := env.String("CONTRACTS_ROUTES_FILE", ""); path != "" {
		loaded, err := dispatch.LoadRoutes(path)
		if err != nil {
			return dispatch.Routes{}, err
		}
		routes = loaded
	}
	aliases, err := env.StringMap("CONTRACTS_OPERATION_ALIASES", nil)
	if err != nil {
		return dispatch.Routes{}, err
	}
	return routes.WithAliases(aliases)
}
