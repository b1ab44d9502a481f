package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/maintenance-dispatch/internal/api/http"
	"github.com/spec-kit/maintenance-dispatch/internal/api/http/handlers"
	"github.com/spec-kit/maintenance-dispatch/internal/classifier"
	"github.com/spec-kit/maintenance-dispatch/internal/config"
	"github.com/spec-kit/maintenance-dispatch/internal/docstore"
	"github.com/spec-kit/maintenance-dispatch/internal/domain"
	"github.com/spec-kit/maintenance-dispatch/internal/events"
	"github.com/spec-kit/maintenance-dispatch/internal/matcher"
	"github.com/spec-kit/maintenance-dispatch/internal/notify"
	"github.com/spec-kit/maintenance-dispatch/internal/observability"
	"github.com/spec-kit/maintenance-dispatch/internal/persistence"
	"github.com/spec-kit/maintenance-dispatch/internal/service"
	"github.com/spec-kit/maintenance-dispatch/internal/worker"
	"github.com/spec-kit/maintenance-dispatch/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	gateway, err := classifier.NewGateway(ctx, cfg.Classifier)
	if err != nil {
		logger.Fatal("failed to init classifier", zap.Error(err))
	}

	metrics := observability.NewMetrics()

	var store docstore.Store
	var transport *events.StreamTransport
	if pool := pg.PoolHandle(); pool != nil {
		pgStore := docstore.NewPostgresStore(pool)
		transport = events.NewStreamTransport(redis.Client, cfg.Stream, logger)
		pgStore.SetChangeHook(func(ctx context.Context, before, after *docstore.Document, id string) {
			if after == nil || after.Collection != domain.CollectionTickets {
				return
			}
			if err := transport.Publish(ctx, events.FromSnapshots(before, after, id)); err != nil {
				logger.Error("publish change event failed",
					zap.String("doc_id", id), zap.Error(err))
			}
		})
		store = pgStore
	} else {
		logger.Warn("running with in-memory store")
		store = docstore.NewMemoryStore(logger)
	}

	notifier := notify.NewDispatcher(notify.Dependencies{
		Store:   store,
		Email:   notify.NewEmailSender(cfg.Notify),
		Push:    notify.NewFCMClient(cfg.Notify),
		Logger:  logger,
		Metrics: metrics,
	})

	controller := workflow.NewController(workflow.Dependencies{
		Store:      store,
		Classifier: gateway,
		Matcher:    matcher.New(store),
		Notifier:   notifier,
		Logger:     logger,
		Metrics:    metrics,
	})

	if transport != nil {
		worker.StartWorkflowConsumer(ctx, transport, controller, logger)
	} else if memStore, ok := store.(*docstore.MemoryStore); ok {
		bus := events.NewInMemoryBus(logger)
		bus.Subscribe(domain.CollectionTickets, controller.Handler())
		memStore.RegisterTrigger(domain.CollectionTickets, func(ctx context.Context, before, after *docstore.Document, id string) error {
			return bus.Publish(ctx, events.FromSnapshots(before, after, id))
		})
	}

	intake := service.NewIntakeService(store)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis)
	ticketsHandler := handlers.NewTicketsHandler(intake)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:  healthHandler,
		Tickets: ticketsHandler,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
