package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/vestlabs/vesting-service/internal/api/http"
	"github.com/vestlabs/vesting-service/internal/api/http/handlers"
	"github.com/vestlabs/vesting-service/internal/auth"
	"github.com/vestlabs/vesting-service/internal/cache"
	"github.com/vestlabs/vesting-service/internal/config"
	"github.com/vestlabs/vesting-service/internal/events"
	"github.com/vestlabs/vesting-service/internal/idempotency"
	"github.com/vestlabs/vesting-service/internal/observability"
	"github.com/vestlabs/vesting-service/internal/persistence"
	"github.com/vestlabs/vesting-service/internal/service"
	"github.com/vestlabs/vesting-service/internal/treasury"
	"github.com/vestlabs/vesting-service/internal/worker"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := persistence.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer closeStore()

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()
	dispatcher := events.NewInMemoryDispatcher()
	service.NewNotificationService(dispatcher, logger, cfg.Notification).RegisterHandlers()

	vesting := service.NewVestingService(service.VestingDependencies{
		Store:        store,
		Guard:        auth.NewGuard(),
		Treasury:     newTreasury(cfg.Treasury, logger),
		Dispatcher:   dispatcher,
		Logger:       logger,
		Metrics:      metrics,
		Clock:        clock,
		PendingGrace: cfg.Reconcile.PendingGrace(),
		MaxAttempts:  cfg.Reconcile.MaxAttempts,
	})

	probes := map[string]handlers.Pinger{"store": store}
	var idem *idempotency.Middleware
	if client := redis.ClientHandle(); client != nil {
		probes["redis"] = redis
		entries := cache.New(cache.Options[idempotency.Entry]{Client: client, Prefix: "vesting:idempotency"})
		idem = idempotency.New(entries, cfg.Idempotency.TTL(), logger)
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, probes),
		Pools:          handlers.NewPoolsHandler(vesting),
		Grants:         handlers.NewGrantsHandler(vesting, clock),
		Transfers:      handlers.NewTransfersHandler(vesting),
		Accounts:       handlers.NewAccountsHandler(vesting),
		AuthMiddleware: auth.NewAuthMiddleware(auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)),
		Idempotency:    idem,
		Metrics:        adaptor.HTTPHandler(metrics.Handler()),
	})

	reconciler := worker.NewReconcileWorker(vesting, clock, cfg.Reconcile.Interval(), logger)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()), zap.String("store", cfg.Store.Driver))
		return app.Listen(cfg.App.Addr())
	})
	eg.Go(func() error {
		return reconciler.Run(ctx)
	})
	eg.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("service stopped with error", zap.Error(err))
	}
}

func newTreasury(cfg config.TreasuryConfig, logger *zap.Logger) treasury.Treasury {
	if cfg.WebhookURL == "" {
		logger.Warn("TREASURY_WEBHOOK_URL not set; transfers are only logged")
		return treasury.NewLogTreasury(logger)
	}
	return treasury.NewWebhookTreasury(treasury.WebhookConfig{
		URL:          cfg.WebhookURL,
		RetryMax:     cfg.RetryMax,
		RetryWaitMin: 250 * time.Millisecond,
		RetryWaitMax: 5 * time.Second,
		Timeout:      cfg.Timeout(),
	}, logger)
}
