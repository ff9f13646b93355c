package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/sssheik1337/BESPILOTNIK-sub000/internal/api/http"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/api/http/handlers"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/auth"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/config"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/escalation"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/events"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/notify"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/observability"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/persistence"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/service"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/worker"
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

	store, err := persistence.OpenTicketStore(ctx, pg, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to open ticket store", zap.Error(err))
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)

	sinks := notify.MultiSink{notify.NewLogSink(logger)}
	var gate notify.AlertGate = notify.NewMemoryDeduplicator(nil)
	if redis.Enabled() {
		sinks = append(sinks, notify.NewRedisSink(redis.Client, cfg.Notification.Channel))
		gate = notify.NewRedisDeduplicator(redis.Client)
	}

	deps := service.Dependencies{
		Store:      store,
		Planner:    escalation.NewPlanner(cfg.Escalation),
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	}
	appealService := service.NewAppealService(deps)
	assignmentService := service.NewAssignmentService(deps)
	replacementService := service.NewReplacementService(deps)
	operatorService := service.NewOperatorService(store, cfg.Auth.BcryptCost, logger)
	deviceService := service.NewDeviceService(store, logger)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes, cfg.Auth.IntegrationTokenTTLMinutes)
	authService := service.NewAuthService(store, tokens)
	authMiddleware := auth.NewAuthMiddleware(tokens, store)

	switch {
	case cfg.Auth.BootstrapEnabled():
		if _, err := operatorService.EnsureOperator(ctx, service.CreateOperatorInput{
			ID:          cfg.Auth.BootstrapOperatorID,
			DisplayName: cfg.Auth.BootstrapOperatorID,
			Password:    cfg.Auth.BootstrapPassword,
			Privileged:  true,
		}); err != nil {
			logger.Fatal("failed to seed bootstrap operator", zap.Error(err))
		}
	case cfg.Auth.BootstrapOperatorID != "" || cfg.Auth.BootstrapPassword != "":
		logger.Warn("bootstrap operator skipped, set both AUTH_BOOTSTRAP_OPERATOR_ID and AUTH_BOOTSTRAP_PASSWORD")
	}

	notifications := service.NewNotificationService(service.NotificationDependencies{
		Dispatcher: dispatcher,
		Sink:       sinks,
		Gate:       gate,
		Operators:  store,
		Config:     cfg.Notification,
		Logger:     logger,
	})
	scheduler := escalation.NewScheduler(store, appealService, cfg.Escalation, logger, metrics, nil)
	stopWorkers := worker.Start(ctx, worker.Background{
		Notifications: notifications,
		Escalations:   scheduler,
		Logger:        logger,
	})

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  cfg.App.RequestTimeout(),
		WriteTimeout: cfg.App.RequestTimeout(),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, store, redis, metrics),
		Intake:         handlers.NewIntakeHandler(appealService, operatorService),
		Appeals:        handlers.NewAppealsHandler(appealService, assignmentService, replacementService),
		Operators:      handlers.NewOperatorsHandler(authService, operatorService),
		Devices:        handlers.NewDevicesHandler(deviceService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
	cancel()
	stopWorkers()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
