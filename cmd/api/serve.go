package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/iamconsole/backend-go/internal/appconfig"
	"github.com/iamconsole/backend-go/internal/auth"
	"github.com/iamconsole/backend-go/internal/client"
	"github.com/iamconsole/backend-go/internal/config"
	"github.com/iamconsole/backend-go/internal/handlers"
	"github.com/iamconsole/backend-go/internal/logging"
	"github.com/iamconsole/backend-go/internal/metrics"
	"github.com/iamconsole/backend-go/internal/middleware"
	"github.com/iamconsole/backend-go/internal/notify"
	"github.com/iamconsole/backend-go/internal/routes"
	"github.com/iamconsole/backend-go/internal/server"
	"github.com/iamconsole/backend-go/internal/services"
	"github.com/iamconsole/backend-go/internal/userstore"
)

func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the HTTP API",
		Action: func(ctx context.Context, command *cli.Command) error {
			cfg, err := config.Load(command.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(cfg.Log)
	slog.SetDefault(logger)

	collector, err := metrics.New()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	userstores, err := newUserstoreClient(cfg, logger, collector)
	if err != nil {
		return err
	}

	var tester userstore.ConnectionTester = userstores
	if cfg.Identity.ConnectionTest == config.ConnectionTestDirect {
		tester = services.NewDatabaseService(cfg.Identity.DirectTimeout, logger)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := notify.NewHub(cfg.WebSocket.PingPeriod, cfg.WebSocket.PongWait, logger)
	go hub.Run(context.Background())

	dispatcher := notify.NewDispatcher(hub, notify.Options{
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		Backlog:         cfg.WebSocket.AlertBacklog,
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		Logger:          logger,
		Observer:        collector,
	})

	store := userstore.NewStore(userstore.Dependencies{
		Tester:   tester,
		Patcher:  userstores,
		Fetcher:  userstores,
		Alerts:   dispatcher,
		Observer: collector,
		Logger:   logger,
	}, userstores, cfg.Session.IdleTimeout)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go store.Run(sweepCtx, cfg.Session.SweepInterval)

	if err := collector.RegisterGauge("edit_sessions", "Open user store edit sessions", func() float64 {
		return float64(store.Len())
	}); err != nil {
		return err
	}
	if err := collector.RegisterGauge("websocket_connections", "Connected alert subscribers", func() float64 {
		return float64(hub.ConnectionCount())
	}); err != nil {
		return err
	}

	var jm *auth.JWTManager
	if cfg.Auth.SecretKey != "" {
		jm = auth.NewJWTManager(cfg.Auth.SecretKey, cfg.Auth.Issuer, 0)
	} else {
		logger.Warn("auth.secretkey is empty, the API is not protected")
	}

	var sm *server.ShutdownManager
	draining := middleware.DrainingFunc(func() bool { return sm.IsShuttingDown() })

	e := routes.NewRouter(routes.Options{
		Config:   cfg,
		Accessor: appconfig.New(cfg),
		Sessions: store,
		Alerts:   dispatcher,
		Health:   handlers.NewHealthHandler(version, cfg.Server.Env, store.Len, hub.ConnectionCount),
		JWT:      jm,
		Metrics:  collector,
		Draining: draining,
		Logger:   logger,
	})

	sm = server.NewShutdownManager(e, logger)
	sm.SetTimeout(cfg.Server.ShutdownTimeout)
	sm.AddShutdownHook("alert hub", hub.Shutdown)
	sm.AddShutdownHook("edit sessions", func(context.Context) error {
		stopSweep()
		return nil
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			"address", cfg.Address(),
			"env", cfg.Server.Env,
			"identity_server", cfg.Deployment.ServerOriginWithTenant,
			"connection_test", cfg.Identity.ConnectionTest,
		)
		if err := e.Start(cfg.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	return sm.WaitForShutdown(ctx)
}

func newUserstoreClient(cfg *config.Config, logger *slog.Logger, collector *metrics.Collector) (*client.UserstoreClient, error) {
	retry := client.DefaultRetryConfig()
	retry.MaxRetries = cfg.Identity.MaxRetries

	rest, err := client.NewRestClient(client.Options{
		BaseURL:     cfg.Deployment.ServerOriginWithTenant,
		AccessToken: cfg.Identity.AccessToken,
		Username:    cfg.Identity.Username,
		Password:    cfg.Identity.Password,
		Timeout:     cfg.Identity.Timeout,
		Retry:       retry,
		Logger:      logger,
		Observer:    collector,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create identity server client: %w", err)
	}
	return client.NewUserstoreClient(rest), nil
}
