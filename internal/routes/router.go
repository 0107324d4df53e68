package routes

import (
	"log/slog"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/iamconsole/backend-go/internal/appconfig"
	"github.com/iamconsole/backend-go/internal/auth"
	"github.com/iamconsole/backend-go/internal/config"
	"github.com/iamconsole/backend-go/internal/handlers"
	"github.com/iamconsole/backend-go/internal/metrics"
	"github.com/iamconsole/backend-go/internal/middleware"
	"github.com/iamconsole/backend-go/internal/validation"
)

// Options holds everything the router wires into handlers
type Options struct {
	Config   *config.Config
	Accessor *appconfig.Accessor
	Sessions handlers.SessionStore
	Alerts   handlers.AlertFeed
	Health   *handlers.HealthHandler

	// JWT protects /api; nil leaves it open
	JWT *auth.JWTManager
	// Metrics is optional
	Metrics *metrics.Collector
	// Draining is optional
	Draining middleware.Draining

	Logger *slog.Logger
}

// NewRouter builds the echo instance with middleware and every route
func NewRouter(opts Options) *echo.Echo {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = opts.Config.IsDevelopment()
	e.Validator = validation.NewValidator()
	e.HTTPErrorHandler = middleware.ProblemErrorHandler(opts.Logger)

	setupMiddleware(e, opts)

	if opts.Health != nil {
		e.GET("/health", opts.Health.Health)
	}
	if opts.Metrics != nil && opts.Config.Monitoring.MetricsEnabled {
		e.GET(opts.Config.Monitoring.MetricsPath, echo.WrapHandler(opts.Metrics.Handler()))
	}

	api := e.Group("/api", middleware.JWT(opts.JWT))
	SetupConfigRoutes(api, opts.Accessor)
	SetupSessionRoutes(api, opts.Sessions, opts.Alerts, opts.Logger)

	return e
}

func setupMiddleware(e *echo.Echo, opts Options) {
	logger := opts.Logger

	// Access log
	e.Use(echoMiddleware.RequestLoggerWithConfig(echoMiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echoMiddleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"path", v.URIPath,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			logger.LogAttrs(c.Request().Context(), accessLevel(v.Status), "request", slog.Group("http", attrs...))
			return nil
		},
	}))

	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.RequestID())

	if opts.Draining != nil {
		e.Use(middleware.ShutdownMiddleware(opts.Draining))
	}
	if opts.Metrics != nil {
		e.Use(opts.Metrics.Middleware())
	}

	// The alert socket is long lived and needs the raw connection
	timeout := opts.Config.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	e.Use(echoMiddleware.TimeoutWithConfig(echoMiddleware.TimeoutConfig{
		Skipper: isWebSocket,
		Timeout: timeout,
	}))

	e.Use(middleware.CORS(opts.Config.CORS))
	e.Use(middleware.SecurityHeaders())
}

func isWebSocket(c echo.Context) bool {
	return strings.HasSuffix(c.Path(), "/alerts/ws")
}

func accessLevel(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
