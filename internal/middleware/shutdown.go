package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Draining reports whether the process is shutting down
type Draining interface {
	IsShuttingDown() bool
}

// DrainingFunc adapts a function to Draining
type DrainingFunc func() bool

// IsShuttingDown calls f
func (f DrainingFunc) IsShuttingDown() bool { return f() }

// ShutdownMiddleware rejects new requests once shutdown has started. Health
// checks report the shutdown instead so load balancers stop routing here.
func ShutdownMiddleware(d Draining) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !d.IsShuttingDown() {
				return next(c)
			}

			if c.Path() == "/health" {
				return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
					"status":  "shutting_down",
					"healthy": false,
				})
			}
			return echo.NewHTTPError(http.StatusServiceUnavailable, "service is shutting down")
		}
	}
}
