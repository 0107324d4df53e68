package routes

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/iamconsole/backend-go/internal/handlers"
)

// SetupSessionRoutes sets up the connection details editor routes
func SetupSessionRoutes(api *echo.Group, store handlers.SessionStore, alerts handlers.AlertFeed, logger *slog.Logger) {
	sessionHandler := handlers.NewSessionHandler(store, alerts, logger)

	api.POST("/userstores/:id/sessions", sessionHandler.Open)

	sessions := api.Group("/sessions/:sid")
	sessions.GET("", sessionHandler.View)
	sessions.DELETE("", sessionHandler.Close)
	sessions.PUT("/values", sessionHandler.UpdateValues)
	sessions.PUT("/sql/:name", sessionHandler.UpdateSQL)
	sessions.POST("/show-more", sessionHandler.ToggleShowMore)
	sessions.POST("/test", sessionHandler.TestConnection)
	sessions.POST("/submit", sessionHandler.Submit)
	sessions.GET("/patch", sessionHandler.PreviewPatch)

	// Alert backlog and live stream
	sessions.GET("/alerts", sessionHandler.Alerts)
	sessions.GET("/alerts/ws", sessionHandler.Subscribe)
}
