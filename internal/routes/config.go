package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/iamconsole/backend-go/internal/appconfig"
	"github.com/iamconsole/backend-go/internal/handlers"
)

// SetupConfigRoutes sets up the console configuration routes
func SetupConfigRoutes(api *echo.Group, accessor *appconfig.Accessor) {
	configHandler := handlers.NewConfigHandler(accessor)

	configGroup := api.Group("/config")
	configGroup.GET("/deployment", configHandler.Deployment)
	configGroup.GET("/endpoints", configHandler.Endpoints)
	configGroup.GET("/ui", configHandler.UI)
	configGroup.GET("/i18n", configHandler.I18n)
}
