package handlers

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iamconsole/backend-go/internal/appconfig"
	"github.com/iamconsole/backend-go/internal/responses"
)

// ConfigHandler serves the console configuration projections
type ConfigHandler struct {
	accessor *appconfig.Accessor
	now      func() time.Time
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(accessor *appconfig.Accessor) *ConfigHandler {
	return &ConfigHandler{accessor: accessor, now: time.Now}
}

// Deployment handles GET /api/config/deployment
func (h *ConfigHandler) Deployment(c echo.Context) error {
	return responses.Success(c, "", h.accessor.Deployment())
}

// Endpoints handles GET /api/config/endpoints
func (h *ConfigHandler) Endpoints(c echo.Context) error {
	return responses.Success(c, "", h.accessor.ServiceEndpoints())
}

// UI handles GET /api/config/ui
func (h *ConfigHandler) UI(c echo.Context) error {
	return responses.Success(c, "", h.accessor.UI(h.now()))
}

// I18n handles GET /api/config/i18n
func (h *ConfigHandler) I18n(c echo.Context) error {
	return responses.Success(c, "", h.accessor.I18n())
}
