package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iamconsole/backend-go/internal/client"
	"github.com/iamconsole/backend-go/internal/middleware"
	"github.com/iamconsole/backend-go/internal/models"
	"github.com/iamconsole/backend-go/internal/responses"
	"github.com/iamconsole/backend-go/internal/userstore"
)

// SessionStore opens and tracks edit sessions
type SessionStore interface {
	Open(ctx context.Context, userstoreID string) (*userstore.Session, error)
	Get(id string) (*userstore.Session, error)
	Close(id string) error
}

// AlertFeed exposes the alerts of an edit session
type AlertFeed interface {
	Alerts(sessionID string) []models.Alert
	Subscribe(c echo.Context, sessionID string) error
}

// OpenSessionResponse is returned when an edit session starts
type OpenSessionResponse struct {
	SessionID string          `json:"session_id"`
	View      models.FormView `json:"view"`
}

// ShowMoreResponse is returned by the show-more toggle
type ShowMoreResponse struct {
	ShowMore bool            `json:"show_more"`
	View     models.FormView `json:"view"`
}

// AlertsMeta describes an alert backlog response
type AlertsMeta struct {
	Count int `json:"count"`
}

// UpdateValuesRequest carries edited form values
type UpdateValuesRequest struct {
	Values map[string]string `json:"values" validate:"required,dive,keys,propname,endkeys"`
}

// UpdateSQLRequest carries an edited SQL statement
type UpdateSQLRequest struct {
	Value string `json:"value"`
}

// SessionHandler serves the connection details editor
type SessionHandler struct {
	store  SessionStore
	alerts AlertFeed
	logger *slog.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(store SessionStore, alerts AlertFeed, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandler{store: store, alerts: alerts, logger: logger}
}

// Open handles POST /api/userstores/:id/sessions
func (h *SessionHandler) Open(c echo.Context) error {
	userstoreID := c.Param("id")
	if userstoreID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "userstore id is required")
	}

	session, err := h.store.Open(c.Request().Context(), userstoreID)
	if err != nil {
		h.logger.WarnContext(c.Request().Context(), "failed to open edit session",
			"userstore", userstoreID,
			"operator", middleware.Operator(c),
			"error", err,
		)
		if client.IsNotFound(err) {
			return echo.NewHTTPError(http.StatusNotFound, "userstore not found").SetInternal(err)
		}
		return echo.NewHTTPError(http.StatusBadGateway, "failed to load userstore").SetInternal(err)
	}

	return responses.Created(c, "Edit session opened", OpenSessionResponse{
		SessionID: session.ID,
		View:      session.View(),
	})
}

// View handles GET /api/sessions/:sid
func (h *SessionHandler) View(c echo.Context) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}
	return responses.Success(c, "", session.View())
}

// UpdateValues handles PUT /api/sessions/:sid/values
func (h *SessionHandler) UpdateValues(c echo.Context) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}

	var req UpdateValuesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := session.SetFormValues(req.Values); err != nil {
		return editError(err)
	}
	return responses.Success(c, "", session.View())
}

// UpdateSQL handles PUT /api/sessions/:sid/sql/:name
func (h *SessionHandler) UpdateSQL(c echo.Context) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}

	var req UpdateSQLRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	if err := session.SetSQL(c.Param("name"), req.Value); err != nil {
		return editError(err)
	}
	return responses.Success(c, "", session.View())
}

// ToggleShowMore handles POST /api/sessions/:sid/show-more
func (h *SessionHandler) ToggleShowMore(c echo.Context) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}

	showMore := session.ToggleShowMore()
	return responses.Success(c, "", ShowMoreResponse{ShowMore: showMore, View: session.View()})
}

// TestConnection handles POST /api/sessions/:sid/test. Backend failures are
// reported in the outcome and as an alert, not as an HTTP error.
func (h *SessionHandler) TestConnection(c echo.Context) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}
	return responses.Success(c, "", session.TestConnection(c.Request().Context()))
}

// Submit handles POST /api/sessions/:sid/submit
func (h *SessionHandler) Submit(c echo.Context) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}

	result, err := session.Submit(c.Request().Context())
	if err != nil {
		return editError(err)
	}

	h.logger.InfoContext(c.Request().Context(), "userstore patch submitted",
		"session", session.ID,
		"userstore", session.UserstoreID,
		"operator", middleware.Operator(c),
		"operations", len(result.Operations),
		"updated", result.Updated,
	)
	return responses.Success(c, result.Alert.Message, result)
}

// PreviewPatch handles GET /api/sessions/:sid/patch
func (h *SessionHandler) PreviewPatch(c echo.Context) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}

	ops, err := session.Preview()
	if err != nil {
		return editError(err)
	}
	return responses.Success(c, "", ops)
}

// Alerts handles GET /api/sessions/:sid/alerts
func (h *SessionHandler) Alerts(c echo.Context) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}
	alerts := h.alerts.Alerts(session.ID)
	return responses.SuccessWithMeta(c, "", alerts, AlertsMeta{Count: len(alerts)})
}

// Subscribe handles GET /api/sessions/:sid/alerts/ws
func (h *SessionHandler) Subscribe(c echo.Context) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}
	return h.alerts.Subscribe(c, session.ID)
}

// Close handles DELETE /api/sessions/:sid
func (h *SessionHandler) Close(c echo.Context) error {
	if err := h.store.Close(c.Param("sid")); err != nil {
		return sessionError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *SessionHandler) session(c echo.Context) (*userstore.Session, error) {
	session, err := h.store.Get(c.Param("sid"))
	if err != nil {
		return nil, sessionError(err)
	}
	return session, nil
}

func sessionError(err error) error {
	if errors.Is(err, userstore.ErrSessionNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return err
}

// editError maps editor validation failures to 400 responses
func editError(err error) error {
	switch {
	case errors.Is(err, userstore.ErrMissingRequired),
		errors.Is(err, userstore.ErrUnknownProperty),
		errors.Is(err, userstore.ErrNotSQLProperty):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	default:
		return err
	}
}
