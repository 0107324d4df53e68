package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamconsole/backend-go/internal/client"
	"github.com/iamconsole/backend-go/internal/models"
	"github.com/iamconsole/backend-go/internal/notify"
	"github.com/iamconsole/backend-go/internal/userstore"
)

type viewEnvelope struct {
	Data models.FormView `json:"data"`
}

func TestSessionHandler_Open(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/userstores/dXNlcnN0b3JlLTE/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Status string              `json:"status"`
		Data   OpenSessionResponse `json:"data"`
	}
	decode(t, rec, &resp)

	assert.Equal(t, "success", resp.Status)
	assert.NotEmpty(t, resp.Data.SessionID)
	assert.Equal(t, "dXNlcnN0b3JlLTE", resp.Data.View.UserstoreID)
	require.Len(t, resp.Data.View.Required, 4)
	assert.Equal(t, models.FieldTypePassword, resp.Data.View.Required[2].Type)
	assert.Nil(t, resp.Data.View.Required[2].Value)
	assert.False(t, resp.Data.View.ShowMore)
	assert.True(t, resp.Data.View.HasOptional)
	assert.Equal(t, "bolt", resp.Data.View.TestButton.Icon)
	assert.Equal(t, 1, env.store.Len())
}

func TestSessionHandler_OpenErrors(t *testing.T) {
	tests := []struct {
		name           string
		fetchErr       error
		expectedStatus int
		expectedType   string
	}{
		{
			name:           "unknown userstore",
			fetchErr:       &client.APIError{StatusCode: http.StatusNotFound, Message: "Resource not found"},
			expectedStatus: http.StatusNotFound,
			expectedType:   "not_found",
		},
		{
			name:           "identity server unavailable",
			fetchErr:       &client.APIError{StatusCode: http.StatusServiceUnavailable},
			expectedStatus: http.StatusBadGateway,
			expectedType:   "bad_gateway",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.identity.fetchErr = tt.fetchErr

			rec := env.do(t, http.MethodPost, "/api/userstores/missing/sessions", "")

			assert.Equal(t, tt.expectedStatus, rec.Code)
			var p problem
			decode(t, rec, &p)
			assert.Equal(t, tt.expectedType, p.Type)
			assert.Equal(t, 0, env.store.Len())
		})
	}
}

func TestSessionHandler_UnknownSession(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/sessions/nope", "/api/sessions/nope/patch", "/api/sessions/nope/alerts"} {
		rec := env.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
	rec := env.do(t, http.MethodDelete, "/api/sessions/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionHandler_UpdateValues(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		expectedStatus int
		expectedDetail string
	}{
		{
			name:           "valid edit",
			body:           `{"values":{"url":"jdbc:mysql://other:3306/users","password":"s3cret"}}`,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unknown property",
			body:           `{"values":{"Bogus":"x"}}`,
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "unknown property: Bogus",
		},
		{
			name:           "sql property through values",
			body:           `{"values":{"SelectUserSQL":"SELECT 1"}}`,
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "unknown property: SelectUserSQL",
		},
		{
			name:           "invalid property name",
			body:           `{"values":{"a/b":"x"}}`,
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "invalid property name",
		},
		{
			name:           "missing values",
			body:           `{}`,
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "values is required",
		},
		{
			name:           "malformed body",
			body:           `{"values":`,
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "Invalid request format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			sid := env.open(t)

			rec := env.do(t, http.MethodPut, "/api/sessions/"+sid+"/values", tt.body)
			require.Equal(t, tt.expectedStatus, rec.Code, rec.Body.String())

			if tt.expectedStatus != http.StatusOK {
				var p problem
				decode(t, rec, &p)
				assert.Equal(t, "validation_error", p.Type)
				assert.Contains(t, p.Detail, tt.expectedDetail)
				return
			}

			var resp viewEnvelope
			decode(t, rec, &resp)
			assert.Equal(t, "jdbc:mysql://other:3306/users", *resp.Data.Required[0].Value)
			assert.Nil(t, resp.Data.Required[2].Value, "password is never echoed")
		})
	}
}

func TestSessionHandler_EditFlowAndSubmit(t *testing.T) {
	env := newTestEnv(t)
	sid := env.open(t)
	base := "/api/sessions/" + sid

	// Password has no pre-filled value, so the patch cannot be built yet
	rec := env.do(t, http.MethodGet, base+"/patch", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var p problem
	decode(t, rec, &p)
	assert.Contains(t, p.Detail, "Connection Password")

	rec = env.do(t, http.MethodPost, base+"/submit", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.identity.patches, "validation failures never reach the endpoint")

	rec = env.do(t, http.MethodPut, base+"/values", `{"values":{"password":"s3cret"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// SQL edits are rejected for non SQL properties
	rec = env.do(t, http.MethodPut, base+"/sql/url", `{"value":"x"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, base+"/sql/SelectUserSQL", `{"value":"SELECT UM_USER_NAME FROM UM_USER"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, base+"/show-more", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var toggled struct {
		Data ShowMoreResponse `json:"data"`
	}
	decode(t, rec, &toggled)
	assert.True(t, toggled.Data.ShowMore)
	require.Len(t, toggled.Data.View.SQL, 2)
	assert.Equal(t, "DeleteUserSQL", toggled.Data.View.SQL[0].Name)
	assert.Equal(t, "SELECT UM_USER_NAME FROM UM_USER", toggled.Data.View.SQL[1].Value)

	rec = env.do(t, http.MethodGet, base+"/patch", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var preview struct {
		Data []models.PatchOperation `json:"data"`
	}
	decode(t, rec, &preview)
	require.Len(t, preview.Data, 7)
	assert.Equal(t, "/properties/password", preview.Data[2].Path)
	assert.Equal(t, "s3cret", preview.Data[2].Value)
	assert.Equal(t, "/properties/ReadOnly", preview.Data[4].Path)
	assert.Equal(t, "/properties/DeleteUserSQL", preview.Data[5].Path)
	assert.Equal(t, "SELECT UM_USER_NAME FROM UM_USER", preview.Data[6].Value)

	rec = env.do(t, http.MethodPost, base+"/submit", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var submitted struct {
		Message string                  `json:"message"`
		Data    userstore.SubmitResult `json:"data"`
	}
	decode(t, rec, &submitted)
	assert.True(t, submitted.Data.Updated)
	assert.Equal(t, "Userstore updated successfully!", submitted.Message)
	require.Len(t, env.identity.patches, 1)
	assert.Equal(t, preview.Data, env.identity.patches[0])
	assert.Equal(t, 2, env.identity.fetches, "refetched once after the update")

	// Edits are discarded after a successful submit
	rec = env.do(t, http.MethodGet, base, "")
	var view viewEnvelope
	decode(t, rec, &view)
	assert.False(t, view.Data.ShowMore)

	rec = env.do(t, http.MethodGet, base+"/alerts", "")
	var alerts struct {
		Data []models.Alert `json:"data"`
		Meta AlertsMeta     `json:"meta"`
	}
	decode(t, rec, &alerts)
	require.Len(t, alerts.Data, 1)
	assert.Equal(t, models.AlertLevelSuccess, alerts.Data[0].Level)
	assert.Equal(t, 1, alerts.Meta.Count)
}

func TestSessionHandler_SubmitFailureIsReportedAsAlert(t *testing.T) {
	env := newTestEnv(t)
	env.identity.patchErr = &client.APIError{StatusCode: http.StatusInternalServerError, Message: "Error while updating the userstore"}
	sid := env.open(t)

	env.do(t, http.MethodPut, "/api/sessions/"+sid+"/values", `{"values":{"password":"s3cret"}}`)
	rec := env.do(t, http.MethodPost, "/api/sessions/"+sid+"/submit", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data userstore.SubmitResult `json:"data"`
	}
	decode(t, rec, &resp)
	assert.False(t, resp.Data.Updated)
	assert.Equal(t, models.AlertLevelError, resp.Data.Alert.Level)
	assert.Equal(t, "Error while updating the userstore", resp.Data.Alert.Message)
}

func TestSessionHandler_TestConnection(t *testing.T) {
	tests := []struct {
		name           string
		testErr        error
		expectedStatus models.ConnectionTestStatus
		expectedLevel  models.AlertLevel
		expectedDesc   string
	}{
		{
			name:           "healthy connection",
			expectedStatus: models.ConnectionTestSucceeded,
			expectedLevel:  models.AlertLevelSuccess,
			expectedDesc:   "The connection is healthy",
		},
		{
			name:           "rejected connection",
			testErr:        &client.APIError{StatusCode: http.StatusBadRequest, Message: "Invalid request", Description: "Access denied for user 'admin'"},
			expectedStatus: models.ConnectionTestFailed,
			expectedLevel:  models.AlertLevelError,
			expectedDesc:   "Access denied for user 'admin'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.identity.testErr = tt.testErr
			sid := env.open(t)

			env.do(t, http.MethodPut, "/api/sessions/"+sid+"/values", `{"values":{"password":"typed"}}`)
			rec := env.do(t, http.MethodPost, "/api/sessions/"+sid+"/test", "")
			require.Equal(t, http.StatusOK, rec.Code, "backend failures are not HTTP errors")

			var resp struct {
				Data userstore.TestOutcome `json:"data"`
			}
			decode(t, rec, &resp)
			assert.Equal(t, tt.expectedStatus, resp.Data.Status)
			assert.True(t, resp.Data.Applied)
			require.NotNil(t, resp.Data.Alert)
			assert.Equal(t, tt.expectedLevel, resp.Data.Alert.Level)
			assert.Equal(t, tt.expectedDesc, resp.Data.Alert.Description)

			require.Len(t, env.identity.tests, 1)
			assert.Equal(t, "typed", env.identity.tests[0].ConnectionPassword)
			assert.Equal(t, "jdbc:mysql://db:3306/users", env.identity.tests[0].ConnectionURL)

			assert.Len(t, env.dispatcher.Alerts(sid), 1)
		})
	}
}

func TestSessionHandler_CloseReleasesAlerts(t *testing.T) {
	env := newTestEnv(t)
	sid := env.open(t)
	env.do(t, http.MethodPost, "/api/sessions/"+sid+"/test", "")
	require.NotEmpty(t, env.dispatcher.Alerts(sid))

	rec := env.do(t, http.MethodDelete, "/api/sessions/"+sid, "")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, env.dispatcher.Alerts(sid))
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/sessions/"+sid, "").Code)
}

func TestSessionHandler_Subscribe(t *testing.T) {
	env := newTestEnv(t)
	sid := env.open(t)
	env.do(t, http.MethodPost, "/api/sessions/"+sid+"/test", "")

	server := httptest.NewServer(env.echo)
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/sessions/"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"unknown/alerts/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+sid+"/alerts/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg notify.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, notify.MessageTypeAlert, msg.Type)
	assert.Equal(t, sid, msg.SessionID)
}
