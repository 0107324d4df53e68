package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamconsole/backend-go/internal/appconfig"
	"github.com/iamconsole/backend-go/internal/auth"
	"github.com/iamconsole/backend-go/internal/config"
	"github.com/iamconsole/backend-go/internal/handlers"
	"github.com/iamconsole/backend-go/internal/metrics"
	"github.com/iamconsole/backend-go/internal/middleware"
	"github.com/iamconsole/backend-go/internal/models"
	"github.com/iamconsole/backend-go/internal/notify"
	"github.com/iamconsole/backend-go/internal/userstore"
)

type stubIdentity struct{}

func (stubIdentity) GetUserStore(_ context.Context, id string) (*models.Userstore, error) {
	return &models.Userstore{
		ID:       id,
		TypeName: "UniqueIDReadOnlyLDAPUserStoreManager",
		Properties: models.PropertySchema{
			Required: []models.Property{{Name: "ConnectionURL", Description: "Connection URL", Value: models.StringPtr("ldap://ldap:389")}},
		},
	}, nil
}

func (stubIdentity) TestConnection(context.Context, models.TestConnectionRequest) error { return nil }

func (stubIdentity) PatchUserStore(context.Context, string, []models.PatchOperation) error {
	return nil
}

type drain struct{ on atomic.Bool }

func (d *drain) IsShuttingDown() bool { return d.on.Load() }

type fixture struct {
	server  *httptest.Server
	jwt     *auth.JWTManager
	metrics *metrics.Collector
	drain   *drain
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := &config.Config{
		Server:     config.ServerConfig{Env: "test", RequestTimeout: 5 * time.Second},
		CORS:       config.CORSConfig{AllowedOrigins: []string{"https://console.example.com"}},
		Monitoring: config.MonitoringConfig{MetricsEnabled: true, MetricsPath: "/metrics"},
		Deployment: config.DeploymentConfig{ServerOriginWithTenant: "https://is.example.com"},
	}

	collector, err := metrics.New()
	require.NoError(t, err)

	hub := notify.NewHub(time.Second, 2*time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	dispatcher := notify.NewDispatcher(hub, notify.Options{Observer: collector})

	identity := stubIdentity{}
	store := userstore.NewStore(userstore.Dependencies{
		Tester:   identity,
		Patcher:  identity,
		Fetcher:  identity,
		Alerts:   dispatcher,
		Observer: collector,
	}, nil, time.Minute)

	jm := auth.NewJWTManager("router-secret", "iamconsole-api", time.Minute)
	d := &drain{}

	e := NewRouter(Options{
		Config:   cfg,
		Accessor: appconfig.New(cfg),
		Sessions: store,
		Alerts:   dispatcher,
		Health:   handlers.NewHealthHandler("test", cfg.Server.Env, store.Len, hub.ConnectionCount),
		JWT:      jm,
		Metrics:  collector,
		Draining: d,
	})

	server := httptest.NewServer(e)
	t.Cleanup(server.Close)
	return &fixture{server: server, jwt: jm, metrics: collector, drain: d}
}

func (f *fixture) request(t *testing.T, method, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) token(t *testing.T) string {
	t.Helper()
	token, err := f.jwt.GenerateAccessToken("admin", "carbon.super", nil)
	require.NoError(t, err)
	return token
}

func TestRouter_HealthIsPublic(t *testing.T) {
	f := newFixture(t)

	resp := f.request(t, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestRouter_APIRequiresToken(t *testing.T) {
	f := newFixture(t)

	resp := f.request(t, http.MethodGet, "/api/config/endpoints", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, middleware.ProblemContentType, resp.Header.Get("Content-Type"))

	var problem map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	assert.Equal(t, "unauthorized", problem["type"])
	assert.Equal(t, "/api/config/endpoints", problem["instance"])

	resp = f.request(t, http.MethodGet, "/api/config/endpoints", f.token(t))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data appconfig.ServiceEndpoints `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "https://is.example.com/api/server/v1/userstores", body.Data.UserStores)
}

func TestRouter_UnknownAPIRouteIsProblem(t *testing.T) {
	f := newFixture(t)

	resp := f.request(t, http.MethodGet, "/api/nothing/here", f.token(t))

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, middleware.ProblemContentType, resp.Header.Get("Content-Type"))
}

func TestRouter_SessionLifecycleAndMetrics(t *testing.T) {
	f := newFixture(t)
	token := f.token(t)

	resp := f.request(t, http.MethodPost, "/api/userstores/bGRhcA/sessions", token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var opened struct {
		Data handlers.OpenSessionResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&opened))
	sid := opened.Data.SessionID

	// Non-JDBC stores have nothing to test
	resp = f.request(t, http.MethodPost, "/api/sessions/"+sid+"/test", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var outcome struct {
		Data userstore.TestOutcome `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&outcome))
	assert.True(t, outcome.Data.Skipped)
	assert.Equal(t, models.ConnectionTestIdle, outcome.Data.Status)
	assert.Nil(t, outcome.Data.Alert)

	resp = f.request(t, http.MethodDelete, "/api/sessions/"+sid, token)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.request(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `iamconsole_connection_tests_total{outcome="skipped"} 1`)
	assert.Contains(t, string(body), `route="/api/sessions/:sid"`)
}

func TestRouter_WebSocketWithQueryToken(t *testing.T) {
	f := newFixture(t)
	token := f.token(t)

	resp := f.request(t, http.MethodPost, "/api/userstores/bGRhcA/sessions", token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var opened struct {
		Data handlers.OpenSessionResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&opened))

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/api/sessions/" + opened.Data.SessionID + "/alerts/ws"

	_, denied, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, denied)
	assert.Equal(t, http.StatusUnauthorized, denied.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+token, nil)
	require.NoError(t, err)
	conn.Close()
}

func TestRouter_CORSPreflight(t *testing.T) {
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodOptions, f.server.URL+"/api/sessions/abc/values", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://console.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://console.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRouter_Draining(t *testing.T) {
	f := newFixture(t)
	f.drain.on.Store(true)

	assert.Equal(t, http.StatusServiceUnavailable, f.request(t, http.MethodGet, "/health", "").StatusCode)
	assert.Equal(t, http.StatusServiceUnavailable, f.request(t, http.MethodGet, "/api/config/ui", f.token(t)).StatusCode)
}
