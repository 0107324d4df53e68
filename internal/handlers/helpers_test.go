package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/iamconsole/backend-go/internal/middleware"
	"github.com/iamconsole/backend-go/internal/models"
	"github.com/iamconsole/backend-go/internal/notify"
	"github.com/iamconsole/backend-go/internal/userstore"
	"github.com/iamconsole/backend-go/internal/validation"
)

// fakeIdentity stands in for the identity server client
type fakeIdentity struct {
	mu       sync.Mutex
	store    *models.Userstore
	fetchErr error
	testErr  error
	patchErr error
	tests    []models.TestConnectionRequest
	patches  [][]models.PatchOperation
	fetches  int
}

func (f *fakeIdentity) GetUserStore(_ context.Context, id string) (*models.Userstore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	copied := *f.store
	copied.ID = id
	return &copied, nil
}

func (f *fakeIdentity) TestConnection(_ context.Context, req models.TestConnectionRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tests = append(f.tests, req)
	return f.testErr
}

func (f *fakeIdentity) PatchUserStore(_ context.Context, _ string, ops []models.PatchOperation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, ops)
	return f.patchErr
}

func property(name, description, typ string, value *string) models.Property {
	p := models.Property{Name: name, Description: description, Value: value}
	if typ != "" {
		p.Attributes = []models.PropertyAttribute{{Name: "type", Value: typ}}
	}
	return p
}

func jdbcUserstore() *models.Userstore {
	return &models.Userstore{
		Name:     "PRIMARY-JDBC",
		TypeID:   "VW5pcXVlSURKREJDVXNlclN0b3JlTWFuYWdlcg",
		TypeName: "UniqueIDJDBCUserStoreManager",
		Properties: models.PropertySchema{
			Required: []models.Property{
				property("url", "Connection URL#The JDBC URL", "", models.StringPtr("jdbc:mysql://db:3306/users")),
				property("userName", "Connection Name#Database user", "", models.StringPtr("admin")),
				property("password", "Connection Password#Database password", "password", models.StringPtr("stored-secret")),
				property("driverName", "Driver Name#JDBC driver class", "", models.StringPtr("com.mysql.jdbc.Driver")),
			},
			Optional: models.OptionalProperties{
				NonSQL: []models.Property{
					property("ReadOnly", "Read-only#Mark store read-only", "boolean", models.StringPtr("false")),
				},
				SQL: models.SQLProperties{
					Select: []models.Property{property("SelectUserSQL", "Select User#SQL", "sql", models.StringPtr("SELECT * FROM UM_USER"))},
					Delete: []models.Property{property("DeleteUserSQL", "Delete User#SQL", "sql", models.StringPtr("DELETE FROM UM_USER"))},
				},
			},
		},
	}
}

type testEnv struct {
	echo       *echo.Echo
	identity   *fakeIdentity
	store      *userstore.Store
	dispatcher *notify.Dispatcher
}

// newTestEnv wires the session handler to an in-memory store backed by a
// fake identity server
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	identity := &fakeIdentity{store: jdbcUserstore()}

	hub := notify.NewHub(time.Second, 2*time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	dispatcher := notify.NewDispatcher(hub, notify.Options{Backlog: 10})
	store := userstore.NewStore(userstore.Dependencies{
		Tester:  identity,
		Patcher: identity,
		Fetcher: identity,
		Alerts:  dispatcher,
	}, nil, time.Minute)

	e := echo.New()
	e.Validator = validation.NewValidator()
	e.HTTPErrorHandler = middleware.ProblemErrorHandler(nil)

	h := NewSessionHandler(store, dispatcher, nil)
	e.POST("/api/userstores/:id/sessions", h.Open)
	e.GET("/api/sessions/:sid", h.View)
	e.DELETE("/api/sessions/:sid", h.Close)
	e.PUT("/api/sessions/:sid/values", h.UpdateValues)
	e.PUT("/api/sessions/:sid/sql/:name", h.UpdateSQL)
	e.POST("/api/sessions/:sid/show-more", h.ToggleShowMore)
	e.POST("/api/sessions/:sid/test", h.TestConnection)
	e.POST("/api/sessions/:sid/submit", h.Submit)
	e.GET("/api/sessions/:sid/patch", h.PreviewPatch)
	e.GET("/api/sessions/:sid/alerts", h.Alerts)
	e.GET("/api/sessions/:sid/alerts/ws", h.Subscribe)

	return &testEnv{echo: e, identity: identity, store: store, dispatcher: dispatcher}
}

func (env *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) open(t *testing.T) string {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/api/userstores/dXNlcnN0b3JlLTE/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Data OpenSessionResponse `json:"data"`
	}
	decode(t, rec, &resp)
	return resp.Data.SessionID
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
}

type problem struct {
	Type   string `json:"type"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}
