package userstore

import (
	"context"
	"sync"
	"time"

	"github.com/iamconsole/backend-go/internal/models"
)

func prop(name, description, typ string, value, defaultValue *string) models.Property {
	p := models.Property{
		Name:         name,
		Description:  description,
		Value:        value,
		DefaultValue: defaultValue,
	}
	if typ != "" {
		p.Attributes = []models.PropertyAttribute{{Name: "type", Value: typ}}
	}
	return p
}

func sqlProp(name, value string) models.Property {
	return prop(name, name+"#SQL statement", "sql", models.StringPtr(value), nil)
}

func jdbcSchema() models.PropertySchema {
	return models.PropertySchema{
		Required: []models.Property{
			prop("url", "Connection URL#The JDBC URL", "", models.StringPtr("jdbc:mysql://db:3306/users"), nil),
			prop("userName", "Connection Name#Database user", "", models.StringPtr("admin"), nil),
			prop("password", "Connection Password#Database password", "password", models.StringPtr("stored-secret"), nil),
			prop("driverName", "Driver Name#JDBC driver class", "", models.StringPtr("com.mysql.jdbc.Driver"), nil),
		},
		Optional: models.OptionalProperties{
			NonSQL: []models.Property{
				prop("ReadOnly", "Read-only#Mark store read-only", "boolean", nil, models.StringPtr("false")),
				prop("MaxUserNameListLength", "Maximum User List Length", "", nil, models.StringPtr("100")),
			},
			SQL: models.SQLProperties{
				Select: []models.Property{sqlProp("SelectUserSQL", "SELECT * FROM UM_USER")},
				Insert: []models.Property{sqlProp("AddUserSQL", "INSERT INTO UM_USER")},
				Update: []models.Property{sqlProp("UpdateUserPropertySQL", "UPDATE UM_USER_ATTRIBUTE")},
				Delete: []models.Property{sqlProp("DeleteUserSQL", "DELETE FROM UM_USER")},
			},
		},
	}
}

func jdbcUserstore() *models.Userstore {
	return &models.Userstore{
		ID:         "dXNlcnN0b3JlLTE",
		Name:       "PRIMARY-JDBC",
		TypeID:     "VW5pcXVlSURKREJDVXNlclN0b3JlTWFuYWdlcg",
		TypeName:   "UniqueIDJDBCUserStoreManager",
		Properties: jdbcSchema(),
	}
}

// apiError mimics the error shape returned by the identity server client
type apiError struct {
	message     string
	description string
}

func (e *apiError) Error() string            { return e.message }
func (e *apiError) ErrorMessage() string     { return e.message }
func (e *apiError) ErrorDescription() string { return e.description }

type fakeTester struct {
	mu    sync.Mutex
	calls []models.TestConnectionRequest
	fn    func(ctx context.Context, req models.TestConnectionRequest) error
}

func (f *fakeTester) TestConnection(ctx context.Context, req models.TestConnectionRequest) error {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.fn == nil {
		return nil
	}
	return f.fn(ctx, req)
}

func (f *fakeTester) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakePatcher struct {
	calls [][]models.PatchOperation
	ids   []string
	err   error
	// during runs while the patch is in flight
	during func()
}

func (f *fakePatcher) PatchUserStore(_ context.Context, id string, ops []models.PatchOperation) error {
	f.ids = append(f.ids, id)
	f.calls = append(f.calls, ops)
	if f.during != nil {
		f.during()
	}
	return f.err
}

type fakeFetcher struct {
	calls int
	store *models.Userstore
	err   error
}

func (f *fakeFetcher) GetUserStore(_ context.Context, _ string) (*models.Userstore, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	copied := *f.store
	return &copied, nil
}

type recordedAlert struct {
	sessionID string
	alert     models.Alert
}

type recordingDispatcher struct {
	mu        sync.Mutex
	alerts    []recordedAlert
	forgotten []string
}

func (r *recordingDispatcher) Forget(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forgotten = append(r.forgotten, sessionID)
}

func (r *recordingDispatcher) Dispatch(_ context.Context, sessionID string, alert models.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, recordedAlert{sessionID: sessionID, alert: alert})
}

func (r *recordingDispatcher) all() []recordedAlert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedAlert(nil), r.alerts...)
}

type recordingObserver struct {
	mu      sync.Mutex
	tests   []string
	patches []string
}

func (o *recordingObserver) ObserveConnectionTest(outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tests = append(o.tests, outcome)
}

func (o *recordingObserver) ObservePatch(outcome string, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.patches = append(o.patches, outcome)
}
