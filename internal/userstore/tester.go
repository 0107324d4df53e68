package userstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/iamconsole/backend-go/internal/models"
)

// Alert texts
const (
	msgConnectionSuccessful  = "Connection successful!"
	descConnectionSuccessful = "The connection is healthy"
	msgUpdated               = "Userstore updated successfully!"
	descUpdated              = "This userstore has been updated successfully!"
	msgGenericFailure        = "Something went wrong"
	descTestFailure          = "An error occurred while testing the connection to the userstore"
	descUpdateFailure        = "An error occurred while updating the userstore."
)

// ConnectionTester checks that a JDBC datastore is reachable
type ConnectionTester interface {
	TestConnection(ctx context.Context, req models.TestConnectionRequest) error
}

// DetailedError is implemented by backend errors that carry user facing text
type DetailedError interface {
	error
	ErrorMessage() string
	ErrorDescription() string
}

// failureAlert converts a backend failure into an error alert, falling back
// to generic text when the backend omitted details.
func failureAlert(err error, fallbackDescription string) models.Alert {
	message, description := "", ""
	var detailed DetailedError
	if errors.As(err, &detailed) {
		message = detailed.ErrorMessage()
		description = detailed.ErrorDescription()
	}
	if message == "" {
		message = msgGenericFailure
	}
	if description == "" {
		description = fallbackDescription
	}
	return models.NewAlert(models.AlertLevelError, message, description)
}

// ResolveTestRequest resolves each connection field from the edited form
// values first and the stored required property second.
func ResolveTestRequest(formValues map[string]string, required []models.Property) models.TestConnectionRequest {
	resolve := func(name string) string {
		if v, ok := formValues[name]; ok {
			return v
		}
		for i := range required {
			if required[i].Name == name && required[i].Value != nil {
				return *required[i].Value
			}
		}
		return ""
	}

	return models.TestConnectionRequest{
		ConnectionPassword: resolve(models.PropertyPassword),
		ConnectionURL:      resolve(models.PropertyURL),
		DriverName:         resolve(models.PropertyDriverName),
		Username:           resolve(models.PropertyUserName),
	}
}

// TestOutcome reports what a connection test invocation did
type TestOutcome struct {
	Status   models.ConnectionTestStatus `json:"status"`
	Display  models.StatusDisplay        `json:"display"`
	Applied  bool                        `json:"applied"`
	Skipped  bool                        `json:"skipped"`
	Alert    *models.Alert               `json:"alert,omitempty"`
	Duration time.Duration               `json:"duration"`
}

// Tester drives the connection test state machine of one edit session.
// Each run takes a sequence token; only the latest token may change the
// status, so a slow stale response never overwrites a newer result.
type Tester struct {
	backend ConnectionTester
	notify  func(ctx context.Context, alert models.Alert)

	mu     sync.Mutex
	status models.ConnectionTestStatus
	seq    uint64
}

// NewTester creates a tester in the idle state
func NewTester(backend ConnectionTester, notify func(ctx context.Context, alert models.Alert)) *Tester {
	if notify == nil {
		notify = func(context.Context, models.Alert) {}
	}
	return &Tester{
		backend: backend,
		notify:  notify,
		status:  models.ConnectionTestIdle,
	}
}

// Status returns the current status
func (t *Tester) Status() models.ConnectionTestStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Reset returns the tester to idle and invalidates any test in flight
func (t *Tester) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	t.status = models.ConnectionTestIdle
}

func (t *Tester) begin() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	t.status = models.ConnectionTestTesting
	return t.seq
}

// complete applies a result if token is still the latest run
func (t *Tester) complete(token uint64, status models.ConnectionTestStatus) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if token != t.seq {
		return false
	}
	t.status = status
	return true
}

// Run tests the connection of a user store of the given type. Non-JDBC types
// have nothing to test: the call returns without touching the status.
// Exactly one alert is emitted for every run whose result is applied.
func (t *Tester) Run(ctx context.Context, typ models.UserstoreType, formValues map[string]string, required []models.Property) TestOutcome {
	if !typ.IsJDBC() {
		status := t.Status()
		return TestOutcome{Status: status, Display: status.Display(), Skipped: true}
	}

	req := ResolveTestRequest(formValues, required)
	token := t.begin()
	start := time.Now()

	err := t.backend.TestConnection(ctx, req)

	outcome := TestOutcome{Duration: time.Since(start)}
	var alert models.Alert
	if err != nil {
		outcome.Status = models.ConnectionTestFailed
		alert = failureAlert(err, descTestFailure)
	} else {
		outcome.Status = models.ConnectionTestSucceeded
		alert = models.NewAlert(models.AlertLevelSuccess, msgConnectionSuccessful, descConnectionSuccessful)
	}

	outcome.Applied = t.complete(token, outcome.Status)
	if !outcome.Applied {
		// superseded by a newer run; report what is current instead
		outcome.Status = t.Status()
		outcome.Display = outcome.Status.Display()
		return outcome
	}

	outcome.Display = outcome.Status.Display()
	outcome.Alert = &alert
	t.notify(ctx, alert)
	return outcome
}
