package userstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/iamconsole/backend-go/internal/models"
)

// ErrNotSQLProperty is returned when an SQL edit names a non-SQL property
var ErrNotSQLProperty = errors.New("property is not an SQL statement")

// Patcher applies a patch document to a user store
type Patcher interface {
	PatchUserStore(ctx context.Context, id string, ops []models.PatchOperation) error
}

// Fetcher loads a user store with its properties
type Fetcher interface {
	GetUserStore(ctx context.Context, id string) (*models.Userstore, error)
}

// AlertDispatcher delivers alerts to the browsers watching a session
type AlertDispatcher interface {
	Dispatch(ctx context.Context, sessionID string, alert models.Alert)
}

// Observer records editor activity, typically as metrics
type Observer interface {
	ObserveConnectionTest(outcome string, duration time.Duration)
	ObservePatch(outcome string, operations int)
}

type nopObserver struct{}

func (nopObserver) ObserveConnectionTest(string, time.Duration) {}
func (nopObserver) ObservePatch(string, int)                   {}

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, string, models.Alert) {}

// Dependencies are the collaborators an edit session talks to
type Dependencies struct {
	Tester   ConnectionTester
	Patcher  Patcher
	Fetcher  Fetcher
	Alerts   AlertDispatcher
	Observer Observer
	Logger   *slog.Logger
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Alerts == nil {
		d.Alerts = nopDispatcher{}
	}
	if d.Observer == nil {
		d.Observer = nopObserver{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return d
}

// SubmitResult is returned by Session.Submit
type SubmitResult struct {
	Operations []models.PatchOperation `json:"operations"`
	Updated    bool                    `json:"updated"`
	Alert      models.Alert            `json:"alert"`
}

// Session is one edit of a user store's connection details. Form values,
// SQL overrides and the test status live only as long as the session.
type Session struct {
	ID          string
	UserstoreID string

	deps    Dependencies
	tester  *Tester
	refresh func(ctx context.Context) error

	mu         sync.Mutex
	typ        models.UserstoreType
	schema     models.PropertySchema
	edits      map[string]string
	sql        map[string]string
	showMore   bool
	lastActive time.Time
	// revision counts edits; Submit compares it to keep edits made while
	// the patch was in flight
	revision uint64
}

// NewSession creates an edit session for a loaded user store. refresh is
// called after a successful submit; when nil the session refetches the user
// store through deps.Fetcher.
func NewSession(id string, store *models.Userstore, deps Dependencies, refresh func(ctx context.Context) error) *Session {
	deps = deps.withDefaults()
	s := &Session{
		ID:          id,
		UserstoreID: store.ID,
		deps:        deps,
		typ:         store.Type(),
		edits:       make(map[string]string),
		lastActive:  time.Now(),
	}
	s.tester = NewTester(deps.Tester, func(ctx context.Context, alert models.Alert) {
		s.deps.Alerts.Dispatch(ctx, s.ID, alert)
	})
	if refresh == nil {
		refresh = s.refetch
	}
	s.refresh = refresh
	s.ApplyProperties(store.Properties)
	return s
}

// ApplyProperties replaces the schema and reseeds the SQL overrides from it
func (s *Session) ApplyProperties(schema models.PropertySchema) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schema = schema
	s.sql = SeedSQL(&s.schema)
}

// SetFormValues merges edited values into the session
func (s *Session) SetFormValues(values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	for name := range values {
		if _, ok := s.schema.FindRequired(name); ok {
			continue
		}
		if s.schema.IsOptionalNonSQL(name) {
			continue
		}
		return fmt.Errorf("%w: %s", ErrUnknownProperty, name)
	}
	for name, value := range values {
		s.edits[name] = value
	}
	s.revision++
	return nil
}

// SetSQL records an edit of an SQL statement
func (s *Session) SetSQL(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if !s.schema.IsSQLProperty(name) {
		return fmt.Errorf("%w: %s", ErrNotSQLProperty, name)
	}
	s.sql[name] = value
	s.revision++
	return nil
}

// ToggleShowMore flips the optional section visibility and returns the new value
func (s *Session) ToggleShowMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.showMore = !s.showMore
	s.revision++
	return s.showMore
}

// View renders the editor state
func (s *Session) View() models.FormView {
	s.mu.Lock()
	defer s.mu.Unlock()

	required, optional := RenderFields(&s.schema, s.showMore)
	for i := range required {
		s.overlayEdit(&required[i])
	}
	for i := range optional {
		s.overlayEdit(&optional[i])
	}

	view := models.FormView{
		UserstoreID:            s.UserstoreID,
		Type:                   s.typ,
		Required:               required,
		Optional:               optional,
		ShowMore:               s.showMore,
		HasOptional:            s.schema.HasOptional(),
		OptionalEditsDiscarded: !s.showMore && s.hasOptionalEdits(),
		TestButton:             s.tester.Status().Display(),
	}
	if s.showMore {
		view.SQL = RenderSQL(&s.schema, s.sql)
	}
	return view
}

// Preview builds the patch the session would submit
func (s *Session) Preview() ([]models.PatchOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return BuildPatch(&s.schema, s.formValues(), s.sql, s.showMore)
}

// TestConnection runs the connection test with the current form values
func (s *Session) TestConnection(ctx context.Context) TestOutcome {
	s.mu.Lock()
	s.touch()
	typ := s.typ
	values := s.formValues()
	required := append([]models.Property(nil), s.schema.Required...)
	s.mu.Unlock()

	outcome := s.tester.Run(ctx, typ, values, required)

	switch {
	case outcome.Skipped:
		s.deps.Observer.ObserveConnectionTest("skipped", 0)
	case !outcome.Applied:
		s.deps.Observer.ObserveConnectionTest("stale", outcome.Duration)
	default:
		s.deps.Observer.ObserveConnectionTest(string(outcome.Status), outcome.Duration)
	}

	s.deps.Logger.InfoContext(ctx, "connection test finished",
		"session", s.ID,
		"userstore", s.UserstoreID,
		"status", outcome.Status,
		"applied", outcome.Applied,
		"skipped", outcome.Skipped,
	)
	return outcome
}

// Submit sends the patch for the current edits. Validation failures are
// returned as errors; backend failures become an error alert. On success
// the refresh callback runs once and the edit state is discarded, unless
// the session was edited while the patch was in flight.
func (s *Session) Submit(ctx context.Context) (*SubmitResult, error) {
	s.mu.Lock()
	s.touch()
	revision := s.revision
	submittedSQL := maps.Clone(s.sql)
	ops, err := BuildPatch(&s.schema, s.formValues(), s.sql, s.showMore)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	result := &SubmitResult{Operations: ops}

	if err := s.deps.Patcher.PatchUserStore(ctx, s.UserstoreID, ops); err != nil {
		s.deps.Logger.WarnContext(ctx, "userstore patch failed",
			"session", s.ID,
			"userstore", s.UserstoreID,
			"error", err,
		)
		s.deps.Observer.ObservePatch("failed", len(ops))
		result.Alert = failureAlert(err, descUpdateFailure)
		s.deps.Alerts.Dispatch(ctx, s.ID, result.Alert)
		return result, nil
	}

	s.deps.Observer.ObservePatch("succeeded", len(ops))
	result.Updated = true
	result.Alert = models.NewAlert(models.AlertLevelSuccess, msgUpdated, descUpdated)
	s.deps.Alerts.Dispatch(ctx, s.ID, result.Alert)

	pendingSQL, settled := s.settle(revision, submittedSQL)
	if err := s.refresh(ctx); err != nil {
		s.deps.Logger.WarnContext(ctx, "userstore refresh failed",
			"session", s.ID,
			"userstore", s.UserstoreID,
			"error", err,
		)
	}
	if !settled {
		s.restoreSQL(pendingSQL)
		s.deps.Logger.InfoContext(ctx, "edits made during submit kept",
			"session", s.ID,
			"userstore", s.UserstoreID,
		)
	}
	return result, nil
}

// LastActive returns when the session was last used
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) refetch(ctx context.Context) error {
	if s.deps.Fetcher == nil {
		return nil
	}
	store, err := s.deps.Fetcher.GetUserStore(ctx, s.UserstoreID)
	if err != nil {
		return fmt.Errorf("failed to refetch userstore %s: %w", s.UserstoreID, err)
	}
	s.ApplyProperties(store.Properties)
	return nil
}

// settle discards the edits a successful submit sent. If the session was
// edited after the patch was built nothing is discarded, and the SQL
// overrides changed since then are returned so they outlive the refresh.
func (s *Session) settle(revision uint64, submittedSQL map[string]string) (map[string]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revision == revision {
		s.edits = make(map[string]string)
		s.showMore = false
		s.tester.Reset()
		return nil, true
	}

	pending := make(map[string]string)
	for name, value := range s.sql {
		if submitted, ok := submittedSQL[name]; !ok || submitted != value {
			pending[name] = value
		}
	}
	return pending, false
}

func (s *Session) restoreSQL(pending map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, value := range pending {
		if s.schema.IsSQLProperty(name) {
			s.sql[name] = value
		}
	}
}

// formValues overlays edits on the values the rendered form starts with.
// Callers hold s.mu.
func (s *Session) formValues() map[string]string {
	values := SeedFormValues(&s.schema)
	for name, value := range s.edits {
		values[name] = value
	}
	return values
}

func (s *Session) overlayEdit(field *models.FieldDescriptor) {
	if field.Type == models.FieldTypePassword {
		return
	}
	if v, ok := s.edits[field.Name]; ok {
		field.Value = models.StringPtr(v)
	}
}

func (s *Session) hasOptionalEdits() bool {
	for name := range s.edits {
		if s.schema.IsOptionalNonSQL(name) {
			return true
		}
	}
	seeded := SeedSQL(&s.schema)
	for name, value := range s.sql {
		if seeded[name] != value {
			return true
		}
	}
	return false
}

func (s *Session) touch() {
	s.lastActive = time.Now()
}
