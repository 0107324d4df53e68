package userstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for unknown or expired sessions
var ErrSessionNotFound = errors.New("edit session not found")

// TypeResolver fills in the meta type of a user store when the user store
// resource does not carry it
type TypeResolver interface {
	GetUserStoreTypeName(ctx context.Context, typeID string) (string, error)
}

// sessionForgetter is implemented by alert dispatchers that keep per-session
// state which must be released when a session ends
type sessionForgetter interface {
	Forget(sessionID string)
}

// Store keeps the open edit sessions in memory
type Store struct {
	deps    Dependencies
	types   TypeResolver
	idleTTL time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates a session store. Sessions idle for longer than idleTTL
// are dropped by Sweep; a zero TTL keeps them until closed.
func NewStore(deps Dependencies, types TypeResolver, idleTTL time.Duration) *Store {
	return &Store{
		deps:     deps.withDefaults(),
		types:    types,
		idleTTL:  idleTTL,
		sessions: make(map[string]*Session),
	}
}

// Open loads a user store and starts an edit session for it
func (st *Store) Open(ctx context.Context, userstoreID string) (*Session, error) {
	if st.deps.Fetcher == nil {
		return nil, errors.New("userstore fetcher is not configured")
	}

	store, err := st.deps.Fetcher.GetUserStore(ctx, userstoreID)
	if err != nil {
		return nil, fmt.Errorf("failed to load userstore %s: %w", userstoreID, err)
	}
	if store.ID == "" {
		store.ID = userstoreID
	}

	if store.TypeName == "" && store.TypeID != "" && st.types != nil {
		name, err := st.types.GetUserStoreTypeName(ctx, store.TypeID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve userstore type %s: %w", store.TypeID, err)
		}
		store.TypeName = name
	}

	session := NewSession(uuid.New().String(), store, st.deps, nil)

	st.mu.Lock()
	st.sessions[session.ID] = session
	st.mu.Unlock()

	st.deps.Logger.InfoContext(ctx, "edit session opened",
		"session", session.ID,
		"userstore", userstoreID,
		"type", store.TypeName,
	)
	return session, nil
}

// Get returns an open session
func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	session, ok := st.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Close discards a session
func (st *Store) Close(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(st.sessions, id)
	st.release(id)
	return nil
}

// Len returns the number of open sessions
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep drops sessions idle since before now-idleTTL and returns how many went
func (st *Store) Sweep(now time.Time) int {
	if st.idleTTL <= 0 {
		return 0
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	removed := 0
	for id, session := range st.sessions {
		if now.Sub(session.LastActive()) > st.idleTTL {
			delete(st.sessions, id)
			st.release(id)
			removed++
		}
	}
	return removed
}

func (st *Store) release(id string) {
	if f, ok := st.deps.Alerts.(sessionForgetter); ok {
		f.Forget(id)
	}
}

// Run sweeps expired sessions every interval until ctx is done
func (st *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := st.Sweep(now); n > 0 {
				st.deps.Logger.Debug("expired edit sessions removed", "count", n)
			}
		}
	}
}
