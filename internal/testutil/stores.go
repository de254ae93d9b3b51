// stores.go
//
// Shared mock implementations of auth.UserStore and oauth.Provider.
// Imported by test files across packages to avoid duplicate mock definitions.
package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/MGallo-Code/herald/internal/oauth"
	"github.com/MGallo-Code/herald/internal/store"
	"github.com/gofrs/uuid/v5"
)

// MockStore implements auth.UserStore for tests.
//
// Always stateful...Users is a map, like a real store, with the same upsert
// bookkeeping (count, first/last login). Use *Err fields to inject errors and
// the *Calls counters to assert how often the store was touched.
type MockStore struct {
	// Error injection...zero value means no error
	UpsertErr error
	ListErr   error
	LoginsErr error
	HealthErr error

	// Call counters
	UpsertCalls int
	ListCalls   int
	LoginsCalls int

	Users  map[string]*store.UserRecord
	Logins map[string][]store.LoginEvent // newest first

	mu sync.Mutex
}

// NewMockStore returns a MockStore seeded with the given records.
func NewMockStore(users ...*store.UserRecord) *MockStore {
	ms := &MockStore{
		Users:  make(map[string]*store.UserRecord),
		Logins: make(map[string][]store.LoginEvent),
	}
	for _, u := range users {
		ms.Users[u.ID] = u
	}
	return ms
}

func (m *MockStore) UpsertUser(_ context.Context, in store.UserUpsert) (*store.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertCalls++
	if m.UpsertErr != nil {
		return nil, m.UpsertErr
	}
	if m.Users == nil {
		m.Users = make(map[string]*store.UserRecord)
	}
	if m.Logins == nil {
		m.Logins = make(map[string][]store.LoginEvent)
	}

	at := in.At.UTC().Truncate(time.Microsecond)
	rec, ok := m.Users[in.ID]
	if !ok {
		rec = &store.UserRecord{ID: in.ID, FirstLogin: at}
		m.Users[in.ID] = rec
	}
	rec.Username, rec.Discriminator, rec.Avatar, rec.Email = in.Username, in.Discriminator, in.Avatar, in.Email
	rec.AccessToken, rec.RefreshToken, rec.TokenExpiresIn = in.AccessToken, in.RefreshToken, in.TokenExpiresIn
	rec.TokenType, rec.Scope, rec.LoginIP = in.TokenType, in.Scope, in.LoginIP
	if at.After(rec.LastLogin) {
		rec.LastLogin = at
	}
	rec.LoginCount++

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	event := store.LoginEvent{ID: id, UserID: in.ID, IP: in.LoginIP, LoggedInAt: at}
	m.Logins[in.ID] = append([]store.LoginEvent{event}, m.Logins[in.ID]...)

	out := *rec
	return &out, nil
}

// ListUsers returns copies ordered by LastLogin descending, ties by id.
func (m *MockStore) ListUsers(_ context.Context) ([]store.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListCalls++
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	users := make([]store.UserRecord, 0, len(m.Users))
	for _, u := range m.Users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].LastLogin.Equal(users[j].LastLogin) {
			return users[i].LastLogin.After(users[j].LastLogin)
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

func (m *MockStore) ListLogins(_ context.Context, userID string, limit int) ([]store.LoginEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LoginsCalls++
	if m.LoginsErr != nil {
		return nil, m.LoginsErr
	}
	events := m.Logins[userID]
	if len(events) > limit {
		events = events[:limit]
	}
	return append([]store.LoginEvent{}, events...), nil
}

func (m *MockStore) CheckHealth(_ context.Context) error {
	return m.HealthErr
}

// Calls returns the total number of store operations (excluding health checks).
func (m *MockStore) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.UpsertCalls + m.ListCalls + m.LoginsCalls
}

// ErrMockUnavailable is a ready-made storage failure for error-path tests.
var ErrMockUnavailable = &store.UnavailableError{Op: "mock", Err: errors.New("connection refused")}

// MockProvider implements oauth.Provider for tests.
// Returns Grant/Identity unless the matching *Err is set; counts every call.
type MockProvider struct {
	Grant    *oauth.TokenGrant
	Identity *oauth.Identity

	ExchangeErr error
	FetchErr    error

	ExchangeCalls int
	FetchCalls    int
	LastCode      string
	LastToken     string

	mu sync.Mutex
}

func (p *MockProvider) Exchange(_ context.Context, code string) (*oauth.TokenGrant, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ExchangeCalls++
	p.LastCode = code
	if p.ExchangeErr != nil {
		return nil, p.ExchangeErr
	}
	return p.Grant, nil
}

func (p *MockProvider) FetchIdentity(_ context.Context, accessToken string) (*oauth.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.FetchCalls++
	p.LastToken = accessToken
	if p.FetchErr != nil {
		return nil, p.FetchErr
	}
	return p.Identity, nil
}
