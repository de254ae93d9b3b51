package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Behaviour every Backend must share. Each backend test file calls runBackendSuite
// with a constructor that returns an empty, migrated store.

var suiteT0 = time.Date(2026, 3, 1, 12, 0, 0, 123456000, time.UTC)

func strPtr(s string) *string { return &s }

func login(id string, at time.Time) UserUpsert {
	return UserUpsert{
		ID:             id,
		Username:       strPtr("alice"),
		Discriminator:  strPtr("0"),
		Avatar:         nil,
		Email:          strPtr("alice@example.com"),
		AccessToken:    "T1",
		RefreshToken:   strPtr("R1"),
		TokenExpiresIn: 604800,
		TokenType:      "Bearer",
		Scope:          "identify email",
		LoginIP:        strPtr("203.0.113.7"),
		At:             at,
	}
}

func mustUpsert(t *testing.T, ctx context.Context, b Backend, in UserUpsert) *UserRecord {
	t.Helper()
	rec, err := b.UpsertUser(ctx, in)
	require.NoError(t, err, "UpsertUser(%s)", in.ID)
	return rec
}

func runBackendSuite(t *testing.T, newBackend func(t *testing.T) Backend) {
	ctx := context.Background()

	t.Run("first login creates record", func(t *testing.T) {
		b := newBackend(t)

		got := mustUpsert(t, ctx, b, login("42", suiteT0))

		want := &UserRecord{
			ID:             "42",
			Username:       strPtr("alice"),
			Discriminator:  strPtr("0"),
			Email:          strPtr("alice@example.com"),
			AccessToken:    "T1",
			RefreshToken:   strPtr("R1"),
			TokenExpiresIn: 604800,
			TokenType:      "Bearer",
			Scope:          "identify email",
			FirstLogin:     suiteT0,
			LastLogin:      suiteT0,
			LoginCount:     1,
			LoginIP:        strPtr("203.0.113.7"),
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("UpsertUser mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("second login increments count and keeps first login", func(t *testing.T) {
		b := newBackend(t)
		mustUpsert(t, ctx, b, login("42", suiteT0))

		second := login("42", suiteT0.Add(time.Hour))
		second.Username = strPtr("alice2")
		second.Email = nil
		second.AccessToken = "T2"
		got := mustUpsert(t, ctx, b, second)

		assert.Equal(t, int64(2), got.LoginCount)
		assert.True(t, got.FirstLogin.Equal(suiteT0), "FirstLogin moved: %v", got.FirstLogin)
		assert.True(t, got.LastLogin.Equal(suiteT0.Add(time.Hour)), "LastLogin: %v", got.LastLogin)
		assert.Equal(t, "alice2", *got.Username)
		assert.Nil(t, got.Email, "absent email should overwrite the stored one")
		assert.Equal(t, "T2", got.AccessToken)

		users, err := b.ListUsers(ctx)
		require.NoError(t, err)
		require.Len(t, users, 1)
		if diff := cmp.Diff(*got, users[0]); diff != "" {
			t.Errorf("ListUsers disagrees with upsert result (-upsert +list):\n%s", diff)
		}
	})

	t.Run("older login does not move last login back", func(t *testing.T) {
		b := newBackend(t)
		mustUpsert(t, ctx, b, login("42", suiteT0.Add(time.Hour)))

		got := mustUpsert(t, ctx, b, login("42", suiteT0))

		assert.Equal(t, int64(2), got.LoginCount)
		assert.True(t, got.LastLogin.Equal(suiteT0.Add(time.Hour)), "LastLogin: %v", got.LastLogin)
		assert.False(t, got.FirstLogin.After(got.LastLogin))
	})

	t.Run("list users empty", func(t *testing.T) {
		b := newBackend(t)

		users, err := b.ListUsers(ctx)
		require.NoError(t, err)
		assert.NotNil(t, users, "empty listing should be an empty slice, not nil")
		assert.Empty(t, users)
	})

	t.Run("list users orders by last login descending", func(t *testing.T) {
		b := newBackend(t)
		mustUpsert(t, ctx, b, login("1", suiteT0))
		mustUpsert(t, ctx, b, login("2", suiteT0.Add(2*time.Minute)))
		mustUpsert(t, ctx, b, login("3", suiteT0.Add(time.Minute)))
		// Re-login moves user 1 to the front.
		mustUpsert(t, ctx, b, login("1", suiteT0.Add(3*time.Minute)))

		users, err := b.ListUsers(ctx)
		require.NoError(t, err)

		var ids []string
		for _, u := range users {
			ids = append(ids, u.ID)
		}
		assert.Equal(t, []string{"1", "2", "3"}, ids)
		assert.Equal(t, int64(2), users[0].LoginCount)
	})

	t.Run("concurrent logins lose no increments", func(t *testing.T) {
		b := newBackend(t)
		const n = 20

		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := b.UpsertUser(ctx, login("42", suiteT0.Add(time.Duration(i)*time.Second)))
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		users, err := b.ListUsers(ctx)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, int64(n), users[0].LoginCount)
		assert.True(t, users[0].LastLogin.Equal(suiteT0.Add((n-1)*time.Second)), "LastLogin: %v", users[0].LastLogin)
	})

	t.Run("login events newest first and limited", func(t *testing.T) {
		b := newBackend(t)
		for i := range 5 {
			in := login("42", suiteT0.Add(time.Duration(i)*time.Minute))
			in.LoginIP = strPtr(fmt.Sprintf("198.51.100.%d", i))
			mustUpsert(t, ctx, b, in)
		}
		mustUpsert(t, ctx, b, login("other", suiteT0))

		events, err := b.ListLogins(ctx, "42", 3)
		require.NoError(t, err)
		require.Len(t, events, 3)
		for i, e := range events {
			assert.Equal(t, "42", e.UserID)
			assert.True(t, e.LoggedInAt.Equal(suiteT0.Add(time.Duration(4-i)*time.Minute)), "event %d at %v", i, e.LoggedInAt)
			assert.Equal(t, fmt.Sprintf("198.51.100.%d", 4-i), *e.IP)
			assert.Equal(t, byte(7), e.ID.Version(), "login event ids are UUIDv7")
		}
	})

	t.Run("login events for unknown user", func(t *testing.T) {
		b := newBackend(t)

		events, err := b.ListLogins(ctx, "nobody", 10)
		require.NoError(t, err)
		assert.NotNil(t, events)
		assert.Empty(t, events)
	})

	t.Run("nil ip stored as absent", func(t *testing.T) {
		b := newBackend(t)
		in := login("42", suiteT0)
		in.LoginIP = nil

		got := mustUpsert(t, ctx, b, in)
		assert.Nil(t, got.LoginIP)

		events, err := b.ListLogins(ctx, "42", 1)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Nil(t, events[0].IP)
	})

	t.Run("health", func(t *testing.T) {
		b := newBackend(t)
		assert.NoError(t, b.CheckHealth(ctx))
	})
}
