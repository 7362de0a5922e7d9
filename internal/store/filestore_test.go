package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilakp839-oss/chaiii/config"
	"github.com/tilakp839-oss/chaiii/internal/model"
)

func newFileStore(t *testing.T) (Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := NewFileStore(path, config.AdminConfig{EmployeeID: "ADMIN001", Name: "Admin"})
	require.NoError(t, err)
	return s, path
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	s, path := newFileStore(t)
	ctx := context.Background()

	admin, err := s.EnsureAdmin(ctx)
	require.NoError(t, err)
	maya, err := s.Login(ctx, "EMP001", "Maya", model.RoleEmployee)
	require.NoError(t, err)

	session, err := s.StartSession(ctx, admin.ID)
	require.NoError(t, err)
	_, err = s.CastVote(ctx, session.ID, maya.ID, maya.Name, model.VoteCoffee)
	require.NoError(t, err)

	// A fresh store over the same file sees the same state.
	reopened, err := NewFileStore(path, config.AdminConfig{EmployeeID: "ADMIN001", Name: "Admin"})
	require.NoError(t, err)

	users, err := reopened.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	active, err := reopened.ActiveSession(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, session.ID, active.ID)
	assert.Equal(t, 1, active.TotalVotes)

	// The duplicate-vote rule still holds against the reloaded vote log.
	_, err = reopened.CastVote(ctx, session.ID, maya.ID, maya.Name, model.VoteTea)
	assert.ErrorIs(t, err, model.ErrDuplicateVote)

	// New identities do not collide with persisted ones.
	theo, err := reopened.Login(ctx, "EMP002", "Theo", model.RoleEmployee)
	require.NoError(t, err)
	assert.NotEqual(t, maya.ID, theo.ID)
	assert.NotEqual(t, admin.ID, theo.ID)
}

func TestFileStore_StableDocumentKeys(t *testing.T) {
	s, path := newFileStore(t)
	ctx := context.Background()

	admin, err := s.EnsureAdmin(ctx)
	require.NoError(t, err)
	session, err := s.StartSession(ctx, admin.ID)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	for _, key := range []string{"users", "sessions", "votes", "subscriptions", "currentSessionId"} {
		assert.Contains(t, doc, key)
	}

	var current int64
	require.NoError(t, json.Unmarshal(doc["currentSessionId"], &current))
	assert.Equal(t, session.ID, current)

	// Ending the session clears the current-session identity.
	_, err = s.EndSession(ctx, session.ID)
	require.NoError(t, err)

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))
	require.NoError(t, json.Unmarshal(doc["currentSessionId"], &current))
	assert.Equal(t, int64(0), current)
}

func TestFileStore_AtMostOneActiveSession(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	admin, err := s.EnsureAdmin(ctx)
	require.NoError(t, err)

	first, err := s.StartSession(ctx, admin.ID)
	require.NoError(t, err)
	second, err := s.StartSession(ctx, admin.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	var active int
	for _, sess := range sessions {
		if sess.IsActive {
			active++
		} else {
			assert.NotNil(t, sess.EndTime)
		}
	}
	assert.Equal(t, 1, active)
}

func TestFileStore_RoleChecks(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	admin, err := s.EnsureAdmin(ctx)
	require.NoError(t, err)
	maya, err := s.Login(ctx, "EMP001", "Maya", model.RoleEmployee)
	require.NoError(t, err)

	_, err = s.StartSession(ctx, maya.ID)
	assert.ErrorIs(t, err, model.ErrForbidden)

	session, err := s.StartSession(ctx, admin.ID)
	require.NoError(t, err)

	// Role policy on the active lookup matches the database-backed store.
	got, err := s.ActiveSession(ctx, &maya.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = s.ActiveSession(ctx, &admin.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, session.ID, got.ID)

	err = s.DeleteSession(ctx, session.ID, maya.ID)
	assert.ErrorIs(t, err, model.ErrForbidden)
}

func TestFileStore_VoteFlow(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	admin, err := s.EnsureAdmin(ctx)
	require.NoError(t, err)
	maya, err := s.Login(ctx, "EMP001", "Maya", model.RoleEmployee)
	require.NoError(t, err)
	theo, err := s.Login(ctx, "EMP002", "Theo", model.RoleEmployee)
	require.NoError(t, err)

	session, err := s.StartSession(ctx, admin.ID)
	require.NoError(t, err)

	_, err = s.CastVote(ctx, session.ID, maya.ID, maya.Name, "CHAI")
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
	_, err = s.CastVote(ctx, 9999, maya.ID, maya.Name, model.VoteCoffee)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = s.CastVote(ctx, session.ID, maya.ID, maya.Name, model.VoteCoffee)
	require.NoError(t, err)
	_, err = s.CastVote(ctx, session.ID, theo.ID, theo.Name, model.VoteTea)
	require.NoError(t, err)
	_, err = s.CastVote(ctx, session.ID, maya.ID, maya.Name, model.VoteTea)
	assert.ErrorIs(t, err, model.ErrDuplicateVote)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, VoteStats{CoffeeTotal: 1, TeaTotal: 1, TotalVotes: 2}, stats)

	votes, err := s.VotesForSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, votes, 2)

	active, err := s.ActiveSession(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, 2, active.TotalVotes)

	// Deleting the session removes its votes with it.
	require.NoError(t, s.DeleteSession(ctx, session.ID, admin.ID))
	remaining, err := s.ListVotes(ctx)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestFileStore_ExpiredSessions(t *testing.T) {
	s, path := newFileStore(t)
	ctx := context.Background()

	admin, err := s.EnsureAdmin(ctx)
	require.NoError(t, err)
	session, err := s.StartSession(ctx, admin.ID)
	require.NoError(t, err)

	now := time.Now().UTC()

	expired, err := s.ExpiredSessions(ctx, 10*time.Minute, now)
	require.NoError(t, err)
	assert.Empty(t, expired)

	expired, err = s.ExpiredSessions(ctx, 0, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, session.ID, expired[0].ID)

	// Reopen and sweep: the reloaded store ends it the same way.
	reopened, err := NewFileStore(path, config.AdminConfig{EmployeeID: "ADMIN001", Name: "Admin"})
	require.NoError(t, err)
	ended, err := reopened.EndSession(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, ended.IsActive)
}

func TestFileStore_Subscriptions(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	sub := model.PushSubscription{Endpoint: "https://push.example.com/a", P256DH: "key", Auth: "auth"}
	require.NoError(t, s.UpsertSubscription(ctx, sub))

	sub.P256DH = "rotated"
	require.NoError(t, s.UpsertSubscription(ctx, sub))

	subs, err := s.Subscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "rotated", subs[0].P256DH)

	require.NoError(t, s.DeleteSubscription(ctx, sub.Endpoint))
	subs, err = s.Subscriptions(ctx)
	require.NoError(t, err)
	assert.Empty(t, subs)
}
