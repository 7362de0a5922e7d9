package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tilakp839-oss/chaiii/config"
	"github.com/tilakp839-oss/chaiii/internal/model"
)

// newTestStore opens a fresh in-memory database per test. Each database is
// named after the test so parallel tests never share state.
func newTestStore(t *testing.T) Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection serializes writers; sqlite returns busy errors otherwise.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&model.User{}, &model.Session{}, &model.Vote{}, &model.PushSubscription{},
	))

	return NewGormStore(db, config.AdminConfig{EmployeeID: "ADMIN001", Name: "Admin"})
}

func seedAdmin(t *testing.T, s Store) model.User {
	t.Helper()
	admin, err := s.EnsureAdmin(context.Background())
	require.NoError(t, err)
	return admin
}

func seedEmployee(t *testing.T, s Store, code, name string) model.User {
	t.Helper()
	user, err := s.Login(context.Background(), code, name, model.RoleEmployee)
	require.NoError(t, err)
	return user
}

func TestEnsureAdmin_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.EnsureAdmin(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ADMIN001", first.EmployeeID)
	assert.Equal(t, model.RoleAdmin, first.Role)

	second, err := s.EnsureAdmin(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "EnsureAdmin must not create a second admin")

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestLogin_Admin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAdmin(t, s)

	t.Run("correct code succeeds", func(t *testing.T) {
		admin, err := s.Login(ctx, "admin001", "", model.RoleAdmin)
		assert.NoError(t, err)
		assert.Equal(t, model.RoleAdmin, admin.Role)
	})

	t.Run("wrong code is unauthorized", func(t *testing.T) {
		_, err := s.Login(ctx, "ADMIN999", "", model.RoleAdmin)
		assert.ErrorIs(t, err, model.ErrUnauthorized)
	})

	t.Run("unknown role is invalid", func(t *testing.T) {
		_, err := s.Login(ctx, "ADMIN001", "", "SUPERUSER")
		assert.ErrorIs(t, err, model.ErrInvalidArgument)
	})

	t.Run("malformed code is invalid", func(t *testing.T) {
		_, err := s.Login(ctx, "a b!", "", model.RoleAdmin)
		assert.ErrorIs(t, err, model.ErrInvalidArgument)
	})
}

func TestLogin_EmployeeRegistration(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Unknown code without a name is rejected.
	_, err := s.Login(ctx, "EMP001", "", model.RoleEmployee)
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	// With a name, exactly one user is created.
	created, err := s.Login(ctx, "EMP001", "Maya", model.RoleEmployee)
	require.NoError(t, err)
	assert.Equal(t, "EMP001", created.EmployeeID)
	assert.Equal(t, "Maya", created.Name)
	assert.Equal(t, model.RoleEmployee, created.Role)

	// Subsequent logins return the same user; the name is not updated.
	again, err := s.Login(ctx, "emp001", "Somebody Else", model.RoleEmployee)
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)
	assert.Equal(t, "Maya", again.Name)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1, "repeat logins must not create new users")
}

func TestStartSession_AtMostOneActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	admin := seedAdmin(t, s)

	countActive := func() int64 {
		var n int64
		require.NoError(t, s.DB().Model(&model.Session{}).Where("is_active = ?", true).Count(&n).Error)
		return n
	}

	first, err := s.StartSession(ctx, admin.ID)
	require.NoError(t, err)
	assert.True(t, first.IsActive)
	assert.Equal(t, 0, first.TotalVotes)
	assert.Equal(t, int64(1), countActive())

	second, err := s.StartSession(ctx, admin.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, int64(1), countActive(), "starting again must close the previous session")

	var closed model.Session
	require.NoError(t, s.DB().First(&closed, first.ID).Error)
	assert.False(t, closed.IsActive)
	assert.NotNil(t, closed.EndTime)
}

func TestStartSession_NonAdminForbidden(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	employee := seedEmployee(t, s, "EMP001", "Maya")

	_, err := s.StartSession(ctx, employee.ID)
	assert.ErrorIs(t, err, model.ErrForbidden)

	_, err = s.StartSession(ctx, 9999)
	assert.ErrorIs(t, err, model.ErrForbidden)
}

func TestEndSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	admin := seedAdmin(t, s)

	session, err := s.StartSession(ctx, admin.ID)
	require.NoError(t, err)

	ended, err := s.EndSession(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, ended.IsActive)
	require.NotNil(t, ended.EndTime)

	// Ending twice is a no-op and keeps the original end time.
	again, err := s.EndSession(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, again.IsActive)
	require.NotNil(t, again.EndTime)
	assert.Equal(t, ended.EndTime.Unix(), again.EndTime.Unix())

	_, err = s.EndSession(ctx, 9999)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestActiveSession_RolePolicy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	admin := seedAdmin(t, s)
	employee := seedEmployee(t, s, "EMP001", "Maya")

	// No session yet.
	got, err := s.ActiveSession(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	session, err := s.StartSession(ctx, admin.ID)
	require.NoError(t, err)

	// Anonymous and admin callers see the session.
	got, err = s.ActiveSession(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, session.ID, got.ID)

	got, err = s.ActiveSession(ctx, &admin.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)

	// A non-admin identity always gets nil, even mid-session.
	got, err = s.ActiveSession(ctx, &employee.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Unknown identities are treated the same way.
	unknown := int64(9999)
	got, err = s.ActiveSession(ctx, &unknown)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCastVote(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	admin := seedAdmin(t, s)
	maya := seedEmployee(t, s, "EMP001", "Maya")
	theo := seedEmployee(t, s, "EMP002", "Theo")

	session, err := s.StartSession(ctx, admin.ID)
	require.NoError(t, err)

	t.Run("missing fields are rejected", func(t *testing.T) {
		_, err := s.CastVote(ctx, 0, maya.ID, maya.Name, model.VoteCoffee)
		assert.ErrorIs(t, err, model.ErrInvalidArgument)

		_, err = s.CastVote(ctx, session.ID, 0, maya.Name, model.VoteCoffee)
		assert.ErrorIs(t, err, model.ErrInvalidArgument)
	})

	t.Run("vote type set is closed", func(t *testing.T) {
		_, err := s.CastVote(ctx, session.ID, maya.ID, maya.Name, "CHAI")
		assert.ErrorIs(t, err, model.ErrInvalidArgument)
	})

	t.Run("unknown session", func(t *testing.T) {
		_, err := s.CastVote(ctx, 9999, maya.ID, maya.Name, model.VoteCoffee)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("two employees vote and counters settle", func(t *testing.T) {
		_, err := s.CastVote(ctx, session.ID, maya.ID, maya.Name, model.VoteCoffee)
		require.NoError(t, err)
		_, err = s.CastVote(ctx, session.ID, theo.ID, theo.Name, model.VoteTea)
		require.NoError(t, err)

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, VoteStats{CoffeeTotal: 1, TeaTotal: 1, TotalVotes: 2}, stats)

		var reloaded model.Session
		require.NoError(t, s.DB().First(&reloaded, session.ID).Error)
		assert.Equal(t, 2, reloaded.TotalVotes)

		votes, err := s.VotesForSession(ctx, session.ID)
		require.NoError(t, err)
		assert.Len(t, votes, 2)
	})

	t.Run("second vote by the same user is rejected", func(t *testing.T) {
		_, err := s.CastVote(ctx, session.ID, maya.ID, maya.Name, model.VoteTea)
		assert.ErrorIs(t, err, model.ErrDuplicateVote)

		// Neither the vote log nor the counter moved.
		votes, err := s.VotesForSession(ctx, session.ID)
		require.NoError(t, err)
		assert.Len(t, votes, 2)

		var reloaded model.Session
		require.NoError(t, s.DB().First(&reloaded, session.ID).Error)
		assert.Equal(t, 2, reloaded.TotalVotes)
	})
}

// TestCastVote_CounterMatchesVoteCount checks that total_votes always equals
// the number of vote rows for the session once submissions settle.
func TestCastVote_CounterMatchesVoteCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	admin := seedAdmin(t, s)

	session, err := s.StartSession(ctx, admin.ID)
	require.NoError(t, err)

	const voters = 8
	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		user := seedEmployee(t, s, fmt.Sprintf("EMP%03d", i+1), fmt.Sprintf("Employee %d", i+1))
		wg.Add(1)
		go func(u model.User) {
			defer wg.Done()
			choice := model.VoteCoffee
			if u.ID%2 == 0 {
				choice = model.VoteTea
			}
			// Duplicate submissions from the same user race on purpose; at
			// most one may win.
			_, _ = s.CastVote(ctx, session.ID, u.ID, u.Name, choice)
			_, _ = s.CastVote(ctx, session.ID, u.ID, u.Name, choice)
		}(user)
	}
	wg.Wait()

	votes, err := s.VotesForSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, votes, voters)

	var reloaded model.Session
	require.NoError(t, s.DB().First(&reloaded, session.ID).Error)
	assert.Equal(t, voters, reloaded.TotalVotes)
}

func TestDeleteSession_CascadesVotes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	admin := seedAdmin(t, s)
	maya := seedEmployee(t, s, "EMP001", "Maya")

	session, err := s.StartSession(ctx, admin.ID)
	require.NoError(t, err)
	_, err = s.CastVote(ctx, session.ID, maya.ID, maya.Name, model.VoteCoffee)
	require.NoError(t, err)

	// Employees may not delete.
	err = s.DeleteSession(ctx, session.ID, maya.ID)
	assert.ErrorIs(t, err, model.ErrForbidden)

	require.NoError(t, s.DeleteSession(ctx, session.ID, admin.ID))

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	votes, err := s.ListVotes(ctx)
	require.NoError(t, err)
	assert.Empty(t, votes, "votes must be cascade-deleted with their session")

	err = s.DeleteSession(ctx, session.ID, admin.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestListSessions_MostRecentFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Sessions inserted directly so the start times are distinct.
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		session := model.Session{StartTime: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, s.DB().Create(&session).Error)
	}

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.True(t, sessions[0].StartTime.After(sessions[1].StartTime))
	assert.True(t, sessions[1].StartTime.After(sessions[2].StartTime))
}

func TestExpiredSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	stale := model.Session{StartTime: now.Add(-15 * time.Minute), IsActive: true}
	fresh := model.Session{StartTime: now.Add(-2 * time.Minute), IsActive: true}
	require.NoError(t, s.DB().Create(&stale).Error)
	require.NoError(t, s.DB().Create(&fresh).Error)

	expired, err := s.ExpiredSessions(ctx, 10*time.Minute, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, stale.ID, expired[0].ID)
}

func TestSubscriptions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub := model.PushSubscription{Endpoint: "https://push.example.com/a", P256DH: "key", Auth: "auth"}
	require.NoError(t, s.UpsertSubscription(ctx, sub))

	// Re-registering the same endpoint refreshes the keys in place.
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
