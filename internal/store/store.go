package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tilakp839-oss/chaiii/config"
	"github.com/tilakp839-oss/chaiii/internal/model"
	"github.com/tilakp839-oss/chaiii/internal/parse"
)

// Store defines the interface for all domain operations.
type Store interface {
	DB() *gorm.DB

	EnsureAdmin(ctx context.Context) (model.User, error)
	Login(ctx context.Context, employeeID, name, role string) (model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)

	StartSession(ctx context.Context, requestingUserID int64) (model.Session, error)
	EndSession(ctx context.Context, sessionID int64) (model.Session, error)
	DeleteSession(ctx context.Context, sessionID, requestingUserID int64) error
	ActiveSession(ctx context.Context, forUserID *int64) (*model.Session, error)
	ListSessions(ctx context.Context) ([]model.Session, error)
	ExpiredSessions(ctx context.Context, duration time.Duration, now time.Time) ([]model.Session, error)

	CastVote(ctx context.Context, sessionID, userID int64, userName, voteType string) (model.Vote, error)
	ListVotes(ctx context.Context) ([]model.Vote, error)
	VotesForSession(ctx context.Context, sessionID int64) ([]model.Vote, error)
	Stats(ctx context.Context) (VoteStats, error)

	UpsertSubscription(ctx context.Context, sub model.PushSubscription) error
	DeleteSubscription(ctx context.Context, endpoint string) error
	Subscriptions(ctx context.Context) ([]model.PushSubscription, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db    *gorm.DB
	admin config.AdminConfig
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB, admin config.AdminConfig) Store {
	return &gormStore{db: db, admin: admin}
}

// DB exposes the underlying connection for components that run their own
// queries (notification workers, tests).
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// EnsureAdmin idempotently creates the configured admin user.
func (s *gormStore) EnsureAdmin(ctx context.Context) (model.User, error) {
	code, err := parse.NormalizeEmployeeID(s.admin.EmployeeID)
	if err != nil {
		return model.User{}, fmt.Errorf("%w: admin employee code: %v", model.ErrInvalidArgument, err)
	}

	var admin model.User
	err = s.db.WithContext(ctx).Where("employee_id = ? AND role = ?", code, model.RoleAdmin).First(&admin).Error
	if err == nil {
		return admin, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return model.User{}, fmt.Errorf("failed to look up admin user: %w", err)
	}

	admin = model.User{EmployeeID: code, Name: s.admin.Name, Role: model.RoleAdmin}
	if err := s.db.WithContext(ctx).Create(&admin).Error; err != nil {
		return model.User{}, fmt.Errorf("failed to create admin user: %w", err)
	}
	return admin, nil
}

// Login authenticates an identity by employee code. Admins must already
// exist; employees are registered on first login if a name is supplied.
func (s *gormStore) Login(ctx context.Context, employeeID, name, role string) (model.User, error) {
	code, err := parse.NormalizeEmployeeID(employeeID)
	if err != nil {
		return model.User{}, fmt.Errorf("%w: %v", model.ErrInvalidArgument, err)
	}

	switch role {
	case model.RoleAdmin:
		var admin model.User
		err := s.db.WithContext(ctx).Where("employee_id = ? AND role = ?", code, model.RoleAdmin).First(&admin).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.User{}, fmt.Errorf("%w: unknown admin code", model.ErrUnauthorized)
		}
		if err != nil {
			return model.User{}, fmt.Errorf("failed to look up admin user: %w", err)
		}
		return admin, nil

	case model.RoleEmployee:
		var user model.User
		err := s.db.WithContext(ctx).Where("employee_id = ?", code).First(&user).Error
		if err == nil {
			// Existing users are returned as-is; the name is never updated
			// on subsequent logins.
			return user, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return model.User{}, fmt.Errorf("failed to look up user: %w", err)
		}

		name = strings.TrimSpace(name)
		if name == "" {
			return model.User{}, fmt.Errorf("%w: first login requires a name", model.ErrUnauthorized)
		}
		user = model.User{EmployeeID: code, Name: name, Role: model.RoleEmployee}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			if isUniqueViolation(err) {
				// Lost a race with a concurrent first login for the same code.
				if ferr := s.db.WithContext(ctx).Where("employee_id = ?", code).First(&user).Error; ferr == nil {
					return user, nil
				}
			}
			return model.User{}, fmt.Errorf("failed to create user: %w", err)
		}
		return user, nil

	default:
		return model.User{}, fmt.Errorf("%w: unknown role %q", model.ErrInvalidArgument, role)
	}
}

// ListUsers returns all users, employees and admin alike.
func (s *gormStore) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := s.db.WithContext(ctx).Order("id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// StartSession closes any session still marked active and opens a fresh one.
// Only the admin may start sessions.
func (s *gormStore) StartSession(ctx context.Context, requestingUserID int64) (model.Session, error) {
	var requester model.User
	err := s.db.WithContext(ctx).First(&requester, requestingUserID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Session{}, fmt.Errorf("%w: unknown requesting user", model.ErrForbidden)
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("failed to look up requesting user: %w", err)
	}
	if !requester.IsAdmin() {
		return model.Session{}, fmt.Errorf("%w: only the admin can start a session", model.ErrForbidden)
	}

	now := time.Now().UTC()
	var session model.Session
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Replacement ends any session left active, so at most one active
		// session exists after commit.
		if err := tx.Model(&model.Session{}).
			Where("is_active = ?", true).
			Updates(map[string]any{"is_active": false, "end_time": now}).Error; err != nil {
			return fmt.Errorf("failed to deactivate previous sessions: %w", err)
		}

		session = model.Session{StartTime: now, IsActive: true, TotalVotes: 0}
		if err := tx.Create(&session).Error; err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Session{}, err
	}
	return session, nil
}

// EndSession marks the named session inactive. Ending an already-ended
// session is a no-op; the first recorded end time is kept.
func (s *gormStore) EndSession(ctx context.Context, sessionID int64) (model.Session, error) {
	var session model.Session
	err := s.db.WithContext(ctx).First(&session, sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Session{}, fmt.Errorf("%w: session %d", model.ErrNotFound, sessionID)
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("failed to look up session %d: %w", sessionID, err)
	}

	if !session.IsActive {
		return session, nil
	}

	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Model(&session).
		Updates(map[string]any{"is_active": false, "end_time": now}).Error; err != nil {
		return model.Session{}, fmt.Errorf("failed to end session %d: %w", sessionID, err)
	}
	session.IsActive = false
	session.EndTime = &now
	return session, nil
}

// DeleteSession removes a session and, by cascade, its votes. Admin only.
func (s *gormStore) DeleteSession(ctx context.Context, sessionID, requestingUserID int64) error {
	var requester model.User
	err := s.db.WithContext(ctx).First(&requester, requestingUserID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !requester.IsAdmin()) {
		return fmt.Errorf("%w: only the admin can delete a session", model.ErrForbidden)
	}
	if err != nil {
		return fmt.Errorf("failed to look up requesting user: %w", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session model.Session
		if err := tx.First(&session, sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: session %d", model.ErrNotFound, sessionID)
			}
			return fmt.Errorf("failed to look up session %d: %w", sessionID, err)
		}
		// Explicit cascade; sqlite does not always enforce the FK constraint.
		if err := tx.Where("session_id = ?", sessionID).Delete(&model.Vote{}).Error; err != nil {
			return fmt.Errorf("failed to delete votes for session %d: %w", sessionID, err)
		}
		if err := tx.Delete(&model.Session{}, sessionID).Error; err != nil {
			return fmt.Errorf("failed to delete session %d: %w", sessionID, err)
		}
		return nil
	})
}

// ActiveSession returns the unique active session, or nil when none exists.
// When forUserID names anyone but the admin the answer is always nil:
// employees only learn about sessions through the vote-casting flow.
func (s *gormStore) ActiveSession(ctx context.Context, forUserID *int64) (*model.Session, error) {
	if forUserID != nil {
		var user model.User
		err := s.db.WithContext(ctx).First(&user, *forUserID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to look up user %d: %w", *forUserID, err)
		}
		if !user.IsAdmin() {
			return nil, nil
		}
	}

	var session model.Session
	err := s.db.WithContext(ctx).Where("is_active = ?", true).
		Order("start_time DESC").First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up active session: %w", err)
	}
	return &session, nil
}

// ListSessions returns all sessions, most recent first.
func (s *gormStore) ListSessions(ctx context.Context) ([]model.Session, error) {
	var sessions []model.Session
	if err := s.db.WithContext(ctx).Order("start_time DESC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// ExpiredSessions returns sessions still marked active whose voting window
// lapsed at or before now.
func (s *gormStore) ExpiredSessions(ctx context.Context, duration time.Duration, now time.Time) ([]model.Session, error) {
	cutoff := now.Add(-duration)
	var sessions []model.Session
	if err := s.db.WithContext(ctx).
		Where("is_active = ? AND start_time <= ?", true, cutoff).
		Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to list expired sessions: %w", err)
	}
	return sessions, nil
}

// CastVote records a single vote and bumps the session counter in the same
// transaction. One vote per (session, user); the unique index backstops the
// existence check against concurrent duplicates.
func (s *gormStore) CastVote(ctx context.Context, sessionID, userID int64, userName, voteType string) (model.Vote, error) {
	if sessionID <= 0 || userID <= 0 {
		return model.Vote{}, fmt.Errorf("%w: sessionId and userId are required", model.ErrInvalidArgument)
	}
	if !model.ValidVoteType(voteType) {
		return model.Vote{}, fmt.Errorf("%w: vote type must be %s or %s", model.ErrInvalidArgument, model.VoteCoffee, model.VoteTea)
	}

	var vote model.Vote
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session model.Session
		if err := tx.First(&session, sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: session %d", model.ErrNotFound, sessionID)
			}
			return fmt.Errorf("failed to look up session %d: %w", sessionID, err)
		}

		var count int64
		if err := tx.Model(&model.Vote{}).
			Where("session_id = ? AND user_id = ?", sessionID, userID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check for existing vote: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: user %d already voted in session %d", model.ErrDuplicateVote, userID, sessionID)
		}

		vote = model.Vote{SessionID: sessionID, UserID: userID, UserName: userName, Type: voteType}
		if err := tx.Create(&vote).Error; err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: user %d already voted in session %d", model.ErrDuplicateVote, userID, sessionID)
			}
			return fmt.Errorf("failed to create vote: %w", err)
		}

		if err := tx.Model(&model.Session{}).Where("id = ?", sessionID).
			Update("total_votes", gorm.Expr("total_votes + 1")).Error; err != nil {
			return fmt.Errorf("failed to increment vote counter: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Vote{}, err
	}
	return vote, nil
}

// ListVotes returns every recorded vote, oldest first.
func (s *gormStore) ListVotes(ctx context.Context) ([]model.Vote, error) {
	var votes []model.Vote
	if err := s.db.WithContext(ctx).Order("id").Find(&votes).Error; err != nil {
		return nil, fmt.Errorf("failed to list votes: %w", err)
	}
	return votes, nil
}

// VotesForSession returns the votes recorded in one session, oldest first.
func (s *gormStore) VotesForSession(ctx context.Context, sessionID int64) ([]model.Vote, error) {
	var votes []model.Vote
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).
		Order("id").Find(&votes).Error; err != nil {
		return nil, fmt.Errorf("failed to list votes for session %d: %w", sessionID, err)
	}
	return votes, nil
}

// Stats aggregates the tallies across all votes in a single query.
func (s *gormStore) Stats(ctx context.Context) (VoteStats, error) {
	var stats VoteStats
	err := s.db.WithContext(ctx).Model(&model.Vote{}).
		Select(
			"COUNT(*) AS total_votes, "+
				"COALESCE(SUM(CASE WHEN type = ? THEN 1 ELSE 0 END), 0) AS coffee_total, "+
				"COALESCE(SUM(CASE WHEN type = ? THEN 1 ELSE 0 END), 0) AS tea_total",
			model.VoteCoffee, model.VoteTea,
		).Scan(&stats).Error
	if err != nil {
		return VoteStats{}, fmt.Errorf("failed to aggregate vote stats: %w", err)
	}
	return stats, nil
}

// UpsertSubscription creates or refreshes a push subscription.
func (s *gormStore) UpsertSubscription(ctx context.Context, sub model.PushSubscription) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
	}).Create(&sub).Error
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

// DeleteSubscription removes a push subscription by endpoint.
func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	if err := s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error; err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

// Subscriptions returns all registered push subscriptions.
func (s *gormStore) Subscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

// isUniqueViolation recognizes unique-constraint errors from both drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
