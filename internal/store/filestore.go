package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/tilakp839-oss/chaiii/config"
	"github.com/tilakp839-oss/chaiii/internal/model"
	"github.com/tilakp839-oss/chaiii/internal/parse"
)

// fileDocument is the on-disk shape of the file-backed store: the full
// collections plus the current-session identity, each under a stable key.
// The document is rewritten atomically on every mutation.
type fileDocument struct {
	Users            []model.User             `json:"users"`
	Sessions         []model.Session          `json:"sessions"`
	Votes            []model.Vote             `json:"votes"`
	Subscriptions    []model.PushSubscription `json:"subscriptions"`
	CurrentSessionID int64                    `json:"currentSessionId"`
	NextUserID       int64                    `json:"nextUserId"`
	NextSessionID    int64                    `json:"nextSessionId"`
	NextVoteID       int64                    `json:"nextVoteId"`
}

// fileStore is the offline/local variant of Store: the same domain rules as
// gormStore, backed by a single JSON file instead of a database. A mutex
// serializes all access, so the check-then-insert paths need no further
// hardening here.
type fileStore struct {
	path  string
	admin config.AdminConfig

	mu  sync.Mutex
	doc fileDocument
}

// NewFileStore opens (or creates) the JSON-backed store at path.
func NewFileStore(path string, admin config.AdminConfig) (Store, error) {
	s := &fileStore{path: path, admin: admin}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		s.doc = fileDocument{NextUserID: 1, NextSessionID: 1, NextVoteID: 1}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", path, err)
	}
	if s.doc.NextUserID < 1 {
		s.doc.NextUserID = 1
	}
	if s.doc.NextSessionID < 1 {
		s.doc.NextSessionID = 1
	}
	if s.doc.NextVoteID < 1 {
		s.doc.NextVoteID = 1
	}
	return s, nil
}

// DB returns nil: the file variant has no relational backend. Components
// that need one (the push worker pool) are not available in this mode.
func (s *fileStore) DB() *gorm.DB {
	return nil
}

// save writes the document to a temporary file and renames it into place, so
// a crash mid-write never leaves a truncated state file. Callers hold s.mu.
func (s *fileStore) save() error {
	data, err := json.MarshalIndent(&s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

func (s *fileStore) userByID(id int64) *model.User {
	for i := range s.doc.Users {
		if s.doc.Users[i].ID == id {
			return &s.doc.Users[i]
		}
	}
	return nil
}

func (s *fileStore) userByCode(code string) *model.User {
	for i := range s.doc.Users {
		if s.doc.Users[i].EmployeeID == code {
			return &s.doc.Users[i]
		}
	}
	return nil
}

func (s *fileStore) sessionByID(id int64) *model.Session {
	for i := range s.doc.Sessions {
		if s.doc.Sessions[i].ID == id {
			return &s.doc.Sessions[i]
		}
	}
	return nil
}

func (s *fileStore) EnsureAdmin(ctx context.Context) (model.User, error) {
	code, err := parse.NormalizeEmployeeID(s.admin.EmployeeID)
	if err != nil {
		return model.User{}, fmt.Errorf("%w: admin employee code: %v", model.ErrInvalidArgument, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.userByCode(code); existing != nil {
		if existing.IsAdmin() {
			return *existing, nil
		}
		return model.User{}, fmt.Errorf("employee code %s already belongs to a non-admin user", code)
	}

	admin := model.User{
		ID:         s.doc.NextUserID,
		EmployeeID: code,
		Name:       s.admin.Name,
		Role:       model.RoleAdmin,
		CreatedAt:  time.Now().UTC(),
	}
	s.doc.NextUserID++
	s.doc.Users = append(s.doc.Users, admin)
	if err := s.save(); err != nil {
		return model.User{}, err
	}
	return admin, nil
}

func (s *fileStore) Login(ctx context.Context, employeeID, name, role string) (model.User, error) {
	code, err := parse.NormalizeEmployeeID(employeeID)
	if err != nil {
		return model.User{}, fmt.Errorf("%w: %v", model.ErrInvalidArgument, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch role {
	case model.RoleAdmin:
		admin := s.userByCode(code)
		if admin == nil || !admin.IsAdmin() {
			return model.User{}, fmt.Errorf("%w: unknown admin code", model.ErrUnauthorized)
		}
		return *admin, nil

	case model.RoleEmployee:
		if user := s.userByCode(code); user != nil {
			// Existing users are returned as-is; the name is never updated
			// on subsequent logins.
			return *user, nil
		}

		name = strings.TrimSpace(name)
		if name == "" {
			return model.User{}, fmt.Errorf("%w: first login requires a name", model.ErrUnauthorized)
		}
		user := model.User{
			ID:         s.doc.NextUserID,
			EmployeeID: code,
			Name:       name,
			Role:       model.RoleEmployee,
			CreatedAt:  time.Now().UTC(),
		}
		s.doc.NextUserID++
		s.doc.Users = append(s.doc.Users, user)
		if err := s.save(); err != nil {
			return model.User{}, err
		}
		return user, nil

	default:
		return model.User{}, fmt.Errorf("%w: unknown role %q", model.ErrInvalidArgument, role)
	}
}

func (s *fileStore) ListUsers(ctx context.Context) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]model.User, len(s.doc.Users))
	copy(users, s.doc.Users)
	return users, nil
}

func (s *fileStore) StartSession(ctx context.Context, requestingUserID int64) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	requester := s.userByID(requestingUserID)
	if requester == nil {
		return model.Session{}, fmt.Errorf("%w: unknown requesting user", model.ErrForbidden)
	}
	if !requester.IsAdmin() {
		return model.Session{}, fmt.Errorf("%w: only the admin can start a session", model.ErrForbidden)
	}

	now := time.Now().UTC()
	for i := range s.doc.Sessions {
		if s.doc.Sessions[i].IsActive {
			s.doc.Sessions[i].IsActive = false
			end := now
			s.doc.Sessions[i].EndTime = &end
		}
	}

	session := model.Session{ID: s.doc.NextSessionID, StartTime: now, IsActive: true}
	s.doc.NextSessionID++
	s.doc.Sessions = append(s.doc.Sessions, session)
	s.doc.CurrentSessionID = session.ID
	if err := s.save(); err != nil {
		return model.Session{}, err
	}
	return session, nil
}

func (s *fileStore) EndSession(ctx context.Context, sessionID int64) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.sessionByID(sessionID)
	if session == nil {
		return model.Session{}, fmt.Errorf("%w: session %d", model.ErrNotFound, sessionID)
	}
	if !session.IsActive {
		return *session, nil
	}

	now := time.Now().UTC()
	session.IsActive = false
	session.EndTime = &now
	if s.doc.CurrentSessionID == sessionID {
		s.doc.CurrentSessionID = 0
	}
	if err := s.save(); err != nil {
		return model.Session{}, err
	}
	return *session, nil
}

func (s *fileStore) DeleteSession(ctx context.Context, sessionID, requestingUserID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	requester := s.userByID(requestingUserID)
	if requester == nil || !requester.IsAdmin() {
		return fmt.Errorf("%w: only the admin can delete a session", model.ErrForbidden)
	}
	if s.sessionByID(sessionID) == nil {
		return fmt.Errorf("%w: session %d", model.ErrNotFound, sessionID)
	}

	kept := s.doc.Votes[:0]
	for _, v := range s.doc.Votes {
		if v.SessionID != sessionID {
			kept = append(kept, v)
		}
	}
	s.doc.Votes = kept

	sessions := s.doc.Sessions[:0]
	for _, sess := range s.doc.Sessions {
		if sess.ID != sessionID {
			sessions = append(sessions, sess)
		}
	}
	s.doc.Sessions = sessions

	if s.doc.CurrentSessionID == sessionID {
		s.doc.CurrentSessionID = 0
	}
	return s.save()
}

func (s *fileStore) ActiveSession(ctx context.Context, forUserID *int64) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if forUserID != nil {
		user := s.userByID(*forUserID)
		if user == nil || !user.IsAdmin() {
			return nil, nil
		}
	}

	for i := range s.doc.Sessions {
		if s.doc.Sessions[i].IsActive {
			session := s.doc.Sessions[i]
			return &session, nil
		}
	}
	return nil, nil
}

func (s *fileStore) ListSessions(ctx context.Context) ([]model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions := make([]model.Session, len(s.doc.Sessions))
	copy(sessions, s.doc.Sessions)
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartTime.After(sessions[j].StartTime)
	})
	return sessions, nil
}

func (s *fileStore) ExpiredSessions(ctx context.Context, duration time.Duration, now time.Time) ([]model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []model.Session
	for _, sess := range s.doc.Sessions {
		if sess.IsActive && sess.Expired(duration, now) {
			expired = append(expired, sess)
		}
	}
	return expired, nil
}

func (s *fileStore) CastVote(ctx context.Context, sessionID, userID int64, userName, voteType string) (model.Vote, error) {
	if sessionID <= 0 || userID <= 0 {
		return model.Vote{}, fmt.Errorf("%w: sessionId and userId are required", model.ErrInvalidArgument)
	}
	if !model.ValidVoteType(voteType) {
		return model.Vote{}, fmt.Errorf("%w: vote type must be %s or %s", model.ErrInvalidArgument, model.VoteCoffee, model.VoteTea)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.sessionByID(sessionID)
	if session == nil {
		return model.Vote{}, fmt.Errorf("%w: session %d", model.ErrNotFound, sessionID)
	}

	for _, v := range s.doc.Votes {
		if v.SessionID == sessionID && v.UserID == userID {
			return model.Vote{}, fmt.Errorf("%w: user %d already voted in session %d", model.ErrDuplicateVote, userID, sessionID)
		}
	}

	vote := model.Vote{
		ID:        s.doc.NextVoteID,
		SessionID: sessionID,
		UserID:    userID,
		UserName:  userName,
		Type:      voteType,
		CreatedAt: time.Now().UTC(),
	}
	s.doc.NextVoteID++
	s.doc.Votes = append(s.doc.Votes, vote)
	session.TotalVotes++
	if err := s.save(); err != nil {
		return model.Vote{}, err
	}
	return vote, nil
}

func (s *fileStore) ListVotes(ctx context.Context) ([]model.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	votes := make([]model.Vote, len(s.doc.Votes))
	copy(votes, s.doc.Votes)
	return votes, nil
}

func (s *fileStore) VotesForSession(ctx context.Context, sessionID int64) ([]model.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var votes []model.Vote
	for _, v := range s.doc.Votes {
		if v.SessionID == sessionID {
			votes = append(votes, v)
		}
	}
	return votes, nil
}

func (s *fileStore) Stats(ctx context.Context) (VoteStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats VoteStats
	for _, v := range s.doc.Votes {
		stats.TotalVotes++
		switch v.Type {
		case model.VoteCoffee:
			stats.CoffeeTotal++
		case model.VoteTea:
			stats.TeaTotal++
		}
	}
	return stats, nil
}

func (s *fileStore) UpsertSubscription(ctx context.Context, sub model.PushSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.doc.Subscriptions {
		if s.doc.Subscriptions[i].Endpoint == sub.Endpoint {
			s.doc.Subscriptions[i].P256DH = sub.P256DH
			s.doc.Subscriptions[i].Auth = sub.Auth
			return s.save()
		}
	}

	sub.CreatedAt = time.Now().UTC()
	s.doc.Subscriptions = append(s.doc.Subscriptions, sub)
	return s.save()
}

func (s *fileStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.doc.Subscriptions[:0]
	for _, sub := range s.doc.Subscriptions {
		if sub.Endpoint != endpoint {
			kept = append(kept, sub)
		}
	}
	s.doc.Subscriptions = kept
	return s.save()
}

func (s *fileStore) Subscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := make([]model.PushSubscription, len(s.doc.Subscriptions))
	copy(subs, s.doc.Subscriptions)
	return subs, nil
}
