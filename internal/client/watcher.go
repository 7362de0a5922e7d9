package client

import (
	"context"
	"log"
	"time"

	"github.com/tilakp839-oss/chaiii/internal/model"
)

// EmployeePhase is the derived display state of the employee view.
type EmployeePhase string

const (
	PhaseWaiting EmployeePhase = "waiting"
	PhaseVoting  EmployeePhase = "voting"
	PhaseVoted   EmployeePhase = "voted"
)

// EmployeeView is what one employee sees after a poll tick.
type EmployeeView struct {
	Phase   EmployeePhase
	Session *model.Session
	Choice  string // set when Phase is PhaseVoted
}

// EmployeeWatcher re-derives an employee's view on a fixed interval.
// A tick either fully succeeds and publishes a view, or fails and is
// skipped; the previous view stays on screen. There is no retry.
type EmployeeWatcher struct {
	client   *Client
	user     model.User
	interval time.Duration

	onView         func(EmployeeView)
	onSessionStart func(model.Session)

	primed        bool
	lastSessionID int64
}

// NewEmployeeWatcher creates a watcher for the given user. onView receives
// every successful tick's derived view; onSessionStart fires once when a new
// session appears, except on the very first tick after startup.
func NewEmployeeWatcher(c *Client, user model.User, interval time.Duration, onView func(EmployeeView), onSessionStart func(model.Session)) *EmployeeWatcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &EmployeeWatcher{
		client:         c,
		user:           user,
		interval:       interval,
		onView:         onView,
		onSessionStart: onSessionStart,
	}
}

// Run ticks until ctx is cancelled. The first tick happens immediately.
func (w *EmployeeWatcher) Run(ctx context.Context) {
	w.Tick(ctx)

	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			w.Tick(ctx)
			timer.Reset(w.interval)
		}
	}
}

// Tick performs a single poll cycle.
func (w *EmployeeWatcher) Tick(ctx context.Context) {
	// The employee view polls the public active-session endpoint; passing
	// its own identity would always yield nil under the role policy.
	session, err := w.client.ActiveSession(ctx, nil)
	if err != nil {
		log.Printf("employee watcher: tick skipped: %v", err)
		return
	}

	var view EmployeeView
	if session == nil {
		view = EmployeeView{Phase: PhaseWaiting}
	} else {
		votes, err := w.client.VotesForSession(ctx, session.ID)
		if err != nil {
			log.Printf("employee watcher: tick skipped: %v", err)
			return
		}
		view = EmployeeView{Phase: PhaseVoting, Session: session}
		for _, v := range votes {
			if v.UserID == w.user.ID {
				view.Phase = PhaseVoted
				view.Choice = v.Type
				break
			}
		}
	}

	w.notifyOnNewSession(session)
	if w.onView != nil {
		w.onView(view)
	}
}

// notifyOnNewSession fires the session-start callback when the observed
// session identity changes. The very first tick only primes the state, so a
// session already running at startup does not produce a spurious alert.
func (w *EmployeeWatcher) notifyOnNewSession(session *model.Session) {
	var id int64
	if session != nil {
		id = session.ID
	}

	if !w.primed {
		w.primed = true
		w.lastSessionID = id
		return
	}
	if id != 0 && id != w.lastSessionID {
		if w.onSessionStart != nil {
			w.onSessionStart(*session)
		}
	}
	w.lastSessionID = id
}

// AdminView is the live dashboard state derived per admin poll tick.
type AdminView struct {
	Session     *model.Session
	CoffeeCount int
	TeaCount    int
	Pending     []model.User // employees who have not voted yet
	Remaining   time.Duration
}

// AdminWatcher drives the admin live view: tallies, pending voters and the
// countdown. When the voting window lapses it ends the session itself;
// expiry enforcement is client-driven and only happens while an admin
// client is polling.
type AdminWatcher struct {
	client   *Client
	admin    model.User
	duration time.Duration
	interval time.Duration

	onView func(AdminView)

	endedSessionID int64
}

// NewAdminWatcher creates a watcher for the admin dashboard. duration is the
// voting window length used for the countdown.
func NewAdminWatcher(c *Client, admin model.User, duration, interval time.Duration, onView func(AdminView)) *AdminWatcher {
	if interval <= 0 {
		interval = time.Second
	}
	return &AdminWatcher{
		client:   c,
		admin:    admin,
		duration: duration,
		interval: interval,
		onView:   onView,
	}
}

// Run ticks until ctx is cancelled. The first tick happens immediately.
func (w *AdminWatcher) Run(ctx context.Context) {
	w.Tick(ctx)

	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			w.Tick(ctx)
			timer.Reset(w.interval)
		}
	}
}

// Tick performs a single poll cycle.
func (w *AdminWatcher) Tick(ctx context.Context) {
	session, err := w.client.ActiveSession(ctx, &w.admin.ID)
	if err != nil {
		log.Printf("admin watcher: tick skipped: %v", err)
		return
	}

	if session == nil {
		if w.onView != nil {
			w.onView(AdminView{})
		}
		return
	}

	votes, err := w.client.VotesForSession(ctx, session.ID)
	if err != nil {
		log.Printf("admin watcher: tick skipped: %v", err)
		return
	}
	users, err := w.client.Users(ctx)
	if err != nil {
		log.Printf("admin watcher: tick skipped: %v", err)
		return
	}

	view := AdminView{Session: session}
	voted := make(map[int64]bool, len(votes))
	for _, v := range votes {
		voted[v.UserID] = true
		switch v.Type {
		case model.VoteCoffee:
			view.CoffeeCount++
		case model.VoteTea:
			view.TeaCount++
		}
	}
	for _, u := range users {
		if u.Role == model.RoleEmployee && !voted[u.ID] {
			view.Pending = append(view.Pending, u)
		}
	}

	view.Remaining = time.Until(session.ExpiresAt(w.duration))
	if view.Remaining <= 0 {
		view.Remaining = 0
		if w.endedSessionID != session.ID {
			if _, err := w.client.EndSession(ctx, session.ID); err != nil {
				log.Printf("admin watcher: failed to end expired session %d: %v", session.ID, err)
			} else {
				log.Printf("admin watcher: session %d expired, ended", session.ID)
				w.endedSessionID = session.ID
			}
		}
	}

	if w.onView != nil {
		w.onView(view)
	}
}
