// Package reaper ends voting sessions whose window lapsed with no admin
// client watching. Expiry is normally detected by the polling admin
// dashboard; the reaper is the opt-in server-side backstop.
package reaper

import (
	"context"
	"log"
	"time"

	"github.com/tilakp839-oss/chaiii/config"
	"github.com/tilakp839-oss/chaiii/internal/metrics"
	"github.com/tilakp839-oss/chaiii/internal/store"
)

// Service periodically sweeps for expired active sessions.
type Service struct {
	store     store.Store
	enabled   bool
	duration  time.Duration
	interval  time.Duration
	collector *metrics.Collector
}

// NewService creates a reaper from the session and reaper configuration.
// The collector may be nil.
func NewService(cfg *config.Config, s store.Store, collector *metrics.Collector) *Service {
	return &Service{
		store:     s,
		enabled:   cfg.Reaper.Enabled,
		duration:  cfg.Session.Duration,
		interval:  cfg.Reaper.Interval,
		collector: collector,
	}
}

// Run starts the sweep loop.
func (s *Service) Run(ctx context.Context) {
	if !s.enabled {
		log.Println("Session reaper is disabled. Not starting.")
		return
	}
	log.Println("Starting session reaper...")

	s.SweepOnce(ctx)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Session reaper shutting down.")
			return
		case <-timer.C:
			s.SweepOnce(ctx)
			timer.Reset(s.interval)
		}
	}
}

// SweepOnce ends every active session whose window has lapsed.
func (s *Service) SweepOnce(ctx context.Context) {
	expired, err := s.store.ExpiredSessions(ctx, s.duration, time.Now().UTC())
	if err != nil {
		log.Printf("Reaper sweep failed: %v", err)
		return
	}

	for _, session := range expired {
		if _, err := s.store.EndSession(ctx, session.ID); err != nil {
			log.Printf("Reaper failed to end session %d: %v", session.ID, err)
			continue
		}
		log.Printf("Reaper ended expired session %d (started %s)", session.ID, session.StartTime.Format(time.RFC3339))
		if s.collector != nil {
			s.collector.RecordSessionEnded()
		}
	}
}
