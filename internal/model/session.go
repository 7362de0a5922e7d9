package model

import "time"

// Session represents a single timed voting window. At most one session has
// IsActive=true at any point; ending a session is terminal.
type Session struct {
	ID         int64      `gorm:"primaryKey" json:"id"`
	StartTime  time.Time  `gorm:"not null" json:"startTime"`
	EndTime    *time.Time `json:"endTime,omitempty"`
	IsActive   bool       `gorm:"index;not null" json:"isActive"`
	TotalVotes int        `gorm:"not null" json:"totalVotes"`
	CreatedAt  time.Time  `gorm:"not null" json:"-"`
	UpdatedAt  time.Time  `gorm:"not null" json:"-"`

	// Associations
	Votes []Vote `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
}

// ExpiresAt returns the instant the voting window lapses.
func (s *Session) ExpiresAt(duration time.Duration) time.Time {
	return s.StartTime.Add(duration)
}

// Expired reports whether the window has lapsed at the given instant.
func (s *Session) Expired(duration time.Duration, now time.Time) bool {
	return !now.Before(s.ExpiresAt(duration))
}
