package model

import "time"

// Vote type values. The set is closed; anything else is rejected at the
// store layer, not just by the column definition.
const (
	VoteCoffee = "COFFEE"
	VoteTea    = "TEA"
)

// ValidVoteType reports whether t is one of the accepted vote types.
func ValidVoteType(t string) bool {
	return t == VoteCoffee || t == VoteTea
}

// Vote is one user's single binary choice within a session. Votes are
// append-only; the unique index on (session_id, user_id) backstops the
// duplicate check done before insert.
type Vote struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	SessionID int64     `gorm:"uniqueIndex:idx_votes_session_user;not null" json:"sessionId"`
	UserID    int64     `gorm:"uniqueIndex:idx_votes_session_user;not null" json:"userId"`
	UserName  string    `gorm:"size:128;not null" json:"userName"`
	Type      string    `gorm:"size:16;not null" json:"type"`
	CreatedAt time.Time `gorm:"not null" json:"timestamp"`
}
