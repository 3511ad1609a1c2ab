// Package domain contains core domain types for the DSA Quest application.
package domain

import (
	"time"
)

// Learner represents an anonymous learner identified per device.
type Learner struct {
	LearnerID   string    `json:"learner_id"`
	DisplayName string    `json:"display_name"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IdleFor returns how long the learner has been inactive.
// Returns 0 if the learner was seen in the future relative to now.
func (l *Learner) IdleFor(now time.Time) time.Duration {
	idle := now.Sub(l.LastSeenAt)
	if idle < 0 {
		return 0
	}
	return idle
}
