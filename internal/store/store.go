// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ashureev/dsa-quest/internal/domain"
)

// Keys of the per-learner key/value store.
const (
	KeyProgress    = "progressByModule"
	KeyXP          = "xp"
	KeyBadges      = "earnedBadges"
	KeyCredentials = "credentials"
	KeyUsage       = "usageCounters"
)

// PersistedKeys lists every key the application writes.
var PersistedKeys = []string{KeyProgress, KeyXP, KeyBadges, KeyCredentials, KeyUsage}

// Repository defines the interface for persisting learners and their key/value state.
type Repository interface {
	// GetLearner retrieves a learner by ID. It returns nil, nil if none exists.
	GetLearner(ctx context.Context, learnerID string) (*domain.Learner, error)

	// UpsertLearner creates or updates a learner record.
	UpsertLearner(ctx context.Context, learner *domain.Learner) error

	// UpdateLastSeen updates the last_seen_at timestamp for a learner.
	UpdateLastSeen(ctx context.Context, learnerID string, lastSeen time.Time) error

	// Get returns the JSON value stored under key, or nil if unset.
	Get(ctx context.Context, learnerID, key string) (json.RawMessage, error)

	// Set replaces the values of the given keys in one transaction.
	Set(ctx context.Context, learnerID string, values map[string]json.RawMessage) error

	// Merge applies an RFC 7396 merge patch to the value under key.
	Merge(ctx context.Context, learnerID, key string, patch json.RawMessage) error

	// Snapshot returns all keys stored for the learner.
	Snapshot(ctx context.Context, learnerID string) (map[string]json.RawMessage, error)

	// Restore replaces all of the learner's keys with values.
	Restore(ctx context.Context, learnerID string, values map[string]json.RawMessage) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
