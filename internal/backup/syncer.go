package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/ashureev/dsa-quest/internal/domain"
	"github.com/ashureev/dsa-quest/internal/store"
)

// ErrDisabled is returned when no remote backup is configured.
var ErrDisabled = errors.New("remote backup is not configured")

// Syncer copies a learner's local keys to and from a Remote.
// Credentials never leave the device: they are dropped on push and kept on pull.
// Usage counters are merged on pull, so a restore never lowers today's counts.
type Syncer struct {
	repo   store.Repository
	remote Remote
	logger *slog.Logger
}

// NewSyncer creates a syncer. A nil remote yields a syncer that reports ErrDisabled.
func NewSyncer(repo store.Repository, remote Remote, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{repo: repo, remote: remote, logger: logger}
}

// Enabled reports whether a remote is configured.
func (s *Syncer) Enabled() bool {
	return s != nil && s.remote != nil
}

// Push uploads the learner's keys, credentials excluded.
func (s *Syncer) Push(ctx context.Context, learnerID string) error {
	if !s.Enabled() {
		return ErrDisabled
	}
	values, err := s.repo.Snapshot(ctx, learnerID)
	if err != nil {
		return fmt.Errorf("snapshot local state: %w", err)
	}
	delete(values, store.KeyCredentials)

	if err := s.remote.Push(ctx, learnerID, values); err != nil {
		return fmt.Errorf("push backup: %w", err)
	}
	s.logger.Info("Backup pushed", "learner_id", learnerID, "keys", len(values))
	return nil
}

// Pull replaces the learner's local keys with the remote snapshot, keeping local
// credentials and merging usage counters per role. It returns false without
// touching local state if no snapshot exists.
func (s *Syncer) Pull(ctx context.Context, learnerID string) (bool, error) {
	if !s.Enabled() {
		return false, ErrDisabled
	}
	remote, err := s.remote.Pull(ctx, learnerID)
	if err != nil {
		return false, fmt.Errorf("pull backup: %w", err)
	}
	if remote == nil {
		return false, nil
	}

	values := make(map[string]json.RawMessage, len(remote)+1)
	maps.Copy(values, remote)
	delete(values, store.KeyCredentials)

	creds, err := s.repo.Get(ctx, learnerID, store.KeyCredentials)
	if err != nil {
		return false, fmt.Errorf("read local credentials: %w", err)
	}
	if creds != nil {
		values[store.KeyCredentials] = creds
	}

	localUsage, err := s.repo.Get(ctx, learnerID, store.KeyUsage)
	if err != nil {
		return false, fmt.Errorf("read local usage: %w", err)
	}
	usage, err := mergeUsage(localUsage, remote[store.KeyUsage])
	if err != nil {
		return false, err
	}
	if usage != nil {
		values[store.KeyUsage] = usage
	}

	if err := s.repo.Restore(ctx, learnerID, values); err != nil {
		return false, fmt.Errorf("restore backup: %w", err)
	}
	s.logger.Info("Backup restored", "learner_id", learnerID, "keys", len(remote))
	return true, nil
}

// mergeUsage combines local and remote counters, keeping the later counter per
// role. It returns nil when neither side has any.
func mergeUsage(local, remote json.RawMessage) (json.RawMessage, error) {
	if local == nil && remote == nil {
		return nil, nil
	}
	merged := domain.UsageCounters{}
	for _, raw := range []json.RawMessage{local, remote} {
		if raw == nil {
			continue
		}
		var counters domain.UsageCounters
		if err := json.Unmarshal(raw, &counters); err != nil {
			return nil, fmt.Errorf("decode usage: %w", err)
		}
		for role, c := range counters {
			m := merged[role].Merge(c)
			m.Role = role
			merged[role] = m
		}
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode usage: %w", err)
	}
	return data, nil
}
