package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ashureev/dsa-quest/internal/domain"
)

// State reads and writes typed learner values on top of a Repository.
// Read-modify-write operations for the same learner are serialized.
type State struct {
	repo Repository

	mu    sync.Mutex
	locks map[string]*learnerLock
}

type learnerLock struct {
	mu   sync.Mutex
	refs int
}

// NewState wraps repo.
func NewState(repo Repository) *State {
	return &State{repo: repo, locks: make(map[string]*learnerLock)}
}

// lock holds the learner's lock until the returned func is called.
func (s *State) lock(learnerID string) func() {
	s.mu.Lock()
	l, ok := s.locks[learnerID]
	if !ok {
		l = &learnerLock{}
		s.locks[learnerID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, learnerID)
		}
		s.mu.Unlock()
	}
}

// LoadState reads the learner's progress, experience and badges.
// Missing keys read as their zero values.
func (s *State) LoadState(ctx context.Context, learnerID string) (domain.LearnerState, error) {
	state := domain.NewLearnerState()
	if err := getJSON(ctx, s.repo, learnerID, KeyProgress, &state.ProgressByModule); err != nil {
		return state, err
	}
	if err := getJSON(ctx, s.repo, learnerID, KeyXP, &state.XP); err != nil {
		return state, err
	}
	if err := getJSON(ctx, s.repo, learnerID, KeyBadges, &state.EarnedBadges); err != nil {
		return state, err
	}
	if state.ProgressByModule == nil {
		state.ProgressByModule = map[string]domain.ModuleProgress{}
	}
	if state.EarnedBadges == nil {
		state.EarnedBadges = []string{}
	}
	return state, nil
}

// UpdateState loads the learner's state, applies fn and saves the result.
// Updates for the same learner run one at a time, so fn always sees the last
// saved state. An error from fn leaves the stored state untouched.
func (s *State) UpdateState(ctx context.Context, learnerID string, fn func(domain.LearnerState) (domain.LearnerState, error)) (domain.LearnerState, error) {
	unlock := s.lock(learnerID)
	defer unlock()

	state, err := s.LoadState(ctx, learnerID)
	if err != nil {
		return domain.LearnerState{}, err
	}
	next, err := fn(state)
	if err != nil {
		return domain.LearnerState{}, err
	}
	if err := s.SaveState(ctx, learnerID, next); err != nil {
		return domain.LearnerState{}, err
	}
	return next, nil
}

// SaveState writes the learner's progress, experience and badges together.
// It overwrites whatever is stored; concurrent writers should use UpdateState.
func (s *State) SaveState(ctx context.Context, learnerID string, state domain.LearnerState) error {
	values := make(map[string]json.RawMessage, 3)
	for key, v := range map[string]any{
		KeyProgress: state.ProgressByModule,
		KeyXP:       state.XP,
		KeyBadges:   state.EarnedBadges,
	} {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		values[key] = data
	}
	return s.repo.Set(ctx, learnerID, values)
}

// LoadCredentials reads the learner's credential settings.
func (s *State) LoadCredentials(ctx context.Context, learnerID string) (domain.CredentialSettings, error) {
	var settings domain.CredentialSettings
	if err := getJSON(ctx, s.repo, learnerID, KeyCredentials, &settings); err != nil {
		return domain.CredentialSettings{}, err
	}
	return settings.Normalize(), nil
}

// SaveCredentials replaces the learner's credential settings wholesale.
func (s *State) SaveCredentials(ctx context.Context, learnerID string, settings domain.CredentialSettings) error {
	data, err := json.Marshal(settings.Normalize())
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	return s.repo.Set(ctx, learnerID, map[string]json.RawMessage{KeyCredentials: data})
}

// LoadUsage reads the learner's usage counters.
func (s *State) LoadUsage(ctx context.Context, learnerID string) (domain.UsageCounters, error) {
	counters := domain.UsageCounters{}
	if err := getJSON(ctx, s.repo, learnerID, KeyUsage, &counters); err != nil {
		return nil, err
	}
	return counters, nil
}

// SaveUsage merges counter into the stored counter for its role, leaving other
// roles untouched. A stale counter never lowers what is stored for the day.
func (s *State) SaveUsage(ctx context.Context, learnerID string, counter domain.UsageCounter) error {
	if !counter.Role.Valid() {
		return fmt.Errorf("save usage: unknown role %q", counter.Role)
	}
	unlock := s.lock(learnerID)
	defer unlock()

	stored, err := s.LoadUsage(ctx, learnerID)
	if err != nil {
		return err
	}
	current := stored[counter.Role]
	merged := current.Merge(counter)
	if merged == current {
		return nil
	}
	merged.Role = counter.Role

	patch, err := json.Marshal(domain.UsageCounters{counter.Role: merged})
	if err != nil {
		return fmt.Errorf("encode usage: %w", err)
	}
	return s.repo.Merge(ctx, learnerID, KeyUsage, patch)
}

func getJSON(ctx context.Context, repo Repository, learnerID, key string, dst any) error {
	raw, err := repo.Get(ctx, learnerID, key)
	if err != nil {
		return err
	}
	if raw == nil {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
