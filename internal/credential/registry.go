package credential

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ashureev/dsa-quest/internal/domain"
)

// Source loads and persists a learner's credentials and usage counters.
type Source interface {
	LoadCredentials(ctx context.Context, learnerID string) (domain.CredentialSettings, error)
	LoadUsage(ctx context.Context, learnerID string) (domain.UsageCounters, error)
	SaveUsage(ctx context.Context, learnerID string, counter domain.UsageCounter) error
}

// Registry keeps one live Ledger per learner so concurrent calls for the same
// learner share a single set of counters. Counters outlive Invalidate: a ledger
// rebuilt for new settings keeps counting where the old one left off.
type Registry struct {
	mu      sync.Mutex
	source  Source
	now     func() time.Time
	ledgers map[string]*Ledger
	usage   map[string]*usage
}

// NewRegistry creates a registry over source. A nil clock uses time.Now.
func NewRegistry(source Source, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		source:  source,
		now:     now,
		ledgers: make(map[string]*Ledger),
		usage:   make(map[string]*usage),
	}
}

// Ledger returns the learner's ledger, loading it on first use.
func (r *Registry) Ledger(ctx context.Context, learnerID string) (*Ledger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.ledgers[learnerID]; ok {
		return l, nil
	}

	settings, err := r.source.LoadCredentials(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	counters, err := r.source.LoadUsage(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("load usage: %w", err)
	}

	u, ok := r.usage[learnerID]
	if ok {
		u.merge(counters)
	} else {
		u = newUsage(counters)
		r.usage[learnerID] = u
	}

	l := newLedger(settings, u, r.now)
	r.ledgers[learnerID] = l
	return l, nil
}

// Invalidate drops the cached ledger, e.g. after settings were replaced or a
// backup was restored. The next Ledger call reloads both from the source.
func (r *Registry) Invalidate(learnerID string) {
	r.mu.Lock()
	delete(r.ledgers, learnerID)
	r.mu.Unlock()
}

// Persist writes the counter for role in ledger, the one the call was charged
// to, back to the source.
func (r *Registry) Persist(ctx context.Context, learnerID string, ledger *Ledger, role domain.Role) error {
	counter, ok := ledger.Counters()[role]
	if !ok {
		return nil
	}
	if err := r.source.SaveUsage(ctx, learnerID, counter); err != nil {
		return fmt.Errorf("save usage for %s: %w", role, err)
	}
	return nil
}
