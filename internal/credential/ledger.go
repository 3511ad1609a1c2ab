// Package credential holds the learner's API credentials, their daily usage and the
// policy that decides when a credential is close to, or past, its daily ceiling.
package credential

import (
	"maps"
	"sync"
	"time"

	"github.com/ashureev/dsa-quest/internal/domain"
)

// View is the read-only projection of a ledger.
type View interface {
	// Candidates returns usable slots in failover order (primary, then secondary).
	Candidates() []domain.CredentialSlot
	// Ceiling returns the role's daily ceiling and whether it is bounded.
	Ceiling(role domain.Role) (int, bool)
	// UsageToday returns the number of successful requests served by role today.
	UsageToday(role domain.Role) int
}

// Ledger is the credential settings plus today's usage counters for one learner.
// Counters are only advanced through Record, which the invoker calls after a
// successful model call; every other method is a pure read.
type Ledger struct {
	settings domain.CredentialSettings
	usage    *usage
	now      func() time.Time
}

// usage is a learner's counters. Ledgers rebuilt for new settings share it.
type usage struct {
	mu       sync.Mutex
	counters domain.UsageCounters
}

func newUsage(counters domain.UsageCounters) *usage {
	c := make(domain.UsageCounters, len(domain.Roles))
	maps.Copy(c, counters)
	return &usage{counters: c}
}

// merge folds stored counters in without lowering any in-memory count.
func (u *usage) merge(counters domain.UsageCounters) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for role, c := range counters {
		merged := u.counters[role].Merge(c)
		merged.Role = role
		u.counters[role] = merged
	}
}

// Ensure Ledger implements View.
var _ View = (*Ledger)(nil)

// NewLedger creates a ledger over stored settings and counters.
// A nil clock uses time.Now.
func NewLedger(settings domain.CredentialSettings, counters domain.UsageCounters, now func() time.Time) *Ledger {
	return newLedger(settings, newUsage(counters), now)
}

func newLedger(settings domain.CredentialSettings, u *usage, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		settings: settings.Normalize(),
		usage:    u,
		now:      now,
	}
}

// Today returns the current calendar day in DateLayout.
func (l *Ledger) Today() string {
	return l.now().Format(domain.DateLayout)
}

// Settings returns the credential settings the ledger was built from.
func (l *Ledger) Settings() domain.CredentialSettings {
	return l.settings
}

// Candidates returns usable slots, primary first, skipping blank secrets.
func (l *Ledger) Candidates() []domain.CredentialSlot {
	out := make([]domain.CredentialSlot, 0, len(domain.Roles))
	for _, role := range domain.Roles {
		if slot := l.settings.Slot(role); slot.Usable() {
			out = append(out, slot)
		}
	}
	return out
}

// Ceiling returns the role's daily ceiling and whether it is bounded.
func (l *Ledger) Ceiling(role domain.Role) (int, bool) {
	slot := l.settings.Slot(role)
	return slot.DailyCeiling, slot.Bounded()
}

// UsageToday returns today's count for role. Counters dated any other day read as zero.
func (l *Ledger) UsageToday(role domain.Role) int {
	l.usage.mu.Lock()
	defer l.usage.mu.Unlock()
	return l.usage.counters[role].On(l.Today())
}

// Record adds one unit of usage against role and returns the updated counter.
func (l *Ledger) Record(role domain.Role) domain.UsageCounter {
	l.usage.mu.Lock()
	defer l.usage.mu.Unlock()

	counter := l.usage.counters[role]
	counter.Role = role
	counter = counter.Increment(l.Today())
	l.usage.counters[role] = counter
	return counter
}

// Counters returns a snapshot of the usage counters for persistence.
func (l *Ledger) Counters() domain.UsageCounters {
	l.usage.mu.Lock()
	defer l.usage.mu.Unlock()
	return maps.Clone(l.usage.counters)
}
