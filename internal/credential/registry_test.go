package credential

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/dsa-quest/internal/domain"
)

type fakeSource struct {
	mu       sync.Mutex
	settings domain.CredentialSettings
	usage    domain.UsageCounters
	loads    int
	loadErr  error
}

func (f *fakeSource) LoadCredentials(context.Context, string) (domain.CredentialSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	return f.settings, f.loadErr
}

func (f *fakeSource) LoadUsage(context.Context, string) (domain.UsageCounters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usage, nil
}

func (f *fakeSource) SaveUsage(_ context.Context, _ string, c domain.UsageCounter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.usage == nil {
		f.usage = domain.UsageCounters{}
	}
	f.usage[c.Role] = c
	return nil
}

func TestRegistryCachesLedger(t *testing.T) {
	t.Parallel()

	src := &fakeSource{settings: settings("p", "", 0, 0)}
	r := NewRegistry(src, nil)

	a, err := r.Ledger(context.Background(), "learner")
	if err != nil {
		t.Fatalf("Ledger failed: %v", err)
	}
	b, err := r.Ledger(context.Background(), "learner")
	if err != nil {
		t.Fatalf("Ledger failed: %v", err)
	}
	if a != b {
		t.Error("expected the same ledger instance")
	}
	if src.loads != 1 {
		t.Errorf("expected 1 load, got %d", src.loads)
	}

	r.Invalidate("learner")
	if _, err := r.Ledger(context.Background(), "learner"); err != nil {
		t.Fatalf("Ledger failed: %v", err)
	}
	if src.loads != 2 {
		t.Errorf("expected reload after invalidate, got %d loads", src.loads)
	}
}

func TestRegistryPersist(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	src := &fakeSource{settings: settings("p", "s", 0, 0)}
	r := NewRegistry(src, clock.Now)

	l, err := r.Ledger(context.Background(), "learner")
	if err != nil {
		t.Fatalf("Ledger failed: %v", err)
	}
	l.Record(domain.RoleSecondary)
	l.Record(domain.RoleSecondary)

	if err := r.Persist(context.Background(), "learner", l, domain.RoleSecondary); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	got := src.usage[domain.RoleSecondary]
	if got.Count != 2 || got.Date != "2026-03-01" {
		t.Errorf("unexpected persisted counter %+v", got)
	}
	if _, ok := src.usage[domain.RolePrimary]; ok {
		t.Error("primary counter should not be written")
	}
}

func TestRegistryPersistAfterInvalidate(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	src := &fakeSource{settings: settings("p", "", 0, 0)}
	r := NewRegistry(src, clock.Now)
	ctx := context.Background()

	l, err := r.Ledger(ctx, "learner")
	if err != nil {
		t.Fatalf("Ledger failed: %v", err)
	}
	r.Invalidate("learner")
	l.Record(domain.RolePrimary)

	if err := r.Persist(ctx, "learner", l, domain.RolePrimary); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	if got := src.usage[domain.RolePrimary]; got.Count != 1 || got.Date != "2026-03-01" {
		t.Errorf("expected the charged call persisted, got %+v", got)
	}
}

func TestRegistryKeepsUsageAcrossInvalidate(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	src := &fakeSource{settings: settings("p", "", 5, 0)}
	r := NewRegistry(src, clock.Now)
	ctx := context.Background()

	old, err := r.Ledger(ctx, "learner")
	if err != nil {
		t.Fatalf("Ledger failed: %v", err)
	}
	old.Record(domain.RolePrimary)

	// The in-flight call lands on the old ledger after settings were replaced.
	r.Invalidate("learner")
	fresh, err := r.Ledger(ctx, "learner")
	if err != nil {
		t.Fatalf("Ledger failed: %v", err)
	}
	old.Record(domain.RolePrimary)

	if got := fresh.UsageToday(domain.RolePrimary); got != 2 {
		t.Errorf("expected rebuilt ledger to see 2 requests, got %d", got)
	}
}

func TestRegistryLoadError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	r := NewRegistry(&fakeSource{loadErr: boom}, nil)
	if _, err := r.Ledger(context.Background(), "learner"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped load error, got %v", err)
	}
}
