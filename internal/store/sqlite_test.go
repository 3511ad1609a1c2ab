package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/dsa-quest/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLearnerRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	got, err := s.GetLearner(ctx, "anon_x")
	if err != nil || got != nil {
		t.Fatalf("expected missing learner, got %v, %v", got, err)
	}

	now := time.Unix(1_760_000_000, 0)
	if err := s.UpsertLearner(ctx, &domain.Learner{
		LearnerID: "anon_x", DisplayName: "anon-x", LastSeenAt: now, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("UpsertLearner failed: %v", err)
	}
	if err := s.UpdateLastSeen(ctx, "anon_x", now.Add(time.Hour)); err != nil {
		t.Fatalf("UpdateLastSeen failed: %v", err)
	}

	got, err = s.GetLearner(ctx, "anon_x")
	if err != nil {
		t.Fatalf("GetLearner failed: %v", err)
	}
	if got.DisplayName != "anon-x" || !got.LastSeenAt.Equal(now.Add(time.Hour)) {
		t.Errorf("unexpected learner %+v", got)
	}
}

func TestSetGetAndSnapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Set(ctx, "a", map[string]json.RawMessage{
		KeyXP:     json.RawMessage(`120`),
		KeyBadges: json.RawMessage(`["m"]`),
	}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Set(ctx, "b", map[string]json.RawMessage{KeyXP: json.RawMessage(`5`)}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	raw, err := s.Get(ctx, "a", KeyXP)
	if err != nil || string(raw) != "120" {
		t.Fatalf("expected 120, got %s, %v", raw, err)
	}
	if raw, err := s.Get(ctx, "a", KeyCredentials); err != nil || raw != nil {
		t.Fatalf("expected unset key, got %s, %v", raw, err)
	}

	snap, err := s.Snapshot(ctx, "a")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(snap) != 2 || string(snap[KeyBadges]) != `["m"]` {
		t.Errorf("unexpected snapshot %v", snap)
	}
}

func TestSetRejectsInvalidJSON(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	err := s.Set(context.Background(), "a", map[string]json.RawMessage{KeyXP: json.RawMessage(`{`)})
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestMergePatchesObjects(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Merge(ctx, "a", KeyUsage, json.RawMessage(`{"primary":{"count":1}}`)); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if err := s.Merge(ctx, "a", KeyUsage, json.RawMessage(`{"secondary":{"count":4}}`)); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if err := s.Merge(ctx, "a", KeyUsage, json.RawMessage(`{"primary":{"count":2}}`)); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	raw, err := s.Get(ctx, "a", KeyUsage)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	var got map[string]map[string]int
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["primary"]["count"] != 2 || got["secondary"]["count"] != 4 {
		t.Errorf("unexpected merged value %s", raw)
	}
}

func TestRestoreReplacesAllKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Set(ctx, "a", map[string]json.RawMessage{
		KeyXP:     json.RawMessage(`1`),
		KeyBadges: json.RawMessage(`[]`),
	}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Restore(ctx, "a", map[string]json.RawMessage{KeyXP: json.RawMessage(`99`)}); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	snap, err := s.Snapshot(ctx, "a")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(snap) != 1 || string(snap[KeyXP]) != "99" {
		t.Errorf("unexpected snapshot after restore %v", snap)
	}
}

func TestStateHelpers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := NewState(newTestStore(t))

	state, err := st.LoadState(ctx, "a")
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if state.XP != 0 || state.ProgressByModule == nil || state.EarnedBadges == nil {
		t.Fatalf("expected empty initialized state, got %+v", state)
	}

	state.XP = 75
	state.EarnedBadges = append(state.EarnedBadges, "step-1-basics")
	state.ProgressByModule["step-1-basics"] = domain.ModuleProgress{ModuleID: "step-1-basics", UnlockedLevel: 3, Lives: 4}
	if err := st.SaveState(ctx, "a", state); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}

	got, err := st.LoadState(ctx, "a")
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if got.XP != 75 || !got.HasBadge("step-1-basics") || got.ProgressByModule["step-1-basics"].UnlockedLevel != 3 {
		t.Errorf("unexpected state %+v", got)
	}
}

func TestCredentialAndUsageHelpers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := NewState(newTestStore(t))

	if err := st.SaveCredentials(ctx, "a", domain.CredentialSettings{
		Primary: domain.CredentialSlot{Secret: " key-1 ", DailyCeiling: 10},
	}); err != nil {
		t.Fatalf("SaveCredentials failed: %v", err)
	}
	settings, err := st.LoadCredentials(ctx, "a")
	if err != nil {
		t.Fatalf("LoadCredentials failed: %v", err)
	}
	if settings.Primary.Secret != "key-1" || settings.Primary.Role != domain.RolePrimary || settings.Primary.DailyCeiling != 10 {
		t.Errorf("unexpected settings %+v", settings)
	}

	day := "2026-03-01"
	for _, c := range []domain.UsageCounter{
		{Role: domain.RolePrimary, Date: day, Count: 1},
		{Role: domain.RoleSecondary, Date: day, Count: 7},
		{Role: domain.RolePrimary, Date: day, Count: 2},
	} {
		if err := st.SaveUsage(ctx, "a", c); err != nil {
			t.Fatalf("SaveUsage failed: %v", err)
		}
	}
	usage, err := st.LoadUsage(ctx, "a")
	if err != nil {
		t.Fatalf("LoadUsage failed: %v", err)
	}
	if usage[domain.RolePrimary].Count != 2 || usage[domain.RoleSecondary].Count != 7 {
		t.Errorf("unexpected usage %+v", usage)
	}
}

func TestUpdateStateSerializesLearner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := NewState(newTestStore(t))

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.UpdateState(ctx, "a", func(s domain.LearnerState) (domain.LearnerState, error) {
				time.Sleep(20 * time.Millisecond)
				s.XP += 80
				return s, nil
			})
			if err != nil {
				t.Errorf("UpdateState failed: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := st.LoadState(ctx, "a")
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if got.XP != 160 {
		t.Errorf("expected both updates applied (160 XP), got %d", got.XP)
	}
	if len(st.locks) != 0 {
		t.Errorf("expected learner locks released, got %d", len(st.locks))
	}
}

func TestUpdateStateErrorLeavesState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := NewState(newTestStore(t))

	boom := errors.New("boom")
	_, err := st.UpdateState(ctx, "a", func(s domain.LearnerState) (domain.LearnerState, error) {
		s.XP = 500
		return s, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	got, err := st.LoadState(ctx, "a")
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if got.XP != 0 {
		t.Errorf("expected state untouched, got %d XP", got.XP)
	}
}

func TestSaveUsageNeverLowersCount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := NewState(newTestStore(t))

	for _, c := range []domain.UsageCounter{
		{Role: domain.RolePrimary, Date: "2026-03-01", Count: 10},
		{Role: domain.RolePrimary, Date: "2026-03-01", Count: 3},
	} {
		if err := st.SaveUsage(ctx, "a", c); err != nil {
			t.Fatalf("SaveUsage failed: %v", err)
		}
	}
	usage, err := st.LoadUsage(ctx, "a")
	if err != nil {
		t.Fatalf("LoadUsage failed: %v", err)
	}
	if got := usage[domain.RolePrimary]; got.Count != 10 {
		t.Errorf("stale counter lowered usage: %+v", got)
	}

	if err := st.SaveUsage(ctx, "a", domain.UsageCounter{Role: domain.RolePrimary, Date: "2026-03-02", Count: 1}); err != nil {
		t.Fatalf("SaveUsage failed: %v", err)
	}
	usage, err = st.LoadUsage(ctx, "a")
	if err != nil {
		t.Fatalf("LoadUsage failed: %v", err)
	}
	if got := usage[domain.RolePrimary]; got.Date != "2026-03-02" || got.Count != 1 {
		t.Errorf("expected new day counter, got %+v", got)
	}
}

func TestSaveUsageRejectsUnknownRole(t *testing.T) {
	t.Parallel()
	st := NewState(newTestStore(t))

	err := st.SaveUsage(context.Background(), "a", domain.UsageCounter{Role: "tertiary", Date: "2026-03-01", Count: 1})
	if err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestIsBusyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("SQLITE_BUSY: database busy"), true},
		{errors.New("database is locked (5)"), true},
		{errors.New("no such table"), false},
	}
	for _, tt := range tests {
		if got := IsBusyError(tt.err); got != tt.want {
			t.Errorf("IsBusyError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestWithBusyRetry(t *testing.T) {
	t.Parallel()

	calls := 0
	err := withBusyRetry(context.Background(), "op", func() error {
		calls++
		if calls < 2 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Errorf("expected success on second attempt, got %v after %d calls", err, calls)
	}

	calls = 0
	permanent := errors.New("constraint failed")
	err = withBusyRetry(context.Background(), "op", func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) || calls != 1 {
		t.Errorf("expected no retry for permanent error, got %v after %d calls", err, calls)
	}
}
