package progression

import (
	"testing"

	"github.com/ashureev/dsa-quest/internal/domain"
)

func report(xp int) domain.PerformanceReport {
	return domain.PerformanceReport{Summary: "s", XPPoints: xp}
}

func TestGradeAndAdvance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		xp      int
		current domain.ModuleProgress
		attempt Attempt
		want    Outcome
	}{
		{
			name:    "pass unlocks next level",
			xp:      51,
			current: domain.ModuleProgress{ModuleID: "m", UnlockedLevel: 3, Lives: 2},
			attempt: Attempt{ModuleID: "m", LevelID: 3, LevelCount: 5, InitialLives: 5},
			want: Outcome{
				Passed:   true,
				Progress: domain.ModuleProgress{ModuleID: "m", UnlockedLevel: 4, Lives: 2},
				XPDelta:  51,
			},
		},
		{
			name:    "pass on earlier level keeps unlock",
			xp:      90,
			current: domain.ModuleProgress{ModuleID: "m", UnlockedLevel: 4, Lives: 3},
			attempt: Attempt{ModuleID: "m", LevelID: 1, LevelCount: 5, InitialLives: 5},
			want: Outcome{
				Passed:   true,
				Progress: domain.ModuleProgress{ModuleID: "m", UnlockedLevel: 4, Lives: 3},
				XPDelta:  90,
			},
		},
		{
			name:    "boundary fail on last life resets module",
			xp:      50,
			current: domain.ModuleProgress{ModuleID: "m", UnlockedLevel: 1, Lives: 1},
			attempt: Attempt{ModuleID: "m", LevelID: 1, LevelCount: 5, InitialLives: 5},
			want: Outcome{
				Progress:    domain.ModuleProgress{ModuleID: "m", UnlockedLevel: 1, Lives: 5},
				ModuleReset: true,
			},
		},
		{
			name:    "fail with lives left only drops a life",
			xp:      10,
			current: domain.ModuleProgress{ModuleID: "m", UnlockedLevel: 3, Lives: 3},
			attempt: Attempt{ModuleID: "m", LevelID: 3, LevelCount: 5, InitialLives: 5},
			want: Outcome{
				Progress: domain.ModuleProgress{ModuleID: "m", UnlockedLevel: 3, Lives: 2},
			},
		},
		{
			name:    "final level awards badge",
			xp:      120,
			current: domain.ModuleProgress{ModuleID: "m", UnlockedLevel: 5, Lives: 4},
			attempt: Attempt{ModuleID: "m", LevelID: 5, LevelCount: 5, InitialLives: 5},
			want: Outcome{
				Passed:       true,
				Progress:     domain.ModuleProgress{ModuleID: "m", UnlockedLevel: 6, Lives: 4},
				XPDelta:      120,
				BadgeAwarded: true,
			},
		},
		{
			name:    "final level with badge already recorded",
			xp:      120,
			current: domain.ModuleProgress{ModuleID: "m", UnlockedLevel: 6, Lives: 4},
			attempt: Attempt{ModuleID: "m", LevelID: 5, LevelCount: 5, InitialLives: 5, BadgeEarned: true},
			want: Outcome{
				Passed:   true,
				Progress: domain.ModuleProgress{ModuleID: "m", UnlockedLevel: 6, Lives: 4},
				XPDelta:  120,
			},
		},
		{
			name:    "xp above maximum is clamped",
			xp:      999,
			current: domain.ModuleProgress{ModuleID: "m", UnlockedLevel: 1, Lives: 5},
			attempt: Attempt{ModuleID: "m", LevelID: 1, LevelCount: 5, InitialLives: 5},
			want: Outcome{
				Passed:   true,
				Progress: domain.ModuleProgress{ModuleID: "m", UnlockedLevel: 2, Lives: 5},
				XPDelta:  domain.MaxXPPoints,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := GradeAndAdvance(report(tt.xp), tt.current, tt.attempt)
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestBadgeAwardedOnce(t *testing.T) {
	t.Parallel()

	state := domain.NewLearnerState()
	state.ProgressByModule["m"] = domain.ModuleProgress{ModuleID: "m", UnlockedLevel: 3, Lives: 5}

	for range 2 {
		a := Attempt{ModuleID: "m", LevelID: 3, LevelCount: 3, InitialLives: 5, BadgeEarned: state.HasBadge("m")}
		state = Apply(state, GradeAndAdvance(report(80), state.Progress("m", 5), a))
	}

	if len(state.EarnedBadges) != 1 || state.EarnedBadges[0] != "m" {
		t.Errorf("expected exactly one badge, got %v", state.EarnedBadges)
	}
	if state.XP != 160 {
		t.Errorf("expected xp 160, got %d", state.XP)
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	state := domain.NewLearnerState()
	out := Outcome{Passed: true, Progress: domain.ModuleProgress{ModuleID: "m", UnlockedLevel: 2, Lives: 5}, XPDelta: 60, BadgeAwarded: true}

	next := Apply(state, out)
	if len(state.ProgressByModule) != 0 || len(state.EarnedBadges) != 0 || state.XP != 0 {
		t.Errorf("input state was mutated: %+v", state)
	}
	if next.XP != 60 || next.ProgressByModule["m"].UnlockedLevel != 2 {
		t.Errorf("unexpected next state %+v", next)
	}
}

func TestResetModule(t *testing.T) {
	t.Parallel()

	state := domain.NewLearnerState()
	state.XP = 300
	state.EarnedBadges = []string{"m"}
	state.ProgressByModule["m"] = domain.ModuleProgress{ModuleID: "m", UnlockedLevel: 4, Lives: 1}
	state.ProgressByModule["other"] = domain.ModuleProgress{ModuleID: "other", UnlockedLevel: 2, Lives: 3}

	next := ResetModule(state, "m", 5)
	if got := next.ProgressByModule["m"]; got.UnlockedLevel != 1 || got.Lives != 5 {
		t.Errorf("expected fresh progress, got %+v", got)
	}
	if got := next.ProgressByModule["other"]; got.UnlockedLevel != 2 {
		t.Errorf("other module changed: %+v", got)
	}
	if next.XP != 300 || !next.HasBadge("m") {
		t.Errorf("reset must keep xp and badges, got %+v", next)
	}
	if state.ProgressByModule["m"].UnlockedLevel != 4 {
		t.Errorf("input state was mutated")
	}
}
