// Package progression turns a graded interview into updated module progress,
// experience and badges.
package progression

import (
	"github.com/ashureev/dsa-quest/internal/domain"
)

// PassThreshold is the score a report must exceed to count as passed.
const PassThreshold = 50

// Attempt identifies the level a report was earned on.
type Attempt struct {
	ModuleID     string
	LevelID      int
	LevelCount   int
	InitialLives int
	// BadgeEarned reports whether the module's badge is already recorded.
	BadgeEarned bool
}

// Outcome is the result of grading an attempt.
type Outcome struct {
	Passed       bool                  `json:"passed"`
	Progress     domain.ModuleProgress `json:"progress"`
	XPDelta      int                   `json:"xpDelta"`
	BadgeAwarded bool                  `json:"badgeAwarded"`
	// ModuleReset is set when the last life was lost.
	ModuleReset bool `json:"moduleReset"`
}

// GradeAndAdvance applies the pass/fail rules to current. It has no side effects.
func GradeAndAdvance(report domain.PerformanceReport, current domain.ModuleProgress, a Attempt) Outcome {
	report = report.ClampXP()
	current = normalize(current, a)

	if report.XPPoints > PassThreshold {
		next := current
		next.UnlockedLevel = max(current.UnlockedLevel, a.LevelID+1)
		return Outcome{
			Passed:       true,
			Progress:     next,
			XPDelta:      report.XPPoints,
			BadgeAwarded: next.UnlockedLevel > a.LevelCount && !a.BadgeEarned,
		}
	}

	lives := current.Lives - 1
	if lives <= 0 {
		return Outcome{
			Progress:    domain.FreshProgress(a.ModuleID, a.InitialLives),
			ModuleReset: true,
		}
	}
	next := current
	next.Lives = lives
	return Outcome{Progress: next}
}

// Apply returns a copy of state with the outcome recorded.
func Apply(state domain.LearnerState, o Outcome) domain.LearnerState {
	next := state.Clone()
	next.ProgressByModule[o.Progress.ModuleID] = o.Progress
	next.XP += o.XPDelta
	if o.BadgeAwarded && !next.HasBadge(o.Progress.ModuleID) {
		next.EarnedBadges = append(next.EarnedBadges, o.Progress.ModuleID)
	}
	return next
}

// ResetModule returns a copy of state with the module back at level 1 and full lives.
// Experience and badges are kept.
func ResetModule(state domain.LearnerState, moduleID string, initialLives int) domain.LearnerState {
	next := state.Clone()
	next.ProgressByModule[moduleID] = domain.FreshProgress(moduleID, initialLives)
	return next
}

func normalize(p domain.ModuleProgress, a Attempt) domain.ModuleProgress {
	p.ModuleID = a.ModuleID
	if p.UnlockedLevel < 1 {
		p.UnlockedLevel = 1
	}
	p.Lives = min(max(p.Lives, 0), a.InitialLives)
	return p
}
