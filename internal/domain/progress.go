package domain

import "slices"

// ModuleProgress is a learner's standing within one module.
type ModuleProgress struct {
	ModuleID      string `json:"moduleId"`
	UnlockedLevel int    `json:"unlockedLevel"`
	Lives         int    `json:"lives"`
}

// FreshProgress returns the progress of a module the learner has not attempted.
func FreshProgress(moduleID string, initialLives int) ModuleProgress {
	return ModuleProgress{ModuleID: moduleID, UnlockedLevel: 1, Lives: initialLives}
}

// LearnerState is the aggregate persisted progress record.
type LearnerState struct {
	XP               int                       `json:"xp"`
	EarnedBadges     []string                  `json:"earnedBadges"`
	ProgressByModule map[string]ModuleProgress `json:"progressByModule"`
}

// NewLearnerState returns an empty learner state.
func NewLearnerState() LearnerState {
	return LearnerState{
		EarnedBadges:     []string{},
		ProgressByModule: map[string]ModuleProgress{},
	}
}

// HasBadge returns true if the module's badge has been recorded.
func (s LearnerState) HasBadge(moduleID string) bool {
	return slices.Contains(s.EarnedBadges, moduleID)
}

// Progress returns the module's progress, or fresh progress if none is recorded.
func (s LearnerState) Progress(moduleID string, initialLives int) ModuleProgress {
	if p, ok := s.ProgressByModule[moduleID]; ok {
		p.ModuleID = moduleID
		return p
	}
	return FreshProgress(moduleID, initialLives)
}

// Clone returns a deep copy so callers can derive new states without aliasing.
func (s LearnerState) Clone() LearnerState {
	out := LearnerState{
		XP:               s.XP,
		EarnedBadges:     slices.Clone(s.EarnedBadges),
		ProgressByModule: make(map[string]ModuleProgress, len(s.ProgressByModule)),
	}
	if out.EarnedBadges == nil {
		out.EarnedBadges = []string{}
	}
	for k, v := range s.ProgressByModule {
		out.ProgressByModule[k] = v
	}
	return out
}
