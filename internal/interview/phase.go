// Package interview runs mock-interview sessions: the phase machine, the
// transcript, narration of interviewer turns and the hand-off to grading.
package interview

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned for unknown sessions or sessions owned by another learner.
	ErrSessionNotFound = errors.New("interview session not found")
	// ErrSessionBusy is returned when a request is already in flight for the session.
	ErrSessionBusy = errors.New("a request is already in progress for this interview")
	// ErrInterviewOver is returned for turns sent after the interview reached its terminal phase.
	ErrInterviewOver = errors.New("the interview is already over")
	// ErrEmptyTurn is returned when a turn has neither text nor code.
	ErrEmptyTurn = errors.New("a reply needs text or code")
	// ErrLevelLocked is returned when opening a level above the module's unlocked level.
	ErrLevelLocked = errors.New("level is locked")
)

// Phase is a stage of an interview session.
type Phase int

const (
	PhaseGreeting Phase = iota
	PhaseIcebreaker
	PhaseTechnical
	PhaseTerminal
)

var phaseNames = map[Phase]string{
	PhaseGreeting:   "greeting",
	PhaseIcebreaker: "icebreaker",
	PhaseTechnical:  "technical",
	PhaseTerminal:   "terminal",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name.
func (p *Phase) UnmarshalText(text []byte) error {
	for phase, name := range phaseNames {
		if name == string(text) {
			*p = phase
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// afterLearnerTurn is the phase reached once the interviewer answered a learner
// turn sent in the key phase. Technical loops until the interview is closed.
var afterLearnerTurn = map[Phase]Phase{
	PhaseGreeting:   PhaseIcebreaker,
	PhaseIcebreaker: PhaseTechnical,
	PhaseTechnical:  PhaseTechnical,
}

// Next returns the phase that follows a learner turn in p.
func (p Phase) Next() (Phase, error) {
	next, ok := afterLearnerTurn[p]
	if !ok {
		return p, ErrInterviewOver
	}
	return next, nil
}

// Over reports whether p is terminal.
func (p Phase) Over() bool {
	return p == PhaseTerminal
}
