package domain

import "strings"

// Speaker identifies who produced a transcript turn.
type Speaker string

const (
	// SpeakerInterviewer marks turns produced by the simulated interviewer.
	SpeakerInterviewer Speaker = "interviewer"
	// SpeakerUser marks turns produced by the learner.
	SpeakerUser Speaker = "user"
)

// Turn is one utterance in an interview transcript.
type Turn struct {
	ID      string  `json:"id"`
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
	Code    string  `json:"code,omitempty"`
}

// HasCode returns true if the turn carries a code submission.
func (t Turn) HasCode() bool {
	return strings.TrimSpace(t.Code) != ""
}

// MaxXPPoints bounds the experience awarded for a single interview.
const MaxXPPoints = 150

// PerformanceReport is the graded outcome of a finished interview.
type PerformanceReport struct {
	Summary          string `json:"summary"`
	Strengths        string `json:"strengths"`
	Weaknesses       string `json:"weaknesses"`
	ImprovementAreas string `json:"improvementAreas"`
	XPPoints         int    `json:"xpPoints"`
	UsedCredential   Role   `json:"usedCredential"`
}

// ClampXP bounds XPPoints to [0, MaxXPPoints].
func (r PerformanceReport) ClampXP() PerformanceReport {
	if r.XPPoints < 0 {
		r.XPPoints = 0
	}
	if r.XPPoints > MaxXPPoints {
		r.XPPoints = MaxXPPoints
	}
	return r
}
