package interview

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/dsa-quest/internal/catalog"
	"github.com/ashureev/dsa-quest/internal/domain"
)

// Session is one level attempt. It lives in memory only.
type Session struct {
	ID           string
	LearnerID    string
	ModuleID     string
	ModuleName   string
	InitialLives int
	LevelCount   int
	Level        catalog.Level
	CreatedAt    time.Time

	// inflight admits one turn, code run or grading at a time.
	inflight sync.Mutex

	mu                sync.Mutex
	phase             Phase
	transcript        []domain.Turn
	activeQuestion    string
	codeEditorVisible bool
	sentiment         string
	speechDisabled    bool
	narration         *Narration
	end               *EndResult
	touchedAt         time.Time
}

// Snapshot is a point-in-time copy of a session, safe to serialize.
type Snapshot struct {
	ID                string        `json:"id"`
	ModuleID          string        `json:"moduleId"`
	ModuleName        string        `json:"moduleName"`
	LevelID           int           `json:"levelId"`
	LevelName         string        `json:"levelName"`
	Phase             Phase         `json:"phase"`
	Transcript        []domain.Turn `json:"transcript"`
	CodeEditorVisible bool          `json:"codeEditorVisible"`
	StarterCode       string        `json:"starterCode,omitempty"`
	Sentiment         string        `json:"sentiment"`
	SpeechDisabled    bool          `json:"speechDisabled"`
	End               *EndResult    `json:"end,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
}

func newSession(learnerID string, module catalog.Module, level catalog.Level, question string, now time.Time) *Session {
	return &Session{
		ID:             uuid.NewString(),
		LearnerID:      learnerID,
		ModuleID:       module.ID,
		ModuleName:     module.Name,
		InitialLives:   module.InitialLives,
		LevelCount:     module.LevelCount(),
		Level:          level,
		CreatedAt:      now,
		phase:          PhaseGreeting,
		activeQuestion: question,
		sentiment:      "neutral",
		touchedAt:      now,
	}
}

// acquire claims the session for one request without waiting.
func (s *Session) acquire() (func(), error) {
	if !s.inflight.TryLock() {
		return nil, ErrSessionBusy
	}
	return s.inflight.Unlock, nil
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:                s.ID,
		ModuleID:          s.ModuleID,
		ModuleName:        s.ModuleName,
		LevelID:           s.Level.ID,
		LevelName:         s.Level.Name,
		Phase:             s.phase,
		Transcript:        append([]domain.Turn(nil), s.transcript...),
		CodeEditorVisible: s.codeEditorVisible,
		StarterCode:       s.Level.StarterCode(),
		Sentiment:         s.sentiment,
		SpeechDisabled:    s.speechDisabled,
		End:               s.end,
		CreatedAt:         s.CreatedAt,
	}
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// ActiveQuestion returns the technical question chosen when the session opened.
func (s *Session) ActiveQuestion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeQuestion
}

// CodeEditorVisible reports whether the interviewer has asked for code.
func (s *Session) CodeEditorVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codeEditorVisible
}

// Transcript returns a copy of the turns so far.
func (s *Session) Transcript() []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Turn(nil), s.transcript...)
}

// Narration returns the narration of the latest interviewer turn.
func (s *Session) Narration() *Narration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.narration
}

// SpeechDisabled reports whether speech was switched off for the rest of the session.
func (s *Session) SpeechDisabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speechDisabled
}

func (s *Session) disableSpeech() {
	s.mu.Lock()
	s.speechDisabled = true
	s.mu.Unlock()
}

func (s *Session) appendTurn(speaker domain.Speaker, text, code string, now time.Time) domain.Turn {
	t := domain.Turn{ID: uuid.NewString(), Speaker: speaker, Text: text, Code: code}
	s.mu.Lock()
	s.transcript = append(s.transcript, t)
	s.touchedAt = now
	s.mu.Unlock()
	return t
}

// advance records the outcome of an interviewer reply.
func (s *Session) advance(next Phase, sentiment string, action Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = next
	if sentiment = strings.ToLower(strings.TrimSpace(sentiment)); sentiment != "" {
		s.sentiment = sentiment
	} else {
		s.sentiment = "neutral"
	}
	if action == ActionRequestCode {
		s.codeEditorVisible = true
	}
}

func (s *Session) setNarration(n *Narration) {
	s.mu.Lock()
	s.narration = n
	s.mu.Unlock()
}

func (s *Session) finish(res *EndResult, now time.Time) {
	s.mu.Lock()
	s.phase = PhaseTerminal
	s.end = res
	s.touchedAt = now
	s.mu.Unlock()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.touchedAt = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touchedAt
}
