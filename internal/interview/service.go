package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/dsa-quest/internal/catalog"
	"github.com/ashureev/dsa-quest/internal/credential"
	"github.com/ashureev/dsa-quest/internal/domain"
	"github.com/ashureev/dsa-quest/internal/inference"
	"github.com/ashureev/dsa-quest/internal/progression"
)

// Flows is the set of model calls an interview makes.
type Flows interface {
	SimulateInterviewer(ctx context.Context, ledger inference.Ledger, in inference.InterviewerInput) (*inference.InterviewerOutput, error)
	GradeInterview(ctx context.Context, ledger inference.Ledger, in inference.GradeInput) (domain.PerformanceReport, error)
	ReviewCode(ctx context.Context, ledger inference.Ledger, in inference.CodeReviewInput) (*inference.CodeReviewOutput, error)
	ExecuteCode(ctx context.Context, ledger inference.Ledger, in inference.ExecuteInput) (*inference.ExecuteOutput, error)
	DailyQuestion(ctx context.Context, ledger inference.Ledger, in inference.DailyQuestionInput) (*inference.DailyQuestionOutput, error)
	Speak(ctx context.Context, ledger inference.Ledger, text string) ([]byte, domain.Role, error)
}

// Ensure inference.Client implements Flows.
var _ Flows = (*inference.Client)(nil)

// Ledgers hands out per-learner credential ledgers and persists their counters.
type Ledgers interface {
	Ledger(ctx context.Context, learnerID string) (*credential.Ledger, error)
	Persist(ctx context.Context, learnerID string, ledger *credential.Ledger, role domain.Role) error
}

// StateStore reads and updates learner progress. UpdateState must serialize
// updates for the same learner.
type StateStore interface {
	LoadState(ctx context.Context, learnerID string) (domain.LearnerState, error)
	UpdateState(ctx context.Context, learnerID string, fn func(domain.LearnerState) (domain.LearnerState, error)) (domain.LearnerState, error)
}

// Syncer pushes a learner's persisted state to remote backup.
type Syncer interface {
	Push(ctx context.Context, learnerID string) error
}

// Recorder receives interview lifecycle events, e.g. for metrics.
type Recorder interface {
	InterviewStarted(ctx context.Context, moduleID string)
	InterviewGraded(ctx context.Context, moduleID string, passed bool, xp int)
}

type noopRecorder struct{}

func (noopRecorder) InterviewStarted(context.Context, string)           {}
func (noopRecorder) InterviewGraded(context.Context, string, bool, int) {}

// Config holds the service's collaborators and settings.
type Config struct {
	Catalog  *catalog.Catalog
	Flows    Flows
	Ledgers  Ledgers
	State    StateStore
	Sessions *Registry
	// Syncer is optional; nil disables backup after grading.
	Syncer   Syncer
	Recorder Recorder
	Logger   *slog.Logger

	SpeechEnabled bool
	SpeechTimeout time.Duration
	// Pick selects surprise questions; nil picks uniformly at random.
	Pick func(n int) int
	Now  func() time.Time
}

// Service runs interviews.
type Service struct {
	catalog  *catalog.Catalog
	flows    Flows
	ledgers  Ledgers
	state    StateStore
	sessions *Registry
	syncer   Syncer
	recorder Recorder
	logger   *slog.Logger

	speechEnabled bool
	speechTimeout time.Duration
	pick          func(n int) int
	now           func() time.Time

	speech sync.WaitGroup
}

// NewService creates an interview service.
func NewService(cfg Config) *Service {
	s := &Service{
		catalog:       cfg.Catalog,
		flows:         cfg.Flows,
		ledgers:       cfg.Ledgers,
		state:         cfg.State,
		sessions:      cfg.Sessions,
		syncer:        cfg.Syncer,
		recorder:      cfg.Recorder,
		logger:        cfg.Logger,
		speechEnabled: cfg.SpeechEnabled,
		speechTimeout: cfg.SpeechTimeout,
		pick:          cfg.Pick,
		now:           cfg.Now,
	}
	if s.sessions == nil {
		s.sessions = NewRegistry(cfg.Now)
	}
	if s.recorder == nil {
		s.recorder = noopRecorder{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.speechTimeout <= 0 {
		s.speechTimeout = 60 * time.Second
	}
	if s.pick == nil {
		s.pick = rand.IntN
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Sessions returns the session registry.
func (s *Service) Sessions() *Registry {
	return s.sessions
}

// TurnInput is a learner reply.
type TurnInput struct {
	Text string `json:"text"`
	// Code is only taken into account once the interviewer has asked for code.
	Code     string `json:"code,omitempty"`
	Language string `json:"language,omitempty"`
}

// TurnResult is the interviewer's answer to a learner turn.
type TurnResult struct {
	Turn              domain.Turn         `json:"turn"`
	Phase             Phase               `json:"phase"`
	Action            Action              `json:"action"`
	CodeEditorVisible bool                `json:"codeEditorVisible"`
	Sentiment         string              `json:"sentiment"`
	UsedCredential    domain.Role         `json:"usedCredential"`
	Notices           []credential.Notice `json:"notices,omitempty"`
	// End is set when the interviewer closed the interview and grading succeeded.
	End *EndResult `json:"end,omitempty"`
	// EndError is set when the interviewer closed the interview but grading failed.
	EndError string `json:"endError,omitempty"`
}

// EndResult is a graded interview and its effect on the learner's progress.
type EndResult struct {
	Report  domain.PerformanceReport `json:"report"`
	Outcome progression.Outcome      `json:"outcome"`
	TotalXP int                      `json:"totalXp"`
	Synced  bool                     `json:"synced"`
}

// Start opens a session for a level and speaks the opening line.
func (s *Service) Start(ctx context.Context, learnerID, moduleID string, levelID int) (*Session, error) {
	module, err := s.catalog.Module(moduleID)
	if err != nil {
		return nil, err
	}
	level, err := module.Level(levelID)
	if err != nil {
		return nil, err
	}

	state, err := s.state.LoadState(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	if progress := state.Progress(moduleID, module.InitialLives); levelID > progress.UnlockedLevel {
		return nil, fmt.Errorf("%w: %s level %d (unlocked %d)", ErrLevelLocked, moduleID, levelID, progress.UnlockedLevel)
	}

	now := s.now()
	sess := newSession(learnerID, module, level, module.QuestionFor(level, s.pick), now)
	opening := sess.appendTurn(domain.SpeakerInterviewer, OpeningLine, "", now)
	s.sessions.Add(sess)
	s.narrate(sess, opening)
	s.recorder.InterviewStarted(ctx, moduleID)

	s.logger.Info("Interview started",
		"learner_id", learnerID,
		"session_id", sess.ID,
		"module_id", moduleID,
		"level_id", levelID,
		"surprise", level.Surprise,
	)
	return sess, nil
}

// Get returns the learner's session.
func (s *Service) Get(learnerID, sessionID string) (*Session, error) {
	return s.sessions.Get(sessionID, learnerID)
}

// Discard drops the learner's session.
func (s *Service) Discard(learnerID, sessionID string) error {
	if err := s.sessions.Remove(sessionID, learnerID); err != nil {
		return err
	}
	s.logger.Info("Interview discarded", "learner_id", learnerID, "session_id", sessionID)
	return nil
}

// Reply handles one learner turn. On failure the learner's turn stays in the
// transcript and the phase is unchanged.
func (s *Service) Reply(ctx context.Context, learnerID, sessionID string, in TurnInput) (*TurnResult, error) {
	sess, err := s.sessions.Get(sessionID, learnerID)
	if err != nil {
		return nil, err
	}
	release, err := sess.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	phase := sess.Phase()
	next, err := phase.Next()
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(in.Text)
	code := ""
	if sess.CodeEditorVisible() && strings.TrimSpace(in.Code) != "" {
		code = in.Code
	}
	if text == "" && code == "" {
		return nil, ErrEmptyTurn
	}

	ledger, err := s.ledgers.Ledger(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	notices := credential.CheckAndWarn(ledger)
	s.logNotices(learnerID, notices)

	sess.appendTurn(domain.SpeakerUser, text, code, s.now())

	question := sess.ActiveQuestion()
	req := inference.InterviewerInput{
		UserResponse:                text,
		PreviousConversationSummary: History(sess.Transcript(), HistoryWindow),
		Question:                    question,
	}

	var review *inference.CodeReviewOutput
	switch phase {
	case PhaseGreeting:
		req.InterviewerPrompt = icebreakerPrompt
		req.Question = ""
	case PhaseIcebreaker:
		req.InterviewerPrompt = technicalIntroPrompt
	case PhaseTechnical:
		req.InterviewerPrompt = answerPrompt
		if code != "" {
			review, err = s.flows.ReviewCode(ctx, ledger, inference.CodeReviewInput{
				Code:               code,
				Language:           languageOrDefault(in.Language),
				ProblemDescription: question,
			})
			if err != nil {
				s.logTurnError(sess, phase, "code review failed", err)
				return nil, err
			}
			s.persistUsage(ctx, learnerID, ledger, review.UsedCredential)
			req.InterviewerPrompt = codeSubmissionPrompt
			req.UserResponse = fmt.Sprintf("%s\n\nCode Submitted:\n%s\n\nAI Code Review:\n%s", text, code, review.Feedback)
		}
	}

	out, err := s.flows.SimulateInterviewer(ctx, ledger, req)
	if err != nil {
		s.logTurnError(sess, phase, "interviewer call failed", err)
		return nil, err
	}
	s.persistUsage(ctx, learnerID, ledger, out.UsedCredential)

	response := out.InterviewerResponse
	if review != nil {
		response = review.Feedback + "\n\n" + response
	}

	action := ClassifyAction(out)
	sess.advance(next, out.Sentiment, action)
	turn := sess.appendTurn(domain.SpeakerInterviewer, response, "", s.now())
	s.narrate(sess, turn)

	snap := sess.Snapshot()
	result := &TurnResult{
		Turn:              turn,
		Phase:             snap.Phase,
		Action:            action,
		CodeEditorVisible: snap.CodeEditorVisible,
		Sentiment:         snap.Sentiment,
		UsedCredential:    out.UsedCredential,
		Notices:           notices,
	}

	s.logger.Info("Interview turn completed",
		"learner_id", learnerID,
		"session_id", sess.ID,
		"phase", snap.Phase,
		"action", action,
		"role", out.UsedCredential,
	)

	if action == ActionClose {
		end, err := s.end(ctx, sess, ledger)
		if err != nil {
			s.logTurnError(sess, snap.Phase, "grading after close failed", err)
			result.EndError = err.Error()
		} else {
			result.End = end
			result.Phase = PhaseTerminal
		}
	}
	return result, nil
}

// RunCode simulates running code for the session's question. Nothing is appended
// to the transcript.
func (s *Service) RunCode(ctx context.Context, learnerID, sessionID string, code, language string) (*inference.ExecuteOutput, error) {
	sess, err := s.sessions.Get(sessionID, learnerID)
	if err != nil {
		return nil, err
	}
	release, err := sess.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	if sess.Phase().Over() {
		return nil, ErrInterviewOver
	}
	if strings.TrimSpace(code) == "" {
		return nil, ErrEmptyTurn
	}

	ledger, err := s.ledgers.Ledger(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	out, err := s.flows.ExecuteCode(ctx, ledger, inference.ExecuteInput{
		Code:               code,
		Language:           languageOrDefault(language),
		ProblemDescription: sess.ActiveQuestion(),
	})
	if err != nil {
		s.logger.Warn("Code run failed", "learner_id", learnerID, "session_id", sessionID, "error", err)
		return nil, err
	}
	s.persistUsage(ctx, learnerID, ledger, out.UsedCredential)
	return out, nil
}

// End grades the interview and applies the result to the learner's progress.
// If grading fails the session stays open so the learner can try again.
func (s *Service) End(ctx context.Context, learnerID, sessionID string) (*EndResult, error) {
	sess, err := s.sessions.Get(sessionID, learnerID)
	if err != nil {
		return nil, err
	}
	release, err := sess.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	ledger, err := s.ledgers.Ledger(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	return s.end(ctx, sess, ledger)
}

// end must be called with the session acquired.
func (s *Service) end(ctx context.Context, sess *Session, ledger *credential.Ledger) (*EndResult, error) {
	if sess.Phase().Over() {
		return nil, ErrInterviewOver
	}

	report, err := s.flows.GradeInterview(ctx, ledger, inference.GradeInput{
		InterviewTranscript: FormatTranscript(sess.Transcript()),
		LevelID:             sess.Level.ID,
	})
	if err != nil {
		return nil, err
	}
	s.persistUsage(ctx, sess.LearnerID, ledger, report.UsedCredential)

	var outcome progression.Outcome
	next, err := s.state.UpdateState(ctx, sess.LearnerID, func(state domain.LearnerState) (domain.LearnerState, error) {
		outcome = progression.GradeAndAdvance(report, state.Progress(sess.ModuleID, sess.InitialLives), progression.Attempt{
			ModuleID:     sess.ModuleID,
			LevelID:      sess.Level.ID,
			LevelCount:   sess.LevelCount,
			InitialLives: sess.InitialLives,
			BadgeEarned:  state.HasBadge(sess.ModuleID),
		})
		return progression.Apply(state, outcome), nil
	})
	if err != nil {
		return nil, fmt.Errorf("save progress: %w", err)
	}

	res := &EndResult{Report: report.ClampXP(), Outcome: outcome, TotalXP: next.XP}
	if s.syncer != nil {
		if err := s.syncer.Push(ctx, sess.LearnerID); err != nil {
			s.logger.Warn("Backup after grading failed", "learner_id", sess.LearnerID, "error", err)
		} else {
			res.Synced = true
		}
	}

	sess.finish(res, s.now())
	s.recorder.InterviewGraded(ctx, sess.ModuleID, outcome.Passed, outcome.XPDelta)
	s.logger.Info("Interview graded",
		"learner_id", sess.LearnerID,
		"session_id", sess.ID,
		"module_id", sess.ModuleID,
		"level_id", sess.Level.ID,
		"xp", report.XPPoints,
		"passed", outcome.Passed,
		"badge", outcome.BadgeAwarded,
		"module_reset", outcome.ModuleReset,
	)
	return res, nil
}

// WaitSpeech blocks until background speech synthesis has finished or ctx is done.
func (s *Service) WaitSpeech(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.speech.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// narrate attaches a narration for turn and synthesizes its audio in the background.
// A quota-class failure switches speech off for the rest of the session.
func (s *Service) narrate(sess *Session, turn domain.Turn) {
	n := newNarration(turn.ID, turn.Text)
	sess.setNarration(n)
	if !s.speechEnabled || sess.SpeechDisabled() {
		n.resolve(nil, ErrSpeechDisabled)
		return
	}

	s.speech.Add(1)
	go func() {
		defer s.speech.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.speechTimeout)
		defer cancel()

		ledger, err := s.ledgers.Ledger(ctx, sess.LearnerID)
		if err != nil {
			n.resolve(nil, err)
			return
		}
		audio, role, err := s.flows.Speak(ctx, ledger, turn.Text)
		if err != nil {
			if inference.IsQuotaClass(err) {
				sess.disableSpeech()
				s.logger.Warn("Speech quota exceeded, audio disabled for this interview",
					"session_id", sess.ID, "error", err)
			} else if !errors.Is(err, inference.ErrNoCredential) {
				s.logger.Warn("Speech synthesis failed", "session_id", sess.ID, "error", err)
			}
			n.resolve(nil, err)
			return
		}
		s.persistUsage(ctx, sess.LearnerID, ledger, role)
		n.resolve(audio, nil)
	}()
}

func (s *Service) persistUsage(ctx context.Context, learnerID string, ledger *credential.Ledger, role domain.Role) {
	if role == "" {
		return
	}
	if err := s.ledgers.Persist(ctx, learnerID, ledger, role); err != nil {
		s.logger.Warn("Failed to persist usage counter", "learner_id", learnerID, "role", role, "error", err)
	}
}

func (s *Service) logNotices(learnerID string, notices []credential.Notice) {
	for _, n := range notices {
		s.logger.Warn("Credential usage notice",
			"learner_id", learnerID,
			"role", n.Role,
			"kind", n.Kind,
			"used", n.Used,
			"ceiling", n.Ceiling,
		)
	}
}

func (s *Service) logTurnError(sess *Session, phase Phase, msg string, err error) {
	s.logger.Error(msg,
		"learner_id", sess.LearnerID,
		"session_id", sess.ID,
		"phase", phase,
		"error", err,
	)
}

func languageOrDefault(lang string) string {
	if lang = strings.TrimSpace(lang); lang != "" {
		return lang
	}
	return "javascript"
}
