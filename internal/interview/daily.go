package interview

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashureev/dsa-quest/internal/catalog"
	"github.com/ashureev/dsa-quest/internal/domain"
	"github.com/ashureev/dsa-quest/internal/inference"
)

// DailyQuestion is a review question drawn from completed modules.
type DailyQuestion struct {
	Question       string      `json:"question"`
	Module         string      `json:"module"`
	Level          string      `json:"level"`
	UsedCredential domain.Role `json:"usedCredential,omitempty"`
}

// DailyFeedback is the evaluation of an answer to a daily question.
type DailyFeedback struct {
	Response       string      `json:"response"`
	Sentiment      string      `json:"sentiment"`
	UsedCredential domain.Role `json:"usedCredential"`
}

// DailyQuestion generates a question from modules whose badge is earned, or
// failing that from modules with at least one completed level. Without either
// no model call is made.
func (s *Service) DailyQuestion(ctx context.Context, learnerID string) (*DailyQuestion, error) {
	state, err := s.state.LoadState(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}

	modules := s.catalog.Names(completedModules(state, s.catalog.Modules()))
	if len(modules) == 0 {
		return &DailyQuestion{Question: NoDailyQuestion, Module: "N/A", Level: "N/A"}, nil
	}

	ledger, err := s.ledgers.Ledger(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	out, err := s.flows.DailyQuestion(ctx, ledger, inference.DailyQuestionInput{CompletedModules: modules})
	if err != nil {
		s.logger.Warn("Daily question generation failed", "learner_id", learnerID, "error", err)
		return nil, err
	}
	s.persistUsage(ctx, learnerID, ledger, out.UsedCredential)

	return &DailyQuestion{
		Question:       out.Question,
		Module:         out.Module,
		Level:          out.Level,
		UsedCredential: out.UsedCredential,
	}, nil
}

// AnswerDaily evaluates the learner's answer to a daily question.
func (s *Service) AnswerDaily(ctx context.Context, learnerID, question, answer string) (*DailyFeedback, error) {
	if strings.TrimSpace(answer) == "" || strings.TrimSpace(question) == "" {
		return nil, ErrEmptyTurn
	}

	ledger, err := s.ledgers.Ledger(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	out, err := s.flows.SimulateInterviewer(ctx, ledger, inference.InterviewerInput{
		UserResponse:      answer,
		InterviewerPrompt: dailyAnswerPrompt,
		Question:          question,
	})
	if err != nil {
		return nil, err
	}
	s.persistUsage(ctx, learnerID, ledger, out.UsedCredential)

	sentiment := strings.ToLower(strings.TrimSpace(out.Sentiment))
	if sentiment == "" {
		sentiment = "neutral"
	}
	return &DailyFeedback{Response: out.InterviewerResponse, Sentiment: sentiment, UsedCredential: out.UsedCredential}, nil
}

// completedModules returns badge modules in catalog order, falling back to
// modules with any completed level.
func completedModules(state domain.LearnerState, modules []catalog.Module) []string {
	var badges, started []string
	for _, m := range modules {
		if state.HasBadge(m.ID) {
			badges = append(badges, m.ID)
		}
		if p, ok := state.ProgressByModule[m.ID]; ok && p.UnlockedLevel > 1 {
			started = append(started, m.ID)
		}
	}
	if len(badges) > 0 {
		return badges
	}
	return started
}
