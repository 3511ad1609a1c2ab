// Package inference calls the external language-model service on behalf of the
// learner, failing over between credentials on quota errors.
package inference

import (
	"context"

	"github.com/ashureev/dsa-quest/internal/credential"
	"github.com/ashureev/dsa-quest/internal/domain"
)

// Prompt template names understood by the inference service.
const (
	TemplateInterviewer = "simulateAiInterviewer"
	TemplateGrade       = "analyzeInterviewPerformance"
	TemplateCodeReview  = "provideRealtimeCodeReview"
	TemplateExecuteCode = "executeCode"
	TemplateDailyStreak = "generateDailyStreakQuestion"
	TemplateSpeech      = "textToSpeech"
)

// Request is a structured prompt: a template name plus its input fields.
type Request struct {
	Template string
	Input    map[string]any
}

// Model is the inference collaborator: structured prompt in, structured JSON out.
// Implementations must let quota failures be told apart from other failures
// (see IsQuotaClass).
type Model interface {
	Generate(ctx context.Context, req Request, secret string) (map[string]any, error)
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(ctx context.Context, req Request, secret string) (map[string]any, error)

// Generate calls f.
func (f ModelFunc) Generate(ctx context.Context, req Request, secret string) (map[string]any, error) {
	return f(ctx, req, secret)
}

// Ledger is what the invoker needs from a credential ledger.
type Ledger interface {
	credential.View
	Record(role domain.Role) domain.UsageCounter
}

// Ensure credential.Ledger satisfies Ledger.
var _ Ledger = (*credential.Ledger)(nil)

// Observer receives invocation events, e.g. for metrics.
type Observer interface {
	Skipped(ctx context.Context, template string, role domain.Role)
	Succeeded(ctx context.Context, template string, role domain.Role)
	Failed(ctx context.Context, template string, role domain.Role, err error, failover bool)
}

type noopObserver struct{}

func (noopObserver) Skipped(context.Context, string, domain.Role)             {}
func (noopObserver) Succeeded(context.Context, string, domain.Role)           {}
func (noopObserver) Failed(context.Context, string, domain.Role, error, bool) {}
