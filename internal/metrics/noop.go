package metrics

import (
	"context"

	"github.com/ashureev/dsa-quest/internal/domain"
	"github.com/ashureev/dsa-quest/internal/inference"
	"github.com/ashureev/dsa-quest/internal/interview"
)

var (
	_ inference.Observer = NoOp{}
	_ interview.Recorder = NoOp{}
)

// NoOp discards every event. It is used when export is disabled or unavailable.
type NoOp struct{}

// NewNoOp creates a no-op recorder for graceful degradation.
func NewNoOp() *NoOp {
	return &NoOp{}
}

func (NoOp) Skipped(context.Context, string, domain.Role)             {}
func (NoOp) Succeeded(context.Context, string, domain.Role)           {}
func (NoOp) Failed(context.Context, string, domain.Role, error, bool) {}
func (NoOp) InterviewStarted(context.Context, string)                 {}
func (NoOp) InterviewGraded(context.Context, string, bool, int)       {}
func (NoOp) Close(context.Context) error                              { return nil }
