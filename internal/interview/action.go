package interview

import (
	"strings"

	"github.com/ashureev/dsa-quest/internal/inference"
)

// Action is what the interviewer asked for next.
type Action string

const (
	ActionAsk         Action = inference.ActionAsk
	ActionRequestCode Action = inference.ActionRequestCode
	ActionClose       Action = inference.ActionClose
)

// Phrases matched in nextQuestion when the model sends no usable action tag.
// Matching is case-insensitive and misses paraphrases.
var (
	codeRequestPhrases = []string{"write the code", "show me the code"}
	closingPhrases     = []string{"thank you for your time"}
)

// ClassifyAction prefers the structured action tag and falls back to phrase matching.
func ClassifyAction(out *inference.InterviewerOutput) Action {
	switch a := Action(strings.ToLower(strings.TrimSpace(out.Action))); a {
	case ActionAsk, ActionRequestCode, ActionClose:
		return a
	}

	next := strings.ToLower(out.NextQuestion)
	for _, p := range closingPhrases {
		if strings.Contains(next, p) {
			return ActionClose
		}
	}
	for _, p := range codeRequestPhrases {
		if strings.Contains(next, p) {
			return ActionRequestCode
		}
	}
	return ActionAsk
}
