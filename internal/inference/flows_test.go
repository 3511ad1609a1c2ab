package inference

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/ashureev/dsa-quest/internal/domain"
)

func clientReturning(out map[string]any, seen *Request) *Client {
	model := ModelFunc(func(_ context.Context, r Request, _ string) (map[string]any, error) {
		if seen != nil {
			*seen = r
		}
		return out, nil
	})
	return NewClient(NewInvoker(model))
}

func TestSimulateInterviewer(t *testing.T) {
	t.Parallel()

	var seen Request
	c := clientReturning(map[string]any{
		"interviewerResponse": "Great, let's start.",
		"nextQuestion":        "Tell me about yourself.",
		"conversationSummary": "Greeting done.",
		"sentiment":           "positive",
		"action":              "ask",
	}, &seen)

	out, err := c.SimulateInterviewer(context.Background(), newLedger("P", "", 0, 0, nil), InterviewerInput{
		UserResponse: "Yes",
		Question:     "Two sum",
	})
	if err != nil {
		t.Fatalf("SimulateInterviewer failed: %v", err)
	}
	if out.InterviewerResponse != "Great, let's start." || out.Sentiment != "positive" {
		t.Errorf("unexpected output %+v", out)
	}
	if out.UsedCredential != domain.RolePrimary {
		t.Errorf("expected primary, got %s", out.UsedCredential)
	}
	if seen.Template != TemplateInterviewer {
		t.Errorf("expected template %s, got %s", TemplateInterviewer, seen.Template)
	}
	if seen.Input["userResponse"] != "Yes" {
		t.Errorf("expected userResponse in input, got %v", seen.Input)
	}
	if opts, ok := seen.Input["actionOptions"].([]any); !ok || len(opts) != 3 {
		t.Errorf("expected default action options, got %v", seen.Input["actionOptions"])
	}
}

func TestSimulateInterviewerMissingResponse(t *testing.T) {
	t.Parallel()

	c := clientReturning(map[string]any{"sentiment": "neutral"}, nil)
	_, err := c.SimulateInterviewer(context.Background(), newLedger("P", "", 0, 0, nil), InterviewerInput{})
	var outErr *ModelOutputError
	if !errors.As(err, &outErr) {
		t.Fatalf("expected ModelOutputError, got %T %v", err, err)
	}
	if outErr.Template != TemplateInterviewer {
		t.Errorf("expected template on error, got %s", outErr.Template)
	}
}

func TestGradeInterviewClampsXP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		xp   float64
		want int
	}{
		{80, 80},
		{400, domain.MaxXPPoints},
		{-10, 0},
	}
	for _, tt := range tests {
		c := clientReturning(map[string]any{
			"summary":          "Solid.",
			"strengths":        "Clear.",
			"weaknesses":       "Slow.",
			"improvementAreas": "Practice.",
			"xpPoints":         tt.xp,
		}, nil)
		report, err := c.GradeInterview(context.Background(), newLedger("P", "", 0, 0, nil), GradeInput{LevelID: 1})
		if err != nil {
			t.Fatalf("GradeInterview failed: %v", err)
		}
		if report.XPPoints != tt.want {
			t.Errorf("xp %v: expected %d, got %d", tt.xp, tt.want, report.XPPoints)
		}
	}
}

func TestGradeInterviewWrongShape(t *testing.T) {
	t.Parallel()

	c := clientReturning(map[string]any{"summary": "ok", "xpPoints": "lots"}, nil)
	_, err := c.GradeInterview(context.Background(), newLedger("P", "", 0, 0, nil), GradeInput{})
	var outErr *ModelOutputError
	if !errors.As(err, &outErr) {
		t.Fatalf("expected ModelOutputError, got %T %v", err, err)
	}
}

func TestSpeakDecodesAudio(t *testing.T) {
	t.Parallel()

	wav := []byte("RIFF....WAVE")
	tests := []struct {
		name  string
		audio string
	}{
		{"raw", base64.StdEncoding.EncodeToString(wav)},
		{"data uri", "data:audio/wav;base64," + base64.StdEncoding.EncodeToString(wav)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := clientReturning(map[string]any{"audio": tt.audio}, nil)
			got, role, err := c.Speak(context.Background(), newLedger("P", "", 0, 0, nil), "Hello")
			if err != nil {
				t.Fatalf("Speak failed: %v", err)
			}
			if string(got) != string(wav) {
				t.Errorf("expected %q, got %q", wav, got)
			}
			if role != domain.RolePrimary {
				t.Errorf("expected primary, got %s", role)
			}
		})
	}
}

func TestSpeakBadAudio(t *testing.T) {
	t.Parallel()

	c := clientReturning(map[string]any{"audio": "!!not base64!!"}, nil)
	_, _, err := c.Speak(context.Background(), newLedger("P", "", 0, 0, nil), "Hello")
	var outErr *ModelOutputError
	if !errors.As(err, &outErr) {
		t.Fatalf("expected ModelOutputError, got %T %v", err, err)
	}
}

func TestDecodeResponse(t *testing.T) {
	t.Parallel()

	out, err := decodeResponse(map[string]any{"output": map[string]any{"question": "q"}})
	if err != nil || out["question"] != "q" {
		t.Fatalf("unexpected decode result %v, %v", out, err)
	}

	_, err = decodeResponse(map[string]any{"error": map[string]any{
		"code":    float64(429),
		"status":  "RESOURCE_EXHAUSTED",
		"message": "Quota exceeded",
	}})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != 429 {
		t.Fatalf("expected StatusError 429, got %v", err)
	}
	if !IsQuotaClass(err) {
		t.Errorf("expected quota class")
	}

	if _, err := decodeResponse(map[string]any{}); !errors.Is(err, ErrEmptyOutput) {
		t.Errorf("expected ErrEmptyOutput, got %v", err)
	}
}
