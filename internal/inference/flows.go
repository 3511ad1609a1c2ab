package inference

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/dsa-quest/internal/domain"
)

// Interviewer actions the model is asked to emit alongside its reply.
const (
	ActionAsk         = "ask"
	ActionRequestCode = "request_code"
	ActionClose       = "close"
)

// Client exposes the typed inference flows used by the interview.
type Client struct {
	invoker *Invoker
}

// NewClient creates a flow client over invoker.
func NewClient(invoker *Invoker) *Client {
	return &Client{invoker: invoker}
}

type validator interface {
	validate() error
}

// InterviewerInput drives one simulated interviewer reply.
type InterviewerInput struct {
	UserResponse                string   `json:"userResponse"`
	InterviewerPrompt           string   `json:"interviewerPrompt"`
	PreviousConversationSummary string   `json:"previousConversationSummary"`
	Question                    string   `json:"question"`
	ActionOptions               []string `json:"actionOptions"`
}

// InterviewerOutput is the interviewer's structured reply.
type InterviewerOutput struct {
	InterviewerResponse string      `json:"interviewerResponse"`
	NextQuestion        string      `json:"nextQuestion"`
	ConversationSummary string      `json:"conversationSummary"`
	Sentiment           string      `json:"sentiment"`
	CodeReview          string      `json:"codeReview,omitempty"`
	Action              string      `json:"action,omitempty"`
	UsedCredential      domain.Role `json:"-"`
}

func (o *InterviewerOutput) validate() error {
	if strings.TrimSpace(o.InterviewerResponse) == "" {
		return errors.New("missing interviewerResponse")
	}
	return nil
}

// SimulateInterviewer asks the model for the interviewer's next reply.
func (c *Client) SimulateInterviewer(ctx context.Context, ledger Ledger, in InterviewerInput) (*InterviewerOutput, error) {
	if in.ActionOptions == nil {
		in.ActionOptions = []string{ActionAsk, ActionRequestCode, ActionClose}
	}
	out, role, err := call[InterviewerOutput](ctx, c.invoker, ledger, TemplateInterviewer, in)
	if err != nil {
		return nil, err
	}
	out.UsedCredential = role
	return out, nil
}

// GradeInput is the serialized transcript of a finished interview.
type GradeInput struct {
	InterviewTranscript string `json:"interviewTranscript"`
	LevelID             int    `json:"levelId"`
}

type gradeOutput struct {
	Summary          string  `json:"summary"`
	Strengths        string  `json:"strengths"`
	Weaknesses       string  `json:"weaknesses"`
	ImprovementAreas string  `json:"improvementAreas"`
	XPPoints         float64 `json:"xpPoints"`
}

func (o *gradeOutput) validate() error {
	if strings.TrimSpace(o.Summary) == "" {
		return errors.New("missing summary")
	}
	return nil
}

// GradeInterview scores a transcript. XP is clamped to [0, domain.MaxXPPoints].
func (c *Client) GradeInterview(ctx context.Context, ledger Ledger, in GradeInput) (domain.PerformanceReport, error) {
	out, role, err := call[gradeOutput](ctx, c.invoker, ledger, TemplateGrade, in)
	if err != nil {
		return domain.PerformanceReport{}, err
	}
	return domain.PerformanceReport{
		Summary:          out.Summary,
		Strengths:        out.Strengths,
		Weaknesses:       out.Weaknesses,
		ImprovementAreas: out.ImprovementAreas,
		XPPoints:         int(out.XPPoints),
		UsedCredential:   role,
	}.ClampXP(), nil
}

// CodeReviewInput is a code submission to review.
type CodeReviewInput struct {
	Code               string `json:"code"`
	Language           string `json:"language"`
	ProblemDescription string `json:"problemDescription"`
	PreviousFeedback   string `json:"previousFeedback,omitempty"`
}

// CodeReviewOutput is feedback on correctness, efficiency and style.
type CodeReviewOutput struct {
	Feedback       string      `json:"feedback"`
	RevisedCode    string      `json:"revisedCode,omitempty"`
	Explanation    string      `json:"explanation,omitempty"`
	UsedCredential domain.Role `json:"-"`
}

func (o *CodeReviewOutput) validate() error {
	if strings.TrimSpace(o.Feedback) == "" {
		return errors.New("missing feedback")
	}
	return nil
}

// ReviewCode asks the model to review a code submission.
func (c *Client) ReviewCode(ctx context.Context, ledger Ledger, in CodeReviewInput) (*CodeReviewOutput, error) {
	out, role, err := call[CodeReviewOutput](ctx, c.invoker, ledger, TemplateCodeReview, in)
	if err != nil {
		return nil, err
	}
	out.UsedCredential = role
	return out, nil
}

// ExecuteInput is code whose run the model simulates.
type ExecuteInput struct {
	Code               string `json:"code"`
	Language           string `json:"language"`
	ProblemDescription string `json:"problemDescription"`
}

// ExecuteOutput is the simulated program output.
type ExecuteOutput struct {
	Output         string      `json:"output"`
	IsError        bool        `json:"isError"`
	UsedCredential domain.Role `json:"-"`
}

// ExecuteCode simulates running code. Nothing is actually executed.
func (c *Client) ExecuteCode(ctx context.Context, ledger Ledger, in ExecuteInput) (*ExecuteOutput, error) {
	out, role, err := call[ExecuteOutput](ctx, c.invoker, ledger, TemplateExecuteCode, in)
	if err != nil {
		return nil, err
	}
	out.UsedCredential = role
	return out, nil
}

// DailyQuestionInput lists the modules to draw a review question from.
type DailyQuestionInput struct {
	CompletedModules []string `json:"completedModules"`
}

// DailyQuestionOutput is a generated review question.
type DailyQuestionOutput struct {
	Question       string      `json:"question"`
	Module         string      `json:"module"`
	Level          string      `json:"level"`
	UsedCredential domain.Role `json:"-"`
}

func (o *DailyQuestionOutput) validate() error {
	if strings.TrimSpace(o.Question) == "" {
		return errors.New("missing question")
	}
	return nil
}

// DailyQuestion generates a daily streak question.
func (c *Client) DailyQuestion(ctx context.Context, ledger Ledger, in DailyQuestionInput) (*DailyQuestionOutput, error) {
	out, role, err := call[DailyQuestionOutput](ctx, c.invoker, ledger, TemplateDailyStreak, in)
	if err != nil {
		return nil, err
	}
	out.UsedCredential = role
	return out, nil
}

type speechInput struct {
	Text string `json:"text"`
}

type speechOutput struct {
	Audio string `json:"audio"`
}

func (o *speechOutput) validate() error {
	if o.Audio == "" {
		return errors.New("no audio returned")
	}
	return nil
}

// Speak synthesizes text into WAV audio bytes.
func (c *Client) Speak(ctx context.Context, ledger Ledger, text string) ([]byte, domain.Role, error) {
	out, role, err := call[speechOutput](ctx, c.invoker, ledger, TemplateSpeech, speechInput{Text: text})
	if err != nil {
		return nil, "", err
	}
	audio := out.Audio
	if i := strings.Index(audio, ","); strings.HasPrefix(audio, "data:") && i >= 0 {
		audio = audio[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(audio)
	if err != nil {
		return nil, "", &ModelOutputError{Template: TemplateSpeech, Err: err}
	}
	return data, role, nil
}

func call[Out any, In any](ctx context.Context, inv *Invoker, ledger Ledger, template string, in In) (*Out, domain.Role, error) {
	input, err := toMap(in)
	if err != nil {
		return nil, "", fmt.Errorf("encode %s input: %w", template, err)
	}

	raw, role, err := inv.Invoke(ctx, Request{Template: template, Input: input}, ledger)
	if err != nil {
		return nil, "", err
	}

	out := new(Out)
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, "", &ModelOutputError{Template: template, Err: err}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, "", &ModelOutputError{Template: template, Err: err}
	}
	if v, ok := any(out).(validator); ok {
		if err := v.validate(); err != nil {
			return nil, "", &ModelOutputError{Template: template, Err: err}
		}
	}
	return out, role, nil
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
