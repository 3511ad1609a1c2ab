package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ashureev/dsa-quest/internal/domain"
)

var (
	// ErrNoCredential is returned before any network call when no usable key is configured.
	ErrNoCredential = errors.New("a valid API key is required, please go to settings to add your key")
	// ErrCeilingReached is wrapped when every candidate was skipped for being at its daily ceiling.
	ErrCeilingReached = errors.New("daily request ceiling reached")
	// ErrEmptyOutput is wrapped when the collaborator returned no structured output.
	ErrEmptyOutput = errors.New("the AI model did not return a valid output")
)

// StatusError is a provider error payload carried back by the collaborator.
type StatusError struct {
	Code    int    // HTTP-style status code, 0 if unknown
	Status  string // provider status, e.g. RESOURCE_EXHAUSTED
	Message string
}

func (e *StatusError) Error() string {
	switch {
	case e.Code != 0 && e.Status != "":
		return fmt.Sprintf("provider error %d %s: %s", e.Code, e.Status, e.Message)
	case e.Code != 0:
		return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
	case e.Status != "":
		return fmt.Sprintf("provider error %s: %s", e.Status, e.Message)
	default:
		return "provider error: " + e.Message
	}
}

// QuotaExceededError means a credential's usage limit was hit.
// The invoker fails over on it while candidates remain.
type QuotaExceededError struct {
	Role domain.Role
	Err  error
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s key: %v", e.Role, e.Err)
}

func (e *QuotaExceededError) Unwrap() error { return e.Err }

// ModelOutputError means the collaborator answered but without parseable structured output.
type ModelOutputError struct {
	Template string
	Err      error
}

func (e *ModelOutputError) Error() string {
	return fmt.Sprintf("%s: unusable model output: %v", e.Template, e.Err)
}

func (e *ModelOutputError) Unwrap() error { return e.Err }

// TransientNetworkError is any other failure reaching the collaborator.
type TransientNetworkError struct {
	Role domain.Role
	Err  error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("inference call with %s key failed: %v", e.Role, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// IsQuotaClass reports whether err signals an exhausted credential: an HTTP 429,
// a RESOURCE_EXHAUSTED status, or a message mentioning quota.
func IsQuotaClass(err error) bool {
	if err == nil {
		return false
	}

	var quota *QuotaExceededError
	if errors.As(err, &quota) {
		return true
	}

	var se *StatusError
	if errors.As(err, &se) {
		if se.Code == http.StatusTooManyRequests || strings.EqualFold(se.Status, "RESOURCE_EXHAUSTED") {
			return true
		}
		if strings.Contains(strings.ToLower(se.Message), "quota") {
			return true
		}
	}

	if st, ok := status.FromError(err); ok && st.Code() == codes.ResourceExhausted {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(strings.ToLower(msg), "quota")
}

// classify maps a raw collaborator failure onto the error taxonomy.
func classify(template string, role domain.Role, err error) error {
	var out *ModelOutputError
	if errors.As(err, &out) {
		return err
	}
	if errors.Is(err, ErrEmptyOutput) {
		return &ModelOutputError{Template: template, Err: err}
	}
	if IsQuotaClass(err) {
		return &QuotaExceededError{Role: role, Err: err}
	}
	if st, ok := status.FromError(err); ok && st.Code() == codes.DeadlineExceeded {
		return &TransientNetworkError{Role: role, Err: context.DeadlineExceeded}
	}
	return &TransientNetworkError{Role: role, Err: err}
}
