package inference

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ashureev/dsa-quest/internal/credential"
	"github.com/ashureev/dsa-quest/internal/domain"
)

// Invoker executes requests against the model, trying the ledger's candidates
// strictly one after another.
type Invoker struct {
	model    Model
	observer Observer
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithObserver sets the invocation observer.
func WithObserver(o Observer) Option {
	return func(i *Invoker) {
		if o != nil {
			i.observer = o
		}
	}
}

// WithAttemptTimeout bounds each candidate attempt. Zero disables the bound.
func WithAttemptTimeout(d time.Duration) Option {
	return func(i *Invoker) { i.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Invoker) {
		if l != nil {
			i.logger = l
		}
	}
}

// NewInvoker creates an invoker over model.
func NewInvoker(model Model, opts ...Option) *Invoker {
	i := &Invoker{
		model:    model,
		observer: noopObserver{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Invoke runs req with the first candidate that is under its ceiling, moving on to the
// next candidate only after a quota-class failure. At most one call succeeds, and only
// that call's credential is charged in the ledger.
func (i *Invoker) Invoke(ctx context.Context, req Request, ledger Ledger) (map[string]any, domain.Role, error) {
	candidates := ledger.Candidates()
	if len(candidates) == 0 {
		return nil, "", ErrNoCredential
	}

	var lastErr error
	var lastSkipped domain.Role
	for idx, slot := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		if credential.Exhausted(ledger, slot.Role) {
			i.observer.Skipped(ctx, req.Template, slot.Role)
			i.logger.Info("Skipping credential at daily ceiling", "template", req.Template, "role", slot.Role)
			lastSkipped = slot.Role
			continue
		}

		out, err := i.attempt(ctx, req, slot)
		if err == nil {
			ledger.Record(slot.Role)
			i.observer.Succeeded(ctx, req.Template, slot.Role)
			return out, slot.Role, nil
		}

		lastErr = classify(req.Template, slot.Role, err)
		var quota *QuotaExceededError
		failover := errors.As(lastErr, &quota) && idx < len(candidates)-1
		i.observer.Failed(ctx, req.Template, slot.Role, lastErr, failover)
		if !failover {
			return nil, "", lastErr
		}
		i.logger.Warn("Quota exceeded, failing over to next credential",
			"template", req.Template,
			"role", slot.Role,
			"next_role", candidates[idx+1].Role,
		)
	}

	if lastErr != nil {
		return nil, "", lastErr
	}
	return nil, "", &QuotaExceededError{Role: lastSkipped, Err: ErrCeilingReached}
}

func (i *Invoker) attempt(ctx context.Context, req Request, slot domain.CredentialSlot) (map[string]any, error) {
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}
	out, err := i.model.Generate(ctx, req, slot.Secret)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrEmptyOutput
	}
	return out, nil
}
