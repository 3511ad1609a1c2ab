// Package metrics exports inference and interview counters over OTLP.
package metrics

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ashureev/dsa-quest/internal/domain"
	"github.com/ashureev/dsa-quest/internal/inference"
	"github.com/ashureev/dsa-quest/internal/interview"
)

const (
	meterName   = "dsaquest"
	serviceName = "dsaquest"
)

// Outcome labels for inference calls.
const (
	OutcomeSuccess     = "success"
	OutcomeQuota       = "quota"
	OutcomeModelOutput = "model_output"
	OutcomeTransient   = "transient"
	OutcomeError       = "error"
)

var (
	_ inference.Observer = (*Exporter)(nil)
	_ interview.Recorder = (*Exporter)(nil)
)

// Exporter records inference and interview events as OTel counters.
type Exporter struct {
	provider *sdkmetric.MeterProvider

	calls     metric.Int64Counter
	failovers metric.Int64Counter
	skipped   metric.Int64Counter
	started   metric.Int64Counter
	graded    metric.Int64Counter
	xpAwarded metric.Int64Counter
}

// NewExporter creates an exporter that pushes to an OTLP gRPC collector.
func NewExporter(ctx context.Context, cfg Config) (*Exporter, error) {
	if !cfg.Enabled {
		return nil, errors.New("metrics export is disabled")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("metrics endpoint is required")
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts,
			otlpmetricgrpc.WithInsecure(),
			otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	return newExporter(provider)
}

func newExporter(provider *sdkmetric.MeterProvider) (*Exporter, error) {
	meter := provider.Meter(meterName)
	e := &Exporter{provider: provider}

	var err error
	if e.calls, err = meter.Int64Counter("dsaquest_inference_calls_total",
		metric.WithDescription("Model calls by template, credential role and outcome"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, fmt.Errorf("create calls counter: %w", err)
	}
	if e.failovers, err = meter.Int64Counter("dsaquest_inference_failovers_total",
		metric.WithDescription("Quota failures that moved on to the next credential"),
		metric.WithUnit("{failover}"),
	); err != nil {
		return nil, fmt.Errorf("create failovers counter: %w", err)
	}
	if e.skipped, err = meter.Int64Counter("dsaquest_inference_skipped_total",
		metric.WithDescription("Credentials skipped because their daily ceiling was reached"),
		metric.WithUnit("{credential}"),
	); err != nil {
		return nil, fmt.Errorf("create skipped counter: %w", err)
	}
	if e.started, err = meter.Int64Counter("dsaquest_interviews_started_total",
		metric.WithDescription("Interview sessions started"),
		metric.WithUnit("{interview}"),
	); err != nil {
		return nil, fmt.Errorf("create started counter: %w", err)
	}
	if e.graded, err = meter.Int64Counter("dsaquest_interviews_graded_total",
		metric.WithDescription("Interviews graded by module and result"),
		metric.WithUnit("{interview}"),
	); err != nil {
		return nil, fmt.Errorf("create graded counter: %w", err)
	}
	if e.xpAwarded, err = meter.Int64Counter("dsaquest_xp_awarded_total",
		metric.WithDescription("Experience points awarded by graded interviews"),
		metric.WithUnit("{xp}"),
	); err != nil {
		return nil, fmt.Errorf("create xp counter: %w", err)
	}
	return e, nil
}

// Skipped implements inference.Observer.
func (e *Exporter) Skipped(ctx context.Context, template string, role domain.Role) {
	e.skipped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("template", template),
		attribute.String("role", string(role)),
	))
}

// Succeeded implements inference.Observer.
func (e *Exporter) Succeeded(ctx context.Context, template string, role domain.Role) {
	e.calls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("template", template),
		attribute.String("role", string(role)),
		attribute.String("outcome", OutcomeSuccess),
	))
}

// Failed implements inference.Observer.
func (e *Exporter) Failed(ctx context.Context, template string, role domain.Role, err error, failover bool) {
	e.calls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("template", template),
		attribute.String("role", string(role)),
		attribute.String("outcome", outcomeOf(err)),
	))
	if failover {
		e.failovers.Add(ctx, 1, metric.WithAttributes(
			attribute.String("template", template),
			attribute.String("from_role", string(role)),
		))
	}
}

// InterviewStarted implements interview.Recorder.
func (e *Exporter) InterviewStarted(ctx context.Context, moduleID string) {
	e.started.Add(ctx, 1, metric.WithAttributes(attribute.String("module", moduleID)))
}

// InterviewGraded implements interview.Recorder.
func (e *Exporter) InterviewGraded(ctx context.Context, moduleID string, passed bool, xp int) {
	e.graded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("module", moduleID),
		attribute.Bool("passed", passed),
	))
	if xp > 0 {
		e.xpAwarded.Add(ctx, int64(xp), metric.WithAttributes(attribute.String("module", moduleID)))
	}
}

// Close flushes pending data and shuts the provider down.
func (e *Exporter) Close(ctx context.Context) error {
	return e.provider.Shutdown(ctx)
}

func outcomeOf(err error) string {
	var (
		quota     *inference.QuotaExceededError
		output    *inference.ModelOutputError
		transient *inference.TransientNetworkError
	)
	switch {
	case errors.As(err, &quota):
		return OutcomeQuota
	case errors.As(err, &output):
		return OutcomeModelOutput
	case errors.As(err, &transient):
		return OutcomeTransient
	default:
		return OutcomeError
	}
}
