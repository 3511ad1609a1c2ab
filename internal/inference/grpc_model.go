package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// GenerateMethod is the unary RPC served by the inference service. Request and
// response are google.protobuf.Struct values.
const GenerateMethod = "/dsaquest.inference.v1.Inference/Generate"

// APIKeyHeader carries the learner's secret to the inference service.
const APIKeyHeader = "x-goog-api-key"

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
)

// GrpcModel is a Model backed by the inference service over gRPC.
type GrpcModel struct {
	conn   *grpc.ClientConn
	addr   string
	logger *slog.Logger
}

// GrpcModelConfig holds configuration for the gRPC model client.
type GrpcModelConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
	// WaitForReady forces a connection attempt at startup.
	WaitForReady bool
}

// DefaultGrpcModelConfig returns default configuration for addr.
func DefaultGrpcModelConfig(addr string) GrpcModelConfig {
	return GrpcModelConfig{
		Address:          addr,
		ConnectTimeout:   5 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
		WaitForReady:     true,
	}
}

// NewGrpcModel dials the inference service.
func NewGrpcModel(cfg GrpcModelConfig, logger *slog.Logger) (*GrpcModel, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Address == "" {
		return nil, errors.New("inference address is required")
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	conn, err := grpc.NewClient(cfg.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create inference client for %s: %w", cfg.Address, err)
	}

	if cfg.WaitForReady {
		connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
		defer cancel()
		if err := waitForReady(connectCtx, conn); err != nil {
			if closeErr := conn.Close(); closeErr != nil {
				logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
			}
			return nil, fmt.Errorf("inference service at %s not ready: %w", cfg.Address, err)
		}
	}

	logger.Info("Connected to inference service", "address", cfg.Address)

	return &GrpcModel{conn: conn, addr: cfg.Address, logger: logger}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Close closes the gRPC connection.
func (m *GrpcModel) Close() {
	if m.conn != nil {
		if err := m.conn.Close(); err != nil {
			m.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

// Generate sends req to the inference service using secret.
func (m *GrpcModel) Generate(ctx context.Context, req Request, secret string) (map[string]any, error) {
	in, err := structpb.NewStruct(map[string]any{
		"template": req.Template,
		"input":    normalize(req.Input),
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	ctx = metadata.AppendToOutgoingContext(ctx, APIKeyHeader, secret)
	out := &structpb.Struct{}
	if err := m.conn.Invoke(ctx, GenerateMethod, in, out); err != nil {
		return nil, err
	}

	return decodeResponse(out.AsMap())
}

// decodeResponse unpacks {output: {...}} or {error: {code, status, message}}.
func decodeResponse(resp map[string]any) (map[string]any, error) {
	if e, ok := resp["error"].(map[string]any); ok {
		se := &StatusError{}
		if code, ok := e["code"].(float64); ok {
			se.Code = int(code)
		}
		se.Status, _ = e["status"].(string)
		se.Message, _ = e["message"].(string)
		return nil, se
	}
	output, ok := resp["output"].(map[string]any)
	if !ok || len(output) == 0 {
		return nil, ErrEmptyOutput
	}
	return output, nil
}

// normalize converts typed slices into []any so structpb can encode them.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = normalize(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = normalize(val)
		}
		return s
	case []string:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = val
		}
		return s
	case int:
		return float64(t)
	default:
		return v
	}
}
