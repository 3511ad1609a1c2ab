// DSA Quest - mock interview server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/dsa-quest/internal/api"
	"github.com/ashureev/dsa-quest/internal/backup"
	"github.com/ashureev/dsa-quest/internal/catalog"
	"github.com/ashureev/dsa-quest/internal/config"
	"github.com/ashureev/dsa-quest/internal/credential"
	"github.com/ashureev/dsa-quest/internal/identity"
	"github.com/ashureev/dsa-quest/internal/inference"
	"github.com/ashureev/dsa-quest/internal/interview"
	"github.com/ashureev/dsa-quest/internal/metrics"
	"github.com/ashureev/dsa-quest/internal/middleware"
	"github.com/ashureev/dsa-quest/internal/store"
)

// telemetry is satisfied by both the OTLP exporter and the no-op fallback.
type telemetry interface {
	inference.Observer
	interview.Recorder
	Close(ctx context.Context) error
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	cat, err := catalog.Default()
	if err != nil {
		slog.Error("Failed to load catalog", "error", err)
		os.Exit(1)
	}
	slog.Info("Catalog loaded", "modules", len(cat.Modules()))

	var tel telemetry = metrics.NewNoOp()
	if cfg.Metrics.Enabled {
		exp, err := metrics.NewExporter(ctx, metrics.Config{
			Endpoint: cfg.Metrics.Endpoint,
			Enabled:  cfg.Metrics.Enabled,
			Insecure: cfg.Metrics.Insecure,
		})
		if err != nil {
			slog.Warn("Failed to initialize metrics exporter, metrics disabled", "error", err)
		} else {
			tel = exp
			slog.Info("Metrics exporter initialized", "endpoint", cfg.Metrics.Endpoint)
		}
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Close(closeCtx); err != nil {
			slog.Warn("Failed to flush metrics", "error", err)
		}
	}()

	model, err := inference.NewGrpcModel(inference.DefaultGrpcModelConfig(cfg.Inference.Addr), logger)
	if err != nil {
		// The connection is retried lazily on the first call.
		slog.Warn("Inference service not ready at startup", "address", cfg.Inference.Addr, "error", err)
		lazy := inference.DefaultGrpcModelConfig(cfg.Inference.Addr)
		lazy.WaitForReady = false
		if model, err = inference.NewGrpcModel(lazy, logger); err != nil {
			slog.Error("Failed to create inference client", "error", err)
			os.Exit(1)
		}
	}
	defer model.Close()

	invoker := inference.NewInvoker(model,
		inference.WithObserver(tel),
		inference.WithAttemptTimeout(cfg.Inference.Timeout),
		inference.WithLogger(logger),
	)
	flows := inference.NewClient(invoker)

	var remote backup.Remote
	if cfg.Backup.Enabled() {
		turso, err := backup.OpenTurso(cfg.Backup.URL, cfg.Backup.AuthToken)
		if err != nil {
			slog.Warn("Failed to open backup database, backup disabled", "error", err)
		} else {
			defer func() {
				if closeErr := turso.Close(); closeErr != nil {
					slog.Error("Failed to close backup database", "error", closeErr)
				}
			}()
			remote = turso
			slog.Info("Remote backup enabled")
		}
	}
	syncer := backup.NewSyncer(repo, remote, logger)

	state := store.NewState(repo)
	ledgers := credential.NewRegistry(state, nil)
	sessions := interview.NewRegistry(nil)

	svcCfg := interview.Config{
		Catalog:       cat,
		Flows:         flows,
		Ledgers:       ledgers,
		State:         state,
		Sessions:      sessions,
		Recorder:      tel,
		Logger:        logger,
		SpeechEnabled: cfg.Speech.Enabled,
	}
	if syncer.Enabled() {
		svcCfg.Syncer = syncer
	}
	svc := interview.NewService(svcCfg)

	sessions.StartSweeper(ctx, cfg.SessionIdleTTL)
	slog.Info("Session sweeper started", "idle_ttl", cfg.SessionIdleTTL)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	limiter.StartEviction(ctx)
	limit := middleware.RateLimit(limiter, func(r *http.Request) string {
		if id := identity.LearnerIDFromContext(r.Context()); id != "" {
			return id
		}
		return identity.IPFromRequest(r)
	})

	// Initialize handlers.
	healthHandler := api.NewHealthHandler(repo, syncer.Enabled())
	learnerHandler := api.NewLearnerHandler(cat, state, ledgers, syncer)
	interviewHandler := api.NewInterviewHandler(svc, cfg.Speech.RevealWordDelay, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(allowedOrigins(cfg)))
	r.Use(identity.Middleware(repo, cfg.IsDevelopment()))

	healthHandler.RegisterHealth(r)
	learnerHandler.RegisterRoutes(r)
	interviewHandler.RegisterRoutes(r, limit)

	// Interview turns wait on the model; narration sockets stay open while words are revealed.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}
	if err := svc.WaitSpeech(shutdownCtx); err != nil {
		slog.Warn("Speech synthesis still running at shutdown", "error", err)
	}

	slog.Info("Server stopped successfully")
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.FrontendURL == "" || cfg.IsDevelopment() {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}
