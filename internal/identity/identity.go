// Package identity provides anonymous per-device learner identity.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/ashureev/dsa-quest/internal/domain"
)

const (
	LearnerCookieName   = "dsaquest_learner"
	learnerCookieMaxAge = 365 * 24 * time.Hour
	// lastSeenResolution limits how often last_seen_at is rewritten for a learner.
	lastSeenResolution = 5 * time.Minute
)

type contextKey int

const learnerIDKey contextKey = iota

var learnerIDPattern = regexp.MustCompile(`^lrn_[a-f0-9]{32}$`)

// Learners is the subset of the store the middleware needs.
type Learners interface {
	GetLearner(ctx context.Context, learnerID string) (*domain.Learner, error)
	UpsertLearner(ctx context.Context, learner *domain.Learner) error
	UpdateLastSeen(ctx context.Context, learnerID string, lastSeen time.Time) error
}

// LearnerIDFromContext extracts the learner ID from the request context.
func LearnerIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(learnerIDKey).(string); ok {
		return v
	}
	return ""
}

// WithLearnerID returns a context carrying learnerID.
func WithLearnerID(ctx context.Context, learnerID string) context.Context {
	return context.WithValue(ctx, learnerIDKey, learnerID)
}

func generateLearnerID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate learner id: %w", err)
	}
	return "lrn_" + hex.EncodeToString(buf), nil
}

// IsValidLearnerID reports whether id has the shape of a generated learner ID.
func IsValidLearnerID(id string) bool {
	return learnerIDPattern.MatchString(id)
}

func displayName(learnerID string) string {
	if len(learnerID) > 12 {
		return "learner-" + learnerID[len(learnerID)-6:]
	}
	return "learner"
}

func ensureLearner(ctx context.Context, repo Learners, learnerID string, now time.Time) error {
	learner, err := repo.GetLearner(ctx, learnerID)
	if err != nil {
		return err
	}
	if learner != nil {
		if learner.IdleFor(now) < lastSeenResolution {
			return nil
		}
		return repo.UpdateLastSeen(ctx, learnerID, now)
	}

	return repo.UpsertLearner(ctx, &domain.Learner{
		LearnerID:   learnerID,
		DisplayName: displayName(learnerID),
		LastSeenAt:  now,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func setLearnerCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     LearnerCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(learnerCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(learnerCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreateLearnerID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(LearnerCookieName); err == nil && IsValidLearnerID(c.Value) {
		setLearnerCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateLearnerID()
	if err != nil {
		return "", err
	}
	setLearnerCookie(w, id, isDev)
	return id, nil
}

// Middleware injects the anonymous learner identity, creating the learner record on first visit.
func Middleware(repo Learners, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			learnerID, err := getOrCreateLearnerID(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":"failed to establish learner identity"}`, http.StatusInternalServerError)
				return
			}

			if err := ensureLearner(r.Context(), repo, learnerID, time.Now()); err != nil {
				slog.Error("Failed to initialize learner", "learner_id", learnerID, "error", err)
				http.Error(w, `{"error":"failed to initialize learner"}`, http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithLearnerID(r.Context(), learnerID)))
		})
	}
}

// IPFromRequest returns a normalized remote IP.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
