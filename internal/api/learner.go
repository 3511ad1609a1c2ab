package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/dsa-quest/internal/backup"
	"github.com/ashureev/dsa-quest/internal/catalog"
	"github.com/ashureev/dsa-quest/internal/credential"
	"github.com/ashureev/dsa-quest/internal/domain"
	"github.com/ashureev/dsa-quest/internal/progression"
	"github.com/ashureev/dsa-quest/internal/store"
)

// LearnerHandler serves the catalog, progress, credential settings, usage and backup.
type LearnerHandler struct {
	catalog *catalog.Catalog
	state   *store.State
	ledgers *credential.Registry
	syncer  *backup.Syncer
}

// NewLearnerHandler creates a learner handler. syncer may be disabled but not nil.
func NewLearnerHandler(cat *catalog.Catalog, state *store.State, ledgers *credential.Registry, syncer *backup.Syncer) *LearnerHandler {
	return &LearnerHandler{catalog: cat, state: state, ledgers: ledgers, syncer: syncer}
}

// RegisterRoutes registers learner routes.
func (h *LearnerHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/catalog", h.GetCatalog)
		r.Get("/progress", h.GetProgress)
		r.Post("/modules/{moduleID}/reset", h.ResetModule)
		r.Get("/settings/credentials", h.GetCredentials)
		r.Put("/settings/credentials", h.PutCredentials)
		r.Get("/usage", h.GetUsage)
		r.Post("/backup/push", h.BackupPush)
		r.Post("/backup/pull", h.BackupPull)
	})
}

// GetCatalog returns every module and its levels.
func (h *LearnerHandler) GetCatalog(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]any{"modules": h.catalog.Modules()})
}

// GetProgress returns the learner's XP, badges and per-module progress.
func (h *LearnerHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	state, err := h.state.LoadState(r.Context(), learnerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	for _, m := range h.catalog.Modules() {
		state.ProgressByModule[m.ID] = state.Progress(m.ID, m.InitialLives)
	}
	JSON(w, http.StatusOK, state)
}

// ResetModule restores a module to fresh progress.
func (h *LearnerHandler) ResetModule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := learnerID(r)
	module, err := h.catalog.Module(chi.URLParam(r, "moduleID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	next, err := h.state.UpdateState(ctx, id, func(state domain.LearnerState) (domain.LearnerState, error) {
		return progression.ResetModule(state, module.ID, module.InitialLives), nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("Module reset", "learner_id", id, "module_id", module.ID)
	JSON(w, http.StatusOK, map[string]any{
		"progress": next.Progress(module.ID, module.InitialLives),
		"synced":   h.pushQuietly(ctx, id),
	})
}

// GetCredentials returns the credential settings with secrets masked.
func (h *LearnerHandler) GetCredentials(w http.ResponseWriter, r *http.Request) {
	settings, err := h.state.LoadCredentials(r.Context(), learnerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, settings.Masked())
}

// PutCredentials replaces the credential settings wholesale.
func (h *LearnerHandler) PutCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := learnerID(r)

	var settings domain.CredentialSettings
	if err := decodeJSON(w, r, &settings); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if settings.Primary.DailyCeiling < 0 || settings.Secondary.DailyCeiling < 0 {
		Error(w, http.StatusBadRequest, "daily ceiling cannot be negative")
		return
	}
	settings = settings.Normalize()

	if err := h.state.SaveCredentials(ctx, id, settings); err != nil {
		writeError(w, r, err)
		return
	}
	h.ledgers.Invalidate(id)

	slog.Info("Credentials saved",
		"learner_id", id,
		"primary_set", settings.Primary.Usable(),
		"secondary_set", settings.Secondary.Usable(),
	)
	JSON(w, http.StatusOK, map[string]any{
		"credentials": settings.Masked(),
		"synced":      h.pushQuietly(ctx, id),
	})
}

type roleUsage struct {
	Used    int  `json:"used"`
	Ceiling int  `json:"ceiling,omitempty"`
	Bounded bool `json:"bounded"`
	Usable  bool `json:"usable"`
}

// GetUsage returns today's per-credential usage and any governor notices.
func (h *LearnerHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	ledger, err := h.ledgers.Ledger(r.Context(), learnerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	settings := ledger.Settings()
	usage := make(map[domain.Role]roleUsage, len(domain.Roles))
	for _, role := range domain.Roles {
		ceiling, bounded := ledger.Ceiling(role)
		usage[role] = roleUsage{
			Used:    ledger.UsageToday(role),
			Ceiling: ceiling,
			Bounded: bounded,
			Usable:  settings.Slot(role).Usable(),
		}
	}

	notices := credential.CheckAndWarn(ledger)
	if notices == nil {
		notices = []credential.Notice{}
	}
	JSON(w, http.StatusOK, map[string]any{
		"date":    ledger.Today(),
		"usage":   usage,
		"notices": notices,
	})
}

// BackupPush uploads the learner's state to the remote backup.
func (h *LearnerHandler) BackupPush(w http.ResponseWriter, r *http.Request) {
	if err := h.syncer.Push(r.Context(), learnerID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "pushed"})
}

// BackupPull replaces local state with the remote snapshot, keeping local credentials.
func (h *LearnerHandler) BackupPull(w http.ResponseWriter, r *http.Request) {
	id := learnerID(r)
	found, err := h.syncer.Pull(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !found {
		JSON(w, http.StatusOK, map[string]string{"status": "no_backup"})
		return
	}
	h.ledgers.Invalidate(id)
	JSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

// pushQuietly backs up after a local write. A failure is logged and reported as not synced.
func (h *LearnerHandler) pushQuietly(ctx context.Context, learnerID string) bool {
	if !h.syncer.Enabled() {
		return false
	}
	if err := h.syncer.Push(ctx, learnerID); err != nil {
		slog.Warn("Backup push failed", "learner_id", learnerID, "error", err)
		return false
	}
	return true
}
