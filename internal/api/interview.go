package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/ashureev/dsa-quest/internal/interview"
)

// narrationWriteTimeout bounds a single websocket frame write.
const narrationWriteTimeout = 10 * time.Second

// InterviewHandler serves interview sessions, narration and daily questions.
type InterviewHandler struct {
	svc           *interview.Service
	wordDelay     time.Duration
	allowedOrigin string
	isDev         bool
}

// NewInterviewHandler creates an interview handler.
func NewInterviewHandler(svc *interview.Service, wordDelay time.Duration, allowedOrigin string, isDev bool) *InterviewHandler {
	return &InterviewHandler{
		svc:           svc,
		wordDelay:     wordDelay,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// RegisterRoutes registers interview routes. limit wraps the routes that call the model.
func (h *InterviewHandler) RegisterRoutes(r chi.Router, limit func(http.Handler) http.Handler) {
	r.Route("/api/interviews", func(r chi.Router) {
		r.With(limit).Post("/", h.Start)
		r.Get("/{sessionID}", h.Get)
		r.Delete("/{sessionID}", h.Discard)
		r.With(limit).Post("/{sessionID}/turns", h.Reply)
		r.With(limit).Post("/{sessionID}/run", h.RunCode)
		r.With(limit).Post("/{sessionID}/end", h.End)
	})
	r.With(limit).Get("/api/daily-question", h.DailyQuestion)
	r.With(limit).Post("/api/daily-question/answer", h.AnswerDaily)
	r.Get("/ws/interviews/{sessionID}/narration", h.Narration)
}

type startRequest struct {
	ModuleID string `json:"moduleId"`
	LevelID  int    `json:"levelId"`
}

// Start opens an interview for a module level.
func (h *InterviewHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ModuleID == "" || req.LevelID <= 0 {
		Error(w, http.StatusBadRequest, "moduleId and levelId are required")
		return
	}

	sess, err := h.svc.Start(r.Context(), learnerID(r), req.ModuleID, req.LevelID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, sess.Snapshot())
}

// Get returns the session snapshot.
func (h *InterviewHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Get(learnerID(r), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, sess.Snapshot())
}

// Discard drops the session without grading it.
func (h *InterviewHandler) Discard(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Discard(learnerID(r), chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reply submits a learner turn and returns the interviewer's answer.
func (h *InterviewHandler) Reply(w http.ResponseWriter, r *http.Request) {
	var in interview.TurnInput
	if err := decodeJSON(w, r, &in); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.svc.Reply(r.Context(), learnerID(r), chi.URLParam(r, "sessionID"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

type runRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

// RunCode simulates running the learner's code.
func (h *InterviewHandler) RunCode(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := h.svc.RunCode(r.Context(), learnerID(r), chi.URLParam(r, "sessionID"), req.Code, req.Language)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, out)
}

// End grades the interview and applies the result to the learner's progress.
func (h *InterviewHandler) End(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.End(r.Context(), learnerID(r), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

// DailyQuestion returns a review question drawn from completed modules.
func (h *InterviewHandler) DailyQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := h.svc.DailyQuestion(r.Context(), learnerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, q)
}

type dailyAnswerRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// AnswerDaily evaluates an answer to the daily question.
func (h *InterviewHandler) AnswerDaily(w http.ResponseWriter, r *http.Request) {
	var req dailyAnswerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	fb, err := h.svc.AnswerDaily(r.Context(), learnerID(r), req.Question, req.Answer)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, fb)
}

type narrationMessage struct {
	Type   string `json:"type"`
	TurnID string `json:"turnId,omitempty"`
	Data   string `json:"data,omitempty"`
	Text   string `json:"text,omitempty"`
}

// Narration streams the latest interviewer turn: audio first when available,
// then the text one word at a time, then done.
func (h *InterviewHandler) Narration(w http.ResponseWriter, r *http.Request) {
	id := learnerID(r)
	sess, err := h.svc.Get(id, chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	n := sess.Narration()
	if n == nil {
		Error(w, http.StatusNotFound, "nothing to narrate")
		return
	}

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "learner_id", id)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "narration done"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "learner_id", id)
		}
	}()

	// Reads are only needed to observe the client closing.
	ctx := ws.CloseRead(r.Context())

	if err := n.Wait(ctx); err != nil {
		return
	}
	if audio, err := n.Audio(); err == nil && len(audio) > 0 {
		msg := narrationMessage{Type: "audio", TurnID: n.TurnID, Data: base64.StdEncoding.EncodeToString(audio)}
		if err := writeJSON(ctx, ws, msg); err != nil {
			slog.Debug("Failed to send narration audio", "error", err, "session_id", sess.ID)
			return
		}
	}

	for word := range n.Words(ctx, h.wordDelay) {
		if err := writeJSON(ctx, ws, narrationMessage{Type: "word", TurnID: n.TurnID, Text: word}); err != nil {
			slog.Debug("Failed to send narration word", "error", err, "session_id", sess.ID)
			return
		}
	}
	if err := writeJSON(ctx, ws, narrationMessage{Type: "done", TurnID: n.TurnID}); err != nil {
		slog.Debug("Failed to send narration done", "error", err, "session_id", sess.ID)
	}
}

func (h *InterviewHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, narrationWriteTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}
