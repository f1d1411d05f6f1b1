// Package adminhttp exposes health and game counters for operators.
package adminhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/park285/llm-chess-bot/internal/adapter/chesspresenter"
	"github.com/park285/llm-chess-bot/internal/domain"
)

type SessionCounter interface {
	ActiveSessions(ctx context.Context) (int, error)
}

type GameHistory interface {
	RecentGames(ctx context.Context, userID string, limit int) ([]*domain.ArchivedGame, error)
}

// Deps are the read-only views the admin surface reports on. Connected may be nil.
type Deps struct {
	Sessions  SessionCounter
	History   GameHistory
	Connected func() bool
	Logger    *zap.Logger
}

// Response is the JSON envelope for every endpoint.
type Response struct {
	Status int `json:"Status"`
	Body   any `json:"Body,omitempty"`
}

type ErrorResponse struct {
	ErrorDescription string `json:"ErrorDescription"`
}

func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	h := &handler{deps: d}
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", h.health)
	r.Get("/sessions", h.sessions)
	r.Get("/history/{userID}", h.history)
	return r
}

type handler struct {
	deps Deps
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if h.deps.Connected != nil {
		body["iris_connected"] = h.deps.Connected()
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *handler) sessions(w http.ResponseWriter, r *http.Request) {
	if h.deps.Sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "session manager not configured")
		return
	}
	n, err := h.deps.Sessions.ActiveSessions(r.Context())
	if err != nil {
		h.deps.Logger.Warn("admin_sessions_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "count sessions failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"active": n})
}

func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	if h.deps.History == nil {
		writeError(w, http.StatusServiceUnavailable, "history not configured")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	games, err := h.deps.History.RecentGames(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusGatewayTimeout, "history timed out")
			return
		}
		h.deps.Logger.Warn("admin_history_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "load history failed")
		return
	}
	writeJSON(w, http.StatusOK, chesspresenter.ToChessGames(games))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	payload, err := json.Marshal(Response{Status: status, Body: body})
	if err != nil {
		status = http.StatusInternalServerError
		payload = []byte(`{"Status":500,"Body":{"ErrorDescription":"internal server error"}}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func writeError(w http.ResponseWriter, status int, desc string) {
	writeJSON(w, status, ErrorResponse{ErrorDescription: desc})
}
