// Package api provides HTTP handlers for the MindCure agent.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashureev/mindcure-agent/internal/browser"
	"github.com/ashureev/mindcure-agent/internal/identity"
	"github.com/ashureev/mindcure-agent/internal/live"
	"github.com/ashureev/mindcure-agent/internal/retrieval"
	"github.com/ashureev/mindcure-agent/internal/scores"
	"github.com/ashureev/mindcure-agent/internal/session"
	"github.com/ashureev/mindcure-agent/internal/tools"
)

// maxRequestBodySize bounds JSON request bodies (1MB).
const maxRequestBodySize = 1 << 20

// Pinger checks store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KnowledgeSource reports the initialization state of a retriever.
type KnowledgeSource interface {
	Status() retrieval.Status
}

// Options are the dependencies of Handler. Nil collaborators disable the
// routes that need them.
type Options struct {
	Store          Pinger
	Scores         *scores.Service
	Sessions       *live.Sessions
	Tools          tools.Deps
	Bootstrapper   *session.Bootstrapper
	Knowledge      map[string]KnowledgeSource
	Metrics        http.Handler
	Billing        http.Handler
	MaxScreenshots int
	Logger         *slog.Logger
}

// Handler serves the REST surface next to the live relay.
type Handler struct {
	opts   Options
	logger *slog.Logger
}

// NewHandler creates a handler.
func NewHandler(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Sessions == nil {
		opts.Sessions = live.NewSessions()
	}
	if opts.Scores == nil {
		opts.Scores = scores.NewService(nil, nil, opts.Logger)
	}
	return &Handler{opts: opts, logger: opts.Logger}
}

// view is the session state a request operates on: the live session's
// state when one is active, otherwise a request-scoped one.
type view struct {
	userID  string
	board   *scores.Board
	tracker *browser.Tracker
	tools   *tools.Registry
}

func (h *Handler) viewFor(r *http.Request) *view {
	ctx := r.Context()
	if st := h.opts.Sessions.Get(identity.SessionIDFromContext(ctx)); st != nil {
		return &view{userID: st.UserID, board: st.Scores, tracker: st.Tracker, tools: st.Tools}
	}
	v := &view{
		userID:  identity.UserIDFromContext(ctx),
		tracker: browser.NewTracker(h.opts.MaxScreenshots),
	}
	v.board = h.opts.Scores.NewBoard(v.userID)
	return v
}

func (h *Handler) registryFor(v *view) *tools.Registry {
	if v.tools != nil {
		return v.tools
	}
	return tools.Build(h.opts.Tools, tools.Session{UserID: v.userID, Scores: v.board, Automation: v.tracker})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}
