package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/ashureev/mindcure-agent/internal/domain"
	"github.com/ashureev/mindcure-agent/internal/session"
	"github.com/ashureev/mindcure-agent/internal/tools"
	"github.com/go-chi/chi/v5"
)

const pingTimeout = 2 * time.Second

// RegisterRoutes registers the REST routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)
	if h.opts.Metrics != nil {
		r.Handle("/metrics", h.opts.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/dashboard", h.Dashboard)
		r.Get("/productivity", h.Productivity)
		r.Post("/productivity/tasks/{id}/toggle", h.ToggleTask)
		r.Get("/scores", h.Scores)
		r.Get("/tools", h.ListTools)
		r.Post("/tools/{name}", h.CallTool)
		r.Get("/browser/state", h.BrowserState)
		r.Post("/sessions/preview", h.PreviewSession)
		if h.opts.Billing != nil {
			r.Post("/billing/webhook", h.opts.Billing.ServeHTTP)
		}
	})
}

// Health reports store connectivity, knowledge sources and active sessions.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	resp := map[string]any{
		"status":          "ok",
		"active_sessions": h.opts.Sessions.Len(),
	}

	storeState := "disabled"
	if h.opts.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()
		if err := h.opts.Store.Ping(ctx); err != nil {
			h.logger.Warn("Health check: store unreachable", "error", err)
			storeState = "unreachable"
			resp["status"] = "degraded"
			status = http.StatusServiceUnavailable
		} else {
			storeState = "ok"
		}
	}
	resp["store"] = storeState

	knowledge := make(map[string]string, len(h.opts.Knowledge))
	for name, src := range h.opts.Knowledge {
		knowledge[name] = src.Status().String()
	}
	resp["knowledge"] = knowledge

	JSON(w, status, resp)
}

// Dashboard returns the dashboard view of the caller.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	v := h.viewFor(r)
	JSON(w, http.StatusOK, v.board.Dashboard(r.Context()))
}

// Productivity returns the productivity view of the caller.
func (h *Handler) Productivity(w http.ResponseWriter, r *http.Request) {
	v := h.viewFor(r)
	JSON(w, http.StatusOK, v.board.Productivity(r.Context()))
}

// ToggleTask flips one of today's tasks in the session view.
func (h *Handler) ToggleTask(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid task id")
		return
	}
	v := h.viewFor(r)
	task, ok := v.board.ToggleTask(id)
	if !ok {
		Error(w, http.StatusNotFound, "task not found")
		return
	}
	JSON(w, http.StatusOK, task)
}

// Scores returns the caller's current scores.
func (h *Handler) Scores(w http.ResponseWriter, r *http.Request) {
	v := h.viewFor(r)
	JSON(w, http.StatusOK, v.board.Current(r.Context()))
}

type toolInfo struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Params      []tools.Param `json:"params,omitempty"`
}

// ListTools describes the tool surface.
func (h *Handler) ListTools(w http.ResponseWriter, r *http.Request) {
	registry := h.registryFor(h.viewFor(r))
	list := make([]toolInfo, 0)
	for _, t := range registry.Tools() {
		list = append(list, toolInfo{Name: t.Name, Description: t.Description, Params: t.Params})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	JSON(w, http.StatusOK, list)
}

// CallTool runs a tool with the JSON object body as arguments.
func (h *Handler) CallTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	args := tools.Args{}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &args); err != nil {
			Error(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	v := h.viewFor(r)
	out, err := h.registryFor(v).Call(r.Context(), name, args)
	if errors.Is(err, tools.ErrUnknownTool) {
		Error(w, http.StatusNotFound, "unknown tool")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"tool": name, "output": out})
}

// BrowserState returns the automation state of the caller's session.
func (h *Handler) BrowserState(w http.ResponseWriter, r *http.Request) {
	v := h.viewFor(r)
	JSON(w, http.StatusOK, v.tracker.Snapshot())
}

type previewRequest struct {
	Room     string          `json:"room"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

type previewResponse struct {
	Room         string              `json:"room"`
	UserID       string              `json:"user_id"`
	Identified   bool                `json:"identified"`
	Personalized bool                `json:"personalized"`
	Persona      string              `json:"persona"`
	Preferences  domain.Preferences  `json:"preferences"`
	Greeting     string              `json:"greeting"`
	Instructions string              `json:"instructions"`
	Context      *domain.UserContext `json:"context,omitempty"`
}

// PreviewSession shows what a live session for the room would be bootstrapped with.
func (h *Handler) PreviewSession(w http.ResponseWriter, r *http.Request) {
	if h.opts.Bootstrapper == nil {
		Error(w, http.StatusServiceUnavailable, "session bootstrap not configured")
		return
	}
	var req previewRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Room == "" {
		Error(w, http.StatusBadRequest, "room is required")
		return
	}

	prefs := session.ParseMetadata(rawMetadata(req.Metadata))
	setup := h.opts.Bootstrapper.Personalize(r.Context(), req.Room, prefs)
	JSON(w, http.StatusOK, previewResponse{
		Room:         setup.Room,
		UserID:       setup.UserID,
		Identified:   setup.Identified,
		Personalized: setup.Personalized,
		Persona:      setup.PersonaKey(),
		Preferences:  setup.Preferences,
		Greeting:     setup.Persona.Greeting,
		Instructions: setup.Instructions,
		Context:      setup.Context,
	})
}

// rawMetadata accepts metadata as a JSON string or an inline object.
func rawMetadata(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
