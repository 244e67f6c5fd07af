package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/mindcure-agent/internal/browser"
	"github.com/ashureev/mindcure-agent/internal/metrics"
	"github.com/ashureev/mindcure-agent/internal/scores"
	"github.com/ashureev/mindcure-agent/internal/session"
	"github.com/ashureev/mindcure-agent/internal/tools"
	"github.com/coder/websocket"
)

const (
	readLimit       = 1 << 20
	inboundBuffer   = 64
	finishTimeout   = 5 * time.Second
	unknownToolText = "That tool isn't available right now."
)

// Event types sent to the client.
const (
	EventReady        = "ready"
	EventTranscript   = "transcript"
	EventToolCall     = "tool_call"
	EventToolResult   = "tool_result"
	EventTurnComplete = "turn_complete"
	EventInterrupted  = "interrupted"
	EventError        = "error"
)

// Config wires the relay.
type Config struct {
	Bootstrapper   *session.Bootstrapper
	Model          Model
	Scores         *scores.Service
	Tools          tools.Deps
	Sessions       *Sessions
	Metrics        *metrics.Metrics
	MaxScreenshots int
	PollAttempts   int
	PollInterval   time.Duration
	AllowedOrigin  string
	IsDev          bool
	Logger         *slog.Logger
}

// Handler serves GET /ws/session.
type Handler struct {
	cfg    Config
	logger *slog.Logger
}

// NewHandler creates the relay handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sessions == nil {
		cfg.Sessions = NewSessions()
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = session.DefaultPollAttempts
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = session.DefaultPollInterval
	}
	return &Handler{cfg: cfg, logger: cfg.Logger}
}

// Sessions returns the registry of active sessions.
func (h *Handler) Sessions() *Sessions {
	return h.cfg.Sessions
}

// clientMessage is a JSON control frame from the browser.
type clientMessage struct {
	Type     string          `json:"type"`
	Content  string          `json:"content,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
	Voice    string          `json:"voice,omitempty"`
	GenZMode *bool           `json:"genz_mode,omitempty"`
}

// serverEvent is a JSON event sent to the browser.
type serverEvent struct {
	Type    string         `json:"type"`
	Role    string         `json:"role,omitempty"`
	Text    string         `json:"text,omitempty"`
	ID      string         `json:"id,omitempty"`
	Tool    string         `json:"tool,omitempty"`
	Args    map[string]any `json:"args,omitempty"`
	Output  string         `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
	Session *sessionInfo   `json:"session,omitempty"`
}

type sessionInfo struct {
	SessionID    string `json:"session_id"`
	UserID       string `json:"user_id,omitempty"`
	Persona      string `json:"persona"`
	Voice        string `json:"voice"`
	Personalized bool   `json:"personalized"`
}

type inbound struct {
	audio []byte
	text  string
}

// client is the browser side of one session.
type client struct {
	ws       *websocket.Conn
	metadata atomic.Pointer[string]
	in       chan inbound
}

func (c *client) currentMetadata(context.Context) string {
	if p := c.metadata.Load(); p != nil {
		return *p
	}
	return ""
}

func (c *client) send(ev serverEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.ws.Write(context.Background(), websocket.MessageText, data)
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	room := strings.TrimSpace(r.URL.Query().Get("room"))
	if room == "" {
		http.Error(w, "room is required", http.StatusBadRequest)
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
		h.logger.Error("Failed to accept WebSocket", "error", err, "room", room)
		return
	}
	ws.SetReadLimit(readLimit)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "room", room)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &client{ws: ws, in: make(chan inbound, inboundBuffer)}
	if raw := r.URL.Query().Get("metadata"); raw != "" {
		c.metadata.Store(&raw)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		h.readLoop(ctx, c, room)
	}()

	h.run(ctx, c, room)
	cancel()
	wg.Wait()
}

// run owns one session from bootstrap to shutdown.
func (h *Handler) run(ctx context.Context, c *client, room string) {
	log := h.logger.With("session_id", room)

	prefs := session.PollPreferences(ctx, c.currentMetadata, h.cfg.PollAttempts, h.cfg.PollInterval)
	setup, err := h.cfg.Bootstrapper.Prepare(ctx, room, prefs)
	if err != nil {
		log.Error("Failed to prepare session", "error", err)
		_ = c.send(serverEvent{Type: EventError, Error: "session_unavailable"})
		return
	}
	log = log.With("user_id", setup.UserID)

	st := &State{
		SessionID: room,
		UserID:    setup.UserID,
		StartedAt: time.Now(),
		Scores:    h.cfg.Scores.NewBoard(setup.UserID),
		Tracker:   browser.NewTracker(h.cfg.MaxScreenshots),
		conn:      c.ws,
	}
	st.Tools = tools.Build(h.cfg.Tools, tools.Session{
		UserID:     setup.UserID,
		Scores:     st.Scores,
		Automation: st.Tracker,
	})
	h.cfg.Sessions.Register(st)
	defer h.cfg.Sessions.Unregister(st)

	h.cfg.Metrics.SessionStarted(setup.PersonaKey(), setup.Identified)
	h.cfg.Metrics.CredentialResolved(string(setup.Credential.Source))
	usage := NewUsageCollector(st.StartedAt)
	defer h.finish(st, setup, usage, log)

	conn, err := h.cfg.Model.Connect(ctx, ConnectConfig{
		APIKey:       setup.Credential.APIKey,
		Instructions: setup.Instructions,
		Voice:        setup.Preferences.Voice,
		Tools:        st.Tools.GenAITool(),
	})
	if err != nil {
		log.Error("Failed to connect realtime model", "error", err)
		_ = c.send(serverEvent{Type: EventError, Error: "model_unavailable"})
		return
	}
	var closeOnce sync.Once
	closeConn := func() {
		closeOnce.Do(func() {
			if err := conn.Close(); err != nil {
				log.Debug("Failed to close model session", "error", err)
			}
		})
	}
	defer closeConn()
	go func() {
		<-ctx.Done()
		closeConn()
	}()

	_ = c.send(serverEvent{Type: EventReady, Session: &sessionInfo{
		SessionID:    room,
		UserID:       setup.UserID,
		Persona:      setup.PersonaKey(),
		Voice:        setup.Preferences.Voice,
		Personalized: setup.Personalized,
	}})

	if greeting := strings.TrimSpace(setup.Persona.Greeting); greeting != "" {
		if err := conn.SendText(greetingPrompt(greeting)); err != nil {
			log.Warn("Failed to send greeting", "error", err)
		}
	}

	sessCtx, stop := context.WithCancel(ctx)
	defer stop()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer stop()
		h.forward(sessCtx, c, conn, usage, log)
	}()

	h.receiveLoop(sessCtx, c, conn, st.Tools, usage, log)
	stop()
	closeConn()
	wg.Wait()
}

func greetingPrompt(greeting string) string {
	return "Greet the user now, warmly and in your own voice, using this greeting: " + greeting
}

func (h *Handler) finish(st *State, setup *session.Setup, usage *UsageCollector, log *slog.Logger) {
	summary := usage.Summary(time.Now())
	log.Info("Live session ended", "usage", summary)
	h.cfg.Metrics.SessionEnded(summary.Duration, summary.InputTokens, summary.OutputTokens)

	ctx, cancel := context.WithTimeout(context.Background(), finishTimeout)
	defer cancel()
	title := fmt.Sprintf("Voice session with %s", setup.Persona.Name)
	if err := st.Scores.Finish(ctx, title, summary.Duration); err != nil {
		log.Warn("Failed to record session end", "error", err)
	}
}

// readLoop reads browser frames until the socket closes or the client ends the session.
func (h *Handler) readLoop(ctx context.Context, c *client, room string) {
	defer close(c.in)
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				h.logger.Debug("WebSocket closed", "session_id", room)
			} else {
				h.logger.Warn("WebSocket read error", "error", err, "session_id", room)
			}
			return
		}

		if typ == websocket.MessageBinary {
			if !h.enqueue(ctx, c, inbound{audio: data}) {
				return
			}
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("Ignoring malformed control frame", "session_id", room)
			continue
		}
		switch msg.Type {
		case "metadata":
			raw := metadataFromMessage(msg)
			c.metadata.Store(&raw)
		case "text":
			if strings.TrimSpace(msg.Content) == "" {
				continue
			}
			if !h.enqueue(ctx, c, inbound{text: msg.Content}) {
				return
			}
		case "ping":
			_ = c.send(serverEvent{Type: "pong"})
		case "end":
			h.logger.Info("Session end requested", "session_id", room)
			return
		}
	}
}

func (h *Handler) enqueue(ctx context.Context, c *client, msg inbound) bool {
	select {
	case c.in <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// metadataFromMessage accepts either {"type":"metadata","metadata":{...}} or
// the preference fields inline.
func metadataFromMessage(msg clientMessage) string {
	if len(msg.Metadata) > 0 {
		var s string
		if err := json.Unmarshal(msg.Metadata, &s); err == nil {
			return s
		}
		return string(msg.Metadata)
	}
	inline := map[string]any{"voice": msg.Voice}
	if msg.GenZMode != nil {
		inline["genz_mode"] = *msg.GenZMode
	}
	data, _ := json.Marshal(inline)
	return string(data)
}

// forward relays queued browser input to the model.
func (h *Handler) forward(ctx context.Context, c *client, conn Conn, usage *UsageCollector, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.in:
			if !ok {
				return
			}
			var err error
			if msg.audio != nil {
				err = conn.SendAudio(msg.audio)
				usage.Audio(len(msg.audio), 0)
				h.cfg.Metrics.Audio("in", len(msg.audio))
			} else {
				err = conn.SendText(msg.text)
			}
			if err != nil {
				if ctx.Err() == nil {
					log.Warn("Failed to forward input to model", "error", err)
				}
				return
			}
		}
	}
}

// receiveLoop relays model output to the browser and runs tool calls one at a time.
func (h *Handler) receiveLoop(ctx context.Context, c *client, conn Conn, registry *tools.Registry, usage *UsageCollector, log *slog.Logger) {
	for {
		ev, err := conn.Receive()
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("Model receive error", "error", err)
				_ = c.send(serverEvent{Type: EventError, Error: "model_disconnected"})
			}
			return
		}

		if len(ev.Audio) > 0 {
			if err := c.ws.Write(ctx, websocket.MessageBinary, ev.Audio); err != nil {
				if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
					log.Debug("WebSocket write error", "error", err)
				}
				return
			}
			usage.Audio(0, len(ev.Audio))
			h.cfg.Metrics.Audio("out", len(ev.Audio))
		}
		if ev.InputTranscript != "" {
			_ = c.send(serverEvent{Type: EventTranscript, Role: "user", Text: ev.InputTranscript})
		}
		if ev.OutputTranscript != "" {
			_ = c.send(serverEvent{Type: EventTranscript, Role: "assistant", Text: ev.OutputTranscript})
		}
		if len(ev.ToolCalls) > 0 {
			results := h.dispatch(ctx, c, registry, ev.ToolCalls, usage, log)
			if err := conn.SendToolResponses(results); err != nil {
				if ctx.Err() == nil {
					log.Warn("Failed to send tool responses", "error", err)
				}
				return
			}
		}
		if ev.Usage != nil {
			usage.Tokens(*ev.Usage)
		}
		if ev.Interrupted {
			_ = c.send(serverEvent{Type: EventInterrupted})
		}
		if ev.TurnComplete {
			_ = c.send(serverEvent{Type: EventTurnComplete})
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, c *client, registry *tools.Registry, calls []ToolCall, usage *UsageCollector, log *slog.Logger) []ToolResult {
	results := make([]ToolResult, 0, len(calls))
	for _, call := range calls {
		_ = c.send(serverEvent{Type: EventToolCall, ID: call.ID, Tool: call.Name, Args: call.Args})
		usage.ToolCall()

		out, err := registry.Call(ctx, call.Name, tools.Args(call.Args))
		if err != nil {
			log.Warn("Model requested unknown tool", "tool", call.Name)
			out = unknownToolText
		}
		_ = c.send(serverEvent{Type: EventToolResult, ID: call.ID, Tool: call.Name, Output: out})
		results = append(results, ToolResult{ID: call.ID, Name: call.Name, Output: out})
	}
	return results
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.cfg.IsDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.cfg.AllowedOrigin == "*" || origin == h.cfg.AllowedOrigin {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.cfg.AllowedOrigin)
	return false
}
