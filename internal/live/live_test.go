package live

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/mindcure-agent/internal/credentials"
	"github.com/ashureev/mindcure-agent/internal/metrics"
	"github.com/ashureev/mindcure-agent/internal/prompts"
	"github.com/ashureev/mindcure-agent/internal/scores"
	"github.com/ashureev/mindcure-agent/internal/session"
	"github.com/ashureev/mindcure-agent/internal/tools"
	"github.com/ashureev/mindcure-agent/internal/usercontext"
	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

var errClosed = errors.New("session closed")

type fakeConn struct {
	events    chan *Event
	texts     chan string
	audio     chan []byte
	responses chan []ToolResult
	done      chan struct{}
	once      sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		events:    make(chan *Event, 8),
		texts:     make(chan string, 8),
		audio:     make(chan []byte, 8),
		responses: make(chan []ToolResult, 8),
		done:      make(chan struct{}),
	}
}

func (f *fakeConn) SendAudio(pcm []byte) error { f.audio <- pcm; return nil }
func (f *fakeConn) SendText(text string) error { f.texts <- text; return nil }

func (f *fakeConn) SendToolResponses(results []ToolResult) error {
	f.responses <- results
	return nil
}

func (f *fakeConn) Receive() (*Event, error) {
	select {
	case ev := <-f.events:
		return ev, nil
	case <-f.done:
		return nil, errClosed
	}
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.done) })
	return nil
}

type fakeModel struct {
	conn *fakeConn
	err  error

	mu  sync.Mutex
	cfg ConnectConfig
}

func (m *fakeModel) Connect(_ context.Context, cfg ConnectConfig) (Conn, error) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.conn, nil
}

func (m *fakeModel) config() ConnectConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

func newTestHandler(model Model, platformKey string, m *metrics.Metrics) *Handler {
	boot := session.NewBootstrapper(
		prompts.MustLoad(),
		usercontext.NewLoader(nil, nil),
		credentials.NewResolver(nil, platformKey, nil),
		"", nil)
	return NewHandler(Config{
		Bootstrapper: boot,
		Model:        model,
		Scores:       scores.NewService(nil, nil, nil),
		Tools:        tools.Deps{Observer: m},
		Metrics:      m,
		PollAttempts: 2,
		PollInterval: time.Millisecond,
		IsDev:        true,
	})
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/session?" + query
	ws, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.CloseNow() })
	return ws
}

func readEvent(t *testing.T, ws *websocket.Conn) serverEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		typ, data, err := ws.Read(ctx)
		require.NoError(t, err)
		if typ != websocket.MessageText {
			continue
		}
		var ev serverEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	}
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for model input")
		var zero T
		return zero
	}
}

func TestRelaySession(t *testing.T) {
	conn := newFakeConn()
	model := &fakeModel{conn: conn}
	m := metrics.New("test")
	h := newTestHandler(model, "platform-key", m)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ws := dial(t, srv, "room=mindcure-guest42&metadata="+`%7B%22voice%22%3A%22kore%22%2C%22genz_mode%22%3Atrue%7D`)

	ready := readEvent(t, ws)
	require.Equal(t, EventReady, ready.Type)
	require.NotNil(t, ready.Session)
	assert.Equal(t, "genz", ready.Session.Persona)
	assert.Equal(t, "Kore", ready.Session.Voice)
	assert.Equal(t, "guest42", ready.Session.UserID)
	assert.False(t, ready.Session.Personalized)

	cfg := model.config()
	assert.Equal(t, "platform-key", cfg.APIKey)
	assert.Equal(t, "Kore", cfg.Voice)
	require.NotNil(t, cfg.Tools)
	assert.Len(t, cfg.Tools.FunctionDeclarations, 14)

	greeting := receive(t, conn.texts)
	assert.Contains(t, greeting, prompts.MustLoad().GenZ.Greeting[:20])

	state := h.Sessions().Get("mindcure-guest42")
	require.NotNil(t, state)

	ctx := context.Background()
	require.NoError(t, ws.Write(ctx, websocket.MessageBinary, []byte{1, 2, 3, 4}))
	assert.Equal(t, []byte{1, 2, 3, 4}, receive(t, conn.audio))

	require.NoError(t, ws.Write(ctx, websocket.MessageText, []byte(`{"type":"text","content":"hello"}`)))
	assert.Equal(t, "hello", receive(t, conn.texts))

	conn.events <- &Event{ToolCalls: []ToolCall{{ID: "c1", Name: tools.GetCurrentScores}}}
	call := readEvent(t, ws)
	assert.Equal(t, EventToolCall, call.Type)
	assert.Equal(t, tools.GetCurrentScores, call.Tool)
	result := readEvent(t, ws)
	assert.Equal(t, EventToolResult, result.Type)
	assert.Contains(t, result.Output, "Mental Health Score: 75/100")

	responses := receive(t, conn.responses)
	require.Len(t, responses, 1)
	assert.Equal(t, "c1", responses[0].ID)
	assert.Equal(t, result.Output, responses[0].Output)

	conn.events <- &Event{
		Audio:            []byte{9, 9},
		OutputTranscript: "hey bestie",
		TurnComplete:     true,
		Usage:            &Usage{InputTokens: 10, OutputTokens: 20},
	}
	readCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	typ, data, err := ws.Read(readCtx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageBinary, typ)
	assert.Equal(t, []byte{9, 9}, data)
	transcript := readEvent(t, ws)
	assert.Equal(t, EventTranscript, transcript.Type)
	assert.Equal(t, "assistant", transcript.Role)
	assert.Equal(t, EventTurnComplete, readEvent(t, ws).Type)

	require.NoError(t, ws.Write(ctx, websocket.MessageText, []byte(`{"type":"end"}`)))
	require.Eventually(t, func() bool { return h.Sessions().Len() == 0 }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return testutil.ToFloat64(m.SessionsActive) == 0 }, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsTotal.WithLabelValues("genz", "anonymous")))
	assert.Equal(t, 20.0, testutil.ToFloat64(m.TokensTotal.WithLabelValues("output")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues(tools.GetCurrentScores, "ok")))
}

func TestRelayUnknownTool(t *testing.T) {
	conn := newFakeConn()
	h := newTestHandler(&fakeModel{conn: conn}, "key", nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ws := dial(t, srv, "room=mindcure-guest1")
	require.Equal(t, EventReady, readEvent(t, ws).Type)

	conn.events <- &Event{ToolCalls: []ToolCall{{ID: "x", Name: "launch_rockets"}}}
	assert.Equal(t, EventToolCall, readEvent(t, ws).Type)
	assert.Equal(t, unknownToolText, readEvent(t, ws).Output)
	assert.Equal(t, unknownToolText, receive(t, conn.responses)[0].Output)
}

func TestRelayMetadataFrame(t *testing.T) {
	conn := newFakeConn()
	model := &fakeModel{conn: conn}
	h := newTestHandler(model, "key", nil)
	h.cfg.PollAttempts = 200
	h.cfg.PollInterval = 10 * time.Millisecond
	srv := httptest.NewServer(h)
	defer srv.Close()

	ws := dial(t, srv, "room=mindcure-guest2")
	require.NoError(t, ws.Write(context.Background(), websocket.MessageText,
		[]byte(`{"type":"metadata","metadata":{"voice":"Aoede"}}`)))

	ready := readEvent(t, ws)
	require.Equal(t, EventReady, ready.Type)
	assert.Equal(t, "Aoede", ready.Session.Voice)
	assert.Equal(t, "default", ready.Session.Persona)
}

func TestRelayModelUnavailable(t *testing.T) {
	h := newTestHandler(&fakeModel{err: errors.New("quota")}, "key", nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ws := dial(t, srv, "room=mindcure-guest3")
	ev := readEvent(t, ws)
	assert.Equal(t, EventError, ev.Type)
	assert.Equal(t, "model_unavailable", ev.Error)
}

func TestRelayWithoutCredential(t *testing.T) {
	h := newTestHandler(&fakeModel{conn: newFakeConn()}, "", nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ws := dial(t, srv, "room=mindcure-guest4")
	ev := readEvent(t, ws)
	assert.Equal(t, EventError, ev.Type)
	assert.Equal(t, "session_unavailable", ev.Error)
}

func TestRelayRequiresRoom(t *testing.T) {
	h := newTestHandler(&fakeModel{}, "key", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/ws/session", nil))
	assert.Equal(t, 400, rec.Code)
}

func TestMetadataFromMessage(t *testing.T) {
	assert.Equal(t, `{"voice":"Kore"}`, metadataFromMessage(clientMessage{Metadata: json.RawMessage(`{"voice":"Kore"}`)}))
	assert.Equal(t, `genz_mode=true`, metadataFromMessage(clientMessage{Metadata: json.RawMessage(`"genz_mode=true"`)}))

	on := true
	prefs := session.ParseMetadata(metadataFromMessage(clientMessage{Voice: "Fenrir", GenZMode: &on}))
	assert.Equal(t, "Fenrir", prefs.Voice)
	assert.True(t, prefs.GenZMode)
}

func TestUsageCollector(t *testing.T) {
	start := time.Unix(1000, 0)
	u := NewUsageCollector(start)
	u.Tokens(Usage{InputTokens: 5, OutputTokens: 7})
	u.Tokens(Usage{InputTokens: 12, OutputTokens: 3})
	u.ToolCall()
	u.ToolCall()
	u.Audio(100, 0)
	u.Audio(0, 40)

	s := u.Summary(start.Add(90 * time.Second))
	assert.Equal(t, UsageSummary{
		InputTokens:   12,
		OutputTokens:  7,
		ToolCalls:     2,
		AudioInBytes:  100,
		AudioOutBytes: 40,
		Duration:      90 * time.Second,
	}, s)
}

func TestEventFromMessage(t *testing.T) {
	msg := &genai.LiveServerMessage{
		ServerContent: &genai.LiveServerContent{
			ModelTurn: &genai.Content{Parts: []*genai.Part{
				{InlineData: &genai.Blob{MIMEType: "audio/pcm;rate=24000", Data: []byte{1, 2}}},
				{Text: "ignored"},
			}},
			OutputTranscription: &genai.Transcription{Text: "hi"},
			TurnComplete:        true,
		},
		ToolCall: &genai.LiveServerToolCall{FunctionCalls: []*genai.FunctionCall{
			{ID: "1", Name: "record_mood", Args: map[string]any{"mood_score": 7.0}},
		}},
		UsageMetadata: &genai.UsageMetadata{PromptTokenCount: 3, ResponseTokenCount: 4},
	}

	ev := eventFromMessage(msg)
	assert.Equal(t, []byte{1, 2}, ev.Audio)
	assert.Equal(t, "hi", ev.OutputTranscript)
	assert.True(t, ev.TurnComplete)
	require.Len(t, ev.ToolCalls, 1)
	assert.Equal(t, "record_mood", ev.ToolCalls[0].Name)
	assert.Equal(t, &Usage{InputTokens: 3, OutputTokens: 4}, ev.Usage)
}
