//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/ashureev/mindcure-agent/internal/browser"
	"github.com/ashureev/mindcure-agent/internal/credentials"
	"github.com/ashureev/mindcure-agent/internal/domain"
	"github.com/ashureev/mindcure-agent/internal/identity"
	"github.com/ashureev/mindcure-agent/internal/live"
	"github.com/ashureev/mindcure-agent/internal/prompts"
	"github.com/ashureev/mindcure-agent/internal/retrieval"
	"github.com/ashureev/mindcure-agent/internal/scores"
	"github.com/ashureev/mindcure-agent/internal/session"
	"github.com/ashureev/mindcure-agent/internal/tools"
	"github.com/ashureev/mindcure-agent/internal/usercontext"
	"github.com/go-chi/chi/v5"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusTeapot, "short and stout")

	if w.Code != http.StatusTeapot {
		t.Errorf("Expected status 418, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"error":"short and stout"`) {
		t.Errorf("Unexpected body: %s", w.Body.String())
	}
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fixedStatus retrieval.Status

func (s fixedStatus) Status() retrieval.Status { return retrieval.Status(s) }

func newTestRouter(t *testing.T, opts Options) (http.Handler, *Handler) {
	t.Helper()
	if opts.Bootstrapper == nil {
		opts.Bootstrapper = session.NewBootstrapper(
			prompts.MustLoad(),
			usercontext.NewLoader(nil, nil),
			credentials.NewResolver(nil, "", nil),
			"", nil)
	}
	h := NewHandler(opts)
	r := chi.NewRouter()
	r.Use(identity.Middleware(""))
	h.RegisterRoutes(r)
	return r, h
}

func do(t *testing.T, router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t, Options{
		Store:     fakePinger{},
		Knowledge: map[string]KnowledgeSource{"fast": fixedStatus(retrieval.StatusReady), "deep": fixedStatus(retrieval.StatusUnavailable)},
	})
	rec := do(t, router, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	got := decode[map[string]any](t, rec)
	if got["status"] != "ok" || got["store"] != "ok" {
		t.Errorf("Unexpected health: %v", got)
	}
	knowledge, _ := got["knowledge"].(map[string]any)
	if knowledge["fast"] != "ready" || knowledge["deep"] != "unavailable" {
		t.Errorf("Unexpected knowledge status: %v", knowledge)
	}

	router, _ = newTestRouter(t, Options{Store: fakePinger{err: errors.New("down")}})
	rec = do(t, router, http.MethodGet, "/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 when the store is down, got %d", rec.Code)
	}
}

func TestScoresWithoutSessionAreStateless(t *testing.T) {
	router, _ := newTestRouter(t, Options{})

	rec := do(t, router, http.MethodPost, "/api/tools/update_user_progress", `{"activity_type":"meditation"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	out := decode[map[string]string](t, rec)
	if !strings.Contains(out["output"], "79") {
		t.Errorf("Expected updated score in output, got %q", out["output"])
	}

	sc := decode[domain.Scores](t, do(t, router, http.MethodGet, "/api/scores", ""))
	if sc.MentalHealth != 75 {
		t.Errorf("Expected seed score 75 outside a session, got %d", sc.MentalHealth)
	}
}

func TestToolsShareLiveSessionState(t *testing.T) {
	sessions := live.NewSessions()
	svc := scores.NewService(nil, nil, nil)
	board := svc.NewBoard("guest9")
	tracker := browser.NewTracker(0)
	sessions.Register(&live.State{
		SessionID: "mindcure-guest9",
		UserID:    "guest9",
		Scores:    board,
		Tracker:   tracker,
		Tools:     tools.Build(tools.Deps{}, tools.Session{UserID: "guest9", Scores: board, Automation: tracker}),
	})
	router, _ := newTestRouter(t, Options{Sessions: sessions, Scores: svc})

	rec := do(t, router, http.MethodPost, "/api/tools/update_user_progress?room=mindcure-guest9", `{"activity_type":"meditation"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	sc := decode[domain.Scores](t, do(t, router, http.MethodGet, "/api/scores?room=mindcure-guest9", ""))
	if sc.MentalHealth != 79 || sc.Productivity != 83 {
		t.Errorf("Expected 79/83 after meditation, got %d/%d", sc.MentalHealth, sc.Productivity)
	}

	dash := decode[domain.Dashboard](t, do(t, router, http.MethodGet, "/api/dashboard?room=mindcure-guest9", ""))
	if dash.MentalHealthScore != 79 {
		t.Errorf("Expected dashboard to follow the session, got %d", dash.MentalHealthScore)
	}
}

func TestCallUnknownTool(t *testing.T) {
	router, _ := newTestRouter(t, Options{})
	rec := do(t, router, http.MethodPost, "/api/tools/launch_rockets", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}

	rec = do(t, router, http.MethodPost, "/api/tools/get_current_scores", "not json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a malformed body, got %d", rec.Code)
	}
}

func TestListTools(t *testing.T) {
	router, _ := newTestRouter(t, Options{})
	list := decode[[]toolInfo](t, do(t, router, http.MethodGet, "/api/tools", ""))
	if len(list) != 14 {
		t.Fatalf("Expected 14 tools, got %d", len(list))
	}
	if list[0].Name != tools.AutomationTask {
		t.Errorf("Expected sorted names, first is %q", list[0].Name)
	}
}

func TestToggleTask(t *testing.T) {
	router, _ := newTestRouter(t, Options{})

	before := decode[domain.Productivity](t, do(t, router, http.MethodGet, "/api/productivity", ""))
	if len(before.TodaysTasks) == 0 {
		t.Fatal("Expected seeded tasks")
	}
	first := before.TodaysTasks[0]

	rec := do(t, router, http.MethodPost, "/api/productivity/tasks/"+strconv.Itoa(first.ID)+"/toggle", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	task := decode[domain.DailyTask](t, rec)
	if task.Completed == first.Completed {
		t.Errorf("Expected completion to flip, still %v", task.Completed)
	}

	if rec := do(t, router, http.MethodPost, "/api/productivity/tasks/abc/toggle", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
	if rec := do(t, router, http.MethodPost, "/api/productivity/tasks/999/toggle", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestBrowserStateIdle(t *testing.T) {
	router, _ := newTestRouter(t, Options{})
	state := decode[domain.AutomationState](t, do(t, router, http.MethodGet, "/api/browser/state", ""))
	if state.Status != domain.AutomationIdle || state.Running {
		t.Errorf("Expected idle state, got %+v", state)
	}
}

func TestPreviewSession(t *testing.T) {
	router, _ := newTestRouter(t, Options{})

	rec := do(t, router, http.MethodPost, "/api/sessions/preview", `{"room":"mindcure-guest42","metadata":{"genz_mode":true,"voice":"charon"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[previewResponse](t, rec)
	if got.UserID != "guest42" || got.Identified || got.Personalized {
		t.Errorf("Expected anonymous guest, got %+v", got)
	}
	if got.Persona != "genz" || got.Preferences.Voice != domain.VoiceCharon {
		t.Errorf("Unexpected preferences: persona=%s voice=%s", got.Persona, got.Preferences.Voice)
	}
	if got.Greeting == "" {
		t.Error("Expected a greeting")
	}

	legacy := do(t, router, http.MethodPost, "/api/sessions/preview", `{"room":"mindcure-guest42","metadata":"genz_mode=true"}`)
	if decode[previewResponse](t, legacy).Persona != "genz" {
		t.Error("Expected legacy metadata to select the alternate persona")
	}

	if rec := do(t, router, http.MethodPost, "/api/sessions/preview", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without room, got %d", rec.Code)
	}
}

func TestOptionalRoutes(t *testing.T) {
	billing := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusAccepted) })
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) })
	router, _ := newTestRouter(t, Options{Billing: billing, Metrics: metrics})

	if rec := do(t, router, http.MethodPost, "/api/billing/webhook", "{}"); rec.Code != http.StatusAccepted {
		t.Errorf("Expected billing handler, got %d", rec.Code)
	}
	if rec := do(t, router, http.MethodGet, "/metrics", ""); rec.Body.String() != "# metrics" {
		t.Errorf("Expected metrics handler, got %q", rec.Body.String())
	}

	bare, _ := newTestRouter(t, Options{})
	if rec := do(t, bare, http.MethodPost, "/api/billing/webhook", "{}"); rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected no billing route, got %d", rec.Code)
	}
}
