package middleware

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

func serve(origins []string, method, origin string) *httptest.ResponseRecorder {
	h := CORS(origins)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(method, "/api/scores", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCORSExplicitOrigin(t *testing.T) {
	rec := serve([]string{"https://app.mindcure.example"}, http.MethodGet, "https://app.mindcure.example")
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.mindcure.example" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("Expected credentials for an explicit origin")
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), "X-MindCure-Session-ID") {
		t.Errorf("Allow-Headers = %q", rec.Header().Get("Access-Control-Allow-Headers"))
	}
}

func TestCORSWildcardHasNoCredentials(t *testing.T) {
	rec := serve([]string{"*"}, http.MethodGet, "https://elsewhere.example")
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://elsewhere.example" {
		t.Error("Expected wildcard to echo the origin")
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Error("Wildcard must not allow credentials")
	}
}

func TestCORSRejectedOrigin(t *testing.T) {
	rec := serve([]string{"https://app.mindcure.example"}, http.MethodGet, "https://evil.example")
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("Unexpected Allow-Origin for a foreign origin")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("Expected the request to pass through, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	rec := serve([]string{"*"}, http.MethodOptions, "https://app.mindcure.example")
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204 for preflight, got %d", rec.Code)
	}
}

func TestOrigins(t *testing.T) {
	if got := Origins("https://a.example", true); !reflect.DeepEqual(got, []string{"*"}) {
		t.Errorf("dev origins = %v", got)
	}
	got := Origins(" https://a.example/ ,https://b.example,, ", false)
	want := []string{"https://a.example", "https://b.example"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Origins = %v, want %v", got, want)
	}
}
