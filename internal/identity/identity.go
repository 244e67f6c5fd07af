// Package identity derives user and session identity from room names and requests.
package identity

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	// DefaultRoomPrefix is the prefix the frontend puts on every room name.
	DefaultRoomPrefix = "mindcure-"

	UserHeaderName        = "X-MindCure-User-ID"
	SessionHeaderName     = "X-MindCure-Session-ID"
	DefaultSessionIDValue = "default"

	// uuidSegments is the number of hyphen-separated groups in a canonical UUID.
	uuidSegments = 5
)

type contextKey int

const (
	userIDKey contextKey = iota
	sessionIDKey
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// UserIDFromRoom extracts the user identifier from a room name.
//
// Room names look like "<prefix><uuid>-<suffix>". After stripping the prefix
// the remainder is split on "-"; when at least five segments exist the first
// five are rejoined as the candidate ID, otherwise the whole remainder is the
// candidate. Only candidates that parse as a UUID are returned with ok=true.
// A name without the prefix yields ok=false.
func UserIDFromRoom(prefix, room string) (string, bool) {
	if prefix == "" {
		prefix = DefaultRoomPrefix
	}
	rest, found := strings.CutPrefix(room, prefix)
	if !found || rest == "" {
		return "", false
	}

	candidate := rest
	if parts := strings.Split(rest, "-"); len(parts) >= uuidSegments {
		candidate = strings.Join(parts[:uuidSegments], "-")
	}
	if !IsUserID(candidate) {
		return candidate, false
	}
	return strings.ToLower(candidate), true
}

// IsUserID reports whether id is a canonical hyphenated UUID.
func IsUserID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// WithUserID returns a context carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// WithSessionID returns a context carrying sessionID.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// UserIDFromContext extracts the user ID from the request context.
// An empty string means the caller is anonymous.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// SessionIDFromContext extracts the session ID from the request context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return DefaultSessionIDValue
}

func sanitizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !sessionIDPattern.MatchString(id) {
		return DefaultSessionIDValue
	}
	return id
}

// userIDFromRequest trusts UserHeaderName as set by the authenticating
// proxy in front of the agent; the proxy must strip it from client requests.
func userIDFromRequest(r *http.Request, roomPrefix string) string {
	if id := strings.TrimSpace(r.Header.Get(UserHeaderName)); IsUserID(id) {
		return strings.ToLower(id)
	}
	if room := r.URL.Query().Get("room"); room != "" {
		if id, ok := UserIDFromRoom(roomPrefix, room); ok {
			return id
		}
	}
	return ""
}

func sessionIDFromRequest(r *http.Request) string {
	sid := r.Header.Get(SessionHeaderName)
	if sid == "" {
		sid = r.URL.Query().Get("session_id")
	}
	if sid == "" {
		sid = r.URL.Query().Get("room")
	}
	return sanitizeSessionID(sid)
}

// Middleware injects the caller's user ID (empty when anonymous) and session ID.
func Middleware(roomPrefix string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithUserID(r.Context(), userIDFromRequest(r, roomPrefix))
			ctx = WithSessionID(ctx, sessionIDFromRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
