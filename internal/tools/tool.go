// Package tools defines the functions the realtime model can call mid-conversation.
//
// Handlers return (string, error) and never format failures themselves;
// WithFallback turns any error or panic into the tool's canned, user-safe text.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"strconv"
	"strings"
	"time"
)

// ErrUnknownTool is returned by Registry.Call for an unregistered name.
var ErrUnknownTool = errors.New("unknown tool")

// Parameter types.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
)

// Param describes one argument of a tool.
type Param struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required,omitempty"`
	Default     any    `json:"default,omitempty"`
}

// Args are the arguments supplied by the model, keyed by parameter name.
type Args map[string]any

// Handler performs a tool call.
type Handler func(ctx context.Context, args Args) (string, error)

// Fallback builds the user-safe text returned when a handler fails.
type Fallback func(args Args, err error) string

// Tool is a named capability exposed to the model.
type Tool struct {
	Name        string
	Description string
	Params      []Param
	Handler     Handler
	Fallback    Fallback
}

// Static returns a Fallback that always answers msg.
func Static(msg string) Fallback {
	return func(Args, error) string { return msg }
}

// Observer receives one record per tool call.
type Observer interface {
	ObserveTool(name string, duration time.Duration, failed bool)
}

// WithFallback wraps t so that errors and panics become t's fallback text.
// The returned function never fails.
func WithFallback(t Tool, logger *slog.Logger, obs Observer) func(ctx context.Context, args Args) string {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, args Args) (out string) {
		args = withDefaults(t.Params, args)
		start := time.Now()
		var err error

		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				logger.Error("tool panicked", "tool", t.Name, "panic", r, "stack", string(debug.Stack()))
			}
			if err != nil {
				out = t.Fallback(args, err)
			}
			if obs != nil {
				obs.ObserveTool(t.Name, time.Since(start), err != nil)
			}
		}()

		out, err = t.Handler(ctx, args)
		if err != nil {
			logger.Error("tool failed", "tool", t.Name, "error", err, "duration", time.Since(start))
			return out
		}
		logger.Info("tool completed", "tool", t.Name, "duration", time.Since(start))
		return out
	}
}

func withDefaults(params []Param, args Args) Args {
	out := make(Args, len(args)+len(params))
	for k, v := range args {
		out[k] = v
	}
	for _, p := range params {
		if v, ok := out[p.Name]; (!ok || v == nil) && p.Default != nil {
			out[p.Name] = p.Default
		}
	}
	return out
}

// String returns the named argument as a trimmed string.
func (a Args) String(name string) string {
	switch v := a[name].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Int returns the named argument as an int. JSON numbers and numeric
// strings are accepted; anything else yields def.
func (a Args) Int(name string, def int) int {
	switch v := a[name].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float32:
		return int(math.Round(float64(v)))
	case float64:
		return int(math.Round(v))
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
		if f, err := v.Float64(); err == nil {
			return int(math.Round(f))
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// Bool returns the named argument as a bool, or def.
func (a Args) Bool(name string, def bool) bool {
	switch v := a[name].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

// Registry dispatches calls by tool name.
type Registry struct {
	tools   []Tool
	wrapped map[string]func(context.Context, Args) string
}

// NewRegistry wraps every tool with WithFallback.
func NewRegistry(tools []Tool, logger *slog.Logger, obs Observer) *Registry {
	r := &Registry{tools: tools, wrapped: make(map[string]func(context.Context, Args) string, len(tools))}
	for _, t := range tools {
		r.wrapped[t.Name] = WithFallback(t, logger, obs)
	}
	return r
}

// Tools returns the registered tools in registration order.
func (r *Registry) Tools() []Tool {
	return append([]Tool(nil), r.tools...)
}

// Names returns the registered tool names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for _, t := range r.tools {
		names = append(names, t.Name)
	}
	return names
}

// Call runs the named tool. The only error is ErrUnknownTool.
func (r *Registry) Call(ctx context.Context, name string, args Args) (string, error) {
	fn, ok := r.wrapped[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return fn(ctx, args), nil
}
