package live

import (
	"log/slog"
	"sync"
	"time"
)

// UsageSummary is the aggregate of one session.
type UsageSummary struct {
	InputTokens   int
	OutputTokens  int
	ToolCalls     int
	AudioInBytes  int
	AudioOutBytes int
	Duration      time.Duration
}

// UsageCollector accumulates usage for one session.
type UsageCollector struct {
	mu      sync.Mutex
	started time.Time
	s       UsageSummary
}

// NewUsageCollector starts collecting at now.
func NewUsageCollector(now time.Time) *UsageCollector {
	return &UsageCollector{started: now}
}

// Tokens adds a usage report. The model reports running totals, so the
// larger value wins.
func (u *UsageCollector) Tokens(usage Usage) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.s.InputTokens = max(u.s.InputTokens, usage.InputTokens)
	u.s.OutputTokens = max(u.s.OutputTokens, usage.OutputTokens)
}

// ToolCall counts one dispatched tool call.
func (u *UsageCollector) ToolCall() {
	u.mu.Lock()
	u.s.ToolCalls++
	u.mu.Unlock()
}

// Audio counts relayed audio bytes.
func (u *UsageCollector) Audio(in, out int) {
	u.mu.Lock()
	u.s.AudioInBytes += in
	u.s.AudioOutBytes += out
	u.mu.Unlock()
}

// Summary returns the totals as of now.
func (u *UsageCollector) Summary(now time.Time) UsageSummary {
	u.mu.Lock()
	defer u.mu.Unlock()
	s := u.s
	s.Duration = now.Sub(u.started)
	return s
}

// LogValue implements slog.LogValuer.
func (s UsageSummary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("input_tokens", s.InputTokens),
		slog.Int("output_tokens", s.OutputTokens),
		slog.Int("tool_calls", s.ToolCalls),
		slog.Int("audio_in_bytes", s.AudioInBytes),
		slog.Int("audio_out_bytes", s.AudioOutBytes),
		slog.Duration("duration", s.Duration),
	)
}
