// Package session prepares a live conversation: preferences, identity,
// personalized instructions and the model credential.
package session

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/ashureev/mindcure-agent/internal/domain"
)

// Poll defaults for connection metadata.
const (
	DefaultPollAttempts = 5
	DefaultPollInterval = 500 * time.Millisecond
)

var legacyGenZMarkers = []string{`genz_mode=true`, `"genz_mode": true`}

type metadataPayload struct {
	Voice     string `json:"voice"`
	GenZMode  *bool  `json:"genz_mode"`
	GenZCamel *bool  `json:"genzMode"`
	GenZ      *bool  `json:"genz"`
}

// ParseMetadata decodes connection metadata. JSON is tried first; when it
// does not decode, a legacy substring scan recovers the Gen Z flag. Anything
// else yields the defaults. It never fails.
func ParseMetadata(raw string) domain.Preferences {
	prefs := domain.DefaultPreferences()
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return prefs
	}

	var p metadataPayload
	if err := json.Unmarshal([]byte(raw), &p); err == nil {
		prefs.Voice = domain.ResolveVoice(p.Voice)
		for _, flag := range []*bool{p.GenZMode, p.GenZCamel, p.GenZ} {
			if flag != nil {
				prefs.GenZMode = *flag
				break
			}
		}
		return prefs
	}

	lower := strings.ToLower(raw)
	for _, marker := range legacyGenZMarkers {
		if strings.Contains(lower, marker) {
			prefs.GenZMode = true
			break
		}
	}
	return prefs
}

// MetadataSource returns the current connection metadata, possibly empty.
type MetadataSource func(ctx context.Context) string

// PollPreferences reads metadata from source until it is non-empty, up to
// attempts times, interval apart. It falls back to the defaults.
func PollPreferences(ctx context.Context, source MetadataSource, attempts int, interval time.Duration) domain.Preferences {
	if attempts <= 0 {
		attempts = DefaultPollAttempts
	}
	for i := 0; i < attempts; i++ {
		if raw := strings.TrimSpace(source(ctx)); raw != "" {
			return ParseMetadata(raw)
		}
		if i == attempts-1 {
			break
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.DefaultPreferences()
		case <-timer.C:
		}
	}
	return domain.DefaultPreferences()
}
