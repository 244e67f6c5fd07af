package domain

import (
	"strings"
)

// Voices supported by the realtime model.
const (
	VoicePuck   = "Puck"
	VoiceCharon = "Charon"
	VoiceKore   = "Kore"
	VoiceFenrir = "Fenrir"
	VoiceAoede  = "Aoede"

	DefaultVoice = VoicePuck
)

var voices = []string{VoicePuck, VoiceCharon, VoiceKore, VoiceFenrir, VoiceAoede}

// Voices returns the supported voice names.
func Voices() []string {
	out := make([]string, len(voices))
	copy(out, voices)
	return out
}

// ResolveVoice returns the canonical voice name, or DefaultVoice when v is unknown.
func ResolveVoice(v string) string {
	v = strings.TrimSpace(v)
	for _, known := range voices {
		if strings.EqualFold(known, v) {
			return known
		}
	}
	return DefaultVoice
}

// Preferences are per-session choices carried in connection metadata.
type Preferences struct {
	Voice    string `json:"voice"`
	GenZMode bool   `json:"genz_mode"`
}

// DefaultPreferences returns the preferences used when metadata is missing or malformed.
func DefaultPreferences() Preferences {
	return Preferences{Voice: DefaultVoice}
}

// UserContext is everything the personalization step knows about a user.
type UserContext struct {
	UserID              string                `json:"user_id"`
	Anonymous           bool                  `json:"anonymous"`
	Name                string                `json:"name"`
	Goals               []string              `json:"goals"`
	Challenges          []string              `json:"challenges"`
	PreferredTherapy    string                `json:"preferred_therapy,omitempty"`
	Scores              Scores                `json:"current_scores"`
	RecentConversations []ConversationSummary `json:"recent_conversations,omitempty"`
	PendingTasks        []PendingTask         `json:"pending_tasks,omitempty"`
	Achievements        []Achievement         `json:"achievements,omitempty"`
}

// MinimalContext is used when the user is anonymous or the store is unavailable.
func MinimalContext(userID string) *UserContext {
	return &UserContext{
		UserID:    userID,
		Anonymous: true,
		Name:      "Friend",
		Scores: Scores{
			MentalHealth: 50,
			Productivity: 50,
		},
	}
}
