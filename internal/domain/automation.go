package domain

import (
	"time"
)

// Automation run statuses that are not free-form progress text.
const (
	AutomationIdle      = "idle"
	AutomationStarting  = "starting"
	AutomationCompleted = "completed"
	AutomationError     = "error"
)

// AutomationState is the progress record of the latest browser run of a session.
type AutomationState struct {
	Running     bool       `json:"is_running"`
	Task        string     `json:"current_task,omitempty"`
	Screenshots []string   `json:"screenshots"`
	Status      string     `json:"status"`
	Step        int        `json:"step"`
	TotalSteps  int        `json:"total_steps"`
	CurrentURL  string     `json:"current_url,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy safe to hand to readers.
func (s AutomationState) Clone() AutomationState {
	out := s
	out.Screenshots = append([]string(nil), s.Screenshots...)
	return out
}
