package browser

import (
	"sync"
	"time"

	"github.com/ashureev/mindcure-agent/internal/domain"
)

const defaultMaxScreenshots = 20

// Tracker holds the automation state of one session.
type Tracker struct {
	mu             sync.RWMutex
	state          domain.AutomationState
	maxScreenshots int
	lastActive     time.Time
}

// NewTracker creates an idle tracker keeping at most maxScreenshots images.
func NewTracker(maxScreenshots int) *Tracker {
	if maxScreenshots <= 0 {
		maxScreenshots = defaultMaxScreenshots
	}
	return &Tracker{
		state:          domain.AutomationState{Status: domain.AutomationIdle, Screenshots: []string{}},
		maxScreenshots: maxScreenshots,
	}
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() domain.AutomationState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.Clone()
}

// Running reports whether a run is in progress.
func (t *Tracker) Running() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.Running
}

// LastActive returns when the tracker last changed.
func (t *Tracker) LastActive() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastActive
}

func (t *Tracker) start(task string, totalSteps int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	t.state = domain.AutomationState{
		Running:     true,
		Task:        task,
		Screenshots: []string{},
		Status:      domain.AutomationStarting,
		TotalSteps:  totalSteps,
		StartedAt:   &now,
	}
	t.lastActive = now
}

func (t *Tracker) step(n int, status, currentURL string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Step = n
	t.state.Status = status
	if currentURL != "" {
		t.state.CurrentURL = currentURL
	}
	t.lastActive = time.Now()
}

// addScreenshot appends an image, dropping the oldest beyond the cap.
func (t *Tracker) addScreenshot(img string) {
	if img == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Screenshots = append(t.state.Screenshots, img)
	if over := len(t.state.Screenshots) - t.maxScreenshots; over > 0 {
		t.state.Screenshots = append([]string(nil), t.state.Screenshots[over:]...)
	}
}

func (t *Tracker) finish(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	t.state.Running = false
	t.state.CompletedAt = &now
	t.lastActive = now
	if err != nil {
		t.state.Status = domain.AutomationError
		t.state.Error = err.Error()
		return
	}
	t.state.Status = domain.AutomationCompleted
}
