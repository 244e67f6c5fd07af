// Package scores owns wellness score reads and updates.
//
// The relational store is authoritative for identified users. Reads go
// through a cache that is invalidated on every write. Anonymous users, and
// identified users whose store is unreachable, are served from a snapshot
// owned by their session.
package scores

import (
	"strings"

	"github.com/ashureev/mindcure-agent/internal/domain"
)

// Activity types with a predefined score effect.
const (
	ActivityTherapy      = "therapy"
	ActivityTask         = "task"
	ActivityExercise     = "exercise"
	ActivityMeditation   = "meditation"
	ActivityFocusSession = "focus_session"
)

var activityDeltas = map[string]domain.ScoreDelta{
	ActivityTherapy:      {MentalHealth: 3, Productivity: 1},
	ActivityTask:         {MentalHealth: 1, Productivity: 2},
	ActivityExercise:     {MentalHealth: 2, Productivity: 2},
	ActivityMeditation:   {MentalHealth: 4, Productivity: 1},
	ActivityFocusSession: {MentalHealth: 1, Productivity: 3},
}

var defaultDelta = domain.ScoreDelta{MentalHealth: 1, Productivity: 1}

// DeltaFor returns the score change for an activity. A non-zero change is
// applied to both scores; zero selects the activity's predefined effect.
func DeltaFor(activity string, change int) domain.ScoreDelta {
	if change != 0 {
		return domain.ScoreDelta{MentalHealth: change, Productivity: change}
	}
	if d, ok := activityDeltas[normalizeActivity(activity)]; ok {
		return d
	}
	return defaultDelta
}

func normalizeActivity(activity string) string {
	a := strings.ToLower(strings.TrimSpace(activity))
	return strings.ReplaceAll(a, " ", "_")
}

// ActivityLabel renders an activity type for people, e.g. "focus_session" -> "focus session".
func ActivityLabel(activity string) string {
	return strings.ReplaceAll(normalizeActivity(activity), "_", " ")
}
