package domain

import (
	"time"
)

// Score bounds for mental health and productivity.
const (
	MinScore = 0
	MaxScore = 100
)

// ClampScore bounds a score to [MinScore, MaxScore].
func ClampScore(v int) int {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}

// WellnessMetrics is the latest metrics row for a user.
type WellnessMetrics struct {
	ID                int64     `json:"id"`
	UserID            string    `json:"user_id"`
	MentalHealthScore int       `json:"mental_health_score"`
	ProductivityScore int       `json:"productivity_score"`
	StreakDays        int       `json:"streak_days"`
	SessionsCompleted int       `json:"sessions_completed"`
	GoalsAchieved     int       `json:"goals_achieved"`
	RecordedAt        time.Time `json:"recorded_at"`
}

// Scores is the read model reported to the user.
type Scores struct {
	MentalHealth      int `json:"mental_health_score"`
	Productivity      int `json:"productivity_score"`
	StreakDays        int `json:"streak_days"`
	SessionsCompleted int `json:"sessions_completed"`
	GoalsAchieved     int `json:"goals_achieved"`
}

// ScoresFromMetrics projects a metrics row into Scores.
func ScoresFromMetrics(m *WellnessMetrics) Scores {
	return Scores{
		MentalHealth:      m.MentalHealthScore,
		Productivity:      m.ProductivityScore,
		StreakDays:        m.StreakDays,
		SessionsCompleted: m.SessionsCompleted,
		GoalsAchieved:     m.GoalsAchieved,
	}
}

// ScoreDelta is an additive change to both scores.
type ScoreDelta struct {
	MentalHealth int `json:"mental_health"`
	Productivity int `json:"productivity"`
}

// Apply adds the delta to s, clamping both scores.
func (d ScoreDelta) Apply(s Scores) Scores {
	s.MentalHealth = ClampScore(s.MentalHealth + d.MentalHealth)
	s.Productivity = ClampScore(s.Productivity + d.Productivity)
	return s
}

// ConversationSummary is a past session as seen by the personalization step.
type ConversationSummary struct {
	Summary   string    `json:"conversation_summary"`
	MoodScore int       `json:"mood_score"`
	Insights  []string  `json:"insights"`
	CreatedAt time.Time `json:"created_at"`
}

// PendingTask is an incomplete fun task assigned to the user.
type PendingTask struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	TaskType    string    `json:"task_type"`
	TaskName    string    `json:"task_name"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
}

// Achievement is a badge the user earned.
type Achievement struct {
	Type     string    `json:"achievement_type"`
	Name     string    `json:"achievement_name"`
	EarnedAt time.Time `json:"earned_at"`
}

// MoodEntry is a mood check-in recorded during a conversation.
type MoodEntry struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	MoodScore int       `json:"mood_score"`
	Emotion   string    `json:"emotion"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
}
