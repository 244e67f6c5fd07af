package scores

import (
	"sync"

	"github.com/ashureev/mindcure-agent/internal/domain"
	"github.com/ashureev/mindcure-agent/internal/shared"
)

const maxRecentActivity = 4

// Snapshot is the in-memory dashboard and productivity view of one session.
type Snapshot struct {
	mu           sync.Mutex
	dashboard    domain.Dashboard
	productivity domain.Productivity
}

// NewSnapshot returns a snapshot seeded with the starter figures.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		dashboard: domain.Dashboard{
			MentalHealthScore: 75,
			ProductivityScore: 82,
			QuickStats: domain.QuickStats{
				WeeklyProgress:    15,
				SessionsCompleted: 12,
				StreakDays:        7,
				GoalsAchieved:     4,
			},
			RecentActivity: []domain.Activity{
				{Type: "therapy", Text: "AI therapy session completed", Time: "2 hours ago", Icon: "🤖"},
				{Type: "breathing", Text: "Breathing exercise - 5 minutes", Time: "4 hours ago", Icon: "🫁"},
				{Type: "task", Text: "Completed daily mental health task", Time: "6 hours ago", Icon: "✅"},
				{Type: "progress", Text: "Mental health score improved +3", Time: "1 day ago", Icon: "📈"},
			},
		},
		productivity: domain.Productivity{
			ProductivityScore: 82,
			MentalHealthScore: 75,
			CurrentStreak:     7,
			WeeklyProgress: domain.WeeklyProgress{
				MentalHealthImprovement: 15,
				ProductivityIncrease:    8,
				TasksCompleted:          24,
				FocusMinutes:            180,
			},
			TodaysTasks: []domain.DailyTask{
				{ID: 1, Task: "25-minute focus session", Completed: true, Type: "focus", Impact: "+3 mental health"},
				{ID: 2, Task: "Take a mindful break", Type: "wellness", Impact: "+2 productivity"},
				{ID: 3, Task: "Complete project milestone", Type: "work", Impact: "+5 productivity"},
				{ID: 4, Task: "Evening meditation (AI recommended)", Type: "meditation", Impact: "+4 mental health"},
			},
		},
	}
}

// Dashboard returns a copy of the dashboard view.
func (s *Snapshot) Dashboard() domain.Dashboard {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.dashboard
	d.RecentActivity = append([]domain.Activity(nil), s.dashboard.RecentActivity...)
	return d
}

// Productivity returns a copy of the productivity view.
func (s *Snapshot) Productivity() domain.Productivity {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.productivity
	p.TodaysTasks = append([]domain.DailyTask(nil), s.productivity.TodaysTasks...)
	return p
}

// Scores returns the snapshot's current scores.
func (s *Snapshot) Scores() domain.Scores {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scoresLocked()
}

func (s *Snapshot) scoresLocked() domain.Scores {
	return domain.Scores{
		MentalHealth:      s.dashboard.MentalHealthScore,
		Productivity:      s.dashboard.ProductivityScore,
		StreakDays:        s.dashboard.QuickStats.StreakDays,
		SessionsCompleted: s.dashboard.QuickStats.SessionsCompleted,
		GoalsAchieved:     s.dashboard.QuickStats.GoalsAchieved,
	}
}

// Apply adds delta to the snapshot's scores and records the activity.
func (s *Snapshot) Apply(activity string, delta domain.ScoreDelta) domain.Scores {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := delta.Apply(s.scoresLocked())
	s.setLocked(next)
	if activity != "" {
		s.recordLocked(activity)
	}
	return next
}

// Sync overwrites the snapshot's scores with authoritative values and
// records the activity when one is given.
func (s *Snapshot) Sync(activity string, sc domain.Scores) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(sc)
	if activity != "" {
		s.recordLocked(activity)
	}
}

func (s *Snapshot) setLocked(sc domain.Scores) {
	s.dashboard.MentalHealthScore = sc.MentalHealth
	s.dashboard.ProductivityScore = sc.Productivity
	s.dashboard.QuickStats.StreakDays = sc.StreakDays
	s.dashboard.QuickStats.SessionsCompleted = sc.SessionsCompleted
	s.dashboard.QuickStats.GoalsAchieved = sc.GoalsAchieved
	s.productivity.MentalHealthScore = sc.MentalHealth
	s.productivity.ProductivityScore = sc.Productivity
	s.productivity.CurrentStreak = sc.StreakDays
}

func (s *Snapshot) recordLocked(activity string) {
	icon := "✅"
	if normalizeActivity(activity) == ActivityTherapy {
		icon = "🤖"
	}
	entry := domain.Activity{
		Type: activity,
		Text: shared.TitleCase(ActivityLabel(activity)) + " completed",
		Time: "Just now",
		Icon: icon,
	}
	recent := append([]domain.Activity{entry}, s.dashboard.RecentActivity...)
	if len(recent) > maxRecentActivity {
		recent = recent[:maxRecentActivity]
	}
	s.dashboard.RecentActivity = recent
}

// ToggleTask flips a daily task. Completing a focus or work task adds 2 to
// productivity; completing a wellness or meditation task adds 2 to mental
// health. It returns false for unknown IDs.
func (s *Snapshot) ToggleTask(id int) (domain.DailyTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.productivity.TodaysTasks {
		task := &s.productivity.TodaysTasks[i]
		if task.ID != id {
			continue
		}
		task.Completed = !task.Completed
		if task.Completed {
			var delta domain.ScoreDelta
			switch task.Type {
			case "focus", "work":
				delta.Productivity = 2
			case "wellness", "meditation":
				delta.MentalHealth = 2
			}
			s.setLocked(delta.Apply(s.scoresLocked()))
		}
		return *task, true
	}
	return domain.DailyTask{}, false
}

