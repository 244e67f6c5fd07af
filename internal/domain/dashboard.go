package domain

// Activity is one line of the dashboard's recent activity feed.
type Activity struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Time string `json:"time"`
	Icon string `json:"icon"`
}

// QuickStats are the dashboard counters.
type QuickStats struct {
	WeeklyProgress    int `json:"weeklyProgress"`
	SessionsCompleted int `json:"sessionsCompleted"`
	StreakDays        int `json:"streakDays"`
	GoalsAchieved     int `json:"goalsAchieved"`
}

// Dashboard is the dashboard view.
type Dashboard struct {
	MentalHealthScore int        `json:"mentalHealthScore"`
	ProductivityScore int        `json:"productivityScore"`
	QuickStats        QuickStats `json:"quickStats"`
	RecentActivity    []Activity `json:"recentActivity"`
}

// WeeklyProgress is the productivity center's weekly block.
type WeeklyProgress struct {
	MentalHealthImprovement int `json:"mentalHealthImprovement"`
	ProductivityIncrease    int `json:"productivityIncrease"`
	TasksCompleted          int `json:"tasksCompleted"`
	FocusMinutes            int `json:"focusMinutes"`
}

// DailyTask is one of today's productivity tasks.
type DailyTask struct {
	ID        int    `json:"id"`
	Task      string `json:"task"`
	Completed bool   `json:"completed"`
	Type      string `json:"type"`
	Impact    string `json:"impact"`
}

// Productivity is the productivity center view.
type Productivity struct {
	ProductivityScore int            `json:"productivityScore"`
	MentalHealthScore int            `json:"mentalHealthScore"`
	CurrentStreak     int            `json:"currentStreak"`
	WeeklyProgress    WeeklyProgress `json:"weeklyProgress"`
	TodaysTasks       []DailyTask    `json:"todaysTasks"`
}

// PendingDailyTasks returns the tasks not yet completed.
func (p Productivity) PendingDailyTasks() []DailyTask {
	var out []DailyTask
	for _, t := range p.TodaysTasks {
		if !t.Completed {
			out = append(out, t)
		}
	}
	return out
}
