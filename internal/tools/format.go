package tools

import (
	"fmt"
	"strings"

	"github.com/ashureev/mindcure-agent/internal/domain"
	"github.com/ashureev/mindcure-agent/internal/scores"
)

// CrisisNumbers is the safety block included in every crisis answer.
const CrisisNumbers = `🚨 EMERGENCY SERVICES:
- National Suicide Prevention Lifeline: 988
- Crisis Text Line: Text HOME to 741741
- Emergency Services: 911

If you're in immediate danger, please call 911 or go to your nearest emergency room.`

func formatDashboard(d domain.Dashboard) string {
	var b strings.Builder
	b.WriteString("Current Dashboard Status:\n")
	fmt.Fprintf(&b, "🧠 Mental Health Score: %d/100\n", d.MentalHealthScore)
	fmt.Fprintf(&b, "⚡ Productivity Score: %d/100\n", d.ProductivityScore)
	fmt.Fprintf(&b, "🔥 Current Streak: %d days\n", d.QuickStats.StreakDays)
	fmt.Fprintf(&b, "🎯 Goals Achieved: %d\n", d.QuickStats.GoalsAchieved)
	fmt.Fprintf(&b, "💬 AI Sessions: %d\n", d.QuickStats.SessionsCompleted)
	fmt.Fprintf(&b, "📈 Weekly Progress: +%d\n", d.QuickStats.WeeklyProgress)
	b.WriteString("\nRecent Activity:")
	for _, a := range d.RecentActivity {
		fmt.Fprintf(&b, "\n• %s %s (%s)", a.Icon, a.Text, a.Time)
	}
	return b.String()
}

func formatProductivity(p domain.Productivity) string {
	pending := p.PendingDailyTasks()
	var b strings.Builder
	b.WriteString("Current Productivity Status:\n")
	fmt.Fprintf(&b, "⚡ Productivity Score: %d/100\n", p.ProductivityScore)
	fmt.Fprintf(&b, "🧠 Mental Health Score: %d/100\n", p.MentalHealthScore)
	fmt.Fprintf(&b, "🔥 Current Streak: %d days\n", p.CurrentStreak)
	fmt.Fprintf(&b, "\nToday's Tasks Progress: %d/%d completed\n", len(p.TodaysTasks)-len(pending), len(p.TodaysTasks))
	b.WriteString("Pending Tasks:")
	for _, t := range pending {
		fmt.Fprintf(&b, "\n• %s (%s)", t.Task, t.Impact)
	}
	w := p.WeeklyProgress
	b.WriteString("\n\nWeekly Progress:\n")
	fmt.Fprintf(&b, "📈 Mental Health: +%d\n", w.MentalHealthImprovement)
	fmt.Fprintf(&b, "⚡ Productivity: +%d\n", w.ProductivityIncrease)
	fmt.Fprintf(&b, "✅ Tasks Completed: %d\n", w.TasksCompleted)
	fmt.Fprintf(&b, "🎯 Focus Time: %d minutes", w.FocusMinutes)
	return b.String()
}

func formatUpdate(u scores.Update) string {
	return fmt.Sprintf(`🎉 %s

Score Updates:
🧠 Mental Health: %d/100 (%+d)
⚡ Productivity: %d/100 (%+d)

Keep up the great work! Your consistent effort is paying off.`,
		u.Message,
		u.Scores.MentalHealth, u.Delta.MentalHealth,
		u.Scores.Productivity, u.Delta.Productivity)
}

func formatScores(sc domain.Scores) string {
	return fmt.Sprintf(`Your Current Scores & Progress:

🧠 Mental Health Score: %d/100
⚡ Productivity Score: %d/100
🔥 Current Streak: %d days
💬 AI Sessions Completed: %d
🎯 Goals Achieved: %d

You're doing great! Keep up the consistent effort to maintain and improve these scores.`,
		sc.MentalHealth, sc.Productivity, sc.StreakDays, sc.SessionsCompleted, sc.GoalsAchieved)
}

func formatTherapists(specialty string, list []domain.Therapist) string {
	if len(list) == 0 {
		if specialty == "" {
			return "I couldn't find any verified therapists accepting new clients right now."
		}
		return fmt.Sprintf("I couldn't find any verified therapists specializing in %s who are accepting new clients right now.", specialty)
	}
	var b strings.Builder
	if specialty == "" {
		fmt.Fprintf(&b, "I found %d verified therapists accepting new clients:", len(list))
	} else {
		fmt.Fprintf(&b, "I found %d verified therapists specializing in %s:", len(list), specialty)
	}
	for _, t := range list {
		fmt.Fprintf(&b, "\n• %s (%s), ⭐ %.1f, $%d/hr, %d years of experience",
			t.FullName, strings.Join(t.Specializations, ", "), t.Rating, t.HourlyRate, t.YearsExperience)
	}
	b.WriteString("\n\nWould you like me to send one of them a session request?")
	return b.String()
}

func directoryText(directoryURL, location, specialty string) string {
	return fmt.Sprintf(`I can help you find qualified therapists for %[2]s treatment in %[3]s!

🏥 **MindCure Therapist Directory**: I recommend starting with our curated therapist directory at %[1]s where you'll find:
- Licensed therapists specializing in %[2]s
- Verified credentials and reviews
- Available appointment times
- Insurance coverage information
- Video, voice, and in-person session options

🌐 **Additional Options**: I can also search Psychology Today's database for more therapists in your area.

Would you like me to open our therapist directory or search external databases?`, directoryURL, specialty, location)
}
