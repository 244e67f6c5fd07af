package usercontext

import (
	"fmt"
	"strings"

	"github.com/ashureev/mindcure-agent/internal/domain"
)

const (
	maxListItems    = 3
	maxSummaryRunes = 100
)

// BuildInstructions appends a personalization block for uc to base.
func BuildInstructions(base string, uc *domain.UserContext) string {
	if uc == nil {
		return base
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nPERSONALIZED CONTEXT FOR THIS SESSION:\n")
	b.WriteString("=====================================\n")
	fmt.Fprintf(&b, "User Name: %s\n", uc.Name)
	fmt.Fprintf(&b, "Mental Health Score: %d/100\n", uc.Scores.MentalHealth)
	fmt.Fprintf(&b, "Productivity Score: %d/100\n", uc.Scores.Productivity)
	fmt.Fprintf(&b, "Current Streak: %d days\n", uc.Scores.StreakDays)
	fmt.Fprintf(&b, "Total Sessions: %d\n", uc.Scores.SessionsCompleted)

	if len(uc.Goals) > 0 {
		fmt.Fprintf(&b, "\nTheir Mental Health Goals: %s", strings.Join(head(uc.Goals, maxListItems), ", "))
	}
	if len(uc.Challenges) > 0 {
		fmt.Fprintf(&b, "\nCurrent Challenges: %s", strings.Join(head(uc.Challenges, maxListItems), ", "))
	}
	if uc.PreferredTherapy != "" {
		fmt.Fprintf(&b, "\nPreferred Therapy Approach: %s", uc.PreferredTherapy)
	}

	var insights []string
	for _, c := range uc.RecentConversations {
		if len(insights) == maxListItems {
			break
		}
		if c.Summary != "" {
			insights = append(insights, truncate(c.Summary, maxSummaryRunes))
		}
	}
	if len(insights) > 0 {
		b.WriteString("\n\nRecent Session Insights:")
		for _, s := range insights {
			fmt.Fprintf(&b, "\n  - %s", s)
		}
	}

	if len(uc.PendingTasks) > 0 {
		b.WriteString("\n\nFun Tasks Still Open:")
		for _, t := range head(uc.PendingTasks, maxListItems) {
			fmt.Fprintf(&b, "\n  - %s (%s)", t.TaskName, t.TaskType)
		}
	}
	if len(uc.Achievements) > 0 {
		names := make([]string, 0, len(uc.Achievements))
		for _, a := range uc.Achievements {
			names = append(names, a.Name)
		}
		fmt.Fprintf(&b, "\n\nRecent Achievements: %s", strings.Join(names, ", "))
	}

	b.WriteString("\n\nIMPORTANT: Use this context naturally in conversation. Address them by name occasionally.\n")
	b.WriteString("Acknowledge their progress and current challenges. Build on previous conversations when relevant.\n")
	b.WriteString("Remember: You have tools to update their scores, assign tasks, and connect them with therapists.\n")
	return b.String()
}

func head[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
