package domain

import (
	"time"
)

// Urgency values accepted by connect_to_therapist.
const (
	UrgencyNormal = "normal"
	UrgencyHigh   = "high"
	UrgencyUrgent = "urgent"
	UrgencyCrisis = "crisis"
)

// IsCrisisUrgency reports whether the urgency calls for crisis resources.
func IsCrisisUrgency(u string) bool {
	return u == UrgencyUrgent || u == UrgencyCrisis
}

// Therapist is a verified directory entry.
type Therapist struct {
	ID                  string   `json:"id"`
	FullName            string   `json:"full_name"`
	Specializations     []string `json:"specializations"`
	Rating              float64  `json:"rating"`
	HourlyRate          int      `json:"hourly_rate"`
	YearsExperience     int      `json:"years_experience"`
	Verified            bool     `json:"verified"`
	AcceptingNewClients bool     `json:"accepting_new_clients"`
}

// SessionRequest asks a therapist to follow up with the user.
type SessionRequest struct {
	ID           int64     `json:"id"`
	UserID       string    `json:"user_id"`
	TherapistID  string    `json:"therapist_id,omitempty"`
	Urgency      string    `json:"urgency"`
	IssueSummary string    `json:"issue_summary"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}
