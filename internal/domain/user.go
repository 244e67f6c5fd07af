// Package domain contains core domain types for the MindCure agent.
package domain

import (
	"time"
)

// SubscriptionTier is the billing tier stored on a profile.
type SubscriptionTier string

const (
	// TierBYOKFree lets the user bring their own Gemini key on the free plan.
	TierBYOKFree SubscriptionTier = "byok_free"
	// TierBYOKPro is the paid bring-your-own-key plan.
	TierBYOKPro SubscriptionTier = "byok_pro"
	// TierPlatform runs on the platform credential.
	TierPlatform SubscriptionTier = "platform"
	// TierCanceled marks a downgraded subscription.
	TierCanceled SubscriptionTier = "canceled"
)

// IsBYOK reports whether the tier allows a user-supplied credential.
func (t SubscriptionTier) IsBYOK() bool {
	return t == TierBYOKFree || t == TierBYOKPro || t == ""
}

// Profile represents a user profile owned by the relational store.
type Profile struct {
	UserID           string           `json:"user_id"`
	FullName         string           `json:"full_name"`
	Email            string           `json:"email,omitempty"`
	Goals            []string         `json:"mental_health_goals"`
	Challenges       []string         `json:"current_challenges"`
	PreferredTherapy string           `json:"preferred_therapy_type,omitempty"`
	APIKey           string           `json:"-"`
	SubscriptionTier SubscriptionTier `json:"subscription_tier"`
	APIUsageCount    int              `json:"api_usage_count"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// HasStoredKey returns true if the user saved their own credential.
func (p *Profile) HasStoredKey() bool {
	return p.APIKey != ""
}
