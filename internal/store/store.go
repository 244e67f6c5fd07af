// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashureev/mindcure-agent/internal/domain"
)

// ErrNotFound is returned by updates that target a missing row.
var ErrNotFound = errors.New("not found")

// Repository defines the interface for persisting profiles and wellness data.
// Lookups of a single row return (nil, nil) when the row does not exist.
type Repository interface {
	// GetProfile retrieves a profile by user ID.
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)

	// UpsertProfile creates or updates a profile.
	UpsertProfile(ctx context.Context, profile *domain.Profile) error

	// IncrementUsage bumps the API usage counter of a profile.
	IncrementUsage(ctx context.Context, userID string) error

	// UpdateSubscriptionTier changes the billing tier of a profile.
	UpdateSubscriptionTier(ctx context.Context, userID string, tier domain.SubscriptionTier) error

	// LatestMetrics returns the most recently recorded metrics row for a user.
	LatestMetrics(ctx context.Context, userID string) (*domain.WellnessMetrics, error)

	// SaveMetrics inserts a metrics row when ID is zero, otherwise updates it in place.
	SaveMetrics(ctx context.Context, metrics *domain.WellnessMetrics) error

	// RecentConversations returns up to limit conversation summaries, newest first.
	RecentConversations(ctx context.Context, userID string, limit int) ([]domain.ConversationSummary, error)

	// AddConversation records a conversation summary.
	AddConversation(ctx context.Context, userID string, summary domain.ConversationSummary, durationSeconds int) error

	// PendingTasks returns up to limit incomplete fun tasks.
	PendingTasks(ctx context.Context, userID string, limit int) ([]domain.PendingTask, error)

	// AddFunTask records a fun task assigned during a conversation.
	AddFunTask(ctx context.Context, task *domain.PendingTask) error

	// RecentAchievements returns up to limit achievements, newest first.
	RecentAchievements(ctx context.Context, userID string, limit int) ([]domain.Achievement, error)

	// SearchTherapists returns verified therapists accepting clients, best rated first.
	// An empty specialty matches every therapist.
	SearchTherapists(ctx context.Context, specialty string, limit int) ([]domain.Therapist, error)

	// CreateSessionRequest records a request for a therapist follow-up.
	CreateSessionRequest(ctx context.Context, req *domain.SessionRequest) error

	// AddMoodEntry records a mood check-in.
	AddMoodEntry(ctx context.Context, entry *domain.MoodEntry) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// Open returns the repository for backend ("sqlite" or "postgres").
func Open(ctx context.Context, backend, dbPath, dsn string) (Repository, error) {
	switch backend {
	case "postgres":
		pg, err := NewPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case "sqlite", "":
		lite, err := NewSQLite(dbPath)
		if err != nil {
			return nil, err
		}
		return lite, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
