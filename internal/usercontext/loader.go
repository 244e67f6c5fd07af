// Package usercontext loads what the agent knows about a user and turns it into instructions.
package usercontext

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/mindcure-agent/internal/domain"
	"github.com/ashureev/mindcure-agent/internal/identity"
)

// Row limits for the personalization queries.
const (
	ConversationLimit = 5
	TaskLimit         = 5
	AchievementLimit  = 3
)

// Store is the subset of the repository the loader reads from.
type Store interface {
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	LatestMetrics(ctx context.Context, userID string) (*domain.WellnessMetrics, error)
	RecentConversations(ctx context.Context, userID string, limit int) ([]domain.ConversationSummary, error)
	PendingTasks(ctx context.Context, userID string, limit int) ([]domain.PendingTask, error)
	RecentAchievements(ctx context.Context, userID string, limit int) ([]domain.Achievement, error)
}

// Loader assembles a UserContext from the store.
type Loader struct {
	store  Store
	logger *slog.Logger
}

// NewLoader creates a loader. A nil store makes every user anonymous.
func NewLoader(store Store, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{store: store, logger: logger}
}

// Load returns the user's context.
//
// Anonymous or non-UUID identifiers, and a loader without a store, yield the
// minimal context with a nil error. A store failure returns the minimal
// context together with the error so callers can fall back to unpersonalized
// instructions.
func (l *Loader) Load(ctx context.Context, userID string) (*domain.UserContext, error) {
	if l.store == nil {
		l.logger.Warn("store not available, using minimal context")
		return domain.MinimalContext(userID), nil
	}
	if !identity.IsUserID(userID) {
		l.logger.Info("user id is not a uuid, using minimal context", "user_id", userID)
		return domain.MinimalContext(userID), nil
	}

	uc := &domain.UserContext{
		UserID: userID,
		Name:   "Friend",
		Scores: domain.Scores{MentalHealth: 50, Productivity: 50},
	}

	profile, err := l.store.GetProfile(ctx, userID)
	if err != nil {
		return domain.MinimalContext(userID), fmt.Errorf("load profile: %w", err)
	}
	if profile != nil {
		if profile.FullName != "" {
			uc.Name = profile.FullName
		}
		uc.Goals = profile.Goals
		uc.Challenges = profile.Challenges
		uc.PreferredTherapy = profile.PreferredTherapy
	}

	metrics, err := l.store.LatestMetrics(ctx, userID)
	if err != nil {
		return domain.MinimalContext(userID), fmt.Errorf("load metrics: %w", err)
	}
	if metrics != nil {
		uc.Scores = domain.ScoresFromMetrics(metrics)
	}

	if uc.RecentConversations, err = l.store.RecentConversations(ctx, userID, ConversationLimit); err != nil {
		return domain.MinimalContext(userID), fmt.Errorf("load conversations: %w", err)
	}
	if uc.PendingTasks, err = l.store.PendingTasks(ctx, userID, TaskLimit); err != nil {
		return domain.MinimalContext(userID), fmt.Errorf("load pending tasks: %w", err)
	}
	if uc.Achievements, err = l.store.RecentAchievements(ctx, userID, AchievementLimit); err != nil {
		return domain.MinimalContext(userID), fmt.Errorf("load achievements: %w", err)
	}

	l.logger.Info("loaded user context", "user_id", userID,
		"conversations", len(uc.RecentConversations), "pending_tasks", len(uc.PendingTasks))
	return uc, nil
}
