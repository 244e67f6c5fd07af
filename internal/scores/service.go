package scores

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/mindcure-agent/internal/domain"
	"github.com/ashureev/mindcure-agent/internal/identity"
)

// moodBoostThreshold is the lowest mood score that earns a mental health bump.
const moodBoostThreshold = 6

// Store is the subset of the repository the score service needs.
type Store interface {
	LatestMetrics(ctx context.Context, userID string) (*domain.WellnessMetrics, error)
	SaveMetrics(ctx context.Context, metrics *domain.WellnessMetrics) error
	AddConversation(ctx context.Context, userID string, summary domain.ConversationSummary, durationSeconds int) error
}

// Update is the outcome of a progress update.
type Update struct {
	Activity string            `json:"activity_type"`
	Delta    domain.ScoreDelta `json:"score_changes"`
	Scores   domain.Scores     `json:"new_scores"`
	Message  string            `json:"message"`
	At       time.Time         `json:"timestamp"`
}

// Service reads and writes authoritative scores.
type Service struct {
	store  Store
	cache  Cache
	logger *slog.Logger
}

// NewService creates a score service. store and cache may be nil.
func NewService(store Store, cache Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cache: cache, logger: logger}
}

// NewBoard returns the score view of one session.
func (s *Service) NewBoard(userID string) *Board {
	return &Board{svc: s, userID: userID, snap: NewSnapshot(), lastMood: 5}
}

func (s *Service) serves(userID string) bool {
	return s.store != nil && identity.IsUserID(userID)
}

func (s *Service) read(ctx context.Context, userID string) (domain.Scores, error) {
	if s.cache != nil {
		if sc, ok := s.cache.Get(ctx, userID); ok {
			return sc, nil
		}
	}
	m, err := s.store.LatestMetrics(ctx, userID)
	if err != nil {
		return domain.Scores{}, fmt.Errorf("load metrics: %w", err)
	}
	sc := baselineScores()
	if m != nil {
		sc = domain.ScoresFromMetrics(m)
	}
	if s.cache != nil {
		s.cache.Set(ctx, userID, sc)
	}
	return sc, nil
}

// write applies mutate to the latest metrics row, creating a baseline row
// when the user has none, and invalidates the cache.
func (s *Service) write(ctx context.Context, userID string, mutate func(*domain.WellnessMetrics)) (domain.Scores, error) {
	m, err := s.store.LatestMetrics(ctx, userID)
	if err != nil {
		return domain.Scores{}, fmt.Errorf("load metrics: %w", err)
	}
	if m == nil {
		b := baselineScores()
		m = &domain.WellnessMetrics{UserID: userID, MentalHealthScore: b.MentalHealth, ProductivityScore: b.Productivity}
	}
	mutate(m)
	m.MentalHealthScore = domain.ClampScore(m.MentalHealthScore)
	m.ProductivityScore = domain.ClampScore(m.ProductivityScore)

	if err := s.store.SaveMetrics(ctx, m); err != nil {
		return domain.Scores{}, fmt.Errorf("save metrics: %w", err)
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, userID)
	}
	return domain.ScoresFromMetrics(m), nil
}

func baselineScores() domain.Scores {
	return domain.Scores{MentalHealth: 50, Productivity: 50}
}

// Board is the score view owned by a single session.
type Board struct {
	svc    *Service
	userID string
	snap   *Snapshot

	mu       sync.Mutex
	lastMood int
}

// UserID returns the identifier the board was created for.
func (b *Board) UserID() string { return b.userID }

// Persistent reports whether the board writes through to the store.
func (b *Board) Persistent() bool { return b.svc.serves(b.userID) }

// Current returns the user's scores. Reads that fail fall back to the session snapshot.
func (b *Board) Current(ctx context.Context) domain.Scores {
	if !b.Persistent() {
		return b.snap.Scores()
	}
	sc, err := b.svc.read(ctx, b.userID)
	if err != nil {
		b.svc.logger.Warn("score store unavailable, serving session snapshot", "user_id", b.userID, "error", err)
		return b.snap.Scores()
	}
	b.snap.Sync("", sc)
	return sc
}

// Dashboard returns the dashboard view with authoritative scores when available.
func (b *Board) Dashboard(ctx context.Context) domain.Dashboard {
	b.Current(ctx)
	return b.snap.Dashboard()
}

// Productivity returns the productivity view with authoritative scores when available.
func (b *Board) Productivity(ctx context.Context) domain.Productivity {
	b.Current(ctx)
	return b.snap.Productivity()
}

// Update records a completed activity. change of zero selects the
// activity's predefined effect.
func (b *Board) Update(ctx context.Context, activity string, change int) (Update, error) {
	delta := DeltaFor(activity, change)
	sc, err := b.apply(ctx, activity, delta)
	if err != nil {
		return Update{}, err
	}
	return Update{
		Activity: activity,
		Delta:    delta,
		Scores:   sc,
		Message:  fmt.Sprintf("Great job! Your %s session updated your scores.", ActivityLabel(activity)),
		At:       time.Now(),
	}, nil
}

// RecordMood remembers the session mood and bumps mental health by 2 when
// the mood is at least 6. It returns the applied delta.
func (b *Board) RecordMood(ctx context.Context, mood int) (domain.ScoreDelta, error) {
	b.mu.Lock()
	b.lastMood = mood
	b.mu.Unlock()

	if mood < moodBoostThreshold {
		return domain.ScoreDelta{}, nil
	}
	delta := domain.ScoreDelta{MentalHealth: 2}
	if _, err := b.apply(ctx, "", delta); err != nil {
		return domain.ScoreDelta{}, err
	}
	return delta, nil
}

// ToggleTask flips one of today's tasks in the session view.
func (b *Board) ToggleTask(id int) (domain.DailyTask, bool) {
	return b.snap.ToggleTask(id)
}

// Finish records the end of the session: a conversation summary carrying
// the last recorded mood and one more completed session.
func (b *Board) Finish(ctx context.Context, title string, duration time.Duration) error {
	if !b.Persistent() {
		return nil
	}
	b.mu.Lock()
	mood := b.lastMood
	b.mu.Unlock()

	summary := domain.ConversationSummary{Summary: title, MoodScore: mood, CreatedAt: time.Now()}
	if err := b.svc.store.AddConversation(ctx, b.userID, summary, int(duration.Seconds())); err != nil {
		return fmt.Errorf("record conversation: %w", err)
	}
	_, err := b.svc.write(ctx, b.userID, func(m *domain.WellnessMetrics) {
		m.SessionsCompleted++
	})
	return err
}

func (b *Board) apply(ctx context.Context, activity string, delta domain.ScoreDelta) (domain.Scores, error) {
	if !b.Persistent() {
		return b.snap.Apply(activity, delta), nil
	}
	sc, err := b.svc.write(ctx, b.userID, func(m *domain.WellnessMetrics) {
		m.MentalHealthScore += delta.MentalHealth
		m.ProductivityScore += delta.Productivity
	})
	if err != nil {
		return domain.Scores{}, err
	}
	b.snap.Sync(activity, sc)
	return sc, nil
}
