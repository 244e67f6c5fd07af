package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/mindcure-agent/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PostgresStore implements Repository on a Postgres database such as Supabase.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn and applies pending migrations.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// GetProfile retrieves a profile by user ID.
func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	query := `
		SELECT id::text, full_name, email, mental_health_goals, current_challenges,
		       COALESCE(preferred_therapy_type, ''), COALESCE(encrypted_gemini_key, ''),
		       subscription_tier, api_usage_count, created_at, updated_at
		FROM profiles WHERE id = $1`

	var p domain.Profile
	var tier string
	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&p.UserID, &p.FullName, &p.Email, &p.Goals, &p.Challenges,
		&p.PreferredTherapy, &p.APIKey, &tier,
		&p.APIUsageCount, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile row: %w", err)
	}
	p.SubscriptionTier = domain.SubscriptionTier(tier)
	return &p, nil
}

// UpsertProfile creates or updates a profile. Usage counters are preserved on update.
func (s *PostgresStore) UpsertProfile(ctx context.Context, p *domain.Profile) error {
	query := `
	INSERT INTO profiles (id, full_name, email, mental_health_goals, current_challenges,
		preferred_therapy_type, encrypted_gemini_key, subscription_tier, api_usage_count)
	VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9)
	ON CONFLICT (id) DO UPDATE SET
		full_name = EXCLUDED.full_name,
		email = EXCLUDED.email,
		mental_health_goals = EXCLUDED.mental_health_goals,
		current_challenges = EXCLUDED.current_challenges,
		preferred_therapy_type = EXCLUDED.preferred_therapy_type,
		encrypted_gemini_key = EXCLUDED.encrypted_gemini_key,
		subscription_tier = EXCLUDED.subscription_tier,
		updated_at = now()`

	tier := p.SubscriptionTier
	if tier == "" {
		tier = domain.TierBYOKFree
	}
	_, err := s.pool.Exec(ctx, query,
		p.UserID, p.FullName, p.Email, nonNil(p.Goals), nonNil(p.Challenges),
		p.PreferredTherapy, p.APIKey, string(tier), p.APIUsageCount,
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// IncrementUsage bumps the API usage counter of a profile.
func (s *PostgresStore) IncrementUsage(ctx context.Context, userID string) error {
	return s.execAffecting(ctx, "increment usage",
		`UPDATE profiles SET api_usage_count = api_usage_count + 1, updated_at = now() WHERE id = $1`, userID)
}

// UpdateSubscriptionTier changes the billing tier of a profile.
func (s *PostgresStore) UpdateSubscriptionTier(ctx context.Context, userID string, tier domain.SubscriptionTier) error {
	return s.execAffecting(ctx, "update subscription tier",
		`UPDATE profiles SET subscription_tier = $1, updated_at = now() WHERE id = $2`, string(tier), userID)
}

// LatestMetrics returns the most recently recorded metrics row for a user.
func (s *PostgresStore) LatestMetrics(ctx context.Context, userID string) (*domain.WellnessMetrics, error) {
	query := `
		SELECT id, user_id::text, mental_health_score, productivity_score, streak_days,
		       sessions_completed, goals_achieved, recorded_at
		FROM wellness_metrics WHERE user_id = $1
		ORDER BY recorded_at DESC, id DESC LIMIT 1`

	var m domain.WellnessMetrics
	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&m.ID, &m.UserID, &m.MentalHealthScore, &m.ProductivityScore, &m.StreakDays,
		&m.SessionsCompleted, &m.GoalsAchieved, &m.RecordedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan metrics row: %w", err)
	}
	return &m, nil
}

// SaveMetrics inserts a metrics row when ID is zero, otherwise updates it in place.
func (s *PostgresStore) SaveMetrics(ctx context.Context, m *domain.WellnessMetrics) error {
	if m.RecordedAt.IsZero() {
		m.RecordedAt = time.Now()
	}
	if m.ID == 0 {
		query := `
		INSERT INTO wellness_metrics (user_id, mental_health_score, productivity_score, streak_days,
			sessions_completed, goals_achieved, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
		err := s.pool.QueryRow(ctx, query,
			m.UserID, m.MentalHealthScore, m.ProductivityScore, m.StreakDays,
			m.SessionsCompleted, m.GoalsAchieved, m.RecordedAt,
		).Scan(&m.ID)
		if err != nil {
			return fmt.Errorf("insert metrics: %w", err)
		}
		return nil
	}
	return s.execAffecting(ctx, "update metrics", `
	UPDATE wellness_metrics SET mental_health_score = $1, productivity_score = $2, streak_days = $3,
		sessions_completed = $4, goals_achieved = $5
	WHERE id = $6`,
		m.MentalHealthScore, m.ProductivityScore, m.StreakDays, m.SessionsCompleted, m.GoalsAchieved, m.ID)
}

// RecentConversations returns up to limit conversation summaries, newest first.
func (s *PostgresStore) RecentConversations(ctx context.Context, userID string, limit int) ([]domain.ConversationSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT title, mood_score, insights, created_at
		FROM chat_sessions WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ConversationSummary, error) {
		var c domain.ConversationSummary
		err := row.Scan(&c.Summary, &c.MoodScore, &c.Insights, &c.CreatedAt)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect conversations: %w", err)
	}
	return out, nil
}

// AddConversation records a conversation summary.
func (s *PostgresStore) AddConversation(ctx context.Context, userID string, c domain.ConversationSummary, durationSeconds int) error {
	mood := c.MoodScore
	if mood == 0 {
		mood = 5
	}
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
	INSERT INTO chat_sessions (user_id, title, duration_seconds, mood_score, insights, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`,
		userID, c.Summary, durationSeconds, mood, nonNil(c.Insights), createdAt)
	if err != nil {
		return fmt.Errorf("add conversation: %w", err)
	}
	return nil
}

// PendingTasks returns up to limit incomplete fun tasks.
func (s *PostgresStore) PendingTasks(ctx context.Context, userID string, limit int) ([]domain.PendingTask, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id::text, task_type, task_name, description, completed, created_at
		FROM fun_tasks WHERE user_id = $1 AND NOT completed
		ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending tasks: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.PendingTask, error) {
		var t domain.PendingTask
		err := row.Scan(&t.ID, &t.UserID, &t.TaskType, &t.TaskName, &t.Description, &t.Completed, &t.CreatedAt)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect pending tasks: %w", err)
	}
	return out, nil
}

// AddFunTask records a fun task assigned during a conversation.
func (s *PostgresStore) AddFunTask(ctx context.Context, t *domain.PendingTask) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	err := s.pool.QueryRow(ctx, `
	INSERT INTO fun_tasks (user_id, task_type, task_name, description, completed, created_at)
	VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		t.UserID, t.TaskType, t.TaskName, t.Description, t.Completed, t.CreatedAt,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("add fun task: %w", err)
	}
	return nil
}

// RecentAchievements returns up to limit achievements, newest first.
func (s *PostgresStore) RecentAchievements(ctx context.Context, userID string, limit int) ([]domain.Achievement, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT achievement_type, achievement_name, earned_at
		FROM user_achievements WHERE user_id = $1
		ORDER BY earned_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query achievements: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Achievement, error) {
		var a domain.Achievement
		err := row.Scan(&a.Type, &a.Name, &a.EarnedAt)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect achievements: %w", err)
	}
	return out, nil
}

// SearchTherapists returns verified therapists accepting clients, best rated first.
func (s *PostgresStore) SearchTherapists(ctx context.Context, specialty string, limit int) ([]domain.Therapist, error) {
	query, args := therapistSearchQuery(specialty, limit)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query therapists: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Therapist, error) {
		var t domain.Therapist
		err := row.Scan(&t.ID, &t.FullName, &t.Specializations, &t.Rating, &t.HourlyRate,
			&t.YearsExperience, &t.Verified, &t.AcceptingNewClients)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect therapists: %w", err)
	}
	return out, nil
}

// therapistSearchQuery matches specializations case-insensitively, like the
// SQLite backend.
func therapistSearchQuery(specialty string, limit int) (string, []any) {
	query := `
		SELECT id::text, full_name, specializations, rating, hourly_rate, years_experience,
		       verified, accepting_new_clients
		FROM therapists WHERE verified AND accepting_new_clients`
	args := []any{}
	if specialty = strings.ToLower(strings.TrimSpace(specialty)); specialty != "" {
		args = append(args, specialty)
		query += fmt.Sprintf(` AND EXISTS (SELECT 1 FROM unnest(specializations) AS s WHERE lower(s) = $%d)`, len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY rating DESC LIMIT $%d`, len(args))
	return query, args
}

// CreateSessionRequest records a request for a therapist follow-up.
func (s *PostgresStore) CreateSessionRequest(ctx context.Context, req *domain.SessionRequest) error {
	normalizeSessionRequest(req)
	var therapistID any
	if req.TherapistID != "" {
		therapistID = req.TherapistID
	}
	err := s.pool.QueryRow(ctx, `
	INSERT INTO therapist_session_requests (user_id, therapist_id, urgency, issue_summary, status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		req.UserID, therapistID, req.Urgency, req.IssueSummary, req.Status, req.CreatedAt,
	).Scan(&req.ID)
	if err != nil {
		return fmt.Errorf("create session request: %w", err)
	}
	return nil
}

// AddMoodEntry records a mood check-in.
func (s *PostgresStore) AddMoodEntry(ctx context.Context, e *domain.MoodEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	err := s.pool.QueryRow(ctx, `
	INSERT INTO mood_entries (user_id, mood_score, emotion, summary, created_at)
	VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		e.UserID, e.MoodScore, e.Emotion, e.Summary, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("add mood entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) execAffecting(ctx context.Context, op, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
