package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/mindcure-agent/internal/domain"
	"github.com/ashureev/mindcure-agent/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	writeRetries   = 3
	writeBaseDelay = 100 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		mental_health_goals TEXT NOT NULL DEFAULT '[]',
		current_challenges TEXT NOT NULL DEFAULT '[]',
		preferred_therapy_type TEXT,
		gemini_api_key TEXT,
		subscription_tier TEXT NOT NULL DEFAULT 'byok_free',
		api_usage_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS wellness_metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		mental_health_score INTEGER NOT NULL DEFAULT 50,
		productivity_score INTEGER NOT NULL DEFAULT 50,
		streak_days INTEGER NOT NULL DEFAULT 0,
		sessions_completed INTEGER NOT NULL DEFAULT 0,
		goals_achieved INTEGER NOT NULL DEFAULT 0,
		recorded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_metrics_user ON wellness_metrics(user_id, recorded_at DESC);

	CREATE TABLE IF NOT EXISTS chat_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		duration_seconds INTEGER NOT NULL DEFAULT 0,
		mood_score INTEGER NOT NULL DEFAULT 5,
		insights TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_sessions_user ON chat_sessions(user_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS fun_tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		task_type TEXT NOT NULL,
		task_name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		completed INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_fun_tasks_user ON fun_tasks(user_id, completed);

	CREATE TABLE IF NOT EXISTS user_achievements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		achievement_type TEXT NOT NULL,
		achievement_name TEXT NOT NULL,
		earned_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS therapists (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		specializations TEXT NOT NULL DEFAULT '[]',
		rating REAL NOT NULL DEFAULT 0,
		hourly_rate INTEGER NOT NULL DEFAULT 0,
		years_experience INTEGER NOT NULL DEFAULT 0,
		verified INTEGER NOT NULL DEFAULT 0,
		accepting_new_clients INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS therapist_session_requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		therapist_id TEXT,
		urgency TEXT NOT NULL DEFAULT 'normal',
		issue_summary TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS mood_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		mood_score INTEGER NOT NULL,
		emotion TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetProfile retrieves a profile by user ID.
func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	query := `
		SELECT id, full_name, email, mental_health_goals, current_challenges,
		       preferred_therapy_type, gemini_api_key, subscription_tier,
		       api_usage_count, created_at, updated_at
		FROM profiles WHERE id = ?`

	var p domain.Profile
	var goals, challenges string
	var therapy, apiKey sql.NullString
	var tier string
	var createdAt, updatedAt int64

	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID, &p.FullName, &p.Email, &goals, &challenges,
		&therapy, &apiKey, &tier,
		&p.APIUsageCount, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile row: %w", err)
	}

	p.Goals = decodeList(goals)
	p.Challenges = decodeList(challenges)
	p.PreferredTherapy = therapy.String
	p.APIKey = apiKey.String
	p.SubscriptionTier = domain.SubscriptionTier(tier)
	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return &p, nil
}

// UpsertProfile creates or updates a profile. Usage counters are preserved on update.
func (s *SQLiteStore) UpsertProfile(ctx context.Context, p *domain.Profile) error {
	query := `
	INSERT INTO profiles (id, full_name, email, mental_health_goals, current_challenges,
		preferred_therapy_type, gemini_api_key, subscription_tier, api_usage_count, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		full_name = excluded.full_name,
		email = excluded.email,
		mental_health_goals = excluded.mental_health_goals,
		current_challenges = excluded.current_challenges,
		preferred_therapy_type = excluded.preferred_therapy_type,
		gemini_api_key = excluded.gemini_api_key,
		subscription_tier = excluded.subscription_tier,
		updated_at = excluded.updated_at`

	now := time.Now()
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	tier := p.SubscriptionTier
	if tier == "" {
		tier = domain.TierBYOKFree
	}

	return shared.RetryOnConflict(ctx, "upsert profile", writeRetries, writeBaseDelay, func() error {
		_, err := s.db.ExecContext(ctx, query,
			p.UserID, p.FullName, p.Email, encodeList(p.Goals), encodeList(p.Challenges),
			nullString(p.PreferredTherapy), nullString(p.APIKey), string(tier), p.APIUsageCount,
			createdAt.Unix(), now.Unix(),
		)
		return err
	})
}

// IncrementUsage bumps the API usage counter of a profile.
func (s *SQLiteStore) IncrementUsage(ctx context.Context, userID string) error {
	query := `UPDATE profiles SET api_usage_count = api_usage_count + 1, updated_at = ? WHERE id = ?`
	return s.execAffecting(ctx, "increment usage", query, time.Now().Unix(), userID)
}

// UpdateSubscriptionTier changes the billing tier of a profile.
func (s *SQLiteStore) UpdateSubscriptionTier(ctx context.Context, userID string, tier domain.SubscriptionTier) error {
	query := `UPDATE profiles SET subscription_tier = ?, updated_at = ? WHERE id = ?`
	return s.execAffecting(ctx, "update subscription tier", query, string(tier), time.Now().Unix(), userID)
}

// LatestMetrics returns the most recently recorded metrics row for a user.
func (s *SQLiteStore) LatestMetrics(ctx context.Context, userID string) (*domain.WellnessMetrics, error) {
	query := `
		SELECT id, user_id, mental_health_score, productivity_score, streak_days,
		       sessions_completed, goals_achieved, recorded_at
		FROM wellness_metrics WHERE user_id = ?
		ORDER BY recorded_at DESC, id DESC LIMIT 1`

	var m domain.WellnessMetrics
	var recordedAt int64
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&m.ID, &m.UserID, &m.MentalHealthScore, &m.ProductivityScore, &m.StreakDays,
		&m.SessionsCompleted, &m.GoalsAchieved, &recordedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan metrics row: %w", err)
	}
	m.RecordedAt = time.Unix(recordedAt, 0)
	return &m, nil
}

// SaveMetrics inserts a metrics row when ID is zero, otherwise updates it in place.
func (s *SQLiteStore) SaveMetrics(ctx context.Context, m *domain.WellnessMetrics) error {
	if m.RecordedAt.IsZero() {
		m.RecordedAt = time.Now()
	}
	if m.ID == 0 {
		query := `
		INSERT INTO wellness_metrics (user_id, mental_health_score, productivity_score, streak_days,
			sessions_completed, goals_achieved, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
		return shared.RetryOnConflict(ctx, "insert metrics", writeRetries, writeBaseDelay, func() error {
			res, err := s.db.ExecContext(ctx, query,
				m.UserID, m.MentalHealthScore, m.ProductivityScore, m.StreakDays,
				m.SessionsCompleted, m.GoalsAchieved, m.RecordedAt.Unix(),
			)
			if err != nil {
				return err
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("metrics insert id: %w", err)
			}
			m.ID = id
			return nil
		})
	}

	query := `
	UPDATE wellness_metrics SET mental_health_score = ?, productivity_score = ?, streak_days = ?,
		sessions_completed = ?, goals_achieved = ?
	WHERE id = ?`
	return s.execAffecting(ctx, "update metrics", query,
		m.MentalHealthScore, m.ProductivityScore, m.StreakDays,
		m.SessionsCompleted, m.GoalsAchieved, m.ID,
	)
}

// RecentConversations returns up to limit conversation summaries, newest first.
func (s *SQLiteStore) RecentConversations(ctx context.Context, userID string, limit int) ([]domain.ConversationSummary, error) {
	query := `
		SELECT title, mood_score, insights, created_at
		FROM chat_sessions WHERE user_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer closeRows(rows, "conversations")

	var out []domain.ConversationSummary
	for rows.Next() {
		var c domain.ConversationSummary
		var insights string
		var createdAt int64
		if err := rows.Scan(&c.Summary, &c.MoodScore, &insights, &createdAt); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		c.Insights = decodeList(insights)
		c.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return out, nil
}

// AddConversation records a conversation summary.
func (s *SQLiteStore) AddConversation(ctx context.Context, userID string, c domain.ConversationSummary, durationSeconds int) error {
	query := `
	INSERT INTO chat_sessions (user_id, title, duration_seconds, mood_score, insights, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	mood := c.MoodScore
	if mood == 0 {
		mood = 5
	}
	return shared.RetryOnConflict(ctx, "add conversation", writeRetries, writeBaseDelay, func() error {
		_, err := s.db.ExecContext(ctx, query,
			userID, c.Summary, durationSeconds, mood, encodeList(c.Insights), createdAt.Unix())
		return err
	})
}

// PendingTasks returns up to limit incomplete fun tasks.
func (s *SQLiteStore) PendingTasks(ctx context.Context, userID string, limit int) ([]domain.PendingTask, error) {
	query := `
		SELECT id, user_id, task_type, task_name, description, completed, created_at
		FROM fun_tasks WHERE user_id = ? AND completed = 0
		ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending tasks: %w", err)
	}
	defer closeRows(rows, "pending tasks")

	var out []domain.PendingTask
	for rows.Next() {
		var t domain.PendingTask
		var createdAt int64
		if err := rows.Scan(&t.ID, &t.UserID, &t.TaskType, &t.TaskName, &t.Description, &t.Completed, &createdAt); err != nil {
			return nil, fmt.Errorf("scan pending task row: %w", err)
		}
		t.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending tasks: %w", err)
	}
	return out, nil
}

// AddFunTask records a fun task assigned during a conversation.
func (s *SQLiteStore) AddFunTask(ctx context.Context, t *domain.PendingTask) error {
	query := `
	INSERT INTO fun_tasks (user_id, task_type, task_name, description, completed, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	return shared.RetryOnConflict(ctx, "add fun task", writeRetries, writeBaseDelay, func() error {
		res, err := s.db.ExecContext(ctx, query,
			t.UserID, t.TaskType, t.TaskName, t.Description, t.Completed, t.CreatedAt.Unix())
		if err != nil {
			return err
		}
		t.ID, err = res.LastInsertId()
		return err
	})
}

// RecentAchievements returns up to limit achievements, newest first.
func (s *SQLiteStore) RecentAchievements(ctx context.Context, userID string, limit int) ([]domain.Achievement, error) {
	query := `
		SELECT achievement_type, achievement_name, earned_at
		FROM user_achievements WHERE user_id = ?
		ORDER BY earned_at DESC, id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query achievements: %w", err)
	}
	defer closeRows(rows, "achievements")

	var out []domain.Achievement
	for rows.Next() {
		var a domain.Achievement
		var earnedAt int64
		if err := rows.Scan(&a.Type, &a.Name, &earnedAt); err != nil {
			return nil, fmt.Errorf("scan achievement row: %w", err)
		}
		a.EarnedAt = time.Unix(earnedAt, 0)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate achievements: %w", err)
	}
	return out, nil
}

// SearchTherapists returns verified therapists accepting clients, best rated first.
func (s *SQLiteStore) SearchTherapists(ctx context.Context, specialty string, limit int) ([]domain.Therapist, error) {
	query := `
		SELECT id, full_name, specializations, rating, hourly_rate, years_experience,
		       verified, accepting_new_clients
		FROM therapists WHERE verified = 1 AND accepting_new_clients = 1`
	args := []any{}
	if specialty = strings.TrimSpace(specialty); specialty != "" {
		query += ` AND lower(specializations) LIKE ?`
		args = append(args, `%"`+strings.ToLower(specialty)+`"%`)
	}
	query += ` ORDER BY rating DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query therapists: %w", err)
	}
	defer closeRows(rows, "therapists")

	var out []domain.Therapist
	for rows.Next() {
		var t domain.Therapist
		var specs string
		if err := rows.Scan(&t.ID, &t.FullName, &specs, &t.Rating, &t.HourlyRate,
			&t.YearsExperience, &t.Verified, &t.AcceptingNewClients); err != nil {
			return nil, fmt.Errorf("scan therapist row: %w", err)
		}
		t.Specializations = decodeList(specs)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate therapists: %w", err)
	}
	return out, nil
}

// CreateSessionRequest records a request for a therapist follow-up.
func (s *SQLiteStore) CreateSessionRequest(ctx context.Context, req *domain.SessionRequest) error {
	query := `
	INSERT INTO therapist_session_requests (user_id, therapist_id, urgency, issue_summary, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`
	normalizeSessionRequest(req)
	return shared.RetryOnConflict(ctx, "create session request", writeRetries, writeBaseDelay, func() error {
		res, err := s.db.ExecContext(ctx, query,
			req.UserID, nullString(req.TherapistID), req.Urgency, req.IssueSummary, req.Status, req.CreatedAt.Unix())
		if err != nil {
			return err
		}
		req.ID, err = res.LastInsertId()
		return err
	})
}

// AddMoodEntry records a mood check-in.
func (s *SQLiteStore) AddMoodEntry(ctx context.Context, e *domain.MoodEntry) error {
	query := `
	INSERT INTO mood_entries (user_id, mood_score, emotion, summary, created_at)
	VALUES (?, ?, ?, ?, ?)`
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	return shared.RetryOnConflict(ctx, "add mood entry", writeRetries, writeBaseDelay, func() error {
		res, err := s.db.ExecContext(ctx, query, e.UserID, e.MoodScore, e.Emotion, e.Summary, e.CreatedAt.Unix())
		if err != nil {
			return err
		}
		e.ID, err = res.LastInsertId()
		return err
	})
}

// execAffecting runs an update and maps zero affected rows to ErrNotFound.
func (s *SQLiteStore) execAffecting(ctx context.Context, op, query string, args ...any) error {
	var rows int64
	err := shared.RetryOnConflict(ctx, op, writeRetries, writeBaseDelay, func() error {
		result, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if rows == 0 {
		slog.Warn("update affected 0 rows", "op", op)
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func normalizeSessionRequest(req *domain.SessionRequest) {
	if req.Urgency == "" {
		req.Urgency = domain.UrgencyNormal
	}
	if req.Status == "" {
		req.Status = "pending"
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "query", what, "error", err)
	}
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func encodeList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeList(raw string) []string {
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
