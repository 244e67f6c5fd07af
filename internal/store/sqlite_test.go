package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/mindcure-agent/internal/domain"
)

const testUser = "11111111-2222-3333-4444-555555555555"

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteProfileRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetProfile(ctx, testUser)
	if err != nil || got != nil {
		t.Fatalf("expected (nil, nil) for missing profile, got (%v, %v)", got, err)
	}

	p := &domain.Profile{
		UserID:     testUser,
		FullName:   "Sam Rivera",
		Goals:      []string{"sleep better", "less anxiety"},
		Challenges: []string{"work stress"},
		APIKey:     "user-key",
	}
	if err := s.UpsertProfile(ctx, p); err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}
	if err := s.IncrementUsage(ctx, testUser); err != nil {
		t.Fatalf("IncrementUsage: %v", err)
	}

	got, err = s.GetProfile(ctx, testUser)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got.FullName != "Sam Rivera" || len(got.Goals) != 2 || got.Challenges[0] != "work stress" {
		t.Errorf("unexpected profile: %+v", got)
	}
	if got.SubscriptionTier != domain.TierBYOKFree {
		t.Errorf("expected default tier byok_free, got %q", got.SubscriptionTier)
	}
	if got.APIUsageCount != 1 {
		t.Errorf("expected usage 1, got %d", got.APIUsageCount)
	}
	if !got.HasStoredKey() {
		t.Error("expected stored key")
	}
}

func TestSQLiteUpdatesOnMissingProfile(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.IncrementUsage(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("IncrementUsage: expected ErrNotFound, got %v", err)
	}
	if err := s.UpdateSubscriptionTier(ctx, "nobody", domain.TierCanceled); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateSubscriptionTier: expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteMetricsLatestWins(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	old := &domain.WellnessMetrics{UserID: testUser, MentalHealthScore: 40, ProductivityScore: 40, RecordedAt: time.Now().Add(-time.Hour)}
	if err := s.SaveMetrics(ctx, old); err != nil {
		t.Fatalf("SaveMetrics old: %v", err)
	}
	cur := &domain.WellnessMetrics{UserID: testUser, MentalHealthScore: 60, ProductivityScore: 70}
	if err := s.SaveMetrics(ctx, cur); err != nil {
		t.Fatalf("SaveMetrics cur: %v", err)
	}
	if cur.ID == 0 {
		t.Fatal("expected insert to assign an ID")
	}

	cur.MentalHealthScore = 63
	if err := s.SaveMetrics(ctx, cur); err != nil {
		t.Fatalf("SaveMetrics update: %v", err)
	}

	got, err := s.LatestMetrics(ctx, testUser)
	if err != nil {
		t.Fatalf("LatestMetrics: %v", err)
	}
	if got.ID != cur.ID || got.MentalHealthScore != 63 || got.ProductivityScore != 70 {
		t.Errorf("unexpected latest metrics: %+v", got)
	}
}

func TestSQLiteRecentRowsAreLimited(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-24 * time.Hour)
	for i := 0; i < 7; i++ {
		c := domain.ConversationSummary{Summary: "session", Insights: []string{"breathing"}, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := s.AddConversation(ctx, testUser, c, 60); err != nil {
			t.Fatalf("AddConversation: %v", err)
		}
		if err := s.AddFunTask(ctx, &domain.PendingTask{UserID: testUser, TaskType: "grass", TaskName: "touch grass"}); err != nil {
			t.Fatalf("AddFunTask: %v", err)
		}
	}
	if err := s.AddFunTask(ctx, &domain.PendingTask{UserID: testUser, TaskType: "meme", TaskName: "done", Completed: true}); err != nil {
		t.Fatalf("AddFunTask: %v", err)
	}

	convs, err := s.RecentConversations(ctx, testUser, 5)
	if err != nil {
		t.Fatalf("RecentConversations: %v", err)
	}
	if len(convs) != 5 {
		t.Fatalf("expected 5 conversations, got %d", len(convs))
	}
	if convs[0].MoodScore != 5 {
		t.Errorf("expected default mood 5, got %d", convs[0].MoodScore)
	}
	if !convs[0].CreatedAt.After(convs[4].CreatedAt) {
		t.Error("expected newest first")
	}

	tasks, err := s.PendingTasks(ctx, testUser, 5)
	if err != nil {
		t.Fatalf("PendingTasks: %v", err)
	}
	if len(tasks) != 5 {
		t.Fatalf("expected 5 pending tasks, got %d", len(tasks))
	}
	for _, task := range tasks {
		if task.Completed {
			t.Errorf("completed task returned as pending: %+v", task)
		}
	}
}

func TestSQLiteSearchTherapists(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx, `
	INSERT INTO therapists (id, full_name, specializations, rating, verified, accepting_new_clients) VALUES
		('a', 'Dr. Ada', '["anxiety","depression"]', 4.9, 1, 1),
		('b', 'Dr. Ben', '["anxiety"]', 4.2, 1, 1),
		('c', 'Dr. Cy', '["anxiety"]', 5.0, 0, 1),
		('d', 'Dr. Di', '["trauma"]', 4.7, 1, 1),
		('e', 'Dr. Ed', '["anxiety"]', 4.8, 1, 0)`)
	if err != nil {
		t.Fatalf("seed therapists: %v", err)
	}

	got, err := s.SearchTherapists(ctx, "Anxiety", 5)
	if err != nil {
		t.Fatalf("SearchTherapists: %v", err)
	}
	if len(got) != 2 || got[0].FullName != "Dr. Ada" || got[1].FullName != "Dr. Ben" {
		t.Errorf("unexpected anxiety results: %+v", got)
	}

	all, err := s.SearchTherapists(ctx, "", 2)
	if err != nil {
		t.Fatalf("SearchTherapists all: %v", err)
	}
	if len(all) != 2 || all[0].FullName != "Dr. Ada" {
		t.Errorf("unexpected unfiltered results: %+v", all)
	}
}

func TestSQLiteSessionRequestDefaults(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	req := &domain.SessionRequest{UserID: testUser, IssueSummary: "panic attacks"}
	if err := s.CreateSessionRequest(ctx, req); err != nil {
		t.Fatalf("CreateSessionRequest: %v", err)
	}
	if req.ID == 0 || req.Urgency != domain.UrgencyNormal || req.Status != "pending" {
		t.Errorf("unexpected request after insert: %+v", req)
	}

	entry := &domain.MoodEntry{UserID: testUser, MoodScore: 7, Emotion: "calm"}
	if err := s.AddMoodEntry(ctx, entry); err != nil {
		t.Fatalf("AddMoodEntry: %v", err)
	}
	if entry.ID == 0 {
		t.Error("expected mood entry ID")
	}
}
