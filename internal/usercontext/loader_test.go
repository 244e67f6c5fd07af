package usercontext

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/mindcure-agent/internal/domain"
)

const userID = "11111111-2222-3333-4444-555555555555"

type fakeStore struct {
	profile  *domain.Profile
	metrics  *domain.WellnessMetrics
	convs    []domain.ConversationSummary
	tasks    []domain.PendingTask
	achieves []domain.Achievement
	err      error
	calls    int
}

func (f *fakeStore) GetProfile(context.Context, string) (*domain.Profile, error) {
	f.calls++
	return f.profile, f.err
}

func (f *fakeStore) LatestMetrics(context.Context, string) (*domain.WellnessMetrics, error) {
	return f.metrics, nil
}

func (f *fakeStore) RecentConversations(_ context.Context, _ string, limit int) ([]domain.ConversationSummary, error) {
	if limit != ConversationLimit {
		return nil, errors.New("unexpected conversation limit")
	}
	return f.convs, nil
}

func (f *fakeStore) PendingTasks(_ context.Context, _ string, limit int) ([]domain.PendingTask, error) {
	if limit != TaskLimit {
		return nil, errors.New("unexpected task limit")
	}
	return f.tasks, nil
}

func (f *fakeStore) RecentAchievements(_ context.Context, _ string, limit int) ([]domain.Achievement, error) {
	if limit != AchievementLimit {
		return nil, errors.New("unexpected achievement limit")
	}
	return f.achieves, nil
}

func TestLoadFullContext(t *testing.T) {
	t.Parallel()
	store := &fakeStore{
		profile: &domain.Profile{UserID: userID, FullName: "Sam", Goals: []string{"sleep", "focus", "calm", "marathon"}},
		metrics: &domain.WellnessMetrics{MentalHealthScore: 61, ProductivityScore: 72, StreakDays: 3, SessionsCompleted: 9},
		convs:   []domain.ConversationSummary{{Summary: "Talked about exams", CreatedAt: time.Now()}},
		tasks:   []domain.PendingTask{{TaskType: "touch_grass", TaskName: "Find a park"}},
	}
	uc, err := NewLoader(store, nil).Load(context.Background(), userID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if uc.Anonymous || uc.Name != "Sam" || uc.Scores.MentalHealth != 61 || uc.Scores.SessionsCompleted != 9 {
		t.Errorf("unexpected context: %+v", uc)
	}

	got := BuildInstructions("BASE", uc)
	for _, want := range []string{
		"BASE",
		"User Name: Sam",
		"Mental Health Score: 61/100",
		"Productivity Score: 72/100",
		"Current Streak: 3 days",
		"Their Mental Health Goals: sleep, focus, calm\n",
		"  - Talked about exams",
		"Find a park (touch_grass)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("instructions missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "marathon") {
		t.Error("only the first three goals should be listed")
	}
}

func TestLoadAnonymousSkipsStore(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	uc, err := NewLoader(store, nil).Load(context.Background(), "guest42")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !uc.Anonymous || uc.Name != "Friend" || uc.Scores.MentalHealth != 50 || uc.Scores.Productivity != 50 {
		t.Errorf("expected minimal context, got %+v", uc)
	}
	if store.calls != 0 {
		t.Errorf("store must not be queried for anonymous users, got %d calls", store.calls)
	}
}

func TestLoadStoreFailureReturnsMinimalAndError(t *testing.T) {
	t.Parallel()
	store := &fakeStore{err: errors.New("connection refused")}
	uc, err := NewLoader(store, nil).Load(context.Background(), userID)
	if err == nil {
		t.Fatal("expected error")
	}
	if uc == nil || !uc.Anonymous {
		t.Errorf("expected minimal context alongside error, got %+v", uc)
	}
}

func TestLoadWithoutStore(t *testing.T) {
	t.Parallel()
	uc, err := NewLoader(nil, nil).Load(context.Background(), userID)
	if err != nil || !uc.Anonymous {
		t.Errorf("expected minimal context, got (%+v, %v)", uc, err)
	}
}

func TestBuildInstructionsTruncatesSummaries(t *testing.T) {
	t.Parallel()
	uc := domain.MinimalContext("")
	uc.RecentConversations = []domain.ConversationSummary{{Summary: strings.Repeat("x", 150)}}
	got := BuildInstructions("", uc)
	if !strings.Contains(got, strings.Repeat("x", 100)+"...") || strings.Contains(got, strings.Repeat("x", 101)) {
		t.Errorf("summary not truncated to 100 runes:\n%s", got)
	}
}
