package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/mindcure-agent/internal/credentials"
	"github.com/ashureev/mindcure-agent/internal/domain"
	"github.com/ashureev/mindcure-agent/internal/prompts"
	"github.com/ashureev/mindcure-agent/internal/usercontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userID = "11111111-2222-3333-4444-555555555555"

func TestParseMetadata(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want domain.Preferences
	}{
		{"empty", "", domain.Preferences{Voice: domain.VoicePuck}},
		{"json", `{"voice":"Kore","genz_mode":true}`, domain.Preferences{Voice: domain.VoiceKore, GenZMode: true}},
		{"camel alias", `{"voice":"charon","genzMode":true}`, domain.Preferences{Voice: domain.VoiceCharon, GenZMode: true}},
		{"short alias", `{"genz":true}`, domain.Preferences{Voice: domain.VoicePuck, GenZMode: true}},
		{"unknown voice", `{"voice":"Bob"}`, domain.Preferences{Voice: domain.VoicePuck}},
		{"legacy query style", `voice=Kore&GENZ_MODE=true`, domain.Preferences{Voice: domain.VoicePuck, GenZMode: true}},
		{"legacy broken json", `{"genz_mode": true,`, domain.Preferences{Voice: domain.VoicePuck, GenZMode: true}},
		{"garbage", `not metadata`, domain.Preferences{Voice: domain.VoicePuck}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseMetadata(tt.raw))
		})
	}
}

func TestPollPreferences(t *testing.T) {
	t.Run("waits for metadata", func(t *testing.T) {
		var calls atomic.Int32
		src := func(context.Context) string {
			if calls.Add(1) < 3 {
				return ""
			}
			return `{"genz_mode":true}`
		}
		prefs := PollPreferences(context.Background(), src, 5, time.Millisecond)
		assert.True(t, prefs.GenZMode)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("gives up with defaults", func(t *testing.T) {
		var calls atomic.Int32
		src := func(context.Context) string { calls.Add(1); return "" }
		prefs := PollPreferences(context.Background(), src, 4, time.Millisecond)
		assert.Equal(t, domain.DefaultPreferences(), prefs)
		assert.Equal(t, int32(4), calls.Load())
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		prefs := PollPreferences(ctx, func(context.Context) string { return "" }, 5, time.Hour)
		assert.Equal(t, domain.DefaultPreferences(), prefs)
	})
}

type fakeStore struct {
	profile *domain.Profile
	err     error
}

func (f *fakeStore) GetProfile(context.Context, string) (*domain.Profile, error) {
	return f.profile, f.err
}

func (f *fakeStore) LatestMetrics(context.Context, string) (*domain.WellnessMetrics, error) {
	return &domain.WellnessMetrics{MentalHealthScore: 64, ProductivityScore: 58}, nil
}

func (f *fakeStore) RecentConversations(context.Context, string, int) ([]domain.ConversationSummary, error) {
	return nil, nil
}

func (f *fakeStore) PendingTasks(context.Context, string, int) ([]domain.PendingTask, error) {
	return nil, nil
}

func (f *fakeStore) RecentAchievements(context.Context, string, int) ([]domain.Achievement, error) {
	return nil, nil
}

func (f *fakeStore) IncrementUsage(context.Context, string) error { return nil }

func newBootstrapper(store *fakeStore, platformKey string) *Bootstrapper {
	return NewBootstrapper(
		prompts.MustLoad(),
		usercontext.NewLoader(store, nil),
		credentials.NewResolver(store, platformKey, nil),
		"", nil)
}

func TestPrepareSignedInUser(t *testing.T) {
	store := &fakeStore{profile: &domain.Profile{UserID: userID, FullName: "Sam"}}
	b := newBootstrapper(store, "platform")

	setup, err := b.Prepare(context.Background(), "mindcure-"+userID+"-ab12", domain.Preferences{Voice: "fenrir"})
	require.NoError(t, err)

	assert.Equal(t, userID, setup.UserID)
	assert.True(t, setup.Identified)
	assert.True(t, setup.Personalized)
	assert.Equal(t, domain.VoiceFenrir, setup.Preferences.Voice)
	assert.Equal(t, "default", setup.PersonaKey())
	assert.Contains(t, setup.Instructions, "User Name: Sam")
	assert.Contains(t, setup.Instructions, "Mental Health Score: 64/100")
	assert.Equal(t, credentials.SourcePlatform, setup.Credential.Source)
}

func TestPrepareGenZPersona(t *testing.T) {
	b := newBootstrapper(&fakeStore{}, "platform")
	set := prompts.MustLoad()

	setup, err := b.Prepare(context.Background(), "mindcure-guest7", domain.Preferences{GenZMode: true})
	require.NoError(t, err)

	assert.False(t, setup.Identified)
	assert.False(t, setup.Personalized)
	assert.Equal(t, "genz", setup.PersonaKey())
	assert.Equal(t, set.GenZ.Greeting, setup.Persona.Greeting)
	assert.Contains(t, setup.Instructions, set.GenZ.Instructions)
}

func TestPrepareFailsOpenOnStoreError(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	b := newBootstrapper(store, "platform")
	set := prompts.MustLoad()

	setup, err := b.Prepare(context.Background(), "mindcure-"+userID, domain.DefaultPreferences())
	require.NoError(t, err)

	assert.Equal(t, set.Default.Instructions, setup.Instructions)
	assert.False(t, setup.Personalized)
	assert.Equal(t, "platform", setup.Credential.APIKey)
}

func TestPrepareWithoutCredential(t *testing.T) {
	b := newBootstrapper(&fakeStore{}, "")
	_, err := b.Prepare(context.Background(), "mindcure-guest", domain.DefaultPreferences())
	require.ErrorIs(t, err, credentials.ErrNoCredential)
}

func TestPersonalizeSkipsCredential(t *testing.T) {
	b := newBootstrapper(&fakeStore{profile: &domain.Profile{FullName: "Ana"}}, "")
	setup := b.Personalize(context.Background(), "mindcure-"+userID, domain.Preferences{Voice: "aoede"})

	assert.True(t, setup.Personalized)
	assert.Empty(t, setup.Credential.APIKey)
	assert.Equal(t, domain.VoiceAoede, setup.Preferences.Voice)
	assert.Contains(t, setup.Instructions, "User Name: Ana")
}
