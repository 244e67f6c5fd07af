package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/ashureev/mindcure-agent/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userID = "11111111-2222-3333-4444-555555555555"

type fakeStore struct {
	profile     *domain.Profile
	getErr      error
	usageErr    error
	usageCalled int
}

func (f *fakeStore) GetProfile(context.Context, string) (*domain.Profile, error) {
	return f.profile, f.getErr
}

func (f *fakeStore) IncrementUsage(context.Context, string) error {
	f.usageCalled++
	return f.usageErr
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		store      *fakeStore
		userID     string
		wantKey    string
		wantSource Source
		wantUsage  int
	}{
		{
			name:       "stored key on byok tier",
			store:      &fakeStore{profile: &domain.Profile{APIKey: "mine", SubscriptionTier: domain.TierBYOKPro}},
			userID:     userID,
			wantKey:    "mine",
			wantSource: SourceUser,
			wantUsage:  1,
		},
		{
			name:       "downgraded tier ignores stored key",
			store:      &fakeStore{profile: &domain.Profile{APIKey: "mine", SubscriptionTier: domain.TierCanceled}},
			userID:     userID,
			wantKey:    "platform",
			wantSource: SourcePlatform,
			wantUsage:  1,
		},
		{
			name:       "no stored key",
			store:      &fakeStore{profile: &domain.Profile{}},
			userID:     userID,
			wantKey:    "platform",
			wantSource: SourcePlatform,
			wantUsage:  1,
		},
		{
			name:       "store failure",
			store:      &fakeStore{getErr: errors.New("down"), usageErr: errors.New("down")},
			userID:     userID,
			wantKey:    "platform",
			wantSource: SourcePlatform,
			wantUsage:  1,
		},
		{
			name:       "anonymous caller",
			store:      &fakeStore{profile: &domain.Profile{APIKey: "mine"}},
			userID:     "guest42",
			wantKey:    "platform",
			wantSource: SourcePlatform,
			wantUsage:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(tt.store, "platform", nil)
			cred, err := r.Resolve(context.Background(), tt.userID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, cred.APIKey)
			assert.Equal(t, tt.wantSource, cred.Source)
			assert.Equal(t, tt.wantUsage, tt.store.usageCalled)
		})
	}
}

func TestResolveWithoutStoreUsesPlatformKey(t *testing.T) {
	cred, err := NewResolver(nil, "platform", nil).Resolve(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, SourcePlatform, cred.Source)
}

func TestResolveWithoutAnyKey(t *testing.T) {
	_, err := NewResolver(&fakeStore{}, "", nil).Resolve(context.Background(), userID)
	assert.ErrorIs(t, err, ErrNoCredential)
}
