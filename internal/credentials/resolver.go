// Package credentials picks the model API key a session runs with.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ashureev/mindcure-agent/internal/domain"
	"github.com/ashureev/mindcure-agent/internal/identity"
)

var (
	// ErrNoStore means no repository is configured, so only the platform key can be used.
	ErrNoStore = errors.New("credential store not available")
	// ErrNoCredential means neither a user key nor a platform key is available.
	ErrNoCredential = errors.New("no model credential available")
)

// Source records where a credential came from.
type Source string

const (
	SourceUser     Source = "user"
	SourcePlatform Source = "platform"
)

// Credential is a resolved API key.
type Credential struct {
	APIKey string
	Source Source
}

// Store is the subset of the repository the resolver needs.
type Store interface {
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	IncrementUsage(ctx context.Context, userID string) error
}

// Resolver chooses between a user's own key and the platform key.
type Resolver struct {
	store       Store
	platformKey string
	logger      *slog.Logger
}

// NewResolver creates a resolver. store may be nil.
func NewResolver(store Store, platformKey string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, platformKey: platformKey, logger: logger}
}

// Resolve returns the credential for userID.
//
// The stored user key wins when the profile is on a BYOK tier. A missing key,
// a non-BYOK tier, an unavailable store or an anonymous caller fall back to
// the platform key. The usage counter is bumped afterwards and its failure is
// only logged.
func (r *Resolver) Resolve(ctx context.Context, userID string) (Credential, error) {
	cred, err := r.userCredential(ctx, userID)
	if err != nil {
		r.logger.Warn("user credential unavailable, using platform key", "user_id", userID, "error", err)
	}
	if cred.APIKey == "" {
		if r.platformKey == "" {
			return Credential{}, ErrNoCredential
		}
		cred = Credential{APIKey: r.platformKey, Source: SourcePlatform}
	}

	if r.store != nil && identity.IsUserID(userID) {
		if err := r.store.IncrementUsage(ctx, userID); err != nil {
			r.logger.Debug("failed to increment api usage", "user_id", userID, "error", err)
		}
	}
	return cred, nil
}

func (r *Resolver) userCredential(ctx context.Context, userID string) (Credential, error) {
	if !identity.IsUserID(userID) {
		return Credential{}, nil
	}
	if r.store == nil {
		return Credential{}, ErrNoStore
	}
	profile, err := r.store.GetProfile(ctx, userID)
	if err != nil {
		return Credential{}, fmt.Errorf("load profile: %w", err)
	}
	if profile == nil || !profile.HasStoredKey() {
		return Credential{}, nil
	}
	if !profile.SubscriptionTier.IsBYOK() {
		r.logger.Info("tier does not allow a user key", "user_id", userID, "tier", profile.SubscriptionTier)
		return Credential{}, nil
	}
	return Credential{APIKey: profile.APIKey, Source: SourceUser}, nil
}
