// Package billing applies Stripe subscription events to profile tiers.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/mindcure-agent/internal/domain"
	"github.com/ashureev/mindcure-agent/internal/identity"
	"github.com/ashureev/mindcure-agent/internal/metrics"
	"github.com/ashureev/mindcure-agent/internal/store"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

const (
	maxBodyBytes    = 65536
	signatureHeader = "Stripe-Signature"

	userIDKey   = "supabase_user_id"
	planTypeKey = "plan_type"
)

// Stripe event types handled here.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

var (
	// ErrInvalidSignature means the payload was not signed with the webhook secret.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrNotConfigured means no webhook secret is set.
	ErrNotConfigured = errors.New("billing webhook not configured")
)

// TierUpdater is the subset of the repository billing writes to.
type TierUpdater interface {
	UpdateSubscriptionTier(ctx context.Context, userID string, tier domain.SubscriptionTier) error
}

// Outcome describes what a processed event did.
type Outcome struct {
	EventType string
	UserID    string
	Tier      domain.SubscriptionTier
	Applied   bool
}

// Processor verifies and applies webhook events.
type Processor struct {
	secret  string
	store   TierUpdater
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewProcessor creates a processor. metrics may be nil.
func NewProcessor(secret string, store TierUpdater, m *metrics.Metrics, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{secret: secret, store: store, metrics: m, logger: logger}
}

// TierForPlan maps a checkout plan name to a tier.
func TierForPlan(plan string) (domain.SubscriptionTier, bool) {
	switch domain.SubscriptionTier(strings.ToLower(strings.TrimSpace(plan))) {
	case domain.TierBYOKFree:
		return domain.TierBYOKFree, true
	case domain.TierBYOKPro, "pro":
		return domain.TierBYOKPro, true
	case domain.TierPlatform:
		return domain.TierPlatform, true
	case domain.TierCanceled, "free":
		return domain.TierCanceled, true
	}
	return "", false
}

// Process verifies payload against the signature header and applies it.
func (p *Processor) Process(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	if p.secret == "" {
		return Outcome{}, ErrNotConfigured
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := Outcome{EventType: string(event.Type)}
	if event.Data == nil {
		return out, nil
	}

	var metadata map[string]string
	switch out.EventType {
	case EventCheckoutCompleted:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return out, fmt.Errorf("decode checkout session: %w", err)
		}
		metadata = cs.Metadata
		out.Tier, _ = TierForPlan(metadata[planTypeKey])
	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return out, fmt.Errorf("decode subscription: %w", err)
		}
		metadata = sub.Metadata
		out.Tier = tierForSubscription(out.EventType, &sub)
	default:
		return out, nil
	}

	out.UserID = strings.ToLower(strings.TrimSpace(metadata[userIDKey]))
	if out.Tier == "" || !identity.IsUserID(out.UserID) {
		p.logger.Info("Ignoring billing event without user or plan", "event_type", out.EventType, "event_id", event.ID)
		return out, nil
	}
	if p.store == nil {
		return out, fmt.Errorf("apply %s: %w", out.EventType, ErrNotConfigured)
	}

	if err := p.store.UpdateSubscriptionTier(ctx, out.UserID, out.Tier); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			p.logger.Warn("Billing event for unknown profile", "user_id", out.UserID, "event_type", out.EventType)
			return out, nil
		}
		return out, fmt.Errorf("update subscription tier: %w", err)
	}
	out.Applied = true
	p.logger.Info("Subscription tier updated", "user_id", out.UserID, "tier", out.Tier, "event_type", out.EventType)
	return out, nil
}

func tierForSubscription(eventType string, sub *stripe.Subscription) domain.SubscriptionTier {
	if eventType == EventSubscriptionDeleted {
		return domain.TierCanceled
	}
	switch sub.Status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		tier, _ := TierForPlan(sub.Metadata[planTypeKey])
		return tier
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusIncompleteExpired:
		return domain.TierCanceled
	}
	return ""
}

// ServeHTTP handles POST /api/billing/webhook.
func (p *Processor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	out, err := p.Process(r.Context(), payload, r.Header.Get(signatureHeader))
	switch {
	case errors.Is(err, ErrNotConfigured):
		p.metrics.WebhookEvent(out.EventType, "unconfigured")
		http.Error(w, "billing not configured", http.StatusServiceUnavailable)
		return
	case errors.Is(err, ErrInvalidSignature):
		p.logger.Warn("Webhook signature verification failed", "error", err)
		p.metrics.WebhookEvent("unknown", "invalid_signature")
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	case err != nil:
		p.logger.Error("Failed to process billing event", "event_type", out.EventType, "error", err)
		p.metrics.WebhookEvent(out.EventType, "error")
		http.Error(w, "failed to process event", http.StatusInternalServerError)
		return
	}

	outcome := "ignored"
	if out.Applied {
		outcome = "applied"
	}
	p.metrics.WebhookEvent(out.EventType, outcome)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"received": true})
}
