package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/mindcure-agent/internal/credentials"
	"github.com/ashureev/mindcure-agent/internal/domain"
	"github.com/ashureev/mindcure-agent/internal/identity"
	"github.com/ashureev/mindcure-agent/internal/prompts"
	"github.com/ashureev/mindcure-agent/internal/usercontext"
)

// Setup is everything needed to start a live conversation.
type Setup struct {
	Room         string
	UserID       string
	Identified   bool
	Personalized bool
	Preferences  domain.Preferences
	Persona      prompts.Persona
	Instructions string
	Context      *domain.UserContext
	Credential   credentials.Credential
}

// PersonaKey names the persona for logs and metrics.
func (s *Setup) PersonaKey() string {
	if s.Preferences.GenZMode {
		return "genz"
	}
	return "default"
}

// Bootstrapper turns a connection into a Setup.
type Bootstrapper struct {
	personas    *prompts.Set
	loader      *usercontext.Loader
	credentials *credentials.Resolver
	roomPrefix  string
	logger      *slog.Logger
}

// NewBootstrapper creates a bootstrapper.
func NewBootstrapper(personas *prompts.Set, loader *usercontext.Loader, creds *credentials.Resolver, roomPrefix string, logger *slog.Logger) *Bootstrapper {
	if logger == nil {
		logger = slog.Default()
	}
	if roomPrefix == "" {
		roomPrefix = identity.DefaultRoomPrefix
	}
	return &Bootstrapper{personas: personas, loader: loader, credentials: creds, roomPrefix: roomPrefix, logger: logger}
}

// Prepare resolves identity, instructions and credential for room.
// The only error is a missing model credential.
func (b *Bootstrapper) Prepare(ctx context.Context, room string, prefs domain.Preferences) (*Setup, error) {
	setup := b.Personalize(ctx, room, prefs)

	cred, err := b.credentials.Resolve(ctx, setup.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve credential: %w", err)
	}
	setup.Credential = cred

	b.logger.Info("session prepared",
		"room", room,
		"user_id", setup.UserID,
		"persona", setup.PersonaKey(),
		"voice", setup.Preferences.Voice,
		"personalized", setup.Personalized,
		"credential_source", cred.Source)
	return setup, nil
}

// Personalize resolves identity and instructions without touching the
// credential or the usage counter.
//
// Personalization is fail-open: a store failure logs and keeps the base
// persona unmodified.
func (b *Bootstrapper) Personalize(ctx context.Context, room string, prefs domain.Preferences) *Setup {
	prefs.Voice = domain.ResolveVoice(prefs.Voice)
	userID, identified := identity.UserIDFromRoom(b.roomPrefix, room)

	persona := b.personas.For(prefs.GenZMode)
	setup := &Setup{
		Room:         room,
		UserID:       userID,
		Identified:   identified,
		Preferences:  prefs,
		Persona:      persona,
		Instructions: persona.Instructions,
	}

	uc, err := b.loader.Load(ctx, userID)
	setup.Context = uc
	if err != nil {
		b.logger.Error("failed to load user context, using base persona", "room", room, "user_id", userID, "error", err)
		return setup
	}
	setup.Instructions = usercontext.BuildInstructions(persona.Instructions, uc)
	setup.Personalized = !uc.Anonymous
	return setup
}
