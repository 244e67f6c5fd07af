// MindCure - Voice Wellness Agent Server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/mindcure-agent/internal/api"
	"github.com/ashureev/mindcure-agent/internal/billing"
	"github.com/ashureev/mindcure-agent/internal/browser"
	"github.com/ashureev/mindcure-agent/internal/config"
	"github.com/ashureev/mindcure-agent/internal/container"
	"github.com/ashureev/mindcure-agent/internal/credentials"
	"github.com/ashureev/mindcure-agent/internal/identity"
	"github.com/ashureev/mindcure-agent/internal/live"
	"github.com/ashureev/mindcure-agent/internal/metrics"
	"github.com/ashureev/mindcure-agent/internal/middleware"
	"github.com/ashureev/mindcure-agent/internal/prompts"
	"github.com/ashureev/mindcure-agent/internal/retrieval"
	"github.com/ashureev/mindcure-agent/internal/scores"
	"github.com/ashureev/mindcure-agent/internal/session"
	"github.com/ashureev/mindcure-agent/internal/store"
	"github.com/ashureev/mindcure-agent/internal/tools"
	"github.com/ashureev/mindcure-agent/internal/usercontext"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

const browserIdleTTL = 10 * time.Minute

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "store", cfg.Store.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New("mindcure")

	// The store is optional: without it every session runs on in-memory scores
	// and anonymous context.
	repo := openStore(ctx, cfg)
	if repo != nil {
		defer func() {
			if closeErr := repo.Close(); closeErr != nil {
				slog.Error("Failed to close repository", "error", closeErr)
			}
		}()
	}

	var cache scores.Cache
	if cfg.Cache.RedisURL != "" {
		rc, err := scores.NewRedisCache(ctx, cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			slog.Warn("Redis unavailable, falling back to in-process score cache", "error", err)
		} else {
			defer func() { _ = rc.Close() }()
			cache = rc
			slog.Info("Score cache connected", "backend", "redis")
		}
	}
	if cache == nil {
		cache = scores.NewLRUCache(cfg.Cache.Size, cfg.Cache.TTL)
	}

	var scoreStore scores.Store
	var toolStore tools.Store
	var contextStore usercontext.Store
	var credentialStore credentials.Store
	var tierStore billing.TierUpdater
	if repo != nil {
		scoreStore, toolStore, contextStore, credentialStore, tierStore = repo, repo, repo, repo, repo
	}
	scoreService := scores.NewService(scoreStore, cache, logger)

	// Knowledge sources initialize in the background; tools answer with a
	// fallback until they are ready.
	fast := retrieval.NewLazy("fast", retrieval.NewFastFactory(retrieval.FastConfig{
		APIKey:         cfg.LLM.PlatformAPIKey,
		IndexPath:      cfg.Retrieval.IndexPath,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		TextModel:      cfg.LLM.TextModel,
		TopK:           cfg.Retrieval.TopK,
	}), cfg.StartupTimeout, logger)
	knowledge := map[string]*retrieval.Lazy{"fast": fast}

	var deep retrieval.Retriever
	if cfg.Retrieval.DeepAgentAddr != "" {
		lazyDeep := retrieval.NewLazy("deep", retrieval.NewDeepFactory(retrieval.DeepConfig{
			Address:        cfg.Retrieval.DeepAgentAddr,
			ConnectTimeout: cfg.Retrieval.ConnectTimeout,
			RequestTimeout: cfg.Retrieval.DeepAgentTTL,
		}, logger), cfg.StartupTimeout, logger)
		knowledge["deep"] = lazyDeep
		deep = lazyDeep
	} else {
		slog.Info("Deep reasoning agent disabled (DEEP_AGENT_ADDR not set)")
	}
	for name, src := range knowledge {
		go func() {
			m.KnowledgeReady(name, src.Init(ctx) == retrieval.StatusReady)
		}()
	}

	// Browser automation.
	endpoint := browser.StaticEndpoint(cfg.Browser.Endpoint)
	var browsers *container.Browsers
	if cfg.Browser.ManageContainer {
		mgr, err := container.NewDockerManager()
		if err != nil {
			slog.Error("Failed to initialize container manager", "error", err)
			os.Exit(1)
		}
		networkID, err := mgr.EnsureNetwork(ctx)
		if err != nil {
			slog.Error("Failed to ensure browser network", "error", err)
			os.Exit(1)
		}
		slog.Info("Browser network ready", "network_id", networkID)

		browsers = container.NewBrowsers(mgr, container.BrowserOptions{
			Name:  "mindcure-browser",
			Image: cfg.Browser.Image,
			Token: cfg.Browser.Token,
		})
		endpoint = browsers.Endpoint
		container.StartIdleWorker(ctx, browsers, browserIdleTTL)
	}
	dispatcher := browser.NewDispatcher(browser.NewHTTPDriver(endpoint, cfg.Browser.Token), cfg.Browser.StepDelay, logger)

	toolDeps := tools.Deps{
		Fast:         fast,
		Deep:         deep,
		Automation:   dispatcher,
		Store:        toolStore,
		DirectoryURL: cfg.DirectoryURL,
		Logger:       logger,
		Observer:     m,
	}

	personas, err := prompts.Load()
	if err != nil {
		slog.Error("Failed to load personas", "error", err)
		os.Exit(1)
	}
	bootstrapper := session.NewBootstrapper(
		personas,
		usercontext.NewLoader(contextStore, logger),
		credentials.NewResolver(credentialStore, cfg.LLM.PlatformAPIKey, logger),
		cfg.RoomPrefix,
		logger,
	)

	// Initialize handlers.
	sessions := live.NewSessions()
	liveHandler := live.NewHandler(live.Config{
		Bootstrapper:   bootstrapper,
		Model:          live.NewGenAIModel(cfg.LLM.LiveModel, cfg.LLM.Temperature),
		Scores:         scoreService,
		Tools:          toolDeps,
		Sessions:       sessions,
		Metrics:        m,
		MaxScreenshots: cfg.Browser.MaxScreenshots,
		PollAttempts:   cfg.LLM.MetadataRetries,
		PollInterval:   cfg.LLM.MetadataBackoff,
		AllowedOrigin:  cfg.FrontendURL,
		IsDev:          cfg.IsDevelopment(),
		Logger:         logger,
	})

	var billingHandler http.Handler
	if tierStore != nil {
		billingHandler = billing.NewProcessor(cfg.Billing.WebhookSecret, tierStore, m, logger)
	}

	apiOpts := api.Options{
		Scores:         scoreService,
		Sessions:       sessions,
		Tools:          toolDeps,
		Bootstrapper:   bootstrapper,
		Knowledge:      make(map[string]api.KnowledgeSource, len(knowledge)),
		Metrics:        m.Handler(),
		Billing:        billingHandler,
		MaxScreenshots: cfg.Browser.MaxScreenshots,
		Logger:         logger,
	}
	if repo != nil {
		apiOpts.Store = repo
	}
	for name, src := range knowledge {
		apiOpts.Knowledge[name] = src
	}
	apiHandler := api.NewHandler(apiOpts)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(middleware.Origins(cfg.FrontendURL, cfg.IsDevelopment())))
	r.Use(identity.Middleware(cfg.RoomPrefix))

	apiHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/session", liveHandler.ServeHTTP)

	// Voice sessions are long-lived websockets, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...", "active_sessions", sessions.Len())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sessions.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}
	if browsers != nil {
		browsers.Shutdown(shutdownCtx)
	}

	slog.Info("Server stopped successfully")
}

// openStore opens and pings the configured backend. A failure is logged and
// returns nil so the agent keeps serving in degraded mode.
func openStore(ctx context.Context, cfg *config.Config) store.Repository {
	repo, err := store.Open(ctx, cfg.Store.Backend, cfg.Store.DBPath, cfg.Store.PostgresDSN)
	if err != nil {
		slog.Error("Failed to initialize database, running without persistence", "error", err)
		return nil
	}
	if err := repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed, running without persistence", "error", err)
		_ = repo.Close()
		return nil
	}
	slog.Info("Database connected", "backend", cfg.Store.Backend)
	return repo
}
