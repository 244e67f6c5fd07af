// Package main rebuilds the knowledge index used by the fast lookup tool.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ashureev/mindcure-agent/internal/config"
	"github.com/ashureev/mindcure-agent/internal/index"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"google.golang.org/genai"
)

type options struct {
	dataDir   string
	indexPath string
	model     string
	apiKey    string
	chunkSize int
	overlap   int
	schedule  string
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := options{}
	if cfg, err := config.Load(); err == nil {
		opts.dataDir = cfg.Retrieval.DataDir
		opts.indexPath = cfg.Retrieval.IndexPath
		opts.model = cfg.LLM.EmbeddingModel
		opts.apiKey = cfg.LLM.PlatformAPIKey
	}

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the MindCure knowledge index",
		Long: `Walks the knowledge directory, embeds every .txt, .md and .html document
with a Gemini embedding model and writes the index the agent loads at startup.

With --schedule the rebuild runs on a cron schedule until interrupted.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.apiKey == "" {
				return fmt.Errorf("an API key is required (--api-key or GOOGLE_API_KEY)")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := genai.NewClient(ctx, &genai.ClientConfig{
				APIKey:  opts.apiKey,
				Backend: genai.BackendGeminiAPI,
			})
			if err != nil {
				return fmt.Errorf("create genai client: %w", err)
			}
			embedder := index.NewGenAIEmbedder(client, opts.model, index.TaskDocument)

			if opts.schedule == "" {
				return rebuild(ctx, embedder, opts)
			}
			return runScheduled(ctx, embedder, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.dataDir, "data-dir", opts.dataDir, "directory of knowledge documents")
	flags.StringVar(&opts.indexPath, "index", opts.indexPath, "path of the index file to write")
	flags.StringVar(&opts.model, "model", opts.model, "embedding model")
	flags.StringVar(&opts.apiKey, "api-key", opts.apiKey, "Gemini API key")
	flags.IntVar(&opts.chunkSize, "chunk-size", 1000, "runes per chunk")
	flags.IntVar(&opts.overlap, "overlap", 200, "runes shared by neighbouring chunks")
	flags.StringVar(&opts.schedule, "schedule", "", `cron schedule for periodic rebuilds, e.g. "0 3 * * *"`)
	return cmd
}

// rebuild builds the index from opts.dataDir and replaces opts.indexPath.
func rebuild(ctx context.Context, embedder index.Embedder, opts options) error {
	b := &index.Builder{
		Embedder:  embedder,
		Model:     opts.model,
		ChunkSize: opts.chunkSize,
		Overlap:   opts.overlap,
	}
	ix, err := b.Build(ctx, opts.dataDir)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	if err := ix.Save(opts.indexPath); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	slog.Info("Index rebuilt", "path", opts.indexPath, "chunks", len(ix.Chunks), "dim", ix.Dim)
	return nil
}

func runScheduled(ctx context.Context, embedder index.Embedder, opts options) error {
	c := cron.New()
	_, err := c.AddFunc(opts.schedule, func() {
		if err := rebuild(ctx, embedder, opts); err != nil {
			slog.Error("Scheduled rebuild failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", opts.schedule, err)
	}

	c.Start()
	slog.Info("Reindex scheduler started", "schedule", opts.schedule)
	<-ctx.Done()

	<-c.Stop().Done()
	slog.Info("Reindex scheduler stopped")
	return nil
}
