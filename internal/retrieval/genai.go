package retrieval

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashureev/mindcure-agent/internal/index"
	"google.golang.org/genai"
)

// GenAIGenerator generates text with a Gemini model.
type GenAIGenerator struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGenAIGenerator creates a generator for model.
func NewGenAIGenerator(client *genai.Client, model string) *GenAIGenerator {
	return &GenAIGenerator{client: client, model: model, temperature: 0.3}
}

// Generate implements Generator.
func (g *GenAIGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr(g.temperature),
	}
	res, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := res.Text()
	if text == "" {
		return "", errors.New("model returned empty text")
	}
	return text, nil
}

// FastConfig configures NewFastFactory.
type FastConfig struct {
	APIKey         string
	IndexPath      string
	EmbeddingModel string
	TextModel      string
	TopK           int
}

// NewFastFactory returns a Factory that loads the persisted index and
// connects to Gemini for query embeddings and synthesis.
func NewFastFactory(cfg FastConfig) Factory {
	return func(ctx context.Context) (Retriever, error) {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("no api key: %w", ErrUnavailable)
		}
		ix, err := index.Load(cfg.IndexPath)
		if err != nil {
			return nil, err
		}
		if len(ix.Chunks) == 0 {
			return nil, index.ErrEmpty
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("create genai client: %w", err)
		}
		embedder := index.NewGenAIEmbedder(client, cfg.EmbeddingModel, index.TaskQuery)
		return NewFast(ix, embedder, NewGenAIGenerator(client, cfg.TextModel), cfg.TopK), nil
	}
}
