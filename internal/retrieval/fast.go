package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashureev/mindcure-agent/internal/index"
)

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

const synthesisSystem = `You answer questions for MindCure, a mental wellness assistant, using only the provided context.
Answer in two to four short spoken sentences. If the context does not cover the question, say so plainly.`

// Fast answers from the local vector index with one synthesis call.
type Fast struct {
	index    *index.Index
	embedder index.Embedder
	gen      Generator
	topK     int
}

// NewFast creates a fast retriever over ix.
func NewFast(ix *index.Index, embedder index.Embedder, gen Generator, topK int) *Fast {
	if topK <= 0 {
		topK = 4
	}
	return &Fast{index: ix, embedder: embedder, gen: gen, topK: topK}
}

// Query implements Retriever.
func (f *Fast) Query(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("empty query")
	}
	vectors, err := f.embedder.Embed(ctx, []string{query})
	if err != nil {
		return "", fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return "", fmt.Errorf("embedder returned %d vectors", len(vectors))
	}
	hits, err := f.index.Search(vectors[0], f.topK)
	if err != nil {
		return "", fmt.Errorf("search index: %w", err)
	}
	answer, err := f.gen.Generate(ctx, synthesisSystem, buildPrompt(query, hits))
	if err != nil {
		return "", fmt.Errorf("synthesize answer: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

func buildPrompt(query string, hits []index.Hit) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	for i, h := range hits {
		fmt.Fprintf(&b, "[%d] (%s)\n%s\n\n", i+1, h.Source, h.Text)
	}
	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String()
}
