package index

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Embedding task types understood by the Gemini embedding models.
const (
	TaskDocument = "RETRIEVAL_DOCUMENT"
	TaskQuery    = "RETRIEVAL_QUERY"
)

// GenAIEmbedder embeds texts with a Gemini embedding model.
type GenAIEmbedder struct {
	client   *genai.Client
	model    string
	taskType string
}

// NewGenAIEmbedder creates an embedder for the given task type.
func NewGenAIEmbedder(client *genai.Client, model, taskType string) *GenAIEmbedder {
	return &GenAIEmbedder{client: client, model: model, taskType: taskType}
}

// Embed implements Embedder.
func (e *GenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{TaskType: e.taskType})
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	out := make([][]float32, 0, len(resp.Embeddings))
	for _, emb := range resp.Embeddings {
		out = append(out, emb.Values)
	}
	return out, nil
}
