package index

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Embedder turns texts into vectors, one per input.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Builder walks a directory of documents and embeds them into an Index.
type Builder struct {
	Embedder  Embedder
	Model     string
	ChunkSize int // runes per chunk
	Overlap   int // runes shared by neighbouring chunks
	BatchSize int
	Logger    *slog.Logger
}

const defaultChunkSize = 1000

var supportedExt = map[string]bool{".txt": true, ".md": true, ".html": true, ".htm": true}

// Build indexes every supported document under dir.
func (b *Builder) Build(ctx context.Context, dir string) (*Index, error) {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	size, overlap, batch := b.ChunkSize, b.Overlap, b.BatchSize
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 5
	}
	if batch <= 0 {
		batch = 32
	}

	var chunks []Chunk
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !supportedExt[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		text, err := readDocument(path)
		if err != nil {
			logger.Warn("skipping unreadable document", "path", path, "error", err)
			return nil
		}
		rel, _ := filepath.Rel(dir, path)
		for i, part := range Split(text, size, overlap) {
			chunks = append(chunks, Chunk{ID: fmt.Sprintf("%s#%d", rel, i), Source: rel, Text: part})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk documents: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no documents under %s: %w", dir, ErrEmpty)
	}
	logger.Info("embedding chunks", "chunks", len(chunks), "dir", dir)

	for start := 0; start < len(chunks); start += batch {
		end := min(start+batch, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}
		vectors, err := b.Embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
		}
		for i, v := range vectors {
			chunks[start+i].Vector = v
		}
	}

	return &Index{
		Model:   b.Model,
		Dim:     len(chunks[0].Vector),
		BuiltAt: time.Now().UTC(),
		Chunks:  chunks,
	}, nil
}

func readDocument(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
		if err != nil {
			return "", fmt.Errorf("parse html: %w", err)
		}
		doc.Find("script, style, nav, footer").Remove()
		return strings.Join(strings.Fields(doc.Find("body").Text()), " "), nil
	default:
		return string(raw), nil
	}
}

// Split cuts text into chunks of at most size runes, preferring paragraph
// and sentence boundaries, with overlap runes repeated between neighbours.
func Split(text string, size, overlap int) []string {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 5
	}
	r := []rune(strings.TrimSpace(text))
	if len(r) == 0 {
		return nil
	}
	if len(r) <= size {
		return []string{string(r)}
	}

	var out []string
	for start := 0; start < len(r); {
		end := min(start+size, len(r))
		if end < len(r) {
			end = breakPoint(r, start, end)
		}
		if part := strings.TrimSpace(string(r[start:end])); part != "" {
			out = append(out, part)
		}
		if end == len(r) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// breakPoint moves end back to the last paragraph or sentence boundary in
// the second half of the window.
func breakPoint(r []rune, start, end int) int {
	floor := start + (end-start)/2
	for i := end - 1; i > floor; i-- {
		if r[i] == '\n' && r[i-1] == '\n' {
			return i + 1
		}
	}
	for i := end - 1; i > floor; i-- {
		if (r[i-1] == '.' || r[i-1] == '!' || r[i-1] == '?') && r[i] == ' ' {
			return i + 1
		}
	}
	return end
}
