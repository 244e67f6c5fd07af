package index

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type keywordEmbedder struct {
	calls int
}

// Embed maps each text to counts of three marker words.
func (k *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	k.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		t = strings.ToLower(t)
		out[i] = []float32{
			float32(strings.Count(t, "sleep")),
			float32(strings.Count(t, "anxiety")),
			float32(strings.Count(t, "focus")) + 0.01,
		}
	}
	return out, nil
}

func TestCosineSimilarity(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Errorf("identical vectors: got %f", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("orthogonal vectors: got %f", got)
	}
	if got := CosineSimilarity([]float32{1}, []float32{1, 2}); got != 0 {
		t.Errorf("mismatched lengths: got %f", got)
	}
}

func TestSplitRespectsSizeAndOverlap(t *testing.T) {
	text := strings.Repeat("Breathing helps. ", 40)
	parts := Split(text, 100, 20)
	if len(parts) < 2 {
		t.Fatalf("expected several chunks, got %d", len(parts))
	}
	for _, p := range parts {
		if n := len([]rune(p)); n > 100 {
			t.Errorf("chunk of %d runes exceeds size", n)
		}
	}
	if Split("   ", 100, 10) != nil {
		t.Error("blank text should yield no chunks")
	}
	if got := Split("short", 100, 10); len(got) != 1 || got[0] != "short" {
		t.Errorf("short text: got %v", got)
	}
}

func TestSplitNormalizesSize(t *testing.T) {
	text := strings.Repeat("Slow breathing calms the body. ", 100)
	for _, tc := range []struct{ size, overlap int }{{0, 0}, {-5, 10}, {50, 50}, {50, -1}} {
		parts := Split(text, tc.size, tc.overlap)
		if len(parts) == 0 {
			t.Errorf("size=%d overlap=%d: expected chunks", tc.size, tc.overlap)
		}
		for _, p := range parts {
			limit := tc.size
			if limit <= 0 {
				limit = defaultChunkSize
			}
			if n := len([]rune(p)); n > limit {
				t.Errorf("size=%d overlap=%d: chunk of %d runes", tc.size, tc.overlap, n)
			}
		}
	}
}

func TestBuildSearchAndPersist(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"sleep.md":     "Good sleep hygiene: keep a regular sleep schedule and avoid screens before sleep.",
		"anxiety.txt":  "Grounding for anxiety: name five things you can see. Anxiety passes.",
		"focus.html":   "<html><body><script>var sleep=1</script><p>Pomodoro blocks build focus.</p></body></html>",
		"ignored.json": `{"sleep": "sleep sleep"}`,
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}

	emb := &keywordEmbedder{}
	b := &Builder{Embedder: emb, Model: "test", ChunkSize: 500, BatchSize: 2}
	ix, err := b.Build(context.Background(), dir)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(ix.Chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(ix.Chunks))
	}
	if emb.calls != 2 {
		t.Errorf("expected 2 embedding batches, got %d", emb.calls)
	}
	for _, c := range ix.Chunks {
		if c.Source == "focus.html" && strings.Contains(c.Text, "var sleep") {
			t.Error("script content should be stripped from html")
		}
	}

	path := filepath.Join(t.TempDir(), "idx", "index.json")
	if err := ix.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	q, _ := emb.Embed(context.Background(), []string{"how do I sleep better"})
	hits, err := loaded.Search(q[0], 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Source != "sleep.md" {
		t.Errorf("expected sleep.md first, got %+v", hits)
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	_, err := (&Index{}).Search([]float32{1}, 3)
	if !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

func TestBuildEmptyDirectory(t *testing.T) {
	_, err := (&Builder{Embedder: &keywordEmbedder{}}).Build(context.Background(), t.TempDir())
	if !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}
