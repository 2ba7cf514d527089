package retriever

import (
	"context"
	"strings"
	"testing"

	"github.com/finquery/dispatcher/internal/config"
)

func TestChunkText_PrefersSectionBoundaries(t *testing.T) {
	text := "## Intro\nshort intro section.\n\n## Details\nmore details here that are still short."
	chunks := ChunkText(text)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 section chunks, got %d: %+v", len(chunks), chunks)
	}
	if !strings.HasPrefix(chunks[0], "## Intro") {
		t.Errorf("expected first chunk to retain its heading, got %q", chunks[0])
	}
}

func TestChunkText_SplitsOversizedSectionsWithOverlap(t *testing.T) {
	big := "## Big\n" + strings.Repeat("x", 1200)
	chunks := ChunkText(big)
	if len(chunks) < 2 {
		t.Fatalf("expected oversized section to be windowed, got %d chunks", len(chunks))
	}
	for _, c := range chunks {
		if len(c) > windowChunkSize {
			t.Errorf("expected each window chunk to be <= %d chars, got %d", windowChunkSize, len(c))
		}
	}
}

func TestChunkText_DropsShortChunks(t *testing.T) {
	chunks := ChunkText("## H\ntiny")
	if len(chunks) != 0 {
		t.Errorf("expected short chunk to be dropped, got %+v", chunks)
	}
}

func TestRetrieve_UnavailableReturnsEmptyNotError(t *testing.T) {
	r := &Retriever{available: false}
	chunks, err := r.Retrieve(context.Background(), "HY exposure today", 4)
	if err != nil {
		t.Fatalf("expected nil error when unavailable, got %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected no chunks when unavailable, got %+v", chunks)
	}
}

func TestCount_UnavailableReturnsZero(t *testing.T) {
	r := &Retriever{available: false}
	n, err := r.Count(context.Background())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0, got %d", n)
	}
}

func TestAddTexts_UnavailableIsNoOp(t *testing.T) {
	r := &Retriever{available: false}
	if err := r.AddTexts(context.Background(), []string{"text"}, nil); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestNew_UnreachableQdrantDegradesGracefully(t *testing.T) {
	cfg := config.Config{
		QdrantURL:       "http://127.0.0.1:1",
		QdrantCollecton: "dispatcher-docs",
		EmbeddingsModel: "text-embedding-3-small",
	}
	r := New(context.Background(), cfg)
	if r.available {
		t.Fatalf("expected retriever to be unavailable against an unreachable qdrant")
	}
}
