package retriever

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"strings"

	"github.com/finquery/dispatcher/internal/config"
	"github.com/finquery/dispatcher/internal/domain"
	"github.com/finquery/dispatcher/internal/observability"
)

const (
	collectionVectorSize = 1536
	sectionSoftCeiling   = 1000
	windowChunkSize      = 500
	minChunkChars        = 20
)

// Retriever implements domain.Retriever over a Qdrant collection with
// OpenAI-compatible embeddings. If either dependency is unreachable at
// construction time, it falls back to a permanently-unavailable state:
// retrieve returns no chunks, count reports zero, and the pipeline continues
// with no pre-context rather than failing the caller's request.
type Retriever struct {
	qdrant     *qdrantClient
	embedder   *embedder
	collection string
	available  bool
}

// New constructs a Retriever and probes Qdrant and the embeddings endpoint
// once at startup.
func New(ctx context.Context, cfg config.Config) *Retriever {
	r := &Retriever{
		qdrant:     newQdrantClient(cfg.QdrantURL, cfg.QdrantAPIKey),
		embedder:   newEmbedder(cfg.RouterLLMBaseURL, cfg.RouterLLMAPIKey, cfg.EmbeddingsModel),
		collection: cfg.QdrantCollecton,
	}
	if err := r.qdrant.ping(ctx); err != nil {
		slog.Warn("retriever unavailable at startup, RAG context will be empty", slog.Any("error", err))
		return r
	}
	if err := r.qdrant.ensureCollection(ctx, r.collection, collectionVectorSize); err != nil {
		slog.Warn("retriever could not ensure collection, RAG context will be empty", slog.Any("error", err))
		return r
	}
	if _, err := r.embedder.embed(ctx, []string{"ping"}); err != nil {
		slog.Warn("retriever embeddings unavailable at startup, RAG context will be empty", slog.Any("error", err))
		return r
	}
	r.available = true
	return r
}

// Retrieve returns the top-k nearest chunks for query, ordered by ascending
// distance. It returns an empty slice (never an error) on any fault.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievedChunk, error) {
	if !r.available {
		observability.RecordRetrieverOp("retrieve", "unavailable")
		return nil, nil
	}
	vectors, err := r.embedder.embed(ctx, []string{query})
	if err != nil || len(vectors) == 0 {
		slog.Warn("retriever embed failed, returning empty context", slog.Any("error", err))
		observability.RecordRetrieverOp("retrieve", "degraded")
		return nil, nil
	}
	hits, err := r.qdrant.search(ctx, r.collection, vectors[0], k)
	if err != nil {
		slog.Warn("retriever search failed, returning empty context", slog.Any("error", err))
		observability.RecordRetrieverOp("retrieve", "degraded")
		return nil, nil
	}

	chunks := make([]domain.RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		text, _ := h.Payload["text"].(string)
		source, _ := h.Payload["source"].(string)
		distance := 1.0 - h.Score
		if distance < 0 {
			distance = 0
		} else if distance > 1 {
			distance = 1
		}
		chunks = append(chunks, domain.RetrievedChunk{
			Text:     text,
			Source:   source,
			Distance: distance,
		})
	}
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Distance < chunks[j].Distance })
	observability.RecordRetrieverOp("retrieve", "success")
	return chunks, nil
}

// AddTexts ingests texts idempotently: each point's id is derived from a
// content hash, so re-ingesting unchanged text is a no-op upsert.
func (r *Retriever) AddTexts(ctx context.Context, texts []string, metadatas []map[string]string) error {
	if !r.available || len(texts) == 0 {
		observability.RecordRetrieverOp("add_texts", "unavailable")
		return nil
	}
	vectors, err := r.embedder.embed(ctx, texts)
	if err != nil {
		slog.Warn("retriever add_texts embed failed", slog.Any("error", err))
		observability.RecordRetrieverOp("add_texts", "degraded")
		return nil
	}

	ids := make([]string, len(texts))
	payloads := make([]map[string]any, len(texts))
	for i, text := range texts {
		sum := sha256.Sum256([]byte(text))
		ids[i] = hex.EncodeToString(sum[:])[:16]
		source := ""
		if i < len(metadatas) {
			source = metadatas[i]["source"]
		}
		payloads[i] = map[string]any{"text": text, "source": source}
	}

	if err := r.qdrant.upsertPoints(ctx, r.collection, ids, vectors, payloads); err != nil {
		slog.Warn("retriever add_texts upsert failed", slog.Any("error", err))
		observability.RecordRetrieverOp("add_texts", "degraded")
		return nil
	}
	observability.RecordRetrieverOp("add_texts", "success")
	return nil
}

// Count returns the indexed chunk count, or zero when unavailable.
func (r *Retriever) Count(ctx context.Context) (int, error) {
	if !r.available {
		return 0, nil
	}
	n, err := r.qdrant.count(ctx, r.collection)
	if err != nil {
		observability.RecordRetrieverOp("count", "degraded")
		return 0, nil
	}
	observability.RecordRetrieverOp("count", "success")
	return n, nil
}

// splitSections splits markdown on newlines that start a "## " heading,
// keeping each heading together with the body that follows it. Go's RE2
// engine has no lookahead, so the split is done by scanning lines directly
// rather than with a lookahead regexp (the original's `\n(?=## )` pattern).
func splitSections(text string) []string {
	lines := strings.Split(text, "\n")
	var sections []string
	var current []string
	for _, line := range lines {
		if strings.HasPrefix(line, "## ") && len(current) > 0 {
			sections = append(sections, strings.Join(current, "\n"))
			current = nil
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		sections = append(sections, strings.Join(current, "\n"))
	}
	return sections
}

// ChunkText splits markdown into section-boundary chunks up to a soft
// ceiling; sections exceeding the ceiling are split into fixed-size windows
// with 20% overlap. Chunks shorter than minChunkChars are discarded.
func ChunkText(text string) []string {
	sections := splitSections(strings.TrimSpace(text))
	var chunks []string
	for _, section := range sections {
		section = strings.TrimSpace(section)
		if section == "" {
			continue
		}
		if len(section) <= sectionSoftCeiling {
			chunks = append(chunks, section)
			continue
		}
		chunks = append(chunks, windowChunk(section, windowChunkSize)...)
	}

	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if len(c) >= minChunkChars {
			out = append(out, c)
		}
	}
	return out
}

func windowChunk(text string, size int) []string {
	overlap := size / 5
	var chunks []string
	for start := 0; start < len(text); start += size - overlap {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, strings.TrimSpace(text[start:end]))
		if end == len(text) {
			break
		}
	}
	return chunks
}

var _ domain.Retriever = (*Retriever)(nil)
