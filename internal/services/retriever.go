package services

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"docqa/internal/middleware"
	"docqa/internal/models"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// DefaultTopK is the number of chunks retrieved when the caller does not say.
const DefaultTopK = 5

// Retrieval is the outcome of ranking chunks against a question.
type Retrieval struct {
	Chunks []models.RankedChunk
	// QuestionDegraded is set when the question was embedded with the fallback vector.
	QuestionDegraded bool
}

// Retriever ranks stored chunks by cosine similarity to a question.
// Ranking is a linear scan over every chunk of every completed document.
type Retriever struct {
	docs     DocumentRepository
	embedder Embedder
	topK     int
}

// NewRetriever creates a retriever. topK <= 0 uses DefaultTopK.
func NewRetriever(docs DocumentRepository, embedder Embedder, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{docs: docs, embedder: embedder, topK: topK}
}

// FindRelevantChunks returns at most topK chunks, most similar first.
func (r *Retriever) FindRelevantChunks(ctx context.Context, question string, documentIDs []string, topK int) ([]models.RankedChunk, error) {
	result, err := r.Retrieve(ctx, question, documentIDs, topK)
	if err != nil {
		return nil, err
	}
	return result.Chunks, nil
}

// Retrieve embeds the question and ranks the chunks of completed documents,
// restricted to documentIDs when it is non-empty. Ties keep the order in which
// chunks were encountered, so the ranking is deterministic.
func (r *Retriever) Retrieve(ctx context.Context, question string, documentIDs []string, topK int) (*Retrieval, error) {
	if topK <= 0 {
		topK = r.topK
	}

	ctx, span := middleware.StartSpan(ctx, "Retriever.Retrieve",
		attribute.Int("top_k", topK),
		attribute.Int("document_filter", len(documentIDs)),
	)
	defer span.End()

	questionEmbedding, err := r.embedder.Embed(ctx, question)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	docs, err := r.docs.FindCompleted(ctx, documentIDs)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return nil, fmt.Errorf("failed to load candidate documents: %w", err)
	}

	// Each document is scored in its own goroutine into its own slot; flattening
	// the slots in document order restores encounter order.
	scored := make([][]models.RankedChunk, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, doc := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scored[i] = r.score(questionEmbedding.Vector, doc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var ranked []models.RankedChunk
	for _, chunks := range scored {
		ranked = append(ranked, chunks...)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Similarity > ranked[j].Similarity
	})
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	if ranked == nil {
		ranked = []models.RankedChunk{}
	}

	middleware.AddSpanEvent(ctx, "chunks_ranked",
		attribute.Int("documents", len(docs)),
		attribute.Int("returned", len(ranked)),
	)

	return &Retrieval{Chunks: ranked, QuestionDegraded: questionEmbedding.Degraded}, nil
}

func (r *Retriever) score(question []float32, doc *models.Document) []models.RankedChunk {
	out := make([]models.RankedChunk, 0, len(doc.Chunks))
	for _, chunk := range doc.Chunks {
		vector := chunk.Vector()
		if len(vector) == 0 {
			continue
		}
		out = append(out, models.RankedChunk{
			Chunk:         chunk,
			Similarity:    r.embedder.Similarity(question, vector),
			DocumentTitle: doc.Title,
		})
	}
	return out
}
