package services

import (
	"context"
	"fmt"
	"testing"

	"docqa/internal/models"
	"docqa/internal/repository/memory"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetriever_RanksBySimilarity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	france := h.ingest(t, "France", "Paris is the capital of France.")
	h.ingest(t, "Cooking", "Boil pasta in salted water for nine minutes.")

	ranked, err := h.retriever.FindRelevantChunks(ctx, "What is the capital of France?", nil, 5)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, france.ID, ranked[0].Chunk.DocumentID)
	assert.Equal(t, "France", ranked[0].DocumentTitle)
	assert.Greater(t, ranked[0].Similarity, ranked[1].Similarity)
}

func TestRetriever_TopKBound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		h.ingest(t, fmt.Sprintf("doc %d", i), fmt.Sprintf("fact number %d about rivers", i))
	}

	for _, k := range []int{1, 3, 4, 10} {
		ranked, err := h.retriever.FindRelevantChunks(ctx, "rivers", nil, k)
		require.NoError(t, err)
		assert.Len(t, ranked, min(k, 4), "topK=%d", k)
	}

	ranked, err := h.retriever.FindRelevantChunks(ctx, "rivers", nil, 0)
	require.NoError(t, err)
	assert.Len(t, ranked, 4)
}

func TestRetriever_DeterministicWithTies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	var ids []string
	for i := 0; i < 6; i++ {
		doc := h.ingest(t, fmt.Sprintf("copy %d", i), "identical text in every document")
		ids = append(ids, doc.ID)
	}

	first, err := h.retriever.FindRelevantChunks(ctx, "identical text", nil, 6)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := h.retriever.FindRelevantChunks(ctx, "identical text", nil, 6)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	// Equal scores keep document creation order.
	for i, item := range first {
		assert.Equal(t, ids[i], item.Chunk.DocumentID)
	}
}

func TestRetriever_FiltersAndSkipsIneligible(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.ingest(t, "A", "alpha document about rivers")
	h.ingest(t, "B", "beta document about rivers")
	h.addDocument(t, "pending", "pending document about rivers")

	ranked, err := h.retriever.FindRelevantChunks(ctx, "rivers", []string{a.ID}, 5)
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, a.ID, ranked[0].Chunk.DocumentID)

	ranked, err = h.retriever.FindRelevantChunks(ctx, "rivers", nil, 5)
	require.NoError(t, err)
	assert.Len(t, ranked, 2)
}

func TestRetriever_SkipsChunksWithoutEmbedding(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	doc := h.addDocument(t, "mixed", "ignored")
	chunks := []models.Chunk{
		{ID: models.ChunkID(doc.ID, 0), DocumentID: doc.ID, ChunkIndex: 0, Content: "no vector"},
		{ID: models.ChunkID(doc.ID, 1), DocumentID: doc.ID, ChunkIndex: 1, Content: "rivers",
			Embedding: pgvector.NewVector(h.embedder.vector("rivers"))},
	}
	require.NoError(t, h.docs.ReplaceChunks(ctx, doc.ID, chunks, nil, false))

	ranked, err := h.retriever.FindRelevantChunks(ctx, "rivers", nil, 5)
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, "rivers", ranked[0].Chunk.Content)
	assert.InDelta(t, 1.0, ranked[0].Similarity, 1e-6)
}

func TestRetriever_NoCandidates(t *testing.T) {
	h := newHarness(t)

	ranked, err := h.retriever.FindRelevantChunks(context.Background(), "anything", nil, 5)
	require.NoError(t, err)
	assert.NotNil(t, ranked)
	assert.Empty(t, ranked)
}

func TestRetriever_StoreErrorPropagates(t *testing.T) {
	docs := failingDocs{DocumentRepository: memory.NewDocumentRepository()}
	r := NewRetriever(docs, &wordEmbedder{}, 5)

	_, err := r.FindRelevantChunks(context.Background(), "anything", nil, 5)
	assert.ErrorIs(t, err, errStoreDown)
}

func TestRetriever_ReportsDegradedQuestion(t *testing.T) {
	h := newHarness(t)
	h.embedder.degraded = true

	result, err := h.retriever.Retrieve(context.Background(), "anything", nil, 5)
	require.NoError(t, err)
	assert.True(t, result.QuestionDegraded)
}
