package models

import (
	"math"
	"testing"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
)

func TestDocument_WithContent(t *testing.T) {
	doc := Document{Title: "t", Content: "old", Status: StatusCompleted}

	same := doc.WithContent("old")
	assert.Equal(t, StatusCompleted, same.Status)

	changed := doc.WithContent("new")
	assert.Equal(t, "new", changed.Content)
	assert.Equal(t, StatusPending, changed.Status)
	assert.Equal(t, "old", doc.Content, "original is not modified")
}

func TestDocument_WithStatusAndTitle(t *testing.T) {
	doc := Document{Title: "a", Status: StatusPending}

	assert.Equal(t, StatusFailed, doc.WithStatus(StatusFailed).Status)
	assert.Equal(t, "b", doc.WithTitle("b").Title)
	assert.Equal(t, StatusPending, doc.Status)
	assert.Equal(t, "a", doc.Title)
}

func TestDocument_EmbeddingVector(t *testing.T) {
	assert.Nil(t, Document{}.EmbeddingVector())

	v := pgvector.NewVector([]float32{1, 2})
	assert.Equal(t, []float32{1, 2}, Document{Embedding: &v}.EmbeddingVector())
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestIngestionStatus_Done(t *testing.T) {
	tests := []struct {
		name   string
		status IngestionStatus
		want   bool
	}{
		{"never ingested", IngestionStatus{DocumentStatus: StatusPending}, true},
		{"job running", IngestionStatus{DocumentStatus: StatusProcessing, Job: &IngestionJob{Status: StatusProcessing}}, false},
		{"document finished before job", IngestionStatus{DocumentStatus: StatusCompleted, Job: &IngestionJob{Status: StatusProcessing}}, false},
		{"completed", IngestionStatus{DocumentStatus: StatusCompleted, Job: &IngestionJob{Status: StatusCompleted}}, true},
		{"failed", IngestionStatus{DocumentStatus: StatusFailed, Job: &IngestionJob{Status: StatusFailed}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.Done())
		})
	}
}

func TestChunkID(t *testing.T) {
	assert.Equal(t, "doc1_chunk_0", ChunkID("doc1", 0))
	assert.Equal(t, "doc1_chunk_12", ChunkID("doc1", 12))
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		page, limit         int
		wantPage, wantLimit int
	}{
		{0, 0, 1, 10},
		{-3, 5, 1, 5},
		{2, 500, 2, 100},
		{4, 25, 4, 25},
		{math.MaxInt, 2, MaxPage(2), 2},
	}
	for _, tt := range tests {
		page, limit := NormalizePage(tt.page, tt.limit, 10)
		assert.Equal(t, tt.wantPage, page)
		assert.Equal(t, tt.wantLimit, limit)
	}
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 10, 25)
	assert.Equal(t, Pagination{Page: 2, Limit: 10, Total: 25, Pages: 3}, p)

	empty := NewPagination(1, 10, 0)
	assert.Zero(t, empty.Pages)

	assert.Equal(t, 20, NewPagination(0, 0, 1).Limit)
	assert.Equal(t, 10, Offset(2, 10))
}

func TestOffset_HugePageDoesNotOverflow(t *testing.T) {
	for _, limit := range []int{1, 2, 10, 100} {
		for _, page := range []int{4611686018427387905, math.MaxInt, math.MinInt} {
			off := Offset(page, limit)
			assert.GreaterOrEqual(t, off, 0, "page=%d limit=%d", page, limit)
			assert.GreaterOrEqual(t, math.MaxInt-off, limit, "page=%d limit=%d", page, limit)
		}
	}

	page, limit := NormalizePage(4611686018427387905, 2, 10)
	assert.Equal(t, 2, limit)
	assert.GreaterOrEqual(t, Offset(page, limit), 0)
}
