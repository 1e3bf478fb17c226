package services

import (
	"context"
	"time"

	"docqa/internal/embedding"
	"docqa/internal/models"
	"docqa/internal/openai"
)

// Interfaces live with the consumer. Only methods the services call are declared.

// DocumentRepository is what the services need from document storage.
type DocumentRepository interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id string) (*models.Document, error)
	List(ctx context.Context, q models.DocumentQuery) ([]*models.Document, int64, error)
	Update(ctx context.Context, id string, update *models.DocumentUpdate) (*models.Document, error)
	UpdateStatus(ctx context.Context, id string, status models.Status) error
	// ReplaceChunks swaps in a new chunk set and document embedding and marks the
	// document completed, all at once. It fails with a not-found error if the
	// document was deleted.
	ReplaceChunks(ctx context.Context, id string, chunks []models.Chunk, embedding []float32, degraded bool) error
	Delete(ctx context.Context, id string) error
	FindByStatus(ctx context.Context, status models.Status) ([]*models.Document, error)
	// FindCompleted returns completed documents with their chunks, in creation
	// order, restricted to ids when ids is non-empty.
	FindCompleted(ctx context.Context, ids []string) ([]*models.Document, error)
	CountByStatus(ctx context.Context) (map[models.Status]int64, error)
}

// JobRepository is what the services need from ingestion job storage.
// Update methods never modify a job that is already completed or failed.
type JobRepository interface {
	Create(ctx context.Context, job *models.IngestionJob) error
	UpdateProgress(ctx context.Context, id string, progress int) error
	Complete(ctx context.Context, id string, completedAt time.Time) error
	Fail(ctx context.Context, id string, message string, completedAt time.Time) error
	LatestForDocument(ctx context.Context, documentID string) (*models.IngestionJob, error)
	ListByStatus(ctx context.Context, status models.Status) ([]*models.IngestionJob, error)
	List(ctx context.Context, limit int) ([]*models.IngestionJob, error)
}

// QASessionRepository is what the services need from Q&A history storage.
type QASessionRepository interface {
	Create(ctx context.Context, session *models.QASession) error
	GetByID(ctx context.Context, id string) (*models.QASession, error)
	ListByUser(ctx context.Context, userID string, page, limit int) ([]*models.QASession, int64, error)
	Recent(ctx context.Context, limit int) ([]*models.QASession, error)
	Count(ctx context.Context) (int64, error)
}

// Embedder maps text to vectors and compares them.
type Embedder interface {
	Embed(ctx context.Context, text string) (embedding.Embedding, error)
	EmbedBatch(ctx context.Context, texts []string) ([]embedding.Embedding, error)
	Similarity(a, b []float32) float64
}

// Generator produces chat completions.
type Generator interface {
	ChatCompletion(ctx context.Context, messages []openai.ChatMessage, opts ...openai.ChatOption) (string, error)
}

// IngestionSubmitter starts ingestion without waiting for it.
type IngestionSubmitter interface {
	Submit(documentID string) error
	Cancel(documentID string)
	QueueLength() int
}

// IngestionRunner performs one ingestion run for a document.
type IngestionRunner interface {
	Run(ctx context.Context, documentID string)
}

// IngestionStatusReader reports the progress of a document's ingestion.
type IngestionStatusReader interface {
	Status(ctx context.Context, documentID string) (*models.IngestionStatus, error)
}
