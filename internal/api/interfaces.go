package api

import (
	"context"

	"docqa/internal/models"
)

// The handlers are the consumer of the services, so the service interfaces live
// here and only declare what the handlers call.

// DocumentService is what handlers need for documents and ingestion.
type DocumentService interface {
	Upload(ctx context.Context, upload models.Upload) (*models.Document, error)
	Create(ctx context.Context, ownerID string, req models.DocumentCreate) (*models.Document, error)
	Get(ctx context.Context, id string) (*models.Document, error)
	List(ctx context.Context, q models.DocumentQuery) ([]*models.Document, models.Pagination, error)
	Update(ctx context.Context, id string, update models.DocumentUpdate) (*models.Document, error)
	Delete(ctx context.Context, id string) error
	Ingest(ctx context.Context, id string) error
	IngestionStatus(ctx context.Context, id string) (*models.IngestionStatus, error)
	ListJobs(ctx context.Context, limit int) ([]*models.IngestionJob, error)
	Stats(ctx context.Context) (*models.Stats, error)
}

// QAService is what handlers need for questions and history.
type QAService interface {
	Ask(ctx context.Context, userID, question string, documentIDs []string) (*models.QASession, error)
	History(ctx context.Context, userID string, page, limit int) ([]*models.QASession, models.Pagination, error)
	Session(ctx context.Context, id string) (*models.QASession, error)
}
