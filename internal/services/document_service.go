package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"docqa/internal/apperr"
	"docqa/internal/extract"
	"docqa/internal/middleware"
	"docqa/internal/models"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// recentItems is how many documents and sessions the dashboard shows.
const recentItems = 5

// DocumentService is the caller-facing side of documents and their ingestion.
type DocumentService struct {
	docs      DocumentRepository
	jobs      JobRepository
	sessions  QASessionRepository
	ingestion IngestionSubmitter
	status    IngestionStatusReader
	logger    *zap.Logger
}

// NewDocumentService creates a new document service
func NewDocumentService(
	docs DocumentRepository,
	jobs JobRepository,
	sessions QASessionRepository,
	ingestion IngestionSubmitter,
	status IngestionStatusReader,
	logger *zap.Logger,
) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{
		docs:      docs,
		jobs:      jobs,
		sessions:  sessions,
		ingestion: ingestion,
		status:    status,
		logger:    logger.Named("documents"),
	}
}

// Upload extracts text from a file, stores it as a pending document and queues
// ingestion. It returns before ingestion finishes.
func (s *DocumentService) Upload(ctx context.Context, upload models.Upload) (*models.Document, error) {
	ctx, span := middleware.StartSpan(ctx, "Documents.Upload",
		attribute.String("file.name", upload.Filename),
		attribute.Int("file.size", len(upload.Data)),
	)
	defer span.End()

	if upload.Filename == "" {
		return nil, apperr.Validation("file is required")
	}
	if len(upload.Data) == 0 {
		return nil, apperr.Validation("file %s is empty", upload.Filename)
	}
	if len(upload.Data) > extract.MaxFileSize {
		return nil, apperr.Validation("file %s exceeds the %d byte limit", upload.Filename, extract.MaxFileSize)
	}

	fileType := upload.FileType
	if fileType == "" || fileType == "application/octet-stream" {
		fileType = extract.TypeByFilename(upload.Filename)
	}
	kind := extract.KindOf(fileType)
	if !kind.Supported() {
		return nil, apperr.Validation("unsupported file type %q, supported types: %s",
			fileType, strings.Join(extract.SupportedMIMETypes(), ", "))
	}

	content, err := extract.Text(kind, upload.Data, upload.Filename)
	if err != nil {
		return nil, apperr.Validation("could not read %s: %v", upload.Filename, err)
	}

	title := strings.TrimSpace(upload.Title)
	if title == "" {
		title = strings.TrimSuffix(upload.Filename, filepath.Ext(upload.Filename))
	}

	doc := &models.Document{
		Title:    title,
		Content:  content,
		Filename: upload.Filename,
		FileType: fileType,
		FileSize: int64(len(upload.Data)),
		OwnerID:  upload.OwnerID,
		Status:   models.StatusPending,
		Metadata: datatypes.JSONMap{"kind": kind.String()},
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		middleware.AddSpanError(ctx, err)
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	s.submit(ctx, doc.ID)
	return doc, nil
}

// Create stores already-extracted text as a pending document and queues ingestion.
func (s *DocumentService) Create(ctx context.Context, ownerID string, req models.DocumentCreate) (*models.Document, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, apperr.Validation("title is required")
	}
	if len(req.Content) > extract.MaxFileSize {
		return nil, apperr.Validation("content exceeds the %d byte limit", extract.MaxFileSize)
	}

	fileType := req.FileType
	if fileType == "" {
		fileType = "text/plain"
	}
	filename := req.Filename
	if filename == "" {
		filename = title + ".txt"
	}

	doc := &models.Document{
		Title:    title,
		Content:  req.Content,
		Filename: filename,
		FileType: fileType,
		FileSize: int64(len(req.Content)),
		OwnerID:  ownerID,
		Status:   models.StatusPending,
	}
	if req.Metadata != nil {
		doc.Metadata = datatypes.JSONMap(req.Metadata)
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	s.submit(ctx, doc.ID)
	return doc, nil
}

// Get returns a document by id.
func (s *DocumentService) Get(ctx context.Context, id string) (*models.Document, error) {
	return s.docs.GetByID(ctx, id)
}

// List returns one page of documents. An empty OwnerID lists every owner.
func (s *DocumentService) List(ctx context.Context, q models.DocumentQuery) ([]*models.Document, models.Pagination, error) {
	sort, ok := models.ParseDocumentSort(string(q.Sort))
	if !ok {
		return nil, models.Pagination{}, apperr.Validation("unknown sort field %q", q.Sort)
	}
	status, ok := models.ParseStatus(string(q.Status))
	if !ok {
		return nil, models.Pagination{}, apperr.Validation("unknown status %q", q.Status)
	}
	q.Sort, q.Status = sort, status
	q.Search = strings.TrimSpace(q.Search)
	q.Page, q.Limit = models.NormalizePage(q.Page, q.Limit, 10)

	docs, total, err := s.docs.List(ctx, q)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	return docs, models.NewPagination(q.Page, q.Limit, total), nil
}

// Update edits a document. Changed content resets it to pending and queues ingestion.
func (s *DocumentService) Update(ctx context.Context, id string, update models.DocumentUpdate) (*models.Document, error) {
	if update.Title != nil && strings.TrimSpace(*update.Title) == "" {
		return nil, apperr.Validation("title cannot be empty")
	}

	before, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	doc, err := s.docs.Update(ctx, id, &update)
	if err != nil {
		return nil, err
	}

	if update.Content != nil && *update.Content != before.Content {
		s.submit(ctx, id)
	}
	return doc, nil
}

// Delete removes a document and stops any ingestion of it.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	if err := s.docs.Delete(ctx, id); err != nil {
		return err
	}
	s.ingestion.Cancel(id)
	s.logger.Info("document deleted", zap.String("document_id", id))
	return nil
}

// Ingest queues ingestion of an existing document.
func (s *DocumentService) Ingest(ctx context.Context, id string) error {
	if _, err := s.docs.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.ingestion.Submit(id); err != nil {
		return fmt.Errorf("failed to queue ingestion: %w", err)
	}
	return nil
}

// IngestionStatus returns the document status and its latest job.
func (s *DocumentService) IngestionStatus(ctx context.Context, id string) (*models.IngestionStatus, error) {
	return s.status.Status(ctx, id)
}

// ListJobs returns the most recent ingestion jobs.
func (s *DocumentService) ListJobs(ctx context.Context, limit int) ([]*models.IngestionJob, error) {
	return s.jobs.List(ctx, limit)
}

// Stats returns the dashboard counters.
func (s *DocumentService) Stats(ctx context.Context) (*models.Stats, error) {
	byStatus, err := s.docs.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	processing, err := s.jobs.ListByStatus(ctx, models.StatusProcessing)
	if err != nil {
		return nil, err
	}

	sessions, err := s.sessions.Count(ctx)
	if err != nil {
		return nil, err
	}

	recentDocs, _, err := s.docs.List(ctx, models.DocumentQuery{Page: 1, Limit: recentItems})
	if err != nil {
		return nil, err
	}

	recentSessions, err := s.sessions.Recent(ctx, recentItems)
	if err != nil {
		return nil, err
	}

	stats := &models.Stats{
		DocumentsByState: byStatus,
		ProcessingJobs:   int64(len(processing)),
		TotalQASessions:  sessions,
		QueuedIngestions: s.ingestion.QueueLength(),
		RecentDocuments:  recentDocs,
		RecentQASessions: recentSessions,
	}
	for _, n := range byStatus {
		stats.TotalDocuments += n
	}
	return stats, nil
}

// submit queues ingestion. A full queue leaves the document pending for a later
// explicit Ingest.
func (s *DocumentService) submit(ctx context.Context, id string) {
	err := s.ingestion.Submit(id)
	if err == nil {
		return
	}
	middleware.AddSpanError(ctx, err)
	if errors.Is(err, apperr.ErrQueueFull) {
		s.logger.Warn("ingestion queue full, document left pending", zap.String("document_id", id))
		return
	}
	s.logger.Error("failed to queue ingestion", zap.String("document_id", id), zap.Error(err))
}
