package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"docqa/internal/apperr"
	"docqa/internal/models"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// listColumns leaves out content and embeddings, which listings never show.
var listColumns = []string{
	"id", "title", "filename", "file_type", "file_size", "owner_id", "status",
	"embedding_degraded", "metadata", "created_at", "updated_at",
}

// DocumentRepositoryImpl handles all database operations for documents and their chunks using GORM
// Returns concrete type - the services package declares the interface it needs.
type DocumentRepositoryImpl struct {
	db *gorm.DB
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *gorm.DB) *DocumentRepositoryImpl {
	return &DocumentRepositoryImpl{db: db}
}

// Create inserts a new document. The KSUID is generated in the BeforeCreate hook.
func (r *DocumentRepositoryImpl) Create(ctx context.Context, doc *models.Document) error {
	if doc.Status == "" {
		doc.Status = models.StatusPending
	}
	if err := r.db.WithContext(ctx).Omit("Chunks").Create(doc).Error; err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// GetByID retrieves a document without its chunks.
// Soft-deleted documents are automatically excluded.
func (r *DocumentRepositoryImpl) GetByID(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document

	err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("document", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	return &doc, nil
}

// List returns one page of documents matching q. Ties in the sort column are
// broken newest first.
func (r *DocumentRepositoryImpl) List(ctx context.Context, q models.DocumentQuery) ([]*models.Document, int64, error) {
	page, limit := models.NormalizePage(q.Page, q.Limit, 10)

	query := r.db.WithContext(ctx).Model(&models.Document{})
	if q.OwnerID != "" {
		query = query.Where("owner_id = ?", q.OwnerID)
	}
	if q.Status != "" {
		query = query.Where("status = ?", q.Status)
	}
	if q.Search != "" {
		pattern := "%" + likeEscaper.Replace(q.Search) + "%"
		query = query.Where("(title ILIKE ? OR filename ILIKE ?)", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count documents: %w", err)
	}

	var documents []*models.Document
	err := query.
		Select(listColumns).
		Order(documentOrder(q.SortOrDefault(), q.Ascending)).
		Limit(limit).
		Offset(models.Offset(page, limit)).
		Find(&documents).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}

	return documents, total, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// documentOrder sorts by the chosen column, then by creation. Sorting by
// created_at alone follows the requested direction all the way down.
func documentOrder(sort models.DocumentSort, ascending bool) clause.OrderBy {
	tieDesc := true
	var columns []clause.OrderByColumn
	if sort == models.SortCreatedAt {
		tieDesc = !ascending
	} else {
		columns = append(columns, clause.OrderByColumn{Column: clause.Column{Name: string(sort)}, Desc: !ascending})
	}
	columns = append(columns,
		clause.OrderByColumn{Column: clause.Column{Name: "created_at"}, Desc: tieDesc},
		clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: tieDesc},
	)
	return clause.OrderBy{Columns: columns}
}

// Update applies a partial edit. A content change resets the status to pending
// so the document gets ingested again.
func (r *DocumentRepositoryImpl) Update(ctx context.Context, id string, update *models.DocumentUpdate) (*models.Document, error) {
	doc, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *doc
	if update.Title != nil {
		next = next.WithTitle(*update.Title)
	}
	if update.Content != nil {
		next = next.WithContent(*update.Content)
	}

	// Build update map to handle nil pointers correctly
	updates := make(map[string]interface{})
	if next.Title != doc.Title {
		updates["title"] = next.Title
	}
	if next.Content != doc.Content {
		updates["content"] = next.Content
		updates["status"] = next.Status
	}
	if update.Metadata != nil {
		updates["metadata"] = datatypes.JSONMap(update.Metadata)
	}
	if len(updates) == 0 {
		return doc, nil
	}

	if err := r.db.WithContext(ctx).Model(doc).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update document: %w", err)
	}

	return r.GetByID(ctx, id)
}

// UpdateStatus sets the ingestion status of a document.
func (r *DocumentRepositoryImpl) UpdateStatus(ctx context.Context, id string, status models.Status) error {
	result := r.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update document status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("document", id)
	}
	return nil
}

// ReplaceChunks swaps the chunk set and document embedding in one transaction and
// marks the document completed. Readers see either the old set or the new one.
func (r *DocumentRepositoryImpl) ReplaceChunks(ctx context.Context, id string, chunks []models.Chunk, embedding []float32, degraded bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":             models.StatusCompleted,
			"embedding_degraded": degraded,
			"embedding":          nil,
		}
		if len(embedding) > 0 {
			updates["embedding"] = pgvector.NewVector(embedding)
		}

		// The soft-delete scope makes this a no-op for a document deleted mid-ingestion.
		result := tx.Model(&models.Document{}).Where("id = ?", id).Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("failed to update document: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperr.NotFound("document", id)
		}

		if err := tx.Where("document_id = ?", id).Delete(&models.Chunk{}).Error; err != nil {
			return fmt.Errorf("failed to delete old chunks: %w", err)
		}
		if len(chunks) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(chunks, 100).Error; err != nil {
			return fmt.Errorf("failed to store chunks: %w", err)
		}
		return nil
	})
}

// Delete performs a soft delete on the document and removes its chunks.
func (r *DocumentRepositoryImpl) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&models.Document{}, "id = ?", id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete document: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperr.NotFound("document", id)
		}
		if err := tx.Where("document_id = ?", id).Delete(&models.Chunk{}).Error; err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}
		return nil
	})
}

// FindByStatus returns documents in the given ingestion status, without content.
func (r *DocumentRepositoryImpl) FindByStatus(ctx context.Context, status models.Status) ([]*models.Document, error) {
	var documents []*models.Document

	err := r.db.WithContext(ctx).
		Select(listColumns).
		Where("status = ?", status).
		Order("created_at, id").
		Find(&documents).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find documents by status: %w", err)
	}

	return documents, nil
}

// FindCompleted loads completed documents with their chunks in index order.
// The scan is linear; there is no vector index behind it.
func (r *DocumentRepositoryImpl) FindCompleted(ctx context.Context, ids []string) ([]*models.Document, error) {
	query := r.db.WithContext(ctx).
		Preload("Chunks", func(db *gorm.DB) *gorm.DB {
			return db.Order("chunk_index")
		}).
		Where("status = ?", models.StatusCompleted)
	if len(ids) > 0 {
		query = query.Where("id IN ?", ids)
	}

	var documents []*models.Document
	if err := query.Order("created_at, id").Find(&documents).Error; err != nil {
		return nil, fmt.Errorf("failed to load completed documents: %w", err)
	}

	return documents, nil
}

// CountByStatus returns the number of documents per ingestion status.
func (r *DocumentRepositoryImpl) CountByStatus(ctx context.Context) (map[models.Status]int64, error) {
	var rows []struct {
		Status models.Status
		Count  int64
	}

	err := r.db.WithContext(ctx).
		Model(&models.Document{}).
		Select("status, count(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	counts := make(map[models.Status]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
