package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docqa/internal/apperr"
	"docqa/internal/models"

	"gorm.io/gorm"
)

var terminalStatuses = []models.Status{models.StatusCompleted, models.StatusFailed}

// JobRepositoryImpl stores ingestion jobs.
// Every update is guarded so a job in a terminal status is never modified.
type JobRepositoryImpl struct {
	db *gorm.DB
}

// NewJobRepository creates a new ingestion job repository
func NewJobRepository(db *gorm.DB) *JobRepositoryImpl {
	return &JobRepositoryImpl{db: db}
}

// Create inserts a job. The KSUID is generated in the BeforeCreate hook.
func (r *JobRepositoryImpl) Create(ctx context.Context, job *models.IngestionJob) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to create ingestion job: %w", err)
	}
	return nil
}

// UpdateProgress raises the job's progress. Lower values are ignored, which keeps
// progress monotonic.
func (r *JobRepositoryImpl) UpdateProgress(ctx context.Context, id string, progress int) error {
	err := r.active(ctx, id).
		Where("progress < ?", progress).
		Update("progress", progress).Error
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

// Complete marks the job completed with progress 100.
func (r *JobRepositoryImpl) Complete(ctx context.Context, id string, completedAt time.Time) error {
	err := r.active(ctx, id).Updates(map[string]interface{}{
		"status":       models.StatusCompleted,
		"progress":     100,
		"completed_at": completedAt,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// Fail marks the job failed with the given message.
func (r *JobRepositoryImpl) Fail(ctx context.Context, id string, message string, completedAt time.Time) error {
	err := r.active(ctx, id).Updates(map[string]interface{}{
		"status":       models.StatusFailed,
		"error":        message,
		"completed_at": completedAt,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}
	return nil
}

// LatestForDocument returns the most recently created job of a document.
func (r *JobRepositoryImpl) LatestForDocument(ctx context.Context, documentID string) (*models.IngestionJob, error) {
	var job models.IngestionJob

	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at DESC, id DESC").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("ingestion job for document", documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest job: %w", err)
	}

	return &job, nil
}

// ListByStatus returns jobs in a status, oldest first.
func (r *JobRepositoryImpl) ListByStatus(ctx context.Context, status models.Status) ([]*models.IngestionJob, error) {
	var jobs []*models.IngestionJob

	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at, id").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// List returns the most recent jobs.
func (r *JobRepositoryImpl) List(ctx context.Context, limit int) ([]*models.IngestionJob, error) {
	if limit <= 0 {
		limit = 50
	}

	var jobs []*models.IngestionJob
	err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

func (r *JobRepositoryImpl) active(ctx context.Context, id string) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.IngestionJob{}).
		Where("id = ? AND status NOT IN ?", id, terminalStatuses)
}
