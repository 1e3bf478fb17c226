package repository

import (
	"context"
	"errors"
	"fmt"

	"docqa/internal/apperr"
	"docqa/internal/models"

	"gorm.io/gorm"
)

// QASessionRepositoryImpl stores the append-only Q&A history.
type QASessionRepositoryImpl struct {
	db *gorm.DB
}

// NewQASessionRepository creates a new Q&A session repository
func NewQASessionRepository(db *gorm.DB) *QASessionRepositoryImpl {
	return &QASessionRepositoryImpl{db: db}
}

func (r *QASessionRepositoryImpl) Create(ctx context.Context, session *models.QASession) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("failed to create qa session: %w", err)
	}
	return nil
}

func (r *QASessionRepositoryImpl) GetByID(ctx context.Context, id string) (*models.QASession, error) {
	var session models.QASession

	err := r.db.WithContext(ctx).First(&session, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("qa session", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get qa session: %w", err)
	}

	return &session, nil
}

// ListByUser returns one page of a user's sessions, newest first, and the total count.
func (r *QASessionRepositoryImpl) ListByUser(ctx context.Context, userID string, page, limit int) ([]*models.QASession, int64, error) {
	page, limit = models.NormalizePage(page, limit, 20)
	query := r.db.WithContext(ctx).Model(&models.QASession{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count qa sessions: %w", err)
	}

	var sessions []*models.QASession
	err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(models.Offset(page, limit)).
		Find(&sessions).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list qa sessions: %w", err)
	}

	return sessions, total, nil
}

// Recent returns the latest sessions of every user, newest first.
func (r *QASessionRepositoryImpl) Recent(ctx context.Context, limit int) ([]*models.QASession, error) {
	var sessions []*models.QASession
	err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recent qa sessions: %w", err)
	}
	return sessions, nil
}

func (r *QASessionRepositoryImpl) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.QASession{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count qa sessions: %w", err)
	}
	return total, nil
}
