package services

import (
	"context"
	"fmt"
	"strings"

	"docqa/internal/apperr"
	"docqa/internal/middleware"
	"docqa/internal/models"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// QAService answers questions and keeps the per-user history.
type QAService struct {
	rag      *RAGService
	sessions QASessionRepository
	logger   *zap.Logger
	metrics  *Metrics
}

// NewQAService creates a new Q&A service
func NewQAService(rag *RAGService, sessions QASessionRepository, logger *zap.Logger, metrics *Metrics) *QAService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QAService{
		rag:      rag,
		sessions: sessions,
		logger:   logger.Named("qa"),
		metrics:  metrics,
	}
}

// Ask answers the question and records it as a session of userID.
func (s *QAService) Ask(ctx context.Context, userID, question string, documentIDs []string) (*models.QASession, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.Validation("user id is required")
	}

	ctx, span := middleware.StartSpan(ctx, "QA.Ask", attribute.String("user.id", userID))
	defer span.End()

	answer, err := s.rag.Ask(ctx, question, documentIDs)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return nil, err
	}

	session := &models.QASession{
		UserID:              userID,
		Question:            question,
		Answer:              answer.Answer,
		RelevantDocumentIDs: pq.StringArray(answer.RelevantDocumentIDs),
		Confidence:          answer.Confidence,
		Degraded:            answer.Degraded,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		middleware.AddSpanError(ctx, err)
		return nil, fmt.Errorf("failed to record qa session: %w", err)
	}

	s.metrics.RecordQuestion(ctx, answer.Degraded)
	if answer.Degraded {
		s.logger.Warn("answered with degraded retrieval or generation",
			zap.String("session_id", session.ID),
			zap.String("user_id", userID),
		)
	}
	return session, nil
}

// History returns one page of a user's sessions, newest first.
func (s *QAService) History(ctx context.Context, userID string, page, limit int) ([]*models.QASession, models.Pagination, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, models.Pagination{}, apperr.Validation("user id is required")
	}

	page, limit = models.NormalizePage(page, limit, 20)
	sessions, total, err := s.sessions.ListByUser(ctx, userID, page, limit)
	if err != nil {
		return nil, models.Pagination{}, fmt.Errorf("failed to load history: %w", err)
	}
	return sessions, models.NewPagination(page, limit, total), nil
}

// Session returns one recorded session.
func (s *QAService) Session(ctx context.Context, id string) (*models.QASession, error) {
	return s.sessions.GetByID(ctx, id)
}
