package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"docqa/internal/apperr"
	"docqa/internal/models"

	"github.com/lib/pq"
	"github.com/segmentio/ksuid"
)

// QASessionRepository is an append-only in-memory Q&A history.
type QASessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*models.QASession
	order    []string
	now      func() time.Time
}

// NewQASessionRepository creates an empty session repository.
func NewQASessionRepository() *QASessionRepository {
	return &QASessionRepository{
		sessions: make(map[string]*models.QASession),
		now:      time.Now,
	}
}

func (r *QASessionRepository) Create(ctx context.Context, session *models.QASession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session.ID == "" {
		session.ID = ksuid.New().String()
	}
	session.CreatedAt = r.now()

	stored := copySession(session)
	r.sessions[session.ID] = stored
	r.order = append(r.order, session.ID)
	return nil
}

func (r *QASessionRepository) GetByID(ctx context.Context, id string) (*models.QASession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, apperr.NotFound("qa session", id)
	}
	return copySession(session), nil
}

// ListByUser returns one page of a user's sessions, newest first.
func (r *QASessionRepository) ListByUser(ctx context.Context, userID string, page, limit int) ([]*models.QASession, int64, error) {
	page, limit = models.NormalizePage(page, limit, 20)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*models.QASession
	for _, id := range slices.Backward(r.order) {
		if s := r.sessions[id]; s.UserID == userID {
			matched = append(matched, s)
		}
	}

	out := make([]*models.QASession, 0, limit)
	for _, s := range paginate(matched, page, limit) {
		out = append(out, copySession(s))
	}
	return out, int64(len(matched)), nil
}

// Recent returns the latest sessions of every user, newest first.
func (r *QASessionRepository) Recent(ctx context.Context, limit int) ([]*models.QASession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.QASession
	for _, id := range slices.Backward(r.order) {
		if len(out) == limit {
			break
		}
		out = append(out, copySession(r.sessions[id]))
	}
	return out, nil
}

func (r *QASessionRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.sessions)), nil
}

func copySession(s *models.QASession) *models.QASession {
	c := *s
	c.RelevantDocumentIDs = pq.StringArray(slices.Clone([]string(s.RelevantDocumentIDs)))
	return &c
}
