package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"docqa/internal/apperr"
	"docqa/internal/models"

	"github.com/segmentio/ksuid"
)

// JobRepository is an in-memory ingestion job store. Jobs in a terminal status
// are never modified.
type JobRepository struct {
	mu    sync.RWMutex
	jobs  map[string]*models.IngestionJob
	order []string
	now   func() time.Time
}

// NewJobRepository creates an empty job repository.
func NewJobRepository() *JobRepository {
	return &JobRepository{
		jobs: make(map[string]*models.IngestionJob),
		now:  time.Now,
	}
}

func (r *JobRepository) Create(ctx context.Context, job *models.IngestionJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if job.ID == "" {
		job.ID = ksuid.New().String()
	}
	if job.Status == "" {
		job.Status = models.StatusPending
	}
	now := r.now()
	job.CreatedAt, job.UpdatedAt = now, now

	stored := *job
	r.jobs[job.ID] = &stored
	r.order = append(r.order, job.ID)
	return nil
}

// UpdateProgress raises progress; lower values are ignored.
func (r *JobRepository) UpdateProgress(ctx context.Context, id string, progress int) error {
	return r.update(id, func(job *models.IngestionJob) {
		if progress > job.Progress {
			job.Progress = progress
		}
	})
}

func (r *JobRepository) Complete(ctx context.Context, id string, completedAt time.Time) error {
	return r.update(id, func(job *models.IngestionJob) {
		job.Status = models.StatusCompleted
		job.Progress = 100
		job.CompletedAt = &completedAt
	})
}

func (r *JobRepository) Fail(ctx context.Context, id string, message string, completedAt time.Time) error {
	return r.update(id, func(job *models.IngestionJob) {
		job.Status = models.StatusFailed
		job.Error = message
		job.CompletedAt = &completedAt
	})
}

// LatestForDocument returns the most recently created job of a document.
func (r *JobRepository) LatestForDocument(ctx context.Context, documentID string) (*models.IngestionJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range slices.Backward(r.order) {
		if job := r.jobs[id]; job.DocumentID == documentID {
			c := *job
			return &c, nil
		}
	}
	return nil, apperr.NotFound("ingestion job for document", documentID)
}

func (r *JobRepository) ListByStatus(ctx context.Context, status models.Status) ([]*models.IngestionJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.IngestionJob
	for _, id := range r.order {
		if job := r.jobs[id]; job.Status == status {
			c := *job
			out = append(out, &c)
		}
	}
	return out, nil
}

// List returns the most recent jobs, newest first.
func (r *JobRepository) List(ctx context.Context, limit int) ([]*models.IngestionJob, error) {
	if limit <= 0 {
		limit = 50
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.IngestionJob, 0, min(limit, len(r.order)))
	for _, id := range slices.Backward(r.order) {
		if len(out) == limit {
			break
		}
		c := *r.jobs[id]
		out = append(out, &c)
	}
	return out, nil
}

// update applies fn to a non-terminal job. Terminal and unknown jobs are left alone.
func (r *JobRepository) update(id string, fn func(*models.IngestionJob)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok || job.Status.Terminal() {
		return nil
	}
	fn(job)
	job.UpdatedAt = r.now()
	return nil
}
