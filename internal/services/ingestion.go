package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"docqa/internal/apperr"
	"docqa/internal/chunker"
	"docqa/internal/embedding"
	"docqa/internal/middleware"
	"docqa/internal/models"

	"github.com/pgvector/pgvector-go"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Progress checkpoints reported by a run.
const (
	progressChunked   = 20
	progressEmbedding = 40
	progressEmbedded  = 70
)

const reconcileMessage = "ingestion interrupted by a service restart"

// IngestionPipeline turns one document into embedded chunks and tracks the attempt
// as an IngestionJob.
//
// Document status moves pending -> processing -> completed|failed. Every run
// creates a new job, and a job is never changed after it completes or fails.
// Runs for the same document are serialized by a per-document lock.
type IngestionPipeline struct {
	docs     DocumentRepository
	jobs     JobRepository
	embedder Embedder
	chunker  *chunker.Chunker
	logger   *zap.Logger
	metrics  *Metrics
	locks    *keyedMutex
	now      func() time.Time
}

// NewIngestionPipeline creates a pipeline. A nil chunker uses the default window size and overlap.
func NewIngestionPipeline(
	docs DocumentRepository,
	jobs JobRepository,
	embedder Embedder,
	textChunker *chunker.Chunker,
	logger *zap.Logger,
	metrics *Metrics,
) *IngestionPipeline {
	if textChunker == nil {
		textChunker = chunker.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestionPipeline{
		docs:     docs,
		jobs:     jobs,
		embedder: embedder,
		chunker:  textChunker,
		logger:   logger.Named("ingestion"),
		metrics:  metrics,
		locks:    newKeyedMutex(),
		now:      time.Now,
	}
}

// Run ingests one document. Failures are recorded on the document and the job
// and logged; they are not returned, since nobody waits on a run.
func (p *IngestionPipeline) Run(ctx context.Context, documentID string) {
	unlock := p.locks.Lock(documentID)
	defer unlock()

	ctx, span := middleware.StartSpan(ctx, "IngestionPipeline.Run",
		attribute.String("document.id", documentID),
	)
	defer span.End()

	start := p.now()
	job := &models.IngestionJob{
		DocumentID: documentID,
		Status:     models.StatusProcessing,
		StartedAt:  &start,
	}
	if err := p.jobs.Create(ctx, job); err != nil {
		p.fail(ctx, documentID, nil, apperr.Processing("create job", err), start)
		return
	}

	if err := p.docs.UpdateStatus(ctx, documentID, models.StatusProcessing); err != nil {
		p.fail(ctx, documentID, job, apperr.Processing("mark document processing", err), start)
		return
	}

	chunks, err := p.process(ctx, documentID, job)
	if err != nil {
		p.fail(ctx, documentID, job, err, start)
		return
	}

	if err := p.jobs.Complete(ctx, job.ID, p.now()); err != nil {
		// The document is already completed; the job stays processing until Reconcile.
		middleware.AddSpanError(ctx, err)
		p.logger.Error("failed to complete ingestion job",
			zap.String("document_id", documentID),
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
		return
	}

	middleware.AddSpanEvent(ctx, "ingestion_completed", attribute.Int("chunks", chunks))
	p.metrics.RecordIngestion(ctx, string(models.StatusCompleted), p.now().Sub(start))
	p.logger.Info("document ingested",
		zap.String("document_id", documentID),
		zap.String("job_id", job.ID),
		zap.Int("chunks", chunks),
		zap.Duration("duration", p.now().Sub(start)),
	)
}

// process loads, chunks, embeds and stores the document and returns the chunk count.
func (p *IngestionPipeline) process(ctx context.Context, documentID string, job *models.IngestionJob) (int, error) {
	doc, err := p.docs.GetByID(ctx, documentID)
	if err != nil {
		return 0, apperr.Processing("load document", err)
	}

	windows := p.chunker.Windows(doc.Content)
	if err := p.progress(ctx, job, progressChunked); err != nil {
		return 0, err
	}

	var embeddings []embedding.Embedding
	if len(windows) > 0 {
		if err := p.progress(ctx, job, progressEmbedding); err != nil {
			return 0, err
		}

		texts := make([]string, len(windows))
		for i, w := range windows {
			texts[i] = w.Text
		}
		embeddings, err = p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, apperr.Processing("embed chunks", err)
		}
		if len(embeddings) != len(windows) {
			return 0, apperr.Processing("embed chunks",
				fmt.Errorf("got %d embeddings for %d chunks", len(embeddings), len(windows)))
		}
	}
	if err := p.progress(ctx, job, progressEmbedded); err != nil {
		return 0, err
	}

	chunks := make([]models.Chunk, len(windows))
	vectors := make([][]float32, len(windows))
	degraded := false
	for i, w := range windows {
		e := embeddings[i]
		chunks[i] = models.Chunk{
			ID:         models.ChunkID(documentID, i),
			DocumentID: documentID,
			ChunkIndex: i,
			Content:    w.Text,
			Embedding:  pgvector.NewVector(e.Vector),
			StartIndex: w.Start,
			EndIndex:   w.End,
			Degraded:   e.Degraded,
		}
		vectors[i] = e.Vector
		degraded = degraded || e.Degraded
	}

	if err := p.docs.ReplaceChunks(ctx, documentID, chunks, embedding.Mean(vectors), degraded); err != nil {
		return 0, apperr.Processing("store chunks", err)
	}
	if degraded {
		p.logger.Warn("document ingested with fallback embeddings",
			zap.String("document_id", documentID),
		)
	}
	return len(chunks), nil
}

func (p *IngestionPipeline) progress(ctx context.Context, job *models.IngestionJob, progress int) error {
	if err := p.jobs.UpdateProgress(ctx, job.ID, progress); err != nil {
		return apperr.Processing("report progress", err)
	}
	job.Progress = progress
	return nil
}

// fail records err on the document and the job. It runs detached from ctx so a
// cancelled run is still recorded.
func (p *IngestionPipeline) fail(ctx context.Context, documentID string, job *models.IngestionJob, err error, start time.Time) {
	ctx = context.WithoutCancel(ctx)
	middleware.AddSpanError(ctx, err)

	fields := []zap.Field{zap.String("document_id", documentID), zap.Error(err)}
	if job != nil {
		fields = append(fields, zap.String("job_id", job.ID))
	}
	p.logger.Error("ingestion failed", fields...)

	if uerr := p.docs.UpdateStatus(ctx, documentID, models.StatusFailed); uerr != nil && !errors.Is(uerr, apperr.ErrNotFound) {
		p.logger.Error("failed to mark document failed", zap.String("document_id", documentID), zap.Error(uerr))
	}
	if job != nil {
		if jerr := p.jobs.Fail(ctx, job.ID, err.Error(), p.now()); jerr != nil {
			p.logger.Error("failed to mark job failed", zap.String("job_id", job.ID), zap.Error(jerr))
		}
	}
	p.metrics.RecordIngestion(ctx, string(models.StatusFailed), p.now().Sub(start))
}

// Status returns the document's status and its most recent job. The job is nil
// if the document was never ingested.
func (p *IngestionPipeline) Status(ctx context.Context, documentID string) (*models.IngestionStatus, error) {
	doc, err := p.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	job, err := p.jobs.LatestForDocument(ctx, documentID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("failed to get ingestion job: %w", err)
	}

	return &models.IngestionStatus{
		DocumentID:     documentID,
		DocumentStatus: doc.Status,
		Job:            job,
	}, nil
}

// Reconcile fails the jobs and documents a crash left in processing. The job is
// the source of truth. It must run before any ingestion starts.
func (p *IngestionPipeline) Reconcile(ctx context.Context) (int, error) {
	jobs, err := p.jobs.ListByStatus(ctx, models.StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to list processing jobs: %w", err)
	}
	for _, job := range jobs {
		if err := p.jobs.Fail(ctx, job.ID, reconcileMessage, p.now()); err != nil {
			return 0, fmt.Errorf("failed to fail job %s: %w", job.ID, err)
		}
	}

	docs, err := p.docs.FindByStatus(ctx, models.StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to list processing documents: %w", err)
	}
	for _, doc := range docs {
		if err := p.docs.UpdateStatus(ctx, doc.ID, models.StatusFailed); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return 0, fmt.Errorf("failed to fail document %s: %w", doc.ID, err)
		}
	}

	if len(jobs) > 0 || len(docs) > 0 {
		p.logger.Warn("reconciled interrupted ingestions",
			zap.Int("jobs", len(jobs)),
			zap.Int("documents", len(docs)),
		)
	}
	return len(docs), nil
}

// keyedMutex is a set of mutexes created on demand and dropped when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock locks key and returns the unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
