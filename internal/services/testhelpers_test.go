package services

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode"

	"docqa/internal/embedding"
	"docqa/internal/models"
	"docqa/internal/openai"
	"docqa/internal/repository/memory"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testDimension = 64

// wordEmbedder hashes lowercase words into buckets, so texts sharing words are similar.
type wordEmbedder struct {
	mu       sync.Mutex
	err      error
	degraded bool
	calls    atomic.Int32
	hook     func(ctx context.Context, texts []string) error
}

func (e *wordEmbedder) vector(text string) []float32 {
	v := make([]float32, testDimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%testDimension]++
	}
	return v
}

func (e *wordEmbedder) Embed(ctx context.Context, text string) (embedding.Embedding, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return embedding.Embedding{}, err
	}
	return out[0], nil
}

func (e *wordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]embedding.Embedding, error) {
	e.calls.Add(1)
	if len(texts) == 0 {
		return nil, embedding.ErrEmptyInput
	}
	e.mu.Lock()
	hook, err, degraded := e.hook, e.err, e.degraded
	e.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, texts); err != nil {
			return nil, err
		}
	}
	if err != nil {
		return nil, err
	}
	out := make([]embedding.Embedding, len(texts))
	for i, t := range texts {
		out[i] = embedding.Embedding{Vector: e.vector(t), Degraded: degraded}
	}
	return out, nil
}

func (e *wordEmbedder) Similarity(a, b []float32) float64 {
	return embedding.Cosine(a, b)
}

func (e *wordEmbedder) setErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// fakeGenerator returns a canned completion and records the prompts it saw.
type fakeGenerator struct {
	mu       sync.Mutex
	answer   string
	err      error
	messages [][]openai.ChatMessage
}

func (g *fakeGenerator) ChatCompletion(ctx context.Context, messages []openai.ChatMessage, opts ...openai.ChatOption) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.messages = append(g.messages, messages)
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

func (g *fakeGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.messages)
}

// recordingDocs remembers every status a document passed through.
type recordingDocs struct {
	*memory.DocumentRepository
	mu       sync.Mutex
	statuses []models.Status
}

func (r *recordingDocs) UpdateStatus(ctx context.Context, id string, status models.Status) error {
	r.mu.Lock()
	r.statuses = append(r.statuses, status)
	r.mu.Unlock()
	return r.DocumentRepository.UpdateStatus(ctx, id, status)
}

func (r *recordingDocs) ReplaceChunks(ctx context.Context, id string, chunks []models.Chunk, vector []float32, degraded bool) error {
	if err := r.DocumentRepository.ReplaceChunks(ctx, id, chunks, vector, degraded); err != nil {
		return err
	}
	r.mu.Lock()
	r.statuses = append(r.statuses, models.StatusCompleted)
	r.mu.Unlock()
	return nil
}

func (r *recordingDocs) history() []models.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Status(nil), r.statuses...)
}

// jobSnapshot is the stored state of a job right after a write.
type jobSnapshot struct {
	Status   models.Status
	Progress int
}

// recordingJobs snapshots the stored job after every write, so tests can see
// what a poller could have observed during a run.
type recordingJobs struct {
	*memory.JobRepository
	mu        sync.Mutex
	documents map[string]string
	snapshots []jobSnapshot
}

func newRecordingJobs() *recordingJobs {
	return &recordingJobs{JobRepository: memory.NewJobRepository(), documents: make(map[string]string)}
}

func (r *recordingJobs) Create(ctx context.Context, job *models.IngestionJob) error {
	if err := r.JobRepository.Create(ctx, job); err != nil {
		return err
	}
	r.mu.Lock()
	r.documents[job.ID] = job.DocumentID
	r.mu.Unlock()
	r.snapshot(ctx, job.ID)
	return nil
}

func (r *recordingJobs) UpdateProgress(ctx context.Context, id string, progress int) error {
	defer r.snapshot(ctx, id)
	return r.JobRepository.UpdateProgress(ctx, id, progress)
}

func (r *recordingJobs) Complete(ctx context.Context, id string, completedAt time.Time) error {
	defer r.snapshot(ctx, id)
	return r.JobRepository.Complete(ctx, id, completedAt)
}

func (r *recordingJobs) Fail(ctx context.Context, id string, message string, completedAt time.Time) error {
	defer r.snapshot(ctx, id)
	return r.JobRepository.Fail(ctx, id, message, completedAt)
}

func (r *recordingJobs) snapshot(ctx context.Context, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, err := r.JobRepository.LatestForDocument(ctx, r.documents[id])
	if err != nil || job.ID != id {
		return
	}
	r.snapshots = append(r.snapshots, jobSnapshot{Status: job.Status, Progress: job.Progress})
}

func (r *recordingJobs) history() []jobSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]jobSnapshot(nil), r.snapshots...)
}

// failingDocs fails every read of completed documents.
type failingDocs struct {
	*memory.DocumentRepository
}

var errStoreDown = errors.New("store unavailable")

func (failingDocs) FindCompleted(ctx context.Context, ids []string) ([]*models.Document, error) {
	return nil, errStoreDown
}

// harness wires the core services over in-memory repositories.
type harness struct {
	docs      *recordingDocs
	jobs      *recordingJobs
	sessions  *memory.QASessionRepository
	embedder  *wordEmbedder
	generator *fakeGenerator
	pipeline  *IngestionPipeline
	retriever *Retriever
	rag       *RAGService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	metrics := NewMetrics(logger)

	h := &harness{
		docs:      &recordingDocs{DocumentRepository: memory.NewDocumentRepository()},
		jobs:      newRecordingJobs(),
		sessions:  memory.NewQASessionRepository(),
		embedder:  &wordEmbedder{},
		generator: &fakeGenerator{answer: "Paris."},
	}
	h.pipeline = NewIngestionPipeline(h.docs, h.jobs, h.embedder, nil, logger, metrics)
	h.retriever = NewRetriever(h.docs, h.embedder, DefaultTopK)
	synth := NewAnswerSynthesizer(h.generator, DefaultAnswerConfig(), logger, metrics)
	h.rag = NewRAGService(h.retriever, synth, DefaultTopK)
	return h
}

// addDocument stores a pending document.
func (h *harness) addDocument(t *testing.T, title, content string) *models.Document {
	t.Helper()
	doc := &models.Document{Title: title, Content: content, OwnerID: "u1", FileType: "text/plain"}
	require.NoError(t, h.docs.Create(context.Background(), doc))
	return doc
}

// ingest stores a document and runs ingestion synchronously.
func (h *harness) ingest(t *testing.T, title, content string) *models.Document {
	t.Helper()
	doc := h.addDocument(t, title, content)
	h.pipeline.Run(context.Background(), doc.ID)
	got, err := h.docs.GetByID(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, got.Status)
	return got
}

// fakeSubmitter records submissions instead of running them.
type fakeSubmitter struct {
	mu        sync.Mutex
	submitted []string
	cancelled []string
	err       error
}

func (s *fakeSubmitter) Submit(documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.submitted = append(s.submitted, documentID)
	return nil
}

func (s *fakeSubmitter) Cancel(documentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, documentID)
}

func (s *fakeSubmitter) QueueLength() int { return 0 }
