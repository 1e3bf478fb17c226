// Package memory provides in-memory repositories with the same semantics as the
// GORM ones. They back tests and STORAGE_DRIVER=memory.
package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"docqa/internal/apperr"
	"docqa/internal/models"

	"github.com/pgvector/pgvector-go"
	"github.com/segmentio/ksuid"
	"gorm.io/datatypes"
)

// DocumentRepository is an in-memory document and chunk store.
// It is thread-safe and suitable for single-instance deployments.
type DocumentRepository struct {
	mu     sync.RWMutex
	docs   map[string]*models.Document
	order  []string // creation order
	chunks map[string][]models.Chunk
	now    func() time.Time
}

// NewDocumentRepository creates an empty document repository.
func NewDocumentRepository() *DocumentRepository {
	return &DocumentRepository{
		docs:   make(map[string]*models.Document),
		chunks: make(map[string][]models.Chunk),
		now:    time.Now,
	}
}

// Create stores a copy of doc and assigns its id and timestamps.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if doc.ID == "" {
		doc.ID = ksuid.New().String()
	}
	if doc.Status == "" {
		doc.Status = models.StatusPending
	}
	now := r.now()
	doc.CreatedAt, doc.UpdatedAt = now, now

	stored := copyDocument(doc)
	stored.Chunks = nil
	r.docs[doc.ID] = stored
	r.order = append(r.order, doc.ID)
	return nil
}

// GetByID returns a copy of the document without its chunks.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.docs[id]
	if !ok {
		return nil, apperr.NotFound("document", id)
	}
	return copyDocument(doc), nil
}

// List returns one page of matching documents without content. Ties in the sort
// column keep newest-first order.
func (r *DocumentRepository) List(ctx context.Context, q models.DocumentQuery) ([]*models.Document, int64, error) {
	page, limit := models.NormalizePage(q.Page, q.Limit, 10)
	sort := q.SortOrDefault()

	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*models.Document
	for _, id := range slices.Backward(r.order) {
		if doc := r.docs[id]; q.Matches(doc) {
			matched = append(matched, doc)
		}
	}

	switch {
	case sort == models.SortCreatedAt && q.Ascending:
		slices.Reverse(matched)
	case sort != models.SortCreatedAt:
		compare := compareDocuments(sort)
		slices.SortStableFunc(matched, func(a, b *models.Document) int {
			if q.Ascending {
				return compare(a, b)
			}
			return compare(b, a)
		})
	}

	total := int64(len(matched))
	out := make([]*models.Document, 0, limit)
	for _, doc := range paginate(matched, page, limit) {
		summary := copyDocument(doc)
		summary.Content = ""
		summary.Embedding = nil
		out = append(out, summary)
	}
	return out, total, nil
}

func compareDocuments(sort models.DocumentSort) func(a, b *models.Document) int {
	switch sort {
	case models.SortTitle:
		return func(a, b *models.Document) int { return strings.Compare(a.Title, b.Title) }
	case models.SortFilename:
		return func(a, b *models.Document) int { return strings.Compare(a.Filename, b.Filename) }
	case models.SortFileSize:
		return func(a, b *models.Document) int { return cmp.Compare(a.FileSize, b.FileSize) }
	case models.SortStatus:
		return func(a, b *models.Document) int { return strings.Compare(string(a.Status), string(b.Status)) }
	default:
		return func(a, b *models.Document) int { return a.CreatedAt.Compare(b.CreatedAt) }
	}
}

// Update applies a partial edit. A content change resets the status to pending.
func (r *DocumentRepository) Update(ctx context.Context, id string, update *models.DocumentUpdate) (*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[id]
	if !ok {
		return nil, apperr.NotFound("document", id)
	}

	next := *doc
	if update.Title != nil {
		next = next.WithTitle(*update.Title)
	}
	if update.Content != nil {
		next = next.WithContent(*update.Content)
	}
	if update.Metadata != nil {
		next.Metadata = datatypes.JSONMap(maps.Clone(update.Metadata))
	}
	next.UpdatedAt = r.now()

	r.docs[id] = &next
	return copyDocument(&next), nil
}

// UpdateStatus sets the ingestion status of a document.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status models.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[id]
	if !ok {
		return apperr.NotFound("document", id)
	}
	doc.Status = status
	doc.UpdatedAt = r.now()
	return nil
}

// ReplaceChunks swaps the chunk set and centroid and marks the document completed
// under one lock, so readers never see a partial set.
func (r *DocumentRepository) ReplaceChunks(ctx context.Context, id string, chunks []models.Chunk, embedding []float32, degraded bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[id]
	if !ok {
		return apperr.NotFound("document", id)
	}

	now := r.now()
	stored := make([]models.Chunk, len(chunks))
	for i, c := range chunks {
		c.CreatedAt = now
		stored[i] = c
	}
	r.chunks[id] = stored

	doc.Embedding = nil
	if len(embedding) > 0 {
		v := pgvector.NewVector(slices.Clone(embedding))
		doc.Embedding = &v
	}
	doc.EmbeddingDegraded = degraded
	doc.Status = models.StatusCompleted
	doc.UpdatedAt = now
	return nil
}

// Delete removes the document and its chunks.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.docs[id]; !ok {
		return apperr.NotFound("document", id)
	}
	delete(r.docs, id)
	delete(r.chunks, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	return nil
}

// FindByStatus returns documents in the given status, oldest first.
func (r *DocumentRepository) FindByStatus(ctx context.Context, status models.Status) ([]*models.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Document
	for _, id := range r.order {
		if doc := r.docs[id]; doc.Status == status {
			out = append(out, copyDocument(doc))
		}
	}
	return out, nil
}

// FindCompleted returns completed documents with their chunks, oldest first.
func (r *DocumentRepository) FindCompleted(ctx context.Context, ids []string) ([]*models.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Document
	for _, id := range r.order {
		if len(ids) > 0 && !slices.Contains(ids, id) {
			continue
		}
		doc := r.docs[id]
		if doc.Status != models.StatusCompleted {
			continue
		}
		c := copyDocument(doc)
		c.Chunks = slices.Clone(r.chunks[id])
		out = append(out, c)
	}
	return out, nil
}

// CountByStatus returns the number of documents per status.
func (r *DocumentRepository) CountByStatus(ctx context.Context) (map[models.Status]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[models.Status]int64)
	for _, doc := range r.docs {
		counts[doc.Status]++
	}
	return counts, nil
}

// Chunks returns the stored chunks of a document in index order.
func (r *DocumentRepository) Chunks(documentID string) []models.Chunk {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.chunks[documentID])
}

func copyDocument(doc *models.Document) *models.Document {
	c := *doc
	if doc.Metadata != nil {
		c.Metadata = datatypes.JSONMap(maps.Clone(map[string]interface{}(doc.Metadata)))
	}
	if doc.Embedding != nil {
		v := *doc.Embedding
		c.Embedding = &v
	}
	return &c
}

func paginate[T any](items []T, page, limit int) []T {
	start := models.Offset(page, limit)
	if start < 0 || start >= len(items) {
		return nil
	}
	return items[start:min(start+limit, len(items))]
}
