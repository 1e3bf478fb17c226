package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"docqa/internal/apperr"

	"go.uber.org/zap"
)

/*
INGESTION WORKER POOL

Ingestion is fire-and-forget: the request that uploads or edits a document returns
as soon as the document id is queued, and progress is observed by polling the job.

- A fixed number of workers pull document ids from a bounded channel.
- Submit never blocks. A full queue is reported as ErrQueueFull and the document
  stays pending until someone asks for ingestion again.
- Cancel stops the in-flight run for a document and drops its queued entries.
  Deleting a document uses it so a deleted document is not ingested.
*/

// ErrDispatcherClosed is returned by Submit after Shutdown.
var ErrDispatcherClosed = errors.New("ingestion dispatcher is shut down")

type inflight struct {
	cancel context.CancelFunc
}

// IngestionDispatcher runs ingestion in the background on a worker pool.
type IngestionDispatcher struct {
	runner IngestionRunner
	logger *zap.Logger

	// Worker pool components
	tasks   chan string
	workers int
	wg      sync.WaitGroup
	quit    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	closed  bool
	queued  map[string]int
	skip    map[string]int
	running map[string]map[*inflight]struct{}
}

// NewIngestionDispatcher creates a dispatcher. Workers are not started until Start.
func NewIngestionDispatcher(runner IngestionRunner, numWorkers, queueSize int, logger *zap.Logger) *IngestionDispatcher {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &IngestionDispatcher{
		runner:  runner,
		logger:  logger.Named("dispatcher"),
		tasks:   make(chan string, queueSize),
		workers: numWorkers,
		quit:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		queued:  make(map[string]int),
		skip:    make(map[string]int),
		running: make(map[string]map[*inflight]struct{}),
	}
}

// Start spawns the workers.
func (d *IngestionDispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.logger.Info("ingestion worker pool started", zap.Int("workers", d.workers))
}

func (d *IngestionDispatcher) worker(id int) {
	defer d.wg.Done()

	for {
		// Shutdown wins over queued work.
		select {
		case <-d.quit:
			return
		default:
		}

		select {
		case <-d.quit:
			return
		case documentID := <-d.tasks:
			d.run(id, documentID)
		}
	}
}

func (d *IngestionDispatcher) run(workerID int, documentID string) {
	d.mu.Lock()
	d.queued[documentID]--
	if d.queued[documentID] <= 0 {
		delete(d.queued, documentID)
	}
	if d.skip[documentID] > 0 {
		d.skip[documentID]--
		if d.skip[documentID] == 0 {
			delete(d.skip, documentID)
		}
		d.mu.Unlock()
		d.logger.Debug("skipping cancelled ingestion", zap.String("document_id", documentID))
		return
	}

	ctx, cancel := context.WithCancel(d.ctx)
	handle := &inflight{cancel: cancel}
	if d.running[documentID] == nil {
		d.running[documentID] = make(map[*inflight]struct{})
	}
	d.running[documentID][handle] = struct{}{}
	d.mu.Unlock()

	defer func() {
		cancel()
		d.mu.Lock()
		delete(d.running[documentID], handle)
		if len(d.running[documentID]) == 0 {
			delete(d.running, documentID)
		}
		d.mu.Unlock()

		if r := recover(); r != nil {
			d.logger.Error("ingestion panicked",
				zap.Int("worker", workerID),
				zap.String("document_id", documentID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()

	d.logger.Debug("worker processing document", zap.Int("worker", workerID), zap.String("document_id", documentID))
	d.runner.Run(ctx, documentID)
}

// Submit queues a document for ingestion and returns immediately.
func (d *IngestionDispatcher) Submit(documentID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.tasks <- documentID:
		d.queued[documentID]++
		return nil
	default:
		return fmt.Errorf("%w: %d documents waiting", apperr.ErrQueueFull, len(d.tasks))
	}
}

// Cancel stops ingestion of a document: the in-flight run is cancelled and
// entries still in the queue are skipped.
func (d *IngestionDispatcher) Cancel(documentID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n := d.queued[documentID]; n > 0 {
		d.skip[documentID] = n
	}
	for handle := range d.running[documentID] {
		handle.cancel()
	}
}

// QueueLength returns the number of documents waiting for a worker.
func (d *IngestionDispatcher) QueueLength() int {
	return len(d.tasks)
}

// Shutdown stops accepting work and waits for in-flight runs. Queued documents
// stay pending. If ctx expires first, in-flight runs are cancelled, which
// records them as failed.
func (d *IngestionDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.quit)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		d.logger.Info("ingestion worker pool stopped")
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return fmt.Errorf("ingestion shutdown: %w", ctx.Err())
	}
}
