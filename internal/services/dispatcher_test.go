package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"docqa/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeRunner struct {
	mu      sync.Mutex
	runs    []string
	started chan string
	release chan struct{}
	errs    chan error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		started: make(chan string, 16),
		errs:    make(chan error, 16),
	}
}

func (r *fakeRunner) Run(ctx context.Context, documentID string) {
	r.mu.Lock()
	r.runs = append(r.runs, documentID)
	r.mu.Unlock()
	r.started <- documentID

	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			r.errs <- ctx.Err()
		}
	}
}

func (r *fakeRunner) ran() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.runs...)
}

func waitStarted(t *testing.T, r *fakeRunner) string {
	t.Helper()
	select {
	case id := <-r.started:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("run did not start")
		return ""
	}
}

func TestIngestionDispatcher_RunsSubmittedDocuments(t *testing.T) {
	runner := newFakeRunner()
	d := NewIngestionDispatcher(runner, 2, 10, zaptest.NewLogger(t))
	d.Start()

	require.NoError(t, d.Submit("a"))
	require.NoError(t, d.Submit("b"))

	got := []string{waitStarted(t, runner), waitStarted(t, runner)}
	assert.ElementsMatch(t, []string{"a", "b"}, got)
	require.NoError(t, d.Shutdown(context.Background()))
}

func TestIngestionDispatcher_QueueFull(t *testing.T) {
	runner := newFakeRunner()
	d := NewIngestionDispatcher(runner, 1, 1, zaptest.NewLogger(t))

	require.NoError(t, d.Submit("a"))
	err := d.Submit("b")
	assert.ErrorIs(t, err, apperr.ErrQueueFull)
	assert.Equal(t, 1, d.QueueLength())
}

func TestIngestionDispatcher_CancelSkipsQueued(t *testing.T) {
	runner := newFakeRunner()
	d := NewIngestionDispatcher(runner, 1, 10, zaptest.NewLogger(t))

	require.NoError(t, d.Submit("deleted"))
	require.NoError(t, d.Submit("kept"))
	d.Cancel("deleted")
	d.Start()

	assert.Equal(t, "kept", waitStarted(t, runner))
	require.NoError(t, d.Shutdown(context.Background()))
	assert.Equal(t, []string{"kept"}, runner.ran())
}

func TestIngestionDispatcher_CancelStopsInFlightRun(t *testing.T) {
	runner := newFakeRunner()
	runner.release = make(chan struct{})
	d := NewIngestionDispatcher(runner, 1, 10, zaptest.NewLogger(t))
	d.Start()

	require.NoError(t, d.Submit("doc"))
	waitStarted(t, runner)
	d.Cancel("doc")

	select {
	case err := <-runner.errs:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("run was not cancelled")
	}
	require.NoError(t, d.Shutdown(context.Background()))
}

func TestIngestionDispatcher_ResubmitAfterCancel(t *testing.T) {
	runner := newFakeRunner()
	d := NewIngestionDispatcher(runner, 1, 10, zaptest.NewLogger(t))

	require.NoError(t, d.Submit("doc"))
	d.Cancel("doc")
	require.NoError(t, d.Submit("doc"))
	d.Start()

	assert.Equal(t, "doc", waitStarted(t, runner))
	require.NoError(t, d.Shutdown(context.Background()))
	assert.Equal(t, []string{"doc"}, runner.ran())
}

func TestIngestionDispatcher_Shutdown(t *testing.T) {
	runner := newFakeRunner()
	runner.release = make(chan struct{})
	d := NewIngestionDispatcher(runner, 1, 10, zaptest.NewLogger(t))
	d.Start()

	require.NoError(t, d.Submit("slow"))
	waitStarted(t, runner)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := d.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case err := <-runner.errs:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight run was not cancelled")
	}

	assert.ErrorIs(t, d.Submit("late"), ErrDispatcherClosed)
	assert.NoError(t, d.Shutdown(context.Background()))
}
