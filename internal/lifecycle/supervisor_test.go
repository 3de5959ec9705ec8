package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maumercado/activityworker/internal/logger"
)

func init() {
	logger.Init("error", false)
}

// blockingRunner runs until its context is cancelled, like the dispatcher.
type blockingRunner struct {
	started chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan struct{})}
}

func (r *blockingRunner) Run(ctx context.Context) error {
	close(r.started)
	<-ctx.Done()
	return nil
}

type recordingDrainer struct {
	mu     sync.Mutex
	drains int
}

func (d *recordingDrainer) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drains++
	return nil
}

func (d *recordingDrainer) Drains() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drains
}

func TestSupervisor_CloseStopsRunAndDrainsPool(t *testing.T) {
	runner := newBlockingRunner()
	drainer := &recordingDrainer{}

	s := New(Config{
		Dispatcher:   runner,
		Pool:         drainer,
		DrainTimeout: time.Second,
	})

	done := make(chan error, 1)
	go func() {
		done <- s.Run(context.Background())
	}()

	select {
	case <-runner.started:
	case <-time.After(time.Second):
		t.Fatal("dispatcher never started")
	}

	s.Close()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}

	assert.Equal(t, 1, drainer.Drains(), "the pool must drain exactly once")
}

func TestSupervisor_ParentContextCancelStopsRun(t *testing.T) {
	runner := newBlockingRunner()
	drainer := &recordingDrainer{}

	s := New(Config{Dispatcher: runner, Pool: drainer, DrainTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	<-runner.started
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after parent cancellation")
	}
	assert.Equal(t, 1, drainer.Drains())
}

func TestSupervisor_CloseIdempotent(t *testing.T) {
	s := New(Config{Dispatcher: newBlockingRunner(), Pool: &recordingDrainer{}})

	s.Close()
	s.Close()
}
