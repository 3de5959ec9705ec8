// Package procpool runs a fixed-size pool of worker subprocesses and
// shuttles task payloads to them over anonymous pipes, one JSON document
// per direction per task.
package procpool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/maumercado/activityworker/internal/logger"
)

var (
	// ErrPoolClosed is returned by Submit after Shutdown has begun.
	ErrPoolClosed = errors.New("worker pool closed")
)

// respawnDelay throttles restarts after a subprocess dies unexpectedly.
const respawnDelay = 200 * time.Millisecond

// request is one task payload sent to a subprocess.
type request struct {
	Token string `json:"token"`
	Input string `json:"input"`
}

// Result is one completed task delivered back from a subprocess.
type Result struct {
	Token  string `json:"token"`
	Status string `json:"status"`
}

// Config configures a Pool.
type Config struct {
	// Processes is the fixed number of worker subprocesses.
	Processes int

	// MaxTasksPerChild recycles a subprocess after it has completed this
	// many tasks; 0 keeps subprocesses alive until shutdown.
	MaxTasksPerChild int

	// StartMethod names the subprocess creation mode. Subprocesses always
	// start from a fresh process image; "fork" and "forkserver" are
	// accepted for compatibility and behave like "spawn".
	StartMethod string

	// Command is the argv each subprocess is started with.
	Command []string

	// Env is appended to the parent environment for each subprocess.
	Env []string
}

type submission struct {
	req  request
	done func(Result)
}

// Pool is a fixed-size set of worker subprocesses. Submissions are handed
// to whichever subprocess is idle; completions are delivered through the
// submission's callback on the pool goroutine that serviced the task.
type Pool struct {
	cfg Config
	log zerolog.Logger

	workerCtx     context.Context
	cancelWorkers context.CancelFunc
	wg            sync.WaitGroup
	dispatch      chan submission
	stop          chan struct{}

	mu     sync.Mutex
	closed bool
}

// New validates cfg and builds a Pool. Start must be called before Submit.
func New(cfg Config) (*Pool, error) {
	if cfg.Processes < 1 {
		return nil, errors.New("pool needs at least one worker process")
	}
	if len(cfg.Command) == 0 {
		return nil, errors.New("pool worker command must not be empty")
	}
	switch cfg.StartMethod {
	case "", "default", "spawn":
	case "fork", "forkserver":
		logger.Warn().
			Str("start_method", cfg.StartMethod).
			Msg("start method unavailable, subprocesses start from a fresh process image")
	default:
		return nil, fmt.Errorf("unknown start method %q", cfg.StartMethod)
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	return &Pool{
		cfg:           cfg,
		log:           logger.WithComponent("procpool"),
		workerCtx:     workerCtx,
		cancelWorkers: cancelWorkers,
		dispatch:      make(chan submission),
		stop:          make(chan struct{}),
	}, nil
}

// Start launches the worker subprocesses.
func (p *Pool) Start() {
	for i := 0; i < p.cfg.Processes; i++ {
		p.wg.Add(1)
		go p.runWorker(i)
	}
	p.log.Info().
		Int("processes", p.cfg.Processes).
		Int("maxtasksperchild", p.cfg.MaxTasksPerChild).
		Msg("worker pool started")
}

// Submit hands one task to the pool. done is invoked exactly once with the
// task's result, even if the servicing subprocess dies mid-task. With
// capacity gated by the caller, an idle subprocess is always waiting and
// Submit does not block.
func (p *Pool) Submit(token, input string, done func(Result)) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrPoolClosed
	}

	sub := submission{req: request{Token: token, Input: input}, done: done}
	select {
	case p.dispatch <- sub:
		return nil
	case <-p.stop:
		return ErrPoolClosed
	}
}

// Shutdown refuses new submissions, waits for in-flight tasks and for all
// subprocesses to exit. If ctx expires first, the remaining subprocesses
// are killed.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.stop)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancelWorkers()
		p.log.Info().Msg("worker pool stopped gracefully")
		return nil
	case <-ctx.Done():
		p.log.Warn().Msg("worker pool shutdown timed out, killing subprocesses")
		p.cancelWorkers()
		<-done
		return ctx.Err()
	}
}

// runWorker owns one pool slot: it keeps a subprocess alive in that slot,
// respawning after a crash or a maxtasksperchild recycle, until shutdown.
func (p *Pool) runWorker(slot int) {
	defer p.wg.Done()

	log := p.log.With().Int("slot", slot).Logger()

	for {
		select {
		case <-p.stop:
			return
		default:
		}

		recycled, err := p.runChild(slot, log)
		if err != nil {
			if p.workerCtx.Err() == nil {
				log.Error().Err(err).Msg("pool subprocess died")
			}
			// Back off so a subprocess that fails at startup cannot spin.
			select {
			case <-p.stop:
				return
			case <-time.After(respawnDelay):
			}
			continue
		}
		if recycled {
			log.Debug().Msg("recycling subprocess after max tasks")
		}
	}
}

// runChild spawns one subprocess and services submissions through it until
// shutdown, recycle or subprocess death. It reports whether the exit was a
// maxtasksperchild recycle.
func (p *Pool) runChild(slot int, log zerolog.Logger) (recycled bool, err error) {
	cmd := exec.CommandContext(p.workerCtx, p.cfg.Command[0], p.cfg.Command[1:]...)
	cmd.Env = append(os.Environ(), p.cfg.Env...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return false, fmt.Errorf("creating worker stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return false, fmt.Errorf("creating worker stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("spawning worker subprocess: %w", err)
	}
	log.Info().Int("pid", cmd.Process.Pid).Msg("worker subprocess started")

	// Closing stdin is the shutdown signal for the subprocess: it exits on
	// EOF after finishing the current task.
	defer func() {
		_ = stdin.Close()
		waitErr := cmd.Wait()
		if err == nil && !recycled && waitErr != nil {
			err = waitErr
		}
	}()

	encoder := json.NewEncoder(stdin)
	decoder := json.NewDecoder(stdout)

	served := 0
	for {
		if p.cfg.MaxTasksPerChild > 0 && served >= p.cfg.MaxTasksPerChild {
			return true, nil
		}

		var sub submission
		select {
		case <-p.stop:
			return false, nil
		case sub = <-p.dispatch:
		}

		if err := encoder.Encode(sub.req); err != nil {
			sub.done(Result{Token: sub.req.Token, Status: "task_failure"})
			return false, fmt.Errorf("writing task to worker subprocess: %w", err)
		}

		var res Result
		if err := decoder.Decode(&res); err != nil {
			// The subprocess died mid-task; deliver a local failure so the
			// caller's capacity accounting stays intact. The remote service
			// times the task out.
			sub.done(Result{Token: sub.req.Token, Status: "task_failure"})
			return false, fmt.Errorf("reading task result from worker subprocess: %w", err)
		}

		sub.done(res)
		served++
	}
}
