// Package dispatch couples the remote activity queue to the worker pool:
// the run loop acquires a capacity permit, long-polls for a task, and hands
// it to the pool, releasing the permit from the pool's completion callback.
package dispatch

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/maumercado/activityworker/internal/logger"
	"github.com/maumercado/activityworker/internal/metrics"
	"github.com/maumercado/activityworker/internal/procpool"
	"github.com/maumercado/activityworker/internal/rc"
)

// TaskSink receives dispatched tasks. Satisfied by *procpool.Pool.
type TaskSink interface {
	Submit(token, input string, done func(procpool.Result)) error
}

// Config configures a Dispatcher.
type Config struct {
	Client      rc.Client
	Pool        TaskSink
	ActivityARN string

	// ServerName identifies this process in the remote service's
	// monitoring UI; computed once at startup.
	ServerName string

	// Processes is the capacity P: the number of permits and the upper
	// bound on in-flight tasks.
	Processes int
}

// Dispatcher owns the capacity permits and the poll loop. At every instant
// the number of in-flight tasks plus the number of free permits equals the
// configured process count.
type Dispatcher struct {
	client      rc.Client
	pool        TaskSink
	activityARN string
	serverName  string
	permits     chan struct{}
	backoff     *backoffPolicy
	log         zerolog.Logger
}

// New builds a Dispatcher with all permits free.
func New(cfg Config) *Dispatcher {
	permits := make(chan struct{}, cfg.Processes)
	for i := 0; i < cfg.Processes; i++ {
		permits <- struct{}{}
	}

	return &Dispatcher{
		client:      cfg.Client,
		pool:        cfg.Pool,
		activityARN: cfg.ActivityARN,
		serverName:  cfg.ServerName,
		permits:     permits,
		backoff:     defaultBackoffPolicy(),
		log:         logger.WithComponent("dispatch"),
	}
}

// Run executes the poll loop until ctx is cancelled. A permit is acquired
// before polling so a dequeued task is always handed to an idle subprocess
// immediately; an empty poll keeps the permit for the next iteration.
// Cancellation is observed between polls, so Run returns within one poll
// window of it.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Debug().Str("server_name", d.serverName).Msg("run loop started")

	workerReady := false
	pollFailures := 0

	for ctx.Err() == nil {
		if !workerReady {
			d.log.Debug().Msg("acquiring worker permit")
			select {
			case <-d.permits:
			case <-ctx.Done():
				d.log.Debug().Msg("run loop stopping")
				return nil
			}
			workerReady = true
			metrics.SetCapacityAvailable(len(d.permits))
		}

		start := time.Now()
		token, input, err := d.client.Poll(ctx, d.activityARN, d.serverName)
		metrics.RecordPoll(time.Since(start).Seconds())

		if err != nil {
			if ctx.Err() != nil {
				break
			}
			pollFailures++
			metrics.RecordPollError()
			delay := d.backoff.Delay(pollFailures)
			d.log.Error().Err(err).Dur("backoff", delay).Msg("poll failed")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
			continue
		}
		pollFailures = 0

		if token == "" {
			continue
		}

		d.log.Debug().Str("task_token", token).Msg("dispatching task to acquired worker")
		if err := d.pool.Submit(token, input, d.onTaskDone); err != nil {
			// The pool is shutting down; put the task's permit back and
			// let the remote service re-dispatch after its timeout.
			d.log.Warn().Err(err).Str("task_token", token).Msg("submit failed")
			break
		}
		metrics.RecordDispatch()
		workerReady = false
		metrics.SetCapacityAvailable(len(d.permits))
	}

	// A permit acquired for a poll that never produced a task goes back so
	// the free-permit count still reflects in-flight work only.
	if workerReady {
		d.permits <- struct{}{}
		metrics.SetCapacityAvailable(len(d.permits))
	}

	d.log.Debug().Msg("run loop stopping")
	return nil
}

// onTaskDone releases the permit acquired for the completed task.
func (d *Dispatcher) onTaskDone(res procpool.Result) {
	d.permits <- struct{}{}
	metrics.SetCapacityAvailable(len(d.permits))
	metrics.RecordTerminal(res.Status)
	d.log.Debug().
		Str("task_token", res.Token).
		Str("status", res.Status).
		Msg("released worker for completed task")
}

// AvailablePermits reports the number of free capacity permits.
func (d *Dispatcher) AvailablePermits() int {
	return len(d.permits)
}
