// Package worker hosts the per-subprocess runtime: one user handler
// instance, the current-task token slot, the terminal-report state machine
// and an optional heartbeat loop.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/maumercado/activityworker/internal/handler"
	"github.com/maumercado/activityworker/internal/logger"
	"github.com/maumercado/activityworker/internal/metrics"
	"github.com/maumercado/activityworker/internal/rc"
)

// Config configures a Runtime.
type Config struct {
	// Handler is the user task handler, already built and Init'd.
	Handler handler.Handler

	// Client is the remote client used for terminal reports.
	Client rc.Client

	// HeartbeatClient is a dedicated remote client used only from the
	// heartbeat loop. Required when Heartbeat > 0.
	HeartbeatClient rc.Client

	// Heartbeat is the heartbeat interval; 0 disables the loop.
	Heartbeat time.Duration
}

// Runtime executes tasks one at a time inside a worker subprocess. Each
// subprocess owns exactly one Runtime; ExecuteTask is only ever called from
// the executor goroutine, while the token slot is shared with the heartbeat
// goroutine.
type Runtime struct {
	handler   handler.Handler
	client    rc.Client
	hbClient  rc.Client
	heartbeat time.Duration
	log       zerolog.Logger

	// Token slot for the task currently executing. Guarded by tokenMu
	// because the heartbeat loop reads it.
	tokenMu   sync.Mutex
	token     string
	startedAt time.Time

	// Terminal-report state for the current task. Touched only from the
	// executor goroutine (the handler runs there too, even when it reports
	// directly).
	state reportState

	// Most recent token the remote service rejected with a terminal-class
	// heartbeat error. Heartbeat goroutine only.
	hbFailToken string

	stopHB chan struct{}
	hbWG   sync.WaitGroup
}

// NewRuntime builds a Runtime and, when heartbeats are enabled, starts the
// heartbeat loop.
func NewRuntime(cfg Config) *Runtime {
	r := &Runtime{
		handler:   cfg.Handler,
		client:    cfg.Client,
		hbClient:  cfg.HeartbeatClient,
		heartbeat: cfg.Heartbeat,
		log:       logger.WithComponent("worker"),
		stopHB:    make(chan struct{}),
	}

	if r.heartbeat > 0 {
		r.hbWG.Add(1)
		go r.runHeartbeatLoop()
	}

	return r
}

// Stop terminates the heartbeat loop, if running.
func (r *Runtime) Stop() {
	close(r.stopHB)
	r.hbWG.Wait()
}

// ExecuteTask runs one task to its terminal report. It never lets a handler
// error escape: every path ends with at most one terminal report on the
// wire and a (token, status) pair for the pool.
func (r *Runtime) ExecuteTask(ctx context.Context, token, input string) (string, Status) {
	r.setToken(token, time.Now())
	r.state = reportUnset

	defer func() {
		r.clearToken()
	}()

	log := r.log.With().Str("task_token", token).Logger()
	log.Debug().Msg("running task")

	ctx = handler.WithReporter(ctx, r)

	var parsed interface{}
	if err := json.Unmarshal([]byte(input), &parsed); err != nil {
		r.ReportFailure(ctx, rc.DefaultFailureErrorCode, "Error parsing task input json: "+err.Error())
		log.Debug().Str("status", string(TaskFailure)).Msg("task complete")
		return token, TaskFailure
	}

	result, err := r.runHandler(ctx, token, json.RawMessage(input))

	if err != nil {
		log.Error().Err(err).Msg("task run failed")
		if r.state == reportUnset {
			r.ReportFailure(ctx, rc.DefaultFailureErrorCode, "Exception raised during task run: "+err.Error())
		}
	} else if r.state == reportUnset {
		output, encErr := encodeOutput(result)
		if encErr != nil {
			log.Error().Err(encErr).Msg("task output not encodable")
			r.ReportFailure(ctx, rc.DefaultFailureErrorCode, "Exception raised during task run: "+encErr.Error())
		} else {
			r.ReportSuccess(ctx, output)
		}
	}

	status := TaskFailure
	if r.state == successReported {
		status = TaskSuccess
	}
	log.Debug().Str("status", string(status)).Msg("task complete")
	return token, status
}

// runHandler invokes the user handler with panic containment.
func (r *Runtime) runHandler(ctx context.Context, token string, input json.RawMessage) (result interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error().
				Str("task_token", token).
				Interface("panic", p).
				Str("stack", string(debug.Stack())).
				Msg("task handler panicked")
			err = fmt.Errorf("handler panicked: %v", p)
		}
	}()
	return r.handler.RunTask(ctx, token, input)
}

// ReportSuccess sends the terminal success report for the current task. A
// no-op if a terminal report was already sent. If the RPC fails, the state
// locks as failure-reported and the server-side timeout takes over.
func (r *Runtime) ReportSuccess(ctx context.Context, output string) error {
	if r.state != reportUnset {
		return nil
	}
	start := time.Now()
	err := r.client.ReportSuccess(ctx, r.currentToken(), output)
	metrics.RecordReport("success", time.Since(start).Seconds())
	if err != nil {
		r.log.Error().Err(err).Msg("error sending task success")
		r.state = failureReported
		return err
	}
	r.state = successReported
	return nil
}

// ReportFailure sends the terminal failure report for the current task. A
// no-op if a terminal report was already sent. An RPC failure is logged and
// returned; either way the state locks as failure-reported.
func (r *Runtime) ReportFailure(ctx context.Context, errorCode, cause string) error {
	if r.state != reportUnset {
		return nil
	}
	start := time.Now()
	err := r.client.ReportFailure(ctx, r.currentToken(), errorCode, cause)
	metrics.RecordReport("failure", time.Since(start).Seconds())
	if err != nil {
		r.log.Error().Err(err).Msg("error sending task failure")
	}
	r.state = failureReported
	return err
}

// encodeOutput converts a handler return value to the output document: a
// string passes through verbatim, nil becomes "{}", anything else is
// JSON-encoded.
func encodeOutput(result interface{}) (string, error) {
	switch v := result.(type) {
	case nil:
		return "{}", nil
	case string:
		return v, nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(encoded), nil
	}
}

func (r *Runtime) setToken(token string, startedAt time.Time) {
	r.tokenMu.Lock()
	r.token = token
	r.startedAt = startedAt
	r.tokenMu.Unlock()
}

func (r *Runtime) clearToken() {
	r.tokenMu.Lock()
	r.token = ""
	r.startedAt = time.Time{}
	r.tokenMu.Unlock()
}

func (r *Runtime) currentToken() string {
	r.tokenMu.Lock()
	defer r.tokenMu.Unlock()
	return r.token
}

func (r *Runtime) snapshotToken() (string, time.Time) {
	r.tokenMu.Lock()
	defer r.tokenMu.Unlock()
	return r.token, r.startedAt
}

var _ handler.Reporter = (*Runtime)(nil)
