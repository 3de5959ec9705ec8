package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/maumercado/activityworker/internal/metrics"
	"github.com/maumercado/activityworker/internal/rc"
)

// heartbeatSlack is subtracted from the interval when deciding whether the
// current task has been running long enough for its first beat. It keeps
// the first heartbeat within [H-0.5s, H] of the task's actual start.
const heartbeatSlack = 500 * time.Millisecond

// runHeartbeatLoop sends one heartbeat per interval for the task currently
// in the token slot. The first beat for a task is anchored to the task's
// start time: a task that finishes before the interval elapses produces no
// heartbeats at all.
func (r *Runtime) runHeartbeatLoop() {
	defer r.hbWG.Done()

	log := r.log.With().Str("thread", "heartbeat").Logger()
	log.Info().Dur("interval", r.heartbeat).Msg("heartbeat loop started")

	for {
		token, startedAt := r.snapshotToken()

		if token == "" {
			if !r.sleepHB(r.heartbeat) {
				return
			}
			continue
		}

		if delta := time.Since(startedAt); delta+heartbeatSlack < r.heartbeat {
			// Too early for this task's first beat; wake up when it is due.
			if !r.sleepHB(r.heartbeat - delta) {
				return
			}
			continue
		}

		if token == r.hbFailToken {
			metrics.RecordHeartbeatSuppressed()
		} else {
			r.sendHeartbeat(token, log)
		}

		if !r.sleepHB(r.heartbeat) {
			return
		}
	}
}

// sendHeartbeat issues one heartbeat RPC. A terminal-class service error
// suppresses further beats for the same token; any other error is logged
// and the loop carries on.
func (r *Runtime) sendHeartbeat(token string, log zerolog.Logger) {
	log.Debug().Str("task_token", token).Msg("sending heartbeat")

	err := r.hbClient.Heartbeat(context.Background(), token)
	metrics.RecordHeartbeatSent()

	if err == nil {
		r.hbFailToken = ""
		return
	}

	var hbErr *rc.HeartbeatError
	if errors.As(err, &hbErr) && rc.IsTerminal(hbErr.Code) {
		log.Debug().
			Str("task_token", token).
			Str("code", hbErr.Code).
			Msg("heartbeat rejected, suppressing until token changes")
		r.hbFailToken = token
		return
	}

	log.Error().Err(err).Str("task_token", token).Msg("error sending heartbeat")
}

// sleepHB sleeps for d or until Stop is called; it reports false on stop.
func (r *Runtime) sleepHB(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-r.stopHB:
		return false
	}
}
