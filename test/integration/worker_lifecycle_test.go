//go:build integration
// +build integration

package integration

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maumercado/activityworker/internal/dispatch"
	"github.com/maumercado/activityworker/internal/handler"
	"github.com/maumercado/activityworker/internal/lifecycle"
	"github.com/maumercado/activityworker/internal/logger"
	"github.com/maumercado/activityworker/internal/procpool"
	"github.com/maumercado/activityworker/internal/rc"
	"github.com/maumercado/activityworker/internal/worker"
)

func init() {
	logger.Init("error", false)
}

// runtimeSink satisfies the dispatcher's pool surface with an in-process
// worker runtime, so the full poll -> dispatch -> execute -> report chain
// runs without subprocesses.
type runtimeSink struct {
	rt *worker.Runtime
}

func (s *runtimeSink) Submit(token, input string, done func(procpool.Result)) error {
	go func() {
		tok, status := s.rt.ExecuteTask(context.Background(), token, input)
		done(procpool.Result{Token: tok, Status: string(status)})
	}()
	return nil
}

func (s *runtimeSink) Shutdown(ctx context.Context) error { return nil }

type flakyHandler struct{}

func (flakyHandler) Init(config json.RawMessage) error { return nil }

func (flakyHandler) RunTask(ctx context.Context, token string, input json.RawMessage) (interface{}, error) {
	var payload struct {
		Fail bool `json:"fail"`
	}
	if err := json.Unmarshal(input, &payload); err != nil {
		return nil, err
	}
	if payload.Fail {
		return nil, errors.New("requested failure")
	}
	return map[string]interface{}{"ok": true}, nil
}

func TestWorkerLifecycle_EndToEnd(t *testing.T) {
	client := rc.NewFakeClient(
		rc.FakeTask{Token: "AT-0", Input: `{"fail":false}`},
		rc.FakeTask{Token: "AT-1", Input: `{"fail":true}`},
		rc.FakeTask{Token: "AT-2", Input: `not json`},
	)
	client.SetPollDelay(100 * time.Millisecond)

	rt := worker.NewRuntime(worker.Config{
		Handler: flakyHandler{},
		Client:  client,
	})
	defer rt.Stop()
	sink := &runtimeSink{rt: rt}

	dispatcher := dispatch.New(dispatch.Config{
		Client:      client,
		Pool:        sink,
		ActivityARN: "arn:aws:states:us-west-2:000000000000:activity:integration",
		ServerName:  "integration-test",
		Processes:   1,
	})

	supervisor := lifecycle.New(lifecycle.Config{
		Dispatcher:   dispatcher,
		Pool:         sink,
		DrainTimeout: 5 * time.Second,
	})

	done := make(chan error, 1)
	ctx := context.Background()
	go func() {
		done <- supervisor.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return len(client.Successes())+len(client.Failures()) == 3
	}, 5*time.Second, 50*time.Millisecond, "all three tasks must reach a terminal report")

	supervisor.Close()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop")
	}

	successes := client.Successes()
	require.Len(t, successes, 1)
	assert.Equal(t, "AT-0", successes[0].Token)
	assert.JSONEq(t, `{"ok":true}`, successes[0].Output)

	failures := client.Failures()
	require.Len(t, failures, 2)
	for _, f := range failures {
		assert.Equal(t, rc.DefaultFailureErrorCode, f.ErrorCode)
	}

	assert.Equal(t, 1, dispatcher.AvailablePermits())
}

var _ handler.Handler = flakyHandler{}
