package rc

import (
	"context"
	"sync"
	"time"
)

// FakeTask is one preloaded poll response for FakeClient.
type FakeTask struct {
	Token string
	Input string
}

// ReportedSuccess records one observed ReportSuccess call.
type ReportedSuccess struct {
	Token  string
	Output string
}

// ReportedFailure records one observed ReportFailure call.
type ReportedFailure struct {
	Token     string
	ErrorCode string
	Cause     string
}

// FakeClient is a hand-written Client test double: queued poll responses,
// and recorded calls for the rest of the interface. Safe for concurrent use
// since the dispatcher and worker runtime each hold their own reference but
// tests may inspect it from the main goroutine while the loop is running.
type FakeClient struct {
	mu sync.Mutex

	tasks     []FakeTask
	polls     int
	pollErr   error
	pollDelay time.Duration

	successErr error
	failureErr error

	successes []ReportedSuccess
	failures  []ReportedFailure

	heartbeats      []string
	heartbeatErrors map[string]error
}

// NewFakeClient builds a FakeClient preloaded with tasks, returned to Poll
// in order; once exhausted, Poll returns an empty token.
func NewFakeClient(tasks ...FakeTask) *FakeClient {
	return &FakeClient{
		tasks:           tasks,
		heartbeatErrors: make(map[string]error),
	}
}

func (f *FakeClient) Poll(ctx context.Context, activityARN, workerName string) (string, string, error) {
	f.mu.Lock()

	f.polls++
	if f.pollErr != nil {
		err := f.pollErr
		f.mu.Unlock()
		return "", "", err
	}
	if len(f.tasks) > 0 {
		task := f.tasks[0]
		f.tasks = f.tasks[1:]
		f.mu.Unlock()
		return task.Token, task.Input, nil
	}
	delay := f.pollDelay
	f.mu.Unlock()

	// Mimic the long-poll window on an empty queue.
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}
	return "", "", nil
}

func (f *FakeClient) ReportSuccess(ctx context.Context, token, output string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.successErr != nil {
		return f.successErr
	}
	f.successes = append(f.successes, ReportedSuccess{Token: token, Output: output})
	return nil
}

func (f *FakeClient) ReportFailure(ctx context.Context, token, errorCode, cause string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failureErr != nil {
		return f.failureErr
	}
	f.failures = append(f.failures, ReportedFailure{
		Token:     token,
		ErrorCode: errorCode,
		Cause:     TruncateCause(cause),
	})
	return nil
}

func (f *FakeClient) Heartbeat(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats = append(f.heartbeats, token)
	if err, ok := f.heartbeatErrors[token]; ok {
		return err
	}
	return nil
}

// SetHeartbeatError makes every Heartbeat call for token return err.
func (f *FakeClient) SetHeartbeatError(token string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeatErrors[token] = err
}

// SetPollError makes every subsequent Poll call return err.
func (f *FakeClient) SetPollError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollErr = err
}

// SetPollDelay makes Poll block for d before returning an empty token when
// no task is queued, like the remote long-poll window.
func (f *FakeClient) SetPollDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollDelay = d
}

// SetReportSuccessError makes every ReportSuccess call fail with err
// without recording it; the report never reached the wire.
func (f *FakeClient) SetReportSuccessError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successErr = err
}

// SetReportFailureError makes every ReportFailure call fail with err
// without recording it.
func (f *FakeClient) SetReportFailureError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failureErr = err
}

// Successes returns a snapshot of all observed ReportSuccess calls.
func (f *FakeClient) Successes() []ReportedSuccess {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ReportedSuccess, len(f.successes))
	copy(out, f.successes)
	return out
}

// Failures returns a snapshot of all observed ReportFailure calls.
func (f *FakeClient) Failures() []ReportedFailure {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ReportedFailure, len(f.failures))
	copy(out, f.failures)
	return out
}

// Heartbeats returns a snapshot of every token a heartbeat was sent for, in
// order, including repeats.
func (f *FakeClient) Heartbeats() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.heartbeats))
	copy(out, f.heartbeats)
	return out
}

// Polls returns the number of Poll calls observed so far.
func (f *FakeClient) Polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

// Enqueue adds another task to be returned by future Poll calls.
func (f *FakeClient) Enqueue(task FakeTask) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
}

var _ Client = (*FakeClient)(nil)
var _ Client = (*HTTPClient)(nil)
