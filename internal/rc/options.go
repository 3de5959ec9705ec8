package rc

import (
	"context"
	"net/http"
	"time"
)

// RequestEditorFn mutates an outgoing request before it is sent, e.g. to
// attach auth headers.
type RequestEditorFn func(ctx context.Context, req *http.Request) error

// Option configures an HTTPClient.
type Option func(*httpOptions)

type httpOptions struct {
	httpClient  *http.Client
	pollTimeout time.Duration
	rpcTimeout  time.Duration
	headers     map[string]string
	editor      RequestEditorFn
}

func defaultOptions() *httpOptions {
	return &httpOptions{
		pollTimeout: 65 * time.Second, // must exceed the server's ~60s poll window
		rpcTimeout:  70 * time.Second,
		headers:     make(map[string]string),
	}
}

// WithHTTPClient overrides the underlying http.Client. Per-call timeouts are
// derived from WithPollTimeout/WithRPCTimeout; a non-zero Timeout on c still
// applies on top of them.
func WithHTTPClient(c *http.Client) Option {
	return func(o *httpOptions) { o.httpClient = c }
}

// WithPollTimeout overrides the poll RPC's read timeout. Must exceed the
// remote service's long-poll window.
func WithPollTimeout(d time.Duration) Option {
	return func(o *httpOptions) { o.pollTimeout = d }
}

// WithRPCTimeout overrides the timeout used for report_success,
// report_failure and heartbeat calls.
func WithRPCTimeout(d time.Duration) Option {
	return func(o *httpOptions) { o.rpcTimeout = d }
}

// WithHeader adds a static header sent on every request.
func WithHeader(key, value string) Option {
	return func(o *httpOptions) { o.headers[key] = value }
}

// WithRequestEditorFn sets a hook invoked on every outgoing request.
func WithRequestEditorFn(fn RequestEditorFn) Option {
	return func(o *httpOptions) { o.editor = fn }
}

func (o *httpOptions) applyHeaders(ctx context.Context, req *http.Request) error {
	for k, v := range o.headers {
		req.Header.Set(k, v)
	}
	if o.editor != nil {
		return o.editor(ctx, req)
	}
	return nil
}
