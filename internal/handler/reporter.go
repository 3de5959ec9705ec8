package handler

import "context"

// Reporter lets a handler send the task's terminal status itself instead of
// returning a value. The runtime guarantees at most one terminal report per
// task: once either method has been called, the other (and the report
// derived from the handler's return value) becomes a no-op.
type Reporter interface {
	ReportSuccess(ctx context.Context, output string) error
	ReportFailure(ctx context.Context, errorCode, cause string) error
}

type reporterKey struct{}

// WithReporter attaches a Reporter to ctx for the duration of one task.
func WithReporter(ctx context.Context, r Reporter) context.Context {
	return context.WithValue(ctx, reporterKey{}, r)
}

// ReporterFromContext retrieves the task Reporter, if any.
func ReporterFromContext(ctx context.Context) (Reporter, bool) {
	r, ok := ctx.Value(reporterKey{}).(Reporter)
	return r, ok
}
