// Package rc adapts the remote activity-queue RPC surface: poll,
// report_success, report_failure and heartbeat.
package rc

import "context"

// Client is the narrow capability the rest of the system depends on. All
// operations are synchronous; transient failures are the caller's concern
// to log and swallow (see internal/dispatch and internal/worker).
type Client interface {
	// Poll long-polls the activity queue. An empty token means no work was
	// available during the poll window.
	Poll(ctx context.Context, activityARN, workerName string) (token string, input string, err error)

	// ReportSuccess reports the single terminal success for token.
	ReportSuccess(ctx context.Context, token, output string) error

	// ReportFailure reports the single terminal failure for token. cause is
	// truncated per TruncateCause before being sent on the wire.
	ReportFailure(ctx context.Context, token, errorCode, cause string) error

	// Heartbeat sends one keep-alive for token. A terminal-class failure is
	// returned as a *HeartbeatError.
	Heartbeat(ctx context.Context, token string) error
}

// DefaultFailureErrorCode is used for uncaught handler exceptions and JSON
// parse failures.
const DefaultFailureErrorCode = "Task.Failure"
