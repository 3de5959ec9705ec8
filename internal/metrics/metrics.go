package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CapacityAvailable is the current number of free CapacityPermits.
	CapacityAvailable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "activityworker_capacity_available",
			Help: "Current number of unused capacity permits",
		},
	)

	TasksDispatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "activityworker_tasks_dispatched_total",
			Help: "Total number of tasks submitted to the worker pool",
		},
	)

	TasksSucceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "activityworker_tasks_succeeded_total",
			Help: "Total number of tasks that reported success",
		},
	)

	TasksFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "activityworker_tasks_failed_total",
			Help: "Total number of tasks that reported failure",
		},
	)

	HeartbeatsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "activityworker_heartbeats_sent_total",
			Help: "Total number of heartbeat RPCs sent",
		},
	)

	HeartbeatsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "activityworker_heartbeats_suppressed_total",
			Help: "Total number of heartbeats skipped due to a terminal-class heartbeat error",
		},
	)

	PollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "activityworker_poll_duration_seconds",
			Help:    "Duration of RC.poll calls",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s, covers long polls
		},
	)

	ReportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "activityworker_report_duration_seconds",
			Help:    "Duration of RC.report_success / RC.report_failure calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	PollErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "activityworker_poll_errors_total",
			Help: "Total number of RC.poll calls that returned an error",
		},
	)
)

// SetCapacityAvailable updates the capacity-permits gauge.
func SetCapacityAvailable(permits int) {
	CapacityAvailable.Set(float64(permits))
}

// RecordDispatch marks one task handed from the dispatcher to the pool.
func RecordDispatch() {
	TasksDispatched.Inc()
}

// RecordTerminal records the terminal status of one completed task.
func RecordTerminal(status string) {
	switch status {
	case "task_success":
		TasksSucceeded.Inc()
	case "task_failure":
		TasksFailed.Inc()
	}
}

// RecordHeartbeatSent records one heartbeat RPC actually sent on the wire.
func RecordHeartbeatSent() {
	HeartbeatsSent.Inc()
}

// RecordHeartbeatSuppressed records one heartbeat skipped for a token under
// HeartbeatFailToken.
func RecordHeartbeatSuppressed() {
	HeartbeatsSuppressed.Inc()
}

// RecordPoll records the duration of one RC.poll call.
func RecordPoll(seconds float64) {
	PollDuration.Observe(seconds)
}

// RecordPollError records one failed RC.poll call.
func RecordPollError() {
	PollErrors.Inc()
}

// RecordReport records the duration of one terminal report RPC.
func RecordReport(outcome string, seconds float64) {
	ReportDuration.WithLabelValues(outcome).Observe(seconds)
}
