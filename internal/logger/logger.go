package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var log zerolog.Logger

// Init configures the package-level logger. level accepts zerolog's level
// names plus "warning" and "critical" (mapped to warn and fatal); anything
// unrecognised falls back to info. pretty enables a human-readable
// console writer; logs for the controller and every subprocess go to
// stderr so stdout stays free for the subprocess task protocol.
func Init(level string, pretty bool) {
	switch level {
	case "warning":
		level = "warn"
	case "critical":
		level = "fatal"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var output io.Writer = os.Stderr
	if pretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}
	}

	log = zerolog.New(output).
		With().
		Timestamp().
		Logger()
}

func Get() *zerolog.Logger {
	return &log
}

// WithComponent returns a logger scoped to one subsystem: dispatch,
// procpool, lifecycle or worker.
func WithComponent(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// WithWorker returns a logger scoped to one subprocess.
func WithWorker(workerID string) zerolog.Logger {
	return log.With().Str("worker_id", workerID).Logger()
}

// WithTask returns a logger scoped to one activity task token.
func WithTask(token string) zerolog.Logger {
	return log.With().Str("task_token", token).Logger()
}

func Debug() *zerolog.Event { return log.Debug() }
func Info() *zerolog.Event  { return log.Info() }
func Warn() *zerolog.Event  { return log.Warn() }
func Error() *zerolog.Event { return log.Error() }
func Fatal() *zerolog.Event { return log.Fatal() }
