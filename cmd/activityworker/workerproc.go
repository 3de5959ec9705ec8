package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/maumercado/activityworker/internal/handler"
	"github.com/maumercado/activityworker/internal/logger"
	"github.com/maumercado/activityworker/internal/procpool"
	"github.com/maumercado/activityworker/internal/rc"
	"github.com/maumercado/activityworker/internal/worker"
)

var (
	procWorker      string
	procActivityARN string
	procEndpoint    string
	procHeartbeat   int
	procLogLevel    string
)

// workerprocCmd is the subprocess entry point: the pool re-invokes this
// binary with it and drives the task protocol over stdin/stdout. Stdout
// belongs to the protocol; all logging goes to stderr.
var workerprocCmd = &cobra.Command{
	Use:    "workerproc",
	Hidden: true,
	RunE:   runWorkerProc,
}

func init() {
	workerprocCmd.Flags().StringVar(&procWorker, "worker", "echo", "task handler to instantiate")
	workerprocCmd.Flags().StringVar(&procActivityARN, "activity-arn", "", "activity identifier")
	workerprocCmd.Flags().StringVar(&procEndpoint, "endpoint", "", "remote service base URL")
	workerprocCmd.Flags().IntVar(&procHeartbeat, "heartbeat", 0, "heartbeat interval in seconds, 0 disables")
	workerprocCmd.Flags().StringVar(&procLogLevel, "loglevel", "info", "log level")
}

func runWorkerProc(cmd *cobra.Command, args []string) error {
	// The parent terminates workers with SIGTERM, so the default handler
	// must be in place; SIGINT goes to the whole foreground process group
	// on ctrl-c and is the parent's to handle.
	signal.Reset(syscall.SIGTERM)
	signal.Ignore(syscall.SIGINT)

	logger.Init(procLogLevel, false)
	log := logger.WithWorker(workerID())
	log.Info().Str("worker", procWorker).Msg("initializing worker")

	h, err := handler.New(procWorker)
	if err != nil {
		return err
	}
	if err := h.Init(workerConfigFromEnv()); err != nil {
		return err
	}

	opts := regionOption(procActivityARN)
	client := rc.NewHTTPClient(procEndpoint, opts...)

	cfg := worker.Config{
		Handler:   h,
		Client:    client,
		Heartbeat: time.Duration(procHeartbeat) * time.Second,
	}
	if procHeartbeat > 0 {
		// The heartbeat loop gets its own client, used only from the
		// heartbeat goroutine; both clients share the default HTTP transport.
		cfg.HeartbeatClient = rc.NewHTTPClient(procEndpoint, opts...)
	}

	rt := worker.NewRuntime(cfg)
	defer rt.Stop()

	return procpool.ServeChild(os.Stdin, os.Stdout, func(token, input string) procpool.Result {
		tok, status := rt.ExecuteTask(context.Background(), token, input)
		return procpool.Result{Token: tok, Status: string(status)}
	})
}

func workerConfigFromEnv() json.RawMessage {
	if raw := os.Getenv(workerConfigEnv); raw != "" {
		return json.RawMessage(raw)
	}
	return nil
}

func workerID() string {
	return "workerproc-" + strconv.Itoa(os.Getpid())
}
