package main

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/maumercado/activityworker/internal/config"
	"github.com/maumercado/activityworker/internal/dispatch"
	"github.com/maumercado/activityworker/internal/lifecycle"
	"github.com/maumercado/activityworker/internal/logger"
	"github.com/maumercado/activityworker/internal/procpool"
	"github.com/maumercado/activityworker/internal/rc"
)

// workerConfigEnv carries the opaque worker_config map to each subprocess.
const workerConfigEnv = "ACTIVITYWORKER_WORKER_CONFIG_JSON"

var (
	flagConfig      string
	flagWorker      string
	flagActivityARN string
	flagProcesses   int
	flagLogLevel    string
)

var rootCmd = &cobra.Command{
	Use:          "activityworker",
	Short:        "Long-running activity worker for a hosted state-machine service",
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	rootCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "path to config file")
	rootCmd.Flags().StringVar(&flagWorker, "worker", "", "task handler to run in each subprocess")
	rootCmd.Flags().StringVar(&flagActivityARN, "activity-arn", "", "activity identifier to poll")
	rootCmd.Flags().IntVar(&flagProcesses, "processes", -1, "worker process count (0 means one per CPU core)")
	rootCmd.Flags().StringVar(&flagLogLevel, "loglevel", "", "debug|info|warning|error|critical")

	rootCmd.AddCommand(workerprocCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return err
	}

	if flagWorker != "" {
		cfg.Worker = flagWorker
	}
	if flagActivityARN != "" {
		cfg.ActivityARN = flagActivityARN
	}
	if flagProcesses >= 0 {
		cfg.Processes = flagProcesses
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}

	logger.Init(cfg.LogLevel, os.Getenv("ENV") != "production")
	log := logger.Get()

	if cfg.ActivityARN == "" {
		err := fmt.Errorf("activity_arn must be configured")
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return err
	}
	if cfg.Endpoint == "" {
		err := fmt.Errorf("endpoint must be configured")
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return err
	}
	if cfg.Server != "" && cfg.Server != "default" {
		log.Warn().Str("server", cfg.Server).Msg("unknown server override, using default supervisor")
	}

	processes := cfg.Processes
	if processes <= 0 {
		processes = runtime.NumCPU()
	}

	serverName := cfg.ServerName()
	log.Info().
		Str("server_name", serverName).
		Str("activity_arn", cfg.ActivityARN).
		Int("processes", processes).
		Msg("Starting activity worker...")

	workerCommand, workerEnv, err := workerProcCommand(cfg)
	if err != nil {
		return err
	}

	pool, err := procpool.New(procpool.Config{
		Processes:        processes,
		MaxTasksPerChild: cfg.MaxTasksPerChild,
		StartMethod:      cfg.StartMethod,
		Command:          workerCommand,
		Env:              workerEnv,
	})
	if err != nil {
		return err
	}
	pool.Start()

	client := rc.NewHTTPClient(cfg.Endpoint, regionOption(cfg.ActivityARN)...)

	dispatcher := dispatch.New(dispatch.Config{
		Client:      client,
		Pool:        pool,
		ActivityARN: cfg.ActivityARN,
		ServerName:  serverName,
		Processes:   processes,
	})

	supervisor := lifecycle.New(lifecycle.Config{
		Dispatcher:      dispatcher,
		Pool:            pool,
		HealthcheckPort: cfg.Healthcheck,
		DrainTimeout:    30 * time.Second,
	})

	if err := supervisor.Run(cmd.Context()); err != nil {
		return err
	}

	log.Info().Msg("Activity worker stopped")
	return nil
}

// workerProcCommand builds the argv and environment each worker subprocess is
// started with: this same binary, re-invoked as "workerproc".
func workerProcCommand(cfg *config.Config) ([]string, []string, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, nil, fmt.Errorf("resolving own executable: %w", err)
	}

	command := []string{
		exe, "workerproc",
		"--worker", cfg.Worker,
		"--activity-arn", cfg.ActivityARN,
		"--endpoint", cfg.Endpoint,
		"--heartbeat", strconv.Itoa(cfg.Heartbeat),
		"--loglevel", cfg.LogLevel,
	}

	var env []string
	if len(cfg.WorkerConfig) > 0 {
		encoded, err := json.Marshal(cfg.WorkerConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("encoding worker_config: %w", err)
		}
		env = append(env, workerConfigEnv+"="+string(encoded))
	}

	return command, env, nil
}

// regionOption derives the region header option from the activity ARN so
// every RPC carries it, not just polls.
func regionOption(activityARN string) []rc.Option {
	region, ok := rc.ExtractRegion(activityARN)
	if !ok {
		return nil
	}
	return []rc.Option{rc.WithHeader("X-Activity-Region", region)}
}
