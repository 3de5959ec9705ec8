// Package lifecycle owns process shutdown: signal handling, the optional
// liveness endpoint, and the orderly drain of the worker pool once the
// dispatcher's run loop has returned.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/maumercado/activityworker/internal/logger"
)

// Runner is the dispatcher's run loop. Run must return soon after ctx is
// cancelled.
type Runner interface {
	Run(ctx context.Context) error
}

// Drainer is the worker pool's shutdown surface.
type Drainer interface {
	Shutdown(ctx context.Context) error
}

// Config configures a Supervisor.
type Config struct {
	Dispatcher Runner
	Pool       Drainer

	// HealthcheckPort serves the liveness endpoint when > 0.
	HealthcheckPort int

	// DrainTimeout bounds how long Shutdown waits for in-flight tasks
	// before subprocesses are killed.
	DrainTimeout time.Duration
}

// Supervisor ties the dispatcher, the pool and the liveness endpoint to
// process signals. SIGTERM and SIGINT schedule Close on a detached
// goroutine so signal delivery never races the poll RPC on the run loop.
type Supervisor struct {
	dispatcher   Runner
	pool         Drainer
	healthPort   int
	drainTimeout time.Duration
	log          zerolog.Logger

	cancel    context.CancelFunc
	healthSrv *http.Server
	closeOnce sync.Once
}

// New builds a Supervisor.
func New(cfg Config) *Supervisor {
	drainTimeout := cfg.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = 30 * time.Second
	}
	return &Supervisor{
		dispatcher:   cfg.Dispatcher,
		pool:         cfg.Pool,
		healthPort:   cfg.HealthcheckPort,
		drainTimeout: drainTimeout,
		log:          logger.WithComponent("lifecycle"),
	}
}

// Run installs signal handlers, starts the liveness endpoint if configured,
// runs the dispatcher to completion and drains the pool. It returns once
// the pool has fully shut down.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer func() {
		signal.Stop(sigCh)
		close(sigCh)
	}()
	go func() {
		sig, ok := <-sigCh
		if !ok {
			return
		}
		s.log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		go s.Close()
	}()

	if s.healthPort > 0 {
		if err := s.startHealthcheck(); err != nil {
			return err
		}
	}

	runErr := s.dispatcher.Run(ctx)

	s.log.Debug().Msg("waiting for workers to finish")
	drainCtx, drainCancel := context.WithTimeout(context.Background(), s.drainTimeout)
	defer drainCancel()
	if err := s.pool.Shutdown(drainCtx); err != nil {
		s.log.Error().Err(err).Msg("worker pool drain error")
	}
	s.log.Debug().Msg("workers exited")

	s.Close()
	return runErr
}

// Close stops the run loop and tears down the liveness endpoint. Safe to
// call from any goroutine, any number of times.
func (s *Supervisor) Close() {
	s.closeOnce.Do(func() {
		s.log.Info().Msg("closing server, waiting for run loop to end")
		if s.cancel != nil {
			s.cancel()
		}
		if s.healthSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.healthSrv.Shutdown(shutdownCtx); err != nil {
				s.log.Error().Err(err).Msg("healthcheck server shutdown error")
			}
		}
	})
}

func (s *Supervisor) startHealthcheck() error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.healthPort))
	if err != nil {
		return fmt.Errorf("healthcheck listen on port %d: %w", s.healthPort, err)
	}

	s.healthSrv = &http.Server{
		Handler:      newHealthRouter(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		s.log.Info().Int("port", s.healthPort).Msg("healthcheck listening")
		if err := s.healthSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("healthcheck server error")
		}
	}()

	return nil
}
