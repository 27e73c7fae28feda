package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/bindery/bindery/internal/api"
	"github.com/bindery/bindery/internal/config"
	"github.com/bindery/bindery/internal/scheduler"
	"github.com/bindery/bindery/internal/scheduler/tasks"
	"github.com/bindery/bindery/internal/websocket"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background download tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts)
		},
	}
}

func serve(ctx context.Context, opts *rootOptions) error {
	a, err := openApp(ctx, opts, appOptions{streaming: true, migrate: true})
	if err != nil {
		return err
	}
	defer a.Close()
	log := a.log

	// One server per database; a second instance would double-poll clients.
	lock := flock.New(filepath.Join(filepath.Dir(a.cfg.Database.Path), "bindery.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another bindery instance is using %s", a.cfg.Database.Path)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warn().Err(err).Msg("failed to release instance lock")
		}
	}()

	log.Info().
		Str("version", config.Version).
		Str("logLevel", a.cfg.Logging.Level).
		Msg("starting Bindery")
	if a.secrets == nil {
		log.Warn().Msg("security.secret_key is not set, client credentials are read as plain text")
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := websocket.NewHub(log.Logger)
	go hub.Run(hubCtx)
	log.SetBroadcastHub(hub)

	orchestrator, err := a.orchestrator()
	if err != nil {
		return err
	}
	orchestrator.SetBroadcaster(hub)

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		return err
	}
	dl := a.cfg.Downloads
	if err := tasks.RegisterDownloadMonitorTask(sched, orchestrator, dl.PollInterval, &log.Logger); err != nil {
		return err
	}
	if err := tasks.RegisterDownloadReconcileTask(sched, orchestrator, dl.ReconcileInterval, &log.Logger); err != nil {
		return err
	}
	if err := tasks.RegisterDownloadClientHealthTask(sched, orchestrator, dl.HealthInterval, &log.Logger); err != nil {
		return err
	}

	server := api.NewServer(a.cfg, orchestrator, sched, hub, log.Logger)
	server.SetLogsProvider(log)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(a.cfg.Server.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()
	sched.Start()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("received shutdown signal")
	case runErr = <-serverErr:
		if runErr != nil {
			log.Error().Err(runErr).Msg("HTTP server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	if err := sched.Stop(); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown error")
	}

	log.Info().Msg("server stopped")
	return runErr
}
