package tasks

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bindery/bindery/internal/downloader/types"
	"github.com/bindery/bindery/internal/downloads"
	"github.com/bindery/bindery/internal/scheduler"
)

// ClientChecker tests connectivity and records the outcome on the client.
type ClientChecker interface {
	ListEnabledClients(ctx context.Context) ([]*downloads.DownloadClient, error)
	CheckClient(ctx context.Context, clientID int64) (*downloads.DownloadClient, error)
}

// DownloadClientHealthTask handles scheduled health checks for download clients.
type DownloadClientHealthTask struct {
	checker ClientChecker
	logger  *zerolog.Logger
}

// NewDownloadClientHealthTask creates a new download client health check task.
func NewDownloadClientHealthTask(checker ClientChecker, logger *zerolog.Logger) *DownloadClientHealthTask {
	subLogger := logger.With().Str("task", "download-client-health").Logger()
	return &DownloadClientHealthTask{
		checker: checker,
		logger:  &subLogger,
	}
}

// Run executes the download client health check.
func (t *DownloadClientHealthTask) Run(ctx context.Context) error {
	t.logger.Info().Msg("Starting download client health check")

	clients, err := t.checker.ListEnabledClients(ctx)
	if err != nil {
		t.logger.Error().Err(err).Msg("Failed to list download clients")
		return err
	}

	if len(clients) == 0 {
		t.logger.Info().Msg("No download clients configured, skipping health check")
		return nil
	}

	healthy := 0
	for _, client := range clients {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := t.checker.CheckClient(ctx, client.ID); err != nil {
			msg := "Download client health check failed"
			if types.IsKind(err, types.KindAuth) {
				msg = "Download client rejected its credentials"
			}
			t.logger.Warn().Err(err).Int64("clientId", client.ID).Str("name", client.Name).Msg(msg)
			continue
		}
		healthy++
		t.logger.Debug().Int64("clientId", client.ID).Str("name", client.Name).Msg("Download client health check passed")
	}

	t.logger.Info().Int("healthy", healthy).Int("total", len(clients)).Msg("Download client health check completed")
	return nil
}

// RegisterDownloadClientHealthTask registers the download client health check task with the scheduler.
func RegisterDownloadClientHealthTask(
	sched *scheduler.Scheduler,
	checker ClientChecker,
	interval time.Duration,
	logger *zerolog.Logger,
) error {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	task := NewDownloadClientHealthTask(checker, logger)

	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          "download-client-health",
		Name:        "Download Client Health Check",
		Description: "Tests connectivity to all download clients",
		Interval:    interval,
		RunOnStart:  true,
		Func:        task.Run,
	})
}
