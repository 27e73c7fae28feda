package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/bindery/bindery/internal/downloads"
	"github.com/bindery/bindery/internal/scheduler"
)

// Resyncer reconciles one client's downloads against its full listing.
type Resyncer interface {
	ListEnabledClients(ctx context.Context) ([]*downloads.DownloadClient, error)
	Resync(ctx context.Context, clientID int64) (*downloads.ResyncReport, error)
}

// DownloadReconcileTask pairs unconfirmed downloads with backend items.
type DownloadReconcileTask struct {
	resyncer Resyncer
	logger   *zerolog.Logger
}

func NewDownloadReconcileTask(resyncer Resyncer, logger *zerolog.Logger) *DownloadReconcileTask {
	subLogger := logger.With().Str("task", "download-reconcile").Logger()
	return &DownloadReconcileTask{
		resyncer: resyncer,
		logger:   &subLogger,
	}
}

// Run resyncs every enabled client. A failing client is logged and skipped.
// Clients that cannot list their downloads are skipped silently.
func (t *DownloadReconcileTask) Run(ctx context.Context) error {
	clients, err := t.resyncer.ListEnabledClients(ctx)
	if err != nil {
		t.logger.Error().Err(err).Msg("Failed to list download clients")
		return err
	}

	failed, skipped := 0, 0
	for _, client := range clients {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, err := t.resyncer.Resync(ctx, client.ID)
		switch {
		case err == nil:
		case errors.Is(err, downloads.ErrNotTrackable):
			skipped++
		default:
			failed++
			t.logger.Warn().Err(err).Int64("clientId", client.ID).Str("name", client.Name).Msg("Download client resync failed")
		}
	}

	t.logger.Debug().
		Int("clients", len(clients)).
		Int("failed", failed).
		Int("skipped", skipped).
		Msg("Download reconciliation completed")
	return nil
}

// RegisterDownloadReconcileTask registers the reconciliation task with the scheduler.
func RegisterDownloadReconcileTask(
	sched *scheduler.Scheduler,
	resyncer Resyncer,
	interval time.Duration,
	logger *zerolog.Logger,
) error {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	task := NewDownloadReconcileTask(resyncer, logger)

	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          "download-reconcile",
		Name:        "Download Reconciliation",
		Description: "Matches untracked downloads with the items their clients report",
		Interval:    interval,
		Func:        task.Run,
	})
}
