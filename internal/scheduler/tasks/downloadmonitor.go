package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bindery/bindery/internal/downloads"
	"github.com/bindery/bindery/internal/scheduler"
)

// Tracker runs one poll cycle over the active downloads.
type Tracker interface {
	TrackAll(ctx context.Context) (*downloads.TrackReport, error)
}

// DownloadMonitorTask polls the download clients for progress.
type DownloadMonitorTask struct {
	tracker Tracker
	logger  *zerolog.Logger
}

// NewDownloadMonitorTask creates a new download monitor task.
func NewDownloadMonitorTask(tracker Tracker, logger *zerolog.Logger) *DownloadMonitorTask {
	subLogger := logger.With().Str("task", "download-monitor").Logger()
	return &DownloadMonitorTask{
		tracker: tracker,
		logger:  &subLogger,
	}
}

// Run executes one poll cycle.
func (t *DownloadMonitorTask) Run(ctx context.Context) error {
	log := t.logger.With().Str("cycleId", uuid.NewString()).Logger()
	start := time.Now()

	report, err := t.tracker.TrackAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Download poll cycle failed")
		return err
	}

	evt := log.Debug()
	if report.Skipped > 0 {
		evt = log.Warn()
	}
	evt.Int("clients", report.Clients).
		Int("items", report.Items).
		Int("updated", report.Updated).
		Int("skipped", report.Skipped).
		Dur("duration", time.Since(start)).
		Msg("Download poll cycle complete")
	return nil
}

// RegisterDownloadMonitorTask registers the download monitor with the scheduler.
func RegisterDownloadMonitorTask(
	sched *scheduler.Scheduler,
	tracker Tracker,
	interval time.Duration,
	logger *zerolog.Logger,
) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	task := NewDownloadMonitorTask(tracker, logger)

	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          "download-monitor",
		Name:        "Download Monitor",
		Description: fmt.Sprintf("Polls download clients for progress every %s", interval),
		Interval:    interval,
		RunOnStart:  true,
		Func:        task.Run,
	})
}
