package downloads

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/bindery/bindery/internal/downloader/types"
)

// DefaultFailureMessage is recorded when a backend reports a failure without
// saying why.
const DefaultFailureMessage = "Download failed in client"

// ItemUpdater applies one polled snapshot to a download item. It reports
// whether the item changed.
type ItemUpdater interface {
	Update(item *DownloadItem, snap *types.Snapshot) bool
}

// SnapshotUpdater is the default ItemUpdater. It never fails: a malformed
// field is logged and skipped and the rest of the snapshot still applies.
type SnapshotUpdater struct {
	mapper StatusMapper
	now    func() time.Time
	logger zerolog.Logger
}

var _ ItemUpdater = (*SnapshotUpdater)(nil)

// NewItemUpdater creates an updater using mapper for status normalization.
func NewItemUpdater(mapper StatusMapper, logger zerolog.Logger) *SnapshotUpdater {
	if mapper == nil {
		mapper = NewStatusMapper(nil)
	}
	return &SnapshotUpdater{
		mapper: mapper,
		now:    time.Now,
		logger: logger.With().Str("component", "item-updater").Logger(),
	}
}

// Update runs progress, status, metadata, completion and failure steps in
// that order. Applying the same snapshot twice leaves the item as it was
// after the first application.
func (u *SnapshotUpdater) Update(item *DownloadItem, snap *types.Snapshot) bool {
	if item == nil || snap == nil {
		return false
	}

	changed := u.applyProgress(item, snap)

	if snap.Status != "" {
		if status := u.mapper.Map(snap.Status); status != item.Status {
			item.Status = status
			changed = true
		}
	}

	changed = u.applyMetadata(item, snap) || changed

	if item.Status == StatusCompleted && item.CompletedAt == nil {
		now := u.now().UTC()
		item.CompletedAt = &now
		changed = true
	}

	if item.Status == StatusFailed && item.ErrorMessage == nil {
		msg := snap.Error
		if msg == "" {
			msg = DefaultFailureMessage
		}
		item.ErrorMessage = &msg
		changed = true
	}

	return changed
}

func (u *SnapshotUpdater) applyProgress(item *DownloadItem, snap *types.Snapshot) bool {
	if snap.Progress == nil {
		return false
	}

	p, err := snap.Progress.Float64()
	if err == nil && (math.IsNaN(p) || math.IsInf(p, 0)) {
		err = errNotFinite
	}
	if err != nil {
		u.logger.Warn().
			Err(err).
			Int64("downloadId", item.ID).
			Str("value", string(*snap.Progress)).
			Msg("Ignoring unparseable progress")
		return false
	}

	p = math.Min(1, math.Max(0, p))
	if p == item.Progress {
		return false
	}
	item.Progress = p
	return true
}

func (u *SnapshotUpdater) applyMetadata(item *DownloadItem, snap *types.Snapshot) bool {
	changed := false
	for _, f := range []struct {
		name string
		src  *int64
		dst  **int64
	}{
		{"sizeBytes", snap.SizeBytes, &item.SizeBytes},
		{"downloadedBytes", snap.DownloadedBytes, &item.DownloadedBytes},
		{"speed", snap.Speed, &item.Speed},
		{"etaSeconds", snap.ETASeconds, &item.ETASeconds},
	} {
		if f.src == nil {
			continue
		}
		if *f.src < 0 {
			u.logger.Warn().
				Int64("downloadId", item.ID).
				Str("field", f.name).
				Int64("value", *f.src).
				Msg("Ignoring negative value")
			continue
		}
		if *f.dst != nil && **f.dst == *f.src {
			continue
		}
		v := *f.src
		*f.dst = &v
		changed = true
	}

	if snap.FilePath != nil && (item.FilePath == nil || *item.FilePath != *snap.FilePath) {
		path := *snap.FilePath
		item.FilePath = &path
		changed = true
	}

	return changed
}
