package downloads

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bindery/bindery/internal/downloader/types"
)

func newTestUpdater() *SnapshotUpdater {
	u := NewItemUpdater(NewStatusMapper(nil), zerolog.Nop())
	u.now = func() time.Time { return testNow }
	return u
}

func TestSnapshotUpdater_Progress(t *testing.T) {
	tests := []struct {
		name string
		in   *types.Number
		want float64
	}{
		{"fraction", types.Float(0.25), 0.25},
		{"clamped high", types.Float(1.7), 1},
		{"clamped low", types.Float(-0.3), 0},
		{"percent string", types.Text("45%"), 0.45},
		{"numeric string", types.Text("0.9"), 0.9},
		{"garbage ignored", types.Text("n/a"), 0.1},
		{"nan ignored", types.Text("NaN"), 0.1},
		{"inf ignored", types.Text("+Inf"), 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := &DownloadItem{Status: StatusDownloading, Progress: 0.1}
			newTestUpdater().Update(item, &types.Snapshot{Progress: tt.in})
			assert.Equal(t, tt.want, item.Progress)
		})
	}
}

func TestSnapshotUpdater_BadProgressDoesNotBlockOtherFields(t *testing.T) {
	item := &DownloadItem{Status: StatusDownloading, Progress: 0.2}
	changed := newTestUpdater().Update(item, &types.Snapshot{
		Status:    "seeding",
		Progress:  types.Text("garbage"),
		SizeBytes: types.Int64(2048),
	})

	assert.True(t, changed)
	assert.Equal(t, StatusSeeding, item.Status)
	assert.Equal(t, 0.2, item.Progress)
	require.NotNil(t, item.SizeBytes)
	assert.Equal(t, int64(2048), *item.SizeBytes)
}

func TestSnapshotUpdater_Metadata(t *testing.T) {
	item := &DownloadItem{Status: StatusDownloading, SizeBytes: types.Int64(100)}
	newTestUpdater().Update(item, &types.Snapshot{
		SizeBytes:       types.Int64(-1),
		DownloadedBytes: types.Int64(50),
		Speed:           types.Int64(1000),
		ETASeconds:      types.Int64(-5),
		FilePath:        types.String("/downloads/dune.epub"),
	})

	assert.Equal(t, int64(100), *item.SizeBytes, "negative values are skipped")
	assert.Equal(t, int64(50), *item.DownloadedBytes)
	assert.Equal(t, int64(1000), *item.Speed)
	assert.Nil(t, item.ETASeconds)
	assert.Equal(t, "/downloads/dune.epub", *item.FilePath)
}

func TestSnapshotUpdater_EmptyStatusKeepsCurrent(t *testing.T) {
	item := &DownloadItem{Status: StatusPaused}
	newTestUpdater().Update(item, &types.Snapshot{Progress: types.Float(0.5)})
	assert.Equal(t, StatusPaused, item.Status)
}

func TestSnapshotUpdater_Completion(t *testing.T) {
	u := newTestUpdater()
	item := &DownloadItem{Status: StatusDownloading, Progress: 0.4}
	snap := &types.Snapshot{Status: "completed", Progress: types.Float(1)}

	require.True(t, u.Update(item, snap))
	assert.Equal(t, StatusCompleted, item.Status)
	assert.Equal(t, 1.0, item.Progress)
	require.NotNil(t, item.CompletedAt)
	assert.Equal(t, testNow, *item.CompletedAt)
	assert.Nil(t, item.ErrorMessage)

	u.now = func() time.Time { return testNow.Add(time.Hour) }
	assert.False(t, u.Update(item, snap), "second application is a no-op")
	assert.Equal(t, testNow, *item.CompletedAt)
}

func TestSnapshotUpdater_Failure(t *testing.T) {
	u := newTestUpdater()

	item := &DownloadItem{Status: StatusDownloading}
	u.Update(item, &types.Snapshot{Status: "failed"})
	require.NotNil(t, item.ErrorMessage)
	assert.Equal(t, DefaultFailureMessage, *item.ErrorMessage)

	item = &DownloadItem{Status: StatusDownloading}
	u.Update(item, &types.Snapshot{Status: "error", Error: "No space left on device"})
	require.NotNil(t, item.ErrorMessage)
	assert.Equal(t, "No space left on device", *item.ErrorMessage)

	u.Update(item, &types.Snapshot{Status: "error", Error: "different"})
	assert.Equal(t, "No space left on device", *item.ErrorMessage, "existing message is kept")
}

func TestSnapshotUpdater_Idempotent(t *testing.T) {
	u := newTestUpdater()
	snap := &types.Snapshot{
		Status:          "downloading",
		Progress:        types.Text("62.5%"),
		SizeBytes:       types.Int64(4096),
		DownloadedBytes: types.Int64(2560),
		Speed:           types.Int64(300),
		ETASeconds:      types.Int64(5),
	}

	item := &DownloadItem{Status: StatusQueued}
	assert.True(t, u.Update(item, snap))
	first := item.Clone()
	assert.False(t, u.Update(item, snap))
	assert.Equal(t, first, item)
}

func TestSnapshotUpdater_NilInputs(t *testing.T) {
	u := newTestUpdater()
	assert.False(t, u.Update(nil, &types.Snapshot{}))
	assert.False(t, u.Update(&DownloadItem{}, nil))
}
