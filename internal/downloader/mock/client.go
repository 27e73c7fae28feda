// Package mock provides an in-memory download client for developer mode.
package mock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/bindery/bindery/internal/downloader/types"
)

const (
	// DownloadDuration is how long a mock download takes to complete.
	DownloadDuration = 300 * time.Second
	// QueueDelay is how long items stay queued before starting.
	QueueDelay = 2 * time.Second
	// MockDownloadDir is the simulated download directory.
	MockDownloadDir = "/mock/downloads/bindery"
)

type mockDownload struct {
	ID          string
	Name        string
	URL         string
	Size        int64
	DownloadDir string
	AddedAt     time.Time
	PausedAt    time.Time // zero if not paused
	PausedFor   time.Duration
	Paused      bool
	Completed   bool
	Failure     string
}

// Client simulates download progress over time without transferring anything.
type Client struct {
	mu        sync.RWMutex
	downloads map[string]*mockDownload
	now       func() time.Time
}

var (
	_ types.Client  = (*Client)(nil)
	_ types.Tracker = (*Client)(nil)
)

var (
	instance     *Client
	instanceOnce sync.Once
)

// GetInstance returns the shared mock client. Every configured mock backend
// uses it so that downloads survive the driver pool rebuilding its drivers.
func GetInstance() *Client {
	instanceOnce.Do(func() {
		instance = New(time.Now)
	})
	return instance
}

// New creates an isolated mock client reading time from now.
func New(now func() time.Time) *Client {
	return &Client{
		downloads: make(map[string]*mockDownload),
		now:       now,
	}
}

// NewFromConfig returns the shared instance; the config is ignored.
func NewFromConfig(_ *types.ClientConfig) *Client {
	return GetInstance()
}

func (c *Client) Type() types.ClientType {
	return types.ClientTypeMock
}

func (c *Client) Test(_ context.Context) error {
	return nil
}

func (c *Client) Add(_ context.Context, opts *types.AddOptions) (types.ItemID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := opts.Name
	if name == "" {
		name = opts.URL
	}
	if name == "" {
		name = "Mock Download"
	}

	downloadDir := MockDownloadDir
	if opts.DownloadDir != "" {
		downloadDir = opts.DownloadDir
	}

	now := c.now()
	d := &mockDownload{
		ID:          generateMockID(),
		Name:        name,
		URL:         opts.URL,
		Size:        int64(5+randInt(45)) * 1024 * 1024,
		DownloadDir: downloadDir,
		AddedAt:     now,
	}
	if opts.Paused {
		d.Paused = true
		d.PausedAt = now
	}
	c.downloads[d.ID] = d

	return types.Assigned(d.ID), nil
}

func (c *Client) List(_ context.Context) ([]types.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	snaps := make([]types.Snapshot, 0, len(c.downloads))
	for _, d := range c.downloads {
		snaps = append(snaps, c.snapshot(d, now))
	}
	return snaps, nil
}

func (c *Client) Remove(_ context.Context, id types.ItemID, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.downloads[id.Value()]; !ok {
		return types.ErrNotFound
	}
	delete(c.downloads, id.Value())
	return nil
}

// Pause freezes a download's progress.
func (c *Client) Pause(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.downloads[id]
	if !ok {
		return types.ErrNotFound
	}
	if !d.Paused && !d.Completed {
		d.Paused = true
		d.PausedAt = c.now()
	}
	return nil
}

// Resume continues a paused download.
func (c *Client) Resume(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.downloads[id]
	if !ok {
		return types.ErrNotFound
	}
	if d.Paused {
		d.PausedFor += c.now().Sub(d.PausedAt)
		d.PausedAt = time.Time{}
		d.Paused = false
	}
	return nil
}

// FastForward instantly completes a download.
func (c *Client) FastForward(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.downloads[id]
	if !ok {
		return types.ErrNotFound
	}
	d.Completed = true
	d.Paused = false
	d.PausedAt = time.Time{}
	return nil
}

// Fail marks a download as failed with message.
func (c *Client) Fail(id, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.downloads[id]
	if !ok {
		return types.ErrNotFound
	}
	d.Failure = message
	return nil
}

// Clear removes all mock downloads.
func (c *Client) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.downloads = make(map[string]*mockDownload)
}

// DownloadCount returns the number of mock downloads.
func (c *Client) DownloadCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.downloads)
}

func (c *Client) snapshot(d *mockDownload, now time.Time) types.Snapshot {
	elapsed := now.Sub(d.AddedAt) - d.PausedFor
	if d.Paused && !d.PausedAt.IsZero() {
		elapsed -= now.Sub(d.PausedAt)
	}

	snap := types.Snapshot{
		ID:        types.Assigned(d.ID),
		Title:     d.Name,
		SizeBytes: types.Int64(d.Size),
		FilePath:  types.String(d.DownloadDir + "/" + d.Name),
		Comment:   d.URL,
	}

	progress := float64(elapsed-QueueDelay) / float64(DownloadDuration)
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	switch {
	case d.Failure != "":
		snap.Status = "failed"
		snap.Error = d.Failure
	case d.Completed || elapsed >= QueueDelay+DownloadDuration:
		d.Completed = true
		progress = 1
		snap.Status = "completed"
		snap.ETASeconds = types.Int64(0)
	case d.Paused:
		snap.Status = "paused"
	case elapsed < QueueDelay:
		snap.Status = "queued"
		snap.ETASeconds = types.Int64(int64((QueueDelay + DownloadDuration - elapsed).Seconds()))
	default:
		snap.Status = "downloading"
		snap.Speed = types.Int64(int64(float64(d.Size) / DownloadDuration.Seconds()))
		snap.ETASeconds = types.Int64(int64((1 - progress) * DownloadDuration.Seconds()))
	}

	snap.Progress = types.Float(progress)
	snap.DownloadedBytes = types.Int64(int64(float64(d.Size) * progress))
	return snap
}

func generateMockID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	return "mock-" + hex.EncodeToString(bytes)
}

// randInt returns a random int between 0 and maxVal-1.
func randInt(maxVal int) int {
	if maxVal <= 0 {
		return 0
	}
	bytes := make([]byte, 1)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	return int(bytes[0]) % maxVal
}
