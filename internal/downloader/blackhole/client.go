// Package blackhole implements a watch-folder download client. Releases are
// fetched and written into a directory that an external program watches.
package blackhole

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bindery/bindery/internal/downloader/types"
)

// maxReleaseSize bounds a fetched .torrent or .nzb file.
const maxReleaseSize = 32 << 20

var _ types.Client = (*Client)(nil)

type Client struct {
	clientType types.ClientType
	dir        string
	httpClient *http.Client
}

func NewFromConfig(clientType types.ClientType, cfg *types.ClientConfig) *Client {
	return &Client{
		clientType: clientType,
		dir:        cfg.DownloadDir,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Type() types.ClientType {
	return c.clientType
}

// Test checks that the watch folder exists and is writable.
func (c *Client) Test(_ context.Context) error {
	if c.dir == "" {
		return errors.New("watch folder is not configured")
	}
	info, err := os.Stat(c.dir)
	if err != nil {
		return fmt.Errorf("watch folder: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch folder %s is not a directory", c.dir)
	}

	f, err := os.CreateTemp(c.dir, ".bindery-probe-*")
	if err != nil {
		return fmt.Errorf("watch folder is not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// Add writes the release into the watch folder. The backend never reports an
// id, so items stay unassigned.
func (c *Client) Add(ctx context.Context, opts *types.AddOptions) (types.ItemID, error) {
	if opts.URL == "" {
		return types.Unassigned(), errors.New("URL must be provided")
	}
	if c.dir == "" {
		return types.Unassigned(), errors.New("watch folder is not configured")
	}

	var data []byte
	if strings.HasPrefix(opts.URL, "magnet:") {
		data = []byte(opts.URL)
	} else {
		var err error
		if data, err = c.fetch(ctx, opts.URL); err != nil {
			return types.Unassigned(), err
		}
	}

	target := filepath.Join(c.dir, c.fileName(opts))
	tmp := target + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return types.Unassigned(), fmt.Errorf("failed to write release: %w", err)
	}
	// Rename so watchers never see a partial file.
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return types.Unassigned(), fmt.Errorf("failed to move release into place: %w", err)
	}

	return types.Unassigned(), nil
}

// Remove is not supported; the file has been handed off.
func (c *Client) Remove(_ context.Context, _ types.ItemID, _ bool) error {
	return types.ErrNotImplemented
}

func (c *Client) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code fetching release: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReleaseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read release: %w", err)
	}
	if len(data) > maxReleaseSize {
		return nil, fmt.Errorf("release exceeds %d bytes", maxReleaseSize)
	}
	return data, nil
}

func (c *Client) fileName(opts *types.AddOptions) string {
	ext := ".torrent"
	switch {
	case c.clientType == types.ClientTypeUsenetBlackhole:
		ext = ".nzb"
	case strings.HasPrefix(opts.URL, "magnet:"):
		ext = ".magnet"
	}

	base := sanitize(opts.Name)
	if base == "" {
		return uuid.NewString() + ext
	}
	return base + "-" + uuid.NewString()[:8] + ext
}

func sanitize(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, name)
	return strings.Trim(strings.TrimSpace(name), ".")
}
