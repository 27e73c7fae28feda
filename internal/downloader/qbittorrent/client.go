// Package qbittorrent implements a qBittorrent Web API client on top of
// autobrr/go-qbittorrent.
package qbittorrent

import (
	"context"
	"encoding/base32"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	qbt "github.com/autobrr/go-qbittorrent"

	"github.com/bindery/bindery/internal/downloader/types"
)

// qBittorrent reports this eta for torrents with no estimate.
const infiniteETA = 8640000

var (
	_ types.Client  = (*Client)(nil)
	_ types.Tracker = (*Client)(nil)
)

// Config holds the configuration for a qBittorrent client.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	UseSSL   bool
	URLBase  string
	Category string
}

// Client implements a qBittorrent Web API client.
type Client struct {
	config Config
	api    *qbt.Client

	mu       sync.Mutex
	loggedIn bool
}

// New creates a new qBittorrent client.
func New(cfg Config) *Client {
	return &Client{
		config: cfg,
		api: qbt.NewClient(qbt.Config{
			Host:     baseURL(cfg),
			Username: cfg.Username,
			Password: cfg.Password,
			Timeout:  30,
		}),
	}
}

// NewFromConfig creates a client from a ClientConfig.
func NewFromConfig(cfg *types.ClientConfig) *Client {
	return New(Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		UseSSL:   cfg.UseSSL,
		URLBase:  cfg.URLBase,
		Category: cfg.Category,
	})
}

// Type returns the client type.
func (c *Client) Type() types.ClientType {
	return types.ClientTypeQBittorrent
}

// Test logs in and reads the application version.
func (c *Client) Test(ctx context.Context) error {
	if err := c.login(ctx); err != nil {
		return err
	}
	version, err := c.api.GetAppVersionCtx(ctx)
	if err != nil {
		return err
	}
	if version == "" {
		return errors.New("empty version response from qBittorrent")
	}
	return nil
}

// Add adds a torrent by URL or magnet link. qBittorrent does not return the
// hash of an added torrent, so only magnet links yield an assigned id.
func (c *Client) Add(ctx context.Context, opts *types.AddOptions) (types.ItemID, error) {
	if opts.URL == "" {
		return types.Unassigned(), errors.New("URL must be provided")
	}
	if err := c.login(ctx); err != nil {
		return types.Unassigned(), err
	}

	options := map[string]string{}
	category := opts.Category
	if category == "" {
		category = c.config.Category
	}
	if category != "" {
		options["category"] = category
	}
	if opts.DownloadDir != "" {
		options["savepath"] = opts.DownloadDir
	}
	if opts.Paused {
		options["paused"] = "true"
		options["stopped"] = "true"
	}
	if opts.Name != "" {
		options["rename"] = opts.Name
	}

	if err := c.api.AddTorrentFromUrlCtx(ctx, opts.URL, options); err != nil {
		return types.Unassigned(), err
	}

	return types.Assigned(magnetHash(opts.URL)), nil
}

// List returns the torrents in the configured category, or all torrents when
// no category is set.
func (c *Client) List(ctx context.Context) ([]types.Snapshot, error) {
	if err := c.login(ctx); err != nil {
		return nil, err
	}

	torrents, err := c.api.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{Category: c.config.Category})
	if err != nil {
		return nil, err
	}

	snaps := make([]types.Snapshot, 0, len(torrents))
	for i := range torrents {
		snaps = append(snaps, snapshot(&torrents[i]))
	}
	return snaps, nil
}

// Remove deletes a torrent, optionally with its data.
func (c *Client) Remove(ctx context.Context, id types.ItemID, deleteFiles bool) error {
	if err := c.login(ctx); err != nil {
		return err
	}
	return c.api.DeleteTorrentsCtx(ctx, []string{strings.ToLower(id.Value())}, deleteFiles)
}

func (c *Client) login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loggedIn {
		return nil
	}
	if err := c.api.LoginCtx(ctx); err != nil {
		// The library reports rejected logins only through the message text.
		if strings.Contains(strings.ToLower(err.Error()), "bad credentials") {
			return fmt.Errorf("%w: %v", types.ErrAuthFailed, err)
		}
		return err
	}
	c.loggedIn = true
	return nil
}

func snapshot(t *qbt.Torrent) types.Snapshot {
	snap := types.Snapshot{
		ID:              types.Assigned(t.Hash),
		Title:           t.Name,
		Status:          string(t.State),
		Progress:        types.Float(t.Progress),
		SizeBytes:       types.Int64(t.Size),
		DownloadedBytes: types.Int64(t.Downloaded),
		Speed:           types.Int64(t.DlSpeed),
		Comment:         t.MagnetURI,
	}
	if t.ETA >= 0 && t.ETA < infiniteETA {
		snap.ETASeconds = types.Int64(t.ETA)
	}
	switch {
	case t.ContentPath != "":
		snap.FilePath = types.String(t.ContentPath)
	case t.SavePath != "" && t.Name != "":
		snap.FilePath = types.String(strings.TrimRight(t.SavePath, "/") + "/" + t.Name)
	}
	switch t.State {
	case qbt.TorrentStateError:
		snap.Error = "qBittorrent reported an error for this torrent"
	case qbt.TorrentStateMissingFiles:
		snap.Error = "torrent data files are missing"
	}
	return snap
}

// magnetHash extracts the info hash of a magnet link as lowercase hex.
// Base32 hashes are converted. Other URLs yield "".
func magnetHash(link string) string {
	if !strings.HasPrefix(link, "magnet:") {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	for _, xt := range u.Query()["xt"] {
		hash, ok := strings.CutPrefix(strings.ToLower(xt), "urn:btih:")
		if !ok {
			continue
		}
		switch len(hash) {
		case 40:
			return hash
		case 32:
			raw, err := base32.StdEncoding.DecodeString(strings.ToUpper(hash))
			if err != nil {
				return ""
			}
			return hex.EncodeToString(raw)
		}
	}
	return ""
}

func baseURL(cfg Config) string {
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	u := fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port)
	if base := strings.Trim(cfg.URLBase, "/"); base != "" {
		u += "/" + base
	}
	return u
}
