// Package transmission implements a Transmission RPC client.
package transmission

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bindery/bindery/internal/downloader/types"
)

const (
	sessionIDHeader = "X-Transmission-Session-Id"
	defaultRPCPath  = "/transmission/rpc"

	// errorLocal is Transmission's "local error" code; 1 and 2 are tracker warnings.
	errorLocal = 3
)

var torrentFields = []string{
	"id", "name", "status", "percentDone", "downloadDir", "hashString",
	"eta", "rateDownload", "downloadedEver", "sizeWhenDone", "error", "errorString",
	"magnetLink",
}

// Config holds the configuration for a Transmission client.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	UseSSL   bool
	URLBase  string
	Timeout  time.Duration
}

// Client implements a Transmission RPC client.
type Client struct {
	config     Config
	httpClient *http.Client

	mu        sync.Mutex
	sessionID string
}

var (
	_ types.Client  = (*Client)(nil)
	_ types.Tracker = (*Client)(nil)
)

// New creates a new Transmission client.
func New(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		config: *cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewFromConfig creates a client from a ClientConfig.
func NewFromConfig(cfg *types.ClientConfig) *Client {
	return New(&Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		UseSSL:   cfg.UseSSL,
		URLBase:  cfg.URLBase,
	})
}

// Type returns the client type.
func (c *Client) Type() types.ClientType {
	return types.ClientTypeTransmission
}

// Test verifies the client connection.
func (c *Client) Test(ctx context.Context) error {
	_, err := c.call(ctx, "session-get", nil)
	return err
}

// Add adds a torrent by URL or magnet link and returns its info hash.
func (c *Client) Add(ctx context.Context, opts *types.AddOptions) (types.ItemID, error) {
	if opts.URL == "" {
		return types.Unassigned(), fmt.Errorf("URL must be provided")
	}

	args := map[string]interface{}{
		"filename": opts.URL,
	}
	if opts.DownloadDir != "" {
		args["download-dir"] = opts.DownloadDir
	}
	if opts.Paused {
		args["paused"] = true
	}
	if opts.Category != "" {
		args["labels"] = []string{opts.Category}
	}

	resp, err := c.call(ctx, "torrent-add", args)
	if err != nil {
		return types.Unassigned(), err
	}

	return extractTorrentID(resp)
}

// List returns every torrent in the session.
func (c *Client) List(ctx context.Context) ([]types.Snapshot, error) {
	resp, err := c.call(ctx, "torrent-get", map[string]interface{}{"fields": torrentFields})
	if err != nil {
		return nil, err
	}

	var args struct {
		Torrents []torrent `json:"torrents"`
	}
	if err := json.Unmarshal(resp.Arguments, &args); err != nil {
		return nil, fmt.Errorf("failed to decode torrents: %w", err)
	}

	snaps := make([]types.Snapshot, 0, len(args.Torrents))
	for i := range args.Torrents {
		snaps = append(snaps, args.Torrents[i].snapshot())
	}
	return snaps, nil
}

// Remove removes a torrent, optionally deleting its data.
func (c *Client) Remove(ctx context.Context, id types.ItemID, deleteFiles bool) error {
	args := map[string]interface{}{
		"ids":               []string{id.Value()},
		"delete-local-data": deleteFiles,
	}

	_, err := c.call(ctx, "torrent-remove", args)
	return err
}

type torrent struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Status         int     `json:"status"`
	PercentDone    float64 `json:"percentDone"`
	DownloadDir    string  `json:"downloadDir"`
	HashString     string  `json:"hashString"`
	ETA            int64   `json:"eta"`
	RateDownload   int64   `json:"rateDownload"`
	DownloadedEver int64   `json:"downloadedEver"`
	SizeWhenDone   int64   `json:"sizeWhenDone"`
	Error          int     `json:"error"`
	ErrorString    string  `json:"errorString"`
	MagnetLink     string  `json:"magnetLink"`
}

func (t *torrent) snapshot() types.Snapshot {
	snap := types.Snapshot{
		ID:              types.Assigned(t.HashString),
		Title:           t.Name,
		Status:          statusWord(t.Status, t.PercentDone),
		Progress:        types.Float(t.PercentDone),
		SizeBytes:       types.Int64(t.SizeWhenDone),
		DownloadedBytes: types.Int64(t.DownloadedEver),
		Speed:           types.Int64(t.RateDownload),
		Comment:         t.MagnetLink,
	}
	if t.ETA >= 0 {
		snap.ETASeconds = types.Int64(t.ETA)
	}
	if t.DownloadDir != "" && t.Name != "" {
		snap.FilePath = types.String(strings.TrimRight(t.DownloadDir, "/") + "/" + t.Name)
	}
	if t.Error == errorLocal {
		snap.Status = "error"
		snap.Error = t.ErrorString
	}
	return snap
}

// statusWord names Transmission's numeric torrent states. A stopped torrent
// that finished downloading is reported as finished.
func statusWord(status int, percentDone float64) string {
	switch status {
	case 0:
		if percentDone >= 1 {
			return "finished"
		}
		return "stopped"
	case 1:
		return "checking"
	case 2:
		return "verifying"
	case 3:
		return "queued"
	case 4:
		return "downloading"
	case 5:
		return "queuedup"
	case 6:
		return "seeding"
	default:
		return ""
	}
}

type rpcRequest struct {
	Method    string                 `json:"method"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

type rpcResponse struct {
	Result    string          `json:"result"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

func (c *Client) call(ctx context.Context, method string, args map[string]interface{}) (*rpcResponse, error) {
	body, err := json.Marshal(rpcRequest{Method: method, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.do(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Transmission rejects the first request of a session with 409 and the id to use.
	if resp.StatusCode == http.StatusConflict {
		sessionID := resp.Header.Get(sessionIDHeader)
		if sessionID == "" {
			return nil, fmt.Errorf("received 409 but no session ID in response")
		}
		c.mu.Lock()
		c.sessionID = sessionID
		c.mu.Unlock()

		retry, err := c.do(ctx, body)
		if err != nil {
			return nil, err
		}
		defer retry.Body.Close()
		return parseRPCResponse(retry)
	}

	return parseRPCResponse(resp)
}

func (c *Client) do(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	c.mu.Lock()
	if c.sessionID != "" {
		req.Header.Set(sessionIDHeader, c.sessionID)
	}
	c.mu.Unlock()
	if c.config.Username != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(c.config.Username + ":" + c.config.Password))
		req.Header.Set("Authorization", "Basic "+auth)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	return resp, nil
}

func (c *Client) rpcURL() string {
	scheme := "http"
	if c.config.UseSSL {
		scheme = "https"
	}
	path := defaultRPCPath
	if base := strings.Trim(c.config.URLBase, "/"); base != "" {
		path = "/" + base + "/rpc"
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, c.config.Host, c.config.Port, path)
}

func parseRPCResponse(resp *http.Response) (*rpcResponse, error) {
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, types.ErrAuthFailed
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if rpcResp.Result != "success" {
		return nil, fmt.Errorf("RPC error: %s", rpcResp.Result)
	}

	return &rpcResp, nil
}

// extractTorrentID reads the hash of an added or already present torrent.
func extractTorrentID(resp *rpcResponse) (types.ItemID, error) {
	var args struct {
		Added     *torrent `json:"torrent-added"`
		Duplicate *torrent `json:"torrent-duplicate"`
	}
	if err := json.Unmarshal(resp.Arguments, &args); err != nil {
		return types.Unassigned(), fmt.Errorf("failed to decode add response: %w", err)
	}

	for _, t := range []*torrent{args.Added, args.Duplicate} {
		if t == nil {
			continue
		}
		if t.HashString != "" {
			return types.Assigned(t.HashString), nil
		}
	}

	return types.Unassigned(), fmt.Errorf("could not extract torrent ID from response")
}
