// Package aria2 implements an aria2 JSON-RPC client for direct downloads.
package aria2

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bindery/bindery/internal/downloader/types"
)

const listPageSize = 1000

var statusKeys = []string{
	"gid", "status", "totalLength", "completedLength", "downloadSpeed",
	"dir", "files", "bittorrent", "infoHash", "errorMessage",
}

type Client struct {
	config     types.ClientConfig
	httpClient *http.Client
	requestID  atomic.Int64
}

var (
	_ types.Client  = (*Client)(nil)
	_ types.Tracker = (*Client)(nil)
)

func NewFromConfig(cfg *types.ClientConfig) *Client {
	return &Client{
		config: *cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Type() types.ClientType {
	return types.ClientTypeAria2
}

func (c *Client) Test(ctx context.Context) error {
	var version struct {
		Version string `json:"version"`
	}
	if err := c.call(ctx, "aria2.getVersion", nil, &version); err != nil {
		return err
	}
	if version.Version == "" {
		return fmt.Errorf("empty version response from aria2")
	}
	return nil
}

func (c *Client) Add(ctx context.Context, opts *types.AddOptions) (types.ItemID, error) {
	if opts.URL == "" {
		return types.Unassigned(), fmt.Errorf("URL must be provided")
	}

	options := map[string]any{}
	if opts.DownloadDir != "" {
		options["dir"] = opts.DownloadDir
	}
	if opts.Paused {
		options["pause"] = "true"
	}

	var gid string
	if err := c.call(ctx, "aria2.addUri", []any{[]string{opts.URL}, options}, &gid); err != nil {
		return types.Unassigned(), err
	}
	return types.Assigned(gid), nil
}

// List merges the active, waiting and stopped queues.
func (c *Client) List(ctx context.Context) ([]types.Snapshot, error) {
	var active, waiting, stopped []status

	if err := c.call(ctx, "aria2.tellActive", []any{statusKeys}, &active); err != nil {
		return nil, fmt.Errorf("tellActive: %w", err)
	}
	if err := c.call(ctx, "aria2.tellWaiting", []any{0, listPageSize, statusKeys}, &waiting); err != nil {
		return nil, fmt.Errorf("tellWaiting: %w", err)
	}
	if err := c.call(ctx, "aria2.tellStopped", []any{0, listPageSize, statusKeys}, &stopped); err != nil {
		return nil, fmt.Errorf("tellStopped: %w", err)
	}

	snaps := make([]types.Snapshot, 0, len(active)+len(waiting)+len(stopped))
	for _, group := range [][]status{active, waiting, stopped} {
		for i := range group {
			snaps = append(snaps, group[i].snapshot())
		}
	}
	return snaps, nil
}

// Remove stops a download and clears its result. aria2 never deletes files.
func (c *Client) Remove(ctx context.Context, id types.ItemID, _ bool) error {
	err := c.call(ctx, "aria2.forceRemove", []any{id.Value()}, nil)
	if err != nil {
		// forceRemove only works for active/waiting downloads;
		// for completed/error/removed items, use removeDownloadResult
		return c.call(ctx, "aria2.removeDownloadResult", []any{id.Value()}, nil)
	}
	return nil
}

type status struct {
	GID             string `json:"gid"`
	Status          string `json:"status"`
	TotalLength     string `json:"totalLength"`
	CompletedLength string `json:"completedLength"`
	DownloadSpeed   string `json:"downloadSpeed"`
	Dir             string `json:"dir"`
	InfoHash        string `json:"infoHash"`
	ErrorMessage    string `json:"errorMessage"`
	Files           []struct {
		Path string `json:"path"`
		URIs []struct {
			URI string `json:"uri"`
		} `json:"uris"`
	} `json:"files"`
	BitTorrent *struct {
		Info struct {
			Name string `json:"name"`
		} `json:"info"`
	} `json:"bittorrent"`
}

func (s *status) snapshot() types.Snapshot {
	total := parseIntString(s.TotalLength)
	completed := parseIntString(s.CompletedLength)
	speed := parseIntString(s.DownloadSpeed)

	snap := types.Snapshot{
		ID:              types.Assigned(s.GID),
		Title:           s.name(),
		Status:          statusWord(s.Status, total, completed),
		SizeBytes:       types.Int64(total),
		DownloadedBytes: types.Int64(completed),
		Speed:           types.Int64(speed),
	}
	if total > 0 {
		snap.Progress = types.Float(float64(completed) / float64(total))
		if speed > 0 && total > completed {
			snap.ETASeconds = types.Int64((total - completed) / speed)
		}
	}
	if len(s.Files) > 0 {
		if s.Files[0].Path != "" {
			snap.FilePath = types.String(s.Files[0].Path)
		}
		if len(s.Files[0].URIs) > 0 {
			snap.Comment = s.Files[0].URIs[0].URI
		}
	}
	if s.Status == "error" {
		snap.Error = s.ErrorMessage
	}
	return snap
}

func (s *status) name() string {
	if s.BitTorrent != nil && s.BitTorrent.Info.Name != "" {
		return s.BitTorrent.Info.Name
	}
	if len(s.Files) > 0 && s.Files[0].Path != "" {
		return filepath.Base(s.Files[0].Path)
	}
	return s.GID
}

// statusWord reports finished-but-active torrents as seeding.
func statusWord(aria2Status string, totalLength, completedLength int64) string {
	switch aria2Status {
	case "active":
		if totalLength > 0 && completedLength >= totalLength {
			return "seeding"
		}
		return "active"
	case "waiting":
		return "waiting"
	case "paused":
		return "paused"
	case "error":
		return "error"
	case "complete":
		return "complete"
	case "removed":
		return "removed"
	default:
		return aria2Status
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) call(ctx context.Context, method string, extraParams []any, out any) error {
	var params []any
	if c.config.APIKey != "" {
		params = append(params, "token:"+c.config.APIKey)
	}
	params = append(params, extraParams...)

	jsonData, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      strconv.FormatInt(c.requestID.Add(1), 10),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(), bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		if rpcResp.Error.Code == 1 && strings.Contains(strings.ToLower(rpcResp.Error.Message), "unauthorized") {
			return types.ErrAuthFailed
		}
		return fmt.Errorf("RPC error: %s (code %d)", rpcResp.Error.Message, rpcResp.Error.Code)
	}

	if out == nil || len(rpcResp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

func (c *Client) buildURL() string {
	scheme := "http"
	if c.config.UseSSL {
		scheme = "https"
	}

	urlPath := "/jsonrpc"
	if c.config.URLBase != "" {
		urlPath = "/" + strings.Trim(c.config.URLBase, "/") + "/jsonrpc"
	}

	return fmt.Sprintf("%s://%s:%d%s", scheme, c.config.Host, c.config.Port, urlPath)
}

func parseIntString(s string) int64 {
	if s == "" {
		return 0
	}
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
