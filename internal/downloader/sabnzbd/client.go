// Package sabnzbd implements a SABnzbd API client.
package sabnzbd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bindery/bindery/internal/downloader/types"
)

const historyLimit = 200

// Config holds the configuration for a SABnzbd client.
type Config struct {
	Host     string
	Port     int
	APIKey   string
	UseSSL   bool
	URLBase  string
	Category string
	Timeout  time.Duration
}

// Client implements a SABnzbd API client.
type Client struct {
	config     Config
	httpClient *http.Client
}

var (
	_ types.Client  = (*Client)(nil)
	_ types.Tracker = (*Client)(nil)
)

// New creates a new SABnzbd client.
func New(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		config:     *cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewFromConfig creates a client from a ClientConfig.
func NewFromConfig(cfg *types.ClientConfig) *Client {
	return New(&Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		APIKey:   cfg.APIKey,
		UseSSL:   cfg.UseSSL,
		URLBase:  cfg.URLBase,
		Category: cfg.Category,
	})
}

// Type returns the client type.
func (c *Client) Type() types.ClientType {
	return types.ClientTypeSABnzbd
}

// Test checks the API key by reading an empty queue page.
func (c *Client) Test(ctx context.Context) error {
	params := url.Values{}
	params.Set("limit", "0")

	var resp struct {
		Queue *json.RawMessage `json:"queue"`
	}
	if err := c.call(ctx, "queue", params, &resp); err != nil {
		return err
	}
	if resp.Queue == nil {
		return errors.New("unexpected queue response from SABnzbd")
	}
	return nil
}

// Add queues an NZB by URL and returns its nzo id.
func (c *Client) Add(ctx context.Context, opts *types.AddOptions) (types.ItemID, error) {
	if opts.URL == "" {
		return types.Unassigned(), errors.New("URL must be provided")
	}

	params := url.Values{}
	params.Set("name", opts.URL)
	if opts.Name != "" {
		params.Set("nzbname", opts.Name)
	}
	category := opts.Category
	if category == "" {
		category = c.config.Category
	}
	if category != "" {
		params.Set("cat", category)
	}
	if opts.Paused {
		params.Set("priority", "-2")
	}

	var resp struct {
		NzoIDs []string `json:"nzo_ids"`
	}
	if err := c.call(ctx, "addurl", params, &resp); err != nil {
		return types.Unassigned(), err
	}
	if len(resp.NzoIDs) == 0 {
		return types.Unassigned(), nil
	}
	return types.Assigned(resp.NzoIDs[0]), nil
}

// List returns queued jobs followed by recent history.
func (c *Client) List(ctx context.Context) ([]types.Snapshot, error) {
	var queue struct {
		Queue struct {
			KBPerSec types.Number `json:"kbpersec"`
			Slots    []queueSlot  `json:"slots"`
		} `json:"queue"`
	}
	if err := c.call(ctx, "queue", nil, &queue); err != nil {
		return nil, fmt.Errorf("queue: %w", err)
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(historyLimit))
	if c.config.Category != "" {
		params.Set("category", c.config.Category)
	}
	var history struct {
		History struct {
			Slots []historySlot `json:"slots"`
		} `json:"history"`
	}
	if err := c.call(ctx, "history", params, &history); err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	// Only the job at the head of the queue is transferring.
	var speed int64
	if kb, err := queue.Queue.KBPerSec.Float64(); err == nil {
		speed = int64(kb * 1024)
	}

	snaps := make([]types.Snapshot, 0, len(queue.Queue.Slots)+len(history.History.Slots))
	for i := range queue.Queue.Slots {
		slot := &queue.Queue.Slots[i]
		if c.config.Category != "" && slot.Category != c.config.Category {
			continue
		}
		snap := slot.snapshot()
		if i == 0 && strings.EqualFold(slot.Status, "downloading") {
			snap.Speed = types.Int64(speed)
		}
		snaps = append(snaps, snap)
	}
	for i := range history.History.Slots {
		snaps = append(snaps, history.History.Slots[i].snapshot())
	}
	return snaps, nil
}

// Remove deletes a job from the queue, or from history when it has finished.
func (c *Client) Remove(ctx context.Context, id types.ItemID, deleteFiles bool) error {
	params := url.Values{}
	params.Set("name", "delete")
	params.Set("value", id.Value())
	if deleteFiles {
		params.Set("del_files", "1")
	}

	var resp struct {
		Status bool     `json:"status"`
		NzoIDs []string `json:"nzo_ids"`
	}
	if err := c.call(ctx, "queue", params, &resp); err != nil {
		return err
	}
	if len(resp.NzoIDs) > 0 {
		return nil
	}

	return c.call(ctx, "history", params, nil)
}

type queueSlot struct {
	NzoID      string       `json:"nzo_id"`
	Filename   string       `json:"filename"`
	Status     string       `json:"status"`
	Category   string       `json:"cat"`
	Percentage types.Number `json:"percentage"`
	MB         types.Number `json:"mb"`
	MBLeft     types.Number `json:"mbleft"`
	TimeLeft   string       `json:"timeleft"`
}

func (s *queueSlot) snapshot() types.Snapshot {
	snap := types.Snapshot{
		ID:     types.Assigned(s.NzoID),
		Title:  s.Filename,
		Status: statusWord(s.Status),
	}
	if s.Percentage != "" {
		snap.Progress = types.Text(string(s.Percentage) + "%")
	}
	if mb, err := s.MB.Float64(); err == nil {
		size := megabytes(mb)
		snap.SizeBytes = types.Int64(size)
		if left, err := s.MBLeft.Float64(); err == nil {
			snap.DownloadedBytes = types.Int64(size - megabytes(left))
		}
	}
	if eta, ok := parseTimeLeft(s.TimeLeft); ok {
		snap.ETASeconds = types.Int64(eta)
	}
	return snap
}

type historySlot struct {
	NzoID       string `json:"nzo_id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	FailMessage string `json:"fail_message"`
	Storage     string `json:"storage"`
	Bytes       int64  `json:"bytes"`
	URL         string `json:"url"`
}

func (s *historySlot) snapshot() types.Snapshot {
	snap := types.Snapshot{
		ID:        types.Assigned(s.NzoID),
		Title:     s.Name,
		Status:    statusWord(s.Status),
		SizeBytes: types.Int64(s.Bytes),
		Comment:   s.URL,
		Error:     s.FailMessage,
	}
	if strings.EqualFold(s.Status, "completed") {
		snap.Progress = types.Float(1)
		snap.DownloadedBytes = types.Int64(s.Bytes)
	}
	if s.Storage != "" {
		snap.FilePath = types.String(s.Storage)
	}
	return snap
}

// statusWord lowercases SABnzbd's job states. QuickCheck is a checking pass.
func statusWord(status string) string {
	s := strings.ToLower(status)
	if s == "quickcheck" {
		return "checking"
	}
	return s
}

func (c *Client) call(ctx context.Context, mode string, params url.Values, out any) error {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("mode", mode)
	q.Set("output", "json")
	q.Set("apikey", c.config.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL()+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return types.ErrAuthFailed
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var status struct {
		Status *bool  `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if status.Error != "" {
		if strings.Contains(strings.ToLower(status.Error), "api key") {
			return fmt.Errorf("%w: %s", types.ErrAuthFailed, status.Error)
		}
		return fmt.Errorf("API error: %s", status.Error)
	}
	if status.Status != nil && !*status.Status {
		return fmt.Errorf("SABnzbd rejected %s request", mode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", mode, err)
	}
	return nil
}

func (c *Client) apiURL() string {
	scheme := "http"
	if c.config.UseSSL {
		scheme = "https"
	}
	path := "/api"
	if base := strings.Trim(c.config.URLBase, "/"); base != "" {
		path = "/" + base + "/api"
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, c.config.Host, c.config.Port, path)
}

func megabytes(mb float64) int64 {
	return int64(mb * 1024 * 1024)
}

// parseTimeLeft reads SABnzbd's [d:]h:mm:ss countdown.
func parseTimeLeft(s string) (int64, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 3 || len(parts) > 4 {
		return 0, false
	}
	multipliers := []int64{1, 60, 3600, 86400}
	var total int64
	for i := range parts {
		v, err := strconv.ParseInt(parts[len(parts)-1-i], 10, 64)
		if err != nil || v < 0 {
			return 0, false
		}
		total += v * multipliers[i]
	}
	return total, true
}
