// Package downloadstation implements a Synology Download Station client.
package downloadstation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bindery/bindery/internal/downloader/types"
)

const (
	taskAPI  = "SYNO.DownloadStation.Task"
	taskPath = "DownloadStation/task.cgi"

	codeBadCredentials = 400
	codeNoPermission   = 105
)

var (
	_ types.Client  = (*Client)(nil)
	_ types.Tracker = (*Client)(nil)
)

type Client struct {
	config     types.ClientConfig
	httpClient *http.Client
	baseURL    string

	mu  sync.Mutex
	sid string
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *apiError       `json:"error,omitempty"`
}

type apiError struct {
	Code int `json:"code"`
}

func (e *apiError) code() int {
	if e == nil {
		return 0
	}
	return e.Code
}

type taskData struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Size        int64  `json:"size"`
	Status      string `json:"status"`
	StatusExtra *struct {
		ErrorDetail string `json:"error_detail"`
	} `json:"status_extra,omitempty"`
	Additional *struct {
		Detail *struct {
			Destination string `json:"destination"`
			URI         string `json:"uri"`
		} `json:"detail,omitempty"`
		Transfer *struct {
			SizeDownloaded types.Number `json:"size_downloaded"`
			SpeedDownload  types.Number `json:"speed_download"`
		} `json:"transfer,omitempty"`
	} `json:"additional,omitempty"`
}

func NewFromConfig(cfg *types.ClientConfig) *Client {
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}

	return &Client{
		config: *cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port),
	}
}

func (c *Client) Type() types.ClientType {
	return types.ClientTypeDownloadStation
}

func (c *Client) Test(ctx context.Context) error {
	params := url.Values{}
	params.Set("api", "SYNO.DownloadStation.Info")
	params.Set("version", "1")
	params.Set("method", "getinfo")

	return c.call(ctx, "DownloadStation/info.cgi", params, nil)
}

// Add creates a task from a URL. Download Station does not return the new
// task's id, so the item is unassigned until a resync matches it by URI.
func (c *Client) Add(ctx context.Context, opts *types.AddOptions) (types.ItemID, error) {
	if opts.URL == "" {
		return types.Unassigned(), errors.New("URL must be provided")
	}

	params := url.Values{}
	params.Set("api", taskAPI)
	params.Set("version", "1")
	params.Set("method", "create")
	params.Set("uri", opts.URL)
	if opts.DownloadDir != "" {
		params.Set("destination", strings.TrimPrefix(opts.DownloadDir, "/"))
	}

	if err := c.call(ctx, taskPath, params, nil); err != nil {
		return types.Unassigned(), err
	}
	return types.Unassigned(), nil
}

func (c *Client) List(ctx context.Context) ([]types.Snapshot, error) {
	params := url.Values{}
	params.Set("api", taskAPI)
	params.Set("version", "1")
	params.Set("method", "list")
	params.Set("additional", "detail,transfer")

	var data struct {
		Tasks []taskData `json:"tasks"`
	}
	if err := c.call(ctx, taskPath, params, &data); err != nil {
		return nil, err
	}

	snaps := make([]types.Snapshot, 0, len(data.Tasks))
	for i := range data.Tasks {
		snaps = append(snaps, data.Tasks[i].snapshot())
	}
	return snaps, nil
}

// Remove deletes a task. Download Station keeps downloaded files regardless.
func (c *Client) Remove(ctx context.Context, id types.ItemID, _ bool) error {
	params := url.Values{}
	params.Set("api", taskAPI)
	params.Set("version", "1")
	params.Set("method", "delete")
	params.Set("id", id.Value())
	params.Set("force_complete", "false")

	return c.call(ctx, taskPath, params, nil)
}

func (t *taskData) snapshot() types.Snapshot {
	snap := types.Snapshot{
		ID:        types.Assigned(t.ID),
		Title:     t.Title,
		Status:    statusWord(t.Status),
		SizeBytes: types.Int64(t.Size),
	}

	if t.Status == "error" {
		snap.Error = "download station reported an error"
		if t.StatusExtra != nil && t.StatusExtra.ErrorDetail != "" {
			snap.Error = t.StatusExtra.ErrorDetail
		}
	}

	if t.Additional == nil {
		return snap
	}
	if d := t.Additional.Detail; d != nil {
		snap.Comment = d.URI
		if d.Destination != "" && t.Title != "" {
			snap.FilePath = types.String(strings.TrimRight(d.Destination, "/") + "/" + t.Title)
		}
	}
	if tr := t.Additional.Transfer; tr != nil {
		if v, err := tr.SizeDownloaded.Float64(); err == nil {
			downloaded := int64(v)
			snap.DownloadedBytes = types.Int64(downloaded)
			if t.Size > 0 {
				snap.Progress = types.Float(float64(downloaded) / float64(t.Size))
			}
		}
		if v, err := tr.SpeedDownload.Float64(); err == nil {
			speed := int64(v)
			snap.Speed = types.Int64(speed)
			if speed > 0 && snap.DownloadedBytes != nil && t.Size > *snap.DownloadedBytes {
				snap.ETASeconds = types.Int64((t.Size - *snap.DownloadedBytes) / speed)
			}
		}
	}
	return snap
}

// statusWord folds Download Station's transitional states into words the
// status vocabulary knows.
func statusWord(status string) string {
	switch status {
	case "captcha_needed", "filehosting_waiting":
		return "waiting"
	default:
		return status
	}
}

// call performs a webapi request, logging in first when there is no session
// and once more when the session has expired.
func (c *Client) call(ctx context.Context, endpoint string, params url.Values, result any) error {
	resp, err := c.request(ctx, endpoint, params)
	if err != nil {
		return err
	}

	if !resp.Success && isSessionError(resp.Error.code()) {
		c.mu.Lock()
		c.sid = ""
		c.mu.Unlock()
		if resp, err = c.request(ctx, endpoint, params); err != nil {
			return err
		}
	}

	if !resp.Success {
		return fmt.Errorf("API error: code %d", resp.Error.code())
	}
	if result != nil && len(resp.Data) > 0 {
		return json.Unmarshal(resp.Data, result)
	}
	return nil
}

func (c *Client) request(ctx context.Context, endpoint string, params url.Values) (*apiResponse, error) {
	sid, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("_sid", sid)

	var resp apiResponse
	if err := c.get(ctx, endpoint, q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) session(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sid != "" {
		return c.sid, nil
	}

	params := url.Values{}
	params.Set("api", "SYNO.API.Auth")
	params.Set("version", "2")
	params.Set("method", "login")
	params.Set("account", c.config.Username)
	params.Set("passwd", c.config.Password)
	params.Set("session", "DownloadStation")
	params.Set("format", "sid")

	var resp apiResponse
	if err := c.get(ctx, "auth.cgi", params, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		switch resp.Error.code() {
		case codeBadCredentials, codeNoPermission:
			return "", types.ErrAuthFailed
		}
		return "", fmt.Errorf("authentication failed: code %d", resp.Error.code())
	}

	var auth struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(resp.Data, &auth); err != nil {
		return "", err
	}
	if auth.SID == "" {
		return "", errors.New("no session id in auth response")
	}

	c.sid = auth.SID
	return c.sid, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out *apiResponse) error {
	u := fmt.Sprintf("%s/webapi/%s?%s", c.baseURL, endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func isSessionError(code int) bool {
	return code == 106 || code == 107 || code == 119
}
