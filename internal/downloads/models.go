// Package downloads orchestrates book downloads across external backends and
// keeps persisted download records reconciled with what those backends report.
package downloads

import (
	"slices"
	"strings"
	"time"

	"github.com/bindery/bindery/internal/downloader/types"
)

// Status is the canonical download status, independent of any backend's vocabulary.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusStalled     Status = "stalled"
	StatusSeeding     Status = "seeding"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusRemoved     Status = "removed"
)

// AllStatuses lists every canonical status.
func AllStatuses() []Status {
	return []Status{
		StatusQueued, StatusDownloading, StatusPaused, StatusStalled,
		StatusSeeding, StatusCompleted, StatusFailed, StatusRemoved,
	}
}

// ParseStatus parses a canonical status name case-insensitively.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(AllStatuses(), st) {
		return st, true
	}
	return "", false
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return IsTerminal(s)
}

// IsTerminal is true exactly for completed, failed and removed.
func IsTerminal(s Status) bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusRemoved:
		return true
	default:
		return false
	}
}

// BookStatus is the wanted-state of a tracked book.
type BookStatus string

const (
	BookWanted      BookStatus = "wanted"
	BookSearching   BookStatus = "searching"
	BookDownloading BookStatus = "downloading"
	BookPaused      BookStatus = "paused"
	BookStalled     BookStatus = "stalled"
	BookSeeding     BookStatus = "seeding"
	BookCompleted   BookStatus = "completed"
	BookFailed      BookStatus = "failed"
	BookIgnored     BookStatus = "ignored"
)

// IsSticky reports whether download events must leave the book alone.
func (s BookStatus) IsSticky() bool {
	return s == BookCompleted || s == BookIgnored
}

// Release is a candidate file from a search result. It is never persisted.
type Release struct {
	Title       string `json:"title"`
	DownloadURL string `json:"downloadUrl"`
	SizeBytes   *int64 `json:"sizeBytes,omitempty"`
	Seeders     *int   `json:"seeders,omitempty"`
	Leechers    *int   `json:"leechers,omitempty"`
	Quality     string `json:"quality,omitempty"`
	Author      string `json:"author,omitempty"`
	ISBN        string `json:"isbn,omitempty"`
}

// HealthStatus is the outcome of the last connection check for a client.
type HealthStatus string

const (
	HealthUnknown HealthStatus = "unknown"
	HealthOK      HealthStatus = "ok"
	HealthFailed  HealthStatus = "failed"
)

// DownloadClient is a configured backend. It is managed by the admin
// surface and only read here, apart from its health fields.
type DownloadClient struct {
	ID            int64            `json:"id"`
	Name          string           `json:"name"`
	Type          types.ClientType `json:"type"`
	Enabled       bool             `json:"enabled"`
	Priority      int              `json:"priority"`
	Host          string           `json:"host"`
	Port          int              `json:"port"`
	UseSSL        bool             `json:"useSsl"`
	URLBase       string           `json:"urlBase"`
	Username      string           `json:"username"`
	Password      string           `json:"-"`
	APIKey        string           `json:"-"`
	Category      string           `json:"category"`
	DownloadDir   string           `json:"downloadDir"`
	Health        HealthStatus     `json:"health"`
	LastError     string           `json:"lastError,omitempty"`
	LastCheckedAt *time.Time       `json:"lastCheckedAt,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// Protocols returns the protocol capability set derived from the backend type.
func (c *DownloadClient) Protocols() []types.Protocol {
	return types.ProtocolsForClient(c.Type)
}

// Supports reports whether the client accepts the given protocol.
func (c *DownloadClient) Supports(p types.Protocol) bool {
	return slices.Contains(c.Protocols(), p)
}

// TrackedBook is a book the user wants. Its lifecycle is owned elsewhere;
// download events only move its status and timestamps.
type TrackedBook struct {
	ID             int64      `json:"id"`
	Title          string     `json:"title"`
	Author         string     `json:"author,omitempty"`
	ISBN           string     `json:"isbn,omitempty"`
	Status         BookStatus `json:"status"`
	LastDownloadAt *time.Time `json:"lastDownloadAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// DownloadItem is one attempt to fetch a release through one backend.
type DownloadItem struct {
	ID               int64        `json:"id"`
	TrackedBookID    int64        `json:"trackedBookId"`
	DownloadClientID int64        `json:"downloadClientId"`
	ClientItemID     types.ItemID `json:"clientItemId"`
	Title            string       `json:"title"`
	DownloadURL      string       `json:"downloadUrl"`
	Status           Status       `json:"status"`
	Progress         float64      `json:"progress"`
	SizeBytes        *int64       `json:"sizeBytes,omitempty"`
	DownloadedBytes  *int64       `json:"downloadedBytes,omitempty"`
	Speed            *int64       `json:"speed,omitempty"`
	ETASeconds       *int64       `json:"etaSeconds,omitempty"`
	FilePath         *string      `json:"filePath,omitempty"`
	ErrorMessage     *string      `json:"errorMessage,omitempty"`
	CompletedAt      *time.Time   `json:"completedAt,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// Clone returns a deep copy of the item.
func (d *DownloadItem) Clone() *DownloadItem {
	c := *d
	c.SizeBytes = clonePtr(d.SizeBytes)
	c.DownloadedBytes = clonePtr(d.DownloadedBytes)
	c.Speed = clonePtr(d.Speed)
	c.ETASeconds = clonePtr(d.ETASeconds)
	c.FilePath = clonePtr(d.FilePath)
	c.ErrorMessage = clonePtr(d.ErrorMessage)
	c.CompletedAt = clonePtr(d.CompletedAt)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
