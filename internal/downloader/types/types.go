// Package types defines the contract shared by all download backend drivers.
package types

import (
	"context"
	"errors"
	"strings"
)

// Common errors for download clients.
var (
	ErrNotImplemented = errors.New("operation not implemented")
	ErrAuthFailed     = errors.New("authentication failed")
	ErrNotFound       = errors.New("download not found")
)

// Protocol represents the download protocol.
type Protocol string

const (
	ProtocolTorrent Protocol = "torrent"
	ProtocolUsenet  Protocol = "usenet"
	ProtocolHTTP    Protocol = "http"
	ProtocolUnknown Protocol = ""
)

// ClientType represents the type of download client.
type ClientType string

const (
	ClientTypeTransmission     ClientType = "transmission"
	ClientTypeQBittorrent      ClientType = "qbittorrent"
	ClientTypeSABnzbd          ClientType = "sabnzbd"
	ClientTypeNZBGet           ClientType = "nzbget"
	ClientTypeAria2            ClientType = "aria2"
	ClientTypeDownloadStation  ClientType = "downloadstation"
	ClientTypeTorrentBlackhole ClientType = "torrent_blackhole"
	ClientTypeUsenetBlackhole  ClientType = "usenet_blackhole"
	ClientTypeMock             ClientType = "mock" // In-memory client for developer mode
)

// ProtocolsForClient returns the protocols a backend type can accept.
// Download Station takes both torrents and NZBs, aria2 is used for direct
// HTTP downloads, anything named for usenet takes NZBs, and every other
// backend is treated as a torrent client.
func ProtocolsForClient(clientType ClientType) []Protocol {
	switch clientType {
	case ClientTypeDownloadStation:
		return []Protocol{ProtocolTorrent, ProtocolUsenet}
	case ClientTypeAria2:
		return []Protocol{ProtocolHTTP}
	}
	name := strings.ToLower(string(clientType))
	if strings.Contains(name, "usenet") || strings.Contains(name, "nzb") {
		return []Protocol{ProtocolUsenet}
	}
	return []Protocol{ProtocolTorrent}
}

// ClientConfig holds common configuration for all download clients.
type ClientConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	UseSSL      bool
	URLBase     string
	APIKey      string // For clients that use API keys (SABnzbd, aria2 secret)
	Category    string // Default category/label for downloads
	DownloadDir string // Default destination, also the watch folder for blackhole clients
}

// AddOptions specifies options for adding a download.
type AddOptions struct {
	URL         string // URL to torrent/nzb file, magnet link or direct file
	Name        string // Display name, used by backends that accept one
	Category    string
	DownloadDir string
	Paused      bool
}

// Client is the contract every backend driver satisfies.
// Every call is bounded by the driver's own timeout.
type Client interface {
	Type() ClientType
	Test(ctx context.Context) error
	Add(ctx context.Context, opts *AddOptions) (ItemID, error)
	Remove(ctx context.Context, id ItemID, deleteFiles bool) error
}

// Tracker is implemented by drivers that can report their current item list.
type Tracker interface {
	List(ctx context.Context) ([]Snapshot, error)
}

// Snapshot is one backend-reported item. Pointer fields are nil when the
// backend did not report them, so partial snapshots leave prior values alone.
type Snapshot struct {
	ID              ItemID  `json:"id"`
	Title           string  `json:"title"`
	Status          string  `json:"status,omitempty"` // native backend vocabulary, empty when absent
	Progress        *Number `json:"progress,omitempty"`
	SizeBytes       *int64  `json:"sizeBytes,omitempty"`
	DownloadedBytes *int64  `json:"downloadedBytes,omitempty"`
	Speed           *int64  `json:"speed,omitempty"`
	ETASeconds      *int64  `json:"etaSeconds,omitempty"`
	FilePath        *string `json:"filePath,omitempty"`
	Error           string  `json:"error,omitempty"`
	Comment         string  `json:"comment,omitempty"` // source URL or other matching hint
}
