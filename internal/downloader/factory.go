// Package downloader builds backend drivers from configured download clients.
package downloader

import (
	"errors"
	"fmt"
	"slices"

	"github.com/bindery/bindery/internal/downloader/aria2"
	"github.com/bindery/bindery/internal/downloader/blackhole"
	"github.com/bindery/bindery/internal/downloader/downloadstation"
	"github.com/bindery/bindery/internal/downloader/mock"
	"github.com/bindery/bindery/internal/downloader/qbittorrent"
	"github.com/bindery/bindery/internal/downloader/sabnzbd"
	"github.com/bindery/bindery/internal/downloader/transmission"
	"github.com/bindery/bindery/internal/downloader/types"
	"github.com/bindery/bindery/internal/downloads"
)

// ErrUnsupportedClient is returned for client types without a driver.
var ErrUnsupportedClient = errors.New("unsupported client type")

// NewClient creates a driver of the specified type.
func NewClient(clientType types.ClientType, config *types.ClientConfig) (types.Client, error) {
	switch clientType {
	case types.ClientTypeTransmission:
		return transmission.NewFromConfig(config), nil
	case types.ClientTypeQBittorrent:
		return qbittorrent.NewFromConfig(config), nil
	case types.ClientTypeSABnzbd:
		return sabnzbd.NewFromConfig(config), nil
	case types.ClientTypeAria2:
		return aria2.NewFromConfig(config), nil
	case types.ClientTypeDownloadStation:
		return downloadstation.NewFromConfig(config), nil
	case types.ClientTypeTorrentBlackhole, types.ClientTypeUsenetBlackhole:
		return blackhole.NewFromConfig(clientType, config), nil
	case types.ClientTypeMock:
		return mock.NewFromConfig(config), nil
	case types.ClientTypeNZBGet:
		return nil, fmt.Errorf("%w: %s client not yet implemented", ErrUnsupportedClient, clientType)
	default:
		return nil, fmt.Errorf("%w: unknown client type %s", ErrUnsupportedClient, clientType)
	}
}

// ConfigFromDownloadClient maps a configured client onto driver settings.
// Credentials are copied as stored; callers decrypt them first.
func ConfigFromDownloadClient(dc *downloads.DownloadClient) *types.ClientConfig {
	return &types.ClientConfig{
		Host:        dc.Host,
		Port:        dc.Port,
		Username:    dc.Username,
		Password:    dc.Password,
		UseSSL:      dc.UseSSL,
		URLBase:     dc.URLBase,
		APIKey:      dc.APIKey,
		Category:    dc.Category,
		DownloadDir: dc.DownloadDir,
	}
}

// SupportedClientTypes returns every recognized client type.
func SupportedClientTypes() []types.ClientType {
	return []types.ClientType{
		types.ClientTypeTransmission,
		types.ClientTypeQBittorrent,
		types.ClientTypeSABnzbd,
		types.ClientTypeNZBGet,
		types.ClientTypeAria2,
		types.ClientTypeDownloadStation,
		types.ClientTypeTorrentBlackhole,
		types.ClientTypeUsenetBlackhole,
	}
}

// ImplementedClientTypes returns the client types that have a driver.
func ImplementedClientTypes() []types.ClientType {
	return []types.ClientType{
		types.ClientTypeTransmission,
		types.ClientTypeQBittorrent,
		types.ClientTypeSABnzbd,
		types.ClientTypeAria2,
		types.ClientTypeDownloadStation,
		types.ClientTypeTorrentBlackhole,
		types.ClientTypeUsenetBlackhole,
		types.ClientTypeMock,
	}
}

// IsClientTypeSupported returns true if the client type is recognized.
func IsClientTypeSupported(clientType string) bool {
	return slices.Contains(SupportedClientTypes(), types.ClientType(clientType))
}

// IsClientTypeImplemented returns true if the client type has a driver.
func IsClientTypeImplemented(clientType string) bool {
	return slices.Contains(ImplementedClientTypes(), types.ClientType(clientType))
}
