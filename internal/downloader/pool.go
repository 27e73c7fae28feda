package downloader

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bindery/bindery/internal/downloader/types"
	"github.com/bindery/bindery/internal/downloads"
)

// Decrypter reverses at-rest encryption of stored credentials.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

type poolEntry struct {
	client    types.Client
	updatedAt time.Time
}

// Pool caches one driver per configured client. A driver is rebuilt when
// the client's configuration has changed since it was built.
type Pool struct {
	mu           sync.RWMutex
	entries      map[int64]poolEntry
	secrets      Decrypter
	blackholeDir string
	logger       zerolog.Logger
}

var _ downloads.DriverProvider = (*Pool)(nil)

// NewPool creates a driver pool. secrets may be nil when credentials are
// stored in plain text.
func NewPool(secrets Decrypter, logger zerolog.Logger) *Pool {
	return &Pool{
		entries: make(map[int64]poolEntry),
		secrets: secrets,
		logger:  logger.With().Str("component", "driver-pool").Logger(),
	}
}

// SetBlackholeDir sets the watch folder used by blackhole clients that do
// not configure their own download directory.
func (p *Pool) SetBlackholeDir(dir string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blackholeDir = dir
}

// Driver returns the cached driver for dc, building it when needed.
func (p *Pool) Driver(dc *downloads.DownloadClient) (types.Client, error) {
	p.mu.RLock()
	entry, ok := p.entries[dc.ID]
	p.mu.RUnlock()
	if ok && entry.updatedAt.Equal(dc.UpdatedAt) {
		return entry.client, nil
	}

	cfg := ConfigFromDownloadClient(dc)
	if cfg.DownloadDir == "" && isBlackhole(dc.Type) {
		p.mu.RLock()
		cfg.DownloadDir = p.blackholeDir
		p.mu.RUnlock()
	}
	var err error
	if cfg.Password, err = p.decrypt(cfg.Password); err != nil {
		return nil, fmt.Errorf("client %d password: %w", dc.ID, err)
	}
	if cfg.APIKey, err = p.decrypt(cfg.APIKey); err != nil {
		return nil, fmt.Errorf("client %d api key: %w", dc.ID, err)
	}

	client, err := NewClient(dc.Type, cfg)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.entries[dc.ID] = poolEntry{client: client, updatedAt: dc.UpdatedAt}
	p.mu.Unlock()

	p.logger.Debug().Int64("clientId", dc.ID).Str("type", string(dc.Type)).Msg("Built download client driver")
	return client, nil
}

// Supports reports whether a driver exists for the client type.
func (p *Pool) Supports(clientType types.ClientType) bool {
	return IsClientTypeImplemented(string(clientType))
}

// Invalidate drops the cached driver for a client.
func (p *Pool) Invalidate(id int64) {
	p.mu.Lock()
	delete(p.entries, id)
	p.mu.Unlock()
}

// Len returns the number of cached drivers.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

func (p *Pool) decrypt(value string) (string, error) {
	if p.secrets == nil || value == "" {
		return value, nil
	}
	return p.secrets.Decrypt(value)
}

func isBlackhole(t types.ClientType) bool {
	return t == types.ClientTypeTorrentBlackhole || t == types.ClientTypeUsenetBlackhole
}
