package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bindery/bindery/internal/downloader/types"
	"github.com/bindery/bindery/internal/downloads"
)

const clientColumns = `id, name, type, enabled, priority, host, port, use_ssl, url_base,
	username, password, api_key, category, download_dir, health, last_error,
	last_checked_at, created_at, updated_at`

// ClientRepo persists download client configuration.
type ClientRepo struct {
	s *Session
}

var _ downloads.ClientRepository = (*ClientRepo)(nil)

func scanClient(row scanner) (*downloads.DownloadClient, error) {
	var (
		c           downloads.DownloadClient
		clientType  string
		health      string
		lastChecked sql.NullString
		createdAt   string
		updatedAt   string
	)
	if err := row.Scan(
		&c.ID, &c.Name, &clientType, &c.Enabled, &c.Priority, &c.Host, &c.Port, &c.UseSSL,
		&c.URLBase, &c.Username, &c.Password, &c.APIKey, &c.Category, &c.DownloadDir,
		&health, &c.LastError, &lastChecked, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	c.Type = types.ClientType(clientType)
	c.Health = downloads.HealthStatus(health)

	var err error
	if c.LastCheckedAt, err = parseNullTime(lastChecked); err != nil {
		return nil, err
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ClientRepo) query(ctx context.Context, q string, args ...interface{}) ([]*downloads.DownloadClient, error) {
	rows, err := r.s.reader().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list download clients: %w", err)
	}
	defer rows.Close()

	var clients []*downloads.DownloadClient
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// Create inserts a client. Secrets are stored as given; callers encrypt them.
func (r *ClientRepo) Create(ctx context.Context, c *downloads.DownloadClient) error {
	db, err := r.s.writer(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	if c.Health == "" {
		c.Health = downloads.HealthUnknown
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO download_clients (
			name, type, enabled, priority, host, port, use_ssl, url_base, username,
			password, api_key, category, download_dir, health, last_error,
			last_checked_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Name, string(c.Type), boolInt(c.Enabled), c.Priority, c.Host, c.Port, boolInt(c.UseSSL),
		c.URLBase, c.Username, c.Password, c.APIKey, c.Category, c.DownloadDir,
		string(c.Health), c.LastError, nullTime(c.LastCheckedAt),
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert download client: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read download client id: %w", err)
	}
	c.ID = id
	return nil
}

func (r *ClientRepo) List(ctx context.Context) ([]*downloads.DownloadClient, error) {
	return r.query(ctx, `SELECT `+clientColumns+` FROM download_clients ORDER BY priority, id`)
}

func (r *ClientRepo) ListEnabled(ctx context.Context) ([]*downloads.DownloadClient, error) {
	return r.query(ctx, `SELECT `+clientColumns+` FROM download_clients WHERE enabled = 1 ORDER BY priority, id`)
}

func (r *ClientRepo) Get(ctx context.Context, id int64) (*downloads.DownloadClient, error) {
	row := r.s.reader().QueryRowContext(ctx, `SELECT `+clientColumns+` FROM download_clients WHERE id = ?`, id)
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, downloads.NewNotFoundError("download client", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get download client: %w", err)
	}
	return c, nil
}

// UpdateHealth records a connection check. It leaves updated_at alone so
// cached drivers are not rebuilt by health checks.
func (r *ClientRepo) UpdateHealth(ctx context.Context, id int64, status downloads.HealthStatus, lastError string, checkedAt time.Time) error {
	db, err := r.s.writer(ctx)
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, `
		UPDATE download_clients SET health = ?, last_error = ?, last_checked_at = ?
		WHERE id = ?`,
		string(status), lastError, formatTime(checkedAt), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update download client health: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return downloads.NewNotFoundError("download client", id)
	}
	return nil
}
