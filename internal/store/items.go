package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bindery/bindery/internal/downloads"
)

const itemColumns = `id, tracked_book_id, download_client_id, client_item_id, title, download_url,
	status, progress, size_bytes, downloaded_bytes, speed, eta_seconds, file_path,
	error_message, completed_at, created_at, updated_at`

const terminalStatuses = `('completed', 'failed', 'removed')`

// ItemRepo persists download items.
type ItemRepo struct {
	s *Session
}

var _ downloads.ItemRepository = (*ItemRepo)(nil)

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row scanner) (*downloads.DownloadItem, error) {
	var (
		item            downloads.DownloadItem
		status          string
		sizeBytes       sql.NullInt64
		downloadedBytes sql.NullInt64
		speed           sql.NullInt64
		eta             sql.NullInt64
		filePath        sql.NullString
		errorMessage    sql.NullString
		completedAt     sql.NullString
		createdAt       string
		updatedAt       string
	)
	if err := row.Scan(
		&item.ID, &item.TrackedBookID, &item.DownloadClientID, &item.ClientItemID,
		&item.Title, &item.DownloadURL, &status, &item.Progress,
		&sizeBytes, &downloadedBytes, &speed, &eta, &filePath, &errorMessage,
		&completedAt, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	item.Status = downloads.Status(status)
	item.SizeBytes = int64Ptr(sizeBytes)
	item.DownloadedBytes = int64Ptr(downloadedBytes)
	item.Speed = int64Ptr(speed)
	item.ETASeconds = int64Ptr(eta)
	item.FilePath = stringPtr(filePath)
	item.ErrorMessage = stringPtr(errorMessage)

	var err error
	if item.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, err
	}
	if item.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if item.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *ItemRepo) query(ctx context.Context, q string, args ...interface{}) ([]*downloads.DownloadItem, error) {
	rows, err := r.s.reader().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*downloads.DownloadItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Add inserts item and sets its id. A second non-terminal item for the same
// book and URL fails with downloads.ErrDuplicate.
func (r *ItemRepo) Add(ctx context.Context, item *downloads.DownloadItem) error {
	db, err := r.s.writer(ctx)
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO download_items (
			tracked_book_id, download_client_id, client_item_id, title, download_url,
			status, progress, size_bytes, downloaded_bytes, speed, eta_seconds, file_path,
			error_message, completed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.TrackedBookID, item.DownloadClientID, item.ClientItemID.NullString(), item.Title, item.DownloadURL,
		string(item.Status), item.Progress, nullInt64(item.SizeBytes), nullInt64(item.DownloadedBytes),
		nullInt64(item.Speed), nullInt64(item.ETASeconds), nullString(item.FilePath),
		nullString(item.ErrorMessage), nullTime(item.CompletedAt),
		formatTime(item.CreatedAt), formatTime(item.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return downloads.ErrDuplicate
		}
		return fmt.Errorf("failed to insert download: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read download id: %w", err)
	}
	item.ID = id
	return nil
}

func (r *ItemRepo) Get(ctx context.Context, id int64) (*downloads.DownloadItem, error) {
	row := r.s.reader().QueryRowContext(ctx, `SELECT `+itemColumns+` FROM download_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, downloads.NewNotFoundError("download", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get download: %w", err)
	}
	return item, nil
}

func (r *ItemRepo) Update(ctx context.Context, item *downloads.DownloadItem) error {
	db, err := r.s.writer(ctx)
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, `
		UPDATE download_items SET
			client_item_id = ?, title = ?, status = ?, progress = ?, size_bytes = ?,
			downloaded_bytes = ?, speed = ?, eta_seconds = ?, file_path = ?,
			error_message = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
			AND (status NOT IN `+terminalStatuses+` OR (status = 'removed' AND ? = 'removed'))`,
		item.ClientItemID.NullString(), item.Title, string(item.Status), item.Progress,
		nullInt64(item.SizeBytes), nullInt64(item.DownloadedBytes), nullInt64(item.Speed),
		nullInt64(item.ETASeconds), nullString(item.FilePath), nullString(item.ErrorMessage),
		nullTime(item.CompletedAt), formatTime(item.UpdatedAt), item.ID, string(item.Status),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return downloads.ErrDuplicate
		}
		return fmt.Errorf("failed to update download: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var status string
		err := db.QueryRowContext(ctx, `SELECT status FROM download_items WHERE id = ?`, item.ID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return downloads.NewNotFoundError("download", item.ID)
		}
		if err != nil {
			return fmt.Errorf("failed to update download: %w", err)
		}
		return fmt.Errorf("download %d is %s: %w", item.ID, status, downloads.ErrTerminal)
	}
	return nil
}

func (r *ItemRepo) Refresh(ctx context.Context, item *downloads.DownloadItem) error {
	fresh, err := r.Get(ctx, item.ID)
	if err != nil {
		return err
	}
	*item = *fresh
	return nil
}

func (r *ItemRepo) ListActive(ctx context.Context) ([]*downloads.DownloadItem, error) {
	return r.query(ctx, `SELECT `+itemColumns+` FROM download_items
		WHERE status NOT IN `+terminalStatuses+` ORDER BY created_at, id`)
}

func (r *ItemRepo) ListHistory(ctx context.Context, limit, offset int) ([]*downloads.DownloadItem, error) {
	return r.query(ctx, `SELECT `+itemColumns+` FROM download_items
		WHERE status IN `+terminalStatuses+` ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset)
}

func (r *ItemRepo) ListByTrackedBook(ctx context.Context, bookID int64) ([]*downloads.DownloadItem, error) {
	return r.query(ctx, `SELECT `+itemColumns+` FROM download_items
		WHERE tracked_book_id = ? ORDER BY created_at DESC, id DESC`, bookID)
}

func (r *ItemRepo) GetLatestByURLAndTrackedBook(ctx context.Context, url string, bookID int64) (*downloads.DownloadItem, error) {
	row := r.s.reader().QueryRowContext(ctx, `SELECT `+itemColumns+` FROM download_items
		WHERE tracked_book_id = ? AND download_url = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		bookID, url)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get download by url: %w", err)
	}
	return item, nil
}

func (r *ItemRepo) ListByClient(ctx context.Context, clientID int64, activeOnly bool) ([]*downloads.DownloadItem, error) {
	q := `SELECT ` + itemColumns + ` FROM download_items WHERE download_client_id = ?`
	if activeOnly {
		q += ` AND status NOT IN ` + terminalStatuses
	}
	return r.query(ctx, q+` ORDER BY created_at, id`, clientID)
}
