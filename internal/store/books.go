package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bindery/bindery/internal/downloads"
)

// BookRepo reads tracked books and writes their download-driven fields.
type BookRepo struct {
	s *Session
}

var _ downloads.BookRepository = (*BookRepo)(nil)

// Create inserts a tracked book.
func (r *BookRepo) Create(ctx context.Context, b *downloads.TrackedBook) error {
	db, err := r.s.writer(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = now
	}
	if b.Status == "" {
		b.Status = downloads.BookWanted
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO tracked_books (title, author, isbn, status, last_download_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.Title, b.Author, b.ISBN, string(b.Status), nullTime(b.LastDownloadAt),
		formatTime(b.CreatedAt), formatTime(b.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert tracked book: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read tracked book id: %w", err)
	}
	b.ID = id
	return nil
}

func (r *BookRepo) Get(ctx context.Context, id int64) (*downloads.TrackedBook, error) {
	var (
		b            downloads.TrackedBook
		status       string
		lastDownload sql.NullString
		createdAt    string
		updatedAt    string
	)
	err := r.s.reader().QueryRowContext(ctx, `
		SELECT id, title, author, isbn, status, last_download_at, created_at, updated_at
		FROM tracked_books WHERE id = ?`, id,
	).Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &status, &lastDownload, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, downloads.NewNotFoundError("tracked book", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tracked book: %w", err)
	}

	b.Status = downloads.BookStatus(status)
	if b.LastDownloadAt, err = parseNullTime(lastDownload); err != nil {
		return nil, err
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateStatus writes status, last_download_at and updated_at.
func (r *BookRepo) UpdateStatus(ctx context.Context, b *downloads.TrackedBook) error {
	db, err := r.s.writer(ctx)
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, `
		UPDATE tracked_books SET status = ?, last_download_at = ?, updated_at = ?
		WHERE id = ?`,
		string(b.Status), nullTime(b.LastDownloadAt), formatTime(b.UpdatedAt), b.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update tracked book: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return downloads.NewNotFoundError("tracked book", b.ID)
	}
	return nil
}
