// Package store implements the download repositories on SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bindery/bindery/internal/downloads"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store opens sessions over a database connection.
type Store struct {
	db *sql.DB
}

var _ downloads.Store = (*Store)(nil)

// New creates a store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Session starts a unit of work. The transaction is opened lazily on the
// first write, so reads and backend calls made before it do not hold the
// connection.
func (s *Store) Session(ctx context.Context) downloads.Session {
	return s.Begin(ctx)
}

// Begin is Session with the concrete type, for callers that need the
// create methods.
func (s *Store) Begin(ctx context.Context) *Session {
	return &Session{db: s.db, ctx: ctx}
}

// Session is a lazily transactional unit of work.
type Session struct {
	db  *sql.DB
	ctx context.Context
	tx  *sql.Tx
}

var _ downloads.Session = (*Session)(nil)

func (s *Session) Items() downloads.ItemRepository     { return &ItemRepo{s: s} }
func (s *Session) Clients() downloads.ClientRepository { return &ClientRepo{s: s} }
func (s *Session) Books() downloads.BookRepository     { return &BookRepo{s: s} }

// ClientRepo returns the concrete client repository.
func (s *Session) ClientRepo() *ClientRepo { return &ClientRepo{s: s} }

// BookRepo returns the concrete book repository.
func (s *Session) BookRepo() *BookRepo { return &BookRepo{s: s} }

// reader returns the open transaction if there is one so that reads see
// this session's own writes.
func (s *Session) reader() DBTX {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *Session) writer(ctx context.Context) (DBTX, error) {
	if s.tx != nil {
		return s.tx, nil
	}
	if ctx == nil {
		ctx = s.ctx
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	s.tx = tx
	return tx, nil
}

// Commit commits pending writes. A session with no writes commits trivially.
func (s *Session) Commit() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	return tx.Commit()
}

// Rollback discards pending writes. It is a no-op after Commit.
func (s *Session) Rollback() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// timeFormat is fixed width so timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
