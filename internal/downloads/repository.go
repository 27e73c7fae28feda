package downloads

import (
	"context"
	"time"
)

// ItemRepository persists download items. Get returns a NotFoundError for
// unknown ids; GetLatestByURLAndTrackedBook returns nil, nil when none exist.
type ItemRepository interface {
	Add(ctx context.Context, item *DownloadItem) error
	Get(ctx context.Context, id int64) (*DownloadItem, error)
	// Update returns ErrTerminal when the stored item already finished,
	// unless both the stored and the new status are removed.
	Update(ctx context.Context, item *DownloadItem) error
	// Refresh reloads item in place from persisted state.
	Refresh(ctx context.Context, item *DownloadItem) error
	ListActive(ctx context.Context) ([]*DownloadItem, error)
	ListHistory(ctx context.Context, limit, offset int) ([]*DownloadItem, error)
	ListByTrackedBook(ctx context.Context, bookID int64) ([]*DownloadItem, error)
	GetLatestByURLAndTrackedBook(ctx context.Context, url string, bookID int64) (*DownloadItem, error)
	ListByClient(ctx context.Context, clientID int64, activeOnly bool) ([]*DownloadItem, error)
}

// ClientRepository reads download client configuration.
type ClientRepository interface {
	List(ctx context.Context) ([]*DownloadClient, error)
	// ListEnabled returns enabled clients ordered by priority, then id.
	ListEnabled(ctx context.Context) ([]*DownloadClient, error)
	Get(ctx context.Context, id int64) (*DownloadClient, error)
	UpdateHealth(ctx context.Context, id int64, status HealthStatus, lastError string, checkedAt time.Time) error
}

// BookRepository reads tracked books and writes their download-driven status.
type BookRepository interface {
	Get(ctx context.Context, id int64) (*TrackedBook, error)
	UpdateStatus(ctx context.Context, book *TrackedBook) error
}

// Session is the unit of work for one orchestrator operation. Writes made
// through its repositories become visible on Commit; Rollback after Commit
// is a no-op, so callers can always defer it.
type Session interface {
	Items() ItemRepository
	Clients() ClientRepository
	Books() BookRepository
	Commit() error
	Rollback() error
}

// Store opens sessions.
type Store interface {
	Session(ctx context.Context) Session
}
