package downloads

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/bindery/bindery/internal/downloader/types"
)

const (
	// CancelledMessage is recorded on items removed by the user.
	CancelledMessage = "Cancelled by user"

	defaultHistoryLimit    = 50
	maxHistoryLimit        = 500
	defaultPollConcurrency = 4
)

// Event types published to the broadcaster.
const (
	EventDownloadCreated = "download:created"
	EventDownloadUpdated = "download:updated"
	EventDownloadRemoved = "download:removed"
)

// Broadcaster defines the interface for broadcasting messages.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// DriverProvider hands out authenticated backend drivers.
type DriverProvider interface {
	Driver(client *DownloadClient) (types.Client, error)
	Supports(clientType types.ClientType) bool
	// Invalidate drops any cached driver so the next call reconnects.
	Invalidate(clientID int64)
}

// Orchestrator owns the download item state machine. Each public operation
// runs in its own session and commits once at the end.
type Orchestrator struct {
	store      Store
	drivers    DriverProvider
	selector   ClientSelector
	updater    ItemUpdater
	reconciler *Reconciler
	hub        Broadcaster
	logger     zerolog.Logger
	now        func() time.Time

	pollConcurrency int
	historyLimitMax int
	inflight        singleflight.Group
	mu              sync.RWMutex
}

// NewOrchestrator creates an orchestrator with the protocol selector, the
// default status vocabulary and the title matcher.
func NewOrchestrator(store Store, drivers DriverProvider, logger zerolog.Logger) *Orchestrator {
	l := logger.With().Str("component", "download-orchestrator").Logger()
	return &Orchestrator{
		store:           store,
		drivers:         drivers,
		selector:        ProtocolSelector{},
		updater:         NewItemUpdater(NewStatusMapper(nil), logger),
		reconciler:      NewReconciler(TitleMatcher{}),
		logger:          l,
		now:             time.Now,
		pollConcurrency: defaultPollConcurrency,
		historyLimitMax: maxHistoryLimit,
	}
}

// SetSelector replaces the client selection strategy.
func (o *Orchestrator) SetSelector(s ClientSelector) {
	o.selector = s
}

// SetUpdater replaces the snapshot updater.
func (o *Orchestrator) SetUpdater(u ItemUpdater) {
	o.updater = u
}

// SetMatcher replaces the content matcher used by bulk resync.
func (o *Orchestrator) SetMatcher(m ContentMatcher) {
	o.reconciler = NewReconciler(m)
}

// SetPollConcurrency bounds how many clients TrackAll polls at once.
func (o *Orchestrator) SetPollConcurrency(n int) {
	if n > 0 {
		o.pollConcurrency = n
	}
}

// SetHistoryLimitMax caps the page size ListHistory will serve.
func (o *Orchestrator) SetHistoryLimitMax(n int) {
	if n > 0 {
		o.historyLimitMax = n
	}
}

// SetBroadcaster sets the broadcaster for download events.
func (o *Orchestrator) SetBroadcaster(b Broadcaster) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hub = b
}

// Initiate starts downloading release for a tracked book. If a non-terminal
// item already targets the same book and URL it is returned unchanged, and
// concurrent identical calls share one result. With clientID nil the
// selector picks among enabled clients that can currently be reached.
func (o *Orchestrator) Initiate(ctx context.Context, release *Release, bookID int64, clientID *int64) (*DownloadItem, error) {
	if release == nil || strings.TrimSpace(release.DownloadURL) == "" {
		return nil, &ValidationError{Field: "downloadUrl", Message: "download URL is required"}
	}
	if bookID <= 0 {
		return nil, &ValidationError{Field: "trackedBookId", Message: "tracked book is required"}
	}

	url := strings.TrimSpace(release.DownloadURL)
	key := strconv.FormatInt(bookID, 10) + "|" + url
	v, err, _ := o.inflight.Do(key, func() (interface{}, error) {
		return o.initiate(ctx, release, url, bookID, clientID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*DownloadItem), nil
}

func (o *Orchestrator) initiate(ctx context.Context, release *Release, url string, bookID int64, clientID *int64) (*DownloadItem, error) {
	sess := o.store.Session(ctx)
	defer sess.Rollback() //nolint:errcheck // no-op after commit

	existing, err := o.activeItemFor(ctx, sess, url, bookID)
	if err != nil {
		return nil, asProviderError("initiate", err)
	}
	if existing != nil {
		o.logger.Debug().Int64("downloadId", existing.ID).Int64("bookId", bookID).Msg("Download already in progress, returning existing item")
		return existing, nil
	}

	book, err := sess.Books().Get(ctx, bookID)
	if err != nil {
		return nil, asProviderError("initiate", err)
	}

	client, err := o.resolveClient(ctx, sess, release, clientID)
	if err != nil {
		return nil, asProviderError("initiate", err)
	}

	driver, err := o.drivers.Driver(client)
	if err != nil {
		return nil, types.NewProviderError(types.KindUnknown, client.Type, "connect", err)
	}

	title := release.Title
	if title == "" {
		title = book.Title
	}

	clientItemID, err := driver.Add(ctx, &types.AddOptions{
		URL:         url,
		Name:        title,
		Category:    client.Category,
		DownloadDir: client.DownloadDir,
	})
	if err != nil {
		return nil, types.Classify(client.Type, "add", err)
	}

	now := o.now().UTC()
	item := &DownloadItem{
		TrackedBookID:    bookID,
		DownloadClientID: client.ID,
		ClientItemID:     clientItemID,
		Title:            title,
		DownloadURL:      url,
		Status:           StatusQueued,
		SizeBytes:        clonePtr(release.SizeBytes),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := sess.Items().Add(ctx, item); err != nil {
		if errors.Is(err, ErrDuplicate) {
			_ = sess.Rollback()
			return o.existingAfterConflict(ctx, url, bookID)
		}
		return nil, asProviderError("initiate", err)
	}

	if !book.Status.IsSticky() {
		projectBook(book, item.Status, now)
		book.LastDownloadAt = &now
		book.UpdatedAt = now
		if err := sess.Books().UpdateStatus(ctx, book); err != nil {
			return nil, asProviderError("initiate", err)
		}
	}

	if err := sess.Commit(); err != nil {
		return nil, asProviderError("initiate", err)
	}

	o.logger.Info().
		Int64("downloadId", item.ID).
		Int64("bookId", bookID).
		Int64("clientId", client.ID).
		Str("client", client.Name).
		Str("clientItemId", item.ClientItemID.String()).
		Str("title", item.Title).
		Msg("Download initiated")

	o.broadcast(EventDownloadCreated, item)
	return item, nil
}

// existingAfterConflict loads the item that won a concurrent insert.
func (o *Orchestrator) existingAfterConflict(ctx context.Context, url string, bookID int64) (*DownloadItem, error) {
	sess := o.store.Session(ctx)
	defer sess.Rollback() //nolint:errcheck // read-only

	existing, err := o.activeItemFor(ctx, sess, url, bookID)
	if err != nil {
		return nil, asProviderError("initiate", err)
	}
	if existing == nil {
		return nil, types.NewProviderError(types.KindUnknown, "", "initiate", ErrDuplicate)
	}
	return existing, nil
}

func (o *Orchestrator) activeItemFor(ctx context.Context, sess Session, url string, bookID int64) (*DownloadItem, error) {
	item, err := sess.Items().GetLatestByURLAndTrackedBook(ctx, url, bookID)
	if err != nil {
		return nil, err
	}
	if item == nil || item.Status.IsTerminal() {
		return nil, nil
	}
	return item, nil
}

func (o *Orchestrator) resolveClient(ctx context.Context, sess Session, release *Release, clientID *int64) (*DownloadClient, error) {
	if clientID != nil {
		client, err := sess.Clients().Get(ctx, *clientID)
		if err != nil {
			return nil, err
		}
		if !client.Enabled {
			return nil, &ValidationError{Field: "downloadClientId", Message: fmt.Sprintf("download client %q is disabled", client.Name)}
		}
		if !o.drivers.Supports(client.Type) {
			return nil, &ValidationError{Field: "downloadClientId", Message: fmt.Sprintf("download client type %q is not supported", client.Type)}
		}
		return client, nil
	}

	clients, err := sess.Clients().ListEnabled(ctx)
	if err != nil {
		return nil, err
	}

	viable := make([]*DownloadClient, 0, len(clients))
	for _, c := range clients {
		if o.connectable(c) {
			viable = append(viable, c)
		}
	}

	chosen := o.selector.Select(release, viable)
	if chosen == nil {
		return nil, &ValidationError{Field: "downloadClientId", Message: "no enabled download client is available"}
	}
	return chosen, nil
}

// connectable excludes clients whose last health check failed.
func (o *Orchestrator) connectable(c *DownloadClient) bool {
	return c.Enabled && c.Health != HealthFailed && o.drivers.Supports(c.Type)
}

// Track polls the owning backend for item and applies what it reports.
// Terminal items are left alone without contacting the backend. Failures
// are logged and never returned; the next poll retries naturally. It
// reports whether the item changed.
func (o *Orchestrator) Track(ctx context.Context, item *DownloadItem) bool {
	if item == nil || item.Status.IsTerminal() {
		return false
	}

	log := o.logger.With().Int64("downloadId", item.ID).Int64("clientId", item.DownloadClientID).Logger()

	snaps, ok := o.listClient(ctx, item.DownloadClientID, log)
	if !ok {
		return false
	}
	return o.apply(ctx, item, snaps, log)
}

// TrackByID loads an item and tracks it, returning its current state.
func (o *Orchestrator) TrackByID(ctx context.Context, id int64) (*DownloadItem, error) {
	item, err := o.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Track(ctx, item)
	return item, nil
}

// listClient resolves a client and fetches its item list. It returns false
// when the client cannot be polled; the reason has already been logged.
func (o *Orchestrator) listClient(ctx context.Context, clientID int64, log zerolog.Logger) ([]types.Snapshot, bool) {
	sess := o.store.Session(ctx)
	defer sess.Rollback() //nolint:errcheck // read-only

	client, err := sess.Clients().Get(ctx, clientID)
	if err != nil {
		log.Warn().Err(err).Msg("Download client not found, skipping poll")
		return nil, false
	}

	driver, err := o.drivers.Driver(client)
	if err != nil {
		log.Warn().Err(err).Str("client", client.Name).Msg("Failed to create download client driver")
		return nil, false
	}

	tracker, ok := driver.(types.Tracker)
	if !ok {
		log.Debug().Str("client", client.Name).Str("type", string(client.Type)).Msg("Download client does not support tracking")
		return nil, false
	}

	snaps, err := tracker.List(ctx)
	if err != nil {
		err = types.Classify(client.Type, "list", err)
		log.Warn().Err(err).Str("client", client.Name).Msg("Failed to list downloads from client")
		return nil, false
	}
	return snaps, true
}

// apply locates item in snaps by identity and persists the update.
func (o *Orchestrator) apply(ctx context.Context, item *DownloadItem, snaps []types.Snapshot, log zerolog.Logger) bool {
	var snap *types.Snapshot
	for i := range snaps {
		if snaps[i].ID.Equal(item.ClientItemID) {
			snap = &snaps[i]
			break
		}
	}
	if snap == nil {
		log.Info().Str("clientItemId", item.ClientItemID.String()).Msg("Download not reported by client, leaving unchanged")
		return false
	}

	before := item.Clone()
	if !o.updater.Update(item, snap) {
		return false
	}
	item.UpdatedAt = o.now().UTC()

	sess := o.store.Session(ctx)
	defer sess.Rollback() //nolint:errcheck // no-op after commit

	if err := o.persistUpdate(ctx, sess, item); err != nil {
		if errors.Is(err, ErrTerminal) {
			log.Info().Msg("Download finished elsewhere, discarding stale update")
		} else {
			log.Error().Err(err).Msg("Failed to persist download update")
		}
		*item = *before
		return false
	}
	if err := sess.Commit(); err != nil {
		log.Error().Err(err).Msg("Failed to commit download update")
		*item = *before
		return false
	}

	if item.Status != before.Status {
		log.Info().Str("from", string(before.Status)).Str("to", string(item.Status)).Msg("Download status changed")
	}
	o.broadcast(EventDownloadUpdated, item)
	return true
}

// persistUpdate writes item and projects its status onto the tracked book.
func (o *Orchestrator) persistUpdate(ctx context.Context, sess Session, item *DownloadItem) error {
	if err := sess.Items().Update(ctx, item); err != nil {
		return err
	}

	book, err := sess.Books().Get(ctx, item.TrackedBookID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			o.logger.Warn().Int64("downloadId", item.ID).Int64("bookId", item.TrackedBookID).Msg("Tracked book missing, skipping status projection")
			return nil
		}
		return err
	}
	if projectBook(book, item.Status, item.UpdatedAt) {
		return sess.Books().UpdateStatus(ctx, book)
	}
	return nil
}

// TrackReport summarizes one poll cycle.
type TrackReport struct {
	Clients int `json:"clients"`
	Items   int `json:"items"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// TrackAll runs one poll cycle over every active item. Each client is listed
// once and up to the configured number of clients are polled concurrently.
// A failing client only affects its own items.
func (o *Orchestrator) TrackAll(ctx context.Context) (*TrackReport, error) {
	items, err := o.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	byClient := make(map[int64][]*DownloadItem)
	var order []int64
	for _, item := range items {
		if _, ok := byClient[item.DownloadClientID]; !ok {
			order = append(order, item.DownloadClientID)
		}
		byClient[item.DownloadClientID] = append(byClient[item.DownloadClientID], item)
	}

	report := &TrackReport{Clients: len(order), Items: len(items)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(o.pollConcurrency)
	for _, clientID := range order {
		group := byClient[clientID]
		g.Go(func() error {
			log := o.logger.With().Int64("clientId", clientID).Logger()
			snaps, ok := o.listClient(ctx, clientID, log)
			updated, skipped := 0, 0
			if !ok {
				skipped = len(group)
			} else {
				for _, item := range group {
					itemLog := log.With().Int64("downloadId", item.ID).Logger()
					if o.apply(ctx, item, snaps, itemLog) {
						updated++
					}
				}
			}
			mu.Lock()
			report.Updated += updated
			report.Skipped += skipped
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return report, nil
}

// Cancel removes an item. The backend is asked to delete it together with
// its files, but local cancellation proceeds even if that fails. Completed
// and failed items are returned unchanged; cancelling a removed item
// re-asserts its removal.
func (o *Orchestrator) Cancel(ctx context.Context, id int64) (*DownloadItem, error) {
	sess := o.store.Session(ctx)
	defer sess.Rollback() //nolint:errcheck // no-op after commit

	item, err := sess.Items().Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if item.Status == StatusCompleted || item.Status == StatusFailed {
		return item, nil
	}

	wasActive := !item.Status.IsTerminal()
	if wasActive {
		o.removeRemote(ctx, sess, item)
	}

	now := o.now().UTC()
	msg := CancelledMessage
	item.Status = StatusRemoved
	item.ErrorMessage = &msg
	item.UpdatedAt = now

	if err := sess.Items().Update(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to cancel download: %w", err)
	}

	if wasActive {
		if err := o.projectOwner(ctx, sess, item); err != nil {
			return nil, fmt.Errorf("failed to update tracked book: %w", err)
		}
	}

	if err := sess.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cancellation: %w", err)
	}

	if err := sess.Items().Refresh(ctx, item); err != nil {
		o.logger.Warn().Err(err).Int64("downloadId", item.ID).Msg("Failed to refresh cancelled download")
	}

	o.logger.Info().Int64("downloadId", item.ID).Msg("Download cancelled")
	o.broadcast(EventDownloadRemoved, item)
	return item, nil
}

func (o *Orchestrator) projectOwner(ctx context.Context, sess Session, item *DownloadItem) error {
	book, err := sess.Books().Get(ctx, item.TrackedBookID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if projectBook(book, item.Status, item.UpdatedAt) {
		return sess.Books().UpdateStatus(ctx, book)
	}
	return nil
}

// removeRemote asks the backend to drop the item. Failures are logged only.
func (o *Orchestrator) removeRemote(ctx context.Context, sess Session, item *DownloadItem) {
	log := o.logger.With().Int64("downloadId", item.ID).Int64("clientId", item.DownloadClientID).Logger()

	if !item.ClientItemID.IsAssigned() {
		log.Info().Msg("Download has no client id yet, skipping remote removal")
		return
	}

	client, err := sess.Clients().Get(ctx, item.DownloadClientID)
	if err != nil {
		log.Warn().Err(err).Msg("Download client not found, cancelling locally")
		return
	}

	driver, err := o.drivers.Driver(client)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create download client driver, cancelling locally")
		return
	}

	if err := driver.Remove(ctx, item.ClientItemID, true); err != nil {
		err = types.Classify(client.Type, "remove", err)
		log.Warn().Err(err).Msg("Failed to remove download from client, cancelling locally")
	}
}

// ResyncReport summarizes a bulk reconciliation of one client.
type ResyncReport struct {
	ClientID         int64 `json:"clientId"`
	Matched          int   `json:"matched"`
	Assigned         int   `json:"assigned"`
	Updated          int   `json:"updated"`
	UnmatchedDB      int   `json:"unmatchedDb"`
	UnmatchedBackend int   `json:"unmatchedBackend"`
}

// Resync reconciles every active item of a client against the backend's
// full listing. Items created before the backend confirmed an id get one
// here when the content matcher pairs them with a reported item.
func (o *Orchestrator) Resync(ctx context.Context, clientID int64) (*ResyncReport, error) {
	sess := o.store.Session(ctx)
	defer sess.Rollback() //nolint:errcheck // no-op after commit

	client, err := sess.Clients().Get(ctx, clientID)
	if err != nil {
		return nil, err
	}

	driver, err := o.drivers.Driver(client)
	if err != nil {
		return nil, types.NewProviderError(types.KindUnknown, client.Type, "connect", err)
	}
	tracker, ok := driver.(types.Tracker)
	if !ok {
		return nil, &ValidationError{
			Field:   "downloadClientId",
			Message: fmt.Sprintf("download client type %q cannot report its downloads", client.Type),
			Err:     ErrNotTrackable,
		}
	}

	snaps, err := tracker.List(ctx)
	if err != nil {
		return nil, types.Classify(client.Type, "list", err)
	}

	items, err := sess.Items().ListByClient(ctx, clientID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list downloads for client: %w", err)
	}

	result := o.reconciler.Reconcile(items, snaps)
	report := &ResyncReport{
		ClientID:         clientID,
		Matched:          len(result.Matched),
		UnmatchedDB:      len(result.UnmatchedDB),
		UnmatchedBackend: len(result.UnmatchedBackend),
	}

	now := o.now().UTC()
	var changed []*DownloadItem
	for _, pair := range result.Matched {
		item := pair.Item
		assigned := pair.Heuristic && pair.Snapshot.ID.IsAssigned()
		if assigned {
			item.ClientItemID = pair.Snapshot.ID
		}
		snap := pair.Snapshot
		if !o.updater.Update(item, &snap) && !assigned {
			continue
		}
		item.UpdatedAt = now
		if err := o.persistUpdate(ctx, sess, item); err != nil {
			if errors.Is(err, ErrTerminal) {
				o.logger.Info().Int64("downloadId", item.ID).Msg("Download finished during resync, skipping")
				continue
			}
			return nil, fmt.Errorf("failed to persist download %d: %w", item.ID, err)
		}
		if assigned {
			report.Assigned++
		}
		changed = append(changed, item)
	}
	report.Updated = len(changed)

	if err := sess.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit resync: %w", err)
	}

	for _, item := range changed {
		o.broadcast(EventDownloadUpdated, item)
	}

	o.logger.Info().
		Int64("clientId", clientID).
		Int("matched", report.Matched).
		Int("assigned", report.Assigned).
		Int("updated", report.Updated).
		Int("unmatchedDb", report.UnmatchedDB).
		Int("unmatchedBackend", report.UnmatchedBackend).
		Msg("Download client resynced")

	return report, nil
}

// CheckClient tests connectivity to a client and records the outcome on it.
// On failure the cached driver is dropped so the next use reconnects.
func (o *Orchestrator) CheckClient(ctx context.Context, clientID int64) (*DownloadClient, error) {
	sess := o.store.Session(ctx)
	defer sess.Rollback() //nolint:errcheck // no-op after commit

	client, err := sess.Clients().Get(ctx, clientID)
	if err != nil {
		return nil, err
	}

	var testErr error
	driver, err := o.drivers.Driver(client)
	if err != nil {
		testErr = types.NewProviderError(types.KindUnknown, client.Type, "connect", err)
	} else {
		testErr = types.Classify(client.Type, "test", driver.Test(ctx))
	}

	now := o.now().UTC()
	client.Health = HealthOK
	client.LastError = ""
	if testErr != nil {
		client.Health = HealthFailed
		client.LastError = testErr.Error()
		// A stale session or login must not outlive a failed check.
		o.drivers.Invalidate(client.ID)
	}
	client.LastCheckedAt = &now

	if err := sess.Clients().UpdateHealth(ctx, client.ID, client.Health, client.LastError, now); err != nil {
		return nil, fmt.Errorf("failed to record client health: %w", err)
	}
	if err := sess.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit client health: %w", err)
	}

	return client, testErr
}

// Get returns one item.
func (o *Orchestrator) Get(ctx context.Context, id int64) (*DownloadItem, error) {
	sess := o.store.Session(ctx)
	defer sess.Rollback() //nolint:errcheck // read-only
	return sess.Items().Get(ctx, id)
}

// ListActive returns every non-terminal item.
func (o *Orchestrator) ListActive(ctx context.Context) ([]*DownloadItem, error) {
	sess := o.store.Session(ctx)
	defer sess.Rollback() //nolint:errcheck // read-only
	return sess.Items().ListActive(ctx)
}

// ListHistory returns terminal items, most recently updated first.
func (o *Orchestrator) ListHistory(ctx context.Context, limit, offset int) ([]*DownloadItem, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, o.historyLimitMax)
	offset = max(offset, 0)

	sess := o.store.Session(ctx)
	defer sess.Rollback() //nolint:errcheck // read-only
	return sess.Items().ListHistory(ctx, limit, offset)
}

// ListByTrackedBook returns every item of a book, newest first.
func (o *Orchestrator) ListByTrackedBook(ctx context.Context, bookID int64) ([]*DownloadItem, error) {
	sess := o.store.Session(ctx)
	defer sess.Rollback() //nolint:errcheck // read-only
	return sess.Items().ListByTrackedBook(ctx, bookID)
}

// ListClients returns every configured client.
func (o *Orchestrator) ListClients(ctx context.Context) ([]*DownloadClient, error) {
	sess := o.store.Session(ctx)
	defer sess.Rollback() //nolint:errcheck // read-only
	return sess.Clients().List(ctx)
}

// ListEnabledClients returns enabled clients in selection order.
func (o *Orchestrator) ListEnabledClients(ctx context.Context) ([]*DownloadClient, error) {
	sess := o.store.Session(ctx)
	defer sess.Rollback() //nolint:errcheck // read-only
	return sess.Clients().ListEnabled(ctx)
}

func (o *Orchestrator) broadcast(msgType string, item *DownloadItem) {
	o.mu.RLock()
	hub := o.hub
	o.mu.RUnlock()
	if hub == nil {
		return
	}
	if err := hub.Broadcast(msgType, item); err != nil {
		o.logger.Debug().Err(err).Str("type", msgType).Msg("Failed to broadcast download event")
	}
}

// projectBook mirrors an item status onto its book. Completed and ignored
// books are never changed. It reports whether the book changed.
func projectBook(book *TrackedBook, status Status, now time.Time) bool {
	if book.Status.IsSticky() {
		return false
	}

	var next BookStatus
	switch status {
	case StatusQueued, StatusDownloading:
		next = BookDownloading
	case StatusPaused:
		next = BookPaused
	case StatusStalled:
		next = BookStalled
	case StatusSeeding:
		next = BookSeeding
	case StatusCompleted:
		next = BookCompleted
	case StatusFailed:
		next = BookFailed
	case StatusRemoved:
		next = BookWanted
	default:
		return false
	}

	if book.Status == next {
		return false
	}
	book.Status = next
	book.UpdatedAt = now
	return true
}

// asProviderError passes validation, not-found and provider errors through
// and wraps anything else so initiation has a single failure taxonomy.
func asProviderError(op string, err error) error {
	var pe *types.ProviderError
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) || errors.As(err, &pe) {
		return err
	}
	return types.NewProviderError(types.KindUnknown, "", op, err)
}
