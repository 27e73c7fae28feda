package downloads

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/bindery/bindery/internal/downloader/types"
)

// memStore is an in-memory Store. Writes apply immediately; sessions only
// count commits and rollbacks.
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	items   map[int64]*DownloadItem
	clients map[int64]*DownloadClient
	books   map[int64]*TrackedBook

	commits     int
	updateErr   error
	bookGetErr  error
	historyArgs [2]int
}

func newMemStore() *memStore {
	return &memStore{
		items:   make(map[int64]*DownloadItem),
		clients: make(map[int64]*DownloadClient),
		books:   make(map[int64]*TrackedBook),
	}
}

func (s *memStore) addClient(c *DownloadClient) *DownloadClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.Health == "" {
		c.Health = HealthUnknown
	}
	s.clients[c.ID] = c
	return c
}

func (s *memStore) addBook(b *TrackedBook) *TrackedBook {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.Status == "" {
		b.Status = BookWanted
	}
	s.books[b.ID] = b
	return b
}

func (s *memStore) seedItem(item *DownloadItem) *DownloadItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	item.ID = s.nextID
	s.items[item.ID] = item.Clone()
	return item
}

func (s *memStore) item(id int64) *DownloadItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it, ok := s.items[id]; ok {
		return it.Clone()
	}
	return nil
}

func (s *memStore) book(id int64) TrackedBook {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.books[id]
}

func (s *memStore) client(id int64) DownloadClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.clients[id]
}

func (s *memStore) itemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *memStore) Session(_ context.Context) Session {
	return &memSession{store: s}
}

type memSession struct {
	store     *memStore
	committed bool
}

func (s *memSession) Items() ItemRepository     { return memItems{s.store} }
func (s *memSession) Clients() ClientRepository { return memClients{s.store} }
func (s *memSession) Books() BookRepository     { return memBooks{s.store} }

func (s *memSession) Commit() error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.committed = true
	s.store.commits++
	return nil
}

func (s *memSession) Rollback() error {
	return nil
}

type memItems struct{ s *memStore }

func (r memItems) Add(_ context.Context, item *DownloadItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, it := range r.s.items {
		if it.TrackedBookID == item.TrackedBookID && it.DownloadURL == item.DownloadURL && !it.Status.IsTerminal() {
			return ErrDuplicate
		}
	}
	r.s.nextID++
	item.ID = r.s.nextID
	r.s.items[item.ID] = item.Clone()
	return nil
}

func (r memItems) Get(_ context.Context, id int64) (*DownloadItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.items[id]
	if !ok {
		return nil, NewNotFoundError("download", id)
	}
	return it.Clone(), nil
}

func (r memItems) Update(_ context.Context, item *DownloadItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.updateErr != nil {
		return r.s.updateErr
	}
	stored, ok := r.s.items[item.ID]
	if !ok {
		return NewNotFoundError("download", item.ID)
	}
	if stored.Status.IsTerminal() && (stored.Status != StatusRemoved || item.Status != StatusRemoved) {
		return ErrTerminal
	}
	r.s.items[item.ID] = item.Clone()
	return nil
}

func (r memItems) Refresh(_ context.Context, item *DownloadItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.items[item.ID]
	if !ok {
		return NewNotFoundError("download", item.ID)
	}
	*item = *it.Clone()
	return nil
}

func (r memItems) list(keep func(*DownloadItem) bool) []*DownloadItem {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*DownloadItem
	for _, it := range r.s.items {
		if keep(it) {
			out = append(out, it.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r memItems) ListActive(_ context.Context) ([]*DownloadItem, error) {
	return r.list(func(it *DownloadItem) bool { return !it.Status.IsTerminal() }), nil
}

func (r memItems) ListHistory(_ context.Context, limit, offset int) ([]*DownloadItem, error) {
	r.s.mu.Lock()
	r.s.historyArgs = [2]int{limit, offset}
	r.s.mu.Unlock()
	out := r.list(func(it *DownloadItem) bool { return it.Status.IsTerminal() })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memItems) ListByTrackedBook(_ context.Context, bookID int64) ([]*DownloadItem, error) {
	return r.list(func(it *DownloadItem) bool { return it.TrackedBookID == bookID }), nil
}

func (r memItems) GetLatestByURLAndTrackedBook(_ context.Context, url string, bookID int64) (*DownloadItem, error) {
	matches := r.list(func(it *DownloadItem) bool { return it.TrackedBookID == bookID && it.DownloadURL == url })
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[len(matches)-1], nil
}

func (r memItems) ListByClient(_ context.Context, clientID int64, activeOnly bool) ([]*DownloadItem, error) {
	return r.list(func(it *DownloadItem) bool {
		return it.DownloadClientID == clientID && (!activeOnly || !it.Status.IsTerminal())
	}), nil
}

type memClients struct{ s *memStore }

func (r memClients) List(_ context.Context) ([]*DownloadClient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*DownloadClient
	for _, c := range r.s.clients {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memClients) ListEnabled(ctx context.Context) ([]*DownloadClient, error) {
	all, _ := r.List(ctx)
	var out []*DownloadClient
	for _, c := range all {
		if c.Enabled {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (r memClients) Get(_ context.Context, id int64) (*DownloadClient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.clients[id]
	if !ok {
		return nil, NewNotFoundError("download client", id)
	}
	cp := *c
	return &cp, nil
}

func (r memClients) UpdateHealth(_ context.Context, id int64, status HealthStatus, lastError string, checkedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.clients[id]
	if !ok {
		return NewNotFoundError("download client", id)
	}
	c.Health = status
	c.LastError = lastError
	c.LastCheckedAt = &checkedAt
	return nil
}

type memBooks struct{ s *memStore }

func (r memBooks) Get(_ context.Context, id int64) (*TrackedBook, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.bookGetErr != nil {
		return nil, r.s.bookGetErr
	}
	b, ok := r.s.books[id]
	if !ok {
		return nil, NewNotFoundError("tracked book", id)
	}
	cp := *b
	return &cp, nil
}

func (r memBooks) UpdateStatus(_ context.Context, book *TrackedBook) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *book
	r.s.books[book.ID] = &cp
	return nil
}

// fakeDriver is a scriptable backend.
type fakeDriver struct {
	mu         sync.Mutex
	clientType types.ClientType
	addID      types.ItemID
	addErr     error
	addGate    chan struct{}
	snaps      []types.Snapshot
	listErr    error
	removeErr  error
	testErr    error

	addCalls    int
	listCalls   int
	removeCalls []removeCall
}

type removeCall struct {
	id          types.ItemID
	deleteFiles bool
}

func (d *fakeDriver) Type() types.ClientType {
	if d.clientType == "" {
		return types.ClientTypeTransmission
	}
	return d.clientType
}

func (d *fakeDriver) Test(_ context.Context) error {
	return d.testErr
}

func (d *fakeDriver) Add(_ context.Context, _ *types.AddOptions) (types.ItemID, error) {
	if d.addGate != nil {
		<-d.addGate
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addCalls++
	return d.addID, d.addErr
}

func (d *fakeDriver) List(_ context.Context) ([]types.Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listCalls++
	if d.listErr != nil {
		return nil, d.listErr
	}
	return append([]types.Snapshot(nil), d.snaps...), nil
}

func (d *fakeDriver) Remove(_ context.Context, id types.ItemID, deleteFiles bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeCalls = append(d.removeCalls, removeCall{id: id, deleteFiles: deleteFiles})
	return d.removeErr
}

func (d *fakeDriver) calls() (add, list, remove int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addCalls, d.listCalls, len(d.removeCalls)
}

// addOnlyDriver cannot report its items.
type addOnlyDriver struct{}

func (addOnlyDriver) Type() types.ClientType       { return types.ClientTypeTorrentBlackhole }
func (addOnlyDriver) Test(_ context.Context) error { return nil }
func (addOnlyDriver) Add(_ context.Context, _ *types.AddOptions) (types.ItemID, error) {
	return types.Unassigned(), nil
}
func (addOnlyDriver) Remove(_ context.Context, _ types.ItemID, _ bool) error { return nil }

type fakeDrivers struct {
	drivers     map[int64]types.Client
	unsupported map[types.ClientType]bool
	invalidated []int64
}

func newFakeDrivers() *fakeDrivers {
	return &fakeDrivers{
		drivers:     make(map[int64]types.Client),
		unsupported: make(map[types.ClientType]bool),
	}
}

func (p *fakeDrivers) Driver(c *DownloadClient) (types.Client, error) {
	d, ok := p.drivers[c.ID]
	if !ok {
		return nil, errors.New("no driver configured")
	}
	return d, nil
}

func (p *fakeDrivers) Supports(t types.ClientType) bool {
	return !p.unsupported[t]
}

func (p *fakeDrivers) Invalidate(id int64) {
	p.invalidated = append(p.invalidated, id)
}

type recordedEvent struct {
	msgType string
	item    DownloadItem
}

type fakeHub struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (h *fakeHub) Broadcast(msgType string, payload interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	item, _ := payload.(*DownloadItem)
	var cp DownloadItem
	if item != nil {
		cp = *item.Clone()
	}
	h.events = append(h.events, recordedEvent{msgType: msgType, item: cp})
	return nil
}

func (h *fakeHub) eventTypes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, e := range h.events {
		out = append(out, e.msgType)
	}
	return out
}
