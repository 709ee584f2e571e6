package cart

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/alferdousrana/Lifesheba/internal/domain"
	"github.com/alferdousrana/Lifesheba/internal/metrics"
	"github.com/alferdousrana/Lifesheba/internal/storage"
)

const (
	DefaultKey = "cart"

	// MaxQuantity caps the quantity of a single line. Adds that would pass
	// it are rejected, increases stop at it and decoded data is clamped to it.
	MaxQuantity = 9999
)

var (
	ErrMissingProductID = errors.New("product id is required")
	ErrInvalidQuantity  = errors.New("quantity must be at least 1")
	ErrQuantityTooLarge = errors.New("quantity exceeds the per-line maximum")
	ErrInvalidDirection = errors.New("direction must be increase or decrease")
)

// Snapshot is a read-only copy of the cart handed to readers and listeners.
// Version grows with every change so listeners can drop stale deliveries.
type Snapshot struct {
	Items      []domain.LineItem
	TotalCount int
	Version    uint64
}

type Listener func(Snapshot)

// Store is the authoritative cart of one session. Every mutation updates
// memory, rewrites the whole slot and recomputes the total before it
// returns. Storage failures are logged and otherwise ignored: the in-memory
// cart stays correct for the running session.
type Store struct {
	mu          sync.Mutex
	storage     storage.Storage
	key         string
	logger      *zap.Logger
	metrics     *metrics.Metrics
	items       []domain.LineItem
	total       int
	version     uint64
	initialized bool

	subMu     sync.Mutex
	listeners map[uint64]Listener
	nextSubID uint64
}

type Option func(*Store)

func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

func NewStore(st storage.Storage, opts ...Option) *Store {
	s := &Store{
		storage:   st,
		key:       DefaultKey,
		logger:    zap.NewNop(),
		listeners: make(map[uint64]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("slot", s.key))
	return s
}

func (s *Store) Key() string {
	return s.key
}

// Initialize hydrates the cart from storage. Only the first call reads;
// an absent, unreadable or corrupt slot yields an empty cart.
func (s *Store) Initialize(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureInitialized(ctx)
}

// Reload re-reads the slot, picking up changes written by another process.
// Listeners are only notified when the content actually differs.
func (s *Store) Reload(ctx context.Context) {
	s.mu.Lock()
	data, err := s.storage.Get(ctx, s.key)
	var items []domain.LineItem
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		s.metrics.StorageFailure("reload")
		s.logger.Warn("cart reload failed, keeping current state", zap.Error(err))
		s.mu.Unlock()
		return
	default:
		var dropped int
		items, dropped, err = decode(data)
		if err != nil {
			s.logger.Warn("persisted cart is corrupt, treating as empty", zap.Error(err))
			items = nil
		} else if dropped > 0 {
			s.logger.Warn("dropped unreadable cart entries", zap.Int("dropped", dropped))
		}
	}
	s.initialized = true

	if sameItems(s.items, items) {
		s.mu.Unlock()
		return
	}
	s.items = items
	snap := s.commitLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// AddItem adds quantity units of product. An existing line keeps its
// position and grows; a new line is appended with a copy of the product's
// display fields. A product without id, a quantity below 1 or a line that
// would grow past MaxQuantity is rejected and leaves the cart untouched.
func (s *Store) AddItem(ctx context.Context, product domain.Product, quantity int) error {
	if product.ID.IsZero() {
		s.logger.Warn("rejected add without product id")
		return ErrMissingProductID
	}
	if quantity < 1 {
		s.logger.Warn("rejected add with invalid quantity",
			zap.Stringer("product_id", product.ID), zap.Int("quantity", quantity))
		return ErrInvalidQuantity
	}
	if quantity > MaxQuantity {
		s.logger.Warn("rejected add above max quantity",
			zap.Stringer("product_id", product.ID), zap.Int("quantity", quantity))
		return ErrQuantityTooLarge
	}

	var tooLarge bool
	s.mutate(ctx, "add", func() bool {
		if i := s.indexOf(product.ID); i >= 0 {
			if s.items[i].Quantity > MaxQuantity-quantity {
				tooLarge = true
				return false
			}
			s.items[i].Quantity += quantity
			return true
		}
		s.items = append(s.items, domain.NewLineItem(product, quantity))
		return true
	})
	if tooLarge {
		s.logger.Warn("rejected add above max quantity",
			zap.Stringer("product_id", product.ID), zap.Int("quantity", quantity))
		return ErrQuantityTooLarge
	}
	return nil
}

// AddOne is AddItem with the default quantity of 1.
func (s *Store) AddOne(ctx context.Context, product domain.Product) error {
	return s.AddItem(ctx, product, 1)
}

// RemoveItem drops the line for id. Unknown ids are ignored.
func (s *Store) RemoveItem(ctx context.Context, id domain.ProductID) {
	s.mutate(ctx, "remove", func() bool {
		i := s.lookup(id)
		if i < 0 {
			return false
		}
		s.items = append(s.items[:i], s.items[i+1:]...)
		return true
	})
}

// UpdateQuantity steps the quantity of id by one. Decrease stops at 1 and
// never removes the line, increase stops at MaxQuantity. Unknown ids are
// ignored; a direction other than Increase or Decrease returns
// ErrInvalidDirection and changes nothing.
func (s *Store) UpdateQuantity(ctx context.Context, id domain.ProductID, direction domain.Direction) error {
	if direction != domain.Increase && direction != domain.Decrease {
		return ErrInvalidDirection
	}

	s.mutate(ctx, "update_quantity", func() bool {
		i := s.lookup(id)
		if i < 0 {
			return false
		}
		if direction == domain.Increase {
			if s.items[i].Quantity >= MaxQuantity {
				return false
			}
			s.items[i].Quantity++
			return true
		}
		if s.items[i].Quantity <= 1 {
			return false
		}
		s.items[i].Quantity--
		return true
	})
	return nil
}

// Clear empties the cart and deletes the slot rather than writing [].
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.ensureInitialized(ctx)
	s.items = nil
	snap := s.commitLocked()
	if err := s.storage.Remove(ctx, s.key); err != nil {
		s.metrics.StorageFailure("clear")
		s.logger.Warn("failed to remove persisted cart", zap.Error(err))
	}
	s.mu.Unlock()

	s.metrics.Mutation("clear")
	s.notify(snap)
}

// TotalCount is the sum of all line quantities.
func (s *Store) TotalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Items returns a copy of the lines in insertion order.
func (s *Store) Items() []domain.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneItems(s.items)
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn for every change and returns a func that removes it.
// fn runs on the goroutine that made the change, after the store lock is released.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.listeners[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.listeners, id)
			s.subMu.Unlock()
		})
	}
}

// Updates delivers snapshots on a channel until ctx is done. Only the latest
// undelivered snapshot is kept, so a slow reader skips intermediate states.
func (s *Store) Updates(ctx context.Context) <-chan Snapshot {
	ch := make(chan Snapshot, 1)
	var (
		mu     sync.Mutex
		closed bool
	)

	unsubscribe := s.Subscribe(func(snap Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	})

	go func() {
		<-ctx.Done()
		unsubscribe()
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	}()

	return ch
}

// Follow reloads the cart whenever w reports a change to the slot. It blocks
// until ctx is done.
func (s *Store) Follow(ctx context.Context, w storage.Watcher) error {
	changes, err := w.Watch(ctx, s.key)
	if err != nil {
		return err
	}
	for range changes {
		s.Reload(ctx)
	}
	return nil
}

func (s *Store) mutate(ctx context.Context, op string, fn func() bool) {
	s.mu.Lock()
	s.ensureInitialized(ctx)
	if !fn() {
		s.mu.Unlock()
		return
	}
	snap := s.commitLocked()
	s.persistLocked(ctx, op)
	s.mu.Unlock()

	s.metrics.Mutation(op)
	s.notify(snap)
}

// ensureInitialized loads the slot once so that a mutation arriving before
// Initialize never overwrites a persisted cart.
func (s *Store) ensureInitialized(ctx context.Context) {
	if s.initialized {
		return
	}
	s.initialized = true

	data, err := s.storage.Get(ctx, s.key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.logger.Debug("no persisted cart")
	case err != nil:
		s.metrics.StorageFailure("load")
		s.logger.Warn("failed to read persisted cart, starting empty", zap.Error(err))
	default:
		items, dropped, err := decode(data)
		if err != nil {
			s.logger.Warn("persisted cart is corrupt, starting empty", zap.Error(err))
			break
		}
		if dropped > 0 {
			s.logger.Warn("dropped unreadable cart entries", zap.Int("dropped", dropped))
		}
		s.items = items
	}
	s.total = domain.TotalQuantity(s.items)
}

func (s *Store) commitLocked() Snapshot {
	s.total = domain.TotalQuantity(s.items)
	s.version++
	return s.snapshotLocked()
}

func (s *Store) persistLocked(ctx context.Context, op string) {
	data, err := Encode(s.items)
	if err != nil {
		s.metrics.StorageFailure(op)
		s.logger.Warn("failed to encode cart", zap.String("op", op), zap.Error(err))
		return
	}
	if err := s.storage.Set(ctx, s.key, data); err != nil {
		s.metrics.StorageFailure(op)
		s.logger.Warn("failed to persist cart", zap.String("op", op), zap.Error(err))
	}
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Items:      cloneItems(s.items),
		TotalCount: s.total,
		Version:    s.version,
	}
}

func (s *Store) notify(snap Snapshot) {
	s.subMu.Lock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.subMu.Unlock()

	for _, fn := range listeners {
		fn(cloneSnapshot(snap))
	}
}

func (s *Store) indexOf(id domain.ProductID) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

// lookup finds the line for an id given by a caller. An exact match wins;
// otherwise the line whose id has the same text is used, so "123" typed on a
// command line or in a URL still finds a product stored with the string id "123".
func (s *Store) lookup(id domain.ProductID) int {
	if i := s.indexOf(id); i >= 0 {
		return i
	}
	for i := range s.items {
		if s.items[i].ID.String() == id.String() {
			return i
		}
	}
	return -1
}

func cloneItems(items []domain.LineItem) []domain.LineItem {
	out := make([]domain.LineItem, len(items))
	for i, item := range items {
		out[i] = item.Clone()
	}
	return out
}

func cloneSnapshot(snap Snapshot) Snapshot {
	snap.Items = cloneItems(snap.Items)
	return snap
}

func sameItems(a, b []domain.LineItem) bool {
	if len(a) != len(b) {
		return false
	}
	ea, errA := Encode(a)
	eb, errB := Encode(b)
	return errA == nil && errB == nil && bytes.Equal(ea, eb)
}
