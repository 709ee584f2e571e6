package cart

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/alferdousrana/Lifesheba/internal/metrics"
	"github.com/alferdousrana/Lifesheba/internal/storage"
)

// Registry owns the cart of every session served by the process. Stores are
// created and hydrated on the first Get and live until the registry is
// closed; Peek serves reads without creating one.
type Registry struct {
	storage storage.Storage
	key     string
	logger  *zap.Logger
	metrics *metrics.Metrics
	watch   bool

	mu     sync.RWMutex
	stores map[string]*Store
	sfg    singleflight.Group // collapses concurrent first loads of one session

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type RegistryOption func(*Registry)

func WithRegistryLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithRegistryMetrics(m *metrics.Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithWatch makes every store follow its slot when the storage supports it.
func WithWatch(enabled bool) RegistryOption {
	return func(r *Registry) {
		r.watch = enabled
	}
}

// NewRegistry builds a registry whose slots are key for the default session
// and key:<session> for the others.
func NewRegistry(st storage.Storage, key string, opts ...RegistryOption) *Registry {
	if key == "" {
		key = DefaultKey
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		storage: st,
		key:     key,
		logger:  zap.NewNop(),
		stores:  make(map[string]*Store),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SlotKey returns the storage key used for sessionID.
func (r *Registry) SlotKey(sessionID string) string {
	if sessionID == "" {
		return r.key
	}
	return r.key + ":" + sessionID
}

// Get returns the initialized store for sessionID. An empty id is the
// default session.
func (r *Registry) Get(ctx context.Context, sessionID string) *Store {
	r.mu.RLock()
	store, ok := r.stores[sessionID]
	r.mu.RUnlock()
	if ok {
		return store
	}

	v, _, _ := r.sfg.Do(sessionID, func() (interface{}, error) {
		r.mu.RLock()
		existing, ok := r.stores[sessionID]
		r.mu.RUnlock()
		if ok {
			return existing, nil
		}

		store := NewStore(r.storage,
			WithKey(r.SlotKey(sessionID)),
			WithLogger(r.logger),
			WithMetrics(r.metrics),
		)
		store.Initialize(ctx)

		r.mu.Lock()
		r.stores[sessionID] = store
		n := len(r.stores)
		r.mu.Unlock()
		r.metrics.SetSessions(n)

		r.follow(store)
		return store, nil
	})

	return v.(*Store)
}

// Peek returns the store of sessionID without registering it. A session
// already in memory is returned as is; otherwise a detached store is loaded
// from storage and dropped by the caller, so read-only traffic from unknown
// sessions does not grow the registry.
func (r *Registry) Peek(ctx context.Context, sessionID string) *Store {
	r.mu.RLock()
	store, ok := r.stores[sessionID]
	r.mu.RUnlock()
	if ok {
		return store
	}

	store = NewStore(r.storage,
		WithKey(r.SlotKey(sessionID)),
		WithLogger(r.logger),
	)
	store.Initialize(ctx)
	return store
}

// Len is the number of sessions held in memory.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stores)
}

// Default is the store of the default session.
func (r *Registry) Default(ctx context.Context) *Store {
	return r.Get(ctx, "")
}

// Loaded reports whether sessionID already has a store in memory.
func (r *Registry) Loaded(sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.stores[sessionID]
	return ok
}

// Close stops slot watchers. Stores stay usable.
func (r *Registry) Close() {
	r.cancel()
	r.wg.Wait()
}

func (r *Registry) follow(store *Store) {
	if !r.watch {
		return
	}
	w, ok := r.storage.(storage.Watcher)
	if !ok {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := store.Follow(r.ctx, w); err != nil {
			r.logger.Warn("cart watcher stopped", zap.String("slot", store.Key()), zap.Error(err))
		}
	}()
}
