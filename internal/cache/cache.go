// file: internal/cache/cache.go
// version: 2.0.0
// guid: a1b2c3d4-e5f6-7a8b-9c0d-1e2f3a4b5c6d

package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jdfalk/media-library/internal/logger"
	"github.com/jdfalk/media-library/internal/metadata"
	"github.com/jdfalk/media-library/internal/metrics"
	"github.com/jdfalk/media-library/internal/models"
)

// Key identifies a cached resolution by locally assigned entity identity.
type Key struct {
	Kind models.EntityKind `json:"kind"`
	ID   int64             `json:"id"`
}

func (k Key) String() string { return fmt.Sprintf("%s:%d", k.Kind, k.ID) }

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok {
		return Key{}, fmt.Errorf("invalid cache key %q", s)
	}
	k, err := models.ParseEntityKind(kind)
	if err != nil {
		return Key{}, err
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return Key{}, fmt.Errorf("invalid cache key %q: %w", s, err)
	}
	return Key{Kind: k, ID: n}, nil
}

// State is the lifecycle state of a cache entry.
type State int

const (
	StateAbsent State = iota
	StatePending
	StateResolved
	StateNotFound
	StateFailed
)

var stateNames = map[State]string{
	StateAbsent:   "absent",
	StatePending:  "pending",
	StateResolved: "resolved",
	StateNotFound: "not_found",
	StateFailed:   "failed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for st, name := range stateNames {
		if name == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown cache state %q", b)
}

// Entry is a snapshot of one cached resolution.
type Entry struct {
	Key        Key                       `json:"key"`
	State      State                     `json:"state"`
	Metadata   *models.CanonicalMetadata `json:"metadata,omitempty"`
	ResolvedAt time.Time                 `json:"resolved_at"`
	Err        string                    `json:"error,omitempty"`
}

// Backend persists settled entries across restarts. Only Resolved and
// NotFound entries are stored.
type Backend interface {
	Load(key Key) (*Entry, error)
	Store(entry Entry) error
	Delete(key Key) error
	DeleteAll() error
	List() ([]Entry, error)
}

// ResolveFunc performs the remote resolution for one key.
type ResolveFunc func(ctx context.Context) (*models.CanonicalMetadata, error)

var errResolvePanicked = errors.New("resolve panicked")

type call struct {
	done      chan struct{}
	meta      *models.CanonicalMetadata
	err       error
	abandoned bool
}

type slot struct {
	mu     sync.Mutex
	entry  Entry
	loaded bool
	call   *call
}

// Cache maps entity keys to resolution outcomes with at most one resolution
// in flight per key. Keys never contend with each other.
type Cache struct {
	slots   sync.Map // Key -> *slot
	backend Backend
	log     *logger.Logger
	now     func() time.Time

	// held exclusively by InvalidateAll so lazy backend loads cannot
	// resurrect entries it is wiping
	wipe sync.RWMutex
}

// Option configures a Cache.
type Option func(*Cache)

// WithBackend persists settled entries to b.
func WithBackend(b Backend) Option { return func(c *Cache) { c.backend = b } }

// WithLogger sets the cache logger.
func WithLogger(l *logger.Logger) Option { return func(c *Cache) { c.log = l } }

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{log: logger.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) slot(key Key) *slot {
	if v, ok := c.slots.Load(key); ok {
		return v.(*slot)
	}
	v, _ := c.slots.LoadOrStore(key, &slot{entry: Entry{Key: key}})
	return v.(*slot)
}

// loadLocked pulls a persisted entry into s on first touch. s.mu must be held.
func (c *Cache) loadLocked(key Key, s *slot) {
	if s.loaded {
		return
	}
	s.loaded = true
	if c.backend == nil {
		return
	}
	e, err := c.backend.Load(key)
	if err != nil {
		c.log.Warnf("failed to load %s from backend: %v", key, err)
		return
	}
	if e != nil && (e.State == StateResolved || e.State == StateNotFound) {
		e.Key = key
		s.entry = *e
	}
}

// GetOrResolve returns the cached outcome for key or runs resolve.
//
// Concurrent callers for the same key share one resolve call. ErrNotFound
// is cached until invalidated. Any other failure leaves the entry Failed and
// the next caller resolves again. If the caller running resolve is
// cancelled, the entry reverts to absent and waiting callers retry.
func (c *Cache) GetOrResolve(ctx context.Context, key Key, resolve ResolveFunc) (*models.CanonicalMetadata, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s := c.slot(key)
		c.wipe.RLock()
		s.mu.Lock()
		c.loadLocked(key, s)

		switch s.entry.State {
		case StateResolved:
			meta := s.entry.Metadata
			s.mu.Unlock()
			c.wipe.RUnlock()
			metrics.IncCacheLookup("hit")
			c.log.Debugf("cache hit %s", key)
			return meta, nil
		case StateNotFound:
			s.mu.Unlock()
			c.wipe.RUnlock()
			metrics.IncCacheLookup("negative_hit")
			c.log.Debugf("cache negative hit %s", key)
			return nil, fmt.Errorf("%w: %s", metadata.ErrNotFound, key)
		}

		if cl := s.call; cl != nil {
			s.mu.Unlock()
			c.wipe.RUnlock()
			metrics.IncCacheLookup("shared")
			select {
			case <-cl.done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if cl.abandoned {
				continue
			}
			return cl.meta, cl.err
		}

		cl := &call{done: make(chan struct{})}
		s.call = cl
		s.entry.State = StatePending
		s.mu.Unlock()
		c.wipe.RUnlock()
		metrics.IncCacheLookup("miss")

		c.lead(ctx, key, s, cl, resolve)
		if cl.abandoned {
			return nil, cl.err
		}
		return cl.meta, cl.err
	}
}

// lead runs resolve for s and publishes the outcome. A panic in resolve still
// releases the waiters before it propagates.
func (c *Cache) lead(ctx context.Context, key Key, s *slot, cl *call, resolve ResolveFunc) {
	settled := false
	defer func() {
		if !settled {
			c.settle(ctx, key, s, cl, nil, errResolvePanicked)
		}
	}()
	meta, err := resolve(ctx)
	settled = true
	c.settle(ctx, key, s, cl, meta, err)
}

func (c *Cache) settle(ctx context.Context, key Key, s *slot, cl *call, meta *models.CanonicalMetadata, err error) {
	s.mu.Lock()
	s.call = nil
	switch {
	case err == nil && meta != nil:
		s.entry = Entry{Key: key, State: StateResolved, Metadata: meta, ResolvedAt: c.now()}
		c.persist(s.entry)
	case err == nil || errors.Is(err, metadata.ErrNotFound):
		if err == nil {
			err = fmt.Errorf("%w: %s", metadata.ErrNotFound, key)
		}
		meta = nil
		s.entry = Entry{Key: key, State: StateNotFound, ResolvedAt: c.now()}
		c.persist(s.entry)
	case ctx.Err() != nil:
		// The leader gave up; nobody learned anything about this key.
		s.entry = Entry{Key: key}
		cl.abandoned = true
		err = ctx.Err()
		meta = nil
	default:
		s.entry = Entry{Key: key, State: StateFailed, ResolvedAt: c.now(), Err: err.Error()}
		meta = nil
		c.log.Warnf("resolution failed for %s: %v", key, err)
	}
	cl.meta, cl.err = meta, err
	s.mu.Unlock()
	close(cl.done)
}

func (c *Cache) persist(e Entry) {
	if c.backend == nil {
		return
	}
	if err := c.backend.Store(e); err != nil {
		c.log.Warnf("failed to persist %s: %v", e.Key, err)
	}
}

// Invalidate drops the entry for key so the next lookup resolves again. An
// in-flight resolution is left to finish and its result is kept.
func (c *Cache) Invalidate(key Key) error {
	s := c.slot(key)
	c.wipe.RLock()
	defer c.wipe.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = true
	if s.call == nil {
		s.entry = Entry{Key: key}
	}
	if c.backend != nil {
		if err := c.backend.Delete(key); err != nil {
			return fmt.Errorf("failed to delete %s from backend: %w", key, err)
		}
	}
	return nil
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll() error {
	c.wipe.Lock()
	defer c.wipe.Unlock()
	c.slots.Range(func(k, v any) bool {
		s := v.(*slot)
		s.mu.Lock()
		s.loaded = true
		if s.call == nil {
			s.entry = Entry{Key: k.(Key)}
		}
		s.mu.Unlock()
		return true
	})
	if c.backend != nil {
		if err := c.backend.DeleteAll(); err != nil {
			return fmt.Errorf("failed to clear backend: %w", err)
		}
	}
	return nil
}

// Entry returns the current entry for key. The boolean is false when the key
// has no entry.
func (c *Cache) Entry(key Key) (Entry, bool) {
	s := c.slot(key)
	c.wipe.RLock()
	defer c.wipe.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	c.loadLocked(key, s)
	e := s.entry
	if s.call != nil {
		e.State = StatePending
	}
	return e, e.State != StateAbsent
}

// Snapshot returns every known entry ordered by kind then ID. Persisted
// entries not yet touched in this process are included.
func (c *Cache) Snapshot() []Entry {
	c.wipe.RLock()
	defer c.wipe.RUnlock()

	byKey := make(map[Key]Entry)
	touched := make(map[Key]bool)
	c.slots.Range(func(k, v any) bool {
		s := v.(*slot)
		s.mu.Lock()
		e := s.entry
		if s.call != nil {
			e.State = StatePending
		}
		if s.loaded {
			touched[k.(Key)] = true
		}
		s.mu.Unlock()
		if e.State != StateAbsent {
			byKey[k.(Key)] = e
		}
		return true
	})

	if c.backend != nil {
		persisted, err := c.backend.List()
		if err != nil {
			c.log.Warnf("failed to list backend entries: %v", err)
		}
		for _, e := range persisted {
			if !touched[e.Key] {
				byKey[e.Key] = e
			}
		}
	}

	out := make([]Entry, 0, len(byKey))
	for _, e := range byKey {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Kind != out[j].Key.Kind {
			return out[i].Key.Kind < out[j].Key.Kind
		}
		return out[i].Key.ID < out[j].Key.ID
	})
	return out
}
