// Package cache provides the extraction cache: expensive summarizer results
// keyed by document content and prompt version, held in memory and
// optionally persisted so later runs reuse them.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"sp1500_float/pkg/core/metrics"
	"sp1500_float/pkg/logging"

	"github.com/phuslu/log"
	"golang.org/x/sync/singleflight"
)

// Entry is one persisted cache record.
type Entry struct {
	Key       string          `json:"key"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store persists entries across runs. Load returns (nil, nil) on a miss.
type Store interface {
	Load(ctx context.Context, key string) (*Entry, error)
	Save(ctx context.Context, entry *Entry) error
	Prune(ctx context.Context, olderThan time.Time) (int, error)
}

// ExtractionCache is safe for concurrent use. At most one computation runs
// per key at a time; concurrent callers for the same key share its result.
type ExtractionCache struct {
	mu    sync.RWMutex
	mem   map[string]any
	group singleflight.Group

	store   Store
	logger  *log.Logger
	metrics *metrics.Recorder
	now     func() time.Time
}

// Option configures an ExtractionCache.
type Option func(*ExtractionCache)

// WithStore adds a persistent layer behind the memory map.
func WithStore(s Store) Option { return func(c *ExtractionCache) { c.store = s } }

// WithLogger sets the logger used for store failures.
func WithLogger(l *log.Logger) Option { return func(c *ExtractionCache) { c.logger = l } }

// WithMetrics records hits and misses.
func WithMetrics(r *metrics.Recorder) Option { return func(c *ExtractionCache) { c.metrics = r } }

// New creates an empty cache. Without WithStore it is memory only.
func New(opts ...Option) *ExtractionCache {
	c := &ExtractionCache{
		mem: make(map[string]any),
		now: time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = logging.OrNop(c.logger)
	return c
}

// Key derives the cache key for an extraction. Any change to the document
// content, prompt or response schema yields a different key.
func Key(kind, documentID, promptID, promptVersion, schemaVersion string) string {
	h := sha256.New()
	for _, part := range []string{kind, documentID, promptID, promptVersion, schemaVersion} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Len reports the number of entries held in memory.
func (c *ExtractionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.mem)
}

// Prune drops persisted entries created before olderThan and clears memory.
// The engine never calls this; retention is the operator's decision.
func (c *ExtractionCache) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	c.mu.Lock()
	c.mem = make(map[string]any)
	c.mu.Unlock()
	if c.store == nil {
		return 0, nil
	}
	return c.store.Prune(ctx, olderThan)
}

func (c *ExtractionCache) memGet(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.mem[key]
	return v, ok
}

func (c *ExtractionCache) memPut(key string, v any) {
	c.mu.Lock()
	c.mem[key] = v
	c.mu.Unlock()
}

type flightResult struct {
	value     any
	fromCache bool
}

// GetOrCompute returns the value cached under key, or runs compute once,
// stores its result and returns it. hit reports whether compute was skipped
// for this caller. A failed compute stores nothing.
func GetOrCompute[T any](ctx context.Context, c *ExtractionCache, kind, key string, compute func(context.Context) (T, error)) (value T, hit bool, err error) {
	if v, ok := c.memGet(key); ok {
		if typed, ok := v.(T); ok {
			c.metrics.CacheLookup(kind, true)
			return typed, true, nil
		}
	}

	leader := false
	ch := c.group.DoChan(key, func() (any, error) {
		leader = true
		if v, ok := c.memGet(key); ok {
			if typed, ok := v.(T); ok {
				return flightResult{value: typed, fromCache: true}, nil
			}
		}

		if typed, ok := loadFromStore[T](ctx, c, kind, key); ok {
			c.memPut(key, typed)
			return flightResult{value: typed, fromCache: true}, nil
		}

		computed, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.saveToStore(ctx, kind, key, computed)
		c.memPut(key, computed)
		return flightResult{value: computed}, nil
	})

	select {
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, false, res.Err
		}
		fr := res.Val.(flightResult)
		hit = fr.fromCache || !leader
		c.metrics.CacheLookup(kind, hit)
		return fr.value.(T), hit, nil
	}
}

func loadFromStore[T any](ctx context.Context, c *ExtractionCache, kind, key string) (T, bool) {
	var zero T
	if c.store == nil {
		return zero, false
	}
	entry, err := c.store.Load(ctx, key)
	if err != nil {
		c.logger.Warn().Str("kind", kind).Str("key", key).Err(err).Msg("cache store read failed, treating as miss")
		return zero, false
	}
	if entry == nil {
		return zero, false
	}
	var v T
	if err := json.Unmarshal(entry.Payload, &v); err != nil {
		c.logger.Warn().Str("kind", kind).Str("key", key).Err(err).Msg("cache entry undecodable, treating as miss")
		return zero, false
	}
	return v, true
}

func (c *ExtractionCache) saveToStore(ctx context.Context, kind, key string, v any) {
	if c.store == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn().Str("kind", kind).Err(err).Msg("cache payload not serializable, kept in memory only")
		return
	}
	entry := &Entry{Key: key, Kind: kind, Payload: payload, CreatedAt: c.now().UTC()}
	if err := c.store.Save(ctx, entry); err != nil {
		c.logger.Warn().Str("kind", kind).Str("key", key).Err(err).Msg("cache store write failed")
	}
}
