// Package cache is the deduplication boundary: a single mutex guarding an
// in-memory seen-set backed by durable storage. It exclusively owns cache
// entries; no other component touches the store's seen table.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"marketcast/internal/storage"
	logx "marketcast/pkg/logx"
)

// Error wraps a persistence failure. Callers fail their whole tick on it
// rather than risk a duplicate post.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("cache %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Cache answers "has this fingerprint been posted/attempted" and records new
// fingerprints write-through. All access is serialized by one mutex so a
// check-then-record for two candidates never interleaves.
type Cache struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	store     storage.Store
	retention time.Duration
	log       logx.Logger
}

// New loads the full seen-set from the store before returning, so the first
// tick after a restart already knows everything posted earlier.
func New(ctx context.Context, store storage.Store, retention time.Duration, log logx.Logger) (*Cache, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	seen, err := store.ListSeen(ctx)
	if err != nil {
		return nil, &Error{Op: "load", Err: err}
	}
	c := &Cache{seen: seen, store: store, retention: retention, log: log}
	c.log.Info("cache loaded", logx.Int("entries", len(seen)))
	return c, nil
}

// Seen reports whether the fingerprint was already recorded (and not expired).
func (c *Cache) Seen(ctx context.Context, fingerprint string) (bool, error) {
	_ = ctx
	if fingerprint == "" {
		return false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.seen[fingerprint]
	if !ok {
		return false, nil
	}
	if c.retention > 0 && time.Since(at) > c.retention {
		// Expired entries no longer suppress; drop from memory so Record can
		// refresh the timestamp on the next post.
		delete(c.seen, fingerprint)
		return false, nil
	}
	return true, nil
}

// Record stores the fingerprint in memory and write-through to durable
// storage. A storage failure leaves memory updated (suppressing duplicates
// for this process lifetime) but is returned so the tick fails closed.
func (c *Cache) Record(ctx context.Context, fingerprint string, at time.Time) error {
	if fingerprint == "" {
		return nil
	}
	if at.IsZero() {
		at = time.Now()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[fingerprint] = at
	if err := c.store.PutSeen(ctx, fingerprint, at); err != nil {
		return &Error{Op: "record", Err: err}
	}
	return nil
}

// Len reports the in-memory entry count (snapshots/telemetry).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
