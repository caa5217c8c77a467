package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketcast/internal/storage"
	logx "marketcast/pkg/logx"
)

// memStore is an in-memory Store with injectable failures.
type memStore struct {
	seen    map[string]time.Time
	listErr error
	putErr  error
}

func newMemStore() *memStore { return &memStore{seen: map[string]time.Time{}} }

func (m *memStore) GetSeen(_ context.Context, fp string) (time.Time, bool, error) {
	at, ok := m.seen[fp]
	return at, ok, nil
}

func (m *memStore) PutSeen(_ context.Context, fp string, at time.Time) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.seen[fp] = at
	return nil
}

func (m *memStore) ListSeen(_ context.Context) (map[string]time.Time, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make(map[string]time.Time, len(m.seen))
	for k, v := range m.seen {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) AppendPost(context.Context, storage.PostEntry) error { return nil }
func (m *memStore) Close() error                                        { return nil }

func TestCacheSeenAfterRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, err := New(ctx, newMemStore(), 0, logx.Nop())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	if seen, _ := c.Seen(ctx, "fp1"); seen {
		t.Fatal("fresh cache reports fp1 as seen")
	}
	if err := c.Record(ctx, "fp1", time.Now()); err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if seen, _ := c.Seen(ctx, "fp1"); !seen {
		t.Fatal("recorded fingerprint not seen")
	}
}

func TestCachePreloadsFromStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newMemStore()
	st.seen["prior"] = time.Now()

	c, err := New(ctx, st, 0, logx.Nop())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if seen, _ := c.Seen(ctx, "prior"); !seen {
		t.Fatal("entry persisted before restart must be seen on first check")
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
}

func TestCacheLoadFailure(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	st.listErr = errors.New("disk gone")

	_, err := New(context.Background(), st, 0, logx.Nop())
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("load failure must be a cache Error, got %v", err)
	}
	if cerr.Op != "load" {
		t.Fatalf("Op = %s, want load", cerr.Op)
	}
}

func TestCacheRecordFailureSurfaces(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newMemStore()
	c, err := New(ctx, st, 0, logx.Nop())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	st.putErr = errors.New("write failed")
	err = c.Record(ctx, "fp1", time.Now())
	var cerr *Error
	if !errors.As(err, &cerr) || cerr.Op != "record" {
		t.Fatalf("Record must surface a cache Error, got %v", err)
	}

	// Memory still suppresses the duplicate within this process.
	if seen, _ := c.Seen(ctx, "fp1"); !seen {
		t.Fatal("fingerprint lost from memory after failed write-through")
	}
}

func TestCacheRetentionExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newMemStore()
	st.seen["old"] = time.Now().Add(-2 * time.Hour)
	st.seen["new"] = time.Now()

	c, err := New(ctx, st, time.Hour, logx.Nop())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if seen, _ := c.Seen(ctx, "old"); seen {
		t.Fatal("expired entry still suppresses")
	}
	if seen, _ := c.Seen(ctx, "new"); !seen {
		t.Fatal("fresh entry not seen")
	}
}

func TestCacheEmptyFingerprintNoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, err := New(ctx, newMemStore(), 0, logx.Nop())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if err := c.Record(ctx, "", time.Now()); err != nil {
		t.Fatalf("Record(\"\") error: %v", err)
	}
	if seen, _ := c.Seen(ctx, ""); seen {
		t.Fatal("empty fingerprint reported seen")
	}
	if c.Len() != 0 {
		t.Fatalf("Len = %d, want 0", c.Len())
	}
}
