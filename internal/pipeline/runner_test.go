package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketcast/internal/cache"
	"marketcast/internal/content"
	"marketcast/internal/eventbus"
	"marketcast/internal/storage"
	logx "marketcast/pkg/logx"
)

type fakeFetcher struct {
	reply content.RawReply
	err   error
	block bool // wait for ctx cancellation, then return ctx.Err()
}

func (f *fakeFetcher) Fetch(ctx context.Context, _ content.Sector) (content.RawReply, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.reply, f.err
}

type fakeBroadcaster struct {
	calls   []string
	results []content.PostResult
}

func (f *fakeBroadcaster) Post(_ context.Context, text string) []content.PostResult {
	f.calls = append(f.calls, text)
	if f.results != nil {
		return f.results
	}
	return []content.PostResult{{Platform: "twitter", Status: content.StatusPosted, PostID: "1", At: time.Now()}}
}

type memStore struct {
	seen    map[string]time.Time
	posts   []storage.PostEntry
	putErr  error
	listErr error
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

func (m *memStore) AppendPost(_ context.Context, e storage.PostEntry) error {
	m.posts = append(m.posts, e)
	return nil
}

func (m *memStore) Close() error { return nil }

func newTestRunner(t *testing.T, f Fetcher, b Broadcaster, st *memStore, timeout time.Duration) (*Runner, *cache.Cache) {
	t.Helper()
	c, err := cache.New(context.Background(), st, 0, logx.Nop())
	if err != nil {
		t.Fatalf("cache.New error: %v", err)
	}
	return NewRunner(f, c, b, st, eventbus.New(), timeout, logx.Nop()), c
}

func sectorFixture() content.Sector {
	return content.Sector{Name: "crypto", Question: "What happened in crypto?"}
}

func TestRunPostsNewCandidates(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{reply: content.RawReply{
		{Topic: "1", Text: "BTC held above support. [23]"},
		{Topic: "2", Text: "ETH funding turned positive."},
	}}
	b := &fakeBroadcaster{}
	st := newMemStore()
	r, _ := newTestRunner(t, f, b, st, time.Minute)

	rep, err := r.Run(context.Background(), sectorFixture())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if rep.Posted != 2 || rep.Skipped != 0 || rep.Failed != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if len(b.calls) != 2 {
		t.Fatalf("broadcaster called %d times, want 2", len(b.calls))
	}
	if b.calls[0] != "BTC held above support." {
		t.Fatalf("first candidate = %q (annotation not stripped?)", b.calls[0])
	}
	if len(st.posts) != 2 {
		t.Fatalf("post log has %d entries, want 2", len(st.posts))
	}
}

func TestRunSecondTickSkipsDuplicates(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{reply: content.RawReply{{Topic: "1", Text: "Same summary as before."}}}
	b := &fakeBroadcaster{}
	st := newMemStore()
	r, _ := newTestRunner(t, f, b, st, time.Minute)
	ctx := context.Background()

	if _, err := r.Run(ctx, sectorFixture()); err != nil {
		t.Fatalf("first Run error: %v", err)
	}
	rep, err := r.Run(ctx, sectorFixture())
	if err != nil {
		t.Fatalf("second Run error: %v", err)
	}
	if rep.Skipped != 1 || rep.Posted != 0 {
		t.Fatalf("second run report = %+v, want 1 skipped", rep)
	}
	if len(b.calls) != 1 {
		t.Fatalf("broadcaster called %d times total, want 1", len(b.calls))
	}
}

func TestRunRecordsFingerprintDespitePostFailure(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{reply: content.RawReply{{Topic: "1", Text: "A summary that will fail to post."}}}
	b := &fakeBroadcaster{results: []content.PostResult{
		{Platform: "twitter", Status: content.StatusFailed, Err: errors.New("503"), At: time.Now()},
	}}
	st := newMemStore()
	r, _ := newTestRunner(t, f, b, st, time.Minute)
	ctx := context.Background()

	rep, err := r.Run(ctx, sectorFixture())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if rep.Failed != 1 {
		t.Fatalf("report = %+v, want 1 failed", rep)
	}

	// The failed candidate must not be re-attempted next tick.
	rep2, err := r.Run(ctx, sectorFixture())
	if err != nil {
		t.Fatalf("second Run error: %v", err)
	}
	if rep2.Skipped != 1 {
		t.Fatalf("second run report = %+v, want 1 skipped", rep2)
	}
	if len(b.calls) != 1 {
		t.Fatalf("failed candidate was re-broadcast: %d calls", len(b.calls))
	}
}

func TestRunCacheWriteFailureFailsTick(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{reply: content.RawReply{{Topic: "1", Text: "Persist me."}}}
	b := &fakeBroadcaster{}
	st := newMemStore()
	r, _ := newTestRunner(t, f, b, st, time.Minute)

	st.putErr = errors.New("disk full")
	_, err := r.Run(context.Background(), sectorFixture())
	var cerr *cache.Error
	if !errors.As(err, &cerr) {
		t.Fatalf("cache write failure must fail the tick, got %v", err)
	}
}

func TestRunProviderErrorFailsTickCleanly(t *testing.T) {
	t.Parallel()
	cause := errors.New("upstream 429")
	f := &fakeFetcher{err: cause}
	b := &fakeBroadcaster{}
	st := newMemStore()
	r, c := newTestRunner(t, f, b, st, time.Minute)

	_, err := r.Run(context.Background(), sectorFixture())
	if !errors.Is(err, cause) {
		t.Fatalf("Run error = %v, want wrapped cause", err)
	}
	if len(b.calls) != 0 {
		t.Fatal("broadcaster called despite fetch failure")
	}
	if c.Len() != 0 {
		t.Fatal("cache mutated despite fetch failure")
	}
}

func TestRunOverlongEntriesWarnOnly(t *testing.T) {
	t.Parallel()
	long := make([]rune, content.MaxTweetLen+50)
	for i := range long {
		long[i] = 'z'
	}
	f := &fakeFetcher{reply: content.RawReply{
		{Topic: "1", Text: string(long)},
		{Topic: "2", Text: "Fits fine."},
	}}
	b := &fakeBroadcaster{}
	st := newMemStore()
	r, _ := newTestRunner(t, f, b, st, time.Minute)

	rep, err := r.Run(context.Background(), sectorFixture())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(rep.Warnings) != 1 {
		t.Fatalf("got %d warnings, want 1", len(rep.Warnings))
	}
	if rep.Posted != 1 {
		t.Fatalf("report = %+v, want 1 posted", rep)
	}
}

func TestRunTickTimeout(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{block: true}
	b := &fakeBroadcaster{}
	st := newMemStore()
	r, _ := newTestRunner(t, f, b, st, 20*time.Millisecond)

	_, err := r.Run(context.Background(), sectorFixture())
	if !errors.Is(err, ErrTickTimeout) {
		t.Fatalf("Run error = %v, want ErrTickTimeout", err)
	}
}
