package broadcast

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"marketcast/internal/content"
	"marketcast/internal/platform"
	logx "marketcast/pkg/logx"
)

// fakePoster returns scripted errors per call, then succeeds.
type fakePoster struct {
	name  string
	errs  []error
	calls int
}

func (f *fakePoster) Name() string { return f.name }

func (f *fakePoster) Post(context.Context, string) (string, error) {
	f.calls++
	if f.calls <= len(f.errs) {
		if err := f.errs[f.calls-1]; err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%s-%d", f.name, f.calls), nil
}

func fastOpts() Options {
	return Options{RatePerSec: 1000, RetryMax: 3, RetryBase: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond, SendTimeout: time.Second}
}

func newTestService(posters ...platform.Poster) *Service {
	s := New(posters, fastOpts(), logx.Nop())
	s.sleep = func(context.Context, time.Duration) error { return nil }
	return s
}

func TestPostFansOutInOrder(t *testing.T) {
	t.Parallel()
	tw := &fakePoster{name: "twitter"}
	tg := &fakePoster{name: "telegram"}
	s := newTestService(tw, tg)

	results := s.Post(context.Background(), "hello markets")
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Platform != "twitter" || results[1].Platform != "telegram" {
		t.Fatalf("platform order wrong: %s, %s", results[0].Platform, results[1].Platform)
	}
	for _, r := range results {
		if r.Status != content.StatusPosted || r.PostID == "" {
			t.Fatalf("unexpected result: %+v", r)
		}
	}
}

func TestPostOnePlatformFailingNeverStopsOthers(t *testing.T) {
	t.Parallel()
	tw := &fakePoster{name: "twitter", errs: []error{errors.New("boom")}}
	tg := &fakePoster{name: "telegram"}
	s := newTestService(tw, tg)

	results := s.Post(context.Background(), "text")
	if results[0].Status != content.StatusFailed {
		t.Fatalf("twitter result = %+v, want failed", results[0])
	}
	if results[1].Status != content.StatusPosted {
		t.Fatalf("telegram result = %+v, want posted", results[1])
	}
}

func TestPostRetriesRateLimitedOnly(t *testing.T) {
	t.Parallel()
	tw := &fakePoster{name: "twitter", errs: []error{platform.ErrRateLimited, platform.ErrRateLimited}}
	s := newTestService(tw)

	results := s.Post(context.Background(), "text")
	if results[0].Status != content.StatusPosted {
		t.Fatalf("result = %+v, want posted after retries", results[0])
	}
	if tw.calls != 3 {
		t.Fatalf("calls = %d, want 3", tw.calls)
	}
}

func TestPostRetriesAreBounded(t *testing.T) {
	t.Parallel()
	tw := &fakePoster{name: "twitter", errs: []error{
		platform.ErrRateLimited, platform.ErrRateLimited, platform.ErrRateLimited,
		platform.ErrRateLimited, platform.ErrRateLimited,
	}}
	s := newTestService(tw)

	results := s.Post(context.Background(), "text")
	if results[0].Status != content.StatusFailed {
		t.Fatalf("result = %+v, want failed", results[0])
	}
	if tw.calls != 4 { // initial + RetryMax
		t.Fatalf("calls = %d, want 4", tw.calls)
	}
}

func TestPostGenericErrorNoRetry(t *testing.T) {
	t.Parallel()
	tw := &fakePoster{name: "twitter", errs: []error{errors.New("500 internal")}}
	s := newTestService(tw)

	s.Post(context.Background(), "text")
	if tw.calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry for generic errors)", tw.calls)
	}
}

func TestAuthFailureLatchesPlatform(t *testing.T) {
	t.Parallel()
	tw := &fakePoster{name: "twitter", errs: []error{fmt.Errorf("%w: status 401", platform.ErrAuth)}}
	tg := &fakePoster{name: "telegram"}
	s := newTestService(tw, tg)

	first := s.Post(context.Background(), "first")
	if first[0].Status != content.StatusFailed {
		t.Fatalf("twitter first = %+v, want failed", first[0])
	}
	if first[1].Status != content.StatusPosted {
		t.Fatal("telegram must still post after twitter auth failure")
	}
	if !s.Latched("twitter") {
		t.Fatal("twitter not latched after auth failure")
	}

	second := s.Post(context.Background(), "second")
	if second[0].Status != content.StatusFailed || !errors.Is(second[0].Err, platform.ErrAuth) {
		t.Fatalf("latched platform result = %+v", second[0])
	}
	if tw.calls != 1 {
		t.Fatalf("latched platform was called again: calls = %d", tw.calls)
	}
	if second[1].Status != content.StatusPosted {
		t.Fatal("telegram stopped posting after twitter latch")
	}
}

// blockingPoster holds the send open until its ctx expires, like a wedged
// platform connection.
type blockingPoster struct{ name string }

func (b *blockingPoster) Name() string { return b.name }

func (b *blockingPoster) Post(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestPostEnforcesSendTimeoutOnWedgedPlatform(t *testing.T) {
	t.Parallel()
	opts := fastOpts()
	opts.RetryMax = 0
	opts.SendTimeout = 50 * time.Millisecond
	s := New([]platform.Poster{&blockingPoster{name: "telegram"}}, opts, logx.Nop())

	start := time.Now()
	results := s.Post(context.Background(), "text")
	if took := time.Since(start); took > time.Second {
		t.Fatalf("Post blocked %v past the send timeout", took)
	}
	if results[0].Status != content.StatusFailed || !errors.Is(results[0].Err, context.DeadlineExceeded) {
		t.Fatalf("result = %+v, want failed with deadline exceeded", results[0])
	}
}

func TestRetryDelayBoundedByMax(t *testing.T) {
	t.Parallel()
	base := time.Second
	max := 10 * time.Second
	for attempt := 1; attempt <= 10; attempt++ {
		d := retryDelay(base, max, attempt)
		if d <= 0 || d > max {
			t.Fatalf("attempt %d: delay %v out of (0, %v]", attempt, d, max)
		}
	}
}

func TestPostRespectsCanceledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tw := &fakePoster{name: "twitter"}
	s := newTestService(tw)
	results := s.Post(ctx, "text")
	if results[0].Status != content.StatusFailed {
		t.Fatalf("result = %+v, want failed on canceled context", results[0])
	}
}
