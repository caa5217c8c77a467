// Package broadcast fans one candidate out to every configured platform in a
// fixed order, with rate limiting, bounded rate-limit retries, and a
// process-lifetime latch for platforms whose credentials are rejected.
package broadcast

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"marketcast/internal/content"
	"marketcast/internal/platform"
	logx "marketcast/pkg/logx"
)

type Options struct {
	// RatePerSec caps outbound sends across all platforms. <=0 means 1/s.
	RatePerSec int
	// RetryMax bounds retries for rate-limited sends. Other errors never retry.
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	// SendTimeout bounds one send attempt.
	SendTimeout time.Duration
}

func (o *Options) normalize() {
	if o.RatePerSec <= 0 {
		o.RatePerSec = 1
	}
	if o.RetryMax < 0 {
		o.RetryMax = 0
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 2 * time.Second
	}
	if o.RetryMaxDelay <= 0 {
		o.RetryMaxDelay = 60 * time.Second
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 15 * time.Second
	}
}

// Service posts candidates. Platform order is fixed at construction and
// results always come back in that order.
type Service struct {
	posters []platform.Poster
	limiter *rate.Limiter
	opts    Options
	log     logx.Logger

	mu      sync.Mutex
	latched map[string]error // platform name -> auth error, permanent

	// sleep is swappable so retry tests don't wait wall-clock time.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(posters []platform.Poster, opts Options, log logx.Logger) *Service {
	opts.normalize()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		posters: posters,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), 1),
		opts:    opts,
		log:     log,
		latched: map[string]error{},
		sleep:   sleepCtx,
	}
}

// Latched reports whether the named platform is permanently disabled for this
// process because its credentials were rejected.
func (s *Service) Latched(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.latched[name]
	return ok
}

// Post sends text to every platform in order. One platform failing never
// stops the others; each gets its own result.
func (s *Service) Post(ctx context.Context, text string) []content.PostResult {
	results := make([]content.PostResult, 0, len(s.posters))
	for _, p := range s.posters {
		results = append(results, s.postOne(ctx, p, text))
	}
	return results
}

func (s *Service) postOne(ctx context.Context, p platform.Poster, text string) content.PostResult {
	name := p.Name()

	s.mu.Lock()
	latchedErr := s.latched[name]
	s.mu.Unlock()
	if latchedErr != nil {
		return content.PostResult{
			Platform: name,
			Status:   content.StatusFailed,
			Err:      latchedErr,
			At:       time.Now(),
		}
	}

	var lastErr error
	for attempt := 0; attempt <= s.opts.RetryMax; attempt++ {
		if attempt > 0 {
			d := retryDelay(s.opts.RetryBase, s.opts.RetryMaxDelay, attempt)
			s.log.Warn("send rate limited, backing off",
				logx.String("platform", name),
				logx.Int("attempt", attempt),
				logx.Duration("delay", d))
			if err := s.sleep(ctx, d); err != nil {
				lastErr = err
				break
			}
		}
		if err := s.limiter.Wait(ctx); err != nil {
			lastErr = err
			break
		}

		sendCtx, cancel := context.WithTimeout(ctx, s.opts.SendTimeout)
		id, err := p.Post(sendCtx, text)
		cancel()

		if err == nil {
			return content.PostResult{
				Platform: name,
				Status:   content.StatusPosted,
				PostID:   id,
				At:       time.Now(),
			}
		}
		lastErr = err

		if errors.Is(err, platform.ErrAuth) {
			s.mu.Lock()
			s.latched[name] = err
			s.mu.Unlock()
			s.log.Error("platform credentials rejected, disabling until restart",
				logx.String("platform", name), logx.Err(err))
			break
		}
		if !errors.Is(err, platform.ErrRateLimited) {
			break
		}
	}

	return content.PostResult{
		Platform: name,
		Status:   content.StatusFailed,
		Err:      lastErr,
		At:       time.Now(),
	}
}

// retryDelay grows exponentially from base, capped at max, with up to 20%
// jitter so parallel senders don't thunder.
func retryDelay(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			d = max
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(d)/5 + 1))
	d += jitter
	if d > max {
		d = max
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
