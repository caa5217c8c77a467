// Package pipeline runs one sector tick end to end: fetch, parse, dedup,
// broadcast, record. Ticks are independent; a failed tick leaves no partial
// state beyond what was already durably posted and recorded.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"marketcast/internal/cache"
	"marketcast/internal/content"
	"marketcast/internal/eventbus"
	"marketcast/internal/storage"
	logx "marketcast/pkg/logx"
)

// Fetcher is the provider boundary (see internal/fetch).
type Fetcher interface {
	Fetch(ctx context.Context, sector content.Sector) (content.RawReply, error)
}

// Broadcaster fans one candidate out to all platforms (see internal/broadcast).
type Broadcaster interface {
	Post(ctx context.Context, text string) []content.PostResult
}

// Report summarizes one finished tick.
type Report struct {
	TickID   string
	Sector   string
	Started  time.Time
	Took     time.Duration
	Warnings []content.Warning

	Candidates int
	Posted     int // candidate counted once if any platform accepted it
	Skipped    int // cache hits
	Failed     int // candidates no platform accepted
}

type Runner struct {
	fetcher     Fetcher
	cache       *cache.Cache
	broadcaster Broadcaster
	store       storage.Store
	bus         eventbus.Bus
	log         logx.Logger
	tickTimeout time.Duration

	now func() time.Time
}

func NewRunner(f Fetcher, c *cache.Cache, b Broadcaster, st storage.Store, bus eventbus.Bus, tickTimeout time.Duration, log logx.Logger) *Runner {
	if tickTimeout <= 0 {
		tickTimeout = 5 * time.Minute
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{
		fetcher:     f,
		cache:       c,
		broadcaster: b,
		store:       st,
		bus:         bus,
		log:         log,
		tickTimeout: tickTimeout,
		now:         time.Now,
	}
}

// Run executes one tick for the sector. The returned Report is valid even on
// error (it reflects whatever progress was made before the failure).
func (r *Runner) Run(ctx context.Context, sector content.Sector) (Report, error) {
	rep := Report{
		TickID:  uuid.NewString(),
		Sector:  sector.Name,
		Started: r.now(),
	}
	log := r.log.With(logx.String("tick", rep.TickID), logx.String("sector", sector.Name))

	r.publish(eventbus.TypeTickStarted, map[string]any{"tick": rep.TickID, "sector": sector.Name})

	ctx, cancel := context.WithTimeout(ctx, r.tickTimeout)
	defer cancel()

	err := r.run(ctx, log, sector, &rep)
	rep.Took = time.Since(rep.Started)

	if err != nil {
		err = r.classify(ctx, err)
		log.Error("tick failed", logx.Err(err), logx.Duration("took", rep.Took))
		r.publish(eventbus.TypeTickFailed, map[string]any{
			"tick": rep.TickID, "sector": sector.Name, "error": err.Error(),
		})
		return rep, err
	}

	log.Info("tick finished",
		logx.Int("candidates", rep.Candidates),
		logx.Int("posted", rep.Posted),
		logx.Int("skipped", rep.Skipped),
		logx.Int("failed", rep.Failed),
		logx.Duration("took", rep.Took))
	r.publish(eventbus.TypeTickFinished, map[string]any{
		"tick": rep.TickID, "sector": sector.Name,
		"posted": rep.Posted, "skipped": rep.Skipped, "failed": rep.Failed,
	})
	return rep, nil
}

func (r *Runner) run(ctx context.Context, log logx.Logger, sector content.Sector, rep *Report) error {
	reply, err := r.fetcher.Fetch(ctx, sector)
	if err != nil {
		return err
	}

	candidates, warnings := content.Parse(reply)
	rep.Warnings = warnings
	rep.Candidates = len(candidates)
	for _, w := range warnings {
		log.Warn("reply entry dropped",
			logx.String("topic", w.Topic),
			logx.String("reason", w.Reason),
			logx.Int("length", w.Length))
	}
	if len(candidates) == 0 {
		log.Info("no postable candidates in reply", logx.Int("dropped", len(warnings)))
		return nil
	}

	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.handleCandidate(ctx, log, sector, cand, rep); err != nil {
			return err
		}
	}
	return nil
}

// handleCandidate checks the dedup cache, broadcasts on a miss, and records
// the fingerprint regardless of how the posts went. Attempted-but-failed
// content is deliberately not re-posted on a later tick; re-posting risks
// duplicates when the platform accepted the post but the response was lost.
func (r *Runner) handleCandidate(ctx context.Context, log logx.Logger, sector content.Sector, cand content.Candidate, rep *Report) error {
	fp := content.Fingerprint(cand.Text)

	seen, err := r.cache.Seen(ctx, fp)
	if err != nil {
		return err
	}
	if seen {
		rep.Skipped++
		log.Debug("duplicate candidate skipped", logx.String("topic", cand.Topic), logx.String("fingerprint", fp))
		r.appendPost(ctx, log, storage.PostEntry{
			At:          r.now(),
			Sector:      sector.Name,
			Status:      string(content.StatusSkipped),
			Fingerprint: fp,
		})
		r.publish(eventbus.TypePostSkipped, map[string]any{
			"tick": rep.TickID, "sector": sector.Name, "fingerprint": fp,
		})
		return nil
	}

	start := r.now()
	results := r.broadcaster.Post(ctx, cand.Text)

	// Fingerprint is recorded even when every platform failed; see above.
	if err := r.cache.Record(ctx, fp, start); err != nil {
		return err
	}

	posted := false
	for _, res := range results {
		entry := storage.PostEntry{
			At:          res.At,
			Sector:      sector.Name,
			Platform:    res.Platform,
			Status:      string(res.Status),
			Fingerprint: fp,
			PostID:      res.PostID,
			TookMS:      time.Since(start).Milliseconds(),
		}
		evType := eventbus.TypePostPosted
		if res.Err != nil {
			entry.Error = res.Err.Error()
			evType = eventbus.TypePostFailed
			log.Error("post failed",
				logx.String("platform", res.Platform),
				logx.String("topic", cand.Topic),
				logx.Err(res.Err))
		} else {
			posted = true
			log.Info("posted",
				logx.String("platform", res.Platform),
				logx.String("post_id", res.PostID),
				logx.Int("chars", len([]rune(cand.Text))))
		}
		r.appendPost(ctx, log, entry)
		r.publish(evType, map[string]any{
			"tick": rep.TickID, "sector": sector.Name,
			"platform": res.Platform, "fingerprint": fp, "post_id": res.PostID,
		})
	}
	if posted {
		rep.Posted++
	} else {
		rep.Failed++
	}
	return nil
}

// appendPost is telemetry; a failed append never fails the tick.
func (r *Runner) appendPost(ctx context.Context, log logx.Logger, e storage.PostEntry) {
	if r.store == nil {
		return
	}
	if err := r.store.AppendPost(ctx, e); err != nil {
		log.Warn("post log append failed", logx.Err(err))
	}
}

func (r *Runner) publish(typ string, data any) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

// classify maps a deadline hit on the tick context to ErrTickTimeout so the
// scheduler can log/alert it distinctly from provider or cache failures.
func (r *Runner) classify(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTickTimeout, err)
	}
	return err
}
