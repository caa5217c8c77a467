// Package scheduler triggers registered jobs on cron schedules. It only
// decides WHEN to run; the job itself owns its timeout and error handling.
//
// Overlap policy: one instance of a job at a time. A trigger that fires while
// the previous run of the same job is still in flight is skipped, not queued.
// Distinct jobs run concurrently.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "marketcast/pkg/logx"
)

type Config struct {
	Enabled     bool
	Timezone    string // IANA TZ; empty = local
	HistorySize int    // default 64
}

type Job struct {
	Name string
	Spec string // normalized cron spec, see NormalizeSpec
	Run  func(ctx context.Context) error
}

type HistoryItem struct {
	Name     string
	Started  time.Time
	Duration time.Duration
	Error    string
	Manual   bool
}

type JobInfo struct {
	Name    string
	Spec    string
	Next    time.Time
	Running bool
	Skips   int
}

type Snapshot struct {
	Enabled  bool
	Timezone string
	Jobs     []JobInfo
	History  []HistoryItem
}

type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	loc *time.Location

	c    *cron.Cron
	jobs []Job
	ids  map[string]cron.EntryID

	stopCh   chan struct{}
	stopDone chan struct{}
	runCtx   context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	running map[string]bool
	skips   map[string]int

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		log:     log,
		ids:     map[string]cron.EntryID{},
		running: map[string]bool{},
		skips:   map[string]int{},
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Add registers a job. Valid before or after Start; names must be unique.
func (s *Service) Add(j Job) error {
	if j.Name == "" || j.Run == nil {
		return errors.New("job needs a name and a run func")
	}
	if _, err := specParser.Parse(j.Spec); err != nil {
		return fmt.Errorf("job %s: %w", j.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.jobs {
		if ex.Name == j.Name {
			return fmt.Errorf("job %s already registered", j.Name)
		}
	}
	s.jobs = append(s.jobs, j)
	if s.c != nil {
		return s.registerLocked(j)
	}
	return nil
}

// ReplaceJobs swaps the whole job set (config reload). A running cron is
// rebuilt so removed jobs stop firing.
func (s *Service) ReplaceJobs(jobs []Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = jobs
	if s.c != nil {
		s.restartLocked()
	}
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg

	if s.c != nil && oldTZ != newTZ {
		s.restartLocked()
	}
}

func (s *Service) Start(ctx context.Context) {
	// Wait out an in-flight Stop so two cron instances never coexist.
	for {
		s.mu.Lock()
		if s.stopCh == nil {
			break
		}
		done := s.stopDone
		if done == nil {
			s.mu.Unlock()
			return // already running
		}
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}
	defer s.mu.Unlock()

	s.stopCh = make(chan struct{})
	s.runCtx, s.cancel = context.WithCancel(ctx)

	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(specParser), cron.WithLocation(loc))
	for _, j := range s.jobs {
		if err := s.registerLocked(j); err != nil {
			s.log.Error("registering job", logx.String("job", j.Name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("scheduler started",
		logx.Int("jobs", len(s.jobs)),
		logx.String("tz", loc.String()))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	stopCh := s.stopCh
	cancel := s.cancel
	c := s.c
	s.c = nil
	s.cancel = nil
	s.ids = map[string]cron.EntryID{}
	s.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}
	if c != nil {
		<-c.Stop().Done()
	}

	// Finish in background so Stop can honor the caller's deadline.
	go func() {
		s.wg.Wait()
		s.mu.Lock()
		s.stopCh = nil
		s.runCtx = nil
		s.stopDone = nil
		s.mu.Unlock()
		close(done)
		s.log.Info("scheduler stopped")
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

// RunNow triggers a registered job immediately (manual trigger). The same
// overlap-skip rule applies.
func (s *Service) RunNow(name string) error {
	s.mu.Lock()
	var job *Job
	for i := range s.jobs {
		if s.jobs[i].Name == name {
			job = &s.jobs[i]
			break
		}
	}
	ctx := s.runCtx
	s.mu.Unlock()

	if job == nil {
		return fmt.Errorf("unknown job %q", name)
	}
	if ctx == nil {
		return errors.New("scheduler not started")
	}
	s.fire(ctx, *job, true)
	return nil
}

func (s *Service) registerLocked(j Job) error {
	job := j
	id, err := s.c.AddFunc(j.Spec, func() {
		s.mu.Lock()
		ctx := s.runCtx
		s.mu.Unlock()
		if ctx == nil {
			return
		}
		s.fire(ctx, job, false)
	})
	if err != nil {
		return err
	}
	s.ids[j.Name] = id
	return nil
}

func (s *Service) restartLocked() {
	if s.c != nil {
		<-s.c.Stop().Done()
	}
	loc := s.loadLocationLocked()
	s.loc = loc
	s.ids = map[string]cron.EntryID{}
	s.c = cron.New(cron.WithParser(specParser), cron.WithLocation(loc))
	for _, j := range s.jobs {
		if err := s.registerLocked(j); err != nil {
			s.log.Error("registering job", logx.String("job", j.Name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("scheduler restarted", logx.String("tz", loc.String()))
}

// fire runs the job in its own goroutine unless an instance is in flight.
func (s *Service) fire(ctx context.Context, j Job, manual bool) {
	s.mu.Lock()
	if s.running[j.Name] {
		s.skips[j.Name]++
		s.mu.Unlock()
		s.log.Warn("previous run still in flight, skipping trigger",
			logx.String("job", j.Name), logx.Bool("manual", manual))
		return
	}
	s.running[j.Name] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.running[j.Name] = false
			s.mu.Unlock()
		}()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in job", logx.String("job", j.Name), logx.Any("panic", r))
			}
		}()

		start := time.Now()
		err := j.Run(ctx)
		item := HistoryItem{Name: j.Name, Started: start, Duration: time.Since(start), Manual: manual}
		if err != nil {
			item.Error = err.Error()
		}
		s.record(item)
	}()
}

func (s *Service) record(item HistoryItem) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	max := s.cfg.HistorySize
	if max <= 0 {
		max = 64
	}
	s.history = append(s.history, item)
	if len(s.history) > max {
		s.history = s.history[len(s.history)-max:]
	}
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Enabled:  s.cfg.Enabled,
		Timezone: strings.TrimSpace(s.cfg.Timezone),
	}
	for _, j := range s.jobs {
		info := JobInfo{
			Name:    j.Name,
			Spec:    j.Spec,
			Running: s.running[j.Name],
			Skips:   s.skips[j.Name],
		}
		if s.c != nil {
			if id, ok := s.ids[j.Name]; ok {
				info.Next = s.c.Entry(id).Next
			}
		}
		snap.Jobs = append(snap.Jobs, info)
	}
	s.mu.Unlock()

	s.hmu.Lock()
	snap.History = append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return snap
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, falling back to local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
