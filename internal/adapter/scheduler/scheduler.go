package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc is a scheduled unit of work.
type JobFunc func(ctx context.Context) error

// CronJobID identifies a cron job.
type CronJobID = cron.EntryID

// TickerJobID identifies a fixed-interval job.
type TickerJobID int

// OverlapPolicy decides what happens when a job is due while its previous run is active.
type OverlapPolicy int

const (
	// AllowOverlap runs every tick (default).
	AllowOverlap OverlapPolicy = iota
	// SkipIfRunning drops the tick.
	SkipIfRunning
	// DelayIfRunning waits for the previous run.
	DelayIfRunning
)

// JobOptions configures a job.
type JobOptions struct {
	Name    string
	Timeout time.Duration
	Overlap OverlapPolicy
}

// JobHooks are optional observability callbacks.
type JobHooks struct {
	OnJobStart  func(name string)
	OnJobFinish func(name string, d time.Duration, err error)
}

// Config configures a Scheduler.
type Config struct {
	Logger *slog.Logger
	Hooks  JobHooks
}

// parser accepts five-field specs, six-field specs with seconds, and descriptors.
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

type job struct {
	fn      JobFunc
	opts    JobOptions
	running sync.Mutex
}

// Scheduler runs cron and fixed-interval jobs until stopped.
type Scheduler struct {
	cron      *cron.Cron
	log       *slog.Logger
	hooks     JobHooks
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	tickers   map[TickerJobID]context.CancelFunc
	nextID    TickerJobID
	startOnce sync.Once
	stopOnce  sync.Once
}

// New returns a scheduler whose jobs see a context derived from parent.
func New(parent context.Context, cfg Config) *Scheduler {
	ctx, cancel := context.WithCancel(parent)
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "scheduler"))
	return &Scheduler{
		cron:    cron.New(cron.WithParser(parser), cron.WithLogger(cronLogger{log})),
		log:     log,
		hooks:   cfg.Hooks,
		ctx:     ctx,
		cancel:  cancel,
		tickers: make(map[TickerJobID]context.CancelFunc),
		nextID:  1,
	}
}

// AddCronJob schedules fn, e.g. "@every 5m", "*/10 * * * *" or "0 */10 * * * *".
func (s *Scheduler) AddCronJob(schedule string, fn JobFunc, opts JobOptions) (CronJobID, error) {
	j := &job{fn: fn, opts: opts}
	id, err := s.cron.AddFunc(schedule, func() { s.run(j) })
	if err != nil {
		return 0, fmt.Errorf("scheduler: add %q (%s): %w", opts.Name, schedule, err)
	}
	s.log.Info("cron job added", slog.String("name", opts.Name), slog.String("schedule", schedule), slog.Int("id", int(id)))
	return id, nil
}

// AddTickerJob runs fn every interval.
func (s *Scheduler) AddTickerJob(interval time.Duration, fn JobFunc, opts JobOptions) TickerJobID {
	j := &job{fn: fn, opts: opts}
	ctx, cancel := context.WithCancel(s.ctx)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.tickers[id] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				// runs inline, so ticks never overlap regardless of Overlap
				s.run(j)
			case <-ctx.Done():
				return
			}
		}
	}()
	s.log.Info("ticker job added", slog.String("name", opts.Name), slog.Duration("interval", interval), slog.Int("id", int(id)))
	return id
}

// RemoveCronJob unschedules a cron job.
func (s *Scheduler) RemoveCronJob(id CronJobID) {
	s.cron.Remove(id)
}

// RemoveTickerJob stops a ticker job. It reports whether the job existed.
func (s *Scheduler) RemoveTickerJob(id TickerJobID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel, ok := s.tickers[id]
	if ok {
		cancel()
		delete(s.tickers, id)
	}
	return ok
}

// Start begins running cron jobs. Ticker jobs run as soon as they are added.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.log.Info("starting scheduler")
		s.cron.Start()
	})
}

// Run starts the scheduler and blocks until ctx or the parent context is done,
// then stops it.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start()
	select {
	case <-ctx.Done():
	case <-s.ctx.Done():
	}
	s.Stop()
	return nil
}

// Stop cancels running jobs and waits for them to return. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		<-s.cron.Stop().Done()
		s.mu.Lock()
		for _, cancel := range s.tickers {
			cancel()
		}
		s.mu.Unlock()
		s.wg.Wait()
		s.log.Info("scheduler stopped")
	})
}

func (s *Scheduler) run(j *job) {
	name := j.opts.Name
	if name == "" {
		name = "unnamed"
	}
	switch j.opts.Overlap {
	case SkipIfRunning:
		if !j.running.TryLock() {
			s.log.Debug("skipping job, previous run active", slog.String("name", name))
			return
		}
		defer j.running.Unlock()
	case DelayIfRunning:
		j.running.Lock()
		defer j.running.Unlock()
	}

	if s.ctx.Err() != nil {
		return
	}
	if s.hooks.OnJobStart != nil {
		s.hooks.OnJobStart(name)
	}

	ctx := s.ctx
	if j.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := s.invoke(ctx, name, j.fn)
	d := time.Since(start)

	if s.hooks.OnJobFinish != nil {
		s.hooks.OnJobFinish(name, d, err)
	}
	if err != nil {
		s.log.Error("job failed", slog.String("name", name), slog.Any("err", err), slog.Duration("duration", d))
		return
	}
	s.log.Debug("job done", slog.String("name", name), slog.Duration("duration", d))
}

func (s *Scheduler) invoke(ctx context.Context, name string, fn JobFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler: job %s panicked: %v", name, r)
		}
	}()
	return fn(ctx)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append([]any{slog.Any("err", err)}, keysAndValues...)...)
}
