package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"market_pulse_backend/metrics"
	"market_pulse_backend/models"
	"market_pulse_backend/services/alerts"
	"market_pulse_backend/services/fetcher"
)

// ErrCycleInFlight is returned when a cycle is started while the previous
// one for the same work is still running
var ErrCycleInFlight = errors.New("cycle already in flight")

// ErrUnknownAssetClass is returned for a class with no registered fetcher
var ErrUnknownAssetClass = errors.New("no fetcher registered for asset class")

// SnapshotCache is the write side of the price cache
type SnapshotCache interface {
	Replace(ctx context.Context, class models.AssetClass, assets []models.CachedAsset) (models.Snapshot, error)
	SeedFallback(ctx context.Context, class models.AssetClass) error
	Snapshot(ctx context.Context, class models.AssetClass) (models.Snapshot, bool)
}

// Broadcaster fans a fresh snapshot out to subscribers
type Broadcaster interface {
	PublishSnapshot(snapshot models.Snapshot, limit int)
}

// AlertEngine evaluates alerts and prunes old triggered ones
type AlertEngine interface {
	Evaluate(ctx context.Context) (alerts.EvaluationResult, error)
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}

// Options configures the Scheduler
type Options struct {
	IngestInterval     time.Duration
	AlertInterval      time.Duration
	TickTimeout        time.Duration
	BroadcastLimit     int
	TriggeredRetention time.Duration
	CleanupAt          string
}

// CycleStatus is the last known outcome of one periodic cycle
type CycleStatus struct {
	Name          string     `json:"name"`
	Running       bool       `json:"running"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	LastCount     int        `json:"last_count"`
}

type cycle struct {
	running atomic.Bool

	mu          sync.Mutex
	status      CycleStatus
	lastAttempt time.Time
}

func newCycle(name string) *cycle {
	return &cycle{status: CycleStatus{Name: name}}
}

// attempt records the start of a run
func (c *cycle) attempt(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastAttempt = at
}

// attemptedWithin reports whether a run started less than d before now
func (c *cycle) attemptedWithin(now time.Time, d time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.lastAttempt.IsZero() && now.Sub(c.lastAttempt) < d
}

func (c *cycle) finish(at time.Time, count int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.LastRunAt = &at
	if err != nil {
		c.status.LastError = err.Error()
		return
	}
	c.status.LastError = ""
	c.status.LastSuccessAt = &at
	c.status.LastCount = count
}

func (c *cycle) snapshot() CycleStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.status
	s.Running = c.running.Load()
	return s
}

// Scheduler manages scheduled jobs
type Scheduler struct {
	cron      *gocron.Scheduler
	fetchers  map[models.AssetClass]fetcher.Fetcher
	cache     SnapshotCache
	hub       Broadcaster
	engine    AlertEngine
	opts      Options
	logger    *zap.Logger
	now       func() time.Time
	ingestion map[models.AssetClass]*cycle
	evaluate  *cycle
	cleanup   *cycle

	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewScheduler creates a new scheduler instance
func NewScheduler(cache SnapshotCache, hub Broadcaster, engine AlertEngine, opts Options, logger *zap.Logger, fetchers ...fetcher.Fetcher) *Scheduler {
	if opts.IngestInterval <= 0 {
		opts.IngestInterval = 10 * time.Second
	}
	if opts.AlertInterval <= 0 {
		opts.AlertInterval = 5 * time.Minute
	}
	if opts.TickTimeout <= 0 {
		opts.TickTimeout = time.Minute
	}
	if opts.BroadcastLimit <= 0 {
		opts.BroadcastLimit = 50
	}
	if opts.CleanupAt == "" {
		opts.CleanupAt = "03:00"
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:      gocron.NewScheduler(time.UTC),
		fetchers:  make(map[models.AssetClass]fetcher.Fetcher),
		cache:     cache,
		hub:       hub,
		engine:    engine,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
		ingestion: make(map[models.AssetClass]*cycle),
		evaluate:  newCycle("alert_evaluation"),
		cleanup:   newCycle("triggered_cleanup"),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, f := range fetchers {
		class := f.AssetClass()
		s.fetchers[class] = f
		s.ingestion[class] = newCycle(string(class) + "_ingestion")
	}
	return s
}

// Start registers all jobs and starts ticking. Every job also runs once
// immediately.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler",
		zap.Duration("ingest_interval", s.opts.IngestInterval),
		zap.Duration("alert_interval", s.opts.AlertInterval))

	for class := range s.fetchers {
		class := class
		if _, err := s.cron.Every(s.opts.IngestInterval).Do(s.track(func(ctx context.Context) {
			s.RunIngestion(ctx, class)
		})); err != nil {
			return err
		}
	}

	if s.engine != nil {
		if _, err := s.cron.Every(s.opts.AlertInterval).Do(s.track(func(ctx context.Context) {
			s.RunEvaluation(ctx)
		})); err != nil {
			return err
		}
		if s.opts.TriggeredRetention > 0 {
			if _, err := s.cron.Every(1).Day().At(s.opts.CleanupAt).Do(s.track(func(ctx context.Context) {
				s.RunCleanup(ctx)
			})); err != nil {
				return err
			}
		}
	}

	s.cron.StartAsync()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.cron.Jobs())))
	return nil
}

// Stop stops ticking and waits for in-flight cycles. Ingestion cycles run
// to completion within TickTimeout; evaluation and cleanup are cancelled.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) track(fn func(ctx context.Context)) func() {
	return func() {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		s.wg.Add(1)
		s.mu.Unlock()
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("scheduled job panicked", zap.Any("panic", r), zap.Stack("stack"))
			}
		}()
		fn(s.ctx)
	}
}

// RequestRefresh starts an ingestion cycle for class in the background.
// It never blocks. It is a no-op while a cycle for class is running or when
// one started within the last IngestInterval, so reads during an outage
// wait for the next scheduled tick.
func (s *Scheduler) RequestRefresh(class models.AssetClass) {
	c, ok := s.ingestion[class]
	if !ok || c.running.Load() || c.attemptedWithin(s.now(), s.opts.IngestInterval) {
		return
	}
	go s.track(func(ctx context.Context) {
		s.RunIngestion(ctx, class)
	})()
}

// RunIngestion runs one fetch-replace-broadcast cycle for class. On failure
// the cache is left untouched, except that an empty cache is seeded with
// the static dataset so reads keep returning something. The cycle is bounded
// by TickTimeout only; cancelling ctx or stopping the scheduler does not
// interrupt a fetch already in flight.
func (s *Scheduler) RunIngestion(ctx context.Context, class models.AssetClass) error {
	f, ok := s.fetchers[class]
	if !ok {
		return ErrUnknownAssetClass
	}
	c := s.ingestion[class]
	if !c.running.CompareAndSwap(false, true) {
		metrics.IngestionTicks.WithLabelValues(string(class), metrics.ResultSkipped).Inc()
		s.logger.Debug("ingestion tick skipped, previous cycle still running", zap.String("asset_class", string(class)))
		return ErrCycleInFlight
	}
	defer c.running.Store(false)

	start := s.now()
	c.attempt(start)
	ctx = context.WithoutCancel(ctx)
	tickCtx, cancel := context.WithTimeout(ctx, s.opts.TickTimeout)
	defer cancel()

	assets, err := f.FetchAll(tickCtx)
	if err == nil {
		var snapshot models.Snapshot
		snapshot, err = s.cache.Replace(ctx, class, assets)
		if err == nil {
			s.hub.PublishSnapshot(snapshot, s.opts.BroadcastLimit)
		}
	}
	c.finish(start, len(assets), err)

	log := s.logger.With(zap.String("asset_class", string(class)), zap.Duration("took", s.now().Sub(start)))
	if err != nil {
		metrics.IngestionTicks.WithLabelValues(string(class), metrics.ResultFailure).Inc()
		log.Warn("ingestion cycle failed, keeping previous snapshot", zap.Error(err))
		if _, cached := s.cache.Snapshot(ctx, class); !cached {
			if seedErr := s.cache.SeedFallback(ctx, class); seedErr != nil {
				log.Error("failed to seed fallback snapshot", zap.Error(seedErr))
			} else {
				log.Info("cache empty, seeded fallback snapshot")
			}
		}
		return err
	}

	metrics.IngestionTicks.WithLabelValues(string(class), metrics.ResultSuccess).Inc()
	log.Info("ingestion cycle complete", zap.Int("assets", len(assets)))
	return nil
}

// RunEvaluation runs one alert evaluation cycle
func (s *Scheduler) RunEvaluation(ctx context.Context) (alerts.EvaluationResult, error) {
	if !s.evaluate.running.CompareAndSwap(false, true) {
		s.logger.Debug("alert evaluation skipped, previous cycle still running")
		return alerts.EvaluationResult{}, ErrCycleInFlight
	}
	defer s.evaluate.running.Store(false)

	start := s.now()
	result, err := s.engine.Evaluate(ctx)
	s.evaluate.finish(start, result.Triggered, err)
	if err != nil {
		s.logger.Error("alert evaluation failed", zap.Error(err))
	}
	return result, err
}

// RunCleanup removes triggered alerts past the retention window
func (s *Scheduler) RunCleanup(ctx context.Context) (int64, error) {
	if !s.cleanup.running.CompareAndSwap(false, true) {
		return 0, ErrCycleInFlight
	}
	defer s.cleanup.running.Store(false)

	start := s.now()
	n, err := s.engine.Cleanup(ctx, s.opts.TriggeredRetention)
	s.cleanup.finish(start, int(n), err)
	if err != nil {
		s.logger.Error("triggered alert cleanup failed", zap.Error(err))
	}
	return n, err
}

// Status reports the last outcome of every cycle
func (s *Scheduler) Status() []CycleStatus {
	var out []CycleStatus
	for _, class := range models.AssetClasses() {
		if c, ok := s.ingestion[class]; ok {
			out = append(out, c.snapshot())
		}
	}
	if s.engine != nil {
		out = append(out, s.evaluate.snapshot(), s.cleanup.snapshot())
	}
	return out
}
