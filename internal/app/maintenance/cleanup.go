package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/anandyadav-dev/HunarMitra-Backend/pkg/logger"
)

const (
	defaultSweepSpec     = "@every 60s"
	defaultCacheSpec     = "@every 10m"
	defaultTaskSpec      = "@hourly"
	defaultRequeueSpec   = "@every 1m"
	defaultRequeueAfter  = time.Minute
	defaultTimeout       = 45 * time.Second
	defaultTaskRetention = 7 * 24 * time.Hour
)

// Sweeper flags stalled dispatches and expires superseded responses.
type Sweeper interface {
	Sweep(ctx context.Context, timeout time.Duration) (int, error)
	ExpireResponses(ctx context.Context, timeout time.Duration) (int64, error)
}

// CachePurger removes expired cache entries.
type CachePurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// TaskPurger removes finished background tasks.
type TaskPurger interface {
	PurgeCompleted(ctx context.Context, before time.Time) (int64, error)
}

// PushRequeuer puts pending pushes that lost their delivery task back on the queue.
type PushRequeuer interface {
	RequeueStranded(ctx context.Context, olderThan time.Duration) (int, error)
}

// Cleaner owns the recurring jobs: the escalation sweep, recovery of stranded pushes
// plus housekeeping of cache entries and finished tasks. Nil collaborators disable
// their job.
type Cleaner struct {
	sweeper Sweeper
	cache   CachePurger
	tasks   TaskPurger
	pushes  PushRequeuer
	cron    *cron.Cron
	now     func() time.Time
	log     *zap.Logger

	timeout       time.Duration
	taskRetention time.Duration
	requeueAfter  time.Duration
	sweepSchedule string
	cacheSchedule string
	taskSchedule  string
	pushSchedule  string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for retention cut-offs.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithResponseTimeout sets how long a dispatch may wait for an accept before it is flagged.
func WithResponseTimeout(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d > 0 {
			cleaner.timeout = d
		}
	}
}

// WithTaskRetention sets how long finished tasks are kept.
func WithTaskRetention(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d > 0 {
			cleaner.taskRetention = d
		}
	}
}

// WithPushRequeue enables the stranded push job. Pushes still pending olderThan after
// their scheduled attempt are enqueued again; an empty schedule keeps the default.
func WithPushRequeue(requeuer PushRequeuer, olderThan time.Duration, schedule string) Option {
	return func(cleaner *Cleaner) {
		cleaner.pushes = requeuer
		if olderThan > 0 {
			cleaner.requeueAfter = olderThan
		}
		if schedule != "" {
			cleaner.pushSchedule = schedule
		}
	}
}

// WithSweepSchedule overrides the cron specification of the escalation sweep.
func WithSweepSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sweepSchedule = spec
		}
	}
}

// WithCacheSchedule overrides the cron specification of the cache purge.
func WithCacheSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.cacheSchedule = spec
		}
	}
}

// WithTaskSchedule overrides the cron specification of the task purge.
func WithTaskSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.taskSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with the default schedules.
func NewCleaner(sweeper Sweeper, cachePurger CachePurger, tasks TaskPurger, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		sweeper:       sweeper,
		cache:         cachePurger,
		tasks:         tasks,
		now:           time.Now,
		timeout:       defaultTimeout,
		taskRetention: defaultTaskRetention,
		sweepSchedule: defaultSweepSpec,
		cacheSchedule: defaultCacheSpec,
		taskSchedule:  defaultTaskSpec,
		requeueAfter:  defaultRequeueAfter,
		pushSchedule:  defaultRequeueSpec,
		log:           logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(
			cron.WithLogger(cron.DiscardLogger),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		)
	}
	return cleaner
}

// Start registers the enabled jobs and launches the scheduler.
func (c *Cleaner) Start() error {
	if c.sweeper == nil && c.cache == nil && c.tasks == nil && c.pushes == nil {
		return nil
	}

	if c.sweeper != nil {
		if _, err := c.cron.AddFunc(c.sweepSchedule, func() {
			if err := c.sweep(context.Background()); err != nil {
				c.log.Warn("escalation sweep failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.pushes != nil {
		if _, err := c.cron.AddFunc(c.pushSchedule, func() {
			if err := c.requeuePushes(context.Background()); err != nil {
				c.log.Warn("push requeue failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.cache != nil {
		if _, err := c.cron.AddFunc(c.cacheSchedule, func() {
			if _, err := c.cache.PurgeExpired(context.Background()); err != nil {
				c.log.Warn("cache purge failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.tasks != nil {
		if _, err := c.cron.AddFunc(c.taskSchedule, func() {
			if _, err := c.tasks.PurgeCompleted(context.Background(), c.now().Add(-c.taskRetention)); err != nil {
				c.log.Warn("task purge failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	c.log.Info("maintenance scheduler started",
		zap.String("sweep_schedule", c.sweepSchedule),
		zap.Duration("response_timeout", c.timeout),
	)
	return nil
}

// Stop halts the underlying scheduler. The returned context is done once running jobs finish.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every configured job sequentially and collects their errors.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.sweeper != nil {
		errs = multierr.Append(errs, c.sweep(ctx))
	}

	if c.pushes != nil {
		errs = multierr.Append(errs, c.requeuePushes(ctx))
	}

	if c.cache != nil {
		if _, err := c.cache.PurgeExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.tasks != nil {
		if _, err := c.tasks.PurgeCompleted(ctx, c.now().Add(-c.taskRetention)); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

func (c *Cleaner) sweep(ctx context.Context) error {
	var errs error
	flagged, err := c.sweeper.Sweep(ctx, c.timeout)
	errs = multierr.Append(errs, err)

	expired, err := c.sweeper.ExpireResponses(ctx, c.timeout)
	errs = multierr.Append(errs, err)

	if flagged > 0 || expired > 0 {
		c.log.Debug("escalation sweep finished", zap.Int("flagged", flagged), zap.Int64("expired_responses", expired))
	}
	return errs
}

func (c *Cleaner) requeuePushes(ctx context.Context) error {
	requeued, err := c.pushes.RequeueStranded(ctx, c.requeueAfter)
	if requeued > 0 {
		c.log.Info("stranded pushes requeued", zap.Int("count", requeued))
	}
	return err
}
