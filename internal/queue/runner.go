package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anandyadav-dev/HunarMitra-Backend/pkg/backoff"
	"github.com/anandyadav-dev/HunarMitra-Backend/pkg/logger"
	"github.com/anandyadav-dev/HunarMitra-Backend/pkg/metrics"
)

const (
	defaultConcurrency  = 4
	defaultPollInterval = time.Second
	defaultBatchSize    = 16
	defaultMaxAttempts  = 5
	maxDrainRounds      = 1000
)

// Handler executes one task.
type Handler func(ctx context.Context, task Task) error

// Runner polls a Queue and executes tasks through registered handlers.
type Runner struct {
	queue        Queue
	handlers     map[string]Handler
	concurrency  int
	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
	retryDelay   backoff.Strategy
	now          func() time.Time
	log          *zap.Logger

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithConcurrency sets how many tasks execute at once.
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithPollInterval sets how long the runner sleeps when no task is due.
func WithPollInterval(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithBatchSize sets how many tasks are claimed per poll.
func WithBatchSize(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithRetry sets how many times a failed task runs in total and how long to wait
// between runs. maxAttempts of 1 disables retries.
func WithRetry(maxAttempts int, delay backoff.Strategy) RunnerOption {
	return func(r *Runner) {
		if maxAttempts > 0 {
			r.maxAttempts = maxAttempts
		}
		if delay != nil {
			r.retryDelay = delay
		}
	}
}

// WithClock overrides the clock used to schedule retries.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger overrides the runner logger.
func WithLogger(log *zap.Logger) RunnerOption {
	return func(r *Runner) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRunner constructs a runner for the given queue.
func NewRunner(q Queue, opts ...RunnerOption) *Runner {
	r := &Runner{
		queue:        q,
		handlers:     make(map[string]Handler),
		concurrency:  defaultConcurrency,
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		maxAttempts:  defaultMaxAttempts,
		retryDelay:   backoff.NewExponential(time.Second, 5*time.Minute),
		now:          time.Now,
		log:          logger.WithModule("queue"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle registers the handler for a task kind, replacing any previous one.
func (r *Runner) Handle(kind string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = handler
}

// Start launches the polling loop. It returns immediately.
func (r *Runner) Start(ctx context.Context) error {
	if r.queue == nil {
		return errors.New("queue: runner has no queue")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	r.running = true
	r.stopCh = make(chan struct{})

	r.log.Info("task runner starting",
		zap.Int("concurrency", r.concurrency),
		zap.Duration("poll_interval", r.pollInterval),
	)

	r.wg.Add(1)
	go r.loop(context.WithoutCancel(ctx))
	return nil
}

// Stop signals the loop to exit and waits for in-flight tasks or the context deadline.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	close(r.stopCh)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.log.Info("task runner stopped")
		return nil
	case <-ctx.Done():
		r.log.Warn("task runner shutdown timed out")
		return ctx.Err()
	}
}

// Drain claims and executes every due task synchronously until none remain. Tasks
// scheduled in the future are left in the queue.
func (r *Runner) Drain(ctx context.Context) (int, error) {
	if r.queue == nil {
		return 0, errors.New("queue: runner has no queue")
	}

	processed := 0
	for round := 0; round < maxDrainRounds; round++ {
		n, err := r.poll(ctx)
		processed += n
		if err != nil {
			return processed, err
		}
		if n == 0 {
			return processed, nil
		}
	}
	return processed, fmt.Errorf("queue: drain did not settle after %d rounds", maxDrainRounds)
}

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		n, err := r.poll(ctx)
		if err != nil {
			r.log.Error("dequeue failed", zap.Error(err))
		}
		if n == 0 || err != nil {
			r.sleep()
		}
	}
}

func (r *Runner) sleep() {
	timer := time.NewTimer(r.pollInterval)
	defer timer.Stop()

	select {
	case <-r.stopCh:
	case <-timer.C:
	}
}

func (r *Runner) poll(ctx context.Context) (int, error) {
	tasks, err := r.queue.Dequeue(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.concurrency)
	for _, task := range tasks {
		task := task
		group.Go(func() error {
			r.execute(groupCtx, task)
			return nil
		})
	}
	_ = group.Wait()
	return len(tasks), nil
}

func (r *Runner) execute(ctx context.Context, task Task) {
	r.mu.RLock()
	handler, ok := r.handlers[task.Kind]
	r.mu.RUnlock()

	var err error
	if !ok {
		err = fmt.Errorf("%w: %s", ErrUnknownTask, task.Kind)
	} else {
		err = r.invoke(ctx, handler, task)
	}

	result := "ok"
	if err != nil {
		result = "error"
		r.log.Warn("task failed",
			zap.String("task_id", task.ID),
			zap.String("kind", task.Kind),
			zap.Int("attempt", task.Attempt),
			zap.Error(err),
		)
	}
	if err != nil && r.retry(ctx, task, err) {
		result = "retry"
	}
	metrics.QueueTasks.WithLabelValues(task.Kind, result).Inc()

	if completeErr := r.queue.Complete(ctx, task.ID, err); completeErr != nil {
		r.log.Error("complete task failed", zap.String("task_id", task.ID), zap.Error(completeErr))
	}
}

// retry schedules a fresh copy of a failed task. The failed task itself is still
// completed with its error.
func (r *Runner) retry(ctx context.Context, task Task, taskErr error) bool {
	if errors.Is(taskErr, ErrUnknownTask) || IsPermanent(taskErr) {
		return false
	}
	if task.Attempt+1 >= r.maxAttempts {
		r.log.Error("task retries exhausted",
			zap.String("task_id", task.ID),
			zap.String("kind", task.Kind),
			zap.Int("attempts", task.Attempt+1),
		)
		return false
	}

	next := Task{
		Kind:    task.Kind,
		Payload: task.Payload,
		RunAt:   r.now().Add(r.retryDelay.Delay(task.Attempt)),
		Attempt: task.Attempt + 1,
	}
	if err := r.queue.Enqueue(ctx, next); err != nil {
		r.log.Error("requeue failed task", zap.String("task_id", task.ID), zap.Error(err))
		return false
	}
	return true
}

func (r *Runner) invoke(ctx context.Context, handler Handler, task Task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("queue: task %s panicked: %v", task.ID, rec)
		}
	}()
	return handler(ctx, task)
}
