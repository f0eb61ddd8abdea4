package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/cache"
	testutil "github.com/anandyadav-dev/HunarMitra-Backend/internal/database/testutil"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/models"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/queue"
)

type stubSweeper struct {
	sweeps   int
	timeouts []time.Duration
	err      error
}

func (s *stubSweeper) Sweep(_ context.Context, timeout time.Duration) (int, error) {
	s.sweeps++
	s.timeouts = append(s.timeouts, timeout)
	return 1, s.err
}

func (s *stubSweeper) ExpireResponses(_ context.Context, timeout time.Duration) (int64, error) {
	s.timeouts = append(s.timeouts, timeout)
	return 0, nil
}

type fixedClock struct {
	current time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.current
}

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := fixedClock{current: time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC)}

	store := cache.NewDatabaseStore(db).WithClock(clock.Now)
	require.NoError(t, store.Set(context.Background(), "stale", []byte("x"), time.Minute))
	require.NoError(t, store.Set(context.Background(), "pinned", []byte("y"), 0))
	clock.current = clock.current.Add(10 * time.Minute)

	tasks, err := queue.NewDatabaseQueue(db, clock.Now)
	require.NoError(t, err)
	old, err := queue.NewTask(queue.KindPushDeliver, queue.PushBatchPayload{PushIDs: []string{"p1"}}, clock.Now())
	require.NoError(t, err)
	require.NoError(t, tasks.Enqueue(context.Background(), old))
	claimed, err := tasks.Dequeue(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, tasks.Complete(context.Background(), old.ID, nil))
	clock.current = clock.current.Add(8 * 24 * time.Hour)

	sweeper := &stubSweeper{}
	c := NewCleaner(sweeper, store, tasks,
		WithNow(clock.Now),
		WithResponseTimeout(30*time.Second),
		WithTaskRetention(7*24*time.Hour),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)

	require.NoError(t, c.RunOnce(context.Background()))
	require.Equal(t, 1, sweeper.sweeps)
	require.Equal(t, []time.Duration{30 * time.Second, 30 * time.Second}, sweeper.timeouts)

	var entries []models.CacheEntry
	require.NoError(t, db.Find(&entries).Error)
	require.Len(t, entries, 1)
	require.Equal(t, "pinned", entries[0].Key)

	var remaining int64
	require.NoError(t, db.Model(&models.QueuedTask{}).Count(&remaining).Error)
	require.Zero(t, remaining)
}

func TestCleanerRunOnceCollectsErrors(t *testing.T) {
	sweeper := &stubSweeper{err: errors.New("db down")}
	c := NewCleaner(sweeper, nil, nil)

	err := c.RunOnce(context.Background())
	require.Error(t, err)
	require.Len(t, multierr.Errors(err), 1)
}

func TestCleanerStartWithoutJobs(t *testing.T) {
	c := NewCleaner(nil, nil, nil)
	require.NoError(t, c.Start())
	<-c.Stop().Done()
}

func TestCleanerRejectsInvalidSchedule(t *testing.T) {
	c := NewCleaner(&stubSweeper{}, nil, nil, WithSweepSchedule("not a schedule"))
	require.Error(t, c.Start())
}

type stubRequeuer struct {
	calls []time.Duration
	err   error
}

func (r *stubRequeuer) RequeueStranded(_ context.Context, olderThan time.Duration) (int, error) {
	r.calls = append(r.calls, olderThan)
	return 2, r.err
}

func TestCleanerRequeuesStrandedPushes(t *testing.T) {
	requeuer := &stubRequeuer{}
	c := NewCleaner(nil, nil, nil, WithPushRequeue(requeuer, 90*time.Second, ""))

	require.NoError(t, c.RunOnce(context.Background()))
	require.Equal(t, []time.Duration{90 * time.Second}, requeuer.calls)

	requeuer.err = errors.New("queue unavailable")
	require.ErrorContains(t, c.RunOnce(context.Background()), "queue unavailable")
}

func TestCleanerStartsWithOnlyPushRequeue(t *testing.T) {
	c := NewCleaner(nil, nil, nil, WithPushRequeue(&stubRequeuer{}, 0, "@every 1m"))
	require.NoError(t, c.Start())
	require.Len(t, c.cron.Entries(), 1)
	<-c.Stop().Done()
}
