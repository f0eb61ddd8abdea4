package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anandyadav-dev/HunarMitra-Backend/pkg/backoff"
)

func TestRunnerDrainExecutesDueTasks(t *testing.T) {
	clock := newClock()
	q := NewMemoryQueue(clock.Now)
	runner := NewRunner(q, WithConcurrency(2), WithBatchSize(1))
	ctx := context.Background()

	var mu sync.Mutex
	var seen []string
	runner.Handle(KindEmergencyDispatch, func(_ context.Context, task Task) error {
		var payload DispatchPayload
		if err := task.Decode(&payload); err != nil {
			return err
		}
		mu.Lock()
		seen = append(seen, payload.EmergencyID)
		mu.Unlock()
		return nil
	})

	for _, id := range []string{"e1", "e2", "e3"} {
		task, err := NewTask(KindEmergencyDispatch, DispatchPayload{EmergencyID: id}, clock.now)
		require.NoError(t, err)
		require.NoError(t, q.Enqueue(ctx, task))
	}

	processed, err := runner.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, processed)
	require.ElementsMatch(t, []string{"e1", "e2", "e3"}, seen)
}

func TestRunnerDrainLeavesFutureTasks(t *testing.T) {
	clock := newClock()
	q := NewMemoryQueue(clock.Now)
	runner := NewRunner(q)
	ctx := context.Background()

	var calls int32
	runner.Handle(KindPushDeliver, func(ctx context.Context, task Task) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			next := task
			next.ID = ""
			next.RunAt = clock.now.Add(time.Second)
			next.Attempt++
			return q.Enqueue(ctx, next)
		}
		return nil
	})

	require.NoError(t, q.Enqueue(ctx, Task{Kind: KindPushDeliver, Payload: []byte(`{}`)}))

	processed, err := runner.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, processed)
	require.Len(t, q.Pending(), 1)

	clock.Advance(time.Second)
	processed, err = runner.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, processed)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestRunnerRecordsHandlerFailures(t *testing.T) {
	q := NewMemoryQueue(nil)
	runner := NewRunner(q)
	ctx := context.Background()

	runner.Handle(KindPushDeliver, func(context.Context, Task) error {
		return errors.New("gateway down")
	})
	runner.Handle(KindEmergencyDispatch, func(context.Context, Task) error {
		panic("boom")
	})

	require.NoError(t, q.Enqueue(ctx, Task{ID: "push", Kind: KindPushDeliver}))
	require.NoError(t, q.Enqueue(ctx, Task{ID: "dispatch", Kind: KindEmergencyDispatch}))
	require.NoError(t, q.Enqueue(ctx, Task{ID: "mystery", Kind: "mystery"}))

	processed, err := runner.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, processed)

	failures := q.Failures()
	require.Equal(t, "gateway down", failures["push"])
	require.Contains(t, failures["dispatch"], "panicked")
	require.Contains(t, failures["mystery"], ErrUnknownTask.Error())
}

func TestRunnerStartProcessesInBackground(t *testing.T) {
	q := NewMemoryQueue(nil)
	runner := NewRunner(q, WithPollInterval(10*time.Millisecond))

	done := make(chan string, 1)
	runner.Handle(KindEmergencyDispatch, func(_ context.Context, task Task) error {
		done <- task.ID
		return nil
	})

	require.NoError(t, runner.Start(context.Background()))
	require.NoError(t, q.Enqueue(context.Background(), Task{ID: "bg", Kind: KindEmergencyDispatch}))

	select {
	case id := <-done:
		require.Equal(t, "bg", id)
	case <-time.After(2 * time.Second):
		t.Fatal("task was not processed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, runner.Stop(ctx))
}

func TestRunnerRetriesFailedTasksUntilAttemptsRunOut(t *testing.T) {
	clock := newClock()
	q := NewMemoryQueue(clock.Now)
	runner := NewRunner(q, WithRetry(3, backoff.Constant{Interval: time.Second}), WithClock(clock.Now))
	ctx := context.Background()

	var attempts []int
	runner.Handle(KindEmergencyDispatch, func(_ context.Context, task Task) error {
		attempts = append(attempts, task.Attempt)
		return errors.New("database is locked")
	})
	require.NoError(t, q.Enqueue(ctx, Task{ID: "dispatch", Kind: KindEmergencyDispatch, Payload: []byte(`{"emergency_id":"e1"}`)}))

	processed, err := runner.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, processed)

	pending := q.Pending()
	require.Len(t, pending, 1)
	require.Equal(t, 1, pending[0].Attempt)
	require.True(t, pending[0].RunAt.Equal(clock.now.Add(time.Second)))
	require.JSONEq(t, `{"emergency_id":"e1"}`, string(pending[0].Payload))

	for i := 0; i < 4; i++ {
		clock.Advance(time.Second)
		_, err := runner.Drain(ctx)
		require.NoError(t, err)
	}
	require.Equal(t, []int{0, 1, 2}, attempts)
	require.Empty(t, q.Pending())
}

func TestRunnerDoesNotRetryPermanentFailures(t *testing.T) {
	clock := newClock()
	q := NewMemoryQueue(clock.Now)
	runner := NewRunner(q, WithClock(clock.Now))
	ctx := context.Background()

	runner.Handle(KindPushDeliver, func(context.Context, Task) error {
		return Permanent(errors.New("malformed payload"))
	})
	require.NoError(t, q.Enqueue(ctx, Task{ID: "push", Kind: KindPushDeliver}))
	require.NoError(t, q.Enqueue(ctx, Task{ID: "mystery", Kind: "mystery"}))

	processed, err := runner.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, processed)
	require.Empty(t, q.Pending())
	require.Equal(t, "malformed payload", q.Failures()["push"])
}
