package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func (c *fixedClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *fixedClock {
	return &fixedClock{now: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
}

func TestMemoryQueueHonoursRunAt(t *testing.T) {
	clock := newClock()
	q := NewMemoryQueue(clock.Now)
	ctx := context.Background()

	later, err := NewTask(KindPushDeliver, PushBatchPayload{PushIDs: []string{"p1"}}, clock.now.Add(time.Minute))
	require.NoError(t, err)
	now, err := NewTask(KindEmergencyDispatch, DispatchPayload{EmergencyID: "e1"}, clock.now)
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(ctx, later))
	require.NoError(t, q.Enqueue(ctx, now))

	due, err := q.Dequeue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, KindEmergencyDispatch, due[0].Kind)

	var payload DispatchPayload
	require.NoError(t, due[0].Decode(&payload))
	require.Equal(t, "e1", payload.EmergencyID)

	due, err = q.Dequeue(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, due)

	clock.Advance(time.Minute)
	due, err = q.Dequeue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, later.ID, due[0].ID)
	require.Empty(t, q.Pending())
}

func TestMemoryQueueRecordsFailures(t *testing.T) {
	q := NewMemoryQueue(nil)
	ctx := context.Background()

	require.Error(t, q.Enqueue(ctx, Task{}))
	require.NoError(t, q.Enqueue(ctx, Task{ID: "t1", Kind: KindPushDeliver}))

	due, err := q.Dequeue(ctx, 1)
	require.NoError(t, err)
	require.Len(t, due, 1)

	require.NoError(t, q.Complete(ctx, "t1", errors.New("gateway down")))
	require.Equal(t, map[string]string{"t1": "gateway down"}, q.Failures())
}

func TestTaskDecodeRejectsEmptyPayload(t *testing.T) {
	var payload DispatchPayload
	require.Error(t, Task{ID: "x"}.Decode(&payload))
}
