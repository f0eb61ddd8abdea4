package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisQueue(t *testing.T, clock *fixedClock) *RedisQueue {
	t.Helper()

	server := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q, err := NewRedisQueue(client, "test:queue:", clock.Now)
	require.NoError(t, err)
	return q
}

func TestRedisQueueSchedulesByRunAt(t *testing.T) {
	clock := newClock()
	q := newRedisQueue(t, clock)
	ctx := context.Background()

	first, err := NewTask(KindEmergencyDispatch, DispatchPayload{EmergencyID: "e1"}, clock.now)
	require.NoError(t, err)
	retry, err := NewTask(KindPushDeliver, PushBatchPayload{PushIDs: []string{"p1"}}, clock.now.Add(2*time.Second))
	require.NoError(t, err)
	retry.Attempt = 2

	require.NoError(t, q.Enqueue(ctx, first))
	require.NoError(t, q.Enqueue(ctx, retry))

	claimed, err := q.Dequeue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, first.ID, claimed[0].ID)
	require.Equal(t, KindEmergencyDispatch, claimed[0].Kind)
	require.NoError(t, q.Complete(ctx, claimed[0].ID, nil))

	clock.Advance(2 * time.Second)
	claimed, err = q.Dequeue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, 2, claimed[0].Attempt)

	var payload PushBatchPayload
	require.NoError(t, claimed[0].Decode(&payload))
	require.Equal(t, []string{"p1"}, payload.PushIDs)

	claimed, err = q.Dequeue(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, claimed)
}

func TestRedisQueueNeverReleasesTaskBeforeRunAt(t *testing.T) {
	clock := &fixedClock{now: time.Date(2024, 6, 1, 10, 0, 0, 400_000, time.UTC)}
	q := newRedisQueue(t, clock)
	ctx := context.Background()

	task, err := NewTask(KindPushDeliver, PushBatchPayload{PushIDs: []string{"p1"}}, clock.now.Add(2*time.Second))
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, task))

	// Same millisecond as RunAt but still before it.
	clock.Advance(2*time.Second - 300*time.Microsecond)
	claimed, err := q.Dequeue(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, claimed)

	clock.Advance(time.Millisecond)
	claimed, err = q.Dequeue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.False(t, claimed[0].RunAt.After(clock.now))
}
