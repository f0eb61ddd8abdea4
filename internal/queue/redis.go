package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "hunarmitra:queue:"

// RedisQueue keeps task bodies in hashes and schedules them in a sorted set scored
// by RunAt in unix milliseconds, rounded up so a task never becomes due early.
type RedisQueue struct {
	client goredis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisQueue constructs a Redis-backed queue. An empty prefix uses the default.
func NewRedisQueue(client goredis.UniversalClient, prefix string, now func() time.Time) (*RedisQueue, error) {
	if client == nil {
		return nil, errors.New("queue: redis client is required")
	}
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	if now == nil {
		now = time.Now
	}
	return &RedisQueue{client: client, prefix: prefix, now: now}, nil
}

func (q *RedisQueue) scheduleKey() string      { return q.prefix + "scheduled" }
func (q *RedisQueue) taskKey(id string) string { return q.prefix + "task:" + id }

// Enqueue implements Queue.
func (q *RedisQueue) Enqueue(ctx context.Context, task Task) error {
	if task.Kind == "" {
		return errors.New("queue: task kind is required")
	}
	task = normalise(task, q.now())

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.taskKey(task.ID),
		"kind", task.Kind,
		"payload", task.Payload,
		"run_at", task.RunAt.Format(time.RFC3339Nano),
		"attempt", strconv.Itoa(task.Attempt),
	)
	pipe.ZAdd(ctx, q.scheduleKey(), goredis.Z{Score: float64(scoreMillis(task.RunAt)), Member: task.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue/redis: enqueue %s: %w", task.Kind, err)
	}
	return nil
}

// Dequeue implements Queue. A task is claimed by whichever caller removes it from the
// schedule first.
func (q *RedisQueue) Dequeue(ctx context.Context, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = 1
	}

	ids, err := q.client.ZRangeByScore(ctx, q.scheduleKey(), &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(q.now().UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("queue/redis: range due tasks: %w", err)
	}

	tasks := make([]Task, 0, len(ids))
	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, q.scheduleKey(), id).Result()
		if err != nil {
			return tasks, fmt.Errorf("queue/redis: claim %s: %w", id, err)
		}
		if removed == 0 {
			continue
		}

		fields, err := q.client.HGetAll(ctx, q.taskKey(id)).Result()
		if err != nil {
			return tasks, fmt.Errorf("queue/redis: load %s: %w", id, err)
		}
		if len(fields) == 0 {
			continue
		}
		tasks = append(tasks, taskFromHash(id, fields))
	}
	return tasks, nil
}

// Complete implements Queue. Task bodies are removed once processed.
func (q *RedisQueue) Complete(ctx context.Context, id string, _ error) error {
	if err := q.client.Del(ctx, q.taskKey(id)).Err(); err != nil {
		return fmt.Errorf("queue/redis: complete %s: %w", id, err)
	}
	return nil
}

func scoreMillis(t time.Time) int64 {
	ms := t.UnixMilli()
	if t.Sub(time.UnixMilli(ms)) > 0 {
		ms++
	}
	return ms
}

func taskFromHash(id string, fields map[string]string) Task {
	task := Task{
		ID:      id,
		Kind:    fields["kind"],
		Payload: []byte(fields["payload"]),
	}
	if runAt, err := time.Parse(time.RFC3339Nano, fields["run_at"]); err == nil {
		task.RunAt = runAt
	}
	if attempt, err := strconv.Atoi(fields["attempt"]); err == nil {
		task.Attempt = attempt
	}
	return task
}
