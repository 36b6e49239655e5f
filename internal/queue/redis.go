package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// PayoutTask asks a worker to settle one order. It carries no amount: the
// worker reads the order at execution time.
type PayoutTask struct {
	TaskID     string    `json:"task_id"`
	OrderID    string    `json:"order_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Delivery is a task taken off the queue and not yet acknowledged.
type Delivery struct {
	Task PayoutTask
	raw  string
}

// RedisQueue is a reliable list queue. Dequeued tasks are parked in a
// per-consumer processing list until acked, so a crashed consumer can put
// them back with Recover. Delivery is at least once.
type RedisQueue struct {
	client        *redis.Client
	key           string
	processingKey string
}

func NewRedisQueue(client *redis.Client, key, consumer string) *RedisQueue {
	return &RedisQueue{
		client:        client,
		key:           key,
		processingKey: key + ":processing:" + consumer,
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, task PayoutTask) error {
	if task.TaskID == "" {
		task.TaskID = uuid.NewString()
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal payout task: %w", err)
	}

	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("push payout task: %w", err)
	}
	return nil
}

// Dequeue waits up to wait for a task. It returns nil, nil on timeout.
func (q *RedisQueue) Dequeue(ctx context.Context, wait time.Duration) (*Delivery, error) {
	raw, err := q.client.BRPopLPush(ctx, q.key, q.processingKey, wait).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop payout task: %w", err)
	}

	var task PayoutTask
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		// a payload nobody can read would loop forever; drop it
		_ = q.client.LRem(ctx, q.processingKey, 1, raw).Err()
		return nil, fmt.Errorf("decode payout task: %w", err)
	}

	return &Delivery{Task: task, raw: raw}, nil
}

func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	if err := q.client.LRem(ctx, q.processingKey, 1, d.raw).Err(); err != nil {
		return fmt.Errorf("ack payout task %s: %w", d.Task.TaskID, err)
	}
	return nil
}

// Recover moves tasks left in this consumer's processing list back to the
// queue. Call it before starting to consume.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.RPopLPush(ctx, q.processingKey, q.key).Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("recover payout tasks: %w", err)
		}
		moved++
	}
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
