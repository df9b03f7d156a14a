// Package queue is the Redis-list job queue shared by the submission path
// and the ingestion workers. Delivery is at-least-once: whoever pops a job
// owns it; a consumer crash after the pop is recovered by the registry
// reconciliation sweep, not by the queue.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// JobPayload is the wire form of one ingestion job. Immutable once pushed.
type JobPayload struct {
	JobID string `json:"job_id"`
	DocID string `json:"doc_id"`
	URL   string `json:"url"`
}

type JobQueue struct {
	rdb *redis.Client
	key string
}

func NewJobQueue(rdb *redis.Client, key string) *JobQueue {
	return &JobQueue{rdb: rdb, key: key}
}

// Enqueue pushes the job to the tail of the queue.
func (q *JobQueue) Enqueue(ctx context.Context, job JobPayload) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job %s: %w", job.JobID, err)
	}
	if err := q.rdb.RPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("queue: enqueue job %s: %w", job.JobID, err)
	}
	return nil
}

// Dequeue pops the head of the queue without blocking. Returns (nil, nil)
// when the queue is empty; the caller owns the idle-wait policy.
func (q *JobQueue) Dequeue(ctx context.Context) (*JobPayload, error) {
	data, err := q.rdb.LPop(ctx, q.key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: dequeue: %w", err)
	}
	var job JobPayload
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("queue: malformed job payload: %w", err)
	}
	return &job, nil
}

// Len reports the number of pending jobs, for health reporting.
func (q *JobQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}
