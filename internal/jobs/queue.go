// Package jobs implements the background execution engine: a Redis-backed
// job queue, managed job execution with retry and pipeline semantics, and
// the variant processing and enrichment jobs themselves.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultQueueKey = "mavedb:jobs:queue"

// QueueMessage is the envelope pushed onto the Redis queue. The job's
// parameters live in the job_runs row; the queue only carries identity.
type QueueMessage struct {
	JobID       uuid.UUID `json:"job_id"`
	JobFunction string    `json:"job_function"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// Queue is a Redis list used as a FIFO job queue.
type Queue struct {
	redis *redis.Client
	key   string
	log   *logrus.Logger
}

// NewQueue creates a queue on the given Redis URL.
func NewQueue(redisURL, key string, logger *logrus.Logger) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	if key == "" {
		key = defaultQueueKey
	}
	return &Queue{redis: client, key: key, log: logger}, nil
}

// Enqueue pushes a job onto the queue.
func (q *Queue) Enqueue(ctx context.Context, jobID uuid.UUID, jobFunction string) error {
	msg := QueueMessage{
		JobID:       jobID,
		JobFunction: jobFunction,
		EnqueuedAt:  time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling queue message: %w", err)
	}

	if err := q.redis.LPush(ctx, q.key, payload).Err(); err != nil {
		q.log.WithFields(logrus.Fields{
			"job_id":       jobID,
			"job_function": jobFunction,
			"error":        err,
		}).Error("Failed to enqueue job")
		return fmt.Errorf("enqueueing job: %w", err)
	}

	q.log.WithFields(logrus.Fields{
		"job_id":       jobID,
		"job_function": jobFunction,
	}).Info("Job enqueued")
	return nil
}

// Dequeue blocks for up to timeout waiting for the next job. A nil message
// with nil error means the wait timed out.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*QueueMessage, error) {
	result, err := q.redis.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeuing job: %w", err)
	}
	// BRPOP returns [key, value].
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply of length %d", len(result))
	}

	var msg QueueMessage
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return nil, fmt.Errorf("unmarshaling queue message: %w", err)
	}
	return &msg, nil
}

// Depth returns the number of queued jobs.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	n, err := q.redis.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("reading queue depth: %w", err)
	}
	return n, nil
}

// Ping checks queue connectivity.
func (q *Queue) Ping(ctx context.Context) error {
	return q.redis.Ping(ctx).Err()
}

// Close closes the underlying Redis connection.
func (q *Queue) Close() error {
	return q.redis.Close()
}
