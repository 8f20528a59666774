package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Queue hands jobs to async workers.
type Queue interface {
	Enqueue(ctx context.Context, jobType JobType, payload JobPayload, maxRetries int) error
}

// AsynqQueue implements Queue on asynq over Redis.
type AsynqQueue struct {
	client *asynq.Client
	log    *slog.Logger
}

// NewAsynqQueue creates a queue from a Redis URL.
func NewAsynqQueue(redisURL string) (*AsynqQueue, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     opt.Addr,
		Password: opt.Password,
		DB:       opt.DB,
	})
	return &AsynqQueue{
		client: client,
		log:    slog.Default().With("component", "queue"),
	}, nil
}

func (q *AsynqQueue) Enqueue(ctx context.Context, jobType JobType, payload JobPayload, maxRetries int) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	job := asynq.NewTask(string(jobType), data,
		asynq.MaxRetry(maxRetries),
		asynq.Timeout(5*time.Minute),
	)

	info, err := q.client.EnqueueContext(ctx, job)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", jobType, err)
	}

	q.log.Info("enqueued job", "type", jobType, "id", info.ID, "queue", info.Queue)
	return nil
}

func (q *AsynqQueue) Close() error {
	return q.client.Close()
}

// MemoryQueue implements Queue in memory, for tests and for running the
// gateway without Redis.
type MemoryQueue struct {
	mu   sync.Mutex
	jobs []QueuedJob
}

// QueuedJob is one enqueued job, retained for inspection.
type QueuedJob struct {
	Type    JobType
	Payload JobPayload
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, jobType JobType, payload JobPayload, maxRetries int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, QueuedJob{Type: jobType, Payload: payload})
	return nil
}

// Jobs returns a copy of everything enqueued so far.
func (q *MemoryQueue) Jobs() []QueuedJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]QueuedJob, len(q.jobs))
	copy(out, q.jobs)
	return out
}
