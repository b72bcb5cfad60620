package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"communitydms/api/internal/email"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

func redisOpt(redisURL string) (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return opt, nil
}

// Queue enqueues background work. Its Send method lets the application hand
// mail to the worker instead of talking SMTP inline.
type Queue struct {
	client *asynq.Client
}

func NewQueue(redisURL string) (*Queue, error) {
	opt, err := redisOpt(redisURL)
	if err != nil {
		return nil, err
	}
	return &Queue{client: asynq.NewClient(opt)}, nil
}

// Send enqueues msg for delivery by the worker.
func (q *Queue) Send(ctx context.Context, msg email.Message) error {
	if len(msg.To) == 0 {
		return nil
	}
	task, err := NewEmailDeliverTask(msg)
	if err != nil {
		return fmt.Errorf("build email task: %w", err)
	}
	if _, err := q.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.Timeout(time.Minute)); err != nil {
		return fmt.Errorf("enqueue email: %w", err)
	}
	return nil
}

// EnqueueCleanup schedules one notification retention sweep. Sweeps are
// unique for an hour so overlapping schedulers do not pile up work.
func (q *Queue) EnqueueCleanup(ctx context.Context) error {
	_, err := q.client.EnqueueContext(ctx, NewNotificationCleanupTask(), asynq.Queue(QueueLow), asynq.Unique(time.Hour))
	if err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
		return fmt.Errorf("enqueue notification cleanup: %w", err)
	}
	return nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func NewServer(redisURL string, concurrency int) (*asynq.Server, error) {
	opt, err := redisOpt(redisURL)
	if err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = 10
	}
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueCritical: 6,
			QueueDefault:  3,
			QueueLow:      1,
		},
	}), nil
}
