// Package notify delivers "you were assigned" events over a redis list
// queue: the producer side only enqueues, a worker drains the queue and
// hands jobs to a transport.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// QueueKey is the redis list holding pending assignment jobs.
const QueueKey = "teamtrack:notify:assigned"

// Job is one queued assignment notification.
type Job struct {
	ID         string    `json:"id"`
	Recipient  string    `json:"recipient"`
	TaskID     int64     `json:"task_id"`
	Actor      string    `json:"actor"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Queue implements tracker.Notifier by pushing jobs onto redis. Enqueue is
// the whole producer-side contract; delivery happens on the Worker.
type Queue struct {
	client *redis.Client
}

// NewQueue wraps a redis client as the assignment notifier.
func NewQueue(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// NotifyAssigned enqueues one job. The caller treats any error as
// log-only.
func (q *Queue) NotifyAssigned(ctx context.Context, recipientEmail string, taskID int64, actorName string) error {
	job := Job{
		ID:         uuid.NewString(),
		Recipient:  recipientEmail,
		TaskID:     taskID,
		Actor:      actorName,
		EnqueuedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal notification job: %w", err)
	}
	if err := q.client.LPush(ctx, QueueKey, payload).Err(); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}
