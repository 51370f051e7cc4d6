package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Transport actually delivers a notification. Mail delivery is not part of
// this system; the default transport records the delivery in the log.
type Transport interface {
	Deliver(ctx context.Context, job Job) error
}

// LogTransport writes deliveries to the structured log.
type LogTransport struct {
	Logger *slog.Logger
}

// Deliver implements Transport.
func (t LogTransport) Deliver(_ context.Context, job Job) error {
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("assignment notification delivered",
		slog.String("job", job.ID),
		slog.String("recipient", job.Recipient),
		slog.Int64("task", job.TaskID),
		slog.String("actor", job.Actor))
	return nil
}

// Worker drains the assignment queue and hands each job to the transport.
type Worker struct {
	client    *redis.Client
	transport Transport
	logger    *slog.Logger
	popWait   time.Duration
	retryWait time.Duration
}

// NewWorker builds a queue consumer.
func NewWorker(client *redis.Client, transport Transport, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		client:    client,
		transport: transport,
		logger:    logger,
		popWait:   time.Second,
		retryWait: 5 * time.Second,
	}
}

// Run blocks until ctx is cancelled, processing jobs one at a time. A bad
// payload or a failed delivery is logged and dropped; the queue keeps
// moving. When redis itself is unreachable BRPOP fails without waiting, so
// the loop pauses before retrying instead of spinning.
func (w *Worker) Run(ctx context.Context) {
	for {
		if err := w.processOne(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				return
			}
			if !errors.Is(err, redis.Nil) {
				w.logger.Error("notification worker", slog.String("error", err.Error()))
				select {
				case <-ctx.Done():
					return
				case <-time.After(w.retryWait):
				}
			}
		}
	}
}

func (w *Worker) processOne(ctx context.Context) error {
	res, err := w.client.BRPop(ctx, w.popWait, QueueKey).Result()
	if err != nil {
		return err
	}
	if len(res) != 2 {
		return fmt.Errorf("unexpected BRPOP reply of %d elements", len(res))
	}

	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return fmt.Errorf("decode notification job: %w", err)
	}
	if err := w.transport.Deliver(ctx, job); err != nil {
		return fmt.Errorf("deliver job %s: %w", job.ID, err)
	}
	return nil
}
