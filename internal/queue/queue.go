package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	readyKey   = "catalog:tasks:ready"
	delayedKey = "catalog:tasks:delayed"

	popTimeout      = 5 * time.Second
	promoteInterval = 1 * time.Second
	promoteChunk    = 100
)

// Envelope wraps a task payload with routing metadata on the wire.
type Envelope struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}

// Queue is a Redis-backed task queue: a list for ready tasks and a sorted
// set, scored by due time, for delayed ones.
type Queue struct {
	client *redis.Client
	log    *logrus.Logger
}

func New(client *redis.Client, log *logrus.Logger) *Queue {
	return &Queue{client: client, log: log}
}

// Enqueue makes a task immediately available to workers.
func (q *Queue) Enqueue(ctx context.Context, name string, payload interface{}) error {
	raw, err := q.seal(name, payload)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, readyKey, raw).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", name, err)
	}
	return nil
}

// EnqueueIn schedules a task to become available after the delay.
func (q *Queue) EnqueueIn(ctx context.Context, name string, payload interface{}, delay time.Duration) error {
	raw, err := q.seal(name, payload)
	if err != nil {
		return err
	}
	due := float64(time.Now().Add(delay).Unix())
	if err := q.client.ZAdd(ctx, delayedKey, redis.Z{Score: due, Member: raw}).Err(); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

func (q *Queue) seal(name string, payload interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", name, err)
	}
	env := Envelope{
		ID:         uuid.NewString(),
		Name:       name,
		Payload:    data,
		EnqueuedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal %s envelope: %w", name, err)
	}
	return string(raw), nil
}

// Handler processes one task payload. A returned error is logged; the task
// is not re-queued automatically, retry policy belongs to the handler.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Worker consumes tasks and routes them to registered handlers by name.
type Worker struct {
	queue    *Queue
	log      *logrus.Logger
	handlers map[string]Handler
}

func NewWorker(q *Queue, log *logrus.Logger) *Worker {
	return &Worker{queue: q, log: log, handlers: make(map[string]Handler)}
}

// Handle registers the handler for a task name.
func (w *Worker) Handle(name string, h Handler) {
	w.handlers[name] = h
}

// Run blocks consuming tasks until the context is cancelled. Due delayed
// tasks are promoted to the ready list in the background.
func (w *Worker) Run(ctx context.Context) error {
	go w.promoteLoop(ctx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		res, err := w.queue.client.BRPop(ctx, popTimeout, readyKey).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.WithError(err).Error("Failed to pop task from queue")
			time.Sleep(time.Second)
			continue
		}
		if len(res) < 2 {
			continue
		}
		w.process(ctx, res[1])
	}
}

func (w *Worker) process(ctx context.Context, raw string) {
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		w.log.WithError(err).Error("Discarding malformed task envelope")
		return
	}

	logger := w.log.WithFields(logrus.Fields{"task": env.Name, "task_id": env.ID})

	handler, ok := w.handlers[env.Name]
	if !ok {
		logger.Warn("No handler registered for task, discarding")
		return
	}

	start := time.Now()
	if err := handler(ctx, env.Payload); err != nil {
		logger.WithError(err).WithField("duration", time.Since(start)).Error("Task failed")
		return
	}
	logger.WithField("duration", time.Since(start)).Debug("Task completed")
}

// promoteLoop moves due tasks from the delayed set to the ready list. ZRem
// arbitrates between concurrent workers so each task is promoted once.
func (w *Worker) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(promoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.promoteDue(ctx); err != nil && ctx.Err() == nil {
				w.log.WithError(err).Error("Failed to promote delayed tasks")
			}
		}
	}
}

func (w *Worker) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	due, err := w.queue.client.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: promoteChunk,
	}).Result()
	if err != nil {
		return err
	}

	for _, member := range due {
		removed, err := w.queue.client.ZRem(ctx, delayedKey, member).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		if err := w.queue.client.LPush(ctx, readyKey, member).Err(); err != nil {
			return err
		}
	}
	return nil
}
