package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"catalog-import-service/internal/models"
	"catalog-import-service/internal/queue"
)

// Payload is the body posted to webhook endpoints.
type Payload struct {
	Event     string                 `json:"event"`
	Timestamp string                 `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// SubscriptionStore resolves subscriptions and records deliveries.
type SubscriptionStore interface {
	GetEnabledWebhooksForEvent(eventType string) ([]models.Webhook, error)
	CreateDelivery(delivery *models.WebhookDelivery) error
}

// Enqueuer hands delivery tasks to the background queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload interface{}) error
}

// Dispatcher fans an event out to every enabled subscription: one delivery
// record per webhook, each immediately enqueued for a first attempt.
type Dispatcher struct {
	store       SubscriptionStore
	tasks       Enqueuer
	log         *logrus.Logger
	maxAttempts int
}

func NewDispatcher(store SubscriptionStore, tasks Enqueuer, log *logrus.Logger, maxAttempts int) *Dispatcher {
	return &Dispatcher{store: store, tasks: tasks, log: log, maxAttempts: maxAttempts}
}

// Dispatch renders the payload once and creates a pending delivery per
// subscribed webhook. A webhook with no matching subscription costs nothing.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType string, data map[string]interface{}) error {
	hooks, err := d.store.GetEnabledWebhooksForEvent(eventType)
	if err != nil {
		return fmt.Errorf("resolve subscriptions for %s: %w", eventType, err)
	}
	if len(hooks) == 0 {
		return nil
	}

	body, err := json.Marshal(Payload{
		Event:     eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	for i := range hooks {
		hook := &hooks[i]
		delivery := &models.WebhookDelivery{
			WebhookID:   hook.ID,
			EventType:   eventType,
			Payload:     string(body),
			Status:      models.DeliveryStatusPending,
			MaxAttempts: d.maxAttempts,
		}
		if err := d.store.CreateDelivery(delivery); err != nil {
			d.log.WithError(err).WithFields(logrus.Fields{
				"webhook_id": hook.ID,
				"event":      eventType,
			}).Error("Failed to record webhook delivery")
			continue
		}

		if err := d.tasks.Enqueue(ctx, queue.TaskWebhookDeliver, queue.WebhookDeliveryTask{
			DeliveryID: delivery.ID.String(),
		}); err != nil {
			d.log.WithError(err).WithField("delivery_id", delivery.ID).
				Error("Failed to enqueue webhook delivery")
		}
	}
	return nil
}
