package webhooks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"catalog-import-service/internal/models"
)

// UserAgent identifies this service on outgoing webhook requests.
const UserAgent = "catalog-import-service/1.0"

// responseBodyLimit caps how much of an endpoint's response is persisted.
const responseBodyLimit = 1000

// Outcome classifies how one delivery attempt resolved.
type Outcome int

const (
	// OutcomeDelivered means the endpoint accepted the event.
	OutcomeDelivered Outcome = iota
	// OutcomeRetryScheduled means the attempt failed and a later retry is due.
	OutcomeRetryScheduled
	// OutcomePermanentlyFailed means the attempt budget is exhausted.
	OutcomePermanentlyFailed
	// OutcomeSkipped means no request was sent (already delivered, or the
	// webhook was disabled or removed in the meantime).
	OutcomeSkipped
)

// Result reports the attempt outcome, with RetryIn set only for
// OutcomeRetryScheduled.
type Result struct {
	Outcome    Outcome
	RetryIn    time.Duration
	StatusCode int
}

// DeliveryStore persists delivery attempt state.
type DeliveryStore interface {
	GetDeliveryByID(deliveryID uuid.UUID) (*models.WebhookDelivery, error)
	MarkAttempt(deliveryID uuid.UUID) (int, error)
	UpdateDelivery(deliveryID uuid.UUID, updates map[string]interface{}) error
}

// Deliverer performs single webhook delivery attempts. Retry pacing follows
// a fixed backoff schedule; when attempts outnumber schedule entries the
// last delay repeats.
type Deliverer struct {
	store         DeliveryStore
	client        *http.Client
	log           *logrus.Logger
	retrySchedule []time.Duration
}

func NewDeliverer(store DeliveryStore, client *http.Client, log *logrus.Logger, retrySchedule []time.Duration) *Deliverer {
	return &Deliverer{
		store:         store,
		client:        client,
		log:           log,
		retrySchedule: retrySchedule,
	}
}

// Deliver executes one attempt for a delivery record. The attempt counter is
// bumped before the request goes out so a crash mid-send still burns the
// attempt. Any 2xx response settles the delivery; anything else either
// schedules a retry or, once attempts run out, fails it permanently.
func (d *Deliverer) Deliver(ctx context.Context, deliveryID uuid.UUID) (Result, error) {
	delivery, err := d.store.GetDeliveryByID(deliveryID)
	if err != nil {
		return Result{}, fmt.Errorf("load delivery %s: %w", deliveryID, err)
	}

	logger := d.log.WithFields(logrus.Fields{
		"delivery_id": deliveryID,
		"webhook_id":  delivery.WebhookID,
		"event":       delivery.EventType,
	})

	// Delivered and failed are both terminal. Tasks can arrive more than
	// once, so a settled record must never send again or burn an attempt.
	if delivery.Status == models.DeliveryStatusDelivered || delivery.Status == models.DeliveryStatusFailed {
		logger.Debug("Delivery already settled, skipping")
		return Result{Outcome: OutcomeSkipped}, nil
	}
	if delivery.Webhook == nil || !delivery.Webhook.Enabled {
		logger.Info("Webhook disabled or removed, abandoning delivery")
		if err := d.store.UpdateDelivery(deliveryID, map[string]interface{}{
			"status":        models.DeliveryStatusFailed,
			"error_message": "webhook disabled before delivery",
			"next_retry_at": nil,
		}); err != nil {
			return Result{}, err
		}
		return Result{Outcome: OutcomeSkipped}, nil
	}

	attempt, err := d.store.MarkAttempt(deliveryID)
	if err != nil {
		return Result{}, fmt.Errorf("mark attempt: %w", err)
	}

	statusCode, responseBody, sendErr := d.send(ctx, delivery)

	if sendErr == nil && statusCode >= 200 && statusCode < 300 {
		now := time.Now()
		if err := d.store.UpdateDelivery(deliveryID, map[string]interface{}{
			"status":        models.DeliveryStatusDelivered,
			"status_code":   statusCode,
			"response_body": responseBody,
			"error_message": nil,
			"delivered_at":  now,
			"next_retry_at": nil,
		}); err != nil {
			return Result{}, err
		}
		logger.WithFields(logrus.Fields{"attempt": attempt, "status_code": statusCode}).
			Info("Webhook delivered")
		return Result{Outcome: OutcomeDelivered, StatusCode: statusCode}, nil
	}

	errMessage := fmt.Sprintf("endpoint returned status %d", statusCode)
	if sendErr != nil {
		errMessage = sendErr.Error()
	}

	if attempt >= delivery.MaxAttempts {
		if err := d.store.UpdateDelivery(deliveryID, map[string]interface{}{
			"status":        models.DeliveryStatusFailed,
			"status_code":   nullableStatus(statusCode),
			"response_body": responseBody,
			"error_message": errMessage,
			"next_retry_at": nil,
		}); err != nil {
			return Result{}, err
		}
		logger.WithFields(logrus.Fields{"attempt": attempt, "error": errMessage}).
			Warn("Webhook delivery permanently failed")
		return Result{Outcome: OutcomePermanentlyFailed, StatusCode: statusCode}, nil
	}

	delay := d.retryDelay(attempt)
	nextRetry := time.Now().Add(delay)
	if err := d.store.UpdateDelivery(deliveryID, map[string]interface{}{
		"status":        models.DeliveryStatusPending,
		"status_code":   nullableStatus(statusCode),
		"response_body": responseBody,
		"error_message": errMessage,
		"next_retry_at": nextRetry,
	}); err != nil {
		return Result{}, err
	}
	logger.WithFields(logrus.Fields{
		"attempt":  attempt,
		"error":    errMessage,
		"retry_in": delay,
	}).Info("Webhook delivery failed, retry scheduled")
	return Result{Outcome: OutcomeRetryScheduled, RetryIn: delay, StatusCode: statusCode}, nil
}

// send posts the stored payload to the webhook endpoint and returns the
// status code and truncated response body. A transport failure returns a
// zero status code with the error.
func (d *Deliverer) send(ctx context.Context, delivery *models.WebhookDelivery) (int, *string, error) {
	body := []byte(delivery.Payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, delivery.Webhook.URL, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("X-Webhook-Event", delivery.EventType)
	if delivery.Webhook.Secret != nil && *delivery.Webhook.Secret != "" {
		req.Header.Set("X-Webhook-Signature", Sign(*delivery.Webhook.Secret, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
	truncated := string(raw)
	return resp.StatusCode, &truncated, nil
}

// retryDelay returns the backoff for the attempt that just failed,
// repeating the final schedule entry once attempts outrun it.
func (d *Deliverer) retryDelay(attempt int) time.Duration {
	if len(d.retrySchedule) == 0 {
		return time.Minute
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(d.retrySchedule) {
		idx = len(d.retrySchedule) - 1
	}
	return d.retrySchedule[idx]
}

// nullableStatus maps a zero (transport failure) status to NULL.
func nullableStatus(code int) interface{} {
	if code == 0 {
		return nil
	}
	return code
}
