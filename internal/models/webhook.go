package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Webhook event types
const (
	EventImportStarted   = "import.started"
	EventImportCompleted = "import.completed"
	EventImportFailed    = "import.failed"
	EventProductCreated  = "product.created"
	EventProductUpdated  = "product.updated"
	EventProductDeleted  = "product.deleted"
	EventWebhookTest     = "webhook.test"
)

// KnownEventTypes lists every event type a webhook may subscribe to.
func KnownEventTypes() []string {
	return []string{
		EventImportStarted,
		EventImportCompleted,
		EventImportFailed,
		EventProductCreated,
		EventProductUpdated,
		EventProductDeleted,
		EventWebhookTest,
	}
}

// Webhook is a registered callback target. Events is stored as a
// comma-separated list of event type strings.
type Webhook struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name      string    `json:"name" gorm:"type:varchar(255);not null"`
	URL       string    `json:"url" gorm:"type:varchar(2048);not null"`
	Events    string    `json:"-" gorm:"type:text;not null"`
	Secret    *string   `json:"secret,omitempty" gorm:"type:varchar(255)"`
	Enabled   bool      `json:"enabled" gorm:"not null;default:true;index"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName returns the table name for the Webhook model
func (Webhook) TableName() string {
	return "webhooks"
}

// EventList returns the subscribed event types as a slice.
func (w *Webhook) EventList() []string {
	if w.Events == "" {
		return nil
	}
	return strings.Split(w.Events, ",")
}

// SubscribesTo reports whether the webhook subscribes to the event type.
func (w *Webhook) SubscribesTo(eventType string) bool {
	for _, e := range w.EventList() {
		if e == eventType {
			return true
		}
	}
	return false
}

// DeliveryStatus represents the terminal state bookkeeping of a delivery.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// WebhookDelivery records one event sent to one subscription, tracked across
// retries. Attempt is incremented before each send so a crash mid-send still
// counts. NextRetryAt is cleared once the delivery resolves either way.
type WebhookDelivery struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	WebhookID uuid.UUID `json:"webhookId" gorm:"type:uuid;not null;index"`
	Webhook   *Webhook  `json:"-" gorm:"foreignKey:WebhookID"`

	EventType string `json:"eventType" gorm:"type:varchar(100);not null;index"`
	Payload   string `json:"payload" gorm:"type:text;not null"`

	Status       DeliveryStatus `json:"status" gorm:"type:varchar(50);not null;default:'pending';index"`
	StatusCode   *int           `json:"statusCode,omitempty" gorm:"column:status_code"`
	ResponseBody *string        `json:"responseBody,omitempty" gorm:"column:response_body;type:text"`
	ErrorMessage *string        `json:"errorMessage,omitempty" gorm:"column:error_message;type:text"`

	Attempt     int        `json:"attempt" gorm:"not null;default:0"`
	MaxAttempts int        `json:"maxAttempts" gorm:"column:max_attempts;not null;default:5"`
	NextRetryAt *time.Time `json:"nextRetryAt,omitempty" gorm:"column:next_retry_at;index"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty" gorm:"column:delivered_at"`
	CreatedAt   time.Time  `json:"createdAt" gorm:"index"`
}

// TableName returns the table name for the WebhookDelivery model
func (WebhookDelivery) TableName() string {
	return "webhook_deliveries"
}

// CreateWebhookRequest represents a request to register a webhook
type CreateWebhookRequest struct {
	Name    string   `json:"name" binding:"required,max=255"`
	URL     string   `json:"url" binding:"required,url,max=2048"`
	Events  []string `json:"events" binding:"required,min=1"`
	Secret  *string  `json:"secret,omitempty" binding:"omitempty,max=255"`
	Enabled *bool    `json:"enabled,omitempty"`
}

// UpdateWebhookRequest represents a partial webhook update
type UpdateWebhookRequest struct {
	Name    *string  `json:"name,omitempty" binding:"omitempty,max=255"`
	URL     *string  `json:"url,omitempty" binding:"omitempty,url,max=2048"`
	Events  []string `json:"events,omitempty"`
	Secret  *string  `json:"secret,omitempty" binding:"omitempty,max=255"`
	Enabled *bool    `json:"enabled,omitempty"`
}

// WebhookTestResponse reports the outcome of a synchronous test delivery
type WebhookTestResponse struct {
	Success        bool     `json:"success"`
	StatusCode     *int     `json:"statusCode,omitempty"`
	ResponseTimeMS *float64 `json:"responseTimeMs,omitempty"`
	Error          *string  `json:"error,omitempty"`
}

// WebhookResponse is the API shape for a webhook with events as a list
type WebhookResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	Secret    *string   `json:"secret,omitempty"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// APIResponse converts a Webhook to its API shape.
func (w *Webhook) APIResponse() WebhookResponse {
	return WebhookResponse{
		ID:        w.ID,
		Name:      w.Name,
		URL:       w.URL,
		Events:    w.EventList(),
		Secret:    w.Secret,
		Enabled:   w.Enabled,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}
