package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"catalog-import-service/internal/models"
)

type WebhooksRepository struct {
	db *gorm.DB
}

func NewWebhooksRepository(db *gorm.DB) *WebhooksRepository {
	return &WebhooksRepository{db: db}
}

// Webhook Subscription Operations

// CreateWebhook registers a webhook subscription
func (r *WebhooksRepository) CreateWebhook(webhook *models.Webhook) error {
	if webhook.ID == uuid.Nil {
		webhook.ID = uuid.New()
	}
	webhook.CreatedAt = time.Now()
	webhook.UpdatedAt = time.Now()
	return r.db.Create(webhook).Error
}

// GetWebhookByID retrieves a webhook by ID
func (r *WebhooksRepository) GetWebhookByID(webhookID uuid.UUID) (*models.Webhook, error) {
	var webhook models.Webhook
	if err := r.db.Where("id = ?", webhookID).First(&webhook).Error; err != nil {
		return nil, err
	}
	return &webhook, nil
}

// GetWebhooks retrieves all registered webhooks
func (r *WebhooksRepository) GetWebhooks() ([]models.Webhook, error) {
	var webhooks []models.Webhook
	if err := r.db.Order("created_at ASC").Find(&webhooks).Error; err != nil {
		return nil, err
	}
	return webhooks, nil
}

// GetEnabledWebhooksForEvent returns the enabled webhooks subscribed to an
// event type. The comma-separated subscription list is matched in Go rather
// than with SQL LIKE so "import.completed" never matches a hypothetical
// "import.completed.v2" subscription.
func (r *WebhooksRepository) GetEnabledWebhooksForEvent(eventType string) ([]models.Webhook, error) {
	var webhooks []models.Webhook
	if err := r.db.Where("enabled = ?", true).Find(&webhooks).Error; err != nil {
		return nil, err
	}

	matched := make([]models.Webhook, 0, len(webhooks))
	for _, w := range webhooks {
		if w.SubscribesTo(eventType) {
			matched = append(matched, w)
		}
	}
	return matched, nil
}

// UpdateWebhook applies a partial update to a webhook
func (r *WebhooksRepository) UpdateWebhook(webhookID uuid.UUID, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	result := r.db.Model(&models.Webhook{}).
		Where("id = ?", webhookID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteWebhook removes a webhook and its delivery history
func (r *WebhooksRepository) DeleteWebhook(webhookID uuid.UUID) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("webhook_id = ?", webhookID).Delete(&models.WebhookDelivery{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", webhookID).Delete(&models.Webhook{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// Delivery Operations

// CreateDelivery records a pending delivery attempt
func (r *WebhooksRepository) CreateDelivery(delivery *models.WebhookDelivery) error {
	if delivery.ID == uuid.Nil {
		delivery.ID = uuid.New()
	}
	delivery.CreatedAt = time.Now()
	if delivery.Status == "" {
		delivery.Status = models.DeliveryStatusPending
	}
	return r.db.Create(delivery).Error
}

// GetDeliveryByID retrieves a delivery with its webhook preloaded
func (r *WebhooksRepository) GetDeliveryByID(deliveryID uuid.UUID) (*models.WebhookDelivery, error) {
	var delivery models.WebhookDelivery
	if err := r.db.Preload("Webhook").Where("id = ?", deliveryID).First(&delivery).Error; err != nil {
		return nil, err
	}
	return &delivery, nil
}

// GetDeliveries retrieves delivery history for a webhook, newest first
func (r *WebhooksRepository) GetDeliveries(webhookID uuid.UUID, page, limit int) ([]models.WebhookDelivery, int64, error) {
	var deliveries []models.WebhookDelivery
	var total int64

	query := r.db.Model(&models.WebhookDelivery{}).Where("webhook_id = ?", webhookID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&deliveries).Error; err != nil {
		return nil, 0, err
	}
	return deliveries, total, nil
}

// MarkAttempt bumps the attempt counter before a send goes out, so a crash
// mid-request still burns the attempt.
func (r *WebhooksRepository) MarkAttempt(deliveryID uuid.UUID) (int, error) {
	err := r.db.Model(&models.WebhookDelivery{}).
		Where("id = ?", deliveryID).
		Update("attempt", gorm.Expr("attempt + 1")).Error
	if err != nil {
		return 0, err
	}

	var delivery models.WebhookDelivery
	if err := r.db.Select("attempt").Where("id = ?", deliveryID).First(&delivery).Error; err != nil {
		return 0, err
	}
	return delivery.Attempt, nil
}

// UpdateDelivery applies a partial update to a delivery record
func (r *WebhooksRepository) UpdateDelivery(deliveryID uuid.UUID, updates map[string]interface{}) error {
	result := r.db.Model(&models.WebhookDelivery{}).
		Where("id = ?", deliveryID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetDueRetries returns pending deliveries whose retry time has passed.
// Used by the worker's periodic sweep to recover deliveries whose queue
// entry was lost.
func (r *WebhooksRepository) GetDueRetries(now time.Time, limit int) ([]models.WebhookDelivery, error) {
	var deliveries []models.WebhookDelivery
	err := r.db.Where("status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?",
		models.DeliveryStatusPending, now).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&deliveries).Error
	if err != nil {
		return nil, err
	}
	return deliveries, nil
}
