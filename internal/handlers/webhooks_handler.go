package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"catalog-import-service/internal/models"
	"catalog-import-service/internal/repository"
	"catalog-import-service/internal/webhooks"
)

type WebhooksHandler struct {
	repo   *repository.WebhooksRepository
	client *http.Client
	log    *logrus.Logger
}

func NewWebhooksHandler(repo *repository.WebhooksRepository, client *http.Client, log *logrus.Logger) *WebhooksHandler {
	return &WebhooksHandler{repo: repo, client: client, log: log}
}

// GetWebhooks lists registered webhooks
// GET /api/webhooks
func (h *WebhooksHandler) GetWebhooks(c *gin.Context) {
	hooks, err := h.repo.GetWebhooks()
	if err != nil {
		h.serverError(c, "Failed to list webhooks", err)
		return
	}

	var enabledFilter *bool
	if raw := c.Query("enabled"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err == nil {
			enabledFilter = &v
		}
	}

	result := make([]models.WebhookResponse, 0, len(hooks))
	for i := range hooks {
		if enabledFilter != nil && hooks[i].Enabled != *enabledFilter {
			continue
		}
		result = append(result, hooks[i].APIResponse())
	}
	c.JSON(http.StatusOK, result)
}

// GetWebhook retrieves one webhook
// GET /api/webhooks/:id
func (h *WebhooksHandler) GetWebhook(c *gin.Context) {
	webhook, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, webhook.APIResponse())
}

// CreateWebhook registers a webhook
// POST /api/webhooks
func (h *WebhooksHandler) CreateWebhook(c *gin.Context) {
	var req models.CreateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "VALIDATION_ERROR",
				Message: err.Error(),
			},
		})
		return
	}
	if bad := unknownEvents(req.Events); bad != "" {
		h.unknownEvent(c, bad)
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	webhook := &models.Webhook{
		Name:    req.Name,
		URL:     req.URL,
		Events:  strings.Join(req.Events, ","),
		Secret:  req.Secret,
		Enabled: enabled,
	}
	if err := h.repo.CreateWebhook(webhook); err != nil {
		h.serverError(c, "Failed to create webhook", err)
		return
	}
	c.JSON(http.StatusCreated, webhook.APIResponse())
}

// UpdateWebhook applies a partial update
// PUT /api/webhooks/:id
func (h *WebhooksHandler) UpdateWebhook(c *gin.Context) {
	webhook, ok := h.load(c)
	if !ok {
		return
	}

	var req models.UpdateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "VALIDATION_ERROR",
				Message: err.Error(),
			},
		})
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.URL != nil {
		updates["url"] = *req.URL
	}
	if len(req.Events) > 0 {
		if bad := unknownEvents(req.Events); bad != "" {
			h.unknownEvent(c, bad)
			return
		}
		updates["events"] = strings.Join(req.Events, ",")
	}
	if req.Secret != nil {
		updates["secret"] = *req.Secret
	}
	if req.Enabled != nil {
		updates["enabled"] = *req.Enabled
	}

	if len(updates) > 0 {
		if err := h.repo.UpdateWebhook(webhook.ID, updates); err != nil {
			h.serverError(c, "Failed to update webhook", err)
			return
		}
	}

	updated, err := h.repo.GetWebhookByID(webhook.ID)
	if err != nil {
		h.serverError(c, "Failed to reload webhook", err)
		return
	}
	c.JSON(http.StatusOK, updated.APIResponse())
}

// DeleteWebhook removes a webhook and its delivery history
// DELETE /api/webhooks/:id
func (h *WebhooksHandler) DeleteWebhook(c *gin.Context) {
	webhook, ok := h.load(c)
	if !ok {
		return
	}

	if err := h.repo.DeleteWebhook(webhook.ID); err != nil {
		h.serverError(c, "Failed to delete webhook", err)
		return
	}
	message := fmt.Sprintf("Webhook %s deleted successfully", webhook.ID)
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Message: &message})
}

// TestWebhook sends a synchronous test event and reports the outcome
// POST /api/webhooks/:id/test
func (h *WebhooksHandler) TestWebhook(c *gin.Context) {
	webhook, ok := h.load(c)
	if !ok {
		return
	}

	body, err := json.Marshal(webhooks.Payload{
		Event:     models.EventWebhookTest,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data: map[string]interface{}{
			"message": "This is a test webhook delivery",
		},
	})
	if err != nil {
		h.serverError(c, "Failed to build test payload", err)
		return
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost, webhook.URL, bytes.NewReader(body))
	if err != nil {
		errMsg := err.Error()
		c.JSON(http.StatusOK, models.WebhookTestResponse{Success: false, Error: &errMsg})
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", webhooks.UserAgent)
	req.Header.Set("X-Webhook-Event", models.EventWebhookTest)
	if webhook.Secret != nil && *webhook.Secret != "" {
		req.Header.Set("X-Webhook-Signature", webhooks.Sign(*webhook.Secret, body))
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		errMsg := err.Error()
		c.JSON(http.StatusOK, models.WebhookTestResponse{Success: false, Error: &errMsg})
		return
	}
	defer resp.Body.Close()

	elapsed := math.Round(float64(time.Since(start).Microseconds())/10) / 100 // ms, 2 decimals
	success := resp.StatusCode >= 200 && resp.StatusCode < 300

	result := models.WebhookTestResponse{
		Success:        success,
		StatusCode:     &resp.StatusCode,
		ResponseTimeMS: &elapsed,
	}
	if !success {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		errMsg := string(raw)
		result.Error = &errMsg
	}
	c.JSON(http.StatusOK, result)
}

// GetWebhookLogs returns recent delivery attempts for a webhook
// GET /api/webhooks/:id/logs
func (h *WebhooksHandler) GetWebhookLogs(c *gin.Context) {
	webhook, ok := h.load(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	deliveries, total, err := h.repo.GetDeliveries(webhook.ID, 1, limit)
	if err != nil {
		h.serverError(c, "Failed to load delivery logs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items": deliveries,
		"total": total,
	})
}

// load parses the path ID and fetches the webhook, replying 400/404 itself.
func (h *WebhooksHandler) load(c *gin.Context) (*models.Webhook, bool) {
	webhookID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "INVALID_ID",
				Message: "Webhook ID must be a valid UUID",
			},
		})
		return nil, false
	}

	webhook, err := h.repo.GetWebhookByID(webhookID)
	if err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "NOT_FOUND",
				Message: fmt.Sprintf("Webhook %s not found", webhookID),
			},
		})
		return nil, false
	}
	return webhook, true
}

// unknownEvents returns the first event name outside the known set.
func unknownEvents(events []string) string {
	known := make(map[string]bool)
	for _, e := range models.KnownEventTypes() {
		known[e] = true
	}
	for _, e := range events {
		if !known[e] {
			return e
		}
	}
	return ""
}

func (h *WebhooksHandler) unknownEvent(c *gin.Context, event string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    "UNKNOWN_EVENT",
			Message: fmt.Sprintf("Unknown event type '%s'", event),
			Field:   "events",
		},
	})
}

func (h *WebhooksHandler) serverError(c *gin.Context, message string, err error) {
	h.log.WithError(err).Error(message)
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    "INTERNAL_ERROR",
			Message: message,
		},
	})
}
