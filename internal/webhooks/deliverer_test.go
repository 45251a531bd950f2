package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-import-service/internal/models"
)

type fakeDeliveryStore struct {
	delivery *models.WebhookDelivery
	updates  []map[string]interface{}
}

func (f *fakeDeliveryStore) GetDeliveryByID(id uuid.UUID) (*models.WebhookDelivery, error) {
	if f.delivery == nil || f.delivery.ID != id {
		return nil, errors.New("not found")
	}
	return f.delivery, nil
}

func (f *fakeDeliveryStore) MarkAttempt(id uuid.UUID) (int, error) {
	f.delivery.Attempt++
	return f.delivery.Attempt, nil
}

func (f *fakeDeliveryStore) UpdateDelivery(id uuid.UUID, updates map[string]interface{}) error {
	f.updates = append(f.updates, updates)
	if status, ok := updates["status"].(models.DeliveryStatus); ok {
		f.delivery.Status = status
	}
	return nil
}

func (f *fakeDeliveryStore) lastUpdate() map[string]interface{} {
	if len(f.updates) == 0 {
		return nil
	}
	return f.updates[len(f.updates)-1]
}

func quietLog() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

var testSchedule = []time.Duration{
	time.Minute, 5 * time.Minute, 15 * time.Minute, time.Hour, 2 * time.Hour,
}

func newTestDelivery(url string, secret *string) *models.WebhookDelivery {
	return &models.WebhookDelivery{
		ID:        uuid.New(),
		WebhookID: uuid.New(),
		EventType: models.EventImportCompleted,
		Payload:   `{"event":"import.completed","timestamp":"2026-01-01T00:00:00Z","data":{"job_id":"j1"}}`,
		Status:    models.DeliveryStatusPending,
		Webhook: &models.Webhook{
			URL:     url,
			Enabled: true,
			Secret:  secret,
		},
		MaxAttempts: 5,
	}
}

func TestDeliverSuccess(t *testing.T) {
	secret := "s3cret"
	var gotEvent, gotSignature, gotUA string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEvent = r.Header.Get("X-Webhook-Event")
		gotSignature = r.Header.Get("X-Webhook-Signature")
		gotUA = r.Header.Get("User-Agent")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	store := &fakeDeliveryStore{delivery: newTestDelivery(server.URL, &secret)}
	d := NewDeliverer(store, server.Client(), quietLog(), testSchedule)

	result, err := d.Deliver(context.Background(), store.delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, result.Outcome)
	assert.Equal(t, http.StatusOK, result.StatusCode)

	assert.Equal(t, models.EventImportCompleted, gotEvent)
	assert.Equal(t, UserAgent, gotUA)
	assert.Equal(t, Sign(secret, []byte(store.delivery.Payload)), gotSignature)
	assert.True(t, VerifySignature(secret, gotBody, gotSignature))

	assert.Equal(t, models.DeliveryStatusDelivered, store.delivery.Status)
	assert.Equal(t, 1, store.delivery.Attempt)
	last := store.lastUpdate()
	assert.Nil(t, last["next_retry_at"])
}

func TestDeliverNoSignatureWithoutSecret(t *testing.T) {
	var gotSignature string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Webhook-Signature")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	store := &fakeDeliveryStore{delivery: newTestDelivery(server.URL, nil)}
	d := NewDeliverer(store, server.Client(), quietLog(), testSchedule)

	result, err := d.Deliver(context.Background(), store.delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, result.Outcome)
	assert.Empty(t, gotSignature)
}

func TestDeliverFailureSchedulesRetry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	store := &fakeDeliveryStore{delivery: newTestDelivery(server.URL, nil)}
	d := NewDeliverer(store, server.Client(), quietLog(), testSchedule)

	result, err := d.Deliver(context.Background(), store.delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRetryScheduled, result.Outcome)
	assert.Equal(t, testSchedule[0], result.RetryIn, "first failed attempt uses the first delay")

	assert.Equal(t, models.DeliveryStatusPending, store.delivery.Status)
	last := store.lastUpdate()
	assert.NotNil(t, last["next_retry_at"])
	assert.Equal(t, "endpoint returned status 502", last["error_message"])
}

func TestDeliverBackoffScheduleProgression(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	store := &fakeDeliveryStore{delivery: newTestDelivery(server.URL, nil)}
	store.delivery.MaxAttempts = 10
	d := NewDeliverer(store, server.Client(), quietLog(), testSchedule)

	wantDelays := []time.Duration{
		testSchedule[0], testSchedule[1], testSchedule[2], testSchedule[3],
		testSchedule[4], testSchedule[4], testSchedule[4],
	}
	for i, want := range wantDelays {
		result, err := d.Deliver(context.Background(), store.delivery.ID)
		require.NoError(t, err)
		assert.Equal(t, OutcomeRetryScheduled, result.Outcome)
		assert.Equal(t, want, result.RetryIn, "attempt %d", i+1)
	}
}

func TestDeliverExhaustsAttempts(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	store := &fakeDeliveryStore{delivery: newTestDelivery(server.URL, nil)}
	store.delivery.Attempt = 4 // four failed attempts already burned
	d := NewDeliverer(store, server.Client(), quietLog(), testSchedule)

	result, err := d.Deliver(context.Background(), store.delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomePermanentlyFailed, result.Outcome)
	assert.Equal(t, models.DeliveryStatusFailed, store.delivery.Status)
	assert.Equal(t, 1, requests)
	assert.Equal(t, 5, store.delivery.Attempt)
	assert.Nil(t, store.lastUpdate()["next_retry_at"])

	// Tasks arrive at least once. A stray re-run of the failed delivery is
	// skipped outright: no sixth request, no attempt past max_attempts, no
	// state change.
	updatesBefore := len(store.updates)
	result, err = d.Deliver(context.Background(), store.delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, result.Outcome)
	assert.Equal(t, 1, requests, "no request may be sent after permanent failure")
	assert.Equal(t, 5, store.delivery.Attempt)
	assert.Len(t, store.updates, updatesBefore)
}

func TestDeliverTransportErrorRecorded(t *testing.T) {
	store := &fakeDeliveryStore{delivery: newTestDelivery("http://127.0.0.1:1", nil)}
	client := &http.Client{Timeout: 500 * time.Millisecond}
	d := NewDeliverer(store, client, quietLog(), testSchedule)

	result, err := d.Deliver(context.Background(), store.delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRetryScheduled, result.Outcome)
	assert.Zero(t, result.StatusCode)

	last := store.lastUpdate()
	assert.Nil(t, last["status_code"])
	assert.NotEmpty(t, last["error_message"])
}

func TestDeliverSkipsDisabledWebhook(t *testing.T) {
	store := &fakeDeliveryStore{delivery: newTestDelivery("http://example.invalid", nil)}
	store.delivery.Webhook.Enabled = false
	d := NewDeliverer(store, http.DefaultClient, quietLog(), testSchedule)

	result, err := d.Deliver(context.Background(), store.delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, result.Outcome)
	assert.Equal(t, models.DeliveryStatusFailed, store.delivery.Status)
	assert.Zero(t, store.delivery.Attempt, "no attempt burned without a request")
}

func TestDeliverSkipsSettledDelivery(t *testing.T) {
	store := &fakeDeliveryStore{delivery: newTestDelivery("http://example.invalid", nil)}
	store.delivery.Status = models.DeliveryStatusDelivered
	d := NewDeliverer(store, http.DefaultClient, quietLog(), testSchedule)

	result, err := d.Deliver(context.Background(), store.delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, result.Outcome)
	assert.Empty(t, store.updates)
}
