package queue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealRoundTrip(t *testing.T) {
	q := New(nil, logrus.New())

	raw, err := q.seal(TaskImportProcess, ImportTask{JobID: "job-1", FilePath: "/tmp/job-1.csv"})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	assert.Equal(t, TaskImportProcess, env.Name)
	assert.NotEmpty(t, env.ID)
	assert.False(t, env.EnqueuedAt.IsZero())

	var task ImportTask
	require.NoError(t, json.Unmarshal(env.Payload, &task))
	assert.Equal(t, "job-1", task.JobID)
	assert.Equal(t, "/tmp/job-1.csv", task.FilePath)
}

func TestProcessRoutesByName(t *testing.T) {
	log := logrus.New()
	q := New(nil, log)
	w := NewWorker(q, log)

	var got WebhookDeliveryTask
	w.Handle(TaskWebhookDeliver, func(ctx context.Context, payload json.RawMessage) error {
		return json.Unmarshal(payload, &got)
	})

	raw, err := q.seal(TaskWebhookDeliver, WebhookDeliveryTask{DeliveryID: "d-42"})
	require.NoError(t, err)

	w.process(context.Background(), raw)
	assert.Equal(t, "d-42", got.DeliveryID)
}

func TestProcessDiscardsUnknownTask(t *testing.T) {
	log := logrus.New()
	w := NewWorker(New(nil, log), log)

	raw, err := New(nil, log).seal("no.such.task", DeleteAllTask{BatchSize: 10})
	require.NoError(t, err)

	// Nothing registered: the task is logged and dropped, no panic.
	w.process(context.Background(), raw)
}

func TestProcessDiscardsMalformedEnvelope(t *testing.T) {
	log := logrus.New()
	w := NewWorker(New(nil, log), log)
	w.process(context.Background(), "{not json")
}
