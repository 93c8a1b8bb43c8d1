package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nairabhi/habitvault/internal/cache"
	"github.com/nairabhi/habitvault/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishCapture struct {
	cache.Cache
	channel string
	payload []byte
	err     error
}

func (p *publishCapture) Publish(_ context.Context, channel string, payload []byte) error {
	p.channel = channel
	p.payload = payload
	return p.err
}

func TestRedisNotifier_PublishesToOwnerChannel(t *testing.T) {
	capture := &publishCapture{}
	n := notify.NewRedisNotifier(capture)

	ownerID := uuid.New()
	event := notify.Event{
		JobID: uuid.New(),
		Kind:  "export",
		State: "completed",
		At:    time.Now().UTC(),
	}
	n.JobEvent(context.Background(), ownerID, event)

	assert.Equal(t, cache.JobEventChannel(ownerID), capture.channel)

	var got notify.Event
	require.NoError(t, json.Unmarshal(capture.payload, &got))
	assert.Equal(t, event.JobID, got.JobID)
	assert.Equal(t, "export", got.Kind)
	assert.Equal(t, "completed", got.State)
}

func TestRedisNotifier_PublishFailureDoesNotPanic(t *testing.T) {
	capture := &publishCapture{err: errors.New("redis down")}
	n := notify.NewRedisNotifier(capture)

	assert.NotPanics(t, func() {
		n.JobEvent(context.Background(), uuid.New(), notify.Event{JobID: uuid.New(), State: "failed"})
	})
}

func TestLogNotifier_NoOp(t *testing.T) {
	var n notify.LogNotifier
	assert.NotPanics(t, func() {
		n.JobEvent(context.Background(), uuid.New(), notify.Event{JobID: uuid.New(), State: "pending"})
	})
}
