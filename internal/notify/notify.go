// Package notify publishes job lifecycle events so clients can subscribe
// instead of polling.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nairabhi/habitvault/internal/cache"
)

// Event describes one job state change.
type Event struct {
	JobID   uuid.UUID `json:"job_id"`
	Kind    string    `json:"kind"`
	State   string    `json:"state"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// Notifier is the notification strategy injected into the pipeline.
type Notifier interface {
	JobEvent(ctx context.Context, ownerID uuid.UUID, event Event)
}

// RedisNotifier publishes events on a per-owner redis pub/sub channel.
// Publish failures are logged, never propagated: notification is best
// effort and must not fail a job.
type RedisNotifier struct {
	cache cache.Cache
}

func NewRedisNotifier(c cache.Cache) *RedisNotifier {
	return &RedisNotifier{cache: c}
}

func (n *RedisNotifier) JobEvent(ctx context.Context, ownerID uuid.UUID, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("marshal job event", "error", err, "job_id", event.JobID)
		return
	}
	if err := n.cache.Publish(ctx, cache.JobEventChannel(ownerID), payload); err != nil {
		slog.Error("publish job event", "error", err, "job_id", event.JobID, "state", event.State)
	}
}

// LogNotifier writes events to the structured log. Used in tests and as
// a fallback when redis is unavailable.
type LogNotifier struct{}

func (LogNotifier) JobEvent(_ context.Context, ownerID uuid.UUID, event Event) {
	slog.Info("job event", "owner_id", ownerID, "job_id", event.JobID, "kind", event.Kind, "state", event.State)
}
