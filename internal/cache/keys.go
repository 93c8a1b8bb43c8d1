package cache

import (
	"fmt"

	"github.com/google/uuid"
)

// JobStateKey is scoped by owner so a state lookup with the wrong owner
// misses instead of leaking another owner's job.
func JobStateKey(ownerID, jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s:%s", ownerID, jobID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

func JobEventChannel(ownerID uuid.UUID) string {
	return fmt.Sprintf("events:jobs:%s", ownerID)
}
