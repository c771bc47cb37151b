package evaluation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const finalizeLockTTL = 24 * time.Hour

// FinalizeLock guards finalization so only one track's convergence check
// runs the completion side effects.
type FinalizeLock struct {
	redis *redis.Client
}

// NewFinalizeLock creates a lock backed by the given Redis client.
func NewFinalizeLock(client *redis.Client) *FinalizeLock {
	return &FinalizeLock{redis: client}
}

// Acquire claims the finalization lock for a solicitud. It returns true
// only for the first caller; later callers find the key already set.
func (l *FinalizeLock) Acquire(ctx context.Context, solicitudID string) (bool, error) {
	key := fmt.Sprintf("vigia:finalize:%s", solicitudID)
	ok, err := l.redis.SetNX(ctx, key, "1", finalizeLockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire finalize lock: %w", err)
	}
	return ok, nil
}
