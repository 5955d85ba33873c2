package live

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// lockTTL bounds how long an advisory lock can outlive a crashed holder.
const lockTTL = 5 * time.Second

const lockRetryInterval = 25 * time.Millisecond

// releaseScript deletes the lock only when the caller still holds it.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// AcquireLock takes the per-game advisory lock, retrying briefly under
// contention. Multi-key invariants (reset, round change, termination) run
// under this lock. Returns the token required to release.
func (s *Store) AcquireLock(ctx context.Context, gameID uuid.UUID) (string, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(2 * time.Second)

	for {
		ok, err := s.rdb.SetNX(ctx, lockKey(gameID), token, lockTTL).Result()
		if err != nil {
			return "", fmt.Errorf("acquiring lock for game %s: %w", gameID, err)
		}
		if ok {
			return token, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("acquiring lock for game %s: contended", gameID)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

// ReleaseLock frees the advisory lock if token still holds it. Releasing
// an expired or stolen lock is a no-op.
func (s *Store) ReleaseLock(ctx context.Context, gameID uuid.UUID, token string) error {
	err := releaseScript.Run(ctx, s.rdb, []string{lockKey(gameID)}, token).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("releasing lock for game %s: %w", gameID, err)
	}
	return nil
}
