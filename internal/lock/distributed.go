// Package lock implements the Redis-backed distributed active-session lock
// used when the scheduler is deployed with a shared report store across
// more than one process (Standard profile, SPEC_FULL.md §4.5 "Active-session
// lock" / A7). A single-process deployment never touches Redis: the
// in-process mutex in the scheduler is authoritative there.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/syncevo/syncengine/internal/metrics"
	"github.com/syncevo/syncengine/internal/resilience"
)

// ErrNotHeld is returned by Release/Renew when the caller's token does not
// match (or no longer matches) the lock holder recorded in Redis.
var ErrNotHeld = errors.New("lock: not held by this token")

// DistributedLock scopes a mutual-exclusion lock to a peer configuration
// name, implemented with Redis SET NX EX and released only by the holder
// that set it (compare-and-delete via a Lua script to avoid releasing a
// lock acquired by someone else after our TTL expired).
type DistributedLock struct {
	client *redis.Client
	ttl    time.Duration
}

// New returns a DistributedLock over client, whose locks expire after ttl
// if never renewed (protects against a crashed holder wedging the lock
// forever).
func New(client *redis.Client, ttl time.Duration) *DistributedLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &DistributedLock{client: client, ttl: ttl}
}

func keyFor(peerConfigName string) string {
	return fmt.Sprintf("syncengine:lock:%s", peerConfigName)
}

// newToken generates a random value identifying this lock acquisition, so
// Release only deletes a key this holder actually set.
func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("lock: generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// TryAcquire attempts a single SET NX EX for peerConfigName, returning the
// caller's token on success or ("", false, nil) if another process holds
// it.
func (l *DistributedLock) TryAcquire(ctx context.Context, peerConfigName string) (token string, acquired bool, err error) {
	token, err = newToken()
	if err != nil {
		return "", false, err
	}
	ok, err := l.client.SetNX(ctx, keyFor(peerConfigName), token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("lock: acquire %q: %w", peerConfigName, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Acquire retries TryAcquire with backoff using the shared resilience retry
// policy (SPEC_FULL.md §4.6 / A-ambient): it returns once it succeeds, ctx
// is cancelled, or the policy's MaxAttempts are used up.
func (l *DistributedLock) Acquire(ctx context.Context, peerConfigName string) (string, error) {
	var token string
	attempts := 0
	policy := resilience.DefaultRetryPolicy
	err := policy.Do(ctx, func(ctx context.Context) error {
		attempts++
		t, ok, err := l.TryAcquire(ctx, peerConfigName)
		if err != nil {
			return err
		}
		if !ok {
			return lockHeldError{}
		}
		token = t
		return nil
	})
	if err != nil {
		metrics.LockContention.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("lock: could not acquire %q: %w", peerConfigName, err)
	}
	if attempts > 1 {
		metrics.LockContention.WithLabelValues("acquired").Inc()
	}
	return token, nil
}

// lockHeldError marks contention as retryable.
type lockHeldError struct{}

func (lockHeldError) Error() string  { return "lock: held by another process" }
func (lockHeldError) Temporary() bool { return true }

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// Release deletes the lock only if token still matches the current holder.
func (l *DistributedLock) Release(ctx context.Context, peerConfigName, token string) error {
	res, err := releaseScript.Run(ctx, l.client, []string{keyFor(peerConfigName)}, token).Int64()
	if err != nil {
		return fmt.Errorf("lock: release %q: %w", peerConfigName, err)
	}
	if res == 0 {
		return ErrNotHeld
	}
	return nil
}

var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`)

// Renew extends the TTL of a still-held lock, used by a long-running
// active session to avoid losing the lock to a competing process mid-sync.
func (l *DistributedLock) Renew(ctx context.Context, peerConfigName, token string) error {
	res, err := renewScript.Run(ctx, l.client, []string{keyFor(peerConfigName)}, token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("lock: renew %q: %w", peerConfigName, err)
	}
	if res == 0 {
		return ErrNotHeld
	}
	return nil
}
