package autosync

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the TaskStore backing shared across scheduler replicas
// (SPEC_FULL.md §4.7), mirroring the dual in-memory/Redis split used by
// the active-session lock (§4.5/A7) and report store (A5).
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore returns a RedisStore namespacing its keys under prefix
// (e.g. "autosync:").
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "autosync:"
	}
	return &RedisStore{client: client, keyPrefix: prefix}
}

func (s *RedisStore) bucketKey(interval string) string {
	return s.keyPrefix + "tasks:" + interval
}

func (s *RedisStore) intervalsKey() string {
	return s.keyPrefix + "intervals"
}

func encodeTask(t Task) string {
	return fmt.Sprintf("%s\x1f%s\x1f%d", t.Peer, t.URL, int64(t.Delay))
}

func decodeTask(s string) (Task, error) {
	parts := strings.Split(s, "\x1f")
	if len(parts) != 3 {
		return Task{}, fmt.Errorf("autosync: malformed task record %q", s)
	}
	delayNanos, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return Task{}, fmt.Errorf("autosync: malformed task delay in %q: %w", s, err)
	}
	return Task{Peer: parts[0], URL: parts[1], Delay: time.Duration(delayNanos)}, nil
}

func (s *RedisStore) Add(ctx context.Context, interval string, task Task) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.bucketKey(interval), task.key(), encodeTask(task))
	pipe.SAdd(ctx, s.intervalsKey(), interval)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Remove(ctx context.Context, interval string, task Task) error {
	if err := s.client.HDel(ctx, s.bucketKey(interval), task.key()).Err(); err != nil {
		return err
	}
	remaining, err := s.client.HLen(ctx, s.bucketKey(interval)).Result()
	if err != nil {
		return err
	}
	if remaining == 0 {
		return s.client.SRem(ctx, s.intervalsKey(), interval).Err()
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, interval string) ([]Task, error) {
	values, err := s.client.HGetAll(ctx, s.bucketKey(interval)).Result()
	if err != nil {
		return nil, err
	}
	tasks := make([]Task, 0, len(values))
	for _, v := range values {
		task, err := decodeTask(v)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (s *RedisStore) Intervals(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, s.intervalsKey()).Result()
}
