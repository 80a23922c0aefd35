package autosync

import (
	"context"
	"sync"
)

// MemoryStore is the single-process TaskStore backing.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]map[string]Task
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]map[string]Task)}
}

func (s *MemoryStore) Add(_ context.Context, interval string, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.buckets[interval]
	if !ok {
		bucket = make(map[string]Task)
		s.buckets[interval] = bucket
	}
	bucket[task.key()] = task
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, interval string, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bucket, ok := s.buckets[interval]; ok {
		delete(bucket, task.key())
		if len(bucket) == 0 {
			delete(s.buckets, interval)
		}
	}
	return nil
}

func (s *MemoryStore) List(_ context.Context, interval string) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.buckets[interval]
	tasks := make([]Task, 0, len(bucket))
	for _, t := range bucket {
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (s *MemoryStore) Intervals(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	intervals := make([]string, 0, len(s.buckets))
	for interval := range s.buckets {
		intervals = append(intervals, interval)
	}
	return intervals, nil
}
