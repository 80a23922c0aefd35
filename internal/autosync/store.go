package autosync

import "context"

// TaskStore is the pluggable task-list backing: memory for a single
// process, redis for a scheduler sharing auto-sync state across replicas
// (SPEC_FULL.md §4.7: "a pluggable task-list store (memory for a single
// process, redis for a scheduler sharing auto-sync state across
// replicas)").
type TaskStore interface {
	// Add registers task under interval, replacing any existing task with
	// the same (peer, url) identity.
	Add(ctx context.Context, interval string, task Task) error
	// Remove drops task from interval's list, if present.
	Remove(ctx context.Context, interval string, task Task) error
	// List returns every task currently registered under interval.
	List(ctx context.Context, interval string) ([]Task, error)
	// Intervals returns every interval bucket that currently has at least
	// one task.
	Intervals(ctx context.Context) ([]string, error)
}
