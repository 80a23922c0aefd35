// Package metrics exposes the daemon's Prometheus instrumentation
// (SPEC_FULL.md A4), covering the scheduler's session throughput, the
// sync engine's per-status outcomes, the event bus's drop counter, and
// the distributed lock's contention.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsStarted counts sessions activated by the scheduler, by
	// priority (cmdline, default, connection, autosync, shutdown).
	SessionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncengine_sessions_started_total",
			Help: "Total sessions activated by the scheduler, by priority",
		},
		[]string{"priority"},
	)

	// SessionDuration observes wall-clock time from activation to
	// FinishWithReport, by final SyncML status code.
	SessionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "syncengine_session_duration_seconds",
			Help:    "Duration of a sync session from activation to completion",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"status"},
	)

	// SessionsQueued is a live gauge of sessions currently waiting in the
	// scheduler queue.
	SessionsQueued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "syncengine_sessions_queued",
			Help: "Sessions currently queued, not yet activated",
		},
	)

	// EventBusDropped counts events dropped by the in-process event bus
	// when a subscriber's bounded queue overflowed.
	EventBusDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "syncengine_eventbus_dropped_total",
			Help: "Events dropped due to a full subscriber queue",
		},
	)

	// LockContention counts distributed-lock acquisitions that had to
	// retry at least once before succeeding ("acquired"), and every
	// acquisition that gave up ("failed").
	LockContention = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncengine_lock_contention_total",
			Help: "Distributed lock acquisitions that encountered contention",
		},
		[]string{"outcome"}, // "acquired" | "failed"
	)

	// TransportRetries counts retried sends on the HTTP transport binding.
	TransportRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "syncengine_transport_retries_total",
			Help: "Transport sends retried after a transient failure",
		},
	)

	// AutoSyncEnqueued counts tasks the auto-sync manager handed to the
	// scheduler, by transport.
	AutoSyncEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncengine_autosync_enqueued_total",
			Help: "Auto-sync tasks enqueued, by required transport",
		},
		[]string{"transport"},
	)
)
