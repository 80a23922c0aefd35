// Package eventbus implements the in-process publish/subscribe fan-out
// used for every server-originated signal: SessionChanged, Presence,
// TemplatesChanged, ConfigChanged, InfoRequest, LogOutput, per-session
// StatusChanged/ProgressChanged, and per-connection Reply/Abort
// (SPEC_FULL.md §4.5 "Notification fan-out (A6)"). The IPC wire binding
// (A6) subscribes and forwards events to attached WebSocket clients.
package eventbus

import (
	"sync"
	"sync/atomic"

	"github.com/syncevo/syncengine/internal/metrics"
)

// Event is one published signal.
type Event struct {
	Seq     uint64
	Topic   string
	Payload any
}

// subscriber is one consumer's bounded mailbox.
type subscriber struct {
	id      string
	ch      chan Event
	dropped *atomic.Uint64
}

// Bus fans published events out to every subscriber's bounded channel,
// dropping the oldest queued event on overflow rather than blocking the
// publisher (SPEC_FULL.md §4.5: "bounded per-subscriber queue, drop-oldest
// on overflow with a counted metric").
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	seq         atomic.Uint64
	queueSize   int
}

// New returns a Bus whose per-subscriber queues hold queueSize events.
func New(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Bus{subscribers: make(map[string]*subscriber), queueSize: queueSize}
}

// Subscribe registers id for delivery and returns its event channel. A
// second Subscribe with the same id replaces the first, closing its
// channel.
func (b *Bus) Subscribe(id string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.subscribers[id]; ok {
		close(old.ch)
	}
	sub := &subscriber{id: id, ch: make(chan Event, b.queueSize), dropped: &atomic.Uint64{}}
	b.subscribers[id] = sub
	return sub.ch
}

// Unsubscribe removes id and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subscribers[id]; ok {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}

// Dropped returns how many events were dropped for id due to a full queue.
func (b *Bus) Dropped(id string) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if sub, ok := b.subscribers[id]; ok {
		return sub.dropped.Load()
	}
	return 0
}

// Publish fans payload out to every subscriber under topic, assigning it
// the next monotonic sequence number.
func (b *Bus) Publish(topic string, payload any) {
	evt := Event{Seq: b.seq.Add(1), Topic: topic, Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		select {
		case sub.ch <- evt:
		default:
			// queue full: drop the oldest event to make room, counting
			// the loss, rather than blocking the publisher.
			select {
			case <-sub.ch:
				sub.dropped.Add(1)
				metrics.EventBusDropped.Inc()
			default:
			}
			select {
			case sub.ch <- evt:
			default:
				sub.dropped.Add(1)
				metrics.EventBusDropped.Inc()
			}
		}
	}
}

// SubscriberCount reports how many subscribers are currently registered.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
