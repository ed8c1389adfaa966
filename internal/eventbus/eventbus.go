// Package eventbus implements the Event Bus (spec.md §4.7 / C9): a bounded,
// in-process pub/sub generalizing the teacher's orchestrator.Hub from a
// single ad-hoc Event shape and a hand-coalesced token stream to the full 14
// typed events of spec.md §3, with an explicit backlog cap and per-publisher
// ordering guarantee instead of an unbounded fan-out channel per subscriber.
package eventbus

import (
	"sync"

	"go.uber.org/zap"

	"github.com/example/agent-orchestrator/internal/models"
)

// DefaultBacklog is the default per-subscriber channel capacity before a
// publish is dropped and a subscriber_lagged warning is logged.
const DefaultBacklog = 1000

type subscriber struct {
	ch     chan models.Event
	taskID string // "" subscribes to every task
}

// Bus is a bounded, in-process publish/subscribe hub keyed by task id.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]*subscriber
	nextID  int
	backlog int
	log     *zap.Logger
}

// New returns a Bus with the given per-subscriber backlog cap (DefaultBacklog
// if <= 0). A nil logger is replaced with zap.NewNop().
func New(backlog int, log *zap.Logger) *Bus {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{subs: map[int]*subscriber{}, backlog: backlog, log: log}
}

// Subscribe registers a new subscriber for one task's events (or every
// task's events, if taskID is ""). It returns the channel to range over and
// an unsubscribe function that must be called exactly once.
func (b *Bus) Subscribe(taskID string) (<-chan models.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan models.Event, b.backlog), taskID: taskID}
	b.subs[id] = sub

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub.ch)
		}
	}
	return sub.ch, unsubscribe
}

// Publish delivers ev to every matching subscriber. Publishes for the same
// task from a single goroutine are observed by each subscriber in the order
// they were published, since delivery to a given subscriber's channel is a
// single buffered send per call and Publish never reorders across calls.
// A full subscriber channel causes that subscriber's event to be dropped
// (never blocking the publisher) and logs subscriber_lagged.
func (b *Bus) Publish(ev models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, sub := range b.subs {
		if sub.taskID != "" && sub.taskID != ev.TaskID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			b.log.Warn("subscriber_lagged",
				zap.Int("subscriber_id", id),
				zap.String("task_id", ev.TaskID),
				zap.String("event_type", string(ev.Type)),
			)
		}
	}
}

// SubscriberCount returns the number of currently registered subscribers,
// for diagnostics and tests.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
