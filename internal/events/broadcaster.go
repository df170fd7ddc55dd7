package events

import (
	"context"
	"sync"
	"sync/atomic"

	"ehs/internal/enforcement/models"
)

// Broadcaster fans events out to in-process subscribers of a workflow. A
// subscriber that falls behind loses events rather than blocking publishers.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[models.Workflow]map[int]chan Event
	next    int
	closed  bool
	dropped atomic.Int64
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[models.Workflow]map[int]chan Event)}
}

// Subscribe returns a channel of events for workflow and a cancel func that
// closes it.
func (b *Broadcaster) Subscribe(workflow models.Workflow, buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, max(buffer, 1))
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	key := b.next
	b.next++
	if b.subs[workflow] == nil {
		b.subs[workflow] = make(map[int]chan Event)
	}
	b.subs[workflow][key] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[workflow][key]; ok {
				delete(b.subs[workflow], key)
				close(sub)
			}
		})
	}
}

func (b *Broadcaster) Publish(_ context.Context, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[event.Workflow] {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
	return nil
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (b *Broadcaster) Dropped() int64 {
	return b.dropped.Load()
}

// Close ends every subscription.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for workflow, subs := range b.subs {
		for key, ch := range subs {
			close(ch)
			delete(subs, key)
		}
		delete(b.subs, workflow)
	}
}
