/*
events.go - Grid refresh bus

PURPOSE:
  After a reallocation touches weeks, dependent grid views only need to
  refresh the affected columns, not reload everything. The bus collects touched
  week keys per run and hands them to whoever is listening: in-process
  subscribers and the polling endpoint backed by a ring buffer.

DESIGN:
  - Implements workload.RefreshSink, so the engine can emit directly
  - Bounded ring buffer (newest wins) so an unpolled server never grows
  - Subscribers are invoked synchronously under no lock contention with
    emitters beyond the buffer append; keep callbacks fast

SEE ALSO:
  - workload/reallocation.go: The emitter
  - handlers.go:              GET /api/events/recent
*/
package api

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tschnepf/workload-tracker-sub005/allocation"
)

// RefreshEvent is one grid-refresh notification.
type RefreshEvent struct {
	ID              string
	Reason          string
	TouchedWeekKeys []allocation.WeekKey
	EmittedAt       time.Time
}

// RefreshBus buffers grid-refresh events and fans them out to subscribers.
type RefreshBus struct {
	mu          sync.RWMutex
	buffer      []RefreshEvent
	capacity    int
	subscribers []func(RefreshEvent)
}

const defaultBusCapacity = 256

func NewRefreshBus() *RefreshBus {
	return &RefreshBus{capacity: defaultBusCapacity}
}

// EmitGridRefresh implements workload.RefreshSink.
func (b *RefreshBus) EmitGridRefresh(touchedWeekKeys []allocation.WeekKey, reason string) {
	event := RefreshEvent{
		ID:              uuid.NewString(),
		Reason:          reason,
		TouchedWeekKeys: touchedWeekKeys,
		EmittedAt:       time.Now().UTC(),
	}

	b.mu.Lock()
	b.buffer = append(b.buffer, event)
	if len(b.buffer) > b.capacity {
		b.buffer = b.buffer[len(b.buffer)-b.capacity:]
	}
	subs := make([]func(RefreshEvent), len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.Unlock()

	for _, fn := range subs {
		fn(event)
	}
}

// Subscribe registers a callback for every future event.
func (b *RefreshBus) Subscribe(fn func(RefreshEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, fn)
}

// Recent returns up to limit events, newest first.
func (b *RefreshBus) Recent(limit int) []RefreshEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := len(b.buffer)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]RefreshEvent, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, b.buffer[i])
	}
	return out
}

// PruneBefore drops buffered events older than the cutoff and returns the
// number dropped.
func (b *RefreshBus) PruneBefore(cutoff time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.buffer[:0]
	pruned := 0
	for _, e := range b.buffer {
		if e.EmittedAt.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, e)
	}
	b.buffer = kept
	return pruned
}
