package uibus

import (
	"sync"

	"panoptikon.dev/panoptikon/internal/clock"
)

// Bus is the in-process event bus described in the UI Broadcast Bus design:
// a single publisher-facing API fanning out to many subscribers, each with a
// bounded channel. A full subscriber channel loses its oldest queued event
// to make room rather than blocking the publisher; per-publisher ordering is
// preserved because Publish holds the read lock for the whole fan-out.
type Bus struct {
	mu    sync.RWMutex
	subs  map[Kind][]chan Event
	global []chan Event
	clock clock.Clock

	published uint64
	dropped   uint64
}

const defaultBufSize = 256

// New creates an empty Bus using clk as the source of OccurredAt timestamps
// when a caller doesn't set one explicitly.
func New(clk clock.Clock) *Bus {
	return &Bus{
		subs:  make(map[Kind][]chan Event),
		clock: clk,
	}
}

// Publish fans e out to every subscriber of e.Kind plus every global
// subscriber. Non-blocking: a subscriber whose buffer is full has its oldest
// queued event dropped to make room, never delays other subscribers or the
// caller.
func (b *Bus) Publish(e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = b.clock.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	b.published++

	deliver := func(ch chan Event) {
		for {
			select {
			case ch <- e:
				return
			default:
				select {
				case <-ch:
					b.dropped++
				default:
				}
			}
		}
	}
	for _, ch := range b.subs[e.Kind] {
		deliver(ch)
	}
	for _, ch := range b.global {
		deliver(ch)
	}
}

// Subscribe returns a channel receiving events of the given kinds (or every
// kind, if none are given). The caller must keep draining it; a subscriber
// that falls behind loses events rather than stalling the bus.
func (b *Bus) Subscribe(kinds ...Kind) <-chan Event {
	ch := make(chan Event, defaultBufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(kinds) == 0 {
		b.global = append(b.global, ch)
	} else {
		for _, k := range kinds {
			b.subs[k] = append(b.subs[k], ch)
		}
	}
	return ch
}

// Unsubscribe removes ch from every subscription. It does not close ch.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.global = removeFromSlice(b.global, ch)
	for k, subs := range b.subs {
		b.subs[k] = removeFromSlice(subs, ch)
	}
}

// Stats returns cumulative publish/drop counters, useful for an admin
// health endpoint.
func (b *Bus) Stats() (published, dropped uint64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.published, b.dropped
}

func removeFromSlice(slice []chan Event, target <-chan Event) []chan Event {
	out := make([]chan Event, 0, len(slice))
	for _, ch := range slice {
		if ch != target {
			out = append(out, ch)
		}
	}
	return out
}
