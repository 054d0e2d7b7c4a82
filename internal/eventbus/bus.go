// Package eventbus fans state-change events out to subscribers. The shape —
// a per-subscriber buffered channel that drops rather than blocks — is lifted
// from hub.go's Hub.Broadcast (write-or-drop-and-disconnect) and
// signal_aggregator.go's bucketed, per-symbol cooldown-gated fan-out.
package eventbus

import (
	"fmt"
	"log"
	"sync"
)

const subscriberBuffer = 256

// Subscriber receives events on Ch. If the bus can't deliver within one
// non-blocking send it drops the event for that subscriber and counts it —
// slow subscribers must never back-pressure the engine (spec §4.10).
type Subscriber struct {
	Name string
	Ch   chan Event

	dropped uint64
}

// Bus is the lock-free-for-readers, per-subscriber-buffered fan-out point.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]*Subscriber
}

func New() *Bus {
	return &Bus{subs: make(map[string]*Subscriber)}
}

// Subscribe registers a new subscriber and returns its receive channel.
func (b *Bus) Subscribe(name string) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &Subscriber{Name: name, Ch: make(chan Event, subscriberBuffer)}
	b.subs[name] = sub
	return sub
}

func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[name]; ok {
		close(sub.Ch)
		delete(b.subs, name)
	}
}

// Publish fans an event out to every subscriber without blocking the caller.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		select {
		case sub.Ch <- ev:
		default:
			sub.dropped++
			if sub.dropped%100 == 1 {
				log.Printf("⚠️ EVENTBUS: subscriber %s dropping events (total dropped: %d)", sub.Name, sub.dropped)
			}
		}
	}
}

// Logf publishes an EngineLog event and writes to the standard logger,
// matching the teacher's convention of keeping log.Printf as the ground
// truth while also making the line visible to bus subscribers (journal, UI).
func (b *Bus) Logf(level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Println(msg)
	b.Publish(Event{Kind: KindEngineLog, Payload: EngineLogPayload{Level: level, Message: msg}})
}
