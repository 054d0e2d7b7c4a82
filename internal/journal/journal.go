// Package journal provides the append-only JournalSink interface (spec §1,
// §4.10) plus a thin optional Firestore-backed implementation. The
// relational schema and query surface are out of scope — this is an example
// sink, not a store.
package journal

import (
	"context"
	"time"

	"github.com/codebytelabs/daytrader-engine/internal/eventbus"
)

// Row is one append-only journal entry, derived from an EventBus event.
type Row struct {
	Kind      string
	Symbol    string
	Timestamp time.Time
	Payload   interface{}
}

// Sink is the journal's only contract: append rows, never update or delete.
type Sink interface {
	Append(ctx context.Context, row Row) error
}

// Recorder subscribes to the EventBus and appends every event to a Sink,
// logging but not failing the engine on a write error (journal durability
// is best-effort, never a suspension point for trading logic — spec §4.10).
type Recorder struct {
	sink Sink
}

func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink}
}

func (r *Recorder) Subscribe(ctx context.Context, bus *eventbus.Bus) {
	if r == nil || r.sink == nil {
		return
	}
	sub := bus.Subscribe("journal")
	go func() {
		defer bus.Unsubscribe("journal")
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.Ch:
				if !ok {
					return
				}
				writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := r.sink.Append(writeCtx, Row{Kind: string(ev.Kind), Symbol: ev.Symbol, Timestamp: ev.Timestamp, Payload: ev.Payload})
				cancel()
				if err != nil {
					bus.Logf("warn", "JOURNAL: append failed for %s: %v", ev.Kind, err)
				}
			}
		}
	}()
}
