package journal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebytelabs/daytrader-engine/internal/eventbus"
)

type fakeSink struct {
	mu   sync.Mutex
	rows []Row
	err  error
}

func (f *fakeSink) Append(ctx context.Context, row Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, row)
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func TestNilSinkSubscribeIsNoop(t *testing.T) {
	r := NewRecorder(nil)
	bus := eventbus.New()
	r.Subscribe(context.Background(), bus)

	bus.Publish(eventbus.Event{Kind: eventbus.KindEngineLog, Symbol: "AAPL"})
	time.Sleep(50 * time.Millisecond) // nothing should happen; just confirm no panic
}

func TestRecorderAppendsPublishedEvents(t *testing.T) {
	sink := &fakeSink{}
	r := NewRecorder(sink)
	bus := eventbus.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Subscribe(ctx, bus)

	bus.Publish(eventbus.Event{Kind: eventbus.KindOrderFilled, Symbol: "AAPL", Timestamp: time.Now()})

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "AAPL", sink.rows[0].Symbol)
}

func TestRecorderAppendFailureDoesNotStopSubsequentEvents(t *testing.T) {
	sink := &fakeSink{err: errors.New("write failed")}
	r := NewRecorder(sink)
	bus := eventbus.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Subscribe(ctx, bus)

	bus.Publish(eventbus.Event{Kind: eventbus.KindOrderFilled, Symbol: "AAPL", Timestamp: time.Now()})
	time.Sleep(50 * time.Millisecond)

	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()

	bus.Publish(eventbus.Event{Kind: eventbus.KindOrderFilled, Symbol: "MSFT", Timestamp: time.Now()})
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 10*time.Millisecond)
}
