package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/codebytelabs/daytrader-engine/internal/eventbus"
)

func newTestEngine(cutoff string) *Engine {
	return New(Config{
		Watchlist:      []string{"AAPL", "MSFT"},
		EndOfDayCutoff: cutoff,
	}, nil, nil, nil, nil, nil, nil, nil, nil, nil, eventbus.New())
}

func TestEndOfDayCutoffReachedEmptyConfigNeverTriggers(t *testing.T) {
	e := newTestEngine("")
	assert.False(t, e.endOfDayCutoffReached())
}

func TestEndOfDayCutoffReachedPastCutoff(t *testing.T) {
	past := time.Now().Add(-time.Hour).Format("15:04")
	e := newTestEngine(past)
	assert.True(t, e.endOfDayCutoffReached())
}

func TestEndOfDayCutoffNotYetReached(t *testing.T) {
	future := time.Now().Add(time.Hour).Format("15:04")
	e := newTestEngine(future)
	assert.False(t, e.endOfDayCutoffReached())
}

func TestEnableDisableTradingTogglesState(t *testing.T) {
	e := newTestEngine("")
	assert.True(t, e.isTradingEnabled(), "trading starts enabled per New")

	e.DisableTrading()
	assert.False(t, e.isTradingEnabled())

	e.EnableTrading()
	assert.True(t, e.isTradingEnabled())
}

func TestStatusReportReflectsTradingStateAndPositionCount(t *testing.T) {
	e := newTestEngine("")
	report := e.StatusReport()
	assert.Contains(t, report, "true")
	assert.Contains(t, report, "0")
}

func TestDailyReportComputesWinRateFromMetrics(t *testing.T) {
	e := newTestEngine("")
	e.metricsSnap = metrics{TotalTrades: 4, Wins: 3}
	report := e.DailyReport()
	assert.Contains(t, report, "75.0%")
}

func TestDailyReportZeroTradesAvoidsDivideByZero(t *testing.T) {
	e := newTestEngine("")
	report := e.DailyReport()
	assert.Contains(t, report, "0.0%")
}

func TestLockForReturnsSameMutexForSameSymbol(t *testing.T) {
	e := newTestEngine("")
	a := e.lockFor("AAPL")
	b := e.lockFor("AAPL")
	assert.Same(t, a, b)
}

func TestLockForCreatesNewMutexForUnknownSymbol(t *testing.T) {
	e := newTestEngine("")
	l := e.lockFor("TSLA")
	assert.NotNil(t, l)
}
