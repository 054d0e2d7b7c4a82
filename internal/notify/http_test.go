package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	enabled      bool
	disabled     bool
	emergencyErr error
	statusReport string
	dailyReport  string
}

func (f *fakeController) EnableTrading()  { f.enabled = true }
func (f *fakeController) DisableTrading() { f.disabled = true }
func (f *fakeController) EmergencyStop(ctx context.Context) error {
	return f.emergencyErr
}
func (f *fakeController) StatusReport() string { return f.statusReport }
func (f *fakeController) DailyReport() string  { return f.dailyReport }

func TestHealthzIsNeverGated(t *testing.T) {
	mux := NewHTTPMux(&fakeController{}, nil, "secret")
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTradingEnableRequiresToken(t *testing.T) {
	ctrl := &fakeController{}
	mux := NewHTTPMux(ctrl, nil, "secret")

	req := httptest.NewRequest(http.MethodPost, "/trading/enable", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, ctrl.enabled)

	req2 := httptest.NewRequest(http.MethodPost, "/trading/enable", nil)
	req2.Header.Set("Authorization", "Bearer secret")
	w2 := httptest.NewRecorder()
	mux.ServeHTTP(w2, req2)
	assert.Equal(t, http.StatusOK, w2.Code)
	assert.True(t, ctrl.enabled)
}

func TestTradingDisableCallsController(t *testing.T) {
	ctrl := &fakeController{}
	mux := NewHTTPMux(ctrl, nil, "")

	req := httptest.NewRequest(http.MethodPost, "/trading/disable", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, ctrl.disabled)
}

func TestEmergencyStopErrorReturns500(t *testing.T) {
	ctrl := &fakeController{emergencyErr: errors.New("broker unreachable")}
	mux := NewHTTPMux(ctrl, nil, "")

	req := httptest.NewRequest(http.MethodPost, "/trading/emergency-stop", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestStatusAndReportReturnControllerStrings(t *testing.T) {
	ctrl := &fakeController{statusReport: "all quiet", dailyReport: "5 trades, +2.1%"}
	mux := NewHTTPMux(ctrl, nil, "")

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "all quiet")

	req2 := httptest.NewRequest(http.MethodGet, "/report", nil)
	w2 := httptest.NewRecorder()
	mux.ServeHTTP(w2, req2)
	assert.Contains(t, w2.Body.String(), "5 trades")
}

func TestWSRouteOmittedWhenHubNil(t *testing.T) {
	mux := NewHTTPMux(&fakeController{}, nil, "")
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
