package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// NewHTTPMux builds the operator HTTP surface (spec §6): tradingEnable,
// tradingDisable, emergencyStop, status, report, plus healthz/ws, mirroring
// main.go's /predator/kill, /api/set-target, /healthz route table. Every
// route except /healthz and /ws is bearer-gated by AuthMiddleware.
func NewHTTPMux(ctrl Controller, hub *Hub, token string) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if hub != nil {
		mux.HandleFunc("/ws", hub.HandleWebSocket)
	}

	gate := func(h http.HandlerFunc) http.Handler {
		return AuthMiddleware(token, h)
	}

	mux.Handle("/trading/enable", gate(func(w http.ResponseWriter, r *http.Request) {
		ctrl.EnableTrading()
		writeJSON(w, map[string]string{"status": "trading enabled"})
	}))

	mux.Handle("/trading/disable", gate(func(w http.ResponseWriter, r *http.Request) {
		ctrl.DisableTrading()
		writeJSON(w, map[string]string{"status": "trading disabled"})
	}))

	mux.Handle("/trading/emergency-stop", gate(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()
		if err := ctrl.EmergencyStop(ctx); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]string{"status": "emergency stop executed"})
	}))

	mux.Handle("/status", gate(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"report": ctrl.StatusReport()})
	}))

	mux.Handle("/report", gate(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"report": ctrl.DailyReport()})
	}))

	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
