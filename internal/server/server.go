// Package server assembles the gateway's HTTP surface.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pairbridge/gateway/internal/config"
	"github.com/pairbridge/gateway/internal/gateway"
	"github.com/pairbridge/gateway/internal/serverstate"
)

// New constructs the HTTP handler for the gateway: the websocket connect
// endpoint, health/state endpoints, and metrics when they share the main port.
func New(cfg config.GatewayConfig, rt *gateway.Runtime, state *serverstate.Tracker) http.Handler {
	r := chi.NewRouter()
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}

	preg := prometheus.NewRegistry()
	gateway.RegisterMetrics(preg)

	r.Get("/ws", rt.Server().WSHandler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/api/state", stateHandler(rt, state))

	if cfg.MetricsAddr == fmt.Sprintf(":%d", cfg.Port) {
		r.Handle("/metrics", promhttp.HandlerFor(preg, promhttp.HandlerOpts{}))
	}

	return r
}

// stateHandler reports the live snapshot for operators: status, session
// count, and registered instances.
func stateHandler(rt *gateway.Runtime, state *serverstate.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		state.Update(rt.Server().Sessions().Count(), rt.InstanceIDs())
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(state.Snapshot())
	}
}
