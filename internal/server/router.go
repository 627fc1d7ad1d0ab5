package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/BaSui01/visionflow/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Routes are the handlers mounted on the worker's HTTP server.
type Routes struct {
	// Rooms serves GET /rooms/{room}/ws.
	Rooms http.Handler

	// Checks are run by /readyz, keyed by dependency name.
	Checks map[string]ReadinessCheck

	// Metrics exposes /metrics when set. Defaults to the Prometheus
	// default gatherer.
	Metrics http.Handler
}

// NewHandler builds the mux and wraps it with recovery, logging and request
// metrics.
func NewHandler(routes Routes, collector *metrics.Collector, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "http_router"))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /readyz", readyHandler(routes.Checks))

	metricsHandler := routes.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	mux.Handle("GET /metrics", metricsHandler)

	if routes.Rooms != nil {
		mux.Handle("GET /rooms/{room}/ws", routes.Rooms)
	}

	return Chain(mux,
		RequestID(),
		Recovery(logger),
		RequestLogger(logger),
		Metrics(collector),
	)
}

func readyHandler(checks map[string]ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		failed := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
