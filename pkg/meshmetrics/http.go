package meshmetrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthStatus is the liveness/readiness verdict served at /healthz.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// HealthResponse is the JSON body served at /healthz.
type HealthResponse struct {
	Status  HealthStatus `json:"status"`
	Uptime  string       `json:"uptime"`
	Version string       `json:"version"`
}

// Handler builds the chi router serving /healthz and /metrics, the
// operator surface named in spec.md §6.2's external interfaces.
func Handler(collector *Collector, version string) http.Handler {
	startedAt := time.Now()
	var ready atomic.Bool
	ready.Store(true)

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		status := StatusHealthy
		code := http.StatusOK
		if !ready.Load() {
			status = StatusUnhealthy
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(HealthResponse{
			Status:  status,
			Uptime:  time.Since(startedAt).String(),
			Version: version,
		})
	})
	r.Handle("/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}))
	return r
}
