package handlers

import (
	"fmt"
	"net/http"
	"sync/atomic"

	"prettyqr/internal/engine/sessions"
	"prettyqr/internal/engine/studio"
)

// Metrics are process-wide counters exported in the Prometheus text format.
type Metrics struct {
	SessionsCreated atomic.Int64
	Renders         atomic.Int64
	RenderFailures  atomic.Int64
	Clears          atomic.Int64
	Exports         atomic.Int64
	ExportFailures  atomic.Int64
	SessionsSwept   atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// Observe counts a pipeline event. It is installed as a pipeline event hook.
func (m *Metrics) Observe(evt studio.Event) {
	switch evt.Kind {
	case studio.EventRendered:
		m.Renders.Add(1)
	case studio.EventFailed:
		m.RenderFailures.Add(1)
	case studio.EventCleared:
		m.Clears.Add(1)
	}
}

type MetricsHandler struct {
	metrics  *Metrics
	registry *sessions.Registry
}

func NewMetricsHandler(metrics *Metrics, registry *sessions.Registry) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, registry: registry}
}

func (h *MetricsHandler) Export(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(w, "# HELP prettyqr_up Is the server up\n")
	fmt.Fprintf(w, "# TYPE prettyqr_up gauge\n")
	fmt.Fprintf(w, "prettyqr_up 1\n")

	fmt.Fprintf(w, "# TYPE prettyqr_sessions_active gauge\n")
	fmt.Fprintf(w, "prettyqr_sessions_active %d\n", h.registry.Len())

	counters := []struct {
		name  string
		value int64
	}{
		{"prettyqr_sessions_created_total", h.metrics.SessionsCreated.Load()},
		{"prettyqr_sessions_swept_total", h.metrics.SessionsSwept.Load()},
		{"prettyqr_renders_total", h.metrics.Renders.Load()},
		{"prettyqr_render_failures_total", h.metrics.RenderFailures.Load()},
		{"prettyqr_clears_total", h.metrics.Clears.Load()},
		{"prettyqr_exports_total", h.metrics.Exports.Load()},
		{"prettyqr_export_failures_total", h.metrics.ExportFailures.Load()},
	}
	for _, c := range counters {
		fmt.Fprintf(w, "# TYPE %s counter\n", c.name)
		fmt.Fprintf(w, "%s %d\n", c.name, c.value)
	}
}
