package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"prettyqr/internal/engine/qr"
	"prettyqr/internal/engine/render"
	"prettyqr/internal/engine/sessions"
)

type HealthHandler struct {
	encoder  *render.Encoder
	registry *sessions.Registry
}

func NewHealthHandler(encoder *render.Encoder, registry *sessions.Registry) *HealthHandler {
	return &HealthHandler{encoder: encoder, registry: registry}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	// Encode a small symbol end to end.
	_, err := h.encoder.ToPNG("health", render.Options{
		Width:  128,
		Margin: render.DefaultMargin,
		Dark:   "#000000",
		Light:  "#ffffff",
		Level:  qr.LevelMedium,
	})
	if err != nil {
		checks["encoder"] = "unhealthy: " + err.Error()
	} else {
		checks["encoder"] = "healthy"
	}

	status := "healthy"
	for _, check := range checks {
		if len(check) >= 9 && check[:9] == "unhealthy" {
			status = "degraded"
			break
		}
	}

	response := struct {
		Status    string            `json:"status"`
		Timestamp int64             `json:"timestamp"`
		Backend   string            `json:"backend"`
		Sessions  int               `json:"sessions"`
		Checks    map[string]string `json:"checks"`
	}{
		Status:    status,
		Timestamp: time.Now().Unix(),
		Backend:   h.encoder.Backend(),
		Sessions:  h.registry.Len(),
		Checks:    checks,
	}

	statusCode := http.StatusOK
	if status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}
