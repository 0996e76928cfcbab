package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hongminglow/cuecast-be/internal/http/respond"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler returns uptime and dependency status.
type HealthHandler struct {
	startedAt time.Time
	deps      map[string]Pinger
}

// NewHealthHandler creates a health endpoint handler.
func NewHealthHandler(startedAt time.Time, deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{startedAt: startedAt, deps: deps}
}

// Register wires the handler into a router.
func (h *HealthHandler) Register(r chi.Router) {
	r.Get("/health", h.handle)
}

func (h *HealthHandler) handle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.deps))
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	message := "ok"
	if status != http.StatusOK {
		message = "degraded"
	}
	respond.JSON(w, status, message, map[string]any{
		"status": message,
		"uptime": time.Since(h.startedAt).Truncate(time.Second).String(),
		"checks": checks,
	})
}
