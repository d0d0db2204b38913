package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/migration"
	"github.com/straye-as/pfmt-tracker/internal/store"
)

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	store   *store.Store
	manager *migration.Manager
	logger  *zap.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(s *store.Store, manager *migration.Manager, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{store: s, manager: manager, logger: logger}
}

// Live answers as long as the process serves requests
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Ready checks that the document can be read and no migration is pending
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]interface{})
	allHealthy := true

	if err := h.store.Read(false); err != nil {
		h.logger.Error("document store health check failed", zap.Error(err))
		checks["store"] = map[string]interface{}{
			"status": "unhealthy",
			"error":  err.Error(),
			"path":   h.store.Path(),
		}
		allHealthy = false
	} else {
		checks["store"] = map[string]interface{}{
			"status": "healthy",
			"path":   h.store.Path(),
		}
	}

	if allHealthy {
		needed, err := h.manager.CheckMigrationNeeded(r.Context())
		switch {
		case err != nil:
			checks["migration"] = map[string]interface{}{"status": "unhealthy", "error": err.Error()}
			allHealthy = false
		case needed:
			checks["migration"] = map[string]interface{}{"status": "unhealthy", "state": h.manager.State()}
			allHealthy = false
		default:
			checks["migration"] = map[string]interface{}{"status": "healthy", "state": h.manager.State()}
		}
	}

	status, code := "healthy", http.StatusOK
	if !allHealthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}
