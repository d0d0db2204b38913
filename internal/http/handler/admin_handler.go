package handler

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/migration"
	"github.com/straye-as/pfmt-tracker/internal/service"
	"github.com/straye-as/pfmt-tracker/internal/storage"
	"github.com/straye-as/pfmt-tracker/internal/store"
)

// AdminHandler exposes migration, integrity and backup operations
type AdminHandler struct {
	store         *store.Store
	manager       *migration.Manager
	runner        *migration.Runner
	vendorService *service.VendorService
	logger        *zap.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(s *store.Store, manager *migration.Manager, runner *migration.Runner, vendorService *service.VendorService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		store:         s,
		manager:       manager,
		runner:        runner,
		vendorService: vendorService,
		logger:        logger,
	}
}

// MigrationStatusResponse combines the manager state with the last run
type MigrationStatusResponse struct {
	domain.MigrationStatus
	LastReport *migration.Report `json:"lastReport,omitempty"`
}

// RestoreRequest names the backup object to restore
type RestoreRequest struct {
	Name string `json:"name"`
}

// MigrationStatus godoc
// @Summary Migration status
// @Tags Admin
// @Produce json
// @Success 200 {object} MigrationStatusResponse
// @Security BearerAuth
// @Router /admin/migration [get]
func (h *AdminHandler) MigrationStatus(w http.ResponseWriter, r *http.Request) {
	if _, err := h.manager.CheckMigrationNeeded(r.Context()); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	status, err := h.manager.Status(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, MigrationStatusResponse{
		MigrationStatus: status,
		LastReport:      h.manager.LastReport(),
	})
}

// RunMigration godoc
// @Summary Run legacy migration
// @Description Back up the document, migrate it to the relational shape and validate the result
// @Tags Admin
// @Produce json
// @Success 200 {object} migration.RunResult
// @Failure 500 {object} domain.APIError "Migration failed; the document was restored"
// @Security BearerAuth
// @Router /admin/migration [post]
func (h *AdminHandler) RunMigration(w http.ResponseWriter, r *http.Request) {
	result, err := h.runner.Migrate(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrMigrationFailed) {
			h.logger.Error("migration failed", zap.Error(err))
			respondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Integrity godoc
// @Summary Referential integrity report
// @Description Lists dangling and missing references and duplicate ids across all collections
// @Tags Admin
// @Produce json
// @Success 200 {object} migration.IntegrityReport
// @Security BearerAuth
// @Router /admin/integrity [get]
func (h *AdminHandler) Integrity(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.Snapshot()
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	report, err := migration.CheckIntegrity(doc)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// ListBackups godoc
// @Summary List pre-migration backups
// @Tags Admin
// @Produce json
// @Success 200 {array} storage.Object
// @Security BearerAuth
// @Router /admin/backups [get]
func (h *AdminHandler) ListBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := h.runner.Backups(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, backups)
}

// RestoreBackup godoc
// @Summary Restore a backup
// @Description Replace the document with a stored backup
// @Tags Admin
// @Accept json
// @Param request body RestoreRequest true "Backup object name"
// @Success 204
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Router /admin/backups/restore [post]
func (h *AdminHandler) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	var req RestoreRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		respondValidationError(w, domain.NewValidationError("name", "is required"))
		return
	}

	if err := h.runner.Restore(r.Context(), req.Name); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			respondWithError(w, http.StatusNotFound, "Backup not found")
			return
		}
		respondServiceError(w, h.logger, err)
		return
	}

	h.logger.Warn("document restored from backup", zap.String("backup", req.Name))
	w.WriteHeader(http.StatusNoContent)
}

// RefreshVendorMetadata godoc
// @Summary Recompute vendor rollups
// @Tags Admin
// @Success 204
// @Security BearerAuth
// @Router /admin/vendors/refresh-metadata [post]
func (h *AdminHandler) RefreshVendorMetadata(w http.ResponseWriter, r *http.Request) {
	if err := h.vendorService.RefreshMetadata(r.Context()); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
