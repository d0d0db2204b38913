package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/service"
)

// AssignmentHandler handles HTTP requests for project access assignments
type AssignmentHandler struct {
	assignmentService *service.AssignmentService
	logger            *zap.Logger
}

// NewAssignmentHandler creates a new assignment handler
func NewAssignmentHandler(assignmentService *service.AssignmentService, logger *zap.Logger) *AssignmentHandler {
	return &AssignmentHandler{
		assignmentService: assignmentService,
		logger:            logger,
	}
}

// List godoc
// @Summary List project assignments
// @Description Every assignment of the project, active or not
// @Tags Assignments
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {array} domain.ProjectAssignment
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Router /projects/{id}/assignments [get]
func (h *AssignmentHandler) List(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.assignmentService.ListForProject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, assignments)
}

// Grant godoc
// @Summary Grant project access
// @Description Assign a user to the project. Permissions follow from the access level.
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param request body domain.GrantAccessRequest true "Grant"
// @Success 201 {object} domain.ProjectAssignment
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError "Caller may not grant access"
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Router /projects/{id}/assignments [post]
func (h *AssignmentHandler) Grant(w http.ResponseWriter, r *http.Request) {
	var req domain.GrantAccessRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validateBody(w, &req) {
		return
	}

	assignment, err := h.assignmentService.Grant(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, assignment)
}

// Revoke godoc
// @Summary Revoke project access
// @Tags Assignments
// @Param id path string true "Project ID"
// @Param assignmentId path int true "Assignment ID"
// @Success 204
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Router /projects/{id}/assignments/{assignmentId} [delete]
func (h *AssignmentHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	assignmentID, ok := parseIntParam(chi.URLParam(r, "assignmentId"))
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid assignment ID: must be a positive integer")
		return
	}

	if err := h.assignmentService.Revoke(r.Context(), chi.URLParam(r, "id"), assignmentID); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
