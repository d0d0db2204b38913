package handler

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/service"
)

type ProjectHandler struct {
	projectService *service.ProjectService
	logger         *zap.Logger
}

func NewProjectHandler(projectService *service.ProjectService, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{
		projectService: projectService,
		logger:         logger,
	}
}

// List godoc
// @Summary List projects
// @Description Paginated list of hydrated projects visible to the caller
// @Tags Projects
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Items per page (max 200)" default(20)
// @Param status query string false "Filter by status" Enums(Active, On Hold, Completed, Cancelled)
// @Param ownerId query int false "Filter by owner"
// @Param region query string false "Filter by location region"
// @Param sortBy query string false "Sort field"
// @Param sortOrder query string false "Sort order" Enums(asc, desc)
// @Success 200 {object} domain.PaginatedResponse{data=[]domain.ProjectWithRelationships}
// @Failure 401 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Router /projects [get]
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := &domain.ProjectFilters{
		Status: domain.ProjectStatus(r.URL.Query().Get("status")),
		Region: r.URL.Query().Get("region"),
	}
	if raw := r.URL.Query().Get("ownerId"); raw != "" {
		ownerID, ok := parseIntParam(raw)
		if !ok {
			respondWithError(w, http.StatusBadRequest, "Invalid ownerId: must be a positive integer")
			return
		}
		filters.OwnerID = ownerID
	}

	result, err := h.projectService.List(r.Context(), filters, parseListParams(r))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Create godoc
// @Summary Create project
// @Description Create a project with its funding lines. The caller becomes owner unless ownerId is given.
// @Tags Projects
// @Accept json
// @Produce json
// @Param request body domain.CreateProjectRequest true "Project data"
// @Success 201 {object} domain.ProjectWithRelationships
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Security BearerAuth
// @Router /projects [post]
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validateBody(w, &req) {
		return
	}

	project, err := h.projectService.Create(r.Context(), &req)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	w.Header().Set("Location", "/api/v1/projects/"+url.PathEscape(project.ID))
	respondJSON(w, http.StatusCreated, project)
}

// GetByID godoc
// @Summary Get project by ID
// @Description Project with owner, vendors, funding lines, change orders, files and assignments
// @Tags Projects
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {object} domain.ProjectWithRelationships
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Router /projects/{id} [get]
func (h *ProjectHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	project, err := h.projectService.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, project)
}

// Update godoc
// @Summary Update project
// @Description Merge the given fields into the project. Nested groups are merged, not replaced.
// @Tags Projects
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param request body object true "Fields to change"
// @Success 200 {object} domain.ProjectWithRelationships
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Router /projects/{id} [patch]
func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if !decodeJSON(w, r, &patch) {
		return
	}
	if len(patch) == 0 {
		respondWithError(w, http.StatusBadRequest, "Request body must contain at least one field")
		return
	}

	project, err := h.projectService.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, project)
}

// Delete godoc
// @Summary Delete project
// @Description Remove a project and retire every row that references it. Owner or universal role only.
// @Tags Projects
// @Param id path string true "Project ID"
// @Success 204
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Router /projects/{id} [delete]
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.projectService.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AddChangeOrder godoc
// @Summary Add change order
// @Description Record a pending change order on the project
// @Tags Change Orders
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param request body domain.ChangeOrder true "Change order"
// @Success 201 {object} domain.ChangeOrder
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Security BearerAuth
// @Router /projects/{id}/change-orders [post]
func (h *ProjectHandler) AddChangeOrder(w http.ResponseWriter, r *http.Request) {
	var co domain.ChangeOrder
	if !decodeJSON(w, r, &co) {
		return
	}

	created, err := h.projectService.AddChangeOrder(r.Context(), chi.URLParam(r, "id"), &co)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, created)
}

// ApproveChangeOrder godoc
// @Summary Approve change order
// @Tags Change Orders
// @Produce json
// @Param id path string true "Project ID"
// @Param changeOrderId path int true "Change order ID"
// @Success 200 {object} domain.ChangeOrder
// @Failure 403 {object} domain.APIError
// @Failure 409 {object} domain.APIError "Already decided"
// @Security BearerAuth
// @Router /projects/{id}/change-orders/{changeOrderId}/approve [post]
func (h *ProjectHandler) ApproveChangeOrder(w http.ResponseWriter, r *http.Request) {
	h.decideChangeOrder(w, r, true)
}

// RejectChangeOrder godoc
// @Summary Reject change order
// @Tags Change Orders
// @Produce json
// @Param id path string true "Project ID"
// @Param changeOrderId path int true "Change order ID"
// @Success 200 {object} domain.ChangeOrder
// @Failure 403 {object} domain.APIError
// @Failure 409 {object} domain.APIError "Already decided"
// @Security BearerAuth
// @Router /projects/{id}/change-orders/{changeOrderId}/reject [post]
func (h *ProjectHandler) RejectChangeOrder(w http.ResponseWriter, r *http.Request) {
	h.decideChangeOrder(w, r, false)
}

func (h *ProjectHandler) decideChangeOrder(w http.ResponseWriter, r *http.Request, approve bool) {
	coID, ok := parseIntParam(chi.URLParam(r, "changeOrderId"))
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid change order ID")
		return
	}

	co, err := h.projectService.DecideChangeOrder(r.Context(), chi.URLParam(r, "id"), coID, approve)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("change order decided",
		zap.String("project_id", co.ProjectID),
		zap.Int("change_order_id", co.ID),
		zap.String("status", string(co.Status)),
		zap.Bool("approve", approve))
	respondJSON(w, http.StatusOK, co)
}

// RetireChangeOrder godoc
// @Summary Retire change order
// @Tags Change Orders
// @Param id path string true "Project ID"
// @Param changeOrderId path int true "Change order ID"
// @Success 204
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Router /projects/{id}/change-orders/{changeOrderId} [delete]
func (h *ProjectHandler) RetireChangeOrder(w http.ResponseWriter, r *http.Request) {
	coID, ok := parseIntParam(chi.URLParam(r, "changeOrderId"))
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid change order ID")
		return
	}

	if err := h.projectService.RetireChangeOrder(r.Context(), chi.URLParam(r, "id"), coID); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RetireFundingLine godoc
// @Summary Retire funding line
// @Tags Funding Lines
// @Param id path string true "Project ID"
// @Param lineId path int true "Funding line ID"
// @Success 204
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Router /projects/{id}/funding-lines/{lineId} [delete]
func (h *ProjectHandler) RetireFundingLine(w http.ResponseWriter, r *http.Request) {
	lineID, ok := parseIntParam(chi.URLParam(r, "lineId"))
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid funding line ID")
		return
	}

	if err := h.projectService.RetireFundingLine(r.Context(), chi.URLParam(r, "id"), lineID); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
