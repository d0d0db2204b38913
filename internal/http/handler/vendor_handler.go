package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/service"
)

// VendorHandler serves the vendor directory
type VendorHandler struct {
	vendorService *service.VendorService
	logger        *zap.Logger
}

// NewVendorHandler creates a new vendor handler
func NewVendorHandler(vendorService *service.VendorService, logger *zap.Logger) *VendorHandler {
	return &VendorHandler{
		vendorService: vendorService,
		logger:        logger,
	}
}

// List godoc
// @Summary List vendors
// @Tags Vendors
// @Produce json
// @Param search query string false "Case-insensitive name filter"
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Items per page (max 200)" default(20)
// @Param sortBy query string false "Sort field" Enums(name, vendorType, createdAt, updatedAt)
// @Param sortOrder query string false "Sort order" Enums(asc, desc)
// @Success 200 {object} domain.PaginatedResponse{data=[]domain.Vendor}
// @Security BearerAuth
// @Router /vendors [get]
func (h *VendorHandler) List(w http.ResponseWriter, r *http.Request) {
	result, err := h.vendorService.List(r.Context(), r.URL.Query().Get("search"), parseListParams(r))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Create godoc
// @Summary Create vendor
// @Description Register a vendor. Names must be unique. Requires project management rights.
// @Tags Vendors
// @Accept json
// @Produce json
// @Param request body domain.CreateVendorRequest true "Vendor data"
// @Success 201 {object} domain.Vendor
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Security BearerAuth
// @Router /vendors [post]
func (h *VendorHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateVendorRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validateBody(w, &req) {
		return
	}

	vendor, err := h.vendorService.Create(r.Context(), &req)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	w.Header().Set("Location", "/api/v1/vendors/"+strconv.Itoa(vendor.ID))
	respondJSON(w, http.StatusCreated, vendor)
}

// GetByID godoc
// @Summary Get vendor by ID
// @Tags Vendors
// @Produce json
// @Param id path int true "Vendor ID"
// @Success 200 {object} domain.Vendor
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Router /vendors/{id} [get]
func (h *VendorHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIntParam(chi.URLParam(r, "id"))
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid vendor ID: must be a positive integer")
		return
	}

	vendor, err := h.vendorService.GetByID(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, vendor)
}

// Update godoc
// @Summary Update vendor
// @Description Merge the given fields into the vendor. Rollup metadata is derived and cannot be set.
// @Tags Vendors
// @Accept json
// @Produce json
// @Param id path int true "Vendor ID"
// @Param request body object true "Fields to change"
// @Success 200 {object} domain.Vendor
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Router /vendors/{id} [patch]
func (h *VendorHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIntParam(chi.URLParam(r, "id"))
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid vendor ID: must be a positive integer")
		return
	}
	var patch map[string]any
	if !decodeJSON(w, r, &patch) {
		return
	}

	vendor, err := h.vendorService.Update(r.Context(), id, patch)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, vendor)
}
