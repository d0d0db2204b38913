package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/auth"
	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/repository"
	"github.com/straye-as/pfmt-tracker/internal/service"
)

// MeResponse is the authenticated user with the projects they can see
type MeResponse struct {
	*domain.User
	AccessibleProjectIDs []string `json:"accessibleProjectIds"`
}

type AuthHandler struct {
	userRepo *repository.UserRepository
	access   *service.AccessControlService
	logger   *zap.Logger
}

func NewAuthHandler(userRepo *repository.UserRepository, access *service.AccessControlService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		userRepo: userRepo,
		access:   access,
		logger:   logger,
	}
}

// Me godoc
// @Summary Get current authenticated user
// @Description Returns the stored user record and the ids of every project the user may view
// @Tags Auth
// @Produce json
// @Success 200 {object} MeResponse
// @Failure 401 {object} domain.APIError
// @Security BearerAuth
// @Router /auth/me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userCtx, ok := auth.FromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	user, found, err := h.userRepo.FindByID(r.Context(), userCtx.UserID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	if !found {
		respondWithError(w, http.StatusNotFound, "User not found")
		return
	}

	ids, err := h.access.GetAccessibleProjectIDs(r.Context(), user.ID, user.Role)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, MeResponse{User: user, AccessibleProjectIDs: ids})
}

// ListUsers godoc
// @Summary List users
// @Tags Users
// @Produce json
// @Success 200 {array} domain.User
// @Security BearerAuth
// @Router /users [get]
func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userRepo.All(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, users)
}
