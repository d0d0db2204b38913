package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/repository"
)

// AssignmentService grants and revokes explicit project access
type AssignmentService struct {
	repos  *repository.Repositories
	access *AccessControlService
	logger *zap.Logger
}

// NewAssignmentService creates a new AssignmentService
func NewAssignmentService(repos *repository.Repositories, access *AccessControlService, logger *zap.Logger) *AssignmentService {
	return &AssignmentService{
		repos:  repos,
		access: access,
		logger: logger,
	}
}

// Grant gives a user access to a project. An existing active assignment for the
// same user and project is updated in place rather than duplicated.
func (s *AssignmentService) Grant(ctx context.Context, projectID string, req *domain.GrantAccessRequest) (*domain.ProjectAssignment, error) {
	actor, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if !req.AccessLevel.IsValid() {
		return nil, domain.NewValidationError("accessLevel", "unknown access level %q", req.AccessLevel)
	}
	now := s.repos.Store().Now()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, domain.NewValidationError("expiresAt", "must be in the future")
	}

	project, ok, err := s.repos.Projects.FindByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.NotFoundError("project", projectID)
	}
	if err := s.access.RequireGrant(ctx, actor.UserID, projectID); err != nil {
		return nil, err
	}

	grantee, ok, err := s.repos.Users.FindByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("user %d: %w", req.UserID, domain.ErrUserNotFound)
	}
	if !grantee.IsActive {
		return nil, domain.NewValidationError("userId", "user %d is inactive", req.UserID)
	}
	if project.OwnerID == grantee.ID {
		return nil, domain.NewValidationError("userId", "the project owner already has full access")
	}

	existing, ok, err := s.repos.Assignments.FindActive(ctx, grantee.ID, projectID)
	if err != nil {
		return nil, err
	}

	var assignment *domain.ProjectAssignment
	if ok {
		assignment, err = s.repos.Assignments.Update(ctx, existing.ID, map[string]any{
			"accessLevel": req.AccessLevel,
			"expiresAt":   req.ExpiresAt,
			"reason":      req.Reason,
			"grantedBy":   actor.UserID,
		})
	} else {
		assignment, err = s.repos.Assignments.Create(ctx, &domain.ProjectAssignment{
			ProjectID:   projectID,
			UserID:      grantee.ID,
			GrantedBy:   actor.UserID,
			AccessLevel: req.AccessLevel,
			IsActive:    true,
			ExpiresAt:   req.ExpiresAt,
			Reason:      req.Reason,
		})
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("project access granted",
		zap.String("project_id", projectID),
		zap.Int("user_id", grantee.ID),
		zap.Int("granted_by", actor.UserID),
		zap.String("access_level", string(req.AccessLevel)),
	)
	return assignment, nil
}

// Revoke deactivates an assignment
func (s *AssignmentService) Revoke(ctx context.Context, projectID string, assignmentID int) error {
	actor, err := currentUser(ctx)
	if err != nil {
		return err
	}
	assignment, ok, err := s.repos.Assignments.FindByID(ctx, assignmentID)
	if err != nil {
		return err
	}
	if !ok || assignment.ProjectID != projectID {
		return domain.NotFoundError("assignment", assignmentID)
	}
	if err := s.access.RequireGrant(ctx, actor.UserID, projectID); err != nil {
		return err
	}
	if !assignment.IsActive {
		return nil
	}
	if _, err := s.repos.Assignments.Update(ctx, assignmentID, map[string]any{"isActive": false}); err != nil {
		return err
	}
	s.logger.Info("project access revoked",
		zap.String("project_id", projectID),
		zap.Int("assignment_id", assignmentID),
		zap.Int("revoked_by", actor.UserID),
	)
	return nil
}

// ListForProject returns every assignment of a project the caller may view
func (s *AssignmentService) ListForProject(ctx context.Context, projectID string) ([]*domain.ProjectAssignment, error) {
	actor, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok, err := s.repos.Projects.FindByID(ctx, projectID); err != nil {
		return nil, err
	} else if !ok {
		return nil, domain.NotFoundError("project", projectID)
	}
	if err := s.access.Require(ctx, actor.UserID, projectID, domain.PermissionView); err != nil {
		return nil, err
	}
	return s.repos.Assignments.ForProject(ctx, projectID)
}

// ExpireStale deactivates assignments whose expiry has passed
func (s *AssignmentService) ExpireStale(ctx context.Context) (int, error) {
	return s.repos.Assignments.ExpireBefore(ctx, s.repos.Store().Now())
}
