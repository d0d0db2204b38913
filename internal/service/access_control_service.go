package service

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/repository"
)

// AccessControlService decides which projects a user may see, edit or approve.
// Visibility comes from ownership, active assignments and universal roles.
// Anything beyond viewing needs ownership or an assignment flag.
type AccessControlService struct {
	userRepo       *repository.UserRepository
	projectRepo    *repository.ProjectRepository
	assignmentRepo *repository.AssignmentRepository
	logger         *zap.Logger
}

// NewAccessControlService creates a new AccessControlService
func NewAccessControlService(
	userRepo *repository.UserRepository,
	projectRepo *repository.ProjectRepository,
	assignmentRepo *repository.AssignmentRepository,
	logger *zap.Logger,
) *AccessControlService {
	return &AccessControlService{
		userRepo:       userRepo,
		projectRepo:    projectRepo,
		assignmentRepo: assignmentRepo,
		logger:         logger,
	}
}

// GetAccessibleProjectIDs returns every project id for universal roles, otherwise
// the sorted, deduplicated union of owned projects and actively assigned projects.
func (s *AccessControlService) GetAccessibleProjectIDs(ctx context.Context, userID int, role domain.UserRole) ([]string, error) {
	if _, err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	if role.IsUniversal() {
		ids, err := s.projectRepo.IDs(ctx)
		if err != nil {
			return nil, err
		}
		sort.Strings(ids)
		return ids, nil
	}

	owned, err := s.projectRepo.OwnedBy(ctx, userID)
	if err != nil {
		return nil, err
	}
	assignments, err := s.assignmentRepo.ActiveForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	existing, err := s.projectRepo.IDs(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(existing))
	for _, id := range existing {
		known[id] = true
	}

	seen := make(map[string]bool, len(owned)+len(assignments))
	ids := make([]string, 0, len(owned)+len(assignments))
	add := func(id string) {
		if known[id] && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, id := range owned {
		add(id)
	}
	for _, a := range assignments {
		add(a.ProjectID)
	}
	sort.Strings(ids)
	return ids, nil
}

// CanAccessProject reports whether the user may exercise permission on the project.
// Viewing only needs the project to be accessible; other permissions go through HasProjectPermission.
func (s *AccessControlService) CanAccessProject(ctx context.Context, userID int, projectID string, permission domain.ProjectPermission) (bool, error) {
	user, err := s.requireUser(ctx, userID)
	if err != nil {
		return false, err
	}
	ids, err := s.GetAccessibleProjectIDs(ctx, userID, user.Role)
	if err != nil {
		return false, err
	}
	if !slices.Contains(ids, projectID) {
		return false, nil
	}
	if permission == "" || permission == domain.PermissionView {
		return true, nil
	}
	return s.HasProjectPermission(ctx, userID, projectID, permission)
}

// HasProjectPermission grants everything to the owner, otherwise maps the
// permission onto the flags of the user's active assignment.
func (s *AccessControlService) HasProjectPermission(ctx context.Context, userID int, projectID string, permission domain.ProjectPermission) (bool, error) {
	if _, err := s.requireUser(ctx, userID); err != nil {
		return false, err
	}
	project, ok, err := s.projectRepo.FindByID(ctx, projectID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if project.OwnerID == userID {
		return true, nil
	}

	assignment, ok, err := s.assignmentRepo.FindActive(ctx, userID, projectID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return assignment.Permissions.Allows(permission), nil
}

// CanGrantAccess is true for universal roles and for the project owner
func (s *AccessControlService) CanGrantAccess(ctx context.Context, granterID int, projectID string) (bool, error) {
	granter, err := s.requireUser(ctx, granterID)
	if err != nil {
		return false, err
	}
	if granter.Role.IsUniversal() {
		return true, nil
	}
	project, ok, err := s.projectRepo.FindByID(ctx, projectID)
	if err != nil {
		return false, err
	}
	return ok && project.OwnerID == granterID, nil
}

// Require returns domain.ErrAccessDenied unless CanAccessProject allows the request
func (s *AccessControlService) Require(ctx context.Context, userID int, projectID string, permission domain.ProjectPermission) error {
	allowed, err := s.CanAccessProject(ctx, userID, projectID, permission)
	if err != nil {
		return err
	}
	if !allowed {
		s.logger.Debug("project access denied",
			zap.Int("user_id", userID),
			zap.String("project_id", projectID),
			zap.String("permission", string(permission)),
		)
		return fmt.Errorf("%w: %s on project %s", domain.ErrAccessDenied, permission, projectID)
	}
	return nil
}

// RequireGrant returns domain.ErrAccessDenied unless CanGrantAccess allows it
func (s *AccessControlService) RequireGrant(ctx context.Context, granterID int, projectID string) error {
	allowed, err := s.CanGrantAccess(ctx, granterID, projectID)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%w: cannot grant access on project %s", domain.ErrAccessDenied, projectID)
	}
	return nil
}

func (s *AccessControlService) requireUser(ctx context.Context, userID int) (*domain.User, error) {
	user, ok, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("user %d: %w", userID, domain.ErrUserNotFound)
	}
	return user, nil
}
