package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/logger"
	"github.com/straye-as/pfmt-tracker/internal/repository"
	"github.com/straye-as/pfmt-tracker/internal/store"
)

// projectSortFields whitelists sortable project fields
var projectSortFields = map[string]bool{
	"name":                  true,
	"status":                true,
	"phase":                 true,
	"startDate":             true,
	"createdAt":             true,
	"updatedAt":             true,
	"financial.totalBudget": true,
	"financial.eac":         true,
	"financial.variance":    true,
}

// ProjectService handles business logic for projects and their funding and change rows
type ProjectService struct {
	repos  *repository.Repositories
	access *AccessControlService
	logger *zap.Logger
}

// NewProjectService creates a new ProjectService
func NewProjectService(repos *repository.Repositories, access *AccessControlService, logger *zap.Logger) *ProjectService {
	return &ProjectService{
		repos:  repos,
		access: access,
		logger: logger,
	}
}

// Create creates a project together with its funding lines and, when a primary
// vendor is named, its primary contractor link. Everything is written in one
// unit of work.
func (s *ProjectService) Create(ctx context.Context, req *domain.CreateProjectRequest) (*domain.ProjectWithRelationships, error) {
	actor, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	user, ok, err := s.repos.Users.FindByID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("user %d: %w", actor.UserID, domain.ErrUserNotFound)
	}
	if !user.Permissions.CanCreateProjects && !user.Role.IsUniversal() {
		return nil, fmt.Errorf("%w: user may not create projects", domain.ErrAccessDenied)
	}

	ownerID := req.OwnerID
	if ownerID == 0 {
		ownerID = user.ID
	}
	if ownerID != user.ID {
		if !user.Role.IsUniversal() {
			return nil, fmt.Errorf("%w: only directors and admins may create projects for others", domain.ErrAccessDenied)
		}
		if _, ok, err := s.repos.Users.FindByID(ctx, ownerID); err != nil {
			return nil, err
		} else if !ok {
			return nil, domain.NewValidationError("ownerId", "user %d does not exist", ownerID)
		}
	}
	if req.PrimaryVendorID != nil {
		if _, ok, err := s.repos.Vendors.FindByID(ctx, *req.PrimaryVendorID); err != nil {
			return nil, err
		} else if !ok {
			return nil, domain.NewValidationError("primaryVendorId", "vendor %d does not exist", *req.PrimaryVendorID)
		}
	}

	uow := s.repos.NewUnitOfWork()
	project, err := uow.Projects().Create(&domain.Project{
		Name:            req.Name,
		Description:     req.Description,
		Status:          req.Status,
		Phase:           req.Phase,
		Category:        req.Category,
		DeliveryMethod:  req.DeliveryMethod,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		OwnerID:         ownerID,
		PrimaryVendorID: req.PrimaryVendorID,
		Location:        req.Location,
		Building:        req.Building,
		Financial:       req.Financial,
	})
	if err != nil {
		return nil, err
	}

	for _, in := range req.FundingLines {
		in := in
		if _, err := uow.FundingLines().CreateWith(func() (*domain.FundingLine, error) {
			return &domain.FundingLine{
				ProjectID:           project.Value().ID,
				Source:              in.Source,
				Description:         in.Description,
				CapitalPlanLine:     in.CapitalPlanLine,
				WBS:                 in.WBS,
				ProjectCode:         in.ProjectCode,
				ApprovedValue:       in.ApprovedValue,
				CurrentYearBudget:   in.CurrentYearBudget,
				CurrentYearApproved: in.CurrentYearApproved,
				SpentToDate:         in.SpentToDate,
				RemainingBudget:     in.ApprovedValue.Sub(in.SpentToDate),
				FiscalYear:          in.FiscalYear,
				FundingType:         in.FundingType,
				IsActive:            true,
			}, nil
		}); err != nil {
			return nil, err
		}
	}

	if req.PrimaryVendorID != nil {
		vendorID := *req.PrimaryVendorID
		if _, err := uow.ProjectVendors().CreateWith(func() (*domain.ProjectVendor, error) {
			return &domain.ProjectVendor{
				ProjectID:  project.Value().ID,
				VendorID:   &vendorID,
				VendorRole: "Primary Contractor",
				Status:     "Active",
				IsActive:   true,
			}, nil
		}); err != nil {
			return nil, err
		}
	}

	if err := uow.Commit(ctx); err != nil {
		s.logger.Error("failed to create project", zap.String("name", req.Name), zap.Error(err))
		return nil, err
	}

	created := project.Value()
	logger.WithProject(logger.WithUser(s.logger, actor.UserID, string(actor.Role)), created.ID).Info("project created",
		zap.Int("funding_lines", len(req.FundingLines)),
	)
	return s.hydrated(ctx, created.ID)
}

// GetByID returns a hydrated project the caller may view
func (s *ProjectService) GetByID(ctx context.Context, id string) (*domain.ProjectWithRelationships, error) {
	actor, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.requireProject(ctx, actor.UserID, id, domain.PermissionView); err != nil {
		return nil, err
	}
	return s.hydrated(ctx, id)
}

// List returns a page of hydrated projects visible to the caller
func (s *ProjectService) List(ctx context.Context, filters *domain.ProjectFilters, params *domain.ListParams) (*domain.PaginatedResponse, error) {
	actor, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := s.access.GetAccessibleProjectIDs(ctx, actor.UserID, actor.Role)
	if err != nil {
		return nil, err
	}

	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	criteria := repository.Criteria{"id": repository.In(values...)}
	if filters != nil {
		if filters.Status != "" {
			criteria["status"] = repository.Equals(filters.Status)
		}
		if filters.OwnerID != 0 {
			criteria["ownerId"] = repository.Equals(filters.OwnerID)
		}
		if filters.Region != "" {
			criteria["location.region"] = repository.Equals(filters.Region)
		}
	}

	projects, err := s.repos.Projects.FindManyWithRelationships(ctx, criteria)
	if err != nil {
		return nil, err
	}

	if params == nil {
		params = &domain.ListParams{}
	}
	sortCfg := repository.ResolveSortConfig(params.SortBy, params.SortOrder, projectSortFields)
	if err := repository.SortRecords(projects, sortCfg); err != nil {
		return nil, err
	}
	page, pageSize := repository.NormalizePage(params.Page, params.PageSize)
	return domain.NewPaginatedResponse(repository.Paginate(projects, page, pageSize), len(projects), page, pageSize), nil
}

// Update merges patch into a project the caller may edit. Reassigning the
// owner additionally needs the right to grant access.
func (s *ProjectService) Update(ctx context.Context, id string, patch map[string]any) (*domain.ProjectWithRelationships, error) {
	actor, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.requireProject(ctx, actor.UserID, id, domain.PermissionEdit); err != nil {
		return nil, err
	}
	if raw, ok := patch["ownerId"]; ok {
		if err := s.access.RequireGrant(ctx, actor.UserID, id); err != nil {
			return nil, err
		}
		ownerID, ok := raw.(float64)
		if !ok {
			if n, isInt := raw.(int); isInt {
				ownerID, ok = float64(n), true
			}
		}
		if !ok {
			return nil, domain.NewValidationError("ownerId", "must be a user id")
		}
		if _, found, err := s.repos.Users.FindByID(ctx, int(ownerID)); err != nil {
			return nil, err
		} else if !found {
			return nil, domain.NewValidationError("ownerId", "user %d does not exist", int(ownerID))
		}
	}

	if _, err := s.repos.Projects.Update(ctx, id, patch); err != nil {
		return nil, err
	}
	logger.WithProject(s.logger, id).Info("project updated", zap.Int("user_id", actor.UserID), zap.Int("fields", len(patch)))
	return s.hydrated(ctx, id)
}

// Delete removes a project and soft-retires every row that references it.
// Only the owner or a universal role may delete.
func (s *ProjectService) Delete(ctx context.Context, id string) error {
	actor, err := currentUser(ctx)
	if err != nil {
		return err
	}
	if _, ok, err := s.repos.Projects.FindByID(ctx, id); err != nil {
		return err
	} else if !ok {
		return domain.NotFoundError("project", id)
	}
	if err := s.access.RequireGrant(ctx, actor.UserID, id); err != nil {
		return err
	}

	now := s.repos.Store().Now()
	uow := s.repos.NewUnitOfWork()
	if err := uow.Stage(func(doc *store.Document) error {
		retireRows(doc, id, now)
		return nil
	}); err != nil {
		return err
	}
	if _, err := uow.Projects().Delete(id); err != nil {
		return err
	}
	if err := uow.Commit(ctx); err != nil {
		return err
	}
	logger.WithProject(s.logger, id).Info("project deleted", zap.Int("user_id", actor.UserID))
	return nil
}

// AddChangeOrder records a pending change order on a project the caller may edit
func (s *ProjectService) AddChangeOrder(ctx context.Context, projectID string, co *domain.ChangeOrder) (*domain.ChangeOrder, error) {
	actor, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.requireProject(ctx, actor.UserID, projectID, domain.PermissionEdit); err != nil {
		return nil, err
	}
	if co.VendorID != nil {
		if _, ok, err := s.repos.Vendors.FindByID(ctx, *co.VendorID); err != nil {
			return nil, err
		} else if !ok {
			return nil, domain.NewValidationError("vendorId", "vendor %d does not exist", *co.VendorID)
		}
	}

	record := *co
	record.ProjectID = projectID
	record.Status = domain.ChangeOrderPending
	record.ApprovedDate = ""
	record.ApprovedBy = ""
	record.IsActive = true
	if record.RequestedBy == "" {
		record.RequestedBy = actor.Name
	}
	if record.RequestDate == "" {
		record.RequestDate = s.repos.Store().Now().Format("2006-01-02")
	}
	return s.repos.ChangeOrders.Create(ctx, &record)
}

// DecideChangeOrder approves or rejects a pending change order. It needs the approve permission.
func (s *ProjectService) DecideChangeOrder(ctx context.Context, projectID string, changeOrderID int, approve bool) (*domain.ChangeOrder, error) {
	actor, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.requireProject(ctx, actor.UserID, projectID, domain.PermissionApprove); err != nil {
		return nil, err
	}
	co, ok, err := s.repos.ChangeOrders.FindByID(ctx, changeOrderID)
	if err != nil {
		return nil, err
	}
	if !ok || co.ProjectID != projectID || !co.IsActive {
		return nil, domain.NotFoundError("change order", changeOrderID)
	}
	if co.Status != domain.ChangeOrderPending {
		return nil, fmt.Errorf("%w: change order %d is already %s", ErrConflict, changeOrderID, co.Status)
	}

	status := domain.ChangeOrderRejected
	if approve {
		status = domain.ChangeOrderApproved
	}
	return s.repos.ChangeOrders.Update(ctx, changeOrderID, map[string]any{
		"status":       status,
		"approvedDate": s.repos.Store().Now().Format("2006-01-02"),
		"approvedBy":   actor.Name,
	})
}

// RetireFundingLine soft-deletes a funding line of a project the caller may edit
func (s *ProjectService) RetireFundingLine(ctx context.Context, projectID string, lineID int) error {
	actor, err := currentUser(ctx)
	if err != nil {
		return err
	}
	if err := s.requireProject(ctx, actor.UserID, projectID, domain.PermissionEdit); err != nil {
		return err
	}
	line, ok, err := s.repos.FundingLines.FindByID(ctx, lineID)
	if err != nil {
		return err
	}
	if !ok || line.ProjectID != projectID {
		return domain.NotFoundError("funding line", lineID)
	}
	_, err = s.repos.FundingLines.Update(ctx, lineID, map[string]any{"isActive": false})
	return err
}

// RetireChangeOrder soft-deletes a change order of a project the caller may edit
func (s *ProjectService) RetireChangeOrder(ctx context.Context, projectID string, changeOrderID int) error {
	actor, err := currentUser(ctx)
	if err != nil {
		return err
	}
	if err := s.requireProject(ctx, actor.UserID, projectID, domain.PermissionEdit); err != nil {
		return err
	}
	co, ok, err := s.repos.ChangeOrders.FindByID(ctx, changeOrderID)
	if err != nil {
		return err
	}
	if !ok || co.ProjectID != projectID {
		return domain.NotFoundError("change order", changeOrderID)
	}
	_, err = s.repos.ChangeOrders.Update(ctx, changeOrderID, map[string]any{"isActive": false})
	return err
}

// requireProject reports a missing project as not found before checking access
func (s *ProjectService) requireProject(ctx context.Context, userID int, projectID string, permission domain.ProjectPermission) error {
	if _, ok, err := s.repos.Projects.FindByID(ctx, projectID); err != nil {
		return err
	} else if !ok {
		return domain.NotFoundError("project", projectID)
	}
	return s.access.Require(ctx, userID, projectID, permission)
}

func (s *ProjectService) hydrated(ctx context.Context, id string) (*domain.ProjectWithRelationships, error) {
	project, ok, err := s.repos.Projects.FindByIDWithRelationships(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.NotFoundError("project", id)
	}
	return project, nil
}

// retireRows flips the active flag of every relationship row of a project
func retireRows(doc *store.Document, projectID string, now time.Time) {
	for _, a := range doc.ProjectAssignments {
		if a.ProjectID == projectID && a.IsActive {
			a.IsActive = false
			a.Touch(now)
		}
	}
	for _, l := range doc.FundingLines {
		if l.ProjectID == projectID && l.IsActive {
			l.IsActive = false
			l.Touch(now)
		}
	}
	for _, pv := range doc.ProjectVendors {
		if pv.ProjectID == projectID && pv.IsActive {
			pv.IsActive = false
			pv.Touch(now)
		}
	}
	for _, co := range doc.ChangeOrders {
		if co.ProjectID == projectID && co.IsActive {
			co.IsActive = false
			co.Touch(now)
		}
	}
	for _, f := range doc.Files {
		if f.ProjectID == projectID && f.IsActive {
			f.IsActive = false
			f.IsLatest = false
			f.Touch(now)
		}
	}
}
