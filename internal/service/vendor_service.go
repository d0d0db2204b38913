package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/repository"
)

var vendorSortFields = map[string]bool{
	"name":                        true,
	"vendorType":                  true,
	"createdAt":                   true,
	"updatedAt":                   true,
	"metadata.totalProjects":      true,
	"metadata.totalContractValue": true,
	"metadata.averageRating":      true,
}

// VendorService handles vendor registration and rollups
type VendorService struct {
	vendorRepo *repository.VendorRepository
	userRepo   *repository.UserRepository
	logger     *zap.Logger
}

// NewVendorService creates a new VendorService
func NewVendorService(vendorRepo *repository.VendorRepository, userRepo *repository.UserRepository, logger *zap.Logger) *VendorService {
	return &VendorService{
		vendorRepo: vendorRepo,
		userRepo:   userRepo,
		logger:     logger,
	}
}

// Create registers a vendor. Names are unique.
func (s *VendorService) Create(ctx context.Context, req *domain.CreateVendorRequest) (*domain.Vendor, error) {
	if err := s.requireManager(ctx); err != nil {
		return nil, err
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	vendor, err := s.vendorRepo.Create(ctx, &domain.Vendor{
		Name:           strings.TrimSpace(req.Name),
		ContactPerson:  req.ContactPerson,
		Email:          req.Email,
		Phone:          req.Phone,
		Website:        req.Website,
		Address:        req.Address,
		VendorType:     req.VendorType,
		Certifications: req.Certifications,
		Capabilities:   req.Capabilities,
		IsActive:       true,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("vendor created", zap.Int("vendor_id", vendor.ID), zap.String("name", vendor.Name))
	return vendor, nil
}

// GetByID returns a vendor
func (s *VendorService) GetByID(ctx context.Context, id int) (*domain.Vendor, error) {
	vendor, ok, err := s.vendorRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.NotFoundError("vendor", id)
	}
	return vendor, nil
}

// List returns a page of vendors whose name contains search, case-insensitively
func (s *VendorService) List(ctx context.Context, search string, params *domain.ListParams) (*domain.PaginatedResponse, error) {
	search = strings.ToLower(strings.TrimSpace(search))
	vendors, err := s.vendorRepo.Where(ctx, func(v *domain.Vendor) bool {
		return search == "" || strings.Contains(strings.ToLower(v.Name), search)
	})
	if err != nil {
		return nil, err
	}

	if params == nil {
		params = &domain.ListParams{}
	}
	sortCfg := repository.SortConfig{Field: "name", Order: repository.SortOrderAsc}
	if params.SortBy != "" {
		sortCfg = repository.ResolveSortConfig(params.SortBy, params.SortOrder, vendorSortFields)
	}
	if err := repository.SortRecords(vendors, sortCfg); err != nil {
		return nil, err
	}
	page, pageSize := repository.NormalizePage(params.Page, params.PageSize)
	return domain.NewPaginatedResponse(repository.Paginate(vendors, page, pageSize), len(vendors), page, pageSize), nil
}

// Update merges patch into a vendor
func (s *VendorService) Update(ctx context.Context, id int, patch map[string]any) (*domain.Vendor, error) {
	if err := s.requireManager(ctx); err != nil {
		return nil, err
	}
	delete(patch, "metadata")
	return s.vendorRepo.Update(ctx, id, patch)
}

// RefreshMetadata recomputes every vendor's rollup metadata
func (s *VendorService) RefreshMetadata(ctx context.Context) error {
	if err := s.vendorRepo.RefreshMetadata(ctx); err != nil {
		s.logger.Error("failed to refresh vendor metadata", zap.Error(err))
		return err
	}
	return nil
}

func (s *VendorService) requireManager(ctx context.Context) error {
	actor, err := currentUser(ctx)
	if err != nil {
		return err
	}
	user, ok, err := s.userRepo.FindByID(ctx, actor.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %d: %w", actor.UserID, domain.ErrUserNotFound)
	}
	if !user.Permissions.CanManageVendors && !user.Role.IsUniversal() {
		return fmt.Errorf("%w: user may not manage vendors", domain.ErrAccessDenied)
	}
	return nil
}
