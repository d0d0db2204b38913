package repository

import (
	"context"

	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/schema"
	"github.com/straye-as/pfmt-tracker/internal/store"
)

// ProjectVendorRepository handles project-vendor link records
type ProjectVendorRepository struct {
	*Repository[*domain.ProjectVendor, int]
}

func projectVendorCollection() collection[*domain.ProjectVendor, int] {
	return collection[*domain.ProjectVendor, int]{
		entity: schema.ProjectVendor,
		rows:   func(doc *store.Document) *[]*domain.ProjectVendor { return &doc.ProjectVendors },
		nextID: sequentialID[*domain.ProjectVendor],
	}
}

// NewProjectVendorRepository creates a new project-vendor repository
func NewProjectVendorRepository(s *store.Store, logger *zap.Logger) *ProjectVendorRepository {
	return &ProjectVendorRepository{Repository: newRepository(s, projectVendorCollection(), logger)}
}

// ForProject returns every vendor link of a project
func (r *ProjectVendorRepository) ForProject(ctx context.Context, projectID string) ([]*domain.ProjectVendor, error) {
	return r.Where(ctx, func(pv *domain.ProjectVendor) bool { return pv.ProjectID == projectID })
}

// ForVendor returns every project link of a vendor
func (r *ProjectVendorRepository) ForVendor(ctx context.Context, vendorID int) ([]*domain.ProjectVendor, error) {
	return r.Where(ctx, func(pv *domain.ProjectVendor) bool { return pv.VendorID != nil && *pv.VendorID == vendorID })
}
