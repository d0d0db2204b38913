package repository

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/schema"
	"github.com/straye-as/pfmt-tracker/internal/store"
)

// VendorRepository handles vendor records
type VendorRepository struct {
	*Repository[*domain.Vendor, int]
}

func vendorCollection() collection[*domain.Vendor, int] {
	return collection[*domain.Vendor, int]{
		entity: schema.Vendor,
		rows:   func(doc *store.Document) *[]*domain.Vendor { return &doc.Vendors },
		nextID: sequentialID[*domain.Vendor],
		prepare: func(v *domain.Vendor) {
			if v.Certifications == nil {
				v.Certifications = []string{}
			}
			if v.Capabilities == nil {
				v.Capabilities = []string{}
			}
		},
		// Names are matched exactly, the same rule the legacy migration uses
		unique: func(doc *store.Document, vendor *domain.Vendor) error {
			for _, other := range doc.Vendors {
				if other.ID != vendor.ID && other.Name == vendor.Name {
					return domain.NewValidationError("name", "vendor %q already exists", vendor.Name)
				}
			}
			return nil
		},
	}
}

// NewVendorRepository creates a new vendor repository
func NewVendorRepository(s *store.Store, logger *zap.Logger) *VendorRepository {
	return &VendorRepository{Repository: newRepository(s, vendorCollection(), logger)}
}

// FindByName finds a vendor by exact name
func (r *VendorRepository) FindByName(ctx context.Context, name string) (*domain.Vendor, bool, error) {
	vendors, err := r.Where(ctx, func(v *domain.Vendor) bool { return v.Name == name })
	if err != nil || len(vendors) == 0 {
		return nil, false, err
	}
	return vendors[0], true, nil
}

// RefreshMetadata recomputes the rollup metadata of every vendor from its
// project links and persists the result
func (r *VendorRepository) RefreshMetadata(ctx context.Context) error {
	return r.store.Update(ctx, func(doc *store.Document) error {
		RefreshVendorMetadata(doc)
		return nil
	})
}

// RefreshVendorMetadata recomputes vendor rollups in place
func RefreshVendorMetadata(doc *store.Document) {
	for _, v := range doc.Vendors {
		v.Metadata = ComputeVendorMetadata(doc, v.ID)
	}
}

// ComputeVendorMetadata derives the rollups for one vendor. Project counts are
// distinct projects, the rating averages rated links only.
func ComputeVendorMetadata(doc *store.Document, vendorID int) domain.VendorMetadata {
	meta := domain.VendorMetadata{TotalContractValue: decimal.Zero}
	projects := map[string]bool{}
	active := map[string]bool{}
	var ratingSum float64
	var rated int

	for _, link := range doc.ProjectVendors {
		if link.VendorID == nil || *link.VendorID != vendorID {
			continue
		}
		projects[link.ProjectID] = true
		if link.IsActive {
			active[link.ProjectID] = true
		}
		meta.TotalContractValue = meta.TotalContractValue.Add(link.ContractValue)
		if link.PerformanceRating != nil {
			ratingSum += *link.PerformanceRating
			rated++
		}
		if link.ContractStartDate > meta.LastContractDate {
			meta.LastContractDate = link.ContractStartDate
		}
	}

	meta.TotalProjects = len(projects)
	meta.ActiveProjects = len(active)
	if rated > 0 {
		meta.AverageRating = ratingSum / float64(rated)
	}
	return meta
}
