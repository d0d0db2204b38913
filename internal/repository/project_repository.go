package repository

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"

	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/schema"
	"github.com/straye-as/pfmt-tracker/internal/store"
)

// projectIDAttempts bounds regeneration when a token collides
const projectIDAttempts = 64

// ProjectRepository handles projects and their relationship hydration
type ProjectRepository struct {
	*Repository[*domain.Project, string]
}

func projectCollection() collection[*domain.Project, string] {
	return collection[*domain.Project, string]{
		entity: schema.Project,
		rows:   func(doc *store.Document) *[]*domain.Project { return &doc.Projects },
		nextID: nextProjectID,
		prepare: func(p *domain.Project) {
			if p.Status == "" {
				p.Status = domain.ProjectStatusActive
			}
			p.Financial.ComputeVariance()
		},
	}
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(s *store.Store, logger *zap.Logger) *ProjectRepository {
	return &ProjectRepository{Repository: newRepository(s, projectCollection(), logger)}
}

// NewProjectID returns a token of two 0-99 segments and a two character
// base-36 suffix, e.g. "07-42-k3"
func NewProjectID() string {
	suffix := strconv.FormatInt(int64(rand.IntN(36*36)), 36)
	if len(suffix) < 2 {
		suffix = "0" + suffix
	}
	return fmt.Sprintf("%02d-%02d-%s", rand.IntN(100), rand.IntN(100), suffix)
}

// nextProjectID keeps a supplied id if it is free and otherwise generates one
func nextProjectID(rows []*domain.Project, item *domain.Project) (string, error) {
	taken := make(map[string]bool, len(rows))
	for _, p := range rows {
		taken[p.ID] = true
	}
	if item.ID != "" {
		if taken[item.ID] {
			return "", domain.NewValidationError("id", "project %q already exists", item.ID)
		}
		return item.ID, nil
	}
	for i := 0; i < projectIDAttempts; i++ {
		if id := NewProjectID(); !taken[id] {
			return id, nil
		}
	}
	return "", fmt.Errorf("could not generate a free project id after %d attempts", projectIDAttempts)
}

// IDs returns the id of every project
func (r *ProjectRepository) IDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.store.View(ctx, func(doc *store.Document) error {
		ids = make([]string, 0, len(doc.Projects))
		for _, p := range doc.Projects {
			ids = append(ids, p.ID)
		}
		return nil
	})
	return ids, err
}

// OwnedBy returns the ids of projects owned by a user
func (r *ProjectRepository) OwnedBy(ctx context.Context, userID int) ([]string, error) {
	var ids []string
	err := r.store.View(ctx, func(doc *store.Document) error {
		for _, p := range doc.Projects {
			if p.OwnerID == userID {
				ids = append(ids, p.ID)
			}
		}
		return nil
	})
	return ids, err
}

// FindByIDWithRelationships returns a project with owner, primary vendor,
// active funding lines, vendor links, active change orders, active files and
// assignments resolved
func (r *ProjectRepository) FindByIDWithRelationships(ctx context.Context, id string) (*domain.ProjectWithRelationships, bool, error) {
	var out *domain.ProjectWithRelationships
	err := r.store.View(ctx, func(doc *store.Document) error {
		for _, p := range doc.Projects {
			if p.ID != id {
				continue
			}
			var err error
			out, err = store.CloneJSON(newRelationIndex(doc).hydrate(p))
			return err
		}
		return nil
	})
	if err != nil || out == nil {
		return nil, false, err
	}
	return out, true, nil
}

// FindManyWithRelationships hydrates every project matching criteria
func (r *ProjectRepository) FindManyWithRelationships(ctx context.Context, criteria Criteria) ([]*domain.ProjectWithRelationships, error) {
	out := []*domain.ProjectWithRelationships{}
	err := r.store.View(ctx, func(doc *store.Document) error {
		idx := newRelationIndex(doc)
		for _, p := range doc.Projects {
			ok, err := criteria.Match(p)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			hydrated, err := store.CloneJSON(idx.hydrate(p))
			if err != nil {
				return err
			}
			out = append(out, hydrated)
		}
		return nil
	})
	return out, err
}

// relationIndex groups related rows by key for one pass of hydration
type relationIndex struct {
	users       map[int]*domain.User
	vendors     map[int]*domain.Vendor
	funding     map[string][]*domain.FundingLine
	links       map[string][]*domain.ProjectVendor
	changes     map[string][]*domain.ChangeOrder
	files       map[string][]*domain.File
	assignments map[string][]*domain.ProjectAssignment
}

func newRelationIndex(doc *store.Document) *relationIndex {
	idx := &relationIndex{
		users:       make(map[int]*domain.User, len(doc.Users)),
		vendors:     make(map[int]*domain.Vendor, len(doc.Vendors)),
		funding:     map[string][]*domain.FundingLine{},
		links:       map[string][]*domain.ProjectVendor{},
		changes:     map[string][]*domain.ChangeOrder{},
		files:       map[string][]*domain.File{},
		assignments: map[string][]*domain.ProjectAssignment{},
	}
	for _, u := range doc.Users {
		idx.users[u.ID] = u
	}
	for _, v := range doc.Vendors {
		idx.vendors[v.ID] = v
	}
	for _, f := range doc.FundingLines {
		if f.IsActive {
			idx.funding[f.ProjectID] = append(idx.funding[f.ProjectID], f)
		}
	}
	for _, pv := range doc.ProjectVendors {
		idx.links[pv.ProjectID] = append(idx.links[pv.ProjectID], pv)
	}
	for _, co := range doc.ChangeOrders {
		if co.IsActive {
			idx.changes[co.ProjectID] = append(idx.changes[co.ProjectID], co)
		}
	}
	for _, f := range doc.Files {
		if f.IsActive {
			idx.files[f.ProjectID] = append(idx.files[f.ProjectID], f)
		}
	}
	for _, a := range doc.ProjectAssignments {
		idx.assignments[a.ProjectID] = append(idx.assignments[a.ProjectID], a)
	}
	return idx
}

// hydrate builds the aggregate from shared document rows. Callers clone the
// result before it leaves the critical section.
func (idx *relationIndex) hydrate(p *domain.Project) *domain.ProjectWithRelationships {
	out := &domain.ProjectWithRelationships{
		Project:      p,
		Owner:        idx.users[p.OwnerID],
		FundingLines: orEmpty(idx.funding[p.ID]),
		ChangeOrders: orEmpty(idx.changes[p.ID]),
		Files:        orEmpty(idx.files[p.ID]),
		Vendors:      []*domain.ProjectVendorLink{},
		Assignments:  []*domain.AssignmentGrant{},
	}
	if p.PrimaryVendorID != nil {
		out.PrimaryVendor = idx.vendors[*p.PrimaryVendorID]
	}
	for _, pv := range idx.links[p.ID] {
		link := &domain.ProjectVendorLink{ProjectVendor: pv}
		if pv.VendorID != nil {
			link.Vendor = idx.vendors[*pv.VendorID]
		}
		out.Vendors = append(out.Vendors, link)
	}
	for _, a := range idx.assignments[p.ID] {
		out.Assignments = append(out.Assignments, &domain.AssignmentGrant{
			ProjectAssignment: a,
			User:              idx.users[a.UserID],
		})
	}
	return out
}

func orEmpty[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}
