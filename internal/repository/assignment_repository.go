package repository

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/schema"
	"github.com/straye-as/pfmt-tracker/internal/store"
)

// AssignmentRepository handles project assignment records
type AssignmentRepository struct {
	*Repository[*domain.ProjectAssignment, int]
}

func assignmentCollection() collection[*domain.ProjectAssignment, int] {
	return collection[*domain.ProjectAssignment, int]{
		entity: schema.ProjectAssignment,
		rows:   func(doc *store.Document) *[]*domain.ProjectAssignment { return &doc.ProjectAssignments },
		nextID: sequentialID[*domain.ProjectAssignment],
		// Permission flags always follow the access level
		prepare: func(a *domain.ProjectAssignment) {
			a.Permissions = a.AccessLevel.Permissions()
		},
	}
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(s *store.Store, logger *zap.Logger) *AssignmentRepository {
	return &AssignmentRepository{Repository: newRepository(s, assignmentCollection(), logger)}
}

// FindActive returns the active, unexpired assignment of a user to a project
func (r *AssignmentRepository) FindActive(ctx context.Context, userID int, projectID string) (*domain.ProjectAssignment, bool, error) {
	now := r.store.Now()
	rows, err := r.Where(ctx, func(a *domain.ProjectAssignment) bool {
		return a.UserID == userID && a.ProjectID == projectID && a.ActiveAt(now)
	})
	if err != nil || len(rows) == 0 {
		return nil, false, err
	}
	return rows[0], true, nil
}

// ActiveForUser returns every active, unexpired assignment of a user
func (r *AssignmentRepository) ActiveForUser(ctx context.Context, userID int) ([]*domain.ProjectAssignment, error) {
	now := r.store.Now()
	return r.Where(ctx, func(a *domain.ProjectAssignment) bool {
		return a.UserID == userID && a.ActiveAt(now)
	})
}

// ForProject returns every assignment of a project, active or not
func (r *AssignmentRepository) ForProject(ctx context.Context, projectID string) ([]*domain.ProjectAssignment, error) {
	return r.Where(ctx, func(a *domain.ProjectAssignment) bool {
		return a.ProjectID == projectID
	})
}

// ExpireBefore deactivates every active assignment whose expiry is at or
// before cutoff and returns how many were retired
func (r *AssignmentRepository) ExpireBefore(ctx context.Context, cutoff time.Time) (int, error) {
	expired := 0
	err := r.store.Update(ctx, func(doc *store.Document) error {
		now := r.store.Now()
		for _, a := range doc.ProjectAssignments {
			if !a.IsActive || a.ExpiresAt == nil || a.ExpiresAt.After(cutoff) {
				continue
			}
			a.IsActive = false
			a.Touch(now)
			expired++
		}
		if expired == 0 {
			return store.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		r.logger.Info("expired project assignments", zap.Int("count", expired))
	}
	return expired, nil
}
