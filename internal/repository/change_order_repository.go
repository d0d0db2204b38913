package repository

import (
	"context"

	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/schema"
	"github.com/straye-as/pfmt-tracker/internal/store"
)

// ChangeOrderRepository handles change order records
type ChangeOrderRepository struct {
	*Repository[*domain.ChangeOrder, int]
}

func changeOrderCollection() collection[*domain.ChangeOrder, int] {
	return collection[*domain.ChangeOrder, int]{
		entity: schema.ChangeOrder,
		rows:   func(doc *store.Document) *[]*domain.ChangeOrder { return &doc.ChangeOrders },
		nextID: sequentialID[*domain.ChangeOrder],
		prepare: func(co *domain.ChangeOrder) {
			if co.Status == "" {
				co.Status = domain.ChangeOrderPending
			}
		},
	}
}

// NewChangeOrderRepository creates a new change order repository
func NewChangeOrderRepository(s *store.Store, logger *zap.Logger) *ChangeOrderRepository {
	return &ChangeOrderRepository{Repository: newRepository(s, changeOrderCollection(), logger)}
}

// ForProject returns the change orders of a project
func (r *ChangeOrderRepository) ForProject(ctx context.Context, projectID string, activeOnly bool) ([]*domain.ChangeOrder, error) {
	return r.Where(ctx, func(co *domain.ChangeOrder) bool {
		return co.ProjectID == projectID && (!activeOnly || co.IsActive)
	})
}
