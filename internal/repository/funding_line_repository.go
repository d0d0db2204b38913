package repository

import (
	"context"

	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/schema"
	"github.com/straye-as/pfmt-tracker/internal/store"
)

// FundingLineRepository handles funding line records
type FundingLineRepository struct {
	*Repository[*domain.FundingLine, int]
}

func fundingLineCollection() collection[*domain.FundingLine, int] {
	return collection[*domain.FundingLine, int]{
		entity: schema.FundingLine,
		rows:   func(doc *store.Document) *[]*domain.FundingLine { return &doc.FundingLines },
		nextID: sequentialID[*domain.FundingLine],
	}
}

// NewFundingLineRepository creates a new funding line repository
func NewFundingLineRepository(s *store.Store, logger *zap.Logger) *FundingLineRepository {
	return &FundingLineRepository{Repository: newRepository(s, fundingLineCollection(), logger)}
}

// ForProject returns the funding lines of a project
func (r *FundingLineRepository) ForProject(ctx context.Context, projectID string, activeOnly bool) ([]*domain.FundingLine, error) {
	return r.Where(ctx, func(f *domain.FundingLine) bool {
		return f.ProjectID == projectID && (!activeOnly || f.IsActive)
	})
}
