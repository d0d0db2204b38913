package repository

import (
	"context"

	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/schema"
	"github.com/straye-as/pfmt-tracker/internal/store"
)

// FileRepository handles file metadata records
type FileRepository struct {
	*Repository[*domain.File, int]
}

func fileCollection() collection[*domain.File, int] {
	return collection[*domain.File, int]{
		entity: schema.File,
		rows:   func(doc *store.Document) *[]*domain.File { return &doc.Files },
		nextID: sequentialID[*domain.File],
		prepare: func(f *domain.File) {
			if f.Version == 0 {
				f.Version = 1
			}
		},
	}
}

// NewFileRepository creates a new file repository
func NewFileRepository(s *store.Store, logger *zap.Logger) *FileRepository {
	return &FileRepository{Repository: newRepository(s, fileCollection(), logger)}
}

// ForProject returns the files attached to a project
func (r *FileRepository) ForProject(ctx context.Context, projectID string, activeOnly bool) ([]*domain.File, error) {
	return r.Where(ctx, func(f *domain.File) bool {
		return f.ProjectID == projectID && (!activeOnly || f.IsActive)
	})
}

// LatestByName returns the active latest version of a named file in a project
func (r *FileRepository) LatestByName(ctx context.Context, projectID, fileName string) (*domain.File, bool, error) {
	files, err := r.Where(ctx, func(f *domain.File) bool {
		return f.ProjectID == projectID && f.FileName == fileName && f.IsActive && f.IsLatest
	})
	if err != nil || len(files) == 0 {
		return nil, false, err
	}
	latest := files[0]
	for _, f := range files[1:] {
		if f.Version > latest.Version {
			latest = f
		}
	}
	return latest, true, nil
}
