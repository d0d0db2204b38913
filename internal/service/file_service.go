package service

import (
	"context"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/repository"
	"github.com/straye-as/pfmt-tracker/internal/store"
)

// FileService records metadata for uploaded project files
type FileService struct {
	repos  *repository.Repositories
	access *AccessControlService
	logger *zap.Logger
}

// NewFileService creates a new FileService
func NewFileService(repos *repository.Repositories, access *AccessControlService, logger *zap.Logger) *FileService {
	return &FileService{
		repos:  repos,
		access: access,
		logger: logger,
	}
}

// Register stores metadata for an uploaded file. Uploading a name that already
// exists creates the next version and clears the latest flag of the previous one.
func (s *FileService) Register(ctx context.Context, projectID string, upload *domain.FileUpload) (*domain.File, error) {
	actor, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateRequest(upload); err != nil {
		return nil, err
	}
	fileName := path.Base(strings.ReplaceAll(strings.TrimSpace(upload.OriginalName), "\\", "/"))
	if fileName == "" || fileName == "." || fileName == "/" {
		return nil, domain.NewValidationError("originalName", "is not a file name")
	}

	if _, ok, err := s.repos.Projects.FindByID(ctx, projectID); err != nil {
		return nil, err
	} else if !ok {
		return nil, domain.NotFoundError("project", projectID)
	}
	if err := s.access.Require(ctx, actor.UserID, projectID, domain.PermissionEdit); err != nil {
		return nil, err
	}

	previous, hasPrevious, err := s.repos.Files.LatestByName(ctx, projectID, fileName)
	if err != nil {
		return nil, err
	}

	version, prevID := 1, 0
	if hasPrevious {
		version, prevID = previous.Version+1, previous.ID
	}

	uow := s.repos.NewUnitOfWork()
	// a concurrent upload of the same name must not fork the version chain
	if err := uow.Stage(func(doc *store.Document) error {
		for _, f := range doc.Files {
			if f.ProjectID == projectID && f.FileName == fileName && f.IsActive && f.IsLatest && f.ID != prevID {
				return fmt.Errorf("%w: %s was re-uploaded concurrently", ErrConflict, fileName)
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if hasPrevious {
		if _, err := uow.Files().Update(prevID, map[string]any{"isLatest": false}); err != nil {
			return nil, err
		}
	}

	created, err := uow.Files().Create(&domain.File{
		ProjectID:    projectID,
		FileName:     fileName,
		OriginalName: upload.OriginalName,
		Path:         upload.Path,
		Size:         upload.Size,
		MimeType:     upload.MimeType,
		Category:     upload.Category,
		UploadedBy:   actor.UserID,
		Version:      version,
		IsLatest:     true,
		AccessLevel:  "project",
		Checksum:     upload.Checksum,
		IsActive:     true,
	})
	if err != nil {
		return nil, err
	}
	if err := uow.Commit(ctx); err != nil {
		return nil, err
	}

	file := created.Value()
	s.logger.Info("file registered",
		zap.String("project_id", projectID),
		zap.String("file_name", fileName),
		zap.Int("version", file.Version),
	)
	return file, nil
}

// ListForProject returns the active files of a project the caller may view
func (s *FileService) ListForProject(ctx context.Context, projectID string) ([]*domain.File, error) {
	actor, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok, err := s.repos.Projects.FindByID(ctx, projectID); err != nil {
		return nil, err
	} else if !ok {
		return nil, domain.NotFoundError("project", projectID)
	}
	if err := s.access.Require(ctx, actor.UserID, projectID, domain.PermissionView); err != nil {
		return nil, err
	}
	return s.repos.Files.ForProject(ctx, projectID, true)
}
