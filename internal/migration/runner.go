package migration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/schema"
	"github.com/straye-as/pfmt-tracker/internal/storage"
	"github.com/straye-as/pfmt-tracker/internal/store"
)

// BackupKind prefixes the object names of pre-migration backups
const BackupKind = "pre-migration"

// projectGroups must all be present on a migrated project
var projectGroups = []string{"location", "building", "financial", "statusTracking", "workflow", "pfmt"}

// Runner is the operator-facing migration flow: back the document up to
// backup storage, migrate, validate and restore the backup when validation
// fails
type Runner struct {
	store    *store.Store
	manager  *Manager
	backups  storage.Storage
	validate func(raw []byte) error
	logger   *zap.Logger
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithValidator replaces the post-migration check run on the persisted
// document. The default is ValidateDocument.
func WithValidator(validate func(raw []byte) error) RunnerOption {
	return func(r *Runner) {
		r.validate = validate
	}
}

// NewRunner creates a runner over the given store, manager and backup storage
func NewRunner(s *store.Store, manager *Manager, backups storage.Storage, logger *zap.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{store: s, manager: manager, backups: backups, validate: ValidateDocument, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CheckResult describes the current document
type CheckResult struct {
	NeedsMigration bool           `json:"needsMigration"`
	Legacy         bool           `json:"legacy"`
	Relational     bool           `json:"relational"`
	State          State          `json:"state"`
	Counts         map[string]int `json:"counts,omitempty"`
}

// RunResult describes one migration run
type RunResult struct {
	Skipped bool    `json:"skipped"`
	Backup  string  `json:"backup,omitempty"`
	Report  *Report `json:"report,omitempty"`
}

// Check reports the shape of the document and, when normalized, its counts
func (r *Runner) Check(ctx context.Context) (*CheckResult, error) {
	needed, err := r.manager.CheckMigrationNeeded(ctx)
	if err != nil {
		return nil, err
	}
	shape, err := r.store.Shape()
	if err != nil {
		return nil, err
	}
	result := &CheckResult{
		NeedsMigration: needed,
		Legacy:         shape.Legacy,
		Relational:     shape.Relational,
		State:          r.manager.State(),
	}
	if !needed {
		err = r.store.View(ctx, func(doc *store.Document) error {
			result.Counts = doc.Counts()
			return nil
		})
	}
	return result, err
}

// Migrate backs up and migrates a legacy document, then validates the
// result. A failed validation restores the backup. The whole run holds the
// manager's migration lock, so concurrent runs and EnsureMigrated migrate
// the document once.
func (r *Runner) Migrate(ctx context.Context) (*RunResult, error) {
	r.manager.migrateMu.Lock()
	defer r.manager.migrateMu.Unlock()

	needed, err := r.manager.CheckMigrationNeeded(ctx)
	if err != nil {
		return nil, err
	}
	if !needed {
		r.logger.Info("document is already normalized, nothing to migrate")
		return &RunResult{Skipped: true}, nil
	}

	raw, err := r.store.Raw()
	if err != nil {
		return nil, err
	}
	name := storage.ObjectName(BackupKind, r.store.Now())
	if _, err := r.backups.Put(ctx, name, "application/json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("write pre-migration backup: %w", err)
	}
	r.logger.Info("pre-migration backup written", zap.String("backup", name), zap.Int("bytes", len(raw)))

	report, err := r.manager.migrate(ctx)
	if errors.Is(err, ErrNotLegacy) {
		return &RunResult{Skipped: true, Backup: name}, nil
	}
	if err != nil {
		return &RunResult{Backup: name}, err
	}

	if err := r.Validate(ctx); err != nil {
		r.logger.Error("post-migration validation failed, restoring backup",
			zap.String("backup", name), zap.Error(err))
		if restoreErr := r.restore(ctx, name); restoreErr != nil {
			return &RunResult{Backup: name}, fmt.Errorf("%w: validation: %w (restore failed: %v)", domain.ErrMigrationFailed, err, restoreErr)
		}
		return &RunResult{Backup: name}, fmt.Errorf("%w: validation: %w", domain.ErrMigrationFailed, err)
	}
	return &RunResult{Backup: name, Report: report}, nil
}

// Validate checks the post-conditions of a migration on the persisted
// document: every collection exists and a sample project carries all
// structured groups
func (r *Runner) Validate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := r.store.Raw()
	if err != nil {
		return err
	}
	return r.validate(raw)
}

// ValidateDocument checks the normalized post-conditions on raw bytes
func ValidateDocument(raw []byte) error {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}

	var errs error
	for _, collection := range schema.Collections() {
		if _, ok := top[collection]; !ok {
			errs = multierr.Append(errs, fmt.Errorf("collection %s is missing", collection))
		}
	}

	var projects []map[string]json.RawMessage
	if data, ok := top["projects"]; ok {
		if err := json.Unmarshal(data, &projects); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("projects: %w", err))
		}
	}
	if len(projects) > 0 {
		sample := projects[0]
		for _, group := range projectGroups {
			data, ok := sample[group]
			if !ok || len(bytes.TrimSpace(data)) == 0 || bytes.TrimSpace(data)[0] != '{' {
				errs = multierr.Append(errs, fmt.Errorf("sample project is missing group %s", group))
			}
		}
	}
	return errs
}

// Restore writes a stored backup back as the document
func (r *Runner) Restore(ctx context.Context, name string) error {
	r.manager.migrateMu.Lock()
	defer r.manager.migrateMu.Unlock()
	return r.restore(ctx, name)
}

func (r *Runner) restore(ctx context.Context, name string) error {
	rc, err := r.backups.Get(ctx, name)
	if err != nil {
		return fmt.Errorf("open backup %s: %w", name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("read backup %s: %w", name, err)
	}
	if _, err := store.InspectShape(data); err != nil {
		return fmt.Errorf("backup %s is not a JSON document: %w", name, err)
	}
	if err := r.store.Restore(data); err != nil {
		return err
	}
	r.manager.Reset()
	r.logger.Info("document restored from backup", zap.String("backup", name))
	return nil
}

// Backups lists the pre-migration backups, newest first
func (r *Runner) Backups(ctx context.Context) ([]storage.Object, error) {
	return r.backups.List(ctx, BackupKind+"/")
}
