// Package migration converts the legacy flat project document into the
// normalized relational document, with backup and restore on failure.
package migration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/schema"
	"github.com/straye-as/pfmt-tracker/internal/store"
)

// ErrNotLegacy is returned when a migration is requested for a document that
// is not in legacy shape
var ErrNotLegacy = errors.New("document is not in legacy shape")

// State is the migration state of the store
type State string

const (
	StateUnknown           State = "unknown"
	StateNeedsMigration    State = "needs_migration"
	StateMigrated          State = "migrated"
	StateNoMigrationNeeded State = "no_migration_needed"
)

// Report summarizes a completed migration
type Report struct {
	Users          int           `json:"users"`
	Vendors        int           `json:"vendors"`
	Projects       int           `json:"projects"`
	FundingLines   int           `json:"fundingLines"`
	ProjectVendors int           `json:"projectVendors"`
	ChangeOrders   int           `json:"changeOrders"`
	Warnings       []string      `json:"warnings,omitempty"`
	StartedAt      time.Time     `json:"startedAt"`
	Duration       time.Duration `json:"duration"`
}

func (r *Report) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Manager owns the one-time legacy migration of a store
type Manager struct {
	store  *store.Store
	logger *zap.Logger

	group singleflight.Group

	// migrateMu serializes check-and-migrate runs so the legacy document is
	// converted at most once
	migrateMu sync.Mutex

	mu         sync.Mutex
	state      State
	done       bool
	lastReport *Report
}

// NewManager creates a migration manager for s
func NewManager(s *store.Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:  s,
		logger: logger,
		state:  StateUnknown,
	}
}

// State returns the current migration state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastReport returns the report of the last successful migration, if any
func (m *Manager) LastReport() *Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReport
}

// Status returns the externally visible migration status
func (m *Manager) Status(ctx context.Context) (domain.MigrationStatus, error) {
	status := domain.MigrationStatus{State: string(m.State()), SchemaVersion: schema.Version}
	err := m.store.View(ctx, func(doc *store.Document) error {
		if doc.Metadata.Version != "" {
			status.SchemaVersion = doc.Metadata.Version
		}
		status.LastMigration = doc.Metadata.LastMigration
		return nil
	})
	return status, err
}

// Reset forgets the cached state, e.g. after a backup has been restored
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateUnknown
	m.done = false
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
}

// CheckMigrationNeeded inspects the raw document. Migration is needed when
// the legacy shape is present and the relational shape is absent.
func (m *Manager) CheckMigrationNeeded(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	shape, err := m.store.Shape()
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	needed := shape.NeedsMigration()
	switch {
	case needed:
		m.state = StateNeedsMigration
	case m.state != StateMigrated:
		m.state = StateNoMigrationNeeded
	}
	return needed, nil
}

// MigrateToRelationalModel rewrites the legacy document into the normalized
// shape and persists it. On any failure the original bytes are written back
// and the error wraps domain.ErrMigrationFailed.
func (m *Manager) MigrateToRelationalModel(ctx context.Context) (*Report, error) {
	m.migrateMu.Lock()
	defer m.migrateMu.Unlock()
	return m.migrate(ctx)
}

// migrate runs one migration. The caller holds migrateMu.
func (m *Manager) migrate(ctx context.Context) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	backup, err := m.store.Raw()
	if err != nil {
		return nil, err
	}
	shape, err := store.InspectShape(backup)
	if err != nil {
		return nil, err
	}
	if !shape.NeedsMigration() {
		return nil, ErrNotLegacy
	}

	started := time.Now()
	now := m.store.Now()
	report := &Report{StartedAt: now}
	m.logger.Info("starting legacy document migration", zap.String("path", m.store.Path()))

	doc, err := newConverter(now, report).convert(backup)
	if err == nil {
		doc.Metadata.LastMigration = &now
		err = m.store.Replace(doc)
	}
	if err != nil {
		m.logger.Error("migration failed, restoring backup", zap.Error(err))
		if restoreErr := m.store.Restore(backup); restoreErr != nil {
			m.logger.Error("failed to restore document after migration failure", zap.Error(restoreErr))
			return nil, fmt.Errorf("%w: %w (restore failed: %v)", domain.ErrMigrationFailed, err, restoreErr)
		}
		m.setState(StateNeedsMigration)
		return nil, fmt.Errorf("%w: %w", domain.ErrMigrationFailed, err)
	}

	report.Duration = time.Since(started)
	m.mu.Lock()
	m.state = StateMigrated
	m.lastReport = report
	m.mu.Unlock()

	m.logger.Info("legacy document migrated",
		zap.Int("users", report.Users),
		zap.Int("vendors", report.Vendors),
		zap.Int("projects", report.Projects),
		zap.Int("funding_lines", report.FundingLines),
		zap.Int("project_vendors", report.ProjectVendors),
		zap.Int("change_orders", report.ChangeOrders),
		zap.Int("warnings", len(report.Warnings)),
	)
	for _, w := range report.Warnings {
		m.logger.Warn("migration warning", zap.String("detail", w))
	}
	return report, nil
}

// EnsureMigrated checks the store and migrates it if needed. Concurrent
// callers share one run; after a successful run later calls return at once.
func (m *Manager) EnsureMigrated(ctx context.Context) error {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done {
		return nil
	}

	_, err, _ := m.group.Do("ensure", func() (any, error) {
		m.mu.Lock()
		done := m.done
		m.mu.Unlock()
		if done {
			return nil, nil
		}

		m.migrateMu.Lock()
		defer m.migrateMu.Unlock()
		needed, err := m.CheckMigrationNeeded(ctx)
		if err != nil {
			return nil, err
		}
		if needed {
			if _, err := m.migrate(ctx); err != nil {
				return nil, err
			}
		}

		m.mu.Lock()
		m.done = true
		m.mu.Unlock()
		return nil, nil
	})
	return err
}
