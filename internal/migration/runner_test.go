package migration_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/migration"
	"github.com/straye-as/pfmt-tracker/internal/storage"
	"github.com/straye-as/pfmt-tracker/internal/store"
	"github.com/straye-as/pfmt-tracker/internal/testutil"
)

func newRunner(t *testing.T, doc map[string]any, opts ...migration.RunnerOption) (*migration.Runner, *migration.Manager, afero.Fs, []byte) {
	t.Helper()
	s, fs, raw := newLegacyStore(t, doc)
	backups, err := storage.NewLocalStorage(fs, "backups")
	require.NoError(t, err)
	m := migration.NewManager(s, zap.NewNop())
	return migration.NewRunner(s, m, backups, zap.NewNop(), opts...), m, fs, raw
}

func TestRunner_MigrateWritesBackupAndValidates(t *testing.T) {
	ctx := context.Background()
	runner, _, fs, legacy := newRunner(t, legacyFixture())

	check, err := runner.Check(ctx)
	require.NoError(t, err)
	assert.True(t, check.NeedsMigration)
	assert.True(t, check.Legacy)
	assert.Nil(t, check.Counts)

	result, err := runner.Migrate(ctx)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	require.NotNil(t, result.Report)
	assert.Contains(t, result.Backup, migration.BackupKind+"/")

	backups, err := runner.Backups(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, result.Backup, backups[0].Name)

	stored, err := afero.ReadFile(fs, "backups/"+result.Backup)
	require.NoError(t, err)
	assert.Equal(t, legacy, stored)

	require.NoError(t, runner.Validate(ctx))

	check, err = runner.Check(ctx)
	require.NoError(t, err)
	assert.False(t, check.NeedsMigration)
	assert.Equal(t, 2, check.Counts["projects"])

	again, err := runner.Migrate(ctx)
	require.NoError(t, err)
	assert.True(t, again.Skipped)
}

func TestRunner_RestoreBackup(t *testing.T) {
	ctx := context.Background()
	runner, m, fs, legacy := newRunner(t, legacyFixture())

	result, err := runner.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, migration.StateMigrated, m.State())

	require.NoError(t, runner.Restore(ctx, result.Backup))
	assert.Equal(t, migration.StateUnknown, m.State())

	onDisk, err := afero.ReadFile(fs, testutil.DocumentPath)
	require.NoError(t, err)
	assert.Equal(t, legacy, onDisk)

	needed, err := m.CheckMigrationNeeded(ctx)
	require.NoError(t, err)
	assert.True(t, needed)

	err = runner.Restore(ctx, "pre-migration/missing.json")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestRunner_MigrateFailureKeepsBackup(t *testing.T) {
	ctx := context.Background()
	doc := legacyFixture()
	doc["projects"].([]any)[0].(map[string]any)["eac"] = "lots"
	runner, _, fs, legacy := newRunner(t, doc)

	result, err := runner.Migrate(ctx)
	require.Error(t, err)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.Backup)

	onDisk, err := afero.ReadFile(fs, testutil.DocumentPath)
	require.NoError(t, err)
	assert.Equal(t, legacy, onDisk)

	rc, err := storage.Storage(mustLocal(t, fs)).Get(ctx, result.Backup)
	require.NoError(t, err)
	defer rc.Close()
	stored, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, legacy, stored)
}

func TestRunner_FailedValidationRestoresBackup(t *testing.T) {
	ctx := context.Background()
	errIncomplete := errors.New("sample project is missing group pfmt")
	var validated []byte
	runner, m, fs, legacy := newRunner(t, legacyFixture(), migration.WithValidator(func(raw []byte) error {
		validated = raw
		return errIncomplete
	}))

	result, err := runner.Migrate(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMigrationFailed)
	assert.ErrorIs(t, err, errIncomplete)
	require.NotNil(t, result)
	assert.Nil(t, result.Report)
	assert.NotEmpty(t, result.Backup)

	// the validator saw the migrated document, not the legacy one
	shape, err := store.InspectShape(validated)
	require.NoError(t, err)
	assert.True(t, shape.Relational)

	onDisk, err := afero.ReadFile(fs, testutil.DocumentPath)
	require.NoError(t, err)
	assert.Equal(t, legacy, onDisk)

	backup, err := afero.ReadFile(fs, "backups/"+result.Backup)
	require.NoError(t, err)
	assert.Equal(t, backup, onDisk)

	assert.Equal(t, migration.StateUnknown, m.State())

	needed, err := m.CheckMigrationNeeded(ctx)
	require.NoError(t, err)
	assert.True(t, needed)
	assert.Equal(t, migration.StateNeedsMigration, m.State())
}

func TestRunner_ConcurrentMigrationsConvertOnce(t *testing.T) {
	ctx := context.Background()
	s, fs, _ := newLegacyStore(t, legacyFixture())
	m := migration.NewManager(s, zap.NewNop())
	runner := migration.NewRunner(s, m, mustLocal(t, fs), zap.NewNop())

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		converted int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				result, err := runner.Migrate(ctx)
				assert.NoError(t, err)
				if err == nil && !result.Skipped {
					mu.Lock()
					converted++
					mu.Unlock()
				}
				return
			}
			_, err := m.MigrateToRelationalModel(ctx)
			if err == nil {
				mu.Lock()
				converted++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, migration.ErrNotLegacy)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, converted)
	assert.Equal(t, migration.StateMigrated, m.State())
	require.NoError(t, s.View(ctx, func(doc *store.Document) error {
		assert.Len(t, doc.Vendors, 4)
		assert.Len(t, doc.ProjectVendors, 4)
		assert.Len(t, doc.FundingLines, 3)
		return nil
	}))
}

func TestValidateDocument(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr []string
	}{
		{
			name: "complete",
			raw: `{"users":[],"vendors":[],"projects":[{"location":{},"building":{},"financial":{},"statusTracking":{},"workflow":{},"pfmt":{}}],
				"projectAssignments":[],"fundingLines":[],"projectVendors":[],"changeOrders":[],"files":[]}`,
		},
		{
			name:    "missing collections",
			raw:     `{"users":[],"projects":[]}`,
			wantErr: []string{"collection vendors is missing", "collection files is missing"},
		},
		{
			name: "sample project missing groups",
			raw: `{"users":[],"vendors":[],"projects":[{"location":{},"building":null}],
				"projectAssignments":[],"fundingLines":[],"projectVendors":[],"changeOrders":[],"files":[]}`,
			wantErr: []string{"group building", "group pfmt"},
		},
		{
			name:    "not json",
			raw:     `nope`,
			wantErr: []string{"decode document"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := migration.ValidateDocument([]byte(tt.raw))
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func mustLocal(t *testing.T, fs afero.Fs) *storage.LocalStorage {
	t.Helper()
	ls, err := storage.NewLocalStorage(fs, "backups")
	require.NoError(t, err)
	return ls
}
