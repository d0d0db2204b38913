package migration_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/migration"
	"github.com/straye-as/pfmt-tracker/internal/repository"
	"github.com/straye-as/pfmt-tracker/internal/store"
	"github.com/straye-as/pfmt-tracker/internal/testutil"
)

var migratedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// legacyFixture is a flat document: two projects with inline vendors,
// funding lines and change orders
func legacyFixture() map[string]any {
	return map[string]any{
		"users": []any{
			map[string]any{"id": 1, "name": "Pat Manager", "email": "pat@example.com", "role": "Project Manager"},
			map[string]any{"id": 2, "name": "Dana Director", "email": "dana@example.com", "role": "Director"},
			map[string]any{"id": 3, "name": "Chris Coordinator", "email": "chris@example.com", "role": "Coordinator"},
		},
		"projects": []any{
			map[string]any{
				"id":               "24-01-aa",
				"name":             "Hospital Wing",
				"status":           "Active",
				"projectManagerId": 1,
				"region":           "North",
				"municipality":     "Red Deer",
				"buildingName":     "General Hospital",
				"buildingType":     "Healthcare",
				"squareMeters":     1200.5,
				"approvedTPC":      "$1,250,000",
				"eac":              1300000,
				"scheduleStatus":   "Green",
				"generalComments":  "On track",
				"contractor":       "ABC Construction Ltd.",
				"vendors": []any{
					map[string]any{"name": "ABC Construction Ltd.", "contractValue": 900000, "performanceRating": 4},
					map[string]any{"name": "Sub Electric", "contractValue": "150,000.50"},
				},
				"fundingLines": []any{
					map[string]any{"source": "Capital Plan", "approvedValue": 1000000, "spentToDate": 250000},
					map[string]any{"source": "Federal", "approvedValue": 250000},
				},
				"changeOrders": []any{
					map[string]any{"referenceNumber": "CO-1", "vendor": "Sub Electric", "value": "12,500", "status": "approved"},
					map[string]any{"referenceNumber": "CO-2", "vendor": "Unknown Co", "value": 500},
				},
			},
			map[string]any{
				"id":         42,
				"name":       "School Addition",
				"ownerId":    2,
				"contractor": "XYZ Corp",
				"vendors": []any{
					map[string]any{"name": "ABC Construction Ltd."},
					map[string]any{"name": "ABC Construction Ltd"},
				},
				"fundingLines": []any{
					map[string]any{"source": "Provincial", "approvedValue": "500000"},
				},
				"changeOrders": []any{},
			},
		},
	}
}

// newLegacyStore writes doc to a fresh filesystem and opens a store on it
func newLegacyStore(t *testing.T, doc map[string]any) (*store.Store, afero.Fs, []byte) {
	t.Helper()
	fs := afero.NewMemMapFs()
	raw := testutil.WriteJSON(t, fs, testutil.DocumentPath, doc)
	s := store.New(testutil.DocumentPath, fs, zap.NewNop(), store.WithClock(func() time.Time { return migratedAt }))
	return s, fs, raw
}

func TestCheckMigrationNeeded(t *testing.T) {
	ctx := context.Background()

	t.Run("legacy document", func(t *testing.T) {
		s, _, _ := newLegacyStore(t, legacyFixture())
		m := migration.NewManager(s, zap.NewNop())
		assert.Equal(t, migration.StateUnknown, m.State())

		needed, err := m.CheckMigrationNeeded(ctx)
		require.NoError(t, err)
		assert.True(t, needed)
		assert.Equal(t, migration.StateNeedsMigration, m.State())
	})

	t.Run("fresh store", func(t *testing.T) {
		s, _ := testutil.NewStore(t)
		m := migration.NewManager(s, zap.NewNop())

		needed, err := m.CheckMigrationNeeded(ctx)
		require.NoError(t, err)
		assert.False(t, needed)
		assert.Equal(t, migration.StateNoMigrationNeeded, m.State())
	})

	t.Run("legacy projects next to relational collections", func(t *testing.T) {
		doc := legacyFixture()
		doc["fundingLines"] = []any{}
		s, _, _ := newLegacyStore(t, doc)
		m := migration.NewManager(s, zap.NewNop())

		needed, err := m.CheckMigrationNeeded(ctx)
		require.NoError(t, err)
		assert.False(t, needed)
	})
}

func TestMigrateToRelationalModel(t *testing.T) {
	ctx := context.Background()
	s, fs, _ := newLegacyStore(t, legacyFixture())
	m := migration.NewManager(s, zap.NewNop())

	report, err := m.MigrateToRelationalModel(ctx)
	require.NoError(t, err)
	assert.Equal(t, migration.StateMigrated, m.State())
	assert.Equal(t, 3, report.Users)
	assert.Equal(t, 2, report.Projects)
	assert.Equal(t, 4, report.Vendors)

	// the counts match the inline arrays of the legacy projects
	assert.Equal(t, 3, report.FundingLines)
	assert.Equal(t, 4, report.ProjectVendors)
	assert.Equal(t, 2, report.ChangeOrders)

	needed, err := m.CheckMigrationNeeded(ctx)
	require.NoError(t, err)
	assert.False(t, needed)
	assert.Equal(t, migration.StateMigrated, m.State())

	// reopen from disk to check what was persisted
	reopened := store.New(testutil.DocumentPath, fs, zap.NewNop())
	repos := repository.NewRepositories(reopened, zap.NewNop())

	var meta domain.Metadata
	var counts map[string]int
	require.NoError(t, reopened.View(ctx, func(doc *store.Document) error {
		meta = doc.Metadata
		counts = doc.Counts()
		return nil
	}))
	require.NotNil(t, meta.LastMigration)
	assert.True(t, meta.LastMigration.Equal(migratedAt))
	assert.Equal(t, 3, counts["fundingLines"])
	assert.Equal(t, 4, counts["projectVendors"])
	assert.Equal(t, 2, counts["changeOrders"])

	t.Run("users get role presets", func(t *testing.T) {
		director, _, err := repos.Users.FindByID(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, domain.DefaultPermissions(domain.RoleDirector), director.Permissions)

		unknown, _, err := repos.Users.FindByID(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, domain.DefaultPermissions(domain.RoleProjectManager), unknown.Permissions)
	})

	t.Run("vendors are deduplicated by exact name", func(t *testing.T) {
		abc, err := repos.Vendors.FindMany(ctx, repository.Criteria{"name": repository.Equals("ABC Construction Ltd.")})
		require.NoError(t, err)
		require.Len(t, abc, 1)

		links, err := repos.ProjectVendors.FindMany(ctx, repository.Criteria{"vendorId": repository.Equals(abc[0].ID)})
		require.NoError(t, err)
		require.Len(t, links, 2)
		assert.ElementsMatch(t, []string{"24-01-aa", "42"}, []string{links[0].ProjectID, links[1].ProjectID})
		assert.Equal(t, 2, abc[0].Metadata.TotalProjects)

		_, ok, err := repos.Vendors.FindByName(ctx, "ABC Construction Ltd")
		require.NoError(t, err)
		assert.True(t, ok, "a spelling variant stays a separate vendor")
	})

	t.Run("contractor only vendor becomes the primary vendor", func(t *testing.T) {
		xyz, ok, err := repos.Vendors.FindByName(ctx, "XYZ Corp")
		require.NoError(t, err)
		require.True(t, ok)

		school, ok, err := repos.Projects.FindByIDWithRelationships(ctx, "42")
		require.NoError(t, err)
		require.True(t, ok)
		require.NotNil(t, school.PrimaryVendorID)
		assert.Equal(t, xyz.ID, *school.PrimaryVendorID)
		assert.Equal(t, "XYZ Corp", school.PrimaryVendor.Name)
		assert.Equal(t, 2, school.OwnerID)
		for _, link := range school.Vendors {
			assert.Equal(t, migration.RoleSubcontractor, link.VendorRole)
		}
	})

	t.Run("project is restructured", func(t *testing.T) {
		hospital, ok, err := repos.Projects.FindByIDWithRelationships(ctx, "24-01-aa")
		require.NoError(t, err)
		require.True(t, ok)

		assert.Equal(t, 1, hospital.OwnerID)
		assert.Equal(t, "North", hospital.Location.Region)
		assert.Equal(t, "Red Deer", hospital.Location.Municipality)
		assert.Equal(t, "General Hospital", hospital.Building.Name)
		assert.InDelta(t, 1200.5, hospital.Building.SquareMeters, 0.001)
		assert.Equal(t, "Green", hospital.StatusTracking.Schedule)
		assert.Equal(t, "On track", hospital.Comments.General)
		assert.True(t, hospital.Financial.ApprovedTPC.Equal(decimal.NewFromInt(1250000)))
		assert.True(t, hospital.Financial.Variance.Equal(decimal.NewFromInt(50000)), hospital.Financial.Variance.String())

		require.Len(t, hospital.Vendors, 2)
		roles := map[string]string{}
		for _, link := range hospital.Vendors {
			roles[link.Vendor.Name] = link.VendorRole
		}
		assert.Equal(t, migration.RolePrimaryContractor, roles["ABC Construction Ltd."])
		assert.Equal(t, migration.RoleSubcontractor, roles["Sub Electric"])

		require.Len(t, hospital.FundingLines, 2)
		assert.True(t, hospital.FundingLines[0].RemainingBudget.Equal(decimal.NewFromInt(750000)))

		require.Len(t, hospital.ChangeOrders, 2)
		byRef := map[string]*domain.ChangeOrder{}
		for _, co := range hospital.ChangeOrders {
			byRef[co.ReferenceNumber] = co
		}
		require.NotNil(t, byRef["CO-1"].VendorID)
		assert.Equal(t, domain.ChangeOrderApproved, byRef["CO-1"].Status)
		assert.True(t, byRef["CO-1"].Value.Equal(decimal.NewFromInt(12500)))
		assert.Nil(t, byRef["CO-2"].VendorID, "unresolved vendor stays null")
		assert.Equal(t, domain.ChangeOrderPending, byRef["CO-2"].Status)
	})

	t.Run("migrated document has no integrity issues", func(t *testing.T) {
		snapshot, err := reopened.Snapshot()
		require.NoError(t, err)
		report, err := migration.CheckIntegrity(snapshot)
		require.NoError(t, err)
		assert.True(t, report.OK(), "%v", report.Issues)
	})
}

func TestMigrateToRelationalModel_NamelessVendorKeepsLink(t *testing.T) {
	ctx := context.Background()
	doc := legacyFixture()
	school := doc["projects"].([]any)[1].(map[string]any)
	school["vendors"] = []any{
		map[string]any{"name": "ABC Construction Ltd."},
		map[string]any{"contractValue": 5},
	}
	s, _, _ := newLegacyStore(t, doc)
	m := migration.NewManager(s, zap.NewNop())

	report, err := m.MigrateToRelationalModel(ctx)
	require.NoError(t, err)
	assert.Equal(t, migration.StateMigrated, m.State())
	assert.Equal(t, 4, report.ProjectVendors)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "project 42")
	assert.Contains(t, report.Warnings[0], "has no name")

	var links []*domain.ProjectVendor
	require.NoError(t, s.View(ctx, func(doc *store.Document) error {
		for _, pv := range doc.ProjectVendors {
			if pv.ProjectID == "42" {
				links = append(links, pv)
			}
		}
		return nil
	}))
	require.Len(t, links, 2)
	require.NotNil(t, links[0].VendorID)
	assert.Nil(t, links[1].VendorID)
	assert.Equal(t, migration.RoleSubcontractor, links[1].VendorRole)
	assert.True(t, links[1].ContractValue.Equal(decimal.NewFromInt(5)))

	snapshot, err := s.Snapshot()
	require.NoError(t, err)
	integrity, err := migration.CheckIntegrity(snapshot)
	require.NoError(t, err)
	require.Len(t, integrity.Issues, 1)
	assert.Equal(t, "ProjectVendor", integrity.Issues[0].Entity)
	assert.Equal(t, "vendorId", integrity.Issues[0].Field)
	assert.Equal(t, migration.ProblemMissingReference, integrity.Issues[0].Problem)

	repos := repository.NewRepositories(s, zap.NewNop())
	project, ok, err := repos.Projects.FindByIDWithRelationships(ctx, "42")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, project.Vendors, 2)
	assert.Nil(t, project.Vendors[1].Vendor)
}

func TestMigrateToRelationalModel_FailureRestoresDocument(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(doc map[string]any)
	}{
		{
			name: "invalid funding amount in second project",
			mutate: func(doc map[string]any) {
				project := doc["projects"].([]any)[1].(map[string]any)
				project["fundingLines"] = []any{map[string]any{"source": "Provincial", "approvedValue": "five hundred"}}
			},
		},
		{
			name: "duplicate project id",
			mutate: func(doc map[string]any) {
				project := doc["projects"].([]any)[1].(map[string]any)
				project["id"] = "24-01-aa"
			},
		},
		{
			name: "unknown change order status",
			mutate: func(doc map[string]any) {
				project := doc["projects"].([]any)[0].(map[string]any)
				project["changeOrders"] = []any{map[string]any{"status": "Maybe"}}
			},
		},
		{
			name: "funding lines is not an array",
			mutate: func(doc map[string]any) {
				project := doc["projects"].([]any)[1].(map[string]any)
				project["fundingLines"] = "none"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			doc := legacyFixture()
			tt.mutate(doc)
			s, fs, before := newLegacyStore(t, doc)
			m := migration.NewManager(s, zap.NewNop())

			report, err := m.MigrateToRelationalModel(ctx)
			require.Error(t, err)
			assert.Nil(t, report)
			assert.ErrorIs(t, err, domain.ErrMigrationFailed)
			assert.Equal(t, migration.StateNeedsMigration, m.State())

			onDisk, err := afero.ReadFile(fs, testutil.DocumentPath)
			require.NoError(t, err)
			assert.Equal(t, before, onDisk)

			raw, err := s.Raw()
			require.NoError(t, err)
			assert.Equal(t, before, raw)

			needed, err := m.CheckMigrationNeeded(ctx)
			require.NoError(t, err)
			assert.True(t, needed)
		})
	}
}

func TestMigrateToRelationalModel_WriteFailure(t *testing.T) {
	base := afero.NewMemMapFs()
	before := testutil.WriteJSON(t, base, testutil.DocumentPath, legacyFixture())
	s := store.New(testutil.DocumentPath, afero.NewReadOnlyFs(base), zap.NewNop())
	m := migration.NewManager(s, zap.NewNop())

	_, err := m.MigrateToRelationalModel(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMigrationFailed)
	assert.ErrorIs(t, err, domain.ErrStoreIO)

	onDisk, err := afero.ReadFile(base, testutil.DocumentPath)
	require.NoError(t, err)
	assert.Equal(t, before, onDisk)
}

func TestMigrateToRelationalModel_NotLegacy(t *testing.T) {
	s, _ := testutil.NewStore(t)
	m := migration.NewManager(s, zap.NewNop())

	_, err := m.MigrateToRelationalModel(context.Background())
	assert.ErrorIs(t, err, migration.ErrNotLegacy)
	assert.False(t, errors.Is(err, domain.ErrMigrationFailed))
}

func TestEnsureMigrated_RunsOnceUnderConcurrentCallers(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newLegacyStore(t, legacyFixture())
	m := migration.NewManager(s, zap.NewNop())

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.EnsureMigrated(ctx)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	require.NotNil(t, m.LastReport())
	assert.Equal(t, migration.StateMigrated, m.State())

	require.NoError(t, m.EnsureMigrated(ctx))
	require.NoError(t, s.View(ctx, func(doc *store.Document) error {
		assert.Len(t, doc.Vendors, 4)
		assert.Len(t, doc.Projects, 2)
		return nil
	}))

	status, err := m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(migration.StateMigrated), status.State)
	require.NotNil(t, status.LastMigration)
}

func TestEnsureMigrated_FreshStore(t *testing.T) {
	s, _ := testutil.NewStore(t)
	m := migration.NewManager(s, zap.NewNop())

	require.NoError(t, m.EnsureMigrated(context.Background()))
	assert.Equal(t, migration.StateNoMigrationNeeded, m.State())
	assert.Nil(t, m.LastReport())
}
