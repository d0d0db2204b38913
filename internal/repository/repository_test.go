package repository_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/repository"
	"github.com/straye-as/pfmt-tracker/internal/testutil"
)

func TestCreate_FindByIDReturnsEqualRecord(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewRepositories(t)
	owner := testutil.CreateTestUser(t, repos, "Owner", domain.RoleProjectManager)
	project := testutil.CreateTestProject(t, repos, owner.ID, "Library expansion")
	vendor := testutil.CreateTestVendor(t, repos, "ABC Construction Ltd.")

	rating := 4.5
	link, err := repos.ProjectVendors.Create(ctx, &domain.ProjectVendor{
		ProjectID:         project.ID,
		VendorID:          &vendor.ID,
		ContractValue:     decimal.RequireFromString("125000.50"),
		PerformanceRating: &rating,
		IsActive:          true,
	})
	require.NoError(t, err)

	t.Run("user", func(t *testing.T) {
		found, ok, err := repos.Users.FindByID(ctx, owner.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, owner, found)
	})
	t.Run("project", func(t *testing.T) {
		found, ok, err := repos.Projects.FindByID(ctx, project.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, project, found)
	})
	t.Run("vendor", func(t *testing.T) {
		found, ok, err := repos.Vendors.FindByID(ctx, vendor.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, vendor, found)
	})
	t.Run("project vendor", func(t *testing.T) {
		found, ok, err := repos.ProjectVendors.FindByID(ctx, link.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, link, found)
		assert.True(t, found.ContractValue.Equal(decimal.RequireFromString("125000.50")))
	})
}

func TestFindByID_MissingIsNotAnError(t *testing.T) {
	repos := testutil.NewRepositories(t)

	user, ok, err := repos.Users.FindByID(context.Background(), 42)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, user)
}

func TestCreate_AssignsSequentialIDs(t *testing.T) {
	repos := testutil.NewRepositories(t)

	first := testutil.CreateTestVendor(t, repos, "First")
	second := testutil.CreateTestVendor(t, repos, "Second")
	assert.Equal(t, 1, first.ID)
	assert.Equal(t, 2, second.ID)

	_, err := repos.Vendors.Delete(context.Background(), first.ID)
	require.NoError(t, err)
	third := testutil.CreateTestVendor(t, repos, "Third")
	assert.Equal(t, 3, third.ID)
}

func TestCreate_IgnoresSuppliedIntegerID(t *testing.T) {
	repos := testutil.NewRepositories(t)

	vendor, err := repos.Vendors.Create(context.Background(), &domain.Vendor{
		Record: domain.Record{ID: 99},
		Name:   "Supplied",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, vendor.ID)
}

func TestCreate_DoesNotAliasInput(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewRepositories(t)
	input := &domain.Vendor{Name: "Original"}

	created, err := repos.Vendors.Create(ctx, input)
	require.NoError(t, err)
	input.Name = "Mutated"
	created.Name = "Also mutated"

	stored, ok, err := repos.Vendors.FindByID(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Original", stored.Name)
}

func TestCreate_Validation(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewRepositories(t)
	testutil.CreateTestVendor(t, repos, "ABC Construction Ltd.")
	existing := testutil.CreateTestUser(t, repos, "Existing", domain.RoleDirector)

	tests := []struct {
		name   string
		create func() error
	}{
		{
			name: "duplicate vendor name",
			create: func() error {
				_, err := repos.Vendors.Create(ctx, &domain.Vendor{Name: "ABC Construction Ltd."})
				return err
			},
		},
		{
			name: "duplicate user email ignores case",
			create: func() error {
				_, err := repos.Users.Create(ctx, &domain.User{
					Name: "Dup", Email: strings.ToUpper(existing.Email), Role: domain.RoleAdmin,
				})
				return err
			},
		},
		{
			name: "malformed email",
			create: func() error {
				_, err := repos.Users.Create(ctx, &domain.User{
					Name: "Bad", Email: "not-an-email", Role: domain.RoleAdmin,
				})
				return err
			},
		},
		{
			name: "unknown role",
			create: func() error {
				_, err := repos.Users.Create(ctx, &domain.User{
					Name: "Odd", Email: "odd@example.com", Role: "Intern",
				})
				return err
			},
		},
		{
			name: "project without owner",
			create: func() error {
				_, err := repos.Projects.Create(ctx, &domain.Project{Name: "Orphan"})
				return err
			},
		},
		{
			name: "funding line without source",
			create: func() error {
				_, err := repos.FundingLines.Create(ctx, &domain.FundingLine{ProjectID: "01-02-ab"})
				return err
			},
		},
		{
			name: "assignment with unknown access level",
			create: func() error {
				_, err := repos.Assignments.Create(ctx, &domain.ProjectAssignment{
					ProjectID: "01-02-ab", UserID: 1, GrantedBy: 1, AccessLevel: "Owner",
				})
				return err
			},
		},
		{
			name: "nil record",
			create: func() error {
				_, err := repos.Vendors.Create(ctx, nil)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.create()
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation), "got %v", err)
		})
	}
}

func TestUpdate_EmptyPatchOnlyRefreshesUpdatedAt(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewRepositories(t)
	owner := testutil.CreateTestUser(t, repos, "Owner", domain.RoleProjectManager)
	project := testutil.CreateTestProject(t, repos, owner.ID, "Clinic")

	updatedUser, err := repos.Users.Update(ctx, owner.ID, map[string]any{})
	require.NoError(t, err)
	assert.True(t, updatedUser.UpdatedAt.After(owner.UpdatedAt))
	assert.Equal(t, owner.CreatedAt, updatedUser.CreatedAt)
	updatedUser.UpdatedAt = owner.UpdatedAt
	assert.Equal(t, owner, updatedUser)

	updatedProject, err := repos.Projects.Update(ctx, project.ID, map[string]any{})
	require.NoError(t, err)
	assert.True(t, updatedProject.UpdatedAt.After(project.UpdatedAt))
	updatedProject.UpdatedAt = project.UpdatedAt
	assert.Equal(t, project, updatedProject)
}

func TestUpdate_MergesPatch(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewRepositories(t)
	owner := testutil.CreateTestUser(t, repos, "Owner", domain.RoleProjectManager)
	project := testutil.CreateTestProject(t, repos, owner.ID, "School")

	updated, err := repos.Projects.Update(ctx, project.ID, map[string]any{
		"name":      "School phase 2",
		"id":        "hijacked",
		"createdAt": "2001-01-01T00:00:00Z",
		"financial": map[string]any{"approvedTPC": 200, "eac": 250},
	})
	require.NoError(t, err)

	assert.Equal(t, project.ID, updated.ID)
	assert.Equal(t, project.CreatedAt, updated.CreatedAt)
	assert.Equal(t, "School phase 2", updated.Name)
	assert.Equal(t, project.Phase, updated.Phase)
	assert.True(t, updated.Financial.Variance.Equal(decimal.NewFromInt(50)))
	// shallow merge replaces the whole group
	assert.True(t, updated.Financial.TotalBudget.IsZero())
}

func TestUpdate_DeleteMissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewRepositories(t)

	_, err := repos.Vendors.Update(ctx, 5, map[string]any{"name": "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = repos.Projects.Delete(ctx, "00-00-zz")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdate_RejectedPatchLeavesRecord(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewRepositories(t)
	testutil.CreateTestVendor(t, repos, "Taken")
	vendor := testutil.CreateTestVendor(t, repos, "Free")

	_, err := repos.Vendors.Update(ctx, vendor.ID, map[string]any{"name": "Taken"})
	require.ErrorIs(t, err, domain.ErrValidation)

	stored, _, err := repos.Vendors.FindByID(ctx, vendor.ID)
	require.NoError(t, err)
	assert.Equal(t, "Free", stored.Name)
}

func TestDelete_ReturnsRemovedRecord(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewRepositories(t)
	vendor := testutil.CreateTestVendor(t, repos, "Gone")

	removed, err := repos.Vendors.Delete(ctx, vendor.ID)
	require.NoError(t, err)
	assert.Equal(t, vendor.Name, removed.Name)

	count, err := repos.Vendors.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestProjectIDs(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewRepositories(t)
	owner := testutil.CreateTestUser(t, repos, "Owner", domain.RoleProjectManager)

	project := testutil.CreateTestProject(t, repos, owner.ID, "Generated")
	assert.Regexp(t, `^\d{2}-\d{2}-[0-9a-z]{2}$`, project.ID)

	kept, err := repos.Projects.Create(ctx, &domain.Project{ID: "CP-001", Name: "Kept", OwnerID: owner.ID})
	require.NoError(t, err)
	assert.Equal(t, "CP-001", kept.ID)

	_, err = repos.Projects.Create(ctx, &domain.Project{ID: "CP-001", Name: "Clash", OwnerID: owner.ID})
	assert.ErrorIs(t, err, domain.ErrValidation)

	for i := 0; i < 50; i++ {
		assert.Regexp(t, `^\d{2}-\d{2}-[0-9a-z]{2}$`, repository.NewProjectID())
	}
}

func TestCreate_ConcurrentCreatesGetUniqueIDs(t *testing.T) {
	repos := testutil.NewRepositories(t)
	ctx := context.Background()

	const workers = 30
	var wg sync.WaitGroup
	ids := make(chan int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			line, err := repos.FundingLines.Create(ctx, &domain.FundingLine{
				ProjectID: "01-01-aa",
				Source:    "Provincial",
				IsActive:  true,
			})
			if err == nil {
				ids <- line.ID
			}
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := map[int]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, workers)
}

func TestDerivedFields(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewRepositories(t)

	assignment := testutil.CreateTestAssignment(t, repos, "01-01-aa", 2, 1, domain.AccessViewer)
	assert.Equal(t, domain.AccessViewer.Permissions(), assignment.Permissions)

	updated, err := repos.Assignments.Update(ctx, assignment.ID, map[string]any{"accessLevel": domain.AccessEditor})
	require.NoError(t, err)
	assert.True(t, updated.Permissions.CanEdit)
	assert.False(t, updated.Permissions.CanApprove)

	co, err := repos.ChangeOrders.Create(ctx, &domain.ChangeOrder{ProjectID: "01-01-aa"})
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeOrderPending, co.Status)

	file, err := repos.Files.Create(ctx, &domain.File{ProjectID: "01-01-aa", FileName: "a.pdf", Path: "p/a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, 1, file.Version)
}
