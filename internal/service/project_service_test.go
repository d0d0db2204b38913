package service_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/service"
	"github.com/straye-as/pfmt-tracker/internal/testutil"
)

func createRequest(name string) *domain.CreateProjectRequest {
	return &domain.CreateProjectRequest{
		Name:     name,
		Phase:    "Design",
		Location: domain.Location{Region: "North"},
		Financial: domain.Financial{
			ApprovedTPC: decimal.NewFromInt(2_000_000),
			EAC:         decimal.NewFromInt(1_900_000),
		},
		FundingLines: []domain.FundingLineInput{
			{Source: "Capital Plan", ApprovedValue: decimal.NewFromInt(1_500_000), SpentToDate: decimal.NewFromInt(200_000)},
			{Source: "Federal Grant", ApprovedValue: decimal.NewFromInt(500_000)},
		},
	}
}

func TestProjectService_Create(t *testing.T) {
	svc := newServices(t)
	pm := testutil.CreateTestUser(t, svc.repos, "PM", domain.RoleProjectManager)
	vendor := testutil.CreateTestVendor(t, svc.repos, "Northern Builders")

	req := createRequest("School")
	req.PrimaryVendorID = &vendor.ID

	project, err := svc.projects.Create(testutil.AsUser(pm), req)
	require.NoError(t, err)

	assert.Regexp(t, `^\d{2}-\d{2}-[0-9a-z]{2}$`, project.ID)
	assert.Equal(t, domain.ProjectStatusActive, project.Status)
	assert.Equal(t, pm.ID, project.OwnerID)
	require.NotNil(t, project.Owner)
	assert.Equal(t, "PM", project.Owner.Name)
	assert.True(t, project.Financial.Variance.Equal(decimal.NewFromInt(-100_000)))

	require.Len(t, project.FundingLines, 2)
	assert.Equal(t, "Capital Plan", project.FundingLines[0].Source)
	assert.True(t, project.FundingLines[0].RemainingBudget.Equal(decimal.NewFromInt(1_300_000)))

	require.Len(t, project.Vendors, 1)
	assert.Equal(t, "Primary Contractor", project.Vendors[0].VendorRole)
	assert.Equal(t, "Northern Builders", project.Vendors[0].Vendor.Name)
}

func TestProjectService_CreateRejections(t *testing.T) {
	svc := newServices(t)
	pm := testutil.CreateTestUser(t, svc.repos, "PM", domain.RoleProjectManager)
	other := testutil.CreateTestUser(t, svc.repos, "Other", domain.RoleProjectManager)
	missingVendor := 999

	tests := []struct {
		name    string
		ctx     context.Context
		mutate  func(*domain.CreateProjectRequest)
		wantErr error
	}{
		{
			name:    "unauthenticated",
			ctx:     context.Background(),
			mutate:  func(*domain.CreateProjectRequest) {},
			wantErr: service.ErrUnauthorized,
		},
		{
			name:    "missing name",
			ctx:     testutil.AsUser(pm),
			mutate:  func(r *domain.CreateProjectRequest) { r.Name = "" },
			wantErr: domain.ErrValidation,
		},
		{
			name:    "funding line without source",
			ctx:     testutil.AsUser(pm),
			mutate:  func(r *domain.CreateProjectRequest) { r.FundingLines[1].Source = "" },
			wantErr: domain.ErrValidation,
		},
		{
			name:    "project manager creating for someone else",
			ctx:     testutil.AsUser(pm),
			mutate:  func(r *domain.CreateProjectRequest) { r.OwnerID = other.ID },
			wantErr: domain.ErrAccessDenied,
		},
		{
			name:    "unknown primary vendor",
			ctx:     testutil.AsUser(pm),
			mutate:  func(r *domain.CreateProjectRequest) { r.PrimaryVendorID = &missingVendor },
			wantErr: domain.ErrValidation,
		},
		{
			name:    "invalid status",
			ctx:     testutil.AsUser(pm),
			mutate:  func(r *domain.CreateProjectRequest) { r.Status = "Paused" },
			wantErr: domain.ErrValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := createRequest("Rejected")
			tt.mutate(req)
			_, err := svc.projects.Create(tt.ctx, req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// nothing from the rejected requests reached the document
	projects, err := svc.repos.Projects.Count(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, projects)
	lines, err := svc.repos.FundingLines.Count(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, lines)
}

func TestProjectService_DirectorCreatesForOwner(t *testing.T) {
	svc := newServices(t)
	director := testutil.CreateTestUser(t, svc.repos, "Director", domain.RoleDirector)
	pm := testutil.CreateTestUser(t, svc.repos, "PM", domain.RoleProjectManager)

	req := createRequest("Delegated")
	req.OwnerID = pm.ID
	project, err := svc.projects.Create(testutil.AsUser(director), req)
	require.NoError(t, err)
	assert.Equal(t, pm.ID, project.OwnerID)
}

func TestProjectService_GetAndList(t *testing.T) {
	svc := newServices(t)
	pm := testutil.CreateTestUser(t, svc.repos, "PM", domain.RoleProjectManager)
	other := testutil.CreateTestUser(t, svc.repos, "Other", domain.RoleProjectManager)
	director := testutil.CreateTestUser(t, svc.repos, "Director", domain.RoleDirector)

	owned := testutil.CreateTestProject(t, svc.repos, pm.ID, "Bravo")
	assigned := testutil.CreateTestProject(t, svc.repos, other.ID, "Alpha")
	hidden := testutil.CreateTestProject(t, svc.repos, other.ID, "Charlie")
	testutil.CreateTestAssignment(t, svc.repos, assigned.ID, pm.ID, other.ID, domain.AccessViewer)

	_, err := svc.projects.GetByID(testutil.AsUser(pm), hidden.ID)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)
	_, err = svc.projects.GetByID(testutil.AsUser(pm), "00-00-00")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	got, err := svc.projects.GetByID(testutil.AsUser(pm), owned.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bravo", got.Name)

	page, err := svc.projects.List(testutil.AsUser(pm), nil, &domain.ListParams{SortBy: "name", SortOrder: "asc"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	projects := page.Data.([]*domain.ProjectWithRelationships)
	require.Len(t, projects, 2)
	assert.Equal(t, "Alpha", projects[0].Name)
	assert.Equal(t, "Bravo", projects[1].Name)

	page, err = svc.projects.List(testutil.AsUser(director), nil, &domain.ListParams{Page: 2, PageSize: 2, SortBy: "name", SortOrder: "asc"})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	projects = page.Data.([]*domain.ProjectWithRelationships)
	require.Len(t, projects, 1)
	assert.Equal(t, "Charlie", projects[0].Name)

	page, err = svc.projects.List(testutil.AsUser(director), &domain.ProjectFilters{OwnerID: pm.ID}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestProjectService_Update(t *testing.T) {
	svc := newServices(t)
	owner := testutil.CreateTestUser(t, svc.repos, "Owner", domain.RoleProjectManager)
	editor := testutil.CreateTestUser(t, svc.repos, "Editor", domain.RoleProjectManager)
	viewer := testutil.CreateTestUser(t, svc.repos, "Viewer", domain.RoleProjectManager)
	project := testutil.CreateTestProject(t, svc.repos, owner.ID, "Library")
	testutil.CreateTestAssignment(t, svc.repos, project.ID, editor.ID, owner.ID, domain.AccessEditor)
	testutil.CreateTestAssignment(t, svc.repos, project.ID, viewer.ID, owner.ID, domain.AccessViewer)

	_, err := svc.projects.Update(testutil.AsUser(viewer), project.ID, map[string]any{"phase": "Closeout"})
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	updated, err := svc.projects.Update(testutil.AsUser(editor), project.ID, map[string]any{
		"phase":     "Closeout",
		"financial": map[string]any{"approvedTPC": 1_000_000, "eac": 1_200_000},
	})
	require.NoError(t, err)
	assert.Equal(t, "Closeout", updated.Phase)
	assert.True(t, updated.Financial.Variance.Equal(decimal.NewFromInt(200_000)))

	_, err = svc.projects.Update(testutil.AsUser(editor), project.ID, map[string]any{"ownerId": editor.ID})
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	_, err = svc.projects.Update(testutil.AsUser(owner), project.ID, map[string]any{"ownerId": 4242})
	assert.ErrorIs(t, err, domain.ErrValidation)

	transferred, err := svc.projects.Update(testutil.AsUser(owner), project.ID, map[string]any{"ownerId": editor.ID})
	require.NoError(t, err)
	assert.Equal(t, editor.ID, transferred.OwnerID)
}

func TestProjectService_DeleteRetiresRows(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t)
	owner := testutil.CreateTestUser(t, svc.repos, "Owner", domain.RoleProjectManager)
	viewer := testutil.CreateTestUser(t, svc.repos, "Viewer", domain.RoleProjectManager)

	project, err := svc.projects.Create(testutil.AsUser(owner), createRequest("Temporary"))
	require.NoError(t, err)
	testutil.CreateTestAssignment(t, svc.repos, project.ID, viewer.ID, owner.ID, domain.AccessViewer)

	assert.ErrorIs(t, svc.projects.Delete(testutil.AsUser(viewer), project.ID), domain.ErrAccessDenied)
	require.NoError(t, svc.projects.Delete(testutil.AsUser(owner), project.ID))

	_, ok, err := svc.repos.Projects.FindByID(ctx, project.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	lines, err := svc.repos.FundingLines.ForProject(ctx, project.ID, false)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	for _, l := range lines {
		assert.False(t, l.IsActive)
	}
	assignments, err := svc.repos.Assignments.ForProject(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.False(t, assignments[0].IsActive)

	assert.ErrorIs(t, svc.projects.Delete(testutil.AsUser(owner), project.ID), domain.ErrNotFound)
}

func TestProjectService_ChangeOrders(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t)
	owner := testutil.CreateTestUser(t, svc.repos, "Owner", domain.RoleProjectManager)
	editor := testutil.CreateTestUser(t, svc.repos, "Editor", domain.RoleProjectManager)
	project := testutil.CreateTestProject(t, svc.repos, owner.ID, "Arena")
	testutil.CreateTestAssignment(t, svc.repos, project.ID, editor.ID, owner.ID, domain.AccessEditor)

	co, err := svc.projects.AddChangeOrder(testutil.AsUser(editor), project.ID, &domain.ChangeOrder{
		ReferenceNumber: "CO-001",
		Value:           decimal.NewFromInt(25_000),
		Status:          domain.ChangeOrderApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeOrderPending, co.Status)
	assert.Equal(t, "Editor", co.RequestedBy)

	// editors cannot approve
	_, err = svc.projects.DecideChangeOrder(testutil.AsUser(editor), project.ID, co.ID, true)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	approved, err := svc.projects.DecideChangeOrder(testutil.AsUser(owner), project.ID, co.ID, true)
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeOrderApproved, approved.Status)
	assert.Equal(t, "Owner", approved.ApprovedBy)
	assert.NotEmpty(t, approved.ApprovedDate)

	_, err = svc.projects.DecideChangeOrder(testutil.AsUser(owner), project.ID, co.ID, false)
	assert.ErrorIs(t, err, service.ErrConflict)

	require.NoError(t, svc.projects.RetireChangeOrder(testutil.AsUser(editor), project.ID, co.ID))
	active, err := svc.repos.ChangeOrders.ForProject(ctx, project.ID, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	assert.ErrorIs(t, svc.projects.RetireChangeOrder(testutil.AsUser(editor), "other", co.ID), domain.ErrNotFound)
}

func TestProjectService_RetireFundingLine(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t)
	owner := testutil.CreateTestUser(t, svc.repos, "Owner", domain.RoleProjectManager)
	project, err := svc.projects.Create(testutil.AsUser(owner), createRequest("Clinic"))
	require.NoError(t, err)

	lineID := project.FundingLines[0].ID
	require.NoError(t, svc.projects.RetireFundingLine(testutil.AsUser(owner), project.ID, lineID))

	hydrated, ok, err := svc.repos.Projects.FindByIDWithRelationships(ctx, project.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, hydrated.FundingLines, 1)
	assert.Equal(t, "Federal Grant", hydrated.FundingLines[0].Source)

	assert.ErrorIs(t, svc.projects.RetireFundingLine(testutil.AsUser(owner), project.ID, 999), domain.ErrNotFound)
}
