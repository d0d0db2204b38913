// Package testutil provides in-memory stores and seed data for package tests
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/auth"
	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/repository"
	"github.com/straye-as/pfmt-tracker/internal/store"
)

// DocumentPath is where test stores keep their document
const DocumentPath = "data/pfmt.json"

var emailSeq atomic.Int64

// NewStore creates a store on a fresh in-memory filesystem
func NewStore(t testing.TB, opts ...store.Option) (*store.Store, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	s := store.New(DocumentPath, fs, zap.NewNop(), opts...)
	require.NoError(t, s.Read(false))
	return s, fs
}

// NewRepositories creates repositories over a fresh in-memory store
func NewRepositories(t testing.TB) *repository.Repositories {
	t.Helper()
	s, _ := NewStore(t)
	return repository.NewRepositories(s, zap.NewNop())
}

// WriteJSON encodes v to path on fs
func WriteJSON(t testing.TB, fs afero.Fs, path string, v any) []byte {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, path, data, 0o644))
	return data
}

// CreateTestUser creates an active user with the role's default permissions
func CreateTestUser(t testing.TB, repos *repository.Repositories, name string, role domain.UserRole) *domain.User {
	t.Helper()
	user, err := repos.Users.Create(context.Background(), &domain.User{
		Name:        name,
		Email:       fmt.Sprintf("user%d@example.com", emailSeq.Add(1)),
		Role:        role,
		Department:  "Capital Projects",
		IsActive:    true,
		Permissions: domain.DefaultPermissions(role),
	})
	require.NoError(t, err)
	return user
}

// CreateTestVendor creates an active vendor
func CreateTestVendor(t testing.TB, repos *repository.Repositories, name string) *domain.Vendor {
	t.Helper()
	vendor, err := repos.Vendors.Create(context.Background(), &domain.Vendor{
		Name:       name,
		VendorType: "Contractor",
		IsActive:   true,
	})
	require.NoError(t, err)
	return vendor
}

// CreateTestProject creates an active project owned by ownerID
func CreateTestProject(t testing.TB, repos *repository.Repositories, ownerID int, name string) *domain.Project {
	t.Helper()
	project, err := repos.Projects.Create(context.Background(), &domain.Project{
		Name:    name,
		Status:  domain.ProjectStatusActive,
		Phase:   "Construction",
		OwnerID: ownerID,
		Financial: domain.Financial{
			ApprovedTPC: decimal.NewFromInt(1_000_000),
			TotalBudget: decimal.NewFromInt(1_000_000),
			EAC:         decimal.NewFromInt(1_050_000),
		},
	})
	require.NoError(t, err)
	return project
}

// CreateTestAssignment grants userID the access level on projectID
func CreateTestAssignment(t testing.TB, repos *repository.Repositories, projectID string, userID, grantedBy int, level domain.AccessLevel) *domain.ProjectAssignment {
	t.Helper()
	assignment, err := repos.Assignments.Create(context.Background(), &domain.ProjectAssignment{
		ProjectID:   projectID,
		UserID:      userID,
		GrantedBy:   grantedBy,
		AccessLevel: level,
		IsActive:    true,
	})
	require.NoError(t, err)
	return assignment
}

// AsUser returns a context carrying user as the authenticated caller
func AsUser(user *domain.User) context.Context {
	return auth.WithUserContext(context.Background(), &auth.UserContext{
		UserID: user.ID,
		Name:   user.Name,
		Email:  user.Email,
		Role:   user.Role,
	})
}
