package migration_test

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/migration"
)

func TestRowDecimal(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    string
		wantErr bool
	}{
		{"currency string", "$1,250,000.50", "1250000.5", false},
		{"accounting negative", "(1,000)", "-1000", false},
		{"blank", "", "0", false},
		{"dash", "-", "0", false},
		{"json number", json.Number("42.10"), "42.1", false},
		{"float", 12.5, "12.5", false},
		{"int", 7, "7", false},
		{"text", "abc", "", true},
		{"bool", true, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := migration.Row{"amount": tt.value}.Decimal("amount")
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "amount")
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestRowAccessors(t *testing.T) {
	row := migration.Row{
		"id":        json.Number("12"),
		"flag":      "Yes",
		"list":      []any{"a", json.Number("2"), ""},
		"single":    "only",
		"nested":    map[string]any{"city": "Calgary"},
		"city":      "Edmonton",
		"fraction":  "1.5",
		"createdAt": "2023-05-01",
	}

	n, err := row.Int("missing", "id")
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	_, err = row.Int("fraction")
	assert.Error(t, err)

	assert.True(t, row.Bool(false, "flag"))
	assert.True(t, row.Bool(true, "absent"))
	assert.Equal(t, []string{"a", "2"}, row.Strings("list"))
	assert.Equal(t, []string{"only"}, row.Strings("single"))
	assert.Equal(t, []string{}, row.Strings("absent"))
	assert.Equal(t, "12", row.String("id"))

	assert.Equal(t, "Calgary", row.Overlay("nested").String("city"))
	assert.Equal(t, "Edmonton", row.Overlay("absent").String("city"))
	assert.Equal(t, 2023, row.Time(migratedAt, "createdAt").Year())

	rows, err := migration.Row{"items": []any{map[string]any{"a": 1}}}.Rows("items")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	_, err = migration.Row{"items": []any{"x"}}.Rows("items")
	assert.Error(t, err)
}

func TestNewVendorFromRow(t *testing.T) {
	vendor, err := migration.NewVendorFromRow(migration.Row{
		"vendorName":     "Northern Mechanical",
		"contactPerson":  "Sam",
		"email":          "sam@northern.example",
		"address":        map[string]any{"city": "Grande Prairie", "province": "AB"},
		"certifications": []any{"COR"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Northern Mechanical", vendor.Name)
	assert.Equal(t, "Grande Prairie", vendor.Address.City)
	assert.Equal(t, []string{"COR"}, vendor.Certifications)
	assert.Equal(t, []string{}, vendor.Capabilities)
	assert.True(t, vendor.IsActive)
	assert.Zero(t, vendor.ID)

	flat, err := migration.NewVendorFromRow(migration.Row{"name": "Flat Address Co", "address": "1 Main St"})
	require.NoError(t, err)
	assert.Equal(t, "1 Main St", flat.Address.Street)

	_, err = migration.NewVendorFromRow(migration.Row{"name": "  "})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestNewFundingLineFromRow(t *testing.T) {
	line, err := migration.NewFundingLineFromRow(migration.Row{
		"source":        "Capital Plan",
		"approvedValue": "$100,000",
		"spentToDate":   25000,
		"fiscalYear":    "2024-25",
	})
	require.NoError(t, err)
	assert.True(t, line.RemainingBudget.Equal(decimal.NewFromInt(75000)))
	assert.True(t, line.IsActive)

	explicit, err := migration.NewFundingLineFromRow(migration.Row{
		"approvedValue":   100,
		"remainingBudget": 10,
	})
	require.NoError(t, err)
	assert.True(t, explicit.RemainingBudget.Equal(decimal.NewFromInt(10)))

	_, err = migration.NewFundingLineFromRow(migration.Row{"approvedValue": "n/a"})
	assert.Error(t, err)
}

func TestNewProjectVendor(t *testing.T) {
	vendorID := 3
	link, err := migration.NewProjectVendor("p1", &vendorID, migration.RolePrimaryContractor, migration.Row{
		"contractValue":     "1,000",
		"percentComplete":   "45.5",
		"performanceRating": "",
	})
	require.NoError(t, err)
	assert.Equal(t, "p1", link.ProjectID)
	require.NotNil(t, link.VendorID)
	assert.Equal(t, 3, *link.VendorID)
	assert.Equal(t, "Active", link.Status)
	assert.InDelta(t, 45.5, link.PercentComplete, 0.0001)
	assert.Nil(t, link.PerformanceRating)
	assert.True(t, link.ContractValue.Equal(decimal.NewFromInt(1000)))
}

func TestNewChangeOrderFromRow(t *testing.T) {
	order, err := migration.NewChangeOrderFromRow(migration.Row{
		"reference":      "CO-7",
		"status":         "REJECTED",
		"amount":         "(2,500)",
		"impactAnalysis": map[string]any{"schedule": "2 weeks"},
		"riskImpact":     "low",
	})
	require.NoError(t, err)
	assert.Equal(t, "CO-7", order.ReferenceNumber)
	assert.Equal(t, domain.ChangeOrderRejected, order.Status)
	assert.True(t, order.Value.Equal(decimal.NewFromInt(-2500)))
	assert.Equal(t, "2 weeks", order.ImpactAnalysis.Schedule)
	assert.Equal(t, "low", order.ImpactAnalysis.Risk)
	assert.Nil(t, order.VendorID)

	pending, err := migration.NewChangeOrderFromRow(migration.Row{})
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeOrderPending, pending.Status)

	_, err = migration.NewChangeOrderFromRow(migration.Row{"status": "Escalated"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
