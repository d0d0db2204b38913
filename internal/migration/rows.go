package migration

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/straye-as/pfmt-tracker/internal/domain"
)

// Vendor roles written on project-vendor links
const (
	RolePrimaryContractor = "Primary Contractor"
	RoleSubcontractor     = "Subcontractor"
)

// vendorName reads the vendor name of a vendor or change-order row
func vendorName(row Row) string {
	return row.String("name", "vendorName", "vendor")
}

// NewVendorFromRow builds a vendor from a legacy or spreadsheet row. The id
// and timestamps are left for the caller to assign.
func NewVendorFromRow(row Row) (*domain.Vendor, error) {
	name := vendorName(row)
	if strings.TrimSpace(name) == "" {
		return nil, domain.NewValidationError("name", "vendor row has no name")
	}

	vendor := &domain.Vendor{
		Name:           name,
		ContactPerson:  row.String("contactPerson", "contact"),
		Email:          row.String("email"),
		Phone:          row.String("phone"),
		Website:        row.String("website"),
		VendorType:     row.String("vendorType", "type"),
		Certifications: row.Strings("certifications"),
		Capabilities:   row.Strings("capabilities"),
		IsActive:       row.Bool(true, "isActive"),
		Metadata:       domain.VendorMetadata{TotalContractValue: decimal.Zero},
	}

	addr := row.Overlay("address")
	vendor.Address = domain.VendorAddress{
		Street:     addr.String("street"),
		City:       addr.String("city"),
		Province:   addr.String("province"),
		PostalCode: addr.String("postalCode"),
		Country:    addr.String("country"),
	}
	if s, ok := row["address"].(string); ok && vendor.Address.Street == "" {
		vendor.Address.Street = s
	}
	return vendor, nil
}

// NewFundingLineFromRow builds a funding line. Remaining budget defaults to
// approved value minus spent to date when the row does not carry it.
func NewFundingLineFromRow(row Row) (*domain.FundingLine, error) {
	line := &domain.FundingLine{
		ProjectID:       row.String("projectId"),
		Source:          row.String("source", "fundingSource"),
		Description:     row.String("description"),
		CapitalPlanLine: row.String("capitalPlanLine"),
		WBS:             row.String("wbs"),
		ProjectCode:     row.String("projectCode"),
		FiscalYear:      row.String("fiscalYear"),
		FundingType:     row.String("fundingType"),
		IsActive:        row.Bool(true, "isActive"),
	}

	var err error
	if line.ApprovedValue, err = row.Decimal("approvedValue", "approved"); err != nil {
		return nil, fundingLineError(err)
	}
	if line.CurrentYearBudget, err = row.Decimal("currentYearBudget"); err != nil {
		return nil, fundingLineError(err)
	}
	if line.CurrentYearApproved, err = row.Decimal("currentYearApproved"); err != nil {
		return nil, fundingLineError(err)
	}
	if line.SpentToDate, err = row.Decimal("spentToDate", "spent"); err != nil {
		return nil, fundingLineError(err)
	}
	if _, _, ok := row.lookup("remainingBudget"); ok {
		if line.RemainingBudget, err = row.Decimal("remainingBudget"); err != nil {
			return nil, fundingLineError(err)
		}
	} else {
		line.RemainingBudget = line.ApprovedValue.Sub(line.SpentToDate)
	}
	return line, nil
}

func fundingLineError(err error) error {
	return fmt.Errorf("funding line: %w", err)
}

// NewProjectVendor builds the link between a project and an already
// resolved vendor from the contract fields of row. vendorID is nil when the
// row names no vendor.
func NewProjectVendor(projectID string, vendorID *int, role string, row Row) (*domain.ProjectVendor, error) {
	link := &domain.ProjectVendor{
		ProjectID:         projectID,
		VendorID:          vendorID,
		VendorRole:        role,
		ContractID:        row.String("contractId", "contractNumber"),
		ContractStartDate: row.String("contractStartDate", "startDate"),
		ContractEndDate:   row.String("contractEndDate", "endDate"),
		Status:            row.String("status"),
		CMSAsOfDate:       row.String("cmsAsOfDate"),
		IsActive:          row.Bool(true, "isActive"),
	}
	if link.Status == "" {
		link.Status = "Active"
	}

	var err error
	money := []struct {
		dst  *decimal.Decimal
		keys []string
	}{
		{&link.ContractValue, []string{"contractValue"}},
		{&link.CurrentCommitment, []string{"currentCommitment", "commitment"}},
		{&link.BilledToDate, []string{"billedToDate", "billed"}},
		{&link.Holdback, []string{"holdback"}},
		{&link.CMSValue, []string{"cmsValue"}},
		{&link.Variance, []string{"variance"}},
	}
	for _, m := range money {
		if *m.dst, err = row.Decimal(m.keys...); err != nil {
			return nil, fmt.Errorf("project vendor: %w", err)
		}
	}
	if link.PercentComplete, err = row.Float("percentComplete"); err != nil {
		return nil, fmt.Errorf("project vendor: %w", err)
	}
	if link.PerformanceRating, err = row.OptionalFloat("performanceRating", "rating"); err != nil {
		return nil, fmt.Errorf("project vendor: %w", err)
	}
	return link, nil
}

// NewChangeOrderFromRow builds a change order. The vendor is not resolved
// here; callers look the vendor name up themselves. A blank status is Pending.
func NewChangeOrderFromRow(row Row) (*domain.ChangeOrder, error) {
	status, err := changeOrderStatus(row.String("status"))
	if err != nil {
		return nil, err
	}

	impact := row.Overlay("impactAnalysis")
	order := &domain.ChangeOrder{
		ProjectID:       row.String("projectId"),
		ContractID:      row.String("contractId", "contractNumber"),
		ReferenceNumber: row.String("referenceNumber", "reference", "coNumber"),
		Status:          status,
		RequestDate:     row.String("requestDate", "dateRequested"),
		ApprovedDate:    row.String("approvedDate", "dateApproved"),
		ReasonCode:      row.String("reasonCode"),
		Description:     row.String("description"),
		Justification:   row.String("justification"),
		ApprovedBy:      row.String("approvedBy"),
		RequestedBy:     row.String("requestedBy"),
		ImpactAnalysis: domain.ImpactAnalysis{
			Schedule: impact.String("schedule", "scheduleImpact"),
			Budget:   impact.String("budget", "budgetImpact"),
			Scope:    impact.String("scope", "scopeImpact"),
			Risk:     impact.String("risk", "riskImpact"),
		},
		IsActive: row.Bool(true, "isActive"),
	}
	if order.Value, err = row.Decimal("value", "amount"); err != nil {
		return nil, fmt.Errorf("change order: %w", err)
	}
	return order, nil
}

func changeOrderStatus(s string) (domain.ChangeOrderStatus, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.ChangeOrderPending, nil
	}
	for _, known := range []domain.ChangeOrderStatus{domain.ChangeOrderPending, domain.ChangeOrderApproved, domain.ChangeOrderRejected} {
		if strings.EqualFold(s, string(known)) {
			return known, nil
		}
	}
	return "", domain.NewValidationError("status", "unknown change order status %q", s)
}
