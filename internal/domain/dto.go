package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProjectWithRelationships is a project with its related rows resolved
type ProjectWithRelationships struct {
	*Project
	Owner         *User                `json:"owner"`
	PrimaryVendor *Vendor              `json:"primaryVendor"`
	FundingLines  []*FundingLine       `json:"fundingLines"`
	Vendors       []*ProjectVendorLink `json:"vendors"`
	ChangeOrders  []*ChangeOrder       `json:"changeOrders"`
	Files         []*File              `json:"files"`
	Assignments   []*AssignmentGrant   `json:"assignments"`
}

// ProjectVendorLink is a project-vendor row carrying its resolved vendor
type ProjectVendorLink struct {
	*ProjectVendor
	Vendor *Vendor `json:"vendor"`
}

// AssignmentGrant is an assignment row carrying its resolved user
type AssignmentGrant struct {
	*ProjectAssignment
	User *User `json:"user"`
}

// ============================================================================
// Requests
// ============================================================================

// FundingLineInput is the funding-line part of a create-project request
type FundingLineInput struct {
	Source              string          `json:"source" validate:"required"`
	Description         string          `json:"description"`
	CapitalPlanLine     string          `json:"capitalPlanLine"`
	WBS                 string          `json:"wbs"`
	ProjectCode         string          `json:"projectCode"`
	ApprovedValue       decimal.Decimal `json:"approvedValue"`
	CurrentYearBudget   decimal.Decimal `json:"currentYearBudget"`
	CurrentYearApproved decimal.Decimal `json:"currentYearApproved"`
	SpentToDate         decimal.Decimal `json:"spentToDate"`
	FiscalYear          string          `json:"fiscalYear"`
	FundingType         string          `json:"fundingType"`
}

// CreateProjectRequest is the payload for creating a project with funding lines
type CreateProjectRequest struct {
	Name            string             `json:"name" validate:"required,max=300"`
	Description     string             `json:"description"`
	Status          ProjectStatus      `json:"status"`
	Phase           string             `json:"phase"`
	Category        string             `json:"category"`
	DeliveryMethod  string             `json:"deliveryMethod"`
	StartDate       string             `json:"startDate"`
	EndDate         string             `json:"endDate"`
	OwnerID         int                `json:"ownerId"`
	PrimaryVendorID *int               `json:"primaryVendorId"`
	Location        Location           `json:"location"`
	Building        Building           `json:"building"`
	Financial       Financial          `json:"financial"`
	FundingLines    []FundingLineInput `json:"fundingLines" validate:"dive"`
}

// GrantAccessRequest is the payload for assigning a user to a project
type GrantAccessRequest struct {
	UserID      int         `json:"userId" validate:"required"`
	AccessLevel AccessLevel `json:"accessLevel" validate:"required"`
	ExpiresAt   *time.Time  `json:"expiresAt"`
	Reason      string      `json:"reason" validate:"max=500"`
}

// CreateVendorRequest is the payload for registering a vendor
type CreateVendorRequest struct {
	Name           string        `json:"name" validate:"required,max=300"`
	ContactPerson  string        `json:"contactPerson"`
	Email          string        `json:"email" validate:"omitempty,email"`
	Phone          string        `json:"phone"`
	Website        string        `json:"website"`
	Address        VendorAddress `json:"address"`
	VendorType     string        `json:"vendorType"`
	Certifications []string      `json:"certifications"`
	Capabilities   []string      `json:"capabilities"`
}

// FileUpload is what the upload collaborator hands over once bytes are stored
type FileUpload struct {
	Path         string `json:"path" validate:"required"`
	OriginalName string `json:"originalName" validate:"required"`
	Size         int64  `json:"size" validate:"gte=0"`
	MimeType     string `json:"mimeType"`
	Category     string `json:"category"`
	Checksum     string `json:"checksum"`
}

// MigrationStatus is the externally visible state of the migration manager
type MigrationStatus struct {
	State         string     `json:"state"`
	SchemaVersion string     `json:"schemaVersion"`
	LastMigration *time.Time `json:"lastMigration"`
}

// ============================================================================
// Responses
// ============================================================================

// PaginatedResponse is a page of results with totals
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"pageSize"`
	TotalPages int         `json:"totalPages"`
}

// NewPaginatedResponse computes TotalPages from total and pageSize
func NewPaginatedResponse(data interface{}, total, page, pageSize int) *PaginatedResponse {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	return &PaginatedResponse{
		Data:       data,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}

// ListParams are the common paging and sorting query parameters
type ListParams struct {
	Page      int    `json:"page"`
	PageSize  int    `json:"pageSize"`
	SortBy    string `json:"sortBy"`
	SortOrder string `json:"sortOrder"`
}

// ProjectFilters narrows a project listing
type ProjectFilters struct {
	Status  ProjectStatus `json:"status"`
	OwnerID int           `json:"ownerId"`
	Region  string        `json:"region"`
}
