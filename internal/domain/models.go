package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Timestamps holds the server-stamped creation and modification times
type Timestamps struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Stamps exposes the timestamps of the embedding entity
func (t *Timestamps) Stamps() *Timestamps {
	return t
}

// MarkCreated sets both timestamps for a freshly inserted record
func (t *Timestamps) MarkCreated(now time.Time) {
	t.CreatedAt = now
	t.UpdatedAt = now
}

// Touch refreshes UpdatedAt. The new value is always strictly later than the
// previous one, even when the clock has not advanced.
func (t *Timestamps) Touch(now time.Time) {
	if !now.After(t.UpdatedAt) {
		now = t.UpdatedAt.Add(time.Microsecond)
	}
	t.UpdatedAt = now
}

// Record is the base for every entity keyed by a collection-scoped integer id
type Record struct {
	ID int `json:"id"`
	Timestamps
}

// GetID returns the record id
func (r *Record) GetID() int { return r.ID }

// SetID assigns the record id
func (r *Record) SetID(id int) { r.ID = id }

// ============================================================================
// Users
// ============================================================================

// User is an application user
type User struct {
	Record
	Name        string          `json:"name" validate:"required,max=200"`
	Email       string          `json:"email" validate:"required,email"`
	Role        UserRole        `json:"role" validate:"required"`
	Department  string          `json:"department"`
	IsActive    bool            `json:"isActive"`
	Permissions UserPermissions `json:"permissions"`
}

// Validate checks enum fields the validator tags cannot express
func (u *User) Validate() error {
	if !u.Role.IsValid() {
		return NewValidationError("role", "unknown role %q", u.Role)
	}
	return nil
}

// UserPermissions is the coarse permission set attached to a user
type UserPermissions struct {
	CanCreateProjects  bool `json:"canCreateProjects"`
	CanViewAllProjects bool `json:"canViewAllProjects"`
	CanApproveProjects bool `json:"canApproveProjects"`
	CanManageUsers     bool `json:"canManageUsers"`
	CanManageVendors   bool `json:"canManageVendors"`
}

// ============================================================================
// Vendors
// ============================================================================

// VendorAddress is the structured postal address of a vendor
type VendorAddress struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	Province   string `json:"province"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// VendorMetadata holds rollups derived from project-vendor links
type VendorMetadata struct {
	TotalProjects      int             `json:"totalProjects"`
	ActiveProjects     int             `json:"activeProjects"`
	AverageRating      float64         `json:"averageRating"`
	LastContractDate   string          `json:"lastContractDate,omitempty"`
	TotalContractValue decimal.Decimal `json:"totalContractValue"`
}

// Vendor is a contractor or supplier working on projects
type Vendor struct {
	Record
	Name           string         `json:"name" validate:"required,max=300"`
	ContactPerson  string         `json:"contactPerson"`
	Email          string         `json:"email" validate:"omitempty,email"`
	Phone          string         `json:"phone"`
	Website        string         `json:"website"`
	Address        VendorAddress  `json:"address"`
	VendorType     string         `json:"vendorType"`
	Certifications []string       `json:"certifications"`
	Capabilities   []string       `json:"capabilities"`
	IsActive       bool           `json:"isActive"`
	Metadata       VendorMetadata `json:"metadata"`
}

// ============================================================================
// Projects
// ============================================================================

// Coordinates is a geographic point
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Location groups where a project is
type Location struct {
	Region       string       `json:"region"`
	Municipality string       `json:"municipality"`
	Address      string       `json:"address"`
	Constituency string       `json:"constituency"`
	Coordinates  *Coordinates `json:"coordinates"`
}

// Building groups the facility a project delivers
type Building struct {
	Name               string  `json:"name"`
	Type               string  `json:"type"`
	ID                 string  `json:"id"`
	Owner              string  `json:"owner"`
	SquareMeters       float64 `json:"squareMeters"`
	NumberOfStructures int     `json:"numberOfStructures"`
	NumberOfJobs       int     `json:"numberOfJobs"`
}

// Financial groups the budget and cost figures of a project
type Financial struct {
	ApprovedTPC         decimal.Decimal `json:"approvedTPC"`
	TotalBudget         decimal.Decimal `json:"totalBudget"`
	AmountSpent         decimal.Decimal `json:"amountSpent"`
	TAF                 decimal.Decimal `json:"taf"`
	EAC                 decimal.Decimal `json:"eac"`
	CurrentYearCashflow decimal.Decimal `json:"currentYearCashflow"`
	TargetCashflow      decimal.Decimal `json:"targetCashflow"`
	Variance            decimal.Decimal `json:"variance"`
	LastFinancialUpdate string          `json:"lastFinancialUpdate,omitempty"`
}

// ComputeVariance sets Variance to EAC minus the approved total project cost
func (f *Financial) ComputeVariance() {
	f.Variance = f.EAC.Sub(f.ApprovedTPC)
}

// StatusTracking holds the schedule/budget/scope traffic lights
type StatusTracking struct {
	Schedule           string `json:"schedule"`
	ScheduleReasonCode string `json:"scheduleReasonCode,omitempty"`
	Budget             string `json:"budget"`
	BudgetReasonCode   string `json:"budgetReasonCode,omitempty"`
	Scope              string `json:"scope"`
	ScopeReasonCode    string `json:"scopeReasonCode,omitempty"`
	LastUpdated        string `json:"lastUpdated,omitempty"`
}

// Workflow tracks submission and approval of a project report
type Workflow struct {
	SubmittedBy      string `json:"submittedBy,omitempty"`
	SubmittedDate    string `json:"submittedDate,omitempty"`
	ApprovedBy       string `json:"approvedBy,omitempty"`
	ApprovedDate     string `json:"approvedDate,omitempty"`
	DirectorApproved bool   `json:"directorApproved"`
	SeniorPMReviewed bool   `json:"seniorPmReviewed"`
	CurrentStage     string `json:"currentStage"`
}

// PFMT describes the last spreadsheet extraction that fed the project
type PFMT struct {
	LastUpdate        string   `json:"lastUpdate,omitempty"`
	FileName          string   `json:"fileName,omitempty"`
	ExtractedAt       string   `json:"extractedAt,omitempty"`
	SheetsProcessed   []string `json:"sheetsProcessed"`
	DataQualityIssues bool     `json:"dataQualityIssues"`
}

// Comments holds the free-text narrative of a project report
type Comments struct {
	General    string `json:"general,omitempty"`
	Schedule   string `json:"schedule,omitempty"`
	Budget     string `json:"budget,omitempty"`
	Scope      string `json:"scope,omitempty"`
	Highlights string `json:"highlights,omitempty"`
	NextSteps  string `json:"nextSteps,omitempty"`
}

// Milestone is a single checkpoint within a phase
type Milestone struct {
	Completed bool   `json:"completed"`
	Date      string `json:"date,omitempty"`
}

// Milestones maps phase -> milestone name -> state
type Milestones map[string]map[string]Milestone

// Project is the central tracked entity
type Project struct {
	ID              string         `json:"id"`
	Name            string         `json:"name" validate:"required,max=300"`
	Description     string         `json:"description"`
	Status          ProjectStatus  `json:"status"`
	ReportStatus    string         `json:"reportStatus"`
	Phase           string         `json:"phase"`
	Category        string         `json:"category"`
	DeliveryMethod  string         `json:"deliveryMethod"`
	StartDate       string         `json:"startDate,omitempty"`
	EndDate         string         `json:"endDate,omitempty"`
	OwnerID         int            `json:"ownerId" validate:"required"`
	PrimaryVendorID *int           `json:"primaryVendorId"`
	Location        Location       `json:"location"`
	Building        Building       `json:"building"`
	Financial       Financial      `json:"financial"`
	StatusTracking  StatusTracking `json:"statusTracking"`
	Workflow        Workflow       `json:"workflow"`
	PFMT            PFMT           `json:"pfmt"`
	Comments        Comments       `json:"comments"`
	Milestones      Milestones     `json:"milestones"`
	Timestamps
}

// GetID returns the project id
func (p *Project) GetID() string { return p.ID }

// SetID assigns the project id
func (p *Project) SetID(id string) { p.ID = id }

// Validate checks enum fields the validator tags cannot express
func (p *Project) Validate() error {
	if p.Status != "" && !p.Status.IsValid() {
		return NewValidationError("status", "unknown project status %q", p.Status)
	}
	return nil
}

// ============================================================================
// Relationship rows
// ============================================================================

// AssignmentPermissions is the permission set carried by a project assignment
type AssignmentPermissions struct {
	CanView           bool `json:"canView"`
	CanEdit           bool `json:"canEdit"`
	CanApprove        bool `json:"canApprove"`
	CanComment        bool `json:"canComment"`
	CanViewFinancials bool `json:"canViewFinancials"`
}

// ProjectAssignment grants a user explicit access to a project
type ProjectAssignment struct {
	Record
	ProjectID   string                `json:"projectId" validate:"required"`
	UserID      int                   `json:"userId" validate:"required"`
	GrantedBy   int                   `json:"grantedBy" validate:"required"`
	AccessLevel AccessLevel           `json:"accessLevel" validate:"required"`
	Permissions AssignmentPermissions `json:"permissions"`
	IsActive    bool                  `json:"isActive"`
	ExpiresAt   *time.Time            `json:"expiresAt,omitempty"`
	Reason      string                `json:"reason,omitempty"`
}

// Validate checks enum fields the validator tags cannot express
func (a *ProjectAssignment) Validate() error {
	if !a.AccessLevel.IsValid() {
		return NewValidationError("accessLevel", "unknown access level %q", a.AccessLevel)
	}
	return nil
}

// ActiveAt reports whether the assignment is active and not expired at the given time
func (a *ProjectAssignment) ActiveAt(now time.Time) bool {
	if !a.IsActive {
		return false
	}
	return a.ExpiresAt == nil || a.ExpiresAt.After(now)
}

// FundingLine is one source of money for a project
type FundingLine struct {
	Record
	ProjectID           string          `json:"projectId" validate:"required"`
	Source              string          `json:"source"`
	Description         string          `json:"description"`
	CapitalPlanLine     string          `json:"capitalPlanLine"`
	WBS                 string          `json:"wbs"`
	ProjectCode         string          `json:"projectCode"`
	ApprovedValue       decimal.Decimal `json:"approvedValue"`
	CurrentYearBudget   decimal.Decimal `json:"currentYearBudget"`
	CurrentYearApproved decimal.Decimal `json:"currentYearApproved"`
	SpentToDate         decimal.Decimal `json:"spentToDate"`
	RemainingBudget     decimal.Decimal `json:"remainingBudget"`
	FiscalYear          string          `json:"fiscalYear"`
	FundingType         string          `json:"fundingType"`
	IsActive            bool            `json:"isActive"`
}

// ProjectVendor links a vendor to a project and carries the contract state
type ProjectVendor struct {
	Record
	ProjectID         string          `json:"projectId" validate:"required"`
	VendorID          *int            `json:"vendorId" validate:"required"`
	ContractID        string          `json:"contractId"`
	VendorRole        string          `json:"vendorRole"`
	ContractValue     decimal.Decimal `json:"contractValue"`
	CurrentCommitment decimal.Decimal `json:"currentCommitment"`
	BilledToDate      decimal.Decimal `json:"billedToDate"`
	Holdback          decimal.Decimal `json:"holdback"`
	PercentComplete   float64         `json:"percentComplete"`
	ContractStartDate string          `json:"contractStartDate,omitempty"`
	ContractEndDate   string          `json:"contractEndDate,omitempty"`
	Status            string          `json:"status"`
	CMSValue          decimal.Decimal `json:"cmsValue"`
	CMSAsOfDate       string          `json:"cmsAsOfDate,omitempty"`
	Variance          decimal.Decimal `json:"variance"`
	PerformanceRating *float64        `json:"performanceRating"`
	IsActive          bool            `json:"isActive"`
}

// ImpactAnalysis describes the effect of a change order
type ImpactAnalysis struct {
	Schedule string `json:"schedule,omitempty"`
	Budget   string `json:"budget,omitempty"`
	Scope    string `json:"scope,omitempty"`
	Risk     string `json:"risk,omitempty"`
}

// ChangeOrder is a requested change to a contract
type ChangeOrder struct {
	Record
	ProjectID       string            `json:"projectId" validate:"required"`
	VendorID        *int              `json:"vendorId"`
	ContractID      string            `json:"contractId"`
	ReferenceNumber string            `json:"referenceNumber"`
	Status          ChangeOrderStatus `json:"status"`
	RequestDate     string            `json:"requestDate,omitempty"`
	ApprovedDate    string            `json:"approvedDate,omitempty"`
	Value           decimal.Decimal   `json:"value"`
	ReasonCode      string            `json:"reasonCode"`
	Description     string            `json:"description"`
	Justification   string            `json:"justification"`
	ApprovedBy      string            `json:"approvedBy,omitempty"`
	RequestedBy     string            `json:"requestedBy,omitempty"`
	ImpactAnalysis  ImpactAnalysis    `json:"impactAnalysis"`
	IsActive        bool              `json:"isActive"`
}

// Validate checks enum fields the validator tags cannot express
func (c *ChangeOrder) Validate() error {
	if c.Status != "" && !c.Status.IsValid() {
		return NewValidationError("status", "unknown change order status %q", c.Status)
	}
	return nil
}

// File is metadata for a document attached to a project
type File struct {
	Record
	ProjectID    string `json:"projectId" validate:"required"`
	FileName     string `json:"fileName" validate:"required"`
	OriginalName string `json:"originalName"`
	Path         string `json:"path" validate:"required"`
	Size         int64  `json:"size" validate:"gte=0"`
	MimeType     string `json:"mimeType"`
	Category     string `json:"category"`
	UploadedBy   int    `json:"uploadedBy"`
	Version      int    `json:"version" validate:"gte=1"`
	IsLatest     bool   `json:"isLatest"`
	AccessLevel  string `json:"accessLevel"`
	Checksum     string `json:"checksum,omitempty"`
	IsActive     bool   `json:"isActive"`
}

// ============================================================================
// Document metadata
// ============================================================================

// Metadata is the envelope stored under _metadata in the document
type Metadata struct {
	Version       string     `json:"version"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastMigration *time.Time `json:"lastMigration"`
	Entities      []string   `json:"entities"`
}
