package migration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/repository"
	"github.com/straye-as/pfmt-tracker/internal/store"
)

// legacyDocument is the flat shape: users plus projects that embed their
// vendors, funding lines and change orders
type legacyDocument struct {
	Users    json.RawMessage `json:"users"`
	Projects json.RawMessage `json:"projects"`
}

// converter carries the state of one migration pass
type converter struct {
	now    time.Time
	doc    *store.Document
	report *Report

	vendorIDs map[string]int
}

func newConverter(now time.Time, report *Report) *converter {
	return &converter{
		now:       now,
		doc:       store.NewDocument(now),
		report:    report,
		vendorIDs: map[string]int{},
	}
}

// convert builds a normalized document from legacy bytes
func (c *converter) convert(raw []byte) (*store.Document, error) {
	var legacy legacyDocument
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return nil, fmt.Errorf("decode legacy document: %w", err)
	}
	users, err := decodeOptionalRows(legacy.Users)
	if err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	projects, err := decodeOptionalRows(legacy.Projects)
	if err != nil {
		return nil, fmt.Errorf("decode projects: %w", err)
	}

	if err := c.users(users); err != nil {
		return nil, err
	}
	if err := c.vendors(projects); err != nil {
		return nil, err
	}
	for i, row := range projects {
		if err := c.project(row); err != nil {
			return nil, fmt.Errorf("project %d (%s): %w", i, row.String("id"), err)
		}
	}
	repository.RefreshVendorMetadata(c.doc)
	return c.doc, nil
}

func decodeOptionalRows(data json.RawMessage) ([]Row, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	return decodeRows(trimmed)
}

// users copies every user and attaches the permission preset of its role
func (c *converter) users(rows []Row) error {
	seen := map[int]bool{}
	next := 1
	for _, row := range rows {
		id, err := row.Int("id")
		if err != nil {
			return fmt.Errorf("user: %w", err)
		}
		if id > 0 && seen[id] {
			return fmt.Errorf("duplicate user id %d", id)
		}
		if id >= next {
			next = id + 1
		}
		seen[id] = true

		role := domain.UserRole(row.String("role"))
		user := &domain.User{
			Name:        row.String("name"),
			Email:       row.String("email"),
			Role:        role,
			Department:  row.String("department"),
			IsActive:    row.Bool(true, "isActive"),
			Permissions: domain.DefaultPermissions(role),
		}
		user.ID = id
		user.CreatedAt = row.Time(c.now, "createdAt")
		user.UpdatedAt = row.Time(user.CreatedAt, "updatedAt")
		c.doc.Users = append(c.doc.Users, user)
	}
	// users without an id are numbered after the highest legacy id
	for _, user := range c.doc.Users {
		if user.ID == 0 {
			user.ID = next
			next++
		}
	}
	c.report.Users = len(c.doc.Users)
	return nil
}

// vendors materializes one vendor per distinct name found in the inline
// vendors arrays and contractor fields. First seen wins and names are
// compared exactly, so spelling variants stay separate vendors.
func (c *converter) vendors(projects []Row) error {
	add := func(row Row) error {
		name := vendorName(row)
		if strings.TrimSpace(name) == "" {
			return nil
		}
		if _, ok := c.vendorIDs[name]; ok {
			return nil
		}
		vendor, err := NewVendorFromRow(row)
		if err != nil {
			return err
		}
		vendor.ID = len(c.doc.Vendors) + 1
		vendor.MarkCreated(c.now)
		c.doc.Vendors = append(c.doc.Vendors, vendor)
		c.vendorIDs[name] = vendor.ID
		return nil
	}

	for i, project := range projects {
		inline, err := project.Rows("vendors")
		if err != nil {
			return fmt.Errorf("project %d: %w", i, err)
		}
		for _, row := range inline {
			if err := add(row); err != nil {
				return fmt.Errorf("project %d: %w", i, err)
			}
		}
		if contractor := project.String("contractor"); contractor != "" {
			if err := add(Row{"name": contractor}); err != nil {
				return fmt.Errorf("project %d: %w", i, err)
			}
		}
	}
	c.report.Vendors = len(c.doc.Vendors)
	return nil
}

// project restructures one legacy project and emits its relationship rows
func (c *converter) project(row Row) error {
	project, err := c.restructure(row)
	if err != nil {
		return err
	}
	for _, existing := range c.doc.Projects {
		if existing.ID == project.ID {
			return fmt.Errorf("duplicate project id %q", project.ID)
		}
	}
	c.doc.Projects = append(c.doc.Projects, project)
	c.report.Projects++

	lines, err := row.Rows("fundingLines")
	if err != nil {
		return err
	}
	for _, r := range lines {
		line, err := NewFundingLineFromRow(r)
		if err != nil {
			return err
		}
		line.ID = len(c.doc.FundingLines) + 1
		line.ProjectID = project.ID
		line.MarkCreated(c.now)
		c.doc.FundingLines = append(c.doc.FundingLines, line)
	}

	contractor := row.String("contractor")
	vendors, err := row.Rows("vendors")
	if err != nil {
		return err
	}
	for i, r := range vendors {
		name := vendorName(r)
		var vendorID *int
		if id, ok := c.vendorIDs[name]; ok {
			vendorID = &id
		} else {
			c.report.warn("project %s: vendor entry %d has no name, link kept without a vendor", project.ID, i)
		}
		role := RoleSubcontractor
		if vendorID != nil && name == contractor {
			role = RolePrimaryContractor
		}
		link, err := NewProjectVendor(project.ID, vendorID, role, r)
		if err != nil {
			return err
		}
		link.ID = len(c.doc.ProjectVendors) + 1
		link.MarkCreated(c.now)
		c.doc.ProjectVendors = append(c.doc.ProjectVendors, link)
	}

	orders, err := row.Rows("changeOrders")
	if err != nil {
		return err
	}
	for _, r := range orders {
		order, err := NewChangeOrderFromRow(r)
		if err != nil {
			return err
		}
		order.ID = len(c.doc.ChangeOrders) + 1
		order.ProjectID = project.ID
		if id, ok := c.vendorIDs[r.String("vendor", "vendorName")]; ok {
			order.VendorID = &id
		}
		order.MarkCreated(c.now)
		c.doc.ChangeOrders = append(c.doc.ChangeOrders, order)
	}

	c.report.FundingLines = len(c.doc.FundingLines)
	c.report.ProjectVendors = len(c.doc.ProjectVendors)
	c.report.ChangeOrders = len(c.doc.ChangeOrders)
	return nil
}

// restructure moves the scattered top-level fields of a legacy project into
// the grouped shape. Groups that already exist as nested objects take
// precedence over flat fields of the same name.
func (c *converter) restructure(row Row) (*domain.Project, error) {
	id := row.String("id", "projectId")
	if strings.TrimSpace(id) == "" {
		id = c.freeProjectID()
		c.report.warn("project %q had no id, assigned %s", row.String("name", "projectName"), id)
	}

	ownerID, err := row.Int("ownerId", "projectManagerId", "createdBy")
	if err != nil {
		return nil, err
	}
	if ownerID == 0 {
		c.report.warn("project %s has no owner", id)
	}

	status, known := projectStatus(row.String("status"))
	if !known {
		c.report.warn("project %s has unknown status %q, set to %s", id, row.String("status"), status)
	}

	p := &domain.Project{
		ID:             id,
		Name:           row.String("name", "projectName"),
		Description:    row.String("description"),
		Status:         status,
		ReportStatus:   row.String("reportStatus"),
		Phase:          row.String("phase"),
		Category:       row.String("category"),
		DeliveryMethod: row.String("deliveryMethod"),
		StartDate:      row.String("startDate"),
		EndDate:        row.String("endDate"),
		OwnerID:        ownerID,
	}
	if vendorID, ok := c.vendorIDs[row.String("contractor")]; ok {
		p.PrimaryVendorID = &vendorID
	}

	if p.Location, err = legacyLocation(row.Overlay("location")); err != nil {
		return nil, err
	}
	if p.Building, err = legacyBuilding(row.Overlay("building")); err != nil {
		return nil, err
	}
	if p.Financial, err = legacyFinancial(row.Overlay("financial")); err != nil {
		return nil, err
	}
	p.Financial.ComputeVariance()
	p.StatusTracking = legacyStatusTracking(row.Overlay("statusTracking"))
	p.Workflow = legacyWorkflow(row.Overlay("workflow"))
	p.PFMT = legacyPFMT(row.Overlay("pfmt"))
	p.Comments = legacyComments(row)
	p.Milestones = legacyMilestones(row.Object("milestones"))

	p.CreatedAt = row.Time(c.now, "createdAt")
	p.UpdatedAt = row.Time(p.CreatedAt, "updatedAt")
	return p, nil
}

func (c *converter) freeProjectID() string {
	for {
		id := repository.NewProjectID()
		free := true
		for _, p := range c.doc.Projects {
			if p.ID == id {
				free = false
				break
			}
		}
		if free {
			return id
		}
	}
}

func projectStatus(s string) (domain.ProjectStatus, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.ProjectStatusActive, true
	}
	for _, known := range []domain.ProjectStatus{
		domain.ProjectStatusActive,
		domain.ProjectStatusCompleted,
		domain.ProjectStatusOnHold,
		domain.ProjectStatusCancelled,
	} {
		if strings.EqualFold(s, string(known)) {
			return known, true
		}
	}
	return domain.ProjectStatusActive, false
}

func legacyLocation(r Row) (domain.Location, error) {
	loc := domain.Location{
		Region:       r.String("region"),
		Municipality: r.String("municipality", "city"),
		Address:      r.String("address", "location"),
		Constituency: r.String("constituency"),
	}
	coords := r.Overlay("coordinates")
	if _, _, ok := coords.lookup("latitude"); ok {
		lat, err := coords.Float("latitude")
		if err != nil {
			return loc, err
		}
		lng, err := coords.Float("longitude")
		if err != nil {
			return loc, err
		}
		loc.Coordinates = &domain.Coordinates{Latitude: lat, Longitude: lng}
	}
	return loc, nil
}

func legacyBuilding(r Row) (domain.Building, error) {
	b := domain.Building{
		Name:  r.String("buildingName"),
		Type:  r.String("buildingType"),
		ID:    r.String("buildingId"),
		Owner: r.String("buildingOwner"),
	}
	// the grouped shape uses short names inside the building object
	if b.Name == "" {
		b.Name = r.String("name")
	}
	if b.Type == "" {
		b.Type = r.String("type")
	}
	var err error
	if b.SquareMeters, err = r.Float("squareMeters"); err != nil {
		return b, err
	}
	if b.NumberOfStructures, err = r.Int("numberOfStructures"); err != nil {
		return b, err
	}
	if b.NumberOfJobs, err = r.Int("numberOfJobs"); err != nil {
		return b, err
	}
	return b, nil
}

func legacyFinancial(r Row) (domain.Financial, error) {
	f := domain.Financial{LastFinancialUpdate: r.String("lastFinancialUpdate")}
	fields := []struct {
		dst  *decimal.Decimal
		keys []string
	}{
		{&f.ApprovedTPC, []string{"approvedTPC", "totalApprovedFunding"}},
		{&f.TotalBudget, []string{"totalBudget"}},
		{&f.AmountSpent, []string{"amountSpent"}},
		{&f.TAF, []string{"taf"}},
		{&f.EAC, []string{"eac"}},
		{&f.CurrentYearCashflow, []string{"currentYearCashflow"}},
		{&f.TargetCashflow, []string{"targetCashflow"}},
	}
	for _, field := range fields {
		v, err := r.Decimal(field.keys...)
		if err != nil {
			return f, fmt.Errorf("financial: %w", err)
		}
		*field.dst = v
	}
	return f, nil
}

func legacyStatusTracking(r Row) domain.StatusTracking {
	return domain.StatusTracking{
		Schedule:           r.String("scheduleStatus", "schedule"),
		ScheduleReasonCode: r.String("scheduleReasonCode"),
		Budget:             r.String("budgetStatus", "budget"),
		BudgetReasonCode:   r.String("budgetReasonCode"),
		Scope:              r.String("scopeStatus", "scope"),
		ScopeReasonCode:    r.String("scopeReasonCode"),
		LastUpdated:        r.String("statusLastUpdated", "lastUpdated"),
	}
}

func legacyWorkflow(r Row) domain.Workflow {
	return domain.Workflow{
		SubmittedBy:      r.String("submittedBy"),
		SubmittedDate:    r.String("submittedDate"),
		ApprovedBy:       r.String("approvedBy"),
		ApprovedDate:     r.String("approvedDate"),
		DirectorApproved: r.Bool(false, "directorApproved"),
		SeniorPMReviewed: r.Bool(false, "seniorPmReviewed"),
		CurrentStage:     r.String("currentStage", "workflowStage"),
	}
}

func legacyPFMT(r Row) domain.PFMT {
	return domain.PFMT{
		LastUpdate:        r.String("lastPfmtUpdate", "lastUpdate"),
		FileName:          r.String("pfmtFileName", "fileName"),
		ExtractedAt:       r.String("pfmtExtractedAt", "extractedAt"),
		SheetsProcessed:   r.Strings("sheetsProcessed"),
		DataQualityIssues: r.Bool(false, "dataQualityIssues"),
	}
}

// legacyComments accepts a nested comments object, a plain comments string
// or flat *Comments fields
func legacyComments(row Row) domain.Comments {
	r := row.Overlay("comments")
	c := domain.Comments{
		General:    r.String("general", "generalComments"),
		Schedule:   r.String("scheduleComments"),
		Budget:     r.String("budgetComments"),
		Scope:      r.String("scopeComments"),
		Highlights: r.String("highlights"),
		NextSteps:  r.String("nextSteps"),
	}
	if s, ok := row["comments"].(string); ok && c.General == "" {
		c.General = s
	}
	nested := row.Object("comments")
	if c.Schedule == "" {
		c.Schedule = nested.String("schedule")
	}
	if c.Budget == "" {
		c.Budget = nested.String("budget")
	}
	if c.Scope == "" {
		c.Scope = nested.String("scope")
	}
	return c
}

func legacyMilestones(r Row) domain.Milestones {
	out := domain.Milestones{}
	for phase := range r {
		steps := r.Object(phase)
		if len(steps) == 0 {
			continue
		}
		out[phase] = map[string]domain.Milestone{}
		for name := range steps {
			m := steps.Object(name)
			out[phase][name] = domain.Milestone{
				Completed: m.Bool(false, "completed"),
				Date:      m.String("date"),
			}
		}
	}
	return out
}
