// Package schema declares the normalized entity model: required fields and
// belongsTo/hasMany relationships per entity type. The registry is advisory;
// repositories and the migration use it for hints and integrity reports, it
// enforces nothing by itself.
package schema

import (
	"sort"
	"strings"
)

// Version is the normalized document schema version written to _metadata
const Version = "2.0.0"

// Entity names
const (
	User              = "User"
	Vendor            = "Vendor"
	Project           = "Project"
	ProjectAssignment = "ProjectAssignment"
	FundingLine       = "FundingLine"
	ProjectVendor     = "ProjectVendor"
	ChangeOrder       = "ChangeOrder"
	File              = "File"
)

// BelongsTo declares a foreign key on this entity pointing at another entity
type BelongsTo struct {
	Entity     string
	ForeignKey string
	// Nullable foreign keys may be null without being dangling
	Nullable bool
}

// HasMany declares rows of another entity pointing back at this one
type HasMany struct {
	Entity     string
	ForeignKey string
}

// Definition describes one entity type
type Definition struct {
	Name       string
	Collection string
	Required   []string
	BelongsTo  []BelongsTo
	HasMany    []HasMany
}

var definitions = map[string]Definition{
	User: {
		Name:       User,
		Collection: "users",
		Required:   []string{"name", "email", "role"},
		HasMany: []HasMany{
			{Entity: Project, ForeignKey: "ownerId"},
			{Entity: ProjectAssignment, ForeignKey: "userId"},
		},
	},
	Vendor: {
		Name:       Vendor,
		Collection: "vendors",
		Required:   []string{"name"},
		HasMany: []HasMany{
			{Entity: ProjectVendor, ForeignKey: "vendorId"},
			{Entity: ChangeOrder, ForeignKey: "vendorId"},
		},
	},
	Project: {
		Name:       Project,
		Collection: "projects",
		Required:   []string{"name", "ownerId"},
		BelongsTo: []BelongsTo{
			{Entity: User, ForeignKey: "ownerId"},
			{Entity: Vendor, ForeignKey: "primaryVendorId", Nullable: true},
		},
		HasMany: []HasMany{
			{Entity: FundingLine, ForeignKey: "projectId"},
			{Entity: ProjectVendor, ForeignKey: "projectId"},
			{Entity: ChangeOrder, ForeignKey: "projectId"},
			{Entity: File, ForeignKey: "projectId"},
			{Entity: ProjectAssignment, ForeignKey: "projectId"},
		},
	},
	ProjectAssignment: {
		Name:       ProjectAssignment,
		Collection: "projectAssignments",
		Required:   []string{"projectId", "userId", "grantedBy", "accessLevel"},
		BelongsTo: []BelongsTo{
			{Entity: Project, ForeignKey: "projectId"},
			{Entity: User, ForeignKey: "userId"},
			{Entity: User, ForeignKey: "grantedBy"},
		},
	},
	FundingLine: {
		Name:       FundingLine,
		Collection: "fundingLines",
		Required:   []string{"projectId", "source"},
		BelongsTo: []BelongsTo{
			{Entity: Project, ForeignKey: "projectId"},
		},
	},
	ProjectVendor: {
		Name:       ProjectVendor,
		Collection: "projectVendors",
		Required:   []string{"projectId", "vendorId"},
		BelongsTo: []BelongsTo{
			{Entity: Project, ForeignKey: "projectId"},
			{Entity: Vendor, ForeignKey: "vendorId"},
		},
	},
	ChangeOrder: {
		Name:       ChangeOrder,
		Collection: "changeOrders",
		Required:   []string{"projectId", "status"},
		BelongsTo: []BelongsTo{
			{Entity: Project, ForeignKey: "projectId"},
			{Entity: Vendor, ForeignKey: "vendorId", Nullable: true},
		},
	},
	File: {
		Name:       File,
		Collection: "files",
		Required:   []string{"projectId", "fileName", "path"},
		BelongsTo: []BelongsTo{
			{Entity: Project, ForeignKey: "projectId"},
			{Entity: User, ForeignKey: "uploadedBy", Nullable: true},
		},
	},
}

// entityOrder is the canonical order of entities in the document
var entityOrder = []string{
	User, Vendor, Project, ProjectAssignment, FundingLine, ProjectVendor, ChangeOrder, File,
}

// Lookup returns the definition of an entity type
func Lookup(entity string) (Definition, bool) {
	def, ok := definitions[entity]
	return def, ok
}

// Entities returns every entity name in canonical document order
func Entities() []string {
	out := make([]string, len(entityOrder))
	copy(out, entityOrder)
	return out
}

// Collections returns the document keys of every collection in canonical order
func Collections() []string {
	out := make([]string, 0, len(entityOrder))
	for _, name := range entityOrder {
		out = append(out, definitions[name].Collection)
	}
	return out
}

// Collection returns the document key holding an entity type
func Collection(entity string) string {
	return definitions[entity].Collection
}

// RequiredFields returns the required fields of an entity type
func RequiredFields(entity string) []string {
	def, ok := definitions[entity]
	if !ok {
		return nil
	}
	out := make([]string, len(def.Required))
	copy(out, def.Required)
	return out
}

// Relationships returns the belongsTo and hasMany declarations of an entity type
func Relationships(entity string) ([]BelongsTo, []HasMany) {
	def, ok := definitions[entity]
	if !ok {
		return nil, nil
	}
	return append([]BelongsTo(nil), def.BelongsTo...), append([]HasMany(nil), def.HasMany...)
}

// CheckRequired reports which required fields are absent or empty in a
// JSON-decoded record. The result is sorted.
func CheckRequired(entity string, fields map[string]any) []string {
	var missing []string
	for _, name := range RequiredFields(entity) {
		if isEmpty(fields[name]) {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case float64:
		return val == 0
	}
	return false
}
