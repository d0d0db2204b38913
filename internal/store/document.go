package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/schema"
)

// Document is the normalized, in-memory form of the store file
type Document struct {
	Users              []*domain.User              `json:"users"`
	Vendors            []*domain.Vendor            `json:"vendors"`
	Projects           []*domain.Project           `json:"projects"`
	ProjectAssignments []*domain.ProjectAssignment `json:"projectAssignments"`
	FundingLines       []*domain.FundingLine       `json:"fundingLines"`
	ProjectVendors     []*domain.ProjectVendor     `json:"projectVendors"`
	ChangeOrders       []*domain.ChangeOrder       `json:"changeOrders"`
	Files              []*domain.File              `json:"files"`
	Metadata           domain.Metadata             `json:"_metadata"`
}

// NewDocument returns an empty normalized document stamped with the schema defaults
func NewDocument(now time.Time) *Document {
	doc := &Document{
		Metadata: domain.Metadata{
			Version:   schema.Version,
			CreatedAt: now.UTC(),
			Entities:  schema.Entities(),
		},
	}
	doc.normalize()
	return doc
}

// Clone returns a deep copy of the document
func (d *Document) Clone() (*Document, error) {
	return CloneJSON(d)
}

// normalize replaces nil collections with empty ones so the file always
// carries every collection key
func (d *Document) normalize() {
	if d.Users == nil {
		d.Users = []*domain.User{}
	}
	if d.Vendors == nil {
		d.Vendors = []*domain.Vendor{}
	}
	if d.Projects == nil {
		d.Projects = []*domain.Project{}
	}
	if d.ProjectAssignments == nil {
		d.ProjectAssignments = []*domain.ProjectAssignment{}
	}
	if d.FundingLines == nil {
		d.FundingLines = []*domain.FundingLine{}
	}
	if d.ProjectVendors == nil {
		d.ProjectVendors = []*domain.ProjectVendor{}
	}
	if d.ChangeOrders == nil {
		d.ChangeOrders = []*domain.ChangeOrder{}
	}
	if d.Files == nil {
		d.Files = []*domain.File{}
	}
	if d.Metadata.Entities == nil {
		d.Metadata.Entities = schema.Entities()
	}
}

// Counts returns the number of rows per collection key
func (d *Document) Counts() map[string]int {
	return map[string]int{
		schema.Collection(schema.User):              len(d.Users),
		schema.Collection(schema.Vendor):            len(d.Vendors),
		schema.Collection(schema.Project):           len(d.Projects),
		schema.Collection(schema.ProjectAssignment): len(d.ProjectAssignments),
		schema.Collection(schema.FundingLine):       len(d.FundingLines),
		schema.Collection(schema.ProjectVendor):     len(d.ProjectVendors),
		schema.Collection(schema.ChangeOrder):       len(d.ChangeOrders),
		schema.Collection(schema.File):              len(d.Files),
	}
}

// CloneJSON deep-copies a value through its JSON encoding
func CloneJSON[T any](v T) (T, error) {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("clone: encode: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("clone: decode: %w", err)
	}
	return out, nil
}
