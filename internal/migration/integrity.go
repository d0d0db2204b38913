package migration

import (
	"encoding/json"
	"fmt"

	"go.uber.org/multierr"

	"github.com/straye-as/pfmt-tracker/internal/schema"
	"github.com/straye-as/pfmt-tracker/internal/store"
)

// Integrity problems
const (
	ProblemDanglingReference = "dangling_reference"
	ProblemMissingReference  = "missing_reference"
	ProblemDuplicateID       = "duplicate_id"
)

// Issue is one integrity problem of a stored row
type Issue struct {
	Entity  string `json:"entity"`
	ID      string `json:"id"`
	Field   string `json:"field,omitempty"`
	Value   string `json:"value,omitempty"`
	Target  string `json:"target,omitempty"`
	Problem string `json:"problem"`
}

func (i Issue) Error() string {
	switch i.Problem {
	case ProblemDuplicateID:
		return fmt.Sprintf("%s %s: duplicate id", i.Entity, i.ID)
	case ProblemMissingReference:
		return fmt.Sprintf("%s %s: %s is empty", i.Entity, i.ID, i.Field)
	}
	return fmt.Sprintf("%s %s: %s %s does not match any %s", i.Entity, i.ID, i.Field, i.Value, i.Target)
}

// IntegrityReport lists every problem found in a document
type IntegrityReport struct {
	Checked map[string]int `json:"checked"`
	Issues  []Issue        `json:"issues"`
}

// OK reports whether no issue was found
func (r *IntegrityReport) OK() bool {
	return len(r.Issues) == 0
}

// Err combines every issue into one error, or nil
func (r *IntegrityReport) Err() error {
	var err error
	for _, issue := range r.Issues {
		err = multierr.Append(err, issue)
	}
	return err
}

// CheckIntegrity walks the belongsTo declarations of the schema and reports
// dangling foreign keys and duplicate ids. It never fails on bad data.
func CheckIntegrity(doc *store.Document) (*IntegrityReport, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var generic map[string][]map[string]any
	if err := json.Unmarshal(filterCollections(data), &generic); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	report := &IntegrityReport{Checked: map[string]int{}, Issues: []Issue{}}
	ids := map[string]map[string]bool{}
	for _, entity := range schema.Entities() {
		rows := generic[schema.Collection(entity)]
		report.Checked[entity] = len(rows)
		seen := map[string]bool{}
		for _, row := range rows {
			id := key(row["id"])
			if seen[id] {
				report.Issues = append(report.Issues, Issue{Entity: entity, ID: id, Problem: ProblemDuplicateID})
			}
			seen[id] = true
		}
		ids[entity] = seen
	}

	for _, entity := range schema.Entities() {
		belongsTo, _ := schema.Relationships(entity)
		for _, row := range generic[schema.Collection(entity)] {
			for _, rel := range belongsTo {
				value, present := row[rel.ForeignKey]
				if !present || isNullReference(value) {
					if !rel.Nullable {
						report.Issues = append(report.Issues, Issue{
							Entity: entity, ID: key(row["id"]), Field: rel.ForeignKey,
							Target: rel.Entity, Problem: ProblemMissingReference,
						})
					}
					continue
				}
				if !ids[rel.Entity][key(value)] {
					report.Issues = append(report.Issues, Issue{
						Entity: entity, ID: key(row["id"]), Field: rel.ForeignKey,
						Value: key(value), Target: rel.Entity, Problem: ProblemDanglingReference,
					})
				}
			}
		}
	}
	return report, nil
}

// filterCollections drops the _metadata envelope so the rest decodes as
// collections of objects
func filterCollections(data []byte) []byte {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return data
	}
	delete(top, "_metadata")
	out, err := json.Marshal(top)
	if err != nil {
		return data
	}
	return out
}

// isNullReference treats null, empty strings and zero ids as no reference
func isNullReference(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case float64:
		return val == 0
	}
	return false
}

func key(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return fmt.Sprintf("%.0f", val)
	}
	return fmt.Sprint(v)
}
