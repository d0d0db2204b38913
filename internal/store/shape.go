package store

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ShapeInfo describes which schema shapes are present in a raw document
type ShapeInfo struct {
	// Legacy is set when projects[] is non-empty and the first project
	// embeds a vendors array
	Legacy bool
	// Relational is set when a projectAssignments or fundingLines
	// collection exists at the top level
	Relational bool
}

// NeedsMigration reports whether the document is legacy and not yet normalized
func (s ShapeInfo) NeedsMigration() bool {
	return s.Legacy && !s.Relational
}

// InspectShape classifies a raw JSON document. Empty input has no shape.
func InspectShape(raw []byte) (ShapeInfo, error) {
	var info ShapeInfo
	if len(bytes.TrimSpace(raw)) == 0 {
		return info, nil
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return info, fmt.Errorf("inspect document shape: %w", err)
	}

	_, hasAssignments := top["projectAssignments"]
	_, hasFundingLines := top["fundingLines"]
	info.Relational = hasAssignments || hasFundingLines

	projectsRaw, ok := top["projects"]
	if !ok {
		return info, nil
	}
	var projects []map[string]json.RawMessage
	if err := json.Unmarshal(projectsRaw, &projects); err != nil {
		// A projects key that is not an array of objects is neither shape
		return info, nil
	}
	if len(projects) == 0 {
		return info, nil
	}
	if vendors, ok := projects[0]["vendors"]; ok {
		trimmed := bytes.TrimSpace(vendors)
		info.Legacy = len(trimmed) > 0 && trimmed[0] == '['
	}
	return info, nil
}
