package repository

import (
	"sort"
	"strings"
)

// MaxPageSize is the maximum allowed page size for paginated listings
const MaxPageSize = 200

// SortOrder represents the sort direction
type SortOrder string

const (
	SortOrderAsc  SortOrder = "asc"
	SortOrderDesc SortOrder = "desc"
)

// SortConfig holds sorting configuration for list queries
type SortConfig struct {
	Field string    // dotted JSON field path
	Order SortOrder // asc or desc
}

// DefaultSortConfig returns a default sort configuration (updatedAt desc)
func DefaultSortConfig() SortConfig {
	return SortConfig{
		Field: "updatedAt",
		Order: SortOrderDesc,
	}
}

// ParseSortOrder parses a string into SortOrder, defaulting to desc
func ParseSortOrder(s string) SortOrder {
	if strings.ToLower(s) == "asc" {
		return SortOrderAsc
	}
	return SortOrderDesc
}

// ResolveSortConfig keeps the requested field only when it is whitelisted
func ResolveSortConfig(field, order string, allowed map[string]bool) SortConfig {
	cfg := DefaultSortConfig()
	if allowed[field] {
		cfg.Field = field
	}
	if order != "" {
		cfg.Order = ParseSortOrder(order)
	}
	return cfg
}

// SortRecords orders records in place by a JSON field path. Records whose
// field is missing or not comparable keep their relative order at the end.
func SortRecords[T any](records []T, cfg SortConfig) error {
	keys := make([]any, len(records))
	for i, r := range records {
		fields, err := toJSONValue(r)
		if err != nil {
			return err
		}
		keys[i] = lookupPath(fields, cfg.Field)
	}

	idx := make([]int, len(records))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		cmp, ok := compareOrdered(keys[idx[a]], keys[idx[b]])
		if !ok {
			return keys[idx[a]] != nil && keys[idx[b]] == nil
		}
		if cfg.Order == SortOrderAsc {
			return cmp < 0
		}
		return cmp > 0
	})

	sorted := make([]T, len(records))
	for i, j := range idx {
		sorted[i] = records[j]
	}
	copy(records, sorted)
	return nil
}

// NormalizePage clamps page to at least 1 and pageSize to [1, MaxPageSize], defaulting to 20
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// Paginate returns the requested page of items, normalizing page and size
func Paginate[T any](items []T, page, pageSize int) []T {
	page, pageSize = NormalizePage(page, pageSize)
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
