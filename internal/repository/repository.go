// Package repository implements typed CRUD over the collections of the
// document store, relationship hydration for projects and a unit of work
// for multi-entity writes.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/schema"
	"github.com/straye-as/pfmt-tracker/internal/store"
)

// Entity is implemented by pointers to every stored type
type Entity[K comparable] interface {
	GetID() K
	SetID(K)
	Stamps() *domain.Timestamps
}

type selfValidator interface {
	Validate() error
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// collection binds a repository to one slice of the document
type collection[T any, K comparable] struct {
	entity string
	rows   func(*store.Document) *[]T
	nextID func(rows []T, item T) (K, error)
	// prepare normalizes derived fields before validation
	prepare func(item T)
	// unique rejects values that clash with other rows in the document
	unique func(doc *store.Document, item T) error
}

// Repository provides generic CRUD for one entity collection
type Repository[T Entity[K], K comparable] struct {
	store  *store.Store
	coll   collection[T, K]
	logger *zap.Logger
}

func newRepository[T Entity[K], K comparable](s *store.Store, coll collection[T, K], logger *zap.Logger) *Repository[T, K] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository[T, K]{
		store:  s,
		coll:   coll,
		logger: logger.With(zap.String("entity", coll.entity)),
	}
}

// Entity returns the schema entity name served by the repository
func (r *Repository[T, K]) Entity() string {
	return r.coll.entity
}

// Create assigns an id, stamps timestamps, validates and persists item.
// The returned value is a copy of the stored record.
func (r *Repository[T, K]) Create(ctx context.Context, item T) (T, error) {
	var created T
	err := r.store.Update(ctx, func(doc *store.Document) error {
		var err error
		created, err = r.insert(doc, item, r.store.Now())
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	r.logger.Debug("record created", zap.Any("id", created.GetID()))
	return created, nil
}

// FindByID returns the record with id. A missing record is reported through
// the boolean, never as an error.
func (r *Repository[T, K]) FindByID(ctx context.Context, id K) (T, bool, error) {
	var (
		found T
		ok    bool
	)
	err := r.store.View(ctx, func(doc *store.Document) error {
		idx := r.indexOf(doc, id)
		if idx < 0 {
			return nil
		}
		var err error
		found, err = store.CloneJSON((*r.coll.rows(doc))[idx])
		ok = err == nil
		return err
	})
	return found, ok, err
}

// FindOne returns the first record matching criteria
func (r *Repository[T, K]) FindOne(ctx context.Context, criteria Criteria) (T, bool, error) {
	var zero T
	matches, err := r.find(ctx, criteria, 1)
	if err != nil || len(matches) == 0 {
		return zero, false, err
	}
	return matches[0], true, nil
}

// FindMany returns every record matching criteria in document order
func (r *Repository[T, K]) FindMany(ctx context.Context, criteria Criteria) ([]T, error) {
	return r.find(ctx, criteria, 0)
}

// All returns every record in document order
func (r *Repository[T, K]) All(ctx context.Context) ([]T, error) {
	return r.find(ctx, nil, 0)
}

// Where returns every record for which pred holds
func (r *Repository[T, K]) Where(ctx context.Context, pred func(T) bool) ([]T, error) {
	var out []T
	err := r.store.View(ctx, func(doc *store.Document) error {
		for _, row := range *r.coll.rows(doc) {
			if !pred(row) {
				continue
			}
			cp, err := store.CloneJSON(row)
			if err != nil {
				return err
			}
			out = append(out, cp)
		}
		return nil
	})
	return out, err
}

// Count returns the number of records matching criteria
func (r *Repository[T, K]) Count(ctx context.Context, criteria Criteria) (int, error) {
	count := 0
	err := r.store.View(ctx, func(doc *store.Document) error {
		for _, row := range *r.coll.rows(doc) {
			ok, err := criteria.Match(row)
			if err != nil {
				return err
			}
			if ok {
				count++
			}
		}
		return nil
	})
	return count, err
}

// Update shallow-merges patch onto the record with id and refreshes updatedAt.
// id and createdAt cannot be patched.
func (r *Repository[T, K]) Update(ctx context.Context, id K, patch map[string]any) (T, error) {
	var updated T
	err := r.store.Update(ctx, func(doc *store.Document) error {
		var err error
		updated, err = r.modify(doc, id, patch, r.store.Now())
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return updated, nil
}

// Delete removes the record with id and returns it
func (r *Repository[T, K]) Delete(ctx context.Context, id K) (T, error) {
	var removed T
	err := r.store.Update(ctx, func(doc *store.Document) error {
		var err error
		removed, err = r.remove(doc, id)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	r.logger.Debug("record deleted", zap.Any("id", id))
	return removed, nil
}

func (r *Repository[T, K]) find(ctx context.Context, criteria Criteria, limit int) ([]T, error) {
	out := []T{}
	err := r.store.View(ctx, func(doc *store.Document) error {
		for _, row := range *r.coll.rows(doc) {
			ok, err := criteria.Match(row)
			if err != nil {
				return fmt.Errorf("match %s: %w", r.coll.entity, err)
			}
			if !ok {
				continue
			}
			cp, err := store.CloneJSON(row)
			if err != nil {
				return err
			}
			out = append(out, cp)
			if limit > 0 && len(out) == limit {
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r *Repository[T, K]) indexOf(doc *store.Document, id K) int {
	for i, row := range *r.coll.rows(doc) {
		if row.GetID() == id {
			return i
		}
	}
	return -1
}

// insert adds a copy of item to doc. It must run inside a store critical
// section so the id reservation and the append are atomic.
func (r *Repository[T, K]) insert(doc *store.Document, item T, now time.Time) (T, error) {
	var zero T
	if isNil(item) {
		return zero, domain.NewValidationError("", "%s: nil record", r.coll.entity)
	}
	rec, err := store.CloneJSON(item)
	if err != nil {
		return zero, err
	}

	rows := r.coll.rows(doc)
	id, err := r.coll.nextID(*rows, rec)
	if err != nil {
		return zero, err
	}
	rec.SetID(id)
	rec.Stamps().MarkCreated(now)

	if err := r.check(doc, rec); err != nil {
		return zero, err
	}
	*rows = append(*rows, rec)
	return store.CloneJSON(rec)
}

func (r *Repository[T, K]) modify(doc *store.Document, id K, patch map[string]any, now time.Time) (T, error) {
	var zero T
	rows := r.coll.rows(doc)
	idx := r.indexOf(doc, id)
	if idx < 0 {
		return zero, domain.NotFoundError(r.coll.entity, id)
	}
	existing := (*rows)[idx]

	merged, err := mergePatch(existing, patch)
	if err != nil {
		return zero, err
	}
	merged.SetID(existing.GetID())
	stamps := merged.Stamps()
	stamps.CreatedAt = existing.Stamps().CreatedAt
	stamps.UpdatedAt = existing.Stamps().UpdatedAt
	stamps.Touch(now)

	if err := r.check(doc, merged); err != nil {
		return zero, err
	}
	(*rows)[idx] = merged
	return store.CloneJSON(merged)
}

func (r *Repository[T, K]) remove(doc *store.Document, id K) (T, error) {
	var zero T
	rows := r.coll.rows(doc)
	idx := r.indexOf(doc, id)
	if idx < 0 {
		return zero, domain.NotFoundError(r.coll.entity, id)
	}
	removed := (*rows)[idx]
	*rows = append((*rows)[:idx], (*rows)[idx+1:]...)
	return removed, nil
}

// check runs derived-field normalization, struct validation, schema
// required fields and uniqueness rules
func (r *Repository[T, K]) check(doc *store.Document, rec T) error {
	if r.coll.prepare != nil {
		r.coll.prepare(rec)
	}
	if err := validate.Struct(rec); err != nil {
		return toValidationError(err)
	}
	if v, ok := any(rec).(selfValidator); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	fields, err := toJSONValue(rec)
	if err != nil {
		return err
	}
	if m, ok := fields.(map[string]any); ok {
		if missing := schema.CheckRequired(r.coll.entity, m); len(missing) > 0 {
			return domain.NewValidationError(missing[0], "%s requires %v", r.coll.entity, missing)
		}
	}
	if r.coll.unique != nil {
		return r.coll.unique(doc, rec)
	}
	return nil
}

// mergePatch overlays the top-level keys of patch on the JSON form of rec
func mergePatch[T any](rec T, patch map[string]any) (T, error) {
	var out T
	data, err := json.Marshal(rec)
	if err != nil {
		return out, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return out, err
	}
	for key, value := range patch {
		switch key {
		case "id", "createdAt", "updatedAt":
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return out, domain.NewValidationError(key, "cannot encode value: %v", err)
		}
		fields[key] = raw
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(merged, &out); err != nil {
		return out, domain.NewValidationError("", "invalid patch: %v", err)
	}
	return out, nil
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return domain.NewValidationError(fe.Field(), "%s", domain.GetValidationMessage(fe.Tag()))
	}
	return fmt.Errorf("%w: %v", domain.ErrValidation, err)
}

// sequentialID returns max(existing)+1
func sequentialID[T Entity[int]](rows []T, _ T) (int, error) {
	maxID := 0
	for _, row := range rows {
		if row.GetID() > maxID {
			maxID = row.GetID()
		}
	}
	return maxID + 1, nil
}
