package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/store"
)

// ErrUnitOfWorkClosed is returned when a committed or rolled back unit of
// work is used again
var ErrUnitOfWorkClosed = errors.New("unit of work already completed")

type stagedOp func(doc *store.Document, now time.Time) error

// UnitOfWork stages writes across repositories and applies them together.
//
// Commit replays the staged operations in registration order against a deep
// copy of the document, writes the copy once and swaps it in only when every
// step succeeded. A failure at any step leaves the in-memory and on-disk
// document untouched. A unit of work is single use.
type UnitOfWork struct {
	id     uuid.UUID
	store  *store.Store
	repos  *Repositories
	logger *zap.Logger

	mu       sync.Mutex
	ops      []stagedOp
	resets   []func()
	finished bool
}

// NewUnitOfWork creates a unit of work over repos
func NewUnitOfWork(s *store.Store, repos *Repositories, logger *zap.Logger) *UnitOfWork {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.New()
	return &UnitOfWork{
		id:     id,
		store:  s,
		repos:  repos,
		logger: logger.With(zap.String("unit_of_work", id.String())),
	}
}

// ID returns the unit of work identifier used in logs
func (u *UnitOfWork) ID() uuid.UUID {
	return u.id
}

// Len returns the number of staged operations
func (u *UnitOfWork) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.ops)
}

// Stage appends a custom step that mutates the working document directly
func (u *UnitOfWork) Stage(fn func(doc *store.Document) error) error {
	return u.stage(func(doc *store.Document, _ time.Time) error { return fn(doc) }, nil)
}

func (u *UnitOfWork) stage(op stagedOp, reset func()) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.finished {
		return ErrUnitOfWorkClosed
	}
	u.ops = append(u.ops, op)
	if reset != nil {
		u.resets = append(u.resets, reset)
	}
	return nil
}

// Commit applies every staged operation atomically
func (u *UnitOfWork) Commit(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.finished {
		return ErrUnitOfWorkClosed
	}
	u.finished = true
	ops := u.ops
	u.ops = nil
	if len(ops) == 0 {
		return nil
	}

	err := u.store.Transaction(ctx, func(doc *store.Document) error {
		now := u.store.Now()
		for i, op := range ops {
			if err := op(doc, now); err != nil {
				return fmt.Errorf("step %d of %d: %w", i+1, len(ops), err)
			}
		}
		return nil
	})
	if err != nil {
		for _, reset := range u.resets {
			reset()
		}
		u.logger.Warn("unit of work failed, nothing was applied", zap.Error(err))
		return err
	}
	u.logger.Debug("unit of work committed", zap.Int("operations", len(ops)))
	return nil
}

// Rollback discards staged operations and reloads the document from disk
func (u *UnitOfWork) Rollback() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.finished {
		return ErrUnitOfWorkClosed
	}
	u.finished = true
	discarded := len(u.ops)
	u.ops = nil
	for _, reset := range u.resets {
		reset()
	}
	if err := u.store.Read(true); err != nil {
		return err
	}
	u.logger.Debug("unit of work rolled back", zap.Int("discarded", discarded))
	return nil
}

// Users returns the staging proxy for users
func (u *UnitOfWork) Users() *TxRepository[*domain.User, int] {
	return &TxRepository[*domain.User, int]{uow: u, repo: u.repos.Users.Repository}
}

// Vendors returns the staging proxy for vendors
func (u *UnitOfWork) Vendors() *TxRepository[*domain.Vendor, int] {
	return &TxRepository[*domain.Vendor, int]{uow: u, repo: u.repos.Vendors.Repository}
}

// Projects returns the staging proxy for projects
func (u *UnitOfWork) Projects() *TxRepository[*domain.Project, string] {
	return &TxRepository[*domain.Project, string]{uow: u, repo: u.repos.Projects.Repository}
}

// Assignments returns the staging proxy for project assignments
func (u *UnitOfWork) Assignments() *TxRepository[*domain.ProjectAssignment, int] {
	return &TxRepository[*domain.ProjectAssignment, int]{uow: u, repo: u.repos.Assignments.Repository}
}

// FundingLines returns the staging proxy for funding lines
func (u *UnitOfWork) FundingLines() *TxRepository[*domain.FundingLine, int] {
	return &TxRepository[*domain.FundingLine, int]{uow: u, repo: u.repos.FundingLines.Repository}
}

// ProjectVendors returns the staging proxy for project-vendor links
func (u *UnitOfWork) ProjectVendors() *TxRepository[*domain.ProjectVendor, int] {
	return &TxRepository[*domain.ProjectVendor, int]{uow: u, repo: u.repos.ProjectVendors.Repository}
}

// ChangeOrders returns the staging proxy for change orders
func (u *UnitOfWork) ChangeOrders() *TxRepository[*domain.ChangeOrder, int] {
	return &TxRepository[*domain.ChangeOrder, int]{uow: u, repo: u.repos.ChangeOrders.Repository}
}

// Files returns the staging proxy for file metadata
func (u *UnitOfWork) Files() *TxRepository[*domain.File, int] {
	return &TxRepository[*domain.File, int]{uow: u, repo: u.repos.Files.Repository}
}

// Pending is the placeholder returned by a staged operation. Its value is
// set once the operation has run during a successful commit.
type Pending[T any] struct {
	mu       sync.Mutex
	value    T
	resolved bool
}

// Value returns the result of the staged operation, or the zero value
// before commit
func (p *Pending[T]) Value() T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// Resolved reports whether the staged operation has produced a value
func (p *Pending[T]) Resolved() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resolved
}

func (p *Pending[T]) set(v T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.value = v
	p.resolved = true
}

func (p *Pending[T]) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	var zero T
	p.value = zero
	p.resolved = false
}

// TxRepository stages repository writes on a unit of work
type TxRepository[T Entity[K], K comparable] struct {
	uow  *UnitOfWork
	repo *Repository[T, K]
}

// Create stages the creation of item
func (t *TxRepository[T, K]) Create(item T) (*Pending[T], error) {
	return t.CreateWith(func() (T, error) { return item, nil })
}

// CreateWith stages a creation whose record is built at commit time, after
// every earlier step has run. Builders may read earlier Pending values.
func (t *TxRepository[T, K]) CreateWith(build func() (T, error)) (*Pending[T], error) {
	p := &Pending[T]{}
	err := t.uow.stage(func(doc *store.Document, now time.Time) error {
		item, err := build()
		if err != nil {
			return err
		}
		created, err := t.repo.insert(doc, item, now)
		if err != nil {
			return err
		}
		p.set(created)
		return nil
	}, p.reset)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Update stages a shallow-merge update of the record with id
func (t *TxRepository[T, K]) Update(id K, patch map[string]any) (*Pending[T], error) {
	return t.UpdateWith(func() (K, error) { return id, nil }, patch)
}

// UpdateWith stages an update whose target id is resolved at commit time
func (t *TxRepository[T, K]) UpdateWith(id func() (K, error), patch map[string]any) (*Pending[T], error) {
	p := &Pending[T]{}
	err := t.uow.stage(func(doc *store.Document, now time.Time) error {
		target, err := id()
		if err != nil {
			return err
		}
		updated, err := t.repo.modify(doc, target, patch, now)
		if err != nil {
			return err
		}
		p.set(updated)
		return nil
	}, p.reset)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Delete stages the removal of the record with id
func (t *TxRepository[T, K]) Delete(id K) (*Pending[T], error) {
	p := &Pending[T]{}
	err := t.uow.stage(func(doc *store.Document, _ time.Time) error {
		removed, err := t.repo.remove(doc, id)
		if err != nil {
			return err
		}
		p.set(removed)
		return nil
	}, p.reset)
	if err != nil {
		return nil, err
	}
	return p, nil
}
