package repository

import (
	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/store"
)

// Repositories groups every entity repository over one store
type Repositories struct {
	Users          *UserRepository
	Vendors        *VendorRepository
	Projects       *ProjectRepository
	Assignments    *AssignmentRepository
	FundingLines   *FundingLineRepository
	ProjectVendors *ProjectVendorRepository
	ChangeOrders   *ChangeOrderRepository
	Files          *FileRepository

	store  *store.Store
	logger *zap.Logger
}

// NewRepositories wires a repository for every collection of s
func NewRepositories(s *store.Store, logger *zap.Logger) *Repositories {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repositories{
		Users:          NewUserRepository(s, logger),
		Vendors:        NewVendorRepository(s, logger),
		Projects:       NewProjectRepository(s, logger),
		Assignments:    NewAssignmentRepository(s, logger),
		FundingLines:   NewFundingLineRepository(s, logger),
		ProjectVendors: NewProjectVendorRepository(s, logger),
		ChangeOrders:   NewChangeOrderRepository(s, logger),
		Files:          NewFileRepository(s, logger),
		store:          s,
		logger:         logger,
	}
}

// Store returns the underlying document store
func (r *Repositories) Store() *store.Store {
	return r.store
}

// NewUnitOfWork starts a unit of work over these repositories
func (r *Repositories) NewUnitOfWork() *UnitOfWork {
	return NewUnitOfWork(r.store, r, r.logger)
}
