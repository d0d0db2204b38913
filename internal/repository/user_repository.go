package repository

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/schema"
	"github.com/straye-as/pfmt-tracker/internal/store"
)

// UserRepository handles user records
type UserRepository struct {
	*Repository[*domain.User, int]
}

func userCollection() collection[*domain.User, int] {
	return collection[*domain.User, int]{
		entity: schema.User,
		rows:   func(doc *store.Document) *[]*domain.User { return &doc.Users },
		nextID: sequentialID[*domain.User],
		unique: func(doc *store.Document, user *domain.User) error {
			for _, other := range doc.Users {
				if other.ID != user.ID && strings.EqualFold(other.Email, user.Email) {
					return domain.NewValidationError("email", "email %q is already registered", user.Email)
				}
			}
			return nil
		},
	}
}

// NewUserRepository creates a new user repository
func NewUserRepository(s *store.Store, logger *zap.Logger) *UserRepository {
	return &UserRepository{Repository: newRepository(s, userCollection(), logger)}
}

// FindByEmail finds a user by email, case-insensitively
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, bool, error) {
	users, err := r.Where(ctx, func(u *domain.User) bool {
		return strings.EqualFold(u.Email, email)
	})
	if err != nil || len(users) == 0 {
		return nil, false, err
	}
	return users[0], true, nil
}
