// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/userhub/userhub/internal/metrics"
	"github.com/userhub/userhub/internal/model"
	"github.com/userhub/userhub/internal/store"
)

// Service errors.
var (
	ErrNameRequired  = errors.New("name is required")
	ErrEmailRequired = errors.New("email is required")
	ErrUserNotFound  = errors.New("user not found")
)

// IsValidation reports whether err belongs to the validation taxonomy.
func IsValidation(err error) bool {
	return errors.Is(err, ErrNameRequired) || errors.Is(err, ErrEmailRequired)
}

// UserService handles user business logic on top of the in-memory store.
type UserService struct {
	store   *store.Store
	metrics metrics.Recorder
}

// NewUserService creates a new UserService.
func NewUserService(st *store.Store, recorder metrics.Recorder) *UserService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &UserService{
		store:   st,
		metrics: recorder,
	}
}

// CreateUserInput defines input for creating a user.
type CreateUserInput struct {
	Name  string
	Email string
}

// CreateUser validates the input and registers a new user.
// Validation runs before the store is touched: a rejected create must not
// consume an id or show up in listings.
func (s *UserService) CreateUser(ctx context.Context, input CreateUserInput) (*model.User, error) {
	name := strings.TrimSpace(input.Name)
	email := strings.TrimSpace(input.Email)

	if name == "" {
		return nil, ErrNameRequired
	}
	if email == "" {
		return nil, ErrEmailRequired
	}

	user := s.store.Create(name, email)
	s.metrics.IncUserCreated()

	return user, nil
}

// GetUser retrieves a user by id.
func (s *UserService) GetUser(ctx context.Context, id int64) (*model.User, error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveLookupDuration(time.Since(start))
	}()

	user, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return user, nil
}

// ListUsers returns all users in insertion order. Never nil.
func (s *UserService) ListUsers(ctx context.Context) []*model.User {
	return s.store.List()
}

// DeleteUser removes a user by id.
func (s *UserService) DeleteUser(ctx context.Context, id int64) error {
	if err := s.store.Delete(id); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	s.metrics.IncUserDeleted()
	return nil
}
