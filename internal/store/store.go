// Package store provides the in-memory user registry.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/userhub/userhub/internal/model"
)

// ErrUserNotFound is returned when a user id is absent from the store.
var ErrUserNotFound = errors.New("user not found")

// Store is a thread-safe in-memory user registry.
//
// IDs are allocated from a monotonic counter starting at 1 and are never
// reused within the process lifetime, even after deletion. Contents are
// fully volatile and lost on restart. Insertion order is preserved for
// listing.
type Store struct {
	mu     sync.Mutex
	users  map[int64]*model.User
	order  []int64
	nextID int64
	now    func() time.Time // injectable for deterministic tests
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		users:  make(map[int64]*model.User),
		nextID: 1,
		now:    time.Now,
	}
}

// Create allocates the next sequential id, stores the record and returns it.
// Input validation is the service layer's responsibility; the store trusts
// its inputs and always consumes an id.
func (s *Store) Create(name, email string) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := &model.User{
		ID:        s.nextID,
		Name:      name,
		Email:     email,
		CreatedAt: s.now().UTC(),
	}
	s.users[user.ID] = user
	s.order = append(s.order, user.ID)
	s.nextID++

	return user
}

// Get returns the user with the given id, or ErrUserNotFound.
func (s *Store) Get(id int64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// List returns all current users in insertion order.
// The result is never nil, so callers can encode it as a JSON array directly.
func (s *Store) List() []*model.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]*model.User, 0, len(s.order))
	for _, id := range s.order {
		users = append(users, s.users[id])
	}
	return users
}

// Delete removes the user with the given id.
// Returns ErrUserNotFound when the id is absent; a second delete on the
// same id yields the same miss. The id counter never rewinds.
func (s *Store) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return ErrUserNotFound
	}
	delete(s.users, id)

	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Len returns the number of users currently stored.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// Ping reports store health. An in-process map has no failure mode, so it
// always succeeds; it exists to satisfy the readiness probe's checker.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}
