package store

import (
	"errors"
	"sync"

	"github.com/confbook/confbook/internal/model"
)

// ErrDuplicateUser is returned when a user id is already registered.
var ErrDuplicateUser = errors.New("user already exists")

// ErrUserNotFound is returned when a user id is unknown.
var ErrUserNotFound = errors.New("user not found")

// UserStore is the registry of users, keyed by user id. Users are immutable
// once registered.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]model.User
}

// NewUserStore constructs an empty registry.
func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]model.User)}
}

// Register inserts a user or fails with ErrDuplicateUser.
func (s *UserStore) Register(u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[u.ID]; exists {
		return ErrDuplicateUser
	}
	s.users[u.ID] = u
	return nil
}

// Get returns the user with the given id or ErrUserNotFound.
func (s *UserStore) Get(id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, ErrUserNotFound
	}
	return u, nil
}
