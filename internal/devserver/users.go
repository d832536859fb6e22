package devserver

import (
	"errors"
	"sync"
)

// ErrInvalidCredentials is returned for an unknown email or wrong password
var ErrInvalidCredentials = errors.New("invalid credentials")

// User is a login the stub backend accepts
type User struct {
	ID    string
	Email string
}

// UserStore is an in-memory set of test users
type UserStore struct {
	mu        sync.RWMutex
	users     map[string]*User // email -> user
	passwords map[string]string
}

// NewUserStore creates a store with pre-registered test users
func NewUserStore() *UserStore {
	s := &UserStore{
		users:     make(map[string]*User),
		passwords: make(map[string]string),
	}

	s.Add("user-001", "demo@arunika.dev", "secret123")
	s.Add("user-002", "parent@arunika.dev", "secret456")

	return s
}

// Add registers a user, replacing any with the same email
func (s *UserStore) Add(id, email, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[email] = &User{ID: id, Email: email}
	s.passwords[email] = password
}

// Validate checks email and password
func (s *UserStore) Validate(email, password string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, exists := s.passwords[email]
	if !exists || stored != password {
		return nil, ErrInvalidCredentials
	}
	u := *s.users[email]
	return &u, nil
}
