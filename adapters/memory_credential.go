package adapters

import (
	"sync"

	"github.com/satriahrh/arunika/client/domain/entities"
	"github.com/satriahrh/arunika/client/domain/repositories"
)

// MemoryCredentialStore holds the credential for the life of the process
type MemoryCredentialStore struct {
	mu   sync.Mutex
	cred entities.Credential
}

var _ repositories.CredentialStore = (*MemoryCredentialStore)(nil)

// NewMemoryCredentialStore creates an empty store
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{}
}

func (s *MemoryCredentialStore) Load() (entities.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred.IsZero() {
		return entities.Credential{}, repositories.ErrNotFound
	}
	return s.cred, nil
}

func (s *MemoryCredentialStore) Save(cred entities.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = cred
	return nil
}

func (s *MemoryCredentialStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = entities.Credential{}
	return nil
}
