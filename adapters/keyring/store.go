// Package keyring persists the client credential in the OS secret store.
package keyring

import (
	"encoding/json"
	"errors"
	"fmt"

	gokeyring "github.com/zalando/go-keyring"

	"github.com/satriahrh/arunika/client/domain/entities"
	"github.com/satriahrh/arunika/client/domain/repositories"
)

const defaultService = "arunika-client"

// CredentialStore keeps one credential per account under a keyring service
type CredentialStore struct {
	service string
	account string
}

var _ repositories.CredentialStore = (*CredentialStore)(nil)

// NewCredentialStore creates a store for account, usually the login email
func NewCredentialStore(account string) *CredentialStore {
	return &CredentialStore{service: defaultService, account: account}
}

func (s *CredentialStore) Load() (entities.Credential, error) {
	secret, err := gokeyring.Get(s.service, s.account)
	if err != nil {
		if errors.Is(err, gokeyring.ErrNotFound) {
			return entities.Credential{}, repositories.ErrNotFound
		}
		return entities.Credential{}, fmt.Errorf("failed to read keyring: %w", err)
	}

	var cred entities.Credential
	if err := json.Unmarshal([]byte(secret), &cred); err != nil {
		return entities.Credential{}, fmt.Errorf("failed to decode stored credential: %w", err)
	}
	return cred, nil
}

func (s *CredentialStore) Save(cred entities.Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}
	if err := gokeyring.Set(s.service, s.account, string(data)); err != nil {
		return fmt.Errorf("failed to write keyring: %w", err)
	}
	return nil
}

func (s *CredentialStore) Delete() error {
	if err := gokeyring.Delete(s.service, s.account); err != nil {
		if errors.Is(err, gokeyring.ErrNotFound) {
			return repositories.ErrNotFound
		}
		return fmt.Errorf("failed to delete keyring entry: %w", err)
	}
	return nil
}
