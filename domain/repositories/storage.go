package repositories

import (
	"context"
	"errors"

	"github.com/satriahrh/arunika/client/domain/entities"
)

// ErrNotFound is returned when a stored item does not exist
var ErrNotFound = errors.New("not found")

// SessionArchive stores finished voice sessions with their transcripts
type SessionArchive interface {
	Save(ctx context.Context, record *entities.SessionRecord) error
	GetByID(ctx context.Context, id string) (*entities.SessionRecord, error)
	ListRecent(ctx context.Context, limit int) ([]*entities.SessionRecord, error)
}

// CredentialStore persists the current credential between runs
type CredentialStore interface {
	Load() (entities.Credential, error)
	Save(cred entities.Credential) error
	Delete() error
}
