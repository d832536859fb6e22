package repositories

import (
	"context"
	"errors"

	"github.com/satriahrh/arunika/client/domain/entities"
)

// ErrUnauthorized marks a request rejected for an invalid or expired credential
var ErrUnauthorized = errors.New("unauthorized")

// AuthService is the token issuance backend
type AuthService interface {
	Login(ctx context.Context, email, password string) (entities.Credential, error)
	// Refresh exchanges the current token for a new one
	Refresh(ctx context.Context, token string) (entities.Credential, error)
}

// SessionService creates backend conversation sessions
type SessionService interface {
	CreateSession(ctx context.Context, token string) (string, error)
}
