package auth

import (
	"context"
	"errors"
)

// Do calls fn with the current token. If fn fails with ErrUnauthorized the
// credential is refreshed (single-flight with the scheduled refresh) and fn
// is retried once with the new token.
func (m *Manager) Do(ctx context.Context, fn func(token string) error) error {
	token := m.Token()
	if token == "" {
		return ErrAuthRequired
	}

	err := fn(token)
	if !errors.Is(err, ErrUnauthorized) {
		return err
	}

	m.logger.Info("Request unauthorized, refreshing credential")
	cred, err := m.Refresh(ctx)
	if err != nil {
		return err
	}
	return fn(cred.Token)
}
