package usecase

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/arunika/client/domain/entities"
	"github.com/satriahrh/arunika/client/domain/repositories"
)

var (
	// ErrNotRunning is returned when switching sessions before Run
	ErrNotRunning = errors.New("voice client is not running")

	// ErrLoggedOut ends the current session on logout
	ErrLoggedOut = errors.New("logged out")
)

// SessionFactory builds a fresh, unstarted session with its own devices
type SessionFactory func() (*VoiceSession, error)

// CredentialManager is the part of auth.Manager the client drives
type CredentialManager interface {
	Clear()
	OnAuthRequired(fn func(error))
}

// VoiceClient keeps one current session and replaces it on request
type VoiceClient struct {
	newSession SessionFactory
	creds      CredentialManager
	archive    repositories.SessionArchive
	logger     *zap.Logger

	// serializes SwitchSession
	switchMu sync.Mutex

	mu      sync.RWMutex
	ctx     context.Context
	current *VoiceSession
	changed chan struct{}
}

// NewVoiceClient wires the client. A lost credential ends the current
// session with needs_reauth.
func NewVoiceClient(factory SessionFactory, creds CredentialManager, archive repositories.SessionArchive, logger *zap.Logger) *VoiceClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &VoiceClient{
		newSession: factory,
		creds:      creds,
		archive:    archive,
		logger:     logger,
		changed:    make(chan struct{}),
	}
	creds.OnAuthRequired(c.authRequired)
	return c
}

// Run starts the first session and blocks until ctx is done or the current
// session ends by itself. It returns why that session ended.
func (c *VoiceClient) Run(ctx context.Context) error {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	if _, err := c.SwitchSession(); err != nil {
		return err
	}

	for {
		c.mu.RLock()
		s := c.current
		changed := c.changed
		c.mu.RUnlock()

		select {
		case <-ctx.Done():
			c.closeCurrent()
			return nil
		case <-changed:
		case <-s.Done():
			if c.Current() == s {
				return s.Err()
			}
		}
	}
}

// Current returns the active session, nil before Run
func (c *VoiceClient) Current() *VoiceSession {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// SwitchSession closes the current session and starts a new one. The new
// session is current even if it fails to start, so its status is visible.
func (c *VoiceClient) SwitchSession() (*VoiceSession, error) {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	c.mu.RLock()
	ctx := c.ctx
	c.mu.RUnlock()
	if ctx == nil {
		return nil, ErrNotRunning
	}

	next, err := c.newSession()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	prev := c.current
	c.current = next
	close(c.changed)
	c.changed = make(chan struct{})
	c.mu.Unlock()

	if prev != nil {
		if err := prev.SwitchSession(); err != nil {
			c.logger.Warn("Failed to close previous session", zap.Error(err))
		}
	}

	if err := next.Start(ctx); err != nil {
		return next, err
	}
	c.logger.Info("Session switched", zap.String("sessionID", next.ID()))
	return next, nil
}

// Logout drops the credential and ends the current session
func (c *VoiceClient) Logout() {
	c.creds.Clear()
	if s := c.Current(); s != nil {
		s.AuthRequired(ErrLoggedOut)
		s.resetConversation()
	}
	c.logger.Info("Logged out")
}

// RecentSessions lists archived sessions, newest first
func (c *VoiceClient) RecentSessions(ctx context.Context, limit int) ([]*entities.SessionRecord, error) {
	if c.archive == nil {
		return []*entities.SessionRecord{}, nil
	}
	return c.archive.ListRecent(ctx, limit)
}

func (c *VoiceClient) authRequired(err error) {
	if s := c.Current(); s != nil {
		c.logger.Warn("Credential lost, ending session", zap.Error(err))
		s.AuthRequired(err)
	}
}

func (c *VoiceClient) closeCurrent() {
	if s := c.Current(); s != nil {
		_ = s.Close()
	}
}
