package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/satriahrh/arunika/client/domain/entities"
	"github.com/satriahrh/arunika/client/domain/repositories"
)

// DefaultRefreshLead is how long before expiry the scheduled refresh runs
const DefaultRefreshLead = 60 * time.Second

var (
	// ErrUnauthorized is returned by collaborators rejecting the credential
	ErrUnauthorized = repositories.ErrUnauthorized

	// ErrAuthRequired means the credential is gone and the user must log in again
	ErrAuthRequired = errors.New("authentication required")

	// ErrNoCredential is returned when no token is held
	ErrNoCredential = errors.New("no credential")

	// ErrRefreshAborted means the exchange was cut short by a deadline or
	// cancellation; the credential is kept
	ErrRefreshAborted = errors.New("refresh aborted")
)

// Timer is a cancellable pending callback
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Manager owns the session credential. It re-arms a refresh timer on every
// replacement and shares one in-flight refresh between the timer and
// callers hitting a 401.
type Manager struct {
	mu         sync.Mutex
	cred       entities.Credential
	timer      Timer
	generation uint64

	auth  repositories.AuthService
	store repositories.CredentialStore
	group singleflight.Group

	lead           time.Duration
	refreshTimeout time.Duration
	afterFunc      AfterFunc
	now            func() time.Time

	subscribers []func(error)
	observe     func(result string)

	logger *zap.Logger
}

// Option configures a Manager
type Option func(*Manager)

// WithRefreshLead sets how long before expiry the refresh fires
func WithRefreshLead(lead time.Duration) Option {
	return func(m *Manager) { m.lead = lead }
}

// WithStore persists credentials across runs
func WithStore(store repositories.CredentialStore) Option {
	return func(m *Manager) { m.store = store }
}

// WithAfterFunc replaces the timer implementation
func WithAfterFunc(fn AfterFunc) Option {
	return func(m *Manager) { m.afterFunc = fn }
}

// WithClock replaces the wall clock
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithRefreshTimeout bounds one refresh exchange
func WithRefreshTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.refreshTimeout = d
	}
}

// WithRefreshObserver is called with "success", "failure" or "aborted" after
// each refresh exchange
func WithRefreshObserver(fn func(result string)) Option {
	return func(m *Manager) { m.observe = fn }
}

// NewManager creates a credential manager backed by the auth service
func NewManager(auth repositories.AuthService, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		auth:           auth,
		lead:           DefaultRefreshLead,
		refreshTimeout: 15 * time.Second,
		afterFunc:      realAfterFunc,
		now:            time.Now,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnAuthRequired registers fn to be called when the credential is lost
func (m *Manager) OnAuthRequired(fn func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Login exchanges email and password for a credential
func (m *Manager) Login(ctx context.Context, email, password string) error {
	cred, err := m.auth.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	m.SetCredential(cred)
	m.logger.Info("Logged in", zap.Duration("ttl", cred.TTL))
	return nil
}

// Resume restores a stored credential that has not expired yet
func (m *Manager) Resume() bool {
	if m.store == nil {
		return false
	}

	stored, err := m.store.Load()
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			m.logger.Warn("Failed to load stored credential", zap.Error(err))
		}
		return false
	}

	now := m.now()
	remaining := stored.Remaining(now)
	if stored.IsZero() || remaining == 0 {
		return false
	}

	m.SetCredential(entities.Credential{Token: stored.Token, TTL: remaining, IssuedAt: now})
	m.logger.Info("Resumed stored credential", zap.Duration("remaining", remaining))
	return true
}

// RefreshDelay returns when a refresh should run for a credential living ttl.
// It reports false when ttl leaves no room before the lead time.
func (m *Manager) RefreshDelay(ttl time.Duration) (time.Duration, bool) {
	if ttl <= m.lead {
		return 0, false
	}
	return ttl - m.lead, true
}

// SetCredential replaces the credential and re-arms the refresh timer. The
// old timer is cancelled before the new one is armed.
func (m *Manager) SetCredential(cred entities.Credential) {
	if cred.IssuedAt.IsZero() {
		cred.IssuedAt = m.now()
	}

	m.mu.Lock()
	m.replaceLocked(cred)
	m.mu.Unlock()

	m.persist(cred)
}

func (m *Manager) replaceLocked(cred entities.Credential) {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.generation++
	m.cred = cred

	delay, ok := m.RefreshDelay(cred.TTL)
	if !ok {
		m.logger.Debug("Credential too short-lived for scheduled refresh", zap.Duration("ttl", cred.TTL))
		return
	}

	gen := m.generation
	m.timer = m.afterFunc(delay, func() { m.fire(gen) })
	m.logger.Debug("Credential refresh scheduled", zap.Duration("in", delay))
}

// Token returns the current bearer token, empty when logged out
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred.Token
}

// Credential returns the current credential
func (m *Manager) Credential() (entities.Credential, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred, !m.cred.IsZero()
}

// Scheduled reports whether a refresh timer is armed
func (m *Manager) Scheduled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timer != nil
}

// Refresh exchanges the current token for a new one. Concurrent callers
// share a single exchange, which runs detached from any one caller's
// cancellation and is bounded by the refresh timeout. A caller whose ctx
// ends stops waiting; the exchange carries on for the others. When the
// backend rejects the exchange all credential state is cleared and
// subscribers are told authentication is required.
func (m *Manager) Refresh(ctx context.Context) (entities.Credential, error) {
	ch := m.group.DoChan("refresh", func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
		defer cancel()
		return m.refresh(rctx)
	})

	select {
	case <-ctx.Done():
		return entities.Credential{}, fmt.Errorf("%w: %w", ErrRefreshAborted, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return entities.Credential{}, res.Err
		}
		return res.Val.(entities.Credential), nil
	}
}

func (m *Manager) refresh(ctx context.Context) (entities.Credential, error) {
	m.mu.Lock()
	token, gen := m.cred.Token, m.generation
	m.mu.Unlock()

	if token == "" {
		return entities.Credential{}, fmt.Errorf("%w: %w", ErrAuthRequired, ErrNoCredential)
	}

	cred, err := m.auth.Refresh(ctx, token)
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		m.record("aborted")
		m.logger.Warn("Credential refresh aborted, keeping credential", zap.Error(err))
		return entities.Credential{}, fmt.Errorf("%w: %w", ErrRefreshAborted, err)
	}
	if err != nil {
		m.record("failure")
		m.fail(fmt.Errorf("%w: refresh failed: %w", ErrAuthRequired, err))
		return entities.Credential{}, fmt.Errorf("%w: refresh failed: %w", ErrAuthRequired, err)
	}
	m.record("success")

	if cred.IssuedAt.IsZero() {
		cred.IssuedAt = m.now()
	}

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		m.logger.Info("Discarding refreshed credential, credential changed meanwhile")
		current, ok := m.Credential()
		if !ok {
			return entities.Credential{}, ErrAuthRequired
		}
		return current, nil
	}
	m.replaceLocked(cred)
	m.mu.Unlock()

	m.persist(cred)
	m.logger.Info("Credential refreshed", zap.Duration("ttl", cred.TTL))
	return cred, nil
}

// Clear drops the credential and cancels the refresh timer unconditionally
func (m *Manager) Clear() {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.generation++
	m.cred = entities.Credential{}
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Delete(); err != nil && !errors.Is(err, repositories.ErrNotFound) {
			m.logger.Warn("Failed to delete stored credential", zap.Error(err))
		}
	}
}

// Stop cancels the refresh timer but keeps the credential
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.generation++
}

func (m *Manager) fire(gen uint64) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.mu.Unlock()

	if _, err := m.Refresh(context.Background()); err != nil {
		m.logger.Error("Scheduled credential refresh failed", zap.Error(err))
	}
}

func (m *Manager) fail(err error) {
	m.Clear()

	m.mu.Lock()
	subscribers := append([]func(error){}, m.subscribers...)
	m.mu.Unlock()

	for _, fn := range subscribers {
		fn(err)
	}
}

func (m *Manager) persist(cred entities.Credential) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(cred); err != nil {
		m.logger.Warn("Failed to persist credential", zap.Error(err))
	}
}

func (m *Manager) record(result string) {
	if m.observe != nil {
		m.observe(result)
	}
}
