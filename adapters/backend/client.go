// Package backend talks to the voice backend's HTTP API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/client/domain/entities"
	"github.com/satriahrh/arunika/client/domain/repositories"
	"github.com/satriahrh/arunika/client/internal/auth"
)

// DefaultExpiresIn is used when the token response carries no expires_in
// and the token itself has no exp claim.
const DefaultExpiresIn = 3600 * time.Second

// Client implements AuthService and SessionService over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
	retries    uint64
}

var (
	_ repositories.AuthService    = (*Client)(nil)
	_ repositories.SessionService = (*Client)(nil)
)

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithRetries sets how many times a transient failure is retried
func WithRetries(n uint64) Option {
	return func(cl *Client) { cl.retries = n }
}

// NewClient creates a backend client rooted at baseURL
func NewClient(baseURL string, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		now:        time.Now,
		retries:    2,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type sessionResponse struct {
	ID string `json:"id"`
}

// Login exchanges email and password for a credential
func (c *Client) Login(ctx context.Context, email, password string) (entities.Credential, error) {
	if email == "" || password == "" {
		return entities.Credential{}, errors.New("email and password are required")
	}

	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", loginRequest{Email: email, Password: password}, &resp); err != nil {
		return entities.Credential{}, fmt.Errorf("login failed: %w", err)
	}
	return c.credential(resp)
}

// Refresh exchanges the current token for a new one. The backend issues a
// single token, so the access token is sent as the refresh token.
func (c *Client) Refresh(ctx context.Context, token string) (entities.Credential, error) {
	if token == "" {
		return entities.Credential{}, repositories.ErrUnauthorized
	}

	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", "", refreshRequest{RefreshToken: token}, &resp); err != nil {
		return entities.Credential{}, fmt.Errorf("refresh failed: %w", err)
	}
	return c.credential(resp)
}

// CreateSession opens a backend conversation and returns its ID
func (c *Client) CreateSession(ctx context.Context, token string) (string, error) {
	var resp sessionResponse
	if err := c.do(ctx, http.MethodPost, "/sessions", token, struct{}{}, &resp); err != nil {
		return "", fmt.Errorf("create session failed: %w", err)
	}
	if resp.ID == "" {
		return "", errors.New("create session failed: empty session id")
	}
	return resp.ID, nil
}

func (c *Client) credential(resp tokenResponse) (entities.Credential, error) {
	if resp.AccessToken == "" {
		return entities.Credential{}, errors.New("response carried no access token")
	}

	now := c.now()
	ttl := time.Duration(resp.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = DefaultExpiresIn
		if exp, err := auth.ExpiryFromToken(resp.AccessToken); err == nil {
			ttl = exp.Sub(now)
		}
	}

	return entities.Credential{Token: resp.AccessToken, TTL: ttl, IssuedAt: now}, nil
}

// do sends one JSON request, retrying network errors and 5xx responses
func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	backoff := retry.WithMaxRetries(c.retries, retry.NewExponential(200*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to create HTTP request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Debug("Backend request failed, retrying", zap.String("path", path), zap.Error(err))
			return retry.RetryableError(fmt.Errorf("failed to execute HTTP request: %w", err))
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return repositories.ErrUnauthorized
		case resp.StatusCode >= 500:
			errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return retry.RetryableError(fmt.Errorf("API returned error %d: %s", resp.StatusCode, string(errorBody)))
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return fmt.Errorf("API returned error %d: %s", resp.StatusCode, string(errorBody))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	})
}
