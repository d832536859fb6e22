package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/client/domain/repositories"
	"github.com/satriahrh/arunika/client/internal/auth"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", zap.NewNop(), WithRetries(1))
}

func TestLogin(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/login", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req loginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "user@example.com", req.Email)
		assert.Equal(t, "secret", req.Password)

		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok", TokenType: "bearer", ExpiresIn: 90})
	})

	cred, err := c.Login(context.Background(), "user@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok", cred.Token)
	assert.Equal(t, 90*time.Second, cred.TTL)
	assert.False(t, cred.IssuedAt.IsZero())
}

func TestLogin_Unauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Login(context.Background(), "user@example.com", "wrong")
	assert.True(t, errors.Is(err, repositories.ErrUnauthorized))
}

func TestLogin_MissingFields(t *testing.T) {
	c := NewClient("http://unused", zap.NewNop())
	_, err := c.Login(context.Background(), "", "")
	assert.Error(t, err)
}

func TestRefresh_SendsAccessTokenAsRefreshToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/refresh", r.URL.Path)
		var req refreshRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "old-token", req.RefreshToken)

		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "new-token", ExpiresIn: 600})
	})

	cred, err := c.Refresh(context.Background(), "old-token")
	require.NoError(t, err)
	assert.Equal(t, "new-token", cred.Token)
	assert.Equal(t, 10*time.Minute, cred.TTL)
}

func TestRefresh_EmptyToken(t *testing.T) {
	c := NewClient("http://unused", zap.NewNop())
	_, err := c.Refresh(context.Background(), "")
	assert.True(t, errors.Is(err, repositories.ErrUnauthorized))
}

func TestCredential_TTLFallbacks(t *testing.T) {
	issuer := auth.NewTokenIssuer("test-secret")
	token, err := issuer.Issue("u1", "user@example.com", 2*time.Hour)
	require.NoError(t, err)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/login" {
			json.NewEncoder(w).Encode(tokenResponse{AccessToken: token})
			return
		}
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "opaque"})
	})

	cred, err := c.Login(context.Background(), "user@example.com", "secret")
	require.NoError(t, err)
	assert.InDelta(t, (2 * time.Hour).Seconds(), cred.TTL.Seconds(), 5, "ttl should come from the exp claim")

	cred, err = c.Refresh(context.Background(), "whatever")
	require.NoError(t, err)
	assert.Equal(t, DefaultExpiresIn, cred.TTL)
}

func TestCreateSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sessions", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(sessionResponse{ID: "session-1"})
	})

	id, err := c.CreateSession(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "session-1", id)
}

func TestCreateSession_EmptyID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(sessionResponse{})
	})

	_, err := c.CreateSession(context.Background(), "tok")
	assert.Error(t, err)
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(sessionResponse{ID: "session-2"})
	})

	id, err := c.CreateSession(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "session-2", id)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := c.CreateSession(context.Background(), "tok")
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
