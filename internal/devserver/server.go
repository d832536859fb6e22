// Package devserver is a stand-in voice backend for local runs and tests. It
// issues JWTs, creates sessions, records the client's audio frames and
// control messages, and plays a scripted reply.
package devserver

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/client/internal/auth"
)

// Config configures the stub backend
type Config struct {
	JWTSecret string
	TokenTTL  time.Duration
	// ReplyAfterFrames triggers the scripted reply; zero disables it
	ReplyAfterFrames int
	// OmitExpiresIn leaves expires_in out of token responses
	OmitExpiresIn bool
}

// Server is the stub backend
type Server struct {
	echo   *echo.Echo
	hub    *Hub
	issuer *auth.TokenIssuer
	users  *UserStore
	cfg    Config
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]string // session id -> user id
	revoked  map[string]bool   // token -> refreshable

	cancel context.CancelFunc
}

// New creates the stub backend and starts its hub
func New(cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		echo:     e,
		hub:      NewHub(cfg.ReplyAfterFrames, logger),
		issuer:   auth.NewTokenIssuer(cfg.JWTSecret),
		users:    NewUserStore(),
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]string),
		revoked:  make(map[string]bool),
		cancel:   cancel,
	}
	go s.hub.Run(ctx)

	s.initRoutes()
	return s
}

func (s *Server) initRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "arunika-devserver",
		})
	})

	s.echo.POST("/auth/login", s.login)
	s.echo.POST("/auth/refresh", s.refresh)
	s.echo.POST("/sessions", s.createSession)
	s.echo.GET("/ws/:id", s.serveWebSocket)
}

// Handler exposes the routes for httptest
func (s *Server) Handler() http.Handler { return s.echo }

// Hub exposes the socket side
func (s *Server) Hub() *Hub { return s.hub }

// Users exposes the login store
func (s *Server) Users() *UserStore { return s.users }

// Start listens on addr until Shutdown
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown stops the listener and closes every socket
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	return s.echo.Shutdown(ctx)
}

// Close stops the hub without touching a listener
func (s *Server) Close() {
	s.cancel()
}

// RevokeAccess rejects token on sessions and sockets. When refreshable is
// true it can still be exchanged at /auth/refresh.
func (s *Server) RevokeAccess(token string, refreshable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[token] = refreshable
}

// IssueToken mints a token for a registered user, bypassing login
func (s *Server) IssueToken(email string, ttl time.Duration) (string, error) {
	s.users.mu.RLock()
	u, ok := s.users.users[email]
	s.users.mu.RUnlock()
	if !ok {
		return "", ErrInvalidCredentials
	}
	return s.issuer.Issue(u.ID, u.Email, ttl)
}

func (s *Server) login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Error("Failed to bind login request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Email and password are required",
		})
	}

	user, err := s.users.Validate(req.Email, req.Password)
	if err != nil {
		s.logger.Warn("Login failed", zap.String("email", req.Email), zap.Error(err))
		return s.unauthorized(c, "authentication_failed", "Invalid email or password")
	}

	return s.issue(c, user.ID, user.Email)
}

func (s *Server) refresh(c echo.Context) error {
	var req RefreshRequest
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "refresh_token is required",
		})
	}

	s.mu.RLock()
	refreshable, revoked := s.revoked[req.RefreshToken]
	s.mu.RUnlock()
	if revoked && !refreshable {
		return s.unauthorized(c, "invalid_token", "Token has been revoked")
	}

	claims, err := s.issuer.Validate(req.RefreshToken)
	if err != nil {
		s.logger.Warn("Refresh rejected", zap.Error(err))
		return s.unauthorized(c, "invalid_token", "Invalid or expired token")
	}

	return s.issue(c, claims.UserID, claims.Email)
}

func (s *Server) issue(c echo.Context, userID, email string) error {
	token, err := s.issuer.Issue(userID, email, s.cfg.TokenTTL)
	if err != nil {
		s.logger.Error("Failed to generate token", zap.String("userID", userID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	resp := TokenResponse{AccessToken: token, TokenType: "bearer"}
	if !s.cfg.OmitExpiresIn {
		resp.ExpiresIn = int(s.cfg.TokenTTL.Seconds())
	}

	s.logger.Info("Token issued", zap.String("userID", userID))
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) createSession(c echo.Context) error {
	claims, err := s.authenticate(c)
	if err != nil {
		return s.unauthorized(c, "invalid_token", err.Error())
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = claims.UserID
	s.mu.Unlock()

	s.logger.Info("Session created", zap.String("sessionID", id), zap.String("userID", claims.UserID))
	return c.JSON(http.StatusCreated, SessionResponse{ID: id})
}

// serveWebSocket authenticates the handshake before upgrading
func (s *Server) serveWebSocket(c echo.Context) error {
	claims, err := s.authenticate(c)
	if err != nil {
		s.logger.Warn("WebSocket connection rejected", zap.Error(err))
		return s.unauthorized(c, "invalid_token", err.Error())
	}

	sessionID := c.Param("id")
	s.mu.RLock()
	owner, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "session_not_found",
			Message: "Unknown session",
		})
	}
	if owner != claims.UserID {
		return c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "forbidden",
			Message: "Session belongs to another user",
		})
	}

	return s.hub.Serve(c, sessionID)
}

type authError string

func (e authError) Error() string { return string(e) }

func (s *Server) authenticate(c echo.Context) (*auth.JWTClaims, error) {
	header := c.Request().Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return nil, authError("JWT token is required in Authorization header")
	}

	s.mu.RLock()
	_, revoked := s.revoked[token]
	s.mu.RUnlock()
	if revoked {
		return nil, authError("Token has been revoked")
	}

	claims, err := s.issuer.Validate(token)
	if err != nil {
		return nil, authError("Invalid or expired JWT token")
	}
	return claims, nil
}

func (s *Server) unauthorized(c echo.Context, code, message string) error {
	c.Response().Header().Set("WWW-Authenticate", "Bearer")
	return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: code, Message: message})
}
