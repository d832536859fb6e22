// Package api is the local control surface of the voice client: session
// status, transcript, settings commands and metrics.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/client/domain/entities"
	"github.com/satriahrh/arunika/client/internal/metrics"
	"github.com/satriahrh/arunika/client/usecase"
)

// Client is what the routes drive
type Client interface {
	Current() *usecase.VoiceSession
	SwitchSession() (*usecase.VoiceSession, error)
	Logout()
	RecentSessions(ctx context.Context, limit int) ([]*entities.SessionRecord, error)
}

type handler struct {
	client Client
	logger *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, client Client, m *metrics.Metrics, logger *zap.Logger) {
	h := &handler{client: client, logger: logger}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "arunika-client",
		})
	})

	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	v1 := e.Group("/v1")

	// Current session
	v1.GET("/status", h.status)
	v1.GET("/transcript", h.transcript)
	v1.POST("/speed", h.setSpeed)
	v1.POST("/system-prompt", h.setSystemPrompt)
	v1.POST("/history/clear", h.clearHistory)

	// Session lifecycle
	v1.POST("/session/switch", h.switchSession)
	v1.GET("/sessions", h.recentSessions)
	v1.POST("/logout", h.logout)
}

func (h *handler) session(c echo.Context) (*usecase.VoiceSession, error) {
	s := h.client.Current()
	if s == nil {
		return nil, c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "no_session",
			Message: "No voice session is active",
		})
	}
	return s, nil
}

func (h *handler) status(c echo.Context) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	return c.JSON(http.StatusOK, s.Status())
}

func (h *handler) transcript(c echo.Context) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	return c.JSON(http.StatusOK, s.Transcript())
}

func (h *handler) setSpeed(c echo.Context) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}

	var req SpeedRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Error("Failed to bind speed request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	sent, err := s.SetSpeed(req.Speed)
	return h.commandResult(c, "set_speed", sent, err)
}

func (h *handler) setSystemPrompt(c echo.Context) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}

	var req SystemPromptRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Error("Failed to bind system prompt request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if req.Verbosity == "" {
		req.Verbosity = entities.VerbosityNormal
	}

	sent, err := s.SetSystemPrompt(req.Persona, req.Verbosity)
	return h.commandResult(c, "set_system_prompt", sent, err)
}

func (h *handler) commandResult(c echo.Context, name string, sent bool, err error) error {
	switch {
	case errors.Is(err, usecase.ErrSessionClosed):
		return c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "session_closed",
			Message: "The session has ended",
		})
	case errors.Is(err, entities.ErrInvalidSpeed), errors.Is(err, entities.ErrInvalidVerbosity), errors.Is(err, entities.ErrEmptyPersona):
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_value",
			Message: err.Error(),
		})
	case err != nil:
		h.logger.Error("Failed to send command", zap.String("command", name), zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "send_failed",
			Message: err.Error(),
		})
	}

	h.logger.Info("Command accepted", zap.String("command", name), zap.Bool("sent", sent))
	return c.JSON(http.StatusOK, CommandResponse{Sent: sent, Queued: !sent})
}

func (h *handler) clearHistory(c echo.Context) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}

	if err := s.ClearHistory(); err != nil {
		h.logger.Error("Failed to notify server of cleared history", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "send_failed",
			Message: "Local history cleared but the server was not notified",
		})
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) switchSession(c echo.Context) error {
	s, err := h.client.SwitchSession()
	switch {
	case errors.Is(err, usecase.ErrNotRunning):
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "not_running",
			Message: err.Error(),
		})
	case err != nil && s == nil:
		h.logger.Error("Failed to create session", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "session_failed",
			Message: err.Error(),
		})
	case err != nil:
		h.logger.Error("Failed to start session", zap.Error(err))
		return c.JSON(http.StatusBadGateway, s.Status())
	}
	return c.JSON(http.StatusCreated, s.Status())
}

func (h *handler) recentSessions(c echo.Context) error {
	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_limit",
				Message: "limit must be a positive integer",
			})
		}
		limit = n
	}

	records, err := h.client.RecentSessions(c.Request().Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list sessions", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "archive_failed",
			Message: "Failed to list sessions",
		})
	}
	return c.JSON(http.StatusOK, records)
}

func (h *handler) logout(c echo.Context) error {
	h.client.Logout()
	return c.NoContent(http.StatusNoContent)
}
