// Package playback tracks whether synthesized speech is audible and tells the
// server about it.
package playback

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/arunika/client/domain"
	"github.com/satriahrh/arunika/client/domain/repositories"
)

// State is the audible state of TTS playback
type State int

const (
	StateSilent State = iota
	StatePlaying
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateSilent:
		return "SILENT"
	case StatePlaying:
		return "PLAYING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// ControlSender delivers control messages to the server
type ControlSender interface {
	SendControl(msg domain.ControlMessage) error
}

// Controller is the SILENT/PLAYING state machine.
//
//	SILENT ──OnPlaybackStarted──→ PLAYING   (sends tts_start)
//	PLAYING ──OnPlaybackStopped──→ SILENT   (sends tts_stop)
//	PLAYING ──OnServerStop──────→ SILENT   (no message)
//
// Repeated signals in the same state are no-ops, so the two event sources
// may interleave in any order. Thread-safe.
type Controller struct {
	mu     sync.RWMutex
	state  State
	sender ControlSender

	// onTransition is called after every state change
	onTransition func(from, to State)

	logger *zap.Logger
}

// NewController creates a controller in SILENT state
func NewController(sender ControlSender, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		state:  StateSilent,
		sender: sender,
		logger: logger,
	}
}

// OnTransition registers a callback invoked after each state change
func (c *Controller) OnTransition(fn func(from, to State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTransition = fn
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Playing reports whether speech is audible
func (c *Controller) Playing() bool {
	return c.State() == StatePlaying
}

// OnPlaybackStarted handles the processor reporting audible output.
// Returns true if the state changed.
func (c *Controller) OnPlaybackStarted() bool {
	if !c.transition(StateSilent, StatePlaying) {
		return false
	}
	c.notify(domain.ControlTTSStart)
	return true
}

// OnPlaybackStopped handles the processor reporting its buffer ran dry.
// Returns true if the state changed.
func (c *Controller) OnPlaybackStopped() bool {
	if !c.transition(StatePlaying, StateSilent) {
		return false
	}
	c.notify(domain.ControlTTSStop)
	return true
}

// OnServerStop handles a server-initiated stop or interruption. The server
// already knows, so nothing is sent.
func (c *Controller) OnServerStop() bool {
	return c.transition(StatePlaying, StateSilent)
}

// Reset forces SILENT without notifying
func (c *Controller) Reset() {
	c.transition(StatePlaying, StateSilent)
}

func (c *Controller) transition(from, to State) bool {
	c.mu.Lock()
	if c.state != from {
		c.mu.Unlock()
		return false
	}
	c.state = to
	hook := c.onTransition
	c.mu.Unlock()

	c.logger.Debug("Playback state changed",
		zap.String("from", from.String()),
		zap.String("to", to.String()))
	if hook != nil {
		hook(from, to)
	}
	return true
}

func (c *Controller) notify(t domain.ControlType) {
	if c.sender == nil {
		return
	}
	if err := c.sender.SendControl(domain.NewSignal(t)); err != nil {
		if errors.Is(err, repositories.ErrTransportNotOpen) {
			c.logger.Debug("Skipped playback notification, transport not open", zap.String("type", string(t)))
			return
		}
		c.logger.Error("Failed to send playback notification",
			zap.String("type", string(t)),
			zap.Error(err))
	}
}
