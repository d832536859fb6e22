package websocket

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/client/domain"
	"github.com/satriahrh/arunika/client/domain/entities"
	"github.com/satriahrh/arunika/client/internal/audio"
)

// Transcript receives transcript updates
type Transcript interface {
	Append(role entities.MessageRole, content string) bool
	SetTyping(role entities.MessageRole, content string)
	ClearTyping(role entities.MessageRole)
}

// PlaybackQueue is the playback processor inbox
type PlaybackQueue interface {
	Enqueue(samples []int16)
	Clear()
}

// PlaybackState is told when the server stops playback
type PlaybackState interface {
	OnServerStop() bool
}

// ControlSender delivers control messages to the server
type ControlSender interface {
	SendControl(msg domain.ControlMessage) error
}

// DispatchHooks observe dispatch outcomes. Nil hooks are skipped.
type DispatchHooks struct {
	EventDispatched func(t domain.EventType)
	DecodeFailed    func(err error)
	ChunkDropped    func()
}

// Dispatcher routes inbound server events. Dispatch is meant to be called
// from one goroutine; the ignore flag may be read from any.
type Dispatcher struct {
	validator  *MessageValidator
	transcript Transcript
	playback   PlaybackQueue
	state      PlaybackState
	sender     ControlSender
	hooks      DispatchHooks

	// set by stop_tts, cleared by tts_interruption
	ignoreIncoming atomic.Bool

	logger *zap.Logger
}

// NewDispatcher wires a dispatcher to its collaborators
func NewDispatcher(transcript Transcript, playback PlaybackQueue, state PlaybackState, sender ControlSender, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		validator:  NewMessageValidator(),
		transcript: transcript,
		playback:   playback,
		state:      state,
		sender:     sender,
		logger:     logger,
	}
}

// SetHooks installs observation hooks
func (d *Dispatcher) SetHooks(hooks DispatchHooks) {
	d.hooks = hooks
}

// IgnoringIncoming reports whether tts audio is being dropped after a hard stop
func (d *Dispatcher) IgnoringIncoming() bool {
	return d.ignoreIncoming.Load()
}

// Reset reopens the audio channel
func (d *Dispatcher) Reset() {
	d.ignoreIncoming.Store(false)
}

// HandleMessage decodes a raw socket message and dispatches it. Malformed
// messages are logged and discarded.
func (d *Dispatcher) HandleMessage(messageType int, data []byte) {
	switch messageType {
	case websocket.TextMessage:
		event, err := d.validator.ValidateMessage(data)
		if err != nil {
			d.decodeFailed(err)
			return
		}
		if err := d.Dispatch(event); err != nil {
			d.decodeFailed(err)
		}

	case websocket.BinaryMessage:
		// raw little-endian PCM, same rules as tts_chunk
		if d.ignoreIncoming.Load() {
			d.chunkDropped()
			return
		}
		samples, err := audio.DecodePCM16LE(data)
		if err != nil {
			d.decodeFailed(fmt.Errorf("%w: %w", ErrInvalidMessage, err))
			return
		}
		d.playback.Enqueue(samples)
		d.dispatched(domain.EventTTSChunk)

	default:
		d.logger.Warn("Received unknown message type", zap.Int("type", messageType))
	}
}

// Dispatch applies one inbound event
func (d *Dispatcher) Dispatch(event domain.InboundEvent) error {
	switch event.Type {
	case domain.EventPartialUserRequest:
		d.setTyping(entities.MessageRoleUser, event.Content)

	case domain.EventPartialAssistantAnswer:
		d.setTyping(entities.MessageRoleAssistant, event.Content)

	case domain.EventFinalUserRequest:
		d.finalize(entities.MessageRoleUser, event.Content)

	case domain.EventFinalAssistantAnswer:
		d.finalize(entities.MessageRoleAssistant, event.Content)

	case domain.EventTTSChunk:
		if d.ignoreIncoming.Load() {
			d.chunkDropped()
			return nil
		}
		samples, err := audio.DecodeBase64PCM(event.Content)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
		}
		d.playback.Enqueue(samples)

	case domain.EventTTSInterruption:
		d.playback.Clear()
		d.state.OnServerStop()
		d.ignoreIncoming.Store(false)

	case domain.EventStopTTS:
		d.playback.Clear()
		d.state.OnServerStop()
		if d.ignoreIncoming.CompareAndSwap(false, true) {
			d.notifyStop()
		}

	default:
		return fmt.Errorf("%w: unsupported message type: %s", ErrInvalidMessage, event.Type)
	}

	d.dispatched(event.Type)
	return nil
}

func (d *Dispatcher) setTyping(role entities.MessageRole, content string) {
	if strings.TrimSpace(content) == "" {
		d.transcript.ClearTyping(role)
		return
	}
	d.transcript.SetTyping(role, html.EscapeString(content))
}

func (d *Dispatcher) finalize(role entities.MessageRole, content string) {
	d.transcript.Append(role, strings.TrimSpace(content))
	d.transcript.ClearTyping(role)
}

func (d *Dispatcher) notifyStop() {
	if d.sender == nil {
		return
	}
	if err := d.sender.SendControl(domain.NewSignal(domain.ControlTTSStop)); err != nil && !errors.Is(err, ErrNotOpen) {
		d.logger.Error("Failed to acknowledge stop_tts", zap.Error(err))
	}
}

func (d *Dispatcher) decodeFailed(err error) {
	d.logger.Warn("Failed to parse message", zap.Error(err))
	if d.hooks.DecodeFailed != nil {
		d.hooks.DecodeFailed(err)
	}
}

func (d *Dispatcher) chunkDropped() {
	d.logger.Debug("Dropped tts audio after hard stop")
	if d.hooks.ChunkDropped != nil {
		d.hooks.ChunkDropped()
	}
}

func (d *Dispatcher) dispatched(t domain.EventType) {
	if d.hooks.EventDispatched != nil {
		d.hooks.EventDispatched(t)
	}
}
