// Package commands holds user settings commands until the socket can carry them.
package commands

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/arunika/client/domain"
	"github.com/satriahrh/arunika/client/domain/entities"
)

// Kind identifies a pending command slot
type Kind int

const (
	KindSpeed Kind = iota
	KindSystemPrompt
)

func (k Kind) String() string {
	switch k {
	case KindSpeed:
		return "speed"
	case KindSystemPrompt:
		return "system_prompt"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Command is a "set current value" request for one kind
type Command interface {
	Kind() Kind
	Validate() error
	Message() domain.ControlMessage
}

// SpeedCommand sets the TTS speech rate
type SpeedCommand struct {
	Speed int `json:"speed"`
}

func (c SpeedCommand) Kind() Kind      { return KindSpeed }
func (c SpeedCommand) Validate() error { return entities.ValidateSpeed(c.Speed) }
func (c SpeedCommand) Message() domain.ControlMessage {
	return domain.NewSetSpeed(c.Speed)
}

// SystemPromptCommand sets the assistant persona and verbosity
type SystemPromptCommand struct {
	Persona   string             `json:"persona"`
	Verbosity entities.Verbosity `json:"verbosity"`
}

func (c SystemPromptCommand) Kind() Kind { return KindSystemPrompt }

func (c SystemPromptCommand) Validate() error {
	if c.Persona == "" {
		return entities.ErrEmptyPersona
	}
	return c.Verbosity.Validate()
}

func (c SystemPromptCommand) Message() domain.ControlMessage {
	return domain.NewSetSystemPrompt(c.Persona, string(c.Verbosity))
}

// Transport is the subset of the socket the queue needs
type Transport interface {
	IsOpen() bool
	SendControl(msg domain.ControlMessage) error
}

// Snapshot is the queued value of each kind, nil when empty
type Snapshot struct {
	Speed        *SpeedCommand        `json:"speed,omitempty"`
	SystemPrompt *SystemPromptCommand `json:"system_prompt,omitempty"`
}

// Queue keeps at most one unsent value per kind. A newer value replaces an
// older unsent one.
type Queue struct {
	mu           sync.Mutex
	transport    Transport
	speed        *SpeedCommand
	systemPrompt *SystemPromptCommand
	logger       *zap.Logger
}

// NewQueue creates an empty queue. The transport may be attached later.
func NewQueue(transport Transport, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{transport: transport, logger: logger}
}

// Attach sets the transport used for immediate sends and flushing
func (q *Queue) Attach(transport Transport) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.transport = transport
}

// Enqueue sends cmd right away when the transport is open, otherwise stores it.
// It reports whether the command was sent. Sends happen under the queue lock
// so commands reach the socket in the order they were issued.
func (q *Queue) Enqueue(cmd Command) (bool, error) {
	if err := cmd.Validate(); err != nil {
		return false, fmt.Errorf("invalid %s command: %w", cmd.Kind(), err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.transport == nil || !q.transport.IsOpen() {
		q.store(cmd)
		q.logger.Debug("Command queued until connected", zap.String("kind", cmd.Kind().String()))
		return false, nil
	}

	if err := q.transport.SendControl(cmd.Message()); err != nil {
		return false, fmt.Errorf("failed to send %s command: %w", cmd.Kind(), err)
	}
	return true, nil
}

// Flush sends the latest value of every kind and empties the queue. Slots are
// cleared even if a send fails.
func (q *Queue) Flush() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.flushLocked()
}

// Open attaches transport and flushes in one step, so no command issued
// after the socket opened can overtake an older queued one.
func (q *Queue) Open(transport Transport) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.transport = transport
	return q.flushLocked()
}

func (q *Queue) flushLocked() (int, error) {
	var pending []Command
	if q.speed != nil {
		pending = append(pending, *q.speed)
	}
	if q.systemPrompt != nil {
		pending = append(pending, *q.systemPrompt)
	}
	q.speed = nil
	q.systemPrompt = nil

	if len(pending) == 0 {
		return 0, nil
	}
	if q.transport == nil {
		return 0, errors.New("no transport attached")
	}

	sent := 0
	var errs []error
	for _, cmd := range pending {
		if err := q.transport.SendControl(cmd.Message()); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush %s command: %w", cmd.Kind(), err))
			continue
		}
		sent++
	}

	q.logger.Info("Flushed pending commands", zap.Int("sent", sent), zap.Int("failed", len(errs)))
	return sent, errors.Join(errs...)
}

// Pending returns a copy of the queued values
func (q *Queue) Pending() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	var s Snapshot
	if q.speed != nil {
		v := *q.speed
		s.Speed = &v
	}
	if q.systemPrompt != nil {
		v := *q.systemPrompt
		s.SystemPrompt = &v
	}
	return s
}

// Clear drops every queued value
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.speed = nil
	q.systemPrompt = nil
}

func (q *Queue) store(cmd Command) {
	switch c := cmd.(type) {
	case SpeedCommand:
		q.speed = &c
	case SystemPromptCommand:
		q.systemPrompt = &c
	}
}
