package websocket

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/satriahrh/arunika/client/domain"
)

// ErrInvalidMessage marks an inbound text message that could not be decoded
var ErrInvalidMessage = errors.New("invalid message")

// MessageValidator decodes and validates inbound server events
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage decodes an inbound JSON event
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (domain.InboundEvent, error) {
	var raw struct {
		Type    *domain.EventType `json:"type"`
		Content *string           `json:"content"`
	}
	if err := json.Unmarshal(messageBytes, &raw); err != nil {
		return domain.InboundEvent{}, fmt.Errorf("%w: invalid JSON format: %w", ErrInvalidMessage, err)
	}

	if raw.Type == nil || *raw.Type == "" {
		return domain.InboundEvent{}, fmt.Errorf("%w: type is required", ErrInvalidMessage)
	}
	if !raw.Type.IsKnown() {
		return domain.InboundEvent{}, fmt.Errorf("%w: unsupported message type: %s", ErrInvalidMessage, *raw.Type)
	}

	event := domain.InboundEvent{Type: *raw.Type}
	if raw.Content != nil {
		event.Content = *raw.Content
	}

	if event.Type == domain.EventTTSChunk && event.Content == "" {
		return domain.InboundEvent{}, fmt.Errorf("%w: tts_chunk content is required", ErrInvalidMessage)
	}

	return event, nil
}

// EncodeControl marshals an outbound control message
func EncodeControl(msg domain.ControlMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", msg.ControlType(), err)
	}
	return data, nil
}
