package websocket

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/satriahrh/arunika/client/domain"
)

func TestMessageValidator_ValidateMessage(t *testing.T) {
	validator := NewMessageValidator()

	tests := []struct {
		name     string
		message  string
		wantType domain.EventType
		wantErr  bool
	}{
		{
			name:     "partial user request",
			message:  `{"type": "partial_user_request", "content": "hel"}`,
			wantType: domain.EventPartialUserRequest,
		},
		{
			name:     "final assistant answer",
			message:  `{"type": "final_assistant_answer", "content": "Hello there"}`,
			wantType: domain.EventFinalAssistantAnswer,
		},
		{
			name:     "tts chunk",
			message:  `{"type": "tts_chunk", "content": "AQACAA=="}`,
			wantType: domain.EventTTSChunk,
		},
		{
			name:     "stop without content",
			message:  `{"type": "stop_tts"}`,
			wantType: domain.EventStopTTS,
		},
		{
			name:     "interruption with empty content",
			message:  `{"type": "tts_interruption", "content": ""}`,
			wantType: domain.EventTTSInterruption,
		},
		{
			name:    "invalid JSON",
			message: `{"type": "stop_tts"`,
			wantErr: true,
		},
		{
			name:    "missing type",
			message: `{"content": "hi"}`,
			wantErr: true,
		},
		{
			name:    "unsupported type",
			message: `{"type": "listening_start", "content": ""}`,
			wantErr: true,
		},
		{
			name:    "tts chunk without audio",
			message: `{"type": "tts_chunk", "content": ""}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := validator.ValidateMessage([]byte(tt.message))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidMessage) {
					t.Errorf("Expected ErrInvalidMessage, got %v", err)
				}
				return
			}
			if event.Type != tt.wantType {
				t.Errorf("Expected type %s, got %s", tt.wantType, event.Type)
			}
		})
	}
}

func TestEncodeControl(t *testing.T) {
	tests := []struct {
		name string
		msg  domain.ControlMessage
		want string
	}{
		{"tts start", domain.NewSignal(domain.ControlTTSStart), `{"type":"tts_start"}`},
		{"tts stop", domain.NewSignal(domain.ControlTTSStop), `{"type":"tts_stop"}`},
		{"clear history", domain.NewSignal(domain.ControlClearHistory), `{"type":"clear_history"}`},
		{"set speed", domain.NewSetSpeed(7), `{"type":"set_speed","speed":7}`},
		{"set system prompt", domain.NewSetSystemPrompt("tutor", "brief"), `{"type":"set_system_prompt","persona":"tutor","verbosity":"brief"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeControl(tt.msg)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, string(data))
			}

			var decoded map[string]interface{}
			if err := json.Unmarshal(data, &decoded); err != nil {
				t.Fatalf("Expected valid JSON, got %v", err)
			}
			if decoded["type"] != string(tt.msg.ControlType()) {
				t.Errorf("Expected type %s, got %v", tt.msg.ControlType(), decoded["type"])
			}
		})
	}
}
