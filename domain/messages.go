package domain

// EventType is the tag of an inbound server event
type EventType string

// Inbound event types pushed by the voice backend
const (
	EventPartialUserRequest     EventType = "partial_user_request"
	EventFinalUserRequest       EventType = "final_user_request"
	EventPartialAssistantAnswer EventType = "partial_assistant_answer"
	EventFinalAssistantAnswer   EventType = "final_assistant_answer"
	EventTTSChunk               EventType = "tts_chunk"
	EventTTSInterruption        EventType = "tts_interruption"
	EventStopTTS                EventType = "stop_tts"
)

// InboundEvent is a decoded text message from the server.
// Content is transcript text, or base64 little-endian int16 PCM for tts_chunk.
type InboundEvent struct {
	Type    EventType `json:"type"`
	Content string    `json:"content"`
}

// IsKnown reports whether t is one of the supported inbound event types
func (t EventType) IsKnown() bool {
	switch t {
	case EventPartialUserRequest, EventFinalUserRequest,
		EventPartialAssistantAnswer, EventFinalAssistantAnswer,
		EventTTSChunk, EventTTSInterruption, EventStopTTS:
		return true
	}
	return false
}

// ControlType is the tag of an outbound control message
type ControlType string

const (
	ControlTTSStart        ControlType = "tts_start"
	ControlTTSStop         ControlType = "tts_stop"
	ControlClearHistory    ControlType = "clear_history"
	ControlSetSpeed        ControlType = "set_speed"
	ControlSetSystemPrompt ControlType = "set_system_prompt"
)

// ControlMessage is implemented by every outbound JSON control message
type ControlMessage interface {
	ControlType() ControlType
}

// SignalMessage carries a control type with no payload (tts_start, tts_stop, clear_history)
type SignalMessage struct {
	Type ControlType `json:"type"`
}

func (m SignalMessage) ControlType() ControlType { return m.Type }

// SetSpeedMessage asks the server to change the synthesized speech rate
type SetSpeedMessage struct {
	Type  ControlType `json:"type"`
	Speed int         `json:"speed"`
}

func (m SetSpeedMessage) ControlType() ControlType { return ControlSetSpeed }

// SetSystemPromptMessage switches the assistant persona and verbosity
type SetSystemPromptMessage struct {
	Type      ControlType `json:"type"`
	Persona   string      `json:"persona"`
	Verbosity string      `json:"verbosity"`
}

func (m SetSystemPromptMessage) ControlType() ControlType { return ControlSetSystemPrompt }

// NewSignal builds a payload-less control message
func NewSignal(t ControlType) SignalMessage {
	return SignalMessage{Type: t}
}

// NewSetSpeed builds a set_speed control message
func NewSetSpeed(speed int) SetSpeedMessage {
	return SetSpeedMessage{Type: ControlSetSpeed, Speed: speed}
}

// NewSetSystemPrompt builds a set_system_prompt control message
func NewSetSystemPrompt(persona, verbosity string) SetSystemPromptMessage {
	return SetSystemPromptMessage{Type: ControlSetSystemPrompt, Persona: persona, Verbosity: verbosity}
}

// PlaybackSignal is emitted by the playback processor
type PlaybackSignal string

const (
	PlaybackStarted PlaybackSignal = "ttsPlaybackStarted"
	PlaybackStopped PlaybackSignal = "ttsPlaybackStopped"
)
