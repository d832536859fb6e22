package api

import "github.com/satriahrh/arunika/client/domain/entities"

// SpeedRequest represents the request payload for changing the speech rate
type SpeedRequest struct {
	Speed int `json:"speed"`
}

// SystemPromptRequest represents the request payload for changing the persona
type SystemPromptRequest struct {
	Persona   string             `json:"persona"`
	Verbosity entities.Verbosity `json:"verbosity"`
}

// CommandResponse reports whether a command reached the socket or was queued
type CommandResponse struct {
	Sent   bool `json:"sent"`
	Queued bool `json:"queued"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
