package entities

import (
	"errors"
	"fmt"
)

// Verbosity controls how long assistant answers are
type Verbosity string

const (
	VerbosityBrief    Verbosity = "brief"
	VerbosityNormal   Verbosity = "normal"
	VerbosityDetailed Verbosity = "detailed"
)

// Speed bounds accepted by the backend
const (
	MinSpeed = 1
	MaxSpeed = 10
)

var (
	ErrInvalidSpeed     = errors.New("invalid speed")
	ErrInvalidVerbosity = errors.New("invalid verbosity")
	ErrEmptyPersona     = errors.New("persona is required")
)

// Validate checks v is one of the supported verbosity levels
func (v Verbosity) Validate() error {
	switch v {
	case VerbosityBrief, VerbosityNormal, VerbosityDetailed:
		return nil
	}
	return fmt.Errorf("%w: %q must be one of brief, normal, detailed", ErrInvalidVerbosity, string(v))
}

// ValidateSpeed checks speed lies within the supported range
func ValidateSpeed(speed int) error {
	if speed < MinSpeed || speed > MaxSpeed {
		return fmt.Errorf("%w: %d must be between %d and %d", ErrInvalidSpeed, speed, MinSpeed, MaxSpeed)
	}
	return nil
}

// SessionPreferences are the per-session settings pushed to the server on connect
type SessionPreferences struct {
	Speed     int       `json:"speed" bson:"speed"`
	Persona   string    `json:"persona" bson:"persona"`
	Verbosity Verbosity `json:"verbosity" bson:"verbosity"`
}

// Validate validates the preference values
func (p SessionPreferences) Validate() error {
	if err := ValidateSpeed(p.Speed); err != nil {
		return err
	}
	if p.Persona == "" {
		return ErrEmptyPersona
	}
	return p.Verbosity.Validate()
}
