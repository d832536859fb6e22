package entities

import (
	"errors"
	"time"
)

// SessionStatus represents where a voice session is in its lifecycle
type SessionStatus string

const (
	SessionStatusIdle           SessionStatus = "idle"
	SessionStatusConnecting     SessionStatus = "connecting"
	SessionStatusOpen           SessionStatus = "open"
	SessionStatusClosed         SessionStatus = "closed"
	SessionStatusNeedsReconnect SessionStatus = "needs_reconnect"
	SessionStatusNeedsReauth    SessionStatus = "needs_reauth"
)

// IsTerminal reports whether no further transitions are expected
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusClosed, SessionStatusNeedsReconnect, SessionStatusNeedsReauth:
		return true
	}
	return false
}

// SessionRecord is the archived form of a finished voice session
type SessionRecord struct {
	ID               string             `json:"id" bson:"_id"`
	BackendSessionID string             `json:"backend_session_id" bson:"backend_session_id"`
	StartedAt        time.Time          `json:"started_at" bson:"started_at"`
	EndedAt          time.Time          `json:"ended_at" bson:"ended_at"`
	Status           SessionStatus      `json:"status" bson:"status"`
	Preferences      SessionPreferences `json:"preferences" bson:"preferences"`
	Messages         []TranscriptEntry  `json:"messages" bson:"messages"`
	FramesSent       int                `json:"frames_sent" bson:"frames_sent"`
	FramesDropped    int                `json:"frames_dropped" bson:"frames_dropped"`
}

// Duration returns how long the session lasted
func (r *SessionRecord) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Validate validates the record before it is archived
func (r *SessionRecord) Validate() error {
	if r.ID == "" {
		return errors.New("id is required")
	}
	if r.StartedAt.IsZero() {
		return errors.New("started_at is required")
	}
	if !r.EndedAt.IsZero() && r.EndedAt.Before(r.StartedAt) {
		return errors.New("ended_at is before started_at")
	}
	return nil
}
