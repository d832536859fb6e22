package entities

import (
	"errors"
	"testing"
	"time"
)

func TestTranscriptAppend(t *testing.T) {
	transcript := NewTranscript()

	userContent := "Hello, how are you?"
	if !transcript.Append(MessageRoleUser, userContent) {
		t.Error("Expected user entry to be appended")
	}

	if transcript.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", transcript.Len())
	}

	entries := transcript.Entries()
	if entries[0].Role != MessageRoleUser {
		t.Errorf("Expected user role, got %s", entries[0].Role)
	}
	if entries[0].Content != userContent {
		t.Errorf("Expected content %s, got %s", userContent, entries[0].Content)
	}
	if entries[0].Timestamp.IsZero() {
		t.Error("Expected timestamp to be set")
	}

	transcript.Append(MessageRoleAssistant, "I'm doing well, thank you!")
	entries = transcript.Entries()
	if len(entries) != 2 {
		t.Errorf("Expected 2 entries, got %d", len(entries))
	}
	if entries[1].Role != MessageRoleAssistant {
		t.Errorf("Expected assistant role, got %s", entries[1].Role)
	}
}

func TestTranscriptIgnoresBlankContent(t *testing.T) {
	transcript := NewTranscript()

	for _, content := range []string{"", "  ", "\n\t"} {
		if transcript.Append(MessageRoleUser, content) {
			t.Errorf("Expected %q to be ignored", content)
		}
	}

	if transcript.Len() != 0 {
		t.Errorf("Expected empty transcript, got %d entries", transcript.Len())
	}
}

func TestTranscriptEntriesIsCopy(t *testing.T) {
	transcript := NewTranscript()
	transcript.Append(MessageRoleUser, "hi")

	entries := transcript.Entries()
	entries[0].Content = "changed"

	if got := transcript.Entries()[0].Content; got != "hi" {
		t.Errorf("Expected stored content to be untouched, got %s", got)
	}
}

func TestTranscriptTyping(t *testing.T) {
	transcript := NewTranscript()

	transcript.SetTyping(MessageRoleUser, "hel")
	transcript.SetTyping(MessageRoleUser, "hello")
	if got := transcript.Typing(MessageRoleUser); got != "hello" {
		t.Errorf("Expected typing value hello, got %s", got)
	}
	if got := transcript.Typing(MessageRoleAssistant); got != "" {
		t.Errorf("Expected no assistant typing value, got %s", got)
	}

	transcript.ClearTyping(MessageRoleUser)
	if got := transcript.Typing(MessageRoleUser); got != "" {
		t.Errorf("Expected typing value cleared, got %s", got)
	}
}

func TestTranscriptReset(t *testing.T) {
	transcript := NewTranscript()
	transcript.Append(MessageRoleUser, "hello")
	transcript.SetTyping(MessageRoleAssistant, "thinking")

	transcript.Reset()

	if transcript.Len() != 0 {
		t.Errorf("Expected empty transcript after reset, got %d", transcript.Len())
	}
	if transcript.Typing(MessageRoleAssistant) != "" {
		t.Error("Expected typing values cleared after reset")
	}
}

func TestSessionRecordValidation(t *testing.T) {
	now := time.Now()

	record := &SessionRecord{ID: "rec-1", StartedAt: now}
	if err := record.Validate(); err != nil {
		t.Errorf("Valid record should not have validation errors, got: %v", err)
	}

	record.ID = ""
	if err := record.Validate(); err == nil {
		t.Error("Record with empty id should have validation error")
	}

	record.ID = "rec-1"
	record.EndedAt = now.Add(-time.Minute)
	if err := record.Validate(); err == nil {
		t.Error("Record ending before it started should have validation error")
	}

	record.EndedAt = now.Add(time.Minute)
	if record.Duration() != time.Minute {
		t.Errorf("Expected duration 1m, got %s", record.Duration())
	}
}

func TestSessionStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status   SessionStatus
		terminal bool
	}{
		{SessionStatusIdle, false},
		{SessionStatusConnecting, false},
		{SessionStatusOpen, false},
		{SessionStatusClosed, true},
		{SessionStatusNeedsReconnect, true},
		{SessionStatusNeedsReauth, true},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.terminal {
			t.Errorf("Expected %s terminal=%v, got %v", tt.status, tt.terminal, got)
		}
	}
}

func TestPreferencesValidation(t *testing.T) {
	tests := []struct {
		name    string
		prefs   SessionPreferences
		wantErr error
	}{
		{"valid", SessionPreferences{Speed: 5, Persona: "friend", Verbosity: VerbosityNormal}, nil},
		{"speed too low", SessionPreferences{Speed: 0, Persona: "friend", Verbosity: VerbosityNormal}, ErrInvalidSpeed},
		{"speed too high", SessionPreferences{Speed: 11, Persona: "friend", Verbosity: VerbosityBrief}, ErrInvalidSpeed},
		{"empty persona", SessionPreferences{Speed: 3, Verbosity: VerbosityDetailed}, ErrEmptyPersona},
		{"bad verbosity", SessionPreferences{Speed: 3, Persona: "friend", Verbosity: "chatty"}, ErrInvalidVerbosity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.prefs.Validate()
			if tt.wantErr == nil && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCredentialRemaining(t *testing.T) {
	issued := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cred := Credential{Token: "abc", TTL: 90 * time.Second, IssuedAt: issued}

	if got := cred.Remaining(issued.Add(30 * time.Second)); got != 60*time.Second {
		t.Errorf("Expected 60s remaining, got %s", got)
	}
	if got := cred.Remaining(issued.Add(2 * time.Minute)); got != 0 {
		t.Errorf("Expected 0 remaining after expiry, got %s", got)
	}
	if cred.IsZero() {
		t.Error("Credential with token should not be zero")
	}
	if !(Credential{}).IsZero() {
		t.Error("Empty credential should be zero")
	}
}
