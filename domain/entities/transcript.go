package entities

import (
	"strings"
	"sync"
	"time"
)

// MessageRole represents the speaker of a transcript entry
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// TranscriptEntry is one finalized utterance
type TranscriptEntry struct {
	Timestamp time.Time   `json:"timestamp" bson:"timestamp"`
	Role      MessageRole `json:"role" bson:"role"`
	Content   string      `json:"content" bson:"content"`
}

// Transcript holds the finalized log of a logical session plus one
// ephemeral typing value per role. Entries are append-only until Reset.
type Transcript struct {
	mu      sync.RWMutex
	entries []TranscriptEntry
	typing  map[MessageRole]string
	now     func() time.Time
}

// NewTranscript creates an empty transcript
func NewTranscript() *Transcript {
	return &Transcript{
		entries: make([]TranscriptEntry, 0),
		typing:  make(map[MessageRole]string),
		now:     time.Now,
	}
}

// Append adds a finalized entry. Whitespace-only content is ignored and
// reported as false.
func (t *Transcript) Append(role MessageRole, content string) bool {
	if strings.TrimSpace(content) == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, TranscriptEntry{
		Timestamp: t.now(),
		Role:      role,
		Content:   content,
	})
	return true
}

// SetTyping overwrites the in-progress value for role
func (t *Transcript) SetTyping(role MessageRole, content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if content == "" {
		delete(t.typing, role)
		return
	}
	t.typing[role] = content
}

// ClearTyping drops the in-progress value for role
func (t *Transcript) ClearTyping(role MessageRole) {
	t.SetTyping(role, "")
}

// Typing returns the in-progress value for role, empty when none
func (t *Transcript) Typing(role MessageRole) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.typing[role]
}

// Entries returns a copy of the finalized log
func (t *Transcript) Entries() []TranscriptEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]TranscriptEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of finalized entries
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Reset clears the log and every typing value
func (t *Transcript) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make([]TranscriptEntry, 0)
	t.typing = make(map[MessageRole]string)
}
