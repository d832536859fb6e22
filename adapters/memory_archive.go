package adapters

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/satriahrh/arunika/client/domain/entities"
	"github.com/satriahrh/arunika/client/domain/repositories"
)

// MemorySessionArchive keeps archived sessions in process memory. It is the
// default when no MongoDB URI is configured.
type MemorySessionArchive struct {
	mu       sync.RWMutex
	sessions map[string]*entities.SessionRecord
}

var _ repositories.SessionArchive = (*MemorySessionArchive)(nil)

// NewMemorySessionArchive creates an empty archive
func NewMemorySessionArchive() *MemorySessionArchive {
	return &MemorySessionArchive{
		sessions: make(map[string]*entities.SessionRecord),
	}
}

// Save stores a copy of record, assigning an ID when missing
func (m *MemorySessionArchive) Save(ctx context.Context, record *entities.SessionRecord) error {
	if record == nil {
		return errors.New("session record cannot be nil")
	}
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if err := record.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[record.ID] = copyRecord(record)
	return nil
}

// GetByID returns a copy of the stored record
func (m *MemorySessionArchive) GetByID(ctx context.Context, id string) (*entities.SessionRecord, error) {
	if id == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	record, exists := m.sessions[id]
	if !exists {
		return nil, repositories.ErrNotFound
	}
	return copyRecord(record), nil
}

// ListRecent returns up to limit records, newest first
func (m *MemorySessionArchive) ListRecent(ctx context.Context, limit int) ([]*entities.SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]*entities.SessionRecord, 0, len(m.sessions))
	for _, r := range m.sessions {
		records = append(records, copyRecord(r))
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func copyRecord(r *entities.SessionRecord) *entities.SessionRecord {
	c := *r
	c.Messages = append([]entities.TranscriptEntry(nil), r.Messages...)
	return &c
}
