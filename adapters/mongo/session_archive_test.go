package mongo

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/client/domain/entities"
	"github.com/satriahrh/arunika/client/domain/repositories"
)

// Requires a running MongoDB instance, skipped when MONGODB_URI is not set
func TestSessionArchive_Integration(t *testing.T) {
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		t.Skip("Skipping MongoDB integration test - MONGODB_URI not set")
	}

	ctx := context.Background()
	logger, _ := zap.NewDevelopment()

	client, err := NewClient(ctx, mongoURI, "arunika_client_test", logger)
	if err != nil {
		t.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Close(ctx)
	defer client.Database.Drop(ctx)

	archive := NewSessionArchive(client.Database, logger)
	if err := archive.EnsureIndexes(ctx); err != nil {
		t.Fatalf("Failed to create indexes: %v", err)
	}

	base := time.Now().Truncate(time.Millisecond)
	older := &entities.SessionRecord{
		ID:               uuid.NewString(),
		BackendSessionID: "backend-1",
		StartedAt:        base.Add(-time.Hour),
		EndedAt:          base.Add(-50 * time.Minute),
		Status:           entities.SessionStatusClosed,
		Messages: []entities.TranscriptEntry{
			{Timestamp: base.Add(-55 * time.Minute), Role: entities.MessageRoleUser, Content: "hello"},
		},
		FramesSent: 12,
	}
	newer := &entities.SessionRecord{
		ID:        uuid.NewString(),
		StartedAt: base,
		Status:    entities.SessionStatusNeedsReconnect,
	}

	t.Run("SaveAndGet", func(t *testing.T) {
		if err := archive.Save(ctx, older); err != nil {
			t.Fatalf("Failed to save session: %v", err)
		}

		got, err := archive.GetByID(ctx, older.ID)
		if err != nil {
			t.Fatalf("Failed to get session: %v", err)
		}
		if got.BackendSessionID != "backend-1" {
			t.Errorf("Expected backend session backend-1, got %s", got.BackendSessionID)
		}
		if len(got.Messages) != 1 || got.Messages[0].Content != "hello" {
			t.Errorf("Expected one message 'hello', got %+v", got.Messages)
		}
	})

	t.Run("SaveReplaces", func(t *testing.T) {
		older.FramesSent = 40
		if err := archive.Save(ctx, older); err != nil {
			t.Fatalf("Failed to save session: %v", err)
		}
		got, err := archive.GetByID(ctx, older.ID)
		if err != nil {
			t.Fatalf("Failed to get session: %v", err)
		}
		if got.FramesSent != 40 {
			t.Errorf("Expected frames sent 40, got %d", got.FramesSent)
		}
	})

	t.Run("ListRecent", func(t *testing.T) {
		if err := archive.Save(ctx, newer); err != nil {
			t.Fatalf("Failed to save session: %v", err)
		}
		records, err := archive.ListRecent(ctx, 10)
		if err != nil {
			t.Fatalf("Failed to list sessions: %v", err)
		}
		if len(records) != 2 || records[0].ID != newer.ID {
			t.Errorf("Expected newest session first, got %d records", len(records))
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := archive.GetByID(ctx, "missing")
		if !errors.Is(err, repositories.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}
