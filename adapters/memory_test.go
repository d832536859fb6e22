package adapters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/satriahrh/arunika/client/domain/entities"
	"github.com/satriahrh/arunika/client/domain/repositories"
)

func TestMemorySessionArchive(t *testing.T) {
	ctx := context.Background()
	archive := NewMemorySessionArchive()
	base := time.Now()

	first := &entities.SessionRecord{StartedAt: base.Add(-time.Minute), Status: entities.SessionStatusClosed}
	second := &entities.SessionRecord{
		StartedAt: base,
		Status:    entities.SessionStatusClosed,
		Messages:  []entities.TranscriptEntry{{Role: entities.MessageRoleUser, Content: "hi"}},
	}

	if err := archive.Save(ctx, first); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if first.ID == "" {
		t.Fatal("Expected ID to be assigned")
	}
	if err := archive.Save(ctx, second); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	got, err := archive.GetByID(ctx, second.ID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	got.Messages[0].Content = "mutated"

	again, _ := archive.GetByID(ctx, second.ID)
	if again.Messages[0].Content != "hi" {
		t.Errorf("Expected stored record to be isolated, got %s", again.Messages[0].Content)
	}

	recent, err := archive.ListRecent(ctx, 1)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(recent) != 1 || recent[0].ID != second.ID {
		t.Errorf("Expected newest record first, got %+v", recent)
	}

	if _, err := archive.GetByID(ctx, "missing"); !errors.Is(err, repositories.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMemorySessionArchive_Invalid(t *testing.T) {
	archive := NewMemorySessionArchive()
	if err := archive.Save(context.Background(), nil); err == nil {
		t.Error("Expected error for nil record")
	}
	if err := archive.Save(context.Background(), &entities.SessionRecord{}); err == nil {
		t.Error("Expected error for record without start time")
	}
}

func TestMemoryCredentialStore(t *testing.T) {
	store := NewMemoryCredentialStore()

	if _, err := store.Load(); !errors.Is(err, repositories.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on empty store, got %v", err)
	}

	cred := entities.Credential{Token: "abc", TTL: time.Minute, IssuedAt: time.Now()}
	if err := store.Save(cred); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	got, err := store.Load()
	if err != nil || got.Token != "abc" {
		t.Errorf("Expected token abc, got %q (%v)", got.Token, err)
	}

	if err := store.Delete(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, repositories.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}
