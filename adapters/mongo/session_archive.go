package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/client/domain/entities"
	"github.com/satriahrh/arunika/client/domain/repositories"
)

const sessionsCollection = "sessions"

// SessionArchive stores finished voice sessions in MongoDB
type SessionArchive struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

var _ repositories.SessionArchive = (*SessionArchive)(nil)

// NewSessionArchive creates a new MongoDB session archive
func NewSessionArchive(db *mongo.Database, logger *zap.Logger) *SessionArchive {
	return &SessionArchive{
		collection: db.Collection(sessionsCollection),
		logger:     logger,
	}
}

// EnsureIndexes creates the indexes ListRecent relies on
func (a *SessionArchive) EnsureIndexes(ctx context.Context) error {
	_, err := a.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "started_at", Value: -1}}},
		{Keys: bson.D{{Key: "backend_session_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create session indexes: %w", err)
	}
	return nil
}

// Save inserts or replaces the record with the same ID
func (a *SessionArchive) Save(ctx context.Context, record *entities.SessionRecord) error {
	if record == nil {
		return errors.New("session record cannot be nil")
	}
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid session record: %w", err)
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := a.collection.ReplaceOne(ctx, bson.M{"_id": record.ID}, record, opts); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	a.logger.Debug("Session archived",
		zap.String("sessionID", record.ID),
		zap.Int("messages", len(record.Messages)))
	return nil
}

// GetByID returns the record with the given ID
func (a *SessionArchive) GetByID(ctx context.Context, id string) (*entities.SessionRecord, error) {
	if id == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	var record entities.SessionRecord
	err := a.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &record, nil
}

// ListRecent returns up to limit records, newest first
func (a *SessionArchive) ListRecent(ctx context.Context, limit int) ([]*entities.SessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := a.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*entities.SessionRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}
	return records, nil
}
