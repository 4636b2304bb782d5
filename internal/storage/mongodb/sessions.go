package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/runevault/storefront-backend/internal/domain"
	"github.com/runevault/storefront-backend/internal/storage"
)

// SessionStore implements MongoDB admin session storage
type SessionStore struct {
	collection *mongo.Collection
}

func (s *SessionStore) Create(ctx context.Context, session *domain.SessionRecord) error {
	_, err := s.collection.InsertOne(ctx, session)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("%w: failed to create session: %v", storage.ErrDatabase, err)
	}
	return nil
}

func (s *SessionStore) GetByToken(ctx context.Context, token string) (*domain.SessionRecord, error) {
	var session domain.SessionRecord
	err := s.collection.FindOne(ctx, bson.M{"session_token": token}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("%w: failed to get session: %v", storage.ErrDatabase, err)
	}
	return &session, nil
}

func (s *SessionStore) Touch(ctx context.Context, token string, at time.Time) error {
	result, err := s.collection.UpdateOne(ctx,
		bson.M{"session_token": token},
		bson.M{"$set": bson.M{"last_active_at": at}},
	)
	if err != nil {
		return fmt.Errorf("%w: failed to touch session: %v", storage.ErrDatabase, err)
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, token string) error {
	_, err := s.collection.DeleteOne(ctx, bson.M{"session_token": token})
	if err != nil {
		return fmt.Errorf("%w: failed to delete session: %v", storage.ErrDatabase, err)
	}
	return nil
}

func (s *SessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.collection.DeleteMany(ctx, bson.M{
		"expires_at": bson.M{"$lt": now},
	})
	if err != nil {
		return 0, fmt.Errorf("%w: failed to delete expired sessions: %v", storage.ErrDatabase, err)
	}
	return result.DeletedCount, nil
}
