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

// AuthKeyStore implements MongoDB one-time key storage
type AuthKeyStore struct {
	collection *mongo.Collection
}

func (s *AuthKeyStore) Create(ctx context.Context, record *domain.AuthKeyRecord) error {
	_, err := s.collection.InsertOne(ctx, record)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("%w: failed to create auth key: %v", storage.ErrDatabase, err)
	}
	return nil
}

func (s *AuthKeyStore) GetUnusedByNonce(ctx context.Context, nonce string) (*domain.AuthKeyRecord, error) {
	var record domain.AuthKeyRecord
	err := s.collection.FindOne(ctx, bson.M{"nonce": nonce, "used": false}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("%w: failed to get auth key: %v", storage.ErrDatabase, err)
	}
	return &record, nil
}

func (s *AuthKeyStore) MarkUsed(ctx context.Context, id string, usedAt time.Time) error {
	return consume(ctx, s.collection, id, "used", "used_at", usedAt)
}
