package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/runevault/storefront-backend/internal/domain"
	"github.com/runevault/storefront-backend/internal/storage"
)

// TwoFactorStore implements MongoDB two-factor code storage
type TwoFactorStore struct {
	collection *mongo.Collection
}

func (s *TwoFactorStore) Create(ctx context.Context, record *domain.TwoFactorRecord) error {
	_, err := s.collection.InsertOne(ctx, record)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("%w: failed to create two-factor code: %v", storage.ErrDatabase, err)
	}
	return nil
}

func (s *TwoFactorStore) FindLatestUnverified(ctx context.Context, method, value, code string) (*domain.TwoFactorRecord, error) {
	filter := bson.M{
		"contact_method": method,
		"contact_value":  value,
		"auth_code":      code,
		"verified":       false,
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var record domain.TwoFactorRecord
	err := s.collection.FindOne(ctx, filter, opts).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("%w: failed to find two-factor code: %v", storage.ErrDatabase, err)
	}
	return &record, nil
}

func (s *TwoFactorStore) MarkVerified(ctx context.Context, id string, verifiedAt time.Time) error {
	return consume(ctx, s.collection, id, "verified", "verified_at", verifiedAt)
}
