package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/runevault/storefront-backend/internal/storage"
	"github.com/runevault/storefront-backend/pkg/config"
)

// Store implements MongoDB storage
type Store struct {
	client   *mongo.Client
	database *mongo.Database
	cfg      *config.MongoDBConfig

	authKeys  *AuthKeyStore
	twoFactor *TwoFactorStore
	sessions  *SessionStore
}

// NewStore creates a new MongoDB store
func NewStore(ctx context.Context, cfg *config.MongoDBConfig) (*Store, error) {
	timeout := time.Duration(cfg.Timeout) * time.Second
	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	database := client.Database(cfg.Database)

	s := &Store{
		client:    client,
		database:  database,
		cfg:       cfg,
		authKeys:  &AuthKeyStore{collection: database.Collection("auth_keys")},
		twoFactor: &TwoFactorStore{collection: database.Collection("two_factor_codes")},
		sessions:  &SessionStore{collection: database.Collection("sessions")},
	}

	if err := s.createIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return s, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	// Consumed keys are kept as an audit trail, so no TTL here
	_, err := s.authKeys.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "nonce", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "used", Value: 1}, {Key: "expires_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create auth key indexes: %w", err)
	}

	_, err = s.twoFactor.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "contact_method", Value: 1},
			{Key: "contact_value", Value: 1},
			{Key: "auth_code", Value: 1},
			{Key: "verified", Value: 1},
			{Key: "created_at", Value: -1},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create two-factor indexes: %w", err)
	}

	_, err = s.sessions.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "session_token", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create session indexes: %w", err)
	}

	return nil
}

func (s *Store) AuthKeys() storage.AuthKeyStore   { return s.authKeys }
func (s *Store) TwoFactor() storage.TwoFactorStore { return s.twoFactor }
func (s *Store) Sessions() storage.SessionStore    { return s.sessions }

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// consume applies a conditional boolean flip and distinguishes a lost race
// from a missing document.
func consume(ctx context.Context, coll *mongo.Collection, id, flag, stampField string, at time.Time) error {
	result, err := coll.UpdateOne(ctx,
		bson.M{"_id": id, flag: false},
		bson.M{"$set": bson.M{flag: true, stampField: at}},
	)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrDatabase, err)
	}
	if result.MatchedCount == 1 {
		return nil
	}

	count, err := coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrDatabase, err)
	}
	if count == 0 {
		return storage.ErrNotFound
	}
	return storage.ErrConflict
}
