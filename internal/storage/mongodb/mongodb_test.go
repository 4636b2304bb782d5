package mongodb

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runevault/storefront-backend/internal/domain"
	"github.com/runevault/storefront-backend/internal/storage"
	"github.com/runevault/storefront-backend/pkg/config"
)

func getTestMongoURI() string {
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	return uri
}

func skipIfNoMongo(t *testing.T) *Store {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := &config.MongoDBConfig{
		URI:      getTestMongoURI(),
		Database: "storefront_test",
		Timeout:  5,
	}

	store, err := NewStore(ctx, cfg)
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
		return nil
	}

	// Clean up test database
	t.Cleanup(func() {
		ctx := context.Background()
		_ = store.database.Drop(ctx)
		_ = store.Close()
	})

	return store
}

// Mongo stores milliseconds
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func TestStore_Ping(t *testing.T) {
	store := skipIfNoMongo(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	assert.NoError(t, store.Ping(ctx))
}

func TestStore_SubStores(t *testing.T) {
	store := skipIfNoMongo(t)

	assert.NotNil(t, store.AuthKeys())
	assert.NotNil(t, store.TwoFactor())
	assert.NotNil(t, store.Sessions())
}

func TestAuthKeyStore_Lifecycle(t *testing.T) {
	store := skipIfNoMongo(t)
	ctx := context.Background()
	ts := now()

	record := &domain.AuthKeyRecord{
		ID:        "key-1",
		AuthKey:   "0123456789abcdef0123456789abcdef",
		KeyHash:   "deadbeef",
		Nonce:     "nonce-1",
		IPAddress: "203.0.113.7",
		CreatedAt: ts,
		ExpiresAt: ts.Add(5 * time.Minute),
	}
	require.NoError(t, store.AuthKeys().Create(ctx, record))

	dup := *record
	dup.ID = "key-2"
	assert.ErrorIs(t, store.AuthKeys().Create(ctx, &dup), storage.ErrAlreadyExists)

	got, err := store.AuthKeys().GetUnusedByNonce(ctx, "nonce-1")
	require.NoError(t, err)
	assert.Equal(t, record.AuthKey, got.AuthKey)
	assert.True(t, record.ExpiresAt.Equal(got.ExpiresAt))

	require.NoError(t, store.AuthKeys().MarkUsed(ctx, "key-1", ts))
	assert.ErrorIs(t, store.AuthKeys().MarkUsed(ctx, "key-1", ts), storage.ErrConflict)
	assert.ErrorIs(t, store.AuthKeys().MarkUsed(ctx, "missing", ts), storage.ErrNotFound)

	_, err = store.AuthKeys().GetUnusedByNonce(ctx, "nonce-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAuthKeyStore_ConcurrentMarkUsed(t *testing.T) {
	store := skipIfNoMongo(t)
	ctx := context.Background()
	ts := now()

	require.NoError(t, store.AuthKeys().Create(ctx, &domain.AuthKeyRecord{
		ID: "key-race", Nonce: "nonce-race", CreatedAt: ts, ExpiresAt: ts.Add(time.Minute),
	}))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.AuthKeys().MarkUsed(ctx, "key-race", ts) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestTwoFactorStore_LatestAndVerify(t *testing.T) {
	store := skipIfNoMongo(t)
	ctx := context.Background()
	ts := now()

	for i, created := range []time.Time{ts.Add(-time.Minute), ts} {
		require.NoError(t, store.TwoFactor().Create(ctx, &domain.TwoFactorRecord{
			ID:            []string{"code-old", "code-new"}[i],
			AuthCode:      "482913",
			ContactMethod: domain.ContactMethodEmail,
			ContactValue:  "ops@example.com",
			CreatedAt:     created,
			ExpiresAt:     created.Add(10 * time.Minute),
		}))
	}

	got, err := store.TwoFactor().FindLatestUnverified(ctx, domain.ContactMethodEmail, "ops@example.com", "482913")
	require.NoError(t, err)
	assert.Equal(t, "code-new", got.ID)

	require.NoError(t, store.TwoFactor().MarkVerified(ctx, "code-new", ts))
	assert.ErrorIs(t, store.TwoFactor().MarkVerified(ctx, "code-new", ts), storage.ErrConflict)

	got, err = store.TwoFactor().FindLatestUnverified(ctx, domain.ContactMethodEmail, "ops@example.com", "482913")
	require.NoError(t, err)
	assert.Equal(t, "code-old", got.ID)

	_, err = store.TwoFactor().FindLatestUnverified(ctx, domain.ContactMethodEmail, "ops@example.com", "000000")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSessionStore_Lifecycle(t *testing.T) {
	store := skipIfNoMongo(t)
	ctx := context.Background()
	ts := now()

	live := &domain.SessionRecord{ID: "s-live", SessionToken: "tok-live", DeviceFingerprint: "fp_0000abcd", CreatedAt: ts, ExpiresAt: ts.Add(time.Hour), LastActiveAt: ts}
	dead := &domain.SessionRecord{ID: "s-dead", SessionToken: "tok-dead", CreatedAt: ts.Add(-2 * time.Hour), ExpiresAt: ts.Add(-time.Hour)}
	require.NoError(t, store.Sessions().Create(ctx, live))
	require.NoError(t, store.Sessions().Create(ctx, dead))

	later := ts.Add(time.Minute)
	require.NoError(t, store.Sessions().Touch(ctx, "tok-live", later))
	assert.ErrorIs(t, store.Sessions().Touch(ctx, "tok-missing", later), storage.ErrNotFound)

	got, err := store.Sessions().GetByToken(ctx, "tok-live")
	require.NoError(t, err)
	assert.True(t, later.Equal(got.LastActiveAt))
	assert.Equal(t, "fp_0000abcd", got.DeviceFingerprint)

	n, err := store.Sessions().DeleteExpired(ctx, ts)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, store.Sessions().Delete(ctx, "tok-live"))
	require.NoError(t, store.Sessions().Delete(ctx, "tok-live"))
	_, err = store.Sessions().GetByToken(ctx, "tok-live")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
