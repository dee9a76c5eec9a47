package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/marketgate/pkg/adapters/redis"
	"github.com/aretw0/marketgate/pkg/domain"
	"github.com/aretw0/marketgate/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T, opts ...redis.Option) (*miniredis.Miniredis, *redis.Store) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err, "Failed to start miniredis")
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})

	return mr, redis.NewFromClient(client, opts...)
}

func TestRedisStore_Contract(t *testing.T) {
	_, store := setupStore(t)
	ports.RunSnapshotStoreContract(t, store)
}

func TestRedisStore_TTL(t *testing.T) {
	mr, store := setupStore(t, redis.WithTTL(time.Minute))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "pool", &domain.Portfolio{Value: 10}))

	// Advance past the TTL; miniredis expires the key.
	mr.FastForward(2 * time.Minute)

	_, err := store.Load(ctx, "pool")
	assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, store := setupStore(t, redis.WithPrefix("custom:"))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "pool", &domain.Portfolio{Value: 10}))
	assert.True(t, mr.Exists("custom:pool"))
}
