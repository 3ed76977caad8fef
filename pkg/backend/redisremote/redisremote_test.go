package redisremote

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cachemir/cacheaside/pkg/backend"
	"github.com/cachemir/cacheaside/pkg/cacheerr"
	"github.com/cachemir/cacheaside/pkg/record"
	"github.com/cachemir/cacheaside/pkg/schema"
)

func redisClient(t *testing.T) redis.UniversalClient {
	t.Helper()

	addr := os.Getenv("CACHEASIDE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CACHEASIDE_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRegionKey(t *testing.T) {
	assert.Equal(t, "cacheaside:region:basque-names", RegionKey(backend.BasqueNamesRegion))
}

func TestNewRejectsNilClient(t *testing.T) {
	_, err := New(context.Background(), nil, Options{})
	assert.True(t, cacheerr.IsConfiguration(err))
}

func TestNewFailsWhenRedisUnreachable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	p, err := New(context.Background(), rdb, Options{Regions: []string{backend.BasqueNamesRegion}})
	assert.Nil(t, p)
	assert.True(t, cacheerr.IsConfiguration(err))
}

func TestRedisRegion(t *testing.T) {
	ctx := context.Background()
	rdb := redisClient(t)

	p, err := New(ctx, rdb, Options{Regions: []string{backend.BasqueNamesRegion}})
	require.NoError(t, err)
	require.NoError(t, p.Flush(ctx, backend.BasqueNamesRegion))

	stored, err := rdb.HGet(ctx, schema.MetadataRegionName, schema.FileName).Result()
	require.NoError(t, err)
	assert.Equal(t, schema.File, stored)

	_, err = p.GetCache(ctx, "other")
	assert.True(t, cacheerr.IsConfiguration(err))

	r, err := p.GetCache(ctx, backend.BasqueNamesRegion)
	require.NoError(t, err)

	want := record.New(20, "Arantxa")
	require.NoError(t, r.Put(ctx, want))

	got, found, err := r.Get(ctx, 20)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, want, got)

	size, err := r.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	require.NoError(t, r.Remove(ctx, 20))
	_, found, err = r.Get(ctx, 20)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisRegionRejectsEntryForAnotherID(t *testing.T) {
	ctx := context.Background()
	rdb := redisClient(t)

	p, err := New(ctx, rdb, Options{Regions: []string{backend.BasqueNamesRegion}})
	require.NoError(t, err)
	require.NoError(t, p.Flush(ctx, backend.BasqueNamesRegion))
	r, err := p.GetCache(ctx, backend.BasqueNamesRegion)
	require.NoError(t, err)

	require.NoError(t, r.Put(ctx, record.New(1<<31, "Big")))
	got, found, err := r.Get(ctx, 1<<31)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, record.New(1<<31, "Big"), got)

	key := RegionKey(backend.BasqueNamesRegion)
	require.NoError(t, rdb.HSet(ctx, key, backend.Key(7), record.Marshal(record.New(8, "Mattin"))).Err())
	_, found, err = r.Get(ctx, 7)
	assert.False(t, found)
	assert.ErrorContains(t, err, "holds id 8")
}
