//go:build integration

package redisstore

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/settings"
)

func newClient(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)

	client, err := Open(ctx, core.RedisConfig{Addr: opts.Addr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestSettingsStore(t *testing.T) {
	ctx := context.Background()
	store := NewSettingsStore(newClient(t))

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, settings.ErrNotFound)

	s := settings.Defaults()
	s.SchoolName = "Lycée Wima"
	s.Currency = "CDF"
	s.AllowParentChildEdit = true
	require.NoError(t, store.Save(ctx, s))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, s, got)

	require.NoError(t, store.Reset(ctx))
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, settings.ErrNotFound)
}
