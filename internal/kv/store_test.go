package kv

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hray3182/agenda/internal/database"
)

// exerciseStore runs the contract every backend must satisfy.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "agenda-test")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "agenda-test", `{"a":1}`))
	v, ok, err := s.Get(ctx, "agenda-test")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, v)

	require.NoError(t, s.Set(ctx, "agenda-test", `{"a":2}`))
	v, _, err = s.Get(ctx, "agenda-test")
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, v)

	require.NoError(t, s.Remove(ctx, "agenda-test"))
	_, ok, err = s.Get(ctx, "agenda-test")
	require.NoError(t, err)
	assert.False(t, ok)

	// removing a missing key is not an error
	require.NoError(t, s.Remove(ctx, "agenda-test"))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestPostgresStore(t *testing.T) {
	uri := os.Getenv("TEST_DATABASE_URI")
	if uri == "" {
		t.Skip("TEST_DATABASE_URI not set")
	}
	ctx := context.Background()

	db, err := database.New(ctx, uri)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate(ctx, zap.NewNop()))

	exerciseStore(t, NewPostgresStore(db))
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	client, err := DialRedis(context.Background(), url)
	require.NoError(t, err)
	defer client.Close()

	exerciseStore(t, NewRedisStore(client, "agenda-test:"))
}
