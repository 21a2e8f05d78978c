package studiocms

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache(time.Minute)
	c.now = func() time.Time { return now }

	c.Set(ctx, tableProjects, "all", []byte(`[1]`))
	body, ok := c.Get(ctx, tableProjects, "all")
	require.True(t, ok)
	assert.Equal(t, `[1]`, string(body))

	now = now.Add(2 * time.Minute)
	_, ok = c.Get(ctx, tableProjects, "all")
	assert.False(t, ok, "entry should expire after ttl")
}

func TestMemoryCacheInvalidateIsPerTable(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute)
	c.Set(ctx, tableProjects, "all", []byte(`[]`))
	c.Set(ctx, tableProjects, "featured", []byte(`[]`))
	c.Set(ctx, tablePosts, "all", []byte(`[]`))

	c.Invalidate(ctx, tableProjects)

	_, ok := c.Get(ctx, tableProjects, "all")
	assert.False(t, ok)
	_, ok = c.Get(ctx, tableProjects, "featured")
	assert.False(t, ok)
	_, ok = c.Get(ctx, tablePosts, "all")
	assert.True(t, ok)
}

func TestMemoryCacheDisabled(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)
	c.Set(ctx, tablePosts, "all", []byte(`[]`))
	_, ok := c.Get(ctx, tablePosts, "all")
	assert.False(t, ok)
}

func TestRedisCache(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	client, err := NewRedisClient(ctx, url)
	require.NoError(t, err)
	defer client.Close()

	c := NewRedisCache(client, "studiocms-test:"+uuid.NewString()+":", time.Minute, nil)
	c.Set(ctx, tablePosts, "all", []byte(`["a"]`))
	body, ok := c.Get(ctx, tablePosts, "all")
	require.True(t, ok)
	assert.Equal(t, `["a"]`, string(body))

	c.Invalidate(ctx, tablePosts)
	_, ok = c.Get(ctx, tablePosts, "all")
	assert.False(t, ok)
}
