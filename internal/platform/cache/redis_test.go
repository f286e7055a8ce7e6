package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Name  string
	Price float64
}

func setupTestCache(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c, err := Open(context.Background(), Options{Addr: mr.Addr(), Prefix: "test:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestSetAndGet(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()

	want := entry{Name: "Civic", Price: 45}
	require.NoError(t, c.Set(ctx, "car:1", want, time.Minute))
	assert.True(t, mr.Exists("test:car:1"))

	var got entry
	found, err := c.Get(ctx, "car:1", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want, got)
}

func TestGetMiss(t *testing.T) {
	c, _ := setupTestCache(t)

	var got entry
	found, err := c.Get(context.Background(), "missing", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInvalidate(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "car:2", entry{Name: "Model 3"}, time.Minute))
	require.NoError(t, c.Invalidate(ctx, "car:2"))

	var got entry
	found, err := c.Get(ctx, "car:2", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestExpiry(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "car:3", entry{Name: "Hilux"}, time.Second))
	mr.FastForward(2 * time.Second)

	var got entry
	found, err := c.Get(ctx, "car:3", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOpenFailsWithoutServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Open(ctx, Options{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
