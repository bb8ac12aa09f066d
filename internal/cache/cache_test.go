package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_SetGetExpire(t *testing.T) {
	ctx := context.Background()
	c := New[string, int](time.Minute)
	defer c.Close()

	c.Set(ctx, "tiers", 42, 50*time.Millisecond)

	v, ok := c.Get(ctx, "tiers")
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	time.Sleep(80 * time.Millisecond)

	_, ok = c.Get(ctx, "tiers")
	assert.False(t, ok)
}

func TestCache_Delete(t *testing.T) {
	ctx := context.Background()
	c := New[string, string](time.Minute)

	c.Set(ctx, "k", "v", 0)
	c.Delete(ctx, "k")

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}
