package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()
	clock := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	clock = clock.Add(2 * time.Minute)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryCache_Delete(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	require.NoError(t, c.Set(ctx, DashboardKey("d1"), []byte("x"), 0))
	require.NoError(t, c.Delete(ctx, DashboardKey("d1")))

	_, err := c.Get(ctx, DashboardKey("d1"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	type payload struct {
		Total float64 `json:"total"`
	}
	require.NoError(t, SetJSON(ctx, c, "p", payload{Total: 42.5}, time.Minute))

	var out payload
	require.NoError(t, GetJSON(ctx, c, "p", &out))
	assert.Equal(t, 42.5, out.Total)

	assert.ErrorIs(t, GetJSON(ctx, c, "missing", &out), ErrNotFound)
}
