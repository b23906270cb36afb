package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"laroza/backend/internal/domain"
)

func TestRedisProductCacheRoundTripAndInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewRedisClient(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = client.Close() })
	c := NewRedisProductCache(client)
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))

	_, hit, err := c.Get(ctx, domain.StoreTypeBoutique)
	require.NoError(t, err)
	require.False(t, hit)

	listing := []domain.ProductWithInventory{{
		Product:       domain.Product{ID: "p1", ModelNumber: "M-1", StorePrice: decimal.RequireFromString("200.00")},
		TotalQuantity: 3,
		Status:        domain.StockStatusLowStock,
	}}
	require.NoError(t, c.Set(ctx, domain.StoreTypeBoutique, listing, time.Minute))
	require.NoError(t, c.Set(ctx, "", listing, time.Minute))
	require.True(t, mr.Exists("products:status:boutique"))
	require.True(t, mr.Exists("products:status:all"))

	got, hit, err := c.Get(ctx, domain.StoreTypeBoutique)
	require.NoError(t, err)
	require.True(t, hit)
	require.Len(t, got, 1)
	require.Equal(t, "p1", got[0].ID)
	require.True(t, got[0].StorePrice.Equal(decimal.NewFromInt(200)))

	require.NoError(t, c.Invalidate(ctx))
	require.False(t, mr.Exists("products:status:boutique"))
	require.False(t, mr.Exists("products:status:all"))
}

func TestRedisProductCacheExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewRedisClient(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = client.Close() })
	c := NewRedisProductCache(client)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, domain.StoreTypeOnline, []domain.ProductWithInventory{}, 30*time.Second))
	mr.FastForward(31 * time.Second)

	_, hit, err := c.Get(ctx, domain.StoreTypeOnline)
	require.NoError(t, err)
	require.False(t, hit)
}
