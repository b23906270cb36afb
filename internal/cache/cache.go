package cache

import (
	"context"
	"time"

	"laroza/backend/internal/domain"
)

// ProductCache holds the annotated product listing per store partition.
// An empty storeType addresses the listing over both partitions.
type ProductCache interface {
	Get(ctx context.Context, storeType string) ([]domain.ProductWithInventory, bool, error)
	Set(ctx context.Context, storeType string, value []domain.ProductWithInventory, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopProductCache struct{}

func (NoopProductCache) Get(_ context.Context, _ string) ([]domain.ProductWithInventory, bool, error) {
	return nil, false, nil
}

func (NoopProductCache) Set(_ context.Context, _ string, _ []domain.ProductWithInventory, _ time.Duration) error {
	return nil
}

func (NoopProductCache) Invalidate(_ context.Context) error {
	return nil
}
