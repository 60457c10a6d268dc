package catalog

import (
	"context"
	"time"

	"github.com/dropinmorocco/booking-core/internal/domain"
	"github.com/dropinmorocco/booking-core/internal/observability"
	"github.com/google/uuid"
)

// JSONCache is the slice of the Redis cache adapter the catalog needs.
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

// Cached is a read-through cache in front of another catalog. Cache failures fall back to the
// underlying catalog.
type Cached struct {
	next   Catalog
	cache  JSONCache
	ttl    time.Duration
	logger observability.Logger
}

func NewCached(next Catalog, cache JSONCache, ttl time.Duration, logger observability.Logger) *Cached {
	return &Cached{next: next, cache: cache, ttl: ttl, logger: logger}
}

const (
	keyProduct     = "catalog:product:"
	keyProductList = "catalog:products"
)

func (c *Cached) Get(ctx context.Context, id uuid.UUID) (domain.Product, error) {
	var p domain.Product
	hit, err := c.cache.GetJSON(ctx, keyProduct+id.String(), &p)
	if err != nil {
		c.logger.WithError(err).WithField("product_id", id).Warn("catalog cache read failed")
	}
	if hit {
		return p, nil
	}

	p, err = c.next.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if err := c.cache.SetJSON(ctx, keyProduct+id.String(), p, c.ttl); err != nil {
		c.logger.WithError(err).WithField("product_id", id).Warn("catalog cache write failed")
	}
	return p, nil
}

func (c *Cached) List(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	hit, err := c.cache.GetJSON(ctx, keyProductList, &products)
	if err != nil {
		c.logger.WithError(err).Warn("catalog cache read failed")
	}
	if hit {
		return products, nil
	}

	products, err = c.next.List(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetJSON(ctx, keyProductList, products, c.ttl); err != nil {
		c.logger.WithError(err).Warn("catalog cache write failed")
	}
	return products, nil
}
