package mongo

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/dropinmorocco/booking-core/internal/domain"
	"github.com/dropinmorocco/booking-core/internal/observability"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CatalogRepository serves products from the "products" collection.
type CatalogRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		coll:   db.Collection("products"),
		logger: logger,
	}
}

func (c *CatalogRepository) Get(ctx context.Context, id uuid.UUID) (domain.Product, error) {
	var p domain.Product
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Product{}, errors.Wrapf(domain.ErrProductNotFound, "id %s", id)
	}
	if err != nil {
		c.logger.WithError(err).WithField("product_id", id).Error("failed to get product")
		return domain.Product{}, err
	}
	return p, nil
}

func (c *CatalogRepository) List(ctx context.Context) ([]domain.Product, error) {
	cur, err := c.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		c.logger.WithError(err).Error("failed to list products")
		return nil, err
	}
	var out []domain.Product
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Upsert replaces the product document with the same id, creating it when missing.
func (c *CatalogRepository) Upsert(ctx context.Context, p domain.Product) error {
	_, err := c.coll.ReplaceOne(ctx, bson.M{"_id": p.ID}, p, options.Replace().SetUpsert(true))
	if err != nil {
		c.logger.WithError(err).WithField("product_id", p.ID).Error("failed to upsert product")
		return err
	}
	return nil
}
