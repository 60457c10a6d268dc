package mongo_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	mongoadapter "github.com/dropinmorocco/booking-core/internal/adapters/mongo"
	"github.com/dropinmorocco/booking-core/internal/catalog"
	"github.com/dropinmorocco/booking-core/internal/domain"
	"github.com/dropinmorocco/booking-core/internal/observability"
	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func newDatabase(t *testing.T) *mongo.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("starts a MongoDB container")
	}
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "mongodb")
	if err != nil {
		t.Fatal(err)
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(endpoint))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Disconnect(ctx) })
	return client.Database("dropin_test")
}

func TestCatalogRepository_UpsertGetList(t *testing.T) {
	db := newDatabase(t)
	ctx := context.Background()
	repo := mongoadapter.NewCatalogRepository(db, observability.NewDiscardLogger())

	for _, p := range catalog.DefaultProducts() {
		if err := repo.Upsert(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	p, err := repo.Get(ctx, catalog.PassPremiumID)
	if err != nil {
		t.Fatal(err)
	}
	if p.Type != domain.ProductPassPremium || p.BasePriceMAD != 499 || len(p.TierEligibility) != 3 {
		t.Errorf("unexpected product %+v", p)
	}
	if _, err := repo.Get(ctx, uuid.New()); !errors.Is(err, domain.ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound, got %v", err)
	}
	list, err := repo.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != len(catalog.DefaultProducts()) {
		t.Errorf("expected %d products, got %d", len(catalog.DefaultProducts()), len(list))
	}
}

func TestAuditLogger_RecordsEachEventOnce(t *testing.T) {
	db := newDatabase(t)
	ctx := context.Background()
	audit := mongoadapter.NewAuditLogger(db, observability.NewDiscardLogger())
	orderID := uuid.NewString()

	entry, err := mongoadapter.NewAuditLog("evt-1", domain.EventOrderPaid, "order", orderID, time.Now().UTC(), []byte(`{"gross_amount":150}`))
	if err != nil {
		t.Fatal(err)
	}
	created, err := audit.Record(ctx, entry)
	if err != nil || !created {
		t.Fatalf("expected a new entry, got %v / %v", created, err)
	}
	created, err = audit.Record(ctx, entry)
	if err != nil || created {
		t.Fatalf("expected the redelivery to be ignored, got %v / %v", created, err)
	}

	logs, err := audit.ListByAggregate(ctx, orderID)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 || logs[0].Action != domain.EventOrderPaid {
		t.Errorf("unexpected audit logs %+v", logs)
	}
}
