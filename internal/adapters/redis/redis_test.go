package redis_test

import (
	"context"
	"testing"
	"time"

	redisadapter "github.com/dropinmorocco/booking-core/internal/adapters/redis"
	"github.com/dropinmorocco/booking-core/internal/catalog"
	"github.com/dropinmorocco/booking-core/internal/domain"
	"github.com/dropinmorocco/booking-core/internal/rateLimit"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newClient(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("starts a Redis container")
	}
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	addr, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestCache_JSONRoundTrip(t *testing.T) {
	client := newClient(t)
	ctx := context.Background()
	cache := redisadapter.NewCache(client)

	var miss domain.Product
	hit, err := cache.GetJSON(ctx, "catalog:product:none", &miss)
	if err != nil || hit {
		t.Fatalf("expected a miss, got %v / %v", hit, err)
	}

	products := catalog.DefaultProducts()
	if err := cache.SetJSON(ctx, "catalog:products", products, time.Minute); err != nil {
		t.Fatal(err)
	}
	var got []domain.Product
	hit, err = cache.GetJSON(ctx, "catalog:products", &got)
	if err != nil || !hit {
		t.Fatalf("expected a hit, got %v / %v", hit, err)
	}
	if len(got) != len(products) || got[0].ID != products[0].ID {
		t.Errorf("unexpected cached products %+v", got)
	}
}

func TestIdempotency_LockAndSet(t *testing.T) {
	client := newClient(t)
	ctx := context.Background()
	idemp := redisadapter.NewIdempotency(client)

	ok, err := idemp.Lock(ctx, "k1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected to take the lock, got %v / %v", ok, err)
	}
	if ok, _ := idemp.Lock(ctx, "k1", time.Minute); ok {
		t.Error("expected second lock to fail")
	}
	if err := idemp.Set(ctx, "k1", []byte(`{"status":201}`), time.Minute); err != nil {
		t.Fatal(err)
	}
	data, err := idemp.Get(ctx, "k1")
	if err != nil || string(data) != `{"status":201}` {
		t.Errorf("unexpected stored value %q / %v", data, err)
	}
	if ok, _ := idemp.Lock(ctx, "k1", time.Minute); !ok {
		t.Error("expected Set to release the lock")
	}
}

func TestRateLimiter_Window(t *testing.T) {
	client := newClient(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 14, 8, 0, 45, 0, time.UTC)
	rl := rateLimit.NewRateLimiter(redisadapter.NewCache(client)).WithClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		d, err := rl.Allow(ctx, "user:1", 3, time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		if !d.Allowed || d.Remaining != 2-i {
			t.Fatalf("hit %d: expected allowed with %d remaining, got %+v", i+1, 2-i, d)
		}
	}
	d, err := rl.Allow(ctx, "user:1", 3, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed || d.RetryAfter != 15*time.Second {
		t.Errorf("fourth hit should be limited until the window ends, got %+v", d)
	}
	if d, _ := rl.Allow(ctx, "user:2", 3, time.Minute); !d.Allowed {
		t.Error("other keys have their own window")
	}

	now = now.Add(time.Minute)
	if d, _ := rl.Allow(ctx, "user:1", 3, time.Minute); !d.Allowed || d.Remaining != 2 {
		t.Errorf("next window should start fresh, got %+v", d)
	}
}
