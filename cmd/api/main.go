package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dropinmorocco/booking-core/internal/adapters/crdb"
	"github.com/dropinmorocco/booking-core/internal/adapters/memory"
	mongoadapter "github.com/dropinmorocco/booking-core/internal/adapters/mongo"
	redisadapter "github.com/dropinmorocco/booking-core/internal/adapters/redis"
	"github.com/dropinmorocco/booking-core/internal/catalog"
	"github.com/dropinmorocco/booking-core/internal/config"
	"github.com/dropinmorocco/booking-core/internal/domain"
	httphandler "github.com/dropinmorocco/booking-core/internal/http"
	"github.com/dropinmorocco/booking-core/internal/idempotency"
	"github.com/dropinmorocco/booking-core/internal/observability"
	"github.com/dropinmorocco/booking-core/internal/orders"
	"github.com/dropinmorocco/booking-core/internal/payments"
	"github.com/dropinmorocco/booking-core/internal/pricing"
	"github.com/dropinmorocco/booking-core/internal/rateLimit"
	"github.com/dropinmorocco/booking-core/internal/redemption"
	"github.com/dropinmorocco/booking-core/internal/tokens"
	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	_ "time/tzdata"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observability.SetupOTel(ctx, cfg.OTLPEndpoint, "dropin-api")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel(context.Background())

	logger := observability.NewLoggerWithLevel(cfg.LogLevel)
	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	engine, err := pricing.NewEngine(cfg.Rates())
	if err != nil {
		log.Fatalf("invalid pricing rates: %v", err)
	}

	var checks []func(context.Context) error

	var store domain.Store
	switch cfg.Store {
	case "crdb":
		pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
		if err != nil {
			log.Fatalf("failed to connect to crdb: %v", err)
		}
		defer pool.Close()
		repo := crdb.NewRepository(pool)
		if err := repo.Migrate(ctx); err != nil {
			log.Fatalf("failed to migrate crdb: %v", err)
		}
		store = repo
		checks = append(checks, pool.Ping)
	default:
		logger.Warn("using the in-memory store, state is lost on restart")
		store = memory.NewStore()
	}

	var cache *redisadapter.Cache
	var limiter httphandler.Limiter
	backend := idempotency.Backend(idempotency.NewMemoryBackend())
	if cfg.RedisAddr != "" {
		redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		cache = redisadapter.NewCache(redisClient)
		backend = redisadapter.NewIdempotency(redisClient)
		limiter = rateLimit.NewRateLimiter(cache)
		checks = append(checks, func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}
	idemp := idempotency.NewIdempotency(backend, cfg.IdempotencyTTL)

	var cat catalog.Catalog
	switch {
	case cfg.MongoURI != "":
		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatalf("failed to connect to mongo: %v", err)
		}
		defer mongoClient.Disconnect(context.Background())
		cat = mongoadapter.NewCatalogRepository(mongoClient.Database(cfg.MongoDB), logger)
		checks = append(checks, func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) })
	case cfg.CatalogSeed != "":
		products, err := catalog.LoadSeed(cfg.CatalogSeed)
		if err != nil {
			log.Fatalf("failed to load catalog seed: %v", err)
		}
		if cat, err = catalog.NewStatic(products); err != nil {
			log.Fatalf("invalid catalog seed: %v", err)
		}
	default:
		if cat, err = catalog.NewStatic(catalog.DefaultProducts()); err != nil {
			log.Fatalf("invalid default catalog: %v", err)
		}
	}
	if cache != nil {
		cat = catalog.NewCached(cat, cache, cfg.CatalogCacheTTL, logger)
	}

	om := orders.NewManager(store, cat, engine, logger)
	processor := payments.NewProcessor(store, om, tokens.NewIssuer(logger), payments.NewSimulatedGateway(), logger)
	gateway := redemption.NewGateway(store, loc, logger)

	ready := func(ctx context.Context) error {
		for _, check := range checks {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
	handlers := httphandler.NewHandlers(cat, engine, om, processor, gateway, ready)
	limits := httphandler.Limits{PerUser: cfg.RateLimitUser, PerIP: cfg.RateLimitIP}
	r := httphandler.SetupRouter(handlers, logger, limiter, limits, idemp)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", cfg.HTTPAddr).Info("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown Server ...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("server stopped")
	}
	logger.Info("Server exiting")
}
