package main

import (
	"context"
	"github.com/webshopx/fulfillment/internal/cache"
	"github.com/webshopx/fulfillment/internal/cart"
	"github.com/webshopx/fulfillment/internal/catalog"
	"github.com/webshopx/fulfillment/internal/config"
	"github.com/webshopx/fulfillment/internal/httpx"
	kafkax "github.com/webshopx/fulfillment/internal/kafka"
	"github.com/webshopx/fulfillment/internal/logger"
	"github.com/webshopx/fulfillment/internal/orders"
	"github.com/webshopx/fulfillment/internal/postgres"
	"github.com/webshopx/fulfillment/internal/redisx"
	"github.com/webshopx/fulfillment/internal/transport"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logger.New(logger.Config(cfg.Log), cfg.App.Name+"-api")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := postgres.Connect(ctx, cfg.Postgres)
	if err != nil {
		lg.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis; reads fail open, so a cold start without it is tolerated
	rdb := redisx.New(cfg.Redis)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		lg.Warn("redis unavailable at startup", zap.Error(err))
	}
	store := cache.NewStore(cache.NewRedisBackend(rdb), cfg.Cache, lg)

	// Kafka producers
	ordersProd := kafkax.NewProducer(cfg.Kafka.Brokers, orders.TopicOrderCreated)
	defer ordersProd.Close()
	catalogProd := kafkax.NewProducer(cfg.Kafka.Brokers, orders.TopicCatalogChanges)
	defer catalogProd.Close()

	products := catalog.NewProductCache(store, catalog.NewClient(cfg.Catalog, lg), cfg.Cache.ProductTTL, lg)

	router := httpx.NewRouter(lg, cfg.HTTP.RequestTimeout)
	(&httpx.OrdersHandler{
		Ingress: &orders.Ingress{
			Orders:  ordersProd,
			Catalog: catalogProd,
			Source:  cfg.App.Name,
			Log:     lg.Named("ingress"),
		},
		Status:    &transport.StatusStore{DB: db},
		Cache:     store,
		Partition: cfg.Transport.PartitionKey,
		StatusTTL: cfg.Cache.StatusTTL,
	}).Register(router)
	(&httpx.ProductsHandler{Products: products, Creator: products, AdminToken: cfg.HTTP.AdminToken}).Register(router)
	(&httpx.CartHandler{Cart: cart.NewService(store, lg)}).Register(router)

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	if err := httpx.Serve(ctx, srv, lg); err != nil {
		lg.Error("http server", zap.Error(err))
	}
	lg.Info("shutting down")
}
