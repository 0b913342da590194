package main

import (
	"context"
	"github.com/webshopx/fulfillment/internal/cache"
	"github.com/webshopx/fulfillment/internal/catalog"
	"github.com/webshopx/fulfillment/internal/config"
	"github.com/webshopx/fulfillment/internal/httpx"
	"github.com/webshopx/fulfillment/internal/inventory"
	kafkax "github.com/webshopx/fulfillment/internal/kafka"
	"github.com/webshopx/fulfillment/internal/logger"
	"github.com/webshopx/fulfillment/internal/orders"
	"github.com/webshopx/fulfillment/internal/redisx"
	"github.com/webshopx/fulfillment/internal/scheduler"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
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
	lg, err := logger.New(logger.Config(cfg.Log), cfg.App.Name+"-inventory")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis
	rdb := redisx.New(cfg.Redis)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		lg.Warn("redis unavailable at startup", zap.Error(err))
	}
	store := cache.NewStore(cache.NewRedisBackend(rdb), cfg.Cache, lg)

	client := catalog.NewClient(cfg.Catalog, lg)
	products := catalog.NewProductCache(store, client, cfg.Cache.ProductTTL, lg)

	// Service
	svc := &inventory.Service{
		Catalog:  client,
		Dedup:    redisx.NewDeduper(rdb, redisx.TTLDedup),
		Products: products,
		Log:      lg.Named("inventory"),
	}

	// Consumer
	dlt := kafkax.NewDeadLetterProducer(cfg.Kafka.Brokers)
	defer dlt.Close()
	opts := kafkax.OptionsFromConfig("stock-update", cfg.Kafka)
	opts.Retryable = orders.Retryable
	opts.DeadLetter = dlt
	opts.Logger = lg
	cons := kafkax.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Groups.Stock, []string{orders.TopicCatalogChanges}, opts)

	// Catalog refresh sweep
	refresh := &catalog.RefreshSweep{Source: client, Cache: products, Log: lg.Named("refresh")}
	runner := scheduler.New(
		scheduler.Config{Name: "catalog-refresh", Interval: cfg.Refresh.Interval, RunOnStart: true},
		refresh.Run,
		redisx.NewLock(rdb, "catalog-refresh", cfg.Refresh.Interval),
		lg,
	)

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: httpx.NewRouter(lg, 0), ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("stock consumer started",
			zap.String("group", cfg.Kafka.Groups.Stock), zap.String("topic", orders.TopicCatalogChanges))
		return cons.Start(gctx, svc.HandleCatalogChange)
	})
	g.Go(func() error {
		if err := runner.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return runner.Stop(stopCtx)
	})
	g.Go(func() error { return httpx.Serve(gctx, srv, lg) })
	if err := g.Wait(); err != nil {
		lg.Error("exit", zap.Error(err))
	}
	lg.Info("shutting down")
}
