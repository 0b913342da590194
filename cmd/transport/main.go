package main

import (
	"context"
	"github.com/webshopx/fulfillment/internal/cache"
	"github.com/webshopx/fulfillment/internal/config"
	"github.com/webshopx/fulfillment/internal/crm"
	"github.com/webshopx/fulfillment/internal/httpx"
	kafkax "github.com/webshopx/fulfillment/internal/kafka"
	"github.com/webshopx/fulfillment/internal/logger"
	"github.com/webshopx/fulfillment/internal/orders"
	"github.com/webshopx/fulfillment/internal/postgres"
	"github.com/webshopx/fulfillment/internal/redisx"
	"github.com/webshopx/fulfillment/internal/scheduler"
	"github.com/webshopx/fulfillment/internal/transport"
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
	lg, err := logger.New(logger.Config(cfg.Log), cfg.App.Name+"-transport")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.Postgres)
	if err != nil {
		lg.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.Redis)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		lg.Warn("redis unavailable at startup", zap.Error(err))
	}
	store := cache.NewStore(cache.NewRedisBackend(rdb), cfg.Cache, lg)
	statuses := &transport.StatusStore{DB: db}

	dlt := kafkax.NewDeadLetterProducer(cfg.Kafka.Brokers)
	defer dlt.Close()
	statusProd := kafkax.NewProducer(cfg.Kafka.Brokers, orders.TopicOrderStatusChanged)
	defer statusProd.Close()

	// Consumer: new orders plus the sweep's own status changes
	opts := kafkax.OptionsFromConfig("transport-status", cfg.Kafka)
	opts.Retryable = orders.Retryable
	opts.DeadLetter = dlt
	opts.Logger = lg
	topics := []string{orders.TopicOrderCreated, orders.TopicOrderStatusChanged}
	cons := kafkax.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Groups.Transport, topics, opts)
	handler := &transport.Consumer{
		Store:     statuses,
		Partition: cfg.Transport.PartitionKey,
		Cache:     store,
		Log:       lg.Named("transport"),
	}

	// Warehouse sweep
	sweep := &transport.WarehouseSweep{
		Store:        statuses,
		Publisher:    statusProd,
		Records:      &crm.RecordRepo{DB: db},
		Cache:        store,
		Partition:    cfg.Transport.PartitionKey,
		AgeThreshold: cfg.Warehouse.AgeThreshold,
		BatchSize:    cfg.Warehouse.BatchSize,
		Log:          lg.Named("warehouse"),
	}
	runner := scheduler.New(
		scheduler.Config{Name: "warehouse", Interval: cfg.Warehouse.Interval},
		sweep.Run,
		redisx.NewLock(rdb, "warehouse-sweep", cfg.Warehouse.Interval),
		lg,
	)

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: httpx.NewRouter(lg, 0), ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("transport consumer started", zap.Strings("topics", topics), zap.String("group", cfg.Kafka.Groups.Transport))
		return cons.Start(gctx, handler.Handle)
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
