package main

import (
	"context"
	"github.com/webshopx/fulfillment/internal/config"
	"github.com/webshopx/fulfillment/internal/crm"
	"github.com/webshopx/fulfillment/internal/httpx"
	kafkax "github.com/webshopx/fulfillment/internal/kafka"
	"github.com/webshopx/fulfillment/internal/logger"
	"github.com/webshopx/fulfillment/internal/orders"
	"github.com/webshopx/fulfillment/internal/postgres"
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
	lg, err := logger.New(logger.Config(cfg.Log), cfg.App.Name+"-crm")
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

	dlt := kafkax.NewDeadLetterProducer(cfg.Kafka.Brokers)
	defer dlt.Close()

	opts := kafkax.OptionsFromConfig("order-records", cfg.Kafka)
	opts.Retryable = orders.Retryable
	opts.DeadLetter = dlt
	opts.Logger = lg
	cons := kafkax.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Groups.Records, []string{orders.TopicOrderCreated}, opts)
	handler := &crm.Consumer{Store: &crm.RecordRepo{DB: db}, Log: lg.Named("crm")}

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: httpx.NewRouter(lg, 0), ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("order record consumer started",
			zap.String("group", cfg.Kafka.Groups.Records), zap.Int("workers", cfg.Kafka.Workers))
		return cons.Start(gctx, handler.Handle)
	})
	g.Go(func() error { return httpx.Serve(gctx, srv, lg) })
	if err := g.Wait(); err != nil {
		lg.Error("exit", zap.Error(err))
	}
	lg.Info("shutting down")
}
