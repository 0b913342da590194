package inventory

import (
	"context"
	"errors"
	"fmt"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/webshopx/fulfillment/internal/catalog"
	"github.com/webshopx/fulfillment/internal/logger"
	"github.com/webshopx/fulfillment/internal/metrics"
	"github.com/webshopx/fulfillment/internal/orders"
	"github.com/webshopx/fulfillment/internal/redisx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type StockUpdater interface {
	UpdateStock(ctx context.Context, productID string, count int) (*orders.Product, error)
}

type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) (bool, error)
}

type ProductWriter interface {
	Put(ctx context.Context, p orders.Product) error
}

// Service decrements catalog stock for every line of an order announced on
// the catalog-change topic.
type Service struct {
	Catalog  StockUpdater
	Dedup    Deduper       // optional
	Products ProductWriter // optional
	Log      *zap.Logger
}

// HandleCatalogChange is installed as the consumer handler.
func (s *Service) HandleCatalogChange(ctx context.Context, m kafkago.Message) error {
	log := logger.FromContextOr(ctx, s.Log)

	// 1) decode envelope, unwrapping double-encoded data
	n, ev, err := orders.DecodeNotification(m.Value)
	if err != nil {
		log.Error("catalog notification rejected", zap.String("error_kind", orders.Kind(err)), zap.Error(err))
		return err
	}
	log = log.With(zap.String("notification_id", n.ID), zap.String("payment_id", ev.PaymentID))

	// 2) any bad line rejects the whole notification before stock is touched
	if err := orders.ValidateStockEvent(ev); err != nil {
		log.Error("catalog notification rejected", zap.String("error_kind", orders.Kind(err)), zap.Error(err))
		return err
	}

	// 3) one call per line, concurrently; a failing line does not cancel the others
	var g errgroup.Group
	for i, line := range ev.OrderLines {
		g.Go(func() error { return s.decrement(ctx, log, ev.PaymentID, i, line) })
	}
	if err := g.Wait(); err != nil {
		log.Error("stock update incomplete", zap.String("error_kind", orders.Kind(err)), zap.Error(err))
		return err
	}
	log.Info("stock updated", zap.Int("lines", len(ev.OrderLines)))
	return nil
}

func (s *Service) decrement(ctx context.Context, log *zap.Logger, paymentID string, idx int, line orders.OrderLine) error {
	log = log.With(zap.Int("line", idx), zap.String("product_id", line.ProductID), zap.Int("item_count", line.ItemCount))
	key := redisx.StockDedupKey(paymentID, idx, line.ProductID)

	if s.Dedup != nil {
		seen, err := s.Dedup.Seen(ctx, key)
		if err != nil {
			log.Warn("dedup lookup failed, calling catalog anyway", zap.Error(err))
		} else if seen {
			metrics.StockCallsTotal.WithLabelValues("duplicate").Inc()
			log.Debug("stock already decremented for this order line")
			return nil
		}
	}

	p, err := s.Catalog.UpdateStock(ctx, line.ProductID, line.ItemCount)
	var se *catalog.StatusError
	switch {
	case errors.As(err, &se):
		metrics.StockCallsTotal.WithLabelValues("rejected").Inc()
		log.Error("stock update rejected by catalog", zap.Int("status", se.Code), zap.String("body", se.Body))
		return nil
	case err != nil:
		metrics.StockCallsTotal.WithLabelValues("error").Inc()
		return &orders.DownstreamServiceError{Service: "catalog", Err: fmt.Errorf("update stock %s: %w", line.ProductID, err)}
	}
	metrics.StockCallsTotal.WithLabelValues("ok").Inc()

	if s.Dedup != nil {
		if _, err := s.Dedup.Mark(ctx, key); err != nil {
			log.Warn("dedup marker not written", zap.Error(err))
		}
	}
	if s.Products != nil && p != nil {
		if err := s.Products.Put(ctx, *p); err != nil {
			log.Warn("product cache not refreshed", zap.Error(err))
		}
	}
	return nil
}
