package transport

import (
	"context"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/webshopx/fulfillment/internal/logger"
	"github.com/webshopx/fulfillment/internal/orders"
	"github.com/webshopx/fulfillment/internal/redisx"
	"go.uber.org/zap"
	"time"
)

type StatusUpserter interface {
	UpdateOrderStatus(ctx context.Context, r StatusRecord) error
}

// Invalidator drops cached read models; cache.Store satisfies it.
type Invalidator interface {
	Remove(ctx context.Context, key string)
}

// Consumer mirrors order events into the carrier's status table.
type Consumer struct {
	Store     StatusUpserter
	Partition string
	Cache     Invalidator // optional
	Log       *zap.Logger
	Now       func() time.Time
}

func (c *Consumer) Handle(ctx context.Context, m kafkago.Message) error {
	log := logger.FromContextOr(ctx, c.Log)
	log.Info("received message", zap.String("topic", m.Topic), zap.Int("bytes", len(m.Value)))

	ev, err := orders.DecodeOrderEvent(m.Value)
	if err != nil {
		log.Error("status event rejected", zap.String("error_kind", orders.Kind(err)), zap.Error(err))
		return err
	}
	if err := orders.ValidatePaymentID(ev); err != nil {
		log.Error("status event rejected", zap.String("error_kind", orders.Kind(err)), zap.Error(err))
		return err
	}

	rec := FromEvent(c.Partition, ev, c.now())
	if err := c.Store.UpdateOrderStatus(ctx, rec); err != nil {
		derr := &orders.DownstreamServiceError{Service: "status-store", Err: err}
		log.Error("status upsert failed",
			zap.String("payment_id", ev.PaymentID),
			zap.String("error_kind", orders.Kind(derr)),
			zap.Error(err))
		return derr
	}
	if c.Cache != nil {
		c.Cache.Remove(ctx, redisx.OrderStatusKey(ev.PaymentID))
	}
	log.Debug("status upserted", zap.String("payment_id", ev.PaymentID), zap.String("status", ev.Status))
	return nil
}

func (c *Consumer) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
