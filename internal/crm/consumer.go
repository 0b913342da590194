package crm

import (
	"context"
	"errors"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/webshopx/fulfillment/internal/logger"
	"github.com/webshopx/fulfillment/internal/orders"
	"go.uber.org/zap"
)

type OrderStore interface {
	CreateOrder(ctx context.Context, ev orders.OrderEvent) (string, error)
}

// Consumer records every new order exactly once per payment id.
type Consumer struct {
	Store OrderStore
	Log   *zap.Logger
}

func (c *Consumer) Handle(ctx context.Context, m kafkago.Message) error {
	log := logger.FromContextOr(ctx, c.Log)

	ev, err := orders.DecodeOrderEvent(m.Value)
	if err != nil {
		log.Error("order payload rejected", zap.String("error_kind", orders.Kind(err)), zap.Error(err))
		return err
	}
	log = log.With(zap.String("payment_id", ev.PaymentID))
	if err := orders.ValidateEvent(ev); err != nil {
		log.Error("order payload rejected", zap.String("error_kind", orders.Kind(err)), zap.Error(err))
		return err
	}

	orderID, err := c.Store.CreateOrder(ctx, ev)
	switch {
	case errors.Is(err, ErrAlreadyExists):
		log.Info("order already recorded", zap.String("order_id", orderID))
		return nil
	case err != nil:
		derr := &orders.DownstreamServiceError{Service: "order-store", Err: err}
		log.Error("order not recorded", zap.String("error_kind", orders.Kind(derr)), zap.Error(err))
		return derr
	}
	log.Info("order recorded", zap.String("order_id", orderID), zap.Int("lines", len(ev.OrderLines)))
	return nil
}
