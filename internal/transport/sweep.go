package transport

import (
	"context"
	kafkago "github.com/segmentio/kafka-go"
	kafkax "github.com/webshopx/fulfillment/internal/kafka"
	"github.com/webshopx/fulfillment/internal/orders"
	"github.com/webshopx/fulfillment/internal/redisx"
	"go.uber.org/zap"
	"time"
)

type SweepStore interface {
	StatusUpserter
	AgedRecords(ctx context.Context, partition string, olderThan time.Time, statuses []string) ([]StatusRecord, error)
}

// OrderStatusNotifier is the order record store; crm.RecordRepo satisfies it.
type OrderStatusNotifier interface {
	UpdateStatus(ctx context.Context, paymentID string, status orders.Status) error
}

// WarehouseSweep advances orders that sat untouched for AgeThreshold to
// ReadyForPickup and announces the change on the status-changed topic.
type WarehouseSweep struct {
	Store        SweepStore
	Publisher    orders.Publisher // orders.status-changed
	Records      OrderStatusNotifier
	Cache        Invalidator // optional
	Partition    string
	AgeThreshold time.Duration
	BatchSize    int
	Log          *zap.Logger
	Now          func() time.Time
}

type pending struct {
	rec StatusRecord
	msg kafkago.Message
}

// Run is one tick. A publish failure stops the tick; batches already sent
// stay sent.
func (w *WarehouseSweep) Run(ctx context.Context) error {
	log := w.log()
	now := w.now()

	aged, err := w.Store.AgedRecords(ctx, w.Partition, now.Add(-w.AgeThreshold), orders.SweepableStatuses())
	if err != nil {
		return &orders.DownstreamServiceError{Service: "status-store", Err: err}
	}
	if len(aged) == 0 {
		log.Debug("no aged orders")
		return nil
	}

	size := w.BatchSize
	if size < 1 {
		size = 1
	}
	batch := make([]pending, 0, size)
	advanced := 0
	for _, rec := range aged {
		next, ok := orders.SweepTransition(orders.Status(rec.Status))
		if !ok {
			continue
		}
		rec.Status = string(next)
		rec.LastUpdated = now.UTC()
		msg, err := kafkax.NewJSONMessage(orders.PartitionKey(rec.PaymentID), orders.EventOrderStatusChanged, rec.Event())
		if err != nil {
			return err
		}
		batch = append(batch, pending{rec: rec, msg: msg})
		if len(batch) == size {
			if err := w.flush(ctx, batch); err != nil {
				return err
			}
			advanced += len(batch)
			batch = make([]pending, 0, size)
		}
	}
	if len(batch) > 0 {
		if err := w.flush(ctx, batch); err != nil {
			return err
		}
		advanced += len(batch)
	}

	log.Info("warehouse sweep advanced orders", zap.Int("aged", len(aged)), zap.Int("advanced", advanced))
	return nil
}

func (w *WarehouseSweep) flush(ctx context.Context, batch []pending) error {
	msgs := make([]kafkago.Message, len(batch))
	for i, p := range batch {
		msgs[i] = p.msg
	}
	if err := w.Publisher.Publish(ctx, msgs...); err != nil {
		return &orders.DownstreamServiceError{Service: "bus:" + orders.TopicOrderStatusChanged, Err: err}
	}

	log := w.log()
	for _, p := range batch {
		if err := w.Store.UpdateOrderStatus(ctx, p.rec); err != nil {
			log.Warn("status upsert after sweep failed", zap.String("payment_id", p.rec.PaymentID), zap.Error(err))
		}
		if w.Records != nil {
			if err := w.Records.UpdateStatus(ctx, p.rec.PaymentID, orders.Status(p.rec.Status)); err != nil {
				log.Warn("order record status update failed", zap.String("payment_id", p.rec.PaymentID), zap.Error(err))
			}
		}
		if w.Cache != nil {
			w.Cache.Remove(ctx, redisx.OrderStatusKey(p.rec.PaymentID))
		}
	}
	log.Debug("batch flushed", zap.Int("size", len(batch)))
	return nil
}

func (w *WarehouseSweep) log() *zap.Logger {
	if w.Log == nil {
		return zap.NewNop()
	}
	return w.Log
}

func (w *WarehouseSweep) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}
