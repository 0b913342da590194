package orders

import (
	"context"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	kafkax "github.com/webshopx/fulfillment/internal/kafka"
	"go.uber.org/zap"
	"time"
)

// Publisher writes messages to one topic.
type Publisher interface {
	Publish(ctx context.Context, msgs ...kafkago.Message) error
}

type CreateOrderRequest struct {
	PaymentID  string          `json:"paymentId" validate:"required"`
	Status     string          `json:"status"`
	Customer   CustomerRequest `json:"customer" validate:"required"`
	OrderLines []OrderLine     `json:"orderLines" validate:"required,min=1,dive"`
}

type CustomerRequest struct {
	Name    string `json:"name" validate:"required"`
	Address string `json:"address" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
}

// Ingress turns a validated request into an OrderCreated event and the
// matching catalog-change notification.
type Ingress struct {
	Orders  Publisher // orders.created
	Catalog Publisher // catalog.changes
	Source  string
	Log     *zap.Logger
	Now     func() time.Time
}

func (in *Ingress) Submit(ctx context.Context, req CreateOrderRequest) (OrderEvent, error) {
	if err := toValidationError(validate.Struct(req)); err != nil {
		return OrderEvent{}, err
	}
	ev := OrderEvent{
		Status:    req.Status,
		PaymentID: req.PaymentID,
		Customer: Customer{
			Name:    req.Customer.Name,
			Address: req.Customer.Address,
			Email:   req.Customer.Email,
		},
		OrderLines: req.OrderLines,
	}
	if ev.Status == "" {
		ev.Status = string(StatusPending)
	}

	msg, err := kafkax.NewJSONMessage(PartitionKey(ev.PaymentID), EventOrderCreated, ev)
	if err != nil {
		return OrderEvent{}, err
	}
	if err := in.Orders.Publish(ctx, msg); err != nil {
		return OrderEvent{}, &DownstreamServiceError{Service: "bus:" + TopicOrderCreated, Err: err}
	}

	n := Notification{
		Source: in.Source,
		Type:   EventCatalogChanged,
		ID:     uuid.NewString(),
		Time:   in.now(),
		Data:   msg.Value,
	}
	note, err := kafkax.NewJSONMessage(PartitionKey(ev.PaymentID), EventCatalogChanged, n)
	if err != nil {
		return OrderEvent{}, err
	}
	if err := in.Catalog.Publish(ctx, note); err != nil {
		return OrderEvent{}, &DownstreamServiceError{Service: "bus:" + TopicCatalogChanges, Err: err}
	}

	if in.Log != nil {
		in.Log.Info("order published",
			zap.String("payment_id", ev.PaymentID),
			zap.Int("lines", len(ev.OrderLines)),
			zap.String("notification_id", n.ID))
	}
	return ev, nil
}

func (in *Ingress) now() time.Time {
	if in.Now != nil {
		return in.Now().UTC()
	}
	return time.Now().UTC()
}
