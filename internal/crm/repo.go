package crm

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/webshopx/fulfillment/internal/orders"
	"github.com/webshopx/fulfillment/internal/postgres"
)

var (
	ErrAlreadyExists = errors.New("order already exists")
	ErrNotFound      = errors.New("order not found")
)

// RecordRepo owns customers, orders and order_lines.
type RecordRepo struct{ DB postgres.DB }

// CreateOrder stores customer, order and lines in one transaction with
// status OrderReceived. It is idempotent on payment_id: a second call for the
// same payment returns ErrAlreadyExists and writes nothing.
func (r *RecordRepo) CreateOrder(ctx context.Context, ev orders.OrderEvent) (orderID string, err error) {
	row := r.DB.QueryRow(ctx, `SELECT id FROM orders WHERE payment_id=$1`, ev.PaymentID)
	if err = row.Scan(&orderID); err == nil {
		return orderID, ErrAlreadyExists
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("lookup order %s: %w", ev.PaymentID, err)
	}

	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	customerID := uuid.NewString()
	if _, err = tx.Exec(ctx, `
		INSERT INTO customers(id, name, email, address)
		VALUES ($1, $2, $3, $4)`,
		customerID, ev.Customer.Name, ev.Customer.Email, ev.Customer.Address,
	); err != nil {
		return "", fmt.Errorf("insert customer: %w", err)
	}

	orderID = uuid.NewString()
	tag, err := tx.Exec(ctx, `
		INSERT INTO orders(id, payment_id, customer_id, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (payment_id) DO NOTHING`,
		orderID, ev.PaymentID, customerID, string(orders.StatusOrderReceived),
	)
	if err != nil {
		return "", fmt.Errorf("insert order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// lost a race with a concurrent delivery of the same payment
		return "", ErrAlreadyExists
	}

	for _, l := range ev.OrderLines {
		if _, err = tx.Exec(ctx, `
			INSERT INTO order_lines(order_id, product_id, item_count)
			VALUES ($1, $2, $3)`,
			orderID, l.ProductID, l.ItemCount,
		); err != nil {
			return "", fmt.Errorf("insert line %s: %w", l.ProductID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return orderID, nil
}

// UpdateStatus moves the stored order to status.
func (r *RecordRepo) UpdateStatus(ctx context.Context, paymentID string, status orders.Status) error {
	tag, err := r.DB.Exec(ctx,
		`UPDATE orders SET status=$2, updated_at=now() WHERE payment_id=$1`,
		paymentID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RecordRepo) GetStatus(ctx context.Context, paymentID string) (orders.Status, error) {
	var s string
	err := r.DB.QueryRow(ctx, `SELECT status FROM orders WHERE payment_id=$1`, paymentID).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return orders.Status(s), nil
}
