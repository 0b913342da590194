package transport

import (
	"context"
	"errors"
	"fmt"
	"github.com/jackc/pgx/v5"
	"github.com/webshopx/fulfillment/internal/orders"
	"github.com/webshopx/fulfillment/internal/postgres"
	"time"
)

var ErrNotFound = errors.New("status record not found")

// StatusRecord is one row of transport_status, keyed by carrier partition
// and payment id.
type StatusRecord struct {
	PartitionKey    string    `json:"partitionKey"`
	PaymentID       string    `json:"paymentId"`
	Status          string    `json:"status"`
	CustomerName    string    `json:"customerName"`
	CustomerEmail   string    `json:"customerEmail"`
	CustomerAddress string    `json:"customerAddress"`
	LastUpdated     time.Time `json:"lastUpdated"`
}

// FromEvent maps an order event onto the carrier partition.
func FromEvent(partition string, ev orders.OrderEvent, now time.Time) StatusRecord {
	return StatusRecord{
		PartitionKey:    partition,
		PaymentID:       ev.PaymentID,
		Status:          ev.Status,
		CustomerName:    ev.Customer.Name,
		CustomerEmail:   ev.Customer.Email,
		CustomerAddress: ev.Customer.Address,
		LastUpdated:     now.UTC(),
	}
}

// Event is the status-changed message the sweep publishes for r.
func (r StatusRecord) Event() orders.OrderEvent {
	return orders.OrderEvent{
		Status:    r.Status,
		PaymentID: r.PaymentID,
		Customer: orders.Customer{
			Name:    r.CustomerName,
			Address: r.CustomerAddress,
			Email:   r.CustomerEmail,
		},
	}
}

type StatusStore struct{ DB postgres.DB }

// UpdateOrderStatus replaces the whole row (last writer wins).
func (s *StatusStore) UpdateOrderStatus(ctx context.Context, r StatusRecord) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO transport_status(partition_key, row_key, status, customer_name, customer_email, customer_address, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (partition_key, row_key) DO UPDATE SET
			status = EXCLUDED.status,
			customer_name = EXCLUDED.customer_name,
			customer_email = EXCLUDED.customer_email,
			customer_address = EXCLUDED.customer_address,
			last_updated = EXCLUDED.last_updated`,
		r.PartitionKey, r.PaymentID, r.Status, r.CustomerName, r.CustomerEmail, r.CustomerAddress, r.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("upsert transport status %s/%s: %w", r.PartitionKey, r.PaymentID, err)
	}
	return nil
}

const selectColumns = `SELECT partition_key, row_key, status, customer_name, customer_email, customer_address, last_updated
		FROM transport_status`

func (s *StatusStore) Get(ctx context.Context, partition, paymentID string) (StatusRecord, error) {
	var r StatusRecord
	err := s.DB.QueryRow(ctx, selectColumns+` WHERE partition_key=$1 AND row_key=$2`, partition, paymentID).
		Scan(&r.PartitionKey, &r.PaymentID, &r.Status, &r.CustomerName, &r.CustomerEmail, &r.CustomerAddress, &r.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return StatusRecord{}, ErrNotFound
	}
	return r, err
}

// AgedRecords lists records of partition not touched since olderThan whose
// status is one of statuses, oldest first.
func (s *StatusStore) AgedRecords(ctx context.Context, partition string, olderThan time.Time, statuses []string) ([]StatusRecord, error) {
	rows, err := s.DB.Query(ctx, selectColumns+`
		WHERE partition_key=$1 AND last_updated < $2 AND status = ANY($3)
		ORDER BY last_updated`, partition, olderThan, statuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatusRecord
	for rows.Next() {
		var r StatusRecord
		if err := rows.Scan(&r.PartitionKey, &r.PaymentID, &r.Status, &r.CustomerName, &r.CustomerEmail, &r.CustomerAddress, &r.LastUpdated); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
