package transport

import (
	"context"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

var statusColumns = []string{"partition_key", "row_key", "status", "customer_name", "customer_email", "customer_address", "last_updated"}

func TestStatusStore_Upsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO transport_status(.|\n)*ON CONFLICT \(partition_key, row_key\) DO UPDATE`).
		WithArgs("DHL", "pay-1", "Pending", "Ada", "ada@example.com", "1 Loop", at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	s := &StatusStore{DB: mock}
	require.NoError(t, s.UpdateOrderStatus(context.Background(), StatusRecord{
		PartitionKey: "DHL", PaymentID: "pay-1", Status: "Pending",
		CustomerName: "Ada", CustomerEmail: "ada@example.com", CustomerAddress: "1 Loop",
		LastUpdated: at,
	}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusStore_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM transport_status\s+WHERE partition_key=\$1 AND row_key=\$2`).
		WithArgs("DHL", "pay-1").
		WillReturnRows(pgxmock.NewRows(statusColumns).AddRow("DHL", "pay-1", "Pending", "Ada", "a@x.io", "1 Loop", at))
	mock.ExpectQuery(`FROM transport_status`).
		WithArgs("DHL", "missing").
		WillReturnRows(pgxmock.NewRows(statusColumns))

	s := &StatusStore{DB: mock}
	rec, err := s.Get(context.Background(), "DHL", "pay-1")
	require.NoError(t, err)
	assert.Equal(t, "Pending", rec.Status)
	assert.Equal(t, at, rec.LastUpdated)

	_, err = s.Get(context.Background(), "DHL", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatusStore_AgedRecords(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cutoff := time.Date(2024, 5, 1, 11, 55, 0, 0, time.UTC)
	statuses := []string{"Pending", "OrderReceived"}
	mock.ExpectQuery(`last_updated < \$2 AND status = ANY\(\$3\)`).
		WithArgs("DHL", cutoff, statuses).
		WillReturnRows(pgxmock.NewRows(statusColumns).
			AddRow("DHL", "a", "Pending", "", "", "", cutoff.Add(-time.Hour)).
			AddRow("DHL", "b", "OrderReceived", "", "", "", cutoff.Add(-time.Minute)))

	recs, err := (&StatusStore{DB: mock}).AgedRecords(context.Background(), "DHL", cutoff, statuses)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].PaymentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
