package transport

import (
	"context"
	"errors"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/webshopx/fulfillment/internal/orders"
	"slices"
	"sort"
	"sync"
	"time"
)

type key struct{ partition, paymentID string }

// memoryStore is a last-writer-wins table with call counting.
type memoryStore struct {
	mu      sync.Mutex
	rows    map[key]StatusRecord
	upserts int
	err     error
}

func newMemoryStore(recs ...StatusRecord) *memoryStore {
	s := &memoryStore{rows: map[key]StatusRecord{}}
	for _, r := range recs {
		s.rows[key{r.PartitionKey, r.PaymentID}] = r
	}
	return s
}

func (s *memoryStore) UpdateOrderStatus(_ context.Context, r StatusRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if s.err != nil {
		return s.err
	}
	s.rows[key{r.PartitionKey, r.PaymentID}] = r
	return nil
}

func (s *memoryStore) AgedRecords(_ context.Context, partition string, olderThan time.Time, statuses []string) ([]StatusRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []StatusRecord
	for k, r := range s.rows {
		if k.partition == partition && r.LastUpdated.Before(olderThan) && slices.Contains(statuses, r.Status) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaymentID < out[j].PaymentID })
	return out, nil
}

func (s *memoryStore) get(partition, paymentID string) (StatusRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[key{partition, paymentID}]
	return r, ok
}

type batchPublisher struct {
	mu      sync.Mutex
	batches [][]kafkago.Message
	failOn  int // 1-based batch number that fails; 0 = never
}

func (p *batchPublisher) Publish(_ context.Context, msgs ...kafkago.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn == len(p.batches)+1 {
		return errors.New("broker unavailable")
	}
	p.batches = append(p.batches, msgs)
	return nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	updates map[string]orders.Status
	err     error
}

func (n *recordingNotifier) UpdateStatus(_ context.Context, paymentID string, status orders.Status) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.updates == nil {
		n.updates = map[string]orders.Status{}
	}
	n.updates[paymentID] = status
	return n.err
}

type recordingInvalidator struct {
	mu   sync.Mutex
	keys []string
}

func (r *recordingInvalidator) Remove(_ context.Context, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
}
