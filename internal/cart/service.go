package cart

import (
	"context"
	"github.com/webshopx/fulfillment/internal/cache"
	"github.com/webshopx/fulfillment/internal/orders"
	"github.com/webshopx/fulfillment/internal/redisx"
	"go.uber.org/zap"
	"strings"
	"time"
)

type Item struct {
	ProductID   string `json:"productId" validate:"required"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity" validate:"gte=0"`
	Price       int    `json:"price" validate:"gte=0"`
}

// Service keeps shopping carts in the cache under cart:<sessionId>. Every
// write refreshes the TTL.
type Service struct {
	store *cache.Store
	ttl   time.Duration
	log   *zap.Logger
}

func NewService(store *cache.Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, ttl: redisx.TTLCart, log: log.Named("cart")}
}

// Get returns the cart in insertion order. Missing or corrupt carts are empty.
func (s *Service) Get(ctx context.Context, sessionID string) []Item {
	var items []Item
	if !s.store.GetJSON(ctx, redisx.CartKey(sessionID), &items) {
		return []Item{}
	}
	return items
}

// Add appends item, or increases the quantity if the product is already
// in the cart.
func (s *Service) Add(ctx context.Context, sessionID string, item Item) ([]Item, error) {
	if err := validSession(sessionID); err != nil {
		return nil, err
	}
	if err := orders.ValidateStruct(item); err != nil {
		return nil, err
	}

	items := s.Get(ctx, sessionID)
	found := false
	for i := range items {
		if items[i].ProductID == item.ProductID {
			found = true
			if item.Quantity == 0 {
				return items, nil
			}
			items[i].Quantity += item.Quantity
			break
		}
	}
	if !found {
		items = append(items, item)
	}
	if err := s.store.SetJSON(ctx, redisx.CartKey(sessionID), items, s.ttl); err != nil {
		return nil, err
	}
	return items, nil
}

// Remove drops productID from the cart; removing an absent product is a no-op.
func (s *Service) Remove(ctx context.Context, sessionID, productID string) ([]Item, error) {
	if err := validSession(sessionID); err != nil {
		return nil, err
	}
	items := s.Get(ctx, sessionID)
	kept := items[:0]
	for _, it := range items {
		if it.ProductID != productID {
			kept = append(kept, it)
		}
	}
	if len(kept) == len(items) {
		return kept, nil
	}
	if err := s.store.SetJSON(ctx, redisx.CartKey(sessionID), kept, s.ttl); err != nil {
		return nil, err
	}
	return kept, nil
}

func (s *Service) Clear(ctx context.Context, sessionID string) error {
	if err := validSession(sessionID); err != nil {
		return err
	}
	s.store.Remove(ctx, redisx.CartKey(sessionID))
	return nil
}

func validSession(id string) error {
	if strings.TrimSpace(id) == "" {
		return &orders.ValidationError{Field: "sessionId", Reason: "is required"}
	}
	return nil
}
