package catalog

import (
	"context"
	"errors"
	"github.com/webshopx/fulfillment/internal/cache"
	"github.com/webshopx/fulfillment/internal/orders"
	"github.com/webshopx/fulfillment/internal/redisx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"sort"
	"strings"
	"time"
)

// Source is the authoritative product read side; *Client implements it.
type Source interface {
	All(ctx context.Context) ([]orders.Product, error)
	Product(ctx context.Context, id string) (orders.Product, error)
	CreateProduct(ctx context.Context, p orders.Product) (orders.Product, error)
}

// ProductCache serves product reads from product:<id> entries and falls
// back to the catalog on a miss.
type ProductCache struct {
	store *cache.Store
	src   Source
	ttl   time.Duration
	log   *zap.Logger
	group singleflight.Group
}

func NewProductCache(store *cache.Store, src Source, ttl time.Duration, log *zap.Logger) *ProductCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProductCache{store: store, src: src, ttl: ttl, log: log.Named("products")}
}

// All returns every cached product; an empty cache triggers one shared
// catalog fetch whose result is written back.
func (pc *ProductCache) All(ctx context.Context) ([]orders.Product, error) {
	cached, err := cache.ScanInto[orders.Product](ctx, pc.store, redisx.PrefixProduct)
	if err != nil {
		pc.log.Warn("product scan failed, reading catalog", zap.Error(err))
	}
	if len(cached) > 0 {
		sortByID(cached)
		return cached, nil
	}

	v, err, _ := pc.group.Do("all", func() (any, error) {
		// shared by every waiter, so one caller going away must not fail the rest
		ctx := context.WithoutCancel(ctx)
		ps, err := pc.src.All(ctx)
		if err != nil {
			return nil, &orders.DownstreamServiceError{Service: "catalog", Err: err}
		}
		pc.PutAll(ctx, ps)
		return ps, nil
	})
	if err != nil {
		return nil, err
	}
	ps := append([]orders.Product(nil), v.([]orders.Product)...)
	sortByID(ps)
	return ps, nil
}

func (pc *ProductCache) ByID(ctx context.Context, id string) (orders.Product, error) {
	var p orders.Product
	if pc.store.GetJSON(ctx, redisx.ProductKey(id), &p) {
		return p, nil
	}

	v, err, _ := pc.group.Do("id:"+id, func() (any, error) {
		ctx := context.WithoutCancel(ctx)
		p, err := pc.src.Product(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, err
			}
			return nil, &orders.DownstreamServiceError{Service: "catalog", Err: err}
		}
		if err := pc.Put(ctx, p); err != nil {
			pc.log.Warn("product not cached", zap.String("product_id", id), zap.Error(err))
		}
		return p, nil
	})
	if err != nil {
		return orders.Product{}, err
	}
	return v.(orders.Product), nil
}

// Create forwards a new product to the catalog and caches what it returns.
// A catalog refusal comes back as *StatusError; a transport failure as
// *orders.DownstreamServiceError.
func (pc *ProductCache) Create(ctx context.Context, p orders.Product) (orders.Product, error) {
	p.Name = strings.TrimSpace(p.Name)
	switch {
	case p.Name == "":
		return orders.Product{}, &orders.ValidationError{Field: "name", Reason: "is required"}
	case p.Price < 0:
		return orders.Product{}, &orders.ValidationError{Field: "price", Reason: "must not be negative"}
	case p.Stock < 0:
		return orders.Product{}, &orders.ValidationError{Field: "stock", Reason: "must not be negative"}
	}
	p.ID = ""

	created, err := pc.src.CreateProduct(ctx, p)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			return orders.Product{}, err
		}
		return orders.Product{}, &orders.DownstreamServiceError{Service: "catalog", Err: err}
	}
	pc.log.Info("product created", zap.String("product_id", created.ID), zap.String("name", created.Name))
	if created.ID == "" {
		return created, nil
	}
	if err := pc.Put(ctx, created); err != nil {
		pc.log.Warn("product not cached", zap.String("product_id", created.ID), zap.Error(err))
	}
	return created, nil
}

func (pc *ProductCache) Put(ctx context.Context, p orders.Product) error {
	return pc.store.SetJSON(ctx, redisx.ProductKey(p.ID), p, pc.ttl)
}

// PutAll caches each product with a single attempt per key and returns how
// many were written. Bulk population is a hint, so it stops at the first
// transient cache failure instead of retrying every key.
func (pc *ProductCache) PutAll(ctx context.Context, ps []orders.Product) int {
	n := 0
	for i, p := range ps {
		if p.ID == "" {
			continue
		}
		err := pc.store.SetJSONOnce(ctx, redisx.ProductKey(p.ID), p, pc.ttl)
		var ct *orders.CacheTransientError
		switch {
		case errors.As(err, &ct):
			pc.log.Warn("cache unavailable, product population stopped",
				zap.Int("cached", n), zap.Int("skipped", len(ps)-i), zap.Error(err))
			return n
		case err != nil:
			pc.log.Warn("product not cached", zap.String("product_id", p.ID), zap.Error(err))
			continue
		}
		n++
	}
	return n
}

func sortByID(ps []orders.Product) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
}
