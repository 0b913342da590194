package catalog

import (
	"context"
	"github.com/webshopx/fulfillment/internal/orders"
	"go.uber.org/zap"
	"time"
)

type RecentSource interface {
	UpdatedLastHour(ctx context.Context) ([]orders.Product, error)
}

// RefreshSweep copies recently changed catalog entries into the cache.
type RefreshSweep struct {
	Source RecentSource
	Cache  *ProductCache
	Log    *zap.Logger
}

func (r *RefreshSweep) Run(ctx context.Context) error {
	start := time.Now()
	ps, err := r.Source.UpdatedLastHour(ctx)
	if err != nil {
		return &orders.DownstreamServiceError{Service: "catalog", Err: err}
	}
	n := r.Cache.PutAll(ctx, ps)
	if r.Log != nil {
		r.Log.Info("catalog refresh done",
			zap.Int("fetched", len(ps)),
			zap.Int("cached", n),
			zap.Duration("took", time.Since(start)))
	}
	return nil
}
