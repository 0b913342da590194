package httpx

import (
	"context"
	"errors"
	"github.com/go-chi/chi/v5"
	"github.com/webshopx/fulfillment/internal/cache"
	"github.com/webshopx/fulfillment/internal/logger"
	"github.com/webshopx/fulfillment/internal/orders"
	"github.com/webshopx/fulfillment/internal/redisx"
	"github.com/webshopx/fulfillment/internal/transport"
	"go.uber.org/zap"
	"net/http"
	"time"
)

type OrderSubmitter interface {
	Submit(ctx context.Context, req orders.CreateOrderRequest) (orders.OrderEvent, error)
}

type StatusReader interface {
	Get(ctx context.Context, partition, paymentID string) (transport.StatusRecord, error)
}

type OrdersHandler struct {
	Ingress   OrderSubmitter
	Status    StatusReader
	Cache     *cache.Store
	Partition string
	StatusTTL time.Duration
}

type CreateOrderResp struct {
	PaymentID string `json:"paymentId"`
	Status    string `json:"status"`
}

type StatusResp struct {
	PaymentID   string    `json:"paymentId"`
	Status      string    `json:"status"`
	LastUpdated time.Time `json:"lastUpdated"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{paymentId}/status", h.getStatus)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.CreateOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ev, err := h.Ingress.Submit(ctx, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, CreateOrderResp{PaymentID: ev.PaymentID, Status: ev.Status})
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) cache
	key := redisx.OrderStatusKey(paymentID)
	var resp StatusResp
	if h.Cache != nil && h.Cache.GetJSON(ctx, key, &resp) {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	// 2) status store
	rec, err := h.Status.Get(ctx, h.Partition, paymentID)
	if errors.Is(err, transport.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
		return
	}
	if err != nil {
		writeError(w, r, &orders.DownstreamServiceError{Service: "status-store", Err: err})
		return
	}
	resp = StatusResp{PaymentID: rec.PaymentID, Status: rec.Status, LastUpdated: rec.LastUpdated.UTC()}
	if h.Cache != nil {
		ttl := h.StatusTTL
		if ttl <= 0 {
			ttl = redisx.TTLStatusCache
		}
		if err := h.Cache.SetJSON(ctx, key, resp, ttl); err != nil {
			logger.FromContext(ctx).Warn("status not cached", zap.String("payment_id", paymentID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
