package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webshopx/fulfillment/internal/cache"
	"github.com/webshopx/fulfillment/internal/cart"
	"github.com/webshopx/fulfillment/internal/catalog"
	"github.com/webshopx/fulfillment/internal/config"
	"github.com/webshopx/fulfillment/internal/orders"
	"github.com/webshopx/fulfillment/internal/transport"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type fakeIngress struct {
	got orders.CreateOrderRequest
	err error
}

func (f *fakeIngress) Submit(_ context.Context, req orders.CreateOrderRequest) (orders.OrderEvent, error) {
	f.got = req
	if f.err != nil {
		return orders.OrderEvent{}, f.err
	}
	return orders.OrderEvent{PaymentID: req.PaymentID, Status: "Pending"}, nil
}

type fakeStatus struct {
	recs  map[string]transport.StatusRecord
	calls int
}

func (f *fakeStatus) Get(_ context.Context, partition, paymentID string) (transport.StatusRecord, error) {
	f.calls++
	r, ok := f.recs[partition+"/"+paymentID]
	if !ok {
		return transport.StatusRecord{}, transport.ErrNotFound
	}
	return r, nil
}

type fakeProducts struct {
	products  []orders.Product
	err       error
	createErr error
}

func (f *fakeProducts) Create(_ context.Context, p orders.Product) (orders.Product, error) {
	if f.createErr != nil {
		return orders.Product{}, f.createErr
	}
	p.ID = "new-1"
	f.products = append(f.products, p)
	return p, nil
}

func (f *fakeProducts) All(context.Context) ([]orders.Product, error) { return f.products, f.err }

func (f *fakeProducts) ByID(_ context.Context, id string) (orders.Product, error) {
	for _, p := range f.products {
		if p.ID == id {
			return p, nil
		}
	}
	return orders.Product{}, catalog.ErrNotFound
}

type testEnv struct {
	router  *chi.Mux
	mr      *miniredis.Miniredis
	ingress *fakeIngress
	status  *fakeStatus
	catalog *fakeProducts
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := cache.NewStore(cache.NewRedisBackend(rdb), config.CacheConfig{RetryAttempts: 1}, nil)

	env := &testEnv{
		router:  NewRouter(nil, time.Second),
		mr:      mr,
		ingress: &fakeIngress{},
		status:  &fakeStatus{recs: map[string]transport.StatusRecord{}},
		catalog: &fakeProducts{},
	}
	(&OrdersHandler{Ingress: env.ingress, Status: env.status, Cache: store, Partition: "DHL", StatusTTL: 5 * time.Minute}).Register(env.router)
	(&ProductsHandler{Products: env.catalog, Creator: env.catalog, AdminToken: "admin-secret"}).Register(env.router)
	(&CartHandler{Cart: cart.NewService(store, nil)}).Register(env.router)
	return env
}

func (e *testEnv) do(method, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, httptest.NewRequest(method, target, &buf))
	return rec
}

func TestCreateOrder(t *testing.T) {
	env := newEnv(t)
	req := orders.CreateOrderRequest{
		PaymentID: gofakeit.UUID(),
		Customer:  orders.CustomerRequest{Name: gofakeit.Name(), Address: gofakeit.Street(), Email: gofakeit.Email()},
		OrderLines: []orders.OrderLine{{ProductID: "A", ItemCount: 2}},
	}

	rec := env.do(http.MethodPost, "/orders", req)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp CreateOrderResp
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, req.PaymentID, resp.PaymentID)
	assert.Equal(t, "Pending", resp.Status)
	assert.Equal(t, req, env.ingress.got)
}

func TestCreateOrder_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		code int
	}{
		{"bad json", `{`, nil, http.StatusBadRequest},
		{"validation", `{}`, &orders.ValidationError{Field: "paymentId", Reason: "failed required"}, http.StatusBadRequest},
		{"bus down", `{}`, &orders.DownstreamServiceError{Service: "bus:orders.created", Err: errors.New("no leader")}, http.StatusBadGateway},
		{"unexpected", `{}`, errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(t)
			env.ingress.err = tt.err
			rec := env.do(http.MethodPost, "/orders", tt.body)
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestGetStatus_CacheAside(t *testing.T) {
	env := newEnv(t)
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	env.status.recs["DHL/pay-1"] = transport.StatusRecord{PartitionKey: "DHL", PaymentID: "pay-1", Status: "ReadyForPickup", LastUpdated: at}

	rec := env.do(http.MethodGet, "/orders/pay-1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"paymentId":"pay-1","status":"ReadyForPickup","lastUpdated":"2024-05-01T10:00:00Z"}`, rec.Body.String())
	assert.True(t, env.mr.Exists("order_status:pay-1"))
	assert.Equal(t, 5*time.Minute, env.mr.TTL("order_status:pay-1"))

	rec = env.do(http.MethodGet, "/orders/pay-1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.status.calls, "second read served from cache")

	rec = env.do(http.MethodGet, "/orders/unknown/status", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProducts(t *testing.T) {
	env := newEnv(t)

	rec := env.do(http.MethodGet, "/products", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String(), "always an array")

	env.catalog.products = []orders.Product{{ID: "A", Name: "Mug", Price: 900, Stock: 3}}
	rec = env.do(http.MethodGet, "/products/A", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"A","name":"Mug","price":900,"stock":3,"updatedAt":"0001-01-01T00:00:00Z"}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/products/Z", nil).Code)

	env.catalog.err = &orders.DownstreamServiceError{Service: "catalog", Err: errors.New("timeout")}
	assert.Equal(t, http.StatusBadGateway, env.do(http.MethodGet, "/products", nil).Code)
}

func TestCreateProduct_AdminOnly(t *testing.T) {
	env := newEnv(t)
	post := func(auth, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/products", strings.NewReader(body))
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		return rec
	}
	body := `{"name":"Mug","price":900,"stock":4}`

	assert.Equal(t, http.StatusUnauthorized, post("", body).Code)
	assert.Equal(t, http.StatusForbidden, post("Bearer wrong", body).Code)
	assert.Empty(t, env.catalog.products)

	rec := post("Bearer admin-secret", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"new-1","name":"Mug","price":900,"stock":4,"updatedAt":"0001-01-01T00:00:00Z"}`, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, post("Bearer admin-secret", `{`).Code)

	env.catalog.createErr = &catalog.StatusError{Method: http.MethodPost, Path: "/products", Code: http.StatusConflict, Body: "duplicate"}
	rec = post("Bearer admin-secret", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "duplicate")

	env.catalog.createErr = &orders.DownstreamServiceError{Service: "catalog", Err: errors.New("reset")}
	assert.Equal(t, http.StatusBadGateway, post("Bearer admin-secret", body).Code)
}

func TestCartEndpoints(t *testing.T) {
	env := newEnv(t)

	rec := env.do(http.MethodPost, "/cart/add?sessionId=s1", cart.Item{ProductID: "A", ProductName: "Mug", Quantity: 1, Price: 900})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(http.MethodPost, "/cart/add?sessionId=s1", cart.Item{ProductID: "A", Quantity: 2})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/cart?sessionId=s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var items []cart.Item
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&items))
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)

	rec = env.do(http.MethodDelete, "/cart/remove?sessionId=s1&productId=A", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	assert.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/cart/clear?sessionId=s1", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/cart/add", cart.Item{ProductID: "A"}).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/cart/add?sessionId=s1", "nope").Code)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newEnv(t)
	rec := env.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = env.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "go_goroutines"))
}
