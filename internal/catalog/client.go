package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/webshopx/fulfillment/internal/config"
	"github.com/webshopx/fulfillment/internal/orders"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

var ErrNotFound = errors.New("product not found")

// StatusError is a non-2xx answer from the catalog service. The request
// reached the service, so callers treat it as a business outcome.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Client talks to the catalog (PIM) service.
type Client struct {
	base    string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

func NewClient(cfg config.CatalogConfig, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		base:  strings.TrimRight(cfg.BaseURL, "/"),
		token: cfg.AuthToken,
		http:  &http.Client{Timeout: cfg.Timeout},
		log:   log.Named("catalog"),
	}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c
}

// UpdateStock asks the catalog to take count units of productID out of
// stock. The catalog refuses to go below zero. The returned product is nil
// when the service answers without a body.
func (c *Client) UpdateStock(ctx context.Context, productID string, count int) (*orders.Product, error) {
	q := url.Values{"stockCount": {strconv.Itoa(count)}}
	body, err := c.do(ctx, http.MethodPut, "/products/"+url.PathEscape(productID)+"/stock", q, nil)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil
	}
	var p orders.Product
	if err := json.Unmarshal(body, &p); err != nil || p.ID == "" {
		c.log.Debug("stock response carried no product", zap.String("product_id", productID))
		return nil, nil
	}
	return &p, nil
}

func (c *Client) UpdatedLastHour(ctx context.Context) ([]orders.Product, error) {
	return c.list(ctx, "/products/updated-last-hour")
}

func (c *Client) All(ctx context.Context) ([]orders.Product, error) {
	return c.list(ctx, "/products")
}

func (c *Client) Product(ctx context.Context, id string) (orders.Product, error) {
	body, err := c.do(ctx, http.MethodGet, "/products/"+url.PathEscape(id), nil, nil)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return orders.Product{}, ErrNotFound
	}
	if err != nil {
		return orders.Product{}, err
	}
	var p orders.Product
	if err := json.Unmarshal(body, &p); err != nil {
		return orders.Product{}, fmt.Errorf("decode product %s: %w", id, err)
	}
	return p, nil
}

// CreateProduct registers a new product; the catalog assigns the id.
func (c *Client) CreateProduct(ctx context.Context, p orders.Product) (orders.Product, error) {
	body, err := c.do(ctx, http.MethodPost, "/products", nil, p)
	if err != nil {
		return orders.Product{}, err
	}
	var created orders.Product
	if err := json.Unmarshal(body, &created); err != nil {
		return orders.Product{}, fmt.Errorf("decode created product: %w", err)
	}
	return created, nil
}

func (c *Client) list(ctx context.Context, path string) ([]orders.Product, error) {
	body, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	var ps []orders.Product
	if err := json.Unmarshal(body, &ps); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return ps, nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, payload any) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var rd io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}
