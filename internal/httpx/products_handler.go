package httpx

import (
	"context"
	"crypto/subtle"
	"errors"
	"github.com/go-chi/chi/v5"
	"github.com/webshopx/fulfillment/internal/catalog"
	"github.com/webshopx/fulfillment/internal/orders"
	"net/http"
	"strings"
)

type ProductReader interface {
	All(ctx context.Context) ([]orders.Product, error)
	ByID(ctx context.Context, id string) (orders.Product, error)
}

type ProductCreator interface {
	Create(ctx context.Context, p orders.Product) (orders.Product, error)
}

type ProductsHandler struct {
	Products ProductReader
	// Creator enables POST /products, guarded by AdminToken.
	Creator    ProductCreator
	AdminToken string
}

func (h *ProductsHandler) Register(r chi.Router) {
	r.Get("/products", h.list)
	r.Get("/products/{id}", h.get)
	if h.Creator != nil {
		r.With(requireBearer(h.AdminToken)).Post("/products", h.create)
	}
}

// requireBearer admits requests carrying "Authorization: Bearer <token>".
// An empty token admits nobody.
func requireBearer(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || got == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing bearer token"})
				return
			}
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeJSON(w, http.StatusForbidden, errorBody{Error: "admin only"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *ProductsHandler) list(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Products.All(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if ps == nil {
		ps = []orders.Product{}
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *ProductsHandler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.Products.ByID(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, catalog.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductsHandler) create(w http.ResponseWriter, r *http.Request) {
	var p orders.Product
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := h.Creator.Create(r.Context(), p)
	var se *catalog.StatusError
	if errors.As(err, &se) {
		writeJSON(w, se.Code, errorBody{Error: "product creation failed: " + se.Body})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, created)
}
