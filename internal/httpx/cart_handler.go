package httpx

import (
	"github.com/go-chi/chi/v5"
	"github.com/webshopx/fulfillment/internal/cart"
	"net/http"
)

type CartHandler struct {
	Cart *cart.Service
}

func (h *CartHandler) Register(r chi.Router) {
	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.get)
		r.Post("/add", h.add)
		r.Delete("/remove", h.remove)
		r.Delete("/clear", h.clear)
	})
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Cart.Get(r.Context(), r.URL.Query().Get("sessionId")))
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	var item cart.Item
	if err := decodeJSON(w, r, &item); err != nil {
		writeError(w, r, err)
		return
	}
	items, err := h.Cart.Add(r.Context(), r.URL.Query().Get("sessionId"), item)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := h.Cart.Remove(r.Context(), q.Get("sessionId"), q.Get("productId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	if err := h.Cart.Clear(r.Context(), r.URL.Query().Get("sessionId")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
