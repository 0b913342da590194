package httpx

import (
	"encoding/json"
	"errors"
	"github.com/webshopx/fulfillment/internal/logger"
	"github.com/webshopx/fulfillment/internal/orders"
	"go.uber.org/zap"
	"net/http"
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *orders.ValidationError
		ds *orders.DownstreamServiceError
		ct *orders.CacheTransientError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Error(), Field: ve.Field})
	case errors.As(err, &ds):
		logger.FromContext(r.Context()).Warn("downstream failure", zap.String("error_kind", orders.Kind(err)), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "upstream service unavailable"})
	case errors.As(err, &ct):
		logger.FromContext(r.Context()).Warn("cache failure", zap.String("error_kind", orders.Kind(err)), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "cache unavailable"})
	default:
		logger.FromContext(r.Context()).Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return &orders.ValidationError{Field: "body", Reason: "is not valid json"}
	}
	return nil
}
