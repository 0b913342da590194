package orders

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventCatalogChanged     = "CatalogChanged"
)

// Notification is the generic envelope on the catalog topic. Data holds an
// OrderEvent; some publishers serialize it twice, so Data may be a JSON string.
type Notification struct {
	Source string          `json:"source"`
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Time   time.Time       `json:"time"`
	Data   json.RawMessage `json:"data"`
}

// DecodeOrderEvent parses a plain OrderEvent payload.
func DecodeOrderEvent(b []byte) (OrderEvent, error) {
	var ev OrderEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return OrderEvent{}, &DeserializationError{Err: err}
	}
	return ev, nil
}

// UnwrapData strips one level of string encoding when data arrives as
// "\"{...}\"" instead of "{...}".
func UnwrapData(data []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) >= 2 && trimmed[0] == '"' && trimmed[len(trimmed)-1] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return nil, &DeserializationError{Err: fmt.Errorf("unwrap quoted data: %w", err)}
		}
		return []byte(inner), nil
	}
	return trimmed, nil
}

// DecodeNotification parses the envelope and the OrderEvent inside it.
func DecodeNotification(b []byte) (Notification, OrderEvent, error) {
	var n Notification
	if err := json.Unmarshal(b, &n); err != nil {
		return Notification{}, OrderEvent{}, &DeserializationError{Err: err}
	}
	if len(n.Data) == 0 {
		return n, OrderEvent{}, &DeserializationError{Err: fmt.Errorf("notification %q has no data", n.ID)}
	}
	data, err := UnwrapData(n.Data)
	if err != nil {
		return n, OrderEvent{}, err
	}
	ev, err := DecodeOrderEvent(data)
	return n, ev, err
}
