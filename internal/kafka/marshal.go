package kafka

import (
	"encoding/json"
	"fmt"
	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"

	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
	HeaderError             = "x-error"
	HeaderDeliveryCount     = "x-delivery-count"
)

// NewJSONMessage encodes v as the message value and tags it with the event type.
func NewJSONMessage(key []byte, eventType string, v any) (kafka.Message, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s: %w", eventType, err)
	}
	return kafka.Message{
		Key:   key,
		Value: b,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(eventType)},
			{Key: HeaderEventVersion, Value: []byte("1")},
		},
	}, nil
}

// HeaderValue returns the last value of header key, or "".
func HeaderValue(m kafka.Message, key string) string {
	v := ""
	for _, h := range m.Headers {
		if h.Key == key {
			v = string(h.Value)
		}
	}
	return v
}
