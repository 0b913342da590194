package kafka

import (
	"context"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"time"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes to a single topic synchronously so callers see failures.
type Producer struct {
	w     messageWriter
	topic string
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
		topic: topic,
	}
}

// NewDeadLetterProducer routes each message by its own Topic field, so one
// writer serves every subscription of a binary.
func NewDeadLetterProducer(brokers []string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}
}

// DeadLetterTopic is where a subscription parks messages it gave up on.
func DeadLetterTopic(topic string) string { return topic + ".dlt" }

// NewProducerWithWriter is used by tests and by callers sharing a writer.
func NewProducerWithWriter(w messageWriter, topic string) *Producer {
	return &Producer{w: w, topic: topic}
}

func (p *Producer) Topic() string { return p.topic }

// Publish stamps trace context and time on every message and writes them as
// one batch.
func (p *Producer) Publish(ctx context.Context, msgs ...kafka.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	prop := otel.GetTextMapPropagator()
	now := time.Now()
	for i := range msgs {
		prop.Inject(ctx, HeaderCarrier{Headers: &msgs[i].Headers})
		if msgs[i].Time.IsZero() {
			msgs[i].Time = now
		}
	}
	return p.w.WriteMessages(ctx, msgs...)
}

func (p *Producer) Close() error { return p.w.Close() }
