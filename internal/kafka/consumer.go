package kafka

import (
	"context"
	"errors"
	"fmt"
	"github.com/segmentio/kafka-go"
	"github.com/webshopx/fulfillment/internal/config"
	"github.com/webshopx/fulfillment/internal/logger"
	"github.com/webshopx/fulfillment/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"strconv"
	"sync"
	"time"
)

// Handler returns nil when the message is processed. A non-nil error is
// either dropped or redelivered depending on Options.Retryable.
type Handler func(ctx context.Context, m kafka.Message) error

// Reader is the subset of *kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DeadLetterPublisher receives messages whose redeliveries are exhausted.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, msgs ...kafka.Message) error
}

type Options struct {
	Name           string // subscription name for logs and metrics
	Workers        int
	MaxDeliveries  int
	RetryBackoff   time.Duration
	HandlerTimeout time.Duration
	Retryable      func(error) bool
	DeadLetter     DeadLetterPublisher
	Logger         *zap.Logger
}

// OptionsFromConfig fills the tuning shared by every subscription; callers
// add Retryable, DeadLetter and Logger.
func OptionsFromConfig(name string, cfg config.KafkaConfig) Options {
	return Options{
		Name:           name,
		Workers:        cfg.Workers,
		MaxDeliveries:  cfg.MaxDeliveries,
		RetryBackoff:   cfg.RetryBackoff,
		HandlerTimeout: cfg.HandlerTimeout,
	}
}

type Consumer struct {
	r    Reader
	opts Options
	log  *zap.Logger
}

// NewConsumer joins group on one or more topics.
func NewConsumer(brokers []string, group string, topics []string, opts Options) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	}
	if len(topics) == 1 {
		cfg.Topic = topics[0]
	} else {
		cfg.GroupTopics = topics
	}
	return NewConsumerWithReader(kafka.NewReader(cfg), opts)
}

func NewConsumerWithReader(r Reader, opts Options) *Consumer {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MaxDeliveries <= 0 {
		opts.MaxDeliveries = 1
	}
	if opts.Retryable == nil {
		opts.Retryable = func(error) bool { return false }
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Consumer{r: r, opts: opts, log: opts.Logger.With(zap.String("subscription", opts.Name))}
}

// ErrPartitionStalled is returned by Start when a message could neither be
// handled nor dead-lettered. Its offset stays uncommitted, so the group
// redelivers it after a restart.
var ErrPartitionStalled = errors.New("partition stalled")

// Start blocks until ctx is cancelled or the reader fails, then waits for
// in-flight messages and closes the reader. Each partition is pinned to one
// worker so its offsets are handled and committed in order.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	lanes := make([]chan kafka.Message, c.opts.Workers)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 1)
		wg.Add(1)
		go func(jobs <-chan kafka.Message) {
			defer wg.Done()
			for m := range jobs {
				// once stopping, later offsets stay uncommitted behind the earlier ones
				if ctx.Err() != nil {
					continue
				}
				if err := c.process(ctx, h, m); err != nil {
					cancel(err)
				}
			}
		}(lanes[i])
	}
	defer wg.Wait()
	defer func() {
		for _, jobs := range lanes {
			close(jobs)
		}
	}()

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return stopCause(ctx)
			}
			return err
		}
		select {
		case lanes[lane(m.Partition, len(lanes))] <- m:
		case <-ctx.Done():
			return stopCause(ctx)
		}
	}
}

func lane(partition, n int) int {
	if partition < 0 {
		partition = -partition
	}
	return partition % n
}

// stopCause hides plain shutdown and surfaces a stalled partition.
func stopCause(ctx context.Context) error {
	if err := context.Cause(ctx); errors.Is(err, ErrPartitionStalled) {
		return err
	}
	return nil
}

// process handles m until it is committed, dead-lettered, or abandoned
// because ctx ended. A non-nil error means the partition cannot move on.
func (c *Consumer) process(ctx context.Context, h Handler, m kafka.Message) error {
	start := time.Now()
	defer func() {
		metrics.HandlerDuration.WithLabelValues(c.opts.Name).Observe(time.Since(start).Seconds())
	}()

	ctx = otel.GetTextMapPropagator().Extract(ctx, HeaderCarrier{Headers: &m.Headers})
	log := logger.WithTrace(ctx, c.log).With(
		zap.String("topic", m.Topic),
		zap.Int("partition", m.Partition),
		zap.Int64("offset", m.Offset),
	)
	ctx = logger.WithContext(ctx, log)

	for attempt := 1; ; attempt++ {
		err := c.invoke(ctx, h, m)
		if err == nil {
			metrics.MessagesTotal.WithLabelValues(c.opts.Name, metrics.OutcomeProcessed).Inc()
			break
		}
		if ctx.Err() != nil {
			// shutting down mid-handle; leave it for the next owner
			return nil
		}
		if !c.opts.Retryable(err) {
			metrics.MessagesTotal.WithLabelValues(c.opts.Name, metrics.OutcomeDropped).Inc()
			log.Debug("message dropped", zap.Error(err))
			break
		}
		if attempt >= c.opts.MaxDeliveries {
			if dlErr := c.deadLetter(ctx, m, err, attempt); dlErr != nil {
				log.Error("dead-letter publish failed", zap.Error(dlErr), zap.NamedError("cause", err))
				return fmt.Errorf("%w: %s[%d]@%d: %w", ErrPartitionStalled, m.Topic, m.Partition, m.Offset, dlErr)
			}
			metrics.MessagesTotal.WithLabelValues(c.opts.Name, metrics.OutcomeDeadLetters).Inc()
			log.Error("message dead-lettered", zap.Error(err), zap.Int("deliveries", attempt))
			break
		}
		metrics.MessagesTotal.WithLabelValues(c.opts.Name, metrics.OutcomeRetried).Inc()
		log.Warn("redelivering message", zap.Error(err), zap.Int("attempt", attempt))
		if !sleep(ctx, c.opts.RetryBackoff) {
			return nil
		}
	}

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.r.CommitMessages(commitCtx, m); err != nil {
		log.Error("commit failed", zap.Error(err))
	}
	return nil
}

func (c *Consumer) invoke(ctx context.Context, h Handler, m kafka.Message) error {
	if c.opts.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.HandlerTimeout)
		defer cancel()
	}
	return h(ctx, m)
}

func (c *Consumer) deadLetter(ctx context.Context, m kafka.Message, cause error, deliveries int) error {
	if c.opts.DeadLetter == nil {
		return nil
	}
	headers := make([]kafka.Header, 0, len(m.Headers)+5)
	headers = append(headers, m.Headers...)
	headers = append(headers,
		kafka.Header{Key: HeaderOriginalTopic, Value: []byte(m.Topic)},
		kafka.Header{Key: HeaderOriginalPartition, Value: []byte(strconv.Itoa(m.Partition))},
		kafka.Header{Key: HeaderOriginalOffset, Value: []byte(strconv.FormatInt(m.Offset, 10))},
		kafka.Header{Key: HeaderError, Value: []byte(cause.Error())},
		kafka.Header{Key: HeaderDeliveryCount, Value: []byte(strconv.Itoa(deliveries))},
	)
	metrics.DeadLettersTotal.WithLabelValues(m.Topic).Inc()
	return c.opts.DeadLetter.Publish(context.WithoutCancel(ctx), kafka.Message{
		Topic:   DeadLetterTopic(m.Topic),
		Key:     m.Key,
		Value:   m.Value,
		Headers: headers,
	})
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
