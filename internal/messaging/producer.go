// Package messaging publishes domain events to Kafka.
package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Niphilbert/e-Commerce-Backend/internal/domain/order"
)

var _ order.Publisher = (*Producer)(nil)

// DefaultOrderTopic carries order.created events.
const DefaultOrderTopic = "orders.created"

// writer is the subset of *kafka.Writer used by Producer.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ProducerOption configures a Producer.
type ProducerOption func(*Producer)

// WithTracerProvider sets the tracer provider used for send spans.
func WithTracerProvider(tp trace.TracerProvider) ProducerOption {
	return func(p *Producer) { p.tracer = tp.Tracer("messaging/producer") }
}

// WithPropagator sets the propagator that injects trace context into headers.
func WithPropagator(prop propagation.TextMapPropagator) ProducerOption {
	return func(p *Producer) { p.propagator = prop }
}

// Producer writes JSON events to one topic.
type Producer struct {
	w          writer
	topic      string
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// NewProducer creates a producer for topic on the given brokers.
func NewProducer(brokers []string, topic string, opts ...ProducerOption) *Producer {
	return newProducer(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           100 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
	}, topic, opts...)
}

func newProducer(w writer, topic string, opts ...ProducerOption) *Producer {
	p := &Producer{
		w:          w,
		topic:      topic,
		tracer:     noop.NewTracerProvider().Tracer("messaging/producer"),
		propagator: otel.GetTextMapPropagator(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Publish encodes event as JSON and writes it keyed by key, so all events of
// one key land on the same partition.
func (p *Producer) Publish(ctx context.Context, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}

	ctx, span := p.tracer.Start(ctx, "send "+p.topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationName("send"),
			semconv.MessagingOperationTypePublish,
			semconv.MessagingDestinationName(p.topic),
			semconv.MessagingKafkaMessageKey(key),
		),
	)
	defer span.End()

	p.propagator.Inject(ctx, headerCarrier{msg: &msg})

	if err := p.w.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return errors.Wrapf(err, "write to %q", p.topic)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Producer) Close() error {
	return p.w.Close()
}
