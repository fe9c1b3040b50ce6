package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/yeonjoon13/swim-adsb/internal/logging"
	"github.com/yeonjoon13/swim-adsb/internal/model"
)

const (
	HeaderContentType = "content-type"
	HeaderMessageID   = "message-id"
)

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("publisher is closed")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PublisherConfig configures the feed publisher.
type PublisherConfig struct {
	Brokers      []string
	BatchTimeout time.Duration
	// BreakerFailures consecutive failures open the circuit for BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

func (c *PublisherConfig) applyDefaults() {
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 50 * time.Millisecond
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 30 * time.Second
	}
}

// Publisher writes feed messages to Kafka behind a circuit breaker.
type Publisher struct {
	writer  messageWriter
	breaker *gobreaker.CircuitBreaker[struct{}]
	log     zerolog.Logger
	closed  atomic.Bool
}

// NewPublisher creates a publisher. The topic is taken from each message.
func NewPublisher(cfg PublisherConfig) *Publisher {
	cfg.applyDefaults()
	return newPublisher(newWriter(cfg), cfg)
}

// newWriter hashes the message key (the topic name) so every message of a
// feed topic lands on one partition and stays ordered for readers.
func newWriter(cfg PublisherConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

func newPublisher(w messageWriter, cfg PublisherConfig) *Publisher {
	cfg.applyDefaults()
	log := logging.Component("kafka")
	return &Publisher{
		writer: w,
		log:    log,
		breaker: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:    "kafka-publish",
			Timeout: cfg.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
					Msg("circuit breaker state changed")
			},
		}),
	}
}

// Publish sends one feed message.
func (p *Publisher) Publish(ctx context.Context, msg model.Message) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}
	km := NewMessage(msg)
	_, err := p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.writer.WriteMessages(ctx, km)
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", msg.Topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.writer.Close()
}

// NewMessage converts a feed message into a Kafka record keyed by topic.
func NewMessage(msg model.Message) kafka.Message {
	contentType := msg.ContentType
	if contentType == "" {
		contentType = model.ContentTypeJSON
	}
	return kafka.Message{
		Topic: msg.Topic,
		Key:   []byte(msg.Topic),
		Value: msg.Body,
		Headers: []kafka.Header{
			{Key: HeaderContentType, Value: []byte(contentType)},
			{Key: HeaderMessageID, Value: []byte(uuid.NewString())},
		},
	}
}

// ContentType reads the content-type header of a record.
func ContentType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == HeaderContentType {
			return string(h.Value)
		}
	}
	return ""
}
