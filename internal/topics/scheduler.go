// Package topics runs message producers on fixed intervals and hands their
// output to a Sink. Every topic is a separate supervised service, so a
// failing or panicking producer never stalls the other topics.
package topics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/yeonjoon13/swim-adsb/internal/logging"
	"github.com/yeonjoon13/swim-adsb/internal/metrics"
	"github.com/yeonjoon13/swim-adsb/internal/model"
)

var (
	ErrDuplicateTopic  = errors.New("topic already registered")
	ErrInvalidInterval = errors.New("interval must be positive")
	ErrEmptyTopicName  = errors.New("topic name is empty")
)

// Producer builds the next message of a topic.
type Producer func(ctx context.Context) (model.Message, error)

// Sink transmits messages, e.g. to a broker.
type Sink interface {
	Publish(ctx context.Context, msg model.Message) error
}

// TopicName builds "<direction>.<city>" with the city lowercased and
// inner whitespace replaced by dashes.
func TopicName(dir model.Direction, city string) string {
	return dir.String() + "." + strings.Join(strings.Fields(strings.ToLower(city)), "-")
}

// Scheduler owns the registered topics.
type Scheduler struct {
	sink Sink
	log  zerolog.Logger

	mu     sync.Mutex
	topics map[string]*topic
}

// NewScheduler creates a scheduler publishing to sink.
func NewScheduler(sink Sink) *Scheduler {
	return &Scheduler{
		sink:   sink,
		log:    logging.Component("topics"),
		topics: make(map[string]*topic),
	}
}

// AddTopic registers a producer invoked every interval. It must be called
// before Serve.
func (s *Scheduler) AddTopic(name string, producer Producer, interval time.Duration) error {
	if name == "" {
		return ErrEmptyTopicName
	}
	if interval <= 0 {
		return fmt.Errorf("topic %s: %w", name, ErrInvalidInterval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.topics[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTopic, name)
	}
	s.topics[name] = &topic{
		name:     name,
		producer: producer,
		interval: interval,
		sink:     s.sink,
		log:      s.log.With().Str("topic", name).Logger(),
	}
	return nil
}

// Topics returns the registered topic names, sorted.
func (s *Scheduler) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.topics))
	for name := range s.topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Serve runs every topic until ctx is cancelled.
func (s *Scheduler) Serve(ctx context.Context) error {
	sup := suture.New("topics", suture.Spec{
		EventHook: func(e suture.Event) {
			s.log.Warn().Str("event", e.String()).Msg("supervisor event")
		},
		FailureBackoff: 5 * time.Second,
		Timeout:        10 * time.Second,
	})

	s.mu.Lock()
	for _, t := range s.topics {
		sup.Add(t)
	}
	n := len(s.topics)
	s.mu.Unlock()

	s.log.Info().Int("topics", n).Msg("scheduler started")
	err := sup.Serve(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

type topic struct {
	name     string
	producer Producer
	interval time.Duration
	sink     Sink
	log      zerolog.Logger
}

func (t *topic) String() string { return t.name }

// Serve publishes once immediately, then on every tick.
func (t *topic) Serve(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.runOnce(ctx)
		}
	}
}

func (t *topic) runOnce(ctx context.Context) {
	msg, err := t.producer(ctx)
	if err != nil {
		metrics.TopicMessages.WithLabelValues(t.name, "produce_error").Inc()
		t.log.Error().Err(err).Msg("producing message failed")
		return
	}

	msg.Topic = t.name
	if msg.ContentType == "" {
		msg.ContentType = model.ContentTypeJSON
	}

	if err := t.sink.Publish(ctx, msg); err != nil {
		metrics.TopicMessages.WithLabelValues(t.name, "publish_error").Inc()
		t.log.Error().Err(err).Msg("publishing message failed")
		return
	}
	metrics.TopicMessages.WithLabelValues(t.name, "published").Inc()
	t.log.Debug().Int("bytes", len(msg.Body)).Msg("message published")
}
