package topics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeonjoon13/swim-adsb/internal/model"
)

type recordingSink struct {
	mu   sync.Mutex
	msgs []model.Message
	err  error
}

func (s *recordingSink) Publish(_ context.Context, msg model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *recordingSink) count(topic string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.msgs {
		if m.Topic == topic {
			n++
		}
	}
	return n
}

func static(body string) Producer {
	return func(context.Context) (model.Message, error) {
		return model.Message{Body: []byte(body)}, nil
	}
}

func serve(t *testing.T, s *Scheduler) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Serve(ctx)
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("scheduler did not stop")
		}
	}
}

func TestTopicName(t *testing.T) {
	assert.Equal(t, "arrivals.brussels", TopicName(model.Arrivals, "Brussels"))
	assert.Equal(t, "departures.new-york", TopicName(model.Departures, " New  York "))
}

func TestAddTopicValidation(t *testing.T) {
	s := NewScheduler(&recordingSink{})

	require.NoError(t, s.AddTopic("arrivals.brussels", static("[]"), time.Second))
	assert.ErrorIs(t, s.AddTopic("arrivals.brussels", static("[]"), time.Second), ErrDuplicateTopic)
	assert.ErrorIs(t, s.AddTopic("departures.brussels", static("[]"), 0), ErrInvalidInterval)
	assert.ErrorIs(t, s.AddTopic("", static("[]"), time.Second), ErrEmptyTopicName)
	assert.Equal(t, []string{"arrivals.brussels"}, s.Topics())
}

func TestServePublishesOnInterval(t *testing.T) {
	sink := &recordingSink{}
	s := NewScheduler(sink)
	require.NoError(t, s.AddTopic("arrivals.brussels", static(`[{"icao24":"abc123"}]`), 10*time.Millisecond))

	stop := serve(t, s)
	require.Eventually(t, func() bool { return sink.count("arrivals.brussels") >= 3 }, 2*time.Second, 5*time.Millisecond)
	stop()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	first := sink.msgs[0]
	assert.Equal(t, "arrivals.brussels", first.Topic)
	assert.Equal(t, model.ContentTypeJSON, first.ContentType)
	assert.JSONEq(t, `[{"icao24":"abc123"}]`, string(first.Body))
}

func TestFailingTopicDoesNotAffectOthers(t *testing.T) {
	sink := &recordingSink{}
	s := NewScheduler(sink)

	require.NoError(t, s.AddTopic("arrivals.athens", func(context.Context) (model.Message, error) {
		panic("boom")
	}, 10*time.Millisecond))
	require.NoError(t, s.AddTopic("arrivals.paris", func(context.Context) (model.Message, error) {
		return model.Message{}, errors.New("encode failed")
	}, 10*time.Millisecond))
	require.NoError(t, s.AddTopic("arrivals.berlin", static("[]"), 10*time.Millisecond))

	stop := serve(t, s)
	require.Eventually(t, func() bool { return sink.count("arrivals.berlin") >= 3 }, 2*time.Second, 5*time.Millisecond)
	stop()

	assert.Zero(t, sink.count("arrivals.athens"))
	assert.Zero(t, sink.count("arrivals.paris"))
}

func TestPublishErrorKeepsTopicRunning(t *testing.T) {
	sink := &recordingSink{err: errors.New("broker unavailable")}
	s := NewScheduler(sink)

	var mu sync.Mutex
	calls := 0
	require.NoError(t, s.AddTopic("departures.brussels", func(context.Context) (model.Message, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return model.Message{Body: []byte("[]")}, nil
	}, 10*time.Millisecond))

	stop := serve(t, s)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 3
	}, 2*time.Second, 5*time.Millisecond)
	stop()
}
