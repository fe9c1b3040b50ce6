// Package app wires the feed service together. Nothing here runs at import
// time; Build assembles the object graph and Run drives it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/yeonjoon13/swim-adsb/internal/config"
	"github.com/yeonjoon13/swim-adsb/internal/flights"
	"github.com/yeonjoon13/swim-adsb/internal/kafka"
	"github.com/yeonjoon13/swim-adsb/internal/logging"
	"github.com/yeonjoon13/swim-adsb/internal/metrics"
	"github.com/yeonjoon13/swim-adsb/internal/model"
	"github.com/yeonjoon13/swim-adsb/internal/opensky"
	"github.com/yeonjoon13/swim-adsb/internal/topics"
)

var _ flights.Provider = (*opensky.Client)(nil)

// Option overrides a dependency Build would otherwise create.
type Option func(*Application)

// WithProvider replaces the OpenSky client.
func WithProvider(p flights.Provider) Option {
	return func(a *Application) { a.provider = p }
}

// WithSink replaces the Kafka publisher. Topic creation is skipped.
func WithSink(s topics.Sink) Option {
	return func(a *Application) { a.sink = s }
}

// WithClock sets the clock used for cache expiry and windows.
func WithClock(c flights.Clock) Option {
	return func(a *Application) { a.clock = c }
}

// Application is the assembled service.
type Application struct {
	cfg *config.Config
	log zerolog.Logger

	provider  flights.Provider
	sink      topics.Sink
	publisher *kafka.Publisher
	clock     flights.Clock

	Traffic   *flights.AirTraffic
	Scheduler *topics.Scheduler
}

// Build validates cfg and creates the provider, caches, publisher and one
// arrivals and one departures topic per configured city.
func Build(cfg *config.Config, opts ...Option) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	policy, err := flights.ParseWindowPolicy(cfg.ADSB.WindowPolicy)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	a := &Application{cfg: cfg, log: logging.Component("app")}
	for _, opt := range opts {
		opt(a)
	}

	if a.provider == nil {
		clientOpts := []opensky.Option{
			opensky.WithBaseURL(cfg.OpenSky.BaseURL),
			opensky.WithTimeout(cfg.OpenSky.Timeout()),
			opensky.WithRateLimit(cfg.OpenSky.RequestsPerSec, 1),
		}
		if cfg.OpenSky.Username != "" {
			clientOpts = append(clientOpts, opensky.WithCredentials(cfg.OpenSky.Username, cfg.OpenSky.Password))
		}
		a.provider = opensky.NewClient(clientOpts...)
	}
	if a.sink == nil {
		a.publisher = kafka.NewPublisher(kafka.PublisherConfig{Brokers: cfg.Kafka.Brokers})
		a.sink = a.publisher
	}

	a.Traffic, err = flights.New(a.provider, flights.Options{
		LookbackDays:        cfg.ADSB.TrafficTimespanInDays,
		WindowPolicy:        policy,
		ResolveAirportNames: cfg.ADSB.ResolveAirportNames,
		Clock:               a.clock,
	})
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	a.Scheduler = topics.NewScheduler(a.sink)
	interval := cfg.ADSB.Interval()
	for city, airport := range cfg.ADSB.Cities {
		if err := a.Scheduler.AddTopic(topics.TopicName(model.Arrivals, city), topics.Producer(a.Traffic.ArrivalsHandler(airport)), interval); err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		if err := a.Scheduler.AddTopic(topics.TopicName(model.Departures, city), topics.Producer(a.Traffic.DeparturesHandler(airport)), interval); err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
	}

	return a, nil
}

// Topics returns the names of every registered topic.
func (a *Application) Topics() []string {
	return a.Scheduler.Topics()
}

// Run publishes every topic until ctx is cancelled, then closes the
// publisher.
func (a *Application) Run(ctx context.Context) error {
	if a.publisher != nil {
		defer func() {
			if err := a.publisher.Close(); err != nil {
				a.log.Warn().Err(err).Msg("closing publisher failed")
			}
		}()
		if a.cfg.Kafka.CreateTopics {
			a.createTopics(ctx)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	if a.cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		g.Go(func() error { return ServeHTTP(ctx, a.cfg.Metrics.Addr, mux) })
	}
	g.Go(func() error { return a.Scheduler.Serve(ctx) })

	a.log.Info().Strs("topics", a.Topics()).Msg("feed service running")
	return g.Wait()
}

// createTopics is best effort; the writer still auto-creates topics.
func (a *Application) createTopics(ctx context.Context) {
	names := a.Topics()
	cfgs := make([]kafka.TopicConfig, 0, len(names))
	for _, name := range names {
		cfgs = append(cfgs, kafka.TopicConfig{
			Topic:             name,
			NumPartitions:     a.cfg.Kafka.Partitions,
			ReplicationFactor: a.cfg.Kafka.ReplicationFactor,
		})
	}
	if err := kafka.CreateTopics(ctx, a.cfg.Kafka.Brokers[0], cfgs); err != nil {
		a.log.Warn().Err(err).Msg("creating topics failed")
		return
	}
	a.log.Info().Int("topics", len(cfgs)).Msg("topics ensured")
}

// ServeHTTP serves h on addr and shuts the server down when ctx is done.
func ServeHTTP(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log := logging.Component("http")
		log.Info().Str("addr", addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown %s: %w", addr, err)
		}
		return nil
	}
}
