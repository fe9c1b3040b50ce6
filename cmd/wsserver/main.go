package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	kgo "github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"github.com/yeonjoon13/swim-adsb/internal/app"
	"github.com/yeonjoon13/swim-adsb/internal/config"
	"github.com/yeonjoon13/swim-adsb/internal/kafka"
	"github.com/yeonjoon13/swim-adsb/internal/logging"
	"github.com/yeonjoon13/swim-adsb/internal/model"
	"github.com/yeonjoon13/swim-adsb/internal/relay"
	"github.com/yeonjoon13/swim-adsb/internal/topics"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML config (default $CONFIG_PATH or config.yml)")
	flag.Parse()

	path := config.Path(*configPath)
	cfg, err := config.Load(path)
	if err != nil {
		boot := logging.Logger()
		boot.Fatal().Err(err).Str("path", path).Msg("loading config failed")
	}

	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: os.Stderr})
	log := logging.Component("wsserver")

	var names []string
	for city := range cfg.ADSB.Cities {
		names = append(names,
			topics.TopicName(model.Arrivals, city),
			topics.TopicName(model.Departures, city))
	}
	hub := relay.NewHub(names...)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			r, err := openReader(ctx, cfg, name)
			if err != nil || r == nil {
				return err
			}
			defer r.Close()
			return hub.Consume(ctx, r)
		})
	}
	g.Go(func() error { return app.ServeHTTP(ctx, cfg.Relay.Addr, hub.Handler()) })

	log.Info().Strs("topics", names).Str("addr", cfg.Relay.Addr).Msg("relay started")
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("relay stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("shutting down")
}

// openReader retries until the topic exists, since the relay may start
// before the feed service has created it. A nil reader means ctx ended.
func openReader(ctx context.Context, cfg *config.Config, topic string) (*kgo.Reader, error) {
	log := logging.Component("wsserver").With().Str("topic", topic).Logger()
	for {
		r, err := kafka.NewReader(ctx, cfg.Kafka.Brokers, topic, cfg.Relay.GroupID)
		if err == nil {
			return r, nil
		}
		log.Warn().Err(err).Msg("opening reader failed, retrying")
		select {
		case <-ctx.Done():
			return nil, nil
		case <-time.After(5 * time.Second):
		}
	}
}
