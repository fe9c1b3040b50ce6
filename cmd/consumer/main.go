// Command consumer tails one feed topic and logs every joined record it
// carries. Useful for checking what the feed service publishes.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"

	"github.com/yeonjoon13/swim-adsb/internal/config"
	"github.com/yeonjoon13/swim-adsb/internal/kafka"
	"github.com/yeonjoon13/swim-adsb/internal/logging"
	"github.com/yeonjoon13/swim-adsb/internal/model"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML config (default $CONFIG_PATH or config.yml)")
	topic := flag.String("topic", "arrivals.brussels", "Feed topic to tail")
	group := flag.String("group", "", "Consumer group ID (empty reads partition 0 without committing)")
	flag.Parse()

	path := config.Path(*configPath)
	cfg, err := config.Load(path)
	if err != nil {
		boot := logging.Logger()
		boot.Fatal().Err(err).Str("path", path).Msg("loading config failed")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: os.Stderr})
	log := logging.Component("consumer").With().Str("topic", *topic).Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	r, err := kafka.NewReader(ctx, cfg.Kafka.Brokers, *topic, *group)
	if err != nil {
		log.Fatal().Err(err).Msg("opening reader failed")
	}
	defer r.Close()

	log.Info().Strs("brokers", cfg.Kafka.Brokers).Msg("tailing feed")
	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("shutting down")
				return
			}
			log.Error().Err(err).Msg("read failed")
			time.Sleep(time.Second)
			continue
		}

		var records []model.JoinedFlightRecord
		if err := json.Unmarshal(m.Value, &records); err != nil {
			log.Error().Err(err).Str("content_type", kafka.ContentType(m)).Msg("decoding feed failed")
			continue
		}

		valid := 0
		for _, rec := range records {
			if !isValidCoordinate(rec.Latitude, rec.Longitude) {
				continue
			}
			valid++
			log.Debug().Str("icao24", rec.ICAO24).Float64("lat", *rec.Latitude).Float64("lng", *rec.Longitude).
				Str("from", rec.From).Str("to", rec.To).Int64("last_contact", rec.LastContact).Msg("flight")
		}
		log.Info().Int("records", len(records)).Int("positioned", valid).Int64("offset", m.Offset).Msg("feed received")
	}
}

func isValidCoordinate(lat, lon *float64) bool {
	if lat == nil || lon == nil {
		return false
	}
	return *lat >= -90 && *lat <= 90 && *lon >= -180 && *lon <= 180
}
