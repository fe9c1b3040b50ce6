package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/yeonjoon13/swim-adsb/internal/app"
	"github.com/yeonjoon13/swim-adsb/internal/config"
	"github.com/yeonjoon13/swim-adsb/internal/logging"
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
	log := logging.Component("main")

	application, err := app.Build(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("building application failed")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info().Int("cities", len(cfg.ADSB.Cities)).Dur("interval", cfg.ADSB.Interval()).Msg("starting feed service")
	if err := application.Run(ctx); err != nil {
		log.Error().Err(err).Msg("feed service stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("shutting down")
}
