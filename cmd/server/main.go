package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/recorder/internal/bus"
	"github.com/obiente/translate/recorder/internal/config"
	serverhttp "github.com/obiente/translate/recorder/internal/http"
	"github.com/obiente/translate/recorder/internal/metrics"
	"github.com/obiente/translate/recorder/internal/model"
	"github.com/obiente/translate/recorder/internal/recorder"
	"github.com/obiente/translate/recorder/internal/telemetry"
	"github.com/obiente/translate/recorder/internal/whisper"
	"github.com/obiente/translate/recorder/internal/ws"
)

func setupLogging(level, format string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	lvl := zerolog.InfoLevel
	if level != "" {
		if l, err := zerolog.ParseLevel(level); err == nil {
			lvl = l
		}
	}
	if strings.EqualFold(format, "console") {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.Level(lvl)
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("could not read .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	setupLogging(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		log.Fatal().Err(err).Msg("tracing setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	m := metrics.New(prometheus.DefaultRegisterer)

	fetch := model.NewFetcher(nil).Func(cfg.Whisper.ModelURL, cfg.Whisper.ModelPath)
	open, err := whisper.Open(cfg, fetch)
	if err != nil {
		log.Fatal().Err(err).Msg("engine setup failed")
	}
	loader := whisper.NewLoader(open)
	defer loader.Close()

	dec, err := recorder.NewDecoder(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("decoder setup failed")
	}
	rcfg := recorder.ConfigFrom(cfg, dec, loader, m)
	var busHealth serverhttp.Health
	if cfg.Bus.Enabled {
		pub, err := bus.Connect(cfg.Bus)
		if err != nil {
			log.Error().Err(err).Msg("transcript bus unavailable, continuing without it")
		} else {
			rcfg.Publisher = pub
			busHealth = pub
			defer pub.Close()
		}
	}

	go func() {
		log.Info().
			Str("backend", cfg.ASR.Backend).
			Str("model", filepath.Base(cfg.Whisper.ModelPath)).
			Msg("loading speech recognition engine")
		if err := loader.Load(ctx); err != nil {
			return
		}
		m.SetModelReady(true)
	}()

	wss := ws.NewServer(func() *recorder.Controller { return recorder.NewController(rcfg) }, loader)
	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: serverhttp.NewRouter(serverhttp.Deps{
			Model:        loader,
			Bus:          busHealth,
			Processor:    rcfg.Processor,
			WS:           wss.Handle,
			Metrics:      m,
			MaxBodyBytes: int64(cfg.Capture.MaxAudioBytes),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()
		log.Info().Msg("shutting down")
		if err := srv.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	}()

	log.Info().Str("addr", cfg.Server.Addr).Msg("recorder server starting")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server failed")
	}
}
