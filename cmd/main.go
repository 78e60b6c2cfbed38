package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"live-transcription-service/internal/app"
	"live-transcription-service/internal/config"
	httpapi "live-transcription-service/internal/http"
	"live-transcription-service/internal/observability"
	"live-transcription-service/internal/observability/logging"
	"live-transcription-service/internal/service/audio"
	"live-transcription-service/internal/service/stt/provider"
)

func main() {
	cfg := config.Load()

	logging.Init(logging.Config{
		Level:   cfg.Observability.LogLevel,
		Format:  cfg.Observability.LogFormat,
		Service: cfg.Service.Name,
	})

	newSource, err := provider.NewSource(cfg.STT)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid STT configuration")
	}

	format := audio.Format{SampleRateHz: cfg.Audio.SampleRateHz, Channels: cfg.Audio.Channels}
	application, err := app.New(context.Background(), cfg, audio.NewMalgoDevice(format), newSource)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create application")
	}
	if err := application.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	metricsServer := observability.NewServer(":" + cfg.Service.MetricsPort)
	metricsServer.Start()

	server := &http.Server{
		Addr:              ":" + cfg.Service.HTTPPort,
		Handler:           httpapi.NewRouter(application),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("Live transcription service started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP serve failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("Shutting down HTTP server")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	application.Shutdown(ctx)
	if err := server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := metricsServer.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Metrics server shutdown failed")
	}
}
