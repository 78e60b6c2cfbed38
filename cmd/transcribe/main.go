// Command transcribe streams a WAV file through the configured recognizer and
// prints the transcript as it is assembled.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"live-transcription-service/internal/config"
	"live-transcription-service/internal/display"
	"live-transcription-service/internal/observability/logging"
	"live-transcription-service/internal/service/audio"
	"live-transcription-service/internal/service/session"
	"live-transcription-service/internal/service/stt"
	"live-transcription-service/internal/service/stt/provider"
)

func main() {
	audioFile := flag.String("audio", "", "Path to WAV file (16-bit PCM)")
	providerName := flag.String("provider", "", "STT provider (google, mock); defaults to STT_PROVIDER")
	language := flag.String("language", "", "Recognition language; defaults to STT_LANGUAGE_CODE")
	timeout := flag.Duration("timeout", 5*time.Minute, "Give up after this long")
	flag.Parse()

	if *audioFile == "" {
		fmt.Fprintln(os.Stderr, "usage: transcribe -audio <file.wav>")
		os.Exit(2)
	}

	cfg := config.Load()
	if *providerName != "" {
		cfg.STT.Provider = *providerName
	}
	if *language != "" {
		cfg.STT.LanguageCode = *language
	}

	logging.InitWithWriter(logging.Config{
		Level:   cfg.Observability.LogLevel,
		Format:  "console",
		Service: cfg.Service.Name,
	}, os.Stderr)

	newSource, err := provider.NewSource(cfg.STT)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid STT configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	f, err := audio.OpenWAV(*audioFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", *audioFile).Msg("Failed to open audio file")
	}
	log.Info().
		Int("sampleRateHz", f.Format.SampleRateHz).
		Int("channels", f.Format.Channels).
		Int("bytes", f.DataBytes).
		Msg("WAV file opened")

	src, err := newSource(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create recognizer")
	}

	s := session.New(session.Config{
		ID:     uuid.NewString(),
		Source: session.SourceFile,
		Input: stt.Input{
			Reader:       f,
			SampleRateHz: f.Format.SampleRateHz,
			Channels:     f.Format.Channels,
			Name:         filepath.Base(*audioFile),
		},
		Recognizer:   src,
		Sink:         display.NewConsole(os.Stdout),
		PollInterval: cfg.Session.PollInterval,
	})

	if err := s.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Transcription failed")
	}

	snap := s.Snapshot()
	log.Info().
		Str("reason", string(snap.StopReason)).
		Int("updates", snap.Updates).
		Msg("Transcription finished")
	fmt.Println()
	fmt.Println(snap.FinalText)
}
