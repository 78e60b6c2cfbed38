// Package provider selects the recognition source configured for the process.
package provider

import (
	"context"
	"fmt"

	"live-transcription-service/internal/config"
	"live-transcription-service/internal/service/stt"
	"live-transcription-service/internal/service/stt/google"
	"live-transcription-service/internal/service/stt/mock"
)

// NewSource returns a factory creating one source per session.
func NewSource(cfg config.STTConfig) (stt.Factory, error) {
	switch cfg.Provider {
	case "google":
		gcfg := google.DefaultConfig()
		gcfg.LanguageCode = cfg.LanguageCode
		gcfg.InterimResults = cfg.InterimResults
		gcfg.Punctuation = cfg.Punctuation
		gcfg.CredentialsFile = cfg.CredentialsFile
		if cfg.ChunkBytes > 0 {
			gcfg.ChunkBytes = cfg.ChunkBytes
		}
		return func(ctx context.Context) (stt.Source, error) {
			a, err := google.New(ctx, gcfg)
			if err != nil {
				return nil, err
			}
			return a, nil
		}, nil
	case "mock", "":
		mcfg := mock.Config{
			PartialDelay: cfg.MockPartialDelay,
			Utterances:   cfg.MockUtteranceCount,
		}
		return func(ctx context.Context) (stt.Source, error) {
			return mock.New(mcfg), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown STT provider %q", cfg.Provider)
	}
}
