package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the service configuration, read from environment variables.
type Config struct {
	Service       ServiceConfig
	STT           STTConfig
	Audio         AudioConfig
	Session       SessionConfig
	Kafka         KafkaConfig
	Store         StoreConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name        string
	Env         string
	HTTPPort    string
	MetricsPort string
}

type STTConfig struct {
	Provider           string // google, mock
	LanguageCode       string
	InterimResults     bool
	Punctuation        bool
	CredentialsFile    string
	ChunkBytes         int
	MockPartialDelay   time.Duration
	MockUtteranceCount int
}

type AudioConfig struct {
	SampleRateHz int
	Channels     int
	OutputDir    string
	UploadDir    string
	MaxUploadMB  int64
}

type SessionConfig struct {
	PollInterval time.Duration
	MaxActive    int
}

type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicInterim string
	TopicFinal   string
	Principal    string
}

type StoreConfig struct {
	// Path of the SQLite transcript archive. Empty keeps transcripts in memory only.
	Path string
}

type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	serviceName := envOrDefault("SERVICE_NAME", "live-transcription-service")

	return &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Env:         envOrDefault("ENV", "dev"),
			HTTPPort:    envOrDefault("HTTP_PORT", "8080"),
			MetricsPort: envOrDefault("METRICS_PORT", "9090"),
		},
		STT: STTConfig{
			Provider:           envOrDefault("STT_PROVIDER", "mock"),
			LanguageCode:       envOrDefault("STT_LANGUAGE_CODE", "en-IN"),
			InterimResults:     envOrDefaultBool("STT_INTERIM_RESULTS", true),
			Punctuation:        envOrDefaultBool("STT_PUNCTUATION", true),
			CredentialsFile:    os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
			ChunkBytes:         envOrDefaultInt("STT_CHUNK_BYTES", 8820),
			MockPartialDelay:   envOrDefaultDuration("STT_MOCK_DELAY", 150*time.Millisecond),
			MockUtteranceCount: envOrDefaultInt("STT_MOCK_UTTERANCES", 3),
		},
		Audio: AudioConfig{
			SampleRateHz: envOrDefaultInt("AUDIO_SAMPLE_RATE_HZ", 44100),
			Channels:     envOrDefaultInt("AUDIO_CHANNELS", 1),
			OutputDir:    envOrDefault("AUDIO_OUTPUT_DIR", "recordings"),
			UploadDir:    envOrDefault("AUDIO_UPLOAD_DIR", os.TempDir()),
			MaxUploadMB:  int64(envOrDefaultInt("AUDIO_MAX_UPLOAD_MB", 50)),
		},
		Session: SessionConfig{
			PollInterval: envOrDefaultDuration("SESSION_POLL_INTERVAL", 100*time.Millisecond),
			MaxActive:    envOrDefaultInt("SESSION_MAX_ACTIVE", 8),
		},
		Kafka: KafkaConfig{
			Enabled:      envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:      envList("KAFKA_BROKERS"),
			TopicInterim: envOrDefault("KAFKA_TOPIC_INTERIM", "session.transcript.interim"),
			TopicFinal:   envOrDefault("KAFKA_TOPIC_FINAL", "session.transcript.final"),
			Principal:    envOrDefault("KAFKA_PRINCIPAL", serviceName),
		},
		Store: StoreConfig{
			Path: os.Getenv("STORE_PATH"),
		},
		Observability: ObservabilityConfig{
			LogLevel:  envOrDefault("LOG_LEVEL", "info"),
			LogFormat: envOrDefault("LOG_FORMAT", "json"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
