package config

import (
	"os"
	"testing"
	"time"
)

var configEnvVars = []string{
	"SERVICE_NAME", "ENV", "HTTP_PORT", "METRICS_PORT", "LOG_LEVEL", "LOG_FORMAT",
	"STT_PROVIDER", "STT_LANGUAGE_CODE", "STT_INTERIM_RESULTS", "STT_PUNCTUATION",
	"STT_CHUNK_BYTES", "STT_MOCK_DELAY", "STT_MOCK_UTTERANCES",
	"AUDIO_SAMPLE_RATE_HZ", "AUDIO_CHANNELS", "AUDIO_OUTPUT_DIR", "AUDIO_UPLOAD_DIR", "AUDIO_MAX_UPLOAD_MB",
	"SESSION_POLL_INTERVAL", "SESSION_MAX_ACTIVE",
	"KAFKA_ENABLED", "KAFKA_BROKERS", "KAFKA_TOPIC_INTERIM", "KAFKA_TOPIC_FINAL", "KAFKA_PRINCIPAL",
	"STORE_PATH",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range configEnvVars {
		t.Setenv(v, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.Service.Name != "live-transcription-service" {
		t.Errorf("expected default service name, got %s", cfg.Service.Name)
	}
	if cfg.Service.HTTPPort != "8080" {
		t.Errorf("expected default port '8080', got %s", cfg.Service.HTTPPort)
	}
	if cfg.STT.Provider != "mock" {
		t.Errorf("expected default STT provider 'mock', got %s", cfg.STT.Provider)
	}
	if cfg.STT.LanguageCode != "en-IN" {
		t.Errorf("expected default language 'en-IN', got %s", cfg.STT.LanguageCode)
	}
	if !cfg.STT.InterimResults {
		t.Error("expected interim results enabled by default")
	}
	if cfg.Audio.SampleRateHz != 44100 {
		t.Errorf("expected default sample rate 44100, got %d", cfg.Audio.SampleRateHz)
	}
	if cfg.Audio.Channels != 1 {
		t.Errorf("expected mono by default, got %d", cfg.Audio.Channels)
	}
	if cfg.Session.PollInterval != 100*time.Millisecond {
		t.Errorf("expected default poll interval 100ms, got %v", cfg.Session.PollInterval)
	}
	if cfg.Kafka.Enabled {
		t.Error("expected Kafka disabled by default")
	}
	if cfg.Kafka.Brokers != nil {
		t.Errorf("expected no brokers by default, got %v", cfg.Kafka.Brokers)
	}
	if cfg.Store.Path != "" {
		t.Errorf("expected in-memory store by default, got %s", cfg.Store.Path)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_PORT", "9999")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STT_PROVIDER", "google")
	t.Setenv("STT_LANGUAGE_CODE", "en-US")
	t.Setenv("STT_INTERIM_RESULTS", "false")
	t.Setenv("AUDIO_SAMPLE_RATE_HZ", "16000")
	t.Setenv("SESSION_POLL_INTERVAL", "250ms")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("STORE_PATH", "/var/lib/transcripts.db")

	cfg := Load()

	if cfg.Service.HTTPPort != "9999" {
		t.Errorf("expected port '9999', got %s", cfg.Service.HTTPPort)
	}
	if cfg.STT.Provider != "google" {
		t.Errorf("expected STT provider 'google', got %s", cfg.STT.Provider)
	}
	if cfg.STT.LanguageCode != "en-US" {
		t.Errorf("expected language 'en-US', got %s", cfg.STT.LanguageCode)
	}
	if cfg.STT.InterimResults {
		t.Error("expected interim results disabled")
	}
	if cfg.Audio.SampleRateHz != 16000 {
		t.Errorf("expected sample rate 16000, got %d", cfg.Audio.SampleRateHz)
	}
	if cfg.Session.PollInterval != 250*time.Millisecond {
		t.Errorf("expected poll interval 250ms, got %v", cfg.Session.PollInterval)
	}
	if !cfg.Kafka.Enabled {
		t.Error("expected Kafka enabled")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Errorf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
	if cfg.Store.Path != "/var/lib/transcripts.db" {
		t.Errorf("unexpected store path %s", cfg.Store.Path)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_InvalidValues_FallbackToDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUDIO_SAMPLE_RATE_HZ", "not-a-number")
	t.Setenv("STT_INTERIM_RESULTS", "invalid")
	t.Setenv("SESSION_POLL_INTERVAL", "soon")
	t.Setenv("SESSION_MAX_ACTIVE", "many")

	cfg := Load()

	if cfg.Audio.SampleRateHz != 44100 {
		t.Errorf("expected default sample rate on invalid input, got %d", cfg.Audio.SampleRateHz)
	}
	if !cfg.STT.InterimResults {
		t.Error("expected default interim results on invalid input")
	}
	if cfg.Session.PollInterval != 100*time.Millisecond {
		t.Errorf("expected default poll interval on invalid input, got %v", cfg.Session.PollInterval)
	}
	if cfg.Session.MaxActive != 8 {
		t.Errorf("expected default max active on invalid input, got %d", cfg.Session.MaxActive)
	}
}

func TestLoad_KafkaPrincipal_FallsBackToServiceName(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVICE_NAME", "my-service")

	cfg := Load()

	if cfg.Kafka.Principal != "my-service" {
		t.Errorf("expected Kafka principal to fall back to service name, got %s", cfg.Kafka.Principal)
	}
}

func TestEnvOrDefaultBool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      bool
		expected bool
	}{
		{"true string", "true", false, true},
		{"false string", "false", true, false},
		{"1", "1", false, true},
		{"0", "0", true, false},
		{"TRUE uppercase", "TRUE", false, true},
		{"invalid", "invalid", true, true},
		{"empty", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_BOOL_VAR"
			if tt.envValue != "" {
				os.Setenv(key, tt.envValue)
			} else {
				os.Unsetenv(key)
			}
			defer os.Unsetenv(key)

			got := envOrDefaultBool(key, tt.def)
			if got != tt.expected {
				t.Errorf("envOrDefaultBool(%s, %v) = %v, want %v", tt.envValue, tt.def, got, tt.expected)
			}
		})
	}
}

func TestEnvList(t *testing.T) {
	t.Setenv("TEST_LIST_VAR", " a ,b,, c ")

	got := envList("TEST_LIST_VAR")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}
