// Package events publishes transcript events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"live-transcription-service/internal/observability/metrics"
	"live-transcription-service/internal/schema"
)

// Publisher publishes transcript events to separate Kafka topics.
type Publisher struct {
	writerInterim *kafka.Writer
	writerFinal   *kafka.Writer
	principal     string
	topicInterim  string
	topicFinal    string
	enabled       bool
	validator     *schema.Validator
	metrics       *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers      []string
	TopicInterim string
	TopicFinal   string
	Principal    string
	Enabled      bool
}

// New creates a Kafka event publisher with separate topics for interim and final transcripts.
// A nil, disabled or broker-less config yields a log-only publisher.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics
	v := schema.New()

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled:   false,
			validator: v,
			metrics:   m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:    cfg.Principal,
			topicInterim: cfg.TopicInterim,
			topicFinal:   cfg.TopicFinal,
			enabled:      false,
			validator:    v,
			metrics:      m,
		}
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicInterim", cfg.TopicInterim).
		Str("topicFinal", cfg.TopicFinal).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerInterim: newWriter(cfg.Brokers, cfg.TopicInterim, transport),
		writerFinal:   newWriter(cfg.Brokers, cfg.TopicFinal, transport),
		principal:     cfg.Principal,
		topicInterim:  cfg.TopicInterim,
		topicFinal:    cfg.TopicFinal,
		enabled:       true,
		validator:     v,
		metrics:       m,
	}
}

func newWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
}

// PublishInterim publishes an interim transcript event to the interim topic.
func (p *Publisher) PublishInterim(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerInterim, p.topicInterim, "interim", key, event)
}

// PublishFinal publishes a final transcript event to the final topic.
func (p *Publisher) PublishFinal(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerFinal, p.topicFinal, "final", key, event)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}
	if p.validator != nil {
		if err := p.validator.Validate(event); err != nil {
			log.Error().Err(err).Str("topic", topic).Str("key", key).Msg("Rejected invalid event")
			return err
		}
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerInterim != nil {
		if e := p.writerInterim.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing interim writer")
			err = e
		}
	}
	if p.writerFinal != nil {
		if e := p.writerFinal.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing final writer")
			err = e
		}
	}
	return err
}
