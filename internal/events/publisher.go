// Package events publishes run lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/config"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/logging"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/metrics"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/types"
)

// Event types
const (
	TypeCompleted = "transcript.completed"
	TypeFailed    = "transcript.failed"
)

// RunEvent is the payload published when a run finishes
type RunEvent struct {
	Type       string           `json:"type"`
	RunID      string           `json:"run_id"`
	Kind       types.SourceKind `json:"kind"`
	Source     string           `json:"source"`
	Output     string           `json:"output,omitempty"`
	Status     string           `json:"status"`
	Error      string           `json:"error,omitempty"`
	Sections   int              `json:"sections"`
	Duration   float64          `json:"duration_seconds"`
	WordCount  int              `json:"word_count"`
	DriveURL   string           `json:"gdrive_url,omitempty"`
	FinishedAt time.Time        `json:"finished_at"`
}

// NewRunEvent builds the event for a finished run record
func NewRunEvent(rec types.RunRecord) RunEvent {
	typ := TypeCompleted
	if rec.Status != types.StatusCompleted {
		typ = TypeFailed
	}
	return RunEvent{
		Type:       typ,
		RunID:      rec.RunID,
		Kind:       rec.Kind,
		Source:     rec.SourcePath,
		Output:     rec.OutputPath,
		Status:     rec.Status,
		Error:      rec.Error,
		Sections:   rec.Sections,
		Duration:   rec.Duration,
		WordCount:  rec.WordCount,
		DriveURL:   rec.DriveURL,
		FinishedAt: rec.FinishedAt,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes run events to one Kafka topic. Without brokers it only logs.
type Publisher struct {
	writer  messageWriter
	topic   string
	enabled bool
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// New creates a publisher from the kafka config section
func New(cfg config.KafkaConfig) *Publisher {
	p := &Publisher{
		topic:   cfg.Topic,
		metrics: metrics.DefaultMetrics,
		log:     logging.WithComponent("events"),
	}

	if !cfg.Enabled() {
		p.log.Info().Msg("Kafka disabled, using log-only mode")
		return p
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}
	p.enabled = true

	p.log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Msg("Kafka publisher initialized")

	return p
}

// Enabled reports whether events reach Kafka
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// PublishRun publishes the event for a finished run, keyed by run ID so all
// events of one run land on the same partition.
func (p *Publisher) PublishRun(ctx context.Context, rec types.RunRecord) error {
	event := NewRunEvent(rec)

	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error().Err(err).Str("topic", p.topic).Msg("Failed to marshal event")
		return err
	}

	p.log.Debug().
		Str("topic", p.topic).
		Str("key", rec.RunID).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || p.writer == nil {
		p.metrics.RecordKafkaPublish(p.topic, event.Type, nil)
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(rec.RunID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(event.Type)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error().
			Err(err).
			Str("topic", p.topic).
			Str("key", rec.RunID).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(p.topic, event.Type, err)
		return err
	}

	p.metrics.RecordKafkaPublish(p.topic, event.Type, nil)
	return nil
}

// Close closes the Kafka writer
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
