// Package kafka publishes job events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/FranksOps/kwdig/internal/pipeline"
)

// MessageWriter is the subset of *kafka.Writer used by Publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Message is the JSON value of every published record.
type Message struct {
	JobID string         `json:"job_id"`
	Event pipeline.Event `json:"event"`
}

// Publisher wraps a Kafka writer for publishing job events keyed by job ID,
// so one job's events stay ordered within a partition.
type Publisher struct {
	writer MessageWriter
}

// flushInterval bounds how long a single-event write waits for a batch to fill.
const flushInterval = 5 * time.Millisecond

// NewPublisher creates a publisher for the given brokers and topic.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{writer: newWriter(brokers, topic)}
}

// newWriter returns a synchronous writer that flushes each message on its own.
func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              1,
		BatchTimeout:           flushInterval,
		AllowAutoTopicCreation: false,
	}
}

// NewPublisherWithWriter builds a publisher using a custom writer (tests).
func NewPublisherWithWriter(writer MessageWriter) *Publisher {
	return &Publisher{writer: writer}
}

// Close shuts down the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Publish writes one event.
func (p *Publisher) Publish(ctx context.Context, jobID string, e pipeline.Event) error {
	payload, err := json.Marshal(Message{JobID: jobID, Event: e})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	ts := e.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	msg := kafka.Message{
		Key:   []byte(jobID),
		Value: payload,
		Time:  ts.UTC(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}
