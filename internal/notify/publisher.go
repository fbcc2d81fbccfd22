// Package notify publishes an event to Kafka whenever a refresh run has
// written a new research feed snapshot.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/research-feed-service/internal/domain"
)

// EventTypeSnapshotRefreshed identifies refresh events in the message headers.
const EventTypeSnapshotRefreshed = "research_feed.snapshot_refreshed"

// SnapshotRefreshedEvent announces a freshly written snapshot.
type SnapshotRefreshedEvent struct {
	RunID         string         `json:"run_id"`
	LastUpdated   time.Time      `json:"last_updated"`
	ArticleCounts map[string]int `json:"article_counts"`
	TotalArticles int            `json:"total_articles"`
	Paths         []string       `json:"paths"`
}

// NewSnapshotRefreshedEvent builds the event for a written snapshot.
func NewSnapshotRefreshedEvent(runID string, s *domain.Snapshot, paths []string) SnapshotRefreshedEvent {
	return SnapshotRefreshedEvent{
		RunID:         runID,
		LastUpdated:   s.LastUpdated,
		ArticleCounts: s.ArticleCounts(),
		TotalArticles: s.TotalArticles(),
		Paths:         paths,
	}
}

// Publisher delivers refresh events.
type Publisher interface {
	Publish(ctx context.Context, event SnapshotRefreshedEvent) error
	Close() error
}

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config holds configuration for the Kafka publisher.
type Config struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic receives the refresh events.
	Topic string
	// BatchTimeout is the maximum time to wait for a batch to fill before sending.
	BatchTimeout time.Duration
	// WriteTimeout bounds a single publish.
	WriteTimeout time.Duration
}

// KafkaPublisher writes refresh events to a Kafka topic.
type KafkaPublisher struct {
	writer       messageWriter
	writeTimeout time.Duration
	logger       zerolog.Logger
}

// NewKafkaPublisher creates a publisher backed by a kafka.Writer.
func NewKafkaPublisher(cfg Config, logger zerolog.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           cfg.BatchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: false,
	}
	return newKafkaPublisher(writer, cfg.WriteTimeout, logger)
}

func newKafkaPublisher(writer messageWriter, writeTimeout time.Duration, logger zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer:       writer,
		writeTimeout: writeTimeout,
		logger:       logger.With().Str("component", "refresh_publisher").Logger(),
	}
}

// Publish encodes the event as JSON and writes it keyed by run id.
func (p *KafkaPublisher) Publish(ctx context.Context, event SnapshotRefreshedEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal refresh event: %w", err)
	}

	if p.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.writeTimeout)
		defer cancel()
	}

	msg := kafka.Message{
		Key:   []byte(event.RunID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventTypeSnapshotRefreshed)},
		},
		Time: event.LastUpdated,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write refresh event: %w", err)
	}

	p.logger.Debug().
		Str("run_id", event.RunID).
		Int("total_articles", event.TotalArticles).
		Msg("published refresh event")
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	p.logger.Info().Msg("closing refresh publisher")
	return p.writer.Close()
}

// Noop discards events. It is used when Kafka is disabled.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, SnapshotRefreshedEvent) error { return nil }

// Close implements Publisher.
func (Noop) Close() error { return nil }
