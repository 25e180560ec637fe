package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/switchdesk-settlements-console/internal/config"
)

// FinalizationEventProducer publishes finalization lifecycle events drained
// from the outbox. Writes are synchronous so the relay only marks a message
// processed once the broker has acknowledged it.
type FinalizationEventProducer struct {
	logger *slog.Logger
	writer KafkaWriter // Interface for testability
	topic  string
}

// NewFinalizationEventProducer creates the event relay producer and ensures
// the topic exists.
func NewFinalizationEventProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*FinalizationEventProducer, error) {
	if cfg.EventTopic == "" {
		return nil, fmt.Errorf("kafka event topic is not configured")
	}

	conn, err := kafka.Dial("tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for event relay producer: %w", err)
	}
	defer conn.Close()

	if err := ensureTopic(conn, logger, cfg.EventTopic, cfg.NumPartitions, cfg.ReplicationFactor); err != nil {
		return nil, fmt.Errorf("failed to ensure event topic %s exists for event relay producer: %w", cfg.EventTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.EventTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &FinalizationEventProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.EventTopic,
	}, nil
}

func (p *FinalizationEventProducer) Publish(ctx context.Context, key string, value interface{}) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message value for event relay producer: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: jsonValue,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish finalization event",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish message to %s via event relay producer: %w", p.topic, err)
	}

	p.logger.Debug("Published finalization event",
		"topic", p.topic,
		"key", key,
	)
	return nil
}

func (p *FinalizationEventProducer) Close() error {
	p.logger.Info("Closing event relay Kafka producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close event relay kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}

// ensureTopic creates the topic when the broker does not know it yet. Brokers
// can refuse metadata requests briefly after startup, so the lookup is retried
// before falling back to creation.
func ensureTopic(conn *kafka.Conn, logger *slog.Logger, topic string, numPartitions, replicationFactor int) error {
	var (
		partitions []kafka.Partition
		err        error
	)
	for attempt := 1; attempt <= 5; attempt++ {
		partitions, err = conn.ReadPartitions(topic)
		if err == nil {
			break
		}
		logger.Warn("Kafka partition lookup failed, retrying",
			"topic", topic,
			"attempt", attempt,
			"error", err,
		)
		time.Sleep(2 * time.Second)
	}

	// A missing topic can surface as a lookup error rather than an empty
	// partition list, so creation is attempted in either case.
	if len(partitions) > 0 {
		return nil
	}

	if numPartitions <= 0 {
		numPartitions = 1
	}
	if replicationFactor <= 0 {
		replicationFactor = 1
	}

	logger.Info("Creating Kafka topic",
		"topic", topic,
		"partitions", numPartitions,
		"replication_factor", replicationFactor,
	)
	if err := conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     numPartitions,
		ReplicationFactor: replicationFactor,
	}); err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	return nil
}
