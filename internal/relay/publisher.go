// Package relay drains the settlement event outbox into Kafka. It runs as a
// separate process from the console API so event delivery survives API
// restarts.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/switchdesk-settlements-console/internal/domain/outbox"
	"github.com/switchdesk-settlements-console/internal/platform/messaging/producers"
)

// EventPublisher publishes outbox messages to the settlement events topic
type EventPublisher interface {
	PublishEvent(ctx context.Context, message *outbox.Message) error
}

// EventPublisherImpl implements EventPublisher
type EventPublisherImpl struct {
	outboxRepo outbox.Repository
	producer   producers.MessagePublisher
	logger     *slog.Logger
}

// NewEventPublisher creates a new publisher
func NewEventPublisher(
	outboxRepo outbox.Repository,
	producer producers.MessagePublisher,
	logger *slog.Logger,
) EventPublisher {
	return &EventPublisherImpl{
		outboxRepo: outboxRepo,
		producer:   producer,
		logger:     logger,
	}
}

// PublishEvent publishes one outbox message and marks it processed. Keyed by
// settlement ID so all events of a settlement land on the same partition.
func (p *EventPublisherImpl) PublishEvent(ctx context.Context, message *outbox.Message) error {
	attempt, err := message.GetAttempt()
	if err != nil {
		p.logger.Error("Failed to unmarshal finalization attempt from outbox payload",
			"outbox_id", message.ID, "event_id", message.EventID, "error", err,
		)
		if updateErr := p.outboxRepo.UpdateStatus(ctx, message.ID, outbox.StatusFailedToPublish); updateErr != nil {
			p.logger.Error("Also failed to update outbox status to FAILED_TO_PUBLISH after unmarshal error", "outbox_id", message.ID, "update_error", updateErr)
		}
		return fmt.Errorf("unmarshal payload for outbox %d failed: %w", message.ID, err)
	}

	logger := p.logger
	if attempt.CorrelationID != "" {
		logger = p.logger.With("correlation_id", attempt.CorrelationID)
	}

	key := strconv.FormatInt(message.SettlementID, 10)
	if err := p.producer.Publish(ctx, key, attempt); err != nil {
		logger.Error("Failed to publish finalization event to Kafka",
			"outbox_id", message.ID, "event_id", message.EventID, "error", err,
		)
		return fmt.Errorf("failed to publish event %s: %w", message.EventID, err)
	}

	if err := p.outboxRepo.UpdateStatus(ctx, message.ID, outbox.StatusProcessed); err != nil {
		logger.Error("Failed to update outbox message status to PROCESSED",
			"outbox_id", message.ID, "event_id", message.EventID, "error", err,
		)
		return fmt.Errorf("event %s published, but failed to mark outbox %d as PROCESSED: %w", message.EventID, message.ID, err)
	}

	logger.Info("Finalization event published and marked as PROCESSED", "outbox_id", message.ID, "event_id", message.EventID)
	return nil
}
