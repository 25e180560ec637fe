// Package outbox implements the transactional outbox for finalization
// lifecycle events. Events are written to Postgres in the same transaction
// as the attempt audit row and relayed to Kafka by the event relay process.
package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/switchdesk-settlements-console/internal/domain/audit"
)

// Status defines message publishing states
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusProcessed       Status = "PROCESSED"
	StatusFailedToPublish Status = "FAILED_TO_PUBLISH"
)

// Message stores one finalization event for reliable publishing
type Message struct {
	ID            int64           `json:"id"`
	EventID       uuid.UUID       `json:"event_id"`
	SettlementID  int64           `json:"settlement_id"`
	Payload       json.RawMessage `json:"payload"`
	Status        Status          `json:"status"`
	Attempts      int             `json:"attempts"`
	CreatedAt     time.Time       `json:"created_at"`
	LastAttemptAt *time.Time      `json:"last_attempt_at,omitempty"`
}

// NewMessage wraps a completed finalization attempt as an outbox event.
func NewMessage(attempt *audit.Attempt) (*Message, error) {
	payload, err := json.Marshal(attempt)
	if err != nil {
		return nil, err
	}

	return &Message{
		EventID:      attempt.ID,
		SettlementID: attempt.SettlementID,
		Payload:      payload,
		Status:       StatusPending,
		Attempts:     0,
		CreatedAt:    time.Now(),
	}, nil
}

func (m *Message) IncrementAttempts() {
	m.Attempts++
	now := time.Now()
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsProcessed() {
	m.Status = StatusProcessed
	now := time.Now()
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsFailed() {
	m.Status = StatusFailedToPublish
	now := time.Now()
	m.LastAttemptAt = &now
}

// GetAttempt extracts the finalization attempt from the payload
func (m *Message) GetAttempt() (*audit.Attempt, error) {
	var attempt audit.Attempt
	if err := json.Unmarshal(m.Payload, &attempt); err != nil {
		return nil, err
	}
	return &attempt, nil
}
