// Package audit holds the persisted record of finalization runs. Every call
// to the finalization engine, successful or not, produces one Attempt row so
// operators can reconstruct what the console did to a settlement and why.
package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/switchdesk-settlements-console/internal/domain/finalize"
	"github.com/switchdesk-settlements-console/internal/domain/settlement"
)

// AttemptStatus defines the lifecycle of a finalization attempt record.
type AttemptStatus string

const (
	AttemptStatusRunning   AttemptStatus = "RUNNING"
	AttemptStatusSucceeded AttemptStatus = "SUCCEEDED"
	AttemptStatusFailed    AttemptStatus = "FAILED"
)

// Attempt records a single run of the finalization state machine against a
// settlement.
type Attempt struct {
	ID                uuid.UUID            `json:"id"`
	SettlementID      int64                `json:"settlement_id"`
	FromState         settlement.State     `json:"from_state"`
	FinalState        settlement.State     `json:"final_state"`
	Status            AttemptStatus        `json:"status"`
	AdjustNetDebitCap bool                 `json:"adjust_net_debit_cap"`
	AdjustLiquidity   bool                 `json:"adjust_liquidity"`
	Errors            []finalize.StepError `json:"errors,omitempty"`
	CorrelationID     string               `json:"correlation_id"`
	StartedAt         time.Time            `json:"started_at"`
	CompletedAt       *time.Time           `json:"completed_at,omitempty"`
}

// NewAttempt opens an attempt record for a settlement in the given state.
func NewAttempt(settlementID int64, fromState settlement.State, opts finalize.Options, correlationID string) *Attempt {
	return &Attempt{
		ID:                uuid.New(),
		SettlementID:      settlementID,
		FromState:         fromState,
		Status:            AttemptStatusRunning,
		AdjustNetDebitCap: opts.AdjustNetDebitCap,
		AdjustLiquidity:   opts.AdjustLiquidity,
		CorrelationID:     correlationID,
		StartedAt:         time.Now(),
	}
}

// Complete closes the attempt with the engine's result.
func (a *Attempt) Complete(res *finalize.Result) {
	a.FinalState = res.FinalState
	a.Errors = res.Errors
	if res.OK() {
		a.Status = AttemptStatusSucceeded
	} else {
		a.Status = AttemptStatusFailed
	}
	now := time.Now()
	a.CompletedAt = &now
}
