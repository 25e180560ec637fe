package audit

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchdesk-settlements-console/internal/domain/finalize"
	"github.com/switchdesk-settlements-console/internal/domain/settlement"
)

func TestNewAttempt(t *testing.T) {
	before := time.Now()
	attempt := NewAttempt(2766, settlement.StatePendingSettlement, finalize.Options{AdjustNetDebitCap: true}, "corr-1")
	after := time.Now()

	assert.NotEqual(t, uuid.Nil, attempt.ID)
	assert.Equal(t, int64(2766), attempt.SettlementID)
	assert.Equal(t, settlement.StatePendingSettlement, attempt.FromState)
	assert.Equal(t, AttemptStatusRunning, attempt.Status)
	assert.True(t, attempt.AdjustNetDebitCap)
	assert.False(t, attempt.AdjustLiquidity)
	assert.Equal(t, "corr-1", attempt.CorrelationID)
	assert.Empty(t, attempt.Errors)
	assert.Nil(t, attempt.CompletedAt)
	assert.WithinDuration(t, before, attempt.StartedAt, after.Sub(before)+time.Millisecond)
}

func TestAttempt_Complete(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		attempt := NewAttempt(2766, settlement.StatePsTransfersReserved, finalize.Options{}, "corr-2")

		attempt.Complete(&finalize.Result{
			SettlementID: 2766,
			FinalState:   settlement.StateSettled,
		})

		assert.Equal(t, AttemptStatusSucceeded, attempt.Status)
		assert.Equal(t, settlement.StateSettled, attempt.FinalState)
		assert.Empty(t, attempt.Errors)
		require.NotNil(t, attempt.CompletedAt)
	})

	t.Run("Failure", func(t *testing.T) {
		attempt := NewAttempt(2766, settlement.StatePsTransfersReserved, finalize.Options{}, "corr-3")

		attempt.Complete(&finalize.Result{
			SettlementID: 2766,
			FinalState:   settlement.StatePsTransfersReserved,
			Errors: []finalize.StepError{
				{Kind: finalize.StepFundsProcessingFailed, SettlementID: 2766, AccountID: 21},
			},
		})

		assert.Equal(t, AttemptStatusFailed, attempt.Status)
		assert.Equal(t, settlement.StatePsTransfersReserved, attempt.FinalState)
		require.Len(t, attempt.Errors, 1)
		assert.Equal(t, finalize.StepFundsProcessingFailed, attempt.Errors[0].Kind)
		require.NotNil(t, attempt.CompletedAt)
	})
}
