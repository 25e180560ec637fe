package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchdesk-settlements-console/internal/domain/audit"
	"github.com/switchdesk-settlements-console/internal/domain/finalize"
	"github.com/switchdesk-settlements-console/internal/domain/settlement"
)

func TestAttemptRepository_Create(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &AttemptRepository{querier: mock, logger: newTestLogger()}

	attempt := audit.NewAttempt(2766, settlement.StatePendingSettlement, finalize.Options{AdjustNetDebitCap: true}, "corr-1")

	query := `
		INSERT INTO finalization_attempts
			\(id, settlement_id, from_state, final_state, status, adjust_net_debit_cap, adjust_liquidity, errors, correlation_id, started_at, completed_at\)
		VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8, \$9, \$10, \$11\)
	`

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(attempt.ID, attempt.SettlementID, attempt.FromState, attempt.FinalState, attempt.Status,
				true, false, pgxmock.AnyArg(), "corr-1", attempt.StartedAt, attempt.CompletedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err := repo.Create(ctx, attempt)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure", func(t *testing.T) {
		expectedErr := errors.New("db error")
		mock.ExpectExec(query).
			WithArgs(attempt.ID, attempt.SettlementID, attempt.FromState, attempt.FinalState, attempt.Status,
				true, false, pgxmock.AnyArg(), "corr-1", attempt.StartedAt, attempt.CompletedAt).
			WillReturnError(expectedErr)

		err := repo.Create(ctx, attempt)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create finalization attempt")
		assert.ErrorIs(t, err, expectedErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAttemptRepository_Update(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &AttemptRepository{querier: mock, logger: newTestLogger()}

	attempt := audit.NewAttempt(2766, settlement.StatePsTransfersReserved, finalize.Options{}, "corr-2")
	attempt.Complete(&finalize.Result{
		SettlementID: 2766,
		FinalState:   settlement.StateSettled,
	})

	query := `
		UPDATE finalization_attempts
		SET final_state = \$1, status = \$2, errors = \$3, completed_at = \$4
		WHERE id = \$5
	`

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(settlement.StateSettled, audit.AttemptStatusSucceeded, pgxmock.AnyArg(), attempt.CompletedAt, attempt.ID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := repo.Update(ctx, attempt)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(settlement.StateSettled, audit.AttemptStatusSucceeded, pgxmock.AnyArg(), attempt.CompletedAt, attempt.ID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.Update(ctx, attempt)
		assert.ErrorIs(t, err, audit.ErrAttemptNotFound{ID: attempt.ID})
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAttemptRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &AttemptRepository{querier: mock, logger: newTestLogger()}

	query := `
		SELECT id, settlement_id, from_state, final_state, status, adjust_net_debit_cap, adjust_liquidity, errors, correlation_id, started_at, completed_at
		FROM finalization_attempts
		WHERE id = \$1
	`

	t.Run("success with step errors", func(t *testing.T) {
		id := uuid.New()
		startedAt := time.Now()
		completedAt := startedAt.Add(5 * time.Second)
		stepErrors, marshalErr := json.Marshal([]finalize.StepError{
			{Kind: finalize.StepBalanceUnchanged, SettlementID: 2766, AccountID: 21, ParticipantName: "payerfsp"},
		})
		require.NoError(t, marshalErr)

		rows := pgxmock.NewRows([]string{"id", "settlement_id", "from_state", "final_state", "status",
			"adjust_net_debit_cap", "adjust_liquidity", "errors", "correlation_id", "started_at", "completed_at"}).
			AddRow(id, int64(2766), settlement.StatePsTransfersReserved, settlement.StatePsTransfersReserved,
				audit.AttemptStatusFailed, false, true, stepErrors, "corr-3", startedAt, &completedAt)

		mock.ExpectQuery(query).WithArgs(id).WillReturnRows(rows)

		attempt, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(2766), attempt.SettlementID)
		assert.Equal(t, audit.AttemptStatusFailed, attempt.Status)
		require.Len(t, attempt.Errors, 1)
		assert.Equal(t, finalize.StepBalanceUnchanged, attempt.Errors[0].Kind)
		assert.Equal(t, int64(21), attempt.Errors[0].AccountID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		id := uuid.New()
		mock.ExpectQuery(query).WithArgs(id).WillReturnError(pgx.ErrNoRows)

		_, err := repo.GetByID(ctx, id)
		assert.ErrorIs(t, err, audit.ErrAttemptNotFound{ID: id})
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAttemptRepository_GetBySettlementID(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &AttemptRepository{querier: mock, logger: newTestLogger()}

	query := `
		SELECT id, settlement_id, from_state, final_state, status, adjust_net_debit_cap, adjust_liquidity, errors, correlation_id, started_at, completed_at
		FROM finalization_attempts
		WHERE settlement_id = \$1
		ORDER BY started_at DESC
		LIMIT \$2 OFFSET \$3
	`

	id := uuid.New()
	startedAt := time.Now()
	rows := pgxmock.NewRows([]string{"id", "settlement_id", "from_state", "final_state", "status",
		"adjust_net_debit_cap", "adjust_liquidity", "errors", "correlation_id", "started_at", "completed_at"}).
		AddRow(id, int64(2766), settlement.StatePendingSettlement, settlement.StateSettled,
			audit.AttemptStatusSucceeded, false, false, []byte(`[]`), "corr-4", startedAt, nil)

	mock.ExpectQuery(query).WithArgs(int64(2766), 20, 0).WillReturnRows(rows)

	attempts, err := repo.GetBySettlementID(ctx, 2766, 20, 0)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, id, attempts[0].ID)
	assert.Empty(t, attempts[0].Errors)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptRepository_CountBySettlementID(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &AttemptRepository{querier: mock, logger: newTestLogger()}

	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WithArgs(int64(2766)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(3)))

	count, err := repo.CountBySettlementID(ctx, 2766)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptRepository_HasRunning(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &AttemptRepository{querier: mock, logger: newTestLogger()}

	t.Run("running attempt exists", func(t *testing.T) {
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(int64(2766), audit.AttemptStatusRunning).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		running, err := repo.HasRunning(ctx, 2766)
		assert.NoError(t, err)
		assert.True(t, running)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no running attempt", func(t *testing.T) {
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(int64(2766), audit.AttemptStatusRunning).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

		running, err := repo.HasRunning(ctx, 2766)
		assert.NoError(t, err)
		assert.False(t, running)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAttemptRepository_WithTx(t *testing.T) {
	repo := &AttemptRepository{querier: nil, logger: newTestLogger()}

	txRepo := repo.WithTx(pgx.Tx(nil))
	require.NotNil(t, txRepo)

	wrapped, ok := txRepo.(*AttemptRepository)
	require.True(t, ok)
	assert.Equal(t, pgx.Tx(nil), wrapped.querier)
}
