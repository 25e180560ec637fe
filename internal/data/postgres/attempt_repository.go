package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/switchdesk-settlements-console/internal/domain/audit"
	"github.com/switchdesk-settlements-console/internal/domain/finalize"
	"github.com/switchdesk-settlements-console/internal/platform/persistence"
)

// AttemptRepository implements the audit.Repository interface for PostgreSQL
type AttemptRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewAttemptRepository creates a new PostgreSQL finalization attempt repository
func NewAttemptRepository(logger *slog.Logger, db *persistence.PostgresDB) audit.Repository {
	return &AttemptRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction for atomic operations
func (r *AttemptRepository) WithTx(tx pgx.Tx) audit.Repository {
	return &AttemptRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new finalization attempt record
func (r *AttemptRepository) Create(ctx context.Context, attempt *audit.Attempt) error {
	stepErrors, err := json.Marshal(attempt.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal attempt errors: %w", err)
	}

	query := `
		INSERT INTO finalization_attempts
			(id, settlement_id, from_state, final_state, status, adjust_net_debit_cap, adjust_liquidity, errors, correlation_id, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.querier.Exec(ctx, query,
		attempt.ID,
		attempt.SettlementID,
		attempt.FromState,
		attempt.FinalState,
		attempt.Status,
		attempt.AdjustNetDebitCap,
		attempt.AdjustLiquidity,
		stepErrors,
		attempt.CorrelationID,
		attempt.StartedAt,
		attempt.CompletedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create finalization attempt",
			"attempt_id", attempt.ID.String(),
			"settlement_id", attempt.SettlementID,
			"error", err,
		)
		return fmt.Errorf("failed to create finalization attempt: %w", err)
	}

	return nil
}

// Update persists the outcome of a completed attempt
func (r *AttemptRepository) Update(ctx context.Context, attempt *audit.Attempt) error {
	stepErrors, err := json.Marshal(attempt.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal attempt errors: %w", err)
	}

	query := `
		UPDATE finalization_attempts
		SET final_state = $1, status = $2, errors = $3, completed_at = $4
		WHERE id = $5
	`

	result, err := r.querier.Exec(ctx, query,
		attempt.FinalState,
		attempt.Status,
		stepErrors,
		attempt.CompletedAt,
		attempt.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update finalization attempt",
			"attempt_id", attempt.ID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to update finalization attempt: %w", err)
	}

	if result.RowsAffected() == 0 {
		return audit.ErrAttemptNotFound{ID: attempt.ID}
	}

	return nil
}

const attemptColumns = `id, settlement_id, from_state, final_state, status, adjust_net_debit_cap, adjust_liquidity, errors, correlation_id, started_at, completed_at`

// GetByID retrieves a single attempt record
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*audit.Attempt, error) {
	query := `
		SELECT ` + attemptColumns + `
		FROM finalization_attempts
		WHERE id = $1
	`

	attempt, err := scanAttempt(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, audit.ErrAttemptNotFound{ID: id}
		}
		r.logger.Error("Failed to get finalization attempt",
			"attempt_id", id.String(),
			"error", err,
		)
		return nil, fmt.Errorf("failed to get finalization attempt: %w", err)
	}

	return attempt, nil
}

// GetBySettlementID retrieves the attempt history for a settlement, newest first
func (r *AttemptRepository) GetBySettlementID(ctx context.Context, settlementID int64, limit, offset int) ([]*audit.Attempt, error) {
	query := `
		SELECT ` + attemptColumns + `
		FROM finalization_attempts
		WHERE settlement_id = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.querier.Query(ctx, query, settlementID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to get finalization attempts",
			"settlement_id", settlementID,
			"error", err,
		)
		return nil, fmt.Errorf("failed to get finalization attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*audit.Attempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			r.logger.Error("Failed to scan finalization attempt", "error", err)
			return nil, fmt.Errorf("failed to scan finalization attempt: %w", err)
		}
		attempts = append(attempts, attempt)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over finalization attempts", "error", err)
		return nil, fmt.Errorf("error iterating over finalization attempts: %w", err)
	}

	return attempts, nil
}

// CountBySettlementID returns the number of attempts recorded for a settlement
func (r *AttemptRepository) CountBySettlementID(ctx context.Context, settlementID int64) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM finalization_attempts
		WHERE settlement_id = $1
	`

	var count int64
	if err := r.querier.QueryRow(ctx, query, settlementID).Scan(&count); err != nil {
		r.logger.Error("Failed to count finalization attempts",
			"settlement_id", settlementID,
			"error", err,
		)
		return 0, fmt.Errorf("failed to count finalization attempts: %w", err)
	}

	return count, nil
}

// HasRunning reports whether a finalization is already in flight for the
// settlement. The console refuses to start a second attempt while one runs.
func (r *AttemptRepository) HasRunning(ctx context.Context, settlementID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM finalization_attempts
			WHERE settlement_id = $1 AND status = $2
		)
	`

	var running bool
	if err := r.querier.QueryRow(ctx, query, settlementID, audit.AttemptStatusRunning).Scan(&running); err != nil {
		r.logger.Error("Failed to check for running finalization attempt",
			"settlement_id", settlementID,
			"error", err,
		)
		return false, fmt.Errorf("failed to check for running finalization attempt: %w", err)
	}

	return running, nil
}

func scanAttempt(row pgx.Row) (*audit.Attempt, error) {
	var attempt audit.Attempt
	var stepErrors []byte
	err := row.Scan(
		&attempt.ID,
		&attempt.SettlementID,
		&attempt.FromState,
		&attempt.FinalState,
		&attempt.Status,
		&attempt.AdjustNetDebitCap,
		&attempt.AdjustLiquidity,
		&stepErrors,
		&attempt.CorrelationID,
		&attempt.StartedAt,
		&attempt.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(stepErrors) > 0 {
		var parsed []finalize.StepError
		if err := json.Unmarshal(stepErrors, &parsed); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attempt errors: %w", err)
		}
		attempt.Errors = parsed
	}

	return &attempt, nil
}
