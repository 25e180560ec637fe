package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository manages finalization attempt persistence
type Repository interface {
	Create(ctx context.Context, attempt *Attempt) error
	Update(ctx context.Context, attempt *Attempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*Attempt, error)
	GetBySettlementID(ctx context.Context, settlementID int64, limit, offset int) ([]*Attempt, error)
	CountBySettlementID(ctx context.Context, settlementID int64) (int64, error)

	// HasRunning reports whether an attempt is still in flight for the
	// settlement, to guard against concurrent finalizations.
	HasRunning(ctx context.Context, settlementID int64) (bool, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrAttemptNotFound indicates a missing finalization attempt
type ErrAttemptNotFound struct {
	ID uuid.UUID
}

func (e ErrAttemptNotFound) Error() string {
	return "finalization attempt not found: " + e.ID.String()
}
