package finalizer

import (
	"context"

	"github.com/switchdesk-settlements-console/internal/clients/ledger"
	"github.com/switchdesk-settlements-console/internal/clients/settlements"
	"github.com/switchdesk-settlements-console/internal/domain/finalize"
	"github.com/switchdesk-settlements-console/internal/domain/settlement"
)

// SettlementAPI is the slice of the settlement service the finalizer needs.
type SettlementAPI interface {
	// GetSettlement reads one settlement with participants and accounts.
	GetSettlement(ctx context.Context, id int64) (*settlement.Settlement, error)

	// UpdateParticipantAccounts applies a bulk account state change and
	// returns the settlement as the service now sees it.
	UpdateParticipantAccounts(ctx context.Context, settlementID int64, updates []settlements.AccountStateUpdate) (*settlement.Settlement, error)
}

// LedgerAPI is the slice of the ledger service the finalizer needs.
type LedgerAPI interface {
	// GetParticipants reads every participant with accounts attached.
	GetParticipants(ctx context.Context) ([]finalize.LedgerParticipant, error)

	// GetParticipantLimits reads a participant's per-currency limits.
	GetParticipantLimits(ctx context.Context, name string) ([]finalize.Limit, error)

	// UpdateParticipantLimit sets a participant's net-debit-cap for one currency.
	UpdateParticipantLimit(ctx context.Context, name string, limit finalize.Limit) error

	// GetParticipantPositions reads the live values of a participant's accounts.
	GetParticipantPositions(ctx context.Context, name string) ([]finalize.Position, error)

	// RecordFundsIn records an inbound funds movement.
	RecordFundsIn(ctx context.Context, m ledger.FundsMovement) error

	// RecordFundsOut runs the two-phase outbound movement.
	RecordFundsOut(ctx context.Context, m ledger.FundsMovement) error
}
