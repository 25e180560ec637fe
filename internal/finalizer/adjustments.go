package finalizer

import (
	"fmt"

	"github.com/switchdesk-settlements-console/internal/domain/finalize"
	"github.com/switchdesk-settlements-console/internal/domain/report"
	"github.com/switchdesk-settlements-console/internal/domain/settlement"
)

// BuildAdjustments computes one adjustment per report entry: the signed delta
// between the bank-confirmed balance and the switch's settlement-account
// balance. It assumes validation has already run, so every resolution failure
// here is a data-integrity error and fails hard with the unresolvable entity
// named.
func BuildAdjustments(rpt *report.Report, data *finalize.Data) ([]finalize.Adjustment, error) {
	adjustments := make([]finalize.Adjustment, 0, len(rpt.Entries))

	for _, e := range rpt.Entries {
		ap, ok := data.AccountsParticipants[e.PositionAccountID]
		if !ok {
			return nil, fmt.Errorf("account %d does not resolve to a participant", e.PositionAccountID)
		}
		name := ap.Participant.Name
		code := ap.Account.Currency

		limit, ok := data.ParticipantsLimits[name][code]
		if !ok {
			return nil, fmt.Errorf("no %s net debit cap found for participant %s", code, name)
		}

		settlementAcct, ok := data.ParticipantsAccounts[name][code][settlement.AccountTypeSettlement]
		if !ok {
			return nil, fmt.Errorf("no %s settlement account found for participant %s", code, name)
		}

		pos, ok := data.AccountsPositions[settlementAcct.Account.ID]
		if !ok {
			return nil, fmt.Errorf("no position found for settlement account %d of participant %s", settlementAcct.Account.ID, name)
		}

		sc, ok := data.SettlementParticipantAccounts[e.PositionAccountID]
		if !ok {
			return nil, fmt.Errorf("account %d is not part of the settlement", e.PositionAccountID)
		}

		// Switch sign convention: credit balances are stored negative.
		switchBalance := -pos.Value
		adjustments = append(adjustments, finalize.Adjustment{
			Participant:           ap.Participant,
			PositionAccount:       ap.Account,
			SettlementAccount:     settlementAcct.Account,
			CurrentLimit:          limit,
			SettlementParticipant: sc.Participant,
			SettlementAccountRec:  sc.Account,
			Amount:                e.Balance - switchBalance,
			TargetBalance:         e.Balance,
			RowNumber:             e.Row.RowNumber,
		})
	}

	return adjustments, nil
}
