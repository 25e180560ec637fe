// Package finalize holds the value types shared by the finalization pipeline:
// the indexed reference data collected from the switch, the per-entry balance
// adjustments, and the closed set of step-failure kinds the state machine can
// report.
package finalize

import (
	"fmt"

	"github.com/switchdesk-settlements-console/internal/domain/currency"
	"github.com/switchdesk-settlements-console/internal/domain/settlement"
)

// Limit is a participant's net-debit-cap limit in one currency.
type Limit struct {
	Type     string        `json:"type"`
	Value    float64       `json:"value"`
	Currency currency.Code `json:"currency"`
}

// LedgerAccount is a participant account as the ledger service reports it.
type LedgerAccount struct {
	ID       int64                  `json:"id"`
	Type     settlement.AccountType `json:"ledgerAccountType"`
	Currency currency.Code          `json:"currency"`
	IsActive bool                   `json:"isActive"`
}

// LedgerParticipant is a participant as the ledger service reports it, with
// its accounts and limits attached.
type LedgerParticipant struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	IsActive bool            `json:"isActive"`
	Accounts []LedgerAccount `json:"accounts"`
	Limits   []Limit         `json:"limits"`
}

// Position is the live balance of one participant account.
type Position struct {
	AccountID int64         `json:"accountId"`
	Currency  currency.Code `json:"currency"`
	Value     float64       `json:"value"`
}

// AccountParticipant resolves an account ID to its owning participant.
type AccountParticipant struct {
	Participant LedgerParticipant
	Account     LedgerAccount
}

// SettlementAccountContext resolves an account ID to its settlement-scoped
// records.
type SettlementAccountContext struct {
	Participant settlement.Participant
	Account     settlement.Account
}

// Data is the ephemeral indexed reference data built fresh per finalization
// attempt. Key invariants: at most one account per participant, currency and
// account type; every account ID referenced by the report or the settlement
// must resolve through AccountsParticipants (a failed lookup is a validation
// finding, never a crash).
type Data struct {
	AccountsParticipants          map[int64]AccountParticipant
	ParticipantsAccounts          map[string]map[currency.Code]map[settlement.AccountType]AccountParticipant
	ParticipantsLimits            map[string]map[currency.Code]Limit
	AccountsPositions             map[int64]Position
	SettlementParticipantAccounts map[int64]SettlementAccountContext
}

// Adjustment is the signed balance delta required to reconcile one report
// entry: bank-confirmed balance minus the switch's settlement-account balance
// (switch stores credit balances negative, so switch balance = -account value).
type Adjustment struct {
	Participant           LedgerParticipant
	PositionAccount       LedgerAccount
	SettlementAccount     LedgerAccount
	CurrentLimit          Limit
	SettlementParticipant settlement.Participant
	SettlementAccountRec  settlement.Account
	Amount                float64
	TargetBalance         float64
	RowNumber             int
}

// IsDebit reports whether funds must leave the switch (amount < 0). Credits
// (amount >= 0) are the complement, so the partition is exhaustive.
func (a Adjustment) IsDebit() bool {
	return a.Amount < 0
}

// SplitAdjustments partitions adjustments into debits and credits preserving
// order within each side.
func SplitAdjustments(adjustments []Adjustment) (debits, credits []Adjustment) {
	for _, a := range adjustments {
		if a.IsDebit() {
			debits = append(debits, a)
		} else {
			credits = append(credits, a)
		}
	}
	return debits, credits
}

// StepKind enumerates every failure the finalization state machine can
// surface, one per lifecycle step and per adjustment-protocol step. Closed:
// Describe panics on an unknown kind, and tests walk AllStepKinds.
type StepKind string

const (
	StepSetPsTransfersRecorded StepKind = "SET_SETTLEMENT_PS_TRANSFERS_RECORDED"
	StepSetPsTransfersReserved StepKind = "SET_SETTLEMENT_PS_TRANSFERS_RESERVED"
	StepProcessAdjustments     StepKind = "PROCESS_ADJUSTMENTS"
	StepSettleAccounts         StepKind = "SETTLE_ACCOUNTS"
	StepSettlementNotSettled   StepKind = "SETTLEMENT_NOT_SETTLED"
	StepFinalizeAborted        StepKind = "FINALIZE_ABORTED_SETTLEMENT"
	StepSetNdcFailed           StepKind = "SET_NDC_FAILED"
	StepFundsProcessingFailed  StepKind = "FUNDS_PROCESSING_FAILED"
	StepBalanceUnchanged       StepKind = "BALANCE_UNCHANGED"
	StepBalanceIncorrect       StepKind = "BALANCE_INCORRECT"
	StepAccountUpdateFailed    StepKind = "SETTLEMENT_PARTICIPANT_ACCOUNT_UPDATE_FAILED"
)

// AllStepKinds lists every step-failure kind for exhaustiveness tests.
var AllStepKinds = []StepKind{
	StepSetPsTransfersRecorded,
	StepSetPsTransfersReserved,
	StepProcessAdjustments,
	StepSettleAccounts,
	StepSettlementNotSettled,
	StepFinalizeAborted,
	StepSetNdcFailed,
	StepFundsProcessingFailed,
	StepBalanceUnchanged,
	StepBalanceIncorrect,
	StepAccountUpdateFailed,
}

// StepError is one finalization step failure with the evidence an operator
// needs to remediate it. It satisfies error so it can travel through error
// returns, but consumers treat the kind as data.
type StepError struct {
	Kind            StepKind `json:"kind"`
	SettlementID    int64    `json:"settlementId"`
	ParticipantID   int64    `json:"participantId,omitempty"`
	ParticipantName string   `json:"participantName,omitempty"`
	AccountID       int64    `json:"accountId,omitempty"`
	Detail          string   `json:"detail,omitempty"`
}

func (e StepError) Error() string {
	return e.Describe()
}

// Describe renders a step failure as operator-facing text. Exhaustive over
// StepKind.
func (e StepError) Describe() string {
	switch e.Kind {
	case StepSetPsTransfersRecorded:
		return fmt.Sprintf("settlement %d: failed to record participant-account transfers: %s", e.SettlementID, e.Detail)
	case StepSetPsTransfersReserved:
		return fmt.Sprintf("settlement %d: failed to reserve participant-account transfers: %s", e.SettlementID, e.Detail)
	case StepProcessAdjustments:
		return fmt.Sprintf("settlement %d: one or more balance adjustments failed: %s", e.SettlementID, e.Detail)
	case StepSettleAccounts:
		return fmt.Sprintf("settlement %d: failed to mark accounts settled: %s", e.SettlementID, e.Detail)
	case StepSettlementNotSettled:
		return fmt.Sprintf("settlement %d: settlement did not reach SETTLED within the polling budget", e.SettlementID)
	case StepFinalizeAborted:
		return fmt.Sprintf("settlement %d is aborted and cannot be finalized", e.SettlementID)
	case StepSetNdcFailed:
		return fmt.Sprintf("settlement %d: failed to update net debit cap for %s: %s", e.SettlementID, e.ParticipantName, e.Detail)
	case StepFundsProcessingFailed:
		return fmt.Sprintf("settlement %d: funds movement failed for %s account %d: %s", e.SettlementID, e.ParticipantName, e.AccountID, e.Detail)
	case StepBalanceUnchanged:
		return fmt.Sprintf("settlement %d: balance of %s account %d did not change after funds movement", e.SettlementID, e.ParticipantName, e.AccountID)
	case StepBalanceIncorrect:
		return fmt.Sprintf("settlement %d: balance of %s account %d changed but is not the expected value: %s", e.SettlementID, e.ParticipantName, e.AccountID, e.Detail)
	case StepAccountUpdateFailed:
		return fmt.Sprintf("settlement %d: failed to update settlement account %d state: %s", e.SettlementID, e.AccountID, e.Detail)
	}
	panic(fmt.Sprintf("finalize: unhandled step kind %q", string(e.Kind)))
}

// Options are the operator's per-finalization choices. AcknowledgeWarnings
// confirms the operator has seen the advisory findings on the latest report;
// the engine itself does not read it.
type Options struct {
	AdjustNetDebitCap   bool `json:"adjustNetDebitCap"`
	AdjustLiquidity     bool `json:"adjustLiquidity"`
	AcknowledgeWarnings bool `json:"acknowledgeWarnings"`
}

// Result reports where the state machine ended up and which steps failed.
type Result struct {
	SettlementID int64            `json:"settlementId"`
	FinalState   settlement.State `json:"finalState"`
	Errors       []StepError      `json:"errors,omitempty"`
}

// OK reports whether the run completed without step failures.
func (r Result) OK() bool {
	return len(r.Errors) == 0
}
