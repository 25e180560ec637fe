package finalizer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/switchdesk-settlements-console/internal/clients/ledger"
	"github.com/switchdesk-settlements-console/internal/clients/settlements"
	"github.com/switchdesk-settlements-console/internal/domain/finalize"
	"github.com/switchdesk-settlements-console/internal/domain/settlement"
)

// EngineConfig bounds the engine's confirmation polling. Both loops are
// bounded; exhausting an attempt budget is a reported failure, never a hang.
type EngineConfig struct {
	BalancePollAttempts int
	BalancePollInterval time.Duration
	StatePollAttempts   int
	StatePollInterval   time.Duration
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.BalancePollAttempts <= 0 {
		c.BalancePollAttempts = 5
	}
	if c.BalancePollInterval <= 0 {
		c.BalancePollInterval = 2 * time.Second
	}
	if c.StatePollAttempts <= 0 {
		c.StatePollAttempts = 30
	}
	if c.StatePollInterval <= 0 {
		c.StatePollInterval = 2 * time.Second
	}
	return c
}

// Engine drives a settlement from its current lifecycle state to SETTLED,
// applying the computed adjustments along the way. Processing always starts
// at the settlement's current state, so re-invoking after a partial failure
// resumes where the previous run stopped.
type Engine struct {
	settlements SettlementAPI
	ledger      LedgerAPI
	cfg         EngineConfig
	logger      *slog.Logger
}

// NewEngine builds a finalization engine.
func NewEngine(logger *slog.Logger, settlementAPI SettlementAPI, ledgerAPI LedgerAPI, cfg EngineConfig) *Engine {
	return &Engine{
		settlements: settlementAPI,
		ledger:      ledgerAPI,
		cfg:         cfg.withDefaults(),
		logger:      logger,
	}
}

// ProcessFinalization runs every lifecycle transition still ahead of the
// settlement's current state. Step failures stop forward progress and are
// reported in the result; the settlement stays at its last reached state and
// a retry resumes from there.
func (e *Engine) ProcessFinalization(ctx context.Context, stl *settlement.Settlement, adjustments []finalize.Adjustment, opts finalize.Options) finalize.Result {
	result := finalize.Result{SettlementID: stl.ID}
	logger := e.logger.With("settlement_id", stl.ID)

	if stl.State == settlement.StateAborted {
		result.FinalState = settlement.StateAborted
		result.Errors = append(result.Errors, finalize.StepError{
			Kind:         finalize.StepFinalizeAborted,
			SettlementID: stl.ID,
		})
		return result
	}

	state := stl.State
	logger.Info("Starting settlement finalization", "state", string(state), "adjustments", len(adjustments))

	if state == settlement.StatePendingSettlement {
		if err := e.setAllAccountStates(ctx, stl, settlement.StatePsTransfersRecorded); err != nil {
			result.FinalState = state
			result.Errors = append(result.Errors, finalize.StepError{
				Kind:         finalize.StepSetPsTransfersRecorded,
				SettlementID: stl.ID,
				Detail:       err.Error(),
			})
			return result
		}
		state = settlement.StatePsTransfersRecorded
		logger.Info("Participant-account transfers recorded")
	}

	if state == settlement.StatePsTransfersRecorded {
		if err := e.setAllAccountStates(ctx, stl, settlement.StatePsTransfersReserved); err != nil {
			result.FinalState = state
			result.Errors = append(result.Errors, finalize.StepError{
				Kind:         finalize.StepSetPsTransfersReserved,
				SettlementID: stl.ID,
				Detail:       err.Error(),
			})
			return result
		}
		state = settlement.StatePsTransfersReserved
		logger.Info("Participant-account transfers reserved")
	}

	if state == settlement.StatePsTransfersReserved {
		stepErrs := e.commitAdjustments(ctx, stl, adjustments, opts)
		if len(stepErrs) > 0 {
			result.FinalState = state
			summary := finalize.StepError{
				Kind:         finalize.StepProcessAdjustments,
				SettlementID: stl.ID,
				Detail:       fmt.Sprintf("%d of %d adjustments failed", len(stepErrs), len(adjustments)),
			}
			result.Errors = append(result.Errors, summary)
			result.Errors = append(result.Errors, stepErrs...)
			return result
		}
		state = settlement.StatePsTransfersCommitted
		logger.Info("Adjustments committed")
	}

	if state == settlement.StatePsTransfersCommitted || state == settlement.StateSettling {
		if err := e.settleRemainingAccounts(ctx, stl); err != nil {
			result.FinalState = state
			result.Errors = append(result.Errors, finalize.StepError{
				Kind:         finalize.StepSettleAccounts,
				SettlementID: stl.ID,
				Detail:       err.Error(),
			})
			return result
		}
		if !e.awaitSettled(ctx, stl.ID) {
			result.FinalState = settlement.StateSettling
			result.Errors = append(result.Errors, finalize.StepError{
				Kind:         finalize.StepSettlementNotSettled,
				SettlementID: stl.ID,
			})
			return result
		}
		state = settlement.StateSettled
		logger.Info("Settlement settled")
	}

	result.FinalState = state
	return result
}

// setAllAccountStates moves every participant account not yet at the target
// state forward to it, in one bulk call.
func (e *Engine) setAllAccountStates(ctx context.Context, stl *settlement.Settlement, target settlement.State) error {
	var updates []settlements.AccountStateUpdate
	for _, p := range stl.Participants {
		for _, a := range p.Accounts {
			if a.State.AtOrPast(target) {
				continue
			}
			updates = append(updates, settlements.AccountStateUpdate{
				ParticipantID: p.ID,
				AccountID:     a.ID,
				State:         target,
				Reason:        settlementReason(stl.ID),
			})
		}
	}
	if len(updates) == 0 {
		return nil
	}

	updated, err := e.settlements.UpdateParticipantAccounts(ctx, stl.ID, updates)
	if err != nil {
		return err
	}
	if updated != nil {
		*stl = *updated
	}
	return nil
}

// commitAdjustments processes debits strictly before credits so the window in
// which the switch carries unfunded credit exposure stays closed. Within each
// side, failures are collected rather than short-circuiting. Adjustments are
// applied one at a time: concurrent limit updates trip a lock-contention
// failure in the ledger service.
func (e *Engine) commitAdjustments(ctx context.Context, stl *settlement.Settlement, adjustments []finalize.Adjustment, opts finalize.Options) []finalize.StepError {
	debits, credits := finalize.SplitAdjustments(adjustments)

	var stepErrs []finalize.StepError
	for _, side := range [][]finalize.Adjustment{debits, credits} {
		for _, adj := range side {
			if adj.SettlementAccountRec.State.AtOrPast(settlement.StatePsTransfersCommitted) {
				// Already processed on an earlier attempt.
				continue
			}
			if se := e.applyAdjustment(ctx, stl, adj, opts); se != nil {
				stepErrs = append(stepErrs, *se)
			}
		}
	}
	if len(stepErrs) > 0 {
		return stepErrs
	}

	if se := e.sweepZeroAmountAccounts(ctx, stl); se != nil {
		stepErrs = append(stepErrs, *se)
	}
	return stepErrs
}

// applyAdjustment runs the per-adjustment protocol: NDC decrease, funds
// movement with balance confirmation, NDC increase, then the account state
// transition. The first failure stops this adjustment only.
func (e *Engine) applyAdjustment(ctx context.Context, stl *settlement.Settlement, adj finalize.Adjustment, opts finalize.Options) *finalize.StepError {
	name := adj.Participant.Name
	logger := e.logger.With(
		"settlement_id", stl.ID,
		"participant", name,
		"settlement_account_id", adj.SettlementAccount.ID,
		"amount", adj.Amount,
	)

	ndcTarget := adj.TargetBalance
	adjustNdc := opts.AdjustNetDebitCap && math.Abs(adj.CurrentLimit.Value-ndcTarget) > Epsilon
	newLimit := finalize.Limit{
		Type:     NetDebitCapLimitType,
		Value:    ndcTarget,
		Currency: adj.CurrentLimit.Currency,
	}

	// NDC decreases go before the funds movement, increases after, so the
	// participant's risk exposure never transiently widens.
	if adjustNdc && ndcTarget < adj.CurrentLimit.Value {
		if err := e.ledger.UpdateParticipantLimit(ctx, name, newLimit); err != nil {
			logger.Error("Failed to decrease net debit cap", "error", err)
			return e.adjustmentError(finalize.StepSetNdcFailed, stl.ID, adj, err.Error())
		}
		logger.Info("Net debit cap decreased", "limit", ndcTarget)
	}

	if opts.AdjustLiquidity && adj.Amount != 0 {
		if se := e.moveFunds(ctx, stl, adj, logger); se != nil {
			return se
		}
	}

	if adjustNdc && ndcTarget > adj.CurrentLimit.Value {
		if err := e.ledger.UpdateParticipantLimit(ctx, name, newLimit); err != nil {
			logger.Error("Failed to increase net debit cap", "error", err)
			return e.adjustmentError(finalize.StepSetNdcFailed, stl.ID, adj, err.Error())
		}
		logger.Info("Net debit cap increased", "limit", ndcTarget)
	}

	updates := []settlements.AccountStateUpdate{{
		ParticipantID: adj.SettlementParticipant.ID,
		AccountID:     adj.SettlementAccountRec.ID,
		State:         settlement.StatePsTransfersCommitted,
		Reason:        settlementReason(stl.ID),
	}}
	if _, err := e.settlements.UpdateParticipantAccounts(ctx, stl.ID, updates); err != nil {
		logger.Error("Failed to update settlement participant account state", "error", err)
		return e.adjustmentError(finalize.StepAccountUpdateFailed, stl.ID, adj, err.Error())
	}

	logger.Info("Adjustment applied")
	return nil
}

// moveFunds records the funds movement and confirms it landed by polling the
// settlement account's live value until it moves off its pre-adjustment
// value.
func (e *Engine) moveFunds(ctx context.Context, stl *settlement.Settlement, adj finalize.Adjustment, logger *slog.Logger) *finalize.StepError {
	preValue := adj.Amount - adj.TargetBalance
	expectedValue := -adj.TargetBalance

	movement := ledger.FundsMovement{
		ParticipantName: adj.Participant.Name,
		AccountID:       adj.SettlementAccount.ID,
		Currency:        adj.SettlementAccount.Currency,
		Reason:          settlementReason(stl.ID),
	}

	var err error
	if adj.Amount > 0 {
		movement.Amount = adj.Amount
		err = e.ledger.RecordFundsIn(ctx, movement)
	} else {
		movement.Amount = -adj.Amount
		err = e.ledger.RecordFundsOut(ctx, movement)
	}
	if err != nil {
		logger.Error("Funds movement failed", "error", err)
		return e.adjustmentError(finalize.StepFundsProcessingFailed, stl.ID, adj, err.Error())
	}

	for attempt := 1; attempt <= e.cfg.BalancePollAttempts; attempt++ {
		positions, err := e.ledger.GetParticipantPositions(ctx, adj.Participant.Name)
		if err != nil {
			logger.Error("Failed to read positions while confirming balance", "error", err)
			return e.adjustmentError(finalize.StepFundsProcessingFailed, stl.ID, adj, err.Error())
		}
		for _, p := range positions {
			if p.AccountID != adj.SettlementAccount.ID {
				continue
			}
			if math.Abs(p.Value-preValue) <= Epsilon {
				break // unchanged so far, keep polling
			}
			if math.Abs(p.Value-expectedValue) > Epsilon {
				detail := fmt.Sprintf("expected %v, observed %v", expectedValue, p.Value)
				logger.Error("Balance changed to an unexpected value", "expected", expectedValue, "observed", p.Value)
				return e.adjustmentError(finalize.StepBalanceIncorrect, stl.ID, adj, detail)
			}
			logger.Info("Balance confirmed", "value", p.Value)
			return nil
		}

		if attempt < e.cfg.BalancePollAttempts {
			select {
			case <-ctx.Done():
				return e.adjustmentError(finalize.StepFundsProcessingFailed, stl.ID, adj, ctx.Err().Error())
			case <-time.After(e.cfg.BalancePollInterval):
			}
		}
	}

	logger.Error("Balance did not change within the polling budget")
	return e.adjustmentError(finalize.StepBalanceUnchanged, stl.ID, adj, "")
}

// sweepZeroAmountAccounts settles accounts that had nothing to move and were
// therefore never touched by the adjustment protocol.
func (e *Engine) sweepZeroAmountAccounts(ctx context.Context, stl *settlement.Settlement) *finalize.StepError {
	var updates []settlements.AccountStateUpdate
	for _, p := range stl.Participants {
		for _, a := range p.Accounts {
			if a.NetSettlementAmount == 0 && !a.State.AtOrPast(settlement.StatePsTransfersCommitted) {
				updates = append(updates, settlements.AccountStateUpdate{
					ParticipantID: p.ID,
					AccountID:     a.ID,
					State:         settlement.StateSettled,
					Reason:        settlementReason(stl.ID),
				})
			}
		}
	}
	if len(updates) == 0 {
		return nil
	}

	updated, err := e.settlements.UpdateParticipantAccounts(ctx, stl.ID, updates)
	if err != nil {
		return &finalize.StepError{
			Kind:         finalize.StepAccountUpdateFailed,
			SettlementID: stl.ID,
			Detail:       fmt.Sprintf("settling zero-amount accounts: %v", err),
		}
	}
	if updated != nil {
		*stl = *updated
	}
	return nil
}

// settleRemainingAccounts marks every not-yet-settled account settled.
func (e *Engine) settleRemainingAccounts(ctx context.Context, stl *settlement.Settlement) error {
	return e.setAllAccountStates(ctx, stl, settlement.StateSettled)
}

// awaitSettled polls the settlement until the switch reports it SETTLED or
// the attempt budget runs out.
func (e *Engine) awaitSettled(ctx context.Context, settlementID int64) bool {
	for attempt := 1; attempt <= e.cfg.StatePollAttempts; attempt++ {
		stl, err := e.settlements.GetSettlement(ctx, settlementID)
		if err == nil && stl.State == settlement.StateSettled {
			return true
		}
		if err != nil {
			e.logger.Warn("Failed to read settlement while awaiting SETTLED",
				"settlement_id", settlementID,
				"attempt", attempt,
				"error", err,
			)
		}

		if attempt < e.cfg.StatePollAttempts {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(e.cfg.StatePollInterval):
			}
		}
	}
	return false
}

func (e *Engine) adjustmentError(kind finalize.StepKind, settlementID int64, adj finalize.Adjustment, detail string) *finalize.StepError {
	return &finalize.StepError{
		Kind:            kind,
		SettlementID:    settlementID,
		ParticipantID:   adj.Participant.ID,
		ParticipantName: adj.Participant.Name,
		AccountID:       adj.SettlementAccount.ID,
		Detail:          detail,
	}
}

func settlementReason(settlementID int64) string {
	return fmt.Sprintf("Finalization of settlement %d", settlementID)
}
