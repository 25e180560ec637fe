package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/switchdesk-settlements-console/internal/domain/archive"
	"github.com/switchdesk-settlements-console/internal/domain/audit"
	"github.com/switchdesk-settlements-console/internal/domain/finalize"
	"github.com/switchdesk-settlements-console/internal/domain/outbox"
	"github.com/switchdesk-settlements-console/internal/domain/report"
	"github.com/switchdesk-settlements-console/internal/domain/settlement"
	"github.com/switchdesk-settlements-console/internal/finalizer"
)

// FinalizationEngine drives a settlement through its finalization states
type FinalizationEngine interface {
	ProcessFinalization(ctx context.Context, stl *settlement.Settlement, adjustments []finalize.Adjustment, opts finalize.Options) finalize.Result
}

// TxRunner runs a function inside a Postgres transaction
type TxRunner interface {
	ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// FinalizeServiceImpl implements the FinalizeService interface
type FinalizeServiceImpl struct {
	logger      *slog.Logger
	gateway     SettlementGateway
	collector   DataCollector
	engine      FinalizationEngine
	archiveRepo archive.Repository
	attemptRepo audit.Repository
	outboxRepo  outbox.Repository
	tx          TxRunner
}

// NewFinalizeService creates a new finalization service
func NewFinalizeService(
	logger *slog.Logger,
	gateway SettlementGateway,
	collector DataCollector,
	engine FinalizationEngine,
	archiveRepo archive.Repository,
	attemptRepo audit.Repository,
	outboxRepo outbox.Repository,
	tx TxRunner,
) FinalizeService {
	return &FinalizeServiceImpl{
		logger:      logger,
		gateway:     gateway,
		collector:   collector,
		engine:      engine,
		archiveRepo: archiveRepo,
		attemptRepo: attemptRepo,
		outboxRepo:  outboxRepo,
		tx:          tx,
	}
}

// Finalize runs the finalization state machine using the most recent validated
// report. One attempt per settlement runs at a time; the completed attempt and
// its lifecycle event are recorded in a single transaction.
func (s *FinalizeServiceImpl) Finalize(ctx context.Context, settlementID int64, opts finalize.Options, correlationID string) (*audit.Attempt, error) {
	running, err := s.attemptRepo.HasRunning(ctx, settlementID)
	if err != nil {
		return nil, err
	}
	if running {
		s.logger.Warn("Refusing concurrent finalization", "settlement_id", settlementID)
		return nil, ErrFinalizationInProgress
	}

	doc, err := s.archiveRepo.GetLatestBySettlementID(ctx, settlementID)
	if err != nil {
		var notFound archive.ErrDocumentNotFound
		if errors.As(err, &notFound) {
			return nil, ErrNoReportUploaded
		}
		return nil, err
	}
	if doc.ErrorCount > 0 {
		s.logger.Warn("Refusing finalization with invalid report",
			"settlement_id", settlementID,
			"document_id", doc.ID.String(),
			"errors", doc.ErrorCount,
		)
		return nil, ErrReportHasErrors
	}
	if doc.WarningCount > 0 && !opts.AcknowledgeWarnings {
		s.logger.Warn("Refusing finalization with unacknowledged warnings",
			"settlement_id", settlementID,
			"document_id", doc.ID.String(),
			"warnings", doc.WarningCount,
		)
		return nil, ErrWarningsNotAcknowledged
	}

	stl, err := s.gateway.GetSettlement(ctx, settlementID)
	if err != nil {
		return nil, err
	}

	rpt := &report.Report{SettlementID: doc.SettlementID, Entries: doc.Entries}
	fdata, err := s.collector.Collect(ctx, rpt, stl)
	if err != nil {
		return nil, err
	}

	adjustments, err := finalizer.BuildAdjustments(rpt, fdata)
	if err != nil {
		return nil, err
	}

	attempt := audit.NewAttempt(settlementID, stl.State, opts, correlationID)
	if err := s.attemptRepo.Create(ctx, attempt); err != nil {
		return nil, err
	}

	s.logger.Info("Finalization started",
		"settlement_id", settlementID,
		"attempt_id", attempt.ID.String(),
		"from_state", string(stl.State),
	)

	result := s.engine.ProcessFinalization(ctx, stl, adjustments, opts)
	attempt.Complete(&result)

	if err := s.recordOutcome(ctx, attempt); err != nil {
		return nil, err
	}

	s.logger.Info("Finalization finished",
		"settlement_id", settlementID,
		"attempt_id", attempt.ID.String(),
		"final_state", string(attempt.FinalState),
		"status", string(attempt.Status),
		"step_errors", len(attempt.Errors),
	)

	return attempt, nil
}

// recordOutcome persists the attempt outcome and its outbox event atomically
func (s *FinalizeServiceImpl) recordOutcome(ctx context.Context, attempt *audit.Attempt) error {
	msg, err := outbox.NewMessage(attempt)
	if err != nil {
		return err
	}

	return s.tx.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if err := s.attemptRepo.WithTx(tx).Update(ctx, attempt); err != nil {
			return err
		}
		return s.outboxRepo.WithTx(tx).Create(ctx, msg)
	})
}

// GetAttempts retrieves the paginated finalization attempt history
func (s *FinalizeServiceImpl) GetAttempts(ctx context.Context, settlementID int64, page, perPage int) ([]*audit.Attempt, int64, error) {
	offset := (page - 1) * perPage

	attempts, err := s.attemptRepo.GetBySettlementID(ctx, settlementID, perPage, offset)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.attemptRepo.CountBySettlementID(ctx, settlementID)
	if err != nil {
		return nil, 0, err
	}

	return attempts, total, nil
}
