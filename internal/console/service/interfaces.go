package service

import (
	"context"
	"errors"

	"github.com/switchdesk-settlements-console/internal/clients/settlements"
	"github.com/switchdesk-settlements-console/internal/domain/archive"
	"github.com/switchdesk-settlements-console/internal/domain/audit"
	"github.com/switchdesk-settlements-console/internal/domain/finalize"
	"github.com/switchdesk-settlements-console/internal/domain/settlement"
	"github.com/switchdesk-settlements-console/internal/domain/validation"
)

var (
	// ErrUploadSuperseded reports that a newer upload for the same settlement
	// cancelled this one while it was being parsed.
	ErrUploadSuperseded = errors.New("report upload superseded by a newer upload")

	// ErrFinalizationInProgress reports that a finalization attempt is already
	// running for the settlement.
	ErrFinalizationInProgress = errors.New("finalization already in progress for settlement")

	// ErrNoReportUploaded reports that finalization was requested before any
	// report was uploaded and validated.
	ErrNoReportUploaded = errors.New("no validated report uploaded for settlement")

	// ErrReportHasErrors reports that the most recent uploaded report failed
	// validation with error-severity findings.
	ErrReportHasErrors = errors.New("latest uploaded report has validation errors")

	// ErrWarningsNotAcknowledged reports that the most recent uploaded report
	// carries warnings the operator has not acknowledged.
	ErrWarningsNotAcknowledged = errors.New("latest uploaded report has unacknowledged warnings")
)

// ReportValidation is the outcome of an uploaded report's validation run.
type ReportValidation struct {
	DocumentID   string               `json:"document_id"`
	SettlementID int64                `json:"settlement_id"`
	Findings     []validation.Finding `json:"findings"`
	ErrorCount   int                  `json:"error_count"`
	WarningCount int                  `json:"warning_count"`
}

// IsValid reports whether the report can be finalized (no error findings).
func (v *ReportValidation) IsValid() bool {
	return v.ErrorCount == 0
}

// ReportService defines report upload, validation, and archive operations
type ReportService interface {
	// ValidateReport parses an uploaded report file, validates it against the
	// settlement and ledger state, and archives the outcome. A newer upload
	// for the same settlement cancels an in-flight call, which then returns
	// ErrUploadSuperseded.
	ValidateReport(ctx context.Context, settlementID int64, fileName string, data []byte, correlationID string) (*ReportValidation, error)

	// GetArchivedReports retrieves the paginated upload history for a settlement
	GetArchivedReports(ctx context.Context, settlementID int64, page, perPage int) ([]*archive.Document, int64, error)
}

// FinalizeService defines finalization operations
type FinalizeService interface {
	// Finalize runs the finalization state machine against the settlement
	// using its most recent validated report. Returns the completed attempt
	// record, which carries any step errors.
	Finalize(ctx context.Context, settlementID int64, opts finalize.Options, correlationID string) (*audit.Attempt, error)

	// GetAttempts retrieves the paginated finalization attempt history
	GetAttempts(ctx context.Context, settlementID int64, page, perPage int) ([]*audit.Attempt, int64, error)
}

// SettlementAdminService exposes settlement and window administration
// passthroughs to the switch.
type SettlementAdminService interface {
	GetSettlement(ctx context.Context, id int64) (*settlement.Settlement, error)
	ListSettlements(ctx context.Context, filter settlements.ListFilter) ([]settlement.Settlement, error)
	CreateSettlement(ctx context.Context, reason string, windowIDs []int64) (*settlement.Settlement, error)
	ListWindows(ctx context.Context, state string) ([]settlement.Window, error)
	CloseWindow(ctx context.Context, windowID int64, reason string) (*settlement.Window, error)
}

// SettlementGateway is the slice of the settlement service client the console
// services depend on.
type SettlementGateway interface {
	GetSettlement(ctx context.Context, id int64) (*settlement.Settlement, error)
	ListSettlements(ctx context.Context, filter settlements.ListFilter) ([]settlement.Settlement, error)
	CreateSettlement(ctx context.Context, reason string, windowIDs []int64) (*settlement.Settlement, error)
	ListWindows(ctx context.Context, state string) ([]settlement.Window, error)
	CloseWindow(ctx context.Context, windowID int64, reason string) (*settlement.Window, error)
}
