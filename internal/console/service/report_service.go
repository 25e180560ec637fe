package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/switchdesk-settlements-console/internal/domain/archive"
	"github.com/switchdesk-settlements-console/internal/domain/finalize"
	"github.com/switchdesk-settlements-console/internal/domain/report"
	"github.com/switchdesk-settlements-console/internal/domain/settlement"
	"github.com/switchdesk-settlements-console/internal/finalizer"
	reportfile "github.com/switchdesk-settlements-console/internal/report"
)

// DataCollector assembles the reference data a report is validated against
type DataCollector interface {
	Collect(ctx context.Context, rpt *report.Report, stl *settlement.Settlement) (*finalize.Data, error)
}

// ReportServiceImpl implements the ReportService interface
type ReportServiceImpl struct {
	logger      *slog.Logger
	gateway     SettlementGateway
	collector   DataCollector
	archiveRepo archive.Repository

	mu       sync.Mutex
	inFlight map[int64]*parseToken
}

// parseToken identifies one in-flight parse so a finished parse only
// deregisters itself, never a successor.
type parseToken struct {
	cancel context.CancelFunc
}

// NewReportService creates a new report service
func NewReportService(logger *slog.Logger, gateway SettlementGateway, collector DataCollector, archiveRepo archive.Repository) ReportService {
	return &ReportServiceImpl{
		logger:      logger,
		gateway:     gateway,
		collector:   collector,
		archiveRepo: archiveRepo,
		inFlight:    make(map[int64]*parseToken),
	}
}

// ValidateReport parses, validates, and archives an uploaded report. Only one
// parse per settlement runs at a time: a newer upload cancels the older one.
func (s *ReportServiceImpl) ValidateReport(ctx context.Context, settlementID int64, fileName string, data []byte, correlationID string) (*ReportValidation, error) {
	parseCtx, token := s.beginParse(ctx, settlementID)
	defer s.endParse(settlementID, token)

	rpt, err := reportfile.Parse(parseCtx, data)
	if err != nil {
		if parseCtx.Err() != nil && ctx.Err() == nil {
			s.logger.Info("Report parse cancelled by a newer upload", "settlement_id", settlementID)
			return nil, ErrUploadSuperseded
		}
		s.logger.Error("Failed to parse report", "settlement_id", settlementID, "error", err)
		return nil, err
	}

	stl, err := s.gateway.GetSettlement(ctx, settlementID)
	if err != nil {
		s.logger.Error("Failed to fetch settlement for report validation", "settlement_id", settlementID, "error", err)
		return nil, err
	}

	fdata, err := s.collector.Collect(ctx, rpt, stl)
	if err != nil {
		s.logger.Error("Failed to collect reference data for report validation", "settlement_id", settlementID, "error", err)
		return nil, err
	}

	findings := finalizer.Validate(rpt, stl, fdata)

	doc := archive.NewDocument(rpt, fileName, findings, correlationID)
	if err := s.archiveRepo.Save(ctx, doc); err != nil {
		return nil, err
	}

	s.logger.Info("Report validated and archived",
		"settlement_id", settlementID,
		"document_id", doc.ID.String(),
		"errors", doc.ErrorCount,
		"warnings", doc.WarningCount,
	)

	return &ReportValidation{
		DocumentID:   doc.ID.String(),
		SettlementID: rpt.SettlementID,
		Findings:     doc.Findings,
		ErrorCount:   doc.ErrorCount,
		WarningCount: doc.WarningCount,
	}, nil
}

// GetArchivedReports retrieves the paginated upload history for a settlement
func (s *ReportServiceImpl) GetArchivedReports(ctx context.Context, settlementID int64, page, perPage int) ([]*archive.Document, int64, error) {
	offset := (page - 1) * perPage

	docs, err := s.archiveRepo.GetBySettlementID(ctx, settlementID, perPage, offset)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.archiveRepo.CountBySettlementID(ctx, settlementID)
	if err != nil {
		return nil, 0, err
	}

	return docs, total, nil
}

// beginParse cancels any in-flight parse for the settlement and registers a
// new cancellable context for this one.
func (s *ReportServiceImpl) beginParse(ctx context.Context, settlementID int64) (context.Context, *parseToken) {
	parseCtx, cancel := context.WithCancel(ctx)
	token := &parseToken{cancel: cancel}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.inFlight[settlementID]; ok {
		prev.cancel()
	}
	s.inFlight[settlementID] = token

	return parseCtx, token
}

// endParse deregisters the parse if it is still the current one.
func (s *ReportServiceImpl) endParse(settlementID int64, token *parseToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[settlementID] == token {
		delete(s.inFlight, settlementID)
	}
	token.cancel()
}
