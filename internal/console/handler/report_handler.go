package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/switchdesk-settlements-console/internal/clients"
	"github.com/switchdesk-settlements-console/internal/console/middleware"
	"github.com/switchdesk-settlements-console/internal/console/service"
	reportfile "github.com/switchdesk-settlements-console/internal/report"
)

// ReportFormField is the multipart form field carrying the report spreadsheet
const ReportFormField = "report"

// ReportHandler handles HTTP requests for report upload and archive operations
type ReportHandler struct {
	reportService service.ReportService
	logger        *slog.Logger
	maxBytes      int64
}

// NewReportHandler creates a new report handler
func NewReportHandler(logger *slog.Logger, reportService service.ReportService, maxBytes int64) *ReportHandler {
	return &ReportHandler{
		reportService: reportService,
		logger:        logger,
		maxBytes:      maxBytes,
	}
}

// Upload accepts a settlement finalization report spreadsheet, validates it,
// and returns the findings.
func (h *ReportHandler) Upload(c *gin.Context) {
	settlementID, ok := parseSettlementID(c, h.logger)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)

	fileHeader, err := c.FormFile(ReportFormField)
	if err != nil {
		h.logger.Error("Missing report file in upload", "settlement_id", settlementID, "error", err)
		RespondBadRequest(c, "Missing report file: expected multipart field \""+ReportFormField+"\"")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.logger.Error("Failed to open uploaded report", "settlement_id", settlementID, "error", err)
		RespondInternalError(c)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("Failed to read uploaded report", "settlement_id", settlementID, "error", err)
		RespondBadRequest(c, "Failed to read report file")
		return
	}

	result, err := h.reportService.ValidateReport(
		c.Request.Context(),
		settlementID,
		fileHeader.Filename,
		data,
		middleware.GetCorrelationID(c),
	)
	if err != nil {
		h.respondReportError(c, settlementID, err)
		return
	}

	response := ReportValidationResponse{
		DocumentID:   result.DocumentID,
		SettlementID: result.SettlementID,
		Valid:        result.IsValid(),
		ErrorCount:   result.ErrorCount,
		WarningCount: result.WarningCount,
		Findings:     make([]FindingResponse, 0, len(result.Findings)),
	}
	for _, f := range result.Findings {
		response.Findings = append(response.Findings, mapFindingToResponse(f))
	}

	RespondOK(c, response)
}

// History retrieves the paginated archive of uploaded reports for a settlement
func (h *ReportHandler) History(c *gin.Context) {
	settlementID, ok := parseSettlementID(c, h.logger)
	if !ok {
		return
	}

	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		h.logger.Error("Invalid pagination parameters", "error", err)
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	docs, total, err := h.reportService.GetArchivedReports(c.Request.Context(), settlementID, pagination.Page, pagination.PerPage)
	if err != nil {
		h.logger.Error("Failed to get archived reports", "settlement_id", settlementID, "error", err)
		RespondInternalError(c)
		return
	}

	RespondWithPaginatedData(c, http.StatusOK, docs, pagination.Page, pagination.PerPage, int(total))
}

func (h *ReportHandler) respondReportError(c *gin.Context, settlementID int64, err error) {
	var cellErr reportfile.CellError
	var apiErr *clients.APIError

	switch {
	case errors.Is(err, service.ErrUploadSuperseded):
		RespondConflict(c, "Upload superseded by a newer report for this settlement")
	case errors.As(err, &cellErr):
		RespondWithError(c, http.StatusUnprocessableEntity, "MALFORMED_REPORT", cellErr.Error())
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound:
		RespondNotFound(c, "Settlement not found")
	default:
		h.logger.Error("Failed to validate report", "settlement_id", settlementID, "error", err)
		RespondInternalError(c)
	}
}

// parseSettlementID extracts and validates the settlement ID path parameter
func parseSettlementID(c *gin.Context, logger *slog.Logger) (int64, bool) {
	idParam := c.Param("id")
	id, err := strconv.ParseInt(idParam, 10, 64)
	if err != nil || id <= 0 {
		logger.Error("Invalid settlement ID", "id", idParam, "error", err)
		RespondBadRequest(c, "Invalid settlement ID")
		return 0, false
	}
	return id, true
}
