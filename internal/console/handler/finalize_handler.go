package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/switchdesk-settlements-console/internal/clients"
	"github.com/switchdesk-settlements-console/internal/console/middleware"
	"github.com/switchdesk-settlements-console/internal/console/service"
	"github.com/switchdesk-settlements-console/internal/domain/finalize"
)

// FinalizeHandler handles HTTP requests for settlement finalization
type FinalizeHandler struct {
	finalizeService service.FinalizeService
	logger          *slog.Logger
}

// NewFinalizeHandler creates a new finalization handler
func NewFinalizeHandler(logger *slog.Logger, finalizeService service.FinalizeService) *FinalizeHandler {
	return &FinalizeHandler{
		finalizeService: finalizeService,
		logger:          logger,
	}
}

// Finalize runs the finalization state machine for a settlement using its
// most recent validated report.
func (h *FinalizeHandler) Finalize(c *gin.Context) {
	settlementID, ok := parseSettlementID(c, h.logger)
	if !ok {
		return
	}

	var req FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	opts := finalize.Options{
		AdjustNetDebitCap:   req.AdjustNetDebitCap,
		AdjustLiquidity:     req.AdjustLiquidity,
		AcknowledgeWarnings: req.AcknowledgeWarnings,
	}

	attempt, err := h.finalizeService.Finalize(
		c.Request.Context(),
		settlementID,
		opts,
		middleware.GetCorrelationID(c),
	)
	if err != nil {
		h.respondFinalizeError(c, settlementID, err)
		return
	}

	RespondOK(c, mapAttemptToResponse(attempt))
}

// Attempts retrieves the paginated finalization attempt history for a settlement
func (h *FinalizeHandler) Attempts(c *gin.Context) {
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

	attempts, total, err := h.finalizeService.GetAttempts(c.Request.Context(), settlementID, pagination.Page, pagination.PerPage)
	if err != nil {
		h.logger.Error("Failed to get finalization attempts", "settlement_id", settlementID, "error", err)
		RespondInternalError(c)
		return
	}

	responses := make([]AttemptResponse, 0, len(attempts))
	for _, attempt := range attempts {
		responses = append(responses, mapAttemptToResponse(attempt))
	}

	RespondWithPaginatedData(c, http.StatusOK, responses, pagination.Page, pagination.PerPage, int(total))
}

func (h *FinalizeHandler) respondFinalizeError(c *gin.Context, settlementID int64, err error) {
	var apiErr *clients.APIError

	switch {
	case errors.Is(err, service.ErrFinalizationInProgress):
		RespondConflict(c, "A finalization attempt is already running for this settlement")
	case errors.Is(err, service.ErrNoReportUploaded):
		RespondWithError(c, http.StatusPreconditionFailed, "NO_REPORT", "No validated report uploaded for this settlement")
	case errors.Is(err, service.ErrReportHasErrors):
		RespondWithError(c, http.StatusPreconditionFailed, "REPORT_INVALID", "The latest uploaded report has validation errors")
	case errors.Is(err, service.ErrWarningsNotAcknowledged):
		RespondWithError(c, http.StatusPreconditionFailed, "WARNINGS_NOT_ACKNOWLEDGED", "The latest uploaded report has warnings that must be acknowledged")
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound:
		RespondNotFound(c, "Settlement not found")
	default:
		h.logger.Error("Failed to finalize settlement", "settlement_id", settlementID, "error", err)
		RespondInternalError(c)
	}
}
