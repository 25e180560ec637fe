package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/switchdesk-settlements-console/internal/clients"
	"github.com/switchdesk-settlements-console/internal/clients/settlements"
	"github.com/switchdesk-settlements-console/internal/console/service"
)

// SettlementHandler handles HTTP requests for settlement and window administration
type SettlementHandler struct {
	adminService service.SettlementAdminService
	logger       *slog.Logger
}

// NewSettlementHandler creates a new settlement administration handler
func NewSettlementHandler(logger *slog.Logger, adminService service.SettlementAdminService) *SettlementHandler {
	return &SettlementHandler{
		adminService: adminService,
		logger:       logger,
	}
}

// GetByID retrieves a single settlement, returns 404 if not found
func (h *SettlementHandler) GetByID(c *gin.Context) {
	settlementID, ok := parseSettlementID(c, h.logger)
	if !ok {
		return
	}

	stl, err := h.adminService.GetSettlement(c.Request.Context(), settlementID)
	if err != nil {
		var apiErr *clients.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			RespondNotFound(c, "Settlement not found")
			return
		}
		h.logger.Error("Failed to get settlement", "settlement_id", settlementID, "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, mapSettlementToResponse(stl))
}

// List retrieves settlements, optionally filtered by state and date range
func (h *SettlementHandler) List(c *gin.Context) {
	var params ListSettlementsParams
	if err := c.ShouldBindQuery(&params); err != nil {
		h.logger.Error("Invalid settlement filter parameters", "error", err)
		RespondBadRequest(c, "Invalid filter parameters")
		return
	}

	filter := settlements.ListFilter{
		State:    params.State,
		FromDate: params.FromDate,
		ToDate:   params.ToDate,
	}

	list, err := h.adminService.ListSettlements(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list settlements", "error", err)
		RespondInternalError(c)
		return
	}

	responses := make([]SettlementResponse, 0, len(list))
	for i := range list {
		responses = append(responses, mapSettlementToResponse(&list[i]))
	}

	RespondOK(c, responses)
}

// Create settles one or more closed windows into a new settlement
func (h *SettlementHandler) Create(c *gin.Context) {
	var req CreateSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	stl, err := h.adminService.CreateSettlement(c.Request.Context(), req.Reason, req.WindowIDs)
	if err != nil {
		h.logger.Error("Failed to create settlement", "window_ids", req.WindowIDs, "error", err)
		RespondInternalError(c)
		return
	}

	RespondCreated(c, mapSettlementToResponse(stl))
}

// ListWindows retrieves settlement windows, optionally filtered by state
func (h *SettlementHandler) ListWindows(c *gin.Context) {
	state := c.Query("state")

	windows, err := h.adminService.ListWindows(c.Request.Context(), state)
	if err != nil {
		h.logger.Error("Failed to list settlement windows", "error", err)
		RespondInternalError(c)
		return
	}

	responses := make([]WindowResponse, 0, len(windows))
	for i := range windows {
		responses = append(responses, mapWindowToResponse(&windows[i]))
	}

	RespondOK(c, responses)
}

// CloseWindow closes an open settlement window
func (h *SettlementHandler) CloseWindow(c *gin.Context) {
	idParam := c.Param("id")
	windowID, err := strconv.ParseInt(idParam, 10, 64)
	if err != nil || windowID <= 0 {
		h.logger.Error("Invalid window ID", "id", idParam, "error", err)
		RespondBadRequest(c, "Invalid window ID")
		return
	}

	var req CloseWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	win, err := h.adminService.CloseWindow(c.Request.Context(), windowID, req.Reason)
	if err != nil {
		var apiErr *clients.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			RespondNotFound(c, "Settlement window not found")
			return
		}
		h.logger.Error("Failed to close settlement window", "window_id", windowID, "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, mapWindowToResponse(win))
}
