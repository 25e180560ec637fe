package handler

import (
	"time"

	"github.com/switchdesk-settlements-console/internal/domain/audit"
	"github.com/switchdesk-settlements-console/internal/domain/settlement"
	"github.com/switchdesk-settlements-console/internal/domain/validation"
)

// FinalizeRequest represents a request to finalize a settlement
type FinalizeRequest struct {
	AdjustNetDebitCap   bool `json:"adjust_net_debit_cap"`
	AdjustLiquidity     bool `json:"adjust_liquidity"`
	AcknowledgeWarnings bool `json:"acknowledge_warnings"`
}

// CreateSettlementRequest represents a request to settle closed windows
type CreateSettlementRequest struct {
	Reason    string  `json:"reason" binding:"required"`
	WindowIDs []int64 `json:"window_ids" binding:"required,min=1"`
}

// CloseWindowRequest represents a request to close a settlement window
type CloseWindowRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// FindingResponse represents one validation finding in API responses
type FindingResponse struct {
	Kind        string          `json:"kind"`
	Severity    string          `json:"severity"`
	Description string          `json:"description"`
	Data        validation.Data `json:"data"`
}

// ReportValidationResponse represents the outcome of a report upload
type ReportValidationResponse struct {
	DocumentID   string            `json:"document_id"`
	SettlementID int64             `json:"settlement_id"`
	Valid        bool              `json:"valid"`
	ErrorCount   int               `json:"error_count"`
	WarningCount int               `json:"warning_count"`
	Findings     []FindingResponse `json:"findings"`
}

// AttemptResponse represents a finalization attempt in API responses
type AttemptResponse struct {
	ID                string              `json:"id"`
	SettlementID      int64               `json:"settlement_id"`
	FromState         string              `json:"from_state"`
	FinalState        string              `json:"final_state"`
	Status            string              `json:"status"`
	AdjustNetDebitCap bool                `json:"adjust_net_debit_cap"`
	AdjustLiquidity   bool                `json:"adjust_liquidity"`
	Errors            []StepErrorResponse `json:"errors,omitempty"`
	StartedAt         string              `json:"started_at"`
	CompletedAt       string              `json:"completed_at,omitempty"`
}

// StepErrorResponse represents one finalization step failure
type StepErrorResponse struct {
	Kind            string `json:"kind"`
	Description     string `json:"description"`
	ParticipantName string `json:"participant_name,omitempty"`
	AccountID       int64  `json:"account_id,omitempty"`
}

// SettlementResponse represents a settlement in API responses
type SettlementResponse struct {
	ID           int64   `json:"id"`
	State        string  `json:"state"`
	Reason       string  `json:"reason"`
	TotalValue   float64 `json:"total_value"`
	Participants int     `json:"participants"`
	CreatedDate  string  `json:"created_date"`
	ChangedDate  string  `json:"changed_date"`
}

// WindowResponse represents a settlement window in API responses
type WindowResponse struct {
	ID          int64  `json:"id"`
	State       string `json:"state"`
	Reason      string `json:"reason"`
	CreatedDate string `json:"created_date"`
	ChangedDate string `json:"changed_date"`
}

// ListSettlementsParams represents filter parameters for settlement listing
type ListSettlementsParams struct {
	State    settlement.State `form:"state"`
	FromDate time.Time        `form:"from_date" time_format:"2006-01-02" time_utc:"1"`
	ToDate   time.Time        `form:"to_date" time_format:"2006-01-02" time_utc:"1"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=20" binding:"min=1,max=100"`
}

// mapAttemptToResponse maps a finalization attempt to its API representation
func mapAttemptToResponse(attempt *audit.Attempt) AttemptResponse {
	response := AttemptResponse{
		ID:                attempt.ID.String(),
		SettlementID:      attempt.SettlementID,
		FromState:         string(attempt.FromState),
		FinalState:        string(attempt.FinalState),
		Status:            string(attempt.Status),
		AdjustNetDebitCap: attempt.AdjustNetDebitCap,
		AdjustLiquidity:   attempt.AdjustLiquidity,
		StartedAt:         attempt.StartedAt.Format(time.RFC3339),
	}

	for _, stepErr := range attempt.Errors {
		response.Errors = append(response.Errors, StepErrorResponse{
			Kind:            string(stepErr.Kind),
			Description:     stepErr.Describe(),
			ParticipantName: stepErr.ParticipantName,
			AccountID:       stepErr.AccountID,
		})
	}

	if attempt.CompletedAt != nil {
		response.CompletedAt = attempt.CompletedAt.Format(time.RFC3339)
	}

	return response
}

// mapSettlementToResponse maps a settlement to its API representation
func mapSettlementToResponse(stl *settlement.Settlement) SettlementResponse {
	return SettlementResponse{
		ID:           stl.ID,
		State:        string(stl.State),
		Reason:       stl.Reason,
		TotalValue:   stl.TotalValue(),
		Participants: len(stl.Participants),
		CreatedDate:  stl.CreatedDate.Format(time.RFC3339),
		ChangedDate:  stl.ChangedDate.Format(time.RFC3339),
	}
}

// mapWindowToResponse maps a settlement window to its API representation
func mapWindowToResponse(win *settlement.Window) WindowResponse {
	return WindowResponse{
		ID:          win.ID,
		State:       win.State,
		Reason:      win.Reason,
		CreatedDate: win.CreatedDate.Format(time.RFC3339),
		ChangedDate: win.ChangedDate.Format(time.RFC3339),
	}
}

// mapFindingToResponse maps a validation finding to its API representation
func mapFindingToResponse(f validation.Finding) FindingResponse {
	return FindingResponse{
		Kind:        string(f.Kind),
		Severity:    string(f.Kind.Severity()),
		Description: f.Describe(),
		Data:        f.Data,
	}
}
