// Package settlements is the JSON-over-HTTP client for the switch's
// settlement service: settlement reads, bulk participant-account state
// updates, settlement windows, and settlement creation.
package settlements

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/switchdesk-settlements-console/internal/clients"
	"github.com/switchdesk-settlements-console/internal/domain/settlement"
)

// Client talks to the settlement service.
type Client struct {
	api *clients.JSONClient
}

// NewClient builds a settlement service client. doer may be nil to use the
// default HTTP client.
func NewClient(logger *slog.Logger, baseURL string, doer clients.HTTPDoer) *Client {
	return &Client{
		api: clients.NewJSONClient(logger, "settlement service", baseURL, doer),
	}
}

// GetSettlement reads one settlement with its participants and accounts.
func (c *Client) GetSettlement(ctx context.Context, id int64) (*settlement.Settlement, error) {
	var out settlement.Settlement
	if err := c.api.Call(ctx, http.MethodGet, fmt.Sprintf("/settlements/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListFilter narrows a settlement list query.
type ListFilter struct {
	State    settlement.State
	FromDate time.Time
	ToDate   time.Time
}

// ListSettlements reads settlements matching the filter.
func (c *Client) ListSettlements(ctx context.Context, filter ListFilter) ([]settlement.Settlement, error) {
	q := url.Values{}
	if filter.State != "" {
		q.Set("state", string(filter.State))
	}
	if !filter.FromDate.IsZero() {
		q.Set("fromDateTime", filter.FromDate.UTC().Format(time.RFC3339))
	}
	if !filter.ToDate.IsZero() {
		q.Set("toDateTime", filter.ToDate.UTC().Format(time.RFC3339))
	}
	path := "/settlements"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out []settlement.Settlement
	if err := c.api.Call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AccountStateUpdate names one settlement account and the state it should
// move to.
type AccountStateUpdate struct {
	ParticipantID int64            `json:"participantId"`
	AccountID     int64            `json:"accountId"`
	State         settlement.State `json:"state"`
	Reason        string           `json:"reason"`
}

type updateAccountsRequest struct {
	Participants []updateParticipant `json:"participants"`
}

type updateParticipant struct {
	ID       int64           `json:"id"`
	Accounts []updateAccount `json:"accounts"`
}

type updateAccount struct {
	ID     int64            `json:"id"`
	State  settlement.State `json:"state"`
	Reason string           `json:"reason"`
}

// UpdateParticipantAccounts applies a bulk state change to settlement
// participant accounts. The service treats the batch atomically.
func (c *Client) UpdateParticipantAccounts(ctx context.Context, settlementID int64, updates []AccountStateUpdate) (*settlement.Settlement, error) {
	byParticipant := make(map[int64]*updateParticipant)
	var order []int64
	for _, u := range updates {
		p, ok := byParticipant[u.ParticipantID]
		if !ok {
			p = &updateParticipant{ID: u.ParticipantID}
			byParticipant[u.ParticipantID] = p
			order = append(order, u.ParticipantID)
		}
		p.Accounts = append(p.Accounts, updateAccount{ID: u.AccountID, State: u.State, Reason: u.Reason})
	}

	req := updateAccountsRequest{}
	for _, id := range order {
		req.Participants = append(req.Participants, *byParticipant[id])
	}

	var out settlement.Settlement
	if err := c.api.Call(ctx, http.MethodPut, fmt.Sprintf("/settlements/%d", settlementID), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListWindows reads settlement windows, optionally filtered by state.
func (c *Client) ListWindows(ctx context.Context, state string) ([]settlement.Window, error) {
	path := "/settlementWindows"
	if state != "" {
		path += "?state=" + url.QueryEscape(state)
	}
	var out []settlement.Window
	if err := c.api.Call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CloseWindow closes a settlement window.
func (c *Client) CloseWindow(ctx context.Context, windowID int64, reason string) (*settlement.Window, error) {
	body := map[string]string{"state": "CLOSED", "reason": reason}
	var out settlement.Window
	if err := c.api.Call(ctx, http.MethodPost, fmt.Sprintf("/settlementWindows/%d", windowID), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateSettlement creates a settlement from closed window IDs.
func (c *Client) CreateSettlement(ctx context.Context, reason string, windowIDs []int64) (*settlement.Settlement, error) {
	type windowRef struct {
		ID int64 `json:"id"`
	}
	body := struct {
		Reason            string      `json:"reason"`
		SettlementWindows []windowRef `json:"settlementWindows"`
	}{Reason: reason}
	for _, id := range windowIDs {
		body.SettlementWindows = append(body.SettlementWindows, windowRef{ID: id})
	}

	var out settlement.Settlement
	if err := c.api.Call(ctx, http.MethodPost, "/settlements", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
