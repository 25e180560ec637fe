// Package ledger is the JSON-over-HTTP client for the switch's central ledger
// admin API: participants with their accounts and limits, account positions,
// net-debit-cap updates, and funds in/out recording.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/switchdesk-settlements-console/internal/clients"
	"github.com/switchdesk-settlements-console/internal/domain/currency"
	"github.com/switchdesk-settlements-console/internal/domain/finalize"
)

// Client talks to the central ledger admin API.
type Client struct {
	api *clients.JSONClient
}

// NewClient builds a ledger client. doer may be nil to use the default HTTP
// client.
func NewClient(logger *slog.Logger, baseURL string, doer clients.HTTPDoer) *Client {
	return &Client{
		api: clients.NewJSONClient(logger, "ledger service", baseURL, doer),
	}
}

// GetParticipants reads every participant with accounts attached.
func (c *Client) GetParticipants(ctx context.Context) ([]finalize.LedgerParticipant, error) {
	var out []finalize.LedgerParticipant
	if err := c.api.Call(ctx, http.MethodGet, "/participants", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type limitEnvelope struct {
	Currency currency.Code `json:"currency"`
	Limit    struct {
		Type  string  `json:"type"`
		Value float64 `json:"value"`
	} `json:"limit"`
}

// GetParticipantLimits reads a participant's per-currency limits.
func (c *Client) GetParticipantLimits(ctx context.Context, name string) ([]finalize.Limit, error) {
	var envelopes []limitEnvelope
	path := fmt.Sprintf("/participants/%s/limits", url.PathEscape(name))
	if err := c.api.Call(ctx, http.MethodGet, path, nil, &envelopes); err != nil {
		return nil, err
	}
	limits := make([]finalize.Limit, 0, len(envelopes))
	for _, e := range envelopes {
		limits = append(limits, finalize.Limit{
			Type:     e.Limit.Type,
			Value:    e.Limit.Value,
			Currency: e.Currency,
		})
	}
	return limits, nil
}

// UpdateParticipantLimit sets a participant's net-debit-cap for one currency.
func (c *Client) UpdateParticipantLimit(ctx context.Context, name string, limit finalize.Limit) error {
	body := limitEnvelope{Currency: limit.Currency}
	body.Limit.Type = limit.Type
	body.Limit.Value = limit.Value
	path := fmt.Sprintf("/participants/%s/limits", url.PathEscape(name))
	return c.api.Call(ctx, http.MethodPut, path, body, nil)
}

// GetParticipantPositions reads the live positions of a participant's
// accounts.
func (c *Client) GetParticipantPositions(ctx context.Context, name string) ([]finalize.Position, error) {
	var out []finalize.Position
	path := fmt.Sprintf("/participants/%s/positions", url.PathEscape(name))
	if err := c.api.Call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetParticipantAccounts reads a participant's accounts with current values.
func (c *Client) GetParticipantAccounts(ctx context.Context, name string) ([]finalize.LedgerAccount, error) {
	var out []finalize.LedgerAccount
	path := fmt.Sprintf("/participants/%s/accounts", url.PathEscape(name))
	if err := c.api.Call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FundsMovement describes one funds in/out recording against a settlement
// account.
type FundsMovement struct {
	ParticipantName string
	AccountID       int64
	Amount          float64
	Currency        currency.Code
	Reason          string
}

type fundsRequest struct {
	TransferID string `json:"transferId"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`
	Amount     struct {
		Amount   float64       `json:"amount"`
		Currency currency.Code `json:"currency"`
	} `json:"amount"`
}

func newFundsRequest(action string, m FundsMovement) fundsRequest {
	req := fundsRequest{
		TransferID: uuid.New().String(),
		Action:     action,
		Reason:     m.Reason,
	}
	req.Amount.Amount = m.Amount
	req.Amount.Currency = m.Currency
	return req
}

func (c *Client) fundsPath(m FundsMovement) string {
	return fmt.Sprintf("/participants/%s/accounts/%d", url.PathEscape(m.ParticipantName), m.AccountID)
}

// RecordFundsIn records an inbound funds movement in a single call.
func (c *Client) RecordFundsIn(ctx context.Context, m FundsMovement) error {
	return c.api.Call(ctx, http.MethodPost, c.fundsPath(m), newFundsRequest("recordFundsIn", m), nil)
}

// RecordFundsOut runs the two-phase outbound movement: prepare-reserve then
// commit. The commit references the transfer created by the prepare call.
func (c *Client) RecordFundsOut(ctx context.Context, m FundsMovement) error {
	prepare := newFundsRequest("recordFundsOutPrepareReserve", m)
	if err := c.api.Call(ctx, http.MethodPost, c.fundsPath(m), prepare, nil); err != nil {
		return err
	}

	commit := struct {
		Action string `json:"action"`
		Reason string `json:"reason"`
	}{Action: "recordFundsOutCommit", Reason: m.Reason}
	commitPath := fmt.Sprintf("%s/transfers/%s", c.fundsPath(m), prepare.TransferID)
	return c.api.Call(ctx, http.MethodPut, commitPath, commit, nil)
}
