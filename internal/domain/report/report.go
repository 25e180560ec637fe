// Package report defines the parsed settlement finalization report model: the
// structured form of the spreadsheet a settlement bank returns after moving
// funds, which the console reconciles against the switch before finalizing.
package report

// Participant identifies the participant a report row claims to describe, as
// parsed from the row's switch-identifiers cell.
type Participant struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Row preserves the raw spreadsheet row an entry came from, for
// operator-facing error messages.
type Row struct {
	RowNumber         int    `json:"rowNumber"` // 1-based spreadsheet row
	SwitchIdentifiers string `json:"switchIdentifiers"`
	Balance           string `json:"balance"`
	TransferAmount    string `json:"transferAmount"`
}

// Entry is one reconciled report line: the bank-confirmed new liquidity
// balance and the signed transfer the bank applied to reach it.
type Entry struct {
	Participant       Participant `json:"participant"`
	PositionAccountID int64       `json:"positionAccountId"`
	Balance           float64     `json:"balance"`
	TransferAmount    float64     `json:"transferAmount"`
	Row               Row         `json:"row"`
}

// Report is a fully parsed settlement finalization report. Entries preserve
// spreadsheet row order. An empty entry list is a valid report.
type Report struct {
	SettlementID int64   `json:"settlementId"`
	Entries      []Entry `json:"entries"`
}

// AccountIDs returns the position account IDs referenced by the report, in
// entry order.
func (r *Report) AccountIDs() []int64 {
	ids := make([]int64, 0, len(r.Entries))
	for _, e := range r.Entries {
		ids = append(ids, e.PositionAccountID)
	}
	return ids
}
