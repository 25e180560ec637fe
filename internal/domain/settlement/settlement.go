// Package settlement holds the switch-side settlement model consumed by the
// console: the settlement lifecycle, its participants and their
// position/settlement accounts.
package settlement

import (
	"fmt"
	"time"

	"github.com/switchdesk-settlements-console/internal/domain/currency"
)

// State is a settlement lifecycle state. The switch advances settlements and
// their accounts through the states listed below in strict forward order;
// ABORTED is a terminal absorbing state reachable from any point.
type State string

const (
	StatePendingSettlement    State = "PENDING_SETTLEMENT"
	StatePsTransfersRecorded  State = "PS_TRANSFERS_RECORDED"
	StatePsTransfersReserved  State = "PS_TRANSFERS_RESERVED"
	StatePsTransfersCommitted State = "PS_TRANSFERS_COMMITTED"
	StateSettling             State = "SETTLING"
	StateSettled              State = "SETTLED"
	StateAborted              State = "ABORTED"
)

// stateOrder gives each forward state its position in the lifecycle. ABORTED
// is deliberately absent: it has no forward position.
var stateOrder = map[State]int{
	StatePendingSettlement:    0,
	StatePsTransfersRecorded:  1,
	StatePsTransfersReserved:  2,
	StatePsTransfersCommitted: 3,
	StateSettling:             4,
	StateSettled:              5,
}

// Order returns the forward position of a state, or an error for ABORTED and
// unknown states.
func (s State) Order() (int, error) {
	n, ok := stateOrder[s]
	if !ok {
		return 0, fmt.Errorf("state %q has no forward lifecycle position", string(s))
	}
	return n, nil
}

// AtOrPast reports whether s has reached other in the forward lifecycle.
func (s State) AtOrPast(other State) bool {
	a, okA := stateOrder[s]
	b, okB := stateOrder[other]
	return okA && okB && a >= b
}

// AccountType distinguishes the switch's ledger account types. Reconciliation
// only touches POSITION and SETTLEMENT accounts.
type AccountType string

const (
	AccountTypePosition   AccountType = "POSITION"
	AccountTypeSettlement AccountType = "SETTLEMENT"
)

// Account is a settlement-scoped account: one participant's position or
// settlement sub-account inside a given settlement.
type Account struct {
	ID                  int64         `json:"id"`
	State               State         `json:"state"`
	Reason              string        `json:"reason"`
	Currency            currency.Code `json:"currency"`
	NetSettlementAmount float64       `json:"netSettlementAmount"`
}

// Participant is a participant's slice of a settlement.
type Participant struct {
	ID       int64     `json:"id"`
	Accounts []Account `json:"accounts"`
}

// Settlement is the switch's record of one multilateral settlement. The
// console holds a read-only cached copy; mutation happens switch-side via the
// settlement service.
type Settlement struct {
	ID           int64         `json:"id"`
	State        State         `json:"state"`
	Reason       string        `json:"reason"`
	CreatedDate  time.Time     `json:"createdDate"`
	ChangedDate  time.Time     `json:"changedDate"`
	Participants []Participant `json:"participants"`
}

// TotalValue sums the absolute net settlement amounts across all accounts,
// halved because each transfer appears once as a debit and once as a credit.
func (s *Settlement) TotalValue() float64 {
	var total float64
	for _, p := range s.Participants {
		for _, a := range p.Accounts {
			if a.NetSettlementAmount > 0 {
				total += a.NetSettlementAmount
			}
		}
	}
	return total
}

// Accounts flattens every settlement account with its owning participant ID.
func (s *Settlement) Accounts() []ParticipantAccount {
	var out []ParticipantAccount
	for _, p := range s.Participants {
		for _, a := range p.Accounts {
			out = append(out, ParticipantAccount{ParticipantID: p.ID, Account: a})
		}
	}
	return out
}

// ParticipantAccount pairs a settlement account with its participant.
type ParticipantAccount struct {
	ParticipantID int64
	Account       Account
}

// Window is an open or closed settlement window on the switch.
type Window struct {
	ID          int64     `json:"settlementWindowId"`
	State       string    `json:"state"`
	Reason      string    `json:"reason"`
	CreatedDate time.Time `json:"createdDate"`
	ChangedDate time.Time `json:"changedDate"`
}
