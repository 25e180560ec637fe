// Package validation defines the reconciliation findings produced when a
// settlement finalization report is checked against switch state. Findings are
// data, not errors: every check runs to completion and the full set is
// returned, partitioned into blocking errors and advisory warnings by kind.
package validation

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/switchdesk-settlements-console/internal/domain/currency"
)

// Kind enumerates every finding the validation engine can produce. The
// enumeration is closed: Severity and Describe panic on an unknown kind, and
// the package tests walk AllKinds so that adding a kind without handling it
// everywhere fails the build's test run.
type Kind string

const (
	KindSettlementIDNonMatching       Kind = "SETTLEMENT_ID_NON_MATCHING"
	KindInvalidAccountID              Kind = "INVALID_ACCOUNT_ID"
	KindExtraAccountsPresentInReport  Kind = "EXTRA_ACCOUNTS_PRESENT_IN_REPORT"
	KindReportIdentifiersNonMatching  Kind = "REPORT_IDENTIFIERS_NON_MATCHING"
	KindAccountIsIncorrectType        Kind = "ACCOUNT_IS_INCORRECT_TYPE"
	KindNewBalanceAmountInvalid       Kind = "NEW_BALANCE_AMOUNT_INVALID"
	KindTransferAmountInvalid         Kind = "TRANSFER_AMOUNT_INVALID"
	KindTransfersSumNonZero           Kind = "TRANSFERS_SUM_NON_ZERO"
	KindTransferDoesNotMatchNetAmount Kind = "TRANSFER_DOES_NOT_MATCH_NET_SETTLEMENT_AMOUNT"
	KindBalanceNotAsExpected          Kind = "BALANCE_NOT_AS_EXPECTED"
	KindNegativeOrZeroBalance         Kind = "NEGATIVE_OR_ZERO_BALANCE"
	KindAccountsNotPresentInReport    Kind = "ACCOUNTS_NOT_PRESENT_IN_REPORT"
)

// AllKinds lists every finding kind. Tests iterate this to enforce
// exhaustiveness of the switches below.
var AllKinds = []Kind{
	KindSettlementIDNonMatching,
	KindInvalidAccountID,
	KindExtraAccountsPresentInReport,
	KindReportIdentifiersNonMatching,
	KindAccountIsIncorrectType,
	KindNewBalanceAmountInvalid,
	KindTransferAmountInvalid,
	KindTransfersSumNonZero,
	KindTransferDoesNotMatchNetAmount,
	KindBalanceNotAsExpected,
	KindNegativeOrZeroBalance,
	KindAccountsNotPresentInReport,
}

// Severity partitions kinds into blocking errors and advisory warnings.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// Severity returns the fixed severity of a kind. The partition is part of the
// product contract: errors block processing, warnings require acknowledgment.
func (k Kind) Severity() Severity {
	switch k {
	case KindSettlementIDNonMatching,
		KindInvalidAccountID,
		KindExtraAccountsPresentInReport,
		KindReportIdentifiersNonMatching,
		KindAccountIsIncorrectType,
		KindNewBalanceAmountInvalid,
		KindTransferAmountInvalid:
		return SeverityError
	case KindTransfersSumNonZero,
		KindTransferDoesNotMatchNetAmount,
		KindBalanceNotAsExpected,
		KindNegativeOrZeroBalance,
		KindAccountsNotPresentInReport:
		return SeverityWarning
	}
	panic(fmt.Sprintf("validation: unhandled finding kind %q", string(k)))
}

// Data carries the kind-specific evidence for a finding. Only the fields
// relevant to the kind are populated.
type Data struct {
	RowNumber       int           `json:"rowNumber,omitempty"`
	AccountID       int64         `json:"accountId,omitempty"`
	AccountIDs      []int64       `json:"accountIds,omitempty"`
	ParticipantID   int64         `json:"participantId,omitempty"`
	ParticipantName string        `json:"participantName,omitempty"`
	Currency        currency.Code `json:"currency,omitempty"`
	ReportID        int64         `json:"reportId,omitempty"`
	SettlementID    int64         `json:"settlementId,omitempty"`
	Expected        float64       `json:"expected,omitempty"`
	Actual          float64       `json:"actual,omitempty"`
	RawText         string        `json:"rawText,omitempty"`
	MinorUnits      int           `json:"minorUnits,omitempty"`
}

// Finding is one validation result. Immutable once produced.
type Finding struct {
	Kind Kind `json:"kind"`
	Data Data `json:"data"`
}

// key gives the structural identity used for set dedup. Struct field order is
// fixed, so JSON encoding is canonical here.
func (f Finding) key() string {
	b, err := json.Marshal(f)
	if err != nil {
		panic(fmt.Sprintf("validation: finding not encodable: %v", err))
	}
	return string(b)
}

// Describe renders a finding as operator-facing text. Exhaustive over Kind.
func (f Finding) Describe() string {
	d := f.Data
	switch f.Kind {
	case KindSettlementIDNonMatching:
		return fmt.Sprintf("report settlement ID %d does not match settlement %d", d.ReportID, d.SettlementID)
	case KindInvalidAccountID:
		return fmt.Sprintf("row %d: account %d does not exist in the switch", d.RowNumber, d.AccountID)
	case KindExtraAccountsPresentInReport:
		return fmt.Sprintf("row %d: account %d is not part of settlement %d", d.RowNumber, d.AccountID, d.SettlementID)
	case KindReportIdentifiersNonMatching:
		return fmt.Sprintf("row %d: identifiers %q do not match the switch record for account %d", d.RowNumber, d.RawText, d.AccountID)
	case KindAccountIsIncorrectType:
		return fmt.Sprintf("row %d: account %d is not a position account", d.RowNumber, d.AccountID)
	case KindNewBalanceAmountInvalid:
		return fmt.Sprintf("row %d: balance %v has more than %d decimal places allowed for %s", d.RowNumber, d.Actual, d.MinorUnits, d.Currency)
	case KindTransferAmountInvalid:
		return fmt.Sprintf("row %d: transfer amount %v has more than %d decimal places allowed for %s", d.RowNumber, d.Actual, d.MinorUnits, d.Currency)
	case KindTransfersSumNonZero:
		return fmt.Sprintf("transfer amounts in %s sum to %v, expected zero", d.Currency, d.Actual)
	case KindTransferDoesNotMatchNetAmount:
		return fmt.Sprintf("row %d: transfer amount %v does not match net settlement amount %v for account %d", d.RowNumber, d.Actual, d.Expected, d.AccountID)
	case KindBalanceNotAsExpected:
		return fmt.Sprintf("row %d: balance %v differs from expected %v for account %d", d.RowNumber, d.Actual, d.Expected, d.AccountID)
	case KindNegativeOrZeroBalance:
		return fmt.Sprintf("row %d: participant %s reports a non-positive balance %v and would be insolvent", d.RowNumber, d.ParticipantName, d.Actual)
	case KindAccountsNotPresentInReport:
		return fmt.Sprintf("settlement accounts %v are missing from the report", d.AccountIDs)
	}
	panic(fmt.Sprintf("validation: unhandled finding kind %q", string(f.Kind)))
}

// Set is a deduplicating collection of findings. Two findings with identical
// kind and data collapse into one.
type Set struct {
	byKey map[string]Finding
}

// NewSet builds a set from any initial findings.
func NewSet(findings ...Finding) *Set {
	s := &Set{byKey: make(map[string]Finding)}
	s.Add(findings...)
	return s
}

// Add inserts findings, discarding structural duplicates.
func (s *Set) Add(findings ...Finding) {
	for _, f := range findings {
		s.byKey[f.key()] = f
	}
}

// Union merges another set into this one.
func (s *Set) Union(other *Set) {
	if other == nil {
		return
	}
	for k, f := range other.byKey {
		s.byKey[k] = f
	}
}

// Len returns the number of distinct findings.
func (s *Set) Len() int {
	return len(s.byKey)
}

// All returns the findings in a deterministic order (sorted by identity key).
func (s *Set) All() []Finding {
	keys := make([]string, 0, len(s.byKey))
	for k := range s.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Finding, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.byKey[k])
	}
	return out
}

// Partition splits the set into blocking errors and advisory warnings.
func (s *Set) Partition() (errors, warnings []Finding) {
	for _, f := range s.All() {
		if f.Kind.Severity() == SeverityError {
			errors = append(errors, f)
		} else {
			warnings = append(warnings, f)
		}
	}
	return errors, warnings
}

// OfKind returns the findings with the given kind.
func (s *Set) OfKind(kind Kind) []Finding {
	var out []Finding
	for _, f := range s.All() {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}
