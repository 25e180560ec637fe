package finalizer

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/switchdesk-settlements-console/internal/domain/currency"
	"github.com/switchdesk-settlements-console/internal/domain/finalize"
	"github.com/switchdesk-settlements-console/internal/domain/report"
	"github.com/switchdesk-settlements-console/internal/domain/settlement"
	"github.com/switchdesk-settlements-console/internal/domain/validation"
	reportfile "github.com/switchdesk-settlements-console/internal/report"
)

// Epsilon is the tolerance for amount comparisons. Supported currencies carry
// at most four decimal places, so 1e-5 distinguishes every representable
// amount.
const Epsilon = 1e-5

// Validate runs every check of the report against the settlement and the
// collected reference data, never short-circuiting, and returns the union of
// all findings.
func Validate(rpt *report.Report, stl *settlement.Settlement, data *finalize.Data) *validation.Set {
	findings := validation.NewSet()
	findings.Union(validateSettlementID(rpt, stl))
	findings.Union(validateAccountsResolvable(rpt, data))
	findings.Union(validateExtraAccounts(rpt, stl, data))
	findings.Union(validateReportIdentifiers(rpt, data))
	findings.Union(validateAccountTypes(rpt, data))
	findings.Union(validateAmounts(rpt, data))
	findings.Union(validateTransfersSum(rpt, data))
	findings.Union(validateTransfersMatchNetAmounts(rpt, data))
	findings.Union(validateBalancesAsExpected(rpt, data))
	findings.Union(validateSettlementAccountsCovered(rpt, stl))
	return findings
}

// validateSettlementID checks the report's declared settlement ID against the
// settlement being finalized.
func validateSettlementID(rpt *report.Report, stl *settlement.Settlement) *validation.Set {
	findings := validation.NewSet()
	if rpt.SettlementID != stl.ID {
		findings.Add(validation.Finding{
			Kind: validation.KindSettlementIDNonMatching,
			Data: validation.Data{ReportID: rpt.SettlementID, SettlementID: stl.ID},
		})
	}
	return findings
}

// validateAccountsResolvable checks that every report account exists in the
// switch.
func validateAccountsResolvable(rpt *report.Report, data *finalize.Data) *validation.Set {
	findings := validation.NewSet()
	for _, e := range rpt.Entries {
		if _, ok := data.AccountsParticipants[e.PositionAccountID]; !ok {
			findings.Add(validation.Finding{
				Kind: validation.KindInvalidAccountID,
				Data: validation.Data{RowNumber: e.Row.RowNumber, AccountID: e.PositionAccountID},
			})
		}
	}
	return findings
}

// validateExtraAccounts checks that every report account belongs to the
// settlement being finalized.
func validateExtraAccounts(rpt *report.Report, stl *settlement.Settlement, data *finalize.Data) *validation.Set {
	findings := validation.NewSet()
	for _, e := range rpt.Entries {
		if _, ok := data.SettlementParticipantAccounts[e.PositionAccountID]; !ok {
			findings.Add(validation.Finding{
				Kind: validation.KindExtraAccountsPresentInReport,
				Data: validation.Data{
					RowNumber:    e.Row.RowNumber,
					AccountID:    e.PositionAccountID,
					SettlementID: stl.ID,
				},
			})
		}
	}
	return findings
}

// validateReportIdentifiers checks that the participant parsed from each
// switch-identifiers cell matches the participant actually owning that account
// in the switch and in the settlement.
func validateReportIdentifiers(rpt *report.Report, data *finalize.Data) *validation.Set {
	findings := validation.NewSet()
	for _, e := range rpt.Entries {
		ap, ok := data.AccountsParticipants[e.PositionAccountID]
		if !ok {
			continue
		}
		congruent := ap.Participant.ID == e.Participant.ID && ap.Participant.Name == e.Participant.Name
		if congruent {
			if sc, inSettlement := data.SettlementParticipantAccounts[e.PositionAccountID]; inSettlement {
				congruent = sc.Participant.ID == e.Participant.ID
			}
		}
		if !congruent {
			findings.Add(validation.Finding{
				Kind: validation.KindReportIdentifiersNonMatching,
				Data: validation.Data{
					RowNumber: e.Row.RowNumber,
					AccountID: e.PositionAccountID,
					RawText:   e.Row.SwitchIdentifiers,
				},
			})
		}
	}
	return findings
}

// validateAccountTypes checks that every report account is a POSITION account.
func validateAccountTypes(rpt *report.Report, data *finalize.Data) *validation.Set {
	findings := validation.NewSet()
	for _, e := range rpt.Entries {
		ap, ok := data.AccountsParticipants[e.PositionAccountID]
		if !ok {
			continue
		}
		if ap.Account.Type != settlement.AccountTypePosition {
			findings.Add(validation.Finding{
				Kind: validation.KindAccountIsIncorrectType,
				Data: validation.Data{RowNumber: e.Row.RowNumber, AccountID: e.PositionAccountID},
			})
		}
	}
	return findings
}

// validateAmounts checks that balances and transfer amounts carry no more
// decimal places than the entry currency's minor unit count. Encountering a
// non-decimal-minor-unit currency here is a data-integrity violation, not an
// operator error, and panics.
func validateAmounts(rpt *report.Report, data *finalize.Data) *validation.Set {
	findings := validation.NewSet()
	for _, e := range rpt.Entries {
		ap, ok := data.AccountsParticipants[e.PositionAccountID]
		if !ok {
			continue
		}
		code := ap.Account.Currency
		minor, err := currency.MinorUnits(code)
		if err != nil {
			panic(fmt.Sprintf("finalizer: cannot validate amounts: %v", err))
		}

		if digits, ok := fractionDigits(e.Row.Balance); ok && digits > minor {
			findings.Add(validation.Finding{
				Kind: validation.KindNewBalanceAmountInvalid,
				Data: validation.Data{
					RowNumber:  e.Row.RowNumber,
					AccountID:  e.PositionAccountID,
					Currency:   code,
					Actual:     e.Balance,
					MinorUnits: minor,
				},
			})
		}
		if digits, ok := fractionDigits(e.Row.TransferAmount); ok && digits > minor {
			findings.Add(validation.Finding{
				Kind: validation.KindTransferAmountInvalid,
				Data: validation.Data{
					RowNumber:  e.Row.RowNumber,
					AccountID:  e.PositionAccountID,
					Currency:   code,
					Actual:     e.TransferAmount,
					MinorUnits: minor,
				},
			})
		}
	}
	return findings
}

// fractionDigits counts decimal places as written in the cell, trailing zeros
// included, via exact decimal parsing.
func fractionDigits(raw string) (int, bool) {
	normalized, ok := reportfile.NormalizeQuantity(raw)
	if !ok {
		return 0, false
	}
	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return 0, false
	}
	if d.Exponent() >= 0 {
		return 0, true
	}
	return int(-d.Exponent()), true
}

// validateTransfersSum checks that transfer amounts sum to zero per currency.
// Bank processing artifacts make small residues common, so this is advisory.
func validateTransfersSum(rpt *report.Report, data *finalize.Data) *validation.Set {
	findings := validation.NewSet()
	sums := make(map[currency.Code]float64)
	for _, e := range rpt.Entries {
		ap, ok := data.AccountsParticipants[e.PositionAccountID]
		if !ok {
			continue
		}
		sums[ap.Account.Currency] += e.TransferAmount
	}

	codes := make([]currency.Code, 0, len(sums))
	for code := range sums {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })

	for _, code := range codes {
		if math.Abs(sums[code]) > Epsilon {
			findings.Add(validation.Finding{
				Kind: validation.KindTransfersSumNonZero,
				Data: validation.Data{Currency: code, Actual: sums[code]},
			})
		}
	}
	return findings
}

// validateTransfersMatchNetAmounts checks each entry's transfer amount against
// the settlement account's net settlement amount.
func validateTransfersMatchNetAmounts(rpt *report.Report, data *finalize.Data) *validation.Set {
	findings := validation.NewSet()
	for _, e := range rpt.Entries {
		sc, ok := data.SettlementParticipantAccounts[e.PositionAccountID]
		if !ok {
			continue
		}
		if math.Abs(e.TransferAmount-sc.Account.NetSettlementAmount) > Epsilon {
			findings.Add(validation.Finding{
				Kind: validation.KindTransferDoesNotMatchNetAmount,
				Data: validation.Data{
					RowNumber: e.Row.RowNumber,
					AccountID: e.PositionAccountID,
					Expected:  sc.Account.NetSettlementAmount,
					Actual:    e.TransferAmount,
				},
			})
		}
	}
	return findings
}

// validateBalancesAsExpected compares each bank-confirmed balance against the
// balance implied by the switch's settlement-account position and the
// reported transfer. The switch stores credit balances negative, hence the
// sign flip. Entries that do not resolve are skipped; other checks report the
// resolution failure.
func validateBalancesAsExpected(rpt *report.Report, data *finalize.Data) *validation.Set {
	findings := validation.NewSet()
	for _, e := range rpt.Entries {
		ap, ok := data.AccountsParticipants[e.PositionAccountID]
		if !ok {
			continue
		}
		settlementAcct, ok := data.ParticipantsAccounts[ap.Participant.Name][ap.Account.Currency][settlement.AccountTypeSettlement]
		if !ok {
			continue
		}
		pos, ok := data.AccountsPositions[settlementAcct.Account.ID]
		if !ok {
			continue
		}

		if e.Balance <= 0 {
			findings.Add(validation.Finding{
				Kind: validation.KindNegativeOrZeroBalance,
				Data: validation.Data{
					RowNumber:       e.Row.RowNumber,
					AccountID:       e.PositionAccountID,
					ParticipantName: ap.Participant.Name,
					Actual:          e.Balance,
				},
			})
			continue
		}

		expected := -pos.Value - e.TransferAmount
		if math.Abs(e.Balance-expected) > Epsilon {
			findings.Add(validation.Finding{
				Kind: validation.KindBalanceNotAsExpected,
				Data: validation.Data{
					RowNumber: e.Row.RowNumber,
					AccountID: e.PositionAccountID,
					Expected:  expected,
					Actual:    e.Balance,
				},
			})
		}
	}
	return findings
}

// validateSettlementAccountsCovered checks that every settlement account
// appears in the report; the missing set is reported as one finding.
func validateSettlementAccountsCovered(rpt *report.Report, stl *settlement.Settlement) *validation.Set {
	findings := validation.NewSet()
	inReport := make(map[int64]bool, len(rpt.Entries))
	for _, e := range rpt.Entries {
		inReport[e.PositionAccountID] = true
	}

	var missing []int64
	for _, pa := range stl.Accounts() {
		if !inReport[pa.Account.ID] {
			missing = append(missing, pa.Account.ID)
		}
	}
	if len(missing) > 0 {
		sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
		findings.Add(validation.Finding{
			Kind: validation.KindAccountsNotPresentInReport,
			Data: validation.Data{AccountIDs: missing, SettlementID: stl.ID},
		})
	}
	return findings
}
