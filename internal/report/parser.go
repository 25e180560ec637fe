// Package report parses settlement finalization report spreadsheets into the
// structured model in internal/domain/report. The layout is fixed by
// agreement with the settlement bank: the settlement ID lives in cell B1, a
// header region fills rows 2-6, and data rows run from row 7 until the first
// row whose switch-identifiers cell is empty.
package report

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/switchdesk-settlements-console/internal/domain/report"
)

const (
	settlementIDCell = "B1"
	dataStartRow     = 7

	colSwitchIdentifiers = "A"
	colParticipantInfo   = "B" // display-only, not parsed
	colBalance           = "C"
	colTransferAmount    = "D"
)

// switchIdentifiersPattern matches "<participantId> <accountId>
// <participantName>": two numeric identifiers and an alphanumeric name that
// starts with a letter, at most 30 characters.
var switchIdentifiersPattern = regexp.MustCompile(`^(\d+) (\d+) ([A-Za-z][A-Za-z0-9]{0,29})$`)

// CellError is a parse failure located at a specific spreadsheet cell. Parse
// errors are always fatal to the whole parse; the cell reference and raw
// contents let the operator fix the report.
type CellError struct {
	Cell string
	Raw  string
	Msg  string
}

func (e CellError) Error() string {
	if e.Raw == "" {
		return fmt.Sprintf("%s from cell %s", e.Msg, e.Cell)
	}
	return fmt.Sprintf("%s in cell %s: %q", e.Msg, e.Cell, e.Raw)
}

// Parse decodes a settlement finalization report from raw spreadsheet bytes.
// The context is checked between rows so an in-flight parse can be cancelled
// when the operator selects a replacement file.
func Parse(ctx context.Context, data []byte) (*report.Report, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open report spreadsheet: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("report spreadsheet contains no sheets")
	}

	settlementID, err := parseSettlementID(f, sheet)
	if err != nil {
		return nil, err
	}

	parsed := &report.Report{
		SettlementID: settlementID,
		Entries:      []report.Entry{},
	}

	for row := dataStartRow; ; row++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		identifiers, err := cellValue(f, sheet, colSwitchIdentifiers, row)
		if err != nil {
			return nil, err
		}
		if identifiers == "" {
			// First empty identifier cell ends the data region.
			break
		}

		entry, err := parseEntry(f, sheet, row, identifiers)
		if err != nil {
			return nil, err
		}
		parsed.Entries = append(parsed.Entries, entry)
	}

	return parsed, nil
}

func parseSettlementID(f *excelize.File, sheet string) (int64, error) {
	raw, err := f.GetCellValue(sheet, settlementIDCell)
	if err != nil {
		return 0, fmt.Errorf("failed to read cell %s: %w", settlementIDCell, err)
	}
	id, convErr := strconv.ParseInt(raw, 10, 64)
	if raw == "" || convErr != nil {
		return 0, CellError{Cell: settlementIDCell, Msg: "unable to extract settlement ID"}
	}
	return id, nil
}

func parseEntry(f *excelize.File, sheet string, row int, identifiers string) (report.Entry, error) {
	m := switchIdentifiersPattern.FindStringSubmatch(identifiers)
	if m == nil {
		return report.Entry{}, CellError{
			Cell: cellRef(colSwitchIdentifiers, row),
			Raw:  identifiers,
			Msg:  "unable to parse switch identifiers",
		}
	}
	participantID, _ := strconv.ParseInt(m[1], 10, 64)
	accountID, _ := strconv.ParseInt(m[2], 10, 64)

	rawBalance, err := cellValue(f, sheet, colBalance, row)
	if err != nil {
		return report.Entry{}, err
	}
	balance, ok := ExtractQuantity(rawBalance)
	if !ok {
		return report.Entry{}, CellError{
			Cell: cellRef(colBalance, row),
			Raw:  rawBalance,
			Msg:  "unable to parse balance",
		}
	}

	rawTransfer, err := cellValue(f, sheet, colTransferAmount, row)
	if err != nil {
		return report.Entry{}, err
	}
	transfer, ok := ExtractQuantity(rawTransfer)
	if !ok {
		return report.Entry{}, CellError{
			Cell: cellRef(colTransferAmount, row),
			Raw:  rawTransfer,
			Msg:  "unable to parse transfer amount",
		}
	}

	return report.Entry{
		Participant: report.Participant{
			ID:   participantID,
			Name: m[3],
		},
		PositionAccountID: accountID,
		Balance:           balance,
		TransferAmount:    transfer,
		Row: report.Row{
			RowNumber:         row,
			SwitchIdentifiers: identifiers,
			Balance:           rawBalance,
			TransferAmount:    rawTransfer,
		},
	}, nil
}

func cellValue(f *excelize.File, sheet, col string, row int) (string, error) {
	v, err := f.GetCellValue(sheet, cellRef(col, row))
	if err != nil {
		return "", fmt.Errorf("failed to read cell %s: %w", cellRef(col, row), err)
	}
	return v, nil
}

func cellRef(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
