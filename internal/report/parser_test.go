package report

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// buildReportFile renders a spreadsheet in the settlement bank's layout:
// settlement ID in B1, headers in rows 2-6, data rows from row 7.
func buildReportFile(t *testing.T, settlementID string, rows [][3]string) []byte {
	t.Helper()

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	require.NoError(t, f.SetCellValue(sheet, "A1", "Settlement ID"))
	require.NoError(t, f.SetCellValue(sheet, "B1", settlementID))
	require.NoError(t, f.SetCellValue(sheet, "A6", "Switch identifiers"))
	require.NoError(t, f.SetCellValue(sheet, "B6", "Participant"))
	require.NoError(t, f.SetCellValue(sheet, "C6", "Balance"))
	require.NoError(t, f.SetCellValue(sheet, "D6", "Transfer amount"))

	for i, row := range rows {
		n := dataStartRow + i
		require.NoError(t, f.SetCellStr(sheet, cellRef(colSwitchIdentifiers, n), row[0]))
		require.NoError(t, f.SetCellStr(sheet, cellRef(colBalance, n), row[1]))
		require.NoError(t, f.SetCellStr(sheet, cellRef(colTransferAmount, n), row[2]))
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	require.NoError(t, f.Close())
	return buf.Bytes()
}

func TestParse_Success(t *testing.T) {
	data := buildReportFile(t, "2766", [][3]string{
		{"11 21 payerfsp", "1,501,000", "(1,500)"},
		{"1 19 payeefsp", "2,200", "1,000"},
		{"3 25 testfsp", "2,200", "500"},
	})

	rpt, err := Parse(context.Background(), data)
	require.NoError(t, err)

	assert.Equal(t, int64(2766), rpt.SettlementID)
	require.Len(t, rpt.Entries, 3)

	first := rpt.Entries[0]
	assert.Equal(t, int64(11), first.Participant.ID)
	assert.Equal(t, "payerfsp", first.Participant.Name)
	assert.Equal(t, int64(21), first.PositionAccountID)
	assert.InDelta(t, 1501000, first.Balance, 1e-9)
	assert.InDelta(t, -1500, first.TransferAmount, 1e-9)
	assert.Equal(t, 7, first.Row.RowNumber)
	assert.Equal(t, "11 21 payerfsp", first.Row.SwitchIdentifiers)
	assert.Equal(t, "1,501,000", first.Row.Balance)
	assert.Equal(t, "(1,500)", first.Row.TransferAmount)

	assert.Equal(t, []int64{21, 19, 25}, rpt.AccountIDs())
}

func TestParse_EmptyIdentifierCellEndsData(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetCellValue(sheet, "B1", "2766"))
	require.NoError(t, f.SetCellStr(sheet, "A7", "11 21 payerfsp"))
	require.NoError(t, f.SetCellStr(sheet, "C7", "100"))
	require.NoError(t, f.SetCellStr(sheet, "D7", "0"))
	// Row 8 has amounts but no identifiers, row 9 has identifiers again.
	require.NoError(t, f.SetCellStr(sheet, "C8", "999"))
	require.NoError(t, f.SetCellStr(sheet, "A9", "1 19 payeefsp"))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	require.NoError(t, f.Close())

	rpt, err := Parse(context.Background(), buf.Bytes())
	require.NoError(t, err)
	assert.Len(t, rpt.Entries, 1)
}

func TestParse_Deterministic(t *testing.T) {
	data := buildReportFile(t, "2766", [][3]string{
		{"11 21 payerfsp", "1,501,000", "(1,500)"},
		{"1 19 payeefsp", "2,200", "1,000"},
		{"3 25 testfsp", "2,200", "500"},
	})

	first, err := Parse(context.Background(), data)
	require.NoError(t, err)
	second, err := Parse(context.Background(), data)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestParse_NoEntries(t *testing.T) {
	data := buildReportFile(t, "42", nil)

	rpt, err := Parse(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, int64(42), rpt.SettlementID)
	assert.Empty(t, rpt.Entries)
}

func TestParse_CellErrors(t *testing.T) {
	tests := []struct {
		name         string
		settlementID string
		rows         [][3]string
		wantCell     string
	}{
		{
			name:         "Missing settlement ID",
			settlementID: "",
			wantCell:     "B1",
		},
		{
			name:         "Non-numeric settlement ID",
			settlementID: "not-a-number",
			wantCell:     "B1",
		},
		{
			name:         "Malformed switch identifiers",
			settlementID: "2766",
			rows:         [][3]string{{"eleven 21 payerfsp", "100", "0"}},
			wantCell:     "A7",
		},
		{
			name:         "Participant name starting with a digit",
			settlementID: "2766",
			rows:         [][3]string{{"11 21 1fsp", "100", "0"}},
			wantCell:     "A7",
		},
		{
			name:         "Unparseable balance",
			settlementID: "2766",
			rows:         [][3]string{{"11 21 payerfsp", "one hundred", "0"}},
			wantCell:     "C7",
		},
		{
			name:         "Unparseable transfer amount",
			settlementID: "2766",
			rows: [][3]string{
				{"11 21 payerfsp", "100", "0"},
				{"1 19 payeefsp", "100", "(-5)"},
			},
			wantCell: "D8",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data := buildReportFile(t, tc.settlementID, tc.rows)

			_, err := Parse(context.Background(), data)
			require.Error(t, err)

			var cellErr CellError
			require.True(t, errors.As(err, &cellErr))
			assert.Equal(t, tc.wantCell, cellErr.Cell)
		})
	}
}

func TestParse_NotASpreadsheet(t *testing.T) {
	_, err := Parse(context.Background(), []byte("definitely not xlsx"))
	require.Error(t, err)

	var cellErr CellError
	assert.False(t, errors.As(err, &cellErr))
}

func TestParse_Cancelled(t *testing.T) {
	data := buildReportFile(t, "2766", [][3]string{
		{"11 21 payerfsp", "100", "0"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Parse(ctx, data)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCellError_Error(t *testing.T) {
	withRaw := CellError{Cell: "C7", Raw: "abc", Msg: "unable to parse balance"}
	assert.Equal(t, `unable to parse balance in cell C7: "abc"`, withRaw.Error())

	withoutRaw := CellError{Cell: "B1", Msg: "unable to extract settlement ID"}
	assert.Equal(t, "unable to extract settlement ID from cell B1", withoutRaw.Error())
}
