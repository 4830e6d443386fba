// Package export renders summary grids and snapshots as XLSX workbooks for
// printing and handing to owners.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/warp/cartledger/ledger"
)

const sheet = "Summary"

var headers = []string{
	"Owner", "Customer", "Cart #", "Week Start", "Week End",
	"Orders Total", "Franchise Fee", "Commissary Rent",
	"Total Balance", "Amount Paid", "Remaining Balance",
}

// firstAmountCol is the 1-based column of "Orders Total".
const firstAmountCol = 6

// WriteSummary writes rows followed by a TOTAL footer.
func WriteSummary(w io.Writer, title string, rows []ledger.SummaryRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return err
	}
	boldMoney, err := f.NewStyle(&excelize.Style{NumFmt: 4, Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	f.SetCellValue(sheet, "A1", title)
	f.SetCellStyle(sheet, "A1", "A1", bold)

	const headerRow = 3
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, headerRow)
		f.SetCellValue(sheet, cell, h)
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), headerRow)
	f.SetCellStyle(sheet, "A3", last, bold)

	rowNo := headerRow + 1
	for _, r := range rows {
		if err := writeRow(f, rowNo, r); err != nil {
			return err
		}
		rowNo++
	}
	if err := setRangeStyle(f, firstAmountCol, headerRow+1, len(headers), rowNo-1, money); err != nil {
		return err
	}

	total := ledger.GrandTotal(rows)
	if err := writeRow(f, rowNo, total); err != nil {
		return err
	}
	if err := setRangeStyle(f, 1, rowNo, len(headers), rowNo, boldMoney); err != nil {
		return err
	}

	f.SetColWidth(sheet, "A", "C", 18)
	f.SetColWidth(sheet, "D", "K", 16)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// WriteSnapshot renders a frozen snapshot.
func WriteSnapshot(w io.Writer, snap ledger.SummarySnapshot) error {
	title := fmt.Sprintf("%s snapshot %s, week %s, taken %s",
		snap.Kind, snap.ID, snap.Week, snap.CreatedAt.UTC().Format("2006-01-02 15:04 MST"))
	return WriteSummary(w, title, snap.Rows)
}

func writeRow(f *excelize.File, rowNo int, r ledger.SummaryRow) error {
	values := []any{
		r.OwnerName, r.CustomerName, r.CartNumber,
		dateCell(r.WeekStart), dateCell(r.WeekEnd),
		r.OrdersTotal.InexactFloat64(),
		r.FranchiseFee.InexactFloat64(),
		r.CommissaryRent.InexactFloat64(),
		r.TotalBalance.InexactFloat64(),
		r.AmountPaid.InexactFloat64(),
		r.RemainingBalance.InexactFloat64(),
	}
	cell, err := excelize.CoordinatesToCellName(1, rowNo)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func setRangeStyle(f *excelize.File, fromCol, fromRow, toCol, toRow, style int) error {
	if toRow < fromRow {
		return nil
	}
	from, err := excelize.CoordinatesToCellName(fromCol, fromRow)
	if err != nil {
		return err
	}
	to, err := excelize.CoordinatesToCellName(toCol, toRow)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, from, to, style)
}

func dateCell(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(ledger.DateLayout)
}
