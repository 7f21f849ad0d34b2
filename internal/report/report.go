// Package report writes the balance summary as CSV and as a spreadsheet.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/billing-reporter/internal/aggregate"
	"github.com/dvloznov/billing-reporter/internal/logger"
	"github.com/dvloznov/billing-reporter/internal/persist"
)

// SheetName is the worksheet holding the summary.
const SheetName = "Summary"

var sheetHeader = []interface{}{
	"name",
	"customer_id",
	"current_invoice_balance",
	"credit_balance",
	"current_invoice_usd",
	"credit_usd",
	"finalized_invoices",
	"current_invoice_id",
	"current_invoice_end",
	"current_invoice_adjusted_usd",
}

// WriteCSV writes the three-column summary CSV.
func WriteCSV(ctx context.Context, path string, rows []aggregate.Row) error {
	if err := persist.WriteTable(path, aggregate.SummaryTable(rows)); err != nil {
		return fmt.Errorf("WriteCSV: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Info().Str("path", path).Int("rows", len(rows)).Msg("summary csv written")
	return nil
}

// WriteXLSX writes the summary with numeric and detail columns alongside
// the formatted balances. Null amounts are left blank.
func WriteXLSX(ctx context.Context, path string, rows []aggregate.Row) error {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(SheetName)
	if err != nil {
		return fmt.Errorf("WriteXLSX: new sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("WriteXLSX: remove default sheet: %w", err)
	}

	header := sheetHeader
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("WriteXLSX: header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("WriteXLSX: style: %w", err)
	}
	if err := f.SetRowStyle(SheetName, 1, 1, bold); err != nil {
		return fmt.Errorf("WriteXLSX: header style: %w", err)
	}

	for i, r := range rows {
		values := []interface{}{
			r.Name,
			r.CustomerID,
			r.CurrentInvoiceBalance(),
			r.CreditBalance(),
			nil,
			nil,
			nil,
			nil,
			nil,
			nil,
		}
		if r.CurrentInvoiceTotal.Valid {
			values[4] = aggregate.MajorUnits(r.CurrentInvoiceTotal.Float64).InexactFloat64()
		}
		if r.CreditTotal.Valid {
			values[5] = aggregate.MajorUnits(r.CreditTotal.Float64).InexactFloat64()
		}
		if r.InvoiceCount.Valid {
			values[6] = r.InvoiceCount.Int64
		}
		if r.CurrentInvoiceID.Valid {
			values[7] = r.CurrentInvoiceID.String
		}
		if r.CurrentInvoiceEnd.Valid {
			values[8] = r.CurrentInvoiceEnd.String
		}
		if r.CurrentInvoiceAdjusted.Valid {
			values[9] = aggregate.MajorUnitsOf(r.CurrentInvoiceAdjusted.Decimal).InexactFloat64()
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("WriteXLSX: %w", err)
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("WriteXLSX: row %d: %w", i, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("WriteXLSX: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("WriteXLSX: save %s: %w", path, err)
	}

	log := logger.FromContext(ctx)
	log.Info().Str("path", path).Int("rows", len(rows)).Msg("summary workbook written")
	return nil
}

// ReadXLSX returns the summary sheet as text rows, header included.
func ReadXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("ReadXLSX: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	if err != nil {
		return nil, fmt.Errorf("ReadXLSX: %w", err)
	}
	return rows, nil
}
