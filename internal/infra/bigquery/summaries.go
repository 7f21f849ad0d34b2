package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/billing-reporter/internal/aggregate"
)

// SummaryRow is one customer's balance summary for one run.
type SummaryRow struct {
	RunID      string     `bigquery:"run_id"`      // REQUIRED
	ReportDate civil.Date `bigquery:"report_date"` // REQUIRED

	CustomerID string `bigquery:"customer_id"` // REQUIRED
	Name       string `bigquery:"name"`        // REQUIRED

	CurrentInvoiceBalance bigquery.NullString  `bigquery:"current_invoice_balance"` // NULLABLE
	CreditBalance         bigquery.NullString  `bigquery:"credit_balance"`          // NULLABLE
	CurrentInvoiceUSD     bigquery.NullFloat64 `bigquery:"current_invoice_usd"`     // NULLABLE
	CreditUSD             bigquery.NullFloat64 `bigquery:"credit_usd"`              // NULLABLE

	CurrentInvoiceAdjustedUSD bigquery.NullFloat64 `bigquery:"current_invoice_adjusted_usd"` // NULLABLE

	InvoiceCount     bigquery.NullInt64  `bigquery:"invoice_count"`      // NULLABLE
	CurrentInvoiceID bigquery.NullString `bigquery:"current_invoice_id"` // NULLABLE

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

// Target names the table summaries are exported to.
type Target struct {
	Project string
	Dataset string
	Table   string
}

// SummaryRowsFromAggregate converts aggregation output into export rows.
// Null balances stay null.
func SummaryRowsFromAggregate(runID string, reportDate civil.Date, created time.Time, rows []aggregate.Row) []*SummaryRow {
	out := make([]*SummaryRow, 0, len(rows))
	for _, r := range rows {
		row := &SummaryRow{
			RunID:      runID,
			ReportDate: reportDate,
			CustomerID: r.CustomerID,
			Name:       r.Name,
			CreatedTS:  created,
		}
		if r.CurrentInvoiceTotal.Valid {
			row.CurrentInvoiceBalance = bigquery.NullString{StringVal: r.CurrentInvoiceBalance(), Valid: true}
			row.CurrentInvoiceUSD = bigquery.NullFloat64{Float64: aggregate.MajorUnits(r.CurrentInvoiceTotal.Float64).InexactFloat64(), Valid: true}
		}
		if r.CreditTotal.Valid {
			row.CreditBalance = bigquery.NullString{StringVal: r.CreditBalance(), Valid: true}
			row.CreditUSD = bigquery.NullFloat64{Float64: aggregate.MajorUnits(r.CreditTotal.Float64).InexactFloat64(), Valid: true}
		}
		if r.CurrentInvoiceAdjusted.Valid {
			row.CurrentInvoiceAdjustedUSD = bigquery.NullFloat64{Float64: aggregate.MajorUnitsOf(r.CurrentInvoiceAdjusted.Decimal).InexactFloat64(), Valid: true}
		}
		if r.InvoiceCount.Valid {
			row.InvoiceCount = bigquery.NullInt64{Int64: r.InvoiceCount.Int64, Valid: true}
		}
		if r.CurrentInvoiceID.Valid {
			row.CurrentInvoiceID = bigquery.NullString{StringVal: r.CurrentInvoiceID.String, Valid: true}
		}
		out = append(out, row)
	}
	return out
}
