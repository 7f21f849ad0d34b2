package aggregate

import (
	"database/sql"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/billing-reporter/internal/persist"
)

// SummaryColumns is the header of the summary CSV.
var SummaryColumns = []string{"name", "current_invoice_balance", "credit_balance"}

var hundred = decimal.NewFromInt(100)

// MajorUnits converts a minor-unit amount to major units rounded to cents.
func MajorUnits(minor float64) decimal.Decimal {
	return MajorUnitsOf(decimal.NewFromFloat(minor))
}

func MajorUnitsOf(minor decimal.Decimal) decimal.Decimal {
	return minor.Div(hundred).Round(2)
}

// FormatUSD renders a minor-unit amount as "$<major> USD". A null amount
// renders as the empty string.
func FormatUSD(minor sql.NullFloat64) string {
	if !minor.Valid {
		return ""
	}
	return "$" + MajorUnits(minor.Float64).StringFixed(2) + " USD"
}

// CurrentInvoiceBalance is the formatted total of the customer's most
// recent finalized invoice.
func (r Row) CurrentInvoiceBalance() string {
	return FormatUSD(r.CurrentInvoiceTotal)
}

// CreditBalance is the formatted sum of latest grant running balances.
func (r Row) CreditBalance() string {
	return FormatUSD(r.CreditTotal)
}

// SummaryTable renders rows as the name/current_invoice_balance/credit_balance
// table. Null balances are empty cells.
func SummaryTable(rows []Row) *persist.Table {
	t := &persist.Table{Columns: append([]string(nil), SummaryColumns...)}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{r.Name, r.CurrentInvoiceBalance(), r.CreditBalance()})
	}
	return t
}
