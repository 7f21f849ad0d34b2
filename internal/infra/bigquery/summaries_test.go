package bigquery

import (
	"database/sql"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/billing-reporter/internal/aggregate"
)

func TestSummaryRowsFromAggregate(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	date := civil.DateOf(created)

	rows := SummaryRowsFromAggregate("run-1", date, created, []aggregate.Row{
		{
			CustomerID:             "c1",
			Name:                   "Acme",
			InvoiceCount:           sql.NullInt64{Int64: 2, Valid: true},
			CurrentInvoiceID:       sql.NullString{String: "i2", Valid: true},
			CurrentInvoiceTotal:    sql.NullFloat64{Float64: 5000, Valid: true},
			CreditTotal:            sql.NullFloat64{Float64: 2500, Valid: true},
			CurrentInvoiceAdjusted: decimal.NullDecimal{Decimal: decimal.NewFromInt(4550), Valid: true},
		},
		{CustomerID: "c2", Name: "Beta"},
	})

	require.Len(t, rows, 2)

	acme := rows[0]
	assert.Equal(t, "run-1", acme.RunID)
	assert.Equal(t, date, acme.ReportDate)
	assert.Equal(t, "$50.00 USD", acme.CurrentInvoiceBalance.StringVal)
	assert.Equal(t, "$25.00 USD", acme.CreditBalance.StringVal)
	assert.Equal(t, 50.0, acme.CurrentInvoiceUSD.Float64)
	assert.Equal(t, 25.0, acme.CreditUSD.Float64)
	assert.Equal(t, 45.5, acme.CurrentInvoiceAdjustedUSD.Float64)
	assert.Equal(t, int64(2), acme.InvoiceCount.Int64)
	assert.Equal(t, "i2", acme.CurrentInvoiceID.StringVal)
	assert.Equal(t, created, acme.CreatedTS)

	beta := rows[1]
	assert.False(t, beta.CurrentInvoiceBalance.Valid)
	assert.False(t, beta.CreditBalance.Valid)
	assert.False(t, beta.CurrentInvoiceUSD.Valid)
	assert.False(t, beta.InvoiceCount.Valid)
	assert.False(t, beta.CurrentInvoiceAdjustedUSD.Valid)
}

func TestSummarySchema(t *testing.T) {
	schema, err := SummarySchema()
	require.NoError(t, err)

	byName := map[string]bool{}
	for _, f := range schema {
		byName[f.Name] = f.Required
	}
	for _, name := range []string{"run_id", "report_date", "customer_id", "name", "credit_balance", "invoice_count", "current_invoice_adjusted_usd", "created_ts"} {
		_, ok := byName[name]
		assert.True(t, ok, name)
	}
	assert.False(t, byName["credit_balance"])
	assert.True(t, byName["run_id"])
}
