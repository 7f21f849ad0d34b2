package aggregate

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/billing-reporter/internal/billing"
	"github.com/dvloznov/billing-reporter/internal/logger"
	"github.com/dvloznov/billing-reporter/internal/persist"
)

var invoiceColumns = []string{"id", "customer_id", "status", "total", "end_timestamp"}

func customers(rows ...[]string) *persist.Table {
	return &persist.Table{Columns: []string{"id", "name"}, Rows: rows}
}

func invoices(rows ...[]string) *persist.Table {
	return &persist.Table{Columns: invoiceColumns, Rows: rows}
}

func grants(rows ...[]string) *persist.Table {
	return &persist.Table{Columns: []string{"id", "customer_id", "deductions"}, Rows: rows}
}

func run(t *testing.T, tables Tables) []Row {
	t.Helper()
	rows, err := Run(context.Background(), tables)
	require.NoError(t, err)
	return rows
}

func TestRunAcmeExample(t *testing.T) {
	rows := run(t, Tables{
		Customers: customers([]string{"c1", "Acme"}),
		Invoices: invoices(
			[]string{"i1", "c1", "FINALIZED", "15000", "2024-01-01"},
			[]string{"i2", "c1", "FINALIZED", "5000", "2024-02-01"},
		),
		CreditGrants: grants([]string{"g1", "c1", "[{'running_balance': 2500}]"}),
	})

	require.Len(t, rows, 1)
	assert.Equal(t, "Acme", rows[0].Name)
	assert.Equal(t, "$50.00 USD", rows[0].CurrentInvoiceBalance())
	assert.Equal(t, "$25.00 USD", rows[0].CreditBalance())
	assert.Equal(t, "i2", rows[0].CurrentInvoiceID.String)
	assert.Equal(t, int64(2), rows[0].InvoiceCount.Int64)

	table := SummaryTable(rows)
	assert.Equal(t, []string{"name", "current_invoice_balance", "credit_balance"}, table.Columns)
	assert.Equal(t, [][]string{{"Acme", "$50.00 USD", "$25.00 USD"}}, table.Rows)
}

func TestRunExcludesNonFinalizedInvoices(t *testing.T) {
	rows := run(t, Tables{
		Customers: customers([]string{"c1", "Acme"}),
		Invoices: invoices(
			[]string{"i1", "c1", billing.InvoiceStatusFinalized, "15000", "2024-01-01"},
			[]string{"i2", "c1", billing.InvoiceStatusDraft, "5000", "2024-03-01"},
			[]string{"i3", "c1", billing.InvoiceStatusVoid, "900", "2024-04-01"},
			[]string{"i4", "c1", "finalized", "700", "2024-05-01"},
		),
		CreditGrants: grants(),
	})

	require.Len(t, rows, 1)
	assert.Equal(t, "$150.00 USD", rows[0].CurrentInvoiceBalance())
	assert.Equal(t, int64(1), rows[0].InvoiceCount.Int64)
	assert.False(t, rows[0].CreditTotal.Valid)
}

func TestRunCustomerWithoutActivity(t *testing.T) {
	rows := run(t, Tables{
		Customers: customers([]string{"c2", "Zeta"}, []string{"c1", "Acme"}, []string{"c3", "Beta"}),
		Invoices:  invoices([]string{"i1", "c1", "FINALIZED", "100", "2024-01-01"}),
		CreditGrants: grants(
			[]string{"g1", "c2", "[{'running_balance': 300}]"},
		),
	})

	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Acme", "Beta", "Zeta"}, []string{rows[0].Name, rows[1].Name, rows[2].Name})

	beta := rows[1]
	assert.False(t, beta.CurrentInvoiceTotal.Valid)
	assert.False(t, beta.CreditTotal.Valid)
	assert.False(t, beta.InvoiceCount.Valid)
	assert.Equal(t, []string{"Beta", "", ""}, SummaryTable(rows).Rows[1])

	assert.Equal(t, "$3.00 USD", rows[2].CreditBalance())
	assert.Equal(t, "", rows[2].CurrentInvoiceBalance())
}

func TestRunTieBreaksOnInvoiceID(t *testing.T) {
	rows := run(t, Tables{
		Customers: customers([]string{"c1", "Acme"}),
		Invoices: invoices(
			[]string{"i2", "c1", "FINALIZED", "200", "2024-02-01T00:00:00Z"},
			[]string{"i1", "c1", "FINALIZED", "100", "2024-02-01T00:00:00Z"},
		),
		CreditGrants: grants(),
	})

	assert.Equal(t, "i1", rows[0].CurrentInvoiceID.String)
	assert.Equal(t, "$1.00 USD", rows[0].CurrentInvoiceBalance())
}

func TestRunOrdersMixedTimestampFormats(t *testing.T) {
	rows := run(t, Tables{
		Customers: customers([]string{"c1", "Acme"}),
		Invoices: invoices(
			[]string{"i1", "c1", "FINALIZED", "100", "2024-01-15T12:00:00Z"},
			[]string{"i2", "c1", "FINALIZED", "200", "2024-01-15"},
		),
		CreditGrants: grants(),
	})

	assert.Equal(t, "i1", rows[0].CurrentInvoiceID.String)
}

func TestRunSumsGrantsAndNullsMalformedCells(t *testing.T) {
	var buf bytes.Buffer
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(&buf))

	rows, err := Run(ctx, Tables{
		Customers: customers([]string{"c1", "Acme"}),
		Invoices:  invoices(),
		CreditGrants: grants(
			[]string{"g1", "c1", "[{'running_balance': 2500, 'amount': -500}, {'running_balance': 3000}]"},
			[]string{"g2", "c1", "[{'running_balance': 1000}]"},
			[]string{"g3", "c1", "[{'reason': 'customer's refund', 'running_balance': 99999}]"},
			[]string{"g4", "c1", "[]"},
			[]string{"g5", "c9", "[{'running_balance': 700}]"},
		),
	})
	require.NoError(t, err)

	require.Len(t, rows, 1)
	assert.Equal(t, "$35.00 USD", rows[0].CreditBalance())
	assert.Contains(t, buf.String(), "embedded value unparseable")
	assert.Contains(t, buf.String(), `"cells_nulled":1`)
}

func TestRunNumericLookingIDsStillJoin(t *testing.T) {
	rows := run(t, Tables{
		Customers:    customers([]string{"007", "Bond"}),
		Invoices:     invoices([]string{"1", "007", "FINALIZED", "12345", "2024-01-01"}),
		CreditGrants: grants([]string{"2", "007", "[{'running_balance': 1.5}]"}),
	})

	assert.Equal(t, "$123.45 USD", rows[0].CurrentInvoiceBalance())
	assert.Equal(t, "$0.02 USD", rows[0].CreditBalance())
}

func TestRunMissingRequiredColumn(t *testing.T) {
	var buf bytes.Buffer
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(&buf))

	rows, err := Run(ctx, Tables{
		Customers: customers([]string{"c1", "Acme"}),
		Invoices: &persist.Table{
			Columns: []string{"id", "customer_id", "total", "end_timestamp"},
			Rows:    [][]string{{"i1", "c1", "100", "2024-01-01"}},
		},
		CreditGrants: nil,
	})
	require.NoError(t, err)

	require.Len(t, rows, 1)
	assert.False(t, rows[0].CurrentInvoiceTotal.Valid)
	assert.Contains(t, buf.String(), "required column missing")
}

func TestFormatUSD(t *testing.T) {
	tests := []struct {
		minor float64
		want  string
	}{
		{5000, "$50.00 USD"},
		{0, "$0.00 USD"},
		{1, "$0.01 USD"},
		{-2550, "$-25.50 USD"},
		{123456789, "$1234567.89 USD"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatUSD(nullFloat(tt.minor)))
	}
	assert.Equal(t, "", FormatUSD(nullFloat(0, false)))
}

func TestRunFromPersistedRecords(t *testing.T) {
	dir := t.TempDir()
	paths := func(name string) persist.Paths {
		return persist.Paths{
			RawJSON:  filepath.Join(dir, name+".json"),
			FlatJSON: filepath.Join(dir, name+"_flat.json"),
			CSV:      filepath.Join(dir, name+".csv"),
		}
	}

	_, err := persist.Write([]billing.Customer{{ID: "c1", Name: "Acme"}}, paths("customers"), persist.LayoutFlat)
	require.NoError(t, err)
	_, err = persist.Write([]billing.Invoice{
		{ID: "i1", CustomerID: "c1", Status: billing.InvoiceStatusFinalized, Total: 15000, EndTimestamp: "2024-01-01"},
		{ID: "i2", CustomerID: "c1", Status: billing.InvoiceStatusFinalized, Total: 5000, EndTimestamp: "2024-02-01"},
	}, paths("invoices"), persist.LayoutFlat)
	require.NoError(t, err)
	_, err = persist.Write([]billing.CreditGrant{
		{ID: "g1", CustomerID: "c1", Deductions: []billing.Deduction{{RunningBalance: 2500, CreditGrantID: "g1"}}},
	}, paths("credit_grants"), persist.LayoutEmbedded)
	require.NoError(t, err)

	var tables Tables
	tables.Customers, err = persist.ReadCSV(paths("customers").CSV)
	require.NoError(t, err)
	tables.Invoices, err = persist.ReadCSV(paths("invoices").CSV)
	require.NoError(t, err)
	tables.CreditGrants, err = persist.ReadCSV(paths("credit_grants").CSV)
	require.NoError(t, err)

	rows := run(t, tables)
	require.Len(t, rows, 1)
	assert.Equal(t, "$50.00 USD", rows[0].CurrentInvoiceBalance())
	assert.Equal(t, "$25.00 USD", rows[0].CreditBalance())
}
