package pipeline_test

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/billing-reporter/internal/aggregate"
	"github.com/dvloznov/billing-reporter/internal/billing"
	"github.com/dvloznov/billing-reporter/internal/billingapi"
	"github.com/dvloznov/billing-reporter/internal/config"
	"github.com/dvloznov/billing-reporter/internal/logger"
	"github.com/dvloznov/billing-reporter/internal/persist"
	"github.com/dvloznov/billing-reporter/internal/pipeline"
)

func testPaths(t *testing.T) config.Paths {
	return config.Config{DataDir: t.TempDir()}.Paths()
}

func TestReportPipelineAcme(t *testing.T) {
	ctx := context.Background()
	state := pipeline.NewState(testPaths(t))

	require.NoError(t, pipeline.NewReportPipeline(acmeClient()).Execute(ctx, state))

	assert.NotEmpty(t, state.RunID)
	assert.Len(t, state.Batch.Customers, 2)
	assert.Len(t, state.Batch.Invoices, 2)
	assert.True(t, state.Orphans.Empty())

	summary, err := persist.ReadCSV(state.Paths.SummaryCSV)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "current_invoice_balance", "credit_balance"}, summary.Columns)
	assert.Equal(t, [][]string{
		{"Acme", "$50.00 USD", "$25.00 USD"},
		{"Beta", "", ""},
	}, summary.Rows)

	require.Len(t, state.Rows, 2)
	assert.Equal(t, "4500", state.Rows[0].CurrentInvoiceAdjusted.Decimal.String())
	assert.False(t, state.Rows[1].CurrentInvoiceAdjusted.Valid)

	for _, p := range []string{
		state.Paths.CustomersRaw, state.Paths.CustomersFlat, state.Paths.CustomersCSV,
		state.Paths.InvoicesRaw, state.Paths.InvoicesFlat, state.Paths.InvoicesCSV,
		state.Paths.CreditGrantsRaw, state.Paths.CreditGrantsFlat, state.Paths.CreditGrantsCSV,
		state.Paths.CustomerInvoicesRaw("c1"), state.Paths.SummaryXLSX,
	} {
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}
}

func TestSummarizePipelineReadsExtractedCSVs(t *testing.T) {
	ctx := context.Background()
	paths := testPaths(t)

	require.NoError(t, pipeline.NewExtractPipeline(acmeClient()).Execute(ctx, pipeline.NewState(paths)))

	_, err := os.Stat(paths.SummaryCSV)
	assert.True(t, os.IsNotExist(err))

	state := pipeline.NewState(paths)
	require.NoError(t, pipeline.NewSummarizePipeline().Execute(ctx, state))

	require.Len(t, state.Rows, 2)
	assert.Equal(t, "$50.00 USD", state.Rows[0].CurrentInvoiceBalance())
	assert.Equal(t, "c1", state.Rows[0].CustomerID)
	assert.True(t, state.Rows[0].CurrentInvoiceAdjusted.Valid)
	assert.Equal(t, "4500", state.Rows[0].CurrentInvoiceAdjusted.Decimal.String())
}

func TestAdjustTotalsWithoutRawDump(t *testing.T) {
	var buf bytes.Buffer
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(&buf))

	state := pipeline.NewState(testPaths(t))
	state.Rows = []aggregate.Row{{CustomerID: "c1", CurrentInvoiceID: sql.NullString{String: "i2", Valid: true}}}

	require.NoError(t, (&pipeline.AdjustTotalsStep{}).Execute(ctx, state))
	assert.False(t, state.Rows[0].CurrentInvoiceAdjusted.Valid)
	assert.Contains(t, buf.String(), "raw invoices missing")
}

func TestSummarizeWithoutExtractFails(t *testing.T) {
	err := pipeline.NewSummarizePipeline().Execute(context.Background(), pipeline.NewState(testPaths(t)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load-tables")
	assert.Contains(t, err.Error(), "run extract first")
}

func TestReportPipelineSingleCustomer(t *testing.T) {
	state := pipeline.NewState(testPaths(t))
	state.CustomerID = "c1"

	require.NoError(t, pipeline.NewReportPipeline(acmeClient()).Execute(context.Background(), state))

	require.Len(t, state.Batch.Customers, 1)
	require.Len(t, state.Rows, 1)
	assert.Equal(t, "Acme", state.Rows[0].Name)
}

func TestReportPipelineUnknownCustomer(t *testing.T) {
	var buf bytes.Buffer
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(&buf))
	state := pipeline.NewState(testPaths(t))
	state.CustomerID = "nope"

	require.NoError(t, pipeline.NewReportPipeline(acmeClient()).Execute(ctx, state))

	assert.Empty(t, state.Batch.Customers)
	assert.Empty(t, state.Rows)
	assert.Contains(t, buf.String(), "customer not available, continuing with an empty batch")

	raw, err := os.ReadFile(state.Paths.CustomersRaw)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))

	summary, err := persist.ReadCSV(state.Paths.SummaryCSV)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "current_invoice_balance", "credit_balance"}, summary.Columns)
	assert.Empty(t, summary.Rows)
}

func TestFetchFollowsPagination(t *testing.T) {
	var cursors []string
	client := &MockBillingClient{
		ListCustomersFunc: func(ctx context.Context, params billingapi.Params) billingapi.Page[billing.Customer] {
			cursors = append(cursors, params["next_page"])
			assert.Equal(t, "2", params["limit"])
			switch params["next_page"] {
			case "":
				return billingapi.Page[billing.Customer]{Data: []billing.Customer{{ID: "a"}}, NextPage: "x"}
			case "x":
				return billingapi.Page[billing.Customer]{Data: []billing.Customer{{ID: "b"}}, NextPage: "y"}
			default:
				return billingapi.Page[billing.Customer]{Data: []billing.Customer{{ID: "c"}}, NextPage: "z"}
			}
		},
	}

	state := pipeline.NewState(testPaths(t))
	step := &pipeline.FetchCustomersStep{Client: client, PageLimit: 2, MaxPages: 3}
	require.NoError(t, step.Execute(context.Background(), state))

	assert.Equal(t, []string{"", "x", "y"}, cursors)
	assert.Len(t, state.Batch.Customers, 3)
}

func TestFetchCreditGrantsSendsCustomerIDs(t *testing.T) {
	var got billingapi.ListGrantsRequest
	client := &MockBillingClient{
		ListCreditGrantsFunc: func(ctx context.Context, body billingapi.ListGrantsRequest) billingapi.Page[billing.CreditGrant] {
			got = body
			return billingapi.Page[billing.CreditGrant]{}
		},
	}

	state := pipeline.NewState(testPaths(t))
	state.Batch.Customers = []billing.Customer{{ID: "c1"}, {ID: "c2"}}

	require.NoError(t, (&pipeline.FetchCreditGrantsStep{Client: client}).Execute(context.Background(), state))
	assert.Equal(t, []string{"c1", "c2"}, got.CustomerIDs)
	assert.Equal(t, pipeline.DefaultPageLimit, got.Limit)
}

func TestCheckOrphansStep(t *testing.T) {
	state := pipeline.NewState(testPaths(t))
	state.Batch = billing.Batch{
		Customers: []billing.Customer{{ID: "c1"}},
		Invoices:  []billing.Invoice{{ID: "i9", CustomerID: "c9"}},
	}

	require.NoError(t, (&pipeline.CheckOrphansStep{}).Execute(context.Background(), state))
	assert.Equal(t, []string{"i9"}, state.Orphans.InvoiceIDs)
}

type failingStep struct{}

func (failingStep) Name() string { return "boom" }

func (failingStep) Execute(context.Context, *pipeline.PipelineState) error {
	return errors.New("exploded")
}

type countingStep struct{ calls *int }

func (s countingStep) Name() string { return "count" }

func (s countingStep) Execute(context.Context, *pipeline.PipelineState) error {
	*s.calls++
	return nil
}

func TestPipelineStopsAtFirstFailure(t *testing.T) {
	calls := 0
	p := pipeline.NewPipeline(countingStep{&calls}, failingStep{}, countingStep{&calls})

	err := p.Execute(context.Background(), pipeline.NewState(testPaths(t)))
	require.Error(t, err)
	assert.Equal(t, "pipeline step 2 (boom) failed: exploded", err.Error())
	assert.Equal(t, 1, calls)
}
