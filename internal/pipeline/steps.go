package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/dvloznov/billing-reporter/internal/aggregate"
	"github.com/dvloznov/billing-reporter/internal/billing"
	"github.com/dvloznov/billing-reporter/internal/billingapi"
	"github.com/dvloznov/billing-reporter/internal/logger"
	"github.com/dvloznov/billing-reporter/internal/persist"
	"github.com/dvloznov/billing-reporter/internal/report"
)

// collectPages calls fetch with the cursor of the previous page until a
// page without next_page comes back or maxPages is reached.
func collectPages[T any](ctx context.Context, what string, maxPages int, fetch func(cursor string) billingapi.Page[T]) []T {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	var out []T
	cursor := ""
	for i := 0; i < maxPages; i++ {
		page := fetch(cursor)
		out = append(out, page.Data...)
		if page.NextPage == "" {
			return out
		}
		cursor = page.NextPage
	}

	log := logger.FromContext(ctx)
	log.Warn().Str("listing", what).Int("max_pages", maxPages).Msg("page limit reached, results truncated")
	return out
}

func listParams(limit int, cursor string) billingapi.Params {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	p := billingapi.Params{"limit": strconv.Itoa(limit)}
	if cursor != "" {
		p["next_page"] = cursor
	}
	return p
}

// FetchCustomersStep loads all customers, or only state.CustomerID. An
// unavailable single customer leaves the batch empty.
type FetchCustomersStep struct {
	Client    BillingClient
	PageLimit int
	MaxPages  int
}

func (s *FetchCustomersStep) Name() string { return "fetch-customers" }

func (s *FetchCustomersStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	if state.CustomerID != "" {
		state.Batch.Customers = nil
		if cust := s.Client.GetCustomer(ctx, state.CustomerID); cust != nil {
			state.Batch.Customers = []billing.Customer{*cust}
		} else {
			log.Warn().Str("customer_id", state.CustomerID).Msg("customer not available, continuing with an empty batch")
		}
	} else {
		state.Batch.Customers = collectPages(ctx, "customers", s.MaxPages, func(cursor string) billingapi.Page[billing.Customer] {
			return s.Client.ListCustomers(ctx, listParams(s.PageLimit, cursor))
		})
	}

	log.Info().Int("customers", len(state.Batch.Customers)).Msg("customers fetched")
	return nil
}

// FetchInvoicesStep loads every invoice of every fetched customer and keeps
// a raw dump per customer.
type FetchInvoicesStep struct {
	Client    BillingClient
	PageLimit int
	MaxPages  int
}

func (s *FetchInvoicesStep) Name() string { return "fetch-invoices" }

func (s *FetchInvoicesStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	state.Batch.Invoices = nil
	for _, c := range state.Batch.Customers {
		invoices := collectPages(ctx, "invoices", s.MaxPages, func(cursor string) billingapi.Page[billing.Invoice] {
			return s.Client.ListCustomerInvoices(ctx, c.ID, listParams(s.PageLimit, cursor))
		})

		if state.Paths.RawDir != "" {
			dump := persist.Paths{RawJSON: state.Paths.CustomerInvoicesRaw(c.ID)}
			if _, err := persist.Write(invoices, dump, persist.LayoutFlat); err != nil {
				return fmt.Errorf("FetchInvoicesStep: customer %s: %w", c.ID, err)
			}
		}

		log.Debug().Str("customer_id", c.ID).Int("invoices", len(invoices)).Msg("invoices fetched")
		state.Batch.Invoices = append(state.Batch.Invoices, invoices...)
	}

	finalized := 0
	for _, inv := range state.Batch.Invoices {
		if inv.IsFinalized() {
			finalized++
		}
	}
	log.Info().
		Int("invoices", len(state.Batch.Invoices)).
		Int("finalized", finalized).
		Msg("invoices fetched")
	return nil
}

// FetchCreditGrantsStep loads the credit grants of the fetched customers.
type FetchCreditGrantsStep struct {
	Client    BillingClient
	PageLimit int
	MaxPages  int
}

func (s *FetchCreditGrantsStep) Name() string { return "fetch-credit-grants" }

func (s *FetchCreditGrantsStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	state.Batch.CreditGrants = nil
	if len(state.Batch.Customers) == 0 {
		log.Warn().Msg("no customers, skipping credit grants")
		return nil
	}

	ids := make([]string, 0, len(state.Batch.Customers))
	for _, c := range state.Batch.Customers {
		ids = append(ids, c.ID)
	}

	limit := s.PageLimit
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	state.Batch.CreditGrants = collectPages(ctx, "credit grants", s.MaxPages, func(cursor string) billingapi.Page[billing.CreditGrant] {
		return s.Client.ListCreditGrants(ctx, billingapi.ListGrantsRequest{
			CustomerIDs: ids,
			Limit:       limit,
			NextPage:    cursor,
		})
	})

	undrawn := 0
	for _, g := range state.Batch.CreditGrants {
		if _, ok := g.LatestRunningBalance(); !ok {
			undrawn++
		}
	}
	log.Info().
		Int("credit_grants", len(state.Batch.CreditGrants)).
		Int("without_deductions", undrawn).
		Msg("credit grants fetched")
	return nil
}

// CheckOrphansStep reports invoices and grants whose customer is not in
// the batch. They are kept; the summary simply has no row for them.
type CheckOrphansStep struct{}

func (s *CheckOrphansStep) Name() string { return "check-orphans" }

func (s *CheckOrphansStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Orphans = state.Batch.OrphanReport()
	if state.Orphans.Empty() {
		return nil
	}

	log := logger.FromContext(ctx)
	log.Warn().
		Strs("invoice_ids", state.Orphans.InvoiceIDs).
		Strs("credit_grant_ids", state.Orphans.CreditGrantIDs).
		Msg("records reference customers outside this batch")
	return nil
}

// PersistStep writes raw JSON, flattened JSON and CSV for each record set.
// Credit grants keep their nested values embedded so the aggregator can
// read deductions from a single column.
type PersistStep struct{}

func (s *PersistStep) Name() string { return "persist" }

func (s *PersistStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	p := state.Paths

	customers, err := persist.Write(state.Batch.Customers, persist.Paths{
		RawJSON: p.CustomersRaw, FlatJSON: p.CustomersFlat, CSV: p.CustomersCSV,
	}, persist.LayoutFlat)
	if err != nil {
		return fmt.Errorf("PersistStep: customers: %w", err)
	}

	invoices, err := persist.Write(state.Batch.Invoices, persist.Paths{
		RawJSON: p.InvoicesRaw, FlatJSON: p.InvoicesFlat, CSV: p.InvoicesCSV,
	}, persist.LayoutFlat)
	if err != nil {
		return fmt.Errorf("PersistStep: invoices: %w", err)
	}

	grants, err := persist.Write(state.Batch.CreditGrants, persist.Paths{
		RawJSON: p.CreditGrantsRaw, FlatJSON: p.CreditGrantsFlat, CSV: p.CreditGrantsCSV,
	}, persist.LayoutEmbedded)
	if err != nil {
		return fmt.Errorf("PersistStep: credit grants: %w", err)
	}

	state.Tables = aggregate.Tables{Customers: customers, Invoices: invoices, CreditGrants: grants}

	log.Info().
		Str("processed_dir", p.ProcessedDir).
		Int("customer_columns", len(customers.Columns)).
		Int("invoice_columns", len(invoices.Columns)).
		Int("credit_grant_columns", len(grants.Columns)).
		Msg("artifacts written")
	return nil
}

// LoadTablesStep reads the three CSVs written by a previous extract.
type LoadTablesStep struct{}

func (s *LoadTablesStep) Name() string { return "load-tables" }

func (s *LoadTablesStep) Execute(ctx context.Context, state *PipelineState) error {
	p := state.Paths
	for _, in := range []struct {
		path string
		dst  **persist.Table
	}{
		{p.CustomersCSV, &state.Tables.Customers},
		{p.InvoicesCSV, &state.Tables.Invoices},
		{p.CreditGrantsCSV, &state.Tables.CreditGrants},
	} {
		t, err := persist.ReadCSV(in.path)
		if err != nil {
			return fmt.Errorf("LoadTablesStep: %w (run extract first)", err)
		}
		*in.dst = t
	}
	return nil
}

// AggregateStep computes the per-customer summary. With state.CustomerID
// set, only that customer's row is kept.
type AggregateStep struct{}

func (s *AggregateStep) Name() string { return "aggregate" }

func (s *AggregateStep) Execute(ctx context.Context, state *PipelineState) error {
	rows, err := aggregate.Run(ctx, state.Tables)
	if err != nil {
		return fmt.Errorf("AggregateStep: %w", err)
	}

	if state.CustomerID != "" {
		var kept []aggregate.Row
		for _, r := range rows {
			if r.CustomerID == state.CustomerID {
				kept = append(kept, r)
			}
		}
		rows = kept
	}

	state.Rows = rows
	return nil
}

// AdjustTotalsStep fills each row's adjusted current invoice total from the
// typed invoices. Without a fetched batch the invoices are read back from
// the raw invoices dump; a missing dump leaves the column empty.
type AdjustTotalsStep struct{}

func (s *AdjustTotalsStep) Name() string { return "adjust-totals" }

func (s *AdjustTotalsStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	invoices := state.Batch.Invoices
	if invoices == nil {
		raw, err := os.ReadFile(state.Paths.InvoicesRaw)
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn().Str("path", state.Paths.InvoicesRaw).Msg("raw invoices missing, adjusted totals left empty")
			return nil
		}
		if err != nil {
			return fmt.Errorf("AdjustTotalsStep: %w", err)
		}
		if err := json.Unmarshal(raw, &invoices); err != nil {
			return fmt.Errorf("AdjustTotalsStep: decode %s: %w", state.Paths.InvoicesRaw, err)
		}
	}

	n := aggregate.ApplyAdjustments(state.Rows, invoices)
	log.Debug().Int("rows", n).Msg("adjusted totals applied")
	return nil
}

// WriteSummaryStep writes summary.csv and summary.xlsx.
type WriteSummaryStep struct{}

func (s *WriteSummaryStep) Name() string { return "write-summary" }

func (s *WriteSummaryStep) Execute(ctx context.Context, state *PipelineState) error {
	if err := report.WriteCSV(ctx, state.Paths.SummaryCSV, state.Rows); err != nil {
		return fmt.Errorf("WriteSummaryStep: %w", err)
	}
	if state.Paths.SummaryXLSX != "" {
		if err := report.WriteXLSX(ctx, state.Paths.SummaryXLSX, state.Rows); err != nil {
			return fmt.Errorf("WriteSummaryStep: %w", err)
		}
	}
	return nil
}
