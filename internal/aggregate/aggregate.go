// Package aggregate computes the per-customer balance summary from the
// customers, invoices and credit grants CSV tables.
//
// The tables are loaded into an in-memory SQLite database. Embedded
// single-quoted values on credit grants are repaired into JSON, then one
// query ranks each customer's finalized invoices by period end and sums
// credit grant running balances.
package aggregate

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dvloznov/billing-reporter/internal/billing"
	"github.com/dvloznov/billing-reporter/internal/logger"
	"github.com/dvloznov/billing-reporter/internal/persist"
)

// Tables are the three flat inputs.
type Tables struct {
	Customers    *persist.Table
	Invoices     *persist.Table
	CreditGrants *persist.Table
}

// Row is one customer in the summary. Amounts are in minor units; a null
// amount means the customer has no finalized invoice or no drawn grant.
type Row struct {
	CustomerID          string          `gorm:"column:customer_id"`
	Name                string          `gorm:"column:name"`
	CurrentInvoiceID    sql.NullString  `gorm:"column:current_invoice_id"`
	CurrentInvoiceEnd   sql.NullString  `gorm:"column:current_invoice_end"`
	InvoiceCount        sql.NullInt64   `gorm:"column:invoice_count"`
	CurrentInvoiceTotal sql.NullFloat64 `gorm:"column:current_invoice_total"`
	CreditTotal         sql.NullFloat64 `gorm:"column:credit_total"`

	// CurrentInvoiceAdjusted is the current invoice total net of its
	// adjustments. It is filled from typed invoices by ApplyAdjustments.
	CurrentInvoiceAdjusted decimal.NullDecimal `gorm:"-"`
}

// Engine owns one private in-memory database.
type Engine struct {
	db *gorm.DB
}

// Open creates an empty in-memory database.
func Open(ctx context.Context) (*Engine, error) {
	dsn := fmt.Sprintf("file:agg-%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.NewGormLogger(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}
	// The database lives only as long as a connection holds it.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := db.WithContext(ctx).Exec("SELECT 1").Error; err != nil {
		return nil, fmt.Errorf("Open: ping: %w", err)
	}
	return &Engine{db: db}, nil
}

// Close releases the database.
func (e *Engine) Close() error {
	sqlDB, err := e.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Load replaces the three tables with the given CSV contents.
func (e *Engine) Load(ctx context.Context, t Tables) error {
	for _, in := range []struct {
		name  string
		table *persist.Table
	}{
		{TableCustomers, t.Customers},
		{TableInvoices, t.Invoices},
		{TableCreditGrants, t.CreditGrants},
	} {
		if err := loadTable(ctx, e.db, in.name, in.table); err != nil {
			return fmt.Errorf("Load: %w", err)
		}
	}
	return nil
}

// Summarize runs the summary query over the loaded and repaired tables.
// Rows are ordered by customer name, then id.
func (e *Engine) Summarize(ctx context.Context) ([]Row, error) {
	var rows []Row
	if err := e.db.WithContext(ctx).Raw(summaryQuery, billing.InvoiceStatusFinalized).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("Summarize: %w", err)
	}
	return rows, nil
}

// Run executes load, repair and summarize on a fresh database.
func Run(ctx context.Context, t Tables) ([]Row, error) {
	log := logger.FromContext(ctx)

	e, err := Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}
	defer e.Close()

	if err := e.Load(ctx, t); err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}

	report, err := e.Repair(ctx)
	if err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}
	log.Info().
		Int("cells_repaired", report.Repaired).
		Int("cells_nulled", report.Nulled).
		Msg("embedded values repaired")

	rows, err := e.Summarize(ctx)
	if err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}
	log.Info().Int("customers", len(rows)).Msg("summary computed")
	return rows, nil
}

// ApplyAdjustments sets CurrentInvoiceAdjusted on every row whose current
// invoice is among invoices. It returns the number of rows set.
func ApplyAdjustments(rows []Row, invoices []billing.Invoice) int {
	byID := make(map[string]billing.Invoice, len(invoices))
	for _, inv := range invoices {
		byID[inv.ID] = inv
	}

	n := 0
	for i := range rows {
		r := &rows[i]
		if !r.CurrentInvoiceID.Valid {
			continue
		}
		inv, ok := byID[r.CurrentInvoiceID.String]
		if !ok {
			continue
		}
		r.CurrentInvoiceAdjusted = decimal.NullDecimal{Decimal: inv.AdjustedTotal(), Valid: true}
		n++
	}
	return n
}

const summaryQuery = `
WITH ranked_invoices AS (
	SELECT
		id,
		customer_id,
		total,
		end_timestamp,
		ROW_NUMBER() OVER (
			PARTITION BY customer_id
			ORDER BY julianday(end_timestamp) DESC, end_timestamp DESC, id ASC
		) AS rn,
		COUNT(*) OVER (PARTITION BY customer_id) AS finalized_count
	FROM invoices
	WHERE status = ?
),
invoice_totals AS (
	SELECT
		customer_id,
		id AS current_invoice_id,
		end_timestamp AS current_invoice_end,
		finalized_count AS invoice_count,
		total AS current_invoice_total
	FROM ranked_invoices
	WHERE rn = 1
),
credit_totals AS (
	SELECT
		customer_id,
		SUM(CAST(json_extract(deductions, '$[0].running_balance') AS REAL)) AS credit_total
	FROM credit_grants
	WHERE deductions IS NOT NULL
	GROUP BY customer_id
)
SELECT
	COALESCE(c.id, '') AS customer_id,
	COALESCE(c.name, '') AS name,
	i.current_invoice_id,
	i.current_invoice_end,
	i.invoice_count,
	i.current_invoice_total,
	t.credit_total
FROM customers c
LEFT JOIN invoice_totals i ON c.id = i.customer_id
LEFT JOIN credit_totals t ON c.id = t.customer_id
ORDER BY c.name ASC, c.id ASC`
