package aggregate

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/dvloznov/billing-reporter/internal/logger"
	"github.com/dvloznov/billing-reporter/internal/persist"
)

// Table names inside the engine.
const (
	TableCustomers    = "customers"
	TableInvoices     = "invoices"
	TableCreditGrants = "credit_grants"
)

// SQLite column affinities chosen by inference.
const (
	typeInteger = "INTEGER"
	typeReal    = "REAL"
	typeText    = "TEXT"
)

// Columns the summary query reads. Missing ones are created as all-NULL so
// that the query still runs and the affected outputs come out null.
var requiredColumns = map[string][]string{
	TableCustomers:    {"id", "name"},
	TableInvoices:     {"id", "customer_id", "status", "total", "end_timestamp"},
	TableCreditGrants: {"id", "customer_id", "balance", "deductions", "grant_amount"},
}

// Identifier columns are compared across tables and must stay text even
// when every value looks numeric.
var textColumns = map[string]bool{
	"id":          true,
	"customer_id": true,
	"name":        true,
	"status":      true,
}

// inferType picks the narrowest affinity that every non-empty cell fits.
func inferType(t *persist.Table, col int) string {
	kind := typeInteger
	seen := false
	for _, row := range t.Rows {
		cell := row[col]
		if cell == "" {
			continue
		}
		seen = true
		if kind == typeInteger {
			if _, err := strconv.ParseInt(cell, 10, 64); err == nil {
				continue
			}
			kind = typeReal
		}
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			return typeText
		}
	}
	if !seen {
		return typeText
	}
	return kind
}

func convertCell(cell, kind string) (any, error) {
	if cell == "" {
		return nil, nil
	}
	switch kind {
	case typeInteger:
		return strconv.ParseInt(cell, 10, 64)
	case typeReal:
		return strconv.ParseFloat(cell, 64)
	default:
		return cell, nil
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// loadTable creates name from the CSV table and inserts every row.
func loadTable(ctx context.Context, db *gorm.DB, name string, t *persist.Table) error {
	log := logger.FromContext(ctx)

	if t == nil {
		t = &persist.Table{}
	}

	cols := make([]string, len(t.Columns))
	types := make([]string, len(t.Columns))
	present := make(map[string]bool, len(t.Columns))
	var defs []string
	for i, c := range t.Columns {
		if present[c] {
			return fmt.Errorf("loadTable: %s: duplicate column %q", name, c)
		}
		present[c] = true
		cols[i] = quoteIdent(c)
		types[i] = inferType(t, i)
		if textColumns[c] {
			types[i] = typeText
		}
		defs = append(defs, cols[i]+" "+types[i])
	}
	for _, c := range requiredColumns[name] {
		if !present[c] {
			log.Warn().Str("table", name).Str("column", c).Msg("required column missing, treating as null")
			defs = append(defs, quoteIdent(c)+" "+typeText)
		}
	}
	if len(defs) == 0 {
		return fmt.Errorf("loadTable: %s: no columns", name)
	}

	tx := db.WithContext(ctx)
	if err := tx.Exec("DROP TABLE IF EXISTS " + quoteIdent(name)).Error; err != nil {
		return fmt.Errorf("loadTable: drop %s: %w", name, err)
	}
	if err := tx.Exec("CREATE TABLE " + quoteIdent(name) + " (" + strings.Join(defs, ", ") + ")").Error; err != nil {
		return fmt.Errorf("loadTable: create %s: %w", name, err)
	}
	if len(t.Columns) == 0 || len(t.Rows) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	insert := "INSERT INTO " + quoteIdent(name) + " (" + strings.Join(cols, ", ") + ") VALUES (" + placeholders + ")"

	return tx.Transaction(func(tx *gorm.DB) error {
		for r, row := range t.Rows {
			args := make([]any, len(cols))
			for i := range cols {
				v, err := convertCell(row[i], types[i])
				if err != nil {
					return fmt.Errorf("loadTable: %s row %d column %s: %w", name, r, t.Columns[i], err)
				}
				args[i] = v
			}
			if err := tx.Exec(insert, args...).Error; err != nil {
				return fmt.Errorf("loadTable: insert into %s row %d: %w", name, r, err)
			}
		}
		return nil
	})
}
