package aggregate

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"

	"github.com/dvloznov/billing-reporter/internal/kvtext"
	"github.com/dvloznov/billing-reporter/internal/logger"
)

// embeddedColumns hold single-quoted nested values on the credit grant table.
var embeddedColumns = []string{"balance", "deductions", "grant_amount"}

// RepairReport counts what Repair did.
type RepairReport struct {
	Repaired int
	Nulled   int
}

type embeddedCell struct {
	RowID int64          `gorm:"column:rid"`
	Value sql.NullString `gorm:"column:value"`
}

// Repair rewrites the embedded credit grant columns into JSON text. A cell
// that is still not valid JSON afterwards is set to NULL and logged; the
// run continues.
func (e *Engine) Repair(ctx context.Context) (RepairReport, error) {
	log := logger.FromContext(ctx)
	var report RepairReport

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, col := range embeddedColumns {
			var cells []embeddedCell
			q := fmt.Sprintf("SELECT rowid AS rid, CAST(%s AS TEXT) AS value FROM %s WHERE %s IS NOT NULL",
				quoteIdent(col), quoteIdent(TableCreditGrants), quoteIdent(col))
			if err := tx.Raw(q).Scan(&cells).Error; err != nil {
				return fmt.Errorf("Repair: read %s: %w", col, err)
			}

			update := fmt.Sprintf("UPDATE %s SET %s = ? WHERE rowid = ?", quoteIdent(TableCreditGrants), quoteIdent(col))
			for _, cell := range cells {
				var value any
				repaired, err := kvtext.ToJSON(cell.Value.String)
				if err != nil {
					log.Warn().
						Err(err).
						Str("column", col).
						Int64("row", cell.RowID).
						Msg("embedded value unparseable, nulling cell")
					report.Nulled++
				} else {
					value = repaired
					report.Repaired++
				}
				if err := tx.Exec(update, value, cell.RowID).Error; err != nil {
					return fmt.Errorf("Repair: update %s row %d: %w", col, cell.RowID, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return RepairReport{}, err
	}
	return report, nil
}
