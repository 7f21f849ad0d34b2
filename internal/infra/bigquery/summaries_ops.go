package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/billing-reporter/internal/logger"
)

// SummarySchema is the table schema derived from SummaryRow.
func SummarySchema() (bigquery.Schema, error) {
	schema, err := bigquery.InferSchema(SummaryRow{})
	if err != nil {
		return nil, fmt.Errorf("SummarySchema: %w", err)
	}
	return schema, nil
}

// EnsureSummaryTableWithClient creates the summary table, partitioned by
// report_date, if it does not exist yet.
func EnsureSummaryTableWithClient(ctx context.Context, client *bigquery.Client, target Target) error {
	log := logger.FromContext(ctx)
	table := client.DatasetInProject(target.Project, target.Dataset).Table(target.Table)

	_, err := table.Metadata(ctx)
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusNotFound {
		return fmt.Errorf("EnsureSummaryTable: table metadata: %w", err)
	}

	schema, err := SummarySchema()
	if err != nil {
		return fmt.Errorf("EnsureSummaryTable: %w", err)
	}
	meta := &bigquery.TableMetadata{
		Schema: schema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "report_date",
		},
	}
	if err := table.Create(ctx, meta); err != nil {
		return fmt.Errorf("EnsureSummaryTable: create table: %w", err)
	}

	log.Info().
		Str("dataset", target.Dataset).
		Str("table", target.Table).
		Msg("created summary table")
	return nil
}

// InsertSummariesWithClient streams rows into the summary table.
func InsertSummariesWithClient(ctx context.Context, client *bigquery.Client, target Target, rows []*SummaryRow) error {
	if len(rows) == 0 {
		return nil
	}

	table := client.DatasetInProject(target.Project, target.Dataset).Table(target.Table)
	if err := table.Inserter().Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertSummaries: inserting rows: %w", err)
	}
	return nil
}

// ListSummariesWithClient returns the rows of one run ordered by name.
// An empty runID selects the most recent run.
func ListSummariesWithClient(ctx context.Context, client *bigquery.Client, target Target, runID string) ([]*SummaryRow, error) {
	fq := fmt.Sprintf("`%s.%s.%s`", target.Project, target.Dataset, target.Table)

	var q *bigquery.Query
	if runID == "" {
		q = client.Query(fmt.Sprintf(`
			SELECT *
			FROM %s
			WHERE run_id = (
				SELECT run_id FROM %s ORDER BY created_ts DESC LIMIT 1
			)
			ORDER BY name, customer_id
		`, fq, fq))
	} else {
		q = client.Query(fmt.Sprintf(`
			SELECT *
			FROM %s
			WHERE run_id = @run_id
			ORDER BY name, customer_id
		`, fq))
		q.Parameters = []bigquery.QueryParameter{
			{Name: "run_id", Value: runID},
		}
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListSummaries: query read: %w", err)
	}

	var rows []*SummaryRow
	for {
		var r SummaryRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListSummaries: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}
