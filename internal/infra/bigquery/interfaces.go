package bigquery

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// SummaryRepository stores and reads exported balance summaries.
type SummaryRepository interface {
	EnsureTable(ctx context.Context) error
	InsertSummaries(ctx context.Context, rows []*SummaryRow) error
	ListSummaries(ctx context.Context, runID string) ([]*SummaryRow, error)
}

// BigQuerySummaryRepository is the concrete implementation of
// SummaryRepository. It holds a shared BigQuery client to avoid creating a
// new connection for each operation.
type BigQuerySummaryRepository struct {
	client *bigquery.Client
	target Target
}

// NewBigQuerySummaryRepository creates a repository for target.
func NewBigQuerySummaryRepository(ctx context.Context, target Target) (*BigQuerySummaryRepository, error) {
	if target.Project == "" || target.Dataset == "" || target.Table == "" {
		return nil, errors.New("NewBigQuerySummaryRepository: BQ_PROJECT, BQ_DATASET and BQ_TABLE are required")
	}
	client, err := bigquery.NewClient(ctx, target.Project)
	if err != nil {
		return nil, fmt.Errorf("NewBigQuerySummaryRepository: creating client: %w", err)
	}
	return &BigQuerySummaryRepository{
		client: client,
		target: target,
	}, nil
}

// Close closes the BigQuery client connection.
func (r *BigQuerySummaryRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// EnsureTable delegates to EnsureSummaryTableWithClient.
func (r *BigQuerySummaryRepository) EnsureTable(ctx context.Context) error {
	return EnsureSummaryTableWithClient(ctx, r.client, r.target)
}

// InsertSummaries delegates to InsertSummariesWithClient.
func (r *BigQuerySummaryRepository) InsertSummaries(ctx context.Context, rows []*SummaryRow) error {
	return InsertSummariesWithClient(ctx, r.client, r.target, rows)
}

// ListSummaries delegates to ListSummariesWithClient.
func (r *BigQuerySummaryRepository) ListSummaries(ctx context.Context, runID string) ([]*SummaryRow, error) {
	return ListSummariesWithClient(ctx, r.client, r.target, runID)
}
