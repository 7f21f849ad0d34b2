package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/billing-reporter/internal/config"
	"github.com/dvloznov/billing-reporter/internal/gcsuploader"
	infraBQ "github.com/dvloznov/billing-reporter/internal/infra/bigquery"
	"github.com/dvloznov/billing-reporter/internal/logger"
	"github.com/dvloznov/billing-reporter/internal/notionsync"
	"github.com/dvloznov/billing-reporter/internal/pipeline"
)

func bqTarget(log zerolog.Logger, cfg config.Config) infraBQ.Target {
	if cfg.BQProject == "" || cfg.BQDataset == "" {
		log.Fatal().Msg("Error: BQ_PROJECT and BQ_DATASET are required")
	}
	return infraBQ.Target{Project: cfg.BQProject, Dataset: cfg.BQDataset, Table: cfg.BQTable}
}

// summarizeLocal recomputes the summary from the extracted CSVs.
func summarizeLocal(ctx context.Context, log zerolog.Logger, cfg config.Config, runID string) *pipeline.PipelineState {
	state := pipeline.NewState(cfg.Paths())
	if runID != "" {
		state.RunID = runID
	}
	if err := pipeline.NewSummarizePipeline().Execute(ctx, state); err != nil {
		log.Fatal().Err(err).Msg("Summarize failed")
	}
	return state
}

func runPublish(log zerolog.Logger, cfg config.Config) {
	fs := flag.NewFlagSet("publish", flag.ExitOnError)
	bucket := fs.String("bucket", cfg.GCSBucket, "GCS bucket name")
	runID := fs.String("run-id", "", "Run ID used as the object prefix (generated when empty)")
	fs.Parse(os.Args[2:])

	if *bucket == "" {
		log.Fatal().Msg("Error: --bucket or GCS_BUCKET is required")
	}
	if *runID == "" {
		*runID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	p := cfg.Paths()
	files := []string{
		p.CustomersRaw, p.CustomersFlat, p.CustomersCSV,
		p.InvoicesRaw, p.InvoicesFlat, p.InvoicesCSV,
		p.CreditGrantsRaw, p.CreditGrantsFlat, p.CreditGrantsCSV,
		p.SummaryCSV, p.SummaryXLSX,
	}

	uris, err := gcsuploader.Publish(ctx, gcsuploader.NewGCSStorageService(), *bucket, *runID, files)
	if err != nil {
		log.Fatal().Err(err).Msg("Publish failed")
	}

	fmt.Printf("Published %d artifacts for run %s\n", len(uris), *runID)
	for _, u := range uris {
		fmt.Println("  " + u)
	}
}

func runExportBQ(log zerolog.Logger, cfg config.Config) {
	fs := flag.NewFlagSet("export-bq", flag.ExitOnError)
	runID := fs.String("run-id", "", "Run ID stored with the rows (generated when empty)")
	reportDate := fs.String("report-date", "", "Report date in YYYY-MM-DD format (defaults to today, UTC)")
	fs.Parse(os.Args[2:])

	target := bqTarget(log, cfg)

	date := civil.DateOf(time.Now().UTC())
	if *reportDate != "" {
		d, err := civil.ParseDate(*reportDate)
		if err != nil {
			log.Fatal().Err(err).Str("report_date", *reportDate).Msg("Error: invalid report-date format, expected YYYY-MM-DD")
		}
		date = d
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	state := summarizeLocal(ctx, log, cfg, *runID)
	rows := infraBQ.SummaryRowsFromAggregate(state.RunID, date, time.Now().UTC(), state.Rows)

	repo, err := infraBQ.NewBigQuerySummaryRepository(ctx, target)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize BigQuery repository")
	}
	defer repo.Close()

	if err := repo.EnsureTable(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure summary table")
	}
	if err := repo.InsertSummaries(ctx, rows); err != nil {
		log.Fatal().Err(err).Msg("Export failed")
	}

	fmt.Printf("Exported %d rows for run %s to %s.%s.%s\n", len(rows), state.RunID, target.Project, target.Dataset, target.Table)
}

func runBQShow(log zerolog.Logger, cfg config.Config) {
	fs := flag.NewFlagSet("bq-show", flag.ExitOnError)
	runID := fs.String("run-id", "", "Run ID to show (latest run when empty)")
	fs.Parse(os.Args[2:])

	target := bqTarget(log, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo, err := infraBQ.NewBigQuerySummaryRepository(ctx, target)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize BigQuery repository")
	}
	defer repo.Close()

	rows, err := repo.ListSummaries(ctx, *runID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list summaries")
	}
	if len(rows) == 0 {
		fmt.Println("No summaries found.")
		return
	}

	fmt.Printf("\n=== Run %s (%s) ===\n", rows[0].RunID, rows[0].ReportDate)
	for i, r := range rows {
		fmt.Printf("\n%d. %s (%s)\n", i+1, r.Name, r.CustomerID)
		if r.CurrentInvoiceBalance.Valid {
			fmt.Printf("   Current invoice: %s", r.CurrentInvoiceBalance.StringVal)
			if r.CurrentInvoiceID.Valid {
				fmt.Printf(" [%s]", r.CurrentInvoiceID.StringVal)
			}
			fmt.Println()
		}
		if r.CurrentInvoiceAdjustedUSD.Valid {
			fmt.Printf("   Adjusted:        $%.2f USD\n", r.CurrentInvoiceAdjustedUSD.Float64)
		}
		if r.CreditBalance.Valid {
			fmt.Printf("   Credit balance:  %s\n", r.CreditBalance.StringVal)
		}
		if r.InvoiceCount.Valid {
			fmt.Printf("   Finalized:       %d\n", r.InvoiceCount.Int64)
		}
	}
	fmt.Println()
}

func runSyncNotion(log zerolog.Logger, cfg config.Config) {
	fs := flag.NewFlagSet("sync-notion", flag.ExitOnError)
	notionToken := fs.String("notion-token", cfg.NotionToken, "Notion API token")
	notionDBID := fs.String("notion-db-id", cfg.NotionDatabaseID, "Notion database ID")
	fromBQ := fs.Bool("from-bq", false, "Read summaries from BigQuery instead of the local CSVs")
	runID := fs.String("run-id", "", "BigQuery run ID to sync (latest run when empty)")
	dryRun := fs.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	fs.Parse(os.Args[2:])

	if *notionToken == "" {
		log.Fatal().Msg("Error: --notion-token or NOTION_TOKEN is required")
	}
	if *notionDBID == "" {
		log.Fatal().Msg("Error: --notion-db-id or NOTION_DATABASE_ID is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	var rows []*infraBQ.SummaryRow
	if *fromBQ {
		repo, err := infraBQ.NewBigQuerySummaryRepository(ctx, bqTarget(log, cfg))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize BigQuery repository")
		}
		defer repo.Close()

		rows, err = repo.ListSummaries(ctx, *runID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to list summaries")
		}
	} else {
		state := summarizeLocal(ctx, log, cfg, *runID)
		rows = infraBQ.SummaryRowsFromAggregate(state.RunID, civil.DateOf(state.StartedAt), state.StartedAt, state.Rows)
	}

	notionClient, err := notionsync.NewNotionClient(*notionToken)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Notion client")
	}

	res, err := notionsync.SyncSummaries(ctx, notionClient, *notionDBID, rows, *dryRun)
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Printf("Sync completed: %d created, %d updated, %d archived, %d failed.\n",
		res.Created, res.Updated, res.Archived, res.Failed)
}
