package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/dvloznov/billing-reporter/internal/agent"
	"github.com/dvloznov/billing-reporter/internal/billingapi"
	"github.com/dvloznov/billing-reporter/internal/config"
	"github.com/dvloznov/billing-reporter/internal/gcsuploader"
	"github.com/dvloznov/billing-reporter/internal/kvtext"
	"github.com/dvloznov/billing-reporter/internal/logger"
	"github.com/dvloznov/billing-reporter/internal/persist"
	"github.com/dvloznov/billing-reporter/internal/pipeline"
	"github.com/dvloznov/billing-reporter/internal/report"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.NewWithLevel(cfg.LogLevel)

	switch os.Args[1] {
	case "extract":
		runExtract(log, cfg)
	case "summarize":
		runSummarize(log, cfg)
	case "report":
		runReport(log, cfg)
	case "browse":
		runBrowse(log, cfg)
	case "ask":
		runAsk(log, cfg)
	case "publish":
		runPublish(log, cfg)
	case "export-bq":
		runExportBQ(log, cfg)
	case "bq-show":
		runBQShow(log, cfg)
	case "sync-notion":
		runSyncNotion(log, cfg)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Billing Reporter CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  extract      Fetch customers, invoices and credit grants and write raw, flat and CSV files")
	fmt.Println("  summarize    Aggregate the extracted CSVs into the balance summary")
	fmt.Println("  report       Extract and summarize in one run")
	fmt.Println("  browse       Print an extracted table or the summary")
	fmt.Println("  ask          Ask questions about a CSV table (local path or gs:// URI)")
	fmt.Println("  publish      Upload the run artifacts to GCS")
	fmt.Println("  export-bq    Export the balance summary to BigQuery")
	fmt.Println("  bq-show      Show exported summaries from BigQuery")
	fmt.Println("  sync-notion  Mirror the balance summary into a Notion database")
	fmt.Println("  help         Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func newAPIClient(log zerolog.Logger, cfg config.Config) *billingapi.Client {
	if err := cfg.RequireAPI(); err != nil {
		log.Fatal().Err(err).Msg("Cannot reach the billing API")
	}
	return billingapi.NewClient(cfg.BaseURL, cfg.APIKey, billingapi.WithTimeout(cfg.HTTPTimeout))
}

func runExtract(log zerolog.Logger, cfg config.Config) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	customerID := fs.String("customer", "", "Only fetch this customer ID")
	fs.Parse(os.Args[2:])

	client := newAPIClient(log, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	state := pipeline.NewState(cfg.Paths())
	state.CustomerID = *customerID

	if err := pipeline.NewExtractPipeline(client).Execute(ctx, state); err != nil {
		log.Fatal().Err(err).Msg("Extract failed")
	}

	fmt.Printf("Extracted %d customers, %d invoices, %d credit grants into %s\n",
		len(state.Batch.Customers), len(state.Batch.Invoices), len(state.Batch.CreditGrants), cfg.Paths().ProcessedDir)
}

func runSummarize(log zerolog.Logger, cfg config.Config) {
	fs := flag.NewFlagSet("summarize", flag.ExitOnError)
	customerID := fs.String("customer", "", "Only keep this customer's row")
	fs.Parse(os.Args[2:])

	ctx := logger.WithContext(context.Background(), log)

	state := pipeline.NewState(cfg.Paths())
	state.CustomerID = *customerID

	if err := pipeline.NewSummarizePipeline().Execute(ctx, state); err != nil {
		log.Fatal().Err(err).Msg("Summarize failed")
	}

	fmt.Printf("Wrote %d summary rows to %s\n", len(state.Rows), state.Paths.SummaryCSV)
}

func runReport(log zerolog.Logger, cfg config.Config) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	customerID := fs.String("customer", "", "Only fetch and report this customer ID")
	fs.Parse(os.Args[2:])

	client := newAPIClient(log, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	state := pipeline.NewState(cfg.Paths())
	state.CustomerID = *customerID

	if err := pipeline.NewReportPipeline(client).Execute(ctx, state); err != nil {
		log.Fatal().Err(err).Msg("Report failed")
	}

	fmt.Printf("Run %s: wrote %d summary rows to %s\n", state.RunID, len(state.Rows), state.Paths.SummaryCSV)
}

func runBrowse(log zerolog.Logger, cfg config.Config) {
	fs := flag.NewFlagSet("browse", flag.ExitOnError)
	table := fs.String("table", "summary", "Table to show: customers, invoices, credit_grants, summary or workbook")
	customerID := fs.String("customer", "", "Only show rows of this customer ID")
	limit := fs.Int("limit", 20, "Maximum number of rows to print (0 for all)")
	asJSON := fs.Bool("json", false, "Print rows as JSON objects with embedded values expanded")
	fs.Parse(os.Args[2:])

	paths := cfg.Paths()
	files := map[string]string{
		"customers":     paths.CustomersCSV,
		"invoices":      paths.InvoicesCSV,
		"credit_grants": paths.CreditGrantsCSV,
		"summary":       paths.SummaryCSV,
		"workbook":      paths.SummaryXLSX,
	}
	path, ok := files[*table]
	if !ok {
		log.Fatal().Str("table", *table).Msg("Unknown table")
	}

	var t *persist.Table
	var err error
	if *table == "workbook" {
		t, err = readWorkbook(path)
	} else {
		t, err = persist.ReadCSV(path)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read table")
	}

	if *customerID != "" {
		t = filterCustomer(t, *table, *customerID)
	}

	if *asJSON {
		if err := printJSON(os.Stdout, t, *limit); err != nil {
			log.Fatal().Err(err).Msg("Failed to encode rows")
		}
		return
	}

	fmt.Printf("%s (%d rows)\n\n", path, len(t.Rows))
	printTable(os.Stdout, t, *limit)
}

// readWorkbook loads the summary sheet. Trailing blank cells dropped by the
// sheet reader are padded back.
func readWorkbook(path string) (*persist.Table, error) {
	rows, err := report.ReadXLSX(path)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &persist.Table{}, nil
	}

	t := &persist.Table{Columns: rows[0]}
	for _, r := range rows[1:] {
		row := make([]string, len(t.Columns))
		copy(row, r)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// filterCustomer keeps the rows belonging to customerID. The summary CSV
// carries no ID column and is returned unchanged.
func filterCustomer(t *persist.Table, table, customerID string) *persist.Table {
	col := "customer_id"
	if table == "customers" {
		col = "id"
	}
	idx := t.Index(col)
	if idx < 0 {
		return t
	}

	out := &persist.Table{Columns: t.Columns}
	for _, row := range t.Rows {
		if idx < len(row) && row[idx] == customerID {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// printJSON writes rows as an array of objects. Cells holding embedded
// single-quoted values are decoded into nested JSON; cells that do not
// parse are kept as text.
func printJSON(w io.Writer, t *persist.Table, limit int) error {
	records := t.Records()
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	for _, rec := range records {
		for _, k := range rec.Keys() {
			v, _ := rec.Get(k)
			cell, _ := v.(string)
			if !strings.HasPrefix(cell, "[") && !strings.HasPrefix(cell, "{") {
				continue
			}
			if doc, err := kvtext.Parse(cell); err == nil {
				rec.Set(k, doc)
			}
		}
	}

	out, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("printJSON: %w", err)
	}
	out = append(out, '\n')
	_, err = w.Write(out)
	return err
}

func printTable(w io.Writer, t *persist.Table, limit int) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.Columns, "\t"))
	for i, row := range t.Rows {
		if limit > 0 && i >= limit {
			fmt.Fprintf(tw, "... %d more rows\n", len(t.Rows)-limit)
			break
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
}

func runAsk(log zerolog.Logger, cfg config.Config) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	source := fs.String("source", cfg.Paths().SummaryCSV, "CSV to ask about (local path or gs:// URI)")
	question := fs.String("q", "", "Ask a single question and exit")
	maxRows := fs.Int("max-rows", agent.DefaultMaxRows, "Maximum table rows sent to the model")
	fs.Parse(os.Args[2:])

	ctx := logger.WithContext(context.Background(), log)

	var svc gcsuploader.StorageService
	if strings.HasPrefix(*source, "gs://") {
		svc = gcsuploader.NewGCSStorageService()
	}
	data, err := gcsuploader.ReadSource(ctx, svc, *source)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read source")
	}
	table, err := persist.ParseCSV(bytes.NewReader(data))
	if err != nil {
		log.Fatal().Err(err).Str("source", *source).Msg("Failed to parse CSV")
	}

	gen, err := agent.NewGeminiGenerator(ctx, cfg.GeminiAPIKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create model client")
	}
	session := agent.NewSession(gen, cfg.GeminiModel, *source, table)
	session.SetMaxRows(*maxRows)

	if *question != "" {
		answer, err := session.Ask(ctx, *question)
		if err != nil {
			log.Fatal().Err(err).Msg("Question failed")
		}
		fmt.Println(answer)
		return
	}

	fmt.Printf("Loaded %s (%d rows). Type a question, /reset to clear history, /quit to exit.\n", *source, len(table.Rows))
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return
		case "/reset":
			session.Reset()
			fmt.Println("History cleared.")
			continue
		}

		answer, err := session.Ask(ctx, line)
		if err != nil {
			log.Error().Err(err).Msg("Question failed")
			continue
		}
		fmt.Println(answer)
	}
	if err := scanner.Err(); err != nil {
		log.Fatal().Err(err).Msg("Reading input failed")
	}
}
