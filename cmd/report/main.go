package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/dvloznov/billing-reporter/internal/billingapi"
	"github.com/dvloznov/billing-reporter/internal/config"
	"github.com/dvloznov/billing-reporter/internal/logger"
	"github.com/dvloznov/billing-reporter/internal/pipeline"
)

func main() {
	// Parse CLI flags
	customerID := flag.String("customer", "", "Only fetch and report this customer ID")
	output := flag.String("output", "", "Summary CSV path (overrides SUMMARY_CSV)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *output != "" {
		cfg.SummaryCSV = *output
	}

	log := logger.NewWithLevel(cfg.LogLevel)

	if err := cfg.RequireAPI(); err != nil {
		log.Fatal().Err(err).Msg("Cannot reach the billing API")
	}

	// Create context with timeout so the run doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	client := billingapi.NewClient(cfg.BaseURL, cfg.APIKey, billingapi.WithTimeout(cfg.HTTPTimeout))

	state := pipeline.NewState(cfg.Paths())
	state.CustomerID = *customerID

	log.Info().Str("run_id", state.RunID).Str("base_url", cfg.BaseURL).Msg("Starting report")

	if err := pipeline.NewReportPipeline(client).Execute(ctx, state); err != nil {
		log.Fatal().Err(err).Msg("Report failed")
	}

	fmt.Printf("Report completed: %d customers summarized into %s\n", len(state.Rows), state.Paths.SummaryCSV)
}
