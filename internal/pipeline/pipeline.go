// Package pipeline wires fetching, persisting, aggregation and reporting
// into the runs the commands execute.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/billing-reporter/internal/aggregate"
	"github.com/dvloznov/billing-reporter/internal/billing"
	"github.com/dvloznov/billing-reporter/internal/config"
	"github.com/dvloznov/billing-reporter/internal/logger"
)

// PipelineStep represents a single step of a run.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	RunID     string
	StartedAt time.Time
	Paths     config.Paths

	// CustomerID restricts fetching to one customer when set.
	CustomerID string

	Batch   billing.Batch
	Orphans billing.Orphans
	Tables  aggregate.Tables
	Rows    []aggregate.Row
}

// NewState starts a run with a fresh run ID.
func NewState(paths config.Paths) *PipelineState {
	return &PipelineState{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Paths:     paths,
	}
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially, stopping at the first failure.
// Artifacts written by earlier steps are left in place.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{"run_id": state.RunID})
	ctx = logger.WithContext(ctx, log)

	for i, step := range p.steps {
		started := time.Now()
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Name(), err)
		}
		log.Debug().
			Str("step", step.Name()).
			Dur("elapsed", time.Since(started)).
			Msg("step finished")
	}
	return nil
}

// NewExtractPipeline fetches everything from the API and writes the raw,
// flattened and CSV artifacts.
func NewExtractPipeline(client BillingClient) *Pipeline {
	return NewPipeline(extractSteps(client)...)
}

// NewSummarizePipeline aggregates the CSVs already on disk and writes the
// summary.
func NewSummarizePipeline() *Pipeline {
	return NewPipeline(
		&LoadTablesStep{},
		&AggregateStep{},
		&AdjustTotalsStep{},
		&WriteSummaryStep{},
	)
}

// NewReportPipeline is extract followed by summarize, without re-reading
// the CSVs from disk.
func NewReportPipeline(client BillingClient) *Pipeline {
	steps := extractSteps(client)
	steps = append(steps, &AggregateStep{}, &AdjustTotalsStep{}, &WriteSummaryStep{})
	return NewPipeline(steps...)
}

func extractSteps(client BillingClient) []PipelineStep {
	return []PipelineStep{
		&FetchCustomersStep{Client: client},
		&FetchInvoicesStep{Client: client},
		&FetchCreditGrantsStep{Client: client},
		&CheckOrphansStep{},
		&PersistStep{},
	}
}
