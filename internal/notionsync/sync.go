package notionsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/billing-reporter/internal/infra/bigquery"
	"github.com/dvloznov/billing-reporter/internal/logger"
)

// SyncResult counts what a sync did (or would do, in dry-run mode).
type SyncResult struct {
	Created  int
	Updated  int
	Archived int
	Failed   int
}

// SyncSummaries makes the Notion database mirror rows, one page per
// customer keyed by "Customer ID":
//  1. pages without a customer ID, or for customers not in rows, are archived
//  2. existing customer pages are updated in place
//  3. missing customers get a new page
//
// Individual page failures are logged and counted; only a failure to list
// the database aborts the sync.
func SyncSummaries(ctx context.Context, svc NotionService, databaseID string, rows []*bigquery.SummaryRow, dryRun bool) (SyncResult, error) {
	log := logger.FromContext(ctx)
	var res SyncResult

	log.Info().
		Int("summary_rows", len(rows)).
		Bool("dry_run", dryRun).
		Msg("Starting balance summary sync to Notion")

	pages, err := QueryAllPages(ctx, svc, databaseID)
	if err != nil {
		return res, fmt.Errorf("SyncSummaries: %w", err)
	}
	log.Info().Int("notion_page_count", len(pages)).Msg("Retrieved existing Notion pages")

	wanted := make(map[string]bool, len(rows))
	for _, r := range rows {
		wanted[r.CustomerID] = true
	}

	existing := make(map[string]string)
	for _, page := range pages {
		id := extractCustomerID(page)
		if id == "" || !wanted[id] || existing[id] != "" {
			archivePage(ctx, svc, page, id, dryRun, &res)
			continue
		}
		existing[id] = string(page.ID)
	}

	for _, r := range rows {
		props := SummaryToNotionProperties(r)
		pageID, found := existing[r.CustomerID]

		if dryRun {
			if found {
				log.Info().Str("customer_id", r.CustomerID).Str("page_id", pageID).Msg("[DRY RUN] Would update Notion page")
				res.Updated++
			} else {
				log.Info().Str("customer_id", r.CustomerID).Msg("[DRY RUN] Would create Notion page")
				res.Created++
			}
			continue
		}

		if found {
			if _, err := svc.UpdatePage(ctx, pageID, props); err != nil {
				log.Warn().Err(err).Str("customer_id", r.CustomerID).Str("page_id", pageID).Msg("Failed to update Notion page")
				res.Failed++
				continue
			}
			res.Updated++
			continue
		}

		page, err := svc.CreatePage(ctx, databaseID, props)
		if err != nil {
			log.Warn().Err(err).Str("customer_id", r.CustomerID).Msg("Failed to create Notion page")
			res.Failed++
			continue
		}
		log.Debug().Str("customer_id", r.CustomerID).Str("page_id", string(page.ID)).Msg("Created Notion page")
		res.Created++
	}

	log.Info().
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("archived", res.Archived).
		Int("failed", res.Failed).
		Msg("Balance summary sync completed")

	return res, nil
}

func archivePage(ctx context.Context, svc NotionService, page notionapi.Page, customerID string, dryRun bool, res *SyncResult) {
	log := logger.FromContext(ctx)

	if dryRun {
		log.Info().Str("customer_id", customerID).Str("page_id", string(page.ID)).Msg("[DRY RUN] Would archive stale Notion page")
		res.Archived++
		return
	}
	if err := svc.ArchivePage(ctx, string(page.ID)); err != nil {
		log.Warn().Err(err).Str("customer_id", customerID).Str("page_id", string(page.ID)).Msg("Failed to archive stale Notion page")
		res.Failed++
		return
	}
	log.Info().Str("customer_id", customerID).Str("page_id", string(page.ID)).Msg("Archived stale Notion page")
	res.Archived++
}
