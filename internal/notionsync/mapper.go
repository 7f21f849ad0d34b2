package notionsync

import (
	"time"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/billing-reporter/internal/infra/bigquery"
)

// Property names of the customer balances database.
const (
	PropCustomerID     = "Customer ID"
	PropName           = "Name"
	PropInvoiceBalance = "Current Invoice Balance"
	PropCreditBalance  = "Credit Balance"
	PropInvoiceUSD     = "Current Invoice USD"
	PropCreditUSD      = "Credit USD"
	PropInvoiceCount   = "Finalized Invoices"
	PropReportDate     = "Report Date"
	PropRunID          = "Run ID"
)

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: s},
		},
	}
}

// SummaryToNotionProperties maps a summary row onto the balances database.
// Null balances are written as empty text so an update clears stale values.
func SummaryToNotionProperties(row *bigquery.SummaryRow) notionapi.Properties {
	props := notionapi.Properties{
		PropCustomerID: notionapi.TitleProperty{Title: richText(row.CustomerID)},
		PropName:       notionapi.RichTextProperty{RichText: richText(row.Name)},
		PropRunID:      notionapi.RichTextProperty{RichText: richText(row.RunID)},
		PropInvoiceBalance: notionapi.RichTextProperty{
			RichText: richText(row.CurrentInvoiceBalance.StringVal),
		},
		PropCreditBalance: notionapi.RichTextProperty{
			RichText: richText(row.CreditBalance.StringVal),
		},
	}

	if row.CurrentInvoiceUSD.Valid {
		props[PropInvoiceUSD] = notionapi.NumberProperty{Number: row.CurrentInvoiceUSD.Float64}
	}
	if row.CreditUSD.Valid {
		props[PropCreditUSD] = notionapi.NumberProperty{Number: row.CreditUSD.Float64}
	}
	if row.InvoiceCount.Valid {
		props[PropInvoiceCount] = notionapi.NumberProperty{Number: float64(row.InvoiceCount.Int64)}
	}
	if row.ReportDate.IsValid() {
		d := notionapi.Date(time.Date(row.ReportDate.Year, row.ReportDate.Month, row.ReportDate.Day, 0, 0, 0, 0, time.UTC))
		props[PropReportDate] = notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &d},
		}
	}

	return props
}

// extractCustomerID reads the title property of a page returned by Notion.
func extractCustomerID(page notionapi.Page) string {
	if prop, ok := page.Properties[PropCustomerID]; ok {
		if title, ok := prop.(*notionapi.TitleProperty); ok && len(title.Title) > 0 {
			return title.Title[0].PlainText
		}
	}
	return ""
}
