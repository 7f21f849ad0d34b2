// Package billing holds the typed snapshots fetched from the billing API.
// Monetary amounts are kept in minor currency units (cents) everywhere.
package billing

import "github.com/shopspring/decimal"

// Invoice statuses. Only FINALIZED invoices count towards balances.
const (
	InvoiceStatusDraft     = "DRAFT"
	InvoiceStatusFinalized = "FINALIZED"
	InvoiceStatusVoid      = "VOID"
)

type Customer struct {
	Name           string                 `json:"name"`
	CustomFields   map[string]interface{} `json:"custom_fields"`
	ExternalID     *string                `json:"external_id"`
	IngestAliases  []string               `json:"ingest_aliases"`
	ID             string                 `json:"id"`
	CustomerConfig map[string]interface{} `json:"customer_config"`
}

// CreditType is the currency/credit reference found on invoices, line items
// and grant amounts.
type CreditType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type SubLineItem struct {
	ChargeID     string            `json:"charge_id"`
	Name         string            `json:"name"`
	Subtotal     float64           `json:"subtotal"`
	Price        float64           `json:"price"`
	Quantity     float64           `json:"quantity"`
	CustomFields map[string]string `json:"custom_fields"`
}

type LineItem struct {
	Total        float64           `json:"total"`
	CreditType   CreditType        `json:"credit_type"`
	Name         string            `json:"name"`
	ProductID    string            `json:"product_id"`
	Quantity     float64           `json:"quantity"`
	CustomFields map[string]string `json:"custom_fields"`
	SubLineItems []SubLineItem     `json:"sub_line_items"`
}

// InvoiceAdjustment is a deduction applied on top of the invoice total.
type InvoiceAdjustment struct {
	Total      float64    `json:"total"`
	CreditType CreditType `json:"credit_type"`
}

type Invoice struct {
	ID                   string              `json:"id"`
	StartTimestamp       string              `json:"start_timestamp"`
	EndTimestamp         string              `json:"end_timestamp"`
	CustomerID           string              `json:"customer_id"`
	CustomerCustomFields map[string]string   `json:"customer_custom_fields"`
	Type                 string              `json:"type"`
	CreditType           CreditType          `json:"credit_type"`
	PlanID               string              `json:"plan_id"`
	PlanName             string              `json:"plan_name"`
	PlanCustomFields     map[string]string   `json:"plan_custom_fields"`
	Status               string              `json:"status"`
	Total                float64             `json:"total"`
	ExternalInvoice      *string             `json:"external_invoice"`
	Subtotal             float64             `json:"subtotal"`
	LineItems            []LineItem          `json:"line_items"`
	InvoiceAdjustments   []InvoiceAdjustment `json:"invoice_adjustments"`
	CustomFields         map[string]string   `json:"custom_fields"`
	BillableStatus       string              `json:"billable_status"`
}

// IsFinalized reports whether the invoice is eligible for balance totals.
func (i Invoice) IsFinalized() bool {
	return i.Status == InvoiceStatusFinalized
}

// AdjustedTotal is the invoice total minus every adjustment, in minor units.
func (i Invoice) AdjustedTotal() decimal.Decimal {
	total := decimal.NewFromFloat(i.Total)
	for _, adj := range i.InvoiceAdjustments {
		total = total.Sub(decimal.NewFromFloat(adj.Total))
	}
	return total
}

// Amount is a quantity of a given credit type (grant_amount, paid_amount).
type Amount struct {
	Amount     float64    `json:"amount"`
	CreditType CreditType `json:"credit_type"`
}

type Balance struct {
	IncludingPending int64  `json:"including_pending"`
	ExcludingPending int64  `json:"excluding_pending"`
	EffectiveAt      string `json:"effective_at"`
}

// Deduction is one draw-down against a credit grant. RunningBalance is the
// grant balance left after the deduction.
type Deduction struct {
	Amount         float64 `json:"amount"`
	Reason         string  `json:"reason"`
	RunningBalance float64 `json:"running_balance"`
	EffectiveAt    string  `json:"effective_at"`
	CreatedBy      string  `json:"created_by"`
	CreditGrantID  string  `json:"credit_grant_id"`
	InvoiceID      *string `json:"invoice_id"`
}

type GrantCustomFields struct {
	XAccountID *string `json:"x_account_id"`
}

type CreditGrant struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	CustomerID        string             `json:"customer_id"`
	UniquenessKey     *string            `json:"uniqueness_key"`
	Reason            *string            `json:"reason"`
	EffectiveAt       string             `json:"effective_at"`
	ExpiresAt         string             `json:"expires_at"`
	Priority          float64            `json:"priority"`
	GrantAmount       Amount             `json:"grant_amount"`
	PaidAmount        Amount             `json:"paid_amount"`
	Balance           Balance            `json:"balance"`
	Deductions        []Deduction        `json:"deductions"`
	PendingDeductions []Deduction        `json:"pending_deductions"`
	CustomFields      *GrantCustomFields `json:"custom_fields"`
	CreditGrantType   *string            `json:"credit_grant_type"`
}

// LatestRunningBalance is the running balance recorded on the first listed
// deduction. ok is false for grants that have never been drawn down.
func (g CreditGrant) LatestRunningBalance() (balance float64, ok bool) {
	if len(g.Deductions) == 0 {
		return 0, false
	}
	return g.Deductions[0].RunningBalance, true
}
