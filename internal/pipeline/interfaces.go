package pipeline

import (
	"context"

	"github.com/dvloznov/billing-reporter/internal/billing"
	"github.com/dvloznov/billing-reporter/internal/billingapi"
)

// BillingClient is the subset of the billing API the pipeline uses.
// *billingapi.Client satisfies it. Failed calls return empty pages.
type BillingClient interface {
	ListCustomers(ctx context.Context, params billingapi.Params) billingapi.Page[billing.Customer]
	GetCustomer(ctx context.Context, customerID string) *billing.Customer
	ListCustomerInvoices(ctx context.Context, customerID string, params billingapi.Params) billingapi.Page[billing.Invoice]
	ListCreditGrants(ctx context.Context, body billingapi.ListGrantsRequest) billingapi.Page[billing.CreditGrant]
}
