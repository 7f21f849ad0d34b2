package pipeline_test

import (
	"context"

	"github.com/dvloznov/billing-reporter/internal/billing"
	"github.com/dvloznov/billing-reporter/internal/billingapi"
)

// MockBillingClient is a mock implementation of pipeline.BillingClient.
type MockBillingClient struct {
	ListCustomersFunc        func(ctx context.Context, params billingapi.Params) billingapi.Page[billing.Customer]
	GetCustomerFunc          func(ctx context.Context, customerID string) *billing.Customer
	ListCustomerInvoicesFunc func(ctx context.Context, customerID string, params billingapi.Params) billingapi.Page[billing.Invoice]
	ListCreditGrantsFunc     func(ctx context.Context, body billingapi.ListGrantsRequest) billingapi.Page[billing.CreditGrant]
}

func (m *MockBillingClient) ListCustomers(ctx context.Context, params billingapi.Params) billingapi.Page[billing.Customer] {
	if m.ListCustomersFunc != nil {
		return m.ListCustomersFunc(ctx, params)
	}
	return billingapi.Page[billing.Customer]{}
}

func (m *MockBillingClient) GetCustomer(ctx context.Context, customerID string) *billing.Customer {
	if m.GetCustomerFunc != nil {
		return m.GetCustomerFunc(ctx, customerID)
	}
	return nil
}

func (m *MockBillingClient) ListCustomerInvoices(ctx context.Context, customerID string, params billingapi.Params) billingapi.Page[billing.Invoice] {
	if m.ListCustomerInvoicesFunc != nil {
		return m.ListCustomerInvoicesFunc(ctx, customerID, params)
	}
	return billingapi.Page[billing.Invoice]{}
}

func (m *MockBillingClient) ListCreditGrants(ctx context.Context, body billingapi.ListGrantsRequest) billingapi.Page[billing.CreditGrant] {
	if m.ListCreditGrantsFunc != nil {
		return m.ListCreditGrantsFunc(ctx, body)
	}
	return billingapi.Page[billing.CreditGrant]{}
}

// acmeClient serves the Acme example: two finalized invoices, the latest
// with a $5 adjustment, and one drawn grant, plus a second customer without
// activity.
func acmeClient() *MockBillingClient {
	return &MockBillingClient{
		ListCustomersFunc: func(ctx context.Context, params billingapi.Params) billingapi.Page[billing.Customer] {
			if params["next_page"] == "" {
				return billingapi.Page[billing.Customer]{
					Data:     []billing.Customer{{ID: "c1", Name: "Acme"}},
					NextPage: "p2",
				}
			}
			return billingapi.Page[billing.Customer]{Data: []billing.Customer{{ID: "c2", Name: "Beta"}}}
		},
		GetCustomerFunc: func(ctx context.Context, customerID string) *billing.Customer {
			if customerID == "c1" {
				return &billing.Customer{ID: "c1", Name: "Acme"}
			}
			return nil
		},
		ListCustomerInvoicesFunc: func(ctx context.Context, customerID string, params billingapi.Params) billingapi.Page[billing.Invoice] {
			if customerID != "c1" {
				return billingapi.Page[billing.Invoice]{}
			}
			return billingapi.Page[billing.Invoice]{Data: []billing.Invoice{
				{ID: "i1", CustomerID: "c1", Status: billing.InvoiceStatusFinalized, Total: 15000, EndTimestamp: "2024-01-01"},
				{
					ID: "i2", CustomerID: "c1", Status: billing.InvoiceStatusFinalized, Total: 5000, EndTimestamp: "2024-02-01",
					InvoiceAdjustments: []billing.InvoiceAdjustment{{Total: 500, CreditType: billing.CreditType{ID: "usd", Name: "USD"}}},
				},
			}}
		},
		ListCreditGrantsFunc: func(ctx context.Context, body billingapi.ListGrantsRequest) billingapi.Page[billing.CreditGrant] {
			return billingapi.Page[billing.CreditGrant]{Data: []billing.CreditGrant{
				{ID: "g1", CustomerID: "c1", Deductions: []billing.Deduction{{RunningBalance: 2500, CreditGrantID: "g1"}}},
			}}
		},
	}
}
