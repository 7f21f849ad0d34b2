package billingapi

import (
	"context"
	"errors"
	"net/url"

	"github.com/valyala/fasthttp"

	"github.com/dvloznov/billing-reporter/internal/billing"
	"github.com/dvloznov/billing-reporter/internal/logger"
)

// ListGrantsRequest is the body of POST credits/listGrants.
type ListGrantsRequest struct {
	CustomerIDs []string `json:"customer_ids,omitempty"`
	Limit       int      `json:"limit,omitempty"`
	NextPage    string   `json:"next_page,omitempty"`
}

// ListCustomers returns one page of customers.
func (c *Client) ListCustomers(ctx context.Context, params Params) Page[billing.Customer] {
	page, err := Fetch[billing.Customer](ctx, c, fasthttp.MethodGet, "customers", params, nil)
	if err != nil {
		c.logFailure(ctx, err)
		return Page[billing.Customer]{}
	}
	return page
}

// GetCustomer returns the customer or nil.
func (c *Client) GetCustomer(ctx context.Context, customerID string) *billing.Customer {
	cust, err := FetchOne[billing.Customer](ctx, c, fasthttp.MethodGet, "customers/"+url.PathEscape(customerID), nil)
	if err != nil {
		c.logFailure(ctx, err)
		return nil
	}
	return &cust
}

// ListCustomerInvoices returns one page of a customer's invoices.
func (c *Client) ListCustomerInvoices(ctx context.Context, customerID string, params Params) Page[billing.Invoice] {
	path := "customers/" + url.PathEscape(customerID) + "/invoices"
	page, err := Fetch[billing.Invoice](ctx, c, fasthttp.MethodGet, path, params, nil)
	if err != nil {
		c.logFailure(ctx, err)
		return Page[billing.Invoice]{}
	}
	return page
}

// ListCreditGrants returns one page of credit grants.
func (c *Client) ListCreditGrants(ctx context.Context, body ListGrantsRequest) Page[billing.CreditGrant] {
	page, err := Fetch[billing.CreditGrant](ctx, c, fasthttp.MethodPost, "credits/listGrants", nil, body)
	if err != nil {
		c.logFailure(ctx, err)
		return Page[billing.CreditGrant]{}
	}
	return page
}

func (c *Client) logFailure(ctx context.Context, err error) {
	log := logger.FromContext(ctx)
	ev := log.Error()
	if kind := KindOf(err); kind != "" {
		ev = ev.Str("kind", string(kind))
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		ev = ev.Str("endpoint", fe.Endpoint)
		if fe.Status != 0 {
			ev = ev.Int("status", fe.Status)
		}
		err = fe.Err
	}
	ev.Err(err).Msg("billing api call returned no data")
}
