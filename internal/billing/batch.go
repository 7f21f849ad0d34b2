package billing

// Batch is one extraction run: every customer plus the invoices and credit
// grants fetched for them.
type Batch struct {
	Customers    []Customer
	Invoices     []Invoice
	CreditGrants []CreditGrant
}

// Orphans lists records whose customer_id does not match any customer in
// the same batch. Such rows come out of the summary join as nulls.
type Orphans struct {
	InvoiceIDs     []string
	CreditGrantIDs []string
}

// Empty reports whether the batch is referentially complete.
func (o Orphans) Empty() bool {
	return len(o.InvoiceIDs) == 0 && len(o.CreditGrantIDs) == 0
}

// OrphanReport checks that every invoice and grant belongs to a known customer.
func (b Batch) OrphanReport() Orphans {
	known := make(map[string]struct{}, len(b.Customers))
	for _, c := range b.Customers {
		known[c.ID] = struct{}{}
	}

	var o Orphans
	for _, inv := range b.Invoices {
		if _, ok := known[inv.CustomerID]; !ok {
			o.InvoiceIDs = append(o.InvoiceIDs, inv.ID)
		}
	}
	for _, g := range b.CreditGrants {
		if _, ok := known[g.CustomerID]; !ok {
			o.CreditGrantIDs = append(o.CreditGrantIDs, g.ID)
		}
	}
	return o
}
