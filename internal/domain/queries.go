// Package domain provides the read model over the business reference
// dataset and formats it as triple-style text for LLM context assembly.
package domain

import (
	"context"
	"time"

	"github.com/nexorial/memlink/internal/storage"
	"github.com/nexorial/memlink/pkg/types"
)

// Reader aggregates reference records into per-entity rollups.
type Reader struct {
	reference storage.ReferenceStore
	now       func() time.Time
}

// NewReader creates a reader over the reference store.
func NewReader(reference storage.ReferenceStore) *Reader {
	return &Reader{reference: reference, now: time.Now}
}

// CustomerData is the rollup for one customer: their orders, open
// invoices, open tasks and summary counts.
type CustomerData struct {
	Customer     *types.Customer
	Orders       []*types.SalesOrder
	OpenInvoices []*types.Invoice
	OpenTasks    []*types.Task

	TotalOrders      int
	OpenInvoiceCount int
	TotalOpenAmount  float64
	OpenTaskCount    int
}

// CustomerRollup assembles the customer read model.
func (r *Reader) CustomerRollup(ctx context.Context, customerID string) (*CustomerData, error) {
	customer, err := r.reference.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	orders, err := r.reference.OrdersForCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	invoices, err := r.reference.OpenInvoicesForCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	var openTasks []*types.Task
	for _, status := range []string{types.TaskStatusTodo, types.TaskStatusDoing} {
		tasks, err := r.reference.TasksForCustomer(ctx, customerID, status)
		if err != nil {
			return nil, err
		}
		openTasks = append(openTasks, tasks...)
	}

	data := &CustomerData{
		Customer:         customer,
		Orders:           orders,
		OpenInvoices:     invoices,
		OpenTasks:        openTasks,
		TotalOrders:      len(orders),
		OpenInvoiceCount: len(invoices),
		OpenTaskCount:    len(openTasks),
	}
	for _, inv := range invoices {
		data.TotalOpenAmount += inv.Amount
	}
	return data, nil
}

// SalesOrderData is the rollup for one sales order.
type SalesOrderData struct {
	Order      *types.SalesOrder
	Customer   *types.Customer
	WorkOrders []*types.WorkOrder
	Invoices   []*types.Invoice
	Payments   []*types.Payment
}

// SalesOrderRollup assembles the sales order read model by its number.
func (r *Reader) SalesOrderRollup(ctx context.Context, number string) (*SalesOrderData, error) {
	order, err := r.reference.LookupSalesOrder(ctx, number)
	if err != nil {
		return nil, err
	}
	customer, err := r.reference.GetCustomer(ctx, order.CustomerID)
	if err != nil {
		return nil, err
	}
	workOrders, err := r.reference.WorkOrdersForOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	invoices, err := r.reference.InvoicesForOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	var payments []*types.Payment
	for _, inv := range invoices {
		p, err := r.reference.PaymentsForInvoice(ctx, inv.ID)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p...)
	}

	return &SalesOrderData{
		Order:      order,
		Customer:   customer,
		WorkOrders: workOrders,
		Invoices:   invoices,
		Payments:   payments,
	}, nil
}

// InvoiceData is the rollup for one invoice, with payment balance and
// overdue state.
type InvoiceData struct {
	Invoice  *types.Invoice
	Payments []*types.Payment

	TotalPaid   float64
	Balance     float64
	Overdue     bool
	DaysOverdue int
}

// InvoiceRollup assembles the invoice read model by its number.
func (r *Reader) InvoiceRollup(ctx context.Context, number string) (*InvoiceData, error) {
	invoice, err := r.reference.LookupInvoice(ctx, number)
	if err != nil {
		return nil, err
	}
	payments, err := r.reference.PaymentsForInvoice(ctx, invoice.ID)
	if err != nil {
		return nil, err
	}

	data := &InvoiceData{Invoice: invoice, Payments: payments}
	for _, p := range payments {
		data.TotalPaid += p.Amount
	}
	data.Balance = invoice.Amount - data.TotalPaid

	now := r.now().UTC()
	if invoice.Status == types.InvoiceStatusOpen && invoice.DueDate.Before(now) {
		data.Overdue = true
		data.DaysOverdue = int(now.Sub(invoice.DueDate).Hours() / 24)
	}
	return data, nil
}

// OverdueInvoice is one overdue listing entry.
type OverdueInvoice struct {
	Invoice     *types.Invoice
	DaysOverdue int
}

// OverdueInvoices lists open invoices overdue by at least daysThreshold
// days, most overdue first.
func (r *Reader) OverdueInvoices(ctx context.Context, daysThreshold int) ([]OverdueInvoice, error) {
	now := r.now().UTC()
	cutoff := now.Add(-time.Duration(daysThreshold) * 24 * time.Hour)

	invoices, err := r.reference.OverdueInvoices(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	out := make([]OverdueInvoice, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, OverdueInvoice{
			Invoice:     inv,
			DaysOverdue: int(now.Sub(inv.DueDate).Hours() / 24),
		})
	}
	return out, nil
}

// FinancialSummary aggregates a customer's invoicing and payment totals.
type FinancialSummary struct {
	TotalInvoiced float64
	TotalPaid     float64
	TotalOpen     float64
	TotalOverdue  float64

	InvoiceCount        int
	OpenInvoiceCount    int
	OverdueInvoiceCount int
	PaymentCount        int
}

// CustomerFinancialSummary walks every invoice and payment under the
// customer's sales orders and totals them.
func (r *Reader) CustomerFinancialSummary(ctx context.Context, customerID string) (*FinancialSummary, error) {
	orders, err := r.reference.OrdersForCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	summary := &FinancialSummary{}
	for _, order := range orders {
		invoices, err := r.reference.InvoicesForOrder(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		for _, inv := range invoices {
			summary.InvoiceCount++
			summary.TotalInvoiced += inv.Amount
			if inv.Status == types.InvoiceStatusOpen {
				summary.OpenInvoiceCount++
				summary.TotalOpen += inv.Amount
				if inv.DueDate.Before(now) {
					summary.OverdueInvoiceCount++
					summary.TotalOverdue += inv.Amount
				}
			}

			payments, err := r.reference.PaymentsForInvoice(ctx, inv.ID)
			if err != nil {
				return nil, err
			}
			for _, p := range payments {
				summary.PaymentCount++
				summary.TotalPaid += p.Amount
			}
		}
	}
	return summary, nil
}
