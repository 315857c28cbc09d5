package domain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexorial/memlink/internal/storage/sqlite"
	"github.com/nexorial/memlink/pkg/types"
)

var testNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestReader(t *testing.T) *Reader {
	t.Helper()

	store, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	issued := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SeedReference(context.Background(), sqlite.ReferenceDataset{
		Customers: []*types.Customer{
			{ID: "cust-1", Name: "Gai Media", Industry: "publishing", CreatedAt: issued},
		},
		SalesOrders: []*types.SalesOrder{
			{ID: "so-1", CustomerID: "cust-1", Number: "SO-1001", Title: "Spring campaign", Status: types.OrderStatusApproved, CreatedAt: issued},
		},
		WorkOrders: []*types.WorkOrder{
			{ID: "wo-1", SalesOrderID: "so-1", Number: "WO-2001", Status: types.WorkOrderStatusQueued, Technician: "Pat"},
		},
		Invoices: []*types.Invoice{
			{ID: "inv-1", SalesOrderID: "so-1", Number: "INV-3001", Amount: 1200, DueDate: issued.Add(10 * 24 * time.Hour), Status: types.InvoiceStatusOpen, IssuedAt: issued},
		},
		Payments: []*types.Payment{
			{ID: "pay-1", InvoiceID: "inv-1", Amount: 500, Method: "wire", PaidAt: issued.Add(24 * time.Hour)},
		},
		Tasks: []*types.Task{
			{ID: "task-1", CustomerID: "cust-1", Title: "Renewal call", Status: types.TaskStatusTodo, CreatedAt: issued},
			{ID: "task-2", CustomerID: "cust-1", Title: "Archive notes", Status: types.TaskStatusDone, CreatedAt: issued},
		},
	}))

	reader := NewReader(store)
	reader.now = func() time.Time { return testNow }
	return reader
}

func TestCustomerRollup(t *testing.T) {
	reader := newTestReader(t)

	data, err := reader.CustomerRollup(context.Background(), "cust-1")
	require.NoError(t, err)

	assert.Equal(t, "Gai Media", data.Customer.Name)
	assert.Equal(t, 1, data.TotalOrders)
	assert.Equal(t, 1, data.OpenInvoiceCount)
	assert.Equal(t, 1200.0, data.TotalOpenAmount)
	assert.Equal(t, 1, data.OpenTaskCount, "done tasks are not open")
}

func TestSalesOrderRollup(t *testing.T) {
	reader := newTestReader(t)

	data, err := reader.SalesOrderRollup(context.Background(), "SO-1001")
	require.NoError(t, err)

	assert.Equal(t, "Spring campaign", data.Order.Title)
	assert.Equal(t, "Gai Media", data.Customer.Name)
	require.Len(t, data.WorkOrders, 1)
	require.Len(t, data.Invoices, 1)
	require.Len(t, data.Payments, 1)
	assert.Equal(t, 500.0, data.Payments[0].Amount)
}

func TestInvoiceRollupBalanceAndOverdue(t *testing.T) {
	reader := newTestReader(t)

	data, err := reader.InvoiceRollup(context.Background(), "INV-3001")
	require.NoError(t, err)

	assert.Equal(t, 500.0, data.TotalPaid)
	assert.Equal(t, 700.0, data.Balance)
	assert.True(t, data.Overdue, "open invoice past due date")
	assert.Equal(t, 4, data.DaysOverdue)
}

func TestOverdueInvoices(t *testing.T) {
	reader := newTestReader(t)

	overdue, err := reader.OverdueInvoices(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, "INV-3001", overdue[0].Invoice.Number)
	assert.Equal(t, 4, overdue[0].DaysOverdue)

	overdue, err = reader.OverdueInvoices(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, overdue, "only 4 days overdue")
}

func TestCustomerFinancialSummary(t *testing.T) {
	reader := newTestReader(t)

	summary, err := reader.CustomerFinancialSummary(context.Background(), "cust-1")
	require.NoError(t, err)

	assert.Equal(t, 1200.0, summary.TotalInvoiced)
	assert.Equal(t, 500.0, summary.TotalPaid)
	assert.Equal(t, 1200.0, summary.TotalOpen)
	assert.Equal(t, 1200.0, summary.TotalOverdue)
	assert.Equal(t, 1, summary.InvoiceCount)
	assert.Equal(t, 1, summary.OpenInvoiceCount)
	assert.Equal(t, 1, summary.OverdueInvoiceCount)
	assert.Equal(t, 1, summary.PaymentCount)
}

func TestFormatCustomerContext(t *testing.T) {
	reader := newTestReader(t)

	data, err := reader.CustomerRollup(context.Background(), "cust-1")
	require.NoError(t, err)

	text := FormatCustomerContext(data)
	assert.Contains(t, text, "=== Customer: Gai Media ===")
	assert.Contains(t, text, "• (Customer, industry, publishing)")
	assert.Contains(t, text, "• (Customer, total_orders, 1)")
	assert.Contains(t, text, "• (Customer, total_open_amount, $1200.00)")
	assert.Contains(t, text, "• (INV-3001, due_date, 2025-03-11)")
	assert.Contains(t, text, "• (SO-1001, status, approved)")
}

func TestFormatSalesOrderContext(t *testing.T) {
	reader := newTestReader(t)

	data, err := reader.SalesOrderRollup(context.Background(), "SO-1001")
	require.NoError(t, err)

	text := FormatSalesOrderContext(data)
	assert.Contains(t, text, "=== Sales Order: SO-1001 ===")
	assert.Contains(t, text, "• (SO-1001, issued_to, Gai Media)")
	assert.Contains(t, text, "• (WO-2001, belongs_to, SO-1001)")
	assert.Contains(t, text, "• (WO-2001, technician, Pat)")
	assert.Contains(t, text, "• (INV-3001, amount, $1200.00)")
}

func TestFormatInvoiceContext(t *testing.T) {
	reader := newTestReader(t)

	data, err := reader.InvoiceRollup(context.Background(), "INV-3001")
	require.NoError(t, err)

	text := FormatInvoiceContext(data)
	assert.Contains(t, text, "=== Invoice: INV-3001 ===")
	assert.Contains(t, text, "• (INV-3001, balance, $700.00)")
	assert.Contains(t, text, "• (INV-3001, days_overdue, 4)")
}
