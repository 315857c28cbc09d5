package domain

import (
	"fmt"
	"strings"
)

// Context formatting renders the read model as triple-style bullets,
// one fact per line, so the agent's prompt stays scannable and dense:
//
//	=== Customer: Gai Media ===
//	• (Customer, industry, publishing)
//	• (INV-3001, amount, $1200.00)

// FormatCustomerContext renders a customer rollup.
func FormatCustomerContext(data *CustomerData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Customer: %s ===\n", data.Customer.Name)

	industry := data.Customer.Industry
	if industry == "" {
		industry = "Unknown"
	}
	fmt.Fprintf(&b, "• (Customer, industry, %s)\n", industry)
	fmt.Fprintf(&b, "• (Customer, total_orders, %d)\n", data.TotalOrders)
	fmt.Fprintf(&b, "• (Customer, open_invoices, %d)\n", data.OpenInvoiceCount)
	fmt.Fprintf(&b, "• (Customer, total_open_amount, $%.2f)\n", data.TotalOpenAmount)
	fmt.Fprintf(&b, "• (Customer, open_tasks, %d)\n", data.OpenTaskCount)

	if len(data.OpenInvoices) > 0 {
		b.WriteString("\nOpen Invoices:\n")
		for _, inv := range data.OpenInvoices {
			fmt.Fprintf(&b, "• (%s, amount, $%.2f)\n", inv.Number, inv.Amount)
			fmt.Fprintf(&b, "• (%s, due_date, %s)\n", inv.Number, inv.DueDate.Format("2006-01-02"))
		}
	}
	if len(data.Orders) > 0 {
		b.WriteString("\nSales Orders:\n")
		for _, so := range data.Orders {
			fmt.Fprintf(&b, "• (%s, title, %s)\n", so.Number, so.Title)
			fmt.Fprintf(&b, "• (%s, status, %s)\n", so.Number, so.Status)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatSalesOrderContext renders a sales order rollup.
func FormatSalesOrderContext(data *SalesOrderData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Sales Order: %s ===\n", data.Order.Number)
	fmt.Fprintf(&b, "• (%s, title, %s)\n", data.Order.Number, data.Order.Title)
	fmt.Fprintf(&b, "• (%s, status, %s)\n", data.Order.Number, data.Order.Status)
	fmt.Fprintf(&b, "• (%s, issued_to, %s)\n", data.Order.Number, data.Customer.Name)

	if len(data.WorkOrders) > 0 {
		b.WriteString("\nWork Orders:\n")
		for _, wo := range data.WorkOrders {
			fmt.Fprintf(&b, "• (%s, belongs_to, %s)\n", wo.Number, data.Order.Number)
			fmt.Fprintf(&b, "• (%s, status, %s)\n", wo.Number, wo.Status)
			if wo.Technician != "" {
				fmt.Fprintf(&b, "• (%s, technician, %s)\n", wo.Number, wo.Technician)
			}
		}
	}
	if len(data.Invoices) > 0 {
		b.WriteString("\nInvoices:\n")
		for _, inv := range data.Invoices {
			fmt.Fprintf(&b, "• (%s, belongs_to, %s)\n", inv.Number, data.Order.Number)
			fmt.Fprintf(&b, "• (%s, amount, $%.2f)\n", inv.Number, inv.Amount)
			fmt.Fprintf(&b, "• (%s, status, %s)\n", inv.Number, inv.Status)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatInvoiceContext renders an invoice rollup.
func FormatInvoiceContext(data *InvoiceData) string {
	var b strings.Builder
	number := data.Invoice.Number
	fmt.Fprintf(&b, "=== Invoice: %s ===\n", number)
	fmt.Fprintf(&b, "• (%s, amount, $%.2f)\n", number, data.Invoice.Amount)
	fmt.Fprintf(&b, "• (%s, total_paid, $%.2f)\n", number, data.TotalPaid)
	fmt.Fprintf(&b, "• (%s, balance, $%.2f)\n", number, data.Balance)
	fmt.Fprintf(&b, "• (%s, status, %s)\n", number, data.Invoice.Status)
	fmt.Fprintf(&b, "• (%s, due_date, %s)\n", number, data.Invoice.DueDate.Format("2006-01-02"))
	if data.Overdue {
		fmt.Fprintf(&b, "• (%s, days_overdue, %d)\n", number, data.DaysOverdue)
	}
	return strings.TrimRight(b.String(), "\n")
}
