package types

import "time"

// Reference store table names, as recorded in ExternalRef.Table.
const (
	TableCustomers   = "domain.customers"
	TableSalesOrders = "domain.sales_orders"
	TableWorkOrders  = "domain.work_orders"
	TableInvoices    = "domain.invoices"
	TablePayments    = "domain.payments"
	TableTasks       = "domain.tasks"
)

// Sales order status values.
const (
	OrderStatusDraft         = "draft"
	OrderStatusApproved      = "approved"
	OrderStatusInFulfillment = "in_fulfillment"
	OrderStatusFulfilled     = "fulfilled"
	OrderStatusCancelled     = "cancelled"
)

// Invoice status values.
const (
	InvoiceStatusOpen = "open"
	InvoiceStatusPaid = "paid"
	InvoiceStatusVoid = "void"
)

// Work order status values.
const (
	WorkOrderStatusQueued     = "queued"
	WorkOrderStatusInProgress = "in_progress"
	WorkOrderStatusBlocked    = "blocked"
	WorkOrderStatusDone       = "done"
)

// Task status values.
const (
	TaskStatusTodo  = "todo"
	TaskStatusDoing = "doing"
	TaskStatusDone  = "done"
)

// Customer is a business customer record. The reference dataset is
// read-only from the memory engine's perspective: it is queried and linked
// to, never mutated.
type Customer struct {
	ID        string    `json:"customer_id"`
	Name      string    `json:"name"`
	Industry  string    `json:"industry,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SalesOrder is a sales order record, identified externally by Number
// (format "SO-1001").
type SalesOrder struct {
	ID         string    `json:"so_id"`
	CustomerID string    `json:"customer_id"`
	Number     string    `json:"so_number"`
	Title      string    `json:"title"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// WorkOrder is a work order record attached to a sales order, identified
// externally by Number (format "WO-2001").
type WorkOrder struct {
	ID           string     `json:"wo_id"`
	SalesOrderID string     `json:"so_id"`
	Number       string     `json:"wo_number"`
	Description  string     `json:"description,omitempty"`
	Status       string     `json:"status"`
	Technician   string     `json:"technician,omitempty"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
}

// Invoice is an invoice record attached to a sales order, identified
// externally by Number (format "INV-3001").
type Invoice struct {
	ID           string    `json:"invoice_id"`
	SalesOrderID string    `json:"so_id"`
	Number       string    `json:"invoice_number"`
	Amount       float64   `json:"amount"`
	DueDate      time.Time `json:"due_date"`
	Status       string    `json:"status"`
	IssuedAt     time.Time `json:"issued_at"`
}

// Payment is a payment record against an invoice.
type Payment struct {
	ID        string    `json:"payment_id"`
	InvoiceID string    `json:"invoice_id"`
	Amount    float64   `json:"amount"`
	Method    string    `json:"method,omitempty"`
	PaidAt    time.Time `json:"paid_at"`
}

// Task is a free-standing task record, optionally attached to a customer.
type Task struct {
	ID         string    `json:"task_id"`
	CustomerID string    `json:"customer_id,omitempty"`
	Title      string    `json:"title"`
	Body       string    `json:"body,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}
