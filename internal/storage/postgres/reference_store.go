package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nexorial/memlink/internal/storage"
	"github.com/nexorial/memlink/pkg/types"
)

func (s *Store) LookupSalesOrder(ctx context.Context, number string) (*types.SalesOrder, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT so_id, customer_id, so_number, title, status, created_at
		FROM sales_orders WHERE so_number = $1`, number)

	so := &types.SalesOrder{}
	err := row.Scan(&so.ID, &so.CustomerID, &so.Number, &so.Title, &so.Status, &so.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: lookup sales order: %w", err)
	}
	return so, nil
}

func (s *Store) LookupInvoice(ctx context.Context, number string) (*types.Invoice, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT invoice_id, so_id, invoice_number, amount, due_date, status, issued_at
		FROM invoices WHERE invoice_number = $1`, number)
	return scanInvoice(row)
}

func (s *Store) LookupWorkOrder(ctx context.Context, number string) (*types.WorkOrder, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT wo_id, so_id, wo_number, description, status, technician, scheduled_for
		FROM work_orders WHERE wo_number = $1`, number)
	return scanWorkOrder(row)
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*types.Customer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT customer_id, name, industry, notes, created_at
		FROM customers WHERE customer_id = $1`, id)
	return scanCustomer(row)
}

func (s *Store) Customers(ctx context.Context) ([]*types.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT customer_id, name, industry, notes, created_at
		FROM customers ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list customers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var customers []*types.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// SearchCustomers ranks customer names by pg_trgm similarity in the
// database, backed by the gin trigram index on customers.name.
func (s *Store) SearchCustomers(ctx context.Context, query string, floor float64, limit int) ([]storage.CustomerMatch, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", storage.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT customer_id, name, similarity(name, $1) AS sim
		FROM customers
		WHERE similarity(name, $1) >= $2
		ORDER BY sim DESC, name ASC
		LIMIT $3`, query, floor, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: search customers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []storage.CustomerMatch
	for rows.Next() {
		var m storage.CustomerMatch
		if err := rows.Scan(&m.CustomerID, &m.Name, &m.Similarity); err != nil {
			return nil, fmt.Errorf("postgres: scan customer match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (s *Store) SalesOrderCustomerLinks(ctx context.Context) ([]storage.SchemaLink, error) {
	return s.queryLinks(ctx, `
		SELECT so.so_id, so.so_number, c.customer_id, c.name
		FROM sales_orders so
		JOIN customers c ON c.customer_id = so.customer_id
		ORDER BY so.so_number`,
		types.TableSalesOrders, types.TableCustomers)
}

func (s *Store) InvoiceOrderLinks(ctx context.Context) ([]storage.SchemaLink, error) {
	return s.queryLinks(ctx, `
		SELECT i.invoice_id, i.invoice_number, so.so_id, so.so_number
		FROM invoices i
		JOIN sales_orders so ON so.so_id = i.so_id
		ORDER BY i.invoice_number`,
		types.TableInvoices, types.TableSalesOrders)
}

func (s *Store) WorkOrderOrderLinks(ctx context.Context) ([]storage.SchemaLink, error) {
	return s.queryLinks(ctx, `
		SELECT wo.wo_id, wo.wo_number, so.so_id, so.so_number
		FROM work_orders wo
		JOIN sales_orders so ON so.so_id = wo.so_id
		ORDER BY wo.wo_number`,
		types.TableWorkOrders, types.TableSalesOrders)
}

func (s *Store) PaymentInvoiceLinks(ctx context.Context) ([]storage.SchemaLink, error) {
	return s.queryLinks(ctx, `
		SELECT p.payment_id, p.payment_id, i.invoice_id, i.invoice_number
		FROM payments p
		JOIN invoices i ON i.invoice_id = p.invoice_id
		ORDER BY p.paid_at`,
		types.TablePayments, types.TableInvoices)
}

func (s *Store) queryLinks(ctx context.Context, query, subjectTable, objectTable string) ([]storage.SchemaLink, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: schema links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var links []storage.SchemaLink
	for rows.Next() {
		link := storage.SchemaLink{SubjectTable: subjectTable, ObjectTable: objectTable}
		if err := rows.Scan(&link.SubjectID, &link.SubjectLabel, &link.ObjectID, &link.ObjectLabel); err != nil {
			return nil, fmt.Errorf("postgres: scan schema link: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

func (s *Store) OrdersForCustomer(ctx context.Context, customerID string) ([]*types.SalesOrder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT so_id, customer_id, so_number, title, status, created_at
		FROM sales_orders WHERE customer_id = $1
		ORDER BY created_at DESC`, customerID)
	if err != nil {
		return nil, fmt.Errorf("postgres: orders for customer: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var orders []*types.SalesOrder
	for rows.Next() {
		so := &types.SalesOrder{}
		if err := rows.Scan(&so.ID, &so.CustomerID, &so.Number, &so.Title, &so.Status, &so.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan sales order: %w", err)
		}
		orders = append(orders, so)
	}
	return orders, rows.Err()
}

func (s *Store) OpenInvoicesForCustomer(ctx context.Context, customerID string) ([]*types.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.invoice_id, i.so_id, i.invoice_number, i.amount, i.due_date, i.status, i.issued_at
		FROM invoices i
		JOIN sales_orders so ON so.so_id = i.so_id
		WHERE so.customer_id = $1 AND i.status = $2
		ORDER BY i.due_date ASC`, customerID, types.InvoiceStatusOpen)
	if err != nil {
		return nil, fmt.Errorf("postgres: open invoices for customer: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectInvoices(rows)
}

func (s *Store) TasksForCustomer(ctx context.Context, customerID string, status string) ([]*types.Task, error) {
	query := `
		SELECT task_id, customer_id, title, body, status, created_at
		FROM tasks WHERE customer_id = $1`
	args := []any{customerID}
	if status != "" {
		args = append(args, status)
		query += ` AND status = $2`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: tasks for customer: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*types.Task
	for rows.Next() {
		t := &types.Task{}
		var customer, body sql.NullString
		if err := rows.Scan(&t.ID, &customer, &t.Title, &body, &t.Status, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan task: %w", err)
		}
		t.CustomerID = customer.String
		t.Body = body.String
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *Store) WorkOrdersForOrder(ctx context.Context, salesOrderID string) ([]*types.WorkOrder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT wo_id, so_id, wo_number, description, status, technician, scheduled_for
		FROM work_orders WHERE so_id = $1
		ORDER BY wo_number ASC`, salesOrderID)
	if err != nil {
		return nil, fmt.Errorf("postgres: work orders for order: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var orders []*types.WorkOrder
	for rows.Next() {
		wo, err := scanWorkOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, wo)
	}
	return orders, rows.Err()
}

func (s *Store) InvoicesForOrder(ctx context.Context, salesOrderID string) ([]*types.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT invoice_id, so_id, invoice_number, amount, due_date, status, issued_at
		FROM invoices WHERE so_id = $1
		ORDER BY issued_at ASC`, salesOrderID)
	if err != nil {
		return nil, fmt.Errorf("postgres: invoices for order: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectInvoices(rows)
}

func (s *Store) PaymentsForInvoice(ctx context.Context, invoiceID string) ([]*types.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payment_id, invoice_id, amount, method, paid_at
		FROM payments WHERE invoice_id = $1
		ORDER BY paid_at ASC`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("postgres: payments for invoice: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var payments []*types.Payment
	for rows.Next() {
		p := &types.Payment{}
		var method sql.NullString
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &method, &p.PaidAt); err != nil {
			return nil, fmt.Errorf("postgres: scan payment: %w", err)
		}
		p.Method = method.String
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (s *Store) OverdueInvoices(ctx context.Context, asOf time.Time) ([]*types.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT invoice_id, so_id, invoice_number, amount, due_date, status, issued_at
		FROM invoices WHERE status = $1 AND due_date < $2
		ORDER BY due_date ASC`, types.InvoiceStatusOpen, asOf)
	if err != nil {
		return nil, fmt.Errorf("postgres: overdue invoices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectInvoices(rows)
}

func collectInvoices(rows *sql.Rows) ([]*types.Invoice, error) {
	var invoices []*types.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func scanCustomer(row rowScanner) (*types.Customer, error) {
	c := &types.Customer{}
	var industry, notes sql.NullString
	err := row.Scan(&c.ID, &c.Name, &industry, &notes, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: scan customer: %w", err)
	}
	c.Industry = industry.String
	c.Notes = notes.String
	return c, nil
}

func scanInvoice(row rowScanner) (*types.Invoice, error) {
	inv := &types.Invoice{}
	err := row.Scan(&inv.ID, &inv.SalesOrderID, &inv.Number, &inv.Amount,
		&inv.DueDate, &inv.Status, &inv.IssuedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: scan invoice: %w", err)
	}
	return inv, nil
}

func scanWorkOrder(row rowScanner) (*types.WorkOrder, error) {
	wo := &types.WorkOrder{}
	var description, technician sql.NullString
	var scheduledFor sql.NullTime
	err := row.Scan(&wo.ID, &wo.SalesOrderID, &wo.Number, &description,
		&wo.Status, &technician, &scheduledFor)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: scan work order: %w", err)
	}
	wo.Description = description.String
	wo.Technician = technician.String
	if scheduledFor.Valid {
		t := scheduledFor.Time
		wo.ScheduledFor = &t
	}
	return wo, nil
}
