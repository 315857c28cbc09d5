package sqlite

import (
	"context"
	"fmt"

	"github.com/nexorial/memlink/pkg/types"
)

// ReferenceDataset is a bundle of business records to load into the
// reference tables. Used by tests and the demo loader; the engine itself
// only ever reads these tables.
type ReferenceDataset struct {
	Customers   []*types.Customer
	SalesOrders []*types.SalesOrder
	WorkOrders  []*types.WorkOrder
	Invoices    []*types.Invoice
	Payments    []*types.Payment
	Tasks       []*types.Task
}

// SeedReference loads a reference dataset. Rows are inserted with
// OR REPLACE so re-seeding the same dataset is idempotent.
func (s *Store) SeedReference(ctx context.Context, data ReferenceDataset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin seed tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range data.Customers {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO customers (customer_id, name, industry, notes, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			c.ID, c.Name, nullableString(c.Industry), nullableString(c.Notes), c.CreatedAt); err != nil {
			return fmt.Errorf("sqlite: seed customer %s: %w", c.ID, err)
		}
	}
	for _, so := range data.SalesOrders {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO sales_orders (so_id, customer_id, so_number, title, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			so.ID, so.CustomerID, so.Number, so.Title, so.Status, so.CreatedAt); err != nil {
			return fmt.Errorf("sqlite: seed sales order %s: %w", so.ID, err)
		}
	}
	for _, wo := range data.WorkOrders {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO work_orders (wo_id, so_id, wo_number, description, status, technician, scheduled_for)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			wo.ID, wo.SalesOrderID, wo.Number, nullableString(wo.Description),
			wo.Status, nullableString(wo.Technician), nullableTime(wo.ScheduledFor)); err != nil {
			return fmt.Errorf("sqlite: seed work order %s: %w", wo.ID, err)
		}
	}
	for _, inv := range data.Invoices {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO invoices (invoice_id, so_id, invoice_number, amount, due_date, status, issued_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			inv.ID, inv.SalesOrderID, inv.Number, inv.Amount, inv.DueDate, inv.Status, inv.IssuedAt); err != nil {
			return fmt.Errorf("sqlite: seed invoice %s: %w", inv.ID, err)
		}
	}
	for _, p := range data.Payments {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO payments (payment_id, invoice_id, amount, method, paid_at)
			VALUES (?, ?, ?, ?, ?)`,
			p.ID, p.InvoiceID, p.Amount, nullableString(p.Method), p.PaidAt); err != nil {
			return fmt.Errorf("sqlite: seed payment %s: %w", p.ID, err)
		}
	}
	for _, t := range data.Tasks {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO tasks (task_id, customer_id, title, body, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			t.ID, nullableString(t.CustomerID), t.Title, nullableString(t.Body), t.Status, t.CreatedAt); err != nil {
			return fmt.Errorf("sqlite: seed task %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit seed: %w", err)
	}
	return nil
}
