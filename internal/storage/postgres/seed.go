package postgres

import (
	"context"
	"database/sql"
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

// SeedReference loads a reference dataset. Rows are upserted on their
// primary keys so re-seeding the same dataset is idempotent.
func (s *Store) SeedReference(ctx context.Context, data ReferenceDataset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin seed tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range data.Customers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO customers (customer_id, name, industry, notes, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (customer_id) DO UPDATE SET
				name = EXCLUDED.name, industry = EXCLUDED.industry,
				notes = EXCLUDED.notes, created_at = EXCLUDED.created_at`,
			c.ID, c.Name, nullableString(c.Industry), nullableString(c.Notes), c.CreatedAt); err != nil {
			return fmt.Errorf("postgres: seed customer %s: %w", c.ID, err)
		}
	}
	for _, so := range data.SalesOrders {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sales_orders (so_id, customer_id, so_number, title, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (so_id) DO UPDATE SET
				customer_id = EXCLUDED.customer_id, so_number = EXCLUDED.so_number,
				title = EXCLUDED.title, status = EXCLUDED.status,
				created_at = EXCLUDED.created_at`,
			so.ID, so.CustomerID, so.Number, so.Title, so.Status, so.CreatedAt); err != nil {
			return fmt.Errorf("postgres: seed sales order %s: %w", so.ID, err)
		}
	}
	for _, wo := range data.WorkOrders {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO work_orders (wo_id, so_id, wo_number, description, status, technician, scheduled_for)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (wo_id) DO UPDATE SET
				so_id = EXCLUDED.so_id, wo_number = EXCLUDED.wo_number,
				description = EXCLUDED.description, status = EXCLUDED.status,
				technician = EXCLUDED.technician, scheduled_for = EXCLUDED.scheduled_for`,
			wo.ID, wo.SalesOrderID, wo.Number, nullableString(wo.Description),
			wo.Status, nullableString(wo.Technician), nullableTime(wo.ScheduledFor)); err != nil {
			return fmt.Errorf("postgres: seed work order %s: %w", wo.ID, err)
		}
	}
	for _, inv := range data.Invoices {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO invoices (invoice_id, so_id, invoice_number, amount, due_date, status, issued_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (invoice_id) DO UPDATE SET
				so_id = EXCLUDED.so_id, invoice_number = EXCLUDED.invoice_number,
				amount = EXCLUDED.amount, due_date = EXCLUDED.due_date,
				status = EXCLUDED.status, issued_at = EXCLUDED.issued_at`,
			inv.ID, inv.SalesOrderID, inv.Number, inv.Amount, inv.DueDate, inv.Status, inv.IssuedAt); err != nil {
			return fmt.Errorf("postgres: seed invoice %s: %w", inv.ID, err)
		}
	}
	for _, p := range data.Payments {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO payments (payment_id, invoice_id, amount, method, paid_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (payment_id) DO UPDATE SET
				invoice_id = EXCLUDED.invoice_id, amount = EXCLUDED.amount,
				method = EXCLUDED.method, paid_at = EXCLUDED.paid_at`,
			p.ID, p.InvoiceID, p.Amount, nullableString(p.Method), p.PaidAt); err != nil {
			return fmt.Errorf("postgres: seed payment %s: %w", p.ID, err)
		}
	}
	for _, t := range data.Tasks {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (task_id, customer_id, title, body, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (task_id) DO UPDATE SET
				customer_id = EXCLUDED.customer_id, title = EXCLUDED.title,
				body = EXCLUDED.body, status = EXCLUDED.status,
				created_at = EXCLUDED.created_at`,
			t.ID, nullableString(t.CustomerID), t.Title, nullableString(t.Body), t.Status, t.CreatedAt); err != nil {
			return fmt.Errorf("postgres: seed task %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit seed: %w", err)
	}
	return nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
