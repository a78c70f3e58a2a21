// Package invoicing raises student invoices, moves them through their
// lifecycle and records the payments made against them.
package invoicing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dmitriyabr/duma-erp-sub003/internal/apperr"
	"github.com/dmitriyabr/duma-erp-sub003/internal/id"
	"github.com/dmitriyabr/duma-erp-sub003/internal/inventory"
	"github.com/dmitriyabr/duma-erp-sub003/internal/logging"
	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
	"github.com/dmitriyabr/duma-erp-sub003/internal/store"
)

// Service provides business logic for invoices and payments.
type Service struct {
	db    *store.DB
	stock *inventory.Service
	log   *zap.Logger
}

// NewService creates an invoicing Service. Item and kit lines move stock
// through stock.
func NewService(db *store.DB, stock *inventory.Service, logger *zap.Logger) *Service {
	return &Service{db: db, stock: stock, log: logging.OrNop(logger)}
}

// Filter narrows List.
type Filter struct {
	Status     model.InvoiceStatus
	StudentRef string
	Q          string
	From, To   model.Date
	Page       store.Page
}

const selectInvoice = `SELECT id, number, student_ref, bill_to, issue_date, due_date, status, total, paid, notes, created_at, updated_at FROM invoices`

func scanInvoice(r interface{ Scan(...any) error }) (model.Invoice, error) {
	var inv model.Invoice
	err := r.Scan(&inv.ID, &inv.Number, &inv.StudentRef, &inv.BillTo, &inv.IssueDate, &inv.DueDate, &inv.Status,
		&inv.Total, &inv.Paid, &inv.Notes, store.ScanTime(&inv.CreatedAt), store.ScanTime(&inv.UpdatedAt))
	inv.Balance = inv.Total.Sub(inv.Paid)
	return inv, err
}

func scanInvoiceRows(r *sql.Rows) (model.Invoice, error) { return scanInvoice(r) }

func buildLines(p Params) ([]model.InvoiceLine, decimal.Decimal) {
	total := decimal.Zero
	lines := make([]model.InvoiceLine, len(p.Lines))
	for i, l := range p.Lines {
		amount := l.Quantity.Mul(l.UnitPrice).Round(2)
		lines[i] = model.InvoiceLine{
			ID:          id.New(),
			Description: l.Description,
			AccountID:   l.AccountID,
			ItemID:      l.ItemID,
			KitID:       l.KitID,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Amount:      amount,
		}
		total = total.Add(amount)
	}
	return lines, total
}

func insertLines(ctx context.Context, tx *sql.Tx, invoiceID string, lines []model.InvoiceLine) error {
	for i, l := range lines {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO invoice_lines (id, invoice_id, line_no, description, account_id, item_id, kit_id, quantity, unit_price, amount)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ID, invoiceID, i+1, l.Description, l.AccountID, l.ItemID, l.KitID, l.Quantity, l.UnitPrice, l.Amount)
		if err != nil {
			return fmt.Errorf("inserting invoice line %d: %w", i+1, err)
		}
	}
	return nil
}

// Create validates p and stores a draft invoice with the next INV number of
// its issue month.
func (s *Service) Create(ctx context.Context, p Params) (model.Invoice, error) {
	p.normalize()
	if err := validate(ctx, s.db, p); err != nil {
		return model.Invoice{}, err
	}

	lines, total := buildLines(p)
	invID := id.New()
	var number string
	err := s.db.WithDocTx(ctx, func(tx *sql.Tx) error {
		var err error
		number, err = store.NextDocNo(ctx, tx, "invoices", id.PrefixInvoice, p.IssueDate.Time)
		if err != nil {
			return err
		}
		now := store.Now()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO invoices (id, number, student_ref, bill_to, issue_date, due_date, status, total, paid, notes, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			invID, number, p.StudentRef, p.BillTo, p.IssueDate, p.DueDate, model.InvoiceDraft, total, decimal.Zero, p.Notes, now, now)
		if err != nil {
			return fmt.Errorf("inserting invoice: %w", err)
		}
		return insertLines(ctx, tx, invID, lines)
	})
	if err != nil {
		return model.Invoice{}, err
	}
	s.log.Info("invoice created", zap.String("number", number), zap.String("total", total.StringFixed(2)))
	return s.Get(ctx, invID)
}

// Update replaces the header and lines of a draft invoice.
func (s *Service) Update(ctx context.Context, invoiceID string, p Params) (model.Invoice, error) {
	p.normalize()
	inv, err := s.Get(ctx, invoiceID)
	if err != nil {
		return model.Invoice{}, err
	}
	if inv.Status != model.InvoiceDraft {
		return model.Invoice{}, apperr.InvalidState("invoice", inv.Number, string(inv.Status), "update")
	}
	if err := validate(ctx, s.db, p); err != nil {
		return model.Invoice{}, err
	}

	lines, total := buildLines(p)
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE invoices SET student_ref = ?, bill_to = ?, issue_date = ?, due_date = ?, total = ?, notes = ?, updated_at = ?
			 WHERE id = ? AND status = ?`,
			p.StudentRef, p.BillTo, p.IssueDate, p.DueDate, total, p.Notes, store.Now(), invoiceID, model.InvoiceDraft)
		if err != nil {
			return fmt.Errorf("updating invoice: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: invoice %s changed concurrently", apperr.ErrConflict, inv.Number)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM invoice_lines WHERE invoice_id = ?`, invoiceID); err != nil {
			return fmt.Errorf("deleting invoice lines: %w", err)
		}
		return insertLines(ctx, tx, invoiceID, lines)
	})
	if err != nil {
		return model.Invoice{}, err
	}
	return s.Get(ctx, invoiceID)
}

// Get returns an invoice with its lines.
func (s *Service) Get(ctx context.Context, invoiceID string) (model.Invoice, error) {
	return getInvoice(ctx, s.db, invoiceID)
}

func getInvoice(ctx context.Context, q store.Querier, invoiceID string) (model.Invoice, error) {
	inv, err := scanInvoice(q.QueryRowContext(ctx, selectInvoice+" WHERE id = ?", invoiceID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Invoice{}, apperr.NotFound("invoice", invoiceID)
	}
	if err != nil {
		return model.Invoice{}, fmt.Errorf("reading invoice %s: %w", invoiceID, err)
	}
	inv.Lines, err = store.QueryAll(ctx, q, func(r *sql.Rows) (model.InvoiceLine, error) {
		var l model.InvoiceLine
		return l, r.Scan(&l.ID, &l.Description, &l.AccountID, &l.ItemID, &l.KitID, &l.Quantity, &l.UnitPrice, &l.Amount)
	}, `SELECT id, description, account_id, item_id, kit_id, quantity, unit_price, amount
		FROM invoice_lines WHERE invoice_id = ? ORDER BY line_no`, invoiceID)
	if err != nil {
		return model.Invoice{}, fmt.Errorf("reading invoice %s lines: %w", invoiceID, err)
	}
	return inv, nil
}

// List returns a page of invoices, newest issue date first. Lines are not loaded.
func (s *Service) List(ctx context.Context, f Filter) (store.Paged[model.Invoice], error) {
	var w store.Where
	if f.Status != "" {
		w.Add("status = ?", f.Status)
	}
	if f.StudentRef != "" {
		w.Add("student_ref = ?", f.StudentRef)
	}
	w.Like(f.Q, "number", "bill_to", "student_ref")
	if !f.From.IsZero() {
		w.Add("issue_date >= ?", f.From)
	}
	if !f.To.IsZero() {
		w.Add("issue_date <= ?", f.To)
	}

	total, err := store.Count(ctx, s.db, "SELECT COUNT(*) FROM invoices"+w.SQL(), w.Args()...)
	if err != nil {
		return store.Paged[model.Invoice]{}, fmt.Errorf("counting invoices: %w", err)
	}
	page := store.NewPage(f.Page.Limit, f.Page.Offset)
	invs, err := store.QueryAll(ctx, s.db, scanInvoiceRows,
		selectInvoice+w.SQL()+" ORDER BY issue_date DESC, number DESC"+page.SQL(), append(w.Args(), page.Args()...)...)
	if err != nil {
		return store.Paged[model.Invoice]{}, fmt.Errorf("listing invoices: %w", err)
	}
	return store.NewPaged(invs, total, page), nil
}

// Issue moves a draft to issued and takes item and kit lines out of stock.
func (s *Service) Issue(ctx context.Context, invoiceID string) (model.Invoice, error) {
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		inv, err := getInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status != model.InvoiceDraft {
			return apperr.InvalidState("invoice", inv.Number, string(inv.Status), "issue")
		}
		for _, l := range inv.Lines {
			switch {
			case l.ItemID != "":
				if _, err := s.stock.StockOut(ctx, tx, l.ItemID, l.Quantity, model.RefInvoice, inv.ID, inv.Number); err != nil {
					return fmt.Errorf("issuing %s: %w", l.Description, err)
				}
			case l.KitID != "":
				if _, err := s.stock.IssueKit(ctx, tx, l.KitID, l.Quantity, model.RefInvoice, inv.ID); err != nil {
					return fmt.Errorf("issuing %s: %w", l.Description, err)
				}
			}
		}
		return setStatus(ctx, tx, inv.ID, model.InvoiceDraft, model.InvoiceIssued)
	})
	if err != nil {
		return model.Invoice{}, err
	}
	s.log.Info("invoice issued", zap.String("id", invoiceID))
	return s.Get(ctx, invoiceID)
}

// Void cancels a draft or an issued invoice without payments. Stock issued
// for it is returned.
func (s *Service) Void(ctx context.Context, invoiceID string) (model.Invoice, error) {
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		inv, err := getInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		switch {
		case inv.Status == model.InvoiceDraft:
		case inv.Status == model.InvoiceIssued && inv.Paid.IsZero():
			if _, err := s.stock.Reverse(ctx, tx, model.RefInvoice, inv.ID, model.RefVoid); err != nil {
				return fmt.Errorf("restocking %s: %w", inv.Number, err)
			}
		default:
			return apperr.InvalidState("invoice", inv.Number, string(inv.Status), "void")
		}
		return setStatus(ctx, tx, inv.ID, inv.Status, model.InvoiceVoid)
	})
	if err != nil {
		return model.Invoice{}, err
	}
	s.log.Info("invoice voided", zap.String("id", invoiceID))
	return s.Get(ctx, invoiceID)
}

// Reinstate returns a void invoice to draft so it can be corrected and issued again.
func (s *Service) Reinstate(ctx context.Context, invoiceID string) (model.Invoice, error) {
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		inv, err := getInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status != model.InvoiceVoid {
			return apperr.InvalidState("invoice", inv.Number, string(inv.Status), "reinstate")
		}
		return setStatus(ctx, tx, inv.ID, model.InvoiceVoid, model.InvoiceDraft)
	})
	if err != nil {
		return model.Invoice{}, err
	}
	return s.Get(ctx, invoiceID)
}

// setStatus moves an invoice from one status to another. A row no longer in
// the from status means another request got there first.
func setStatus(ctx context.Context, q store.Querier, invoiceID string, from, to model.InvoiceStatus) error {
	res, err := q.ExecContext(ctx, `UPDATE invoices SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, store.Now(), invoiceID, from)
	if err != nil {
		return fmt.Errorf("setting invoice %s status: %w", invoiceID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: invoice %s is no longer %s", apperr.ErrConflict, invoiceID, from)
	}
	return nil
}
