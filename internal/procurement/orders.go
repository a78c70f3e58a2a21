// Package procurement manages suppliers, purchase orders, goods received
// notes and supplier payments.
package procurement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dmitriyabr/duma-erp-sub003/internal/apperr"
	"github.com/dmitriyabr/duma-erp-sub003/internal/id"
	"github.com/dmitriyabr/duma-erp-sub003/internal/inventory"
	"github.com/dmitriyabr/duma-erp-sub003/internal/logging"
	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
	"github.com/dmitriyabr/duma-erp-sub003/internal/payouts"
	"github.com/dmitriyabr/duma-erp-sub003/internal/store"
)

// Service provides business logic for suppliers and purchase orders.
type Service struct {
	db    *store.DB
	stock *inventory.Service
	log   *zap.Logger
}

// NewService creates a procurement Service. Received goods enter stock through stock.
func NewService(db *store.DB, stock *inventory.Service, logger *zap.Logger) *Service {
	return &Service{db: db, stock: stock, log: logging.OrNop(logger)}
}

// POLineParams is one requested order line.
type POLineParams struct {
	ItemID      string          `json:"itemId"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unitCost"`
}

// POParams are the editable fields of a purchase order.
type POParams struct {
	SupplierID   string         `json:"supplierId"`
	OrderDate    model.Date     `json:"orderDate"`
	ExpectedDate model.Date     `json:"expectedDate"`
	Notes        string         `json:"notes"`
	Lines        []POLineParams `json:"lines"`
}

// POFilter narrows ListPOs.
type POFilter struct {
	Status     model.POStatus
	SupplierID string
	Q          string
	From, To   model.Date
	Page       store.Page
}

const selectPO = `SELECT id, number, supplier_id, order_date, expected_date, status, total, paid, notes, created_at, updated_at FROM purchase_orders`

func scanPO(r interface{ Scan(...any) error }) (model.PurchaseOrder, error) {
	var po model.PurchaseOrder
	err := r.Scan(&po.ID, &po.Number, &po.SupplierID, &po.OrderDate, &po.ExpectedDate, &po.Status, &po.Total, &po.Paid,
		&po.Notes, store.ScanTime(&po.CreatedAt), store.ScanTime(&po.UpdatedAt))
	return po, err
}

func scanPORows(r *sql.Rows) (model.PurchaseOrder, error) { return scanPO(r) }

func (s *Service) validatePO(ctx context.Context, p *POParams) error {
	p.Notes = strings.TrimSpace(p.Notes)

	var errs apperr.ValidationErrors
	if p.SupplierID == "" {
		errs.Add("supplierId", "required", "supplier is required")
	} else {
		sp, err := getSupplier(ctx, s.db, p.SupplierID)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			errs.Add("supplierId", "exists", "supplier %s does not exist", p.SupplierID)
		case err != nil:
			return err
		case !sp.Active:
			errs.Add("supplierId", "active", "supplier %s is inactive", sp.Name)
		}
	}
	if p.OrderDate.IsZero() {
		errs.Add("orderDate", "required", "order date is required")
	}
	if !p.ExpectedDate.IsZero() && p.ExpectedDate.Before(p.OrderDate) {
		errs.Add("expectedDate", "after_order", "expected date %s is before order date %s", p.ExpectedDate, p.OrderDate)
	}
	if len(p.Lines) == 0 {
		errs.Add("lines", "required", "a purchase order needs at least one line")
	}
	for i := range p.Lines {
		l := &p.Lines[i]
		field := fmt.Sprintf("lines[%d]", i)
		if !l.Quantity.IsPositive() {
			errs.Add(field+".quantity", "positive", "quantity must be greater than zero")
		}
		if l.UnitCost.IsNegative() {
			errs.Add(field+".unitCost", "non_negative", "unit cost must not be negative")
		}
		if !model.HasCents(l.UnitCost) {
			errs.Add(field+".unitCost", "precision", "unit cost %s has more than 2 decimal places", l.UnitCost)
		}
		it, err := s.stock.GetItem(ctx, l.ItemID)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			errs.Add(field+".itemId", "exists", "item %q does not exist", l.ItemID)
		case err != nil:
			return err
		default:
			if strings.TrimSpace(l.Description) == "" {
				l.Description = it.Name
			}
		}
		l.Description = strings.TrimSpace(l.Description)
	}
	return errs.Err()
}

func buildPOLines(p POParams) ([]model.POLine, decimal.Decimal) {
	total := decimal.Zero
	lines := make([]model.POLine, len(p.Lines))
	for i, l := range p.Lines {
		lines[i] = model.POLine{
			ID: id.New(), ItemID: l.ItemID, Description: l.Description,
			Quantity: l.Quantity, UnitCost: l.UnitCost, Received: decimal.Zero,
		}
		total = total.Add(l.Quantity.Mul(l.UnitCost).Round(2))
	}
	return lines, total
}

func insertPOLines(ctx context.Context, tx *sql.Tx, poID string, lines []model.POLine) error {
	for i, l := range lines {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO po_lines (id, po_id, line_no, item_id, description, quantity, unit_cost, received) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ID, poID, i+1, l.ItemID, l.Description, l.Quantity, l.UnitCost, l.Received)
		if err != nil {
			return fmt.Errorf("inserting PO line %d: %w", i+1, err)
		}
	}
	return nil
}

// CreatePO stores a draft purchase order numbered by its order month.
func (s *Service) CreatePO(ctx context.Context, p POParams) (model.PurchaseOrder, error) {
	if err := s.validatePO(ctx, &p); err != nil {
		return model.PurchaseOrder{}, err
	}
	lines, total := buildPOLines(p)
	poID := id.New()
	var number string
	err := s.db.WithDocTx(ctx, func(tx *sql.Tx) error {
		var err error
		number, err = store.NextDocNo(ctx, tx, "purchase_orders", id.PrefixPO, p.OrderDate.Time)
		if err != nil {
			return err
		}
		now := store.Now()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO purchase_orders (id, number, supplier_id, order_date, expected_date, status, total, paid, notes, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			poID, number, p.SupplierID, p.OrderDate, p.ExpectedDate, model.PODraft, total, decimal.Zero, p.Notes, now, now)
		if err != nil {
			return fmt.Errorf("inserting purchase order: %w", err)
		}
		return insertPOLines(ctx, tx, poID, lines)
	})
	if err != nil {
		return model.PurchaseOrder{}, err
	}
	s.log.Info("purchase order created", zap.String("number", number), zap.String("total", total.StringFixed(2)))
	return s.GetPO(ctx, poID)
}

// UpdatePO replaces the header and lines of a draft purchase order.
func (s *Service) UpdatePO(ctx context.Context, poID string, p POParams) (model.PurchaseOrder, error) {
	po, err := s.GetPO(ctx, poID)
	if err != nil {
		return model.PurchaseOrder{}, err
	}
	if po.Status != model.PODraft {
		return model.PurchaseOrder{}, apperr.InvalidState("purchase order", po.Number, string(po.Status), "update")
	}
	if err := s.validatePO(ctx, &p); err != nil {
		return model.PurchaseOrder{}, err
	}
	lines, total := buildPOLines(p)
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE purchase_orders SET supplier_id = ?, order_date = ?, expected_date = ?, total = ?, notes = ?, updated_at = ? WHERE id = ?`,
			p.SupplierID, p.OrderDate, p.ExpectedDate, total, p.Notes, store.Now(), poID)
		if err != nil {
			return fmt.Errorf("updating purchase order: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM po_lines WHERE po_id = ?`, poID); err != nil {
			return fmt.Errorf("deleting PO lines: %w", err)
		}
		return insertPOLines(ctx, tx, poID, lines)
	})
	if err != nil {
		return model.PurchaseOrder{}, err
	}
	return s.GetPO(ctx, poID)
}

// GetPO returns a purchase order with its lines.
func (s *Service) GetPO(ctx context.Context, poID string) (model.PurchaseOrder, error) {
	return getPO(ctx, s.db, poID)
}

func getPO(ctx context.Context, q store.Querier, poID string) (model.PurchaseOrder, error) {
	po, err := scanPO(q.QueryRowContext(ctx, selectPO+" WHERE id = ?", poID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.PurchaseOrder{}, apperr.NotFound("purchase order", poID)
	}
	if err != nil {
		return model.PurchaseOrder{}, fmt.Errorf("reading purchase order %s: %w", poID, err)
	}
	po.Lines, err = store.QueryAll(ctx, q, func(r *sql.Rows) (model.POLine, error) {
		var l model.POLine
		return l, r.Scan(&l.ID, &l.ItemID, &l.Description, &l.Quantity, &l.UnitCost, &l.Received)
	}, `SELECT id, item_id, description, quantity, unit_cost, received FROM po_lines WHERE po_id = ? ORDER BY line_no`, poID)
	if err != nil {
		return model.PurchaseOrder{}, fmt.Errorf("reading purchase order %s lines: %w", poID, err)
	}
	return po, nil
}

// ListPOs returns a page of purchase orders, newest first. Lines are not loaded.
func (s *Service) ListPOs(ctx context.Context, f POFilter) (store.Paged[model.PurchaseOrder], error) {
	var w store.Where
	if f.Status != "" {
		w.Add("status = ?", f.Status)
	}
	if f.SupplierID != "" {
		w.Add("supplier_id = ?", f.SupplierID)
	}
	w.Like(f.Q, "number", "notes")
	if !f.From.IsZero() {
		w.Add("order_date >= ?", f.From)
	}
	if !f.To.IsZero() {
		w.Add("order_date <= ?", f.To)
	}
	total, err := store.Count(ctx, s.db, "SELECT COUNT(*) FROM purchase_orders"+w.SQL(), w.Args()...)
	if err != nil {
		return store.Paged[model.PurchaseOrder]{}, fmt.Errorf("counting purchase orders: %w", err)
	}
	page := store.NewPage(f.Page.Limit, f.Page.Offset)
	pos, err := store.QueryAll(ctx, s.db, scanPORows,
		selectPO+w.SQL()+" ORDER BY order_date DESC, number DESC"+page.SQL(), append(w.Args(), page.Args()...)...)
	if err != nil {
		return store.Paged[model.PurchaseOrder]{}, fmt.Errorf("listing purchase orders: %w", err)
	}
	return store.NewPaged(pos, total, page), nil
}

// Submit sends a draft purchase order to the supplier.
func (s *Service) Submit(ctx context.Context, poID string) (model.PurchaseOrder, error) {
	return s.transition(ctx, poID, "submit", model.POSubmitted, func(po model.PurchaseOrder) bool {
		return po.Status == model.PODraft
	})
}

// Cancel withdraws a purchase order nothing has been received against.
func (s *Service) Cancel(ctx context.Context, poID string) (model.PurchaseOrder, error) {
	return s.transition(ctx, poID, "cancel", model.POCancelled, func(po model.PurchaseOrder) bool {
		return (po.Status == model.PODraft || po.Status == model.POSubmitted) && po.Paid.IsZero()
	})
}

func (s *Service) transition(ctx context.Context, poID, op string, to model.POStatus, allowed func(model.PurchaseOrder) bool) (model.PurchaseOrder, error) {
	var number string
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		po, err := getPO(ctx, tx, poID)
		if err != nil {
			return err
		}
		if !allowed(po) {
			return apperr.InvalidState("purchase order", po.Number, string(po.Status), op)
		}
		number = po.Number
		return setPOStatus(ctx, tx, poID, po.Status, to)
	})
	if err != nil {
		return model.PurchaseOrder{}, err
	}
	s.log.Info("purchase order "+op, zap.String("number", number))
	return s.GetPO(ctx, poID)
}

// setPOStatus moves a purchase order out of the from status. Zero rows
// updated means a concurrent request changed it first.
func setPOStatus(ctx context.Context, q store.Querier, poID string, from, to model.POStatus) error {
	res, err := q.ExecContext(ctx, `UPDATE purchase_orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, store.Now(), poID, from)
	if err != nil {
		return fmt.Errorf("setting purchase order %s status: %w", poID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: purchase order %s is no longer %s", apperr.ErrConflict, poID, from)
	}
	return nil
}

// SupplierPaymentParams describe a payment against a purchase order.
type SupplierPaymentParams struct {
	Amount    decimal.Decimal `json:"amount"`
	PaidOn    model.Date      `json:"paidOn"`
	Reference string          `json:"reference"`
}

// PaySupplier records a payout against a submitted or received purchase
// order. Cumulative payouts may not exceed the order total.
func (s *Service) PaySupplier(ctx context.Context, poID string, p SupplierPaymentParams) (model.Payout, error) {
	var out model.Payout
	err := s.db.WithDocTx(ctx, func(tx *sql.Tx) error {
		po, err := getPO(ctx, tx, poID)
		if err != nil {
			return err
		}
		if po.Status == model.PODraft || po.Status == model.POCancelled {
			return apperr.InvalidState("purchase order", po.Number, string(po.Status), "pay")
		}
		if remaining := po.Total.Sub(po.Paid); p.Amount.GreaterThan(remaining) {
			var errs apperr.ValidationErrors
			errs.Add("amount", "overpayment", "amount %s exceeds unpaid %s of %s",
				p.Amount.StringFixed(2), remaining.StringFixed(2), po.Number)
			return errs
		}
		sp, err := getSupplier(ctx, tx, po.SupplierID)
		if err != nil {
			return err
		}
		out, err = payouts.Insert(ctx, tx, payouts.Params{
			SourceType: model.PayoutPurchaseOrder,
			SourceID:   po.ID,
			Payee:      sp.Name,
			Amount:     p.Amount,
			PaidOn:     p.PaidOn,
			Reference:  p.Reference,
		})
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE purchase_orders SET paid = ?, updated_at = ? WHERE id = ?`,
			po.Paid.Add(p.Amount), store.Now(), po.ID)
		if err != nil {
			return fmt.Errorf("updating purchase order %s: %w", po.Number, err)
		}
		return nil
	})
	if err != nil {
		return model.Payout{}, err
	}
	s.log.Info("supplier paid", zap.String("payout", out.Number), zap.String("amount", out.Amount.StringFixed(2)))
	return out, nil
}
