package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dmitriyabr/duma-erp-sub003/internal/apperr"
	"github.com/dmitriyabr/duma-erp-sub003/internal/id"
	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
	"github.com/dmitriyabr/duma-erp-sub003/internal/store"
)

// ErrInsufficientStock is returned when an issue would drive on-hand negative.
var ErrInsufficientStock = errors.New("insufficient stock")

// MovementFilter narrows ListMovements.
type MovementFilter struct {
	ItemID  string
	RefType model.MovementRef
	RefID   string
	Page    store.Page
}

// StockIn receives qty of an item at unitCost and re-averages the item cost:
// (onHand*cost + qty*unitCost) / (onHand+qty).
func (s *Service) StockIn(ctx context.Context, q store.Querier, itemID string, qty, unitCost decimal.Decimal, ref model.MovementRef, refID, note string) (model.StockMovement, error) {
	if !qty.IsPositive() {
		return model.StockMovement{}, fmt.Errorf("%w: stock in quantity must be positive", apperr.ErrInvalid)
	}
	it, err := getItem(ctx, q, itemID)
	if err != nil {
		return model.StockMovement{}, err
	}

	newQty := it.QtyOnHand.Add(qty)
	newCost := unitCost
	if it.QtyOnHand.IsPositive() {
		newCost = it.QtyOnHand.Mul(it.UnitCost).Add(qty.Mul(unitCost)).Div(newQty)
	}
	newCost = newCost.Round(2)

	if err := setStock(ctx, q, itemID, newQty, newCost); err != nil {
		return model.StockMovement{}, err
	}
	return s.record(ctx, q, model.StockMovement{
		ItemID: itemID, Type: model.MovementIn, Quantity: qty, UnitCost: unitCost,
		RefType: ref, RefID: refID, Note: note,
	})
}

// StockOut issues qty of an item at its current cost.
func (s *Service) StockOut(ctx context.Context, q store.Querier, itemID string, qty decimal.Decimal, ref model.MovementRef, refID, note string) (model.StockMovement, error) {
	if !qty.IsPositive() {
		return model.StockMovement{}, fmt.Errorf("%w: stock out quantity must be positive", apperr.ErrInvalid)
	}
	it, err := getItem(ctx, q, itemID)
	if err != nil {
		return model.StockMovement{}, err
	}
	if !it.Active {
		return model.StockMovement{}, apperr.InvalidState("item", it.SKU, "inactive", "issue")
	}
	if it.QtyOnHand.LessThan(qty) {
		return model.StockMovement{}, fmt.Errorf("%w: %w: %s has %s, need %s",
			apperr.ErrInvalidState, ErrInsufficientStock, it.SKU, it.QtyOnHand, qty)
	}

	if err := setStock(ctx, q, itemID, it.QtyOnHand.Sub(qty), it.UnitCost); err != nil {
		return model.StockMovement{}, err
	}
	return s.record(ctx, q, model.StockMovement{
		ItemID: itemID, Type: model.MovementOut, Quantity: qty.Neg(), UnitCost: it.UnitCost,
		RefType: ref, RefID: refID, Note: note,
	})
}

// Adjust corrects on-hand by a signed delta, e.g. after a stock count.
func (s *Service) Adjust(ctx context.Context, itemID string, delta decimal.Decimal, note string) (model.StockMovement, error) {
	var errs apperr.ValidationErrors
	if delta.IsZero() {
		errs.Add("delta", "non_zero", "adjustment must not be zero")
	}
	if note == "" {
		errs.Add("note", "required", "a reason is required for stock adjustments")
	}
	if err := errs.Err(); err != nil {
		return model.StockMovement{}, err
	}

	var mv model.StockMovement
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		it, err := getItem(ctx, tx, itemID)
		if err != nil {
			return err
		}
		newQty := it.QtyOnHand.Add(delta)
		if newQty.IsNegative() {
			return fmt.Errorf("%w: %w: %s has %s, adjustment %s",
				apperr.ErrInvalidState, ErrInsufficientStock, it.SKU, it.QtyOnHand, delta)
		}
		if err := setStock(ctx, tx, itemID, newQty, it.UnitCost); err != nil {
			return err
		}
		mv, err = s.record(ctx, tx, model.StockMovement{
			ItemID: itemID, Type: model.MovementAdjust, Quantity: delta, UnitCost: it.UnitCost,
			RefType: model.RefAdjustment, Note: note,
		})
		return err
	})
	if err != nil {
		return model.StockMovement{}, err
	}
	s.log.Info("stock adjusted", zap.String("item", itemID), zap.String("delta", delta.String()))
	return mv, nil
}

// IssueKit issues qty kits, expanding each component to its resolved item.
func (s *Service) IssueKit(ctx context.Context, q store.Querier, kitID string, qty decimal.Decimal, ref model.MovementRef, refID string) ([]model.StockMovement, error) {
	k, err := getKit(ctx, q, kitID)
	if err != nil {
		return nil, err
	}
	if !k.Active {
		return nil, apperr.InvalidState("kit", k.Code, "inactive", "issue")
	}

	var out []model.StockMovement
	for i, c := range k.Components {
		it, ok, err := resolveComponent(ctx, q, c)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: kit %s component %d: variant group has no default item",
				apperr.ErrInvalidState, k.Code, i)
		}
		mv, err := s.StockOut(ctx, q, it.ID, c.Quantity.Mul(qty), ref, refID, "kit "+k.Code)
		if err != nil {
			return nil, err
		}
		out = append(out, mv)
	}
	return out, nil
}

// Reverse puts back the outbound movements recorded for ref/refID that no
// earlier newRef movement has already put back, at the cost they left with.
// Calling it again after a re-issue only restocks the new issue.
func (s *Service) Reverse(ctx context.Context, q store.Querier, ref model.MovementRef, refID string, newRef model.MovementRef) ([]model.StockMovement, error) {
	moves, err := store.QueryAll(ctx, q, scanMovement,
		selectMovement+" WHERE ref_type = ? AND ref_id = ? AND type = ? ORDER BY created_at, id", ref, refID, model.MovementOut)
	if err != nil {
		return nil, fmt.Errorf("reading movements of %s %s: %w", ref, refID, err)
	}
	prior, err := store.QueryAll(ctx, q, scanMovement,
		selectMovement+" WHERE ref_type = ? AND ref_id = ? AND type = ?", newRef, refID, model.MovementIn)
	if err != nil {
		return nil, fmt.Errorf("reading reversals of %s %s: %w", ref, refID, err)
	}
	returned := make(map[string]decimal.Decimal)
	for _, m := range prior {
		returned[m.ItemID] = returned[m.ItemID].Add(m.Quantity.Abs())
	}

	var out []model.StockMovement
	for _, m := range moves {
		qty := m.Quantity.Abs()
		done := returned[m.ItemID]
		if done.GreaterThanOrEqual(qty) {
			returned[m.ItemID] = done.Sub(qty)
			continue
		}
		returned[m.ItemID] = decimal.Zero
		qty = qty.Sub(done)
		mv, err := s.StockIn(ctx, q, m.ItemID, qty, m.UnitCost, newRef, refID, "reversal of "+string(ref))
		if err != nil {
			return nil, err
		}
		out = append(out, mv)
	}
	return out, nil
}

// ListMovements returns a page of movements, newest first.
func (s *Service) ListMovements(ctx context.Context, f MovementFilter) (store.Paged[model.StockMovement], error) {
	var w store.Where
	if f.ItemID != "" {
		w.Add("item_id = ?", f.ItemID)
	}
	if f.RefType != "" {
		w.Add("ref_type = ?", f.RefType)
	}
	if f.RefID != "" {
		w.Add("ref_id = ?", f.RefID)
	}

	total, err := store.Count(ctx, s.db, "SELECT COUNT(*) FROM stock_movements"+w.SQL(), w.Args()...)
	if err != nil {
		return store.Paged[model.StockMovement]{}, fmt.Errorf("counting movements: %w", err)
	}
	page := store.NewPage(f.Page.Limit, f.Page.Offset)
	moves, err := store.QueryAll(ctx, s.db, scanMovement,
		selectMovement+w.SQL()+" ORDER BY created_at DESC, id DESC"+page.SQL(), append(w.Args(), page.Args()...)...)
	if err != nil {
		return store.Paged[model.StockMovement]{}, fmt.Errorf("listing movements: %w", err)
	}
	return store.NewPaged(moves, total, page), nil
}

const selectMovement = `SELECT id, item_id, type, quantity, unit_cost, ref_type, ref_id, note, created_at FROM stock_movements`

func scanMovement(r *sql.Rows) (model.StockMovement, error) {
	var m model.StockMovement
	err := r.Scan(&m.ID, &m.ItemID, &m.Type, &m.Quantity, &m.UnitCost, &m.RefType, &m.RefID, &m.Note, store.ScanTime(&m.CreatedAt))
	return m, err
}

func setStock(ctx context.Context, q store.Querier, itemID string, qty, cost decimal.Decimal) error {
	_, err := q.ExecContext(ctx, `UPDATE items SET qty_on_hand = ?, unit_cost = ?, updated_at = ? WHERE id = ?`,
		qty, cost, store.Now(), itemID)
	if err != nil {
		return fmt.Errorf("updating stock of %s: %w", itemID, err)
	}
	return nil
}

func (s *Service) record(ctx context.Context, q store.Querier, m model.StockMovement) (model.StockMovement, error) {
	m.ID = id.New()
	m.CreatedAt = time.Now().UTC()
	_, err := q.ExecContext(ctx,
		`INSERT INTO stock_movements (id, item_id, type, quantity, unit_cost, ref_type, ref_id, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ItemID, m.Type, m.Quantity, m.UnitCost, m.RefType, m.RefID, m.Note, store.FormatTime(m.CreatedAt))
	if err != nil {
		return model.StockMovement{}, fmt.Errorf("recording stock movement: %w", err)
	}
	return m, nil
}
