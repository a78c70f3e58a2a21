package procurement

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dmitriyabr/duma-erp-sub003/internal/apperr"
	"github.com/dmitriyabr/duma-erp-sub003/internal/id"
	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
	"github.com/dmitriyabr/duma-erp-sub003/internal/store"
)

// ReceiveLine is the quantity received for one PO line.
type ReceiveLine struct {
	POLineID string          `json:"poLineId"`
	Quantity decimal.Decimal `json:"quantity"`
}

// ReceiveParams describe a goods received note.
type ReceiveParams struct {
	ReceivedOn model.Date    `json:"receivedOn"`
	Notes      string        `json:"notes"`
	Lines      []ReceiveLine `json:"lines"`
}

// ReceiptFilter narrows ListReceipts.
type ReceiptFilter struct {
	POID string
	Page store.Page
}

// Receive records a GRN against a submitted or partially received order,
// brings the goods into stock at the ordered unit cost and recomputes the
// order status.
func (s *Service) Receive(ctx context.Context, poID string, p ReceiveParams) (model.GoodsReceipt, error) {
	var grn model.GoodsReceipt
	err := s.db.WithDocTx(ctx, func(tx *sql.Tx) error {
		po, err := getPO(ctx, tx, poID)
		if err != nil {
			return err
		}
		if po.Status != model.POSubmitted && po.Status != model.POPartiallyReceived {
			return apperr.InvalidState("purchase order", po.Number, string(po.Status), "receive against")
		}
		if err := validateReceipt(po, p); err != nil {
			return err
		}

		number, err := store.NextDocNo(ctx, tx, "goods_receipts", id.PrefixReceipt, p.ReceivedOn.Time)
		if err != nil {
			return err
		}
		grn = model.GoodsReceipt{
			ID: id.New(), Number: number, POID: po.ID, ReceivedOn: p.ReceivedOn,
			Notes: strings.TrimSpace(p.Notes), CreatedAt: time.Now().UTC(),
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO goods_receipts (id, number, po_id, received_on, notes, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			grn.ID, grn.Number, grn.POID, grn.ReceivedOn, grn.Notes, store.FormatTime(grn.CreatedAt))
		if err != nil {
			return fmt.Errorf("inserting goods receipt: %w", err)
		}

		byID := make(map[string]*model.POLine, len(po.Lines))
		for i := range po.Lines {
			byID[po.Lines[i].ID] = &po.Lines[i]
		}
		for _, rl := range p.Lines {
			line := byID[rl.POLineID]
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO goods_receipt_lines (receipt_id, po_line_id, item_id, quantity) VALUES (?, ?, ?, ?)`,
				grn.ID, line.ID, line.ItemID, rl.Quantity); err != nil {
				return fmt.Errorf("inserting receipt line: %w", err)
			}
			line.Received = line.Received.Add(rl.Quantity)
			if _, err := tx.ExecContext(ctx, `UPDATE po_lines SET received = ? WHERE id = ?`, line.Received, line.ID); err != nil {
				return fmt.Errorf("updating PO line: %w", err)
			}
			if _, err := s.stock.StockIn(ctx, tx, line.ItemID, rl.Quantity, line.UnitCost, model.RefGoodsReceipt, grn.ID, grn.Number); err != nil {
				return fmt.Errorf("receiving %s: %w", line.Description, err)
			}
			grn.Lines = append(grn.Lines, model.ReceiptLine{POLineID: line.ID, ItemID: line.ItemID, Quantity: rl.Quantity})
		}

		status := model.POReceived
		for _, l := range po.Lines {
			if l.Remaining().IsPositive() {
				status = model.POPartiallyReceived
				break
			}
		}
		return setPOStatus(ctx, tx, po.ID, po.Status, status)
	})
	if err != nil {
		return model.GoodsReceipt{}, err
	}
	s.log.Info("goods received", zap.String("grn", grn.Number), zap.Int("lines", len(grn.Lines)))
	return grn, nil
}

func validateReceipt(po model.PurchaseOrder, p ReceiveParams) error {
	var errs apperr.ValidationErrors
	if p.ReceivedOn.IsZero() {
		errs.Add("receivedOn", "required", "received date is required")
	}
	if len(p.Lines) == 0 {
		errs.Add("lines", "required", "a receipt needs at least one line")
	}
	remaining := make(map[string]decimal.Decimal, len(po.Lines))
	for _, l := range po.Lines {
		remaining[l.ID] = l.Remaining()
	}
	seen := make(map[string]bool, len(p.Lines))
	for i, rl := range p.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		left, ok := remaining[rl.POLineID]
		if !ok {
			errs.Add(field+".poLineId", "exists", "line %s is not on %s", rl.POLineID, po.Number)
			continue
		}
		if seen[rl.POLineID] {
			errs.Add(field+".poLineId", "unique", "line %s is listed twice", rl.POLineID)
			continue
		}
		seen[rl.POLineID] = true
		if !rl.Quantity.IsPositive() {
			errs.Add(field+".quantity", "positive", "quantity must be greater than zero")
			continue
		}
		if rl.Quantity.GreaterThan(left) {
			errs.Add(field+".quantity", "remaining", "quantity %s exceeds remaining %s", rl.Quantity, left)
		}
	}
	return errs.Err()
}

// ListReceipts returns a page of goods receipts with their lines, newest first.
func (s *Service) ListReceipts(ctx context.Context, f ReceiptFilter) (store.Paged[model.GoodsReceipt], error) {
	var w store.Where
	if f.POID != "" {
		w.Add("po_id = ?", f.POID)
	}
	total, err := store.Count(ctx, s.db, "SELECT COUNT(*) FROM goods_receipts"+w.SQL(), w.Args()...)
	if err != nil {
		return store.Paged[model.GoodsReceipt]{}, fmt.Errorf("counting receipts: %w", err)
	}
	page := store.NewPage(f.Page.Limit, f.Page.Offset)
	grns, err := store.QueryAll(ctx, s.db, func(r *sql.Rows) (model.GoodsReceipt, error) {
		var g model.GoodsReceipt
		return g, r.Scan(&g.ID, &g.Number, &g.POID, &g.ReceivedOn, &g.Notes, store.ScanTime(&g.CreatedAt))
	}, `SELECT id, number, po_id, received_on, notes, created_at FROM goods_receipts`+w.SQL()+
		" ORDER BY received_on DESC, number DESC"+page.SQL(), append(w.Args(), page.Args()...)...)
	if err != nil {
		return store.Paged[model.GoodsReceipt]{}, fmt.Errorf("listing receipts: %w", err)
	}
	for i := range grns {
		grns[i].Lines, err = store.QueryAll(ctx, s.db, func(r *sql.Rows) (model.ReceiptLine, error) {
			var l model.ReceiptLine
			return l, r.Scan(&l.POLineID, &l.ItemID, &l.Quantity)
		}, `SELECT po_line_id, item_id, quantity FROM goods_receipt_lines WHERE receipt_id = ? ORDER BY po_line_id`, grns[i].ID)
		if err != nil {
			return store.Paged[model.GoodsReceipt]{}, fmt.Errorf("reading receipt %s lines: %w", grns[i].Number, err)
		}
	}
	return store.NewPaged(grns, total, page), nil
}
