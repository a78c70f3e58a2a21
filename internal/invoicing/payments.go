package invoicing

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

// PaymentParams describe money received against an invoice.
type PaymentParams struct {
	Amount    decimal.Decimal `json:"amount"`
	PaidOn    model.Date      `json:"paidOn"`
	Method    string          `json:"method"` // bank, mpesa, cash, cheque
	Reference string          `json:"reference"`
}

// PaymentFilter narrows ListPayments.
type PaymentFilter struct {
	InvoiceID string
	Matched   *bool
	From, To  model.Date
	Page      store.Page
}

// selectPayment reads payments with their derived matched flag.
const selectPayment = `SELECT p.id, p.number, p.invoice_id, p.amount, p.paid_on, p.method, p.reference, p.created_at,
	CASE WHEN m.id IS NULL THEN 0 ELSE 1 END
	FROM payments p LEFT JOIN bank_matches m ON m.record_type = 'payment' AND m.record_id = p.id`

// scanPayment scans a row of selectPayment.
func scanPayment(r *sql.Rows) (model.Payment, error) {
	var p model.Payment
	err := r.Scan(&p.ID, &p.Number, &p.InvoiceID, &p.Amount, &p.PaidOn, &p.Method, &p.Reference,
		store.ScanTime(&p.CreatedAt), &p.Matched)
	return p, err
}

// RecordPayment stores a payment, numbers it PAY-YYYY-MM-NNNN and advances
// the invoice to partially_paid or paid. Overpayment is rejected.
func (s *Service) RecordPayment(ctx context.Context, invoiceID string, p PaymentParams) (model.Payment, error) {
	p.Method = strings.ToLower(strings.TrimSpace(p.Method))
	p.Reference = strings.TrimSpace(p.Reference)

	var pay model.Payment
	err := s.db.WithDocTx(ctx, func(tx *sql.Tx) error {
		inv, err := getInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if !inv.Status.Outstanding() {
			return apperr.InvalidState("invoice", inv.Number, string(inv.Status), "record payment on")
		}
		if err := validatePayment(inv, p); err != nil {
			return err
		}

		number, err := store.NextDocNo(ctx, tx, "payments", id.PrefixPayment, p.PaidOn.Time)
		if err != nil {
			return err
		}
		pay = model.Payment{
			ID:        id.New(),
			Number:    number,
			InvoiceID: inv.ID,
			Amount:    p.Amount,
			PaidOn:    p.PaidOn,
			Method:    p.Method,
			Reference: p.Reference,
			CreatedAt: time.Now().UTC(),
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO payments (id, number, invoice_id, amount, paid_on, method, reference, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			pay.ID, pay.Number, pay.InvoiceID, pay.Amount, pay.PaidOn, pay.Method, pay.Reference, store.FormatTime(pay.CreatedAt))
		if err != nil {
			return fmt.Errorf("inserting payment: %w", err)
		}

		paid := inv.Paid.Add(p.Amount)
		status := model.InvoicePartiallyPaid
		if paid.Equal(inv.Total) {
			status = model.InvoicePaid
		}
		_, err = tx.ExecContext(ctx, `UPDATE invoices SET paid = ?, status = ?, updated_at = ? WHERE id = ?`,
			paid, status, store.Now(), inv.ID)
		if err != nil {
			return fmt.Errorf("updating invoice %s: %w", inv.Number, err)
		}
		return nil
	})
	if err != nil {
		return model.Payment{}, err
	}
	s.log.Info("payment recorded", zap.String("number", pay.Number), zap.String("amount", pay.Amount.StringFixed(2)))
	return pay, nil
}

// GetPayment returns one payment.
func (s *Service) GetPayment(ctx context.Context, paymentID string) (model.Payment, error) {
	pays, err := store.QueryAll(ctx, s.db, scanPayment, selectPayment+" WHERE p.id = ?", paymentID)
	if err != nil {
		return model.Payment{}, fmt.Errorf("reading payment %s: %w", paymentID, err)
	}
	if len(pays) == 0 {
		return model.Payment{}, apperr.NotFound("payment", paymentID)
	}
	return pays[0], nil
}

// ListPayments returns a page of payments, newest first.
func (s *Service) ListPayments(ctx context.Context, f PaymentFilter) (store.Paged[model.Payment], error) {
	var w store.Where
	if f.InvoiceID != "" {
		w.Add("p.invoice_id = ?", f.InvoiceID)
	}
	if f.Matched != nil {
		if *f.Matched {
			w.Add("m.id IS NOT NULL")
		} else {
			w.Add("m.id IS NULL")
		}
	}
	if !f.From.IsZero() {
		w.Add("p.paid_on >= ?", f.From)
	}
	if !f.To.IsZero() {
		w.Add("p.paid_on <= ?", f.To)
	}

	total, err := store.Count(ctx, s.db,
		`SELECT COUNT(*) FROM payments p LEFT JOIN bank_matches m ON m.record_type = 'payment' AND m.record_id = p.id`+w.SQL(),
		w.Args()...)
	if err != nil {
		return store.Paged[model.Payment]{}, fmt.Errorf("counting payments: %w", err)
	}
	page := store.NewPage(f.Page.Limit, f.Page.Offset)
	pays, err := store.QueryAll(ctx, s.db, scanPayment,
		selectPayment+w.SQL()+" ORDER BY p.paid_on DESC, p.number DESC"+page.SQL(), append(w.Args(), page.Args()...)...)
	if err != nil {
		return store.Paged[model.Payment]{}, fmt.Errorf("listing payments: %w", err)
	}
	return store.NewPaged(pays, total, page), nil
}
