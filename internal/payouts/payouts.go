// Package payouts records money paid out by the school, whether for an
// approved claim or against a purchase order.
package payouts

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmitriyabr/duma-erp-sub003/internal/apperr"
	"github.com/dmitriyabr/duma-erp-sub003/internal/id"
	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
	"github.com/dmitriyabr/duma-erp-sub003/internal/store"
)

// Service lists payouts. Creation happens inside the claims and procurement
// transactions through Insert.
type Service struct {
	db *store.DB
}

// NewService creates a Service over db.
func NewService(db *store.DB) *Service {
	return &Service{db: db}
}

// Params describe a new payout.
type Params struct {
	SourceType model.PayoutSource
	SourceID   string
	Payee      string
	Amount     decimal.Decimal
	PaidOn     model.Date
	Reference  string
}

// Filter narrows List.
type Filter struct {
	SourceType model.PayoutSource
	SourceID   string
	Matched    *bool
	From, To   model.Date
	Page       store.Page
}

// Select reads payouts with their derived matched flag.
const Select = `SELECT o.id, o.number, o.source_type, o.source_id, o.payee, o.amount, o.paid_on, o.reference, o.created_at,
	CASE WHEN m.id IS NULL THEN 0 ELSE 1 END
	FROM payouts o LEFT JOIN bank_matches m ON m.record_type = 'payout' AND m.record_id = o.id`

const countFrom = `SELECT COUNT(*) FROM payouts o LEFT JOIN bank_matches m ON m.record_type = 'payout' AND m.record_id = o.id`

// Scan scans a row of Select.
func Scan(r *sql.Rows) (model.Payout, error) {
	var o model.Payout
	err := r.Scan(&o.ID, &o.Number, &o.SourceType, &o.SourceID, &o.Payee, &o.Amount, &o.PaidOn, &o.Reference,
		store.ScanTime(&o.CreatedAt), &o.Matched)
	return o, err
}

// Validate checks the amount and date of a payout.
func Validate(p Params) error {
	var errs apperr.ValidationErrors
	if !p.Amount.IsPositive() {
		errs.Add("amount", "positive", "amount must be greater than zero")
	}
	if !model.HasCents(p.Amount) {
		errs.Add("amount", "precision", "amount %s has more than 2 decimal places", p.Amount)
	}
	if p.PaidOn.IsZero() {
		errs.Add("paidOn", "required", "payment date is required")
	}
	return errs.Err()
}

// Insert stores a payout numbered OUT-YYYY-MM-NNNN through q.
func Insert(ctx context.Context, q store.Querier, p Params) (model.Payout, error) {
	if err := Validate(p); err != nil {
		return model.Payout{}, err
	}
	number, err := store.NextDocNo(ctx, q, "payouts", id.PrefixPayout, p.PaidOn.Time)
	if err != nil {
		return model.Payout{}, err
	}
	o := model.Payout{
		ID:         id.New(),
		Number:     number,
		SourceType: p.SourceType,
		SourceID:   p.SourceID,
		Payee:      strings.TrimSpace(p.Payee),
		Amount:     p.Amount,
		PaidOn:     p.PaidOn,
		Reference:  strings.TrimSpace(p.Reference),
		CreatedAt:  time.Now().UTC(),
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO payouts (id, number, source_type, source_id, payee, amount, paid_on, reference, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Number, o.SourceType, o.SourceID, o.Payee, o.Amount, o.PaidOn, o.Reference, store.FormatTime(o.CreatedAt))
	if err != nil {
		return model.Payout{}, fmt.Errorf("inserting payout: %w", err)
	}
	return o, nil
}

// Get returns one payout.
func (s *Service) Get(ctx context.Context, payoutID string) (model.Payout, error) {
	outs, err := store.QueryAll(ctx, s.db, Scan, Select+" WHERE o.id = ?", payoutID)
	if err != nil {
		return model.Payout{}, fmt.Errorf("reading payout %s: %w", payoutID, err)
	}
	if len(outs) == 0 {
		return model.Payout{}, apperr.NotFound("payout", payoutID)
	}
	return outs[0], nil
}

// List returns a page of payouts, newest first.
func (s *Service) List(ctx context.Context, f Filter) (store.Paged[model.Payout], error) {
	var w store.Where
	if f.SourceType != "" {
		w.Add("o.source_type = ?", f.SourceType)
	}
	if f.SourceID != "" {
		w.Add("o.source_id = ?", f.SourceID)
	}
	if f.Matched != nil {
		if *f.Matched {
			w.Add("m.id IS NOT NULL")
		} else {
			w.Add("m.id IS NULL")
		}
	}
	if !f.From.IsZero() {
		w.Add("o.paid_on >= ?", f.From)
	}
	if !f.To.IsZero() {
		w.Add("o.paid_on <= ?", f.To)
	}

	total, err := store.Count(ctx, s.db, countFrom+w.SQL(), w.Args()...)
	if err != nil {
		return store.Paged[model.Payout]{}, fmt.Errorf("counting payouts: %w", err)
	}
	page := store.NewPage(f.Page.Limit, f.Page.Offset)
	outs, err := store.QueryAll(ctx, s.db, Scan,
		Select+w.SQL()+" ORDER BY o.paid_on DESC, o.number DESC"+page.SQL(), append(w.Args(), page.Args()...)...)
	if err != nil {
		return store.Paged[model.Payout]{}, fmt.Errorf("listing payouts: %w", err)
	}
	return store.NewPaged(outs, total, page), nil
}
