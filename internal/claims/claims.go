// Package claims handles staff compensation and expense claims from
// submission through review to payout.
package claims

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dmitriyabr/duma-erp-sub003/internal/accounts"
	"github.com/dmitriyabr/duma-erp-sub003/internal/apperr"
	"github.com/dmitriyabr/duma-erp-sub003/internal/auditlog"
	"github.com/dmitriyabr/duma-erp-sub003/internal/id"
	"github.com/dmitriyabr/duma-erp-sub003/internal/logging"
	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
	"github.com/dmitriyabr/duma-erp-sub003/internal/payouts"
	"github.com/dmitriyabr/duma-erp-sub003/internal/store"
)

// Service provides business logic for claims.
type Service struct {
	db    *store.DB
	audit *auditlog.Log
	log   *zap.Logger
}

// NewService creates a claims Service. Reviews and payouts are recorded in
// audit, which may be nil.
func NewService(db *store.DB, audit *auditlog.Log, logger *zap.Logger) *Service {
	return &Service{db: db, audit: audit, log: logging.OrNop(logger)}
}

// Params describe a new claim.
type Params struct {
	Claimant    string          `json:"claimant"`
	AccountID   int             `json:"accountId"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	IncurredOn  model.Date      `json:"incurredOn"`
}

// Review is the reviewer's decision details.
type Review struct {
	Reviewer string `json:"reviewer"`
	Note     string `json:"note"`
}

// PayParams describe how an approved claim was paid.
type PayParams struct {
	PaidOn    model.Date `json:"paidOn"`
	Reference string     `json:"reference"`
}

// Filter narrows List.
type Filter struct {
	Status    model.ClaimStatus
	Claimant  string
	AccountID int
	From, To  model.Date
	Page      store.Page
}

const selectClaim = `SELECT id, number, claimant, account_id, description, amount, incurred_on, status,
	reviewed_by, review_note, payout_id, created_at, updated_at FROM claims`

func scanClaim(r interface{ Scan(...any) error }) (model.Claim, error) {
	var c model.Claim
	err := r.Scan(&c.ID, &c.Number, &c.Claimant, &c.AccountID, &c.Description, &c.Amount, &c.IncurredOn, &c.Status,
		&c.ReviewedBy, &c.ReviewNote, &c.PayoutID, store.ScanTime(&c.CreatedAt), store.ScanTime(&c.UpdatedAt))
	return c, err
}

func scanClaimRows(r *sql.Rows) (model.Claim, error) { return scanClaim(r) }

func (s *Service) validate(ctx context.Context, p *Params) error {
	p.Claimant = strings.TrimSpace(p.Claimant)
	p.Description = strings.TrimSpace(p.Description)

	var errs apperr.ValidationErrors
	if p.Claimant == "" {
		errs.Add("claimant", "required", "claimant is required")
	}
	if p.Description == "" {
		errs.Add("description", "required", "description is required")
	}
	if !p.Amount.IsPositive() {
		errs.Add("amount", "positive", "amount must be greater than zero")
	}
	if !model.HasCents(p.Amount) {
		errs.Add("amount", "precision", "amount %s has more than 2 decimal places", p.Amount)
	}
	if p.IncurredOn.IsZero() {
		errs.Add("incurredOn", "required", "date incurred is required")
	} else if p.IncurredOn.After(model.Today()) {
		errs.Add("incurredOn", "not_future", "date incurred %s is in the future", p.IncurredOn)
	}
	if err := accounts.CheckType(ctx, s.db, &errs, "accountId", p.AccountID, model.AccountTypeExpense); err != nil {
		return err
	}
	return errs.Err()
}

// Submit records a new claim numbered by the month it was incurred.
func (s *Service) Submit(ctx context.Context, p Params) (model.Claim, error) {
	if err := s.validate(ctx, &p); err != nil {
		return model.Claim{}, err
	}
	claimID := id.New()
	var number string
	err := s.db.WithDocTx(ctx, func(tx *sql.Tx) error {
		var err error
		number, err = store.NextDocNo(ctx, tx, "claims", id.PrefixClaim, p.IncurredOn.Time)
		if err != nil {
			return err
		}
		now := store.Now()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO claims (id, number, claimant, account_id, description, amount, incurred_on, status,
			 reviewed_by, review_note, payout_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', '', '', ?, ?)`,
			claimID, number, p.Claimant, p.AccountID, p.Description, p.Amount, p.IncurredOn, model.ClaimSubmitted, now, now)
		if err != nil {
			return fmt.Errorf("inserting claim: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Claim{}, err
	}
	s.log.Info("claim submitted", zap.String("number", number), zap.String("claimant", p.Claimant))
	return s.Get(ctx, claimID)
}

// Get returns one claim.
func (s *Service) Get(ctx context.Context, claimID string) (model.Claim, error) {
	return getClaim(ctx, s.db, claimID)
}

func getClaim(ctx context.Context, q store.Querier, claimID string) (model.Claim, error) {
	c, err := scanClaim(q.QueryRowContext(ctx, selectClaim+" WHERE id = ?", claimID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Claim{}, apperr.NotFound("claim", claimID)
	}
	if err != nil {
		return model.Claim{}, fmt.Errorf("reading claim %s: %w", claimID, err)
	}
	return c, nil
}

// List returns a page of claims, most recently incurred first.
func (s *Service) List(ctx context.Context, f Filter) (store.Paged[model.Claim], error) {
	var w store.Where
	if f.Status != "" {
		w.Add("status = ?", f.Status)
	}
	w.Like(f.Claimant, "claimant")
	if f.AccountID != 0 {
		w.Add("account_id = ?", f.AccountID)
	}
	if !f.From.IsZero() {
		w.Add("incurred_on >= ?", f.From)
	}
	if !f.To.IsZero() {
		w.Add("incurred_on <= ?", f.To)
	}
	total, err := store.Count(ctx, s.db, "SELECT COUNT(*) FROM claims"+w.SQL(), w.Args()...)
	if err != nil {
		return store.Paged[model.Claim]{}, fmt.Errorf("counting claims: %w", err)
	}
	page := store.NewPage(f.Page.Limit, f.Page.Offset)
	cs, err := store.QueryAll(ctx, s.db, scanClaimRows,
		selectClaim+w.SQL()+" ORDER BY incurred_on DESC, number DESC"+page.SQL(), append(w.Args(), page.Args()...)...)
	if err != nil {
		return store.Paged[model.Claim]{}, fmt.Errorf("listing claims: %w", err)
	}
	return store.NewPaged(cs, total, page), nil
}

// Approve accepts a submitted claim for payment.
func (s *Service) Approve(ctx context.Context, claimID string, r Review) (model.Claim, error) {
	return s.review(ctx, claimID, r, model.ClaimApproved, "approve")
}

// Reject declines a submitted claim. A note is required.
func (s *Service) Reject(ctx context.Context, claimID string, r Review) (model.Claim, error) {
	if strings.TrimSpace(r.Note) == "" {
		var errs apperr.ValidationErrors
		errs.Add("note", "required", "a rejection note is required")
		return model.Claim{}, errs
	}
	return s.review(ctx, claimID, r, model.ClaimRejected, "reject")
}

func (s *Service) review(ctx context.Context, claimID string, r Review, to model.ClaimStatus, op string) (model.Claim, error) {
	r.Reviewer = strings.TrimSpace(r.Reviewer)
	if r.Reviewer == "" {
		var errs apperr.ValidationErrors
		errs.Add("reviewer", "required", "reviewer is required")
		return model.Claim{}, errs
	}
	var c model.Claim
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		c, err = getClaim(ctx, tx, claimID)
		if err != nil {
			return err
		}
		if c.Status != model.ClaimSubmitted {
			return apperr.InvalidState("claim", c.Number, string(c.Status), op)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE claims SET status = ?, reviewed_by = ?, review_note = ?, updated_at = ? WHERE id = ? AND status = ?`,
			to, r.Reviewer, strings.TrimSpace(r.Note), store.Now(), claimID, model.ClaimSubmitted)
		if err != nil {
			return fmt.Errorf("updating claim %s: %w", c.Number, err)
		}
		return affected(res, c.Number, model.ClaimSubmitted)
	})
	if err != nil {
		return model.Claim{}, err
	}
	s.record(auditlog.Entry{Actor: r.Reviewer, Action: "claim_" + string(to),
		Details: fmt.Sprintf("%s %s %s", c.Number, c.Claimant, c.Amount.StringFixed(2)), Subject: c.ID, Ref: c.Number})
	s.log.Info("claim reviewed", zap.String("number", c.Number), zap.String("status", string(to)))
	return s.Get(ctx, claimID)
}

// Pay settles an approved claim with a payout to the claimant.
func (s *Service) Pay(ctx context.Context, claimID string, p PayParams) (model.Claim, error) {
	var out model.Payout
	var c model.Claim
	err := s.db.WithDocTx(ctx, func(tx *sql.Tx) error {
		var err error
		c, err = getClaim(ctx, tx, claimID)
		if err != nil {
			return err
		}
		if c.Status != model.ClaimApproved {
			return apperr.InvalidState("claim", c.Number, string(c.Status), "pay")
		}
		if !p.PaidOn.IsZero() && p.PaidOn.Before(c.IncurredOn) {
			var errs apperr.ValidationErrors
			errs.Add("paidOn", "after_incurred", "payment date %s is before %s", p.PaidOn, c.IncurredOn)
			return errs
		}
		ref := strings.TrimSpace(p.Reference)
		if ref == "" {
			ref = c.Number
		}
		out, err = payouts.Insert(ctx, tx, payouts.Params{
			SourceType: model.PayoutClaim,
			SourceID:   c.ID,
			Payee:      c.Claimant,
			Amount:     c.Amount,
			PaidOn:     p.PaidOn,
			Reference:  ref,
		})
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `UPDATE claims SET status = ?, payout_id = ?, updated_at = ? WHERE id = ? AND status = ?`,
			model.ClaimPaid, out.ID, store.Now(), c.ID, model.ClaimApproved)
		if err != nil {
			return fmt.Errorf("updating claim %s: %w", c.Number, err)
		}
		return affected(res, c.Number, model.ClaimApproved)
	})
	if err != nil {
		return model.Claim{}, err
	}
	s.record(auditlog.Entry{Actor: auditlog.ActorFrom(ctx), Action: "claim_paid",
		Details: fmt.Sprintf("%s paid %s to %s", c.Number, out.Amount.StringFixed(2), c.Claimant), Subject: c.ID, Ref: out.Number})
	s.log.Info("claim paid", zap.String("number", c.Number), zap.String("payout", out.Number))
	return s.Get(ctx, claimID)
}

// affected reports a conflict when a guarded status update matched no row.
func affected(res sql.Result, number string, from model.ClaimStatus) error {
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: claim %s is no longer %s", apperr.ErrConflict, number, from)
	}
	return nil
}

func (s *Service) record(e auditlog.Entry) {
	if err := s.audit.Append(e); err != nil {
		s.log.Warn("writing audit log", zap.Error(err))
	}
}
