package invoicing

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dmitriyabr/duma-erp-sub003/internal/accounts"
	"github.com/dmitriyabr/duma-erp-sub003/internal/apperr"
	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
	"github.com/dmitriyabr/duma-erp-sub003/internal/store"
)

// LineParams is one requested invoice line.
type LineParams struct {
	Description string          `json:"description"`
	AccountID   int             `json:"accountId"`
	ItemID      string          `json:"itemId"`
	KitID       string          `json:"kitId"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

// Params are the editable fields of an invoice.
type Params struct {
	StudentRef string       `json:"studentRef"`
	BillTo     string       `json:"billTo"`
	IssueDate  model.Date   `json:"issueDate"`
	DueDate    model.Date   `json:"dueDate"`
	Notes      string       `json:"notes"`
	Lines      []LineParams `json:"lines"`
}

func (p *Params) normalize() {
	p.StudentRef = strings.TrimSpace(p.StudentRef)
	p.BillTo = strings.TrimSpace(p.BillTo)
	p.Notes = strings.TrimSpace(p.Notes)
	for i := range p.Lines {
		p.Lines[i].Description = strings.TrimSpace(p.Lines[i].Description)
	}
}

// validate collects every problem with p. Account, item and kit references
// are checked through q.
func validate(ctx context.Context, q store.Querier, p Params) error {
	var errs apperr.ValidationErrors

	if p.StudentRef == "" {
		errs.Add("studentRef", "required", "student reference is required")
	}
	if p.BillTo == "" {
		errs.Add("billTo", "required", "bill-to name is required")
	}
	if p.IssueDate.IsZero() {
		errs.Add("issueDate", "required", "issue date is required")
	}
	if p.DueDate.IsZero() {
		errs.Add("dueDate", "required", "due date is required")
	}
	if !p.IssueDate.IsZero() && !p.DueDate.IsZero() && p.DueDate.Before(p.IssueDate) {
		errs.Add("dueDate", "after_issue", "due date %s is before issue date %s", p.DueDate, p.IssueDate)
	}
	if len(p.Lines) == 0 {
		errs.Add("lines", "required", "an invoice needs at least one line")
	}

	for i, l := range p.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		if l.Description == "" {
			errs.Add(field+".description", "required", "description is required")
		}
		if !l.Quantity.IsPositive() {
			errs.Add(field+".quantity", "positive", "quantity must be greater than zero")
		}
		if l.UnitPrice.IsNegative() {
			errs.Add(field+".unitPrice", "non_negative", "unit price must not be negative")
		}
		if !model.HasCents(l.UnitPrice) {
			errs.Add(field+".unitPrice", "precision", "unit price %s has more than 2 decimal places", l.UnitPrice)
		}
		if err := accounts.CheckType(ctx, q, &errs, field+".accountId", l.AccountID, model.AccountTypeRevenue); err != nil {
			return err
		}
		if l.ItemID != "" && l.KitID != "" {
			errs.Add(field, "one_of", "a line references at most one of itemId or kitId")
			continue
		}
		if l.ItemID != "" {
			if err := checkRef(ctx, q, &errs, field+".itemId", "items", "item", l.ItemID); err != nil {
				return err
			}
		}
		if l.KitID != "" {
			if err := checkRef(ctx, q, &errs, field+".kitId", "kits", "kit", l.KitID); err != nil {
				return err
			}
		}
	}
	return errs.Err()
}

func checkRef(ctx context.Context, q store.Querier, errs *apperr.ValidationErrors, field, table, kind, ref string) error {
	ok, err := store.Exists(ctx, q, "SELECT 1 FROM "+table+" WHERE id = ?", ref)
	if err != nil {
		return fmt.Errorf("checking %s %s: %w", kind, ref, err)
	}
	if !ok {
		errs.Add(field, "exists", "%s %s does not exist", kind, ref)
	}
	return nil
}

// validatePayment checks a payment against the invoice balance.
func validatePayment(inv model.Invoice, p PaymentParams) error {
	var errs apperr.ValidationErrors
	if !p.Amount.IsPositive() {
		errs.Add("amount", "positive", "amount must be greater than zero")
	}
	if !model.HasCents(p.Amount) {
		errs.Add("amount", "precision", "amount %s has more than 2 decimal places", p.Amount)
	}
	if p.Amount.GreaterThan(inv.Balance) {
		errs.Add("amount", "overpayment", "amount %s exceeds balance %s of %s",
			p.Amount.StringFixed(2), inv.Balance.StringFixed(2), inv.Number)
	}
	if p.PaidOn.IsZero() {
		errs.Add("paidOn", "required", "payment date is required")
	}
	if strings.TrimSpace(p.Method) == "" {
		errs.Add("method", "required", "payment method is required")
	}
	return errs.Err()
}
