// Package reports builds the read-only summaries shown on the dashboard and
// exported as CSV.
package reports

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dmitriyabr/duma-erp-sub003/internal/logging"
	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
	"github.com/dmitriyabr/duma-erp-sub003/internal/store"
)

// Service computes reports from the store.
type Service struct {
	db  *store.DB
	log *zap.Logger
}

// NewService creates a reports Service.
func NewService(db *store.DB, logger *zap.Logger) *Service {
	return &Service{db: db, log: logging.OrNop(logger)}
}

// Aging buckets, by days past due.
const (
	BucketCurrent = "current"
	Bucket1to30   = "1-30"
	Bucket31to60  = "31-60"
	Bucket61to90  = "61-90"
	BucketOver90  = "90+"
)

// Buckets lists the aging buckets in display order.
var Buckets = []string{BucketCurrent, Bucket1to30, Bucket31to60, Bucket61to90, BucketOver90}

// BucketFor returns the aging bucket of an invoice overdue by days.
func BucketFor(days int) string {
	switch {
	case days <= 0:
		return BucketCurrent
	case days <= 30:
		return Bucket1to30
	case days <= 60:
		return Bucket31to60
	case days <= 90:
		return Bucket61to90
	default:
		return BucketOver90
	}
}

// AgingRow is one outstanding invoice.
type AgingRow struct {
	InvoiceID   string          `json:"invoiceId"`
	Number      string          `json:"number"`
	StudentRef  string          `json:"studentRef"`
	BillTo      string          `json:"billTo"`
	DueDate     model.Date      `json:"dueDate"`
	DaysOverdue int             `json:"daysOverdue"`
	Bucket      string          `json:"bucket"`
	Balance     decimal.Decimal `json:"balance"`
}

// BucketTotal sums the invoices of one bucket.
type BucketTotal struct {
	Bucket string          `json:"bucket"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// AgingReport is outstanding receivables by age.
type AgingReport struct {
	AsOf    model.Date      `json:"asOf"`
	Rows    []AgingRow      `json:"rows"`
	Buckets []BucketTotal   `json:"buckets"`
	Total   decimal.Decimal `json:"total"`
}

// InvoiceAging buckets the balance of every issued or partially paid
// invoice issued on or before asOf.
func (s *Service) InvoiceAging(ctx context.Context, asOf model.Date) (AgingReport, error) {
	rows, err := store.QueryAll(ctx, s.db, func(r *sql.Rows) (AgingRow, error) {
		var row AgingRow
		var total, paid decimal.Decimal
		err := r.Scan(&row.InvoiceID, &row.Number, &row.StudentRef, &row.BillTo, &row.DueDate, &total, &paid)
		row.Balance = total.Sub(paid)
		return row, err
	}, `SELECT id, number, student_ref, bill_to, due_date, total, paid FROM invoices
		WHERE status IN (?, ?) AND issue_date <= ? ORDER BY due_date, number`,
		model.InvoiceIssued, model.InvoicePartiallyPaid, asOf)
	if err != nil {
		return AgingReport{}, fmt.Errorf("reading outstanding invoices: %w", err)
	}

	rep := AgingReport{AsOf: asOf, Rows: make([]AgingRow, 0, len(rows)), Total: decimal.Zero}
	totals := make(map[string]*BucketTotal, len(Buckets))
	for _, b := range Buckets {
		rep.Buckets = append(rep.Buckets, BucketTotal{Bucket: b, Amount: decimal.Zero})
	}
	for i := range rep.Buckets {
		totals[rep.Buckets[i].Bucket] = &rep.Buckets[i]
	}
	for _, row := range rows {
		if !row.Balance.IsPositive() {
			continue
		}
		row.DaysOverdue = row.DueDate.DaysUntil(asOf)
		if row.DaysOverdue < 0 {
			row.DaysOverdue = 0
		}
		row.Bucket = BucketFor(row.DaysOverdue)
		bt := totals[row.Bucket]
		bt.Count++
		bt.Amount = bt.Amount.Add(row.Balance)
		rep.Total = rep.Total.Add(row.Balance)
		rep.Rows = append(rep.Rows, row)
	}
	return rep, nil
}

// ReconFilter scopes the reconciliation report. Zero values mean no limit.
type ReconFilter struct {
	AccountCode string
	From, To    model.Date
}

// StatusLine counts bank lines of one status and direction.
type StatusLine struct {
	Status    model.BankTxStatus `json:"status"`
	Direction model.Direction    `json:"direction"`
	Count     int                `json:"count"`
	Amount    decimal.Decimal    `json:"amount"`
}

// OpenRecords counts ledger records with no bank match.
type OpenRecords struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// ReconReport summarizes reconciliation progress.
type ReconReport struct {
	AccountCode       string       `json:"accountCode,omitempty"`
	From              model.Date   `json:"from"`
	To                model.Date   `json:"to"`
	Lines             []StatusLine `json:"lines"`
	UnmatchedPayments OpenRecords  `json:"unmatchedPayments"`
	UnmatchedPayouts  OpenRecords  `json:"unmatchedPayouts"`
}

// Reconciliation counts bank lines by status and direction, and the
// payments and payouts still waiting for a bank line.
func (s *Service) Reconciliation(ctx context.Context, f ReconFilter) (ReconReport, error) {
	var w store.Where
	if f.AccountCode != "" {
		w.Add("account_code = ?", f.AccountCode)
	}
	if !f.From.IsZero() {
		w.Add("posted_on >= ?", f.From)
	}
	if !f.To.IsZero() {
		w.Add("posted_on <= ?", f.To)
	}
	type line struct {
		status model.BankTxStatus
		dir    model.Direction
		amount decimal.Decimal
	}
	lines, err := store.QueryAll(ctx, s.db, func(r *sql.Rows) (line, error) {
		var l line
		return l, r.Scan(&l.status, &l.dir, &l.amount)
	}, "SELECT status, direction, amount FROM bank_transactions"+w.SQL(), w.Args()...)
	if err != nil {
		return ReconReport{}, fmt.Errorf("reading bank transactions: %w", err)
	}

	rep := ReconReport{AccountCode: f.AccountCode, From: f.From, To: f.To}
	idx := make(map[[2]string]int)
	for _, st := range []model.BankTxStatus{model.BankTxUnmatched, model.BankTxMatched, model.BankTxIgnored} {
		for _, d := range []model.Direction{model.Credit, model.Debit} {
			idx[[2]string{string(st), string(d)}] = len(rep.Lines)
			rep.Lines = append(rep.Lines, StatusLine{Status: st, Direction: d, Amount: decimal.Zero})
		}
	}
	for _, l := range lines {
		i, ok := idx[[2]string{string(l.status), string(l.dir)}]
		if !ok {
			continue
		}
		rep.Lines[i].Count++
		rep.Lines[i].Amount = rep.Lines[i].Amount.Add(l.amount)
	}

	rep.UnmatchedPayments, err = s.openRecords(ctx, "payments", "payment", f)
	if err != nil {
		return ReconReport{}, err
	}
	rep.UnmatchedPayouts, err = s.openRecords(ctx, "payouts", "payout", f)
	if err != nil {
		return ReconReport{}, err
	}
	return rep, nil
}

func (s *Service) openRecords(ctx context.Context, table, recordType string, f ReconFilter) (OpenRecords, error) {
	var w store.Where
	w.Add("m.id IS NULL")
	if !f.From.IsZero() {
		w.Add("r.paid_on >= ?", f.From)
	}
	if !f.To.IsZero() {
		w.Add("r.paid_on <= ?", f.To)
	}
	amounts, err := store.QueryAll(ctx, s.db, func(r *sql.Rows) (decimal.Decimal, error) {
		var d decimal.Decimal
		return d, r.Scan(&d)
	}, "SELECT r.amount FROM "+table+" r LEFT JOIN bank_matches m ON m.record_type = ? AND m.record_id = r.id"+w.SQL(),
		append([]any{recordType}, w.Args()...)...)
	if err != nil {
		return OpenRecords{}, fmt.Errorf("reading unmatched %s: %w", table, err)
	}
	out := OpenRecords{Count: len(amounts), Amount: decimal.Zero}
	for _, a := range amounts {
		out.Amount = out.Amount.Add(a)
	}
	return out, nil
}

// ValuationRow is one active item's stock value.
type ValuationRow struct {
	ItemID    string          `json:"itemId"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	QtyOnHand decimal.Decimal `json:"qtyOnHand"`
	UnitCost  decimal.Decimal `json:"unitCost"`
	Value     decimal.Decimal `json:"value"`
	LowStock  bool            `json:"lowStock"`
}

// Valuation is the value of stock on hand.
type Valuation struct {
	Rows     []ValuationRow  `json:"rows"`
	Total    decimal.Decimal `json:"total"`
	LowStock int             `json:"lowStock"`
}

// InventoryValuation values every active item at its moving-average cost.
func (s *Service) InventoryValuation(ctx context.Context) (Valuation, error) {
	items, err := store.QueryAll(ctx, s.db, func(r *sql.Rows) (model.Item, error) {
		var it model.Item
		return it, r.Scan(&it.ID, &it.SKU, &it.Name, &it.QtyOnHand, &it.UnitCost, &it.ReorderLevel)
	}, `SELECT id, sku, name, qty_on_hand, unit_cost, reorder_level FROM items WHERE active = ? ORDER BY sku`, true)
	if err != nil {
		return Valuation{}, fmt.Errorf("reading items: %w", err)
	}
	v := Valuation{Rows: make([]ValuationRow, 0, len(items)), Total: decimal.Zero}
	for _, it := range items {
		row := ValuationRow{
			ItemID: it.ID, SKU: it.SKU, Name: it.Name, QtyOnHand: it.QtyOnHand, UnitCost: it.UnitCost,
			Value: it.QtyOnHand.Mul(it.UnitCost).Round(2), LowStock: it.LowStock(),
		}
		if row.LowStock {
			v.LowStock++
		}
		v.Total = v.Total.Add(row.Value)
		v.Rows = append(v.Rows, row)
	}
	return v, nil
}

// ClaimsFilter scopes the claims summary by date incurred.
type ClaimsFilter struct {
	From, To model.Date
}

// ClaimsRow totals the claims of one account and status.
type ClaimsRow struct {
	AccountID   int               `json:"accountId"`
	AccountName string            `json:"accountName"`
	Status      model.ClaimStatus `json:"status"`
	Count       int               `json:"count"`
	Amount      decimal.Decimal   `json:"amount"`
}

// ClaimsReport totals claims by expense account and status.
type ClaimsReport struct {
	From  model.Date      `json:"from"`
	To    model.Date      `json:"to"`
	Rows  []ClaimsRow     `json:"rows"`
	Total decimal.Decimal `json:"total"`
}

var statusOrder = map[model.ClaimStatus]int{
	model.ClaimSubmitted: 0, model.ClaimApproved: 1, model.ClaimPaid: 2, model.ClaimRejected: 3,
}

// ClaimsSummary totals claims incurred within the filter.
func (s *Service) ClaimsSummary(ctx context.Context, f ClaimsFilter) (ClaimsReport, error) {
	var w store.Where
	if !f.From.IsZero() {
		w.Add("c.incurred_on >= ?", f.From)
	}
	if !f.To.IsZero() {
		w.Add("c.incurred_on <= ?", f.To)
	}
	type claim struct {
		account int
		name    string
		status  model.ClaimStatus
		amount  decimal.Decimal
	}
	claims, err := store.QueryAll(ctx, s.db, func(r *sql.Rows) (claim, error) {
		var c claim
		var name sql.NullString
		err := r.Scan(&c.account, &name, &c.status, &c.amount)
		c.name = name.String
		return c, err
	}, "SELECT c.account_id, a.name, c.status, c.amount FROM claims c LEFT JOIN accounts a ON a.id = c.account_id"+w.SQL(),
		w.Args()...)
	if err != nil {
		return ClaimsReport{}, fmt.Errorf("reading claims: %w", err)
	}

	rep := ClaimsReport{From: f.From, To: f.To, Rows: []ClaimsRow{}, Total: decimal.Zero}
	idx := make(map[string]int)
	for _, c := range claims {
		key := fmt.Sprintf("%d|%s", c.account, c.status)
		i, ok := idx[key]
		if !ok {
			i = len(rep.Rows)
			idx[key] = i
			rep.Rows = append(rep.Rows, ClaimsRow{AccountID: c.account, AccountName: c.name, Status: c.status, Amount: decimal.Zero})
		}
		rep.Rows[i].Count++
		rep.Rows[i].Amount = rep.Rows[i].Amount.Add(c.amount)
		if c.status != model.ClaimRejected {
			rep.Total = rep.Total.Add(c.amount)
		}
	}
	sort.Slice(rep.Rows, func(i, j int) bool {
		a, b := rep.Rows[i], rep.Rows[j]
		if a.AccountID != b.AccountID {
			return a.AccountID < b.AccountID
		}
		return statusOrder[a.Status] < statusOrder[b.Status]
	})
	return rep, nil
}

// Dashboard bundles every summary for one screen.
type Dashboard struct {
	AsOf           model.Date   `json:"asOf"`
	Aging          AgingReport  `json:"aging"`
	Reconciliation ReconReport  `json:"reconciliation"`
	Inventory      Valuation    `json:"inventory"`
	Claims         ClaimsReport `json:"claims"`
}

// Dashboard assembles the reports concurrently. Claims cover the fiscal
// year to date, starting at yearStart.
func (s *Service) Dashboard(ctx context.Context, asOf, yearStart model.Date) (Dashboard, error) {
	d := Dashboard{AsOf: asOf}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		d.Aging, err = s.InvoiceAging(ctx, asOf)
		return err
	})
	g.Go(func() error {
		var err error
		d.Reconciliation, err = s.Reconciliation(ctx, ReconFilter{To: asOf})
		return err
	})
	g.Go(func() error {
		var err error
		d.Inventory, err = s.InventoryValuation(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		d.Claims, err = s.ClaimsSummary(ctx, ClaimsFilter{From: yearStart, To: asOf})
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, fmt.Errorf("building dashboard: %w", err)
	}
	s.log.Debug("dashboard built", zap.Stringer("asOf", asOf))
	return d, nil
}
