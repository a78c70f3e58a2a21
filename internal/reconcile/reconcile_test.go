package reconcile

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitriyabr/duma-erp-sub003/internal/accounts"
	"github.com/dmitriyabr/duma-erp-sub003/internal/apperr"
	"github.com/dmitriyabr/duma-erp-sub003/internal/auditlog"
	"github.com/dmitriyabr/duma-erp-sub003/internal/inventory"
	"github.com/dmitriyabr/duma-erp-sub003/internal/invoicing"
	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
	"github.com/dmitriyabr/duma-erp-sub003/internal/payouts"
	"github.com/dmitriyabr/duma-erp-sub003/internal/store"
	"github.com/dmitriyabr/duma-erp-sub003/internal/store/storetest"
)

const statement = `date,description,amount,reference,balance
2025-01-06,MPESA DEPOSIT AMINA WANJIRU INV-2025-01-0001,15000.00,QAB12XY,115000.00
2025-01-07,CHQ DEP BAKARI OTIENO,"8,500.00",,123500.00
2025-01-09,TRANSFER TO UNIFORMS LTD,-42000.00,FT25009,81500.00
2025-01-10,BANK CHARGES,-150.00,,81350.00
2025-01-14,STAFF CLAIM REFUND J MWANGI,-2350.50,CLM-2025-01-0002,79000.50
`

type fixture struct {
	svc      *Service
	db       *store.DB
	invoices *invoicing.Service
	payouts  *payouts.Service
	audit    *auditlog.Log
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := storetest.New(t)
	_, err := accounts.NewService(db, nil).Seed(context.Background())
	require.NoError(t, err)
	audit := auditlog.New(t.TempDir())
	return fixture{
		svc:      NewService(db, nil, DefaultRules(), audit, nil),
		db:       db,
		invoices: invoicing.NewService(db, inventory.NewService(db, nil), nil),
		payouts:  payouts.NewService(db),
		audit:    audit,
	}
}

func (f fixture) payment(t *testing.T, billTo, amount string, paidOn model.Date, ref string) model.Payment {
	t.Helper()
	ctx := context.Background()
	inv, err := f.invoices.Create(ctx, invoicing.Params{
		StudentRef: "ADM-" + strings.ToUpper(billTo[:3]),
		BillTo:     billTo,
		IssueDate:  model.NewDate(2025, time.January, 2),
		DueDate:    model.NewDate(2025, time.January, 31),
		Lines: []invoicing.LineParams{
			{Description: "Term 1 tuition", AccountID: accounts.AccountTuitionFees, Quantity: dec("1"), UnitPrice: dec(amount)},
		},
	})
	require.NoError(t, err)
	_, err = f.invoices.Issue(ctx, inv.ID)
	require.NoError(t, err)
	pay, err := f.invoices.RecordPayment(ctx, inv.ID, invoicing.PaymentParams{
		Amount: dec(amount), PaidOn: paidOn, Method: "bank", Reference: ref,
	})
	require.NoError(t, err)
	return pay
}

func (f fixture) payout(t *testing.T, source model.PayoutSource, payee, amount string, paidOn model.Date, ref string) model.Payout {
	t.Helper()
	out, err := payouts.Insert(context.Background(), f.db, payouts.Params{
		SourceType: source, SourceID: "src-" + payee, Payee: payee, Amount: dec(amount), PaidOn: paidOn, Reference: ref,
	})
	require.NoError(t, err)
	return out
}

// seeded imports the statement above with a ledger record for every line
// except the bank charge.
func seeded(t *testing.T) (fixture, map[string]model.BankTransaction) {
	t.Helper()
	f := newFixture(t)
	f.payment(t, "Amina Wanjiru", "15000", day(6), "QAB12XY")
	f.payment(t, "Bakari Otieno", "8500", day(7), "")
	f.payout(t, model.PayoutPurchaseOrder, "Uniforms Ltd", "42000", day(9), "FT25009")
	f.payout(t, model.PayoutClaim, "J Mwangi", "2350.50", day(13), "CLM-2025-01-0002")

	res, err := f.svc.Import(context.Background(), "KCB-MAIN", "standard", strings.NewReader(statement))
	require.NoError(t, err)
	require.Equal(t, 5, res.Inserted)

	all, err := f.svc.List(context.Background(), Filter{})
	require.NoError(t, err)
	byDesc := make(map[string]model.BankTransaction)
	for _, bt := range all.Items {
		byDesc[strings.Fields(bt.Description)[0]] = bt
	}
	return f, byDesc
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.Import(ctx, " KCB-MAIN ", "STANDARD", strings.NewReader(statement))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.BatchID, "imp_"))
	assert.Equal(t, ImportResult{BatchID: res.BatchID, Total: 5, Inserted: 5, Duplicates: 0}, res)

	again, err := f.svc.Import(ctx, "KCB-MAIN", "standard", strings.NewReader(statement))
	require.NoError(t, err)
	assert.Equal(t, 5, again.Duplicates)
	assert.Equal(t, 0, again.Inserted)
	assert.NotEqual(t, res.BatchID, again.BatchID)

	other, err := f.svc.Import(ctx, "EQUITY-FEES", "standard", strings.NewReader(statement))
	require.NoError(t, err)
	assert.Equal(t, 5, other.Inserted, "the same lines on another account are distinct")

	list, err := f.svc.List(ctx, Filter{AccountCode: "KCB-MAIN"})
	require.NoError(t, err)
	require.Equal(t, 5, list.Pagination.Total)
	first := list.Items[0]
	assert.Equal(t, "2025-01-14", first.PostedOn.String())
	assert.Equal(t, model.Debit, first.Direction)
	assert.Equal(t, "2350.50", first.Amount.StringFixed(2))
	assert.Equal(t, model.BankTxUnmatched, first.Status)
	assert.Equal(t, res.BatchID, first.BatchID)

	entries, err := f.audit.Read()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "import", entries[0].Action)
	assert.Equal(t, auditlog.SystemActor, entries[0].Actor)
}

func TestImport_IdenticalChargesOnOneDay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	charges := `date,description,amount,reference,balance
2025-01-06,BANK CHARGES,-50.00,,1000.00
2025-01-06,BANK CHARGES,-50.00,,950.00
`
	res, err := f.svc.Import(ctx, "KCB-MAIN", "standard", strings.NewReader(charges))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 0, res.Duplicates)

	again, err := f.svc.Import(ctx, "KCB-MAIN", "standard", strings.NewReader(charges))
	require.NoError(t, err)
	assert.Equal(t, 0, again.Inserted)
	assert.Equal(t, 2, again.Duplicates)
}

func TestImport_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Import(ctx, "", "quicken", strings.NewReader(statement))
	var verrs apperr.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 2)

	_, err = f.svc.Import(ctx, "KCB-MAIN", "standard", strings.NewReader("date,description,amount,reference,balance\nnot-a-date,x,1,,1\n"))
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestList_Filters(t *testing.T) {
	ctx := context.Background()
	f, _ := seeded(t)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"debits", Filter{Direction: model.Debit}, 3},
		{"credits", Filter{Direction: model.Credit}, 2},
		{"search", Filter{Q: "mwangi"}, 1},
		{"search reference", Filter{Q: "ft25009"}, 1},
		{"date range", Filter{From: day(7), To: day(10)}, 3},
		{"unknown account", Filter{AccountCode: "NONE"}, 0},
		{"page", Filter{Page: store.Page{Limit: 2}}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Pagination.Total)
		})
	}
}

func TestCandidates(t *testing.T) {
	ctx := context.Background()
	f, lines := seeded(t)

	cands, err := f.svc.Candidates(ctx, lines["MPESA"].ID)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, model.RecordPayment, cands[0].RecordType)
	assert.Equal(t, "PAY-2025-01-0001", cands[0].Number)
	assert.Equal(t, "Amina Wanjiru", cands[0].Party)
	assert.Equal(t, "1.00", cands[0].Confidence.StringFixed(2))

	cands, err = f.svc.Candidates(ctx, lines["STAFF"].ID)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, 1, cands[0].DaysApart)
	assert.Equal(t, "0.99", cands[0].Confidence.StringFixed(2))

	cands, err = f.svc.Candidates(ctx, lines["BANK"].ID)
	require.NoError(t, err)
	assert.Empty(t, cands)

	_, err = f.svc.Candidates(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAutoMatch(t *testing.T) {
	ctx := context.Background()
	f, lines := seeded(t)

	run, err := f.svc.AutoMatch(ctx, AutoMatchParams{AccountCode: "KCB-MAIN"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(run.ID, "run_"))
	assert.Equal(t, 5, run.Processed)
	assert.Equal(t, 4, run.AutoMatched)
	assert.Equal(t, 0, run.NeedsReview)
	assert.Equal(t, 1, run.Unmatched)

	bt, err := f.svc.Get(ctx, lines["TRANSFER"].ID)
	require.NoError(t, err)
	assert.Equal(t, model.BankTxMatched, bt.Status)
	require.NotNil(t, bt.Match)
	assert.Equal(t, model.MatchAuto, bt.Match.Method)
	assert.Equal(t, model.RecordPayout, bt.Match.RecordType)
	assert.Equal(t, run.ID, bt.Match.RunID)

	matched := true
	outs, err := f.payouts.List(ctx, payouts.Filter{Matched: &matched})
	require.NoError(t, err)
	assert.Equal(t, 2, outs.Pagination.Total)

	pays, err := f.invoices.ListPayments(ctx, invoicing.PaymentFilter{Matched: &matched})
	require.NoError(t, err)
	assert.Equal(t, 2, pays.Pagination.Total)

	again, err := f.svc.AutoMatch(ctx, AutoMatchParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, again.Processed)
	assert.Equal(t, 0, again.AutoMatched)

	runs, err := f.svc.ListRuns(ctx, store.Page{})
	require.NoError(t, err)
	require.Equal(t, 2, runs.Pagination.Total)
	assert.Equal(t, again.ID, runs.Items[0].ID)
	assert.Equal(t, "KCB-MAIN", runs.Items[1].AccountCode)

	entries, err := f.audit.Read()
	require.NoError(t, err)
	var autos, summaries int
	for _, e := range entries {
		switch e.Action {
		case "auto_match":
			autos++
		case "auto_match_run":
			summaries++
		}
	}
	assert.Equal(t, 4, autos)
	assert.Equal(t, 2, summaries)
}

func TestAutoMatch_AmbiguousNeedsReview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.payment(t, "Amina Wanjiru", "3000", day(20), "")
	f.payment(t, "Bakari Otieno", "3000", day(20), "")

	_, err := f.svc.Import(ctx, "KCB-MAIN", "standard",
		strings.NewReader("date,description,amount,reference,balance\n2025-01-20,CASH DEPOSIT,3000.00,,3000.00\n"))
	require.NoError(t, err)

	run, err := f.svc.AutoMatch(ctx, AutoMatchParams{From: day(1), To: day(31)})
	require.NoError(t, err)
	assert.Equal(t, 1, run.Processed)
	assert.Equal(t, 0, run.AutoMatched)
	assert.Equal(t, 1, run.NeedsReview)
}

func TestAutoMatch_ConsumedRecordsNotReused(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.payment(t, "Amina Wanjiru", "3000", day(20), "")

	_, err := f.svc.Import(ctx, "KCB-MAIN", "standard", strings.NewReader(
		"date,description,amount,reference,balance\n2025-01-20,CASH DEPOSIT,3000.00,,3000.00\n2025-01-21,CASH DEPOSIT,3000.00,,6000.00\n"))
	require.NoError(t, err)

	run, err := f.svc.AutoMatch(ctx, AutoMatchParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, run.AutoMatched)
	assert.Equal(t, 1, run.Unmatched)

	unmatched, err := f.svc.List(ctx, Filter{Status: model.BankTxUnmatched})
	require.NoError(t, err)
	require.Len(t, unmatched.Items, 1)
	assert.Equal(t, "2025-01-21", unmatched.Items[0].PostedOn.String())
}

func TestMatchManual(t *testing.T) {
	ctx := auditlog.WithActor(context.Background(), "bursar")
	f, lines := seeded(t)

	outs, err := f.payouts.List(ctx, payouts.Filter{SourceType: model.PayoutPurchaseOrder})
	require.NoError(t, err)
	uniforms := outs.Items[0]

	_, err = f.svc.MatchManual(ctx, lines["BANK"].ID, ManualMatch{RecordType: model.RecordPayment, RecordID: uniforms.ID})
	assert.ErrorIs(t, err, apperr.ErrInvalid, "debit lines settle payouts only")

	_, err = f.svc.MatchManual(ctx, lines["BANK"].ID, ManualMatch{RecordType: model.RecordPayout, RecordID: "missing"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	bt, err := f.svc.MatchManual(ctx, lines["BANK"].ID, ManualMatch{RecordType: model.RecordPayout, RecordID: uniforms.ID, Note: "split charge"})
	require.NoError(t, err)
	assert.Equal(t, model.BankTxMatched, bt.Status)
	require.NotNil(t, bt.Match)
	assert.Equal(t, model.MatchManual, bt.Match.Method)
	assert.Equal(t, "41850.00", bt.Match.Difference.StringFixed(2))
	assert.Equal(t, "split charge", bt.Match.Note)

	_, err = f.svc.MatchManual(ctx, lines["BANK"].ID, ManualMatch{RecordType: model.RecordPayout, RecordID: uniforms.ID})
	assert.ErrorIs(t, err, apperr.ErrConflict, "bank line already matched")

	_, err = f.svc.MatchManual(ctx, lines["TRANSFER"].ID, ManualMatch{RecordType: model.RecordPayout, RecordID: uniforms.ID})
	assert.ErrorIs(t, err, apperr.ErrConflict, "payout already matched")

	cands, err := f.svc.Candidates(ctx, lines["TRANSFER"].ID)
	require.NoError(t, err)
	assert.Empty(t, cands)

	bt, err = f.svc.Unmatch(ctx, lines["BANK"].ID)
	require.NoError(t, err)
	assert.Equal(t, model.BankTxUnmatched, bt.Status)
	assert.Nil(t, bt.Match)

	_, err = f.svc.Unmatch(ctx, lines["BANK"].ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.MatchManual(ctx, lines["TRANSFER"].ID, ManualMatch{RecordType: model.RecordPayout, RecordID: uniforms.ID})
	require.NoError(t, err)

	entries, err := f.audit.Read()
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Equal(t, "match", last.Action)
	assert.Equal(t, "bursar", last.Actor)
	assert.Equal(t, lines["TRANSFER"].ID, last.Subject)
}

func TestMatchManual_Validation(t *testing.T) {
	f, lines := seeded(t)
	_, err := f.svc.MatchManual(context.Background(), lines["BANK"].ID, ManualMatch{RecordType: "invoice"})
	var verrs apperr.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 2)
}

func TestSetIgnored(t *testing.T) {
	ctx := context.Background()
	f, lines := seeded(t)
	charge := lines["BANK"].ID

	bt, err := f.svc.SetIgnored(ctx, charge, true)
	require.NoError(t, err)
	assert.Equal(t, model.BankTxIgnored, bt.Status)

	cands, err := f.svc.Candidates(ctx, charge)
	require.NoError(t, err)
	assert.Empty(t, cands)

	outs, err := f.payouts.List(ctx, payouts.Filter{SourceType: model.PayoutClaim})
	require.NoError(t, err)
	_, err = f.svc.MatchManual(ctx, charge, ManualMatch{RecordType: model.RecordPayout, RecordID: outs.Items[0].ID})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	run, err := f.svc.AutoMatch(ctx, AutoMatchParams{})
	require.NoError(t, err)
	assert.Equal(t, 4, run.Processed, "ignored lines are skipped")

	bt, err = f.svc.SetIgnored(ctx, charge, false)
	require.NoError(t, err)
	assert.Equal(t, model.BankTxUnmatched, bt.Status)

	_, err = f.svc.SetIgnored(ctx, lines["MPESA"].ID, true)
	assert.ErrorIs(t, err, apperr.ErrInvalidState, "matched lines cannot be ignored")
}
