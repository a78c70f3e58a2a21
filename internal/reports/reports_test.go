package reports

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitriyabr/duma-erp-sub003/internal/accounts"
	"github.com/dmitriyabr/duma-erp-sub003/internal/claims"
	"github.com/dmitriyabr/duma-erp-sub003/internal/inventory"
	"github.com/dmitriyabr/duma-erp-sub003/internal/invoicing"
	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
	"github.com/dmitriyabr/duma-erp-sub003/internal/reconcile"
	"github.com/dmitriyabr/duma-erp-sub003/internal/store/storetest"
)

var cmpOpts = cmp.Options{
	cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) }),
	cmp.Comparer(func(a, b model.Date) bool { return a.Equal(b.Time) }),
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(y int, m time.Month, d int) model.Date { return model.NewDate(y, m, d) }

var asOf = date(2025, time.March, 31)

type ids struct {
	invA, invB, invC string
	shirt, socks     string
}

// seed builds a small school ledger: three outstanding invoices, one draft,
// stocked items, claims in several states and a partly reconciled statement.
func seed(t *testing.T) (*Service, ids) {
	t.Helper()
	ctx := context.Background()
	db := storetest.New(t)
	_, err := accounts.NewService(db, nil).Seed(ctx)
	require.NoError(t, err)
	stock := inventory.NewService(db, nil)
	inv := invoicing.NewService(db, stock, nil)
	var out ids

	invoice := func(billTo, amount string, issue, due model.Date, issueIt bool) string {
		got, err := inv.Create(ctx, invoicing.Params{
			StudentRef: "ADM-" + strings.ToUpper(billTo[:3]), BillTo: billTo, IssueDate: issue, DueDate: due,
			Lines: []invoicing.LineParams{{Description: "Tuition", AccountID: accounts.AccountTuitionFees, Quantity: dec("1"), UnitPrice: dec(amount)}},
		})
		require.NoError(t, err)
		if issueIt {
			_, err = inv.Issue(ctx, got.ID)
			require.NoError(t, err)
		}
		return got.ID
	}
	out.invA = invoice("Amina Wanjiru", "15000", date(2025, time.January, 2), date(2025, time.January, 31), true)
	out.invB = invoice("Bakari Otieno", "8500", date(2025, time.March, 1), date(2025, time.April, 15), true)
	out.invC = invoice("Chebet Korir", "3000", date(2024, time.November, 1), date(2024, time.November, 30), true)
	invoice("Draft Only", "999", date(2025, time.March, 2), date(2025, time.March, 30), false)

	_, err = inv.RecordPayment(ctx, out.invA, invoicing.PaymentParams{
		Amount: dec("5000"), PaidOn: date(2025, time.February, 10), Method: "mpesa", Reference: "QXZ991",
	})
	require.NoError(t, err)

	item := func(sku, qty, cost, reorder string) string {
		it, err := stock.CreateItem(ctx, inventory.ItemParams{SKU: sku, Name: sku, ReorderLevel: dec(reorder)})
		require.NoError(t, err)
		_, err = stock.StockIn(ctx, db, it.ID, dec(qty), dec(cost), model.RefGoodsReceipt, "grn", "")
		require.NoError(t, err)
		return it.ID
	}
	out.shirt = item("SHIRT-M", "10", "450", "2")
	out.socks = item("SOCKS", "1", "80.50", "2")
	retired := item("OLD-TIE", "4", "100", "0")
	_, err = stock.SetItemActive(ctx, retired, false)
	require.NoError(t, err)

	cl := claims.NewService(db, nil, nil)
	claim := func(account int, amount string, on model.Date) model.Claim {
		c, err := cl.Submit(ctx, claims.Params{Claimant: "J Mwangi", AccountID: account, Description: "expense", Amount: dec(amount), IncurredOn: on})
		require.NoError(t, err)
		return c
	}
	claim(accounts.AccountTravel, "1200", date(2025, time.March, 3))
	meals := claim(accounts.AccountMeals, "300", date(2025, time.February, 20))
	_, err = cl.Approve(ctx, meals.ID, claims.Review{Reviewer: "bursar"})
	require.NoError(t, err)
	rejected := claim(accounts.AccountTravel, "500", date(2025, time.February, 21))
	_, err = cl.Reject(ctx, rejected.ID, claims.Review{Reviewer: "bursar", Note: "duplicate"})
	require.NoError(t, err)
	claim(accounts.AccountTravel, "75", date(2024, time.December, 5))

	rec := reconcile.NewService(db, nil, reconcile.DefaultRules(), nil, nil)
	_, err = rec.Import(ctx, "KCB-MAIN", "standard", strings.NewReader(`date,description,amount,reference,balance
2025-02-10,MPESA QXZ991,5000.00,,5000.00
2025-02-28,BANK CHARGES,-150.00,,4850.00
2025-04-02,LATE DEPOSIT,700.00,,5550.00
`))
	require.NoError(t, err)
	_, err = rec.AutoMatch(ctx, reconcile.AutoMatchParams{})
	require.NoError(t, err)

	return NewService(db, nil), out
}

func TestBucketFor(t *testing.T) {
	tests := map[int]string{-5: BucketCurrent, 0: BucketCurrent, 1: Bucket1to30, 30: Bucket1to30, 31: Bucket31to60,
		60: Bucket31to60, 61: Bucket61to90, 90: Bucket61to90, 91: BucketOver90}
	for days, want := range tests {
		assert.Equal(t, want, BucketFor(days), "days=%d", days)
	}
}

func TestInvoiceAging(t *testing.T) {
	svc, ids := seed(t)
	got, err := svc.InvoiceAging(context.Background(), asOf)
	require.NoError(t, err)

	want := AgingReport{
		AsOf: asOf,
		Rows: []AgingRow{
			{InvoiceID: ids.invC, Number: "INV-2024-11-0001", StudentRef: "ADM-CHE", BillTo: "Chebet Korir",
				DueDate: date(2024, time.November, 30), DaysOverdue: 121, Bucket: BucketOver90, Balance: dec("3000")},
			{InvoiceID: ids.invA, Number: "INV-2025-01-0001", StudentRef: "ADM-AMI", BillTo: "Amina Wanjiru",
				DueDate: date(2025, time.January, 31), DaysOverdue: 59, Bucket: Bucket31to60, Balance: dec("10000")},
			{InvoiceID: ids.invB, Number: "INV-2025-03-0001", StudentRef: "ADM-BAK", BillTo: "Bakari Otieno",
				DueDate: date(2025, time.April, 15), DaysOverdue: 0, Bucket: BucketCurrent, Balance: dec("8500")},
		},
		Buckets: []BucketTotal{
			{Bucket: BucketCurrent, Count: 1, Amount: dec("8500")},
			{Bucket: Bucket1to30, Amount: decimal.Zero},
			{Bucket: Bucket31to60, Count: 1, Amount: dec("10000")},
			{Bucket: Bucket61to90, Amount: decimal.Zero},
			{Bucket: BucketOver90, Count: 1, Amount: dec("3000")},
		},
		Total: dec("21500"),
	}
	if diff := cmp.Diff(want, got, cmpOpts); diff != "" {
		t.Errorf("InvoiceAging mismatch (-want +got):\n%s", diff)
	}
}

func TestInvoiceAging_ExcludesLaterInvoices(t *testing.T) {
	svc, _ := seed(t)
	got, err := svc.InvoiceAging(context.Background(), date(2025, time.February, 1))
	require.NoError(t, err)
	require.Len(t, got.Rows, 2)
	assert.Equal(t, 1, got.Rows[1].DaysOverdue)
	assert.Equal(t, Bucket1to30, got.Rows[1].Bucket)
}

func TestReconciliation(t *testing.T) {
	svc, _ := seed(t)
	got, err := svc.Reconciliation(context.Background(), ReconFilter{AccountCode: "KCB-MAIN", To: asOf})
	require.NoError(t, err)

	want := ReconReport{
		AccountCode: "KCB-MAIN",
		To:          asOf,
		Lines: []StatusLine{
			{Status: model.BankTxUnmatched, Direction: model.Credit, Amount: decimal.Zero},
			{Status: model.BankTxUnmatched, Direction: model.Debit, Count: 1, Amount: dec("150")},
			{Status: model.BankTxMatched, Direction: model.Credit, Count: 1, Amount: dec("5000")},
			{Status: model.BankTxMatched, Direction: model.Debit, Amount: decimal.Zero},
			{Status: model.BankTxIgnored, Direction: model.Credit, Amount: decimal.Zero},
			{Status: model.BankTxIgnored, Direction: model.Debit, Amount: decimal.Zero},
		},
		UnmatchedPayments: OpenRecords{Amount: decimal.Zero},
		UnmatchedPayouts:  OpenRecords{Amount: decimal.Zero},
	}
	if diff := cmp.Diff(want, got, cmpOpts); diff != "" {
		t.Errorf("Reconciliation mismatch (-want +got):\n%s", diff)
	}
}

func TestInventoryValuation(t *testing.T) {
	svc, ids := seed(t)
	got, err := svc.InventoryValuation(context.Background())
	require.NoError(t, err)

	want := Valuation{
		Rows: []ValuationRow{
			{ItemID: ids.shirt, SKU: "SHIRT-M", Name: "SHIRT-M", QtyOnHand: dec("10"), UnitCost: dec("450"), Value: dec("4500")},
			{ItemID: ids.socks, SKU: "SOCKS", Name: "SOCKS", QtyOnHand: dec("1"), UnitCost: dec("80.50"), Value: dec("80.50"), LowStock: true},
		},
		Total:    dec("4580.50"),
		LowStock: 1,
	}
	if diff := cmp.Diff(want, got, cmpOpts); diff != "" {
		t.Errorf("InventoryValuation mismatch (-want +got):\n%s", diff)
	}
}

func TestClaimsSummary(t *testing.T) {
	svc, _ := seed(t)
	got, err := svc.ClaimsSummary(context.Background(), ClaimsFilter{From: date(2025, time.January, 1), To: asOf})
	require.NoError(t, err)

	want := ClaimsReport{
		From: date(2025, time.January, 1),
		To:   asOf,
		Rows: []ClaimsRow{
			{AccountID: accounts.AccountTravel, AccountName: "Travel", Status: model.ClaimSubmitted, Count: 1, Amount: dec("1200")},
			{AccountID: accounts.AccountTravel, AccountName: "Travel", Status: model.ClaimRejected, Count: 1, Amount: dec("500")},
			{AccountID: accounts.AccountMeals, AccountName: "Meals & Catering", Status: model.ClaimApproved, Count: 1, Amount: dec("300")},
		},
		Total: dec("1500"),
	}
	if diff := cmp.Diff(want, got, cmpOpts); diff != "" {
		t.Errorf("ClaimsSummary mismatch (-want +got):\n%s", diff)
	}
}

func TestDashboard(t *testing.T) {
	ctx := context.Background()
	svc, _ := seed(t)
	yearStart := date(2025, time.January, 1)

	got, err := svc.Dashboard(ctx, asOf, yearStart)
	require.NoError(t, err)

	aging, err := svc.InvoiceAging(ctx, asOf)
	require.NoError(t, err)
	recon, err := svc.Reconciliation(ctx, ReconFilter{To: asOf})
	require.NoError(t, err)
	stock, err := svc.InventoryValuation(ctx)
	require.NoError(t, err)
	cl, err := svc.ClaimsSummary(ctx, ClaimsFilter{From: yearStart, To: asOf})
	require.NoError(t, err)

	want := Dashboard{AsOf: asOf, Aging: aging, Reconciliation: recon, Inventory: stock, Claims: cl}
	if diff := cmp.Diff(want, got, cmpOpts); diff != "" {
		t.Errorf("Dashboard mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteCSV(t *testing.T) {
	svc, _ := seed(t)
	aging, err := svc.InvoiceAging(context.Background(), asOf)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, aging))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "number,student_ref,bill_to,due_date,days_overdue,bucket,balance", lines[0])
	assert.Equal(t, "INV-2024-11-0001,ADM-CHE,Chebet Korir,2024-11-30,121,90+,3000.00", lines[1])

	valuation, err := svc.InventoryValuation(context.Background())
	require.NoError(t, err)
	buf.Reset()
	require.NoError(t, WriteCSV(&buf, valuation))
	assert.Contains(t, buf.String(), "SOCKS,SOCKS,1,80.50,80.50,true")

	tables := []Table{ReconReport{}, ClaimsReport{}}
	for _, tb := range tables {
		buf.Reset()
		require.NoError(t, WriteCSV(&buf, tb))
		assert.NotEmpty(t, buf.String())
	}
}
