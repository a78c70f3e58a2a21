package reconcile

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitriyabr/duma-erp-sub003/internal/config"
	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(d int) model.Date { return model.NewDate(2025, time.January, d) }

func credit(amount string, on int, desc string) model.BankTransaction {
	return model.BankTransaction{ID: "bt", PostedOn: day(on), Description: desc, Amount: dec(amount), Direction: model.Credit}
}

func payment(recID, amount string, on int) record {
	return record{Type: model.RecordPayment, ID: recID, Number: "PAY-2025-01-00" + recID, DocNo: "INV-2025-01-00" + recID,
		Party: "Amina Wanjiru", Amount: dec(amount), Date: day(on)}
}

func TestRulesFrom(t *testing.T) {
	r := RulesFrom(config.ReconciliationConfig{AmountTolerance: 1, DateWindowDays: 7, AutoConfirm: 0.9, ReviewFlag: 0.7})
	assert.Equal(t, "1.00", r.Tolerance.StringFixed(2))
	assert.Equal(t, 7, r.DateWindowDays)
	assert.True(t, r.AutoConfirm.Equal(dec("0.9")))
	assert.True(t, r.ReviewFlag.Equal(dec("0.7")))
	assert.Equal(t, r, DefaultRules())
}

func TestScore(t *testing.T) {
	rules := DefaultRules()
	tests := []struct {
		name string
		bank model.BankTransaction
		rec  record
		ok   bool
		want string
	}{
		{"exact same day with reference", credit("15000", 6, "MPESA INV-2025-01-0001"), payment("01", "15000", 6), true, "1.00"},
		{"exact same day", credit("15000", 6, "MPESA DEPOSIT"), payment("01", "15000", 6), true, "0.90"},
		{"half tolerance two days", credit("15000.50", 8, "DEPOSIT"), payment("01", "15000", 6), true, "0.72"},
		{"tolerance boundary inclusive", credit("15001", 13, "DEPOSIT"), payment("01", "15000", 6), true, "0.50"},
		{"over tolerance", credit("15001.01", 6, "DEPOSIT"), payment("01", "15000", 6), false, ""},
		{"outside window", credit("15000", 14, "DEPOSIT"), payment("01", "15000", 6), false, ""},
		{"record before posting", credit("15000", 1, "DEPOSIT"), payment("01", "15000", 6), true, "0.83"},
		{"debit line never matches a payment", model.BankTransaction{PostedOn: day(6), Amount: dec("15000"), Direction: model.Debit},
			payment("01", "15000", 6), false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := score(tt.bank, tt.rec, rules)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, c.Confidence.StringFixed(2))
				assert.Equal(t, tt.rec.Number, c.Number)
			}
		})
	}
}

func TestScore_ZeroTolerance(t *testing.T) {
	rules := DefaultRules()
	rules.Tolerance = decimal.Zero

	_, ok := score(credit("100.01", 6, ""), payment("01", "100", 6), rules)
	assert.False(t, ok)

	c, ok := score(credit("100", 6, ""), payment("01", "100", 6), rules)
	require.True(t, ok)
	assert.Equal(t, "0.90", c.Confidence.StringFixed(2))
}

func TestReferenceHit(t *testing.T) {
	rec := payment("07", "500", 6)
	rec.Reference = "QAB12XY"

	assert.True(t, referenceHit(model.BankTransaction{Description: "mpesa qab12xy"}, rec))
	assert.True(t, referenceHit(model.BankTransaction{Reference: "pay-2025-01-0007"}, rec))
	assert.True(t, referenceHit(model.BankTransaction{Description: "fees inv-2025-01-0007 term 1"}, rec))
	assert.False(t, referenceHit(model.BankTransaction{Description: "cash deposit"}, rec))
	assert.False(t, referenceHit(model.BankTransaction{Description: "anything"}, record{}))
}

func TestRank(t *testing.T) {
	bt := credit("500", 10, "DEPOSIT")
	recs := []record{
		payment("03", "500.40", 10), // 0.5 + 0.18 + 0.1
		payment("02", "500", 12),    // 0.5 + 0.3 + 0.071
		payment("01", "500", 8),     // same as 02, earlier date
		payment("04", "700", 10),    // out of tolerance
	}
	got := rank(bt, recs, DefaultRules())
	require.Len(t, got, 3)
	assert.Equal(t, []string{"01", "02", "03"}, []string{got[0].RecordID, got[1].RecordID, got[2].RecordID})
	assert.Equal(t, "0.87", got[0].Confidence.StringFixed(2))
	assert.Equal(t, "0.78", got[2].Confidence.StringFixed(2))
}

func TestDecide(t *testing.T) {
	rules := DefaultRules()
	cands := func(cs ...string) []model.Candidate {
		out := make([]model.Candidate, len(cs))
		for i, c := range cs {
			out[i] = model.Candidate{Confidence: dec(c)}
		}
		return out
	}
	tests := []struct {
		name  string
		cands []model.Candidate
		want  outcome
	}{
		{"none", nil, outcomeUnmatched},
		{"single confident", cands("0.90"), outcomeAccept},
		{"clear winner", cands("0.95", "0.93"), outcomeAccept},
		{"tie within margin", cands("0.91", "0.90"), outcomeReview},
		{"below auto confirm", cands("0.80"), outcomeReview},
		{"review boundary", cands("0.70"), outcomeReview},
		{"weak", cands("0.69"), outcomeUnmatched},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decide(tt.cands, rules))
		})
	}
}
