package reconcile

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dmitriyabr/duma-erp-sub003/internal/config"
	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
)

var (
	weightBase   = decimal.RequireFromString("0.5")
	weightAmount = decimal.RequireFromString("0.3")
	weightDate   = decimal.RequireFromString("0.1")
	weightRef    = decimal.RequireFromString("0.1")
	tieMargin    = decimal.RequireFromString("0.01")
	one          = decimal.NewFromInt(1)
)

// Rules are the matching thresholds.
type Rules struct {
	// Tolerance is the largest accepted |bank - record| amount difference, inclusive.
	Tolerance decimal.Decimal
	// DateWindowDays is the largest accepted distance between posting and record dates.
	DateWindowDays int
	// AutoConfirm is the confidence at or above which AutoMatch accepts a candidate.
	AutoConfirm decimal.Decimal
	// ReviewFlag is the confidence at or above which an unaccepted line needs review.
	ReviewFlag decimal.Decimal
}

// RulesFrom converts the reconciliation config section.
func RulesFrom(c config.ReconciliationConfig) Rules {
	return Rules{
		Tolerance:      decimal.NewFromFloat(c.AmountTolerance).Round(2),
		DateWindowDays: c.DateWindowDays,
		AutoConfirm:    decimal.NewFromFloat(c.AutoConfirm).Round(2),
		ReviewFlag:     decimal.NewFromFloat(c.ReviewFlag).Round(2),
	}
}

// DefaultRules returns RulesFrom the default config.
func DefaultRules() Rules {
	return RulesFrom(config.Default("").Reconciliation)
}

// record is a payment or payout that could settle a bank line.
type record struct {
	Type      model.RecordType
	ID        string
	Number    string
	DocNo     string // parent document (invoice number for payments)
	Party     string
	Amount    decimal.Decimal
	Date      model.Date
	Reference string
}

func (r record) key() string { return string(r.Type) + ":" + r.ID }

// referenceHit reports whether the record's reference or document numbers
// appear in the bank line's description or reference.
func referenceHit(bt model.BankTransaction, r record) bool {
	hay := strings.ToLower(bt.Description + " " + bt.Reference)
	for _, needle := range []string{r.Reference, r.Number, r.DocNo} {
		needle = strings.ToLower(strings.TrimSpace(needle))
		if needle != "" && strings.Contains(hay, needle) {
			return true
		}
	}
	return false
}

func absDays(a, b model.Date) int {
	d := a.DaysUntil(b)
	if d < 0 {
		return -d
	}
	return d
}

// confidence scores a pairing. Components outside the rules' bounds
// contribute zero rather than a negative amount.
func confidence(diff decimal.Decimal, days int, refHit bool, rules Rules) decimal.Decimal {
	c := weightBase
	switch {
	case diff.IsZero():
		c = c.Add(weightAmount)
	case rules.Tolerance.IsPositive() && diff.LessThan(rules.Tolerance):
		c = c.Add(weightAmount.Mul(one.Sub(diff.Div(rules.Tolerance))))
	}
	switch {
	case days == 0:
		c = c.Add(weightDate)
	case days < rules.DateWindowDays:
		window := decimal.NewFromInt(int64(rules.DateWindowDays))
		c = c.Add(weightDate.Mul(one.Sub(decimal.NewFromInt(int64(days)).Div(window))))
	}
	if refHit {
		c = c.Add(weightRef)
	}
	if c.GreaterThan(one) {
		c = one
	}
	if c.IsNegative() {
		c = decimal.Zero
	}
	return c.Round(2)
}

// score returns the candidate for r, or false when r fails the direction,
// amount or date rules for bt.
func score(bt model.BankTransaction, r record, rules Rules) (model.Candidate, bool) {
	if r.Type != model.RecordTypeFor(bt.Direction) {
		return model.Candidate{}, false
	}
	diff := bt.Amount.Sub(r.Amount).Abs()
	if diff.GreaterThan(rules.Tolerance) {
		return model.Candidate{}, false
	}
	days := absDays(bt.PostedOn, r.Date)
	if days > rules.DateWindowDays {
		return model.Candidate{}, false
	}
	return model.Candidate{
		RecordType: r.Type,
		RecordID:   r.ID,
		Number:     r.Number,
		Party:      r.Party,
		Amount:     r.Amount,
		Date:       r.Date,
		Reference:  r.Reference,
		Difference: diff,
		DaysApart:  days,
		Confidence: confidence(diff, days, referenceHit(bt, r), rules),
	}, true
}

// rank scores every record against bt and orders the survivors best first.
func rank(bt model.BankTransaction, records []record, rules Rules) []model.Candidate {
	out := make([]model.Candidate, 0, len(records))
	for _, r := range records {
		if c, ok := score(bt, r, rules); ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Confidence.Equal(b.Confidence) {
			return a.Confidence.GreaterThan(b.Confidence)
		}
		if !a.Difference.Equal(b.Difference) {
			return a.Difference.LessThan(b.Difference)
		}
		if !a.Date.Equal(b.Date.Time) {
			return a.Date.Before(b.Date)
		}
		return a.RecordID < b.RecordID
	})
	return out
}

// outcome classifies a ranked candidate list for AutoMatch.
type outcome int

const (
	outcomeUnmatched outcome = iota
	outcomeReview
	outcomeAccept
)

func decide(cands []model.Candidate, rules Rules) outcome {
	if len(cands) == 0 {
		return outcomeUnmatched
	}
	best := cands[0].Confidence
	if best.GreaterThanOrEqual(rules.AutoConfirm) {
		if len(cands) == 1 || best.Sub(cands[1].Confidence).GreaterThan(tieMargin) {
			return outcomeAccept
		}
		return outcomeReview
	}
	if best.GreaterThanOrEqual(rules.ReviewFlag) {
		return outcomeReview
	}
	return outcomeUnmatched
}
