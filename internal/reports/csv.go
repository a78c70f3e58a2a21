package reports

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// Table is a report that can be exported as CSV.
type Table interface {
	Header() []string
	Records() [][]string
}

// WriteCSV writes t with its header row.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header()); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if err := cw.WriteAll(t.Records()); err != nil {
		return fmt.Errorf("writing rows: %w", err)
	}
	return nil
}

func (r AgingReport) Header() []string {
	return []string{"number", "student_ref", "bill_to", "due_date", "days_overdue", "bucket", "balance"}
}

func (r AgingReport) Records() [][]string {
	out := make([][]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		out = append(out, []string{
			row.Number, row.StudentRef, row.BillTo, row.DueDate.String(),
			strconv.Itoa(row.DaysOverdue), row.Bucket, row.Balance.StringFixed(2),
		})
	}
	return out
}

func (r ReconReport) Header() []string {
	return []string{"status", "direction", "count", "amount"}
}

func (r ReconReport) Records() [][]string {
	out := make([][]string, 0, len(r.Lines)+2)
	for _, l := range r.Lines {
		out = append(out, []string{string(l.Status), string(l.Direction), strconv.Itoa(l.Count), l.Amount.StringFixed(2)})
	}
	out = append(out,
		[]string{"open_payments", "CR", strconv.Itoa(r.UnmatchedPayments.Count), r.UnmatchedPayments.Amount.StringFixed(2)},
		[]string{"open_payouts", "DB", strconv.Itoa(r.UnmatchedPayouts.Count), r.UnmatchedPayouts.Amount.StringFixed(2)},
	)
	return out
}

func (v Valuation) Header() []string {
	return []string{"sku", "name", "qty_on_hand", "unit_cost", "value", "low_stock"}
}

func (v Valuation) Records() [][]string {
	out := make([][]string, 0, len(v.Rows))
	for _, row := range v.Rows {
		out = append(out, []string{
			row.SKU, row.Name, row.QtyOnHand.String(), row.UnitCost.StringFixed(2), row.Value.StringFixed(2),
			strconv.FormatBool(row.LowStock),
		})
	}
	return out
}

func (r ClaimsReport) Header() []string {
	return []string{"account_id", "account", "status", "count", "amount"}
}

func (r ClaimsReport) Records() [][]string {
	out := make([][]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		out = append(out, []string{
			strconv.Itoa(row.AccountID), row.AccountName, string(row.Status), strconv.Itoa(row.Count), row.Amount.StringFixed(2),
		})
	}
	return out
}
