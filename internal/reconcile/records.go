package reconcile

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitriyabr/duma-erp-sub003/internal/apperr"
	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
	"github.com/dmitriyabr/duma-erp-sub003/internal/store"
)

const selectPaymentRecord = `SELECT p.id, p.number, i.number, i.bill_to, p.amount, p.paid_on, p.reference
	FROM payments p JOIN invoices i ON i.id = p.invoice_id
	LEFT JOIN bank_matches m ON m.record_type = 'payment' AND m.record_id = p.id`

const selectPayoutRecord = `SELECT o.id, o.number, '', o.payee, o.amount, o.paid_on, o.reference
	FROM payouts o
	LEFT JOIN bank_matches m ON m.record_type = 'payout' AND m.record_id = o.id`

func scanRecord(typ model.RecordType) func(*sql.Rows) (record, error) {
	return func(r *sql.Rows) (record, error) {
		rec := record{Type: typ}
		return rec, r.Scan(&rec.ID, &rec.Number, &rec.DocNo, &rec.Party, &rec.Amount, &rec.Date, &rec.Reference)
	}
}

func recordQuery(typ model.RecordType) (query, alias string) {
	if typ == model.RecordPayout {
		return selectPayoutRecord, "o"
	}
	return selectPaymentRecord, "p"
}

// openRecords returns the unmatched records of typ dated within [from, to].
func openRecords(ctx context.Context, q store.Querier, typ model.RecordType, from, to model.Date) ([]record, error) {
	query, a := recordQuery(typ)
	recs, err := store.QueryAll(ctx, q, scanRecord(typ),
		query+" WHERE m.id IS NULL AND "+a+".paid_on >= ? AND "+a+".paid_on <= ? ORDER BY "+a+".paid_on, "+a+".id", from, to)
	if err != nil {
		return nil, fmt.Errorf("reading open %ss: %w", typ, err)
	}
	return recs, nil
}

// lookupRecord returns one record and whether it is already matched.
func lookupRecord(ctx context.Context, q store.Querier, typ model.RecordType, recordID string) (record, bool, error) {
	query, a := recordQuery(typ)
	recs, err := store.QueryAll(ctx, q, scanRecord(typ), query+" WHERE "+a+".id = ?", recordID)
	if err != nil {
		return record{}, false, fmt.Errorf("reading %s %s: %w", typ, recordID, err)
	}
	if len(recs) == 0 {
		return record{}, false, apperr.NotFound(string(typ), recordID)
	}
	matched, err := store.Exists(ctx, q, `SELECT 1 FROM bank_matches WHERE record_type = ? AND record_id = ?`, typ, recordID)
	if err != nil {
		return record{}, false, fmt.Errorf("checking %s %s: %w", typ, recordID, err)
	}
	return recs[0], matched, nil
}
