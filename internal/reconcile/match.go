package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dmitriyabr/duma-erp-sub003/internal/apperr"
	"github.com/dmitriyabr/duma-erp-sub003/internal/auditlog"
	"github.com/dmitriyabr/duma-erp-sub003/internal/id"
	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
	"github.com/dmitriyabr/duma-erp-sub003/internal/store"
)

// AutoMatchParams limit an auto-match run. Zero values mean no limit.
type AutoMatchParams struct {
	AccountCode string     `json:"accountCode"`
	From        model.Date `json:"from"`
	To          model.Date `json:"to"`
}

// ManualMatch names the record an operator links a bank line to.
type ManualMatch struct {
	RecordType model.RecordType `json:"recordType"`
	RecordID   string           `json:"recordId"`
	Note       string           `json:"note"`
}

// Candidates returns the scored records that could settle an unmatched bank line.
// Matched and ignored lines have none.
func (s *Service) Candidates(ctx context.Context, bankTxID string) ([]model.Candidate, error) {
	bt, err := s.Get(ctx, bankTxID)
	if err != nil {
		return nil, err
	}
	if bt.Status != model.BankTxUnmatched {
		return []model.Candidate{}, nil
	}
	return s.candidates(ctx, s.db, bt, nil)
}

func (s *Service) candidates(ctx context.Context, q store.Querier, bt model.BankTransaction, consumed map[string]bool) ([]model.Candidate, error) {
	window := s.rules.DateWindowDays
	recs, err := openRecords(ctx, q, model.RecordTypeFor(bt.Direction), bt.PostedOn.AddDays(-window), bt.PostedOn.AddDays(window))
	if err != nil {
		return nil, err
	}
	if len(consumed) > 0 {
		open := recs[:0]
		for _, r := range recs {
			if !consumed[r.key()] {
				open = append(open, r)
			}
		}
		recs = open
	}
	return rank(bt, recs, s.rules), nil
}

// AutoMatch scores every unmatched bank line in scope, oldest first, and
// links each to its best candidate when the result is unambiguous. The run
// is stored and returned.
func (s *Service) AutoMatch(ctx context.Context, p AutoMatchParams) (model.ReconRun, error) {
	run := model.ReconRun{
		ID:          id.NewSortable(id.PrefixReconRun),
		AccountCode: strings.TrimSpace(p.AccountCode),
		StartedAt:   time.Now().UTC(),
	}
	var entries []auditlog.Entry
	actor := auditlog.ActorFrom(ctx)

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var w store.Where
		w.Add("status = ?", model.BankTxUnmatched)
		if run.AccountCode != "" {
			w.Add("account_code = ?", run.AccountCode)
		}
		if !p.From.IsZero() {
			w.Add("posted_on >= ?", p.From)
		}
		if !p.To.IsZero() {
			w.Add("posted_on <= ?", p.To)
		}
		txs, err := store.QueryAll(ctx, tx, scanBankTxRows, selectBankTx+w.SQL()+" ORDER BY posted_on, id", w.Args()...)
		if err != nil {
			return fmt.Errorf("reading unmatched lines: %w", err)
		}

		consumed := make(map[string]bool)
		for _, bt := range txs {
			run.Processed++
			cands, err := s.candidates(ctx, tx, bt, consumed)
			if err != nil {
				return err
			}
			switch decide(cands, s.rules) {
			case outcomeAccept:
				best := cands[0]
				m := model.Match{
					ID:                id.New(),
					BankTransactionID: bt.ID,
					RecordType:        best.RecordType,
					RecordID:          best.RecordID,
					Amount:            best.Amount,
					Difference:        best.Difference,
					Confidence:        best.Confidence,
					Method:            model.MatchAuto,
					RunID:             run.ID,
				}
				if err := s.insertMatch(ctx, tx, m); err != nil {
					return err
				}
				consumed[string(best.RecordType)+":"+best.RecordID] = true
				run.AutoMatched++
				entries = append(entries, auditlog.Entry{
					Actor: actor, Action: "auto_match", Subject: bt.ID, Ref: run.ID,
					Details: fmt.Sprintf("%s %s %s -> %s %s (confidence %s)", bt.PostedOn, bt.Direction,
						bt.Amount.StringFixed(2), best.RecordType, best.Number, best.Confidence.StringFixed(2)),
				})
			case outcomeReview:
				run.NeedsReview++
			default:
				run.Unmatched++
			}
		}

		run.CompletedAt = time.Now().UTC()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO recon_runs (id, account_code, processed, auto_matched, needs_review, unmatched, started_at, completed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, run.AccountCode, run.Processed, run.AutoMatched, run.NeedsReview, run.Unmatched,
			store.FormatTime(run.StartedAt), store.FormatTime(run.CompletedAt))
		if err != nil {
			return fmt.Errorf("saving run: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.ReconRun{}, err
	}

	entries = append(entries, auditlog.Entry{
		Actor: actor, Action: "auto_match_run", Subject: run.ID, Ref: run.AccountCode,
		Details: fmt.Sprintf("processed %d, matched %d, review %d, unmatched %d",
			run.Processed, run.AutoMatched, run.NeedsReview, run.Unmatched),
	})
	if err := s.audit.Append(entries...); err != nil {
		s.log.Warn("writing audit log", zap.String("action", "auto_match_run"), zap.Error(err))
	}
	s.log.Info("auto-match finished",
		zap.String("run", run.ID),
		zap.Int("processed", run.Processed),
		zap.Int("matched", run.AutoMatched),
		zap.Int("review", run.NeedsReview),
		zap.Int("unmatched", run.Unmatched))
	return run, nil
}

// MatchManual links a bank line to a record chosen by an operator. The
// amount tolerance is not enforced; the difference is stored with the match.
func (s *Service) MatchManual(ctx context.Context, bankTxID string, p ManualMatch) (model.BankTransaction, error) {
	p.RecordID = strings.TrimSpace(p.RecordID)
	var errs apperr.ValidationErrors
	if p.RecordType != model.RecordPayment && p.RecordType != model.RecordPayout {
		errs.Add("recordType", "one_of", "record type must be payment or payout")
	}
	if p.RecordID == "" {
		errs.Add("recordId", "required", "record id is required")
	}
	if err := errs.Err(); err != nil {
		return model.BankTransaction{}, err
	}

	var rec record
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		bt, err := getBankTx(ctx, tx, bankTxID)
		if err != nil {
			return err
		}
		switch bt.Status {
		case model.BankTxIgnored:
			return apperr.InvalidState("bank transaction", bt.ID, string(bt.Status), "match")
		case model.BankTxMatched:
			return fmt.Errorf("%w: bank transaction %s is already matched", apperr.ErrConflict, bt.ID)
		}
		if want := model.RecordTypeFor(bt.Direction); p.RecordType != want {
			var errs apperr.ValidationErrors
			errs.Add("recordType", "direction", "a %s line can only be matched to a %s", bt.Direction, want)
			return errs
		}

		var matched bool
		rec, matched, err = lookupRecord(ctx, tx, p.RecordType, p.RecordID)
		if err != nil {
			return err
		}
		if matched {
			return fmt.Errorf("%w: %s %s is already matched", apperr.ErrConflict, rec.Type, rec.Number)
		}

		diff := bt.Amount.Sub(rec.Amount).Abs()
		return s.insertMatch(ctx, tx, model.Match{
			ID:                id.New(),
			BankTransactionID: bt.ID,
			RecordType:        rec.Type,
			RecordID:          rec.ID,
			Amount:            rec.Amount,
			Difference:        diff,
			Confidence:        confidence(diff, absDays(bt.PostedOn, rec.Date), referenceHit(bt, rec), s.rules),
			Method:            model.MatchManual,
			Note:              strings.TrimSpace(p.Note),
		})
	})
	if err != nil {
		return model.BankTransaction{}, err
	}
	s.record(ctx, "match", fmt.Sprintf("matched to %s %s", rec.Type, rec.Number), bankTxID, rec.ID)
	return s.Get(ctx, bankTxID)
}

func (s *Service) insertMatch(ctx context.Context, tx *sql.Tx, m model.Match) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO bank_matches (id, bank_transaction_id, record_type, record_id, amount, difference, confidence, method, note, run_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.BankTransactionID, m.RecordType, m.RecordID, m.Amount, m.Difference, m.Confidence,
		m.Method, m.Note, m.RunID, store.Now())
	if s.db.Dialect.IsUniqueViolation(err) {
		return fmt.Errorf("%w: bank transaction or %s %s is already matched", apperr.ErrConflict, m.RecordType, m.RecordID)
	}
	if err != nil {
		return fmt.Errorf("inserting match: %w", err)
	}
	return setBankTxStatus(ctx, tx, m.BankTransactionID, model.BankTxMatched)
}

func setBankTxStatus(ctx context.Context, q store.Querier, bankTxID string, status model.BankTxStatus) error {
	if _, err := q.ExecContext(ctx, `UPDATE bank_transactions SET status = ? WHERE id = ?`, status, bankTxID); err != nil {
		return fmt.Errorf("setting bank transaction %s status: %w", bankTxID, err)
	}
	return nil
}

// Unmatch removes the match of a bank line and returns it to unmatched.
func (s *Service) Unmatch(ctx context.Context, bankTxID string) (model.BankTransaction, error) {
	var m model.Match
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		bt, err := getBankTx(ctx, tx, bankTxID)
		if err != nil {
			return err
		}
		if bt.Match == nil {
			return apperr.NotFound("match for bank transaction", bankTxID)
		}
		m = *bt.Match
		if _, err := tx.ExecContext(ctx, `DELETE FROM bank_matches WHERE id = ?`, m.ID); err != nil {
			return fmt.Errorf("deleting match: %w", err)
		}
		return setBankTxStatus(ctx, tx, bankTxID, model.BankTxUnmatched)
	})
	if err != nil {
		return model.BankTransaction{}, err
	}
	s.record(ctx, "unmatch", fmt.Sprintf("unmatched %s %s (%s)", m.RecordType, m.RecordID, m.Method), bankTxID, m.RecordID)
	return s.Get(ctx, bankTxID)
}

// SetIgnored excludes a bank line from matching, or restores it.
func (s *Service) SetIgnored(ctx context.Context, bankTxID string, ignored bool) (model.BankTransaction, error) {
	to := model.BankTxUnmatched
	if ignored {
		to = model.BankTxIgnored
	}
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		bt, err := getBankTx(ctx, tx, bankTxID)
		if err != nil {
			return err
		}
		if bt.Status == model.BankTxMatched {
			return apperr.InvalidState("bank transaction", bt.ID, string(bt.Status), "change ignore flag of")
		}
		return setBankTxStatus(ctx, tx, bankTxID, to)
	})
	if err != nil {
		return model.BankTransaction{}, err
	}
	s.record(ctx, "set_status", "status "+string(to), bankTxID, "")
	return s.Get(ctx, bankTxID)
}
