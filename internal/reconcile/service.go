// Package reconcile imports bank statements and matches statement lines to
// the payments and payouts recorded in the ledger.
package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dmitriyabr/duma-erp-sub003/internal/apperr"
	"github.com/dmitriyabr/duma-erp-sub003/internal/auditlog"
	"github.com/dmitriyabr/duma-erp-sub003/internal/id"
	"github.com/dmitriyabr/duma-erp-sub003/internal/importer"
	"github.com/dmitriyabr/duma-erp-sub003/internal/logging"
	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
	"github.com/dmitriyabr/duma-erp-sub003/internal/store"
)

// Service runs imports and matching against one database.
type Service struct {
	db      *store.DB
	parsers *importer.Registry
	rules   Rules
	audit   *auditlog.Log
	log     *zap.Logger
}

// NewService creates a reconcile Service. audit may be nil.
func NewService(db *store.DB, parsers *importer.Registry, rules Rules, audit *auditlog.Log, logger *zap.Logger) *Service {
	if parsers == nil {
		parsers = importer.DefaultRegistry()
	}
	return &Service{db: db, parsers: parsers, rules: rules, audit: audit, log: logging.OrNop(logger)}
}

// Rules returns the thresholds the service matches with.
func (s *Service) Rules() Rules { return s.rules }

// ImportResult summarizes one statement import.
type ImportResult struct {
	BatchID    string `json:"batchId"`
	Total      int    `json:"total"`
	Inserted   int    `json:"inserted"`
	Duplicates int    `json:"duplicates"`
}

// Filter narrows List.
type Filter struct {
	AccountCode string
	Status      model.BankTxStatus
	Direction   model.Direction
	From, To    model.Date
	Q           string
	Page        store.Page
}

const selectBankTx = `SELECT id, account_code, posted_on, description, amount, direction, balance, reference,
	fingerprint, batch_id, status, created_at FROM bank_transactions`

func scanBankTx(r interface{ Scan(...any) error }) (model.BankTransaction, error) {
	var bt model.BankTransaction
	err := r.Scan(&bt.ID, &bt.AccountCode, &bt.PostedOn, &bt.Description, &bt.Amount, &bt.Direction, &bt.Balance,
		&bt.Reference, &bt.Fingerprint, &bt.BatchID, &bt.Status, store.ScanTime(&bt.CreatedAt))
	return bt, err
}

func scanBankTxRows(r *sql.Rows) (model.BankTransaction, error) { return scanBankTx(r) }

const selectMatch = `SELECT id, bank_transaction_id, record_type, record_id, amount, difference, confidence,
	method, note, run_id, created_at FROM bank_matches`

func scanMatch(r *sql.Rows) (model.Match, error) {
	var m model.Match
	err := r.Scan(&m.ID, &m.BankTransactionID, &m.RecordType, &m.RecordID, &m.Amount, &m.Difference, &m.Confidence,
		&m.Method, &m.Note, &m.RunID, store.ScanTime(&m.CreatedAt))
	return m, err
}

// Import parses a statement in format and stores its lines under
// accountCode. Lines already imported (same fingerprint) are skipped.
func (s *Service) Import(ctx context.Context, accountCode, format string, r io.Reader) (ImportResult, error) {
	accountCode = strings.TrimSpace(accountCode)
	var errs apperr.ValidationErrors
	if accountCode == "" {
		errs.Add("account", "required", "bank account code is required")
	}
	parser := s.parsers.Get(format)
	if parser == nil {
		errs.Add("format", "one_of", "unknown statement format %q, want one of %s",
			format, strings.Join(s.parsers.Formats(), ", "))
	}
	if err := errs.Err(); err != nil {
		return ImportResult{}, err
	}

	txs, err := parser.Parse(r)
	if err != nil {
		var perrs apperr.ValidationErrors
		perrs.Add("file", "parse", "%v", err)
		return ImportResult{}, perrs
	}

	res := ImportResult{BatchID: id.NewSortable(id.PrefixImport), Total: len(txs)}
	insert := s.db.Dialect.InsertIgnore + ` INTO bank_transactions
		(id, account_code, posted_on, description, amount, direction, balance, reference, fingerprint, batch_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		now := store.Now()
		for i, bt := range txs {
			bt.AccountCode = accountCode
			bt.Fingerprint = importer.Fingerprint(bt)
			result, err := tx.ExecContext(ctx, insert,
				id.New(), bt.AccountCode, bt.PostedOn, bt.Description, bt.Amount, bt.Direction, bt.Balance,
				bt.Reference, bt.Fingerprint, res.BatchID, model.BankTxUnmatched, now)
			if err != nil {
				return fmt.Errorf("inserting statement line %d: %w", i+1, err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("inserting statement line %d: %w", i+1, err)
			}
			res.Inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}
	res.Duplicates = res.Total - res.Inserted

	s.record(ctx, "import", fmt.Sprintf("%s %s: %d lines, %d new, %d duplicate",
		accountCode, parser.Format(), res.Total, res.Inserted, res.Duplicates), accountCode, res.BatchID)
	s.log.Info("statement imported",
		zap.String("account", accountCode),
		zap.String("batch", res.BatchID),
		zap.Int("inserted", res.Inserted),
		zap.Int("duplicates", res.Duplicates))
	return res, nil
}

// Get returns one bank transaction with its match, if any.
func (s *Service) Get(ctx context.Context, bankTxID string) (model.BankTransaction, error) {
	return getBankTx(ctx, s.db, bankTxID)
}

func getBankTx(ctx context.Context, q store.Querier, bankTxID string) (model.BankTransaction, error) {
	bt, err := scanBankTx(q.QueryRowContext(ctx, selectBankTx+" WHERE id = ?", bankTxID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.BankTransaction{}, apperr.NotFound("bank transaction", bankTxID)
	}
	if err != nil {
		return model.BankTransaction{}, fmt.Errorf("reading bank transaction %s: %w", bankTxID, err)
	}
	ms, err := store.QueryAll(ctx, q, scanMatch, selectMatch+" WHERE bank_transaction_id = ?", bankTxID)
	if err != nil {
		return model.BankTransaction{}, fmt.Errorf("reading match of %s: %w", bankTxID, err)
	}
	if len(ms) > 0 {
		bt.Match = &ms[0]
	}
	return bt, nil
}

// List returns a page of bank transactions, most recent first, with matches attached.
func (s *Service) List(ctx context.Context, f Filter) (store.Paged[model.BankTransaction], error) {
	var w store.Where
	if f.AccountCode != "" {
		w.Add("account_code = ?", f.AccountCode)
	}
	if f.Status != "" {
		w.Add("status = ?", f.Status)
	}
	if f.Direction != "" {
		w.Add("direction = ?", f.Direction)
	}
	if !f.From.IsZero() {
		w.Add("posted_on >= ?", f.From)
	}
	if !f.To.IsZero() {
		w.Add("posted_on <= ?", f.To)
	}
	w.Like(f.Q, "description", "reference")

	total, err := store.Count(ctx, s.db, "SELECT COUNT(*) FROM bank_transactions"+w.SQL(), w.Args()...)
	if err != nil {
		return store.Paged[model.BankTransaction]{}, fmt.Errorf("counting bank transactions: %w", err)
	}
	page := store.NewPage(f.Page.Limit, f.Page.Offset)
	txs, err := store.QueryAll(ctx, s.db, scanBankTxRows,
		selectBankTx+w.SQL()+" ORDER BY posted_on DESC, id"+page.SQL(), append(w.Args(), page.Args()...)...)
	if err != nil {
		return store.Paged[model.BankTransaction]{}, fmt.Errorf("listing bank transactions: %w", err)
	}
	if err := attachMatches(ctx, s.db, txs); err != nil {
		return store.Paged[model.BankTransaction]{}, err
	}
	return store.NewPaged(txs, total, page), nil
}

func attachMatches(ctx context.Context, q store.Querier, txs []model.BankTransaction) error {
	idx := make(map[string]int)
	var args []any
	for i, bt := range txs {
		if bt.Status == model.BankTxMatched {
			idx[bt.ID] = i
			args = append(args, bt.ID)
		}
	}
	if len(args) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
	ms, err := store.QueryAll(ctx, q, scanMatch, selectMatch+" WHERE bank_transaction_id IN ("+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("reading matches: %w", err)
	}
	for i := range ms {
		txs[idx[ms[i].BankTransactionID]].Match = &ms[i]
	}
	return nil
}

// ListRuns returns a page of auto-match runs, newest first.
func (s *Service) ListRuns(ctx context.Context, page store.Page) (store.Paged[model.ReconRun], error) {
	total, err := store.Count(ctx, s.db, "SELECT COUNT(*) FROM recon_runs")
	if err != nil {
		return store.Paged[model.ReconRun]{}, fmt.Errorf("counting runs: %w", err)
	}
	page = store.NewPage(page.Limit, page.Offset)
	runs, err := store.QueryAll(ctx, s.db, func(r *sql.Rows) (model.ReconRun, error) {
		var run model.ReconRun
		return run, r.Scan(&run.ID, &run.AccountCode, &run.Processed, &run.AutoMatched, &run.NeedsReview, &run.Unmatched,
			store.ScanTime(&run.StartedAt), store.ScanTime(&run.CompletedAt))
	}, `SELECT id, account_code, processed, auto_matched, needs_review, unmatched, started_at, completed_at
		FROM recon_runs ORDER BY started_at DESC, id DESC`+page.SQL(), page.Args()...)
	if err != nil {
		return store.Paged[model.ReconRun]{}, fmt.Errorf("listing runs: %w", err)
	}
	return store.NewPaged(runs, total, page), nil
}

func (s *Service) record(ctx context.Context, action, details, subject, ref string) {
	err := s.audit.Append(auditlog.Entry{
		Timestamp: time.Now(),
		Actor:     auditlog.ActorFrom(ctx),
		Action:    action,
		Details:   details,
		Subject:   subject,
		Ref:       ref,
	})
	if err != nil {
		s.log.Warn("writing audit log", zap.String("action", action), zap.Error(err))
	}
}
