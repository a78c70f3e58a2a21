package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/dmitriyabr/duma-erp-sub003/internal/apperr"
	"github.com/dmitriyabr/duma-erp-sub003/internal/logging"
	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
	"github.com/dmitriyabr/duma-erp-sub003/internal/store"
)

// Service reads and maintains the chart of accounts.
type Service struct {
	db  *store.DB
	log *zap.Logger
}

// NewService creates a Service over db.
func NewService(db *store.DB, logger *zap.Logger) *Service {
	return &Service{db: db, log: logging.OrNop(logger)}
}

const selectAccount = `SELECT id, name, type, parent_id, tax_line, description FROM accounts`

func scanAccount(r *sql.Rows) (model.Account, error) {
	var a model.Account
	err := r.Scan(&a.ID, &a.Name, &a.Type, &a.ParentID, &a.TaxLine, &a.Description)
	return a, err
}

// List returns every account ordered by ID.
func (s *Service) List(ctx context.Context) ([]model.Account, error) {
	accts, err := store.QueryAll(ctx, s.db, scanAccount, selectAccount+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	return accts, nil
}

// ByType returns the accounts of one type ordered by ID.
func (s *Service) ByType(ctx context.Context, typ model.AccountType) ([]model.Account, error) {
	accts, err := store.QueryAll(ctx, s.db, scanAccount, selectAccount+" WHERE type = ? ORDER BY id", typ)
	if err != nil {
		return nil, fmt.Errorf("listing %s accounts: %w", typ, err)
	}
	return accts, nil
}

// Get returns an account by ID.
func (s *Service) Get(ctx context.Context, id int) (model.Account, error) {
	return Lookup(ctx, s.db, id)
}

// Exists reports whether an account ID exists.
func (s *Service) Exists(ctx context.Context, id int) (bool, error) {
	return store.Exists(ctx, s.db, `SELECT 1 FROM accounts WHERE id = ?`, id)
}

// Lookup reads one account through q, which may be a transaction.
func Lookup(ctx context.Context, q store.Querier, id int) (model.Account, error) {
	var a model.Account
	err := q.QueryRowContext(ctx, selectAccount+" WHERE id = ?", id).
		Scan(&a.ID, &a.Name, &a.Type, &a.ParentID, &a.TaxLine, &a.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, apperr.NotFound("account", strconv.Itoa(id))
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("reading account %d: %w", id, err)
	}
	return a, nil
}

// CheckType adds a validation error to errs when account id is missing or not of type want.
func CheckType(ctx context.Context, q store.Querier, errs *apperr.ValidationErrors, field string, id int, want model.AccountType) error {
	a, err := Lookup(ctx, q, id)
	if errors.Is(err, apperr.ErrNotFound) {
		errs.Add(field, "exists", "account %d does not exist", id)
		return nil
	}
	if err != nil {
		return err
	}
	if a.Type != want {
		errs.Add(field, "account_type", "account %d (%s) is %s, want %s", id, a.Name, a.Type, want)
	}
	return nil
}

// Validate checks accts for structural problems. Parents may refer to accts
// or to existing.
func Validate(accts, existing []model.Account) error {
	var errs apperr.ValidationErrors
	seen := make(map[int]bool, len(accts)+len(existing))
	for _, a := range existing {
		seen[a.ID] = true
	}
	for _, a := range accts {
		seen[a.ID] = true
	}
	ids := make(map[int]bool, len(accts))
	for i, a := range accts {
		field := fmt.Sprintf("accounts[%d]", i)
		if a.ID <= 0 {
			errs.Add(field+".id", "positive", "account id must be positive, got %d", a.ID)
		}
		if ids[a.ID] {
			errs.Add(field+".id", "unique", "duplicate account id %d", a.ID)
		}
		ids[a.ID] = true
		if a.Name == "" {
			errs.Add(field+".name", "required", "account %d has no name", a.ID)
		}
		if !a.Type.Valid() {
			errs.Add(field+".type", "enum", "account %d has unknown type %q", a.ID, a.Type)
		}
		if a.ParentID != 0 && !seen[a.ParentID] {
			errs.Add(field+".parent_id", "exists", "account %d references unknown parent %d", a.ID, a.ParentID)
		}
	}
	return errs.Err()
}

// Import upserts accts. Accounts not in accts are left untouched. Parents
// must be part of the same import or already stored.
func (s *Service) Import(ctx context.Context, accts []model.Account) (int, error) {
	existing, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	if err := Validate(accts, existing); err != nil {
		return 0, err
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, a := range accts {
			ok, err := store.Exists(ctx, tx, `SELECT 1 FROM accounts WHERE id = ?`, a.ID)
			if err != nil {
				return fmt.Errorf("checking account %d: %w", a.ID, err)
			}
			if ok {
				_, err = tx.ExecContext(ctx,
					`UPDATE accounts SET name = ?, type = ?, parent_id = ?, tax_line = ?, description = ? WHERE id = ?`,
					a.Name, a.Type, a.ParentID, a.TaxLine, a.Description, a.ID)
			} else {
				_, err = tx.ExecContext(ctx,
					`INSERT INTO accounts (id, name, type, parent_id, tax_line, description) VALUES (?, ?, ?, ?, ?, ?)`,
					a.ID, a.Name, a.Type, a.ParentID, a.TaxLine, a.Description)
			}
			if err != nil {
				return fmt.Errorf("saving account %d: %w", a.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("accounts imported", zap.Int("count", len(accts)))
	return len(accts), nil
}

// Seed loads DefaultChart when the accounts table is empty. It reports
// whether anything was written.
func (s *Service) Seed(ctx context.Context) (bool, error) {
	n, err := store.Count(ctx, s.db, `SELECT COUNT(*) FROM accounts`)
	if err != nil {
		return false, fmt.Errorf("counting accounts: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	if _, err := s.Import(ctx, DefaultChart()); err != nil {
		return false, fmt.Errorf("seeding chart of accounts: %w", err)
	}
	return true, nil
}
