package procurement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dmitriyabr/duma-erp-sub003/internal/apperr"
	"github.com/dmitriyabr/duma-erp-sub003/internal/id"
	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
	"github.com/dmitriyabr/duma-erp-sub003/internal/store"
)

// SupplierParams are the editable fields of a supplier.
type SupplierParams struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
}

// SupplierFilter narrows ListSuppliers.
type SupplierFilter struct {
	Q      string
	Active *bool
	Page   store.Page
}

const selectSupplier = `SELECT id, name, contact, email, phone, active, created_at FROM suppliers`

func scanSupplier(r interface{ Scan(...any) error }) (model.Supplier, error) {
	var sp model.Supplier
	err := r.Scan(&sp.ID, &sp.Name, &sp.Contact, &sp.Email, &sp.Phone, &sp.Active, store.ScanTime(&sp.CreatedAt))
	return sp, err
}

func scanSupplierRows(r *sql.Rows) (model.Supplier, error) { return scanSupplier(r) }

func (p *SupplierParams) validate() error {
	p.Name = strings.TrimSpace(p.Name)
	p.Contact = strings.TrimSpace(p.Contact)
	p.Email = strings.TrimSpace(p.Email)
	p.Phone = strings.TrimSpace(p.Phone)

	var errs apperr.ValidationErrors
	if p.Name == "" {
		errs.Add("name", "required", "name is required")
	}
	if p.Email != "" {
		if _, err := mail.ParseAddress(p.Email); err != nil {
			errs.Add("email", "email", "%q is not a valid email address", p.Email)
		}
	}
	return errs.Err()
}

// CreateSupplier adds an active supplier. Names are unique.
func (s *Service) CreateSupplier(ctx context.Context, p SupplierParams) (model.Supplier, error) {
	if err := p.validate(); err != nil {
		return model.Supplier{}, err
	}
	sp := model.Supplier{
		ID: id.New(), Name: p.Name, Contact: p.Contact, Email: p.Email, Phone: p.Phone,
		Active: true, CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO suppliers (id, name, contact, email, phone, active, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sp.ID, sp.Name, sp.Contact, sp.Email, sp.Phone, sp.Active, store.FormatTime(sp.CreatedAt))
	if s.db.Dialect.IsUniqueViolation(err) {
		return model.Supplier{}, fmt.Errorf("%w: supplier %q already exists", apperr.ErrConflict, p.Name)
	}
	if err != nil {
		return model.Supplier{}, fmt.Errorf("inserting supplier: %w", err)
	}
	s.log.Info("supplier created", zap.String("id", sp.ID), zap.String("name", sp.Name))
	return sp, nil
}

// UpdateSupplier replaces a supplier's details.
func (s *Service) UpdateSupplier(ctx context.Context, supplierID string, p SupplierParams) (model.Supplier, error) {
	if _, err := s.GetSupplier(ctx, supplierID); err != nil {
		return model.Supplier{}, err
	}
	if err := p.validate(); err != nil {
		return model.Supplier{}, err
	}
	_, err := s.db.ExecContext(ctx, `UPDATE suppliers SET name = ?, contact = ?, email = ?, phone = ? WHERE id = ?`,
		p.Name, p.Contact, p.Email, p.Phone, supplierID)
	if s.db.Dialect.IsUniqueViolation(err) {
		return model.Supplier{}, fmt.Errorf("%w: supplier %q already exists", apperr.ErrConflict, p.Name)
	}
	if err != nil {
		return model.Supplier{}, fmt.Errorf("updating supplier %s: %w", supplierID, err)
	}
	return s.GetSupplier(ctx, supplierID)
}

// GetSupplier returns a supplier by ID.
func (s *Service) GetSupplier(ctx context.Context, supplierID string) (model.Supplier, error) {
	return getSupplier(ctx, s.db, supplierID)
}

func getSupplier(ctx context.Context, q store.Querier, supplierID string) (model.Supplier, error) {
	sp, err := scanSupplier(q.QueryRowContext(ctx, selectSupplier+" WHERE id = ?", supplierID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Supplier{}, apperr.NotFound("supplier", supplierID)
	}
	if err != nil {
		return model.Supplier{}, fmt.Errorf("reading supplier %s: %w", supplierID, err)
	}
	return sp, nil
}

// ListSuppliers returns a page of suppliers ordered by name.
func (s *Service) ListSuppliers(ctx context.Context, f SupplierFilter) (store.Paged[model.Supplier], error) {
	var w store.Where
	w.Like(f.Q, "name", "contact", "email")
	if f.Active != nil {
		w.Add("active = ?", *f.Active)
	}
	total, err := store.Count(ctx, s.db, "SELECT COUNT(*) FROM suppliers"+w.SQL(), w.Args()...)
	if err != nil {
		return store.Paged[model.Supplier]{}, fmt.Errorf("counting suppliers: %w", err)
	}
	page := store.NewPage(f.Page.Limit, f.Page.Offset)
	sps, err := store.QueryAll(ctx, s.db, scanSupplierRows,
		selectSupplier+w.SQL()+" ORDER BY name"+page.SQL(), append(w.Args(), page.Args()...)...)
	if err != nil {
		return store.Paged[model.Supplier]{}, fmt.Errorf("listing suppliers: %w", err)
	}
	return store.NewPaged(sps, total, page), nil
}

// SetSupplierActive toggles whether new orders may be placed with a supplier.
func (s *Service) SetSupplierActive(ctx context.Context, supplierID string, active bool) (model.Supplier, error) {
	if _, err := s.GetSupplier(ctx, supplierID); err != nil {
		return model.Supplier{}, err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE suppliers SET active = ? WHERE id = ?`, active, supplierID); err != nil {
		return model.Supplier{}, fmt.Errorf("updating supplier %s: %w", supplierID, err)
	}
	return s.GetSupplier(ctx, supplierID)
}
