// Package inventory tracks stocked items, variant groups, kits and every
// stock movement that changes on-hand quantities.
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dmitriyabr/duma-erp-sub003/internal/apperr"
	"github.com/dmitriyabr/duma-erp-sub003/internal/id"
	"github.com/dmitriyabr/duma-erp-sub003/internal/logging"
	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
	"github.com/dmitriyabr/duma-erp-sub003/internal/store"
)

// Service manages items, groups, kits and stock.
type Service struct {
	db  *store.DB
	log *zap.Logger
}

// NewService creates a Service over db.
func NewService(db *store.DB, logger *zap.Logger) *Service {
	return &Service{db: db, log: logging.OrNop(logger)}
}

// ItemParams are the editable fields of an item.
type ItemParams struct {
	SKU            string          `json:"sku"`
	Name           string          `json:"name"`
	Unit           string          `json:"unit"`
	VariantGroupID string          `json:"variantGroupId"`
	UnitCost       decimal.Decimal `json:"unitCost"`
	ReorderLevel   decimal.Decimal `json:"reorderLevel"`
}

// ItemFilter narrows ListItems.
type ItemFilter struct {
	Q        string
	GroupID  string
	Active   *bool
	LowStock bool
	Page     store.Page
}

const selectItem = `SELECT id, sku, name, unit, variant_group_id, qty_on_hand, unit_cost, reorder_level, active, created_at, updated_at FROM items`

func scanItem(r interface{ Scan(...any) error }) (model.Item, error) {
	var it model.Item
	err := r.Scan(&it.ID, &it.SKU, &it.Name, &it.Unit, &it.VariantGroupID, &it.QtyOnHand, &it.UnitCost,
		&it.ReorderLevel, &it.Active, store.ScanTime(&it.CreatedAt), store.ScanTime(&it.UpdatedAt))
	return it, err
}

func scanItemRows(r *sql.Rows) (model.Item, error) { return scanItem(r) }

func (s *Service) validateItem(ctx context.Context, q store.Querier, p *ItemParams) error {
	p.SKU = strings.ToUpper(strings.TrimSpace(p.SKU))
	p.Name = strings.TrimSpace(p.Name)
	p.Unit = strings.TrimSpace(p.Unit)
	if p.Unit == "" {
		p.Unit = "pcs"
	}

	var errs apperr.ValidationErrors
	if p.SKU == "" {
		errs.Add("sku", "required", "sku is required")
	}
	if p.Name == "" {
		errs.Add("name", "required", "name is required")
	}
	if p.UnitCost.IsNegative() {
		errs.Add("unitCost", "non_negative", "unit cost must not be negative")
	}
	if !model.HasCents(p.UnitCost) {
		errs.Add("unitCost", "precision", "unit cost has more than 2 decimal places")
	}
	if p.ReorderLevel.IsNegative() {
		errs.Add("reorderLevel", "non_negative", "reorder level must not be negative")
	}
	if p.VariantGroupID != "" {
		ok, err := store.Exists(ctx, q, `SELECT 1 FROM variant_groups WHERE id = ?`, p.VariantGroupID)
		if err != nil {
			return fmt.Errorf("checking variant group: %w", err)
		}
		if !ok {
			errs.Add("variantGroupId", "exists", "variant group %s does not exist", p.VariantGroupID)
		}
	}
	return errs.Err()
}

// CreateItem adds an item with zero stock.
func (s *Service) CreateItem(ctx context.Context, p ItemParams) (model.Item, error) {
	if err := s.validateItem(ctx, s.db, &p); err != nil {
		return model.Item{}, err
	}

	now := store.Now()
	itemID := id.New()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO items (id, sku, name, unit, variant_group_id, qty_on_hand, unit_cost, reorder_level, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		itemID, p.SKU, p.Name, p.Unit, p.VariantGroupID, decimal.Zero, p.UnitCost.Round(2), p.ReorderLevel, true, now, now)
	if s.db.Dialect.IsUniqueViolation(err) {
		return model.Item{}, fmt.Errorf("%w: sku %s already exists", apperr.ErrConflict, p.SKU)
	}
	if err != nil {
		return model.Item{}, fmt.Errorf("inserting item: %w", err)
	}
	s.log.Info("item created", zap.String("id", itemID), zap.String("sku", p.SKU))
	return s.GetItem(ctx, itemID)
}

// UpdateItem replaces the editable fields of an item. Quantity on hand only
// changes through stock movements.
func (s *Service) UpdateItem(ctx context.Context, itemID string, p ItemParams) (model.Item, error) {
	if _, err := s.GetItem(ctx, itemID); err != nil {
		return model.Item{}, err
	}
	if err := s.validateItem(ctx, s.db, &p); err != nil {
		return model.Item{}, err
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE items SET sku = ?, name = ?, unit = ?, variant_group_id = ?, unit_cost = ?, reorder_level = ?, updated_at = ? WHERE id = ?`,
		p.SKU, p.Name, p.Unit, p.VariantGroupID, p.UnitCost.Round(2), p.ReorderLevel, store.Now(), itemID)
	if s.db.Dialect.IsUniqueViolation(err) {
		return model.Item{}, fmt.Errorf("%w: sku %s already exists", apperr.ErrConflict, p.SKU)
	}
	if err != nil {
		return model.Item{}, fmt.Errorf("updating item %s: %w", itemID, err)
	}
	return s.GetItem(ctx, itemID)
}

// GetItem returns an item by ID.
func (s *Service) GetItem(ctx context.Context, itemID string) (model.Item, error) {
	return getItem(ctx, s.db, itemID)
}

func getItem(ctx context.Context, q store.Querier, itemID string) (model.Item, error) {
	it, err := scanItem(q.QueryRowContext(ctx, selectItem+" WHERE id = ?", itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Item{}, apperr.NotFound("item", itemID)
	}
	if err != nil {
		return model.Item{}, fmt.Errorf("reading item %s: %w", itemID, err)
	}
	return it, nil
}

// ListItems returns a page of items ordered by SKU.
func (s *Service) ListItems(ctx context.Context, f ItemFilter) (store.Paged[model.Item], error) {
	var w store.Where
	w.Like(f.Q, "sku", "name")
	if f.GroupID != "" {
		w.Add("variant_group_id = ?", f.GroupID)
	}
	if f.Active != nil {
		w.Add("active = ?", *f.Active)
	}
	if f.LowStock {
		w.Add("CAST(reorder_level AS DECIMAL(18,4)) > 0 AND CAST(qty_on_hand AS DECIMAL(18,4)) <= CAST(reorder_level AS DECIMAL(18,4))")
	}

	total, err := store.Count(ctx, s.db, "SELECT COUNT(*) FROM items"+w.SQL(), w.Args()...)
	if err != nil {
		return store.Paged[model.Item]{}, fmt.Errorf("counting items: %w", err)
	}
	page := store.NewPage(f.Page.Limit, f.Page.Offset)
	items, err := store.QueryAll(ctx, s.db, scanItemRows,
		selectItem+w.SQL()+" ORDER BY sku"+page.SQL(), append(w.Args(), page.Args()...)...)
	if err != nil {
		return store.Paged[model.Item]{}, fmt.Errorf("listing items: %w", err)
	}
	return store.NewPaged(items, total, page), nil
}

// SetItemActive toggles whether an item can be issued or bought.
func (s *Service) SetItemActive(ctx context.Context, itemID string, active bool) (model.Item, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE items SET active = ?, updated_at = ? WHERE id = ?`, active, store.Now(), itemID)
	if err != nil {
		return model.Item{}, fmt.Errorf("updating item %s: %w", itemID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetItem(ctx, itemID); err != nil {
			return model.Item{}, err
		}
	}
	return s.GetItem(ctx, itemID)
}

// CreateGroup adds a variant group.
func (s *Service) CreateGroup(ctx context.Context, name string) (model.VariantGroup, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		var errs apperr.ValidationErrors
		errs.Add("name", "required", "name is required")
		return model.VariantGroup{}, errs
	}
	g := model.VariantGroup{ID: id.New(), Name: name}
	_, err := s.db.ExecContext(ctx, `INSERT INTO variant_groups (id, name, default_item_id) VALUES (?, ?, '')`, g.ID, g.Name)
	if s.db.Dialect.IsUniqueViolation(err) {
		return model.VariantGroup{}, fmt.Errorf("%w: variant group %q already exists", apperr.ErrConflict, name)
	}
	if err != nil {
		return model.VariantGroup{}, fmt.Errorf("inserting variant group: %w", err)
	}
	return g, nil
}

// ListGroups returns every variant group ordered by name.
func (s *Service) ListGroups(ctx context.Context) ([]model.VariantGroup, error) {
	groups, err := store.QueryAll(ctx, s.db, func(r *sql.Rows) (model.VariantGroup, error) {
		var g model.VariantGroup
		return g, r.Scan(&g.ID, &g.Name, &g.DefaultItemID)
	}, `SELECT id, name, default_item_id FROM variant_groups ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing variant groups: %w", err)
	}
	return groups, nil
}

func getGroup(ctx context.Context, q store.Querier, groupID string) (model.VariantGroup, error) {
	var g model.VariantGroup
	err := q.QueryRowContext(ctx, `SELECT id, name, default_item_id FROM variant_groups WHERE id = ?`, groupID).
		Scan(&g.ID, &g.Name, &g.DefaultItemID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.VariantGroup{}, apperr.NotFound("variant group", groupID)
	}
	if err != nil {
		return model.VariantGroup{}, fmt.Errorf("reading variant group %s: %w", groupID, err)
	}
	return g, nil
}

// SetGroupDefault picks the item a kit component of this group resolves to.
func (s *Service) SetGroupDefault(ctx context.Context, groupID, itemID string) (model.VariantGroup, error) {
	g, err := getGroup(ctx, s.db, groupID)
	if err != nil {
		return model.VariantGroup{}, err
	}
	it, err := s.GetItem(ctx, itemID)
	if err != nil {
		return model.VariantGroup{}, err
	}
	if it.VariantGroupID != groupID {
		var errs apperr.ValidationErrors
		errs.Add("itemId", "group_member", "item %s is not in variant group %s", it.SKU, g.Name)
		return model.VariantGroup{}, errs
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE variant_groups SET default_item_id = ? WHERE id = ?`, itemID, groupID); err != nil {
		return model.VariantGroup{}, fmt.Errorf("updating variant group %s: %w", groupID, err)
	}
	g.DefaultItemID = itemID
	return g, nil
}
