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
	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
	"github.com/dmitriyabr/duma-erp-sub003/internal/store"
)

// KitParams define a new kit.
type KitParams struct {
	Code       string               `json:"code"`
	Name       string               `json:"name"`
	Price      decimal.Decimal      `json:"price"`
	Components []model.KitComponent `json:"components"`
}

// KitFilter narrows ListKits.
type KitFilter struct {
	Q      string
	Active *bool
	Page   store.Page
}

const selectKit = `SELECT id, code, name, price, active, created_at FROM kits`

func scanKit(r interface{ Scan(...any) error }) (model.Kit, error) {
	var k model.Kit
	err := r.Scan(&k.ID, &k.Code, &k.Name, &k.Price, &k.Active, store.ScanTime(&k.CreatedAt))
	return k, err
}

func (s *Service) validateKit(ctx context.Context, p *KitParams) error {
	p.Code = strings.ToUpper(strings.TrimSpace(p.Code))
	p.Name = strings.TrimSpace(p.Name)

	var errs apperr.ValidationErrors
	if p.Code == "" {
		errs.Add("code", "required", "code is required")
	}
	if p.Name == "" {
		errs.Add("name", "required", "name is required")
	}
	if p.Price.IsNegative() {
		errs.Add("price", "non_negative", "price must not be negative")
	}
	if !model.HasCents(p.Price) {
		errs.Add("price", "precision", "price has more than 2 decimal places")
	}
	if len(p.Components) == 0 {
		errs.Add("components", "required", "a kit needs at least one component")
	}
	for i, c := range p.Components {
		field := fmt.Sprintf("components[%d]", i)
		if (c.ItemID == "") == (c.VariantGroupID == "") {
			errs.Add(field, "one_of", "set exactly one of itemId or variantGroupId")
			continue
		}
		if !c.Quantity.IsPositive() {
			errs.Add(field+".quantity", "positive", "quantity must be greater than zero")
		}
		table, ref := "items", c.ItemID
		if c.VariantGroupID != "" {
			table, ref = "variant_groups", c.VariantGroupID
		}
		ok, err := store.Exists(ctx, s.db, "SELECT 1 FROM "+table+" WHERE id = ?", ref)
		if err != nil {
			return fmt.Errorf("checking kit component: %w", err)
		}
		if !ok {
			errs.Add(field, "exists", "%s %s does not exist", strings.TrimSuffix(table, "s"), ref)
		}
	}
	return errs.Err()
}

// CreateKit adds a kit with its components.
func (s *Service) CreateKit(ctx context.Context, p KitParams) (model.Kit, error) {
	if err := s.validateKit(ctx, &p); err != nil {
		return model.Kit{}, err
	}

	kitID := id.New()
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO kits (id, code, name, price, active, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			kitID, p.Code, p.Name, p.Price.Round(2), true, store.Now())
		if s.db.Dialect.IsUniqueViolation(err) {
			return fmt.Errorf("%w: kit code %s already exists", apperr.ErrConflict, p.Code)
		}
		if err != nil {
			return fmt.Errorf("inserting kit: %w", err)
		}
		for i, c := range p.Components {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO kit_components (kit_id, position, item_id, variant_group_id, quantity) VALUES (?, ?, ?, ?, ?)`,
				kitID, i, c.ItemID, c.VariantGroupID, c.Quantity)
			if err != nil {
				return fmt.Errorf("inserting kit component %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return model.Kit{}, err
	}
	s.log.Info("kit created", zap.String("id", kitID), zap.String("code", p.Code))
	return s.GetKit(ctx, kitID)
}

// GetKit returns a kit with its components and current availability.
func (s *Service) GetKit(ctx context.Context, kitID string) (model.Kit, error) {
	k, err := getKit(ctx, s.db, kitID)
	if err != nil {
		return model.Kit{}, err
	}
	avail, err := availability(ctx, s.db, k)
	if err != nil {
		return model.Kit{}, err
	}
	k.Availability = &avail
	return k, nil
}

func getKit(ctx context.Context, q store.Querier, kitID string) (model.Kit, error) {
	k, err := scanKit(q.QueryRowContext(ctx, selectKit+" WHERE id = ?", kitID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Kit{}, apperr.NotFound("kit", kitID)
	}
	if err != nil {
		return model.Kit{}, fmt.Errorf("reading kit %s: %w", kitID, err)
	}
	k.Components, err = store.QueryAll(ctx, q, func(r *sql.Rows) (model.KitComponent, error) {
		var c model.KitComponent
		return c, r.Scan(&c.ItemID, &c.VariantGroupID, &c.Quantity)
	}, `SELECT item_id, variant_group_id, quantity FROM kit_components WHERE kit_id = ? ORDER BY position`, kitID)
	if err != nil {
		return model.Kit{}, fmt.Errorf("reading kit %s components: %w", kitID, err)
	}
	return k, nil
}

// ListKits returns a page of kits ordered by code, each with availability.
func (s *Service) ListKits(ctx context.Context, f KitFilter) (store.Paged[model.Kit], error) {
	var w store.Where
	w.Like(f.Q, "code", "name")
	if f.Active != nil {
		w.Add("active = ?", *f.Active)
	}

	total, err := store.Count(ctx, s.db, "SELECT COUNT(*) FROM kits"+w.SQL(), w.Args()...)
	if err != nil {
		return store.Paged[model.Kit]{}, fmt.Errorf("counting kits: %w", err)
	}
	page := store.NewPage(f.Page.Limit, f.Page.Offset)
	ids, err := store.QueryAll(ctx, s.db, func(r *sql.Rows) (string, error) {
		var kid string
		return kid, r.Scan(&kid)
	}, "SELECT id FROM kits"+w.SQL()+" ORDER BY code"+page.SQL(), append(w.Args(), page.Args()...)...)
	if err != nil {
		return store.Paged[model.Kit]{}, fmt.Errorf("listing kits: %w", err)
	}

	kits := make([]model.Kit, 0, len(ids))
	for _, kid := range ids {
		k, err := s.GetKit(ctx, kid)
		if err != nil {
			return store.Paged[model.Kit]{}, err
		}
		kits = append(kits, k)
	}
	return store.NewPaged(kits, total, page), nil
}

// SetKitActive toggles whether a kit can be sold.
func (s *Service) SetKitActive(ctx context.Context, kitID string, active bool) (model.Kit, error) {
	if _, err := getKit(ctx, s.db, kitID); err != nil {
		return model.Kit{}, err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE kits SET active = ? WHERE id = ?`, active, kitID); err != nil {
		return model.Kit{}, fmt.Errorf("updating kit %s: %w", kitID, err)
	}
	return s.GetKit(ctx, kitID)
}

// KitAvailability returns how many complete kits can be issued from stock.
func (s *Service) KitAvailability(ctx context.Context, kitID string) (int64, error) {
	k, err := getKit(ctx, s.db, kitID)
	if err != nil {
		return 0, err
	}
	return availability(ctx, s.db, k)
}

// availability is the minimum over components of floor(on hand / quantity).
// An inactive kit, an inactive item or a group without a default yields 0.
func availability(ctx context.Context, q store.Querier, k model.Kit) (int64, error) {
	if !k.Active || len(k.Components) == 0 {
		return 0, nil
	}
	var lowest int64 = -1
	for _, c := range k.Components {
		it, ok, err := resolveComponent(ctx, q, c)
		if err != nil {
			return 0, err
		}
		if !ok || !it.Active || !c.Quantity.IsPositive() {
			return 0, nil
		}
		n := it.QtyOnHand.Div(c.Quantity).Floor().IntPart()
		if n < 0 {
			n = 0
		}
		if lowest < 0 || n < lowest {
			lowest = n
		}
	}
	return lowest, nil
}

// resolveComponent returns the item a component stands for. ok is false for a
// variant group without a default item.
func resolveComponent(ctx context.Context, q store.Querier, c model.KitComponent) (model.Item, bool, error) {
	itemID := c.ItemID
	if c.VariantGroupID != "" {
		g, err := getGroup(ctx, q, c.VariantGroupID)
		if err != nil {
			return model.Item{}, false, err
		}
		if g.DefaultItemID == "" {
			return model.Item{}, false, nil
		}
		itemID = g.DefaultItemID
	}
	it, err := getItem(ctx, q, itemID)
	if err != nil {
		return model.Item{}, false, err
	}
	return it, true, nil
}
