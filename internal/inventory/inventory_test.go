package inventory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitriyabr/duma-erp-sub003/internal/apperr"
	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
	"github.com/dmitriyabr/duma-erp-sub003/internal/store"
	"github.com/dmitriyabr/duma-erp-sub003/internal/store/storetest"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newService(t *testing.T) *Service {
	t.Helper()
	return NewService(storetest.New(t), nil)
}

// stocked creates an item and receives qty at cost.
func stocked(t *testing.T, s *Service, sku, groupID, qty, cost string) model.Item {
	t.Helper()
	ctx := context.Background()
	it, err := s.CreateItem(ctx, ItemParams{SKU: sku, Name: sku, VariantGroupID: groupID, ReorderLevel: dec("2")})
	require.NoError(t, err)
	if qty != "0" {
		_, err = s.StockIn(ctx, s.db, it.ID, dec(qty), dec(cost), model.RefGoodsReceipt, "grn-1", "")
		require.NoError(t, err)
	}
	it, err = s.GetItem(ctx, it.ID)
	require.NoError(t, err)
	return it
}

func TestCreateItem(t *testing.T) {
	ctx := context.Background()
	s := newService(t)

	it, err := s.CreateItem(ctx, ItemParams{SKU: " shirt-s ", Name: "Shirt S", UnitCost: dec("450")})
	require.NoError(t, err)
	assert.Equal(t, "SHIRT-S", it.SKU)
	assert.Equal(t, "pcs", it.Unit)
	assert.True(t, it.Active)
	assert.True(t, it.QtyOnHand.IsZero())
	assert.False(t, it.CreatedAt.IsZero())

	_, err = s.CreateItem(ctx, ItemParams{SKU: "SHIRT-S", Name: "Other"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestCreateItem_Validation(t *testing.T) {
	_, err := newService(t).CreateItem(context.Background(), ItemParams{
		UnitCost: dec("-1.005"), ReorderLevel: dec("-1"), VariantGroupID: "missing",
	})
	require.ErrorIs(t, err, apperr.ErrInvalid)

	var verrs apperr.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	fields := make(map[string]bool)
	for _, v := range verrs {
		fields[v.Field] = true
	}
	for _, f := range []string{"sku", "name", "unitCost", "reorderLevel", "variantGroupId"} {
		assert.True(t, fields[f], "expected error on %s", f)
	}
}

func TestUpdateItem(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	it := stocked(t, s, "BOOK-1", "", "5", "100")

	got, err := s.UpdateItem(ctx, it.ID, ItemParams{SKU: "BOOK-1", Name: "Reader 1", Unit: "copy", UnitCost: dec("100"), ReorderLevel: dec("10")})
	require.NoError(t, err)
	assert.Equal(t, "Reader 1", got.Name)
	assert.Equal(t, "copy", got.Unit)
	assert.True(t, got.QtyOnHand.Equal(dec("5")), "quantity untouched")

	_, err = s.UpdateItem(ctx, "nope", ItemParams{SKU: "X", Name: "X"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSetItemActive(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	it := stocked(t, s, "PEN", "", "0", "0")

	got, err := s.SetItemActive(ctx, it.ID, false)
	require.NoError(t, err)
	assert.False(t, got.Active)

	_, err = s.SetItemActive(ctx, "missing", true)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListItems(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	stocked(t, s, "PEN", "", "1", "10")
	stocked(t, s, "PENCIL", "", "50", "5")
	ruler := stocked(t, s, "RULER", "", "2", "30")
	_, err := s.SetItemActive(ctx, ruler.ID, false)
	require.NoError(t, err)

	all, err := s.ListItems(ctx, ItemFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, all.Pagination.Total)
	assert.Equal(t, "PEN", all.Items[0].SKU)

	pens, err := s.ListItems(ctx, ItemFilter{Q: "pen"})
	require.NoError(t, err)
	assert.Equal(t, 2, pens.Pagination.Total)

	low, err := s.ListItems(ctx, ItemFilter{LowStock: true})
	require.NoError(t, err)
	var lowSKUs []string
	for _, it := range low.Items {
		lowSKUs = append(lowSKUs, it.SKU)
	}
	assert.ElementsMatch(t, []string{"PEN", "RULER"}, lowSKUs)

	active := true
	act, err := s.ListItems(ctx, ItemFilter{Active: &active, Page: store.NewPage(1, 0)})
	require.NoError(t, err)
	assert.Equal(t, 2, act.Pagination.Total)
	assert.Len(t, act.Items, 1)
	assert.True(t, act.Pagination.HasNext)
}

func TestStockIn_MovingAverage(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	it := stocked(t, s, "SHIRT", "", "10", "100")

	_, err := s.StockIn(ctx, s.db, it.ID, dec("30"), dec("120"), model.RefGoodsReceipt, "grn-2", "")
	require.NoError(t, err)

	got, err := s.GetItem(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, "40", got.QtyOnHand.String())
	assert.Equal(t, "115", got.UnitCost.String(), "(10*100 + 30*120) / 40")

	_, err = s.StockIn(ctx, s.db, it.ID, dec("0"), dec("1"), model.RefGoodsReceipt, "", "")
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestStockOut(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	it := stocked(t, s, "SOCKS", "", "3", "50")

	mv, err := s.StockOut(ctx, s.db, it.ID, dec("2"), model.RefInvoice, "inv-1", "")
	require.NoError(t, err)
	assert.Equal(t, model.MovementOut, mv.Type)
	assert.Equal(t, "-2", mv.Quantity.String())
	assert.Equal(t, "50", mv.UnitCost.String())

	_, err = s.StockOut(ctx, s.db, it.ID, dec("2"), model.RefInvoice, "inv-1", "")
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	got, err := s.GetItem(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, "1", got.QtyOnHand.String())

	_, err = s.SetItemActive(ctx, it.ID, false)
	require.NoError(t, err)
	_, err = s.StockOut(ctx, s.db, it.ID, dec("1"), model.RefInvoice, "inv-2", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestAdjust(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	it := stocked(t, s, "TIE", "", "5", "80")

	mv, err := s.Adjust(ctx, it.ID, dec("-2"), "stock count")
	require.NoError(t, err)
	assert.Equal(t, model.MovementAdjust, mv.Type)
	assert.Equal(t, model.RefAdjustment, mv.RefType)

	_, err = s.Adjust(ctx, it.ID, dec("-4"), "lost")
	assert.ErrorIs(t, err, ErrInsufficientStock)

	_, err = s.Adjust(ctx, it.ID, decimal.Zero, "")
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	got, err := s.GetItem(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, "3", got.QtyOnHand.String())
}

func TestGroupDefault(t *testing.T) {
	ctx := context.Background()
	s := newService(t)

	g, err := s.CreateGroup(ctx, "School Shirt")
	require.NoError(t, err)
	_, err = s.CreateGroup(ctx, "School Shirt")
	assert.ErrorIs(t, err, apperr.ErrConflict)
	_, err = s.CreateGroup(ctx, " ")
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	small := stocked(t, s, "SHIRT-S", g.ID, "4", "400")
	other := stocked(t, s, "TIE", "", "4", "100")

	_, err = s.SetGroupDefault(ctx, g.ID, other.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	g, err = s.SetGroupDefault(ctx, g.ID, small.ID)
	require.NoError(t, err)
	assert.Equal(t, small.ID, g.DefaultItemID)

	groups, err := s.ListGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, small.ID, groups[0].DefaultItemID)
}

func TestKits(t *testing.T) {
	ctx := context.Background()
	s := newService(t)

	g, err := s.CreateGroup(ctx, "Shirt")
	require.NoError(t, err)
	shirt := stocked(t, s, "SHIRT-M", g.ID, "7", "400")
	socks := stocked(t, s, "SOCKS", "", "9", "50")

	kit, err := s.CreateKit(ctx, KitParams{
		Code:  "uniform",
		Name:  "Uniform set",
		Price: dec("2500"),
		Components: []model.KitComponent{
			{VariantGroupID: g.ID, Quantity: dec("2")},
			{ItemID: socks.ID, Quantity: dec("3")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "UNIFORM", kit.Code)
	require.Len(t, kit.Components, 2)
	require.NotNil(t, kit.Availability)
	assert.Equal(t, int64(0), *kit.Availability, "group has no default yet")

	_, err = s.SetGroupDefault(ctx, g.ID, shirt.ID)
	require.NoError(t, err)

	n, err := s.KitAvailability(ctx, kit.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "min(7/2, 9/3)")

	moves, err := s.IssueKit(ctx, s.db, kit.ID, dec("2"), model.RefInvoice, "inv-9")
	require.NoError(t, err)
	require.Len(t, moves, 2)
	assert.Equal(t, shirt.ID, moves[0].ItemID)
	assert.Equal(t, "-4", moves[0].Quantity.String())

	n, err = s.KitAvailability(ctx, kit.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.IssueKit(ctx, s.db, kit.ID, dec("2"), model.RefInvoice, "inv-10")
	assert.ErrorIs(t, err, ErrInsufficientStock)

	back, err := s.Reverse(ctx, s.db, model.RefInvoice, "inv-9", model.RefVoid)
	require.NoError(t, err)
	require.Len(t, back, 2)
	n, err = s.KitAvailability(ctx, kit.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = s.SetKitActive(ctx, kit.ID, false)
	require.NoError(t, err)
	n, err = s.KitAvailability(ctx, kit.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	_, err = s.IssueKit(ctx, s.db, kit.ID, dec("1"), model.RefInvoice, "inv-11")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	list, err := s.ListKits(ctx, KitFilter{Q: "uni"})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.NotNil(t, list.Items[0].Availability)
}

func TestCreateKit_Validation(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	pen := stocked(t, s, "PEN", "", "1", "1")

	_, err := s.CreateKit(ctx, KitParams{Code: "K", Name: "Kit"})
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	_, err = s.CreateKit(ctx, KitParams{Code: "K", Name: "Kit", Components: []model.KitComponent{
		{ItemID: pen.ID, VariantGroupID: "g", Quantity: dec("1")},
		{ItemID: "missing", Quantity: dec("1")},
		{ItemID: pen.ID, Quantity: dec("0")},
	}})
	var verrs apperr.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 3)

	_, err = s.CreateKit(ctx, KitParams{Code: "K", Name: "Kit", Components: []model.KitComponent{{ItemID: pen.ID, Quantity: dec("1")}}})
	require.NoError(t, err)
	_, err = s.CreateKit(ctx, KitParams{Code: "k", Name: "Again", Components: []model.KitComponent{{ItemID: pen.ID, Quantity: dec("1")}}})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestListMovements(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	it := stocked(t, s, "BALL", "", "5", "300")
	_, err := s.Adjust(ctx, it.ID, dec("1"), "found")
	require.NoError(t, err)

	all, err := s.ListMovements(ctx, MovementFilter{ItemID: it.ID})
	require.NoError(t, err)
	require.Equal(t, 2, all.Pagination.Total)
	assert.Equal(t, model.MovementAdjust, all.Items[0].Type, "newest first")

	grn, err := s.ListMovements(ctx, MovementFilter{RefType: model.RefGoodsReceipt, RefID: "grn-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, grn.Pagination.Total)
}
