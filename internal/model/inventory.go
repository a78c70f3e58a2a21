package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is a stocked inventory item.
type Item struct {
	ID             string          `json:"id"`
	SKU            string          `json:"sku"`
	Name           string          `json:"name"`
	Unit           string          `json:"unit"`
	VariantGroupID string          `json:"variantGroupId,omitempty"`
	QtyOnHand      decimal.Decimal `json:"qtyOnHand"`
	UnitCost       decimal.Decimal `json:"unitCost"`
	ReorderLevel   decimal.Decimal `json:"reorderLevel"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// LowStock reports whether on-hand quantity is at or below the reorder level.
func (i Item) LowStock() bool {
	return i.ReorderLevel.IsPositive() && i.QtyOnHand.LessThanOrEqual(i.ReorderLevel)
}

// VariantGroup groups interchangeable items (e.g. sizes of one uniform shirt).
type VariantGroup struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	DefaultItemID string `json:"defaultItemId,omitempty"`
}

// Kit is a sellable catalog item composed of inventory components.
type Kit struct {
	ID           string          `json:"id"`
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Active       bool            `json:"active"`
	Components   []KitComponent  `json:"components"`
	Availability *int64          `json:"availability,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// KitComponent is either a fixed item or the default item of a variant group.
type KitComponent struct {
	ItemID         string          `json:"itemId,omitempty"`
	VariantGroupID string          `json:"variantGroupId,omitempty"`
	Quantity       decimal.Decimal `json:"quantity"`
}

// MovementType classifies stock movements.
type MovementType string

const (
	MovementIn     MovementType = "in"
	MovementOut    MovementType = "out"
	MovementAdjust MovementType = "adjust"
)

// MovementRef names the document that caused a stock movement.
type MovementRef string

const (
	RefGoodsReceipt MovementRef = "grn"
	RefInvoice      MovementRef = "invoice"
	RefAdjustment   MovementRef = "adjustment"
	RefVoid         MovementRef = "void"
)

// StockMovement is a signed change to an item's on-hand quantity.
type StockMovement struct {
	ID        string          `json:"id"`
	ItemID    string          `json:"itemId"`
	Type      MovementType    `json:"type"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unitCost"`
	RefType   MovementRef     `json:"refType"`
	RefID     string          `json:"refId,omitempty"`
	Note      string          `json:"note,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
