package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Supplier sells goods to the school.
type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact,omitempty"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// POStatus is the lifecycle state of a purchase order.
type POStatus string

const (
	PODraft             POStatus = "draft"
	POSubmitted         POStatus = "submitted"
	POPartiallyReceived POStatus = "partially_received"
	POReceived          POStatus = "received"
	POCancelled         POStatus = "cancelled"
)

// PurchaseOrder is an order placed with a supplier.
type PurchaseOrder struct {
	ID           string          `json:"id"`
	Number       string          `json:"number"`
	SupplierID   string          `json:"supplierId"`
	OrderDate    Date            `json:"orderDate"`
	ExpectedDate Date            `json:"expectedDate"`
	Status       POStatus        `json:"status"`
	Lines        []POLine        `json:"lines,omitempty"`
	Total        decimal.Decimal `json:"total"`
	Paid         decimal.Decimal `json:"paid"`
	Notes        string          `json:"notes,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// POLine is one ordered inventory item.
type POLine struct {
	ID          string          `json:"id"`
	ItemID      string          `json:"itemId"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unitCost"`
	Received    decimal.Decimal `json:"received"`
}

// Remaining is the quantity still expected.
func (l POLine) Remaining() decimal.Decimal {
	return l.Quantity.Sub(l.Received)
}

// GoodsReceipt (GRN) records goods physically received against a purchase order.
type GoodsReceipt struct {
	ID         string        `json:"id"`
	Number     string        `json:"number"`
	POID       string        `json:"poId"`
	ReceivedOn Date          `json:"receivedOn"`
	Notes      string        `json:"notes,omitempty"`
	Lines      []ReceiptLine `json:"lines"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// ReceiptLine is the quantity received for one PO line.
type ReceiptLine struct {
	POLineID string          `json:"poLineId"`
	ItemID   string          `json:"itemId"`
	Quantity decimal.Decimal `json:"quantity"`
}
