package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the lifecycle state of a student invoice.
type InvoiceStatus string

const (
	InvoiceDraft         InvoiceStatus = "draft"
	InvoiceIssued        InvoiceStatus = "issued"
	InvoicePartiallyPaid InvoiceStatus = "partially_paid"
	InvoicePaid          InvoiceStatus = "paid"
	InvoiceVoid          InvoiceStatus = "void"
)

// Outstanding reports whether an invoice in this status still expects money.
func (s InvoiceStatus) Outstanding() bool {
	return s == InvoiceIssued || s == InvoicePartiallyPaid
}

// Invoice is a bill raised against a student.
type Invoice struct {
	ID         string          `json:"id"`
	Number     string          `json:"number"`
	StudentRef string          `json:"studentRef"`
	BillTo     string          `json:"billTo"`
	IssueDate  Date            `json:"issueDate"`
	DueDate    Date            `json:"dueDate"`
	Status     InvoiceStatus   `json:"status"`
	Lines      []InvoiceLine   `json:"lines,omitempty"`
	Total      decimal.Decimal `json:"total"`
	Paid       decimal.Decimal `json:"paid"`
	Balance    decimal.Decimal `json:"balance"`
	Notes      string          `json:"notes,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// InvoiceLine is one billed fee or sold item. At most one of ItemID / KitID is set.
type InvoiceLine struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	AccountID   int             `json:"accountId"`
	ItemID      string          `json:"itemId,omitempty"`
	KitID       string          `json:"kitId,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Amount      decimal.Decimal `json:"amount"`
}

// Payment is money received against an invoice.
type Payment struct {
	ID        string          `json:"id"`
	Number    string          `json:"number"`
	InvoiceID string          `json:"invoiceId"`
	Amount    decimal.Decimal `json:"amount"`
	PaidOn    Date            `json:"paidOn"`
	Method    string          `json:"method"`
	Reference string          `json:"reference,omitempty"`
	Matched   bool            `json:"matched"`
	CreatedAt time.Time       `json:"createdAt"`
}
