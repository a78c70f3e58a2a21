package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClaimStatus is the lifecycle state of an expense claim.
type ClaimStatus string

const (
	ClaimSubmitted ClaimStatus = "submitted"
	ClaimApproved  ClaimStatus = "approved"
	ClaimRejected  ClaimStatus = "rejected"
	ClaimPaid      ClaimStatus = "paid"
)

// Claim is a staff compensation or expense reimbursement request.
type Claim struct {
	ID          string          `json:"id"`
	Number      string          `json:"number"`
	Claimant    string          `json:"claimant"`
	AccountID   int             `json:"accountId"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	IncurredOn  Date            `json:"incurredOn"`
	Status      ClaimStatus     `json:"status"`
	ReviewedBy  string          `json:"reviewedBy,omitempty"`
	ReviewNote  string          `json:"reviewNote,omitempty"`
	PayoutID    string          `json:"payoutId,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// PayoutSource names what a payout settles.
type PayoutSource string

const (
	PayoutClaim         PayoutSource = "claim"
	PayoutPurchaseOrder PayoutSource = "purchase_order"
)

// Payout is money paid out by the school.
type Payout struct {
	ID         string          `json:"id"`
	Number     string          `json:"number"`
	SourceType PayoutSource    `json:"sourceType"`
	SourceID   string          `json:"sourceId"`
	Payee      string          `json:"payee"`
	Amount     decimal.Decimal `json:"amount"`
	PaidOn     Date            `json:"paidOn"`
	Reference  string          `json:"reference,omitempty"`
	Matched    bool            `json:"matched"`
	CreatedAt  time.Time       `json:"createdAt"`
}
