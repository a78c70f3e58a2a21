package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of a bank statement line.
type Direction string

const (
	// Credit is money into the school account.
	Credit Direction = "CR"
	// Debit is money out of the school account.
	Debit Direction = "DB"
)

// BankTxStatus is the reconciliation state of a bank statement line.
type BankTxStatus string

const (
	BankTxUnmatched BankTxStatus = "unmatched"
	BankTxMatched   BankTxStatus = "matched"
	BankTxIgnored   BankTxStatus = "ignored"
)

// BankTransaction is a parsed bank statement line.
type BankTransaction struct {
	ID          string          `json:"id"`
	AccountCode string          `json:"accountCode"`
	PostedOn    Date            `json:"postedOn"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"` // always positive; Direction carries the sign
	Direction   Direction       `json:"direction"`
	Balance     decimal.Decimal `json:"balance"`
	Reference   string          `json:"reference,omitempty"`
	Fingerprint string          `json:"-"`
	BatchID     string          `json:"batchId,omitempty"`
	Status      BankTxStatus    `json:"status"`
	Match       *Match          `json:"match,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// RecordType names the internal ledger record a bank line is matched to.
type RecordType string

const (
	RecordPayment RecordType = "payment"
	RecordPayout  RecordType = "payout"
)

// RecordTypeFor returns the record type that can settle a bank line of direction d.
func RecordTypeFor(d Direction) RecordType {
	if d == Debit {
		return RecordPayout
	}
	return RecordPayment
}

// MatchMethod records how a match was made.
type MatchMethod string

const (
	MatchAuto   MatchMethod = "auto"
	MatchManual MatchMethod = "manual"
)

// Match links one bank transaction to one payment or payout.
type Match struct {
	ID                string          `json:"id"`
	BankTransactionID string          `json:"bankTransactionId"`
	RecordType        RecordType      `json:"recordType"`
	RecordID          string          `json:"recordId"`
	Amount            decimal.Decimal `json:"amount"`
	Difference        decimal.Decimal `json:"difference"`
	Confidence        decimal.Decimal `json:"confidence"`
	Method            MatchMethod     `json:"method"`
	Note              string          `json:"note,omitempty"`
	RunID             string          `json:"runId,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// Candidate is a scored ledger record that could settle a bank line.
type Candidate struct {
	RecordType RecordType      `json:"recordType"`
	RecordID   string          `json:"recordId"`
	Number     string          `json:"number"`
	Party      string          `json:"party"`
	Amount     decimal.Decimal `json:"amount"`
	Date       Date            `json:"date"`
	Reference  string          `json:"reference,omitempty"`
	Difference decimal.Decimal `json:"difference"`
	DaysApart  int             `json:"daysApart"`
	Confidence decimal.Decimal `json:"confidence"`
}

// ReconRun summarizes one auto-match pass.
type ReconRun struct {
	ID          string    `json:"id"`
	AccountCode string    `json:"accountCode,omitempty"`
	Processed   int       `json:"processed"`
	AutoMatched int       `json:"autoMatched"`
	NeedsReview int       `json:"needsReview"`
	Unmatched   int       `json:"unmatched"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
}
