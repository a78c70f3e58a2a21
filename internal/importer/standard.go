package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
)

// StandardParser reads the generic export "date,description,amount,reference,balance"
// with ISO dates and signed amounts (positive = credit).
type StandardParser struct{}

const (
	stdNumFields = 5
	stdColDate   = 0
	stdColDesc   = 1
	stdColAmount = 2
	stdColRef    = 3
	stdColBal    = 4
)

// Format returns the parser name.
func (p *StandardParser) Format() string { return "standard" }

// Parse reads a standard CSV and returns BankTransactions.
func (p *StandardParser) Parse(r io.Reader) ([]model.BankTransaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = stdNumFields
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading standard CSV: %w", err)
	}

	if len(records) <= 1 {
		return nil, nil
	}

	var txns []model.BankTransaction
	for i, rec := range records[1:] {
		txn, err := parseStandardRow(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

func parseStandardRow(rec []string) (model.BankTransaction, error) {
	date, err := model.ParseDate(strings.TrimSpace(rec[stdColDate]))
	if err != nil {
		return model.BankTransaction{}, err
	}

	amount, err := parseAmount(rec[stdColAmount])
	if err != nil {
		return model.BankTransaction{}, err
	}
	if amount.IsZero() {
		return model.BankTransaction{}, errors.New("amount must not be zero")
	}

	balance, err := parseAmount(rec[stdColBal])
	if err != nil {
		return model.BankTransaction{}, fmt.Errorf("balance: %w", err)
	}

	dir := model.Credit
	if amount.IsNegative() {
		dir = model.Debit
	}

	return model.BankTransaction{
		PostedOn:    date,
		Description: strings.TrimSpace(rec[stdColDesc]),
		Amount:      amount.Abs(),
		Direction:   dir,
		Balance:     balance,
		Reference:   strings.TrimSpace(rec[stdColRef]),
	}, nil
}
