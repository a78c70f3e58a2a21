package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
)

// BRIParser parses BRI internet banking statement exports:
// "date,description,branch,debit,credit,balance" with DD/MM/YYYY dates.
type BRIParser struct{}

const (
	briDateFormat = "02/01/2006"
	briNumFields  = 6
	briColDate    = 0
	briColDesc    = 1
	briColBranch  = 2
	briColDebit   = 3
	briColCredit  = 4
	briColBal     = 5
)

// Format returns the parser name.
func (p *BRIParser) Format() string { return "bri" }

// Parse reads a BRI CSV and returns BankTransactions.
func (p *BRIParser) Parse(r io.Reader) ([]model.BankTransaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = briNumFields
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading bri CSV: %w", err)
	}

	if len(records) <= 1 {
		return nil, nil
	}

	var txns []model.BankTransaction
	for i, rec := range records[1:] {
		txn, err := parseBRIRow(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

func parseBRIRow(rec []string) (model.BankTransaction, error) {
	t, err := time.Parse(briDateFormat, strings.TrimSpace(rec[briColDate]))
	if err != nil {
		return model.BankTransaction{}, fmt.Errorf("parsing date %q: %w", rec[briColDate], err)
	}

	debit, err := parseAmount(rec[briColDebit])
	if err != nil {
		return model.BankTransaction{}, fmt.Errorf("debit: %w", err)
	}
	credit, err := parseAmount(rec[briColCredit])
	if err != nil {
		return model.BankTransaction{}, fmt.Errorf("credit: %w", err)
	}
	balance, err := parseAmount(rec[briColBal])
	if err != nil {
		return model.BankTransaction{}, fmt.Errorf("balance: %w", err)
	}

	txn := model.BankTransaction{
		PostedOn:    model.DateOf(t),
		Description: strings.TrimSpace(rec[briColDesc]),
		Balance:     balance,
		Reference:   strings.TrimSpace(rec[briColBranch]),
	}
	switch {
	case !debit.IsZero() && !credit.IsZero():
		return model.BankTransaction{}, errors.New("both debit and credit are set")
	case !debit.IsZero():
		txn.Amount, txn.Direction = debit.Abs(), model.Debit
	case !credit.IsZero():
		txn.Amount, txn.Direction = credit.Abs(), model.Credit
	default:
		return model.BankTransaction{}, errors.New("neither debit nor credit is set")
	}
	return txn, nil
}
