package accounts

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
)

// Header is the first row WriteAccounts emits. ReadAccounts locates columns
// by name, so files may reorder them or leave out the optional ones.
var Header = []string{"id", "name", "type", "parent_id", "tax_line", "description"}

var requiredColumns = []string{"id", "name", "type"}

// columns maps a header name to its index in the file.
type columns map[string]int

func newColumns(header []string) (columns, error) {
	cols := make(columns, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := cols[name]; dup {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		cols[name] = i
	}
	var missing []string
	for _, req := range requiredColumns {
		if _, ok := cols[req]; !ok {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

// get returns the trimmed value of column name, or "" when the file lacks it.
func (c columns) get(rec []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// ReadAccounts reads a chart-of-accounts CSV. Blank rows are skipped.
func ReadAccounts(r io.Reader) ([]model.Account, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading accounts CSV: %w", err)
	}
	cols, err := newColumns(header)
	if err != nil {
		return nil, fmt.Errorf("reading accounts CSV: %w", err)
	}

	var accts []model.Account
	for row := 2; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return accts, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading accounts CSV: %w", err)
		}
		if !slices.ContainsFunc(rec, func(v string) bool { return strings.TrimSpace(v) != "" }) {
			continue
		}
		acct, err := cols.account(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		accts = append(accts, acct)
	}
}

func (c columns) account(rec []string) (model.Account, error) {
	id, err := strconv.Atoi(c.get(rec, "id"))
	if err != nil {
		return model.Account{}, fmt.Errorf("parsing id %q: %w", c.get(rec, "id"), err)
	}
	typ := model.AccountType(strings.ToLower(c.get(rec, "type")))
	if !typ.Valid() {
		return model.Account{}, fmt.Errorf("unknown account type %q", c.get(rec, "type"))
	}
	var parentID int
	if p := c.get(rec, "parent_id"); p != "" {
		if parentID, err = strconv.Atoi(p); err != nil {
			return model.Account{}, fmt.Errorf("parsing parent_id %q: %w", p, err)
		}
	}
	return model.Account{
		ID:          id,
		Name:        c.get(rec, "name"),
		Type:        typ,
		ParentID:    parentID,
		TaxLine:     c.get(rec, "tax_line"),
		Description: c.get(rec, "description"),
	}, nil
}

// WriteAccounts writes accts in Header order.
func WriteAccounts(w io.Writer, accts []model.Account) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, a := range accts {
		parent := ""
		if a.ParentID != 0 {
			parent = strconv.Itoa(a.ParentID)
		}
		rec := []string{strconv.Itoa(a.ID), a.Name, string(a.Type), parent, a.TaxLine, a.Description}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing account %d: %w", a.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
