package store

import (
	"strings"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Page is a normalized limit/offset window.
type Page struct {
	Limit  int
	Offset int
}

// NewPage clamps limit to (0, MaxLimit] (0 or negative means DefaultLimit) and
// negative offsets to zero.
func NewPage(limit, offset int) Page {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return Page{Limit: limit, Offset: offset}
}

// SQL returns the LIMIT/OFFSET clause.
func (p Page) SQL() string {
	return " LIMIT ? OFFSET ?"
}

// Args returns the arguments for SQL.
func (p Page) Args() []any {
	p = NewPage(p.Limit, p.Offset)
	return []any{p.Limit, p.Offset}
}

// Pagination is the metadata returned with every list.
type Pagination struct {
	Total      int  `json:"total"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	HasNext    bool `json:"hasNext"`
	NextOffset *int `json:"nextOffset"`
}

// Paged is one page of a list.
type Paged[T any] struct {
	Items      []T        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// NewPaged builds the envelope. Items is never nil so it encodes as [].
func NewPaged[T any](items []T, total int, p Page) Paged[T] {
	p = NewPage(p.Limit, p.Offset)
	if items == nil {
		items = []T{}
	}
	pg := Pagination{Total: total, Limit: p.Limit, Offset: p.Offset}
	if next := p.Offset + len(items); next < total {
		pg.HasNext = true
		pg.NextOffset = &next
	}
	return Paged[T]{Items: items, Pagination: pg}
}

// Where accumulates AND-ed filter clauses with their arguments.
type Where struct {
	clauses []string
	args    []any
}

// Add appends clause (with ? placeholders) and its args.
func (w *Where) Add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

// Like appends a case-insensitive substring match of q over any of cols.
func (w *Where) Like(q string, cols ...string) {
	q = strings.TrimSpace(q)
	if q == "" || len(cols) == 0 {
		return
	}
	pattern := "%" + strings.ToLower(q) + "%"
	parts := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		parts[i] = "LOWER(" + c + ") LIKE ?"
		args[i] = pattern
	}
	w.Add("("+strings.Join(parts, " OR ")+")", args...)
}

// SQL returns " WHERE a AND b" or "" when empty.
func (w *Where) SQL() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// Args returns the collected arguments.
func (w *Where) Args() []any {
	return w.args
}
