package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect captures the SQL differences between the supported backends.
type Dialect struct {
	Name string
	// InsertIgnore is the statement prefix that skips rows violating a unique key.
	InsertIgnore string
	// types expands column placeholders. {{money}} holds currency at two
	// places; {{qty}} holds quantities, moving average costs and confidence.
	types *strings.Replacer
}

// DialectFor returns the dialect of a driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlite":
		return Dialect{
			Name:         "sqlite",
			InsertIgnore: "INSERT OR IGNORE",
			types: strings.NewReplacer(
				"{{id}}", "TEXT",
				"{{str}}", "TEXT",
				"{{text}}", "TEXT",
				"{{money}}", "TEXT",
				"{{qty}}", "TEXT",
				"{{int}}", "INTEGER",
				"{{bool}}", "INTEGER",
				"{{engine}}", "",
			),
		}, nil
	case "mysql":
		return Dialect{
			Name:         "mysql",
			InsertIgnore: "INSERT IGNORE",
			types: strings.NewReplacer(
				"{{id}}", "VARCHAR(64)",
				"{{str}}", "VARCHAR(255)",
				"{{text}}", "TEXT",
				"{{money}}", "DECIMAL(18,2)",
				"{{qty}}", "DECIMAL(18,4)",
				"{{int}}", "INT",
				"{{bool}}", "TINYINT(1)",
				"{{engine}}", " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",
			),
		}, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Schema returns the CREATE TABLE statements for this dialect.
func (d Dialect) Schema() []string {
	out := make([]string, len(tables))
	for i, t := range tables {
		out[i] = d.types.Replace(t)
	}
	return out
}

// Indexes returns the secondary index statements for this dialect.
func (d Dialect) Indexes() []string {
	out := make([]string, 0, len(indexes))
	for _, ix := range indexes {
		if d.Name == "sqlite" {
			out = append(out, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", ix.name, ix.table, ix.cols))
		} else {
			out = append(out, fmt.Sprintf("CREATE INDEX %s ON %s (%s)", ix.name, ix.table, ix.cols))
		}
	}
	return out
}

// IsUniqueViolation reports whether err was caused by a unique or primary key constraint.
func (d Dialect) IsUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// IsDuplicateIndex reports whether err is MySQL's "duplicate key name" on CREATE INDEX.
func (d Dialect) IsDuplicateIndex(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1061
}

type index struct {
	name, table, cols string
}

var indexes = []index{
	{"idx_invoices_status_issue", "invoices", "status, issue_date"},
	{"idx_invoices_student", "invoices", "student_ref"},
	{"idx_invoice_lines_invoice", "invoice_lines", "invoice_id"},
	{"idx_payments_invoice", "payments", "invoice_id"},
	{"idx_payments_paid_on", "payments", "paid_on"},
	{"idx_po_supplier", "purchase_orders", "supplier_id"},
	{"idx_po_lines_po", "po_lines", "po_id"},
	{"idx_receipts_po", "goods_receipts", "po_id"},
	{"idx_items_group", "items", "variant_group_id"},
	{"idx_movements_item", "stock_movements", "item_id, created_at"},
	{"idx_claims_status", "claims", "status, incurred_on"},
	{"idx_payouts_source", "payouts", "source_type, source_id"},
	{"idx_payouts_paid_on", "payouts", "paid_on"},
	{"idx_bank_tx_account_date", "bank_transactions", "account_code, posted_on"},
	{"idx_bank_tx_status", "bank_transactions", "status"},
}

var tables = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id {{int}} PRIMARY KEY,
		name {{str}} NOT NULL,
		type {{str}} NOT NULL,
		parent_id {{int}} NOT NULL DEFAULT 0,
		tax_line {{str}} NOT NULL DEFAULT '',
		description {{text}} NOT NULL
	){{engine}}`,
	`CREATE TABLE IF NOT EXISTS invoices (
		id {{id}} PRIMARY KEY,
		number {{str}} NOT NULL UNIQUE,
		student_ref {{str}} NOT NULL,
		bill_to {{str}} NOT NULL,
		issue_date {{str}} NOT NULL,
		due_date {{str}} NOT NULL,
		status {{str}} NOT NULL,
		total {{money}} NOT NULL,
		paid {{money}} NOT NULL,
		notes {{text}} NOT NULL,
		created_at {{str}} NOT NULL,
		updated_at {{str}} NOT NULL
	){{engine}}`,
	`CREATE TABLE IF NOT EXISTS invoice_lines (
		id {{id}} PRIMARY KEY,
		invoice_id {{id}} NOT NULL,
		line_no {{int}} NOT NULL,
		description {{text}} NOT NULL,
		account_id {{int}} NOT NULL,
		item_id {{id}} NOT NULL DEFAULT '',
		kit_id {{id}} NOT NULL DEFAULT '',
		quantity {{qty}} NOT NULL,
		unit_price {{money}} NOT NULL,
		amount {{money}} NOT NULL
	){{engine}}`,
	`CREATE TABLE IF NOT EXISTS payments (
		id {{id}} PRIMARY KEY,
		number {{str}} NOT NULL UNIQUE,
		invoice_id {{id}} NOT NULL,
		amount {{money}} NOT NULL,
		paid_on {{str}} NOT NULL,
		method {{str}} NOT NULL,
		reference {{str}} NOT NULL DEFAULT '',
		created_at {{str}} NOT NULL
	){{engine}}`,
	`CREATE TABLE IF NOT EXISTS suppliers (
		id {{id}} PRIMARY KEY,
		name {{str}} NOT NULL UNIQUE,
		contact {{str}} NOT NULL DEFAULT '',
		email {{str}} NOT NULL DEFAULT '',
		phone {{str}} NOT NULL DEFAULT '',
		active {{bool}} NOT NULL,
		created_at {{str}} NOT NULL
	){{engine}}`,
	`CREATE TABLE IF NOT EXISTS purchase_orders (
		id {{id}} PRIMARY KEY,
		number {{str}} NOT NULL UNIQUE,
		supplier_id {{id}} NOT NULL,
		order_date {{str}} NOT NULL,
		expected_date {{str}},
		status {{str}} NOT NULL,
		total {{money}} NOT NULL,
		paid {{money}} NOT NULL,
		notes {{text}} NOT NULL,
		created_at {{str}} NOT NULL,
		updated_at {{str}} NOT NULL
	){{engine}}`,
	`CREATE TABLE IF NOT EXISTS po_lines (
		id {{id}} PRIMARY KEY,
		po_id {{id}} NOT NULL,
		line_no {{int}} NOT NULL,
		item_id {{id}} NOT NULL,
		description {{text}} NOT NULL,
		quantity {{qty}} NOT NULL,
		unit_cost {{money}} NOT NULL,
		received {{qty}} NOT NULL
	){{engine}}`,
	`CREATE TABLE IF NOT EXISTS goods_receipts (
		id {{id}} PRIMARY KEY,
		number {{str}} NOT NULL UNIQUE,
		po_id {{id}} NOT NULL,
		received_on {{str}} NOT NULL,
		notes {{text}} NOT NULL,
		created_at {{str}} NOT NULL
	){{engine}}`,
	`CREATE TABLE IF NOT EXISTS goods_receipt_lines (
		receipt_id {{id}} NOT NULL,
		po_line_id {{id}} NOT NULL,
		item_id {{id}} NOT NULL,
		quantity {{qty}} NOT NULL,
		PRIMARY KEY (receipt_id, po_line_id)
	){{engine}}`,
	`CREATE TABLE IF NOT EXISTS items (
		id {{id}} PRIMARY KEY,
		sku {{str}} NOT NULL UNIQUE,
		name {{str}} NOT NULL,
		unit {{str}} NOT NULL,
		variant_group_id {{id}} NOT NULL DEFAULT '',
		qty_on_hand {{qty}} NOT NULL,
		unit_cost {{qty}} NOT NULL,
		reorder_level {{qty}} NOT NULL,
		active {{bool}} NOT NULL,
		created_at {{str}} NOT NULL,
		updated_at {{str}} NOT NULL
	){{engine}}`,
	`CREATE TABLE IF NOT EXISTS variant_groups (
		id {{id}} PRIMARY KEY,
		name {{str}} NOT NULL UNIQUE,
		default_item_id {{id}} NOT NULL DEFAULT ''
	){{engine}}`,
	`CREATE TABLE IF NOT EXISTS kits (
		id {{id}} PRIMARY KEY,
		code {{str}} NOT NULL UNIQUE,
		name {{str}} NOT NULL,
		price {{money}} NOT NULL,
		active {{bool}} NOT NULL,
		created_at {{str}} NOT NULL
	){{engine}}`,
	`CREATE TABLE IF NOT EXISTS kit_components (
		kit_id {{id}} NOT NULL,
		position {{int}} NOT NULL,
		item_id {{id}} NOT NULL DEFAULT '',
		variant_group_id {{id}} NOT NULL DEFAULT '',
		quantity {{qty}} NOT NULL,
		PRIMARY KEY (kit_id, position)
	){{engine}}`,
	`CREATE TABLE IF NOT EXISTS stock_movements (
		id {{id}} PRIMARY KEY,
		item_id {{id}} NOT NULL,
		type {{str}} NOT NULL,
		quantity {{qty}} NOT NULL,
		unit_cost {{qty}} NOT NULL,
		ref_type {{str}} NOT NULL,
		ref_id {{id}} NOT NULL DEFAULT '',
		note {{text}} NOT NULL,
		created_at {{str}} NOT NULL
	){{engine}}`,
	`CREATE TABLE IF NOT EXISTS claims (
		id {{id}} PRIMARY KEY,
		number {{str}} NOT NULL UNIQUE,
		claimant {{str}} NOT NULL,
		account_id {{int}} NOT NULL,
		description {{text}} NOT NULL,
		amount {{money}} NOT NULL,
		incurred_on {{str}} NOT NULL,
		status {{str}} NOT NULL,
		reviewed_by {{str}} NOT NULL DEFAULT '',
		review_note {{text}} NOT NULL,
		payout_id {{id}} NOT NULL DEFAULT '',
		created_at {{str}} NOT NULL,
		updated_at {{str}} NOT NULL
	){{engine}}`,
	`CREATE TABLE IF NOT EXISTS payouts (
		id {{id}} PRIMARY KEY,
		number {{str}} NOT NULL UNIQUE,
		source_type {{str}} NOT NULL,
		source_id {{id}} NOT NULL,
		payee {{str}} NOT NULL,
		amount {{money}} NOT NULL,
		paid_on {{str}} NOT NULL,
		reference {{str}} NOT NULL DEFAULT '',
		created_at {{str}} NOT NULL
	){{engine}}`,
	`CREATE TABLE IF NOT EXISTS bank_transactions (
		id {{id}} PRIMARY KEY,
		account_code {{str}} NOT NULL,
		posted_on {{str}} NOT NULL,
		description {{text}} NOT NULL,
		amount {{money}} NOT NULL,
		direction {{str}} NOT NULL,
		balance {{money}} NOT NULL,
		reference {{str}} NOT NULL DEFAULT '',
		fingerprint {{str}} NOT NULL UNIQUE,
		batch_id {{str}} NOT NULL,
		status {{str}} NOT NULL,
		created_at {{str}} NOT NULL
	){{engine}}`,
	`CREATE TABLE IF NOT EXISTS bank_matches (
		id {{id}} PRIMARY KEY,
		bank_transaction_id {{id}} NOT NULL UNIQUE,
		record_type {{str}} NOT NULL,
		record_id {{id}} NOT NULL,
		amount {{money}} NOT NULL,
		difference {{money}} NOT NULL,
		confidence {{qty}} NOT NULL,
		method {{str}} NOT NULL,
		note {{text}} NOT NULL,
		run_id {{str}} NOT NULL DEFAULT '',
		created_at {{str}} NOT NULL,
		UNIQUE (record_type, record_id)
	){{engine}}`,
	`CREATE TABLE IF NOT EXISTS recon_runs (
		id {{str}} PRIMARY KEY,
		account_code {{str}} NOT NULL DEFAULT '',
		processed {{int}} NOT NULL,
		auto_matched {{int}} NOT NULL,
		needs_review {{int}} NOT NULL,
		unmatched {{int}} NOT NULL,
		started_at {{str}} NOT NULL,
		completed_at {{str}} NOT NULL
	){{engine}}`,
}
