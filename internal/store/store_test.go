package store_test

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitriyabr/duma-erp-sub003/internal/apperr"
	"github.com/dmitriyabr/duma-erp-sub003/internal/store"
	"github.com/dmitriyabr/duma-erp-sub003/internal/store/storetest"
)

func TestOpen_MigrateIsIdempotent(t *testing.T) {
	db := storetest.New(t)
	require.NoError(t, db.Migrate(context.Background()))
	require.NoError(t, db.Migrate(context.Background()))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := store.Open(context.Background(), "postgres", "x", nil)
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	db := storetest.New(t)

	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO variant_groups (id, name, default_item_id) VALUES ('g1', 'Shirts', '')`)
		require.NoError(t, err)
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	n, err := store.Count(ctx, db, `SELECT COUNT(*) FROM variant_groups`)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO variant_groups (id, name, default_item_id) VALUES ('g1', 'Shirts', '')`)
		return err
	}))
	ok, err := store.Exists(ctx, db, `SELECT 1 FROM variant_groups WHERE id = ?`, "g1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWithDocTx_RetriesTakenNumber(t *testing.T) {
	ctx := context.Background()
	db := storetest.New(t)
	insert := `INSERT INTO variant_groups (id, name, default_item_id) VALUES (?, ?, '')`
	_, err := db.ExecContext(ctx, insert, "g1", "Shirts")
	require.NoError(t, err)

	names := []string{"Shirts", "Shirts", "Blazers"}
	calls := 0
	err = db.WithDocTx(ctx, func(tx *sql.Tx) error {
		name := names[calls]
		calls++
		_, err := tx.ExecContext(ctx, insert, "g2", name)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = db.WithDocTx(ctx, func(tx *sql.Tx) error {
		calls++
		_, err := tx.ExecContext(ctx, insert, "g3", "Shirts")
		return err
	})
	require.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, 3, calls)

	calls = 0
	err = db.WithDocTx(ctx, func(tx *sql.Tx) error {
		calls++
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, calls)
}

func TestIsUniqueViolation(t *testing.T) {
	ctx := context.Background()
	db := storetest.New(t)

	insert := `INSERT INTO variant_groups (id, name, default_item_id) VALUES (?, ?, '')`
	_, err := db.ExecContext(ctx, insert, "g1", "Shirts")
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, insert, "g2", "Shirts")
	require.Error(t, err)
	assert.True(t, db.Dialect.IsUniqueViolation(err))
	assert.False(t, db.Dialect.IsUniqueViolation(assert.AnError))
}

func TestInsertIgnore(t *testing.T) {
	ctx := context.Background()
	db := storetest.New(t)

	stmt := db.Dialect.InsertIgnore + ` INTO variant_groups (id, name, default_item_id) VALUES (?, ?, '')`
	res, err := db.ExecContext(ctx, stmt, "g1", "Shirts")
	require.NoError(t, err)
	n, _ := res.RowsAffected()
	assert.Equal(t, int64(1), n)

	res, err = db.ExecContext(ctx, stmt, "g2", "Shirts")
	require.NoError(t, err)
	n, _ = res.RowsAffected()
	assert.Equal(t, int64(0), n)
}

func TestNextDocNo(t *testing.T) {
	ctx := context.Background()
	db := storetest.New(t)
	on := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

	no, err := store.NextDocNo(ctx, db, "payouts", "OUT", on)
	require.NoError(t, err)
	assert.Equal(t, "OUT-2025-03-0001", no)

	_, err = db.ExecContext(ctx, `INSERT INTO payouts (id, number, source_type, source_id, payee, amount, paid_on, reference, created_at)
		VALUES ('p1', 'OUT-2025-03-0007', 'claim', 'c1', 'x', '1', '2025-03-10', '', ?)`, store.Now())
	require.NoError(t, err)

	no, err = store.NextDocNo(ctx, db, "payouts", "OUT", on)
	require.NoError(t, err)
	assert.Equal(t, "OUT-2025-03-0008", no)

	no, err = store.NextDocNo(ctx, db, "payouts", "OUT", on.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, "OUT-2025-04-0001", no)
}

func TestScanTime(t *testing.T) {
	want := time.Date(2025, 1, 2, 3, 4, 5, 6, time.UTC)
	var got time.Time
	require.NoError(t, store.ScanTime(&got).Scan(store.FormatTime(want)))
	assert.True(t, want.Equal(got))

	require.NoError(t, store.ScanTime(&got).Scan(nil))
	assert.True(t, got.IsZero())

	assert.Error(t, store.ScanTime(&got).Scan(12))
}

func TestNewPage(t *testing.T) {
	tests := []struct {
		limit, offset int
		want          store.Page
	}{
		{0, 0, store.Page{Limit: 50, Offset: 0}},
		{-3, -1, store.Page{Limit: 50, Offset: 0}},
		{10, 20, store.Page{Limit: 10, Offset: 20}},
		{9999, 0, store.Page{Limit: 500, Offset: 0}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, store.NewPage(tt.limit, tt.offset))
	}
}

func TestNewPaged(t *testing.T) {
	p := store.NewPaged[int](nil, 0, store.NewPage(10, 0))
	assert.NotNil(t, p.Items)
	assert.False(t, p.Pagination.HasNext)
	assert.Nil(t, p.Pagination.NextOffset)

	p = store.NewPaged([]int{1, 2}, 5, store.NewPage(2, 2))
	assert.True(t, p.Pagination.HasNext)
	require.NotNil(t, p.Pagination.NextOffset)
	assert.Equal(t, 4, *p.Pagination.NextOffset)

	p = store.NewPaged([]int{5}, 5, store.NewPage(2, 4))
	assert.False(t, p.Pagination.HasNext)
}

func TestWhere(t *testing.T) {
	var w store.Where
	assert.Equal(t, "", w.SQL())

	w.Add("status = ?", "issued")
	w.Like("  Kim ", "number", "bill_to")
	w.Like("", "ignored")
	assert.Equal(t, " WHERE status = ? AND (LOWER(number) LIKE ? OR LOWER(bill_to) LIKE ?)", w.SQL())
	assert.Equal(t, []any{"issued", "%kim%", "%kim%"}, w.Args())
}

func TestDialectFor(t *testing.T) {
	for _, name := range []string{"sqlite", "mysql"} {
		d, err := store.DialectFor(name)
		require.NoError(t, err)
		assert.Equal(t, name, d.Name)
		for _, stmt := range d.Schema() {
			assert.NotContains(t, stmt, "{{")
		}
		assert.NotEmpty(t, d.Indexes())
	}
	mysqlDialect, _ := store.DialectFor("mysql")
	schema := strings.Join(mysqlDialect.Schema(), "\n")
	assert.Contains(t, schema, "total DECIMAL(18,2)")
	assert.Contains(t, schema, "unit_price DECIMAL(18,2)")
	assert.Contains(t, schema, "balance DECIMAL(18,2)")
	assert.Contains(t, schema, "qty_on_hand DECIMAL(18,4)", "moving average cost and quantities keep four places")
	assert.Contains(t, schema, "confidence DECIMAL(18,4)")
}
