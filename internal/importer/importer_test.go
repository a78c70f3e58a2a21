package importer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
)

func parseFile(t *testing.T, p Parser, name string) []model.BankTransaction {
	t.Helper()
	f, err := os.Open(filepath.Join("testdata", name))
	require.NoError(t, err)
	defer f.Close()

	txns, err := p.Parse(f)
	require.NoError(t, err)
	return txns
}

func TestStandardParser_Parse(t *testing.T) {
	txns := parseFile(t, &StandardParser{}, "standard.csv")
	require.Len(t, txns, 5)

	first := txns[0]
	assert.Equal(t, model.NewDate(2025, time.January, 6), first.PostedOn)
	assert.Equal(t, "MPESA DEPOSIT AMINA WANJIRU INV-2025-01-0001", first.Description)
	assert.Equal(t, "15000.00", first.Amount.StringFixed(2))
	assert.Equal(t, model.Credit, first.Direction)
	assert.Equal(t, "QAB12XY", first.Reference)
	assert.Equal(t, "115000.00", first.Balance.StringFixed(2))

	assert.Equal(t, "8500.00", txns[1].Amount.StringFixed(2), "thousands separator")
	assert.Empty(t, txns[1].Reference)

	transfer := txns[2]
	assert.Equal(t, model.Debit, transfer.Direction)
	assert.True(t, transfer.Amount.Equal(decimal.NewFromInt(42000)), "amount is unsigned")
}

func TestStandardParser_Errors(t *testing.T) {
	header := "date,description,amount,reference,balance\n"
	tests := []struct {
		name string
		row  string
		want string
	}{
		{"bad date", "06/01/2025,x,1.00,,\n", "parsing date"},
		{"bad amount", "2025-01-06,x,abc,,\n", "parsing amount"},
		{"zero amount", "2025-01-06,x,0.00,,\n", "amount must not be zero"},
		{"bad balance", "2025-01-06,x,1.00,,abc\n", "balance"},
		{"wrong field count", "2025-01-06,x,1.00\n", "reading standard CSV"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&StandardParser{}).Parse(strings.NewReader(header + tt.row))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestStandardParser_EmptyFile(t *testing.T) {
	txns, err := (&StandardParser{}).Parse(strings.NewReader("date,description,amount,reference,balance\n"))
	require.NoError(t, err)
	assert.Nil(t, txns)
}

func TestBRIParser_Parse(t *testing.T) {
	txns := parseFile(t, &BRIParser{}, "bri.csv")
	require.Len(t, txns, 3)

	assert.Equal(t, model.NewDate(2025, time.January, 6), txns[0].PostedOn)
	assert.Equal(t, model.Credit, txns[0].Direction)
	assert.Equal(t, "1500000.00", txns[0].Amount.StringFixed(2))
	assert.Equal(t, "KCP MENTENG", txns[0].Reference)

	assert.Equal(t, model.Debit, txns[1].Direction)
	assert.Equal(t, "750000.00", txns[1].Amount.StringFixed(2))

	assert.Equal(t, model.NewDate(2025, time.January, 31), txns[2].PostedOn)
}

func TestBRIParser_Errors(t *testing.T) {
	header := "date,description,branch,debit,credit,balance\n"
	tests := []struct {
		name string
		row  string
		want string
	}{
		{"iso date", "2025-01-06,x,KC,1.00,,\n", "parsing date"},
		{"both sides", "06/01/2025,x,KC,1.00,2.00,\n", "both debit and credit"},
		{"neither side", "06/01/2025,x,KC,,,\n", "neither debit nor credit"},
		{"bad credit", "06/01/2025,x,KC,,zz,\n", "credit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&BRIParser{}).Parse(strings.NewReader(header + tt.row))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "0"},
		{"12.50", "12.5"},
		{"1,234,567.89", "1234567.89"},
		{"(250.00)", "-250"},
		{" -3 ", "-3"},
	}
	for _, tt := range tests {
		got, err := parseAmount(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got.String(), tt.in)
	}
}

func TestFingerprint(t *testing.T) {
	base := model.BankTransaction{
		AccountCode: "main",
		PostedOn:    model.NewDate(2025, time.January, 6),
		Description: "MPESA  deposit   Amina",
		Amount:      decimal.RequireFromString("15000"),
		Direction:   model.Credit,
	}

	same := base
	same.AccountCode = "MAIN"
	same.Description = "mpesa deposit amina"
	same.Amount = decimal.RequireFromString("15000.00")
	same.Balance = decimal.RequireFromString("0.000")
	same.Reference = ""
	assert.Equal(t, Fingerprint(base), Fingerprint(same), "normalization ignores case, spacing and scale")

	other := base
	other.Direction = model.Debit
	assert.NotEqual(t, Fingerprint(base), Fingerprint(other))

	other = base
	other.Balance = decimal.RequireFromString("950.00")
	assert.NotEqual(t, Fingerprint(base), Fingerprint(other), "same charge twice in a day leaves different balances")

	other = base
	other.Reference = "KCP Sudirman"
	assert.NotEqual(t, Fingerprint(base), Fingerprint(other))

	other = base
	other.AccountCode = "savings"
	assert.NotEqual(t, Fingerprint(base), Fingerprint(other))

	assert.Len(t, Fingerprint(base), 64)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Get("standard"))

	r.Register(&StandardParser{})
	p := r.Get("STANDARD")
	require.NotNil(t, p)
	assert.Equal(t, "standard", p.Format())

	assert.Panics(t, func() { r.Register(&StandardParser{}) })
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{"bri", "standard"}, r.Formats())
	assert.NotNil(t, r.Get("bri"))
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jan.csv"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "FEB.CSV"), []byte("ab"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "processed"), 0o755))

	files, err := Scan(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	names := []string{files[0].Name, files[1].Name}
	assert.ElementsMatch(t, []string{"jan.csv", "FEB.CSV"}, names)
}

func TestScan_MissingDir(t *testing.T) {
	files, err := Scan(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Nil(t, files)
}

func TestMarkProcessed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jan.csv"), []byte("a"), 0o644))

	require.NoError(t, MarkProcessed(dir, "jan.csv"))

	_, err := os.Stat(filepath.Join(dir, "jan.csv"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "processed", "jan.csv"))
	assert.NoError(t, err)

	assert.Error(t, MarkProcessed(dir, "missing.csv"))
}
