package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cfg := Default("Duma Academy")
	cfg.BankAccounts = []BankAccount{
		{Code: "BRI-OPS", Name: "Operations", Bank: "BRI", LastFour: "1234", Format: "bri"},
	}
	cfg.Reconciliation.AmountTolerance = 2.5

	path := filepath.Join(t.TempDir(), "duma.yaml")
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, cfg.School.Name, got.School.Name)
	assert.Equal(t, cfg.School.Currency, got.School.Currency)
	assert.Equal(t, cfg.Fiscal.YearStart, got.Fiscal.YearStart)
	assert.InDelta(t, 2.5, got.Reconciliation.AmountTolerance, 0.001)
	assert.Equal(t, 7, got.Reconciliation.DateWindowDays)
	assert.InDelta(t, cfg.Reconciliation.AutoConfirm, got.Reconciliation.AutoConfirm, 0.001)
	assert.Equal(t, cfg.Database, got.Database)
	assert.Equal(t, cfg.Server.CORSOrigins, got.Server.CORSOrigins)
	require.Len(t, got.BankAccounts, 1)
	assert.Equal(t, "BRI-OPS", got.BankAccounts[0].Code)
	assert.Equal(t, "bri", got.BankAccounts[0].Format)
}

func TestDefaults(t *testing.T) {
	cfg := Default("Duma Academy")

	assert.Equal(t, "Duma Academy", cfg.School.Name)
	assert.Equal(t, "01-01", cfg.Fiscal.YearStart)
	assert.InDelta(t, 1.00, cfg.Reconciliation.AmountTolerance, 0.001)
	assert.Equal(t, 7, cfg.Reconciliation.DateWindowDays)
	assert.InDelta(t, 0.90, cfg.Reconciliation.AutoConfirm, 0.001)
	assert.InDelta(t, 0.70, cfg.Reconciliation.ReviewFlag, 0.001)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Empty(t, cfg.BankAccounts)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", got.Database.Driver)
	assert.Equal(t, ":8080", got.Server.Addr)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "duma.yaml")
	require.NoError(t, Save(path, Default("Duma Academy")))

	t.Setenv("DUMA_SERVER_ADDR", ":9999")
	t.Setenv("DUMA_RECON_AMOUNT_TOLERANCE", "0.5")

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", got.Server.Addr)
	assert.InDelta(t, 0.5, got.Reconciliation.AmountTolerance, 0.001)
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "duma.yaml")
	cfg := Default("Duma Academy")
	cfg.Database.Driver = "oracle"
	require.NoError(t, Save(path, cfg))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative tolerance", func(c *Config) { c.Reconciliation.AmountTolerance = -1 }, "amount_tolerance"},
		{"threshold above one", func(c *Config) { c.Reconciliation.AutoConfirm = 1.5 }, "within [0, 1]"},
		{"review above auto", func(c *Config) { c.Reconciliation.ReviewFlag = 0.95 }, "review_flag"},
		{"missing dsn", func(c *Config) { c.Database.DSN = "" }, "database.dsn"},
		{"bad fiscal year start", func(c *Config) { c.Fiscal.YearStart = "13-40" }, "fiscal.year_start"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default("x")
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBankAccountLookup(t *testing.T) {
	cfg := Default("x")
	cfg.BankAccounts = []BankAccount{{Code: "BRI-OPS", Format: "bri"}}
	acct, ok := cfg.BankAccount("bri-ops")
	require.True(t, ok)
	assert.Equal(t, "bri", acct.Format)
	_, ok = cfg.BankAccount("missing")
	assert.False(t, ok)
}

func TestYAMLFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "duma.yaml")
	require.NoError(t, Save(path, Default("Duma Academy")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	contents := string(data)

	assert.Contains(t, contents, "name: Duma Academy")
	assert.Contains(t, contents, "year_start: 01-01")
	assert.Contains(t, contents, "amount_tolerance: 1")
	assert.Contains(t, contents, "driver: sqlite")
}

func TestYearStartFor(t *testing.T) {
	f := FiscalConfig{YearStart: "07-01"}

	got, err := f.YearStartFor(time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2024-07-01", got.Format("2006-01-02"))

	got, err = f.YearStartFor(time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2025-07-01", got.Format("2006-01-02"))

	_, err = FiscalConfig{YearStart: "July"}.YearStartFor(time.Now())
	assert.Error(t, err)
}
