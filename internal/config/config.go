package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the top-level duma.yaml configuration.
type Config struct {
	School         SchoolConfig         `mapstructure:"school" yaml:"school"`
	Fiscal         FiscalConfig         `mapstructure:"fiscal" yaml:"fiscal"`
	BankAccounts   []BankAccount        `mapstructure:"bank_accounts" yaml:"bank_accounts,omitempty"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation" yaml:"reconciliation"`
	Database       DatabaseConfig       `mapstructure:"database" yaml:"database"`
	Server         ServerConfig         `mapstructure:"server" yaml:"server"`
	Log            LogConfig            `mapstructure:"log" yaml:"log"`
	Paths          PathsConfig          `mapstructure:"paths" yaml:"paths"`
}

// SchoolConfig identifies the institution.
type SchoolConfig struct {
	Name     string `mapstructure:"name" yaml:"name"`
	Currency string `mapstructure:"currency" yaml:"currency"`
}

// FiscalConfig defines the fiscal year boundaries.
type FiscalConfig struct {
	YearStart string `mapstructure:"year_start" yaml:"year_start"` // "MM-DD" format, e.g. "07-01"
}

// BankAccount is a school bank account whose statements are reconciled.
type BankAccount struct {
	Code     string `mapstructure:"code" yaml:"code"`
	Name     string `mapstructure:"name" yaml:"name"`
	Bank     string `mapstructure:"bank" yaml:"bank"`
	LastFour string `mapstructure:"last_four" yaml:"last_four"`
	Format   string `mapstructure:"format" yaml:"format"` // statement parser, e.g. "standard", "bri"
}

// ReconciliationConfig tunes statement matching.
type ReconciliationConfig struct {
	AmountTolerance float64 `mapstructure:"amount_tolerance" yaml:"amount_tolerance"`
	DateWindowDays  int     `mapstructure:"date_window_days" yaml:"date_window_days"`
	AutoConfirm     float64 `mapstructure:"auto_confirm" yaml:"auto_confirm"`
	ReviewFlag      float64 `mapstructure:"review_flag" yaml:"review_flag"`
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // "sqlite" or "mysql"
	DSN    string `mapstructure:"dsn" yaml:"dsn"`       // Secret when it embeds a password
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr                string   `mapstructure:"addr" yaml:"addr"`
	CORSOrigins         []string `mapstructure:"cors_origins" yaml:"cors_origins"`
	ReadTimeoutSeconds  int      `mapstructure:"read_timeout_seconds" yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `mapstructure:"write_timeout_seconds" yaml:"write_timeout_seconds"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// PathsConfig locates on-disk state.
type PathsConfig struct {
	DataDir   string `mapstructure:"data_dir" yaml:"data_dir"`
	ImportDir string `mapstructure:"import_dir" yaml:"import_dir"`
}

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string][]string{
	"school.name":                     {"DUMA_SCHOOL_NAME"},
	"database.driver":                 {"DUMA_DATABASE_DRIVER", "DB_DRIVER"},
	"database.dsn":                    {"DUMA_DATABASE_DSN", "DATABASE_URL"},
	"server.addr":                     {"DUMA_SERVER_ADDR", "ADDR"},
	"log.level":                       {"DUMA_LOG_LEVEL"},
	"log.development":                 {"DUMA_LOG_DEVELOPMENT"},
	"paths.data_dir":                  {"DUMA_DATA_DIR"},
	"paths.import_dir":                {"DUMA_IMPORT_DIR"},
	"reconciliation.amount_tolerance": {"DUMA_RECON_AMOUNT_TOLERANCE"},
	"reconciliation.date_window_days": {"DUMA_RECON_DATE_WINDOW_DAYS"},
}

// Load reads a duma.yaml file, falling back to defaults when it does not
// exist. Environment variables override values from either source.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default(""))

	if err := bindEnvs(v); err != nil {
		return nil, fmt.Errorf("binding env: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
			v.SetConfigFile(path)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new school.
func Default(schoolName string) *Config {
	return &Config{
		School: SchoolConfig{
			Name:     schoolName,
			Currency: "KES",
		},
		Fiscal: FiscalConfig{
			YearStart: "01-01",
		},
		Reconciliation: ReconciliationConfig{
			AmountTolerance: 1.00,
			DateWindowDays:  7,
			AutoConfirm:     0.90,
			ReviewFlag:      0.70,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "file:data/duma.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		},
		Server: ServerConfig{
			Addr:                ":8080",
			CORSOrigins:         []string{"http://localhost:3000", "http://127.0.0.1:3000"},
			ReadTimeoutSeconds:  15,
			WriteTimeoutSeconds: 30,
		},
		Log: LogConfig{
			Level: "info",
		},
		Paths: PathsConfig{
			DataDir:   "data",
			ImportDir: "import",
		},
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var problems []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		problems = append(problems, fmt.Sprintf("database.driver %q must be sqlite or mysql", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		problems = append(problems, "database.dsn is required")
	}
	if _, err := c.Fiscal.YearStartFor(time.Now()); err != nil {
		problems = append(problems, err.Error())
	}
	r := c.Reconciliation
	if r.AmountTolerance < 0 {
		problems = append(problems, "reconciliation.amount_tolerance must not be negative")
	}
	if r.DateWindowDays < 0 {
		problems = append(problems, "reconciliation.date_window_days must not be negative")
	}
	if r.AutoConfirm < 0 || r.AutoConfirm > 1 || r.ReviewFlag < 0 || r.ReviewFlag > 1 {
		problems = append(problems, "reconciliation thresholds must be within [0, 1]")
	}
	if r.ReviewFlag > r.AutoConfirm {
		problems = append(problems, "reconciliation.review_flag must not exceed auto_confirm")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// YearStartFor returns the first day of the fiscal year containing t.
func (f FiscalConfig) YearStartFor(t time.Time) (time.Time, error) {
	md, err := time.Parse("01-02", f.YearStart)
	if err != nil {
		return time.Time{}, fmt.Errorf("fiscal.year_start %q must be MM-DD", f.YearStart)
	}
	start := time.Date(t.Year(), md.Month(), md.Day(), 0, 0, 0, 0, time.UTC)
	if t.Before(start) {
		start = start.AddDate(-1, 0, 0)
	}
	return start, nil
}

// BankAccount returns the configured account with the given code.
func (c *Config) BankAccount(code string) (BankAccount, bool) {
	for _, a := range c.BankAccounts {
		if strings.EqualFold(a.Code, code) {
			return a, true
		}
	}
	return BankAccount{}, false
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("school.currency", d.School.Currency)
	v.SetDefault("fiscal.year_start", d.Fiscal.YearStart)
	v.SetDefault("reconciliation.amount_tolerance", d.Reconciliation.AmountTolerance)
	v.SetDefault("reconciliation.date_window_days", d.Reconciliation.DateWindowDays)
	v.SetDefault("reconciliation.auto_confirm", d.Reconciliation.AutoConfirm)
	v.SetDefault("reconciliation.review_flag", d.Reconciliation.ReviewFlag)
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.read_timeout_seconds", d.Server.ReadTimeoutSeconds)
	v.SetDefault("server.write_timeout_seconds", d.Server.WriteTimeoutSeconds)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("paths.data_dir", d.Paths.DataDir)
	v.SetDefault("paths.import_dir", d.Paths.ImportDir)
}

func bindEnvs(v *viper.Viper) error {
	for key, envs := range envBindings {
		inputs := slices.Insert(slices.Clone(envs), 0, key)
		if err := v.BindEnv(inputs...); err != nil {
			return err
		}
	}
	return nil
}
