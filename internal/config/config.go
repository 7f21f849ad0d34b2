package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds everything a run needs. Only the billing API credentials are
// mandatory, and only for commands that talk to the API.
type Config struct {
	APIKey      string
	BaseURL     string
	HTTPTimeout time.Duration

	DataDir    string
	SummaryCSV string
	LogLevel   string

	GeminiAPIKey string
	GeminiModel  string

	GCSBucket string

	BQProject string
	BQDataset string
	BQTable   string

	NotionToken      string
	NotionDatabaseID string
}

// Paths lists where each artifact of a run lives.
type Paths struct {
	RawDir       string
	ProcessedDir string

	CustomersRaw  string
	CustomersFlat string
	CustomersCSV  string

	InvoicesRaw  string
	InvoicesFlat string
	InvoicesCSV  string

	CreditGrantsRaw  string
	CreditGrantsFlat string
	CreditGrantsCSV  string

	SummaryCSV  string
	SummaryXLSX string
}

const (
	DefaultDataDir     = "data"
	DefaultHTTPTimeout = 30 * time.Second
	DefaultLogLevel    = "info"
	DefaultGeminiModel = "gemini-2.5-flash"
	DefaultBQTable     = "customer_balance_summary"
)

// ErrMissingCredentials is returned by RequireAPI.
var ErrMissingCredentials = errors.New("config: billing API credentials missing")

// Load reads .env (if present), an optional reporter.yml and the process
// environment, in increasing order of precedence.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("reporter")
	v.SetConfigType("yml")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("DATA_DIR", DefaultDataDir)
	v.SetDefault("HTTP_TIMEOUT", DefaultHTTPTimeout)
	v.SetDefault("LOG_LEVEL", DefaultLogLevel)
	v.SetDefault("GEMINI_MODEL", DefaultGeminiModel)
	v.SetDefault("BQ_TABLE", DefaultBQTable)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: reading reporter.yml: %w", err)
		}
	}

	cfg := Config{
		APIKey:           strings.TrimSpace(v.GetString("API_KEY")),
		BaseURL:          strings.TrimRight(strings.TrimSpace(v.GetString("BASE_URL")), "/"),
		HTTPTimeout:      v.GetDuration("HTTP_TIMEOUT"),
		DataDir:          v.GetString("DATA_DIR"),
		SummaryCSV:       v.GetString("SUMMARY_CSV"),
		LogLevel:         v.GetString("LOG_LEVEL"),
		GeminiAPIKey:     strings.TrimSpace(v.GetString("GEMINI_API_KEY")),
		GeminiModel:      v.GetString("GEMINI_MODEL"),
		GCSBucket:        strings.TrimSpace(v.GetString("GCS_BUCKET")),
		BQProject:        strings.TrimSpace(v.GetString("BQ_PROJECT")),
		BQDataset:        strings.TrimSpace(v.GetString("BQ_DATASET")),
		BQTable:          strings.TrimSpace(v.GetString("BQ_TABLE")),
		NotionToken:      strings.TrimSpace(v.GetString("NOTION_TOKEN")),
		NotionDatabaseID: strings.TrimSpace(v.GetString("NOTION_DATABASE_ID")),
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = DefaultHTTPTimeout
	}

	return cfg, nil
}

// RequireAPI fails fast when the billing API cannot be authenticated,
// instead of sending requests with an empty bearer token.
func (c Config) RequireAPI() error {
	var missing []string
	if c.APIKey == "" {
		missing = append(missing, "API_KEY")
	}
	if c.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s is required", ErrMissingCredentials, strings.Join(missing, " and "))
	}
	return nil
}

// Paths derives all artifact locations from DataDir.
func (c Config) Paths() Paths {
	dataDir := c.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir
	}
	raw := filepath.Join(dataDir, "raw")
	processed := filepath.Join(dataDir, "processed")

	summary := c.SummaryCSV
	if summary == "" {
		summary = filepath.Join(processed, "summary.csv")
	}

	return Paths{
		RawDir:       raw,
		ProcessedDir: processed,

		CustomersRaw:  filepath.Join(raw, "customers.json"),
		CustomersFlat: filepath.Join(raw, "customers_flat.json"),
		CustomersCSV:  filepath.Join(processed, "customers.csv"),

		InvoicesRaw:  filepath.Join(raw, "invoices.json"),
		InvoicesFlat: filepath.Join(raw, "invoices_flat.json"),
		InvoicesCSV:  filepath.Join(processed, "invoices.csv"),

		CreditGrantsRaw:  filepath.Join(raw, "credit_grants.json"),
		CreditGrantsFlat: filepath.Join(raw, "credit_grants_flat.json"),
		CreditGrantsCSV:  filepath.Join(processed, "credit_grants.csv"),

		SummaryCSV:  summary,
		SummaryXLSX: strings.TrimSuffix(summary, filepath.Ext(summary)) + ".xlsx",
	}
}

// CustomerInvoicesRaw is the per-customer raw invoice dump.
func (p Paths) CustomerInvoicesRaw(customerID string) string {
	return filepath.Join(p.RawDir, customerID+"_invoices.json")
}
