package application

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	marketreport "aeso-report/internal/marketreport/domain"
)

const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"

	ContentTypeCSV  = "csv"
	ContentTypeHTML = "html"
)

// WindowConfig defines the rolling window fetched per run.
type WindowConfig struct {
	RollingDays int `yaml:"rolling_days"`
	BatchDays   int `yaml:"batch_days"`
}

// SourceConfig defines where the report is fetched from.
type SourceConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Path        string        `yaml:"path"`
	ContentType string        `yaml:"content_type"`
	Timeout     time.Duration `yaml:"timeout"`
}

// StorageConfig selects the snapshot store.
type StorageConfig struct {
	Driver  string `yaml:"driver"`
	Root    string `yaml:"root"`
	RawRoot string `yaml:"raw_root"`
}

// OutputConfig selects optional export columns.
type OutputConfig struct {
	IncludeClosingPrice bool `yaml:"include_closing_price"`
}

// ScheduleConfig defines the daily run time (UTC, HH:MM).
type ScheduleConfig struct {
	DailyAt string `yaml:"daily_at"`
}

// Config is the report pipeline configuration.
type Config struct {
	Layout    marketreport.Layout    `yaml:"layout"`
	PeakHours marketreport.PeakHours `yaml:"peak_hours"`
	Sites     map[string]string      `yaml:"sites"`
	Tolerance float64                `yaml:"tolerance"`
	Workers   int                    `yaml:"workers"`
	Window    WindowConfig           `yaml:"window"`
	Source    SourceConfig           `yaml:"source"`
	Storage   StorageConfig          `yaml:"storage"`
	Output    OutputConfig           `yaml:"output"`
	Schedule  ScheduleConfig         `yaml:"schedule"`
}

// DefaultConfig matches the public summary report and the tracked sites.
func DefaultConfig() Config {
	return Config{
		Layout:    marketreport.DefaultLayout(),
		PeakHours: marketreport.DefaultPeakHours(),
		Sites: map[string]string{
			"VQ6":  "Waterton",
			"ARD1": "Ardenville",
			"BTR1": "Blue Trail",
		},
		Tolerance: 1e-6,
		Workers:   4,
		Window: WindowConfig{
			RollingDays: 60,
			BatchDays:   30,
		},
		Source: SourceConfig{
			BaseURL:     "http://ets.aeso.ca",
			Path:        "/ets_web/ip/Market/Reports/PublicSummaryAllReportServlet",
			ContentType: ContentTypeCSV,
			Timeout:     30 * time.Second,
		},
		Storage: StorageConfig{
			Driver:  StorageFile,
			Root:    filepath.FromSlash("var/transformed_reports"),
			RawRoot: filepath.FromSlash("var/raw_reports"),
		},
		Schedule: ScheduleConfig{DailyAt: "06:00"},
	}
}

// LoadConfig loads defaults, overlays REPORT_CONFIG yaml, then REPORT_* env.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("REPORT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := ParseConfig(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if value := os.Getenv("REPORT_SITES"); value != "" {
		sites, err := parseSites(value)
		if err != nil {
			return cfg, err
		}
		cfg.Sites = sites
	}
	cfg.PeakHours.Start = getenvIntDefault("REPORT_PEAK_START", cfg.PeakHours.Start)
	cfg.PeakHours.End = getenvIntDefault("REPORT_PEAK_END", cfg.PeakHours.End)
	cfg.Tolerance = getenvFloatDefault("REPORT_TOLERANCE", cfg.Tolerance)
	cfg.Workers = getenvIntDefault("REPORT_WORKERS", cfg.Workers)
	cfg.Window.RollingDays = getenvIntDefault("REPORT_ROLLING_DAYS", cfg.Window.RollingDays)
	cfg.Window.BatchDays = getenvIntDefault("REPORT_BATCH_DAYS", cfg.Window.BatchDays)
	cfg.Source.BaseURL = getenvDefault("REPORT_SOURCE_URL", cfg.Source.BaseURL)
	cfg.Source.ContentType = getenvDefault("REPORT_CONTENT_TYPE", cfg.Source.ContentType)
	cfg.Storage.Driver = getenvDefault("REPORT_STORAGE_DRIVER", cfg.Storage.Driver)
	cfg.Storage.Root = getenvDefault("REPORT_STORAGE_ROOT", cfg.Storage.Root)
	cfg.Storage.RawRoot = getenvDefault("REPORT_RAW_ROOT", cfg.Storage.RawRoot)
	cfg.Schedule.DailyAt = getenvDefault("REPORT_DAILY_AT", cfg.Schedule.DailyAt)
	if value := os.Getenv("REPORT_INCLUDE_CLOSING_PRICE"); value != "" {
		cfg.Output.IncludeClosingPrice, _ = strconv.ParseBool(value)
	}

	return cfg, cfg.Validate()
}

// ParseConfig overlays yaml onto cfg. Omitted keys keep their current values.
func ParseConfig(data []byte, cfg *Config) error {
	if cfg == nil {
		return errors.New("report config: nil config")
	}
	// a configured site list replaces the defaults instead of merging into them
	sites := cfg.Sites
	cfg.Sites = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg.Sites = sites
		return fmt.Errorf("report config: %w", err)
	}
	if cfg.Sites == nil {
		cfg.Sites = sites
	}
	return nil
}

// Validate checks the values every component depends on.
func (c Config) Validate() error {
	if err := c.Layout.Validate(); err != nil {
		return err
	}
	if err := c.PeakHours.Validate(); err != nil {
		return err
	}
	if len(c.Sites) == 0 {
		return errors.New("report config: sites required")
	}
	if c.Tolerance < 0 {
		return errors.New("report config: negative tolerance")
	}
	if c.Window.RollingDays <= 0 || c.Window.BatchDays <= 0 || c.Window.BatchDays > maxBatchDays {
		return fmt.Errorf("report config: window must be positive and batches at most %d days", maxBatchDays)
	}
	switch c.Source.ContentType {
	case ContentTypeCSV, ContentTypeHTML:
	default:
		return fmt.Errorf("report config: unsupported content type %q", c.Source.ContentType)
	}
	switch c.Storage.Driver {
	case StorageFile:
		if c.Storage.Root == "" {
			return errors.New("report config: storage root required")
		}
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("report config: unsupported storage driver %q", c.Storage.Driver)
	}
	return nil
}

func parseSites(value string) (map[string]string, error) {
	sites := make(map[string]string)
	for _, part := range splitCSV(value) {
		id, name, _ := strings.Cut(part, "=")
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("report config: invalid site entry %q", part)
		}
		sites[id] = strings.TrimSpace(name)
	}
	return sites, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
