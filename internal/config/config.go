package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// CalendarConfig describes a single subscribed calendar feed.
type CalendarConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for caching and logging.
	ID string `yaml:"id" json:"id"`
	// Name is the calendar name stored on every record; it is also the
	// partition key for reconciliation.
	Name string `yaml:"name" json:"name"`
}

// ValueRuleConfig adjusts the chart weight of matching events.
type ValueRuleConfig struct {
	// Calendar the rule applies to (case-insensitive).
	Calendar string `yaml:"calendar" json:"calendar"`
	// Keyword that must appear in the summary (case-insensitive).
	Keyword string `yaml:"keyword" json:"keyword"`
	// Value assigned instead of the default 1.
	Value float64 `yaml:"value" json:"value"`
}

// DatabaseConfig points at the external events table. Upsert is
// disabled when DSN is empty.
type DatabaseConfig struct {
	DSN   string `yaml:"dsn" json:"dsn"`
	Table string `yaml:"table" json:"table"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the status API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the status API. Empty
	// disables the server.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is the minimum log level: debug, info or error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Timezone is the IANA reference timezone: all-day events are
	// anchored at midnight in this zone and timed events are rendered
	// into it.
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a cron-style schedule (e.g. "*/30 * * * *") for
	// periodic snapshot runs.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HistoryStart is the inclusive lower bound (YYYY-MM-DD) of the
	// snapshot window.
	HistoryStart string `yaml:"history_start" json:"history_start"`

	// HorizonDays extends the snapshot window this many days past now.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// HistoryPath is the JSON file holding the historical record set.
	HistoryPath string `yaml:"history_path" json:"history_path"`

	// ExportDir receives the per-calendar chart files and the prepared
	// tabular exports.
	ExportDir string `yaml:"export_dir" json:"export_dir"`

	// CacheDir holds the per-feed HTTP cache (ETag / Last-Modified).
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// Calendars is the list of subscribed feeds.
	Calendars []CalendarConfig `yaml:"calendars" json:"calendars"`

	// ExcludeCalendars are calendar names skipped entirely at fetch
	// time. Distinct from ExemptCalendars: excluded calendars never
	// enter the snapshot at all.
	ExcludeCalendars []string `yaml:"exclude_calendars" json:"exclude_calendars"`

	// ExemptCalendars are calendars whose records never get
	// reclassified as modified or deleted (typically institutional
	// timetables regenerated wholesale on each fetch).
	ExemptCalendars []string `yaml:"exempt_calendars" json:"exempt_calendars"`

	// ValueRules adjust chart weights per calendar/keyword.
	ValueRules []ValueRuleConfig `yaml:"value_rules" json:"value_rules"`

	// Database configures the external calendar_events upsert sink.
	Database DatabaseConfig `yaml:"database" json:"database"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:           "",
		LogLevel:         "info",
		Timezone:         "Europe/Amsterdam",
		RefreshCron:      "*/30 * * * *",
		HistoryStart:     "2024-09-01",
		HorizonDays:      7,
		HistoryPath:      "data/historical_data.json",
		ExportDir:        "data",
		CacheDir:         "data/ics-cache",
		Calendars:        []CalendarConfig{},
		ExcludeCalendars: []string{},
		ExemptCalendars:  []string{},
		ValueRules: []ValueRuleConfig{
			{Calendar: "Fitness", Keyword: "rest", Value: 0.5},
		},
		Database: DatabaseConfig{Table: "calendar_events"},
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs from older versions still behave correctly.
func (c *Config) Normalize() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Timezone == "" {
		c.Timezone = "Europe/Amsterdam"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/30 * * * *"
	}
	if c.HistoryStart == "" {
		c.HistoryStart = "2024-09-01"
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = 7
	}
	if c.HistoryPath == "" {
		c.HistoryPath = "data/historical_data.json"
	}
	if c.ExportDir == "" {
		c.ExportDir = "data"
	}
	if c.CacheDir == "" {
		c.CacheDir = "data/ics-cache"
	}
	if c.Calendars == nil {
		c.Calendars = []CalendarConfig{}
	}
	if c.ExcludeCalendars == nil {
		c.ExcludeCalendars = []string{}
	}
	if c.ExemptCalendars == nil {
		c.ExemptCalendars = []string{}
	}
	if c.ValueRules == nil {
		c.ValueRules = []ValueRuleConfig{
			{Calendar: "Fitness", Keyword: "rest", Value: 0.5},
		}
	}
	if c.Database.Table == "" {
		c.Database.Table = "calendar_events"
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".calhist-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the
// package-level Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
