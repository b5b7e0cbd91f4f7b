package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"RegionMetrics/internal/aggregate"
	"RegionMetrics/internal/canon"
)

const (
	defaultTimezone   = "UTC"
	configPathEnv     = "REGION_METRICS_CONFIG"
	dataDirEnv        = "REGION_METRICS_DATA_DIR"
	snapshotPathEnv   = "REGION_METRICS_SNAPSHOT"
	logLevelEnv       = "REGION_METRICS_LOG_LEVEL"
	serverAddrEnv     = "REGION_METRICS_ADDR"
	databaseDSNEnv    = "DATABASE_DSN"
	forecastURLEnv    = "FORECAST_URL"
	forecastAPIKeyEnv = "FORECAST_API_KEY"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Input         InputConfig        `yaml:"input"`
	Canonical     CanonicalConfig    `yaml:"canonical"`
	Aggregation   aggregate.Settings `yaml:"aggregation"`
	Snapshot      SnapshotConfig     `yaml:"snapshot"`
	Database      DatabaseConfig     `yaml:"database"`
	Forecast      ForecastConfig     `yaml:"forecast"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Server        ServerConfig       `yaml:"server"`
	Notifications NotificationConfig `yaml:"notifications"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// InputConfig describes where the category batches live and how they look.
type InputConfig struct {
	BaseDir string                      `yaml:"baseDir"`
	Dirs    map[string]string           `yaml:"dirs"`
	Pattern string                      `yaml:"pattern"`
	Columns ColumnsConfig               `yaml:"columns"`
	Schemas map[string]aggregate.Schema `yaml:"schemas"`
}

// ColumnsConfig names the key columns of every batch file.
type ColumnsConfig struct {
	Region   string `yaml:"region"`
	District string `yaml:"district"`
	Date     string `yaml:"date"`
}

// CanonicalConfig carries the entity universe and correction tables.
type CanonicalConfig struct {
	Entities      []string          `yaml:"entities"`
	Aliases       map[string]string `yaml:"aliases"`
	Reassignments map[string]string `yaml:"reassignments"`
}

// SnapshotConfig describes the published document.
type SnapshotConfig struct {
	Path            string `yaml:"path"`
	DisableManifest bool   `yaml:"disableManifest"`
}

// DatabaseConfig describes the optional Postgres mirror.
type DatabaseConfig struct {
	DSN       string `yaml:"dsn"`
	Table     string `yaml:"table"`
	BatchSize int    `yaml:"batchSize"`
}

// ForecastConfig wires the forecasting collaborators.
type ForecastConfig struct {
	URL       string        `yaml:"url"`
	APIKey    string        `yaml:"apiKey"`
	ModelFile string        `yaml:"modelFile"`
	Horizon   int           `yaml:"horizon"`
	Steps     []float64     `yaml:"steps"`
	Timeout   time.Duration `yaml:"timeout"`
}

// SchedulerConfig defines when the refresh should run.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// ServerConfig configures the query API.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
	CacheTTL        time.Duration `yaml:"cacheTtl"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// Load reads YAML configuration from path (or REGION_METRICS_CONFIG when path
// is empty) over the defaults, then applies environment overrides. Keys absent
// from the file keep their default; keys present win even when zero.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
		var file struct {
			Canonical CanonicalConfig `yaml:"canonical"`
		}
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.Canonical = canonicalTables(file.Canonical)
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	return cfg, nil
}

// canonicalTables layers the file's canonical section over the built-in
// tables. When the file narrows the entity list, built-in aliases and
// reassignments pointing outside it are dropped; entries from the file are
// kept as written.
func canonicalTables(file CanonicalConfig) CanonicalConfig {
	tables := canon.DefaultTables()
	out := CanonicalConfig{
		Entities:      tables.Entities,
		Aliases:       tables.Aliases,
		Reassignments: tables.Reassignments,
	}

	if len(file.Entities) > 0 {
		out.Entities = append([]string(nil), file.Entities...)
		universe := canon.NewUniverse(out.Entities)
		for from, to := range out.Aliases {
			if !universe.Contains(to) {
				delete(out.Aliases, from)
			}
		}
		for district, region := range out.Reassignments {
			if !universe.Contains(region) {
				delete(out.Reassignments, district)
			}
		}
	}

	for from, to := range file.Aliases {
		out.Aliases[from] = to
	}
	for district, region := range file.Reassignments {
		out.Reassignments[district] = region
	}
	return out
}

// Validate reports every setting that would make a run meaningless.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Input.BaseDir) == "" {
		errs = append(errs, errors.New("input.baseDir is required"))
	}
	if strings.TrimSpace(c.Snapshot.Path) == "" {
		errs = append(errs, errors.New("snapshot.path is required"))
	}
	if len(c.Canonical.Entities) == 0 {
		errs = append(errs, errors.New("canonical.entities must not be empty"))
	}
	if err := c.Aggregation.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("aggregation: %w", err))
	}
	for _, step := range c.Forecast.Steps {
		if step <= -1 {
			errs = append(errs, fmt.Errorf("forecast.steps: %v would project a negative volume", step))
		}
	}
	if c.Forecast.Horizon < 0 {
		errs = append(errs, fmt.Errorf("forecast.horizon must not be negative, got %d", c.Forecast.Horizon))
	}
	if c.Server.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("server.cacheTtl must not be negative, got %s", c.Server.CacheTTL))
	}
	return errors.Join(errs...)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(dataDirEnv); v != "" {
		c.Input.BaseDir = v
	}

	if v := os.Getenv(snapshotPathEnv); v != "" {
		c.Snapshot.Path = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(serverAddrEnv); v != "" {
		c.Server.Addr = v
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(forecastURLEnv); v != "" {
		c.Forecast.URL = v
	}

	if v := os.Getenv(forecastAPIKeyEnv); v != "" {
		c.Forecast.APIKey = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	tables := canon.DefaultTables()
	return Config{
		Logging: LoggingConfig{Level: "info"},
		Input: InputConfig{
			BaseDir: "data/raw",
			Pattern: "*.csv",
			Columns: ColumnsConfig{Region: "state", District: "district", Date: "date"},
		},
		Canonical: CanonicalConfig{
			Entities:      tables.Entities,
			Aliases:       tables.Aliases,
			Reassignments: tables.Reassignments,
		},
		Aggregation: aggregate.DefaultSettings(),
		Snapshot:    SnapshotConfig{Path: "data/processed_metrics.json"},
		Database:    DatabaseConfig{Table: "region_metrics", BatchSize: 500},
		Forecast: ForecastConfig{
			Horizon: 3,
			Steps:   []float64{0.05, 0.05, 0.05},
			Timeout: 15 * time.Second,
		},
		Scheduler: SchedulerConfig{CronExpression: "0 2 * * *", Timezone: defaultTimezone, location: tz},
		Server: ServerConfig{
			Addr:            ":5001",
			CacheTTL:        30 * time.Second,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}
