package config

import (
	"errors"
	"fmt"
	"io/fs"
	"isinFlow/internal/domain/model"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// Config holds all app configuration
type Config struct {
	Env string

	// Server
	HTTPPort string

	// Logging
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	// Display
	DisplayTZ string

	// Backing source
	PostgresDSN     string
	PostgresMigrate bool
	RecordsTable    string
	SQLiteArchive   string
	SheetAPIURL     string
	SourceTimeout   time.Duration

	// Side channel
	SideChannelURL     string
	SideChannelTimeout time.Duration

	// Sync
	PollInterval     time.Duration
	FailureThreshold int
	AutoTrigger      bool
	WriteTimeout     time.Duration

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SnapshotTTL   time.Duration

	// ClickHouse
	ClickhouseUsername string
	ClickhousePassword string
	ClickhouseAddr     string
	ClickhouseDatabase string
	ClickhouseTimeout  int

	// Kafka
	KafkaBrokers       []string
	KafkaTopic         string
	KafkaConsumerGroup string
	KafkaBatchSize     int
	KafkaBatchTimeout  int // milliseconds

	// App settings
	EventBufferSize int
	Demo            bool
	ReferenceFile   string
}

// LoadConfig loads configuration from environment variables, with optional .env file
func LoadConfig() *Config {
	for _, path := range []string{".env", filepath.Join("../..", ".env")} {
		err := godotenv.Load(path)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("failed to load env file", slog.String("path", path), slog.String("error", err.Error()))
		}
	}

	cfg := &Config{
		Env: getEnv("ENV", EnvLocal),

		// Server
		HTTPPort: getEnv("HTTP_PORT", "8080"),

		// Logging
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 50),
		LogMaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 5),
		LogMaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 14),

		DisplayTZ: getEnv("DISPLAY_TZ", "Europe/Berlin"),

		// Backing source
		PostgresDSN:     getEnv("POSTGRES_DSN", ""),
		PostgresMigrate: getEnvAsBool("POSTGRES_MIGRATE", false),
		RecordsTable:    getEnv("RECORDS_TABLE", "scraped_bond_isins"),
		SQLiteArchive:   getEnv("SQLITE_ARCHIVE", ""),
		SheetAPIURL:     getEnv("SHEET_API_URL", ""),
		SourceTimeout:   getEnvAsDuration("SOURCE_TIMEOUT", 10*time.Second),

		// Side channel
		SideChannelURL:     getEnv("SIDE_CHANNEL_URL", ""),
		SideChannelTimeout: getEnvAsDuration("SIDE_CHANNEL_TIMEOUT", 5*time.Second),

		// Sync
		PollInterval:     getEnvAsDuration("POLL_INTERVAL", 5*time.Second),
		FailureThreshold: getEnvAsInt("FAILURE_THRESHOLD", 3),
		AutoTrigger:      getEnvAsBool("AUTO_TRIGGER", false),
		WriteTimeout:     getEnvAsDuration("WRITE_TIMEOUT", 10*time.Second),

		// Redis
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		SnapshotTTL:   getEnvAsDuration("SNAPSHOT_TTL", 24*time.Hour),

		// ClickHouse
		ClickhouseUsername: getEnv("CLICKHOUSE_USERNAME", ""),
		ClickhousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),
		ClickhouseAddr:     getEnv("CLICKHOUSE_ADDR", ""),
		ClickhouseDatabase: getEnv("CLICKHOUSE_DATABASE", "default"),
		ClickhouseTimeout:  getEnvAsInt("CLICKHOUSE_TIMEOUT", 10),

		// Kafka
		KafkaBrokers:       getEnvAsSlice("KAFKA_BROKERS", nil, ","),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "bond_changes"),
		KafkaConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "isinflow-group"),
		KafkaBatchSize:     getEnvAsInt("KAFKA_BATCH_SIZE", 500),
		KafkaBatchTimeout:  getEnvAsInt("KAFKA_BATCH_TIMEOUT", 3000),

		// App settings
		EventBufferSize: getEnvAsInt("EVENT_BUFFER_SIZE", 10000),
		Demo:            getEnvAsBool("DEMO", false),
		ReferenceFile:   getEnv("REFERENCE_FILE", ""),
	}

	return cfg
}

// Location resolves DisplayTZ, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DisplayTZ)
	if err != nil {
		slog.Warn("unknown display timezone, using UTC", slog.String("tz", c.DisplayTZ))
		return time.UTC
	}
	return loc
}

// Reference is static reference data loaded from a YAML file: extra
// bookrunner aliases, the initial auto-trigger rules and seed rows.
type Reference struct {
	BookrunnerAliases map[string]string `yaml:"bookrunnerAliases"`
	Rules             []RuleConfig      `yaml:"rules"`
	Seed              []map[string]any  `yaml:"seed"`
}

type RuleConfig struct {
	ID       string  `yaml:"id"`
	Currency string  `yaml:"currency"`
	MaxSize  float64 `yaml:"maxSize"`
}

// AutoTriggerRules converts the configured rules.
func (r *Reference) AutoTriggerRules() []model.AutoTriggerRule {
	rules := make([]model.AutoTriggerRule, 0, len(r.Rules))
	for _, rc := range r.Rules {
		rules = append(rules, model.AutoTriggerRule{ID: rc.ID, Currency: rc.Currency, MaxSize: rc.MaxSize})
	}
	return rules
}

// SeedRows returns the seed rows as raw records.
func (r *Reference) SeedRows() []model.RawRecord {
	rows := make([]model.RawRecord, 0, len(r.Seed))
	for _, row := range r.Seed {
		if len(row) == 0 {
			continue
		}
		rows = append(rows, model.RawRecord(row))
	}
	return rows
}

// LoadReference reads a reference file. An empty path yields an empty reference.
func LoadReference(path string) (*Reference, error) {
	ref := &Reference{}
	if path == "" {
		return ref, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reference file: %w", err)
	}
	if err := yaml.Unmarshal(data, ref); err != nil {
		return nil, fmt.Errorf("parse reference file %s: %w", path, err)
	}
	return ref, nil
}

// Helper functions for parsing environment variables
func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	valStr := getEnv(key, "")
	if val, err := strconv.ParseBool(valStr); err == nil {
		return val
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	valStr := getEnv(key, "")
	if val, err := time.ParseDuration(valStr); err == nil && val > 0 {
		return val
	}
	return defaultVal
}

func getEnvAsSlice(key string, defaultVal []string, sep string) []string {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultVal
	}
	parts := strings.Split(valStr, sep)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
