// Package config loads daybook settings from .env, an optional YAML file and
// the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/govalues/money"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds process-wide settings.
type Config struct {
	HTTPAddr    string   `yaml:"http_addr"`
	DatabaseURL string   `yaml:"database_url"`
	SQLitePath  string   `yaml:"sqlite_path"`
	Currency    string   `yaml:"currency"`
	LogLevel    string   `yaml:"log_level"`
	LogFormat   string   `yaml:"log_format"`
	CORSOrigins []string `yaml:"cors_allowed_origins"`
	Kafka       Kafka    `yaml:"kafka"`
	Rollover    Rollover `yaml:"rollover"`
	DevSeed     bool     `yaml:"dev_seed"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Rollover controls the automatic close of the previous month.
type Rollover struct {
	Enabled bool `yaml:"enabled"`
	// At is the UTC wall-clock time (HH:MM) on the 1st of each month.
	At string `yaml:"at"`
}

// Clock returns the parsed hour and minute of At.
func (r Rollover) Clock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(r.At))
	if err != nil {
		return 0, 0, fmt.Errorf("rollover time %q: want HH:MM", r.At)
	}
	return t.Hour(), t.Minute(), nil
}

func defaults() Config {
	return Config{
		HTTPAddr:  ":8080",
		Currency:  "INR",
		LogLevel:  "info",
		LogFormat: "json",
		Rollover:  Rollover{Enabled: false, At: "00:05"},
	}
}

// Load builds the configuration. A missing .env file is not an error.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg := defaults()
	if path := os.Getenv("DAYBOOK_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}
	applyEnv(&cfg)
	cfg.Currency = strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.HTTPAddr, "HTTP_ADDR")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.SQLitePath, "SQLITE_PATH")
	setString(&cfg.Currency, "LEDGER_CURRENCY")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.LogFormat, "LOG_FORMAT")
	setString(&cfg.Kafka.Topic, "KAFKA_TOPIC")
	setString(&cfg.Rollover.At, "ROLLOVER_AT")
	if v := splitCSV(os.Getenv("CORS_ALLOWED_ORIGINS")); len(v) > 0 {
		cfg.CORSOrigins = v
	}
	if v := splitCSV(os.Getenv("KAFKA_BROKERS")); len(v) > 0 {
		cfg.Kafka.Brokers = v
	}
	setBool(&cfg.Rollover.Enabled, "ROLLOVER_ENABLED")
	setBool(&cfg.DevSeed, "DEV_SEED")
}

// Validate checks values that would otherwise fail late at startup.
func (c Config) Validate() error {
	curr, err := money.ParseCurr(c.Currency)
	if err != nil {
		return fmt.Errorf("currency %q: %w", c.Currency, err)
	}
	if curr.Code() != c.Currency {
		return fmt.Errorf("currency %q: use the ISO 4217 code", c.Currency)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("log format %q: want json or text", c.LogFormat)
	}
	if c.Rollover.Enabled {
		if _, _, err := c.Rollover.Clock(); err != nil {
			return err
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	switch strings.ToLower(v) {
	case "yes", "y", "on":
		*dst = true
		return
	}
	if b, err := strconv.ParseBool(v); err == nil {
		*dst = b
	}
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
