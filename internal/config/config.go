package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const DefaultFilename = ".opscal.toml"

type Config struct {
	ClientID       string `toml:"client_id"`
	ClientSecret   string `toml:"client_secret"`
	VerbosityLevel int    `toml:"verbosity_level"`
	Database       string `toml:"database"`

	Calendar CalendarConfig `toml:"calendar"`
	Sync     SyncConfig     `toml:"sync"`
	Mayday   MaydayConfig   `toml:"mayday"`
	SMTP     SMTPConfig     `toml:"smtp"`
	Server   ServerConfig   `toml:"server"`

	// Dir is where the config file was found; relative database paths are
	// resolved against it.
	Dir string `toml:"-"`
}

type CalendarConfig struct {
	Provider              string `toml:"provider"` // "google" or "caldav"
	CalendarID            string `toml:"calendar_id"`
	AccountName           string `toml:"account_name"`
	ServerURL             string `toml:"server_url"`
	Username              string `toml:"username"`
	Password              string `toml:"password"`
	Timezone              string `toml:"timezone"`
	PlaceholderStart      string `toml:"placeholder_start"`
	PlaceholderEnd        string `toml:"placeholder_end"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

type SyncConfig struct {
	PastDays   int `toml:"past_days"`
	FutureDays int `toml:"future_days"`
	Limit      int `toml:"limit"`
}

type MaydayConfig struct {
	BaseURL              string `toml:"base_url"`
	TokenSecret          string `toml:"token_secret"`
	ConfirmWindowHours   int    `toml:"confirm_window_hours"`
	RebookValidityDays   int    `toml:"rebook_validity_days"`
	PurgeCancelledAfterD int    `toml:"purge_cancelled_after_days"`
}

type SMTPConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
	Batch    int    `toml:"batch"`
}

type ServerConfig struct {
	Listen string `toml:"listen"`
}

// Load reads filename from the working directory first, then from
// $HOME/.config/opscal/. A .env file next to the binary is honoured and
// OPSCAL_* variables override secrets.
func Load(filename string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(filename)
	dir := ""
	if err != nil {
		dir = filepath.Join(os.Getenv("HOME"), ".config", "opscal")
		data, err = os.ReadFile(filepath.Join(dir, filename))
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", filename, err)
		}
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Dir = dir
	return cfg, nil
}

// Parse decodes TOML and applies environment overrides and defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	override(&c.ClientSecret, "OPSCAL_CLIENT_SECRET")
	override(&c.Calendar.Password, "OPSCAL_CALDAV_PASSWORD")
	override(&c.SMTP.Password, "OPSCAL_SMTP_PASSWORD")
	override(&c.Mayday.TokenSecret, "OPSCAL_TOKEN_SECRET")
	override(&c.Database, "OPSCAL_DATABASE")
}

func (c *Config) applyDefaults() {
	if c.Database == "" {
		c.Database = ".opscal.db"
	}
	if c.Calendar.Provider == "" {
		c.Calendar.Provider = "google"
	}
	if c.Calendar.CalendarID == "" && c.Calendar.Provider == "google" {
		c.Calendar.CalendarID = "primary"
	}
	if c.Calendar.AccountName == "" {
		c.Calendar.AccountName = "default"
	}
	if c.Calendar.PlaceholderStart == "" {
		c.Calendar.PlaceholderStart = "08:00"
	}
	if c.Calendar.PlaceholderEnd == "" {
		c.Calendar.PlaceholderEnd = "09:00"
	}
	if c.Calendar.RequestTimeoutSeconds <= 0 {
		c.Calendar.RequestTimeoutSeconds = 30
	}
	if c.Sync.PastDays <= 0 {
		c.Sync.PastDays = 30
	}
	if c.Sync.FutureDays <= 0 {
		c.Sync.FutureDays = 90
	}
	if c.Sync.Limit <= 0 {
		c.Sync.Limit = 2500
	}
	if c.Mayday.ConfirmWindowHours <= 0 {
		c.Mayday.ConfirmWindowHours = 24
	}
	if c.Mayday.RebookValidityDays <= 0 {
		c.Mayday.RebookValidityDays = 14
	}
	if c.Mayday.PurgeCancelledAfterD <= 0 {
		c.Mayday.PurgeCancelledAfterD = 180
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.SMTP.Batch <= 0 {
		c.SMTP.Batch = 50
	}
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
}

func (c *Config) Validate() error {
	switch c.Calendar.Provider {
	case "google":
	case "caldav":
		if c.Calendar.ServerURL == "" || c.Calendar.CalendarID == "" {
			return fmt.Errorf("caldav provider needs server_url and calendar_id")
		}
	default:
		return fmt.Errorf("unsupported calendar provider %q", c.Calendar.Provider)
	}
	for _, v := range []string{c.Calendar.PlaceholderStart, c.Calendar.PlaceholderEnd} {
		if _, err := time.Parse("15:04", v); err != nil {
			return fmt.Errorf("placeholder time %q is not HH:MM", v)
		}
	}
	if c.Calendar.Timezone != "" {
		if _, err := time.LoadLocation(c.Calendar.Timezone); err != nil {
			return fmt.Errorf("unknown timezone %q: %w", c.Calendar.Timezone, err)
		}
	}
	return nil
}

// Location is the business timezone; placeholder windows are laid out in it.
func (c *Config) Location() *time.Location {
	if c.Calendar.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Calendar.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// DatabasePath resolves the database file against the config directory.
func (c *Config) DatabasePath() string {
	if filepath.IsAbs(c.Database) || c.Dir == "" || c.Database == ":memory:" {
		return c.Database
	}
	return filepath.Join(c.Dir, c.Database)
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Calendar.RequestTimeoutSeconds) * time.Second
}
