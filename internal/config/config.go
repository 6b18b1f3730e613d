// Package config loads and validates the bot's YAML configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Storage   StorageConfig   `yaml:"storage"`
	Menu      MenuConfig      `yaml:"menu"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Feedback  FeedbackConfig  `yaml:"feedback"`
	Logging   LoggingConfig   `yaml:"logging"`
	Debug     DebugConfig     `yaml:"debug"`
}

type TelegramConfig struct {
	// Token falls back to the BOT_TOKEN environment variable when empty,
	// so the secret can stay out of the config file.
	Token       string   `yaml:"token"`
	PollTimeout Duration `yaml:"poll_timeout"`
}

type StorageConfig struct {
	Path        string   `yaml:"path"`
	BusyTimeout Duration `yaml:"busy_timeout"`
}

type MenuConfig struct {
	IndexURL       string   `yaml:"index_url"`
	BaseURL        string   `yaml:"base_url"`
	CacheDir       string   `yaml:"cache_dir"`
	FetchTimeout   Duration `yaml:"fetch_timeout"`
	ConvertBinary  string   `yaml:"convert_binary"`
	ConvertTimeout Duration `yaml:"convert_timeout"`
}

type BroadcastConfig struct {
	// Time is the daily firing time as local wall clock, "HH:MM".
	Time       string `yaml:"time"`
	Timezone   string `yaml:"timezone"`
	RatePerSec int    `yaml:"rate_per_sec"`
}

type FeedbackConfig struct {
	SMTPHost string   `yaml:"smtp_host"`
	SMTPPort int      `yaml:"smtp_port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

type LoggingConfig struct {
	Level   string `yaml:"level"`
	Console *bool  `yaml:"console"`
	File    string `yaml:"file"`
}

func (c LoggingConfig) ConsoleEnabled() bool { return c.Console == nil || *c.Console }

type DebugConfig struct {
	// Addr enables the health/pprof HTTP server when non-empty,
	// e.g. "127.0.0.1:6060".
	Addr string `yaml:"addr"`
}

// Default returns the configuration the bot runs with when the file omits a
// field.
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{PollTimeout: Duration(10 * time.Second)},
		Storage:  StorageConfig{Path: "./mensabot.sqlite", BusyTimeout: Duration(5 * time.Second)},
		Menu: MenuConfig{
			IndexURL:       "https://uke-healthkitchen.de/unsere-speisekarte/",
			BaseURL:        "https://uke-healthkitchen.de/fileadmin/PDFs",
			CacheDir:       "./menu-cache",
			FetchTimeout:   Duration(30 * time.Second),
			ConvertBinary:  "convert",
			ConvertTimeout: Duration(2 * time.Minute),
		},
		Broadcast: BroadcastConfig{
			Time:       "10:30",
			Timezone:   "Europe/Berlin",
			RatePerSec: 10,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the YAML file at path over the defaults and validates the
// result. A missing file is fine: defaults plus environment still make a
// runnable config.
func Load(path string) (*Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// fall through with defaults
	case err != nil:
		return nil, err
	default:
		dec := yaml.NewDecoder(strings.NewReader(string(b)))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		cfg.Telegram.Token = os.Getenv("BOT_TOKEN")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

var timeOfDayPattern = `^([01]?\d|2[0-3]):[0-5]\d$`

func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Telegram,
		validation.Field(&c.Telegram.Token, validation.Required.Error("telegram token missing (set telegram.token or BOT_TOKEN)")),
	); err != nil {
		return err
	}
	if err := validation.ValidateStruct(&c.Storage,
		validation.Field(&c.Storage.Path, validation.Required),
	); err != nil {
		return err
	}
	if err := validation.ValidateStruct(&c.Menu,
		validation.Field(&c.Menu.IndexURL, validation.Required),
		validation.Field(&c.Menu.BaseURL, validation.Required),
		validation.Field(&c.Menu.CacheDir, validation.Required),
	); err != nil {
		return err
	}
	if err := validation.ValidateStruct(&c.Broadcast,
		validation.Field(&c.Broadcast.Time, validation.Required, validation.Match(mustCompile(timeOfDayPattern))),
		validation.Field(&c.Broadcast.Timezone, validation.Required),
		validation.Field(&c.Broadcast.RatePerSec, validation.Min(0)),
	); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Broadcast.Timezone); err != nil {
		return fmt.Errorf("broadcast.timezone: %w", err)
	}
	return nil
}

// BroadcastTime parses broadcast.time into its hour and minute.
func (c *Config) BroadcastTime() (hour, minute int) {
	fmt.Sscanf(c.Broadcast.Time, "%d:%d", &hour, &minute)
	return hour, minute
}

// Location resolves broadcast.timezone; Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Broadcast.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
