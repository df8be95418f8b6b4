package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"CryptoHist/internal/logger"
	"CryptoHist/internal/model"
)

// DateFormat is the layout of fetch.start and fetch.end.
const DateFormat = "2006-01-02"

// DefaultStart is the first day the source publishes data for.
const DefaultStart = "2013-04-28"

// Config holds all application configuration.
type Config struct {
	Fetch struct {
		Force       bool   `yaml:"force"`
		Start       string `yaml:"start"`
		End         string `yaml:"end"`
		Concurrency int    `yaml:"concurrency"`
		Encoding    string `yaml:"encoding"`
	} `yaml:"fetch"`
	Cache struct {
		Path    string `yaml:"path"`
		Backend string `yaml:"backend"`
	} `yaml:"cache"`
	Source struct {
		BaseURL    string `yaml:"base_url"`
		ListingURL string `yaml:"listing_url"`
	} `yaml:"source"`
	HTTP struct {
		Timeout   time.Duration `yaml:"timeout"`
		Proxy     string        `yaml:"proxy"`
		UserAgent string        `yaml:"user_agent"`
	} `yaml:"http"`
	Redis struct {
		Addr      string `yaml:"addr"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		KeyPrefix string `yaml:"key_prefix"`
	} `yaml:"redis"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Schedule struct {
		Cron       string `yaml:"cron"`
		RunOnStart bool   `yaml:"run_on_start"`
	} `yaml:"schedule"`
	Log logger.Config `yaml:"log"`
}

// Load reads config from a YAML file, then applies .env and environment
// variable overrides and fills defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Already-set variables win over .env.
	_ = godotenv.Load(".env")

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("CRYPTOHIST_FORCE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CRYPTOHIST_FORCE: %w", err)
		}
		c.Fetch.Force = b
	}
	if v := os.Getenv("CRYPTOHIST_CACHE_PATH"); v != "" {
		c.Cache.Path = v
	}
	if v := os.Getenv("CRYPTOHIST_ENCODING"); v != "" {
		c.Fetch.Encoding = v
	}
	if v := os.Getenv("CRYPTOHIST_START"); v != "" {
		c.Fetch.Start = v
	}
	if v := os.Getenv("CRYPTOHIST_END"); v != "" {
		c.Fetch.End = v
	}
	if v := os.Getenv("CRYPTOHIST_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CRYPTOHIST_CONCURRENCY: %w", err)
		}
		c.Fetch.Concurrency = n
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.HTTP.Proxy = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if os.Getenv("RUN_ON_START") == "true" {
		c.Schedule.RunOnStart = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Fetch.Start == "" {
		c.Fetch.Start = DefaultStart
	}
	if c.Fetch.Concurrency == 0 {
		c.Fetch.Concurrency = 1
	}
	if c.Fetch.Encoding == "" {
		c.Fetch.Encoding = "utf-8"
	}
	if c.Cache.Path == "" {
		c.Cache.Path = "cache"
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "disk"
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = 30 * time.Second
	}
	if c.Schedule.Cron == "" {
		c.Schedule.Cron = "0 0 2 * * *"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks that all fields are usable.
func (c *Config) Validate() error {
	if c.Cache.Path == "" {
		return fmt.Errorf("cache.path is required")
	}
	switch c.Cache.Backend {
	case "disk":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for cache.backend redis")
		}
	default:
		return fmt.Errorf("cache.backend must be disk or redis, got %q", c.Cache.Backend)
	}
	if c.HTTP.Proxy != "" {
		if _, err := url.Parse(c.HTTP.Proxy); err != nil {
			return fmt.Errorf("http.proxy: %w", err)
		}
	}
	if c.Fetch.Concurrency < 1 {
		return fmt.Errorf("fetch.concurrency must be positive")
	}
	if _, err := c.Range(time.Now()); err != nil {
		return err
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	return nil
}

// Range resolves fetch.start and fetch.end. An empty end means the day of now.
func (c *Config) Range(now time.Time) (model.DateRange, error) {
	start, err := time.Parse(DateFormat, c.Fetch.Start)
	if err != nil {
		return model.DateRange{}, fmt.Errorf("fetch.start: %w", err)
	}
	end := model.Day(now)
	if c.Fetch.End != "" {
		if end, err = time.Parse(DateFormat, c.Fetch.End); err != nil {
			return model.DateRange{}, fmt.Errorf("fetch.end: %w", err)
		}
	}
	if end.Before(start) {
		return model.DateRange{}, fmt.Errorf("fetch.end %s is before fetch.start %s", c.Fetch.End, c.Fetch.Start)
	}
	return model.DateRange{Start: start, End: end}, nil
}

// NotifyEnabled reports whether Telegram credentials are configured.
func (c *Config) NotifyEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}
