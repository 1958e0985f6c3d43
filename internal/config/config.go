package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Default model allow-list. The first entry is the startup default.
var DefaultModels = []string{"gpt-4o", "gpt-4-turbo", "gpt-3.5-turbo"}

const (
	defaultHistoryWindow = 10

	// Long-poll duration in seconds. The Telegram HTTP client timeout is
	// derived from this, so it must be resolved at load time.
	defaultPollTimeout = 30
)

// Config represents runtime configuration for the bot.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`

	// Secrets are taken from the environment, never from the config file.
	TelegramToken string `json:"-"`
	OpenAIKey     string `json:"-"`
}

type BasicConfig struct {
	ServerAddress      string   `json:"server_address"`
	AdminToken         string   `json:"admin_token"`
	AdminIDs           []int64  `json:"admin_ids"`
	Models             []string `json:"models"`
	HistoryWindow      int      `json:"history_window"`
	PollTimeout        int      `json:"poll_timeout"`
	WorkerIdleTimeout  int      `json:"worker_idle_timeout"`
	RateLimitPerMinute int      `json:"rate_limit_per_minute"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// Load reads configuration from the provided path (defaults to config.json)
// and pulls required secrets from the environment. A missing credential is a
// configuration error; the process must not start without one.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if len(cfg.Databases) == 0 {
		return nil, fmt.Errorf("at least one database must be configured")
	}
	for name, db := range cfg.Databases {
		if db.DSN != "" && !filepath.IsAbs(db.DSN) && isFileDSN(name) {
			db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
			cfg.Databases[name] = db
		}
	}

	if len(cfg.BasicConfig.Models) == 0 {
		cfg.BasicConfig.Models = DefaultModels
	}
	if cfg.BasicConfig.HistoryWindow <= 0 {
		cfg.BasicConfig.HistoryWindow = defaultHistoryWindow
	}
	if cfg.BasicConfig.PollTimeout <= 0 {
		cfg.BasicConfig.PollTimeout = defaultPollTimeout
	}

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	cfg.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that required credentials are present.
func (c *Config) Validate() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN must be set in the environment")
	}
	if c.OpenAIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY must be set in the environment")
	}
	return nil
}

// IsAdmin reports whether the given user id belongs to a configured admin.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.BasicConfig.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func isFileDSN(driver string) bool {
	return driver == "sqlite" || driver == "sqlite3"
}
