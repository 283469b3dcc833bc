package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Gateway GatewayConfig `yaml:"gateway"`
	Engine  EngineConfig  `yaml:"engine"`
	Health  HealthConfig  `yaml:"health"`
	Catalog CatalogConfig `yaml:"catalog"`
	Notify  NotifyConfig  `yaml:"notify"`
}

type ServerConfig struct {
	Addr string     `yaml:"addr"`
	Cors CorsConfig `yaml:"cors"`
}

type CorsConfig struct {
	AllowOrigins     []string `yaml:"allowOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
}

type StorageConfig struct {
	// DataDir holds the per-tenant JSON artifacts: run_states/, history/
	// and the shared proxies.json pool file.
	DataDir    string `yaml:"dataDir"`
	SQLitePath string `yaml:"sqlitePath"`
}

func (c StorageConfig) RunStateDir() string { return filepath.Join(c.DataDir, "run_states") }
func (c StorageConfig) HistoryDir() string  { return filepath.Join(c.DataDir, "history") }
func (c StorageConfig) ProxyFile() string   { return filepath.Join(c.DataDir, "proxies.json") }

// GatewayConfig configures the HTTP client for the marketplace gateway.
type GatewayConfig struct {
	BaseURL   string          `yaml:"baseURL"`
	TimeoutMs int             `yaml:"timeoutMs"`
	Retry     GatewayRetryCfg `yaml:"retry"`
}

type GatewayRetryCfg struct {
	Count     int `yaml:"count"`
	WaitMs    int `yaml:"waitMs"`
	MaxWaitMs int `yaml:"maxWaitMs"`
}

func (c GatewayConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 20 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c GatewayRetryCfg) Wait() time.Duration {
	if c.WaitMs <= 0 {
		return 200 * time.Millisecond
	}
	return time.Duration(c.WaitMs) * time.Millisecond
}

func (c GatewayRetryCfg) MaxWait() time.Duration {
	if c.MaxWaitMs <= 0 {
		return 1200 * time.Millisecond
	}
	return time.Duration(c.MaxWaitMs) * time.Millisecond
}

type EngineConfig struct {
	// SearchConcurrency bounds simultaneous resale searches per tenant.
	// Sized for the marketplace rate limits, not correctness.
	SearchConcurrency int     `yaml:"searchConcurrency"`
	GlobalQPS         float64 `yaml:"globalQPS"`
	GlobalBurst       int     `yaml:"globalBurst"`
	// CycleBackoffSeconds is the fixed sleep after a sweep-level failure.
	CycleBackoffSeconds int `yaml:"cycleBackoffSeconds"`
	// WaitPollMs is the poll interval while a restart is in flight.
	WaitPollMs int `yaml:"waitPollMs"`
	// AllowProxyless lets a tenant start without an egress proxy when the
	// pool is exhausted. Off by default: running bare is an explicit choice.
	AllowProxyless       bool `yaml:"allowProxyless"`
	HistoryRetentionDays int  `yaml:"historyRetentionDays"`
}

func (c EngineConfig) CycleBackoff() time.Duration {
	if c.CycleBackoffSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.CycleBackoffSeconds) * time.Second
}

func (c EngineConfig) WaitPoll() time.Duration {
	if c.WaitPollMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.WaitPollMs) * time.Millisecond
}

func (c EngineConfig) HistoryRetention() time.Duration {
	days := c.HistoryRetentionDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

// HealthConfig holds the supervisor timings. These are empirical values
// tied to what the marketplace tolerates, so they are configuration rather
// than constants.
type HealthConfig struct {
	MinIntervalSeconds     int `yaml:"minIntervalSeconds"`
	MaxIntervalSeconds     int `yaml:"maxIntervalSeconds"`
	ProbeTimeoutSeconds    int `yaml:"probeTimeoutSeconds"`
	RestartCooldownSeconds int `yaml:"restartCooldownSeconds"`
}

func (c HealthConfig) MinInterval() time.Duration {
	if c.MinIntervalSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.MinIntervalSeconds) * time.Second
}

func (c HealthConfig) MaxInterval() time.Duration {
	if c.MaxIntervalSeconds <= c.MinIntervalSeconds {
		return c.MinInterval() + 60*time.Second
	}
	return time.Duration(c.MaxIntervalSeconds) * time.Second
}

func (c HealthConfig) ProbeTimeout() time.Duration {
	if c.ProbeTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.ProbeTimeoutSeconds) * time.Second
}

func (c HealthConfig) RestartCooldown() time.Duration {
	if c.RestartCooldownSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.RestartCooldownSeconds) * time.Second
}

type CatalogConfig struct {
	Path string `yaml:"path"`
	URL  string `yaml:"url"`
}

type NotifyConfig struct {
	Telegram TelegramNotifyConfig `yaml:"telegram"`
	Email    EmailNotifyConfig    `yaml:"email"`
}

type TelegramNotifyConfig struct {
	BotToken       string `yaml:"botToken"`
	OperatorChatID int64  `yaml:"operatorChatId"`
}

type EmailNotifyConfig struct {
	Enabled  bool   `yaml:"enabled"`
	SMTPHost string `yaml:"smtpHost"`
	SMTPPort int    `yaml:"smtpPort"`
	From     string `yaml:"from"`
	Password string `yaml:"password"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8090"
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "./data"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = filepath.Join(c.Storage.DataDir, "gift_sniper.db")
	}
	if c.Gateway.BaseURL == "" {
		c.Gateway.BaseURL = "http://127.0.0.1:8080/mock"
	}
	if c.Gateway.Retry.Count < 0 {
		c.Gateway.Retry.Count = 0
	}
	if c.Engine.SearchConcurrency <= 0 {
		c.Engine.SearchConcurrency = 10
	}
	if c.Engine.GlobalQPS <= 0 {
		c.Engine.GlobalQPS = 5
	}
	if c.Engine.GlobalBurst <= 0 {
		c.Engine.GlobalBurst = 10
	}
	if c.Catalog.Path == "" {
		c.Catalog.Path = filepath.Join(c.Storage.DataDir, "gifts.json")
	}
	if c.Catalog.URL == "" {
		c.Catalog.URL = "https://cdn.changes.tg/gifts/id-to-name.json"
	}
}

func (c Config) validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Gateway.BaseURL == "" {
		return errors.New("gateway.baseURL is required")
	}
	return nil
}
