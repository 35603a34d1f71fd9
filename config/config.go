// Package config loads engine configuration from config.json with
// environment variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	BinanceConfig      BinanceConfig      `json:"binance"`
	EngineConfig       EngineConfig       `json:"engine"`
	ScannerConfig      ScannerConfig      `json:"scanner"`
	RiskConfig         RiskConfig         `json:"risk"`
	SentimentConfig    SentimentConfig    `json:"sentiment"`
	NotificationConfig NotificationConfig `json:"notification"`
	DatabaseConfig     DatabaseConfig     `json:"database"`
	RedisConfig        RedisConfig        `json:"redis"`
	ServerConfig       ServerConfig       `json:"server"`
	AuthConfig         AuthConfig         `json:"auth"`
	VaultConfig        VaultConfig        `json:"vault"`
	LoggingConfig      LoggingConfig      `json:"logging"`
}

type BinanceConfig struct {
	APIKey   string `json:"api_key"`
	BaseURL  string `json:"base_url"`
	MockMode bool   `json:"mock_mode"` // use simulated data when the Binance API is unavailable
}

// EngineConfig controls the signal decision pipeline
type EngineConfig struct {
	Interval         string   `json:"interval"`
	KlineLimit       int      `json:"kline_limit"`
	MinConfidence    int      `json:"min_confidence"`
	MaxDailySignals  int      `json:"max_daily_signals"`
	CooldownMinutes  int      `json:"cooldown_minutes"`
	EvaluateInterval string   `json:"evaluate_interval"` // Go duration string
	Symbols          []string `json:"symbols"`           // static list; empty means use the scanner
	MaxSymbols       int      `json:"max_symbols"`
	LiquidityFloor   float64  `json:"liquidity_floor"`
}

type ScannerConfig struct {
	Enabled          bool    `json:"enabled"`
	IntervalMinutes  int     `json:"interval_minutes"`
	Workers          int     `json:"workers"`
	MinVolume        float64 `json:"min_volume"`
	MaxFundingRate   float64 `json:"max_funding_rate"`
	MaxSpreadPercent float64 `json:"max_spread_percent"`
	TopMarkets       int     `json:"top_markets"`
}

type RiskConfig struct {
	AccountBalance   float64 `json:"account_balance"`
	RiskPercentage   float64 `json:"risk_percentage"`
	MaxLeverage      float64 `json:"max_leverage"`
	MaxPortfolioRisk float64 `json:"max_portfolio_risk"`
}

type SentimentConfig struct {
	Enabled bool     `json:"enabled"`
	Feeds   []string `json:"feeds"`
}

type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

type DiscordConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

type ServerConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	ProductionMode bool     `json:"production_mode"`
	AllowOrigins   []string `json:"allow_origins"`
	RateLimit      int      `json:"rate_limit"`
}

type AuthConfig struct {
	Enabled       bool   `json:"enabled"`
	AdminUser     string `json:"admin_user"`
	AdminPassword string `json:"admin_password"` // plain or bcrypt hash
	JWTSecret     string `json:"jwt_secret"`
	TokenHours    int    `json:"token_hours"`
}

type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Output     string `json:"output"`      // stdout, stderr, or file path
	JSONFormat bool   `json:"json_format"` // console writer when false
}

// Load reads config.json (if present) and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = "config.json"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		BinanceConfig: BinanceConfig{
			BaseURL: "https://fapi.binance.com",
		},
		EngineConfig: EngineConfig{
			Interval:         "1h",
			KlineLimit:       100,
			MinConfidence:    4,
			MaxDailySignals:  30,
			CooldownMinutes:  15,
			EvaluateInterval: "5m",
			MaxSymbols:       10,
			LiquidityFloor:   20_000,
		},
		ScannerConfig: ScannerConfig{
			Enabled:          true,
			IntervalMinutes:  5,
			Workers:          4,
			MinVolume:        1_000_000,
			MaxFundingRate:   0.001,
			MaxSpreadPercent: 0.01,
			TopMarkets:       30,
		},
		RiskConfig: RiskConfig{
			AccountBalance:   10_000,
			RiskPercentage:   0.02,
			MaxLeverage:      10,
			MaxPortfolioRisk: 0.15,
		},
		SentimentConfig: SentimentConfig{Enabled: true},
		DatabaseConfig: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
		},
		RedisConfig: RedisConfig{
			Address:  "localhost:6379",
			PoolSize: 10,
		},
		ServerConfig: ServerConfig{
			Host:      "0.0.0.0",
			Port:      8080,
			RateLimit: 120,
		},
		AuthConfig: AuthConfig{
			TokenHours: 24,
		},
		LoggingConfig: LoggingConfig{
			Level:      "info",
			Output:     "stdout",
			JSONFormat: true,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.BinanceConfig.APIKey = getEnvOrDefault("BINANCE_API_KEY", cfg.BinanceConfig.APIKey)
	cfg.BinanceConfig.BaseURL = getEnvOrDefault("BINANCE_BASE_URL", cfg.BinanceConfig.BaseURL)
	cfg.BinanceConfig.MockMode = getEnvBoolOrDefault("MOCK_MODE", cfg.BinanceConfig.MockMode)

	cfg.EngineConfig.Interval = getEnvOrDefault("ENGINE_INTERVAL", cfg.EngineConfig.Interval)
	cfg.EngineConfig.MinConfidence = getEnvIntOrDefault("ENGINE_MIN_CONFIDENCE", cfg.EngineConfig.MinConfidence)
	cfg.EngineConfig.MaxDailySignals = getEnvIntOrDefault("ENGINE_MAX_DAILY_SIGNALS", cfg.EngineConfig.MaxDailySignals)
	cfg.EngineConfig.CooldownMinutes = getEnvIntOrDefault("ENGINE_COOLDOWN_MINUTES", cfg.EngineConfig.CooldownMinutes)
	if symbols := os.Getenv("ENGINE_SYMBOLS"); symbols != "" {
		cfg.EngineConfig.Symbols = strings.Split(symbols, ",")
	}

	cfg.ScannerConfig.Enabled = getEnvBoolOrDefault("SCANNER_ENABLED", cfg.ScannerConfig.Enabled)

	cfg.RiskConfig.AccountBalance = getEnvFloatOrDefault("RISK_ACCOUNT_BALANCE", cfg.RiskConfig.AccountBalance)
	cfg.RiskConfig.RiskPercentage = getEnvFloatOrDefault("RISK_PERCENTAGE", cfg.RiskConfig.RiskPercentage)

	cfg.NotificationConfig.Enabled = getEnvBoolOrDefault("NOTIFICATIONS_ENABLED", cfg.NotificationConfig.Enabled)
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
	cfg.NotificationConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.Discord.WebhookURL)

	cfg.DatabaseConfig.Enabled = getEnvBoolOrDefault("DATABASE_ENABLED", cfg.DatabaseConfig.Enabled)
	cfg.DatabaseConfig.Host = getEnvOrDefault("DATABASE_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DATABASE_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DATABASE_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DATABASE_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DATABASE_NAME", cfg.DatabaseConfig.Database)

	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)

	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.ProductionMode = getEnvBoolOrDefault("PRODUCTION_MODE", cfg.ServerConfig.ProductionMode)

	cfg.AuthConfig.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", cfg.AuthConfig.Enabled)
	cfg.AuthConfig.AdminUser = getEnvOrDefault("AUTH_ADMIN_USER", cfg.AuthConfig.AdminUser)
	cfg.AuthConfig.AdminPassword = getEnvOrDefault("AUTH_ADMIN_PASSWORD", cfg.AuthConfig.AdminPassword)
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("JWT_SECRET", cfg.AuthConfig.JWTSecret)

	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)
}

// Validate checks settings that would otherwise fail deep inside a
// component at runtime.
func (c *Config) Validate() error {
	if c.EngineConfig.MinConfidence < 0 {
		return fmt.Errorf("engine.min_confidence must not be negative")
	}
	if c.EngineConfig.MaxDailySignals <= 0 {
		return fmt.Errorf("engine.max_daily_signals must be positive")
	}
	if c.RiskConfig.RiskPercentage <= 0 || c.RiskConfig.RiskPercentage >= 1 {
		return fmt.Errorf("risk.risk_percentage must be in (0, 1)")
	}
	if _, err := time.ParseDuration(c.EngineConfig.EvaluateInterval); err != nil {
		return fmt.Errorf("engine.evaluate_interval is not a valid duration: %w", err)
	}
	if c.AuthConfig.Enabled && c.AuthConfig.JWTSecret == "" && !c.VaultConfig.Enabled {
		return fmt.Errorf("auth.jwt_secret must be set when auth is enabled without vault")
	}
	return nil
}

// EvaluateInterval returns the parsed evaluation interval.
func (c *EngineConfig) EvaluateIntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.EvaluateInterval)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
