package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"forex-signal-engine/internal/ai/llm"
	"forex-signal-engine/internal/ai/sentiment"
	"forex-signal-engine/internal/api"
	"forex-signal-engine/internal/auth"
	"forex-signal-engine/internal/cache"
	"forex-signal-engine/internal/circuit"
	"forex-signal-engine/internal/database"
	"forex-signal-engine/internal/events"
	"forex-signal-engine/internal/logging"
	"forex-signal-engine/internal/market"
	"forex-signal-engine/internal/notification"
	"forex-signal-engine/internal/risk"
	"forex-signal-engine/internal/scanner"
	"forex-signal-engine/internal/signal"
	"forex-signal-engine/internal/vault"
)

// DefaultPath is read when no path is given and CONFIG_FILE is unset
const DefaultPath = "config.yaml"

// Config is the full service configuration
type Config struct {
	Server     api.ServerConfig     `yaml:"server" json:"server"`
	Logging    logging.Config       `yaml:"logging" json:"logging"`
	Signal     signal.Config        `yaml:"signal" json:"signal"`
	Risk       risk.Config          `yaml:"risk" json:"risk"`
	Scanner    scanner.Config       `yaml:"scanner" json:"scanner"`
	AI         AIConfig             `yaml:"ai" json:"ai"`
	Sentiment  sentiment.FeedConfig `yaml:"sentiment" json:"sentiment"`
	MarketData MarketDataConfig     `yaml:"market_data" json:"marketData"`
	Database   database.Config      `yaml:"database" json:"database"`
	Redis      cache.Config         `yaml:"redis" json:"redis"`
	Vault      vault.Config         `yaml:"vault" json:"vault"`
	Auth       auth.Config          `yaml:"auth" json:"auth"`
	Kafka      events.KafkaConfig   `yaml:"kafka" json:"kafka"`
	Metrics    MetricsConfig        `yaml:"metrics" json:"metrics"`
	Alerts     notification.Config  `yaml:"alerts" json:"alerts"`
}

// AIConfig selects the predictor. When disabled, or when no API key can be found,
// the rule-based predictor is used.
type AIConfig struct {
	Enabled   bool                `yaml:"enabled" json:"enabled"`
	Client    llm.ClientConfig    `yaml:"client" json:"client"`
	Predictor llm.PredictorConfig `yaml:"predictor" json:"predictor"`
	Breaker   circuit.Config      `yaml:"breaker" json:"breaker"`
}

// MarketDataConfig controls where candles come from
type MarketDataConfig struct {
	// Demo seeds an in-memory source with generated candles when the database is disabled
	Demo     bool `yaml:"demo" json:"demo" default:"true"`
	DemoBars int  `yaml:"demo_bars" json:"demoBars" default:"300" validate:"gte=100"`
}

// MetricsConfig toggles the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled" default:"true"`
}

// Load reads .env, then the YAML file at path (optional), then environment overrides,
// and validates the result. Struct tag defaults fill everything left unset.
func Load(path string) (*Config, error) {
	loadDotEnv()

	if path == "" {
		path = getEnvOrDefault("CONFIG_FILE", DefaultPath)
	}

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = api.DefaultServerConfig().AllowedOrigins
	}

	if err := loadFromFile(path, cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		logging.Info("No config file found, using defaults", "path", path)
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads the first .env file found. A missing file is not an error.
func loadDotEnv() {
	for _, p := range []string{".env", "../.env"} {
		if err := godotenv.Load(p); err == nil {
			return
		}
	}
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("error parsing config file %s: %w", path, err)
	}
	return nil
}

// Validate checks every section's validate tags plus cross-section constraints
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if !cfg.Signal.PrimaryTimeframe.Valid() {
		return fmt.Errorf("invalid configuration: unknown primary timeframe %q", cfg.Signal.PrimaryTimeframe)
	}
	if cfg.Auth.Enabled && len(cfg.Auth.Clients) == 0 {
		return errors.New("invalid configuration: auth is enabled but no clients are configured")
	}
	if cfg.Alerts.Telegram.Enabled && (cfg.Alerts.Telegram.BotToken == "" || cfg.Alerts.Telegram.ChatID == "") {
		return errors.New("invalid configuration: telegram alerts need bot_token and chat_id")
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Values already loaded from the file act as the defaults.
func applyEnvOverrides(cfg *Config) {
	// Server
	cfg.Server.Host = getEnvOrDefault("WEB_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvIntOrDefault("WEB_PORT", cfg.Server.Port)
	cfg.Server.ProductionMode = getEnvBoolOrDefault("SERVER_PRODUCTION_MODE", cfg.Server.ProductionMode)
	if origins := os.Getenv("SERVER_ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = splitList(origins)
	}
	cfg.Server.WriteTimeout = getEnvDurationOrDefault("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)

	// Logging
	cfg.Logging.Level = getEnvOrDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Output = getEnvOrDefault("LOG_OUTPUT", cfg.Logging.Output)
	cfg.Logging.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.Logging.JSONFormat)

	// Signal thresholds and risk
	cfg.Signal.MinConfluence = getEnvFloatOrDefault("MIN_CONFLUENCE", cfg.Signal.MinConfluence)
	cfg.Signal.PrimaryTimeframe = market.Timeframe(strings.ToUpper(getEnvOrDefault("PRIMARY_TIMEFRAME", string(cfg.Signal.PrimaryTimeframe))))
	cfg.Risk.AccountBalance = getEnvFloatOrDefault("ACCOUNT_BALANCE", cfg.Risk.AccountBalance)
	cfg.Risk.RiskPercent = getEnvFloatOrDefault("RISK_PERCENT", cfg.Risk.RiskPercent)
	cfg.Risk.MaxDailyDrawdown = getEnvFloatOrDefault("MAX_DAILY_DRAWDOWN", cfg.Risk.MaxDailyDrawdown)
	cfg.Risk.MaxOpenTrades = getEnvIntOrDefault("MAX_OPEN_TRADES", cfg.Risk.MaxOpenTrades)
	cfg.Risk.MaxCorrelatedTrades = getEnvIntOrDefault("MAX_CORRELATED_TRADES", cfg.Risk.MaxCorrelatedTrades)
	if v := os.Getenv("MIN_RISK_REWARD"); v != "" {
		rr := getEnvFloatOrDefault("MIN_RISK_REWARD", cfg.Risk.MinRiskReward)
		cfg.Risk.MinRiskReward = rr
		cfg.Signal.MinRiskReward = rr
	}

	// Scanner
	cfg.Scanner.Enabled = getEnvBoolOrDefault("SCANNER_ENABLED", cfg.Scanner.Enabled)
	cfg.Scanner.Interval = getEnvDurationOrDefault("SCAN_INTERVAL", cfg.Scanner.Interval)
	cfg.Scanner.BatchSize = getEnvIntOrDefault("SCAN_BATCH_SIZE", cfg.Scanner.BatchSize)

	// AI
	cfg.AI.Enabled = getEnvBoolOrDefault("AI_ENABLED", cfg.AI.Enabled)
	cfg.AI.Client.Provider = llm.Provider(getEnvOrDefault("AI_LLM_PROVIDER", string(cfg.AI.Client.Provider)))
	cfg.AI.Client.Model = getEnvOrDefault("AI_LLM_MODEL", cfg.AI.Client.Model)
	cfg.AI.Client.APIKey = getEnvOrDefault("AI_API_KEY", cfg.AI.Client.APIKey)
	if cfg.AI.Client.APIKey == "" {
		switch cfg.AI.Client.Provider {
		case llm.ProviderClaude:
			cfg.AI.Client.APIKey = os.Getenv("AI_CLAUDE_API_KEY")
		case llm.ProviderOpenAI:
			cfg.AI.Client.APIKey = os.Getenv("AI_OPENAI_API_KEY")
		case llm.ProviderDeepSeek:
			cfg.AI.Client.APIKey = os.Getenv("AI_DEEPSEEK_API_KEY")
		}
	}
	cfg.Sentiment.FearGreedEnabled = getEnvBoolOrDefault("SENTIMENT_FEAR_GREED_ENABLED", cfg.Sentiment.FearGreedEnabled)

	// Database
	cfg.Database.Enabled = getEnvBoolOrDefault("DATABASE_ENABLED", cfg.Database.Enabled)
	cfg.Database.Host = getEnvOrDefault("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvIntOrDefault("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnvOrDefault("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnvOrDefault("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Database = getEnvOrDefault("DB_NAME", cfg.Database.Database)
	cfg.Database.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.Database.SSLMode)

	// Redis
	cfg.Redis.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.Redis.Enabled)
	cfg.Redis.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.Redis.Address)
	cfg.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Redis.Password)

	// Vault
	cfg.Vault.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.Vault.Enabled)
	cfg.Vault.Address = getEnvOrDefault("VAULT_ADDR", cfg.Vault.Address)
	cfg.Vault.Token = getEnvOrDefault("VAULT_TOKEN", cfg.Vault.Token)
	cfg.Vault.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.Vault.MountPath)
	cfg.Vault.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.Vault.SecretPath)

	// Auth
	cfg.Auth.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", cfg.Auth.Enabled)
	cfg.Auth.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", cfg.Auth.AccessTokenDuration)

	// Kafka
	cfg.Kafka.Enabled = getEnvBoolOrDefault("KAFKA_ENABLED", cfg.Kafka.Enabled)
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitList(brokers)
	}
	cfg.Kafka.Topic = getEnvOrDefault("KAFKA_TOPIC", cfg.Kafka.Topic)

	cfg.Metrics.Enabled = getEnvBoolOrDefault("METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.MarketData.Demo = getEnvBoolOrDefault("MARKET_DATA_DEMO", cfg.MarketData.Demo)

	// Alerts; a token in the environment turns its channel on
	cfg.Alerts.Enabled = getEnvBoolOrDefault("ALERTS_ENABLED", cfg.Alerts.Enabled)
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		cfg.Alerts.Telegram.BotToken = token
		cfg.Alerts.Telegram.Enabled = true
	}
	cfg.Alerts.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.Alerts.Telegram.ChatID)
	if webhook := os.Getenv("DISCORD_WEBHOOK_URL"); webhook != "" {
		cfg.Alerts.Discord.WebhookURL = webhook
		cfg.Alerts.Discord.Enabled = true
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
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

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GenerateSampleConfig writes the default configuration as YAML
func GenerateSampleConfig(filename string) error {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return fmt.Errorf("failed to apply config defaults: %w", err)
	}
	cfg.Server.AllowedOrigins = api.DefaultServerConfig().AllowedOrigins
	cfg.Kafka.Brokers = []string{"localhost:9092"}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}
