package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Arbitrage ArbitrageConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Upstream  UpstreamConfig
	Ingest    IngestConfig
	Runner    RunnerConfig
	Bot       BotConfig
	Retention RetentionConfig
	Log       LogConfig
}

// ArbitrageConfig defines the opportunity scanning settings.
type ArbitrageConfig struct {
	ConfidenceScale  float64                `mapstructure:"confidence_scale"`
	MaxOpportunities int                    `mapstructure:"max_opportunities"`
	PlaceOrders      bool                   `mapstructure:"place_orders"`
	Pairs            map[string]PairMapping `mapstructure:"pairs"`
}

// PairMapping binds a selectable currency to its canonical trading pair and
// the currency that funds the round-trip.
type PairMapping struct {
	Pair    string `mapstructure:"pair"`
	Funding string `mapstructure:"funding"`
}

// DatabaseConfig defines the database connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// RedisConfig defines the latest-price cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// UpstreamConfig selects and configures the exchange client.
type UpstreamConfig struct {
	Name      string
	BaseURL   string        `mapstructure:"base_url"`
	StreamURL string        `mapstructure:"stream_url"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Quotes    []string      `mapstructure:"quotes"`
}

// IngestConfig defines fetch retries and the synthetic venue spread.
type IngestConfig struct {
	Attempts     int           `mapstructure:"attempts"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	MinShift     float64       `mapstructure:"min_shift"`
	MaxShift     float64       `mapstructure:"max_shift"`
}

// RunnerConfig defines the scheduler timings.
type RunnerConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	InactivePoll    time.Duration `mapstructure:"inactive_poll"`
	ErrorBackoff    time.Duration `mapstructure:"error_backoff"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// BotConfig holds the user the bot trades for and the defaults used to seed
// the bot_config row the first time it is read.
type BotConfig struct {
	UserID               string  `mapstructure:"user_id"`
	RiskTolerance        float64 `mapstructure:"risk_tolerance"`
	MinConfidenceScore   float64 `mapstructure:"min_confidence_score"`
	TradeSizePercentage  float64 `mapstructure:"trade_size_percentage"`
	SelectedCurrencies   string  `mapstructure:"selected_currencies"`
	CheckIntervalSeconds int     `mapstructure:"check_interval_seconds"`
}

// RetentionConfig defines the trade history cleanup job.
type RetentionConfig struct {
	Schedule   string `mapstructure:"schedule"`
	KeepTrades int    `mapstructure:"keep_trades"`
}

// LogConfig defines the logger.
type LogConfig struct {
	Level string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("arbitrage.confidence_scale", 5000.0)
	v.SetDefault("arbitrage.max_opportunities", 2)
	v.SetDefault("arbitrage.place_orders", false)
	v.SetDefault("arbitrage.pairs", map[string]any{
		"BTC": map[string]any{"pair": "BTCUSD", "funding": "USD"},
		"ETH": map[string]any{"pair": "ETHUSD", "funding": "USD"},
		"XRP": map[string]any{"pair": "XRPUSD", "funding": "USD"},
		"EUR": map[string]any{"pair": "EURUSD", "funding": "USD"},
	})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", time.Minute)

	v.SetDefault("upstream.name", "uphold")
	v.SetDefault("upstream.base_url", "https://api.uphold.com/v0")
	v.SetDefault("upstream.stream_url", "")
	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.timeout", 10*time.Second)
	v.SetDefault("upstream.quotes", []string{"USDT", "USD", "EUR"})

	v.SetDefault("ingest.attempts", 3)
	v.SetDefault("ingest.retry_backoff", time.Second)
	v.SetDefault("ingest.min_shift", 0.001)
	v.SetDefault("ingest.max_shift", 0.008)

	v.SetDefault("runner.refresh_interval", 15*time.Second)
	v.SetDefault("runner.inactive_poll", 2*time.Second)
	v.SetDefault("runner.error_backoff", 5*time.Second)
	v.SetDefault("runner.shutdown_timeout", 30*time.Second)

	v.SetDefault("bot.user_id", "")
	v.SetDefault("bot.risk_tolerance", 0.5)
	v.SetDefault("bot.min_confidence_score", 0.6)
	v.SetDefault("bot.trade_size_percentage", 0.1)
	v.SetDefault("bot.selected_currencies", "BTC,ETH")
	v.SetDefault("bot.check_interval_seconds", 60)

	v.SetDefault("retention.schedule", "@every 1m")
	v.SetDefault("retention.keep_trades", 500)

	v.SetDefault("log.level", "info")
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults and the environment apply.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
	}

	err = v.Unmarshal(&config)
	if err != nil {
		return
	}
	config.Arbitrage.Pairs = normalizePairs(config.Arbitrage.Pairs)
	return
}

// viper lower-cases map keys; currency codes are upper-case everywhere else.
func normalizePairs(in map[string]PairMapping) map[string]PairMapping {
	out := make(map[string]PairMapping, len(in))
	for cur, m := range in {
		out[strings.ToUpper(cur)] = PairMapping{
			Pair:    strings.ToUpper(m.Pair),
			Funding: strings.ToUpper(m.Funding),
		}
	}
	return out
}

// ConnString builds the pgx connection string.
func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}
