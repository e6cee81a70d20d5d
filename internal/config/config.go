package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Broker   Broker   `mapstructure:"broker"`
	Tracker  Tracker  `mapstructure:"tracker"`
	Sync     Sync     `mapstructure:"sync"`
	Logger   Logger   `mapstructure:"logger"`
	Database Database `mapstructure:"database"`
	Server   Server   `mapstructure:"server"`
}

// Broker holds the endpoints and rate limits shared by every broker adapter.
type Broker struct {
	AlpacaPaperURL    string  `mapstructure:"alpaca_paper_url"`
	AlpacaLiveURL     string  `mapstructure:"alpaca_live_url"`
	BinanceURL        string  `mapstructure:"binance_url"`
	BinanceTestnetURL string  `mapstructure:"binance_testnet_url"`
	RateLimit         float64 `mapstructure:"rate_limit"`
	RateLimitBurst    int     `mapstructure:"rate_limit_burst"`
}

// Tracker holds the polling cadence of the order tracker.
type Tracker struct {
	MarketPollInterval time.Duration   `mapstructure:"market_poll_interval"`
	MaxPollAttempts    int             `mapstructure:"max_poll_attempts"`
	ConfirmOffsets     []time.Duration `mapstructure:"confirm_offsets"`
	MonitorInterval    time.Duration   `mapstructure:"monitor_interval"`
}

// Sync holds the reconciliation cycle settings.
type Sync struct {
	Interval   time.Duration `mapstructure:"interval"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
	BatchSize  int           `mapstructure:"batch_size"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Server holds the status API settings. Port 0 disables the API.
type Server struct {
	Port int `mapstructure:"port"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// DefaultTracker returns the tracker cadence used when nothing is configured.
func DefaultTracker() Tracker {
	return Tracker{
		MarketPollInterval: time.Second,
		MaxPollAttempts:    300,
		ConfirmOffsets:     []time.Duration{2 * time.Second, 5 * time.Second},
		MonitorInterval:    time.Minute,
	}
}

// DefaultSync returns the reconciliation settings used when nothing is configured.
func DefaultSync() Sync {
	return Sync{
		Interval:   time.Minute,
		StaleAfter: 5 * time.Minute,
		BatchSize:  3,
	}
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults and env still apply.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
		err = nil
	}

	err = v.Unmarshal(&config)
	return
}

func setDefaults(v *viper.Viper) {
	tr := DefaultTracker()
	v.SetDefault("tracker.market_poll_interval", tr.MarketPollInterval)
	v.SetDefault("tracker.max_poll_attempts", tr.MaxPollAttempts)
	v.SetDefault("tracker.confirm_offsets", []string{"2s", "5s"})
	v.SetDefault("tracker.monitor_interval", tr.MonitorInterval)

	sy := DefaultSync()
	v.SetDefault("sync.interval", sy.Interval)
	v.SetDefault("sync.stale_after", sy.StaleAfter)
	v.SetDefault("sync.batch_size", sy.BatchSize)

	v.SetDefault("broker.alpaca_paper_url", "https://paper-api.alpaca.markets")
	v.SetDefault("broker.alpaca_live_url", "https://api.alpaca.markets")
	v.SetDefault("broker.binance_url", "https://api.binance.com/api/v3")
	v.SetDefault("broker.binance_testnet_url", "https://testnet.binance.vision/api/v3")
	v.SetDefault("broker.rate_limit", 10)      // requests per second
	v.SetDefault("broker.rate_limit_burst", 5) // burst size

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.max_size_mb", 50)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age_days", 28)

	v.SetDefault("database.dsn", "tradesync.db")
	v.SetDefault("server.port", 8080)
}
