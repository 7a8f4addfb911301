package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const defaultMarketPricesURL = "https://faas-lon1-917a94a7.doserverless.co/api/v1/web/fn-e0f31110-7521-4cb9-86a2-645f66eefb63/default/market-prices-simulator"

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	HTTPAddr    string
	MetricsAddr string
	LogLevel    slog.Level

	StoreDriver string
	DatabaseURL string
	SQLitePath  string

	KafkaBrokers []string
	KafkaTopic   string

	MarketPricesURL string
	PriceTimeout    time.Duration
	PriceCacheTTL   time.Duration

	SubscriptionInterval time.Duration
	AutoInvestInterval   time.Duration

	FXRatesFile string
	FXFeesFile  string

	NotifyWorkers int
}

// Load reads an optional .env file from the working directory and builds the
// configuration from the environment. Variables already set in the process
// environment win over the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	cfg := Config{
		HTTPAddr:             envStr("HTTP_ADDR", ":8080"),
		MetricsAddr:          envStr("METRICS_ADDR", ":9090"),
		StoreDriver:          strings.ToLower(envStr("STORE_DRIVER", DriverMemory)),
		DatabaseURL:          envStr("DATABASE_URL", ""),
		SQLitePath:           envStr("SQLITE_PATH", "ledger.db"),
		KafkaBrokers:         envList("KAFKA_BROKERS"),
		KafkaTopic:           envStr("KAFKA_TOPIC", "ledger.transactions"),
		MarketPricesURL:      envStr("MARKET_PRICES_URL", defaultMarketPricesURL),
		PriceTimeout:         envDuration("PRICE_TIMEOUT", 5*time.Second),
		PriceCacheTTL:        envDuration("PRICE_CACHE_TTL", 30*time.Second),
		SubscriptionInterval: envDuration("SUBSCRIPTION_INTERVAL", 30*time.Second),
		AutoInvestInterval:   envDuration("AUTO_INVEST_INTERVAL", 30*time.Second),
		FXRatesFile:          envStr("FX_RATES_FILE", "data/exchange_rates.csv"),
		FXFeesFile:           envStr("FX_FEES_FILE", "data/exchange_fees.csv"),
		NotifyWorkers:        envInt("NOTIFY_WORKERS", 3),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(envStr("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("%w: LOG_LEVEL: %v", ErrInvalidConfig, err)
	}

	switch cfg.StoreDriver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("%w: DATABASE_URL is required for the postgres driver", ErrInvalidConfig)
		}
	default:
		return Config{}, fmt.Errorf("%w: unknown STORE_DRIVER %q", ErrInvalidConfig, cfg.StoreDriver)
	}

	if cfg.SubscriptionInterval <= 0 || cfg.AutoInvestInterval <= 0 {
		return Config{}, fmt.Errorf("%w: scheduler intervals must be positive", ErrInvalidConfig)
	}
	if cfg.NotifyWorkers < 1 {
		cfg.NotifyWorkers = 1
	}
	return cfg, nil
}

func envStr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// envDuration accepts Go durations ("1m30s") or a plain number of seconds.
func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
