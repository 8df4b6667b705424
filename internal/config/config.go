// Package config loads the dealer's runtime configuration from a .env
// file (if present) and the environment, the same godotenv-then-fallback
// shape the teacher app used for its own settings.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// AppConfig holds every tunable the dealer needs to start: exchange
// credentials, database locations, the HTTP listen address, and the
// pricing/hedging policy knobs.
type AppConfig struct {
	LogLevel string
	DevMode  bool
	Port     int

	LedgerDBPath string
	QuoteDBPath  string

	OkexAPIKey     string
	OkexAPISecret  string
	OkexPassphrase string
	OkexBaseURL    string
	OkexInstID     string

	CacheStaleAfterSeconds int

	QuoteExpirySeconds int
	FeeBaseRate        decimal.Decimal
	FeeImmediateRate   decimal.Decimal
	FeeDelayedRate     decimal.Decimal

	OkexWeight     float64
	BitfinexWeight float64

	HedgeContractSizeUSD      decimal.Decimal
	HedgeDeadBandUSD          decimal.Decimal
	HedgeTradingBalanceLowBTC decimal.Decimal
	HedgeTradingBalanceHiBTC  decimal.Decimal
	HedgeFundingWithdrawalBTC decimal.Decimal
	HedgeWithdrawalTargetBTC  decimal.Decimal
	HedgeWithdrawalAddress    string
	HedgeWithdrawalFeeBTC     decimal.Decimal
	HedgeSchedule             string

	BackupBucket    string
	BackupKeyPrefix string
	BackupSchedule  string
	BackupRegion    string
	AWSAccessKeyID  string
	AWSSecretKey    string

	BusWindowSeconds int
}

// Load reads a .env file if present, then layers environment variables
// with sane dealer defaults on top.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := &AppConfig{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		Port:     getEnvAsInt("PORT", 8080),

		LedgerDBPath: getEnv("LEDGER_DB_PATH", "./data/ledger.db"),
		QuoteDBPath:  getEnv("QUOTE_DB_PATH", "./data/quotes.db"),

		OkexAPIKey:     getEnv("OKEX_API_KEY", ""),
		OkexAPISecret:  getEnv("OKEX_API_SECRET", ""),
		OkexPassphrase: getEnv("OKEX_PASSPHRASE", ""),
		OkexBaseURL:    getEnv("OKEX_BASE_URL", ""),
		OkexInstID:     getEnv("OKEX_INST_ID", "BTC-USD-SWAP"),

		CacheStaleAfterSeconds: getEnvAsInt("CACHE_STALE_AFTER_SECONDS", 30),

		QuoteExpirySeconds: getEnvAsInt("QUOTE_EXPIRY_SECONDS", 120),
		FeeBaseRate:        getEnvAsDecimal("FEE_BASE_RATE", "0.0010"),
		FeeImmediateRate:   getEnvAsDecimal("FEE_IMMEDIATE_RATE", "0.0005"),
		FeeDelayedRate:     getEnvAsDecimal("FEE_DELAYED_RATE", "0.0000"),

		OkexWeight:     getEnvAsFloat("OKEX_WEIGHT", 0.7),
		BitfinexWeight: getEnvAsFloat("BITFINEX_WEIGHT", 0.3),

		HedgeContractSizeUSD:      getEnvAsDecimal("HEDGE_CONTRACT_SIZE_USD", "100"),
		HedgeDeadBandUSD:          getEnvAsDecimal("HEDGE_DEAD_BAND_USD", "50"),
		HedgeTradingBalanceLowBTC: getEnvAsDecimal("HEDGE_TRADING_BALANCE_LOW_BTC", "0.1"),
		HedgeTradingBalanceHiBTC:  getEnvAsDecimal("HEDGE_TRADING_BALANCE_HIGH_BTC", "0.5"),
		HedgeFundingWithdrawalBTC: getEnvAsDecimal("HEDGE_FUNDING_WITHDRAWAL_BTC", "1.0"),
		HedgeWithdrawalTargetBTC:  getEnvAsDecimal("HEDGE_WITHDRAWAL_TARGET_BTC", "0.2"),
		HedgeWithdrawalAddress:    getEnv("HEDGE_WITHDRAWAL_ADDRESS", ""),
		HedgeWithdrawalFeeBTC:     getEnvAsDecimal("HEDGE_WITHDRAWAL_FEE_BTC", "0.0002"),
		HedgeSchedule:             getEnv("HEDGE_SCHEDULE", "@every 5s"),

		BackupBucket:    getEnv("BACKUP_BUCKET", ""),
		BackupKeyPrefix: getEnv("BACKUP_KEY_PREFIX", "stablesats-ledger-"),
		BackupSchedule:  getEnv("BACKUP_SCHEDULE", "@every 1h"),
		BackupRegion:    getEnv("BACKUP_REGION", "us-east-1"),
		AWSAccessKeyID:  getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:    getEnv("AWS_SECRET_ACCESS_KEY", ""),

		BusWindowSeconds: getEnvAsInt("BUS_WINDOW_SECONDS", 2),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks for the configuration gaps that would only surface as
// confusing runtime failures later: a backup bucket configured without a
// backup schedule.
func (c *AppConfig) Validate() error {
	if c.BackupBucket != "" && c.BackupSchedule == "" {
		return fmt.Errorf("config: BACKUP_SCHEDULE must be set when BACKUP_BUCKET is configured")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDecimal(key, defaultValue string) decimal.Decimal {
	v := getEnv(key, defaultValue)
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.RequireFromString(defaultValue)
	}
	return d
}
