package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Config holds the application settings.
type Config struct {
	Port                    string
	DBPath                  string
	RedisAddr               string // empty means in-process cache
	SummaryCacheTTL         time.Duration
	RefreshSchedule         string // cron spec for the accrual refresh job
	LogLevel                logrus.Level
	LogJSON                 bool
	EnableTimeTravel        bool
	DefaultLateInterestRate decimal.Decimal
	CORSOrigins             []string
}

// Load reads settings from a .env file, if present, and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Warn(".env file not found, using environment only")
	}
	return FromEnv()
}

// FromEnv reads settings from the environment only.
func FromEnv() (*Config, error) {
	level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	ttl, err := time.ParseDuration(getEnv("SUMMARY_CACHE_TTL", "1h"))
	if err != nil {
		return nil, err
	}

	lateRate, err := decimal.NewFromString(getEnv("DEFAULT_LATE_INTEREST_RATE", "0.033"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:                    getEnv("PORT", "8080"),
		DBPath:                  getEnv("DB_PATH", "parcela.db"),
		RedisAddr:               os.Getenv("REDIS_ADDR"),
		SummaryCacheTTL:         ttl,
		RefreshSchedule:         getEnv("REFRESH_SCHEDULE", "@every 1h"),
		LogLevel:                level,
		LogJSON:                 getBool("LOG_JSON", true),
		EnableTimeTravel:        getBool("ENABLE_TIME_TRAVEL", false),
		DefaultLateInterestRate: lateRate,
		CORSOrigins:             strings.Split(getEnv("CORS_ORIGINS", "*"), ","),
	}, nil
}

// NewLogger builds the application logger from the config.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)
	if c.LogJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}
