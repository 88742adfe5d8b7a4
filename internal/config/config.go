package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"carpool/internal/domain"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	Log      LogConfig
	Auth     AuthConfig
	Ledger   LedgerConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Driver         string // "postgres" or "memory"
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MigrationsPath string
	MemorySeedPath string // JSON fixture for the memory driver, optional
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level string
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	JWTSecret string
}

// LedgerConfig holds the carbon point amounts and time windows that drive
// holds, fines and payouts.
type LedgerConfig struct {
	CarbonCostTwoWheeler  decimal.Decimal
	CarbonCostFourWheeler decimal.Decimal

	// CancellationThreshold is how long before a ride's starting time a
	// cancellation starts to be fined.
	CancellationThreshold time.Duration

	// NoShowWaitingThreshold is how long after the starting time a driver
	// must wait before reporting a passenger as a no-show.
	NoShowWaitingThreshold time.Duration

	DriverCancellationFine decimal.Decimal
	RiderCancellationFine  decimal.Decimal
	NoShowFine             decimal.Decimal

	// RideCreationBalanceFloor is the lowest spendable balance that still
	// allows a driver to offer a ride.
	RideCreationBalanceFloor decimal.Decimal
}

// CarbonCostFor returns the per-seat cost of a ride in a vehicle of type t.
func (c LedgerConfig) CarbonCostFor(t domain.VehicleType) (decimal.Decimal, bool) {
	switch t {
	case domain.VehicleTypeTwoWheeler:
		return c.CarbonCostTwoWheeler, true
	case domain.VehicleTypeFourWheeler:
		return c.CarbonCostFourWheeler, true
	}
	return decimal.Zero, false
}

// DefaultLedgerConfig returns the ledger settings used when no environment
// overrides are present.
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		CarbonCostTwoWheeler:     decimal.NewFromInt(1),
		CarbonCostFourWheeler:    decimal.NewFromInt(2),
		CancellationThreshold:    60 * time.Minute,
		NoShowWaitingThreshold:   15 * time.Minute,
		DriverCancellationFine:   decimal.NewFromInt(2),
		RiderCancellationFine:    decimal.NewFromInt(1),
		NoShowFine:               decimal.NewFromInt(1),
		RideCreationBalanceFloor: decimal.NewFromInt(-5),
	}
}

// Load loads configuration from environment variables. A .env file in the
// working directory is read first if present.
func Load() *Config {
	_ = godotenv.Load()

	ledger := DefaultLedgerConfig()

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Driver:         getEnv("DB_DRIVER", "postgres"),
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			DBName:         getEnv("DB_NAME", "carpool"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MigrationsPath: getEnv("DB_MIGRATIONS_PATH", "migrations"),
			MemorySeedPath: getEnv("DB_MEMORY_SEED", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
			Enabled:  getBoolEnv("REDIS_ENABLED", true),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "carpool-service"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Ledger: LedgerConfig{
			CarbonCostTwoWheeler:     getDecimalEnv("CARBON_COST_TWO_WHEELER", ledger.CarbonCostTwoWheeler),
			CarbonCostFourWheeler:    getDecimalEnv("CARBON_COST_FOUR_WHEELER", ledger.CarbonCostFourWheeler),
			CancellationThreshold:    getMinutesEnv("RIDE_CANCELLATION_THRESHOLD_MINUTES", ledger.CancellationThreshold),
			NoShowWaitingThreshold:   getMinutesEnv("NO_SHOW_WAITING_THRESHOLD_MINUTES", ledger.NoShowWaitingThreshold),
			DriverCancellationFine:   getDecimalEnv("DRIVER_CANCELLATION_FINE", ledger.DriverCancellationFine),
			RiderCancellationFine:    getDecimalEnv("RIDER_CANCELLATION_FINE", ledger.RiderCancellationFine),
			NoShowFine:               getDecimalEnv("NO_SHOW_FINE", ledger.NoShowFine),
			RideCreationBalanceFloor: getDecimalEnv("RIDE_CREATION_BALANCE_FLOOR", ledger.RideCreationBalanceFloor),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil && minutes >= 0 {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getDecimalEnv(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
