package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"carpool/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("NO_SHOW_FINE", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Ledger.RideCreationBalanceFloor.Equal(decimal.NewFromInt(-5)))
	assert.True(t, cfg.Ledger.NoShowFine.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, 60*time.Minute, cfg.Ledger.CancellationThreshold)
}

func TestLoad_LedgerOverrides(t *testing.T) {
	t.Setenv("CARBON_COST_FOUR_WHEELER", "3.5")
	t.Setenv("RIDE_CANCELLATION_THRESHOLD_MINUTES", "30")
	t.Setenv("NO_SHOW_WAITING_THRESHOLD_MINUTES", "5")
	t.Setenv("DRIVER_CANCELLATION_FINE", "4")
	t.Setenv("RIDE_CREATION_BALANCE_FLOOR", "0")
	t.Setenv("DB_DRIVER", "memory")

	cfg := Load()

	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.True(t, cfg.Ledger.CarbonCostFourWheeler.Equal(decimal.RequireFromString("3.5")))
	assert.Equal(t, 30*time.Minute, cfg.Ledger.CancellationThreshold)
	assert.Equal(t, 5*time.Minute, cfg.Ledger.NoShowWaitingThreshold)
	assert.True(t, cfg.Ledger.DriverCancellationFine.Equal(decimal.NewFromInt(4)))
	assert.True(t, cfg.Ledger.RideCreationBalanceFloor.IsZero())
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("RIDER_CANCELLATION_FINE", "lots")
	t.Setenv("RIDE_CANCELLATION_THRESHOLD_MINUTES", "-10")
	t.Setenv("REDIS_DB", "x")

	cfg := Load()

	assert.True(t, cfg.Ledger.RiderCancellationFine.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, 60*time.Minute, cfg.Ledger.CancellationThreshold)
	assert.Equal(t, 0, cfg.Redis.DB)
}

func TestCarbonCostFor(t *testing.T) {
	cfg := DefaultLedgerConfig()

	cost, ok := cfg.CarbonCostFor(domain.VehicleTypeTwoWheeler)
	assert.True(t, ok)
	assert.True(t, cost.Equal(decimal.NewFromInt(1)))

	cost, ok = cfg.CarbonCostFor(domain.VehicleTypeFourWheeler)
	assert.True(t, ok)
	assert.True(t, cost.Equal(decimal.NewFromInt(2)))

	_, ok = cfg.CarbonCostFor("BUS")
	assert.False(t, ok)
}
