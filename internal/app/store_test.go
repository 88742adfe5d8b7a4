package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carpool/internal/config"
	"carpool/internal/service"
)

const testSeed = `{
	"users": [{"id": "driver-1", "name": "Ravi", "phone": "+15550001"}],
	"vehicles": [{"id": "car-1", "owner_id": "driver-1", "type": "FOUR_WHEELER"}]
}`

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewStore_MemorySeedAllowsRideCreation(t *testing.T) {
	ctx := context.Background()
	cfg := config.DatabaseConfig{Driver: DriverMemory, MemorySeedPath: writeSeed(t, testSeed)}

	store, db, err := NewStore(ctx, cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, db)

	wallet, err := store.Wallets().GetByUserID(ctx, "driver-1")
	require.NoError(t, err)
	assert.True(t, wallet.SpendableBalance.IsZero())

	ledgerCfg := config.DefaultLedgerConfig()
	notifier := service.NewNotificationService()
	ledger := service.NewLedgerService()
	bookings := service.NewBookingService(store, ledger, ledgerCfg, notifier, nil)
	rides := service.NewRideService(store, ledger, bookings, ledgerCfg, notifier, nil)

	ride, err := rides.CreateRide(ctx, "driver-1", service.CreateRideRequest{
		StartingLocationID:    "loc-a",
		DestinationLocationID: "loc-b",
		StartingTime:          time.Now().Add(2 * time.Hour),
		MaxPassengers:         2,
		VehicleID:             "car-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "car-1", ride.VehicleID)
}

func TestNewStore_MemoryWithoutSeed(t *testing.T) {
	store, db, err := NewStore(context.Background(), config.DatabaseConfig{Driver: DriverMemory}, nil)
	require.NoError(t, err)
	assert.Nil(t, db)
	assert.NotNil(t, store)
}

func TestNewStore_BadSeed(t *testing.T) {
	tests := []struct {
		name string
		seed string
	}{
		{name: "malformed json", seed: `{"users": [`},
		{name: "unknown vehicle type", seed: `{"vehicles": [{"id": "v", "owner_id": "u", "type": "BUS"}]}`},
		{name: "user without id", seed: `{"users": [{"name": "x", "phone": "1"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DatabaseConfig{Driver: DriverMemory, MemorySeedPath: writeSeed(t, tt.seed)}
			_, _, err := NewStore(context.Background(), cfg, nil)
			assert.Error(t, err)
		})
	}

	_, _, err := NewStore(context.Background(), config.DatabaseConfig{
		Driver:         DriverMemory,
		MemorySeedPath: filepath.Join(t.TempDir(), "missing.json"),
	}, nil)
	assert.Error(t, err)
}

func TestNewStore_UnknownDriver(t *testing.T) {
	_, _, err := NewStore(context.Background(), config.DatabaseConfig{Driver: "sqlite"}, nil)
	assert.Error(t, err)
}
