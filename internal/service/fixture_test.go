package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"carpool/internal/config"
	"carpool/internal/domain"
	"carpool/internal/repository"
	"carpool/internal/repository/memory"
)

// fixture wires every service to one in-memory store and a fixed clock.
type fixture struct {
	t        *testing.T
	ctx      context.Context
	store    *memory.Store
	cfg      config.LedgerConfig
	ledger   *LedgerService
	bookings *BookingService
	rides    *RideService
	wallets  *WalletService
	now      time.Time
	phones   int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		store: memory.NewStore(),
		cfg:   config.DefaultLedgerConfig(),
		now:   time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}

	notifier := NewNotificationService()
	f.ledger = NewLedgerService()
	f.bookings = NewBookingService(f.store, f.ledger, f.cfg, notifier, nil)
	f.rides = NewRideService(f.store, f.ledger, f.bookings, f.cfg, notifier, nil)
	f.wallets = NewWalletService(f.store, f.ledger, nil)

	clock := func() time.Time { return f.now }
	f.ledger.now = clock
	f.bookings.now = clock
	f.rides.now = clock
	f.wallets.now = clock

	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

// user registers a member and tops their wallet up to spendable.
func (f *fixture) user(name string, spendable int64) string {
	f.t.Helper()

	f.phones++
	user, _, err := f.wallets.RegisterUser(f.ctx, RegisterUserRequest{
		Name:  name,
		Phone: fmt.Sprintf("+4470000%05d", f.phones),
	})
	require.NoError(f.t, err)

	if spendable > 0 {
		_, err = f.wallets.TopUp(f.ctx, user.ID, decimal.NewFromInt(spendable), "")
		require.NoError(f.t, err)
	}
	return user.ID
}

func (f *fixture) vehicle(ownerID string, vehicleType domain.VehicleType) string {
	id := uuid.New().String()
	f.store.AddVehicle(domain.Vehicle{ID: id, OwnerID: ownerID, Type: vehicleType})
	return id
}

// ride offers a four-wheeler ride departing startsIn from now.
func (f *fixture) ride(driverID string, seats int, startsIn time.Duration) *domain.Ride {
	f.t.Helper()

	ride, err := f.rides.CreateRide(f.ctx, driverID, CreateRideRequest{
		StartingLocationID:    "loc-office",
		DestinationLocationID: "loc-station",
		StartingTime:          f.now.Add(startsIn),
		MaxPassengers:         seats,
		VehicleID:             f.vehicle(driverID, domain.VehicleTypeFourWheeler),
	})
	require.NoError(f.t, err)
	return ride
}

func (f *fixture) book(userID, rideID string) *domain.RideBooking {
	f.t.Helper()

	booking, err := f.bookings.CreateBooking(f.ctx, userID, rideID)
	require.NoError(f.t, err)
	return booking
}

func (f *fixture) wallet(userID string) *domain.Wallet {
	f.t.Helper()

	wallet, err := f.store.Wallets().GetByUserID(f.ctx, userID)
	require.NoError(f.t, err)
	return wallet
}

func (f *fixture) transactions(userID string) []*domain.WalletTransaction {
	f.t.Helper()

	txns, err := f.wallets.ListTransactions(f.ctx, userID, maxTransactionPageSize, 0)
	require.NoError(f.t, err)
	return txns
}

func (f *fixture) countPurpose(userID string, purpose domain.TransactionPurpose) int {
	n := 0
	for _, txn := range f.transactions(userID) {
		if txn.Purpose == purpose {
			n++
		}
	}
	return n
}

func (f *fixture) booking(id string) *domain.RideBooking {
	f.t.Helper()

	booking, err := f.store.Bookings().GetByID(f.ctx, id)
	require.NoError(f.t, err)
	return booking
}

func (f *fixture) inTx(fn func(ctx context.Context, tx repository.Tx) error) error {
	return f.store.WithinTx(f.ctx, fn)
}

func (f *fixture) requireBalances(userID string, spendable, reserved int64) {
	f.t.Helper()

	w := f.wallet(userID)
	require.True(f.t, w.SpendableBalance.Equal(decimal.NewFromInt(spendable)),
		"spendable: want %d, got %s", spendable, w.SpendableBalance)
	require.True(f.t, w.ReservedBalance.Equal(decimal.NewFromInt(reserved)),
		"reserved: want %d, got %s", reserved, w.ReservedBalance)
}

func points(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}
