package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

func TestCreateRide(t *testing.T) {
	f := newFixture(t)
	driver := f.user("driver", 0)
	twoWheeler := f.vehicle(driver, domain.VehicleTypeTwoWheeler)

	ride, err := f.rides.CreateRide(f.ctx, driver, CreateRideRequest{
		StartingLocationID:    "loc-a",
		DestinationLocationID: "loc-b",
		StartingTime:          f.now.Add(time.Hour),
		MaxPassengers:         1,
		VehicleID:             twoWheeler,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.RideStatusPending, ride.Status)
	assert.True(t, ride.CarbonCost.Equal(points(1)))
	assert.Equal(t, driver, ride.DriverID)
}

func TestCreateRide_Validation(t *testing.T) {
	f := newFixture(t)
	driver := f.user("driver", 0)
	other := f.user("other", 0)
	vehicle := f.vehicle(driver, domain.VehicleTypeFourWheeler)
	foreign := f.vehicle(other, domain.VehicleTypeFourWheeler)

	valid := func() CreateRideRequest {
		return CreateRideRequest{
			StartingLocationID:    "loc-a",
			DestinationLocationID: "loc-b",
			StartingTime:          f.now.Add(time.Hour),
			MaxPassengers:         3,
			VehicleID:             vehicle,
		}
	}

	tests := []struct {
		name   string
		mutate func(r *CreateRideRequest)
		want   error
	}{
		{"no seats", func(r *CreateRideRequest) { r.MaxPassengers = 0 }, ErrInvalidMaxPassengers},
		{"too many seats", func(r *CreateRideRequest) { r.MaxPassengers = 4 }, ErrInvalidMaxPassengers},
		{"in the past", func(r *CreateRideRequest) { r.StartingTime = f.now.Add(-time.Minute) }, ErrStartingTimeInPast},
		{"missing location", func(r *CreateRideRequest) { r.DestinationLocationID = "" }, ErrInvalidLocation},
		{"unknown vehicle", func(r *CreateRideRequest) { r.VehicleID = "missing" }, ErrVehicleNotFound},
		{"someone else's vehicle", func(r *CreateRideRequest) { r.VehicleID = foreign }, ErrVehicleNotOwned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(&req)
			_, err := f.rides.CreateRide(f.ctx, driver, req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreateRide_ConflictingOpenRide(t *testing.T) {
	f := newFixture(t)
	driver := f.user("driver", 0)
	f.ride(driver, 2, time.Hour)

	_, err := f.rides.CreateRide(f.ctx, driver, CreateRideRequest{
		StartingLocationID:    "loc-a",
		DestinationLocationID: "loc-b",
		StartingTime:          f.now.Add(2 * time.Hour),
		MaxPassengers:         2,
		VehicleID:             f.vehicle(driver, domain.VehicleTypeFourWheeler),
	})
	assert.ErrorIs(t, err, ErrConflictingActiveRide)
}

func TestCreateRide_BalanceFloor(t *testing.T) {
	f := newFixture(t)
	driver := f.user("driver", 0)

	require.NoError(t, f.inTx(func(ctx context.Context, tx repository.Tx) error {
		_, err := f.ledger.ApplyFineChargeRide(ctx, tx, driver, "old-ride", points(6))
		return err
	}))

	_, err := f.rides.CreateRide(f.ctx, driver, CreateRideRequest{
		StartingLocationID:    "loc-a",
		DestinationLocationID: "loc-b",
		StartingTime:          f.now.Add(time.Hour),
		MaxPassengers:         1,
		VehicleID:             f.vehicle(driver, domain.VehicleTypeFourWheeler),
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestActivateRide_RiderNotReached(t *testing.T) {
	f := newFixture(t)
	driver := f.user("driver", 0)
	boarded := f.user("boarded", 10)
	waiting := f.user("waiting", 10)
	ride := f.ride(driver, 3, time.Hour)

	first := f.book(boarded, ride.ID)
	f.book(waiting, ride.ID)
	_, err := f.bookings.ActivateBooking(f.ctx, boarded, first.ID)
	require.NoError(t, err)

	_, err = f.rides.ActivateRide(f.ctx, driver, ride.ID)

	var notReached *RiderNotReachedError
	require.True(t, errors.As(err, &notReached))
	assert.Equal(t, waiting, notReached.UserID)
	assert.ErrorIs(t, err, ErrRiderNotReached)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestActivateRide_OnlyDriverFromPending(t *testing.T) {
	f := newFixture(t)
	driver := f.user("driver", 0)
	stranger := f.user("stranger", 0)
	ride := f.ride(driver, 1, time.Hour)

	_, err := f.rides.ActivateRide(f.ctx, stranger, ride.ID)
	assert.ErrorIs(t, err, ErrNotRideDriver)

	activated, err := f.rides.ActivateRide(f.ctx, driver, ride.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RideStatusActive, activated.Status)

	_, err = f.rides.ActivateRide(f.ctx, driver, ride.ID)
	assert.ErrorIs(t, err, ErrRideNotPending)
}

func TestCompleteRide_SettlesAndPaysOut(t *testing.T) {
	f := newFixture(t)
	driver := f.user("driver", 0)
	alice := f.user("alice", 10)
	bob := f.user("bob", 5)
	ride := f.ride(driver, 2, time.Hour)

	for _, user := range []string{alice, bob} {
		booking := f.book(user, ride.ID)
		_, err := f.bookings.ActivateBooking(f.ctx, user, booking.ID)
		require.NoError(t, err)
	}
	_, err := f.rides.ActivateRide(f.ctx, driver, ride.ID)
	require.NoError(t, err)

	total := func() decimal.Decimal {
		sum := decimal.Zero
		for _, u := range []string{driver, alice, bob} {
			sum = sum.Add(f.wallet(u).Total())
		}
		return sum
	}
	before := total()

	_, err = f.rides.CompleteRide(f.ctx, alice, ride.ID)
	assert.ErrorIs(t, err, ErrNotRideDriver)

	result, err := f.rides.CompleteRide(f.ctx, driver, ride.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.RideStatusCompleted, result.Ride.Status)
	assert.Len(t, result.Outcomes, 2)
	assert.Empty(t, result.Failed())
	for _, o := range result.Outcomes {
		assert.Equal(t, domain.BookingStatusCompleted, o.Status)
	}

	f.requireBalances(alice, 8, 0)
	f.requireBalances(bob, 3, 0)
	f.requireBalances(driver, 4, 0)

	// each settle is matched by a payout of the same amount
	assert.True(t, before.Equal(total()), "before %s, after %s", before, total())

	_, err = f.rides.CompleteRide(f.ctx, driver, ride.ID)
	assert.ErrorIs(t, err, ErrRideNotActive)
}

func TestCompleteRide_ReinvokingBookingCompletionAddsNothing(t *testing.T) {
	f := newFixture(t)
	driver := f.user("driver", 0)
	passenger := f.user("passenger", 10)
	ride := f.ride(driver, 1, time.Hour)
	booking := f.book(passenger, ride.ID)
	_, err := f.bookings.ActivateBooking(f.ctx, passenger, booking.ID)
	require.NoError(t, err)
	_, err = f.rides.ActivateRide(f.ctx, driver, ride.ID)
	require.NoError(t, err)

	_, err = f.rides.CompleteRide(f.ctx, driver, ride.ID)
	require.NoError(t, err)
	passengerTxns := len(f.transactions(passenger))
	driverTxns := len(f.transactions(driver))

	_, err = f.bookings.CompleteBooking(f.ctx, driver, booking.ID)
	require.NoError(t, err)
	outcome := f.bookings.completeForRide(f.ctx, booking.ID)
	require.NoError(t, outcome.Err)

	assert.Len(t, f.transactions(passenger), passengerTxns)
	assert.Len(t, f.transactions(driver), driverTxns)
	f.requireBalances(passenger, 8, 0)
	f.requireBalances(driver, 2, 0)
}

func TestCompleteRide_RacingBookingCompletionSettlesOnce(t *testing.T) {
	for round := 0; round < 10; round++ {
		f := newFixture(t)
		driver := f.user("driver", 0)
		passenger := f.user("passenger", 10)
		ride := f.ride(driver, 1, time.Hour)
		booking := f.book(passenger, ride.ID)
		_, err := f.bookings.ActivateBooking(f.ctx, passenger, booking.ID)
		require.NoError(t, err)
		_, err = f.rides.ActivateRide(f.ctx, driver, ride.ID)
		require.NoError(t, err)

		var wg sync.WaitGroup
		var rideErr, bookingErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, rideErr = f.rides.CompleteRide(f.ctx, driver, ride.ID)
		}()
		go func() {
			defer wg.Done()
			_, bookingErr = f.bookings.CompleteBooking(f.ctx, driver, booking.ID)
		}()
		wg.Wait()

		require.NoError(t, rideErr)
		require.NoError(t, bookingErr)

		assert.Equal(t, 1, f.countPurpose(passenger, domain.PurposeBookingSettle))
		assert.Equal(t, 1, f.countPurpose(driver, domain.PurposePayout))
		assert.Equal(t, domain.BookingStatusCompleted, f.booking(booking.ID).Status)
		f.requireBalances(passenger, 8, 0)
		f.requireBalances(driver, 2, 0)
	}
}

func TestCompleteRide_ReportsFailedBookings(t *testing.T) {
	f := newFixture(t)
	driver := f.user("driver", 0)
	passenger := f.user("passenger", 10)
	ride := f.ride(driver, 1, time.Hour)
	booking := f.book(passenger, ride.ID)
	_, err := f.bookings.ActivateBooking(f.ctx, passenger, booking.ID)
	require.NoError(t, err)
	_, err = f.rides.ActivateRide(f.ctx, driver, ride.ID)
	require.NoError(t, err)

	// drain the reservation so settlement fails
	require.NoError(t, f.inTx(func(ctx context.Context, tx repository.Tx) error {
		_, err := f.ledger.Unhold(ctx, tx, passenger, ride.ID, "other-booking", points(2))
		return err
	}))

	result, err := f.rides.CompleteRide(f.ctx, driver, ride.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.RideStatusCompleted, result.Ride.Status)
	require.Len(t, result.Failed(), 1)
	assert.ErrorIs(t, result.Failed()[0].Err, ErrReservedBalanceTooLow)
	assert.Equal(t, domain.BookingStatusActive, f.booking(booking.ID).Status)
	f.requireBalances(driver, 0, 0)
}

func TestCancelRide_InsideWindowFinesDriverOnce(t *testing.T) {
	f := newFixture(t)
	driver := f.user("driver", 5)
	passenger := f.user("passenger", 10)
	ride := f.ride(driver, 2, 30*time.Minute)
	booking := f.book(passenger, ride.ID)

	result, err := f.rides.CancelRide(f.ctx, driver, ride.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.RideStatusCancelled, result.Ride.Status)
	assert.True(t, result.FineApplied)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, domain.BookingStatusCancelledDriver, result.Outcomes[0].Status)
	assert.Equal(t, domain.BookingStatusCancelledDriver, f.booking(booking.ID).Status)

	f.requireBalances(passenger, 10, 0)
	assert.Zero(t, f.countPurpose(passenger, domain.PurposeFineCharge))
	f.requireBalances(driver, 3, 0)
	assert.Equal(t, 1, f.countPurpose(driver, domain.PurposeFineCharge))

	again, err := f.rides.CancelRide(f.ctx, driver, ride.ID)
	require.NoError(t, err)
	assert.False(t, again.FineApplied)
	assert.Empty(t, again.Outcomes)
	f.requireBalances(driver, 3, 0)
	assert.Equal(t, 1, f.countPurpose(driver, domain.PurposeFineCharge))
}

func TestCancelRide_NoFine(t *testing.T) {
	t.Run("outside window", func(t *testing.T) {
		f := newFixture(t)
		driver := f.user("driver", 5)
		passenger := f.user("passenger", 10)
		ride := f.ride(driver, 2, 3*time.Hour)
		f.book(passenger, ride.ID)

		result, err := f.rides.CancelRide(f.ctx, driver, ride.ID)
		require.NoError(t, err)
		assert.False(t, result.FineApplied)
		f.requireBalances(driver, 5, 0)
		f.requireBalances(passenger, 10, 0)
	})

	t.Run("no passengers", func(t *testing.T) {
		f := newFixture(t)
		driver := f.user("driver", 5)
		ride := f.ride(driver, 2, 10*time.Minute)

		result, err := f.rides.CancelRide(f.ctx, driver, ride.ID)
		require.NoError(t, err)
		assert.False(t, result.FineApplied)
		f.requireBalances(driver, 5, 0)
	})
}

func TestCancelRide_OnlyFromPending(t *testing.T) {
	f := newFixture(t)
	driver := f.user("driver", 0)
	ride := f.ride(driver, 1, time.Hour)
	_, err := f.rides.ActivateRide(f.ctx, driver, ride.ID)
	require.NoError(t, err)

	_, err = f.rides.CancelRide(f.ctx, driver, ride.ID)
	assert.ErrorIs(t, err, ErrRideNotPending)
}

func TestCancelRide_AllowsNewRideAfterwards(t *testing.T) {
	f := newFixture(t)
	driver := f.user("driver", 0)
	ride := f.ride(driver, 1, time.Hour)

	_, err := f.rides.CancelRide(f.ctx, driver, ride.ID)
	require.NoError(t, err)

	f.ride(driver, 1, 2*time.Hour)
}

func TestListRideBookings(t *testing.T) {
	f := newFixture(t)
	driver := f.user("driver", 0)
	passenger := f.user("passenger", 10)
	ride := f.ride(driver, 2, time.Hour)
	f.book(passenger, ride.ID)

	bookings, err := f.rides.ListRideBookings(f.ctx, driver, ride.ID)
	require.NoError(t, err)
	assert.Len(t, bookings, 1)

	_, err = f.rides.ListRideBookings(f.ctx, passenger, ride.ID)
	assert.ErrorIs(t, err, ErrNotRideDriver)

	got, err := f.rides.GetRide(f.ctx, passenger, ride.ID)
	require.NoError(t, err)
	assert.Equal(t, ride.ID, got.ID)
}
