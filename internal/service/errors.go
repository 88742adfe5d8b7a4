package service

import (
	"errors"
	"fmt"

	"carpool/internal/repository"
)

// Error kinds. Every error returned by this package matches exactly one of
// them with errors.Is.
var (
	// ErrUnauthenticated is returned when no caller identity was supplied.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNotFound is returned when a wallet, ride, booking, vehicle or user is missing.
	ErrNotFound = repository.ErrNotFound

	// ErrUnauthorized is returned when the caller is not the ride's driver or
	// the booking's owner as the operation requires.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidState is returned when the current state does not permit the operation.
	ErrInvalidState = errors.New("invalid state")

	// ErrCapacityExceeded is returned when a ride has no seats left.
	ErrCapacityExceeded = errors.New("no seats left on this ride")

	// ErrDuplicateBooking is returned when the user already booked the ride.
	ErrDuplicateBooking = errors.New("ride already booked by this user")

	// ErrInsufficientBalance is returned when a wallet cannot cover the amount.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrConflictingActiveRide is returned when the user already has an open
	// ride or a seat on an active ride elsewhere.
	ErrConflictingActiveRide = errors.New("conflicting active ride")

	// ErrInvalidRequest is returned when input fails validation.
	ErrInvalidRequest = errors.New("invalid request")
)

var (
	ErrWalletNotFound  = fmt.Errorf("%w: wallet", ErrNotFound)
	ErrRideNotFound    = fmt.Errorf("%w: ride", ErrNotFound)
	ErrBookingNotFound = fmt.Errorf("%w: booking", ErrNotFound)
	ErrVehicleNotFound = fmt.Errorf("%w: vehicle", ErrNotFound)
	ErrUserNotFound    = fmt.Errorf("%w: user", ErrNotFound)

	ErrNotRideDriver   = fmt.Errorf("%w: caller is not the ride's driver", ErrUnauthorized)
	ErrNotBookingOwner = fmt.Errorf("%w: caller does not own the booking", ErrUnauthorized)
	ErrOwnRide         = fmt.Errorf("%w: drivers cannot book their own ride", ErrUnauthorized)
	ErrVehicleNotOwned = fmt.Errorf("%w: vehicle belongs to another user", ErrUnauthorized)

	ErrRideNotPending       = fmt.Errorf("%w: ride is not pending", ErrInvalidState)
	ErrRideNotActive        = fmt.Errorf("%w: ride is not active", ErrInvalidState)
	ErrRideNotBookable      = fmt.Errorf("%w: ride is not open for booking", ErrInvalidState)
	ErrRideDeparted         = fmt.Errorf("%w: ride has already departed", ErrInvalidState)
	ErrRideNotCompletable   = fmt.Errorf("%w: ride is neither active nor completed", ErrInvalidState)
	ErrBookingNotConfirmed  = fmt.Errorf("%w: booking is not confirmed", ErrInvalidState)
	ErrBookingNotActive     = fmt.Errorf("%w: booking is not active", ErrInvalidState)
	ErrBookingNotCancelable = fmt.Errorf("%w: booking can no longer be cancelled", ErrInvalidState)
	ErrNoShowTooEarly       = fmt.Errorf("%w: no-show waiting time has not elapsed", ErrInvalidState)
	ErrRiderNotReached      = fmt.Errorf("%w: rider not reached", ErrInvalidState)
	ErrPhoneTaken           = fmt.Errorf("%w: phone number already registered", ErrInvalidState)

	// ErrReservedBalanceTooLow is returned when a release or settlement would
	// drive the reserved balance negative.
	ErrReservedBalanceTooLow = fmt.Errorf("%w: reserved balance too low", ErrInvalidState)

	// ErrAlreadyApplied is returned when a guarded ledger entry was written by
	// a concurrent transaction after the idempotency lookup. Retrying observes
	// the entry and reports the operation as already applied.
	ErrAlreadyApplied = fmt.Errorf("%w: ledger entry already applied", ErrInvalidState)

	ErrInvalidAmount        = fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	ErrInvalidMaxPassengers = fmt.Errorf("%w: max passengers must be between 1 and 3", ErrInvalidRequest)
	ErrStartingTimeInPast   = fmt.Errorf("%w: starting time must be in the future", ErrInvalidRequest)
	ErrInvalidRideID        = fmt.Errorf("%w: ride id is required", ErrInvalidRequest)
	ErrInvalidBookingID     = fmt.Errorf("%w: booking id is required", ErrInvalidRequest)
	ErrInvalidLocation      = fmt.Errorf("%w: starting and destination locations are required", ErrInvalidRequest)
	ErrInvalidVehicleID     = fmt.Errorf("%w: vehicle id is required", ErrInvalidRequest)
	ErrUnknownVehicleType   = fmt.Errorf("%w: unknown vehicle type", ErrInvalidRequest)
	ErrInvalidUser          = fmt.Errorf("%w: name and phone are required", ErrInvalidRequest)
)

// RiderNotReachedError names the passenger whose booking is still CONFIRMED
// when the driver tries to start the ride.
type RiderNotReachedError struct {
	UserID    string
	BookingID string
}

func (e *RiderNotReachedError) Error() string {
	return fmt.Sprintf("%s: user %s has not checked in", ErrRiderNotReached, e.UserID)
}

// Unwrap lets errors.Is match ErrRiderNotReached and ErrInvalidState.
func (e *RiderNotReachedError) Unwrap() error {
	return ErrRiderNotReached
}

// notFound maps repository.ErrNotFound to the entity-specific sentinel and
// wraps anything else with context.
func notFound(err, sentinel error, action string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return sentinel
	}
	return fmt.Errorf("%s: %w", action, err)
}
