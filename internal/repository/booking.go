package repository

import (
	"context"

	"carpool/internal/domain"
)

// BookingRepository defines the persistence operations for ride bookings.
type BookingRepository interface {
	// Create persists a new booking. Returns ErrConflict if the user already
	// booked the ride.
	Create(ctx context.Context, booking *domain.RideBooking) error

	// GetByID retrieves a booking by ID.
	GetByID(ctx context.Context, id string) (*domain.RideBooking, error)

	// GetForUpdate retrieves a booking and locks its row for the rest of the transaction.
	GetForUpdate(ctx context.Context, id string) (*domain.RideBooking, error)

	// GetByRideAndUser retrieves the user's booking on a ride.
	// Returns nil if none exists.
	GetByRideAndUser(ctx context.Context, rideID, userID string) (*domain.RideBooking, error)

	// UpdateStatus updates the status of a booking.
	UpdateStatus(ctx context.Context, id string, status domain.BookingStatus) error

	// ListByRide lists the ride's bookings, optionally filtered by status.
	ListByRide(ctx context.Context, rideID string, statuses ...domain.BookingStatus) ([]*domain.RideBooking, error)

	// CountByRide counts the ride's bookings in the given statuses.
	CountByRide(ctx context.Context, rideID string, statuses ...domain.BookingStatus) (int, error)

	// ListByUser lists the user's bookings, newest first.
	ListByUser(ctx context.Context, userID string) ([]*domain.RideBooking, error)

	// HasSeatOnActiveRide reports whether the user holds a CONFIRMED or ACTIVE
	// booking on an ACTIVE ride other than excludeRideID.
	HasSeatOnActiveRide(ctx context.Context, userID, excludeRideID string) (bool, error)
}
