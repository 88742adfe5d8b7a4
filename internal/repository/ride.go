package repository

import (
	"context"

	"carpool/internal/domain"
)

// RideRepository defines the persistence operations for rides.
type RideRepository interface {
	// Create persists a new ride.
	Create(ctx context.Context, ride *domain.Ride) error

	// GetByID retrieves a ride by ID.
	GetByID(ctx context.Context, id string) (*domain.Ride, error)

	// GetForUpdate retrieves a ride and locks its row for the rest of the transaction.
	GetForUpdate(ctx context.Context, id string) (*domain.Ride, error)

	// Update updates an existing ride.
	Update(ctx context.Context, ride *domain.Ride) error

	// GetOpenByDriverID retrieves the driver's ride in PENDING or ACTIVE state.
	// Returns nil if no such ride exists.
	GetOpenByDriverID(ctx context.Context, driverID string) (*domain.Ride, error)
}
