package repository

import (
	"context"

	"carpool/internal/domain"
)

// VehicleRepository looks up vehicles registered by drivers.
type VehicleRepository interface {
	// GetByID retrieves a vehicle by ID.
	GetByID(ctx context.Context, id string) (*domain.Vehicle, error)
}
