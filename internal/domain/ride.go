package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RideStatus represents the current status of a ride.
type RideStatus string

const (
	RideStatusPending   RideStatus = "PENDING"
	RideStatusActive    RideStatus = "ACTIVE"
	RideStatusCompleted RideStatus = "COMPLETED"
	RideStatusCancelled RideStatus = "CANCELLED"
)

// IsTerminal reports whether no further transitions are allowed.
func (s RideStatus) IsTerminal() bool {
	return s == RideStatusCompleted || s == RideStatusCancelled
}

const (
	MinPassengers = 1
	MaxPassengers = 3
)

// Ride represents a trip offered by a driver (champion).
type Ride struct {
	ID                    string
	DriverID              string
	StartingLocationID    string
	DestinationLocationID string
	StartingTime          time.Time
	MaxPassengers         int
	VehicleID             string
	CarbonCost            decimal.Decimal // cost basis per seat, from the vehicle type
	Status                RideStatus
	CreatedAt             time.Time
	CancelledAt           time.Time
	CompletedAt           time.Time
}
