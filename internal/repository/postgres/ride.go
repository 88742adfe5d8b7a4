package postgres

import (
	"context"
	"database/sql"
	"errors"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// RideRepository is a PostgreSQL implementation of repository.RideRepository.
type RideRepository struct {
	q Querier
}

// NewRideRepository creates a new PostgreSQL ride repository.
func NewRideRepository(db *sql.DB) *RideRepository {
	return &RideRepository{q: db}
}

const rideColumns = `id, driver_id, starting_location_id, destination_location_id, starting_time,
	max_passengers, vehicle_id, carbon_cost, status, created_at, cancelled_at, completed_at`

// Create persists a new ride.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	query := `
		INSERT INTO rides (id, driver_id, starting_location_id, destination_location_id, starting_time,
			max_passengers, vehicle_id, carbon_cost, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.q.ExecContext(ctx, query,
		ride.ID,
		ride.DriverID,
		ride.StartingLocationID,
		ride.DestinationLocationID,
		ride.StartingTime,
		ride.MaxPassengers,
		ride.VehicleID,
		ride.CarbonCost,
		ride.Status,
		ride.CreatedAt,
	)

	return err
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetForUpdate retrieves a ride and locks its row.
func (r *RideRepository) GetForUpdate(ctx context.Context, id string) (*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

// GetOpenByDriverID retrieves the driver's PENDING or ACTIVE ride.
// Returns nil if no open ride exists.
func (r *RideRepository) GetOpenByDriverID(ctx context.Context, driverID string) (*domain.Ride, error) {
	query := `
		SELECT ` + rideColumns + `
		FROM rides
		WHERE driver_id = $1 AND status IN ($2, $3)
		LIMIT 1
	`

	ride, err := r.getOne(ctx, query, driverID, domain.RideStatusPending, domain.RideStatusActive)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return ride, err
}

// Update updates an existing ride.
func (r *RideRepository) Update(ctx context.Context, ride *domain.Ride) error {
	query := `
		UPDATE rides
		SET status = $1, max_passengers = $2, starting_time = $3, cancelled_at = $4, completed_at = $5
		WHERE id = $6
	`

	var cancelledAt sql.NullTime
	if !ride.CancelledAt.IsZero() {
		cancelledAt = sql.NullTime{Time: ride.CancelledAt, Valid: true}
	}

	var completedAt sql.NullTime
	if !ride.CompletedAt.IsZero() {
		completedAt = sql.NullTime{Time: ride.CompletedAt, Valid: true}
	}

	result, err := r.q.ExecContext(ctx, query,
		ride.Status,
		ride.MaxPassengers,
		ride.StartingTime,
		cancelledAt,
		completedAt,
		ride.ID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *RideRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Ride, error) {
	var ride domain.Ride
	var cancelledAt, completedAt sql.NullTime

	err := r.q.QueryRowContext(ctx, query, args...).Scan(
		&ride.ID,
		&ride.DriverID,
		&ride.StartingLocationID,
		&ride.DestinationLocationID,
		&ride.StartingTime,
		&ride.MaxPassengers,
		&ride.VehicleID,
		&ride.CarbonCost,
		&ride.Status,
		&ride.CreatedAt,
		&cancelledAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	if cancelledAt.Valid {
		ride.CancelledAt = cancelledAt.Time
	}
	if completedAt.Valid {
		ride.CompletedAt = completedAt.Time
	}

	return &ride, nil
}

// Ensure RideRepository implements repository.RideRepository.
var _ repository.RideRepository = (*RideRepository)(nil)
