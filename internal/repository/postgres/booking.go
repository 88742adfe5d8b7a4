package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// BookingRepository implements repository.BookingRepository using PostgreSQL.
type BookingRepository struct {
	q Querier
}

// NewBookingRepository creates a new BookingRepository.
func NewBookingRepository(db *sql.DB) *BookingRepository {
	return &BookingRepository{q: db}
}

const bookingColumns = `id, ride_id, user_id, status, carbon_cost, created_at, updated_at`

// Create persists a new booking.
func (r *BookingRepository) Create(ctx context.Context, booking *domain.RideBooking) error {
	query := `
		INSERT INTO ride_bookings (id, ride_id, user_id, status, carbon_cost, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.q.ExecContext(ctx, query,
		booking.ID,
		booking.RideID,
		booking.UserID,
		booking.Status,
		booking.CarbonCost,
		booking.CreatedAt,
		booking.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	return err
}

// GetByID retrieves a booking by ID.
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*domain.RideBooking, error) {
	query := `SELECT ` + bookingColumns + ` FROM ride_bookings WHERE id = $1`
	return scanBooking(r.q.QueryRowContext(ctx, query, id))
}

// GetForUpdate retrieves a booking and locks its row.
func (r *BookingRepository) GetForUpdate(ctx context.Context, id string) (*domain.RideBooking, error) {
	query := `SELECT ` + bookingColumns + ` FROM ride_bookings WHERE id = $1 FOR UPDATE`
	return scanBooking(r.q.QueryRowContext(ctx, query, id))
}

// GetByRideAndUser retrieves the user's booking on a ride, or nil.
func (r *BookingRepository) GetByRideAndUser(ctx context.Context, rideID, userID string) (*domain.RideBooking, error) {
	query := `SELECT ` + bookingColumns + ` FROM ride_bookings WHERE ride_id = $1 AND user_id = $2`
	booking, err := scanBooking(r.q.QueryRowContext(ctx, query, rideID, userID))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return booking, err
}

// UpdateStatus updates the status of a booking.
func (r *BookingRepository) UpdateStatus(ctx context.Context, id string, status domain.BookingStatus) error {
	query := `UPDATE ride_bookings SET status = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.q.ExecContext(ctx, query, status, id)
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

// ListByRide lists the ride's bookings in creation order.
func (r *BookingRepository) ListByRide(ctx context.Context, rideID string, statuses ...domain.BookingStatus) ([]*domain.RideBooking, error) {
	if len(statuses) == 0 {
		query := `SELECT ` + bookingColumns + ` FROM ride_bookings WHERE ride_id = $1 ORDER BY created_at, id`
		return r.list(ctx, query, rideID)
	}

	query := `
		SELECT ` + bookingColumns + `
		FROM ride_bookings
		WHERE ride_id = $1 AND status = ANY($2)
		ORDER BY created_at, id
	`
	return r.list(ctx, query, rideID, pq.Array(statusStrings(statuses)))
}

// CountByRide counts the ride's bookings in the given statuses.
func (r *BookingRepository) CountByRide(ctx context.Context, rideID string, statuses ...domain.BookingStatus) (int, error) {
	var count int
	var err error
	if len(statuses) == 0 {
		query := `SELECT COUNT(*) FROM ride_bookings WHERE ride_id = $1`
		err = r.q.QueryRowContext(ctx, query, rideID).Scan(&count)
	} else {
		query := `SELECT COUNT(*) FROM ride_bookings WHERE ride_id = $1 AND status = ANY($2)`
		err = r.q.QueryRowContext(ctx, query, rideID, pq.Array(statusStrings(statuses))).Scan(&count)
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ListByUser lists the user's bookings, newest first.
func (r *BookingRepository) ListByUser(ctx context.Context, userID string) ([]*domain.RideBooking, error) {
	query := `SELECT ` + bookingColumns + ` FROM ride_bookings WHERE user_id = $1 ORDER BY created_at DESC, id`
	return r.list(ctx, query, userID)
}

// HasSeatOnActiveRide reports whether the user holds a seat on another ACTIVE ride.
func (r *BookingRepository) HasSeatOnActiveRide(ctx context.Context, userID, excludeRideID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM ride_bookings b
			JOIN rides r ON r.id = b.ride_id
			WHERE b.user_id = $1
			  AND b.ride_id <> $2
			  AND b.status IN ($3, $4)
			  AND r.status = $5
		)
	`

	var exists bool
	err := r.q.QueryRowContext(ctx, query,
		userID,
		excludeRideID,
		domain.BookingStatusConfirmed,
		domain.BookingStatusActive,
		domain.RideStatusActive,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *BookingRepository) list(ctx context.Context, query string, args ...any) ([]*domain.RideBooking, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []*domain.RideBooking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, booking)
	}

	return bookings, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*domain.RideBooking, error) {
	var b domain.RideBooking
	err := row.Scan(&b.ID, &b.RideID, &b.UserID, &b.Status, &b.CarbonCost, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func statusStrings(statuses []domain.BookingStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

var _ repository.BookingRepository = (*BookingRepository)(nil)
