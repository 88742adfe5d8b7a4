package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

var bookingRowColumns = []string{"id", "ride_id", "user_id", "status", "carbon_cost", "created_at", "updated_at"}

func TestBookingRepository_CreateDuplicate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepository(db)

	mock.ExpectExec(`INSERT INTO ride_bookings`).WillReturnError(errUniqueViolation)

	err := repo.Create(context.Background(), &domain.RideBooking{
		ID:         "booking-1",
		RideID:     "ride-1",
		UserID:     "user-1",
		Status:     domain.BookingStatusConfirmed,
		CarbonCost: decimal.NewFromInt(2),
	})
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestBookingRepository_GetForUpdate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepository(db)
	now := time.Now()

	mock.ExpectQuery(`FROM ride_bookings WHERE id = \$1 FOR UPDATE`).
		WithArgs("booking-1").
		WillReturnRows(sqlmock.NewRows(bookingRowColumns).
			AddRow("booking-1", "ride-1", "user-1", "CONFIRMED", "2", now, now))

	booking, err := repo.GetForUpdate(context.Background(), "booking-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, booking.Status)
	assert.True(t, booking.CarbonCost.Equal(decimal.NewFromInt(2)))
}

func TestBookingRepository_GetByRideAndUserMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepository(db)

	mock.ExpectQuery(`WHERE ride_id = \$1 AND user_id = \$2`).
		WithArgs("ride-1", "user-1").
		WillReturnError(sql.ErrNoRows)

	booking, err := repo.GetByRideAndUser(context.Background(), "ride-1", "user-1")
	require.NoError(t, err)
	assert.Nil(t, booking)
}

func TestBookingRepository_ListByRideFiltersStatuses(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepository(db)
	now := time.Now()

	mock.ExpectQuery(`WHERE ride_id = \$1 AND status = ANY\(\$2\)`).
		WithArgs("ride-1", pq.Array([]string{"CONFIRMED", "ACTIVE"})).
		WillReturnRows(sqlmock.NewRows(bookingRowColumns).
			AddRow("booking-1", "ride-1", "user-1", "CONFIRMED", "2", now, now).
			AddRow("booking-2", "ride-1", "user-2", "ACTIVE", "2", now, now))

	bookings, err := repo.ListByRide(context.Background(), "ride-1", domain.SeatHoldingStatuses...)
	require.NoError(t, err)
	require.Len(t, bookings, 2)
	assert.Equal(t, domain.BookingStatusActive, bookings[1].Status)
}

func TestBookingRepository_CountByRide(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM ride_bookings WHERE ride_id = \$1 AND status = ANY\(\$2\)`).
		WithArgs("ride-1", pq.Array([]string{"CONFIRMED", "ACTIVE"})).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountByRide(context.Background(), "ride-1", domain.SeatHoldingStatuses...)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestBookingRepository_UpdateStatus(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepository(db)

	mock.ExpectExec(`UPDATE ride_bookings SET status = \$1, updated_at = NOW\(\) WHERE id = \$2`).
		WithArgs("COMPLETED", "booking-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateStatus(context.Background(), "booking-1", domain.BookingStatusCompleted))

	mock.ExpectExec(`UPDATE ride_bookings`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.UpdateStatus(context.Background(), "missing", domain.BookingStatusCompleted), repository.ErrNotFound)
}

func TestBookingRepository_HasSeatOnActiveRide(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepository(db)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("user-1", "ride-2", "CONFIRMED", "ACTIVE", "ACTIVE").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.HasSeatOnActiveRide(context.Background(), "user-1", "ride-2")
	require.NoError(t, err)
	assert.True(t, exists)
}
