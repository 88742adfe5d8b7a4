package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookingStatus represents the current status of a ride booking.
type BookingStatus string

const (
	BookingStatusConfirmed       BookingStatus = "CONFIRMED"
	BookingStatusActive          BookingStatus = "ACTIVE"
	BookingStatusCompleted       BookingStatus = "COMPLETED"
	BookingStatusCancelledUser   BookingStatus = "CANCELLED_USER"
	BookingStatusCancelledDriver BookingStatus = "CANCELLED_DRIVER"
	BookingStatusDenied          BookingStatus = "DENIED"
)

// IsTerminal reports whether the booking can no longer change state.
func (s BookingStatus) IsTerminal() bool {
	switch s {
	case BookingStatusCompleted, BookingStatusCancelledUser, BookingStatusCancelledDriver, BookingStatusDenied:
		return true
	}
	return false
}

// HoldsSeat reports whether the booking counts against ride capacity.
func (s BookingStatus) HoldsSeat() bool {
	return s == BookingStatusConfirmed || s == BookingStatusActive
}

// SeatHoldingStatuses lists the statuses that occupy a seat.
var SeatHoldingStatuses = []BookingStatus{BookingStatusConfirmed, BookingStatusActive}

// RideBooking represents one passenger's claim on a ride.
type RideBooking struct {
	ID         string
	RideID     string
	UserID     string
	Status     BookingStatus
	CarbonCost decimal.Decimal // locked in at booking time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
