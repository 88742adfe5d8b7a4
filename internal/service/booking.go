package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"carpool/internal/config"
	"carpool/internal/domain"
	"carpool/internal/logger"
	"carpool/internal/metrics"
	"carpool/internal/repository"
)

// BookingOutcome is the result of one booking's step in a ride-wide
// completion or cancellation.
type BookingOutcome struct {
	BookingID string
	UserID    string
	Status    domain.BookingStatus // status after the attempt
	Err       error
}

// BookingService handles seat admission and the booking lifecycle.
type BookingService struct {
	store    repository.Store
	ledger   *LedgerService
	cfg      config.LedgerConfig
	notifier *NotificationService
	cache    WalletCache
	now      func() time.Time
}

// NewBookingService creates a new BookingService. cache may be nil.
func NewBookingService(
	store repository.Store,
	ledger *LedgerService,
	cfg config.LedgerConfig,
	notifier *NotificationService,
	cache WalletCache,
) *BookingService {
	if cache == nil {
		cache = noopWalletCache{}
	}
	return &BookingService{
		store:    store,
		ledger:   ledger,
		cfg:      cfg,
		notifier: notifier,
		cache:    cache,
		now:      time.Now,
	}
}

// appliedFine records a fine written inside a transaction so it can be
// announced after commit.
type appliedFine struct {
	userID string
	amount decimal.Decimal
}

// bookingChange collects what a committed booking transaction did.
type bookingChange struct {
	ride         *domain.Ride
	booking      *domain.RideBooking
	transitioned bool
	touched      []string // wallets whose balances changed
	fine         *appliedFine
}

// CreateBooking admits userID to a ride and holds the seat cost.
//
// All checks run inside one transaction with the ride row locked, so two
// callers racing for the last seat serialise and the loser sees
// ErrCapacityExceeded.
func (s *BookingService) CreateBooking(ctx context.Context, userID, rideID string) (*domain.RideBooking, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if rideID == "" {
		return nil, ErrInvalidRideID
	}

	var change *bookingChange
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		ride, err := tx.Rides().GetForUpdate(ctx, rideID)
		if err != nil {
			return notFound(err, ErrRideNotFound, "lock ride")
		}

		if ride.DriverID == userID {
			return ErrOwnRide
		}

		if ride.Status != domain.RideStatusPending || !s.now().Before(ride.StartingTime) {
			return ErrRideNotBookable
		}

		seats, err := tx.Bookings().CountByRide(ctx, ride.ID, domain.SeatHoldingStatuses...)
		if err != nil {
			return fmt.Errorf("count bookings: %w", err)
		}
		if seats >= ride.MaxPassengers {
			return ErrCapacityExceeded
		}

		existing, err := tx.Bookings().GetByRideAndUser(ctx, ride.ID, userID)
		if err != nil {
			return fmt.Errorf("look up booking: %w", err)
		}
		if existing != nil {
			return ErrDuplicateBooking
		}

		riding, err := tx.Bookings().HasSeatOnActiveRide(ctx, userID, ride.ID)
		if err != nil {
			return fmt.Errorf("check active rides: %w", err)
		}
		if riding {
			return ErrConflictingActiveRide
		}

		vehicle, err := tx.Vehicles().GetByID(ctx, ride.VehicleID)
		if err != nil {
			return notFound(err, ErrVehicleNotFound, "get vehicle")
		}
		amount, ok := s.cfg.CarbonCostFor(vehicle.Type)
		if !ok {
			return ErrUnknownVehicleType
		}

		wallet, err := tx.Wallets().GetForUpdate(ctx, userID)
		if err != nil {
			return notFound(err, ErrWalletNotFound, "lock wallet")
		}
		if !wallet.SpendableBalance.GreaterThan(amount) {
			return ErrInsufficientBalance
		}

		now := s.now()
		booking := &domain.RideBooking{
			ID:         uuid.New().String(),
			RideID:     ride.ID,
			UserID:     userID,
			Status:     domain.BookingStatusConfirmed,
			CarbonCost: amount,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.Bookings().Create(ctx, booking); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrDuplicateBooking
			}
			return fmt.Errorf("create booking: %w", err)
		}

		if err := s.ledger.Hold(ctx, tx, userID, ride.ID, booking.ID, amount); err != nil {
			return fmt.Errorf("hold booking amount: %w", err)
		}

		change = &bookingChange{ride: ride, booking: booking, transitioned: true, touched: []string{userID}}
		return nil
	})
	if err != nil {
		metrics.RecordBookingRejection(rejectionReason(err))
		return nil, err
	}

	s.finish(ctx, change)
	s.notifier.NotifyBookingConfirmed(ctx, change.ride, change.booking)

	logger.Log.Infow("booking created",
		"booking_id", change.booking.ID,
		"ride_id", change.ride.ID,
		"user_id", userID,
		"amount", change.booking.CarbonCost.String(),
	)

	return change.booking, nil
}

// ActivateBooking records that the passenger has boarded.
func (s *BookingService) ActivateBooking(ctx context.Context, userID, bookingID string) (*domain.RideBooking, error) {
	change, err := s.transition(ctx, userID, bookingID, func(ctx context.Context, tx repository.Tx, ride *domain.Ride, booking *domain.RideBooking) (*bookingChange, error) {
		if booking.UserID != userID {
			return nil, ErrNotBookingOwner
		}
		if booking.Status != domain.BookingStatusConfirmed {
			return nil, ErrBookingNotConfirmed
		}
		if ride.Status != domain.RideStatusPending {
			return nil, ErrRideNotPending
		}

		if err := tx.Bookings().UpdateStatus(ctx, booking.ID, domain.BookingStatusActive); err != nil {
			return nil, fmt.Errorf("update booking status: %w", err)
		}
		booking.Status = domain.BookingStatusActive

		return &bookingChange{ride: ride, booking: booking, transitioned: true}, nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyRiderCheckedIn(ctx, change.ride, change.booking)
	return change.booking, nil
}

// CancelBookingByUser lets a passenger give up their seat before departure.
// The hold is released; inside the cancellation window the passenger is fined.
func (s *BookingService) CancelBookingByUser(ctx context.Context, userID, bookingID string) (*domain.RideBooking, error) {
	change, err := s.transition(ctx, userID, bookingID, func(ctx context.Context, tx repository.Tx, ride *domain.Ride, booking *domain.RideBooking) (*bookingChange, error) {
		if booking.UserID != userID {
			return nil, ErrNotBookingOwner
		}
		if err := cancellable(ride, booking); err != nil {
			return nil, err
		}

		var fine decimal.Decimal
		if s.withinCancellationWindow(ride) {
			fine = s.cfg.RiderCancellationFine
		}
		return s.release(ctx, tx, ride, booking, domain.BookingStatusCancelledUser, booking.UserID, fine)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyBookingCancelled(ctx, change.ride, change.booking)
	return change.booking, nil
}

// CancelBookingByDriver lets the driver drop a passenger before departure.
// The hold is released; inside the cancellation window the driver is fined.
func (s *BookingService) CancelBookingByDriver(ctx context.Context, driverID, bookingID string) (*domain.RideBooking, error) {
	change, err := s.transition(ctx, driverID, bookingID, func(ctx context.Context, tx repository.Tx, ride *domain.Ride, booking *domain.RideBooking) (*bookingChange, error) {
		if ride.DriverID != driverID {
			return nil, ErrNotRideDriver
		}
		if err := cancellable(ride, booking); err != nil {
			return nil, err
		}

		var fine decimal.Decimal
		if s.withinCancellationWindow(ride) {
			fine = s.cfg.DriverCancellationFine
		}
		return s.release(ctx, tx, ride, booking, domain.BookingStatusCancelledDriver, ride.DriverID, fine)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyBookingCancelled(ctx, change.ride, change.booking)
	return change.booking, nil
}

// ReportNoShow cancels a CONFIRMED booking whose passenger never checked in.
// Allowed only once the no-show waiting time past the starting time has
// elapsed. The passenger's hold is released and the passenger is fined.
func (s *BookingService) ReportNoShow(ctx context.Context, driverID, bookingID string) (*domain.RideBooking, error) {
	change, err := s.transition(ctx, driverID, bookingID, func(ctx context.Context, tx repository.Tx, ride *domain.Ride, booking *domain.RideBooking) (*bookingChange, error) {
		if ride.DriverID != driverID {
			return nil, ErrNotRideDriver
		}
		if booking.Status != domain.BookingStatusConfirmed {
			return nil, ErrBookingNotConfirmed
		}
		if ride.Status.IsTerminal() {
			return nil, ErrBookingNotCancelable
		}
		if s.now().Before(ride.StartingTime.Add(s.cfg.NoShowWaitingThreshold)) {
			return nil, ErrNoShowTooEarly
		}

		return s.release(ctx, tx, ride, booking, domain.BookingStatusCancelledDriver, booking.UserID, s.cfg.NoShowFine)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyBookingCancelled(ctx, change.ride, change.booking)
	return change.booking, nil
}

// DenyBooking lets the driver turn down a CONFIRMED booking on a ride that
// has not departed. The hold is released and nobody is fined.
func (s *BookingService) DenyBooking(ctx context.Context, driverID, bookingID string) (*domain.RideBooking, error) {
	change, err := s.transition(ctx, driverID, bookingID, func(ctx context.Context, tx repository.Tx, ride *domain.Ride, booking *domain.RideBooking) (*bookingChange, error) {
		if ride.DriverID != driverID {
			return nil, ErrNotRideDriver
		}
		if booking.Status != domain.BookingStatusConfirmed {
			return nil, ErrBookingNotConfirmed
		}
		if ride.Status != domain.RideStatusPending {
			return nil, ErrRideNotPending
		}
		if !s.now().Before(ride.StartingTime) {
			return nil, ErrRideDeparted
		}

		return s.release(ctx, tx, ride, booking, domain.BookingStatusDenied, "", decimal.Zero)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyBookingCancelled(ctx, change.ride, change.booking)
	return change.booking, nil
}

// CompleteBooking settles one booking and pays the driver. It is the retry
// path for bookings a ride completion could not finish, so the ride may be
// ACTIVE or already COMPLETED. Completing a COMPLETED booking is a no-op.
func (s *BookingService) CompleteBooking(ctx context.Context, driverID, bookingID string) (*domain.RideBooking, error) {
	change, err := s.transition(ctx, driverID, bookingID, func(ctx context.Context, tx repository.Tx, ride *domain.Ride, booking *domain.RideBooking) (*bookingChange, error) {
		if ride.DriverID != driverID {
			return nil, ErrNotRideDriver
		}
		if ride.Status != domain.RideStatusActive && ride.Status != domain.RideStatusCompleted {
			return nil, ErrRideNotCompletable
		}
		return s.complete(ctx, tx, ride, booking)
	})
	if err != nil {
		return nil, err
	}
	return change.booking, nil
}

// GetBooking returns a booking visible to its passenger or the ride's driver.
func (s *BookingService) GetBooking(ctx context.Context, userID, bookingID string) (*domain.RideBooking, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if bookingID == "" {
		return nil, ErrInvalidBookingID
	}

	booking, err := s.store.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		return nil, notFound(err, ErrBookingNotFound, "get booking")
	}
	if booking.UserID == userID {
		return booking, nil
	}

	ride, err := s.store.Rides().GetByID(ctx, booking.RideID)
	if err != nil {
		return nil, notFound(err, ErrRideNotFound, "get ride")
	}
	if ride.DriverID != userID {
		return nil, ErrNotBookingOwner
	}
	return booking, nil
}

// ListUserBookings lists the caller's bookings, newest first.
func (s *BookingService) ListUserBookings(ctx context.Context, userID string) ([]*domain.RideBooking, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	return s.store.Bookings().ListByUser(ctx, userID)
}

// completeForRide is one step of a ride completion.
func (s *BookingService) completeForRide(ctx context.Context, bookingID string) BookingOutcome {
	var change *bookingChange
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		ride, booking, err := s.lock(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		change, err = s.complete(ctx, tx, ride, booking)
		return err
	})
	return s.outcome(ctx, "complete_ride", bookingID, change, err)
}

// cancelForRide is one step of a ride cancellation. The ride-level fine
// replaces any per-booking fine, so this only releases the hold.
func (s *BookingService) cancelForRide(ctx context.Context, bookingID string) BookingOutcome {
	var change *bookingChange
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		ride, booking, err := s.lock(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if !booking.Status.HoldsSeat() {
			change = &bookingChange{ride: ride, booking: booking}
			return nil
		}
		change, err = s.release(ctx, tx, ride, booking, domain.BookingStatusCancelledDriver, "", decimal.Zero)
		return err
	})
	return s.outcome(ctx, "cancel_ride", bookingID, change, err)
}

func (s *BookingService) outcome(ctx context.Context, operation, bookingID string, change *bookingChange, err error) BookingOutcome {
	if err != nil {
		metrics.RecordFanOutFailure(operation)
		logger.Log.Errorw("booking step failed",
			"operation", operation,
			"booking_id", bookingID,
			"error", err,
		)
		return BookingOutcome{BookingID: bookingID, Err: err}
	}

	s.finish(ctx, change)
	return BookingOutcome{
		BookingID: bookingID,
		UserID:    change.booking.UserID,
		Status:    change.booking.Status,
	}
}

type transitionFunc func(ctx context.Context, tx repository.Tx, ride *domain.Ride, booking *domain.RideBooking) (*bookingChange, error)

// transition runs fn in a transaction with the booking's ride and the
// booking itself locked, in that order.
func (s *BookingService) transition(ctx context.Context, callerID, bookingID string, fn transitionFunc) (*bookingChange, error) {
	if callerID == "" {
		return nil, ErrUnauthenticated
	}
	if bookingID == "" {
		return nil, ErrInvalidBookingID
	}

	var change *bookingChange
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		ride, booking, err := s.lock(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		change, err = fn(ctx, tx, ride, booking)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.finish(ctx, change)
	return change, nil
}

func (s *BookingService) lock(ctx context.Context, tx repository.Tx, bookingID string) (*domain.Ride, *domain.RideBooking, error) {
	booking, err := tx.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		return nil, nil, notFound(err, ErrBookingNotFound, "get booking")
	}

	ride, err := tx.Rides().GetForUpdate(ctx, booking.RideID)
	if err != nil {
		return nil, nil, notFound(err, ErrRideNotFound, "lock ride")
	}

	booking, err = tx.Bookings().GetForUpdate(ctx, bookingID)
	if err != nil {
		return nil, nil, notFound(err, ErrBookingNotFound, "lock booking")
	}

	return ride, booking, nil
}

// release gives the passenger their hold back, optionally fines fineUserID,
// and moves the booking to status.
func (s *BookingService) release(
	ctx context.Context,
	tx repository.Tx,
	ride *domain.Ride,
	booking *domain.RideBooking,
	status domain.BookingStatus,
	fineUserID string,
	fine decimal.Decimal,
) (*bookingChange, error) {
	change := &bookingChange{ride: ride, booking: booking, transitioned: true, touched: []string{booking.UserID}}

	if _, err := s.ledger.Unhold(ctx, tx, booking.UserID, ride.ID, booking.ID, booking.CarbonCost); err != nil {
		return nil, fmt.Errorf("release hold: %w", err)
	}

	if fineUserID != "" && fine.IsPositive() {
		applied, err := s.ledger.ApplyFineChargeRideBooking(ctx, tx, fineUserID, ride.ID, booking.ID, fine)
		if err != nil {
			return nil, fmt.Errorf("apply booking fine: %w", err)
		}
		if applied {
			change.fine = &appliedFine{userID: fineUserID, amount: fine}
			change.touched = append(change.touched, fineUserID)
		}
	}

	if err := tx.Bookings().UpdateStatus(ctx, booking.ID, status); err != nil {
		return nil, fmt.Errorf("update booking status: %w", err)
	}
	booking.Status = status

	return change, nil
}

// complete settles the passenger's hold and pays the driver the same amount.
func (s *BookingService) complete(ctx context.Context, tx repository.Tx, ride *domain.Ride, booking *domain.RideBooking) (*bookingChange, error) {
	if booking.Status == domain.BookingStatusCompleted {
		return &bookingChange{ride: ride, booking: booking}, nil
	}
	if booking.Status != domain.BookingStatusActive {
		return nil, ErrBookingNotActive
	}

	if _, err := s.ledger.Settle(ctx, tx, booking.UserID, ride.ID, booking.ID, booking.CarbonCost); err != nil {
		return nil, fmt.Errorf("settle booking: %w", err)
	}
	if _, err := s.ledger.CreditPayout(ctx, tx, ride.DriverID, ride.ID, booking.ID, booking.CarbonCost); err != nil {
		return nil, fmt.Errorf("credit payout: %w", err)
	}

	if err := tx.Bookings().UpdateStatus(ctx, booking.ID, domain.BookingStatusCompleted); err != nil {
		return nil, fmt.Errorf("update booking status: %w", err)
	}
	booking.Status = domain.BookingStatusCompleted

	return &bookingChange{
		ride:         ride,
		booking:      booking,
		transitioned: true,
		touched:      []string{booking.UserID, ride.DriverID},
	}, nil
}

// finish runs the post-commit side effects of a booking change.
func (s *BookingService) finish(ctx context.Context, change *bookingChange) {
	if change == nil {
		return
	}
	if len(change.touched) > 0 {
		invalidateWallets(ctx, s.cache, change.touched...)
	}
	if change.transitioned {
		metrics.RecordBookingTransition(string(change.booking.Status))
	}
	if change.fine != nil {
		s.notifier.NotifyFineCharged(ctx, change.fine.userID, change.ride.ID, change.fine.amount)
	}
}

func (s *BookingService) withinCancellationWindow(ride *domain.Ride) bool {
	return !s.now().Before(ride.StartingTime.Add(-s.cfg.CancellationThreshold))
}

// cancellable reports whether a passenger or driver may still cancel.
func cancellable(ride *domain.Ride, booking *domain.RideBooking) error {
	if !booking.Status.HoldsSeat() {
		return ErrBookingNotCancelable
	}
	if ride.Status != domain.RideStatusPending {
		return ErrRideNotPending
	}
	return nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrDuplicateBooking):
		return "duplicate_booking"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrConflictingActiveRide):
		return "conflicting_active_ride"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	}
	return "error"
}
