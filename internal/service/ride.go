package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"carpool/internal/config"
	"carpool/internal/domain"
	"carpool/internal/logger"
	"carpool/internal/metrics"
	"carpool/internal/repository"
)

// RideService handles the ride lifecycle.
type RideService struct {
	store    repository.Store
	ledger   *LedgerService
	bookings *BookingService
	cfg      config.LedgerConfig
	notifier *NotificationService
	receipts *ReceiptService
	cache    WalletCache
	now      func() time.Time
}

// NewRideService creates a new RideService. cache may be nil.
func NewRideService(
	store repository.Store,
	ledger *LedgerService,
	bookings *BookingService,
	cfg config.LedgerConfig,
	notifier *NotificationService,
	cache WalletCache,
) *RideService {
	if cache == nil {
		cache = noopWalletCache{}
	}
	return &RideService{
		store:    store,
		ledger:   ledger,
		bookings: bookings,
		cfg:      cfg,
		notifier: notifier,
		receipts: NewReceiptService(notifier),
		cache:    cache,
		now:      time.Now,
	}
}

// CreateRideRequest contains the parameters for offering a ride.
type CreateRideRequest struct {
	StartingLocationID    string
	DestinationLocationID string
	StartingTime          time.Time
	MaxPassengers         int
	VehicleID             string
}

// RideResult is the outcome of a ride-wide transition. Outcomes holds one
// entry per booking the transition touched.
type RideResult struct {
	Ride        *domain.Ride
	Outcomes    []BookingOutcome
	FineApplied bool
	Receipts    []*Receipt // completion only
}

// Failed returns the outcomes that did not succeed.
func (r *RideResult) Failed() []BookingOutcome {
	var failed []BookingOutcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// CreateRide offers a new ride in PENDING state.
func (s *RideService) CreateRide(ctx context.Context, driverID string, req CreateRideRequest) (*domain.Ride, error) {
	if driverID == "" {
		return nil, ErrUnauthenticated
	}
	if err := s.validateCreateRequest(req); err != nil {
		return nil, err
	}

	var ride *domain.Ride
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		vehicle, err := tx.Vehicles().GetByID(ctx, req.VehicleID)
		if err != nil {
			return notFound(err, ErrVehicleNotFound, "get vehicle")
		}
		if vehicle.OwnerID != driverID {
			return ErrVehicleNotOwned
		}
		cost, ok := s.cfg.CarbonCostFor(vehicle.Type)
		if !ok {
			return ErrUnknownVehicleType
		}

		// The wallet lock serialises concurrent ride offers by one driver.
		wallet, err := tx.Wallets().GetForUpdate(ctx, driverID)
		if err != nil {
			return notFound(err, ErrWalletNotFound, "lock wallet")
		}

		open, err := tx.Rides().GetOpenByDriverID(ctx, driverID)
		if err != nil {
			return fmt.Errorf("look up open ride: %w", err)
		}
		if open != nil {
			return ErrConflictingActiveRide
		}

		if wallet.SpendableBalance.LessThan(s.cfg.RideCreationBalanceFloor) {
			return ErrInsufficientBalance
		}

		ride = &domain.Ride{
			ID:                    uuid.New().String(),
			DriverID:              driverID,
			StartingLocationID:    req.StartingLocationID,
			DestinationLocationID: req.DestinationLocationID,
			StartingTime:          req.StartingTime,
			MaxPassengers:         req.MaxPassengers,
			VehicleID:             vehicle.ID,
			CarbonCost:            cost,
			Status:                domain.RideStatusPending,
			CreatedAt:             s.now(),
		}
		if err := tx.Rides().Create(ctx, ride); err != nil {
			return fmt.Errorf("create ride: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordRideTransition(string(domain.RideStatusPending))
	logger.Log.Infow("ride created",
		"ride_id", ride.ID,
		"driver_id", driverID,
		"starting_time", ride.StartingTime,
		"max_passengers", ride.MaxPassengers,
	)

	return ride, nil
}

func (s *RideService) validateCreateRequest(req CreateRideRequest) error {
	if req.StartingLocationID == "" || req.DestinationLocationID == "" {
		return ErrInvalidLocation
	}
	if req.VehicleID == "" {
		return ErrInvalidVehicleID
	}
	if req.MaxPassengers < domain.MinPassengers || req.MaxPassengers > domain.MaxPassengers {
		return ErrInvalidMaxPassengers
	}
	if !req.StartingTime.After(s.now()) {
		return ErrStartingTimeInPast
	}
	return nil
}

// ActivateRide starts a PENDING ride. Every passenger must have checked in
// first; otherwise a RiderNotReachedError names the first one who has not.
func (s *RideService) ActivateRide(ctx context.Context, driverID, rideID string) (*domain.Ride, error) {
	var passengers []string
	ride, err := s.withRide(ctx, driverID, rideID, func(ctx context.Context, tx repository.Tx, ride *domain.Ride) error {
		if ride.Status != domain.RideStatusPending {
			return ErrRideNotPending
		}

		confirmed, err := tx.Bookings().ListByRide(ctx, ride.ID, domain.BookingStatusConfirmed)
		if err != nil {
			return fmt.Errorf("list confirmed bookings: %w", err)
		}
		if len(confirmed) > 0 {
			return &RiderNotReachedError{UserID: confirmed[0].UserID, BookingID: confirmed[0].ID}
		}

		active, err := tx.Bookings().ListByRide(ctx, ride.ID, domain.BookingStatusActive)
		if err != nil {
			return fmt.Errorf("list active bookings: %w", err)
		}
		for _, b := range active {
			passengers = append(passengers, b.UserID)
		}

		ride.Status = domain.RideStatusActive
		return tx.Rides().Update(ctx, ride)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordRideTransition(string(ride.Status))
	s.notifier.NotifyRideStatus(ctx, ride, passengers)
	logger.Log.Infow("ride activated", "ride_id", ride.ID, "passengers", len(passengers))

	return ride, nil
}

// CompleteRide finishes an ACTIVE ride. Each ACTIVE booking is settled and
// paid out in its own transaction; a failure on one booking does not stop
// the others or the ride transition and is reported in the result. Failed
// bookings can be retried with BookingService.CompleteBooking.
func (s *RideService) CompleteRide(ctx context.Context, driverID, rideID string) (*RideResult, error) {
	var active []*domain.RideBooking
	_, err := s.withRide(ctx, driverID, rideID, func(ctx context.Context, tx repository.Tx, ride *domain.Ride) error {
		if ride.Status != domain.RideStatusActive {
			return ErrRideNotActive
		}
		var err error
		active, err = tx.Bookings().ListByRide(ctx, ride.ID, domain.BookingStatusActive)
		if err != nil {
			return fmt.Errorf("list active bookings: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &RideResult{}
	for _, b := range active {
		result.Outcomes = append(result.Outcomes, s.bookings.completeForRide(ctx, b.ID))
	}

	transitioned := false
	ride, err := s.withRide(ctx, driverID, rideID, func(ctx context.Context, tx repository.Tx, ride *domain.Ride) error {
		if ride.Status == domain.RideStatusCompleted {
			return nil
		}
		if ride.Status != domain.RideStatusActive {
			return ErrRideNotActive
		}
		ride.Status = domain.RideStatusCompleted
		ride.CompletedAt = s.now()
		transitioned = true
		return tx.Rides().Update(ctx, ride)
	})
	if err != nil {
		return nil, err
	}
	result.Ride = ride

	if transitioned {
		metrics.RecordRideTransition(string(ride.Status))
		s.notifier.NotifyRideStatus(ctx, ride, passengerIDs(result.Outcomes))
	}
	result.Receipts = s.receipts.IssueReceipts(ctx, ride, settledBookings(active, result.Outcomes))
	logger.Log.Infow("ride completed",
		"ride_id", ride.ID,
		"bookings", len(result.Outcomes),
		"failed", len(result.Failed()),
	)

	return result, nil
}

// CancelRide cancels a PENDING ride. In the same transaction the driver is
// fined once if any passenger still holds a seat and the cancellation falls
// inside the cancellation window. Each seat-holding booking is then moved
// to CANCELLED_DRIVER in its own transaction with its hold released.
//
// Calling CancelRide on an already CANCELLED ride retries the bookings a
// previous call could not release; the fine is not reconsidered.
func (s *RideService) CancelRide(ctx context.Context, driverID, rideID string) (*RideResult, error) {
	result := &RideResult{}
	transitioned := false
	var holders []*domain.RideBooking

	ride, err := s.withRide(ctx, driverID, rideID, func(ctx context.Context, tx repository.Tx, ride *domain.Ride) error {
		var err error
		holders, err = tx.Bookings().ListByRide(ctx, ride.ID, domain.SeatHoldingStatuses...)
		if err != nil {
			return fmt.Errorf("list bookings: %w", err)
		}

		if ride.Status == domain.RideStatusCancelled {
			return nil
		}
		if ride.Status != domain.RideStatusPending {
			return ErrRideNotPending
		}

		now := s.now()
		if len(holders) > 0 && s.withinCancellationWindow(ride, now) && s.cfg.DriverCancellationFine.IsPositive() {
			result.FineApplied, err = s.ledger.ApplyFineChargeRide(ctx, tx, ride.DriverID, ride.ID, s.cfg.DriverCancellationFine)
			if err != nil {
				return fmt.Errorf("apply ride fine: %w", err)
			}
		}

		ride.Status = domain.RideStatusCancelled
		ride.CancelledAt = now
		transitioned = true
		return tx.Rides().Update(ctx, ride)
	})
	if err != nil {
		return nil, err
	}
	result.Ride = ride

	if result.FineApplied {
		invalidateWallets(ctx, s.cache, ride.DriverID)
		s.notifier.NotifyFineCharged(ctx, ride.DriverID, ride.ID, s.cfg.DriverCancellationFine)
	}
	if transitioned {
		metrics.RecordRideTransition(string(ride.Status))
	}

	for _, b := range holders {
		result.Outcomes = append(result.Outcomes, s.bookings.cancelForRide(ctx, b.ID))
	}

	if transitioned {
		s.notifier.NotifyRideStatus(ctx, ride, passengerIDs(result.Outcomes))
	}
	logger.Log.Infow("ride cancelled",
		"ride_id", ride.ID,
		"fine_applied", result.FineApplied,
		"bookings", len(result.Outcomes),
		"failed", len(result.Failed()),
	)

	return result, nil
}

// GetRide returns a ride. Any authenticated user may look up a ride.
func (s *RideService) GetRide(ctx context.Context, userID, rideID string) (*domain.Ride, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if rideID == "" {
		return nil, ErrInvalidRideID
	}

	ride, err := s.store.Rides().GetByID(ctx, rideID)
	if err != nil {
		return nil, notFound(err, ErrRideNotFound, "get ride")
	}
	return ride, nil
}

// ListRideBookings lists every booking on the driver's ride.
func (s *RideService) ListRideBookings(ctx context.Context, driverID, rideID string) ([]*domain.RideBooking, error) {
	ride, err := s.GetRide(ctx, driverID, rideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID != driverID {
		return nil, ErrNotRideDriver
	}
	return s.store.Bookings().ListByRide(ctx, ride.ID)
}

// withRide runs fn in a transaction with the driver's ride locked.
func (s *RideService) withRide(ctx context.Context, driverID, rideID string, fn func(ctx context.Context, tx repository.Tx, ride *domain.Ride) error) (*domain.Ride, error) {
	if driverID == "" {
		return nil, ErrUnauthenticated
	}
	if rideID == "" {
		return nil, ErrInvalidRideID
	}

	var locked *domain.Ride
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		ride, err := tx.Rides().GetForUpdate(ctx, rideID)
		if err != nil {
			return notFound(err, ErrRideNotFound, "lock ride")
		}
		if ride.DriverID != driverID {
			return ErrNotRideDriver
		}
		if err := fn(ctx, tx, ride); err != nil {
			return err
		}
		locked = ride
		return nil
	})
	if err != nil {
		return nil, err
	}
	return locked, nil
}

func (s *RideService) withinCancellationWindow(ride *domain.Ride, now time.Time) bool {
	return !now.Before(ride.StartingTime.Add(-s.cfg.CancellationThreshold))
}

func passengerIDs(outcomes []BookingOutcome) []string {
	var ids []string
	for _, o := range outcomes {
		if o.Err == nil && o.UserID != "" {
			ids = append(ids, o.UserID)
		}
	}
	return ids
}

// settledBookings returns the bookings whose completion succeeded, with the
// status they ended in.
func settledBookings(bookings []*domain.RideBooking, outcomes []BookingOutcome) []*domain.RideBooking {
	done := make(map[string]domain.BookingStatus, len(outcomes))
	for _, o := range outcomes {
		if o.Err == nil {
			done[o.BookingID] = o.Status
		}
	}

	var settled []*domain.RideBooking
	for _, b := range bookings {
		status, ok := done[b.ID]
		if !ok {
			continue
		}
		copied := *b
		copied.Status = status
		settled = append(settled, &copied)
	}
	return settled
}
