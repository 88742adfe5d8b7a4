// Package memory is an in-process repository.Store. A transaction holds the
// store mutex for its whole lifetime and rolls back by restoring a snapshot,
// so it behaves like a fully serialised database.
package memory

import (
	"context"
	"sync"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

type state struct {
	users    map[string]domain.User
	wallets  map[string]domain.Wallet // keyed by user ID
	txns     []domain.WalletTransaction
	rides    map[string]domain.Ride
	bookings map[string]domain.RideBooking
	vehicles map[string]domain.Vehicle
}

func newState() *state {
	return &state{
		users:    make(map[string]domain.User),
		wallets:  make(map[string]domain.Wallet),
		rides:    make(map[string]domain.Ride),
		bookings: make(map[string]domain.RideBooking),
		vehicles: make(map[string]domain.Vehicle),
	}
}

func (s *state) clone() *state {
	c := &state{
		users:    make(map[string]domain.User, len(s.users)),
		wallets:  make(map[string]domain.Wallet, len(s.wallets)),
		txns:     make([]domain.WalletTransaction, len(s.txns)),
		rides:    make(map[string]domain.Ride, len(s.rides)),
		bookings: make(map[string]domain.RideBooking, len(s.bookings)),
		vehicles: make(map[string]domain.Vehicle, len(s.vehicles)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	copy(c.txns, s.txns)
	for k, v := range s.rides {
		c.rides[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.vehicles {
		c.vehicles[k] = v
	}
	return c
}

// Store is an in-memory implementation of repository.Store.
type Store struct {
	mu sync.Mutex
	st *state
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{st: newState()}
}

// AddVehicle registers a vehicle. Vehicle management lives outside this
// service, so this is how the memory driver gets seeded.
func (s *Store) AddVehicle(v domain.Vehicle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.vehicles[v.ID] = v
}

func (s *Store) Users() repository.UserRepository               { return &userRepo{view{s: s}} }
func (s *Store) Wallets() repository.WalletRepository           { return &walletRepo{view{s: s}} }
func (s *Store) Transactions() repository.TransactionRepository { return &txnRepo{view{s: s}} }
func (s *Store) Rides() repository.RideRepository               { return &rideRepo{view{s: s}} }
func (s *Store) Bookings() repository.BookingRepository         { return &bookingRepo{view{s: s}} }
func (s *Store) Vehicles() repository.VehicleRepository         { return &vehicleRepo{view{s: s}} }

// WithinTx runs fn with exclusive access to the store. Any error or panic
// restores the state that existed before fn started.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	committed := false
	defer func() {
		if !committed {
			s.st = snapshot
		}
	}()

	if err := fn(ctx, &txView{view{s: s, inTx: true}}); err != nil {
		return err
	}

	committed = true
	return nil
}

// view is a handle on the store. Outside a transaction each call takes the
// mutex itself; inside one the mutex is already held by WithinTx.
type view struct {
	s    *Store
	inTx bool
}

func (v view) do(fn func(st *state) error) error {
	if !v.inTx {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}
	return fn(v.s.st)
}

type txView struct {
	v view
}

func (t *txView) Users() repository.UserRepository               { return &userRepo{t.v} }
func (t *txView) Wallets() repository.WalletRepository           { return &walletRepo{t.v} }
func (t *txView) Transactions() repository.TransactionRepository { return &txnRepo{t.v} }
func (t *txView) Rides() repository.RideRepository               { return &rideRepo{t.v} }
func (t *txView) Bookings() repository.BookingRepository         { return &bookingRepo{t.v} }
func (t *txView) Vehicles() repository.VehicleRepository         { return &vehicleRepo{t.v} }

var (
	_ repository.Store = (*Store)(nil)
	_ repository.Tx    = (*txView)(nil)
)
